package server

import (
	"net/http"
	"strings"

	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
)

const (
	twilioCompleted = "completed"
	twilioNoAnswer  = "no-answer"
	twilioBusy      = "busy"
	twilioFailed    = "failed"
)

// handleCallStatus receives Twilio's status callback. Unreached calls are
// marked ATTEMPTED_TO_CONTACT with a note; completed calls were already
// synced by the conversation itself.
func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form body"})
		return
	}

	callSID := strings.TrimSpace(r.PostForm.Get("CallSid"))
	status := strings.TrimSpace(r.PostForm.Get("CallStatus"))
	duration := strings.TrimSpace(r.PostForm.Get("CallDuration"))
	if duration == "" {
		duration = "0"
	}
	contactID := strings.TrimSpace(r.URL.Query().Get("contactId"))
	if contactID == "" && callSID != "" {
		if rec, ok := s.calls.Get(callSID); ok {
			contactID = rec.ContactID
		}
	}

	now := s.now()
	logger := s.logger.With().
		Str("call_sid", callSID).
		Str("call_status", status).
		Str("correlation_id", contactID).
		Logger()
	logger.Info().Str("duration", duration).Msg("call status update")

	if callSID != "" {
		s.calls.Upsert(callSID, now, func(rec *CallRecord) {
			rec.Transport = "twilio"
			rec.TwilioStatus = status
			rec.Duration = duration
			if contactID != "" {
				rec.ContactID = contactID
			}
		})
	}

	if contactID == "" || s.crm == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	switch status {
	case twilioCompleted:
		logger.Info().Msg("call completed")
	case twilioNoAnswer, twilioBusy, twilioFailed:
		ctx := r.Context()
		if err := s.crm.SetLeadStatus(ctx, contactID, contractx.LeadStatusAttemptedToContact); err != nil {
			logger.Error().Err(err).Msg("lead status update failed")
		}
		fields := []contractx.NoteField{
			{Label: "Call Status", Value: status},
			{Label: "Call SID", Value: callSID},
			{Label: "Timestamp", Value: now.Format("2006-01-02 15:04:05")},
			{Label: "Note", Value: "Outbound call " + status},
		}
		if err := s.crm.SyncCallOutcome(ctx, contactID, fields); err != nil {
			logger.Error().Err(err).Msg("call failure note failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
