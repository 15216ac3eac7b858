package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	contractx "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/contract"
	twiliox "github.com/tanpawarit/Chative-Outbound-Call-Flow/pkg/twilio"
)

const (
	dialInitiated = "call_initiated"
	dialFailed    = "failed"
)

var defaultCampaignStatuses = []contractx.LeadStatus{
	contractx.LeadStatusNew,
	contractx.LeadStatusOpen,
	contractx.LeadStatusAttemptedToContact,
}

// CampaignRequest selects the contacts to ring. Every field is optional.
type CampaignRequest struct {
	LeadStatuses          []contractx.LeadStatus `json:"lead_statuses"`
	UpdateStatusAfterCall *bool                  `json:"update_status_after_call"`
	MaxContacts           int                    `json:"max_contacts"`
}

type DialResult struct {
	ContactID string `json:"contact_id"`
	Phone     string `json:"phone_number"`
	CallSID   string `json:"call_sid,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type CampaignResult struct {
	Success           bool         `json:"success"`
	Message           string       `json:"message"`
	TotalContacts     int          `json:"total_contacts_found"`
	ContactsWithPhone int          `json:"contacts_with_phone"`
	CallsInitiated    int          `json:"calls_initiated"`
	CallsFailed       int          `json:"calls_failed"`
	CRMUpdated        bool         `json:"hubspot_updated"`
	Results           []DialResult `json:"call_results"`
}

// handleCampaignStart searches the CRM for contacts by lead status and rings
// every one that has a phone number. Dialed calls are remembered by call sid
// so /twiml and /call_status can find the contact again.
func (s *Server) handleCampaignStart(w http.ResponseWriter, r *http.Request) {
	var req CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid campaign request"})
		return
	}
	if req.MaxContacts < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max_contacts must be >= 0"})
		return
	}
	statuses := req.LeadStatuses
	if len(statuses) == 0 {
		statuses = defaultCampaignStatuses
	}
	updateStatus := req.UpdateStatusAfterCall == nil || *req.UpdateStatusAfterCall

	ctx := r.Context()
	logger := s.logger.With().Str("component", "campaign").Logger()

	contacts, err := s.contacts.SearchContactsByLeadStatus(ctx, statuses, 0)
	if err != nil {
		logger.Error().Err(err).Msg("contact search failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "contact search failed"})
		return
	}

	result := CampaignResult{TotalContacts: len(contacts), Results: []DialResult{}}
	targets := make([]contractx.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.Phone == "" {
			continue
		}
		targets = append(targets, c)
		if req.MaxContacts > 0 && len(targets) >= req.MaxContacts {
			break
		}
	}
	result.ContactsWithPhone = len(targets)

	switch {
	case len(contacts) == 0:
		result.Message = "No contacts found with specified lead statuses"
		writeJSON(w, http.StatusOK, result)
		return
	case len(targets) == 0:
		result.Message = "No valid phone numbers found in contacts"
		writeJSON(w, http.StatusOK, result)
		return
	}

	for _, c := range targets {
		dial := DialResult{ContactID: c.ID, Phone: c.Phone}
		sid, err := s.placer.PlaceCall(ctx, contractx.OutboundCall{To: c.Phone, ContactID: c.ID, LeadStatus: c.LeadStatus})
		if err != nil {
			logger.Warn().Err(err).Str("correlation_id", c.ID).Msg("dial failed")
			dial.Status = dialFailed
			dial.Error = err.Error()
			result.CallsFailed++
			result.Results = append(result.Results, dial)
			continue
		}

		dial.Status = dialInitiated
		dial.CallSID = sid
		result.CallsInitiated++
		result.Results = append(result.Results, dial)

		s.calls.Upsert(sid, s.now(), func(rec *CallRecord) {
			rec.Transport = "twilio"
			rec.ContactID = c.ID
			rec.Phone = c.Phone
			rec.LeadStatus = string(c.LeadStatus)
			rec.DialStatus = dialInitiated
		})

		if updateStatus && s.crm != nil {
			if err := s.crm.SetLeadStatus(ctx, c.ID, contractx.LeadStatusAttemptedToContact); err != nil {
				logger.Warn().Err(err).Str("correlation_id", c.ID).Msg("lead status update failed")
			}
		}
	}

	result.CRMUpdated = updateStatus && s.crm != nil
	result.Success = result.CallsInitiated > 0
	result.Message = fmt.Sprintf("Campaign started: %d of %d calls initiated", result.CallsInitiated, len(targets))
	logger.Info().
		Int("contacts", len(contacts)).
		Int("initiated", result.CallsInitiated).
		Int("failed", result.CallsFailed).
		Msg("campaign started")
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCampaignStatus(w http.ResponseWriter, r *http.Request) {
	details := []CallRecord{}
	reported := 0
	for _, rec := range s.calls.List() {
		if rec.DialStatus == "" {
			continue
		}
		if rec.TwilioStatus != "" {
			reported++
		}
		details = append(details, rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"calls_dialed":      len(details),
		"calls_with_status": reported,
		"call_details":      details,
	})
}

// handleTwiML answers Twilio's instruction fetch for an answered call by
// connecting it to /ws for the dialed contact.
func (s *Server) handleTwiML(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form body"})
		return
	}

	callSID := strings.TrimSpace(r.PostForm.Get("CallSid"))
	contactID := strings.TrimSpace(r.URL.Query().Get("contactId"))
	var leadStatus string
	if callSID != "" {
		if rec, ok := s.calls.Get(callSID); ok {
			if contactID == "" {
				contactID = rec.ContactID
			}
			leadStatus = rec.LeadStatus
		}
	}

	streamURL := s.streamURL(r)
	var params []twiliox.Parameter
	if callSID != "" {
		params = append(params, twiliox.Parameter{Name: "CallSid", Value: callSID})
	}
	if contactID != "" {
		streamURL += "?" + url.Values{"contactId": {contactID}}.Encode()
		params = append(params, twiliox.Parameter{Name: "contactId", Value: contactID})
	}
	if leadStatus != "" {
		params = append(params, twiliox.Parameter{Name: "leadStatus", Value: leadStatus})
	}

	body, err := twiliox.StreamTwiML(streamURL, params)
	if err != nil {
		s.logger.Error().Err(err).Str("call_sid", callSID).Msg("twiml render failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "twiml render failed"})
		return
	}

	s.logger.Info().Str("call_sid", callSID).Str("correlation_id", contactID).Msg("serving twiml")
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// streamURL is the websocket Twilio connects to: the configured URL, or one
// derived from the request host.
func (s *Server) streamURL(r *http.Request) string {
	if s.streamBase != "" {
		return s.streamBase
	}
	scheme := "wss"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
		scheme = "ws"
	}
	return scheme + "://" + r.Host + "/ws"
}
