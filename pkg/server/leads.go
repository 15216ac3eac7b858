package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	statex "github.com/tanpawarit/Chative-Outbound-Call-Flow/agent/state"
	"github.com/tanpawarit/Chative-Outbound-Call-Flow/pkg/leadlog"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// LeadStore holds the latest lead snapshot per contact.
type LeadStore interface {
	Load(ctx context.Context, contactID string) (*statex.Snapshot, error)
	Delete(ctx context.Context, contactID string) error
}

// LeadHistory lists audited snapshots for a contact, newest first.
type LeadHistory interface {
	History(ctx context.Context, contactID string, limit int) ([]leadlog.LeadSnapshotRow, error)
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	s.writeLead(w, r, chi.URLParam(r, "contactID"))
}

// handleGetCallLead resolves the call's contact through the call registry.
func (s *Server) handleGetCallLead(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.calls.Get(chi.URLParam(r, "callID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "call not found"})
		return
	}
	if rec.ContactID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "call has no contact"})
		return
	}
	s.writeLead(w, r, rec.ContactID)
}

func (s *Server) writeLead(w http.ResponseWriter, r *http.Request, contactID string) {
	snap, err := s.leads.Load(r.Context(), contactID)
	if err != nil {
		s.writeLeadError(w, contactID, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")
	if err := s.leads.Delete(r.Context(), contactID); err != nil {
		s.writeLeadError(w, contactID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeadHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	contactID := chi.URLParam(r, "contactID")
	rows, err := s.history.History(r.Context(), contactID, limit)
	if err != nil {
		s.writeLeadError(w, contactID, err)
		return
	}
	if rows == nil {
		rows = []leadlog.LeadSnapshotRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contact_id": contactID, "snapshots": rows})
}

func (s *Server) writeLeadError(w http.ResponseWriter, contactID string, err error) {
	switch {
	case errors.Is(err, statex.ErrSnapshotNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "lead not found"})
	case errors.Is(err, statex.ErrInvalidContact):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "contact id is required"})
	default:
		s.logger.Error().Err(err).Str("correlation_id", contactID).Msg("lead lookup failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "lead store unavailable"})
	}
}
