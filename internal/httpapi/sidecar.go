package httpapi

import (
	"net/http"

	"github.com/jitsi-contrib/autoscaler/internal/model"
)

// handleStats is the authenticated side-car ingestion endpoint. Unlike
// /status, a decode or tracker failure here does fail the response --
// spec.md §6 only grants /status the "errors do not block the response"
// leniency.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var report model.StatsReport
	if err := decodeJSON(r, &report); err != nil {
		writeJSON(w, s.log, http.StatusBadRequest, map[string]string{"error": "invalid stats report"})
		return
	}

	if err := s.tracker.Stats(r.Context(), report, false); err != nil {
		s.log.Error("stats ingestion failed", "instanceId", report.InstanceID, "error", err)
		writeError(w, s.log, err)
		return
	}

	verdict, err := s.verdictFor(r.Context(), report.InstanceID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, verdict)
}

// handleStatus never fails the caller: a decode or ingestion error is
// logged and answered with the no-op verdict instead of an error status, so
// the side-car simply polls again next interval.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var report model.StatsReport
	if err := decodeJSON(r, &report); err != nil {
		s.log.Warn("status report parse error", "error", err)
		writeJSON(w, s.log, http.StatusOK, model.PollVerdict{})
		return
	}

	if err := s.tracker.Stats(r.Context(), report, false); err != nil {
		s.log.Warn("status ingestion error", "instanceId", report.InstanceID, "error", err)
		writeJSON(w, s.log, http.StatusOK, model.PollVerdict{})
		return
	}

	verdict, err := s.verdictFor(r.Context(), report.InstanceID)
	if err != nil {
		s.log.Warn("status verdict lookup error", "instanceId", report.InstanceID, "error", err)
		writeJSON(w, s.log, http.StatusOK, model.PollVerdict{})
		return
	}
	writeJSON(w, s.log, http.StatusOK, verdict)
}

// pollRequest is /poll's minimal body: just enough to identify the caller.
type pollRequest struct {
	InstanceID string `json:"instanceId"`
}

// handlePoll reports the current verdict without ingesting any stats.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if err := decodeJSON(r, &req); err != nil {
		s.log.Warn("poll request parse error", "error", err)
		writeJSON(w, s.log, http.StatusOK, model.PollVerdict{})
		return
	}

	verdict, err := s.verdictFor(r.Context(), req.InstanceID)
	if err != nil {
		s.log.Warn("poll verdict lookup error", "instanceId", req.InstanceID, "error", err)
		writeJSON(w, s.log, http.StatusOK, model.PollVerdict{})
		return
	}
	writeJSON(w, s.log, http.StatusOK, verdict)
}
