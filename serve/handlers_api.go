package serve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/everydev1618/goconvo/dsl"
	"github.com/everydev1618/goconvo/store"
)

// --- Source Handlers ---

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readSource(w, r)
	if !ok {
		return
	}
	messages, err := s.engine.Parse(req.Source)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readSource(w, r)
	if !ok {
		return
	}
	tools, err := s.engine.Tools(req.Source)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, tools)
}

// --- Run Handlers ---

// handleRun runs a document. Under /api/conversations/{id} the
// conversation's state is restored and saved; /api/run starts a new one.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readSource(w, r)
	if !ok {
		return
	}
	convID := r.PathValue("id")
	if convID == "" {
		convID = store.NewConversationID()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RunTimeout)
	defer cancel()

	s.runs.Add(1)
	res, err := s.engine.Run(ctx, convID, req.Source)
	if err != nil {
		s.failures.Add(1)
		s.broker.Publish(BrokerEvent{
			Type:         "run.failed",
			Conversation: convID,
			Error:        truncate(err.Error(), 1024),
			Timestamp:    time.Now(),
		})
		status := http.StatusUnprocessableEntity
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, err)
		return
	}

	s.broker.Publish(BrokerEvent{
		Type:         "run.completed",
		Conversation: convID,
		SnapshotID:   res.SnapshotID,
		Setters:      res.Setters,
		Timestamp:    time.Now(),
	})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	snaps, err := s.engine.History(r.PathValue("id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := make([]SnapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		resp = append(resp, SnapshotResponse{
			ID:        snap.ID,
			Vars:      snap.Vars,
			Setters:   snap.Setters,
			Source:    snap.Source,
			CreatedAt: snap.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Stats Handler ---

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Runs:        s.runs.Load(),
		Failures:    s.failures.Load(),
		Subscribers: s.broker.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// --- Helpers ---

func (s *Server) readSource(w http.ResponseWriter, r *http.Request) (SourceRequest, bool) {
	var req SourceRequest
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return req, false
	}
	return req, true
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var pe *dsl.ParseError
	if errors.As(err, &pe) {
		resp.Parse = &ParseErrorResponse{
			Message:    pe.Message,
			LineNumber: pe.LineNumber,
			Line:       pe.Line,
			Near:       pe.Near,
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
