package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/checkin"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/lifecycle"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ws"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.sendError(w, "Endpoint not found", http.StatusNotFound)
		return
	}

	info := map[string]interface{}{
		"service":     "Anonymous Check-In",
		"version":     "1.0.0",
		"description": "Anonymous meeting check-in on an EVM ledger",
		"endpoints": map[string]string{
			"GET /":                                 "This page - Service information",
			"GET /health":                           "Health check endpoint",
			"GET /metrics":                          "Prometheus metrics for monitoring",
			"GET /meetings":                         "List meetings with aggregates (supports ?status=all|active|ended)",
			"GET /meetings/popular":                 "Most attended active meetings (supports ?limit=)",
			"GET /meetings/stats":                   "Dashboard aggregates",
			"GET /meetings/{id}/participants/{pid}": "Check-in status of one participant",
			"POST /meetings":                        "Create a meeting",
			"POST /meetings/{id}/checkin":           "Check in anonymously",
			"POST /meetings/{id}/end":               "End a meeting (requires {\"confirm\": true})",
			"GET /submissions":                      "Submission journal (supports ?limit=, ?offset=)",
			"GET /ws":                               "Websocket stream of session and submission events",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth returns health status
// GET /health - Health check for monitoring systems
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		slog.Error("Health check failed", "error", err)
		s.sendError(w, "Submission journal unhealthy", http.StatusServiceUnavailable)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "anonymous-checkin",
		"session":   s.service.Session().State(),
	}

	writeJSON(w, http.StatusOK, health)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// =============================================================================
// MEETING ENDPOINTS
// =============================================================================

// handleListMeetings returns the reconstructed meeting list
// GET /meetings?status=active
func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	filter, ok := models.ParseStatusFilter(r.URL.Query().Get("status"))
	if !ok {
		s.sendError(w, "status must be one of all, active, ended", http.StatusBadRequest)
		return
	}

	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, models.MeetingsResponse{
		Meetings:      snap.Filter(filter),
		ActiveIDs:     snap.ActiveIDs,
		Stats:         snap.Stats(),
		Available:     snap.Available,
		ActiveDerived: snap.ActiveDerived,
		Filter:        string(filter),
	})
}

// handlePopularMeetings returns the most attended active meetings
// GET /meetings/popular?limit=3
func (s *Server) handlePopularMeetings(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 3, 1, 100)

	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}

	popular := snap.Popular(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"meetings": popular,
		"total":    len(popular),
	})
}

// handleMeetingStats returns dashboard aggregates
// GET /meetings/stats
func (s *Server) handleMeetingStats(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap.Stats())
}

func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request) (*models.Snapshot, bool) {
	snap, err := s.service.Meetings(r.Context())
	if err != nil {
		slog.Error("Failed to load meetings", "error", err)
		s.sendFailure(w, err)
		return nil, false
	}
	return snap, true
}

// handleParticipantStatus reports whether a participant checked in
// GET /meetings/{id}/participants/{pid}
func (s *Server) handleParticipantStatus(w http.ResponseWriter, r *http.Request) {
	meetingID, err := parseMeetingID(r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	participantID, err := parseParticipantID(r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	info, err := s.service.ParticipantStatus(r.Context(), meetingID, participantID)
	if err != nil {
		slog.Warn("Failed to query participant status", "meeting_id", meetingID, "error", err)
		s.sendFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handleCreateMeeting creates a meeting
// POST /meetings {"title": "...", "max_participants": 10}
func (s *Server) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMeetingRequest
	if !s.decode(w, r, &req) {
		return
	}

	id, receipt, err := s.service.CreateMeeting(r.Context(), req.Title, req.MaxParticipants)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	s.hub.Broadcast(ws.Message{Type: ws.TypeMeetingCreated, Data: map[string]interface{}{
		"meeting_id": id,
		"tx_hash":    receipt.TxHash,
	}})

	writeJSON(w, http.StatusCreated, models.CreateMeetingResponse{
		ID:      id,
		TxHash:  receipt.TxHash.Hex(),
		Receipt: *receipt,
	})
}

// handleCheckIn records an anonymous check-in
// POST /meetings/{id}/checkin {"participant_id": "42"}
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	meetingID, err := parseMeetingID(r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	var req models.CheckInRequest
	if !s.decode(w, r, &req) {
		return
	}
	participantID, err := checkin.ParseParticipantID(req.ParticipantID)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	receipt, err := s.service.CheckIn(r.Context(), meetingID, participantID)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	s.hub.Broadcast(ws.Message{Type: ws.TypeCheckIn, Data: map[string]interface{}{
		"meeting_id": meetingID,
		"tx_hash":    receipt.TxHash,
	}})

	writeJSON(w, http.StatusOK, receipt)
}

// handleEndMeeting ends a meeting; the body must carry an explicit
// confirmation
// POST /meetings/{id}/end {"confirm": true}
func (s *Server) handleEndMeeting(w http.ResponseWriter, r *http.Request) {
	meetingID, err := parseMeetingID(r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	var req models.EndMeetingRequest
	if !s.decode(w, r, &req) {
		return
	}

	confirm := lifecycle.ConfirmFunc(func(_ context.Context, _ string) (bool, error) {
		return req.Confirm, nil
	})

	receipt, err := s.service.EndMeeting(r.Context(), meetingID, confirm)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	s.hub.Broadcast(ws.Message{Type: ws.TypeMeetingEnded, Data: map[string]interface{}{
		"meeting_id": meetingID,
		"tx_hash":    receipt.TxHash,
	}})

	writeJSON(w, http.StatusOK, receipt)
}

// handleListSubmissions lists the submission journal
// GET /submissions?limit=50&offset=0
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 50, 1, 100)
	offset := intParam(r, "offset", 0, 0, 1<<31-1)

	subs, err := s.service.Submissions(r.Context(), limit, offset)
	if err != nil {
		slog.Error("Failed to list submissions", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.SubmissionListResponse{
		Submissions: subs,
		Limit:       limit,
		Offset:      offset,
	})
}

// handleWebSocket upgrades the connection and registers it with the hub.
// The current session state is sent first.
// GET /ws
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Failed to upgrade websocket", "error", err)
		return
	}

	first, err := json.Marshal(ws.Message{Type: ws.TypeSession, Data: s.service.Session().State()})
	if err == nil {
		err = conn.WriteMessage(websocket.TextMessage, first)
	}
	if err != nil {
		slog.Warn("Failed to send initial session state", "error", err)
		conn.Close()
		return
	}

	s.hub.AddConnection(conn)
	defer s.hub.RemoveConnection(conn)

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.sendError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// sendFailure maps err to a status and sends it
func (s *Server) sendFailure(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Request failed", "status", code, "error", err)
	}
	s.sendError(w, err.Error(), code)
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
