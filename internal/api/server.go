package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/lifecycle"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/models"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/session"
	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ws"
)

// Service is the application surface the handlers call. *app.App
// satisfies it.
type Service interface {
	Meetings(ctx context.Context) (*models.Snapshot, error)
	ParticipantStatus(ctx context.Context, meetingID, participantID uint64) (models.ParticipantInfo, error)
	CreateMeeting(ctx context.Context, title string, maxParticipants uint64) (uint64, *models.Receipt, error)
	CheckIn(ctx context.Context, meetingID, participantID uint64) (*models.Receipt, error)
	EndMeeting(ctx context.Context, meetingID uint64, confirm lifecycle.Confirmer) (*models.Receipt, error)
	Submissions(ctx context.Context, limit, offset int) ([]models.Submission, error)
	Session() *session.Session
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server
// Provides endpoints for Prometheus metrics, health checks, the meeting
// REST API and the websocket event stream
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	service    Service
	hub        *ws.Hub
	upgrader   websocket.Upgrader
	port       int
}

// NewServer creates a new API server instance
func NewServer(port int, service Service) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute, // submissions wait for inclusion
			IdleTimeout:  60 * time.Second,
		},
		mux:     mux,
		service: service,
		hub:     ws.NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		port: port,
	}

	s.registerRoutes()

	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.handleMetrics())

	// Meeting endpoints
	s.mux.HandleFunc("GET /meetings", s.handleListMeetings)
	s.mux.HandleFunc("GET /meetings/popular", s.handlePopularMeetings)
	s.mux.HandleFunc("GET /meetings/stats", s.handleMeetingStats)
	s.mux.HandleFunc("GET /meetings/{id}/participants/{pid}", s.handleParticipantStatus)
	s.mux.HandleFunc("POST /meetings", s.handleCreateMeeting)
	s.mux.HandleFunc("POST /meetings/{id}/checkin", s.handleCheckIn)
	s.mux.HandleFunc("POST /meetings/{id}/end", s.handleEndMeeting)

	s.mux.HandleFunc("GET /submissions", s.handleListSubmissions)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// StreamSession forwards session changes to websocket clients until ctx is
// done.
func (s *Server) StreamSession(ctx context.Context) {
	updates, unsubscribe := s.service.Session().Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			s.hub.Broadcast(ws.Message{Type: ws.TypeSession, Data: st})
		}
	}
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/meetings", "/submissions", "/ws"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	s.hub.CloseAll()
	return s.httpServer.Shutdown(ctx)
}
