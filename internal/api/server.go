package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/triage/internal/processor"
	"github.com/MikeSquared-Agency/triage/internal/transcript"
)

// maxBodyBytes caps inbound message payloads.
const maxBodyBytes = 1 << 20

// Turns is the processing surface the HTTP layer needs.
type Turns interface {
	Process(ctx context.Context, req processor.Request) (processor.Result, error)
	Transcript(ctx context.Context, sessionID string) ([]transcript.Turn, transcript.Summary, error)
	Reset(ctx context.Context, sessionID string) error
	ResetAll(ctx context.Context) error
	ActiveSessions(ctx context.Context) (int, bool)
	GenerationEnabled() bool
}

// Bus reports the event bus connection.
type Bus interface {
	Connected() bool
}

type Options struct {
	Port           int
	APIToken       string
	AllowedOrigins []string
	// ErrorText is sent when a turn fails unexpectedly.
	ErrorText string
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Bus is nil when NATS is disabled.
	Bus    Bus
	Logger *slog.Logger
}

type Server struct {
	router    *chi.Mux
	turns     Turns
	bus       Bus
	errorText string
	logger    *slog.Logger
	started   time.Time
	http      *http.Server
}

func NewServer(turns Turns, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(CORSMiddleware(opts.AllowedOrigins))

	s := &Server{
		router:    router,
		turns:     turns,
		bus:       opts.Bus,
		errorText: opts.ErrorText,
		logger:    logger,
		started:   time.Now(),
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/health", s.health)
	router.Post("/", s.message)
	router.Post("/api/v1/messages", s.message)
	router.Get("/api/v1/triage/status", s.status)
	router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(opts.APIToken))
		r.Get("/{sessionID}", s.session)
		r.Delete("/{sessionID}", s.resetSession)
		r.Delete("/", s.resetAll)
	})
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// messageRequest is the inbound webhook payload.
type messageRequest struct {
	MessageOriginal string `json:"message_original"`
	Message         string `json:"message"`
	External        string `json:"matched_bloc_response"`
	SessionID       string `json:"wa_id"`
}

type messageResponse struct {
	MatchedBlocResponse string              `json:"matched_bloc_response"`
	ReplyText           *string             `json:"reply_text"`
	ProcessingType      string              `json:"processing_type"`
	EscaladeRequired    bool                `json:"escalade_required"`
	EscaladeType        *string             `json:"escalade_type"`
	AwaitingFlag        string              `json:"awaiting_flag,omitempty"`
	ResponseSource      string              `json:"response_source"`
	Deferred            bool                `json:"deferred"`
	TurnCount           int                 `json:"turn_count"`
	IsFollowUp          bool                `json:"is_follow_up"`
	NeedsGreeting       bool                `json:"needs_greeting"`
	SessionID           string              `json:"session_id"`
	MemorySummary       *transcript.Summary `json:"memory_summary,omitempty"`
	Status              string              `json:"status"`
}

func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	text := req.MessageOriginal
	if text == "" {
		text = req.Message
	}

	res, err := s.turns.Process(r.Context(), processor.Request{
		SessionID: req.SessionID,
		Message:   text,
		External:  req.External,
	})
	switch {
	case errors.Is(err, processor.ErrEmptyMessage):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error("process message failed", "session_id", req.SessionID, "error", err)
		writeJSON(w, http.StatusOK, s.errorFallback(req.SessionID))
		return
	}

	resp := messageResponse{
		MatchedBlocResponse: res.FinalText,
		ReplyText:           res.ReplyText,
		ProcessingType:      string(res.Label),
		EscaladeRequired:    res.EscalationRequired,
		AwaitingFlag:        string(res.AwaitingFlagSet),
		ResponseSource:      res.Source,
		Deferred:            res.Deferred,
		TurnCount:           res.TurnCount,
		IsFollowUp:          res.IsFollowUp,
		NeedsGreeting:       res.NeedsGreeting,
		SessionID:           res.SessionID,
		MemorySummary:       &res.Memory,
		Status:              "success",
	}
	if res.EscalationRequired {
		t := string(res.EscalationType)
		resp.EscaladeType = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) errorFallback(sessionID string) messageResponse {
	admin := "admin"
	return messageResponse{
		MatchedBlocResponse: s.errorText,
		ProcessingType:      "error_fallback",
		EscaladeRequired:    true,
		EscaladeType:        &admin,
		ResponseSource:      "error",
		SessionID:           sessionID,
		Status:              "error",
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":             "ok",
		"service":            "triage",
		"generation_enabled": s.turns.GenerationEnabled(),
		"uptime_seconds":     int(time.Since(s.started).Seconds()),
		"nats":               s.natsState(),
	}
	if n, ok := s.turns.ActiveSessions(r.Context()); ok {
		body["active_sessions"] = n
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":              "triage",
		"status":             "active",
		"generation_enabled": s.turns.GenerationEnabled(),
		"nats":               s.natsState(),
	})
}

func (s *Server) natsState() string {
	switch {
	case s.bus == nil:
		return "disabled"
	case s.bus.Connected():
		return "connected"
	}
	return "disconnected"
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	turns, sum, err := s.turns.Transcript(r.Context(), id)
	if err != nil {
		s.logger.Error("read session failed", "session_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if turns == nil {
		turns = []transcript.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":     id,
		"turns":          turns,
		"memory_summary": sum,
	})
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.turns.Reset(r.Context(), id); err != nil {
		s.logger.Error("reset session failed", "session_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "session_id": id})
}

func (s *Server) resetAll(w http.ResponseWriter, r *http.Request) {
	if err := s.turns.ResetAll(r.Context()); err != nil {
		s.logger.Error("reset sessions failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
