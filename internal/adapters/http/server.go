// Package http exposes the engine's inbound operations over a chi router
// and streams outbound events to arbiter clients via SSE.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/arbiter"
	"github.com/aretw0/arbiter/api"
	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/pkg/domain"
)

// Server routes the inbound HTTP surface to an engine.
type Server struct {
	engine   *arbiter.Engine
	streams  *StreamManager
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithGatherer sets the prometheus gatherer served at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewHandler builds the HTTP handler. The StreamManager must be the same
// instance wired into the engine as its transport, otherwise the SSE
// stream stays silent.
func NewHandler(engine *arbiter.Engine, streams *StreamManager, opts ...Option) http.Handler {
	s := &Server{
		engine:   engine,
		streams:  streams,
		logger:   logging.NewNop(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.getHealth)
	r.Get("/openapi.yaml", s.getSpec)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Post("/actions", s.submitAction)
		r.Post("/rolls", s.resolveRoll)
		r.Post("/decisions", s.submitDecision)
		r.Post("/heartbeat", s.heartbeatPong)
		r.Get("/status", s.getStatus)
		r.Get("/events", s.subscribeEvents)
	})
	return r
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getSpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/yaml")
	_, _ = w.Write(api.Spec())
}

func (s *Server) submitAction(w http.ResponseWriter, r *http.Request) {
	var req domain.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.SessionID = chi.URLParam(r, "sessionID")

	ack, err := s.engine.Submit(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrQueueFull):
		writeJSON(w, http.StatusTooManyRequests, ack)
	case err != nil:
		s.logger.Error("submit failed", "session_id", req.SessionID, "err", err)
		http.Error(w, fmt.Sprintf("Submit error: %v", err), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusAccepted, ack)
	}
}

func (s *Server) resolveRoll(w http.ResponseWriter, r *http.Request) {
	var result domain.RollResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := s.engine.ResolveRoll(r.Context(), result.CorrelationID, result)
	if errors.Is(err, domain.ErrCorrelationNotFound) {
		http.Error(w, "Unknown correlation ID", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) submitDecision(w http.ResponseWriter, r *http.Request) {
	var decision domain.Decision
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := s.engine.SubmitDecision(r.Context(), decision.ActionID, decision)
	if errors.Is(err, domain.ErrDecisionSuperseded) {
		http.Error(w, "No workflow is waiting for this action", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) heartbeatPong(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	err := s.engine.HeartbeatPong(sessionID, time.Now())
	if errors.Is(err, domain.ErrSessionNotFound) {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := s.engine.Manager().Get(sessionID)
	if err != nil {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    sessionID,
		"liveness":      sess.Liveness(),
		"queue_depth":   sess.QueueDepth(),
		"pending_rolls": sess.PendingRolls(),
	})
}

func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.engine.Session(r.Context(), sessionID); err != nil {
		http.Error(w, fmt.Sprintf("Session error: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.streams.Subscribe(sessionID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
