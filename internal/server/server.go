// Package server exposes the gateway over HTTP: prometheus metrics, a health
// snapshot of the status registry and an optional ingest endpoint.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/channels"
	"github.com/alertrelay/alertrelay/internal/config"
	"github.com/alertrelay/alertrelay/internal/notifier"
	"github.com/alertrelay/alertrelay/internal/status"
)

// maxNotifyBody bounds the size of a /v1/notify request.
const maxNotifyBody = 1 << 20

// Enqueuer accepts envelopes for asynchronous delivery.
type Enqueuer interface {
	Enqueue(env bus.Envelope) error
}

// Server is the gateway's HTTP listener.
type Server struct {
	cfg      config.MetricsConfig
	registry *status.Registry
	out      Enqueuer
	logger   *zap.Logger
	server   *http.Server
}

func New(cfg config.MetricsConfig, registry *status.Registry, out Enqueuer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		out:      out,
		logger:   logger.Named("server"),
	}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.cfg.Notify {
		mux.HandleFunc("/v1/notify", s.handleNotify)
	}
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr), zap.Bool("notify", s.cfg.Notify))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

type healthResponse struct {
	Status   string          `json:"status"`
	Backends map[string]bool `json:"backends"`
}

// handleHealth reports the registry snapshot. A busy backend is still healthy
// from the process's point of view, so the status code is always 200.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.registry.Snapshot()
	resp := healthResponse{Status: "ok", Backends: make(map[string]bool, len(snap))}
	for b, healthy := range snap {
		resp.Backends[string(b)] = healthy
	}
	writeJSON(w, http.StatusOK, resp)
}

type notifyRequest struct {
	Backend string   `json:"backend"`
	Targets []string `json:"targets"`
	Text    string   `json:"text"`
	Photos  []string `json:"photos,omitempty"`
	Videos  []string `json:"videos,omitempty"`
}

type notifyResponse struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, notifyResponse{Error: "method not allowed"})
		return
	}
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, notifyResponse{Error: "unauthorized"})
		return
	}

	var req notifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotifyBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, notifyResponse{Error: "invalid JSON: " + err.Error()})
		return
	}
	b, err := bus.ParseBackend(req.Backend)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, notifyResponse{Error: err.Error()})
		return
	}
	if len(req.Targets) == 0 {
		writeJSON(w, http.StatusBadRequest, notifyResponse{Error: "at least one target is required"})
		return
	}

	if req.Text == "" && len(req.Photos) == 0 && len(req.Videos) == 0 {
		writeJSON(w, http.StatusBadRequest, notifyResponse{Error: "text or media is required"})
		return
	}

	env := bus.NewEnvelope(b, req.Targets, req.Text)
	if req.Photos != nil {
		env = env.WithPhotos(req.Photos...)
	}
	if req.Videos != nil {
		env = env.WithVideos(req.Videos...)
	}

	if err := s.out.Enqueue(env); err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, channels.ErrUnknownBackend):
			code = http.StatusNotFound
		case errors.Is(err, notifier.ErrNotReady), errors.Is(err, notifier.ErrStopped):
			code = http.StatusServiceUnavailable
		}
		s.logger.Warn("notify rejected", zap.String("backend", req.Backend), zap.Error(err))
		writeJSON(w, code, notifyResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, notifyResponse{ID: env.ID()})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.NotifyToken == "" {
		return true
	}
	want := "Bearer " + s.cfg.NotifyToken
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) == 1
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
