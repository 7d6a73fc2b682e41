// Package httpapi exposes the dashboard's projection over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/dashboard"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/engine"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/metrics"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// Dashboard is what the server reads from and submits through.
// *dashboard.Dashboard implements it.
type Dashboard interface {
	View() reconcile.View
	Connected() bool
	Submit(ctx context.Context, name, sourceURL string) (*dashboard.Submission, error)
}

// Server serves the projection endpoints.
type Server struct {
	Dashboard Dashboard
	Metrics   *metrics.Metrics // optional; /metrics is 404 without it
	Log       *zap.SugaredLogger
}

// StateResponse is the body of GET /v1/state.
type StateResponse struct {
	reconcile.View
	Counts reconcile.Counts `json:"counts"`
}

// SubmitRequest is the body of POST /v1/topics.
type SubmitRequest struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageURL"`
}

// SubmitResponse is the body of a successful POST /v1/topics.
type SubmitResponse struct {
	Handle topic.Handle `json:"handle"`
	State  topic.State  `json:"state"`
	Error  string       `json:"error,omitempty"`
}

// Router returns the handler for the projection endpoint: GET /healthz,
// GET /v1/state, POST /v1/topics, and GET /metrics when Metrics is set.
// Every request is logged and recovered from panics.
func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/topics", s.handleSubmit)
	})
	return r
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger().Infow("projection endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	return nil
}

func (s Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stream := "disconnected"
	if s.Dashboard.Connected() {
		stream = "connected"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stream": stream,
		"seq":    s.Dashboard.View().Seq,
	})
}

func (s Server) handleState(w http.ResponseWriter, _ *http.Request) {
	v := s.Dashboard.View()
	writeJSON(w, http.StatusOK, StateResponse{View: v, Counts: v.Counts()})
}

// handleSubmit inserts the job optimistically and returns 202 with the
// pending handle. With ?wait=true it waits for the server's answer and
// returns 201 or 502.
func (s Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	sub, err := s.Dashboard.Submit(r.Context(), req.Name, req.ImageURL)
	switch {
	case topic.IsInvalidInput(err):
		writeErr(w, http.StatusBadRequest, err)
		return
	case engine.IsStopped(err):
		writeErr(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, SubmitResponse{Handle: sub.Handle, State: topic.StatePending})
		return
	}

	select {
	case <-sub.Done():
	case <-r.Context().Done():
		return
	}
	if err := sub.Err(); err != nil {
		writeJSON(w, http.StatusBadGateway, SubmitResponse{Handle: sub.Handle, State: topic.StateRemoved, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{Handle: sub.Handle, State: s.Dashboard.View().StateOf(sub.Handle.Name)})
}

func (s Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}

func (s Server) logger() *zap.SugaredLogger {
	if s.Log == nil {
		return zap.NewNop().Sugar()
	}
	return s.Log
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
