package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rickgao/tutorlink-realtime/internal/connection"
	"github.com/rickgao/tutorlink-realtime/internal/metrics"
	"github.com/rickgao/tutorlink-realtime/internal/session"
	"github.com/rickgao/tutorlink-realtime/internal/version"
)

const debugListLimit = 100

type healthResponse struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Components map[string]any `json:"components"`
}

// newRouter builds the agent's HTTP surface.
func newRouter(ctrl *session.Controller, m *metrics.Metrics, metricsPath string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := healthResponse{
			Status:     "healthy",
			Version:    version.Version,
			Components: make(map[string]any),
		}

		s := ctrl.Current()
		if s == nil {
			health.Status = "unhealthy"
			health.Components["session"] = "none"
			writeJSON(w, http.StatusServiceUnavailable, health)
			return
		}

		stats := s.Stats()
		health.Components["session"] = map[string]any{
			"user_id":       stats.UserID,
			"notifications": stats.Notifications,
			"unread":        stats.Unread,
		}
		health.Components["connection"] = map[string]any{
			"state":             stats.Connection.State.String(),
			"attempt":           stats.Connection.Attempt,
			"reconnect_pending": stats.Connection.ReconnectPending,
			"frames_received":   stats.Connection.FramesReceived,
			"decode_errors":     stats.Connection.DecodeErrors,
		}

		// Polling keeps data flowing without the socket.
		if stats.Connection.State != connection.StateReady {
			health.Status = "degraded"
		}
		writeJSON(w, http.StatusOK, health)
	})

	r.Get("/debug/notifications", func(w http.ResponseWriter, r *http.Request) {
		s := ctrl.Current()
		if s == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active session"})
			return
		}

		limit := debugListLimit
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v < limit {
			limit = v
		}

		all := s.Notifications().List()
		shown := all
		if len(shown) > limit {
			shown = shown[:limit]
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":         len(all),
			"showing":       len(shown),
			"unread":        s.Notifications().UnreadCount(),
			"notifications": shown,
		})
	})

	r.Post("/foreground", func(w http.ResponseWriter, r *http.Request) {
		if err := ctrl.Foreground(r.Context()); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	r.Method(http.MethodGet, metricsPath, m.Handler())

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requestLogger logs each request at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
