package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dacada/simple-monitor/internal/monitor"
)

type statusAPI struct {
	registry *monitor.Registry
}

// NewRouter creates the HTTP router for the status server.
func NewRouter(registry *monitor.Registry, hub *Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	sa := &statusAPI{registry: registry}

	mux.HandleFunc("GET /status", sa.status)
	mux.HandleFunc("GET /healthz", sa.healthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", hub.HandleWS)

	return withMiddleware(mux, logger)
}

// status returns the latest snapshot of every monitor, in configuration
// order.
func (a *statusAPI) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.registry.StatusList())
}

func (a *statusAPI) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func withMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Recovery
		defer func() {
			if err := recover(); err != nil {
				logger.Error("http handler panic", "error", err, "path", r.URL.Path)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()

		// CORS for local development
		w.Header().Set("Access-Control-Allow-Origin", "*")

		next.ServeHTTP(w, r)

		logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}
