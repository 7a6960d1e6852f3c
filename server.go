package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"taxitrack/internal/engine"
	"taxitrack/internal/metrics"
)

func registerRoutes(mux *http.ServeMux, h *wsHub, eng *engine.Engine, logger *slog.Logger) {
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/data.json", h.handleWebSocket)

	mux.Handle("GET /api/viewmodel", withLogging(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.Snapshot())
	})))
	mux.Handle("GET /api/places.geojson", withLogging(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fc := eng.Snapshot().FeatureCollection()
		b, err := fc.MarshalJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write(b)
	})))
	mux.Handle("GET /api/scope", withLogging(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := eng.Scope()
		writeJSON(w, http.StatusOK, map[string]any{
			"scoped":    s.IsScoped(),
			"key":       s.Key(),
			"renderers": h.count(),
		})
	})))
	mux.Handle("GET /metrics", metrics.Handler())
}

func withLogging(logger *slog.Logger, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
