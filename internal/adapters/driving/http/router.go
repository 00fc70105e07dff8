package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// NewRouter wires the API routes under /api/v1. metrics, when set, is
// served on /metrics.
func NewRouter(h *PolicyHandler, metrics http.Handler, allowedOrigin string) http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", h.healthHandler).Methods("GET")

	api.HandleFunc("/policies", h.getPoliciesHandler).Methods("GET")
	api.HandleFunc("/policies", h.addPolicyHandler).Methods("POST")
	api.HandleFunc("/policies", h.removePolicyHandler).Methods("DELETE")
	api.HandleFunc("/policies/filtered-removals", h.removeFilteredPolicyHandler).Methods("POST")
	api.HandleFunc("/policies/filtered-loads", h.loadFilteredPolicyHandler).Methods("POST")
	api.HandleFunc("/policies/reloads", h.reloadPolicyHandler).Methods("POST")

	api.HandleFunc("/authorizations", h.authorizationHandler).Methods("POST")

	if metrics != nil {
		router.Handle("/metrics", metrics).Methods("GET")
	}

	router.Use(loggingMiddleware(h.logger))

	// outside the router so preflight requests never hit method matching
	return corsMiddleware(allowedOrigin)(router)
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs incoming HTTP requests
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		})
	}
}
