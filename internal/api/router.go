package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/halallens/screener/internal/api/handlers"
	"github.com/halallens/screener/pkg/logger"
)

// NewRouter creates and configures the HTTP router
func NewRouter(securities *handlers.SecurityHandler, pipeline *handlers.PipelineHandler, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Security screening endpoints
	api.HandleFunc("/securities", securities.List).Methods("GET")
	api.HandleFunc("/securities/{id}/status", securities.GetStatus).Methods("GET")
	api.HandleFunc("/securities/{id}/history", securities.GetHistory).Methods("GET")
	api.HandleFunc("/securities/{id}/transitions", securities.GetTransitions).Methods("GET")
	api.HandleFunc("/securities/{id}/sector", securities.UpdateSector).Methods("PUT")

	// Pipeline endpoints
	api.HandleFunc("/pipeline/run", pipeline.Run).Methods("POST")
	api.HandleFunc("/pipeline/backfill", pipeline.Backfill).Methods("POST")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "halallens-screener-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
