package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Route paths.
const (
	PathMessages = "/openapi/v1/messages"
	PathSchema   = "/openapi/v1/openapi.yaml"
	PathHealth   = "/v1/health"
	PathMetrics  = "/metrics"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathMessages, s.handleMessages)
	mux.HandleFunc("GET "+PathSchema, s.handleSchema)
	mux.HandleFunc("GET "+PathHealth, s.handleHealth)
	mux.Handle("GET "+PathMetrics, promhttp.Handler())
	return AuthMiddleware(authToken, LoggingMiddleware(s.logger, mux))
}

// NewHTTPServer wraps handler with the timeouts used for the API listener.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// handleMessages handles GET /openapi/v1/messages.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	views, err := s.sampler.Sample(r.Context())
	if err != nil {
		s.logger.Error("sampling messages failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	s.metrics.SamplesServed.Inc()
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: views})
}

// handleSchema handles GET /openapi/v1/openapi.yaml.
func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	data, err := SchemaYAML()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render schema")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a BasicError response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, BasicError{Message: message, Code: status})
}
