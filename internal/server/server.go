// Package server exposes the message sample over HTTP and a gRPC health
// endpoint for orchestrators.
package server

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/observability"
	"github.com/alfredjeanlab/microblog/internal/store"
)

// MessageSampler returns a random batch of message views.
type MessageSampler interface {
	Sample(ctx context.Context) ([]*model.MessageView, error)
}

// Server serves the query API.
type Server struct {
	store   store.Store
	sampler MessageSampler
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New returns a Server reading samples from sampler and pinging s for health.
func New(s store.Store, sampler MessageSampler, metrics *observability.Metrics, logger *slog.Logger) *Server {
	return &Server{
		store:   s,
		sampler: sampler,
		metrics: metrics,
		logger:  logger,
	}
}

// MessagesResponse is the body of GET /openapi/v1/messages.
type MessagesResponse struct {
	Messages []*model.MessageView `json:"messages"`
}

// BasicError is the error body of every API route.
type BasicError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}
