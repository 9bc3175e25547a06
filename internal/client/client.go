// Package client talks to a running microblog server over its HTTP API.
package client

import (
	"context"

	"github.com/alfredjeanlab/microblog/internal/model"
)

// QueryClient is what the CLI needs from a remote server.
type QueryClient interface {
	// Messages fetches one random sample of messages.
	Messages(ctx context.Context) ([]*model.MessageView, error)
	// Schema returns the server's OpenAPI document as YAML.
	Schema(ctx context.Context) ([]byte, error)
	// Health returns the reported status, "ok" when the store is reachable.
	Health(ctx context.Context) (string, error)
	Close() error
}
