// Package twitter captures tweets from the Twitter API v2 streaming endpoints.
package twitter

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alfredjeanlab/microblog/internal/capture"
	"github.com/alfredjeanlab/microblog/internal/source"
	"github.com/alfredjeanlab/microblog/internal/transfer"
)

// Setting keys.
const (
	KeyBearerToken = source.EnvPrefix + "TWITTER_BEARER_TOKEN"
	KeyRule        = source.EnvPrefix + "TWITTER_RULE"
	KeyAPIURL      = source.EnvPrefix + "TWITTER_API_URL"
	KeyStream      = source.EnvPrefix + "TWITTER_STREAM"
)

// DefaultAPIURL is the public Twitter API host.
const DefaultAPIURL = "https://api.twitter.com"

const (
	StreamSample = "sample"
	StreamFilter = "filter"
)

// Variant is the "twitter" source.
type Variant struct{}

var _ source.Variant = Variant{}

func (Variant) Name() string { return "twitter" }

// Extractor reads the tweet's "text" field.
func (Variant) Extractor() transfer.Extractor { return transfer.JSONField("text") }

// NewStream requires a bearer token and a rule. MB_SOURCE_TWITTER_STREAM
// selects the sampled stream (default) or the rule-filtered stream.
func (Variant) NewStream(settings source.Settings, logger *slog.Logger) (capture.Stream, string, error) {
	if err := settings.Require(KeyBearerToken, KeyRule); err != nil {
		return nil, "", err
	}
	kind := settings.Get(KeyStream, StreamSample)
	endpoint, ok := streamEndpoints[kind]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s must be %q or %q, got %q",
			source.ErrInvalidConfig, KeyStream, StreamSample, StreamFilter, kind)
	}

	stream := NewStream(settings.Get(KeyAPIURL, DefaultAPIURL), settings[KeyBearerToken], endpoint, logger)
	return stream, settings[KeyRule], nil
}

var streamEndpoints = map[string]string{
	StreamSample: "/2/tweets/sample/stream",
	StreamFilter: "/2/tweets/search/stream",
}

// NewStream returns a stream client. httpClient has no overall timeout
// because the stream response never completes on its own.
func NewStream(baseURL, token, endpoint string, logger *slog.Logger) *Stream {
	return &Stream{
		baseURL:    trimSlash(baseURL),
		token:      token,
		endpoint:   endpoint,
		httpClient: &http.Client{},
		logger:     logger,
	}
}
