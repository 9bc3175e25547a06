package twitter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alfredjeanlab/microblog/internal/capture"
)

// maxLineSize bounds a single stream line. Tweets with expansions stay far below it.
const maxLineSize = 1 << 20

const rulesPath = "/2/tweets/search/stream/rules"

// Stream talks to one Twitter API v2 stream endpoint.
type Stream struct {
	baseURL    string
	token      string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ capture.Stream = (*Stream)(nil)

// APIError represents an error response from the Twitter API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitter API HTTP %d: %s", e.StatusCode, e.Message)
}

// problem is the error object shape used in error responses and stream frames.
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

func (p problem) String() string {
	switch {
	case p.Detail != "" && p.Title != "":
		return p.Title + ": " + p.Detail
	case p.Detail != "":
		return p.Detail
	default:
		return p.Title
	}
}

type rule struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
}

// ReplaceRules deletes every installed rule, then adds value as the only one.
func (s *Stream) ReplaceRules(ctx context.Context, value string) error {
	var current struct {
		Data []rule `json:"data"`
	}
	if err := s.doJSON(ctx, http.MethodGet, rulesPath, nil, &current); err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	if len(current.Data) > 0 {
		ids := make([]string, 0, len(current.Data))
		for _, r := range current.Data {
			ids = append(ids, r.ID)
		}
		body := map[string]any{"delete": map[string][]string{"ids": ids}}
		if err := s.doJSON(ctx, http.MethodPost, rulesPath, body, nil); err != nil {
			return fmt.Errorf("delete rules: %w", err)
		}
		s.logger.Debug("stream rules deleted", "count", len(ids))
	}

	body := map[string][]rule{"add": {{Value: value}}}
	if err := s.doJSON(ctx, http.MethodPost, rulesPath, body, nil); err != nil {
		return fmt.Errorf("add rule: %w", err)
	}
	return nil
}

// frame is one line of the stream response.
type frame struct {
	Data   json.RawMessage `json:"data"`
	Errors []problem       `json:"errors"`
}

// Run reads the stream until it ends or ctx is done. Blank keep-alive lines
// are skipped; undecodable lines and error frames go to sink.OnError.
func (s *Stream) Run(ctx context.Context, sink capture.Sink) error {
	req, err := s.newRequest(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	s.logger.Info("stream connected", "endpoint", s.endpoint)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var f frame
		if err := json.Unmarshal(line, &f); err != nil {
			sink.OnError(ctx, fmt.Errorf("decode stream line: %w", err))
			continue
		}
		for _, p := range f.Errors {
			sink.OnError(ctx, fmt.Errorf("stream: %s", p))
		}
		if len(f.Data) == 0 || bytes.Equal(f.Data, []byte("null")) {
			continue
		}

		var payload bytes.Buffer
		if err := json.Compact(&payload, f.Data); err != nil {
			sink.OnError(ctx, fmt.Errorf("compact tweet: %w", err))
			continue
		}
		if err := sink.OnEvent(ctx, capture.Event{Payload: payload.String()}); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func (s *Stream) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("User-Agent", "microblog")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON performs a request with an optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (s *Stream) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := s.newRequest(ctx, method, path, bodyReader)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	// A 200 can still carry per-rule problems.
	var envelope struct {
		Errors []problem `json:"errors"`
	}
	if json.Unmarshal(respBody, &envelope) == nil && len(envelope.Errors) > 0 {
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Errors[0].String()}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func apiError(resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var p problem
	if json.Unmarshal(respBody, &p) == nil && p.String() != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: p.String()}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
}

func trimSlash(s string) string {
	return strings.TrimRight(s, "/")
}
