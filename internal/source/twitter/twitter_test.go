package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/microblog/internal/capture"
	"github.com/alfredjeanlab/microblog/internal/source"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink collects everything a stream delivers.
type recordingSink struct {
	mu       sync.Mutex
	events   []capture.Event
	errs     []error
	eventErr error
}

func (s *recordingSink) OnEvent(_ context.Context, ev capture.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventErr != nil {
		return s.eventErr
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) OnError(_ context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

// fakeAPI serves the rules endpoint and a fixed stream body.
type fakeAPI struct {
	mu         sync.Mutex
	rules      []rule
	nextRuleID int
	posts      []map[string]json.RawMessage
	auth       []string
	streamBody string
	streamCode int
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+rulesPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		resp := map[string]any{"meta": map[string]any{"result_count": len(f.rules)}}
		if len(f.rules) > 0 {
			resp["data"] = f.rules
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST "+rulesPath, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.posts = append(f.posts, body)
		if raw, ok := body["delete"]; ok {
			var del struct {
				IDs []string `json:"ids"`
			}
			_ = json.Unmarshal(raw, &del)
			keep := f.rules[:0]
			for _, existing := range f.rules {
				if !contains(del.IDs, existing.ID) {
					keep = append(keep, existing)
				}
			}
			f.rules = keep
		}
		if raw, ok := body["add"]; ok {
			var add []rule
			_ = json.Unmarshal(raw, &add)
			for _, a := range add {
				f.nextRuleID++
				f.rules = append(f.rules, rule{ID: fmt.Sprint(f.nextRuleID), Value: a.Value})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"meta": map[string]any{}})
	})
	stream := func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		code, body := f.streamCode, f.streamBody
		f.mu.Unlock()
		if code != 0 && code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = io.WriteString(w, `{"title":"Too Many Requests","detail":"slow down"}`)
			return
		}
		_, _ = io.WriteString(w, body)
	}
	mux.HandleFunc("GET /2/tweets/sample/stream", stream)
	mux.HandleFunc("GET /2/tweets/search/stream", stream)
	return mux
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func newTestStream(t *testing.T, api *fakeAPI, endpoint string) *Stream {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	return NewStream(srv.URL+"/", "tok", endpoint, discardLogger())
}

func TestReplaceRules_DeletesExistingThenAdds(t *testing.T) {
	api := &fakeAPI{rules: []rule{{ID: "a", Value: "dogs"}, {ID: "b", Value: "birds"}}}
	s := newTestStream(t, api, "/2/tweets/search/stream")

	require.NoError(t, s.ReplaceRules(context.Background(), "cats lang:en"))

	require.Len(t, api.posts, 2)
	assert.JSONEq(t, `{"ids":["a","b"]}`, string(api.posts[0]["delete"]))
	assert.JSONEq(t, `[{"value":"cats lang:en"}]`, string(api.posts[1]["add"]))
	require.Len(t, api.rules, 1)
	assert.Equal(t, "cats lang:en", api.rules[0].Value)
	for _, h := range api.auth {
		assert.Equal(t, "Bearer tok", h)
	}
}

func TestReplaceRules_NoExistingRulesSkipsDelete(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStream(t, api, "/2/tweets/search/stream")

	require.NoError(t, s.ReplaceRules(context.Background(), "cats"))

	require.Len(t, api.posts, 1)
	_, hasDelete := api.posts[0]["delete"]
	assert.False(t, hasDelete)
}

func TestReplaceRules_RejectedRule(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"meta":{"result_count":0}}`)
			return
		}
		_, _ = io.WriteString(w, `{"errors":[{"title":"Invalid Rule","detail":"bad operator"}]}`)
	}))
	defer srv.Close()
	s := NewStream(srv.URL, "tok", "/2/tweets/search/stream", discardLogger())

	err := s.ReplaceRules(context.Background(), "cats AND")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid Rule: bad operator", apiErr.Message)
}

func TestReplaceRules_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"title":"Unauthorized","detail":"Unauthorized"}`)
	}))
	defer srv.Close()
	s := NewStream(srv.URL, "bad", "/2/tweets/search/stream", discardLogger())

	err := s.ReplaceRules(context.Background(), "cats")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "list rules")
}

func TestRun_DeliversTweetsAndSkipsKeepAlives(t *testing.T) {
	body := strings.Join([]string{
		`{"data":{"id":"1","text":"hello"}}`,
		``,
		`  `,
		`{"data":{"id":"2",  "text":"world"},"matching_rules":[{"id":"9"}]}`,
		`{"errors":[{"title":"operational-disconnect","detail":"reconnect soon"}]}`,
		`not json`,
		``,
	}, "\r\n")
	api := &fakeAPI{streamBody: body}
	s := newTestStream(t, api, "/2/tweets/sample/stream")
	sink := &recordingSink{}

	err := s.Run(context.Background(), sink)
	require.NoError(t, err)

	require.Len(t, sink.events, 2)
	assert.Equal(t, `{"id":"1","text":"hello"}`, sink.events[0].Payload)
	assert.Equal(t, `{"id":"2","text":"world"}`, sink.events[1].Payload)
	assert.True(t, sink.events[0].Timestamp.IsZero())

	require.Len(t, sink.errs, 2)
	assert.Contains(t, sink.errs[0].Error(), "operational-disconnect")
	assert.Contains(t, sink.errs[1].Error(), "decode stream line")
}

func TestRun_SinkFailureEndsStream(t *testing.T) {
	api := &fakeAPI{streamBody: "{\"data\":{\"text\":\"a\"}}\n{\"data\":{\"text\":\"b\"}}\n"}
	s := newTestStream(t, api, "/2/tweets/sample/stream")
	boom := errors.New("disk full")

	err := s.Run(context.Background(), &recordingSink{eventErr: boom})
	assert.ErrorIs(t, err, boom)
}

func TestRun_HTTPErrorStatus(t *testing.T) {
	api := &fakeAPI{streamCode: http.StatusTooManyRequests}
	s := newTestStream(t, api, "/2/tweets/sample/stream")

	err := s.Run(context.Background(), &recordingSink{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "Too Many Requests: slow down", apiErr.Message)
}

func TestRun_CanceledContext(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "\r\n")
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()
	s := NewStream(srv.URL, "tok", "/2/tweets/sample/stream", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, &recordingSink{}) }()
	<-started
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestVariant_NewStream(t *testing.T) {
	tests := []struct {
		name     string
		settings source.Settings
		wantErr  string
		endpoint string
	}{
		{
			name:    "missing everything",
			wantErr: "missing " + KeyBearerToken + ", " + KeyRule,
		},
		{
			name:     "missing rule",
			settings: source.Settings{KeyBearerToken: "tok"},
			wantErr:  "missing " + KeyRule,
		},
		{
			name:     "defaults to sample stream",
			settings: source.Settings{KeyBearerToken: "tok", KeyRule: "cats"},
			endpoint: "/2/tweets/sample/stream",
		},
		{
			name:     "filter stream",
			settings: source.Settings{KeyBearerToken: "tok", KeyRule: "cats", KeyStream: "filter"},
			endpoint: "/2/tweets/search/stream",
		},
		{
			name:     "unknown stream kind",
			settings: source.Settings{KeyBearerToken: "tok", KeyRule: "cats", KeyStream: "firehose"},
			wantErr:  "firehose",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, rule, err := Variant{}.NewStream(tt.settings, discardLogger())
			if tt.wantErr != "" {
				require.ErrorIs(t, err, source.ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "cats", rule)
			s := stream.(*Stream)
			assert.Equal(t, tt.endpoint, s.endpoint)
			assert.Equal(t, DefaultAPIURL, s.baseURL)
		})
	}
}

func TestVariant_Extractor(t *testing.T) {
	assert.Equal(t, "twitter", Variant{}.Name())
	got, err := Variant{}.Extractor().Extract(`{"id":"1","text":"hi"}`)
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}
