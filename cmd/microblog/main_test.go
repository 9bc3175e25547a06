package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/microblog/internal/config"
	"github.com/alfredjeanlab/microblog/internal/datasource"
	"github.com/alfredjeanlab/microblog/internal/events"
	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/server"
	"github.com/alfredjeanlab/microblog/internal/source"
	"github.com/alfredjeanlab/microblog/internal/store/sqlite"
	"github.com/alfredjeanlab/microblog/internal/transfer"
	"github.com/alfredjeanlab/microblog/internal/ui"
)

// isolate clears every setting the commands read and returns a fresh
// SQLite path for the test.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"MB_CONFIG", "MB_DATABASE_URL", "SQLITE_PATH", "MB_NATS_URL",
		"MB_AUTH_TOKEN", "MB_SERVER_URL", "MB_TRANSFER_BATCH_SIZE",
		"MB_EXPORT_S3_BUCKET", "MB_EXPORT_FILE", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("NO_COLOR", "1")
	t.Setenv("LOG_LEVEL", "ERROR")

	path := filepath.Join(t.TempDir(), "microblog.db")
	t.Setenv("SQLITE_PATH", path)
	return path
}

// run executes the CLI with args and returns what it wrote to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := newApp()
	a.stdout = &stdout
	a.stderr = &stderr
	a.environ = func() []string { return nil }

	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

// seedRaw stores one raw payload per entry for the named source.
func seedRaw(t *testing.T, path, name string, payloads ...string) {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(sqlite.Config{Path: path})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	ds, err := datasource.GetOrCreate(ctx, s, name)
	if err != nil {
		t.Fatalf("datasource: %v", err)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range payloads {
		raw := &model.RawEvent{DataSourceID: ds.ID, Data: p, Timestamp: base.Add(time.Duration(i) * time.Second)}
		if err := s.InsertRawEvent(ctx, raw); err != nil {
			t.Fatalf("insert raw: %v", err)
		}
	}
}

func TestOpenAPICmd(t *testing.T) {
	isolate(t)
	out, err := run(t, "openapi")
	if err != nil {
		t.Fatalf("openapi: %v", err)
	}
	want, err := server.SchemaYAML()
	if err != nil {
		t.Fatal(err)
	}
	if out != string(want) {
		t.Errorf("openapi output differs from server schema:\n%s", out)
	}
}

func TestSourcesCmd(t *testing.T) {
	isolate(t)
	out, err := run(t, "sources", "--json")
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(out), &names); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(names) != 2 || names[0] != "nats" || names[1] != "twitter" {
		t.Errorf("got %v, want [nats twitter]", names)
	}
}

func TestCaptureCmd_UnknownSource(t *testing.T) {
	isolate(t)
	_, err := run(t, "capture", "mastodon")
	if !errors.Is(err, source.ErrUnknownSource) {
		t.Fatalf("got %v, want ErrUnknownSource", err)
	}
}

func TestCaptureCmd_InvalidSettingsLeaveStoreUntouched(t *testing.T) {
	path := isolate(t)
	_, err := run(t, "capture", "twitter")
	if !errors.Is(err, source.ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("store file created before settings were validated: %v", err)
	}
}

func TestTransferCmd_NoStore(t *testing.T) {
	isolate(t)
	t.Setenv("SQLITE_PATH", "")
	_, err := run(t, "transfer", "twitter")
	if !errors.Is(err, config.ErrNoStore) {
		t.Fatalf("got %v, want ErrNoStore", err)
	}
}

func TestTransferStatusMessagesExport(t *testing.T) {
	path := isolate(t)
	seedRaw(t, path, "twitter", `{"text":"hello"}`, `{"text":"world"}`, `{"text":"again"}`)

	out, err := run(t, "transfer", "twitter", "--json")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	var res transfer.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode transfer %q: %v", out, err)
	}
	if res.Messages != 3 || res.Batches != 1 {
		t.Errorf("got %+v, want 3 messages in 1 batch", res)
	}

	out, err = run(t, "status", "twitter", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var stats model.SourceStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode status %q: %v", out, err)
	}
	want := model.SourceStats{DataSource: "twitter", Raw: 3, Messages: 3}
	if stats != want {
		t.Errorf("got %+v, want %+v", stats, want)
	}

	out, err = run(t, "messages", "--local", "--json")
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	var resp server.MessagesResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode messages %q: %v", out, err)
	}
	if len(resp.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(resp.Messages))
	}
	for _, m := range resp.Messages {
		if m.DataSourceName != "twitter" {
			t.Errorf("got source %q, want twitter", m.DataSourceName)
		}
	}

	dest := filepath.Join(t.TempDir(), "messages.jsonl")
	if _, err := run(t, "export", "--out", dest); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Errorf("got %d export lines, want header plus 3 messages", len(lines))
	}

	out, err = run(t, "export")
	if err != nil {
		t.Fatalf("export to stdout: %v", err)
	}
	if got := strings.Count(out, "\n"); got != 4 {
		t.Errorf("got %d stdout export lines, want 4", got)
	}
}

func TestTransferCmd_PoisonRecordQuarantined(t *testing.T) {
	path := isolate(t)
	seedRaw(t, path, "twitter", `{"text":"ok"}`, `not json`)

	out, err := run(t, "transfer", "twitter", "--json")
	if err == nil {
		t.Fatal("expected the poisoned batch to fail")
	}
	var res transfer.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode transfer %q: %v", out, err)
	}
	if len(res.Quarantined) != 1 {
		t.Fatalf("got quarantined %v, want one record", res.Quarantined)
	}

	// The next run skips the quarantined record.
	out, err = run(t, "transfer", "twitter", "--json")
	if err != nil {
		t.Fatalf("second transfer: %v", err)
	}
	res = transfer.Result{}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Messages != 1 {
		t.Errorf("got %d messages, want 1", res.Messages)
	}
}

func TestStatusCmd_NeverCaptured(t *testing.T) {
	isolate(t)
	out, err := run(t, "status", "nats")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Source:       nats") || !strings.Contains(out, "Messages:     0") {
		t.Errorf("unexpected status output:\n%s", out)
	}
}

func TestMessagesCmd_Remote(t *testing.T) {
	isolate(t)
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != server.PathMessages {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(server.MessagesResponse{Messages: []*model.MessageView{
			{DataSourceName: "twitter", Message: "from the server"},
		}})
	}))
	defer ts.Close()
	t.Setenv("MB_SERVER_URL", ts.URL)
	t.Setenv("MB_AUTH_TOKEN", "s3cret")

	out, err := run(t, "messages")
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if !strings.Contains(out, "from the server") || !strings.Contains(out, "1 messages") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if gotAuth != "Bearer s3cret" {
		t.Errorf("got Authorization %q", gotAuth)
	}
}

func TestConfigFlag(t *testing.T) {
	isolate(t)
	cfgPath := filepath.Join(t.TempDir(), "microblog.toml")
	if err := os.WriteFile(cfgPath, []byte("transfer_batch_size = 5000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", cfgPath, "sources"); err == nil {
		t.Fatal("expected out-of-range batch size from the config file to fail")
	}
}

type fakeSubscriber struct {
	ch chan events.Envelope
}

func (f *fakeSubscriber) Subscribe(topic string) (<-chan events.Envelope, func(), error) {
	return f.ch, func() {}, nil
}

func (f *fakeSubscriber) Close() error { return nil }

func TestWatchEvents(t *testing.T) {
	sub := &fakeSubscriber{ch: make(chan events.Envelope, 3)}
	sub.ch <- events.Envelope{Topic: events.TopicMessagesTransferred, Data: []byte(`{"batch":1}`)}
	sub.ch <- events.Envelope{Topic: events.TopicRawQuarantined, Data: []byte(`{"raw_id":7}`)}
	sub.ch <- events.Envelope{Topic: events.TopicExportCompleted, Data: []byte(`{}`)}

	var buf bytes.Buffer
	if err := watchEvents(context.Background(), sub, &buf, false, 2); err != nil {
		t.Fatalf("watch: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], events.TopicRawQuarantined) || !strings.Contains(lines[1], `"raw_id":7`) {
		t.Errorf("unexpected line %q", lines[1])
	}
}

func TestWatchEvents_ClosedChannel(t *testing.T) {
	sub := &fakeSubscriber{ch: make(chan events.Envelope)}
	close(sub.ch)
	var buf bytes.Buffer
	if err := watchEvents(context.Background(), sub, &buf, true, 0); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("got output %q, want none", buf.String())
	}
}

func TestColorizeHelpOutput(t *testing.T) {
	ui.SetColor(true)
	defer ui.SetColor(false)

	in := "Usage:\n  microblog [command]\n\nPipeline:\n  capture     Stream live events\n\nFlags:\n      --config string   TOML config file\n"
	lines := strings.Split(colorizeHelpOutput(in), "\n")

	if lines[0] != ui.RenderAccent("Usage:") {
		t.Errorf("title line = %q", lines[0])
	}
	if lines[1] != "  microblog [command]" {
		t.Errorf("usage line changed: %q", lines[1])
	}
	if want := "  " + ui.RenderCommand("capture") + "     Stream live events"; lines[4] != want {
		t.Errorf("command line = %q, want %q", lines[4], want)
	}
	if lines[7] != "      --config string   TOML config file" {
		t.Errorf("flag line changed: %q", lines[7])
	}
}
