package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alfredjeanlab/microblog/internal/events"
	"github.com/alfredjeanlab/microblog/internal/store/storetest"
)

// mockDestination records calls to Write.
type mockDestination struct {
	name   string
	err    error
	writes atomic.Int64
	last   atomic.Value // []byte
}

func (d *mockDestination) Name() string { return d.name }

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	if d.err != nil {
		return d.err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ExportCompleted
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic == events.TopicExportCompleted {
		p.events = append(p.events, event.(events.ExportCompleted))
	}
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitWrites(t *testing.T, d *mockDestination, n int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for d.writes.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("writes = %d, want %d", d.writes.Load(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	mem := storetest.NewMemStore()
	seedMessages(t, mem, 2)
	dest := &mockDestination{name: "mock"}
	clock := clockwork.NewFakeClock()

	sched := NewScheduler(mem, []Destination{dest}, time.Minute, nil, discardLogger())
	sched.SetClock(clock)
	sched.Start()

	waitWrites(t, dest, 1)
	if err := clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatalf("waiting for ticker: %v", err)
	}
	clock.Advance(time.Minute)
	waitWrites(t, dest, 2)
	sched.Stop()

	data, ok := dest.last.Load().([]byte)
	if !ok {
		t.Fatal("expected data")
	}
	if lines := nonEmptyLines(string(data)); len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(storetest.NewMemStore(), nil, time.Minute, nil, discardLogger())
	// Stop without Start should not panic.
	sched.Stop()
}

func TestExportOnce_FailingDestinationDoesNotStopOthers(t *testing.T) {
	mem := storetest.NewMemStore()
	seedMessages(t, mem, 3)
	bad := &mockDestination{name: "bad", err: errors.New("disk full")}
	good := &mockDestination{name: "good"}
	pub := &recordingPublisher{}

	sched := NewScheduler(mem, []Destination{bad, good}, time.Minute, pub, discardLogger())
	if got := sched.ExportOnce(context.Background()); got != 1 {
		t.Fatalf("ExportOnce = %d, want 1", got)
	}

	if bad.writes.Load() != 1 || good.writes.Load() != 1 {
		t.Fatalf("writes bad=%d good=%d", bad.writes.Load(), good.writes.Load())
	}
	if len(pub.events) != 1 {
		t.Fatalf("events = %d, want 1", len(pub.events))
	}
	evt := pub.events[0]
	if evt.Destination != "good" || evt.Messages != 3 || evt.RunID == "" {
		t.Errorf("unexpected event: %+v", evt)
	}
}

func TestExportOnce_SnapshotFailureWritesNothing(t *testing.T) {
	mem := storetest.NewMemStore()
	mem.OnListMessageIDs = func() error { return errors.New("gone") }
	dest := &mockDestination{name: "mock"}

	sched := NewScheduler(mem, []Destination{dest}, time.Minute, nil, discardLogger())
	if got := sched.ExportOnce(context.Background()); got != 0 {
		t.Fatalf("ExportOnce = %d, want 0", got)
	}
	if dest.writes.Load() != 0 {
		t.Fatal("destination should not be written")
	}
}
