package export

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alfredjeanlab/microblog/internal/events"
	"github.com/alfredjeanlab/microblog/internal/idgen"
	"github.com/alfredjeanlab/microblog/internal/store"
)

// Destination is an export target.
type Destination interface {
	// Name identifies the destination in logs and events.
	Name() string
	// Write stores one complete JSONL snapshot.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs periodic exports to one or more destinations.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	publisher    events.Publisher
	logger       *slog.Logger
	clock        clockwork.Clock

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations at the specified interval. A nil publisher disables events.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, pub events.Publisher, logger *slog.Logger) *Scheduler {
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		publisher:    pub,
		logger:       logger,
		clock:        clockwork.NewRealClock(),
	}
}

// SetClock replaces the ticker source. Call before Start.
func (s *Scheduler) SetClock(c clockwork.Clock) {
	s.clock = c
}

// Start runs an export immediately, then one per interval until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current export (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.ExportOnce(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.ExportOnce(ctx)
		}
	}
}

// ExportOnce takes one snapshot and writes it to every destination. A
// failing destination does not stop the others. It returns the number of
// destinations written.
func (s *Scheduler) ExportOnce(ctx context.Context) int {
	runID := idgen.MustRunID(idgen.KindExport)
	logger := s.logger.With("run_id", runID)

	var buf bytes.Buffer
	count, err := ExportJSONL(ctx, s.store, &buf)
	if err != nil {
		logger.Error("export failed", "error", err)
		return 0
	}
	data := buf.Bytes()

	ok := 0
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			logger.Error("export destination write failed", "destination", dest.Name(), "error", err)
			continue
		}
		ok++
		evt := events.ExportCompleted{RunID: runID, Destination: dest.Name(), Messages: count}
		if err := s.publisher.Publish(ctx, events.TopicExportCompleted, evt); err != nil {
			logger.Warn("failed to publish event", "topic", events.TopicExportCompleted, "error", err)
		}
	}

	logger.Info("export completed", "destinations", ok, "messages", count, "bytes", len(data))
	return ok
}
