// Package capture attaches to a streaming source and persists every inbound
// event as an unprocessed raw record.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alfredjeanlab/microblog/internal/datasource"
	"github.com/alfredjeanlab/microblog/internal/idgen"
	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/observability"
	"github.com/alfredjeanlab/microblog/internal/store"
)

// ErrStreamClosed is returned when the stream ends on its own. Capture does
// not reconnect.
var ErrStreamClosed = errors.New("capture: stream closed")

// Event is one payload delivered by a stream. A zero Timestamp means the
// adapter stamps the event with its own clock.
type Event struct {
	Payload   string
	Timestamp time.Time
}

// Sink receives stream traffic. OnEvent errors are fatal and must end Run.
type Sink interface {
	OnEvent(ctx context.Context, ev Event) error
	OnError(ctx context.Context, err error)
}

// Stream is a filtered real-time stream from one source.
type Stream interface {
	// ReplaceRules removes every active rule and installs rule as the only one.
	ReplaceRules(ctx context.Context, rule string) error
	// Run blocks delivering events to sink until the stream ends, ctx is
	// done, or sink.OnEvent fails.
	Run(ctx context.Context, sink Sink) error
}

// Adapter persists stream events for one source.
type Adapter struct {
	store   store.Store
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
}

// NewAdapter creates an Adapter writing to s.
func NewAdapter(s store.Store, logger *slog.Logger, metrics *observability.Metrics) *Adapter {
	return &Adapter{
		store:   s,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
}

// SetClock swaps the time source for event timestamps. Pass nil to reset to real time.
func (a *Adapter) SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	a.clock = c
}

// Run resolves the data source, installs rule, and stores events until the
// stream stops. It returns ctx.Err() when ctx is canceled, ErrStreamClosed
// when the stream ends by itself, and any store or stream error otherwise.
func (a *Adapter) Run(ctx context.Context, sourceName string, stream Stream, rule string) error {
	runID := idgen.MustRunID(idgen.KindCapture)
	logger := a.logger.With("run_id", runID, "source", sourceName)

	ds, err := datasource.GetOrCreate(ctx, a.store, sourceName)
	if err != nil {
		return err
	}

	if err := stream.ReplaceRules(ctx, rule); err != nil {
		return fmt.Errorf("replace rules: %w", err)
	}
	logger.Info("capture started", "rule", rule, "datasource_id", ds.ID)

	a.metrics.CaptureRunning.Set(1)
	defer a.metrics.CaptureRunning.Set(0)

	sink := &storeSink{adapter: a, ds: ds, logger: logger}
	err = stream.Run(ctx, sink)

	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Info("capture stopped", "reason", ctxErr, "captured", sink.count)
		return ctxErr
	}
	if err != nil {
		logger.Error("capture failed", "err", err, "captured", sink.count)
		return err
	}
	logger.Warn("stream closed by remote", "captured", sink.count)
	return ErrStreamClosed
}

// storeSink inserts and commits each event on its own.
type storeSink struct {
	adapter *Adapter
	ds      *model.DataSource
	logger  *slog.Logger
	count   int
}

func (s *storeSink) OnEvent(ctx context.Context, ev Event) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = s.adapter.clock.Now()
	}
	raw := &model.RawEvent{
		DataSourceID: s.ds.ID,
		Data:         ev.Payload,
		Timestamp:    ts.UTC(),
	}
	if err := s.adapter.store.InsertRawEvent(ctx, raw); err != nil {
		return fmt.Errorf("store raw event: %w", err)
	}
	s.count++
	s.adapter.metrics.RawEventsCaptured.WithLabelValues(s.ds.Name).Inc()
	s.logger.Debug("raw event stored", "raw_id", raw.ID)
	return nil
}

func (s *storeSink) OnError(_ context.Context, err error) {
	s.adapter.metrics.StreamErrors.WithLabelValues(s.ds.Name).Inc()
	s.logger.Warn("stream error", "err", err)
}
