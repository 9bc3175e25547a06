// Package transfer converts unprocessed raw records into message entities in
// fixed-size, all-or-nothing batches.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/microblog/internal/datasource"
	"github.com/alfredjeanlab/microblog/internal/events"
	"github.com/alfredjeanlab/microblog/internal/idgen"
	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/observability"
	"github.com/alfredjeanlab/microblog/internal/store"
)

// DefaultBatchSize is the number of raw records converted per transaction.
const DefaultBatchSize = 20

// Config controls batching and poison-record handling.
type Config struct {
	BatchSize int
	// Quarantine marks a raw record that fails extraction so later runs skip it.
	Quarantine bool
}

// Result summarizes one Run.
type Result struct {
	Batches     int     `json:"batches"`
	Messages    int     `json:"messages"`
	Quarantined []int64 `json:"quarantined,omitempty"`
}

// Pipeline drains the unprocessed backlog of a source.
type Pipeline struct {
	store     store.Store
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	cfg       Config
}

// New creates a Pipeline. A non-positive BatchSize means DefaultBatchSize.
func New(s store.Store, pub events.Publisher, logger *slog.Logger, metrics *observability.Metrics, cfg Config) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	return &Pipeline{
		store:     s,
		publisher: pub,
		logger:    logger,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// Run converts batches oldest-first until no unprocessed record remains.
// Each batch commits atomically; the first failing batch is rolled back and
// its error returned, leaving earlier batches committed.
func (p *Pipeline) Run(ctx context.Context, sourceName string, ex Extractor) (Result, error) {
	var res Result
	runID := idgen.MustRunID(idgen.KindTransfer)
	logger := p.logger.With("run_id", runID, "source", sourceName)

	ds, err := datasource.GetOrCreate(ctx, p.store, sourceName)
	if err != nil {
		return res, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		start := time.Now()
		raws, err := p.store.ListUnprocessed(ctx, ds.ID, p.cfg.BatchSize)
		if err != nil {
			return res, fmt.Errorf("fetch batch %d: %w", res.Batches+1, err)
		}
		if len(raws) == 0 {
			logger.Info("transfer complete", "batches", res.Batches, "messages", res.Messages)
			return res, nil
		}

		batch := res.Batches + 1
		ids, err := p.convertBatch(ctx, ds, raws, ex)
		if err != nil {
			p.metrics.BatchFailures.WithLabelValues(ds.Name).Inc()
			logger.Error("batch rolled back", "batch", batch, "size", len(raws), "err", err)
			p.quarantine(ctx, logger, runID, ds, err, &res)
			return res, fmt.Errorf("transfer batch %d: %w", batch, err)
		}

		res.Batches = batch
		res.Messages += len(ids)
		p.metrics.BatchesCommitted.WithLabelValues(ds.Name).Inc()
		p.metrics.MessagesTransferred.WithLabelValues(ds.Name).Add(float64(len(ids)))
		p.metrics.BatchDuration.Observe(time.Since(start).Seconds())
		logger.Info("batch committed", "batch", batch, "messages", len(ids))

		p.publish(ctx, logger, events.TopicMessagesTransferred, events.MessagesTransferred{
			RunID:      runID,
			Source:     ds.Name,
			Batch:      batch,
			MessageIDs: ids,
			At:         time.Now().UTC(),
		})
	}
}

// convertBatch creates one entity per raw record inside a single transaction.
func (p *Pipeline) convertBatch(ctx context.Context, ds *model.DataSource, raws []*model.RawEvent, ex Extractor) ([]int64, error) {
	var ids []int64
	err := p.store.RunInTransaction(ctx, func(tx store.Store) error {
		ids = ids[:0]
		for _, raw := range raws {
			text, err := ex.Extract(raw.Data)
			if err != nil {
				return &ExtractError{RawID: raw.ID, Err: err}
			}
			msg := &model.MessageEntity{
				DataSourceID: ds.ID,
				Message:      text,
				RawID:        raw.ID,
			}
			if err := tx.CreateMessage(ctx, msg); err != nil {
				return err
			}
			ids = append(ids, msg.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// quarantine sets aside the record behind an extraction failure in its own commit.
func (p *Pipeline) quarantine(ctx context.Context, logger *slog.Logger, runID string, ds *model.DataSource, batchErr error, res *Result) {
	var extractErr *ExtractError
	if !p.cfg.Quarantine || !errors.As(batchErr, &extractErr) {
		return
	}
	reason := extractErr.Err.Error()
	if err := p.store.QuarantineRawEvent(ctx, extractErr.RawID, reason); err != nil {
		logger.Warn("quarantine failed", "raw_id", extractErr.RawID, "err", err)
		return
	}
	res.Quarantined = append(res.Quarantined, extractErr.RawID)
	p.metrics.RecordsQuarantined.WithLabelValues(ds.Name).Inc()
	logger.Warn("raw event quarantined", "raw_id", extractErr.RawID, "reason", reason)

	p.publish(ctx, logger, events.TopicRawQuarantined, events.RawQuarantined{
		RunID:  runID,
		Source: ds.Name,
		RawID:  extractErr.RawID,
		Reason: reason,
	})
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, topic string, event any) {
	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		logger.Warn("publish failed", "topic", topic, "err", err)
	}
}
