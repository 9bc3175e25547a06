package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/microblog/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned by CreateDataSource when the name is already taken.
	ErrConflict = errors.New("store: conflict")

	// ErrAlreadyProcessed is returned by CreateMessage when the raw record
	// is already linked to an entity.
	ErrAlreadyProcessed = errors.New("store: raw event already processed")
)

// Store defines the persistence interface for data sources, raw events and messages.
type Store interface {
	// Data sources
	GetDataSourceByName(ctx context.Context, name string) (*model.DataSource, error)
	CreateDataSource(ctx context.Context, ds *model.DataSource) error

	// Raw events
	InsertRawEvent(ctx context.Context, raw *model.RawEvent) error
	ListUnprocessed(ctx context.Context, dataSourceID int64, limit int) ([]*model.RawEvent, error)
	QuarantineRawEvent(ctx context.Context, rawID int64, reason string) error

	// Messages
	CreateMessage(ctx context.Context, msg *model.MessageEntity) error
	ListMessages(ctx context.Context, afterID int64, limit int) ([]*model.MessageEntity, error)
	ListMessageIDs(ctx context.Context) ([]int64, error)
	GetMessageViews(ctx context.Context, ids []int64) ([]*model.MessageView, error)

	// Stats
	GetSourceStats(ctx context.Context, dataSourceID int64) (*model.SourceStats, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
