// Package sqlite implements the store.Store interface on an embedded SQLite
// database file. Timestamps are stored as INTEGER unix nanoseconds.
//
// Connections come from a fixed-size pool. Every method outside a
// transaction takes a connection for the duration of one call; a
// transaction pins a single connection and holds the write lock from
// BEGIN IMMEDIATE until commit or rollback.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasource (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messageentity (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	datasource_id INTEGER NOT NULL REFERENCES datasource(id),
	message       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS messageentity_datasource_idx ON messageentity(datasource_id);

CREATE TABLE IF NOT EXISTS rawsourcedata (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	datasource_id     INTEGER NOT NULL REFERENCES datasource(id),
	data              TEXT NOT NULL,
	timestamp         INTEGER NOT NULL,
	entity_id         INTEGER UNIQUE REFERENCES messageentity(id),
	quarantined_at    INTEGER,
	quarantine_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS rawsourcedata_unprocessed_idx
	ON rawsourcedata(datasource_id, timestamp, id)
	WHERE entity_id IS NULL AND quarantined_at IS NULL;
`

// pragmas are applied to every pooled connection before first use.
var pragmas = []string{
	"PRAGMA busy_timeout=5000",
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA cache_size=-8192",
	"PRAGMA temp_store=MEMORY",
}

// Config holds the parameters for opening a SQLite store.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// PoolSize defaults to max(runtime.NumCPU(), 4) when zero or negative.
	PoolSize int

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// SQLiteStore implements store.Store backed by a SQLite database file.
type SQLiteStore struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Compile-time check that SQLiteStore implements store.Store.
var _ store.Store = (*SQLiteStore)(nil)

// Open creates the connection pool, applies the schema, and returns a ready store.
func Open(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", cfg.Path, err)
	}

	s := &SQLiteStore{pool: pool, logger: logger, path: cfg.Path}
	if err := s.applySchema(); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("sqlite store opened", "path", cfg.Path, "pool_size", poolSize)
	return s, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite store: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) applySchema() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlite store: apply schema: %w", err)
	}
	return nil
}

// withConn borrows a connection for the duration of fn.
func (s *SQLiteStore) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// Ping borrows a connection and runs a trivial query.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, "SELECT 1", nil)
	})
}

// Close blocks until all borrowed connections are returned.
func (s *SQLiteStore) Close() error {
	if err := s.pool.Close(); err != nil {
		s.logger.Error("sqlite store close error", "path", s.path, "error", err)
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	s.logger.Info("sqlite store closed", "path", s.path)
	return nil
}

func (s *SQLiteStore) GetDataSourceByName(ctx context.Context, name string) (ds *model.DataSource, err error) {
	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		ds, err = queryGetDataSourceByName(conn, name)
		return err
	})
	return ds, err
}

func (s *SQLiteStore) CreateDataSource(ctx context.Context, ds *model.DataSource) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return queryCreateDataSource(conn, ds)
	})
}

func (s *SQLiteStore) InsertRawEvent(ctx context.Context, raw *model.RawEvent) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return queryInsertRawEvent(conn, raw)
	})
}

func (s *SQLiteStore) ListUnprocessed(ctx context.Context, dataSourceID int64, limit int) (raws []*model.RawEvent, err error) {
	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		raws, err = queryListUnprocessed(conn, dataSourceID, limit)
		return err
	})
	return raws, err
}

func (s *SQLiteStore) QuarantineRawEvent(ctx context.Context, rawID int64, reason string) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return queryQuarantineRawEvent(conn, rawID, reason)
	})
}

// CreateMessage outside a transaction opens one so the entity insert and
// the raw link commit together.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *model.MessageEntity) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.CreateMessage(ctx, msg)
	})
}

func (s *SQLiteStore) ListMessages(ctx context.Context, afterID int64, limit int) (msgs []*model.MessageEntity, err error) {
	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		msgs, err = queryListMessages(conn, afterID, limit)
		return err
	})
	return msgs, err
}

func (s *SQLiteStore) ListMessageIDs(ctx context.Context) (ids []int64, err error) {
	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		ids, err = queryListMessageIDs(conn)
		return err
	})
	return ids, err
}

func (s *SQLiteStore) GetMessageViews(ctx context.Context, ids []int64) (views []*model.MessageView, err error) {
	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		views, err = queryGetMessageViews(conn, ids)
		return err
	})
	return views, err
}

func (s *SQLiteStore) GetSourceStats(ctx context.Context, dataSourceID int64) (stats *model.SourceStats, err error) {
	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		stats, err = queryGetSourceStats(conn, dataSourceID)
		return err
	})
	return stats, err
}

// RunInTransaction pins one connection, begins an IMMEDIATE transaction,
// and commits when fn returns nil. Any error rolls the transaction back.
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	return fn(&txStore{conn: conn})
}

// txStore implements store.Store on a connection with an open transaction.
type txStore struct {
	conn *sqlite.Conn
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) GetDataSourceByName(ctx context.Context, name string) (*model.DataSource, error) {
	return queryGetDataSourceByName(s.conn, name)
}

func (s *txStore) CreateDataSource(ctx context.Context, ds *model.DataSource) error {
	return queryCreateDataSource(s.conn, ds)
}

func (s *txStore) InsertRawEvent(ctx context.Context, raw *model.RawEvent) error {
	return queryInsertRawEvent(s.conn, raw)
}

func (s *txStore) ListUnprocessed(ctx context.Context, dataSourceID int64, limit int) ([]*model.RawEvent, error) {
	return queryListUnprocessed(s.conn, dataSourceID, limit)
}

func (s *txStore) QuarantineRawEvent(ctx context.Context, rawID int64, reason string) error {
	return queryQuarantineRawEvent(s.conn, rawID, reason)
}

// CreateMessage uses a savepoint so a failed link leaves no orphan entity
// behind even when the caller keeps the outer transaction.
func (s *txStore) CreateMessage(ctx context.Context, msg *model.MessageEntity) (err error) {
	release := sqlitex.Save(s.conn)
	defer release(&err)
	return queryCreateMessage(s.conn, msg)
}

func (s *txStore) ListMessages(ctx context.Context, afterID int64, limit int) ([]*model.MessageEntity, error) {
	return queryListMessages(s.conn, afterID, limit)
}

func (s *txStore) ListMessageIDs(ctx context.Context) ([]int64, error) {
	return queryListMessageIDs(s.conn)
}

func (s *txStore) GetMessageViews(ctx context.Context, ids []int64) ([]*model.MessageView, error) {
	return queryGetMessageViews(s.conn, ids)
}

func (s *txStore) GetSourceStats(ctx context.Context, dataSourceID int64) (*model.SourceStats, error) {
	return queryGetSourceStats(s.conn, dataSourceID)
}

// RunInTransaction on a txStore reuses the open transaction.
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *txStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
