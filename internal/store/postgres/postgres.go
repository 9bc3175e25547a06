// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetDataSourceByName(ctx context.Context, name string) (*model.DataSource, error) {
	return queryGetDataSourceByName(ctx, s.db, name)
}

func (s *PostgresStore) CreateDataSource(ctx context.Context, ds *model.DataSource) error {
	return queryCreateDataSource(ctx, s.db, ds)
}

func (s *PostgresStore) InsertRawEvent(ctx context.Context, raw *model.RawEvent) error {
	return queryInsertRawEvent(ctx, s.db, raw)
}

func (s *PostgresStore) ListUnprocessed(ctx context.Context, dataSourceID int64, limit int) ([]*model.RawEvent, error) {
	return queryListUnprocessed(ctx, s.db, dataSourceID, limit)
}

func (s *PostgresStore) QuarantineRawEvent(ctx context.Context, rawID int64, reason string) error {
	return queryQuarantineRawEvent(ctx, s.db, rawID, reason)
}

// CreateMessage outside a transaction runs its two statements in a
// transaction of its own so the entity and the raw link land together.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *model.MessageEntity) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.CreateMessage(ctx, msg)
	})
}

func (s *PostgresStore) ListMessages(ctx context.Context, afterID int64, limit int) ([]*model.MessageEntity, error) {
	return queryListMessages(ctx, s.db, afterID, limit)
}

func (s *PostgresStore) ListMessageIDs(ctx context.Context) ([]int64, error) {
	return queryListMessageIDs(ctx, s.db)
}

func (s *PostgresStore) GetMessageViews(ctx context.Context, ids []int64) ([]*model.MessageView, error) {
	return queryGetMessageViews(ctx, s.db, ids)
}

func (s *PostgresStore) GetSourceStats(ctx context.Context, dataSourceID int64) (*model.SourceStats, error) {
	return queryGetSourceStats(ctx, s.db, dataSourceID)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) GetDataSourceByName(ctx context.Context, name string) (*model.DataSource, error) {
	return queryGetDataSourceByName(ctx, s.tx, name)
}

func (s *txStore) CreateDataSource(ctx context.Context, ds *model.DataSource) error {
	return queryCreateDataSource(ctx, s.tx, ds)
}

func (s *txStore) InsertRawEvent(ctx context.Context, raw *model.RawEvent) error {
	return queryInsertRawEvent(ctx, s.tx, raw)
}

func (s *txStore) ListUnprocessed(ctx context.Context, dataSourceID int64, limit int) ([]*model.RawEvent, error) {
	return queryListUnprocessed(ctx, s.tx, dataSourceID, limit)
}

func (s *txStore) QuarantineRawEvent(ctx context.Context, rawID int64, reason string) error {
	return queryQuarantineRawEvent(ctx, s.tx, rawID, reason)
}

func (s *txStore) CreateMessage(ctx context.Context, msg *model.MessageEntity) error {
	return queryCreateMessage(ctx, s.tx, msg)
}

func (s *txStore) ListMessages(ctx context.Context, afterID int64, limit int) ([]*model.MessageEntity, error) {
	return queryListMessages(ctx, s.tx, afterID, limit)
}

func (s *txStore) ListMessageIDs(ctx context.Context) ([]int64, error) {
	return queryListMessageIDs(ctx, s.tx)
}

func (s *txStore) GetMessageViews(ctx context.Context, ids []int64) ([]*model.MessageView, error) {
	return queryGetMessageViews(ctx, s.tx, ids)
}

func (s *txStore) GetSourceStats(ctx context.Context, dataSourceID int64) (*model.SourceStats, error) {
	return queryGetSourceStats(ctx, s.tx, dataSourceID)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Ping is a no-op inside a transaction; the transaction already holds a connection.
func (s *txStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
