package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/store"
)

// rawColumns is the column list used for SELECT statements on the rawsourcedata table.
const rawColumns = `id, datasource_id, data, timestamp, entity_id, quarantined_at, quarantine_reason`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryGetDataSourceByName(ctx context.Context, db executor, name string) (*model.DataSource, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, created_at
		FROM datasource WHERE name = $1`, name)
	ds, err := scanDataSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get datasource %q: %w", name, err)
	}
	return ds, nil
}

func queryCreateDataSource(ctx context.Context, db executor, ds *model.DataSource) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO datasource (name)
		VALUES ($1)
		ON CONFLICT (name) DO NOTHING
		RETURNING id, created_at`,
		ds.Name,
	).Scan(&ds.ID, &ds.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create datasource %q: %w", ds.Name, err)
	}
	return nil
}

func queryInsertRawEvent(ctx context.Context, db executor, r *model.RawEvent) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO rawsourcedata (datasource_id, data, timestamp)
		VALUES ($1, $2, $3)
		RETURNING id`,
		r.DataSourceID, r.Data, r.Timestamp,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert raw event: %w", err)
	}
	return nil
}

func queryListUnprocessed(ctx context.Context, db executor, dataSourceID int64, limit int) ([]*model.RawEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+rawColumns+`
		FROM rawsourcedata
		WHERE datasource_id = $1 AND entity_id IS NULL AND quarantined_at IS NULL
		ORDER BY timestamp ASC, id ASC
		LIMIT $2`,
		dataSourceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	defer rows.Close()
	return scanRawEvents(rows)
}

func queryQuarantineRawEvent(ctx context.Context, db executor, rawID int64, reason string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE rawsourcedata
		SET quarantined_at = NOW(), quarantine_reason = $2
		WHERE id = $1 AND entity_id IS NULL`,
		rawID, reason,
	)
	if err != nil {
		return fmt.Errorf("quarantine raw event %d: %w", rawID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// queryCreateMessage inserts the entity and links the raw record to it. The
// link only applies to a raw record that is still unprocessed, so callers
// must run it inside a transaction and roll back on ErrAlreadyProcessed.
func queryCreateMessage(ctx context.Context, db executor, m *model.MessageEntity) error {
	err := db.QueryRowContext(ctx, `
		INSERT INTO messageentity (datasource_id, message)
		VALUES ($1, $2)
		RETURNING id`,
		m.DataSourceID, m.Message,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE rawsourcedata SET entity_id = $1
		WHERE id = $2 AND entity_id IS NULL`,
		m.ID, m.RawID,
	)
	if err != nil {
		return fmt.Errorf("link raw event %d: %w", m.RawID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("link raw event %d: %w", m.RawID, store.ErrAlreadyProcessed)
	}
	return nil
}

func queryListMessages(ctx context.Context, db executor, afterID int64, limit int) ([]*model.MessageEntity, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.id, m.datasource_id, m.message, r.id
		FROM messageentity m
		JOIN rawsourcedata r ON r.entity_id = m.id
		WHERE m.id > $1
		ORDER BY m.id ASC
		LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.MessageEntity
	for rows.Next() {
		var m model.MessageEntity
		if err := rows.Scan(&m.ID, &m.DataSourceID, &m.Message, &m.RawID); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func queryListMessageIDs(ctx context.Context, db executor) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM messageentity ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list message ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// queryGetMessageViews returns the views for ids in the order the ids were given.
// Unknown ids are skipped.
func queryGetMessageViews(ctx context.Context, db executor, ids []int64) ([]*model.MessageView, error) {
	if len(ids) == 0 {
		return []*model.MessageView{}, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT m.id, d.name, m.message
		FROM messageentity m
		JOIN datasource d ON d.id = m.datasource_id
		WHERE m.id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("get message views: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*model.MessageView, len(ids))
	for rows.Next() {
		var (
			id int64
			v  model.MessageView
		)
		if err := rows.Scan(&id, &v.DataSourceName, &v.Message); err != nil {
			return nil, fmt.Errorf("scan message view: %w", err)
		}
		byID[id] = &v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orderViews(ids, byID), nil
}

func queryGetSourceStats(ctx context.Context, db executor, dataSourceID int64) (*model.SourceStats, error) {
	stats := &model.SourceStats{}
	err := db.QueryRowContext(ctx, `
		SELECT
			d.name,
			COUNT(r.id),
			COALESCE(SUM(CASE WHEN r.entity_id IS NULL AND r.quarantined_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN r.entity_id IS NULL AND r.quarantined_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			(SELECT COUNT(*) FROM messageentity m WHERE m.datasource_id = d.id)
		FROM datasource d
		LEFT JOIN rawsourcedata r ON r.datasource_id = d.id
		WHERE d.id = $1
		GROUP BY d.id, d.name`,
		dataSourceID,
	).Scan(
		&stats.DataSource,
		&stats.Raw,
		&stats.Unprocessed,
		&stats.Quarantined,
		&stats.Messages,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("source stats: %w", err)
	}
	return stats, nil
}

func orderViews(ids []int64, byID map[int64]*model.MessageView) []*model.MessageView {
	views := make([]*model.MessageView, 0, len(byID))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			views = append(views, v)
		}
	}
	return views
}
