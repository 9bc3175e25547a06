package sqlite

import (
	"fmt"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/store"
)

// rawColumns is the column list used for SELECT statements on the rawsourcedata table.
const rawColumns = `id, datasource_id, data, timestamp, entity_id, quarantined_at, quarantine_reason`

func queryGetDataSourceByName(conn *sqlite.Conn, name string) (*model.DataSource, error) {
	var ds *model.DataSource
	err := sqlitex.Execute(conn, `SELECT id, name, created_at FROM datasource WHERE name = ?`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ds = &model.DataSource{
				ID:        stmt.ColumnInt64(0),
				Name:      stmt.ColumnText(1),
				CreatedAt: fromNanos(stmt.ColumnInt64(2)),
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get datasource %q: %w", name, err)
	}
	if ds == nil {
		return nil, store.ErrNotFound
	}
	return ds, nil
}

func queryCreateDataSource(conn *sqlite.Conn, ds *model.DataSource) error {
	createdAt := time.Now().UTC()
	err := sqlitex.Execute(conn, `
		INSERT INTO datasource (name, created_at) VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING`, &sqlitex.ExecOptions{
		Args: []any{ds.Name, createdAt.UnixNano()},
	})
	if err != nil {
		return fmt.Errorf("create datasource %q: %w", ds.Name, err)
	}
	if conn.Changes() == 0 {
		return store.ErrConflict
	}
	ds.ID = conn.LastInsertRowID()
	ds.CreatedAt = createdAt
	return nil
}

func queryInsertRawEvent(conn *sqlite.Conn, r *model.RawEvent) error {
	err := sqlitex.Execute(conn, `
		INSERT INTO rawsourcedata (datasource_id, data, timestamp) VALUES (?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{r.DataSourceID, r.Data, r.Timestamp.UnixNano()},
	})
	if err != nil {
		return fmt.Errorf("insert raw event: %w", err)
	}
	r.ID = conn.LastInsertRowID()
	return nil
}

func queryListUnprocessed(conn *sqlite.Conn, dataSourceID int64, limit int) ([]*model.RawEvent, error) {
	var raws []*model.RawEvent
	err := sqlitex.Execute(conn, `
		SELECT `+rawColumns+`
		FROM rawsourcedata
		WHERE datasource_id = ? AND entity_id IS NULL AND quarantined_at IS NULL
		ORDER BY timestamp ASC, id ASC
		LIMIT ?`, &sqlitex.ExecOptions{
		Args: []any{dataSourceID, limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			raws = append(raws, scanRawEvent(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	return raws, nil
}

func queryQuarantineRawEvent(conn *sqlite.Conn, rawID int64, reason string) error {
	err := sqlitex.Execute(conn, `
		UPDATE rawsourcedata
		SET quarantined_at = ?, quarantine_reason = ?
		WHERE id = ? AND entity_id IS NULL`, &sqlitex.ExecOptions{
		Args: []any{time.Now().UnixNano(), reason, rawID},
	})
	if err != nil {
		return fmt.Errorf("quarantine raw event %d: %w", rawID, err)
	}
	if conn.Changes() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func queryCreateMessage(conn *sqlite.Conn, m *model.MessageEntity) error {
	err := sqlitex.Execute(conn, `
		INSERT INTO messageentity (datasource_id, message) VALUES (?, ?)`, &sqlitex.ExecOptions{
		Args: []any{m.DataSourceID, m.Message},
	})
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	m.ID = conn.LastInsertRowID()

	err = sqlitex.Execute(conn, `
		UPDATE rawsourcedata SET entity_id = ?
		WHERE id = ? AND entity_id IS NULL`, &sqlitex.ExecOptions{
		Args: []any{m.ID, m.RawID},
	})
	if err != nil {
		return fmt.Errorf("link raw event %d: %w", m.RawID, err)
	}
	if conn.Changes() == 0 {
		return fmt.Errorf("link raw event %d: %w", m.RawID, store.ErrAlreadyProcessed)
	}
	return nil
}

func queryListMessages(conn *sqlite.Conn, afterID int64, limit int) ([]*model.MessageEntity, error) {
	var msgs []*model.MessageEntity
	err := sqlitex.Execute(conn, `
		SELECT m.id, m.datasource_id, m.message, r.id
		FROM messageentity m
		JOIN rawsourcedata r ON r.entity_id = m.id
		WHERE m.id > ?
		ORDER BY m.id ASC
		LIMIT ?`, &sqlitex.ExecOptions{
		Args: []any{afterID, limit},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			msgs = append(msgs, &model.MessageEntity{
				ID:           stmt.ColumnInt64(0),
				DataSourceID: stmt.ColumnInt64(1),
				Message:      stmt.ColumnText(2),
				RawID:        stmt.ColumnInt64(3),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

func queryListMessageIDs(conn *sqlite.Conn) ([]int64, error) {
	var ids []int64
	err := sqlitex.Execute(conn, `SELECT id FROM messageentity ORDER BY id`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			ids = append(ids, stmt.ColumnInt64(0))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list message ids: %w", err)
	}
	return ids, nil
}

// queryGetMessageViews returns views in the order of ids. Unknown ids are skipped.
func queryGetMessageViews(conn *sqlite.Conn, ids []int64) ([]*model.MessageView, error) {
	views := make([]*model.MessageView, 0, len(ids))
	if len(ids) == 0 {
		return views, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	byID := make(map[int64]*model.MessageView, len(ids))
	err := sqlitex.ExecuteTransient(conn, `
		SELECT m.id, d.name, m.message
		FROM messageentity m
		JOIN datasource d ON d.id = m.datasource_id
		WHERE m.id IN (`+placeholders+`)`, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			byID[stmt.ColumnInt64(0)] = &model.MessageView{
				DataSourceName: stmt.ColumnText(1),
				Message:        stmt.ColumnText(2),
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get message views: %w", err)
	}

	for _, id := range ids {
		if v, ok := byID[id]; ok {
			views = append(views, v)
		}
	}
	return views, nil
}

func queryGetSourceStats(conn *sqlite.Conn, dataSourceID int64) (*model.SourceStats, error) {
	var stats *model.SourceStats
	err := sqlitex.Execute(conn, `
		SELECT
			d.name,
			COUNT(r.id),
			COALESCE(SUM(CASE WHEN r.entity_id IS NULL AND r.quarantined_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN r.entity_id IS NULL AND r.quarantined_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			(SELECT COUNT(*) FROM messageentity m WHERE m.datasource_id = d.id)
		FROM datasource d
		LEFT JOIN rawsourcedata r ON r.datasource_id = d.id
		WHERE d.id = ?
		GROUP BY d.id, d.name`, &sqlitex.ExecOptions{
		Args: []any{dataSourceID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			stats = &model.SourceStats{
				DataSource:  stmt.ColumnText(0),
				Raw:         stmt.ColumnInt64(1),
				Unprocessed: stmt.ColumnInt64(2),
				Quarantined: stmt.ColumnInt64(3),
				Messages:    stmt.ColumnInt64(4),
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("source stats: %w", err)
	}
	if stats == nil {
		return nil, store.ErrNotFound
	}
	return stats, nil
}

// scanRawEvent reads a row selected with rawColumns.
func scanRawEvent(stmt *sqlite.Stmt) *model.RawEvent {
	r := &model.RawEvent{
		ID:               stmt.ColumnInt64(0),
		DataSourceID:     stmt.ColumnInt64(1),
		Data:             stmt.ColumnText(2),
		Timestamp:        fromNanos(stmt.ColumnInt64(3)),
		QuarantineReason: stmt.ColumnText(6),
	}
	if stmt.ColumnType(4) != sqlite.TypeNull {
		id := stmt.ColumnInt64(4)
		r.EntityID = &id
	}
	if stmt.ColumnType(5) != sqlite.TypeNull {
		t := fromNanos(stmt.ColumnInt64(5))
		r.QuarantinedAt = &t
	}
	return r
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
