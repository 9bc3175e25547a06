package postgres

import (
	"database/sql"
	"fmt"

	"github.com/alfredjeanlab/microblog/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanDataSource(row scannable) (*model.DataSource, error) {
	var ds model.DataSource
	if err := row.Scan(&ds.ID, &ds.Name, &ds.CreatedAt); err != nil {
		return nil, err
	}
	return &ds, nil
}

// scanRawEvent scans a single row into a model.RawEvent.
// The row must contain columns in the order defined by rawColumns.
func scanRawEvent(row scannable) (*model.RawEvent, error) {
	var r model.RawEvent
	var (
		entityID      sql.NullInt64
		quarantinedAt sql.NullTime
		reason        sql.NullString
	)

	err := row.Scan(
		&r.ID,
		&r.DataSourceID,
		&r.Data,
		&r.Timestamp,
		&entityID,
		&quarantinedAt,
		&reason,
	)
	if err != nil {
		return nil, err
	}

	if entityID.Valid {
		id := entityID.Int64
		r.EntityID = &id
	}
	if quarantinedAt.Valid {
		t := quarantinedAt.Time
		r.QuarantinedAt = &t
	}
	r.QuarantineReason = reason.String

	return &r, nil
}

func scanRawEvents(rows *sql.Rows) ([]*model.RawEvent, error) {
	var raws []*model.RawEvent
	for rows.Next() {
		r, err := scanRawEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan raw event: %w", err)
		}
		raws = append(raws, r)
	}
	return raws, rows.Err()
}
