package model

import "time"

// RawEvent is one captured, unparsed unit of data tied to a DataSource.
// A nil EntityID means the record has not been transferred yet.
type RawEvent struct {
	ID           int64     `json:"id"`
	DataSourceID int64     `json:"datasource_id"`
	Data         string    `json:"data"`
	Timestamp    time.Time `json:"timestamp"`
	EntityID     *int64    `json:"entity_id"`

	// Quarantine marks a record that failed extraction. It stays
	// unprocessed but is skipped by the transfer fetch.
	QuarantinedAt    *time.Time `json:"quarantined_at,omitempty"`
	QuarantineReason string     `json:"quarantine_reason,omitempty"`
}

// Processed reports whether the record has been linked to an entity.
func (r *RawEvent) Processed() bool {
	return r.EntityID != nil
}

// Quarantined reports whether the record was set aside after a failed extraction.
func (r *RawEvent) Quarantined() bool {
	return r.QuarantinedAt != nil
}
