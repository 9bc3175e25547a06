package model

import "time"

// DataSource is a named external origin of events (e.g. "twitter").
// Name is the lookup key and is unique across the store.
type DataSource struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
