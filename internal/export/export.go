// Package export snapshots message entities as JSONL and ships them to
// files or S3 on a schedule.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/microblog/internal/store"
)

// pageSize is how many entities one ListMessages call returns.
const pageSize = 500

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"message_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes a header line and then every message entity in id
// order. Only the entities whose ids were listed when the export started are
// written, so the header count matches the body even when a lower id commits
// late. It returns the number of entities written.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) (int, error) {
	ids, err := s.ListMessageIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list message ids: %w", err)
	}
	snapshot := make(map[int64]struct{}, len(ids))
	var maxID int64
	for _, id := range ids {
		snapshot[id] = struct{}{}
		maxID = max(maxID, id)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		MessageCount: len(ids),
	}); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}

	written := 0
	var after int64
	for written < len(ids) && after < maxID {
		page, err := s.ListMessages(ctx, after, pageSize)
		if err != nil {
			return written, fmt.Errorf("list messages after %d: %w", after, err)
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			after = m.ID
			if _, ok := snapshot[m.ID]; !ok {
				continue
			}
			if err := enc.Encode(record{Type: "message", Data: m}); err != nil {
				return written, fmt.Errorf("encode message %d: %w", m.ID, err)
			}
			written++
		}
	}
	return written, nil
}
