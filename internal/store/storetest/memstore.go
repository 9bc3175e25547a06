// Package storetest provides an in-memory store.Store for package tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/microblog/internal/model"
	"github.com/alfredjeanlab/microblog/internal/store"
)

// MemStore is a store.Store held in memory. Transactions serialize on a
// single mutex and work on a copy that replaces the live data on commit.
//
// The On* hooks, when set, run before the matching operation and abort it
// with their error.
type MemStore struct {
	mu   sync.Mutex
	data *memData

	OnInsertRawEvent func(raw *model.RawEvent) error
	OnCreateMessage  func(msg *model.MessageEntity) error
	OnListMessageIDs func() error
	PingErr          error

	commits int
}

var _ store.Store = (*MemStore)(nil)

type memData struct {
	nextID  int64
	sources []*model.DataSource
	raws    []*model.RawEvent
	msgs    []*model.MessageEntity
}

func (d *memData) clone() *memData {
	c := &memData{nextID: d.nextID}
	for _, ds := range d.sources {
		v := *ds
		c.sources = append(c.sources, &v)
	}
	for _, r := range d.raws {
		v := *r
		c.raws = append(c.raws, &v)
	}
	for _, m := range d.msgs {
		v := *m
		c.msgs = append(c.msgs, &v)
	}
	return c
}

func (d *memData) id() int64 {
	d.nextID++
	return d.nextID
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: &memData{}}
}

// Commits reports how many transactions committed.
func (m *MemStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Raws returns a snapshot of every raw record in insertion order.
func (m *MemStore) Raws() []model.RawEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.RawEvent, 0, len(m.data.raws))
	for _, r := range m.data.raws {
		out = append(out, *r)
	}
	return out
}

// Messages returns a snapshot of every message entity in id order.
func (m *MemStore) Messages() []model.MessageEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.MessageEntity, 0, len(m.data.msgs))
	for _, msg := range m.data.msgs {
		out = append(out, *msg)
	}
	return out
}

func (m *MemStore) live() *memTx {
	return &memTx{hooks: m, data: m.data}
}

func (m *MemStore) GetDataSourceByName(ctx context.Context, name string) (*model.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().GetDataSourceByName(ctx, name)
}

func (m *MemStore) CreateDataSource(ctx context.Context, ds *model.DataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().CreateDataSource(ctx, ds)
}

func (m *MemStore) InsertRawEvent(ctx context.Context, raw *model.RawEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().InsertRawEvent(ctx, raw)
}

func (m *MemStore) ListUnprocessed(ctx context.Context, dataSourceID int64, limit int) ([]*model.RawEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().ListUnprocessed(ctx, dataSourceID, limit)
}

func (m *MemStore) QuarantineRawEvent(ctx context.Context, rawID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().QuarantineRawEvent(ctx, rawID, reason)
}

func (m *MemStore) CreateMessage(ctx context.Context, msg *model.MessageEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().CreateMessage(ctx, msg)
}

func (m *MemStore) ListMessages(ctx context.Context, afterID int64, limit int) ([]*model.MessageEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().ListMessages(ctx, afterID, limit)
}

func (m *MemStore) ListMessageIDs(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().ListMessageIDs(ctx)
}

func (m *MemStore) GetMessageViews(ctx context.Context, ids []int64) ([]*model.MessageView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().GetMessageViews(ctx, ids)
}

func (m *MemStore) GetSourceStats(ctx context.Context, dataSourceID int64) (*model.SourceStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live().GetSourceStats(ctx, dataSourceID)
}

// RunInTransaction runs fn against a copy of the data and swaps it in when
// fn returns nil.
func (m *MemStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{hooks: m, data: m.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.data = tx.data
	m.commits++
	return nil
}

func (m *MemStore) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MemStore) Close() error {
	return nil
}

// memTx operates on one memData without locking; the caller holds MemStore.mu.
type memTx struct {
	hooks *MemStore
	data  *memData
}

func (t *memTx) GetDataSourceByName(_ context.Context, name string) (*model.DataSource, error) {
	for _, ds := range t.data.sources {
		if ds.Name == name {
			v := *ds
			return &v, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) CreateDataSource(ctx context.Context, ds *model.DataSource) error {
	if _, err := t.GetDataSourceByName(ctx, ds.Name); err == nil {
		return store.ErrConflict
	}
	ds.ID = t.data.id()
	ds.CreatedAt = time.Now().UTC()
	v := *ds
	t.data.sources = append(t.data.sources, &v)
	return nil
}

func (t *memTx) InsertRawEvent(_ context.Context, raw *model.RawEvent) error {
	if t.hooks.OnInsertRawEvent != nil {
		if err := t.hooks.OnInsertRawEvent(raw); err != nil {
			return err
		}
	}
	raw.ID = t.data.id()
	v := *raw
	t.data.raws = append(t.data.raws, &v)
	return nil
}

func (t *memTx) ListUnprocessed(_ context.Context, dataSourceID int64, limit int) ([]*model.RawEvent, error) {
	var out []*model.RawEvent
	for _, r := range t.data.raws {
		if r.DataSourceID == dataSourceID && !r.Processed() && !r.Quarantined() {
			v := *r
			out = append(out, &v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) QuarantineRawEvent(_ context.Context, rawID int64, reason string) error {
	for _, r := range t.data.raws {
		if r.ID == rawID && !r.Processed() {
			now := time.Now().UTC()
			r.QuarantinedAt = &now
			r.QuarantineReason = reason
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *memTx) CreateMessage(_ context.Context, msg *model.MessageEntity) error {
	if t.hooks.OnCreateMessage != nil {
		if err := t.hooks.OnCreateMessage(msg); err != nil {
			return err
		}
	}
	var raw *model.RawEvent
	for _, r := range t.data.raws {
		if r.ID == msg.RawID {
			raw = r
			break
		}
	}
	if raw == nil || raw.Processed() {
		return fmt.Errorf("link raw event %d: %w", msg.RawID, store.ErrAlreadyProcessed)
	}
	msg.ID = t.data.id()
	v := *msg
	t.data.msgs = append(t.data.msgs, &v)
	entityID := msg.ID
	raw.EntityID = &entityID
	return nil
}

func (t *memTx) ListMessages(_ context.Context, afterID int64, limit int) ([]*model.MessageEntity, error) {
	var out []*model.MessageEntity
	for _, m := range t.data.msgs {
		if len(out) >= limit {
			break
		}
		if m.ID > afterID {
			v := *m
			out = append(out, &v)
		}
	}
	return out, nil
}

func (t *memTx) ListMessageIDs(_ context.Context) ([]int64, error) {
	if t.hooks.OnListMessageIDs != nil {
		if err := t.hooks.OnListMessageIDs(); err != nil {
			return nil, err
		}
	}
	ids := make([]int64, 0, len(t.data.msgs))
	for _, m := range t.data.msgs {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (t *memTx) GetMessageViews(_ context.Context, ids []int64) ([]*model.MessageView, error) {
	names := make(map[int64]string, len(t.data.sources))
	for _, ds := range t.data.sources {
		names[ds.ID] = ds.Name
	}
	byID := make(map[int64]*model.MessageEntity, len(t.data.msgs))
	for _, m := range t.data.msgs {
		byID[m.ID] = m
	}
	views := make([]*model.MessageView, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			views = append(views, &model.MessageView{DataSourceName: names[m.DataSourceID], Message: m.Message})
		}
	}
	return views, nil
}

func (t *memTx) GetSourceStats(_ context.Context, dataSourceID int64) (*model.SourceStats, error) {
	var stats *model.SourceStats
	for _, ds := range t.data.sources {
		if ds.ID == dataSourceID {
			stats = &model.SourceStats{DataSource: ds.Name}
		}
	}
	if stats == nil {
		return nil, store.ErrNotFound
	}
	for _, r := range t.data.raws {
		if r.DataSourceID != dataSourceID {
			continue
		}
		stats.Raw++
		switch {
		case r.Processed():
		case r.Quarantined():
			stats.Quarantined++
		default:
			stats.Unprocessed++
		}
	}
	for _, m := range t.data.msgs {
		if m.DataSourceID == dataSourceID {
			stats.Messages++
		}
	}
	return stats, nil
}

func (t *memTx) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *memTx) Ping(context.Context) error { return nil }
func (t *memTx) Close() error               { return nil }
