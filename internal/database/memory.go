package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"fitrec/internal/model"
	"fitrec/internal/recon"
)

// MemoryDatabase is a map-backed recon.Database. Records are cloned on the
// way in and out so callers never share state with the store.
type MemoryDatabase struct {
	mu      sync.RWMutex
	records map[string]*model.Record
	batches map[string]*recon.ImportBatch
}

var _ recon.Database = (*MemoryDatabase)(nil)

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		records: make(map[string]*model.Record),
		batches: make(map[string]*recon.ImportBatch),
	}
}

func (m *MemoryDatabase) Get(_ context.Context, kind model.Kind, id string) (*model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok || rec.Kind != kind {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *MemoryDatabase) QueryByTimeWindow(_ context.Context, kind model.Kind, from, to time.Time) ([]*model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Record
	for _, rec := range m.records {
		if rec.Kind != kind || rec.Timestamp.Before(from) || rec.Timestamp.After(to) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryDatabase) Put(_ context.Context, rec *model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryDatabase) Delete(_ context.Context, _ model.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MemoryDatabase) ListRecords(_ context.Context, kind model.Kind, limit int) ([]*model.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Record
	for _, rec := range m.records {
		if kind == "" || rec.Kind == kind {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryDatabase) SaveBatch(_ context.Context, b *recon.ImportBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[b.ID] = cloneBatch(b)
	return nil
}

func (m *MemoryDatabase) GetBatch(_ context.Context, id string) (*recon.ImportBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, nil
	}
	return cloneBatch(b), nil
}

func (m *MemoryDatabase) ListBatches(_ context.Context, limit int) ([]*recon.ImportBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*recon.ImportBatch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored records.
func (m *MemoryDatabase) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryDatabase) Close() error { return nil }

func cloneBatch(b *recon.ImportBatch) *recon.ImportBatch {
	c := *b
	c.Errors = append([]recon.ErrorEntry(nil), b.Errors...)
	return &c
}
