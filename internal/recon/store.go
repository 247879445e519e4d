package recon

import (
	"context"
	"time"

	"fitrec/internal/model"
)

// Store is the record store the resolver reads and writes. It is not assumed
// to offer multi-key transactions; the resolver sequences its own writes.
type Store interface {
	// Get returns the record with id, or nil if it does not exist.
	Get(ctx context.Context, kind model.Kind, id string) (*model.Record, error)

	// QueryByTimeWindow returns records of kind whose timestamp lies in
	// [from, to], both bounds inclusive.
	QueryByTimeWindow(ctx context.Context, kind model.Kind, from, to time.Time) ([]*model.Record, error)

	// Put inserts or overwrites the record with rec.ID.
	Put(ctx context.Context, rec *model.Record) error

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, kind model.Kind, id string) error
}

// History persists import batches.
type History interface {
	// SaveBatch inserts or updates a batch together with its error entries.
	SaveBatch(ctx context.Context, batch *ImportBatch) error

	// GetBatch returns a batch by id, or nil if it does not exist.
	GetBatch(ctx context.Context, id string) (*ImportBatch, error)

	// ListBatches returns the most recent batches, newest first.
	ListBatches(ctx context.Context, limit int) ([]*ImportBatch, error)
}

// Database is the full storage surface used by the engine.
type Database interface {
	Store
	History

	// ListRecords returns the most recent records, newest first. An empty
	// kind lists every kind.
	ListRecords(ctx context.Context, kind model.Kind, limit int) ([]*model.Record, error)

	Close() error
}
