package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fitrec/internal/database"
	"fitrec/internal/model"
	"fitrec/internal/recon"
)

// NewTestDatabase creates an in-memory SQLite database with migrations
// applied. It is closed when the test completes.
func NewTestDatabase(t *testing.T) recon.Database {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// ErrInjected is returned by FailingDatabase for failed operations.
var ErrInjected = errors.New("injected storage failure")

// FailingDatabase wraps a Database and fails selected record writes.
type FailingDatabase struct {
	recon.Database

	mu sync.Mutex
	// FailPut reports whether Put of rec should fail.
	FailPut func(rec *model.Record) bool
	// FailQueryAt fails window queries that contain this instant.
	FailQueryAt time.Time
}

// NewFailingDatabase wraps db.
func NewFailingDatabase(db recon.Database) *FailingDatabase {
	return &FailingDatabase{Database: db}
}

func (f *FailingDatabase) Put(ctx context.Context, rec *model.Record) error {
	f.mu.Lock()
	fail := f.FailPut != nil && f.FailPut(rec)
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Database.Put(ctx, rec)
}

func (f *FailingDatabase) QueryByTimeWindow(ctx context.Context, kind model.Kind, from, to time.Time) ([]*model.Record, error) {
	f.mu.Lock()
	at := f.FailQueryAt
	f.mu.Unlock()
	if !at.IsZero() && !at.Before(from) && !at.After(to) {
		return nil, ErrInjected
	}
	return f.Database.QueryByTimeWindow(ctx, kind, from, to)
}
