package testutil

import (
	"fmt"
	"sync"
	"time"
)

// ImportStart is when test import runs begin: the morning of the fixture
// readings, after the early samples were taken.
var ImportStart = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// RunSpacing separates consecutive runs on an ImportClock.
const RunSpacing = time.Minute

// ImportClock stamps batches and capture times. It only moves when a test
// starts a new run, so every record of one run shares a capture time.
type ImportClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewImportClock creates an ImportClock at ImportStart.
func NewImportClock() *ImportClock {
	return &ImportClock{now: ImportStart}
}

func (c *ImportClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NextRun steps the clock to the start of the following run, so records
// captured from here on compare as newer, and returns the new time.
func (c *ImportClock) NextRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(RunSpacing)
	return c.now
}

// RecordIDs hands out ids in the order records and batches are created:
// "rec-0001", "rec-0002", ...
type RecordIDs struct {
	mu sync.Mutex
	n  int
}

func NewRecordIDs() *RecordIDs {
	return &RecordIDs{}
}

func (g *RecordIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("rec-%04d", g.n)
}
