package recon

import (
	"time"

	"fitrec/internal/model"
)

// Status is the lifecycle state of an import batch.
type Status string

const (
	StatusPending   Status = "pending"
	StatusParsing   Status = "parsing"
	StatusResolving Status = "resolving"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Error codes recorded on batches.
const (
	CodeParse            = "parse"
	CodeCanonicalization = "canonicalization"
	CodeStorage          = "storage"
	CodeContainer        = "container"
	CodeCancelled        = "cancelled"
)

// ErrorEntry is one per-record failure within a batch.
type ErrorEntry struct {
	RawEntryRef string
	Code        string
	Message     string
}

// ImportBatch is the history record of one file import.
type ImportBatch struct {
	ID       string
	Source   model.Source
	FileName string
	Checksum string

	// ArchiveKey locates the raw file in the vault; empty when the file was
	// not archived.
	ArchiveKey       string
	ArchiveEncrypted bool

	Status         Status
	FailureCode    string
	FailureMessage string
	StartedAt      time.Time
	FinishedAt     time.Time

	Inserted             int
	Replaced             int
	Merged               int
	DiscardedAsDuplicate int
	Skipped              int
	// Folded counts stored duplicates removed while resolving, on top of
	// the record each Replace supersedes.
	Folded int

	Errors []ErrorEntry
}

// Processed returns how many records reached a decision.
func (b *ImportBatch) Processed() int {
	return b.Inserted + b.Replaced + b.Merged + b.DiscardedAsDuplicate
}

func (b *ImportBatch) count(out Outcome) {
	b.Folded += out.Folded
	switch out.Action {
	case ActionInsert:
		b.Inserted++
	case ActionReplace:
		b.Replaced++
	case ActionMerge:
		b.Merged++
	case ActionDiscard:
		b.DiscardedAsDuplicate++
	}
}

func (b *ImportBatch) addError(ref, code, msg string) {
	b.Errors = append(b.Errors, ErrorEntry{RawEntryRef: ref, Code: code, Message: msg})
}

func (b *ImportBatch) fail(code string, err error, at time.Time) {
	b.Status = StatusFailed
	b.FailureCode = code
	b.FailureMessage = err.Error()
	b.FinishedAt = at
}

// Recorder receives engine events for metrics.
type Recorder interface {
	RecordDecision(source model.Source, kind model.Kind, action Action)
	RecordError(source model.Source, code string)
	RecordBatch(batch *ImportBatch)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) RecordDecision(model.Source, model.Kind, Action) {}
func (NopRecorder) RecordError(model.Source, string)                {}
func (NopRecorder) RecordBatch(*ImportBatch)                        {}
