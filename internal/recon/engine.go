// Package recon resolves canonical fitness records against the record store
// and orchestrates file imports.
//
// Every record passes through the same decision: find existing records of
// the same kind inside a tolerance window, fold them to one survivor, then
// Insert, Replace, Merge or Discard. Authoritative sources (chat, manual)
// always win over imports, imports only ever supplement them, and within a
// category the more detailed and then more recent record wins.
package recon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fitrec/internal/canon"
	"fitrec/internal/decode"
	"fitrec/internal/model"
)

// Engine is the import and reconciliation service used by the CLI and by
// the chat layer.
type Engine struct {
	database  Database
	vault     Vault
	encryptor Encryptor
	resolver  *Resolver
	canon     *canon.Canonicalizer
	recorder  Recorder
	logger    Logger
	clock     Clock
	idgen     IDGenerator

	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMatching sets the per-kind matching tolerances.
func WithMatching(m Matching) Option {
	return func(e *Engine) { e.resolver.matching = m }
}

// WithLocation sets the location for timestamps without an offset.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.canon.Location = loc }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithConcurrency limits how many files ImportFiles processes at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine creates an Engine. vault and encryptor may be nil, in which case
// raw files are not archived, or archived unencrypted.
func NewEngine(database Database, vault Vault, encryptor Encryptor, logger Logger, clock Clock, idgen IDGenerator, opts ...Option) *Engine {
	e := &Engine{
		database:    database,
		vault:       vault,
		encryptor:   encryptor,
		resolver:    NewResolver(database, DefaultMatching(), clock, idgen, logger),
		canon:       canon.New(time.UTC),
		recorder:    NopRecorder{},
		logger:      logger,
		clock:       clock,
		idgen:       idgen,
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ImportFile decodes raw as a file from source and resolves every entry.
// The returned batch is never nil. An error is returned when the file is
// unreadable as a whole, when ctx is cancelled mid-batch, or when the batch
// history cannot be saved; per-record failures are recorded on the batch.
func (e *Engine) ImportFile(ctx context.Context, source model.Source, raw []byte, fileName string) (*ImportBatch, error) {
	batch := &ImportBatch{
		ID:        e.idgen.New(),
		Source:    source,
		FileName:  fileName,
		Checksum:  Checksum(raw),
		Status:    StatusPending,
		StartedAt: e.clock.Now().UTC(),
	}
	e.logger.Info("import started", "batch", batch.ID, "source", source, "file", fileName, "bytes", len(raw))

	if err := e.database.SaveBatch(ctx, batch); err != nil {
		return batch, fmt.Errorf("saving batch: %w", err)
	}

	runErr := e.runBatch(ctx, batch, source, raw)

	// History is written even when the caller's context is gone.
	if err := e.database.SaveBatch(context.WithoutCancel(ctx), batch); err != nil {
		return batch, errors.Join(runErr, fmt.Errorf("saving batch: %w", err))
	}
	e.recorder.RecordBatch(batch)

	e.logger.Info("import finished",
		"batch", batch.ID,
		"status", batch.Status,
		"inserted", batch.Inserted,
		"replaced", batch.Replaced,
		"merged", batch.Merged,
		"discarded", batch.DiscardedAsDuplicate,
		"skipped", batch.Skipped,
		"errors", len(batch.Errors),
	)
	return batch, runErr
}

func (e *Engine) runBatch(ctx context.Context, batch *ImportBatch, source model.Source, raw []byte) error {
	dec, err := decode.ForSource(source)
	if err != nil {
		batch.fail(CodeContainer, err, e.clock.Now().UTC())
		e.recorder.RecordError(source, CodeContainer)
		return err
	}

	e.archiveRaw(batch, raw)

	batch.Status = StatusParsing
	stream, err := dec.Decode(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		e.logger.Error("import file unreadable", "batch", batch.ID, "error", err)
		batch.fail(CodeContainer, err, e.clock.Now().UTC())
		e.recorder.RecordError(source, CodeContainer)
		return fmt.Errorf("decoding %s: %w", batch.FileName, err)
	}

	batch.Status = StatusResolving
	for entry, perr := range stream.All() {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("import cancelled", "batch", batch.ID, "processed", batch.Processed())
			batch.fail(CodeCancelled, err, e.clock.Now().UTC())
			e.recorder.RecordError(source, CodeCancelled)
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		if perr != nil {
			ref := ""
			var pe *decode.ParseError
			if errors.As(perr, &pe) {
				ref = pe.Ref
			}
			e.recordError(batch, ref, CodeParse, perr)
			continue
		}

		rec, err := e.canon.Canonicalize(entry, source)
		if err != nil {
			e.recordError(batch, entry.Ref(), CodeCanonicalization, err)
			continue
		}
		rec.BatchID = batch.ID

		out, err := e.resolver.Resolve(ctx, rec, entry.Ref())
		if err != nil {
			e.recordError(batch, entry.Ref(), CodeStorage, err)
			continue
		}
		batch.count(out)
		e.recorder.RecordDecision(source, rec.Kind, out.Action)
	}

	batch.Skipped = stream.Skipped()
	batch.Status = StatusCompleted
	batch.FinishedAt = e.clock.Now().UTC()
	return nil
}

func (e *Engine) recordError(batch *ImportBatch, ref, code string, err error) {
	e.logger.Warn("record failed", "batch", batch.ID, "ref", ref, "code", code, "error", err)
	batch.addError(ref, code, err.Error())
	e.recorder.RecordError(batch.Source, code)
}

// ImportRequest is one file to import.
type ImportRequest struct {
	Source   model.Source
	FileName string
	Data     []byte
}

// ImportFiles imports independent files concurrently. Batches are returned
// in request order; a failure in one file does not stop the others.
func (e *Engine) ImportFiles(ctx context.Context, reqs []ImportRequest) ([]*ImportBatch, error) {
	batches := make([]*ImportBatch, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			b, err := e.ImportFile(ctx, req.Source, req.Data, req.FileName)
			batches[i] = b
			if err != nil {
				errs[i] = fmt.Errorf("importing %s: %w", req.FileName, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return batches, errors.Join(errs...)
}

// Submit resolves a single record from an authoritative source, such as a
// chat message or a manual entry.
func (e *Engine) Submit(ctx context.Context, rec *model.Record) (Outcome, error) {
	if rec.Source.IsImport() {
		return Outcome{}, fmt.Errorf("source %s must be imported from a file", rec.Source)
	}
	rec = rec.Clone()
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = e.clock.Now().UTC()
	}

	out, err := e.resolver.Resolve(ctx, rec, "")
	if err != nil {
		e.recorder.RecordError(rec.Source, CodeStorage)
		return Outcome{}, fmt.Errorf("resolving %s record: %w", rec.Kind, err)
	}
	e.recorder.RecordDecision(rec.Source, rec.Kind, out.Action)
	e.logger.Info("record submitted", "kind", rec.Kind, "source", rec.Source, "action", out.Action, "record", out.RecordID)
	return out, nil
}
