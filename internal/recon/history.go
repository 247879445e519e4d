package recon

import (
	"context"
	"fmt"

	"fitrec/internal/model"
)

// GetHistory returns the most recent import batches, newest first.
func (e *Engine) GetHistory(ctx context.Context, limit int) ([]*ImportBatch, error) {
	batches, err := e.database.ListBatches(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	return batches, nil
}

// GetBatch returns one batch, or nil if it does not exist.
func (e *Engine) GetBatch(ctx context.Context, id string) (*ImportBatch, error) {
	b, err := e.database.GetBatch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting batch %s: %w", id, err)
	}
	return b, nil
}

// ListRecords returns the most recent stored records of kind, or of every
// kind when kind is empty.
func (e *Engine) ListRecords(ctx context.Context, kind model.Kind, limit int) ([]*model.Record, error) {
	recs, err := e.database.ListRecords(ctx, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return recs, nil
}

// Reimport runs the archived raw file of a past batch through the engine
// again as a new batch. decryptCtx is required when the archive is
// encrypted and ignored otherwise.
func (e *Engine) Reimport(ctx context.Context, batchID string, decryptCtx DecryptionContext) (*ImportBatch, error) {
	prev, err := e.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, fmt.Errorf("batch not found: %s", batchID)
	}

	raw, err := e.loadArchive(prev, decryptCtx)
	if err != nil {
		return nil, fmt.Errorf("loading archive of batch %s: %w", batchID, err)
	}

	e.logger.Info("reimport started", "previous_batch", batchID)
	return e.ImportFile(ctx, prev.Source, raw, prev.FileName)
}
