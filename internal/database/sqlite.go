package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fitrec/internal/database/migrations"
	"fitrec/internal/model"
	"fitrec/internal/recon"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements recon.Database on SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

var _ recon.Database = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens the database at path and brings its schema up to
// date. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection pool.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	return db, nil
}

// Record operations

const recordColumns = `id, kind, occurred_at, captured_at, source, fields, supplements, batch_id`

func (s *SQLiteDatabase) Get(ctx context.Context, kind model.Kind, id string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE kind = ? AND id = ?`, kind, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteDatabase) QueryByTimeWindow(ctx context.Context, kind model.Kind, from, to time.Time) ([]*model.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE kind = ? AND occurred_at BETWEEN ? AND ?
		 ORDER BY occurred_at, id`,
		kind, toMillisCeil(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("querying %s records: %w", kind, err)
	}
	return scanRecords(rows)
}

func (s *SQLiteDatabase) Put(ctx context.Context, rec *model.Record) error {
	fields, err := model.MarshalFields(rec.Fields)
	if err != nil {
		return err
	}
	supplements, err := model.MarshalSupplements(rec.Supplements)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (id, kind, occurred_at, captured_at, source, fields, supplements, batch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			occurred_at = excluded.occurred_at,
			captured_at = excluded.captured_at,
			source = excluded.source,
			fields = excluded.fields,
			supplements = excluded.supplements,
			batch_id = excluded.batch_id`,
		rec.ID, rec.Kind, toMillis(rec.Timestamp), toMillis(rec.CapturedAt), rec.Source,
		string(fields), string(supplements), nullString(rec.BatchID), toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("writing record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteDatabase) Delete(ctx context.Context, kind model.Kind, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND id = ?`, kind, id); err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteDatabase) ListRecords(ctx context.Context, kind model.Kind, limit int) ([]*model.Record, error) {
	limit = sqlLimit(limit)
	var (
		rows *sql.Rows
		err  error
	)
	if kind == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+recordColumns+` FROM records ORDER BY occurred_at DESC, id LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+recordColumns+` FROM records WHERE kind = ? ORDER BY occurred_at DESC, id LIMIT ?`, kind, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return scanRecords(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.Record, error) {
	var (
		rec                 model.Record
		occurred, captured  int64
		fields, supplements string
		batchID             sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Kind, &occurred, &captured, &rec.Source, &fields, &supplements, &batchID); err != nil {
		return nil, err
	}
	rec.Timestamp = fromMillis(occurred)
	rec.CapturedAt = fromMillis(captured)
	rec.BatchID = batchID.String

	var err error
	if rec.Fields, err = model.UnmarshalFields(rec.Kind, []byte(fields)); err != nil {
		return nil, err
	}
	if rec.Supplements, err = model.UnmarshalSupplements([]byte(supplements)); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*model.Record, error) {
	defer rows.Close()

	var out []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return out, nil
}

// Import history

func (s *SQLiteDatabase) SaveBatch(ctx context.Context, b *recon.ImportBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO import_batches (id, source, file_name, checksum, archive_key, archive_encrypted,
			status, failure_code, failure_message, started_at, finished_at,
			inserted, replaced, merged, discarded, skipped, folded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			archive_key = excluded.archive_key,
			archive_encrypted = excluded.archive_encrypted,
			status = excluded.status,
			failure_code = excluded.failure_code,
			failure_message = excluded.failure_message,
			finished_at = excluded.finished_at,
			inserted = excluded.inserted,
			replaced = excluded.replaced,
			merged = excluded.merged,
			discarded = excluded.discarded,
			skipped = excluded.skipped,
			folded = excluded.folded`,
		b.ID, b.Source, b.FileName, b.Checksum, b.ArchiveKey, b.ArchiveEncrypted,
		b.Status, b.FailureCode, b.FailureMessage, toMillis(b.StartedAt), nullMillis(b.FinishedAt),
		b.Inserted, b.Replaced, b.Merged, b.DiscardedAsDuplicate, b.Skipped, b.Folded,
	)
	if err != nil {
		return fmt.Errorf("writing batch %s: %w", b.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM import_errors WHERE batch_id = ?`, b.ID); err != nil {
		return fmt.Errorf("clearing batch errors: %w", err)
	}
	for i, e := range b.Errors {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO import_errors (batch_id, seq, raw_ref, code, message) VALUES (?, ?, ?, ?, ?)`,
			b.ID, i, e.RawEntryRef, e.Code, e.Message)
		if err != nil {
			return fmt.Errorf("writing batch error %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

const batchColumns = `id, source, file_name, checksum, archive_key, archive_encrypted, status,
	failure_code, failure_message, started_at, finished_at,
	inserted, replaced, merged, discarded, skipped, folded`

func (s *SQLiteDatabase) GetBatch(ctx context.Context, id string) (*recon.ImportBatch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM import_batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting batch %s: %w", id, err)
	}
	if err := s.loadBatchErrors(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *SQLiteDatabase) ListBatches(ctx context.Context, limit int) ([]*recon.ImportBatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM import_batches ORDER BY started_at DESC, id DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}

	var out []*recon.ImportBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating batches: %w", err)
	}
	rows.Close()

	// Errors are loaded after the cursor is closed so a single-connection
	// pool is never asked for a second connection.
	for _, b := range out {
		if err := s.loadBatchErrors(ctx, b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteDatabase) loadBatchErrors(ctx context.Context, b *recon.ImportBatch) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_ref, code, message FROM import_errors WHERE batch_id = ? ORDER BY seq`, b.ID)
	if err != nil {
		return fmt.Errorf("loading errors of batch %s: %w", b.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e recon.ErrorEntry
		if err := rows.Scan(&e.RawEntryRef, &e.Code, &e.Message); err != nil {
			return fmt.Errorf("scanning batch error: %w", err)
		}
		b.Errors = append(b.Errors, e)
	}
	return rows.Err()
}

func scanBatch(row scanner) (*recon.ImportBatch, error) {
	var (
		b        recon.ImportBatch
		started  int64
		finished sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.Source, &b.FileName, &b.Checksum, &b.ArchiveKey, &b.ArchiveEncrypted, &b.Status,
		&b.FailureCode, &b.FailureMessage, &started, &finished,
		&b.Inserted, &b.Replaced, &b.Merged, &b.DiscardedAsDuplicate, &b.Skipped, &b.Folded)
	if err != nil {
		return nil, err
	}
	b.StartedAt = fromMillis(started)
	if finished.Valid {
		b.FinishedAt = fromMillis(finished.Int64)
	}
	return &b, nil
}

// Path returns the file path of the database, empty for in-memory ones.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies that the schema is at the latest version.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// toMillisCeil rounds a lower bound up. Stored timestamps have millisecond
// precision, so this keeps inclusive bounds exact.
func toMillisCeil(t time.Time) int64 {
	ms := t.UnixMilli()
	if t.Sub(time.UnixMilli(ms)) > 0 {
		ms++
	}
	return ms
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(t), Valid: true}
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
