package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fitrec/internal/config"
	"fitrec/internal/database"
	"fitrec/internal/encryption"
	"fitrec/internal/fs"
	"fitrec/internal/model"
	"fitrec/internal/observability"
	"fitrec/internal/recon"
	"fitrec/internal/vault"
)

// FitrecApp is the application layer between the CLI and the recon engine.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw paths and flag values, and flushes metrics on Close.
type FitrecApp struct {
	cfg       *config.Config
	db        recon.Database
	vault     recon.Vault
	encryptor recon.Encryptor
	files     *fs.ImportResolver
	metrics   *observability.Metrics
	engine    *recon.Engine
	location  *time.Location
	clock     recon.Clock
	logFile   *os.File
}

// NewFitrecApp creates a fully wired FitrecApp from the given config.
// command names the CLI command being run and tags every log line of the
// run. The caller must call Close when done.
func NewFitrecApp(ctx context.Context, cfg *config.Config, command string) (*FitrecApp, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	v, err := vault.NewVaultFromConfig(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if sdb, ok := db.(*database.SQLiteDatabase); ok {
		if err := sdb.CheckMigrations(); err != nil {
			db.Close()
			return nil, fmt.Errorf("database schema out of date: %w", err)
		}
	}

	runID := time.Now().UTC().Format("20060102T150405Z") + "-" + command
	logger, logFile, err := newLogger(cfg.LogDir, runID, slog.LevelWarn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &FitrecApp{
		cfg:       cfg,
		db:        db,
		vault:     v,
		encryptor: enc,
		files:     fs.NewImportResolver(cfg.Import.Exclude, 0),
		metrics:   observability.NewMetrics(),
		location:  loc,
		clock:     recon.RealClock{},
		logFile:   logFile,
	}
	a.engine = recon.NewEngine(db, v, enc, &slogAdapter{l: logger}, a.clock, recon.UUIDGenerator{},
		recon.WithMatching(matchingFromConfig(cfg.Matching)),
		recon.WithLocation(loc),
		recon.WithRecorder(a.metrics),
		recon.WithConcurrency(cfg.Import.Concurrency),
	)
	return a, nil
}

// matchingFromConfig overlays configured tolerances on the defaults.
func matchingFromConfig(mc config.MatchingConfig) recon.Matching {
	m := recon.DefaultMatching()
	set := func(dst *time.Duration, d *config.Duration) {
		if d != nil {
			*dst = d.Duration
		}
	}
	set(&m.Weight, mc.Weight)
	set(&m.BodyFat, mc.BodyFat)
	set(&m.Workout, mc.Workout)
	set(&m.Sleep, mc.Sleep)
	set(&m.Meal, mc.Meal)
	return m
}

// ImportPaths resolves each path to import files and imports them
// concurrently. A directory contributes every file with a recognized
// format; recursive includes subdirectories. A non-empty source overrides
// format detection. Batches are returned for every file that was read,
// even when err is non-nil.
func (a *FitrecApp) ImportPaths(ctx context.Context, paths []string, recursive bool, source model.Source) ([]*recon.ImportBatch, error) {
	var reqs []recon.ImportRequest
	for _, p := range paths {
		files, err := a.files.Resolve(p, recursive, source)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		for _, f := range files {
			data, err := a.files.Read(f)
			if err != nil {
				return nil, err
			}
			reqs = append(reqs, recon.ImportRequest{
				Source:   f.Source,
				FileName: filepath.Base(f.Path),
				Data:     data,
			})
		}
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no importable files found")
	}
	return a.engine.ImportFiles(ctx, reqs)
}

// ManualEntry is a measurement typed in by the user.
type ManualEntry struct {
	Kind model.Kind
	// Value is kilograms for weight, percent for body fat, minutes for a
	// workout, hours for sleep and calories for a meal.
	Value float64
	At    time.Time
	Name  string   // workout title or meal name
	Items []string // meal item names
	Note  string
}

// LogRecord submits a manual entry through the resolver.
func (a *FitrecApp) LogRecord(ctx context.Context, e ManualEntry) (recon.Outcome, error) {
	rec, err := a.manualRecord(e)
	if err != nil {
		return recon.Outcome{}, err
	}
	return a.engine.Submit(ctx, rec)
}

func (a *FitrecApp) manualRecord(e ManualEntry) (*model.Record, error) {
	at := e.At
	if at.IsZero() {
		at = a.clock.Now()
	}
	if e.Value < 0 {
		return nil, fmt.Errorf("value must not be negative")
	}

	var fields model.Fields
	switch e.Kind {
	case model.KindWeight:
		if e.Value == 0 {
			return nil, fmt.Errorf("weight requires a value in kg")
		}
		fields = &model.WeightFields{ValueKg: e.Value, Note: e.Note}
	case model.KindBodyFat:
		if e.Value == 0 || e.Value > 100 {
			return nil, fmt.Errorf("body fat requires a percentage between 0 and 100")
		}
		fields = &model.BodyFatFields{Percent: e.Value, Note: e.Note}
	case model.KindWorkout:
		fields = &model.WorkoutFields{Title: e.Name, DurationSec: e.Value * 60}
	case model.KindSleep:
		if e.Value == 0 {
			return nil, fmt.Errorf("sleep requires a duration in hours")
		}
		fields = &model.SleepFields{EndsAt: at.Add(time.Duration(e.Value * float64(time.Hour))).UTC()}
	case model.KindMeal:
		meal := &model.MealFields{Name: e.Name, Calories: e.Value}
		for _, name := range e.Items {
			meal.Items = append(meal.Items, model.MealItem{Name: name})
		}
		fields = meal
	default:
		return nil, fmt.Errorf("unknown record kind: %q", e.Kind)
	}

	return &model.Record{
		Kind:      e.Kind,
		Timestamp: at.UTC(),
		Source:    model.SourceManual,
		Fields:    fields,
	}, nil
}

// Location is the configured zone for times without an offset.
func (a *FitrecApp) Location() *time.Location {
	return a.location
}

// Records returns the most recent stored records of kind, or of all kinds
// when kind is empty.
func (a *FitrecApp) Records(ctx context.Context, kind model.Kind, limit int) ([]*model.Record, error) {
	return a.engine.ListRecords(ctx, kind, limit)
}

// History returns the most recent import batches.
func (a *FitrecApp) History(ctx context.Context, limit int) ([]*recon.ImportBatch, error) {
	return a.engine.GetHistory(ctx, limit)
}

// Batch returns one import batch, or nil if it does not exist.
func (a *FitrecApp) Batch(ctx context.Context, id string) (*recon.ImportBatch, error) {
	return a.engine.GetBatch(ctx, id)
}

// Reimport runs the archived raw file of a past batch through the engine
// again. passphrase is only called when the archive is encrypted.
func (a *FitrecApp) Reimport(ctx context.Context, batchID string, passphrase func() (string, error)) (*recon.ImportBatch, error) {
	prev, err := a.engine.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return nil, fmt.Errorf("batch not found: %s", batchID)
	}

	var decryptCtx recon.DecryptionContext
	if prev.ArchiveEncrypted {
		if a.encryptor == nil {
			return nil, fmt.Errorf("batch %s was archived encrypted but encryption is not configured", batchID)
		}
		pass, err := passphrase()
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		decryptCtx, err = a.encryptor.Unlock(pass)
		if err != nil {
			return nil, fmt.Errorf("unlocking archive key: %w", err)
		}
	}
	return a.engine.Reimport(ctx, batchID, decryptCtx)
}

// ErrEncryptionDisabled is returned by SetupEncryption when the config
// has no encryption type.
var ErrEncryptionDisabled = errors.New("encryption is disabled in the config")

// SetupEncryption generates the archive key pair, sealed with passphrase.
func (a *FitrecApp) SetupEncryption(passphrase string) error {
	if a.encryptor == nil {
		return ErrEncryptionDisabled
	}
	if err := a.encryptor.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up encryption: %w", err)
	}
	return nil
}

// CheckArchive verifies the archive vault is reachable and writable.
func (a *FitrecApp) CheckArchive() error {
	if a.vault == nil {
		return fmt.Errorf("no archive configured")
	}
	if err := a.vault.ValidateSetup(); err != nil {
		return fmt.Errorf("archive check failed: %w", err)
	}
	return nil
}

// Close writes the metrics textfile when configured and closes all resources.
func (a *FitrecApp) Close() error {
	var errs []error

	if path := a.cfg.Metrics.TextfilePath; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
