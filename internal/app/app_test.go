package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fitrec/internal/config"
	"fitrec/internal/model"
	"fitrec/internal/recon"
	"fitrec/internal/testutil"
)

var base = time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig(dir)
	cfg.Timezone = "UTC"
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Archive = config.ArchiveConfig{Type: "memory"}
	cfg.Encryption = config.EncryptionConfig{Type: "test"}
	cfg.Metrics.TextfilePath = filepath.Join(dir, "fitrec.prom")
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *FitrecApp {
	t.Helper()
	a, err := NewFitrecApp(context.Background(), cfg, "test")
	if err != nil {
		t.Fatalf("NewFitrecApp() error = %v", err)
	}
	return a
}

// writeExports lays out one health export and one workout log in a fresh directory.
func writeExports(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	var weights []string
	for i := range 5 {
		weights = append(weights, testutil.BodyMassRecord(base.Add(time.Duration(i)*time.Hour), 70+float64(i)/10, "kg"))
	}
	zip := testutil.HealthExportZip(t, map[string]string{
		"apple_health_export/export.xml": testutil.HealthExportDoc(weights...),
	})

	set := testutil.WorkoutLogSet{Title: "Legs", Start: base.Add(10 * time.Hour), End: base.Add(11 * time.Hour), Exercise: "Squat", WeightKg: 100, Reps: 5}
	second := set
	second.SetIndex = 1
	csv := testutil.WorkoutLogCSV(t, testutil.WorkoutLogHeader, set.Row(), second.Row())

	if err := os.WriteFile(filepath.Join(dir, "export.zip"), zip, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "workouts.csv"), csv, 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestNewFitrecApp_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad timezone", func(c *config.Config) { c.Timezone = "Mars/Olympus" }},
		{"bad archive", func(c *config.Config) { c.Archive.Type = "tape" }},
		{"bad encryption", func(c *config.Config) { c.Encryption.Type = "rot13" }},
		{"bad database", func(c *config.Config) { c.Database.Type = "postgres" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			if _, err := NewFitrecApp(context.Background(), cfg, "test"); err == nil {
				t.Error("NewFitrecApp() expected error")
			}
		})
	}
}

func TestFitrecApp_ImportPaths(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)
	ctx := context.Background()

	batches, err := a.ImportPaths(ctx, []string{writeExports(t)}, false, "")
	if err != nil {
		t.Fatalf("ImportPaths() error = %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("len(batches) = %d, want 2", len(batches))
	}
	if batches[0].Source != model.SourceImportApple || batches[0].Inserted != 5 {
		t.Errorf("health export batch = %+v", batches[0])
	}
	if batches[1].Source != model.SourceImportHevy || batches[1].Inserted != 1 {
		t.Errorf("workout log batch = %+v", batches[1])
	}
	if batches[0].ArchiveKey == "" || !batches[0].ArchiveEncrypted {
		t.Errorf("batch not archived encrypted: %+v", batches[0])
	}

	history, err := a.History(ctx, 10)
	if err != nil || len(history) != 2 {
		t.Errorf("History() = %d batches, %v", len(history), err)
	}
	weights, err := a.Records(ctx, model.KindWeight, 0)
	if err != nil || len(weights) != 5 {
		t.Errorf("Records(weight) = %d records, %v", len(weights), err)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	prom, err := os.ReadFile(cfg.Metrics.TextfilePath)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	if !strings.Contains(string(prom), `fitrec_import_batches_total{source="import_hevy",status="completed"} 1`) {
		t.Errorf("metrics textfile missing batch counter:\n%s", prom)
	}
	if _, err := os.Stat(filepath.Join(cfg.LogDir, "fitrec.log")); err != nil {
		t.Errorf("log file not written: %v", err)
	}
}

func TestFitrecApp_ImportPaths_NothingToImport(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	defer a.Close()

	if _, err := a.ImportPaths(context.Background(), []string{t.TempDir()}, true, ""); err == nil {
		t.Error("ImportPaths() expected error for empty directory")
	}
	if _, err := a.ImportPaths(context.Background(), []string{"/no/such/export.zip"}, false, ""); err == nil {
		t.Error("ImportPaths() expected error for missing file")
	}
}

func TestFitrecApp_LogRecord(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	defer a.Close()
	ctx := context.Background()

	out, err := a.LogRecord(ctx, ManualEntry{Kind: model.KindWeight, Value: 71.3, At: base, Note: "after run"})
	if err != nil {
		t.Fatalf("LogRecord() error = %v", err)
	}
	if out.Action != recon.ActionInsert || out.RecordID == "" {
		t.Errorf("LogRecord() = %+v, want insert", out)
	}

	recs, _ := a.Records(ctx, model.KindWeight, 10)
	if len(recs) != 1 || recs[0].Source != model.SourceManual {
		t.Fatalf("Records() = %+v", recs)
	}

	out, err = a.LogRecord(ctx, ManualEntry{Kind: model.KindMeal, Value: 650, At: base, Name: "Lunch", Items: []string{"rice", "chicken"}})
	if err != nil || out.Action != recon.ActionInsert {
		t.Errorf("LogRecord(meal) = %+v, %v", out, err)
	}
	meals, _ := a.Records(ctx, model.KindMeal, 10)
	if len(meals) != 1 || len(meals[0].Fields.(*model.MealFields).Items) != 2 {
		t.Errorf("meal items not stored: %+v", meals)
	}
}

func TestFitrecApp_LogRecord_Invalid(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	defer a.Close()

	for _, e := range []ManualEntry{
		{Kind: model.KindWeight},
		{Kind: model.KindWeight, Value: -1},
		{Kind: model.KindBodyFat, Value: 140},
		{Kind: model.KindSleep},
		{Kind: "steps", Value: 1000},
	} {
		if _, err := a.LogRecord(context.Background(), e); err == nil {
			t.Errorf("LogRecord(%+v) expected error", e)
		}
	}
}

func TestFitrecApp_ManualSleep(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	defer a.Close()

	rec, err := a.manualRecord(ManualEntry{Kind: model.KindSleep, Value: 7.5, At: base})
	if err != nil {
		t.Fatalf("manualRecord() error = %v", err)
	}
	if got := rec.Fields.(*model.SleepFields).EndsAt; !got.Equal(base.Add(7*time.Hour + 30*time.Minute)) {
		t.Errorf("EndsAt = %v", got)
	}
}

func TestFitrecApp_Reimport(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	defer a.Close()
	ctx := context.Background()

	batches, err := a.ImportPaths(ctx, []string{filepath.Join(writeExports(t), "export.zip")}, false, "")
	if err != nil {
		t.Fatalf("ImportPaths() error = %v", err)
	}

	prompts := 0
	again, err := a.Reimport(ctx, batches[0].ID, func() (string, error) {
		prompts++
		return "secret", nil
	})
	if err != nil {
		t.Fatalf("Reimport() error = %v", err)
	}
	if prompts != 1 {
		t.Errorf("passphrase prompted %d times, want 1", prompts)
	}
	if again.DiscardedAsDuplicate != 5 || again.Inserted != 0 {
		t.Errorf("reimport batch = %+v, want 5 discarded", again)
	}

	promptErr := errors.New("no tty")
	if _, err := a.Reimport(ctx, batches[0].ID, func() (string, error) { return "", promptErr }); !errors.Is(err, promptErr) {
		t.Errorf("Reimport() error = %v, want prompt error", err)
	}
	if _, err := a.Reimport(ctx, "missing", nil); err == nil {
		t.Error("Reimport() expected error for unknown batch")
	}
}

func TestFitrecApp_SetupEncryption(t *testing.T) {
	cfg := testConfig(t)
	cfg.Encryption = config.EncryptionConfig{Type: "none"}
	a := newTestApp(t, cfg)
	defer a.Close()

	if err := a.SetupEncryption("secret"); !errors.Is(err, ErrEncryptionDisabled) {
		t.Errorf("SetupEncryption() error = %v, want ErrEncryptionDisabled", err)
	}

	enc := newTestApp(t, testConfig(t))
	defer enc.Close()
	if err := enc.SetupEncryption("secret"); err != nil {
		t.Errorf("SetupEncryption() error = %v", err)
	}
}

func TestFitrecApp_CheckArchive(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	defer a.Close()
	if err := a.CheckArchive(); err != nil {
		t.Errorf("CheckArchive() error = %v", err)
	}

	cfg := testConfig(t)
	cfg.Archive = config.ArchiveConfig{Type: "none"}
	none := newTestApp(t, cfg)
	defer none.Close()
	if err := none.CheckArchive(); err == nil {
		t.Error("CheckArchive() expected error without archive")
	}
}

func TestMatchingFromConfig(t *testing.T) {
	m := matchingFromConfig(config.MatchingConfig{
		Weight:  &config.Duration{Duration: 5 * time.Minute},
		Workout: &config.Duration{},
	})
	def := recon.DefaultMatching()

	if m.Weight != 5*time.Minute {
		t.Errorf("Weight = %v, want 5m", m.Weight)
	}
	if m.Workout != 0 || m.Meal != def.Meal || m.Sleep != def.Sleep {
		t.Errorf("unset tolerances changed: %+v", m)
	}
}
