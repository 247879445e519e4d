package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("/home/user/.local/share/fitrec")
	original.Timezone = "Europe/Berlin"
	original.Archive = ArchiveConfig{Type: "s3", S3Bucket: "health", S3Prefix: "raw/", S3Region: "eu-central-1"}
	original.Matching.Meal = &Duration{20 * time.Minute}
	original.Metrics.TextfilePath = "/var/lib/node_exporter/fitrec.prom"

	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.Timezone != "Europe/Berlin" {
		t.Errorf("Timezone = %q, want Europe/Berlin", got.Timezone)
	}
	if got.Archive.Type != "s3" || got.Archive.S3Bucket != "health" {
		t.Errorf("Archive = %+v", got.Archive)
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want sqlite", got.Database.Type)
	}
	if got.Matching.Meal == nil || got.Matching.Meal.Duration != 20*time.Minute {
		t.Errorf("Matching.Meal = %v, want 20m", got.Matching.Meal)
	}
	if got.Matching.Weight != nil {
		t.Errorf("Matching.Weight = %v, want unset", got.Matching.Weight)
	}
	if got.Import.Concurrency != 4 {
		t.Errorf("Import.Concurrency = %d, want 4", got.Import.Concurrency)
	}
	if got.Metrics.TextfilePath != original.Metrics.TextfilePath {
		t.Errorf("Metrics.TextfilePath = %q", got.Metrics.TextfilePath)
	}
}

func TestManager_ReadMatching(t *testing.T) {
	input := `
[matching]
weight = "90s"
workout = "0s"
`
	cfg, err := (&Manager{}).Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.Matching.Weight.Duration != 90*time.Second {
		t.Errorf("Weight = %v, want 90s", cfg.Matching.Weight)
	}
	if cfg.Matching.Workout == nil || cfg.Matching.Workout.Duration != 0 {
		t.Errorf("Workout = %v, want explicit 0s", cfg.Matching.Workout)
	}

	for _, bad := range []string{`weight = "soon"`, `weight = "-1m"`} {
		if _, err := (&Manager{}).Read(strings.NewReader("[matching]\n" + bad)); err == nil {
			t.Errorf("Read(%s) expected error", bad)
		}
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/fitrec")

	if cfg.LogDir != "/data/fitrec/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/fitrec/log")
	}
	if cfg.Database.DataDir != "/data/fitrec/db" {
		t.Errorf("Database.DataDir = %q", cfg.Database.DataDir)
	}
	if cfg.Archive.FSRoot != "/data/fitrec/archive" {
		t.Errorf("Archive.FSRoot = %q", cfg.Archive.FSRoot)
	}
	if cfg.Encryption.PublicKeyPath != "/data/fitrec/keys/fitrec.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q", cfg.Encryption.PublicKeyPath)
	}
}

func TestConfig_Location(t *testing.T) {
	cfg := &Config{}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location() = %v, %v; want UTC", loc, err)
	}

	cfg.Timezone = "Not/AZone"
	if _, err := cfg.Location(); err == nil {
		t.Error("Location() expected error for unknown zone")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fitrec.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fitrec.toml")

		if err := Init(path, NewConfig(dir)); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, NewConfig(dir)); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fitrec.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want memory", got.Database.Type)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/fitrec.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
