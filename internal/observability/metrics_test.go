package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"fitrec/internal/model"
	"fitrec/internal/recon"
)

func TestMetrics_RecordDecision(t *testing.T) {
	m := NewMetrics()
	m.RecordDecision(model.SourceImportApple, model.KindWeight, recon.ActionInsert)
	m.RecordDecision(model.SourceImportApple, model.KindWeight, recon.ActionInsert)
	m.RecordDecision(model.SourceChat, model.KindWeight, recon.ActionReplace)

	if got := promtest.ToFloat64(m.decisions.WithLabelValues("import_apple", "weight", "insert")); got != 2 {
		t.Errorf("insert decisions = %v, want 2", got)
	}
	if got := promtest.ToFloat64(m.decisions.WithLabelValues("chat", "weight", "replace")); got != 1 {
		t.Errorf("replace decisions = %v, want 1", got)
	}
}

func TestMetrics_RecordBatch(t *testing.T) {
	m := NewMetrics()
	finished := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	m.RecordBatch(&recon.ImportBatch{
		Source: model.SourceImportHevy, Status: recon.StatusCompleted,
		FinishedAt: finished, Inserted: 3, Merged: 1,
	})
	m.RecordError(model.SourceImportHevy, recon.CodeParse)

	if got := promtest.ToFloat64(m.batches.WithLabelValues("import_hevy", "completed")); got != 1 {
		t.Errorf("batches = %v, want 1", got)
	}
	if got := promtest.ToFloat64(m.lastBatch.WithLabelValues("import_hevy")); got != float64(finished.Unix()) {
		t.Errorf("last batch = %v, want %d", got, finished.Unix())
	}
	if got := promtest.ToFloat64(m.errors.WithLabelValues("import_hevy", "parse")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.RecordDecision(model.SourceManual, model.KindSleep, recon.ActionMerge)

	path := filepath.Join(t.TempDir(), "fitrec.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading textfile: %v", err)
	}
	want := `fitrec_resolver_decisions_total{action="merge",kind="sleep",source="manual"} 1`
	if !strings.Contains(string(data), want) {
		t.Errorf("textfile missing %q:\n%s", want, data)
	}

	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "fitrec.prom")); err == nil {
		t.Error("WriteTextfile() expected error for missing directory")
	}
}

func TestMetrics_RegistryIsPrivate(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordError(model.SourceImportApple, recon.CodeContainer)

	n, err := promtest.GatherAndCount(a.Registry(), "fitrec_import_errors_total")
	if err != nil || n != 1 {
		t.Errorf("GatherAndCount(a) = %d, %v; want 1", n, err)
	}
	n, err = promtest.GatherAndCount(b.Registry(), "fitrec_import_errors_total")
	if err != nil || n != 0 {
		t.Errorf("GatherAndCount(b) = %d, %v; want 0", n, err)
	}
}
