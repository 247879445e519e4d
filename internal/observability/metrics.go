package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"fitrec/internal/model"
	"fitrec/internal/recon"
)

const namespace = "fitrec"

// Metrics records engine events in a private registry. fitrec runs as a
// short-lived CLI, so metrics are written to a node_exporter textfile at the
// end of a command rather than scraped.
type Metrics struct {
	registry *prometheus.Registry

	decisions    *prometheus.CounterVec
	errors       *prometheus.CounterVec
	batches      *prometheus.CounterVec
	lastBatch    *prometheus.GaugeVec
	batchRecords *prometheus.HistogramVec
}

var _ recon.Recorder = (*Metrics)(nil)

// NewMetrics creates and registers the import metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "decisions_total",
			Help:      "Resolver decisions grouped by source, kind and action.",
		}, []string{"source", "kind", "action"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "errors_total",
			Help:      "Per-record and per-file import errors grouped by source and code.",
		}, []string{"source", "code"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "batches_total",
			Help:      "Import batches grouped by source and final status.",
		}, []string{"source", "status"}),
		lastBatch: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "last_batch_finished_timestamp_seconds",
			Help:      "Unix timestamp of the most recent finished batch per source.",
		}, []string{"source"}),
		batchRecords: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "batch_records",
			Help:      "Records reaching a decision per batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"source"}),
	}
	m.registry.MustRegister(m.decisions, m.errors, m.batches, m.lastBatch, m.batchRecords)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordDecision(source model.Source, kind model.Kind, action recon.Action) {
	m.decisions.WithLabelValues(string(source), string(kind), action.String()).Inc()
}

func (m *Metrics) RecordError(source model.Source, code string) {
	m.errors.WithLabelValues(string(source), code).Inc()
}

func (m *Metrics) RecordBatch(batch *recon.ImportBatch) {
	source := string(batch.Source)
	m.batches.WithLabelValues(source, string(batch.Status)).Inc()
	if !batch.FinishedAt.IsZero() {
		m.lastBatch.WithLabelValues(source).Set(float64(batch.FinishedAt.Unix()))
	}
	m.batchRecords.WithLabelValues(source).Observe(float64(batch.Processed()))
}

// WriteTextfile writes the current metrics to path in the text exposition
// format. The write is atomic, so a collector never reads a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
