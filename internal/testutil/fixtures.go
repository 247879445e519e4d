package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"testing"
	"time"
)

// appleTimeLayout is the timestamp format used in health-export documents.
const appleTimeLayout = "2006-01-02 15:04:05 -0700"

// HealthExportZip builds a health-export archive holding the given
// documents, keyed by path inside the archive.
func HealthExportZip(t *testing.T, docs map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range docs {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("creating zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("writing zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

// HealthExportDoc wraps elements in a HealthData document.
func HealthExportDoc(elements ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<!DOCTYPE HealthData [` + "\n" + `<!ELEMENT HealthData (ExportDate,Me,(Record|Workout)*)>` + "\n" + `]>` + "\n")
	b.WriteString(`<HealthData locale="en_US">` + "\n")
	b.WriteString(` <ExportDate value="2024-02-01 09:00:00 +0000"/>` + "\n")
	for _, e := range elements {
		b.WriteString(" " + e + "\n")
	}
	b.WriteString("</HealthData>\n")
	return b.String()
}

// BodyMassRecord renders a body-mass Record element.
func BodyMassRecord(at time.Time, value float64, unit string) string {
	ts := at.Format(appleTimeLayout)
	return fmt.Sprintf(`<Record type="HKQuantityTypeIdentifierBodyMass" sourceName="Smart Scale" unit="%s" creationDate="%s" startDate="%s" endDate="%s" value="%g"/>`,
		unit, ts, ts, ts, value)
}

// BodyFatRecord renders a body-fat Record element with a fractional value.
func BodyFatRecord(at time.Time, fraction float64) string {
	ts := at.Format(appleTimeLayout)
	return fmt.Sprintf(`<Record type="HKQuantityTypeIdentifierBodyFatPercentage" sourceName="Smart Scale" unit="%%" creationDate="%s" startDate="%s" endDate="%s" value="%g"/>`,
		ts, ts, ts, fraction)
}

// SleepRecord renders a sleep-analysis Record element.
func SleepRecord(start, end time.Time, stage string) string {
	return fmt.Sprintf(`<Record type="HKCategoryTypeIdentifierSleepAnalysis" sourceName="Watch" creationDate="%s" startDate="%s" endDate="%s" value="%s"/>`,
		end.Format(appleTimeLayout), start.Format(appleTimeLayout), end.Format(appleTimeLayout), stage)
}

// WorkoutElement renders a Workout element with an energy statistic.
func WorkoutElement(start, end time.Time, activity string, kcal float64) string {
	return fmt.Sprintf(`<Workout workoutActivityType="%s" duration="%g" durationUnit="min" sourceName="Watch" creationDate="%s" startDate="%s" endDate="%s">
  <MetadataEntry key="HKIndoorWorkout" value="1"/>
  <WorkoutStatistics type="HKQuantityTypeIdentifierActiveEnergyBurned" startDate="%s" endDate="%s" sum="%g" unit="kcal"/>
 </Workout>`,
		activity, end.Sub(start).Minutes(),
		end.Format(appleTimeLayout), start.Format(appleTimeLayout), end.Format(appleTimeLayout),
		start.Format(appleTimeLayout), end.Format(appleTimeLayout), kcal)
}

// StepCountRecord renders a Record of a type the engine does not import.
func StepCountRecord(at time.Time, steps int) string {
	ts := at.Format(appleTimeLayout)
	return fmt.Sprintf(`<Record type="HKQuantityTypeIdentifierStepCount" sourceName="Phone" unit="count" creationDate="%s" startDate="%s" endDate="%s" value="%d"/>`,
		ts, ts, ts, steps)
}

// WorkoutLogHeader is the column layout of the workout-log export.
var WorkoutLogHeader = []string{
	"title", "start_time", "end_time", "description", "exercise_title",
	"superset_id", "exercise_notes", "set_index", "set_type", "weight_kg",
	"reps", "distance_km", "duration_seconds", "rpe",
}

// WorkoutLogSet describes one row of a workout-log export.
type WorkoutLogSet struct {
	Title       string
	Start       time.Time
	End         time.Time
	Description string
	Exercise    string
	SetIndex    int
	WeightKg    float64
	Reps        int
}

// workoutLogTimeLayout is the timestamp format of the workout-log export.
const workoutLogTimeLayout = "2 Jan 2006, 15:04"

// Row renders s in WorkoutLogHeader column order.
func (s WorkoutLogSet) Row() []string {
	return []string{
		s.Title,
		s.Start.Format(workoutLogTimeLayout),
		s.End.Format(workoutLogTimeLayout),
		s.Description,
		s.Exercise,
		"",
		"",
		fmt.Sprint(s.SetIndex),
		"normal",
		fmt.Sprint(s.WeightKg),
		fmt.Sprint(s.Reps),
		"",
		"",
		"",
	}
}

// WorkoutLogCSV renders a workout-log export with the given header and rows.
func WorkoutLogCSV(t *testing.T, header []string, rows ...[]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		t.Fatalf("writing header: %v", err)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			t.Fatalf("writing row: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("flushing csv: %v", err)
	}
	return buf.Bytes()
}
