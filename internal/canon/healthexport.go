package canon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fitrec/internal/decode"
	"fitrec/internal/model"
)

// sleepStages maps health-export category values to canonical stages.
var sleepStages = map[string]string{
	"HKCategoryValueSleepAnalysisInBed":             "in_bed",
	"HKCategoryValueSleepAnalysisAsleep":            "asleep",
	"HKCategoryValueSleepAnalysisAsleepUnspecified": "asleep",
	"HKCategoryValueSleepAnalysisAsleepCore":        "core",
	"HKCategoryValueSleepAnalysisAsleepDeep":        "deep",
	"HKCategoryValueSleepAnalysisAsleepREM":         "rem",
	"HKCategoryValueSleepAnalysisAwake":             "awake",
}

const (
	statActiveEnergy = "HKQuantityTypeIdentifierActiveEnergyBurned"
	statDistance     = "HKQuantityTypeIdentifierDistance"
)

func (c *Canonicalizer) healthElement(e *decode.HealthElement) (*model.Record, error) {
	start, err := c.ParseTime(e.Attrs["startDate"])
	if err != nil {
		return nil, fmt.Errorf("startDate: %w", err)
	}
	captured, err := c.healthCapturedAt(e)
	if err != nil {
		return nil, err
	}

	rec := &model.Record{Timestamp: start, CapturedAt: captured}

	if e.Element == "Workout" {
		rec.Kind = model.KindWorkout
		rec.Fields, err = c.healthWorkout(e, start)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}

	switch e.Type {
	case decode.TypeBodyMass:
		v, err := parseFloat("value", e.Attrs["value"])
		if err != nil {
			return nil, err
		}
		kg, err := Mass(v, e.Attrs["unit"])
		if err != nil {
			return nil, err
		}
		if kg <= 0 {
			return nil, fmt.Errorf("body mass %v is not positive", v)
		}
		rec.Kind = model.KindWeight
		rec.Fields = &model.WeightFields{ValueKg: kg, Device: e.Attrs["sourceName"]}

	case decode.TypeBodyFatPercentage:
		v, err := parseFloat("value", e.Attrs["value"])
		if err != nil {
			return nil, err
		}
		if v <= 0 {
			return nil, fmt.Errorf("body fat %v is not positive", v)
		}
		rec.Kind = model.KindBodyFat
		rec.Fields = &model.BodyFatFields{Percent: Percent(v), Device: e.Attrs["sourceName"]}

	case decode.TypeSleepAnalysis:
		end, err := c.ParseTime(e.Attrs["endDate"])
		if err != nil {
			return nil, fmt.Errorf("endDate: %w", err)
		}
		if end.Before(start) {
			return nil, fmt.Errorf("sleep ends at %s before it starts at %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
		}
		stage, ok := sleepStages[e.Attrs["value"]]
		if !ok {
			stage = strings.ToLower(strings.TrimPrefix(e.Attrs["value"], "HKCategoryValueSleepAnalysis"))
		}
		rec.Kind = model.KindSleep
		rec.Fields = &model.SleepFields{EndsAt: end, Stage: stage, Device: e.Attrs["sourceName"]}

	default:
		return nil, fmt.Errorf("unsupported record type %q", e.Type)
	}
	return rec, nil
}

// healthCapturedAt prefers the device's creation time, then the end time.
func (c *Canonicalizer) healthCapturedAt(e *decode.HealthElement) (time.Time, error) {
	for _, attr := range []string{"creationDate", "endDate"} {
		if v := e.Attrs[attr]; v != "" {
			t, err := c.ParseTime(v)
			if err != nil {
				return time.Time{}, fmt.Errorf("%s: %w", attr, err)
			}
			return t, nil
		}
	}
	return time.Time{}, nil
}

func (c *Canonicalizer) healthWorkout(e *decode.HealthElement, start time.Time) (*model.WorkoutFields, error) {
	f := &model.WorkoutFields{
		ActivityType: activityName(e.Type),
	}

	if v := e.Attrs["endDate"]; v != "" {
		end, err := c.ParseTime(v)
		if err != nil {
			return nil, fmt.Errorf("endDate: %w", err)
		}
		if end.Before(start) {
			return nil, errors.New("workout ends before it starts")
		}
		f.DurationSec = end.Sub(start).Seconds()
	}

	if v := e.Attrs["duration"]; v != "" {
		d, err := parseFloat("duration", v)
		if err != nil {
			return nil, err
		}
		unit := e.Attrs["durationUnit"]
		if unit == "" {
			unit = "min"
		}
		if f.DurationSec, err = Duration(d, unit); err != nil {
			return nil, err
		}
		if f.DurationSec < 0 {
			return nil, errors.New("workout has negative duration")
		}
	}

	if v := e.Attrs["totalDistance"]; v != "" {
		d, err := parseFloat("totalDistance", v)
		if err != nil {
			return nil, err
		}
		if f.DistanceM, err = Distance(d, e.Attrs["totalDistanceUnit"]); err != nil {
			return nil, err
		}
	}
	if v := e.Attrs["totalEnergyBurned"]; v != "" {
		d, err := parseFloat("totalEnergyBurned", v)
		if err != nil {
			return nil, err
		}
		if f.EnergyKcal, err = Energy(d, e.Attrs["totalEnergyBurnedUnit"]); err != nil {
			return nil, err
		}
	}

	for _, st := range e.Stats {
		switch {
		case st.Type == statActiveEnergy && f.EnergyKcal == 0:
			v, err := parseFloat("energy statistic", st.Sum)
			if err != nil {
				return nil, err
			}
			if f.EnergyKcal, err = Energy(v, st.Unit); err != nil {
				return nil, err
			}
		case strings.HasPrefix(st.Type, statDistance) && f.DistanceM == 0:
			v, err := parseFloat("distance statistic", st.Sum)
			if err != nil {
				return nil, err
			}
			if f.DistanceM, err = Distance(v, st.Unit); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// activityName turns "HKWorkoutActivityTypeTraditionalStrengthTraining"
// into "traditional_strength_training".
func activityName(t string) string {
	t = strings.TrimPrefix(t, "HKWorkoutActivityType")
	var b strings.Builder
	for i, r := range t {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
