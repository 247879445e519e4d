package canon

import (
	"errors"
	"fmt"

	"fitrec/internal/decode"
	"fitrec/internal/model"
)

func (c *Canonicalizer) workoutSession(s *decode.WorkoutLogSession) (*model.Record, error) {
	if len(s.Rows) == 0 {
		return nil, errors.New("session has no rows")
	}
	start, err := c.ParseTime(s.Col("start_time"))
	if err != nil {
		return nil, fmt.Errorf("start_time: %w", err)
	}

	f := &model.WorkoutFields{
		Title: s.Col("title"),
		Notes: s.Col("description"),
	}

	captured := start
	if v := s.Col("end_time"); v != "" {
		end, err := c.ParseTime(v)
		if err != nil {
			return nil, fmt.Errorf("end_time: %w", err)
		}
		if end.Before(start) {
			return nil, errors.New("workout ends before it starts")
		}
		f.DurationSec = end.Sub(start).Seconds()
		captured = end
	}

	index := make(map[string]int)
	for _, row := range s.Rows {
		name := row.Col("exercise_title", "exercise", "exercise_name")
		set, err := workoutSet(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", row.Line, err)
		}
		i, ok := index[name]
		if !ok {
			i = len(f.Exercises)
			index[name] = i
			f.Exercises = append(f.Exercises, model.Exercise{Name: name, Notes: row.Col("exercise_notes")})
		}
		if set != nil {
			f.Exercises[i].Sets = append(f.Exercises[i].Sets, *set)
		}
	}

	return &model.Record{
		Kind:       model.KindWorkout,
		Timestamp:  start,
		CapturedAt: captured,
		Fields:     f,
	}, nil
}

// workoutSet builds a set from a row, or nil when the row records no set
// data at all.
func workoutSet(row decode.WorkoutLogRow) (*model.WorkoutSet, error) {
	var set model.WorkoutSet
	empty := true

	idx, err := optionalFloat("set_index", row.Col("set_index"))
	if err != nil {
		return nil, err
	}
	set.Index = int(idx)
	set.Type = row.Col("set_type")

	reps, err := optionalFloat("reps", row.Col("reps"))
	if err != nil {
		return nil, err
	}
	if reps < 0 {
		return nil, fmt.Errorf("negative reps %v", reps)
	}
	set.Reps = int(reps)
	empty = empty && reps == 0

	if set.LoadKg, err = rowLoad(row); err != nil {
		return nil, err
	}
	empty = empty && set.LoadKg == 0

	if v := row.Col("distance_km"); v != "" {
		d, err := parseFloat("distance_km", v)
		if err != nil {
			return nil, err
		}
		set.DistanceM, _ = Distance(d, "km")
	} else if v := row.Col("distance_miles"); v != "" {
		d, err := parseFloat("distance_miles", v)
		if err != nil {
			return nil, err
		}
		set.DistanceM, _ = Distance(d, "mi")
	}
	empty = empty && set.DistanceM == 0

	if set.DurationSec, err = optionalFloat("duration_seconds", row.Col("duration_seconds")); err != nil {
		return nil, err
	}
	if set.DurationSec < 0 {
		return nil, fmt.Errorf("negative set duration %v", set.DurationSec)
	}
	empty = empty && set.DurationSec == 0

	if set.RPE, err = optionalFloat("rpe", row.Col("rpe")); err != nil {
		return nil, err
	}

	if empty {
		return nil, nil
	}
	return &set, nil
}

// rowLoad reads the set load in kilograms from whichever weight column the
// export uses.
func rowLoad(row decode.WorkoutLogRow) (float64, error) {
	if v := row.Col("weight_kg"); v != "" {
		return parseFloat("weight_kg", v)
	}
	if v := row.Col("weight_lbs"); v != "" {
		w, err := parseFloat("weight_lbs", v)
		if err != nil {
			return 0, err
		}
		return Mass(w, "lb")
	}
	if v := row.Col("weight"); v != "" {
		w, err := parseFloat("weight", v)
		if err != nil {
			return 0, err
		}
		unit := row.Col("weight_unit", "unit")
		if unit == "" {
			unit = "kg"
		}
		return Mass(w, unit)
	}
	return 0, nil
}
