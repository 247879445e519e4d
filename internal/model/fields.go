package model

import (
	"strings"
	"time"
)

// Fields is the typed, kind-specific payload of a Record.
type Fields interface {
	Kind() Kind
	// Attributes returns only the semantically populated attributes, keyed
	// by a stable name. Absent values are omitted, not zeroed.
	Attributes() map[string]any
	clone() Fields
}

// WeightFields is a body-mass sample.
type WeightFields struct {
	ValueKg float64 `json:"value_kg"`
	Device  string  `json:"device,omitempty"`
	Note    string  `json:"note,omitempty"`
}

func (f *WeightFields) Kind() Kind { return KindWeight }

func (f *WeightFields) Attributes() map[string]any {
	a := map[string]any{}
	if f.ValueKg > 0 {
		a["value_kg"] = f.ValueKg
	}
	putString(a, "device", f.Device)
	putString(a, "note", f.Note)
	return a
}

func (f *WeightFields) clone() Fields { c := *f; return &c }

// BodyFatFields is a body-fat percentage sample.
type BodyFatFields struct {
	Percent float64 `json:"percent"`
	Device  string  `json:"device,omitempty"`
	Note    string  `json:"note,omitempty"`
}

func (f *BodyFatFields) Kind() Kind { return KindBodyFat }

func (f *BodyFatFields) Attributes() map[string]any {
	a := map[string]any{}
	if f.Percent > 0 {
		a["percent"] = f.Percent
	}
	putString(a, "device", f.Device)
	putString(a, "note", f.Note)
	return a
}

func (f *BodyFatFields) clone() Fields { c := *f; return &c }

// WorkoutSet is one set of an exercise. Loads are kilograms, distances
// meters, durations seconds.
type WorkoutSet struct {
	Index       int     `json:"index"`
	Type        string  `json:"type,omitempty"`
	Reps        int     `json:"reps,omitempty"`
	LoadKg      float64 `json:"load_kg,omitempty"`
	DistanceM   float64 `json:"distance_m,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	RPE         float64 `json:"rpe,omitempty"`
}

// Complete reports whether the set records both reps and load.
func (s WorkoutSet) Complete() bool {
	return s.Reps > 0 && s.LoadKg > 0
}

// Exercise groups the sets performed for one movement.
type Exercise struct {
	Name  string       `json:"name"`
	Notes string       `json:"notes,omitempty"`
	Sets  []WorkoutSet `json:"sets,omitempty"`
}

// genericExerciseNames are labels that carry no information about the
// movement performed.
var genericExerciseNames = map[string]bool{
	"":         true,
	"workout":  true,
	"exercise": true,
	"other":    true,
	"unknown":  true,
}

// Named reports whether the exercise has a specific name.
func (e Exercise) Named() bool {
	return !genericExerciseNames[normalizeName(e.Name)]
}

// WorkoutFields is a workout session.
type WorkoutFields struct {
	Title        string     `json:"title,omitempty"`
	ActivityType string     `json:"activity_type,omitempty"`
	DurationSec  float64    `json:"duration_sec,omitempty"`
	DistanceM    float64    `json:"distance_m,omitempty"`
	EnergyKcal   float64    `json:"energy_kcal,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Exercises    []Exercise `json:"exercises,omitempty"`
}

func (f *WorkoutFields) Kind() Kind { return KindWorkout }

func (f *WorkoutFields) Attributes() map[string]any {
	a := map[string]any{}
	putString(a, "title", f.Title)
	putString(a, "activity_type", f.ActivityType)
	putFloat(a, "duration_sec", f.DurationSec)
	putFloat(a, "distance_m", f.DistanceM)
	putFloat(a, "energy_kcal", f.EnergyKcal)
	putString(a, "notes", f.Notes)
	for _, e := range f.Exercises {
		a["exercise:"+normalizeName(e.Name)] = e
	}
	return a
}

func (f *WorkoutFields) clone() Fields {
	c := *f
	c.Exercises = make([]Exercise, len(f.Exercises))
	for i, e := range f.Exercises {
		e.Sets = append([]WorkoutSet(nil), e.Sets...)
		c.Exercises[i] = e
	}
	return &c
}

// SleepFields is one sleep session or stage segment.
type SleepFields struct {
	EndsAt time.Time `json:"ends_at"`
	Stage  string    `json:"stage,omitempty"`
	Device string    `json:"device,omitempty"`
}

func (f *SleepFields) Kind() Kind { return KindSleep }

func (f *SleepFields) Attributes() map[string]any {
	a := map[string]any{}
	if !f.EndsAt.IsZero() {
		a["ends_at"] = f.EndsAt
	}
	putString(a, "stage", f.Stage)
	putString(a, "device", f.Device)
	return a
}

func (f *SleepFields) clone() Fields { c := *f; return &c }

// MealItem is a child entry of a meal, identified by its normalized name.
type MealItem struct {
	Name     string  `json:"name"`
	Quantity string  `json:"quantity,omitempty"`
	Calories float64 `json:"calories,omitempty"`
	ProteinG float64 `json:"protein_g,omitempty"`
	CarbsG   float64 `json:"carbs_g,omitempty"`
	FatG     float64 `json:"fat_g,omitempty"`
}

// Identity is the key used to match items across meals.
func (i MealItem) Identity() string {
	return normalizeName(i.Name)
}

// MealFields is a meal with its items.
type MealFields struct {
	Name     string     `json:"name,omitempty"`
	Calories float64    `json:"calories,omitempty"`
	Items    []MealItem `json:"items,omitempty"`
}

func (f *MealFields) Kind() Kind { return KindMeal }

func (f *MealFields) Attributes() map[string]any {
	a := map[string]any{}
	putString(a, "name", f.Name)
	putFloat(a, "calories", f.Calories)
	for _, it := range f.Items {
		a["item:"+it.Identity()] = it
	}
	return a
}

func (f *MealFields) clone() Fields {
	c := *f
	c.Items = append([]MealItem(nil), f.Items...)
	return &c
}

// CarryItems appends items from other whose identity is not already present
// in f. Existing items are never modified.
func (f *MealFields) CarryItems(other *MealFields) int {
	have := make(map[string]bool, len(f.Items))
	for _, it := range f.Items {
		have[it.Identity()] = true
	}
	added := 0
	for _, it := range other.Items {
		if have[it.Identity()] {
			continue
		}
		f.Items = append(f.Items, it)
		have[it.Identity()] = true
		added++
	}
	return added
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func putString(a map[string]any, key, v string) {
	if strings.TrimSpace(v) != "" {
		a[key] = v
	}
}

func putFloat(a map[string]any, key string, v float64) {
	if v > 0 {
		a[key] = v
	}
}
