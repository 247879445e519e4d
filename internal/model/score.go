package model

import "strings"

// Detail-score weights. These are tunable: conflict resolution depends only
// on the ordering they induce, not on the absolute numbers.
const (
	// DefaultAttributeWeight applies to any populated attribute not listed
	// in attributeWeights.
	DefaultAttributeWeight = 1
	// NamedExerciseWeight is awarded to an exercise with a specific name.
	NamedExerciseWeight = 1
	// CompleteSetWeight is awarded per set with both reps and load.
	CompleteSetWeight = 1
	// MealItemWeight is awarded per meal item.
	MealItemWeight = 1
	// SupplementAttributeWeight is awarded per supplemented attribute that
	// the record does not carry itself.
	SupplementAttributeWeight = 1
)

// attributeWeights overrides DefaultAttributeWeight per kind and attribute.
var attributeWeights = map[Kind]map[string]int{
	KindWeight:  {"value_kg": 1, "device": 1, "note": 1},
	KindBodyFat: {"percent": 1, "device": 1, "note": 1},
	KindWorkout: {
		"title": 1, "activity_type": 1, "duration_sec": 1,
		"distance_m": 1, "energy_kcal": 1, "notes": 1,
	},
	KindSleep: {"ends_at": 1, "stage": 1, "device": 1},
	KindMeal:  {"name": 1, "calories": 1},
}

// DetailScore measures how much structured information r carries. It is
// always derived from the current fields and supplements.
func DetailScore(r *Record) int {
	if r == nil || r.Fields == nil {
		return 0
	}
	own := r.Fields.Attributes()
	score := 0
	for key, v := range own {
		score += attributeScore(r.Kind, key, v)
	}

	seen := make(map[string]bool)
	for _, s := range r.Supplements {
		for key := range s.Attributes {
			if _, ok := own[key]; ok || seen[key] {
				continue
			}
			seen[key] = true
			score += SupplementAttributeWeight
		}
	}
	return score
}

func attributeScore(kind Kind, key string, v any) int {
	switch {
	case strings.HasPrefix(key, "exercise:"):
		e, ok := v.(Exercise)
		if !ok {
			return DefaultAttributeWeight
		}
		s := 0
		if e.Named() {
			s += NamedExerciseWeight
		}
		for _, set := range e.Sets {
			if set.Complete() {
				s += CompleteSetWeight
			}
		}
		return s
	case strings.HasPrefix(key, "item:"):
		return MealItemWeight
	}
	if w, ok := attributeWeights[kind][key]; ok {
		return w
	}
	return DefaultAttributeWeight
}
