package model

import (
	"encoding/json"
	"fmt"
)

// NewFields returns an empty Fields value for kind.
func NewFields(kind Kind) (Fields, error) {
	switch kind {
	case KindWeight:
		return &WeightFields{}, nil
	case KindBodyFat:
		return &BodyFatFields{}, nil
	case KindWorkout:
		return &WorkoutFields{}, nil
	case KindSleep:
		return &SleepFields{}, nil
	case KindMeal:
		return &MealFields{}, nil
	default:
		return nil, fmt.Errorf("unknown record kind: %q", kind)
	}
}

// MarshalFields encodes f as JSON for storage.
func MarshalFields(f Fields) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding %s fields: %w", f.Kind(), err)
	}
	return data, nil
}

// UnmarshalFields decodes stored JSON into the typed fields for kind.
func UnmarshalFields(kind Kind, data []byte) (Fields, error) {
	f, err := NewFields(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("decoding %s fields: %w", kind, err)
	}
	return f, nil
}

// MarshalSupplements encodes supplements for storage. A nil slice encodes
// as an empty array.
func MarshalSupplements(s []Supplement) ([]byte, error) {
	if s == nil {
		s = []Supplement{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding supplements: %w", err)
	}
	return data, nil
}

// UnmarshalSupplements decodes stored supplements.
func UnmarshalSupplements(data []byte) ([]Supplement, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var s []Supplement
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding supplements: %w", err)
	}
	if len(s) == 0 {
		return nil, nil
	}
	return s, nil
}
