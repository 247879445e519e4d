package canon

import (
	"fmt"
	"math"
	"strings"
)

// Conversion factors to the canonical unit of each dimension.
var (
	massToKg = map[string]float64{
		"kg":  1,
		"g":   0.001,
		"lb":  0.45359237,
		"lbs": 0.45359237,
		"st":  6.35029318,
	}
	distanceToM = map[string]float64{
		"m":  1,
		"km": 1000,
		"mi": 1609.344,
		"ft": 0.3048,
		"yd": 0.9144,
	}
	durationToSec = map[string]float64{
		"s":   1,
		"sec": 1,
		"min": 60,
		"h":   3600,
		"hr":  3600,
	}
	energyToKcal = map[string]float64{
		"kcal": 1,
		"cal":  1, // dietary Calorie
		"kj":   1 / 4.184,
	}
)

// Mass converts a mass to kilograms.
func Mass(v float64, unit string) (float64, error) {
	return convert(v, unit, massToKg, "mass")
}

// Distance converts a distance to meters.
func Distance(v float64, unit string) (float64, error) {
	return convert(v, unit, distanceToM, "distance")
}

// Duration converts a duration to seconds.
func Duration(v float64, unit string) (float64, error) {
	return convert(v, unit, durationToSec, "duration")
}

// Energy converts an energy amount to kilocalories.
func Energy(v float64, unit string) (float64, error) {
	return convert(v, unit, energyToKcal, "energy")
}

// Percent converts a body-composition value to a percentage. Values at or
// below 1 are treated as fractions.
func Percent(v float64) float64 {
	if v <= 1 {
		return round(v*100, 2)
	}
	return v
}

func convert(v float64, unit string, table map[string]float64, dimension string) (float64, error) {
	f, ok := table[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return 0, fmt.Errorf("unknown %s unit %q", dimension, unit)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s value %v", dimension, v)
	}
	return round(v*f, 3), nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
