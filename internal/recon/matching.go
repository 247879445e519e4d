package recon

import (
	"time"

	"fitrec/internal/model"
)

// Matching holds the per-kind timestamp tolerance used to find candidate
// duplicates. A zero tolerance means the start must match at minute
// precision.
type Matching struct {
	Weight  time.Duration
	BodyFat time.Duration
	Workout time.Duration
	Sleep   time.Duration
	Meal    time.Duration
}

// DefaultMatching returns the default tolerances.
func DefaultMatching() Matching {
	return Matching{
		Weight:  2 * time.Minute,
		BodyFat: 2 * time.Minute,
		Workout: 0,
		Sleep:   time.Minute,
		Meal:    15 * time.Minute,
	}
}

// Tolerance returns the tolerance for kind.
func (m Matching) Tolerance(kind model.Kind) time.Duration {
	switch kind {
	case model.KindWeight:
		return m.Weight
	case model.KindBodyFat:
		return m.BodyFat
	case model.KindWorkout:
		return m.Workout
	case model.KindSleep:
		return m.Sleep
	case model.KindMeal:
		return m.Meal
	}
	return 0
}

// Window returns the inclusive timestamp range in which an existing record
// of kind is a candidate match for a record at t.
func (m Matching) Window(kind model.Kind, t time.Time) (from, to time.Time) {
	tol := m.Tolerance(kind)
	if tol <= 0 {
		from = t.Truncate(time.Minute)
		return from, from.Add(time.Minute - time.Nanosecond)
	}
	return t.Add(-tol), t.Add(tol)
}

// lockKeys returns the (kind, bucket) keys covering the match window of a
// record at t, in ascending order. Any two records that can match each
// other share at least one key.
func (m Matching) lockKeys(kind model.Kind, t time.Time) []lockKey {
	width := m.Tolerance(kind)
	if width < time.Minute {
		width = time.Minute
	}
	from, to := m.Window(kind, t)
	first, last := bucketOf(from, width), bucketOf(to, width)

	keys := make([]lockKey, 0, last-first+1)
	for b := first; b <= last; b++ {
		keys = append(keys, lockKey{kind: kind, bucket: b})
	}
	return keys
}

func bucketOf(t time.Time, width time.Duration) int64 {
	n, w := t.UnixNano(), int64(width)
	b := n / w
	if n%w < 0 {
		b--
	}
	return b
}
