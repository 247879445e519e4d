// Package canon converts decoded entries into canonical records: SI-ish
// units, UTC timestamps and typed per-kind fields.
package canon

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fitrec/internal/decode"
	"fitrec/internal/model"
)

// CanonicalizationError reports a decoded entry that cannot become a record.
type CanonicalizationError struct {
	Ref    string
	Reason string
}

func (e *CanonicalizationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Ref, e.Reason)
}

// Canonicalizer is stateless apart from the location used for timestamps
// that carry no offset.
type Canonicalizer struct {
	Location *time.Location
}

// New returns a Canonicalizer interpreting offset-less timestamps in loc.
func New(loc *time.Location) *Canonicalizer {
	return &Canonicalizer{Location: loc}
}

// Canonicalize converts one raw entry from source into a record. The record
// has no ID or batch yet.
func (c *Canonicalizer) Canonicalize(entry decode.RawEntry, source model.Source) (*model.Record, error) {
	var (
		rec *model.Record
		err error
	)
	switch e := entry.(type) {
	case *decode.HealthElement:
		rec, err = c.healthElement(e)
	case *decode.WorkoutLogSession:
		rec, err = c.workoutSession(e)
	default:
		return nil, &CanonicalizationError{Ref: entry.Ref(), Reason: fmt.Sprintf("unsupported entry type %T", entry)}
	}
	if err != nil {
		return nil, &CanonicalizationError{Ref: entry.Ref(), Reason: err.Error()}
	}

	rec.Source = source
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = rec.Timestamp
	}
	if err := rec.Validate(); err != nil {
		return nil, &CanonicalizationError{Ref: entry.Ref(), Reason: err.Error()}
	}
	return rec, nil
}

func parseFloat(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", field, s)
	}
	return v, nil
}

// optionalFloat parses s when present. Empty strings yield zero.
func optionalFloat(field, s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return parseFloat(field, s)
}
