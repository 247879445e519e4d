package decode

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Column aliases accepted in workout-log headers. The first alias present
// in the header wins.
var (
	sessionIDColumns = []string{"session_id", "workout_id"}
	exerciseColumns  = []string{"exercise_title", "exercise", "exercise_name"}
	numericColumns   = []string{
		"set_index", "reps", "weight_kg", "weight_lbs", "weight",
		"distance_km", "distance_miles", "duration_seconds", "rpe",
	}
)

// WorkoutLogRow is one data row keyed by normalized column name.
type WorkoutLogRow struct {
	Line int
	Cols map[string]string
}

// WorkoutLogSession groups consecutive rows sharing a session key.
type WorkoutLogSession struct {
	Key  string
	Rows []WorkoutLogRow
}

func (s *WorkoutLogSession) Ref() string {
	if len(s.Rows) == 0 {
		return "session " + s.Key
	}
	first, last := s.Rows[0].Line, s.Rows[len(s.Rows)-1].Line
	if first == last {
		return fmt.Sprintf("line %d", first)
	}
	return fmt.Sprintf("lines %d-%d", first, last)
}

func (*WorkoutLogSession) rawEntry() {}

// Col returns the first non-empty value among the given column aliases of
// the session's first row.
func (s *WorkoutLogSession) Col(names ...string) string {
	if len(s.Rows) == 0 {
		return ""
	}
	return s.Rows[0].Col(names...)
}

// Col returns the first non-empty value among the given column aliases.
func (r WorkoutLogRow) Col(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(r.Cols[n]); v != "" {
			return v
		}
	}
	return ""
}

// WorkoutLogDecoder reads a tabular workout log with a header row.
type WorkoutLogDecoder struct{}

var _ Decoder = (*WorkoutLogDecoder)(nil)

func (d *WorkoutLogDecoder) Decode(r io.ReaderAt, size int64) (*Stream, error) {
	cr := csv.NewReader(io.NewSectionReader(r, 0, size))
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ContainerError{Err: errors.New("workout log is empty")}
		}
		return nil, &ContainerError{Err: fmt.Errorf("reading header: %w", err)}
	}
	columns := normalizeHeader(header)
	if err := checkColumns(columns); err != nil {
		return nil, &ContainerError{Err: err}
	}

	s := &Stream{}
	s.seq = func(yield func(RawEntry, error) bool) {
		var current *WorkoutLogSession
		for {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				var pe *csv.ParseError
				if errors.As(err, &pe) {
					if !yield(nil, &ParseError{Ref: fmt.Sprintf("line %d", pe.Line), Err: pe.Err}) {
						return
					}
					continue
				}
				yield(nil, &ParseError{Ref: "workout log", Err: fmt.Errorf("reading rows: %w", err)})
				return
			}

			line, _ := cr.FieldPos(0)
			row := WorkoutLogRow{Line: line, Cols: make(map[string]string, len(columns))}
			for i, name := range columns {
				row.Cols[name] = rec[i]
			}

			key, err := validateRow(row)
			if err != nil {
				if !yield(nil, &ParseError{Ref: fmt.Sprintf("line %d", line), Err: err}) {
					return
				}
				continue
			}

			if current != nil && current.Key != key {
				if !yield(current, nil) {
					return
				}
				current = nil
			}
			if current == nil {
				current = &WorkoutLogSession{Key: key}
			}
			current.Rows = append(current.Rows, row)
		}
		if current != nil {
			yield(current, nil)
		}
	}
	return s, nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		h = strings.ToLower(strings.TrimSpace(h))
		out[i] = strings.ReplaceAll(h, " ", "_")
	}
	return out
}

func checkColumns(columns []string) error {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	if !hasAny(have, sessionIDColumns) && !have["start_time"] {
		return errors.New("workout log has no session identifier or start_time column")
	}
	if !hasAny(have, exerciseColumns) {
		return errors.New("workout log has no exercise column")
	}
	return nil
}

func hasAny(have map[string]bool, names []string) bool {
	for _, n := range names {
		if have[n] {
			return true
		}
	}
	return false
}

// SessionKey derives the grouping key of a row: an explicit session id, or
// the workout title together with its start time.
func SessionKey(row WorkoutLogRow) string {
	if id := row.Col(sessionIDColumns...); id != "" {
		return id
	}
	start := row.Col("start_time")
	if start == "" {
		return ""
	}
	return row.Col("title") + "|" + start
}

// validateRow checks the structural shape of a row and returns its
// session key.
func validateRow(row WorkoutLogRow) (string, error) {
	key := SessionKey(row)
	if key == "" {
		return "", errors.New("row has no session identifier")
	}
	for _, c := range numericColumns {
		v := strings.TrimSpace(row.Cols[c])
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return "", fmt.Errorf("column %s: %q is not a number", c, v)
		}
		if f < 0 {
			return "", fmt.Errorf("column %s: %q is negative", c, v)
		}
	}
	return key, nil
}
