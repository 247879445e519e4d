package canon

import (
	"fmt"
	"strings"
	"time"
)

// Layouts carrying their own offset.
var zonedLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	time.RFC3339,
}

// Layouts without an offset, interpreted in the configured location.
var localLayouts = []string{
	"2 Jan 2006, 15:04",
	"2 Jan 2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ParseTime parses a timestamp in any supported layout and returns it in UTC.
func (c *Canonicalizer) ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	loc := c.location()
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (c *Canonicalizer) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
