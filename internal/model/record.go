package model

import (
	"fmt"
	"time"
)

// Kind identifies the canonical record type.
type Kind string

const (
	KindWeight  Kind = "weight"
	KindBodyFat Kind = "body_fat"
	KindWorkout Kind = "workout"
	KindSleep   Kind = "sleep"
	KindMeal    Kind = "meal"
)

// Kinds lists every canonical kind in a stable order.
var Kinds = []Kind{KindWeight, KindBodyFat, KindWorkout, KindSleep, KindMeal}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown record kind: %q", s)
}

// MultiEntry reports whether records of this kind hold child entries that
// are matched by item identity rather than by time alone.
func (k Kind) MultiEntry() bool {
	return k == KindMeal
}

// Source identifies where a record came from. It is fixed at creation.
type Source string

const (
	SourceChat        Source = "chat"
	SourceManual      Source = "manual"
	SourceImportApple Source = "import_apple"
	SourceImportHevy  Source = "import_hevy"
)

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceChat, SourceManual, SourceImportApple, SourceImportHevy:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown record source: %q", s)
}

// Category groups sources for the asymmetric override rule.
type Category int

const (
	// CategoryImported covers bulk file imports.
	CategoryImported Category = iota
	// CategoryAuthoritative covers chat and manual entry.
	CategoryAuthoritative
)

func (c Category) String() string {
	if c == CategoryAuthoritative {
		return "authoritative"
	}
	return "imported"
}

// Category returns the source category of s.
func (s Source) Category() Category {
	switch s {
	case SourceChat, SourceManual:
		return CategoryAuthoritative
	default:
		return CategoryImported
	}
}

// IsImport reports whether s is a bulk-import source.
func (s Source) IsImport() bool {
	return s.Category() == CategoryImported
}

// Record is the canonical, store-ready representation of one fact.
type Record struct {
	ID         string
	Kind       Kind
	Timestamp  time.Time // the instant the record describes, UTC
	CapturedAt time.Time // when the data was recorded, UTC
	Source     Source
	Fields     Fields
	// Supplements hold attributes added by later imports to an
	// authoritative record. They never override Fields.
	Supplements []Supplement
	BatchID     string
}

// Supplement is a provenance-tagged set of attributes merged into a record.
type Supplement struct {
	Source     Source         `json:"source"`
	BatchID    string         `json:"batch_id,omitempty"`
	RecordRef  string         `json:"record_ref,omitempty"`
	AddedAt    time.Time      `json:"added_at"`
	Attributes map[string]any `json:"attributes"`
}

// Clone returns a deep enough copy of r for the resolver to mutate safely.
func (r *Record) Clone() *Record {
	c := *r
	c.Supplements = append([]Supplement(nil), r.Supplements...)
	if r.Fields != nil {
		c.Fields = r.Fields.clone()
	}
	return &c
}

// EffectiveAttributes returns the record's own attributes overlaid on its
// supplements. Own fields always win.
func (r *Record) EffectiveAttributes() map[string]any {
	out := make(map[string]any)
	for _, s := range r.Supplements {
		for k, v := range s.Attributes {
			out[k] = v
		}
	}
	if r.Fields != nil {
		for k, v := range r.Fields.Attributes() {
			out[k] = v
		}
	}
	return out
}

// Validate checks the structural invariants every stored record must hold.
func (r *Record) Validate() error {
	if r.Fields == nil {
		return fmt.Errorf("record has no fields")
	}
	if r.Fields.Kind() != r.Kind {
		return fmt.Errorf("fields of kind %s on record of kind %s", r.Fields.Kind(), r.Kind)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("record has no timestamp")
	}
	if _, err := ParseSource(string(r.Source)); err != nil {
		return err
	}
	return nil
}
