package recon

import (
	"fitrec/internal/model"
)

// Action is the resolver's decision for one incoming record.
type Action int

const (
	// ActionInsert stores the record as new.
	ActionInsert Action = iota
	// ActionReplace removes the existing record and stores the incoming one.
	ActionReplace
	// ActionMerge keeps the existing record and adds supplemental attributes.
	ActionMerge
	// ActionDiscard drops the incoming record.
	ActionDiscard
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionReplace:
		return "replace"
	case ActionMerge:
		return "merge"
	case ActionDiscard:
		return "discard"
	}
	return "unknown"
}

// Compare orders two records by preference: source category first, then
// detail score, then recency of capture. It returns a negative number when
// a is preferred less than b, zero on a true tie, and a positive number
// otherwise.
func Compare(a, b *model.Record) int {
	if ca, cb := a.Source.Category(), b.Source.Category(); ca != cb {
		if ca > cb {
			return 1
		}
		return -1
	}
	if sa, sb := model.DetailScore(a), model.DetailScore(b); sa != sb {
		if sa > sb {
			return 1
		}
		return -1
	}
	switch {
	case a.CapturedAt.After(b.CapturedAt):
		return 1
	case a.CapturedAt.Before(b.CapturedAt):
		return -1
	}
	return 0
}

// Decide classifies what to do with incoming given the surviving candidate
// existing, which may be nil. It has no side effects.
func Decide(existing, incoming *model.Record) Action {
	if existing == nil {
		return ActionInsert
	}

	ec, ic := existing.Source.Category(), incoming.Source.Category()
	switch {
	case ec == model.CategoryAuthoritative && ic == model.CategoryImported:
		return ActionMerge
	case ec == model.CategoryImported && ic == model.CategoryAuthoritative:
		return ActionReplace
	}

	// Same category: the richer record wins, then the more recently
	// captured one. A true tie keeps what is already stored.
	if Compare(incoming, existing) > 0 {
		return ActionReplace
	}
	return ActionDiscard
}

// missingAttributes returns the attributes of src that target does not
// carry, either as fields or supplements.
func missingAttributes(src map[string]any, target *model.Record) map[string]any {
	have := target.EffectiveAttributes()
	out := make(map[string]any)
	for k, v := range src {
		if _, ok := have[k]; !ok {
			out[k] = v
		}
	}
	return out
}
