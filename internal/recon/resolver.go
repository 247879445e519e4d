package recon

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"fitrec/internal/model"
)

// Outcome reports what the resolver did with one record.
type Outcome struct {
	Action Action
	// RecordID is the id of the stored record that now holds the result.
	// It is empty for a Discard with no surviving candidate.
	RecordID string
	// Removed lists the ids deleted while resolving.
	Removed []string
	// Folded is how many of Removed were stored duplicates of the survivor
	// rather than the record a Replace superseded.
	Folded int
}

// Resolver matches canonical records against the store and commits the
// outcome of each decision.
type Resolver struct {
	store    Store
	matching Matching
	locker   *KeyLocker
	clock    Clock
	idgen    IDGenerator
	logger   Logger
}

// NewResolver creates a Resolver over store.
func NewResolver(store Store, matching Matching, clock Clock, idgen IDGenerator, logger Logger) *Resolver {
	return &Resolver{
		store:    store,
		matching: matching,
		locker:   NewKeyLocker(),
		clock:    clock,
		idgen:    idgen,
		logger:   logger,
	}
}

// Resolve looks up candidates for rec, decides, and commits the result.
// ref names the raw entry rec came from, for supplement provenance.
// Lookup, decision and commit run under the locks of every time bucket the
// record can match, so two racing records never both insert.
func (r *Resolver) Resolve(ctx context.Context, rec *model.Record, ref string) (Outcome, error) {
	if err := rec.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("invalid record: %w", err)
	}
	incoming := rec.Clone()
	incoming.Timestamp = incoming.Timestamp.UTC()
	incoming.CapturedAt = incoming.CapturedAt.UTC()

	unlock := r.locker.Lock(r.matching.lockKeys(incoming.Kind, incoming.Timestamp))
	defer unlock()

	from, to := r.matching.Window(incoming.Kind, incoming.Timestamp)
	candidates, err := r.store.QueryByTimeWindow(ctx, incoming.Kind, from, to)
	if err != nil {
		return Outcome{}, &StorageError{Op: "query", Err: err}
	}

	survivor, losers, dirty := r.fold(incoming, candidates)
	action := Decide(survivor, incoming)

	var put *model.Record
	var removed []string
	for _, l := range losers {
		removed = append(removed, l.ID)
	}

	switch action {
	case ActionInsert:
		incoming.ID = r.idgen.New()
		put = incoming

	case ActionReplace:
		incoming.ID = r.idgen.New()
		r.absorb(incoming, survivor, survivor.ID)
		put = incoming
		removed = append(removed, survivor.ID)

	case ActionMerge:
		if !r.absorb(survivor, incoming, ref) {
			action = ActionDiscard
		}
		if action == ActionMerge || dirty {
			put = survivor
		}

	case ActionDiscard:
		// Same category: multi-entry kinds still keep the incoming items.
		if r.absorb(survivor, incoming, ref) {
			action = ActionMerge
		}
		if action == ActionMerge || dirty {
			put = survivor
		}
	}

	// Write before deleting so a failure in between never loses data; a
	// re-run folds any leftover duplicate.
	if put != nil {
		if err := r.store.Put(ctx, put); err != nil {
			return Outcome{}, &StorageError{Op: "put", Err: err}
		}
	}
	for _, id := range removed {
		if err := r.store.Delete(ctx, incoming.Kind, id); err != nil {
			return Outcome{}, &StorageError{Op: "delete", Err: err}
		}
	}

	out := Outcome{Action: action, Removed: removed, Folded: len(losers)}
	switch {
	case put != nil:
		out.RecordID = put.ID
	case survivor != nil:
		out.RecordID = survivor.ID
	}

	r.logger.Debug("record resolved",
		"kind", incoming.Kind,
		"source", incoming.Source,
		"action", action,
		"record", out.RecordID,
		"candidates", len(candidates),
		"folded", len(losers),
	)
	return out, nil
}

// fold picks the candidate incoming is matched against and reduces the
// stored duplicates of it to one survivor. Only candidates inside the
// survivor's own tolerance window are duplicates; others merely overlap the
// incoming window and are left alone. An import never removes an
// authoritative record: it attaches to the authoritative candidate nearest
// in time. Losers contribute what the survivor lacks before being removed.
// dirty reports whether the survivor changed.
func (r *Resolver) fold(incoming *model.Record, candidates []*model.Record) (survivor *model.Record, losers []*model.Record, dirty bool) {
	if len(candidates) == 0 {
		return nil, nil, false
	}

	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b *model.Record) int {
		if c := Compare(b, a); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	anchor := sorted[0]
	protect := incoming.Source.IsImport() && anchor.Source.Category() == model.CategoryAuthoritative
	if protect {
		anchor = nearestAuthoritative(sorted, incoming.Timestamp)
	}

	from, to := r.matching.Window(anchor.Kind, anchor.Timestamp)
	survivor = anchor.Clone()
	for _, c := range sorted {
		if c == anchor || c.Timestamp.Before(from) || c.Timestamp.After(to) {
			continue
		}
		if protect && c.Source.Category() == model.CategoryAuthoritative {
			continue
		}
		if r.absorb(survivor, c, c.ID) {
			dirty = true
		}
		losers = append(losers, c)
	}
	return survivor, losers, dirty
}

// nearestAuthoritative returns the authoritative record in sorted closest to
// t. Ties keep preference order.
func nearestAuthoritative(sorted []*model.Record, t time.Time) *model.Record {
	var best *model.Record
	var bestDist time.Duration
	for _, c := range sorted {
		if c.Source.Category() != model.CategoryAuthoritative {
			continue
		}
		d := c.Timestamp.Sub(t).Abs()
		if best == nil || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// absorb carries information from loser into winner without overriding
// anything winner already has. It reports whether winner changed.
//
// An authoritative winner takes an imported loser's missing attributes as
// one supplement, and an authoritative loser's supplements. Within the same
// category only multi-entry kinds carry their missing child items.
func (r *Resolver) absorb(winner, loser *model.Record, ref string) bool {
	if winner == nil || loser == nil {
		return false
	}

	wc, lc := winner.Source.Category(), loser.Source.Category()
	if wc == lc && winner.Kind.MultiEntry() {
		changed := false
		if wm, ok := winner.Fields.(*model.MealFields); ok {
			if lm, ok := loser.Fields.(*model.MealFields); ok {
				changed = wm.CarryItems(lm) > 0
			}
		}
		if wc == model.CategoryAuthoritative && r.carrySupplements(winner, loser) {
			changed = true
		}
		return changed
	}

	if wc != model.CategoryAuthoritative {
		return false
	}
	if lc == model.CategoryAuthoritative {
		return r.carrySupplements(winner, loser)
	}

	attrs := missingAttributes(loser.EffectiveAttributes(), winner)
	if len(attrs) == 0 {
		return false
	}
	winner.Supplements = append(winner.Supplements, model.Supplement{
		Source:     loser.Source,
		BatchID:    loser.BatchID,
		RecordRef:  ref,
		AddedAt:    r.clock.Now().UTC(),
		Attributes: attrs,
	})
	return true
}

// carrySupplements copies the parts of loser's supplements that winner lacks.
func (r *Resolver) carrySupplements(winner, loser *model.Record) bool {
	changed := false
	for _, s := range loser.Supplements {
		attrs := missingAttributes(s.Attributes, winner)
		if len(attrs) == 0 {
			continue
		}
		s.Attributes = attrs
		winner.Supplements = append(winner.Supplements, s)
		changed = true
	}
	return changed
}
