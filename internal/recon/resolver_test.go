package recon_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fitrec/internal/database"
	"fitrec/internal/model"
	"fitrec/internal/recon"
	"fitrec/internal/testutil"
)

func newTestResolver(t *testing.T) (*recon.Resolver, *database.MemoryDatabase) {
	t.Helper()
	db := database.NewMemoryDatabase()
	r := recon.NewResolver(db, recon.DefaultMatching(), testutil.NewImportClock(), testutil.NewRecordIDs(), recon.NewNopLogger())
	return r, db
}

func legDay(source model.Source, energy float64, captured time.Time) *model.Record {
	sets := []model.WorkoutSet{
		{Index: 0, Reps: 5, LoadKg: 100},
		{Index: 1, Reps: 5, LoadKg: 100},
		{Index: 2, Reps: 5, LoadKg: 100},
	}
	return &model.Record{
		Kind:       model.KindWorkout,
		Timestamp:  time.Date(2024, 3, 2, 17, 0, 0, 0, time.UTC),
		CapturedAt: captured,
		Source:     source,
		Fields: &model.WorkoutFields{
			Title:       "Legs",
			DurationSec: 3600,
			EnergyKcal:  energy,
			Exercises:   []model.Exercise{{Name: "Squat", Sets: sets}},
		},
	}
}

func stored(t *testing.T, db recon.Database, kind model.Kind) []*model.Record {
	t.Helper()
	recs, err := db.ListRecords(context.Background(), kind, 0)
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	return recs
}

func mustResolve(t *testing.T, r *recon.Resolver, rec *model.Record) recon.Outcome {
	t.Helper()
	out, err := r.Resolve(context.Background(), rec, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return out
}

func TestResolver_MoreDetailedImportReplaces(t *testing.T) {
	r, db := newTestResolver(t)
	captured := time.Date(2024, 3, 2, 18, 0, 0, 0, time.UTC)

	first := legDay(model.SourceImportHevy, 0, captured)
	second := legDay(model.SourceImportHevy, 410, captured)
	if s1, s2 := model.DetailScore(first), model.DetailScore(second); s1 != 6 || s2 != 7 {
		t.Fatalf("detail scores = %d, %d; want 6, 7", s1, s2)
	}

	out1 := mustResolve(t, r, first)
	if out1.Action != recon.ActionInsert {
		t.Fatalf("first Action = %v, want insert", out1.Action)
	}

	out2 := mustResolve(t, r, second)
	if out2.Action != recon.ActionReplace {
		t.Fatalf("second Action = %v, want replace", out2.Action)
	}
	if out2.RecordID == out1.RecordID {
		t.Error("replacement kept the old record id")
	}
	if len(out2.Removed) != 1 || out2.Removed[0] != out1.RecordID {
		t.Errorf("Removed = %v, want [%s]", out2.Removed, out1.RecordID)
	}

	recs := stored(t, db, model.KindWorkout)
	if len(recs) != 1 || recs[0].Fields.(*model.WorkoutFields).EnergyKcal != 410 {
		t.Errorf("stored = %+v, want one record with 410 kcal", recs)
	}
}

func TestResolver_LessDetailedImportDiscarded(t *testing.T) {
	r, db := newTestResolver(t)
	captured := time.Date(2024, 3, 2, 18, 0, 0, 0, time.UTC)

	out1 := mustResolve(t, r, legDay(model.SourceImportHevy, 410, captured))
	out2 := mustResolve(t, r, legDay(model.SourceImportApple, 0, captured.Add(time.Hour)))

	if out2.Action != recon.ActionDiscard {
		t.Errorf("Action = %v, want discard", out2.Action)
	}
	if out2.RecordID != out1.RecordID {
		t.Errorf("RecordID = %q, want surviving %q", out2.RecordID, out1.RecordID)
	}
	if n := len(stored(t, db, model.KindWorkout)); n != 1 {
		t.Errorf("stored %d workouts, want 1", n)
	}
}

func TestResolver_WorkoutMatchesAtMinutePrecision(t *testing.T) {
	r, db := newTestResolver(t)
	captured := time.Date(2024, 3, 2, 18, 0, 0, 0, time.UTC)

	a := legDay(model.SourceImportHevy, 0, captured)
	a.Timestamp = a.Timestamp.Add(10 * time.Second)
	b := legDay(model.SourceImportHevy, 0, captured)
	b.Timestamp = b.Timestamp.Add(50 * time.Second)
	c := legDay(model.SourceImportHevy, 0, captured)
	c.Timestamp = c.Timestamp.Add(time.Minute)

	mustResolve(t, r, a)
	if out := mustResolve(t, r, b); out.Action != recon.ActionDiscard {
		t.Errorf("same minute Action = %v, want discard", out.Action)
	}
	if out := mustResolve(t, r, c); out.Action != recon.ActionInsert {
		t.Errorf("next minute Action = %v, want insert", out.Action)
	}
	if n := len(stored(t, db, model.KindWorkout)); n != 2 {
		t.Errorf("stored %d workouts, want 2", n)
	}
}

func TestResolver_SourcePriorityCommutes(t *testing.T) {
	chat := func() *model.Record {
		rec := weight(model.SourceChat, 70.2, "", base.Add(2*time.Hour))
		return rec
	}
	apple := func() *model.Record {
		rec := weight(model.SourceImportApple, 70.0, "Smart Scale", base.Add(time.Minute))
		rec.Timestamp = base.Add(time.Minute)
		return rec
	}

	final := func(t *testing.T, order ...*model.Record) (*model.Record, []recon.Action) {
		r, db := newTestResolver(t)
		var actions []recon.Action
		for _, rec := range order {
			actions = append(actions, mustResolve(t, r, rec).Action)
		}
		recs := stored(t, db, model.KindWeight)
		if len(recs) != 1 {
			t.Fatalf("stored %d records, want 1", len(recs))
		}
		return recs[0], actions
	}

	chatFirst, actions := final(t, chat(), apple())
	if actions[1] != recon.ActionMerge {
		t.Errorf("import after chat Action = %v, want merge", actions[1])
	}
	appleFirst, actions := final(t, apple(), chat())
	if actions[1] != recon.ActionReplace {
		t.Errorf("chat after import Action = %v, want replace", actions[1])
	}

	for name, rec := range map[string]*model.Record{"chat first": chatFirst, "import first": appleFirst} {
		if rec.Source != model.SourceChat {
			t.Errorf("%s: Source = %s, want chat", name, rec.Source)
		}
		if kg := rec.Fields.(*model.WeightFields).ValueKg; kg != 70.2 {
			t.Errorf("%s: ValueKg = %v, want 70.2", name, kg)
		}
		attrs := rec.EffectiveAttributes()
		if attrs["device"] != "Smart Scale" {
			t.Errorf("%s: device = %v, want supplement from import", name, attrs["device"])
		}
		if len(rec.Supplements) != 1 || rec.Supplements[0].Source != model.SourceImportApple {
			t.Errorf("%s: Supplements = %+v", name, rec.Supplements)
		}
		if _, ok := rec.Supplements[0].Attributes["value_kg"]; ok {
			t.Errorf("%s: supplement overrides the authoritative value", name)
		}
	}
}

func TestResolver_MergeIsIdempotent(t *testing.T) {
	r, db := newTestResolver(t)
	mustResolve(t, r, weight(model.SourceChat, 70.2, "", base))

	imported := weight(model.SourceImportApple, 70, "Smart Scale", base)
	if out := mustResolve(t, r, imported.Clone()); out.Action != recon.ActionMerge {
		t.Fatalf("first import Action = %v, want merge", out.Action)
	}
	if out := mustResolve(t, r, imported.Clone()); out.Action != recon.ActionDiscard {
		t.Errorf("second import Action = %v, want discard", out.Action)
	}

	recs := stored(t, db, model.KindWeight)
	if len(recs) != 1 || len(recs[0].Supplements) != 1 {
		t.Errorf("stored = %+v, want one record with one supplement", recs)
	}
}

func TestResolver_DetailNeverDecreases(t *testing.T) {
	r, db := newTestResolver(t)
	captured := time.Date(2024, 3, 2, 18, 0, 0, 0, time.UTC)

	sequence := []*model.Record{
		legDay(model.SourceImportHevy, 0, captured),
		legDay(model.SourceImportHevy, 410, captured),
		legDay(model.SourceImportApple, 0, captured.Add(time.Hour)),
		legDay(model.SourceImportHevy, 0, captured.Add(-time.Hour)),
		legDay(model.SourceImportApple, 500, captured.Add(2*time.Hour)),
	}

	prev := 0
	for i, rec := range sequence {
		mustResolve(t, r, rec)
		recs := stored(t, db, model.KindWorkout)
		if len(recs) != 1 {
			t.Fatalf("step %d: stored %d workouts, want 1", i, len(recs))
		}
		score := model.DetailScore(recs[0])
		if score < prev {
			t.Errorf("step %d: detail score dropped from %d to %d", i, prev, score)
		}
		prev = score
	}
}

func TestResolver_FoldsExistingDuplicates(t *testing.T) {
	r, db := newTestResolver(t)
	ctx := context.Background()

	// Two imported samples left behind in one window, as after an
	// interrupted run.
	a := weight(model.SourceImportApple, 70, "Smart Scale", base)
	a.ID = "a"
	b := weight(model.SourceImportHevy, 70.1, "", base.Add(time.Minute))
	b.ID = "b"
	b.Timestamp = base.Add(time.Minute)
	for _, rec := range []*model.Record{a, b} {
		if err := db.Put(ctx, rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	out := mustResolve(t, r, weight(model.SourceManual, 69.9, "", base))
	if out.Action != recon.ActionReplace {
		t.Errorf("Action = %v, want replace", out.Action)
	}
	if len(out.Removed) != 2 {
		t.Errorf("Removed = %v, want both stale records", out.Removed)
	}

	recs := stored(t, db, model.KindWeight)
	if len(recs) != 1 {
		t.Fatalf("stored %d records, want 1", len(recs))
	}
	if recs[0].Source != model.SourceManual || recs[0].EffectiveAttributes()["device"] != "Smart Scale" {
		t.Errorf("survivor = %+v", recs[0])
	}
}

func putAll(t *testing.T, db recon.Database, recs ...*model.Record) {
	t.Helper()
	for _, rec := range recs {
		if err := db.Put(context.Background(), rec); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
}

func TestResolver_ImportNeverFoldsManualEntries(t *testing.T) {
	r, db := newTestResolver(t)

	// Two separate weigh-ins three minutes apart; both overlap the window
	// of an import taken in between.
	first := weight(model.SourceManual, 70, "", base)
	first.ID = "first"
	second := weight(model.SourceManual, 75, "", base)
	second.ID = "second"
	second.Timestamp = base.Add(3 * time.Minute)
	putAll(t, db, first, second)

	imported := weight(model.SourceImportApple, 70.1, "Smart Scale", base)
	imported.Timestamp = base.Add(time.Minute)
	out := mustResolve(t, r, imported)

	if out.Action != recon.ActionMerge || out.RecordID != "first" {
		t.Errorf("Resolve() = %+v, want merge into the nearest manual entry", out)
	}
	if len(out.Removed) != 0 || out.Folded != 0 {
		t.Errorf("Removed = %v Folded = %d, want nothing removed", out.Removed, out.Folded)
	}

	recs := stored(t, db, model.KindWeight)
	if len(recs) != 2 {
		t.Fatalf("stored %d records, want both manual entries", len(recs))
	}
	byID := map[string]*model.Record{}
	for _, rec := range recs {
		byID[rec.ID] = rec
	}
	if got := byID["first"]; got == nil || got.Fields.(*model.WeightFields).ValueKg != 70 || got.EffectiveAttributes()["device"] != "Smart Scale" {
		t.Errorf("first = %+v, want 70 kg with the import's device", got)
	}
	if got := byID["second"]; got == nil || got.Fields.(*model.WeightFields).ValueKg != 75 || len(got.Supplements) != 0 {
		t.Errorf("second = %+v, want untouched", got)
	}
}

func TestResolver_FoldStaysWithinSurvivorTolerance(t *testing.T) {
	r, db := newTestResolver(t)

	// Both match the incoming window but are four minutes apart, so they
	// are not duplicates of each other.
	early := weight(model.SourceImportApple, 70, "Smart Scale", base)
	early.ID = "early"
	early.Timestamp = base.Add(-2 * time.Minute)
	late := weight(model.SourceImportHevy, 70.4, "", base)
	late.ID = "late"
	late.Timestamp = base.Add(2 * time.Minute)
	putAll(t, db, early, late)

	out := mustResolve(t, r, weight(model.SourceManual, 70.2, "", base))
	if out.Action != recon.ActionReplace {
		t.Errorf("Action = %v, want replace", out.Action)
	}
	if len(out.Removed) != 1 || out.Removed[0] != "early" || out.Folded != 0 {
		t.Errorf("Removed = %v Folded = %d, want only the preferred candidate", out.Removed, out.Folded)
	}

	recs := stored(t, db, model.KindWeight)
	if len(recs) != 2 {
		t.Fatalf("stored %d records, want 2", len(recs))
	}
	var kept bool
	for _, rec := range recs {
		if rec.ID == "late" {
			kept = true
		}
	}
	if !kept {
		t.Error("late import was folded although it is outside the survivor's tolerance")
	}
}

func TestResolver_FoldDropsAuthoritativeLoserFields(t *testing.T) {
	r, db := newTestResolver(t)

	chat := weight(model.SourceChat, 70, "", base.Add(10*time.Minute))
	chat.ID = "chat"
	chat.Supplements = []model.Supplement{{
		Source:     model.SourceImportApple,
		BatchID:    "b1",
		Attributes: map[string]any{"device": "Smart Scale"},
	}}
	manual := weight(model.SourceManual, 71, "", base.Add(20*time.Minute))
	manual.ID = "manual"
	manual.Timestamp = base.Add(time.Minute)
	putAll(t, db, chat, manual)

	// The chat entry ranks higher on detail, so it anchors the fold and the
	// manual entry loses with its value.
	out := mustResolve(t, r, weight(model.SourceManual, 71.5, "", base.Add(30*time.Minute)))
	if out.Folded != 1 || len(out.Removed) == 0 || out.Removed[0] != "manual" {
		t.Fatalf("Resolve() = %+v, want manual entry folded", out)
	}

	recs := stored(t, db, model.KindWeight)
	if len(recs) != 1 {
		t.Fatalf("stored %d records, want 1", len(recs))
	}
	for _, rec := range recs {
		if v := rec.Fields.(*model.WeightFields).ValueKg; v == 71 {
			t.Errorf("folded manual value survived in %s", rec.ID)
		}
	}
}

func TestResolver_MealItemsCarryWithinCategory(t *testing.T) {
	r, db := newTestResolver(t)
	at := time.Date(2024, 1, 15, 7, 30, 0, 0, time.UTC)

	breakfast := &model.Record{
		Kind: model.KindMeal, Timestamp: at, CapturedAt: at.Add(time.Hour), Source: model.SourceChat,
		Fields: &model.MealFields{Name: "Breakfast", Calories: 520, Items: []model.MealItem{
			{Name: "Eggs", Quantity: "2"}, {Name: "Toast"},
		}},
	}
	coffee := &model.Record{
		Kind: model.KindMeal, Timestamp: at.Add(10 * time.Minute), CapturedAt: at, Source: model.SourceChat,
		Fields: &model.MealFields{Items: []model.MealItem{{Name: "coffee"}, {Name: " eggs "}}},
	}

	mustResolve(t, r, breakfast)
	out := mustResolve(t, r, coffee)
	if out.Action != recon.ActionMerge {
		t.Errorf("Action = %v, want merge", out.Action)
	}

	recs := stored(t, db, model.KindMeal)
	if len(recs) != 1 {
		t.Fatalf("stored %d meals, want 1", len(recs))
	}
	items := recs[0].Fields.(*model.MealFields).Items
	if len(items) != 3 || items[2].Name != "coffee" {
		t.Errorf("Items = %+v, want eggs, toast, coffee", items)
	}
	if items[0].Quantity != "2" {
		t.Errorf("existing item modified: %+v", items[0])
	}

	if out := mustResolve(t, r, coffee.Clone()); out.Action != recon.ActionDiscard {
		t.Errorf("repeat Action = %v, want discard", out.Action)
	}
}

func TestResolver_ConcurrentSubmissionsShareOneSlot(t *testing.T) {
	r, db := newTestResolver(t)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := weight(model.SourceChat, 70+float64(i)/10, "", base.Add(time.Duration(i)*time.Second))
			rec.Timestamp = base.Add(time.Duration(i%3) * 20 * time.Second)
			if _, err := r.Resolve(context.Background(), rec, ""); err != nil {
				t.Errorf("Resolve() error = %v", err)
			}
		}()
	}
	wg.Wait()

	recs := stored(t, db, model.KindWeight)
	if len(recs) != 1 {
		t.Fatalf("stored %d records, want 1", len(recs))
	}
	if kg := recs[0].Fields.(*model.WeightFields).ValueKg; kg != 71.5 {
		t.Errorf("ValueKg = %v, want the most recently captured 71.5", kg)
	}
}

func TestResolver_InvalidRecord(t *testing.T) {
	r, _ := newTestResolver(t)
	rec := weight(model.SourceChat, 70, "", base)
	rec.Fields = &model.SleepFields{}
	if _, err := r.Resolve(context.Background(), rec, ""); err == nil {
		t.Error("Resolve() expected error for mismatched fields")
	}
}

func TestResolver_StorageFailure(t *testing.T) {
	db := testutil.NewFailingDatabase(database.NewMemoryDatabase())
	db.FailQueryAt = base
	r := recon.NewResolver(db, recon.DefaultMatching(), testutil.NewImportClock(), testutil.NewRecordIDs(), recon.NewNopLogger())

	_, err := r.Resolve(context.Background(), weight(model.SourceChat, 70, "", base), "")
	var se *recon.StorageError
	if !errors.As(err, &se) || se.Op != "query" {
		t.Fatalf("Resolve() error = %v, want query StorageError", err)
	}
	if !errors.Is(err, testutil.ErrInjected) {
		t.Errorf("error %v does not wrap the store failure", err)
	}
	if n := len(stored(t, db, model.KindWeight)); n != 0 {
		t.Errorf("stored %d records after failure, want 0", n)
	}
}
