package availability

import (
	"testing"
	"time"

	"github.com/RamXX/tminus/internal/domain"
)

func TestMergeIntervalsSortsAndDedups(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []Interval{
		{Start: base.Add(2 * time.Hour), End: base.Add(3 * time.Hour)},
		{Start: base, End: base.Add(1 * time.Hour)},
		{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)},
	}
	got := MergeIntervals(in)
	if len(got) != 2 {
		t.Fatalf("expected 2 merged intervals, got %d: %+v", len(got), got)
	}
	if !got[0].Start.Equal(base) || !got[0].End.Equal(base.Add(90*time.Minute)) {
		t.Errorf("unexpected first interval: %+v", got[0])
	}
}

func TestInvertIntervals(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	busy := []Interval{{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}}
	free := InvertIntervals(busy, base, base.Add(3*time.Hour))
	if len(free) != 2 {
		t.Fatalf("expected 2 free intervals, got %d: %+v", len(free), free)
	}
	if !free[0].Start.Equal(base) || !free[0].End.Equal(base.Add(time.Hour)) {
		t.Errorf("unexpected first free interval: %+v", free[0])
	}
	if !free[1].Start.Equal(base.Add(2*time.Hour)) || !free[1].End.Equal(base.Add(3*time.Hour)) {
		t.Errorf("unexpected second free interval: %+v", free[1])
	}
}

func TestMergeTaggedUnionsAccountIDs(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []TaggedInterval{
		{Interval: Interval{Start: base, End: base.Add(time.Hour)}, AccountIDs: []string{"acc_A"}},
		{Interval: Interval{Start: base.Add(30 * time.Minute), End: base.Add(90 * time.Minute)}, AccountIDs: []string{"acc_B"}},
	}
	got := MergeTagged(in)
	if len(got) != 1 {
		t.Fatalf("expected 1 merged interval, got %d: %+v", len(got), got)
	}
	if len(got[0].AccountIDs) != 2 {
		t.Errorf("expected union of both accounts, got %+v", got[0].AccountIDs)
	}
}

func TestEvaluateBasicBusyEvent(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	events := []domain.CanonicalEvent{
		{
			CanonicalEventID: "evt_1", OriginAccountID: "acc_A", Status: domain.StatusConfirmed, Transparency: domain.TransparencyOpaque,
			StartTS: base.Add(10 * time.Hour).Format(time.RFC3339), EndTS: base.Add(11 * time.Hour).Format(time.RFC3339),
		},
	}
	res, err := Evaluate(events, nil, base, base.Add(24*time.Hour), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Free) != 2 {
		t.Fatalf("expected 2 free intervals around one busy event, got %d: %+v", len(res.Free), res.Free)
	}
	if len(res.Busy) != 1 || res.Busy[0].AccountIDs[0] != "acc_A" {
		t.Errorf("expected one busy interval tagged acc_A, got %+v", res.Busy)
	}
}

func TestEvaluateTransparentEventDoesNotBlock(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	events := []domain.CanonicalEvent{
		{
			CanonicalEventID: "evt_1", Status: domain.StatusConfirmed, Transparency: domain.TransparencyTransparent,
			StartTS: base.Add(10 * time.Hour).Format(time.RFC3339), EndTS: base.Add(11 * time.Hour).Format(time.RFC3339),
		},
	}
	res, err := Evaluate(events, nil, base, base.Add(24*time.Hour), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Free) != 1 || !res.Free[0].Start.Equal(base) {
		t.Fatalf("expected the whole window free, got %+v", res.Free)
	}
}

func TestEvaluateAccountFilterExcludesOtherAccounts(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	events := []domain.CanonicalEvent{
		{
			CanonicalEventID: "evt_1", OriginAccountID: "acc_B", Status: domain.StatusConfirmed, Transparency: domain.TransparencyOpaque,
			StartTS: base.Add(10 * time.Hour).Format(time.RFC3339), EndTS: base.Add(11 * time.Hour).Format(time.RFC3339),
		},
	}
	res, err := Evaluate(events, nil, base, base.Add(24*time.Hour), []string{"acc_A"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Busy) != 0 {
		t.Fatalf("expected acc_B's event excluded by the acc_A filter, got %+v", res.Busy)
	}
}

func TestEvaluateConstraintDerivedEventBypassesFilter(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	events := []domain.CanonicalEvent{
		{
			CanonicalEventID: "evt_trip", OriginAccountID: domain.InternalAccountID, ConstraintID: "cst_1",
			Status: domain.StatusConfirmed, Transparency: domain.TransparencyOpaque,
			StartTS: base.Add(10 * time.Hour).Format(time.RFC3339), EndTS: base.Add(11 * time.Hour).Format(time.RFC3339),
		},
	}
	res, err := Evaluate(events, nil, base, base.Add(24*time.Hour), []string{"acc_A"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Busy) != 1 {
		t.Fatalf("expected constraint-derived event to bypass the account filter, got %+v", res.Busy)
	}
}

func TestEvaluateWorkingHoursRestrictsDay(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // Monday
	constraints := []domain.Constraint{
		{
			ConstraintID: "cst_1", Kind: domain.ConstraintWorkingHours,
			ConfigJSON: `{"days":[1,2,3,4,5],"start_time":"09:00","end_time":"17:00","timezone":"UTC"}`,
		},
	}
	res, err := Evaluate(nil, constraints, base, base.Add(24*time.Hour), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Free) != 1 {
		t.Fatalf("expected exactly one free interval (the working day), got %d: %+v", len(res.Free), res.Free)
	}
	wantStart := base.Add(9 * time.Hour)
	wantEnd := base.Add(17 * time.Hour)
	if !res.Free[0].Start.Equal(wantStart) || !res.Free[0].End.Equal(wantEnd) {
		t.Errorf("expected working hours 9-17, got %+v", res.Free[0])
	}
}

func TestEvaluateWeekendFullyBusyUnderWorkingHours(t *testing.T) {
	base := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC) // Saturday
	constraints := []domain.Constraint{
		{
			ConstraintID: "cst_1", Kind: domain.ConstraintWorkingHours,
			ConfigJSON: `{"days":[1,2,3,4,5],"start_time":"09:00","end_time":"17:00","timezone":"UTC"}`,
		},
	}
	res, err := Evaluate(nil, constraints, base, base.Add(24*time.Hour), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Free) != 0 {
		t.Fatalf("expected no free time on a non-working day, got %+v", res.Free)
	}
}

func TestEvaluateNoMeetingsAfter(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	constraints := []domain.Constraint{
		{ConstraintID: "cst_1", Kind: domain.ConstraintNoMeetingsAfter, ConfigJSON: `{"time":"18:00","timezone":"UTC"}`},
	}
	res, err := Evaluate(nil, constraints, base, base.Add(24*time.Hour), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Free) != 1 || !res.Free[0].End.Equal(base.Add(18*time.Hour)) {
		t.Fatalf("expected free time to end at 18:00, got %+v", res.Free)
	}
}

func TestEvaluateBufferPadsTravelBeforeEvent(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	events := []domain.CanonicalEvent{
		{
			CanonicalEventID: "evt_1", OriginAccountID: "acc_A", Status: domain.StatusConfirmed, Transparency: domain.TransparencyOpaque,
			StartTS: base.Add(10 * time.Hour).Format(time.RFC3339), EndTS: base.Add(11 * time.Hour).Format(time.RFC3339),
		},
	}
	constraints := []domain.Constraint{
		{ConstraintID: "cst_1", Kind: domain.ConstraintBuffer, ConfigJSON: `{"type":"travel","minutes":30,"applies_to":"all"}`},
	}
	res, err := Evaluate(events, constraints, base, base.Add(24*time.Hour), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	wantBusyStart := base.Add(10*time.Hour - 30*time.Minute)
	for _, f := range res.Free {
		if f.Start.Before(wantBusyStart) && f.End.After(wantBusyStart) {
			t.Errorf("expected travel buffer to extend busy time back to %v, got overlapping free %+v", wantBusyStart, f)
		}
	}
}

func TestEvaluateCooldownAppliesAfterEvent(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	events := []domain.CanonicalEvent{
		{
			CanonicalEventID: "evt_1", OriginAccountID: "acc_A", Status: domain.StatusConfirmed, Transparency: domain.TransparencyOpaque,
			StartTS: base.Add(10 * time.Hour).Format(time.RFC3339), EndTS: base.Add(11 * time.Hour).Format(time.RFC3339),
		},
	}
	constraints := []domain.Constraint{
		{ConstraintID: "cst_1", Kind: domain.ConstraintBuffer, ConfigJSON: `{"type":"cooldown","minutes":15,"applies_to":"all"}`},
	}
	res, err := Evaluate(events, constraints, base, base.Add(24*time.Hour), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	wantBusyEnd := base.Add(11*time.Hour + 15*time.Minute)
	for _, f := range res.Free {
		if f.Start.Before(wantBusyEnd) && f.End.After(base.Add(11*time.Hour)) {
			t.Errorf("expected cooldown to extend busy time to %v, got overlapping free %+v", wantBusyEnd, f)
		}
	}
}

func TestEvaluateBufferAppliesToExternalSkipsConstraintDerived(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	events := []domain.CanonicalEvent{
		{
			CanonicalEventID: "evt_trip", OriginAccountID: domain.InternalAccountID, ConstraintID: "cst_trip",
			Status: domain.StatusConfirmed, Transparency: domain.TransparencyOpaque,
			StartTS: base.Add(10 * time.Hour).Format(time.RFC3339), EndTS: base.Add(11 * time.Hour).Format(time.RFC3339),
		},
	}
	constraints := []domain.Constraint{
		{ConstraintID: "cst_buf", Kind: domain.ConstraintBuffer, ConfigJSON: `{"type":"travel","minutes":60,"applies_to":"external"}`},
	}
	res, err := Evaluate(events, constraints, base, base.Add(24*time.Hour), nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// Only the trip's own [10:00,11:00) should be busy; the buffer must
	// not extend it since applies_to=external skips constraint-derived events.
	if len(res.Busy) != 1 {
		t.Fatalf("expected buffer to skip the constraint-derived trip, got %+v", res.Busy)
	}
	if !res.Busy[0].Start.Equal(base.Add(10 * time.Hour)) {
		t.Errorf("expected unpadded trip busy interval, got %+v", res.Busy[0])
	}
}

func TestEvaluateRejectsInvertedWindow(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := Evaluate(nil, nil, base, base, nil)
	if err == nil {
		t.Fatal("expected error for non-positive window")
	}
}
