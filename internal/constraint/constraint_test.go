package constraint

import (
	"testing"
	"time"

	"github.com/RamXX/tminus/internal/domain"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestValidateTrip(t *testing.T) {
	good := `{"name":"Ski trip","timezone":"UTC","block_policy":"BUSY"}`
	if err := Validate(domain.ConstraintTrip, good, ts("2026-03-01T00:00:00Z"), ts("2026-03-05T00:00:00Z")); err != nil {
		t.Fatalf("expected valid trip, got %v", err)
	}
	if err := Validate(domain.ConstraintTrip, good, ts("2026-03-05T00:00:00Z"), ts("2026-03-01T00:00:00Z")); err == nil {
		t.Fatal("expected error for active_to before active_from")
	}
	if err := Validate(domain.ConstraintTrip, good, nil, nil); err == nil {
		t.Fatal("expected error for missing active window")
	}
	badPolicy := `{"name":"Ski trip","timezone":"UTC","block_policy":"FULL"}`
	if err := Validate(domain.ConstraintTrip, badPolicy, ts("2026-03-01T00:00:00Z"), ts("2026-03-05T00:00:00Z")); err == nil {
		t.Fatal("expected error for invalid block_policy")
	}
}

func TestValidateWorkingHours(t *testing.T) {
	good := `{"days":[1,2,3,4,5],"start_time":"09:00","end_time":"17:00","timezone":"America/New_York"}`
	if err := Validate(domain.ConstraintWorkingHours, good, nil, nil); err != nil {
		t.Fatalf("expected valid working_hours, got %v", err)
	}
	badTZ := `{"days":[1],"start_time":"09:00","end_time":"17:00","timezone":"Not/AZone"}`
	if err := Validate(domain.ConstraintWorkingHours, badTZ, nil, nil); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
	badDay := `{"days":[7],"start_time":"09:00","end_time":"17:00","timezone":"UTC"}`
	if err := Validate(domain.ConstraintWorkingHours, badDay, nil, nil); err == nil {
		t.Fatal("expected error for out-of-range day")
	}
	dupDay := `{"days":[1,1],"start_time":"09:00","end_time":"17:00","timezone":"UTC"}`
	if err := Validate(domain.ConstraintWorkingHours, dupDay, nil, nil); err == nil {
		t.Fatal("expected error for duplicate day")
	}
	reversed := `{"days":[1],"start_time":"17:00","end_time":"09:00","timezone":"UTC"}`
	if err := Validate(domain.ConstraintWorkingHours, reversed, nil, nil); err == nil {
		t.Fatal("expected error for end_time before start_time")
	}
}

func TestValidateBuffer(t *testing.T) {
	good := `{"type":"travel","minutes":30,"applies_to":"all"}`
	if err := Validate(domain.ConstraintBuffer, good, nil, nil); err != nil {
		t.Fatalf("expected valid buffer, got %v", err)
	}
	zero := `{"type":"cooldown","minutes":0,"applies_to":"external"}`
	if err := Validate(domain.ConstraintBuffer, zero, nil, nil); err == nil {
		t.Fatal("expected error for zero minutes")
	}
	badType := `{"type":"nap","minutes":10,"applies_to":"all"}`
	if err := Validate(domain.ConstraintBuffer, badType, nil, nil); err == nil {
		t.Fatal("expected error for invalid type")
	}
}

func TestValidateNoMeetingsAfter(t *testing.T) {
	if err := Validate(domain.ConstraintNoMeetingsAfter, `{"time":"18:00","timezone":"UTC"}`, nil, nil); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := Validate(domain.ConstraintNoMeetingsAfter, `{"time":"25:99","timezone":"UTC"}`, nil, nil); err == nil {
		t.Fatal("expected error for invalid clock time")
	}
}

func TestValidateOverride(t *testing.T) {
	noSlot := `{"reason":"doctor appointment"}`
	if err := Validate(domain.ConstraintOverride, noSlot, nil, nil); err != nil {
		t.Fatalf("expected valid override with no slot, got %v", err)
	}
	withSlot := `{"reason":"doctor appointment","slot_start":"2026-03-01T10:00:00Z","slot_end":"2026-03-01T11:00:00Z"}`
	if err := Validate(domain.ConstraintOverride, withSlot, nil, nil); err != nil {
		t.Fatalf("expected valid override with slot, got %v", err)
	}
	noReason := `{"slot_start":"2026-03-01T10:00:00Z","slot_end":"2026-03-01T11:00:00Z"}`
	if err := Validate(domain.ConstraintOverride, noReason, nil, nil); err == nil {
		t.Fatal("expected error for missing reason")
	}
}

func TestValidateUnknownKind(t *testing.T) {
	if err := Validate(domain.ConstraintKind("bogus"), `{}`, nil, nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
