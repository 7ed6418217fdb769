// Package constraint implements §4.4's constraint registry: per-kind
// config validation and typed decoding, grounded on the teacher's
// policy/opa.go validate-before-insert shape (reject malformed config
// before it ever reaches the store).
package constraint

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// TripConfig marks a named travel window; the coordinator derives
// exactly one canonical event from it, bound via constraint_id.
type TripConfig struct {
	Name        string `json:"name"`
	Timezone    string `json:"timezone"`
	BlockPolicy string `json:"block_policy"` // BUSY | TITLE
}

// WorkingHoursConfig declares the recurring daily window during which
// the account is normally available.
type WorkingHoursConfig struct {
	Days      []int  `json:"days"` // 0 (Sunday) .. 6 (Saturday)
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Timezone  string `json:"timezone"`
}

// BufferConfig extends busy intervals around surviving events.
type BufferConfig struct {
	Type      string `json:"type"` // travel | prep | cooldown
	Minutes   int    `json:"minutes"`
	AppliesTo string `json:"applies_to"` // all | external
}

// NoMeetingsAfterConfig marks every day's local time after Time as
// unavailable.
type NoMeetingsAfterConfig struct {
	Time     string `json:"time"` // "HH:MM"
	Timezone string `json:"timezone"`
}

// OverrideConfig is a named exception window. It carries no automatic
// availability effect (§4.5's algorithm never consults it); it exists
// to be surfaced to callers as a documented exception alongside other
// constraints.
type OverrideConfig struct {
	Reason    string  `json:"reason"`
	SlotStart *string `json:"slot_start,omitempty"`
	SlotEnd   *string `json:"slot_end,omitempty"`
}

var hhmmPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Validate decodes and validates a constraint's config_json against
// the rules for its kind. activeFrom/activeTo are the constraint
// row's own columns (required and order-checked for trip). It returns
// ValidationError so the HTTP layer maps failures to 400 uniformly.
func Validate(kind domain.ConstraintKind, configJSON string, activeFrom, activeTo *time.Time) error {
	switch kind {
	case domain.ConstraintTrip:
		var c TripConfig
		if err := decode(configJSON, &c); err != nil {
			return err
		}
		if c.Name == "" {
			return tminuserrors.NewValidation("trip constraint requires a non-empty name")
		}
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return tminuserrors.NewValidation("trip: invalid timezone %q: %v", c.Timezone, err)
		}
		if c.BlockPolicy != "BUSY" && c.BlockPolicy != "TITLE" {
			return tminuserrors.NewValidation("trip: block_policy must be BUSY or TITLE, got %q", c.BlockPolicy)
		}
		if activeFrom == nil || activeTo == nil {
			return tminuserrors.NewValidation("trip constraint requires active_from and active_to")
		}
		if !activeFrom.Before(*activeTo) {
			return tminuserrors.NewValidation("trip: active_from must be before active_to")
		}
		return nil

	case domain.ConstraintWorkingHours:
		var c WorkingHoursConfig
		if err := decode(configJSON, &c); err != nil {
			return err
		}
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return tminuserrors.NewValidation("working_hours: invalid timezone %q: %v", c.Timezone, err)
		}
		if len(c.Days) == 0 {
			return tminuserrors.NewValidation("working_hours: days must be a non-empty set")
		}
		seen := make(map[int]bool, len(c.Days))
		for _, d := range c.Days {
			if d < 0 || d > 6 {
				return tminuserrors.NewValidation("working_hours: day %d out of range 0..6", d)
			}
			if seen[d] {
				return tminuserrors.NewValidation("working_hours: duplicate day %d", d)
			}
			seen[d] = true
		}
		if !hhmmPattern.MatchString(c.StartTime) {
			return tminuserrors.NewValidation("working_hours: invalid start_time %q", c.StartTime)
		}
		if !hhmmPattern.MatchString(c.EndTime) {
			return tminuserrors.NewValidation("working_hours: invalid end_time %q", c.EndTime)
		}
		if c.EndTime <= c.StartTime {
			return tminuserrors.NewValidation("working_hours: end_time must be after start_time")
		}
		return nil

	case domain.ConstraintBuffer:
		var c BufferConfig
		if err := decode(configJSON, &c); err != nil {
			return err
		}
		switch c.Type {
		case "travel", "prep", "cooldown":
		default:
			return tminuserrors.NewValidation("buffer: type must be travel, prep, or cooldown, got %q", c.Type)
		}
		if c.Minutes <= 0 {
			return tminuserrors.NewValidation("buffer: minutes must be a positive integer")
		}
		switch c.AppliesTo {
		case "all", "external":
		default:
			return tminuserrors.NewValidation("buffer: applies_to must be all or external, got %q", c.AppliesTo)
		}
		return nil

	case domain.ConstraintNoMeetingsAfter:
		var c NoMeetingsAfterConfig
		if err := decode(configJSON, &c); err != nil {
			return err
		}
		if !hhmmPattern.MatchString(c.Time) {
			return tminuserrors.NewValidation("no_meetings_after: invalid time %q", c.Time)
		}
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return tminuserrors.NewValidation("no_meetings_after: invalid timezone %q: %v", c.Timezone, err)
		}
		return nil

	case domain.ConstraintOverride:
		var c OverrideConfig
		if err := decode(configJSON, &c); err != nil {
			return err
		}
		if c.Reason == "" {
			return tminuserrors.NewValidation("override constraint requires a non-empty reason")
		}
		if c.SlotStart != nil && c.SlotEnd != nil {
			start, err1 := time.Parse(time.RFC3339, *c.SlotStart)
			end, err2 := time.Parse(time.RFC3339, *c.SlotEnd)
			if err1 != nil || err2 != nil {
				return tminuserrors.NewValidation("override: slot_start/slot_end must be RFC3339 timestamps")
			}
			if !start.Before(end) {
				return tminuserrors.NewValidation("override: slot_start must be before slot_end")
			}
		}
		return nil

	default:
		return tminuserrors.NewValidation("unknown constraint kind %q", kind)
	}
}

func decode(configJSON string, v any) error {
	if err := json.Unmarshal([]byte(configJSON), v); err != nil {
		return tminuserrors.NewValidation("malformed constraint config: %v", err)
	}
	return nil
}
