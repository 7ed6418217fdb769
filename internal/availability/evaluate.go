package availability

import (
	"encoding/json"
	"time"

	"github.com/RamXX/tminus/internal/constraint"
	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// Result is §4.5's computeAvailability output: busy intervals tagged
// with the accounts that produced them, and the free complement.
// union(Busy) ∪ union(Free) covers [windowStart, windowEnd) and each
// list is pairwise disjoint.
type Result struct {
	Busy []TaggedInterval
	Free []Interval
}

const workingHoursTag = "working_hours"
const noMeetingsAfterTag = "no_meetings_after"

// Evaluate computes free/busy within [windowStart, windowEnd) given
// the account's canonical events and active constraints, optionally
// restricted to accountFilter (nil/empty means every account).
// Constraint-derived events (ev.ConstraintID != "") always
// participate regardless of accountFilter, per §4.5 step 1.
//
// working_hours and no_meetings_after are expanded day-by-day in
// each constraint's own timezone so DST transitions never shift a
// local boundary (§9 open question (b), resolved in favor of the
// source's day-by-day semantic).
func Evaluate(events []domain.CanonicalEvent, constraints []domain.Constraint, windowStart, windowEnd time.Time, accountFilter []string) (Result, error) {
	if !windowStart.Before(windowEnd) {
		return Result{}, tminuserrors.NewValidation("availability window requires start before end")
	}

	allowed := map[string]bool{}
	for _, a := range accountFilter {
		allowed[a] = true
	}
	filtering := len(allowed) > 0

	var busy []TaggedInterval

	type taggedEvent struct {
		iv TaggedInterval
		ev domain.CanonicalEvent
	}
	var taggedEvents []taggedEvent
	for _, ev := range events {
		if ev.Status == domain.StatusCancelled || ev.Transparency == domain.TransparencyTransparent {
			continue
		}
		account := originAccount(ev)
		if filtering && ev.ConstraintID == "" && !allowed[account] {
			continue
		}
		start, err1 := time.Parse(time.RFC3339, ev.StartTS)
		end, err2 := time.Parse(time.RFC3339, ev.EndTS)
		if err1 != nil || err2 != nil {
			continue
		}
		iv := TaggedInterval{Interval: Interval{Start: start, End: end}, AccountIDs: []string{account}}
		busy = append(busy, iv)
		taggedEvents = append(taggedEvents, taggedEvent{iv: iv, ev: ev})
	}

	var workingHoursCoverage []Interval
	haveWorkingHours := false

	for _, c := range constraints {
		switch c.Kind {
		case domain.ConstraintWorkingHours:
			haveWorkingHours = true
			var cfg constraint.WorkingHoursConfig
			if err := decodeConfig(c.ConfigJSON, &cfg); err != nil {
				return Result{}, err
			}
			cov, err := workingHoursCoverageIntervals(cfg, windowStart, windowEnd)
			if err != nil {
				return Result{}, err
			}
			workingHoursCoverage = append(workingHoursCoverage, cov...)

		case domain.ConstraintNoMeetingsAfter:
			var cfg constraint.NoMeetingsAfterConfig
			if err := decodeConfig(c.ConfigJSON, &cfg); err != nil {
				return Result{}, err
			}
			after, err := dailyAfter(cfg, windowStart, windowEnd)
			if err != nil {
				return Result{}, err
			}
			for _, iv := range after {
				busy = append(busy, TaggedInterval{Interval: iv, AccountIDs: []string{noMeetingsAfterTag}})
			}

		case domain.ConstraintTrip, domain.ConstraintOverride, domain.ConstraintBuffer:
			// trip is materialized as a regular canonical event and
			// already flows through the event-busy loop above; buffer
			// is applied below once event busy is known; override has
			// no automatic availability effect (§4.5 is silent on it).

		default:
			return Result{}, tminuserrors.NewValidation("unknown constraint kind %q", c.Kind)
		}
	}

	if haveWorkingHours {
		outside := InvertIntervals(MergeIntervals(workingHoursCoverage), windowStart, windowEnd)
		for _, iv := range outside {
			busy = append(busy, TaggedInterval{Interval: iv, AccountIDs: []string{workingHoursTag}})
		}
	}

	for _, c := range constraints {
		if c.Kind != domain.ConstraintBuffer {
			continue
		}
		var cfg constraint.BufferConfig
		if err := decodeConfig(c.ConfigJSON, &cfg); err != nil {
			return Result{}, err
		}
		margin := time.Duration(cfg.Minutes) * time.Minute
		for _, te := range taggedEvents {
			if cfg.AppliesTo == "external" && te.ev.ConstraintID != "" {
				continue
			}
			switch cfg.Type {
			case "travel", "prep":
				busy = append(busy, TaggedInterval{
					Interval:   Interval{Start: te.iv.Start.Add(-margin), End: te.iv.Start},
					AccountIDs: te.iv.AccountIDs,
				})
			case "cooldown":
				busy = append(busy, TaggedInterval{
					Interval:   Interval{Start: te.iv.End, End: te.iv.End.Add(margin)},
					AccountIDs: te.iv.AccountIDs,
				})
			}
		}
	}

	merged := MergeTagged(busy)
	free := InvertIntervals(Untagged(merged), windowStart, windowEnd)
	return Result{Busy: merged, Free: free}, nil
}

func originAccount(ev domain.CanonicalEvent) string {
	if ev.OriginAccountID == "" {
		return domain.InternalAccountID
	}
	return ev.OriginAccountID
}

// workingHoursCoverageIntervals expands one working_hours constraint
// into the absolute UTC intervals it covers within the window,
// walking one local calendar day at a time so DST shifts never
// distort a day's boundary.
func workingHoursCoverageIntervals(cfg constraint.WorkingHoursConfig, windowStart, windowEnd time.Time) ([]Interval, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, tminuserrors.NewInvariantViolation("working_hours: invalid timezone %q", cfg.Timezone)
	}
	startClock, err := time.Parse("15:04", cfg.StartTime)
	if err != nil {
		return nil, tminuserrors.NewInvariantViolation("working_hours: invalid start_time %q", cfg.StartTime)
	}
	endClock, err := time.Parse("15:04", cfg.EndTime)
	if err != nil {
		return nil, tminuserrors.NewInvariantViolation("working_hours: invalid end_time %q", cfg.EndTime)
	}

	allowedDays := make(map[time.Weekday]bool, len(cfg.Days))
	for _, d := range cfg.Days {
		if d >= 0 && d <= 6 {
			allowedDays[time.Weekday(d)] = true
		}
	}

	var out []Interval
	localStart := windowStart.In(loc)
	dayCursor := time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, loc)

	for dayCursor.Before(windowEnd) {
		if allowedDays[dayCursor.Weekday()] {
			workStart := time.Date(dayCursor.Year(), dayCursor.Month(), dayCursor.Day(), startClock.Hour(), startClock.Minute(), 0, 0, loc)
			workEnd := time.Date(dayCursor.Year(), dayCursor.Month(), dayCursor.Day(), endClock.Hour(), endClock.Minute(), 0, 0, loc)
			if workEnd.After(workStart) {
				out = append(out, Interval{Start: workStart, End: workEnd})
			}
		}
		dayCursor = time.Date(dayCursor.Year(), dayCursor.Month(), dayCursor.Day()+1, 0, 0, 0, 0, loc)
	}
	return out, nil
}

// dailyAfter expands a recurring "no meetings after HH:MM local" rule
// into busy intervals covering [windowStart, windowEnd), one local
// calendar day at a time.
func dailyAfter(cfg constraint.NoMeetingsAfterConfig, windowStart, windowEnd time.Time) ([]Interval, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, tminuserrors.NewInvariantViolation("no_meetings_after: invalid timezone %q", cfg.Timezone)
	}
	clock, err := time.Parse("15:04", cfg.Time)
	if err != nil {
		return nil, tminuserrors.NewInvariantViolation("no_meetings_after: invalid time %q", cfg.Time)
	}

	var out []Interval
	localStart := windowStart.In(loc)
	dayCursor := time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, loc)

	for dayCursor.Before(windowEnd) {
		nextDay := time.Date(dayCursor.Year(), dayCursor.Month(), dayCursor.Day()+1, 0, 0, 0, 0, loc)
		cutoff := time.Date(dayCursor.Year(), dayCursor.Month(), dayCursor.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
		if nextDay.After(cutoff) {
			out = append(out, Interval{Start: cutoff, End: nextDay})
		}
		dayCursor = nextDay
	}
	return out, nil
}

func decodeConfig(configJSON string, v any) error {
	if err := json.Unmarshal([]byte(configJSON), v); err != nil {
		return tminuserrors.NewInvariantViolation("malformed constraint config: %v", err)
	}
	return nil
}
