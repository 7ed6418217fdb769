package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/RamXX/tminus/internal/constraint"
	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/idgen"
)

// AddConstraint validates a constraint by kind, inserts it, and — for
// trip constraints — materializes exactly one derived canonical event
// bound via constraint_id, journaled with {reason:"trip_constraint"}.
func (c *Coordinator) AddConstraint(ctx context.Context, kind domain.ConstraintKind, configJSON string, activeFrom, activeTo *time.Time) (domain.Constraint, error) {
	var out domain.Constraint
	err := c.do(ctx, func(ctx context.Context) error {
		if err := constraint.Validate(kind, configJSON, activeFrom, activeTo); err != nil {
			return err
		}
		now := time.Now().UTC()
		cst := domain.Constraint{
			ConstraintID: idgen.NewAt(idgen.PrefixConstraint, now),
			Kind:         kind,
			ConfigJSON:   configJSON,
			ActiveFrom:   activeFrom,
			ActiveTo:     activeTo,
			CreatedAt:    now,
		}
		if err := c.store.CreateConstraint(ctx, cst); err != nil {
			return err
		}

		if kind == domain.ConstraintTrip {
			var cfg constraint.TripConfig
			if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
				return err
			}
			title := cfg.Name
			if cfg.BlockPolicy == "BUSY" {
				title = "Busy"
			}
			ev := domain.CanonicalEvent{
				CanonicalEventID: idgen.NewAt(idgen.PrefixEvent, now),
				OriginAccountID:  domain.InternalAccountID,
				OriginEventID:    "constraint:" + cst.ConstraintID,
				Title:            title,
				StartTS:          activeFrom.UTC().Format(time.RFC3339),
				EndTS:            activeTo.UTC().Format(time.RFC3339),
				Timezone:         cfg.Timezone,
				Status:           domain.StatusConfirmed,
				Transparency:     domain.TransparencyOpaque,
				Source:           domain.SourceSystem,
				Version:          1,
				ConstraintID:     cst.ConstraintID,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := c.store.PutEvent(ctx, ev); err != nil {
				return err
			}
			patch, _ := json.Marshal(map[string]any{"constraint_id": cst.ConstraintID})
			if err := c.store.AppendJournal(ctx, domain.JournalEntry{
				JournalID:        idgen.New(idgen.PrefixJournal),
				CanonicalEventID: ev.CanonicalEventID,
				TS:               now,
				Actor:            "system",
				ChangeType:       domain.ChangeCreated,
				PatchJSON:        string(patch),
				Reason:           "trip_constraint",
			}); err != nil {
				return err
			}
			if err := c.projectEvent(ctx, ev, nil); err != nil {
				return err
			}
		}
		out = cst
		return nil
	})
	return out, err
}

// DeleteConstraint removes a constraint row and, for trips, cascades
// to the derived canonical event(s) and their mirrors.
func (c *Coordinator) DeleteConstraint(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := c.do(ctx, func(ctx context.Context) error {
		cst, err := c.store.GetConstraint(ctx, id)
		if err != nil {
			return nil // NotFound -> deleteConstraint returns false
		}
		if err := c.store.DeleteConstraint(ctx, id); err != nil {
			return err
		}

		if cst.Kind == domain.ConstraintTrip {
			events, err := c.store.ListEvents(ctx)
			if err != nil {
				return err
			}
			for _, ev := range events {
				if ev.ConstraintID != id {
					continue
				}
				mirrors, err := c.store.ListMirrors(ctx, ev.CanonicalEventID)
				if err != nil {
					return err
				}
				for _, m := range mirrors {
					if c.enqueue != nil {
						if err := c.enqueue.EnqueueDeleteMirror(ctx, deleteMirrorMessage(m)); err != nil {
							return err
						}
					}
					if err := c.store.DeleteMirror(ctx, m.CanonicalEventID, m.TargetAccountID); err != nil {
						return err
					}
				}
				if err := c.store.DeleteEvent(ctx, ev.CanonicalEventID); err != nil {
					return err
				}
				if err := c.journal(ctx, ev.CanonicalEventID, "system", domain.ChangeDeleted, nil, "constraint_deleted"); err != nil {
					return err
				}
			}
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// ListConstraints returns every constraint, optionally filtered by kind.
func (c *Coordinator) ListConstraints(ctx context.Context, kind domain.ConstraintKind) ([]domain.Constraint, error) {
	var out []domain.Constraint
	err := c.do(ctx, func(ctx context.Context) error {
		cs, err := c.store.ListAllConstraints(ctx, kind)
		out = cs
		return err
	})
	return out, err
}

// GetConstraint returns one constraint by ID.
func (c *Coordinator) GetConstraint(ctx context.Context, id string) (domain.Constraint, error) {
	var out domain.Constraint
	err := c.do(ctx, func(ctx context.Context) error {
		cst, err := c.store.GetConstraint(ctx, id)
		out = cst
		return err
	})
	return out, err
}
