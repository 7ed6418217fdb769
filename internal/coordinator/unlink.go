package coordinator

import (
	"context"
	"time"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/idgen"
)

// UnlinkResult is unlinkAccount's return shape.
type UnlinkResult struct {
	EventsDeleted  int
	MirrorsDeleted int
}

// UnlinkAccount cascades an account removal per §4.3: hard-deletes
// canonicals the account originated, deletes the mirror rows to and
// from it (enqueueing DELETE_MIRROR for each), strips policy edges and calendar metadata referencing it, and
// appends one account_unlinked journal entry with actor "system".
func (c *Coordinator) UnlinkAccount(ctx context.Context, accountID string) (UnlinkResult, error) {
	var out UnlinkResult
	err := c.do(ctx, func(ctx context.Context) error {
		originated, err := c.store.ListEventsByOriginAccount(ctx, accountID)
		if err != nil {
			return err
		}
		for _, ev := range originated {
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
				out.MirrorsDeleted++
			}
			if err := c.store.DeleteEvent(ctx, ev.CanonicalEventID); err != nil {
				return err
			}
			if err := c.journal(ctx, ev.CanonicalEventID, "system", domain.ChangeDeleted, nil, "account_unlinked"); err != nil {
				return err
			}
			out.EventsDeleted++
		}

		targeted, err := c.store.ListMirrorsByTargetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		for _, m := range targeted {
			if c.enqueue != nil {
				if err := c.enqueue.EnqueueDeleteMirror(ctx, deleteMirrorMessage(m)); err != nil {
					return err
				}
			}
			if err := c.store.DeleteMirror(ctx, m.CanonicalEventID, m.TargetAccountID); err != nil {
				return err
			}
			out.MirrorsDeleted++
		}

		policies, err := c.store.ListPolicies(ctx)
		if err != nil {
			return err
		}
		for _, p := range policies {
			edges, err := c.store.ListPolicyEdges(ctx, p.PolicyID)
			if err != nil {
				return err
			}
			kept := edges[:0]
			changed := false
			for _, e := range edges {
				if e.FromAccountID == accountID || e.ToAccountID == accountID {
					changed = true
					continue
				}
				kept = append(kept, e)
			}
			if changed {
				if err := c.store.SetPolicyEdges(ctx, p.PolicyID, kept); err != nil {
					return err
				}
			}
		}

		calendars, err := c.store.ListCalendarsByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		for _, cal := range calendars {
			if err := c.store.DeleteCalendar(ctx, cal.CalendarID); err != nil {
				return err
			}
		}

		return c.store.AppendJournal(ctx, domain.JournalEntry{
			JournalID:  idgen.New(idgen.PrefixJournal),
			TS:         time.Now().UTC(),
			Actor:      "system",
			ChangeType: domain.ChangeAccountUnlinked,
			Reason:     "unlink:" + accountID,
		})
	})
	return out, err
}
