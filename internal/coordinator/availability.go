package coordinator

import (
	"context"
	"time"

	"github.com/RamXX/tminus/internal/availability"
	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/queue"
)

// AvailabilityQuery is computeAvailability's input per §4.5.
type AvailabilityQuery struct {
	Start    time.Time
	End      time.Time
	Accounts []string // optional account filter
}

// ComputeAvailability evaluates constraint-aware free/busy over a
// window, composing the store's events and active constraints through
// the pure internal/availability evaluator.
func (c *Coordinator) ComputeAvailability(ctx context.Context, q AvailabilityQuery) (availability.Result, error) {
	var out availability.Result
	err := c.do(ctx, func(ctx context.Context) error {
		events, err := c.store.ListEventsInWindow(ctx, q.Start, q.End)
		if err != nil {
			return err
		}
		constraints, err := c.store.ListActiveConstraints(ctx, q.Start, q.End)
		if err != nil {
			return err
		}
		res, err := availability.Evaluate(events, constraints, q.Start, q.End, q.Accounts)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// deleteMirrorMessage builds the DELETE_MIRROR queue contract for one
// mirror row, the shared conversion used by unlink and the constraint
// cascade (deleteEventAndMirrors builds the same message inline).
func deleteMirrorMessage(m domain.Mirror) queue.DeleteMirror {
	return queue.DeleteMirror{
		CanonicalEventID: m.CanonicalEventID,
		TargetAccountID:  m.TargetAccountID,
		ProviderEventID:  m.ProviderEventID,
		IdempotencyKey:   idempotencyKeyFor(m.CanonicalEventID, m.TargetAccountID, "deleted"),
	}
}
