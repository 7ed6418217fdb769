package coordinator

import (
	"context"
	"time"

	"github.com/RamXX/tminus/internal/domain"
)

// SyncHealth is getSyncHealth's aggregate counter snapshot.
type SyncHealth struct {
	TotalEvents      int
	TotalMirrors     int
	TotalJournal     int
	PendingMirrors   int
	ErrorMirrors     int
	LastJournalTS    time.Time
}

// GetSyncHealth aggregates store-wide counters the operator or a
// monitoring surface polls: event/mirror/journal totals, mirrors stuck
// PENDING or ERROR, and the most recent journal timestamp.
func (c *Coordinator) GetSyncHealth(ctx context.Context) (SyncHealth, error) {
	var out SyncHealth
	err := c.do(ctx, func(ctx context.Context) error {
		total, err := c.store.CountEvents(ctx)
		if err != nil {
			return err
		}
		jCount, jLast, err := c.store.JournalStats(ctx)
		if err != nil {
			return err
		}
		var mirrorTotal int
		for _, state := range []domain.MirrorState{
			domain.MirrorPending, domain.MirrorActive, domain.MirrorDeleted,
			domain.MirrorTombstoned, domain.MirrorError,
		} {
			ms, err := c.store.ListMirrorsByState(ctx, state)
			if err != nil {
				return err
			}
			mirrorTotal += len(ms)
			switch state {
			case domain.MirrorPending:
				out.PendingMirrors = len(ms)
			case domain.MirrorError:
				out.ErrorMirrors = len(ms)
			}
		}
		out.TotalEvents = total
		out.TotalMirrors = mirrorTotal
		out.TotalJournal = jCount
		out.LastJournalTS = jLast
		return nil
	})
	return out, err
}
