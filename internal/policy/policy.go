// Package policy implements the pure rules of §4.2's policy compiler:
// edge validation and default-edge derivation. Persistence of
// policies and edges lives in internal/store; this package only
// decides what is a *valid* edge set and what the *default* edge set
// looks like for a set of known accounts — grounded on the teacher's
// policy/opa.go, which keeps the same split between a validating
// in-memory engine and its CRUD handler.
package policy

import (
	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// ValidateEdge checks one policy edge for well-formedness: non-empty,
// distinct endpoints and a known detail_level/calendar_kind pair.
func ValidateEdge(e domain.PolicyEdge) error {
	if e.FromAccountID == "" || e.ToAccountID == "" {
		return tminuserrors.NewValidation("policy edge requires both from_account_id and to_account_id")
	}
	if e.FromAccountID == e.ToAccountID {
		return tminuserrors.NewValidation("policy edge %s->%s: an account cannot project to itself", e.FromAccountID, e.ToAccountID)
	}
	switch e.DetailLevel {
	case domain.DetailBusy, domain.DetailTitle, domain.DetailFull:
	default:
		return tminuserrors.NewValidation("unknown detail_level %q", e.DetailLevel)
	}
	switch e.CalendarKind {
	case domain.CalendarBusyOverlay, domain.CalendarTrueMirror:
	default:
		return tminuserrors.NewValidation("unknown calendar_kind %q", e.CalendarKind)
	}
	return nil
}

// ValidateEdges validates a whole edge set and rejects duplicate
// (from, to) pairs, since the edge registry is a function, not a
// multimap: one rule governs any ordered account pair.
func ValidateEdges(edges []domain.PolicyEdge) error {
	seen := make(map[[2]string]bool, len(edges))
	for _, e := range edges {
		if err := ValidateEdge(e); err != nil {
			return err
		}
		key := [2]string{e.FromAccountID, e.ToAccountID}
		if seen[key] {
			return tminuserrors.NewValidation("duplicate policy edge %s->%s", e.FromAccountID, e.ToAccountID)
		}
		seen[key] = true
	}
	return nil
}

// DefaultEdges builds the conservative default edge set for a newly
// linked account set: every other known account sees it at BUSY onto
// a BUSY_OVERLAY calendar, the least-disclosing policy per §4.2's
// "default-deny detail" rule.
func DefaultEdges(policyID string, accountIDs []string) []domain.PolicyEdge {
	var edges []domain.PolicyEdge
	for _, from := range accountIDs {
		for _, to := range accountIDs {
			if from == to {
				continue
			}
			edges = append(edges, domain.PolicyEdge{
				PolicyID:      policyID,
				FromAccountID: from,
				ToAccountID:   to,
				DetailLevel:   domain.DetailBusy,
				CalendarKind:  domain.CalendarBusyOverlay,
			})
		}
	}
	return edges
}

// Resolve returns the edge governing from->to within edges, or the
// conservative BUSY/BUSY_OVERLAY default if none was declared — the
// projection compiler must always have a rule to apply, per §4.1's
// "every account pair has an effective edge" invariant.
func Resolve(edges []domain.PolicyEdge, from, to string) domain.PolicyEdge {
	for _, e := range edges {
		if e.FromAccountID == from && e.ToAccountID == to {
			return e
		}
	}
	return domain.PolicyEdge{
		FromAccountID: from,
		ToAccountID:   to,
		DetailLevel:   domain.DetailBusy,
		CalendarKind:  domain.CalendarBusyOverlay,
	}
}
