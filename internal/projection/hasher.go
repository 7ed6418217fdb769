// Package projection implements the stable projection hasher of §4.1:
// a pure function from a canonical event + policy edge to a projected
// payload and its SHA-256 fingerprint, grounded on the teacher's
// caching.Engine hashPrompt/normalizePrompt shape (crypto/sha256 over
// a normalized, field-ordered rendering).
package projection

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tagging"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// Payload is the provider-side event body produced for one edge.
type Payload struct {
	Summary      string
	Description  string
	Location     string
	Visibility   string
	Transparency domain.Transparency
	AllDay       bool
	Date         string // used when AllDay
	DateTime     string // used when !AllDay
	TimeZone     string
	EndDate      string
	EndDateTime  string
	Tags         tagging.Private
}

// Project computes the projected payload for a canonical event under
// one policy edge. It fails with InvariantViolationError when the
// event is malformed (no date and no dateTime representation), and
// with ValidationError when the edge's detail level is unknown.
func Project(ev domain.CanonicalEvent, edge domain.PolicyEdge) (Payload, error) {
	if ev.StartTS == "" && ev.EndTS == "" {
		return Payload{}, tminuserrors.NewInvariantViolation(
			"canonical event %s has neither date nor dateTime form", ev.CanonicalEventID)
	}

	p := Payload{
		AllDay:   ev.AllDay,
		TimeZone: ev.Timezone,
		Tags:     tagging.NewPrivate(ev.CanonicalEventID, originFor(ev)),
	}

	if ev.AllDay {
		p.Date = ev.StartTS
		p.EndDate = ev.EndTS
	} else {
		p.DateTime = ev.StartTS
		p.EndDateTime = ev.EndTS
	}

	switch edge.DetailLevel {
	case domain.DetailBusy:
		p.Summary = "Busy"
		p.Visibility = "private"
		p.Transparency = domain.TransparencyOpaque
	case domain.DetailTitle:
		p.Summary = ev.Title
		p.Visibility = "default"
		p.Transparency = domain.TransparencyOpaque
	case domain.DetailFull:
		p.Summary = ev.Title
		p.Description = ev.Description
		p.Location = ev.Location
		p.Visibility = "default"
		// Only FULL propagates the canonical's own transparency.
		if ev.Transparency == domain.TransparencyTransparent {
			p.Transparency = domain.TransparencyTransparent
		} else {
			p.Transparency = domain.TransparencyOpaque
		}
	default:
		return Payload{}, tminuserrors.NewValidation("unknown detail_level %q", edge.DetailLevel)
	}

	return p, nil
}

// originFor returns the account the event originated from, defaulting
// user-authored events to the "internal" sentinel.
func originFor(ev domain.CanonicalEvent) string {
	if ev.OriginAccountID == "" {
		return domain.InternalAccountID
	}
	return ev.OriginAccountID
}

// Fingerprint computes the SHA-256 hash of a projected payload for a
// given edge. It concatenates canonical_event_id, detail_level,
// calendar_kind, then the level-relevant fields in a fixed order, so
// two equal inputs always hash equal and map iteration order never
// matters (there is none — the rendering is a flat ordered string).
func Fingerprint(eventID string, edge domain.PolicyEdge, p Payload) string {
	var b strings.Builder
	b.WriteString(eventID)
	b.WriteByte('|')
	b.WriteString(string(edge.DetailLevel))
	b.WriteByte('|')
	b.WriteString(string(edge.CalendarKind))
	b.WriteByte('|')
	b.WriteString(p.Summary)
	b.WriteByte('|')
	b.WriteString(p.Visibility)
	b.WriteByte('|')
	b.WriteString(string(p.Transparency))
	b.WriteByte('|')

	if edge.DetailLevel == domain.DetailFull {
		b.WriteString(p.Description)
		b.WriteByte('|')
		b.WriteString(p.Location)
		b.WriteByte('|')
	}

	if p.AllDay {
		b.WriteString("date|")
		b.WriteString(p.Date)
		b.WriteByte('|')
		b.WriteString(p.EndDate)
	} else {
		b.WriteString("dateTime|")
		b.WriteString(p.DateTime)
		b.WriteByte('|')
		b.WriteString(p.EndDateTime)
		b.WriteByte('|')
		b.WriteString(p.TimeZone)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ProjectAndHash is the convenience entry point most callers use: it
// projects, then hashes the projection, in one call.
func ProjectAndHash(ev domain.CanonicalEvent, edge domain.PolicyEdge) (Payload, string, error) {
	p, err := Project(ev, edge)
	if err != nil {
		return Payload{}, "", err
	}
	return p, Fingerprint(ev.CanonicalEventID, edge, p), nil
}
