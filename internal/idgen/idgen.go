// Package idgen mints lexicographically sortable, time-ordered,
// prefix-tagged entity IDs.
package idgen

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes for the entity kinds named in the data model.
const (
	PrefixEvent            = "evt"
	PrefixJournal          = "jrn"
	PrefixPolicy           = "pol"
	PrefixConstraint       = "cst"
	PrefixCalendar         = "alc"
	PrefixComment          = "cmt"
	PrefixSession          = "ses"
	PrefixHold             = "hld"
	PrefixAccount          = "acc"
)

// New mints a new ID for the given prefix using the current time.
func New(prefix string) string {
	return NewAt(prefix, time.Now())
}

// NewAt mints a new ID for the given prefix at a specific time, so
// the ID sorts by that time rather than by the moment it was minted.
func NewAt(prefix string, t time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(t), rand.Reader)
	return prefix + "_" + id.String()
}
