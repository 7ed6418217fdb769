// Package domain holds the shared entity types of §3's data model.
// It has no behavior of its own — validation and mutation live in the
// packages that own each entity (internal/coordinator,
// internal/policy, internal/constraint) — only the shapes live here,
// so every layer (store, projection, coordinator, httpapi) speaks the
// same struct without import cycles.
package domain

import "time"

// EventStatus is the lifecycle status of a canonical event.
type EventStatus string

const (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
)

// Transparency controls whether an event blocks time.
type Transparency string

const (
	TransparencyOpaque      Transparency = "opaque"
	TransparencyTransparent Transparency = "transparent"
)

// Source identifies who/what produced a mutation.
type Source string

const (
	SourceProvider Source = "provider"
	SourceUI       Source = "ui"
	SourceAPI      Source = "api"
	SourceMCP      Source = "mcp"
	SourceSystem   Source = "system"
)

// InternalAccountID is the sentinel origin_account_id for user-
// authored (non-provider) canonical events.
const InternalAccountID = "internal"

// CanonicalEvent is the authoritative representation of an occurrence.
type CanonicalEvent struct {
	CanonicalEventID string       `json:"canonical_event_id" db:"canonical_event_id"`
	OriginAccountID  string       `json:"origin_account_id" db:"origin_account_id"`
	OriginEventID    string       `json:"origin_event_id" db:"origin_event_id"`
	Title            string       `json:"title" db:"title"`
	Description      string       `json:"description" db:"description"`
	Location         string       `json:"location" db:"location"`
	StartTS          string       `json:"start_ts" db:"start_ts"`
	EndTS            string       `json:"end_ts" db:"end_ts"`
	Timezone         string       `json:"timezone" db:"timezone"`
	AllDay           bool         `json:"all_day" db:"all_day"`
	Status           EventStatus  `json:"status" db:"status"`
	Visibility       string       `json:"visibility" db:"visibility"`
	Transparency     Transparency `json:"transparency" db:"transparency"`
	RecurrenceRule   string       `json:"recurrence_rule,omitempty" db:"recurrence_rule"`
	Source           Source       `json:"source" db:"source"`
	Version          int          `json:"version" db:"version"`
	ConstraintID     string       `json:"constraint_id,omitempty" db:"constraint_id"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"`
}

// MirrorState is the lifecycle state of a mirror row.
type MirrorState string

const (
	MirrorPending    MirrorState = "PENDING"
	MirrorActive     MirrorState = "ACTIVE"
	MirrorDeleted    MirrorState = "DELETED"
	MirrorTombstoned MirrorState = "TOMBSTONED"
	MirrorError      MirrorState = "ERROR"
)

// Mirror is the materialization of a canonical event in one target
// account under one policy edge.
type Mirror struct {
	CanonicalEventID  string      `json:"canonical_event_id" db:"canonical_event_id"`
	TargetAccountID   string      `json:"target_account_id" db:"target_account_id"`
	TargetCalendarID  string      `json:"target_calendar_id" db:"target_calendar_id"`
	ProviderEventID   string      `json:"provider_event_id,omitempty" db:"provider_event_id"`
	LastProjectedHash string      `json:"last_projected_hash" db:"last_projected_hash"`
	LastWriteTS       time.Time   `json:"last_write_ts" db:"last_write_ts"`
	State             MirrorState `json:"state" db:"state"`
	ErrorMessage      string      `json:"error_message,omitempty" db:"error_message"`
}

// ChangeType enumerates journal entry kinds.
type ChangeType string

const (
	ChangeCreated          ChangeType = "created"
	ChangeUpdated          ChangeType = "updated"
	ChangeDeleted          ChangeType = "deleted"
	ChangeMirrored         ChangeType = "mirrored"
	ChangeAccountUnlinked  ChangeType = "account_unlinked"
	ChangeReconcilePrefix  ChangeType = "reconcile:"
)

// JournalEntry is an append-only record of one coordinator mutation.
type JournalEntry struct {
	JournalID        string     `json:"journal_id" db:"journal_id"`
	CanonicalEventID string     `json:"canonical_event_id" db:"canonical_event_id"`
	TS               time.Time  `json:"ts" db:"ts"`
	Actor            string     `json:"actor" db:"actor"`
	ChangeType       ChangeType `json:"change_type" db:"change_type"`
	PatchJSON        string     `json:"patch_json" db:"patch_json"`
	Reason           string     `json:"reason,omitempty" db:"reason"`
}

// DetailLevel is a policy edge's projection detail level.
type DetailLevel string

const (
	DetailBusy  DetailLevel = "BUSY"
	DetailTitle DetailLevel = "TITLE"
	DetailFull  DetailLevel = "FULL"
)

// CalendarKind is a policy edge's target calendar kind.
type CalendarKind string

const (
	CalendarBusyOverlay CalendarKind = "BUSY_OVERLAY"
	CalendarTrueMirror  CalendarKind = "TRUE_MIRROR"
)

// Policy is a named bundle of directed edges between accounts.
type Policy struct {
	PolicyID  string `json:"policy_id" db:"policy_id"`
	Name      string `json:"name" db:"name"`
	IsDefault bool   `json:"is_default" db:"is_default"`
}

// PolicyEdge is a directed (from->to) projection rule.
type PolicyEdge struct {
	PolicyID      string       `json:"policy_id" db:"policy_id"`
	FromAccountID string       `json:"from_account_id" db:"from_account_id"`
	ToAccountID   string       `json:"to_account_id" db:"to_account_id"`
	DetailLevel   DetailLevel  `json:"detail_level" db:"detail_level"`
	CalendarKind  CalendarKind `json:"calendar_kind" db:"calendar_kind"`
}

// ConstraintKind enumerates constraint types.
type ConstraintKind string

const (
	ConstraintTrip            ConstraintKind = "trip"
	ConstraintWorkingHours    ConstraintKind = "working_hours"
	ConstraintBuffer          ConstraintKind = "buffer"
	ConstraintNoMeetingsAfter ConstraintKind = "no_meetings_after"
	ConstraintOverride        ConstraintKind = "override"
)

// Constraint is a typed availability rule.
type Constraint struct {
	ConstraintID string         `json:"constraint_id" db:"constraint_id"`
	Kind         ConstraintKind `json:"kind" db:"kind"`
	ConfigJSON   string         `json:"config_json" db:"config_json"`
	ActiveFrom   *time.Time     `json:"active_from,omitempty" db:"active_from"`
	ActiveTo     *time.Time     `json:"active_to,omitempty" db:"active_to"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// CalendarType enumerates calendar kinds within an external account.
type CalendarType string

const (
	CalTypePrimary     CalendarType = "PRIMARY"
	CalTypeBusyOverlay CalendarType = "BUSY_OVERLAY"
	CalTypeProjected   CalendarType = "PROJECTED"
	CalTypeReadonly    CalendarType = "READONLY"
)

// Calendar is a declared calendar within an external account.
type Calendar struct {
	CalendarID string       `json:"calendar_id" db:"calendar_id"`
	AccountID  string       `json:"account_id" db:"account_id"`
	Type       CalendarType `json:"type" db:"type"`
	Name       string       `json:"name" db:"name"`
}

// SessionStatus is a scheduling session's state machine position, per
// §4.7's diagram.
type SessionStatus string

const (
	SessionOpen             SessionStatus = "open"
	SessionCandidatesReady  SessionStatus = "candidates_ready"
	SessionCommitted        SessionStatus = "committed"
	SessionCancelled        SessionStatus = "cancelled"
	SessionExpired          SessionStatus = "expired"
)

// Candidate is one scored, explained interval a session proposes.
type Candidate struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Score       float64   `json:"score"`
	Explanation string    `json:"explanation"`
}

// Session is a scheduling session: a set of candidate intervals bound
// to a query window, tracked through its status state machine.
type Session struct {
	SessionID      string        `json:"session_id" db:"session_id"`
	Status         SessionStatus `json:"status" db:"status"`
	WindowStart    time.Time     `json:"window_start" db:"window_start"`
	WindowEnd      time.Time     `json:"window_end" db:"window_end"`
	Candidates     []Candidate   `json:"candidates" db:"-"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
	LastActivityAt time.Time     `json:"last_activity_at" db:"last_activity_at"`
}

// HoldStatus is a tentative hold's state machine position.
type HoldStatus string

const (
	HoldHeld     HoldStatus = "held"
	HoldCommitted HoldStatus = "committed"
	HoldReleased HoldStatus = "released"
	HoldExpired  HoldStatus = "expired"
)

// Hold is a tentative reservation of one candidate interval within a
// session, expiring unless committed or explicitly released.
type Hold struct {
	HoldID         string     `json:"hold_id" db:"hold_id"`
	SessionID      string     `json:"session_id" db:"session_id"`
	CandidateStart time.Time  `json:"candidate_start" db:"candidate_start"`
	CandidateEnd   time.Time  `json:"candidate_end" db:"candidate_end"`
	Status         HoldStatus `json:"status" db:"status"`
	ExpiresAt      time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// AccountState is the §4.6 per-account holder's persisted state:
// envelope-encrypted tokens, sync cursor, and notification channel
// lease. Tokens and the DEK are opaque base64 ciphertext here — only
// internal/accountholder ever unwraps them.
type AccountState struct {
	AccountID             string    `json:"account_id" db:"account_id"`
	EncryptedDEK          string    `json:"-" db:"encrypted_dek"`
	EncryptedAccessToken  string    `json:"-" db:"encrypted_access_token"`
	EncryptedRefreshToken string    `json:"-" db:"encrypted_refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at" db:"access_token_expires_at"`
	SyncCursor            string    `json:"sync_cursor" db:"sync_cursor"`
	LastSuccessAt         time.Time `json:"last_success_at" db:"last_success_at"`
	ChannelID             string    `json:"channel_id,omitempty" db:"channel_id"`
	ResourceID            string    `json:"resource_id,omitempty" db:"resource_id"`
	ChannelExpiresAt      time.Time `json:"channel_expires_at,omitempty" db:"channel_expires_at"`
	Active                bool      `json:"active" db:"active"`
}
