// Package queue defines the §6.2 message contracts — the JSON shapes
// that cross the sync, write, and reconcile queues — plus the thin
// producer/consumer wrapper around Redis Streams that moves them,
// grounded on the teacher's redisclient.Client (a thin wrapper around
// *redis.Client built from redis.ParseURL) extended with XADD/XREADGROUP
// calls in place of plain GET/SET.
package queue

import "encoding/json"

// Stream names, one per queue named in §6.2.
const (
	StreamSync      = "tminus:sync"
	StreamWrite     = "tminus:write"
	StreamReconcile = "tminus:reconcile"
	StreamDLQ       = "tminus:dlq"
)

// SyncIncremental requests a provider delta pull against an existing
// cursor, triggered by a provider push notification.
type SyncIncremental struct {
	Type       string `json:"type"` // "SYNC_INCREMENTAL"
	AccountID  string `json:"account_id"`
	ChannelID  string `json:"channel_id"`
	ResourceID string `json:"resource_id"`
	PingTS     string `json:"ping_ts"`
}

// SyncFullReason enumerates why a full (cursor-less) sync was requested.
type SyncFullReason string

const (
	SyncFullOnboarding SyncFullReason = "onboarding"
	SyncFullReconcile  SyncFullReason = "reconcile"
	SyncFullToken410   SyncFullReason = "token_410"
)

// SyncFull requests a full provider read, bypassing the stored cursor.
type SyncFull struct {
	Type      string         `json:"type"` // "SYNC_FULL"
	AccountID string         `json:"account_id"`
	Reason    SyncFullReason `json:"reason"`
}

// EventTime is the Google-Calendar-style {dateTime|date, timeZone?}
// shape §6.2 requires inside a ProjectedEvent.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// ProjectedEvent is the provider-facing payload body §6.2 names,
// carrying the managed tag set inside extendedProperties.private.
type ProjectedEvent struct {
	Summary            string                    `json:"summary"`
	Description        string                    `json:"description,omitempty"`
	Location           string                    `json:"location,omitempty"`
	Start              EventTime                 `json:"start"`
	End                EventTime                 `json:"end"`
	Transparency       string                    `json:"transparency"`
	Visibility         string                    `json:"visibility,omitempty"`
	ExtendedProperties ExtendedPropertiesPrivate `json:"extendedProperties"`
}

// ExtendedPropertiesPrivate wraps the tag map under the "private" key
// the way the provider's wire format requires.
type ExtendedPropertiesPrivate struct {
	Private map[string]string `json:"private"`
}

// UpsertMirror instructs the canonical→provider writer to create or
// patch a mirror. IdempotencyKey = hash(canonical_event_id,
// target_account_id, projected_hash), per §5's idempotency guarantee.
// ProjectedHash carries the same internal/projection.Fingerprint value
// the coordinator already computed and stamped onto the PENDING mirror
// row when it enqueued this message — the writer stores it back onto
// the mirror verbatim on success rather than rehashing the wire bytes,
// so mirror.last_projected_hash always lives in hash(C, E)'s domain
// (spec §8's write-skipping invariant), never a different one.
type UpsertMirror struct {
	Type              string          `json:"type"` // "UPSERT_MIRROR"
	CanonicalEventID  string          `json:"canonical_event_id"`
	TargetAccountID   string          `json:"target_account_id"`
	TargetCalendarID  string          `json:"target_calendar_id"`
	ProjectedPayload  json.RawMessage `json:"projected_payload"`
	ProjectedHash     string          `json:"projected_hash"`
	IdempotencyKey    string          `json:"idempotency_key"`
}

// DeleteMirror instructs the canonical→provider writer to remove a
// mirror's provider-side event.
type DeleteMirror struct {
	Type             string `json:"type"` // "DELETE_MIRROR"
	CanonicalEventID string `json:"canonical_event_id"`
	TargetAccountID  string `json:"target_account_id"`
	ProviderEventID  string `json:"provider_event_id,omitempty"`
	IdempotencyKey   string `json:"idempotency_key"`
}

// ReconcileAccount triggers §4.9's daily reconciliation pass for one
// account.
type ReconcileAccount struct {
	Type        string `json:"type"` // "RECONCILE_ACCOUNT"
	AccountID   string `json:"account_id"`
	UserID      string `json:"user_id"`
	TriggeredAt string `json:"triggered_at"`
}

// maxMessageBytes is §6.2's 128 KiB cap; producers truncate
// descriptions at this boundary rather than reject the message —
// full content always remains in canonical storage.
const maxMessageBytes = 128 * 1024
