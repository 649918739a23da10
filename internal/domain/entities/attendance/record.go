package attendance

import (
	"encoding/json"
	"time"
)

// Outcome is the terminal result of an attendance session.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeVoided    Outcome = "voided"
)

// SyncState tracks a record's position in the upload pipeline.
type SyncState string

const (
	SyncPending    SyncState = "pending"
	SyncUploading  SyncState = "uploading"
	SyncCommitted  SyncState = "committed"
	SyncConflicted SyncState = "conflicted"
	SyncDead       SyncState = "dead"
)

// Punctuality derives from the zone's working window at check-in time.
type Punctuality string

const (
	PunctualityOnTime Punctuality = "on_time"
	PunctualityLate   Punctuality = "late"
	PunctualityMissed Punctuality = "missed"
)

// Record is the durable, queueable projection of a terminal session.
// RecordID is client-generated exactly once per physical session and acts as
// the idempotency key for remote delivery.
type Record struct {
	RecordID         string      `json:"recordId"`
	SessionID        string      `json:"sessionId"`
	UserID           string      `json:"userId"`
	ZoneID           string      `json:"zoneId"`
	OpenedAt         time.Time   `json:"openedAt"`
	ClosedAt         time.Time   `json:"closedAt"`
	Outcome          Outcome     `json:"outcome"`
	Punctuality      Punctuality `json:"punctuality"`
	FlaggedForReview bool        `json:"flaggedForReview"`
	Revision         int64       `json:"revision,omitempty"` // server-assigned
}

// CanonicalPayload serializes the record with server-assigned metadata
// stripped, so two deliveries of the same physical record compare equal.
func (r Record) CanonicalPayload() ([]byte, error) {
	c := r
	c.Revision = 0
	return json.Marshal(c)
}

// EquivalentTo reports whether other is the same record modulo
// server-assigned metadata. Used to recognize idempotent re-delivery.
func (r Record) EquivalentTo(other Record) bool {
	a, err1 := r.CanonicalPayload()
	b, err2 := other.CanonicalPayload()
	if err1 != nil || err2 != nil {
		return false
	}
	return string(a) == string(b)
}

// AttendedDuration is the span the record covers.
func (r Record) AttendedDuration() time.Duration {
	return r.ClosedAt.Sub(r.OpenedAt)
}
