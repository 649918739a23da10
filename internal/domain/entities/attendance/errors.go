package attendance

import "errors"

// Error taxonomy for attendance capture and sync. Geofence and session errors
// surface synchronously to the caller; queue and sync errors are recorded and
// surfaced asynchronously so a pending upload never blocks a new session.
var (
	// ErrOutOfRange means the sample is outside the zone at check-in.
	// User-correctable, never retried automatically.
	ErrOutOfRange = errors.New("location outside attendance zone")

	// ErrLocationUncertain means the accuracy circle straddles the zone
	// boundary. The caller should retry with a fresh sample.
	ErrLocationUncertain = errors.New("location accuracy straddles zone boundary")

	// ErrSessionOpen means a check-in was attempted while a session is
	// already open for the user.
	ErrSessionOpen = errors.New("attendance session already open")

	// ErrNoOpenSession means a check-out was attempted with no open session.
	ErrNoOpenSession = errors.New("no open attendance session")

	// ErrNetwork marks transient remote failures, retried with backoff.
	// A bounded timeout is treated identically.
	ErrNetwork = errors.New("remote store unreachable")

	// ErrMaxAttempts means an entry exceeded the retry budget and moved to
	// the dead-letter set.
	ErrMaxAttempts = errors.New("max upload attempts exceeded")

	// ErrQueueCorruption marks a durable log row that could not be decoded
	// on startup. Fatal for that entry only; the rest of the queue proceeds.
	ErrQueueCorruption = errors.New("durable queue entry unreadable")

	// ErrZoneNotFound means the referenced zone id is not registered.
	ErrZoneNotFound = errors.New("attendance zone not found")

	// ErrRecordNotFound means no queue entry exists for the record id.
	ErrRecordNotFound = errors.New("attendance record not found")
)
