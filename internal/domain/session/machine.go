// Package session implements the attendance session state machine: one
// check-in to check-out lifecycle per user, validated by the geofence
// evaluator, with every terminal transition emitting exactly one durable
// attendance record.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/domain/geofence"
)

// Store persists session state. Terminate must atomically persist the
// terminal session and append its record to the durable queue: either both
// happen or neither, so a closed session can never exist without a queued
// record.
type Store interface {
	OpenSession(userID string) (*attendance.Session, error)
	SaveOpen(s *attendance.Session) error
	Terminate(s *attendance.Session, rec attendance.Record) error
	OverdueSessions(cutoff time.Time) ([]*attendance.Session, error)
}

// ZoneResolver looks up zone geometry for check-out evaluation.
type ZoneResolver interface {
	ZoneByID(id string) (*attendance.Zone, error)
}

// ExpiryPolicy governs sessions left open past the configured maximum.
// Whether an overdue session closes or voids is deployment policy, not a
// hardcoded assumption.
type ExpiryPolicy struct {
	MaxOpenDuration time.Duration
	Outcome         attendance.Outcome // OutcomeConfirmed (close) or OutcomeVoided
}

// Machine governs attendance session transitions. All mutations happen under
// an exclusive per-user lock so concurrent location callbacks cannot race a
// check-in against a check-out.
type Machine struct {
	store  Store
	zones  ZoneResolver
	policy ExpiryPolicy

	newSessionID func() string
	newRecordID  func() string
	now          func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMachine creates a session state machine with injected id generators and
// clock.
func NewMachine(store Store, zones ZoneResolver, policy ExpiryPolicy, newSessionID, newRecordID func() string, now func() time.Time) *Machine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Machine{
		store:        store,
		zones:        zones,
		policy:       policy,
		newSessionID: newSessionID,
		newRecordID:  newRecordID,
		now:          now,
		locks:        make(map[string]*sync.Mutex),
	}
}

func (m *Machine) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	return lock
}

// CheckIn opens a session for the user at the zone. Requires no open session
// for the user; the sample must evaluate Inside. Outside fails with
// ErrOutOfRange, Ambiguous with ErrLocationUncertain (the caller may retry
// with a fresh sample).
func (m *Machine) CheckIn(userID string, zone *attendance.Zone, sample attendance.LocationSample) (*attendance.Session, error) {
	if err := sample.Validate(); err != nil {
		return nil, fmt.Errorf("invalid location sample: %w", err)
	}

	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.store.OpenSession(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open session: %w", err)
	}
	if existing != nil {
		return nil, attendance.ErrSessionOpen
	}

	switch geofence.Evaluate(sample, zone) {
	case geofence.VerdictOutside:
		return nil, attendance.ErrOutOfRange
	case geofence.VerdictAmbiguous:
		return nil, attendance.ErrLocationUncertain
	}

	openedAt := m.now()
	s := &attendance.Session{
		SessionID:   m.newSessionID(),
		UserID:      userID,
		ZoneID:      zone.ID,
		State:       attendance.SessionOpen,
		OpenedAt:    openedAt,
		OpenSample:  sample,
		Punctuality: zone.PunctualityAt(openedAt),
	}

	if err := m.store.SaveOpen(s); err != nil {
		return nil, fmt.Errorf("failed to persist open session: %w", err)
	}
	return s, nil
}

// CurrentSession returns the user's open session, or nil when none exists.
func (m *Machine) CurrentSession(userID string) (*attendance.Session, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.OpenSession(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open session: %w", err)
	}
	return s, nil
}

// CheckOut terminates the user's open session. Inside closes it with a
// Confirmed record; Outside voids it with a Voided record so the attempt
// leaves an audit trail instead of being discarded; Ambiguous leaves the
// session open and returns ErrLocationUncertain.
func (m *Machine) CheckOut(userID string, sample attendance.LocationSample) (*attendance.Session, *attendance.Record, error) {
	if err := sample.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid location sample: %w", err)
	}

	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	s, err := m.store.OpenSession(userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load open session: %w", err)
	}
	if s == nil {
		return nil, nil, attendance.ErrNoOpenSession
	}

	zone, err := m.zones.ZoneByID(s.ZoneID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve session zone %s: %w", s.ZoneID, err)
	}

	var outcome attendance.Outcome
	switch geofence.Evaluate(sample, zone) {
	case geofence.VerdictInside:
		outcome = attendance.OutcomeConfirmed
		s.State = attendance.SessionClosed
	case geofence.VerdictOutside:
		outcome = attendance.OutcomeVoided
		s.State = attendance.SessionVoid
	default:
		return nil, nil, attendance.ErrLocationUncertain
	}

	closedAt := m.now()
	s.ClosedAt = &closedAt
	s.CloseSample = &sample

	rec := m.recordFor(s, outcome)
	if err := m.store.Terminate(s, rec); err != nil {
		// Roll back the in-memory transition; the session is still open.
		s.State = attendance.SessionOpen
		s.ClosedAt = nil
		s.CloseSample = nil
		return nil, nil, fmt.Errorf("failed to terminate session: %w", err)
	}
	return s, &rec, nil
}

// ExpireOverdue force-terminates sessions open longer than the policy
// maximum, with a system-supplied closedAt, and flags them for administrative
// review. Returns the records emitted.
func (m *Machine) ExpireOverdue() ([]attendance.Record, error) {
	now := m.now()
	cutoff := now.Add(-m.policy.MaxOpenDuration)

	overdue, err := m.store.OverdueSessions(cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue sessions: %w", err)
	}

	var emitted []attendance.Record
	for _, s := range overdue {
		lock := m.userLock(s.UserID)
		lock.Lock()

		// Re-read under the lock; an explicit check-out may have won.
		current, err := m.store.OpenSession(s.UserID)
		if err != nil || current == nil || current.SessionID != s.SessionID {
			lock.Unlock()
			continue
		}

		outcome := m.policy.Outcome
		if outcome == attendance.OutcomeVoided {
			current.State = attendance.SessionVoid
		} else {
			outcome = attendance.OutcomeConfirmed
			current.State = attendance.SessionClosed
		}
		closedAt := now
		current.ClosedAt = &closedAt
		current.FlaggedForReview = true

		rec := m.recordFor(current, outcome)
		if err := m.store.Terminate(current, rec); err != nil {
			current.State = attendance.SessionOpen
			current.ClosedAt = nil
			current.FlaggedForReview = false
			lock.Unlock()
			return emitted, fmt.Errorf("failed to expire session %s: %w", current.SessionID, err)
		}
		emitted = append(emitted, rec)
		lock.Unlock()
	}
	return emitted, nil
}

func (m *Machine) recordFor(s *attendance.Session, outcome attendance.Outcome) attendance.Record {
	return attendance.Record{
		RecordID:         m.newRecordID(),
		SessionID:        s.SessionID,
		UserID:           s.UserID,
		ZoneID:           s.ZoneID,
		OpenedAt:         s.OpenedAt,
		ClosedAt:         *s.ClosedAt,
		Outcome:          outcome,
		Punctuality:      s.Punctuality,
		FlaggedForReview: s.FlaggedForReview,
	}
}
