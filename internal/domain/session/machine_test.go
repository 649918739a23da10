package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu         sync.Mutex
	open       map[string]*attendance.Session
	terminated []*attendance.Session
	appended   []attendance.Record
	failNext   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{open: make(map[string]*attendance.Session)}
}

func (f *fakeStore) OpenSession(userID string) (*attendance.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.open[userID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) SaveOpen(s *attendance.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.open[s.UserID] = &cp
	return nil
}

func (f *fakeStore) Terminate(s *attendance.Session, rec attendance.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	delete(f.open, s.UserID)
	cp := *s
	f.terminated = append(f.terminated, &cp)
	f.appended = append(f.appended, rec)
	return nil
}

func (f *fakeStore) OverdueSessions(cutoff time.Time) ([]*attendance.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*attendance.Session
	for _, s := range f.open {
		if s.OpenedAt.Before(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeZones struct {
	zones map[string]*attendance.Zone
}

func (f *fakeZones) ZoneByID(id string) (*attendance.Zone, error) {
	z, ok := f.zones[id]
	if !ok {
		return nil, attendance.ErrZoneNotFound
	}
	return z, nil
}

func testZone() *attendance.Zone {
	return &attendance.Zone{
		ID:           "zone-hq",
		Label:        "HQ",
		CenterLat:    45.0,
		CenterLon:    7.0,
		RadiusMeters: 50,
		Created:      time.Now().UTC(),
	}
}

func testMachine(store Store, zones ZoneResolver, clock func() time.Time) *Machine {
	var n int
	nextID := func(prefix string) func() string {
		return func() string {
			n++
			return fmt.Sprintf("%s-%d", prefix, n)
		}
	}
	return NewMachine(store, zones, ExpiryPolicy{
		MaxOpenDuration: 14 * time.Hour,
		Outcome:         attendance.OutcomeConfirmed,
	}, nextID("session"), nextID("record"), clock)
}

func insideSample() attendance.LocationSample {
	return attendance.LocationSample{Latitude: 45.0, Longitude: 7.0, AccuracyMeters: 5, CapturedAt: time.Now().UTC()}
}

func outsideSample() attendance.LocationSample {
	// ~60m north at accuracy 5: distance - accuracy = 55 > 50.
	return attendance.LocationSample{Latitude: 45.0 + 60.0/111320.0, Longitude: 7.0, AccuracyMeters: 5, CapturedAt: time.Now().UTC()}
}

func ambiguousSample() attendance.LocationSample {
	// ~48m from center with accuracy 10 straddles the 50m boundary.
	return attendance.LocationSample{Latitude: 45.0 + 48.0/111320.0, Longitude: 7.0, AccuracyMeters: 10, CapturedAt: time.Now().UTC()}
}

func TestCheckInAtCenterOpensSession(t *testing.T) {
	store := newFakeStore()
	zone := testZone()
	m := testMachine(store, &fakeZones{zones: map[string]*attendance.Zone{zone.ID: zone}}, nil)

	s, err := m.CheckIn("user-1", zone, insideSample())
	require.NoError(t, err)
	assert.Equal(t, attendance.SessionOpen, s.State)
	assert.Equal(t, "zone-hq", s.ZoneID)
	assert.Empty(t, store.appended)
}

func TestCheckInOutsideFails(t *testing.T) {
	store := newFakeStore()
	zone := testZone()
	m := testMachine(store, &fakeZones{zones: map[string]*attendance.Zone{zone.ID: zone}}, nil)

	_, err := m.CheckIn("user-1", zone, outsideSample())
	assert.ErrorIs(t, err, attendance.ErrOutOfRange)

	open, _ := store.OpenSession("user-1")
	assert.Nil(t, open)
}

func TestCheckInAmbiguousFails(t *testing.T) {
	store := newFakeStore()
	zone := testZone()
	m := testMachine(store, &fakeZones{zones: map[string]*attendance.Zone{zone.ID: zone}}, nil)

	_, err := m.CheckIn("user-1", zone, ambiguousSample())
	assert.ErrorIs(t, err, attendance.ErrLocationUncertain)
}

func TestCheckInWhileOpenFails(t *testing.T) {
	store := newFakeStore()
	zone := testZone()
	m := testMachine(store, &fakeZones{zones: map[string]*attendance.Zone{zone.ID: zone}}, nil)

	_, err := m.CheckIn("user-1", zone, insideSample())
	require.NoError(t, err)

	_, err = m.CheckIn("user-1", zone, insideSample())
	assert.ErrorIs(t, err, attendance.ErrSessionOpen)

	// Only one open session survives.
	assert.Len(t, store.open, 1)
}

func TestCheckOutInsideClosesAndEnqueuesConfirmed(t *testing.T) {
	store := newFakeStore()
	zone := testZone()
	m := testMachine(store, &fakeZones{zones: map[string]*attendance.Zone{zone.ID: zone}}, nil)

	_, err := m.CheckIn("user-1", zone, insideSample())
	require.NoError(t, err)

	s, rec, err := m.CheckOut("user-1", insideSample())
	require.NoError(t, err)
	assert.Equal(t, attendance.SessionClosed, s.State)
	require.NotNil(t, rec)
	assert.Equal(t, attendance.OutcomeConfirmed, rec.Outcome)

	// Exactly one record queued per terminal transition.
	require.Len(t, store.appended, 1)
	assert.Equal(t, rec.RecordID, store.appended[0].RecordID)
}

func TestCheckOutOutsideVoidsSession(t *testing.T) {
	store := newFakeStore()
	zone := testZone()
	m := testMachine(store, &fakeZones{zones: map[string]*attendance.Zone{zone.ID: zone}}, nil)

	_, err := m.CheckIn("user-1", zone, insideSample())
	require.NoError(t, err)

	s, rec, err := m.CheckOut("user-1", outsideSample())
	require.NoError(t, err)
	assert.Equal(t, attendance.SessionVoid, s.State)
	assert.Equal(t, attendance.OutcomeVoided, rec.Outcome)
	require.Len(t, store.appended, 1)
}

func TestCheckOutAmbiguousLeavesSessionOpen(t *testing.T) {
	store := newFakeStore()
	zone := testZone()
	m := testMachine(store, &fakeZones{zones: map[string]*attendance.Zone{zone.ID: zone}}, nil)

	_, err := m.CheckIn("user-1", zone, insideSample())
	require.NoError(t, err)

	_, _, err = m.CheckOut("user-1", ambiguousSample())
	assert.ErrorIs(t, err, attendance.ErrLocationUncertain)

	open, _ := store.OpenSession("user-1")
	require.NotNil(t, open)
	assert.Equal(t, attendance.SessionOpen, open.State)
	assert.Empty(t, store.appended)
}

func TestCheckOutWithoutSessionFails(t *testing.T) {
	store := newFakeStore()
	zone := testZone()
	m := testMachine(store, &fakeZones{zones: map[string]*attendance.Zone{zone.ID: zone}}, nil)

	_, _, err := m.CheckOut("user-1", insideSample())
	assert.ErrorIs(t, err, attendance.ErrNoOpenSession)
}

func TestCheckOutRollsBackWhenAppendFails(t *testing.T) {
	store := newFakeStore()
	zone := testZone()
	m := testMachine(store, &fakeZones{zones: map[string]*attendance.Zone{zone.ID: zone}}, nil)

	_, err := m.CheckIn("user-1", zone, insideSample())
	require.NoError(t, err)

	store.failNext = errors.New("disk full")
	_, _, err = m.CheckOut("user-1", insideSample())
	require.Error(t, err)

	// Neither the transition nor the append happened.
	open, _ := store.OpenSession("user-1")
	require.NotNil(t, open)
	assert.Equal(t, attendance.SessionOpen, open.State)
	assert.Empty(t, store.appended)

	// A retry succeeds cleanly.
	_, rec, err := m.CheckOut("user-1", insideSample())
	require.NoError(t, err)
	assert.Equal(t, attendance.OutcomeConfirmed, rec.Outcome)
	assert.Len(t, store.appended, 1)
}

func TestExpireOverdueClosesAndFlags(t *testing.T) {
	store := newFakeStore()
	zone := testZone()

	current := time.Now().UTC()
	clock := func() time.Time { return current }
	m := testMachine(store, &fakeZones{zones: map[string]*attendance.Zone{zone.ID: zone}}, clock)

	_, err := m.CheckIn("user-1", zone, insideSample())
	require.NoError(t, err)

	// Not yet overdue.
	emitted, err := m.ExpireOverdue()
	require.NoError(t, err)
	assert.Empty(t, emitted)

	current = current.Add(15 * time.Hour)
	emitted, err = m.ExpireOverdue()
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, attendance.OutcomeConfirmed, emitted[0].Outcome)
	assert.True(t, emitted[0].FlaggedForReview)
	assert.Equal(t, current, emitted[0].ClosedAt)

	open, _ := store.OpenSession("user-1")
	assert.Nil(t, open)
}

func TestExpireOverdueVoidPolicy(t *testing.T) {
	store := newFakeStore()
	zone := testZone()
	current := time.Now().UTC()

	var n int
	gen := func() string { n++; return fmt.Sprintf("id-%d", n) }
	m := NewMachine(store, &fakeZones{zones: map[string]*attendance.Zone{zone.ID: zone}}, ExpiryPolicy{
		MaxOpenDuration: time.Hour,
		Outcome:         attendance.OutcomeVoided,
	}, gen, gen, func() time.Time { return current })

	_, err := m.CheckIn("user-1", zone, insideSample())
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)
	emitted, err := m.ExpireOverdue()
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, attendance.OutcomeVoided, emitted[0].Outcome)
	assert.True(t, emitted[0].FlaggedForReview)
}

func TestConcurrentCheckInsSingleWinner(t *testing.T) {
	store := newFakeStore()
	zone := testZone()
	m := testMachine(store, &fakeZones{zones: map[string]*attendance.Zone{zone.ID: zone}}, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.CheckIn("user-1", zone, insideSample())
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, attendance.ErrSessionOpen)
		}
	}
	assert.Equal(t, 1, succeeded)
}
