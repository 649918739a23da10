// Package services provides application-level services that orchestrate
// business logic and coordinate between repositories and domain entities.
package services

import (
	"fmt"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/domain/session"
	"github.com/attendly/attendly-go/internal/infrastructure/messaging"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/performance"
)

// AttendanceService orchestrates check-in and check-out against the session
// state machine and announces transitions on the live feed.
type AttendanceService struct {
	machine *session.Machine
	zones   session.ZoneResolver
	hub     *messaging.LiveHub
	tracker *performance.Tracker
	logger  *logging.ChanneledLogger
}

// NewAttendanceService creates a new attendance application service
func NewAttendanceService(machine *session.Machine, zones session.ZoneResolver, hub *messaging.LiveHub,
	tracker *performance.Tracker, logger *logging.ChanneledLogger,
) *AttendanceService {
	return &AttendanceService{
		machine: machine,
		zones:   zones,
		hub:     hub,
		tracker: tracker,
		logger:  logger,
	}
}

// CheckIn opens a session for the user at the zone.
func (s *AttendanceService) CheckIn(userID, zoneID string, sample attendance.LocationSample) (*attendance.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}
	if zoneID == "" {
		return nil, fmt.Errorf("zone ID cannot be empty")
	}

	marker := s.tracker.StartOperation("session:check_in", "attendance")
	defer s.tracker.CompleteOperation(marker)

	zone, err := s.zones.ZoneByID(zoneID)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}
	if zone.SupersededBy != nil {
		// New sessions only open against current geometry.
		marker.SetError(attendance.ErrZoneNotFound)
		return nil, attendance.ErrZoneNotFound
	}

	sess, err := s.machine.CheckIn(userID, zone, sample)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	s.logger.Session().Info("Check-in accepted",
		"sessionId", sess.SessionID, "userId", userID, "zoneId", zoneID, "punctuality", string(sess.Punctuality))
	s.hub.PublishSessionOpened(sess)
	return sess, nil
}

// CheckOut terminates the user's open session.
func (s *AttendanceService) CheckOut(userID string, sample attendance.LocationSample) (*attendance.Session, *attendance.Record, error) {
	if userID == "" {
		return nil, nil, fmt.Errorf("user ID cannot be empty")
	}

	marker := s.tracker.StartOperation("session:check_out", "attendance")
	defer s.tracker.CompleteOperation(marker)

	sess, rec, err := s.machine.CheckOut(userID, sample)
	if err != nil {
		marker.SetError(err)
		return nil, nil, err
	}

	s.logger.Session().Info("Check-out accepted",
		"sessionId", sess.SessionID, "userId", userID, "outcome", string(rec.Outcome))
	s.hub.PublishSessionClosed(*rec)
	return sess, rec, nil
}

// CurrentSession returns the user's open session, or nil.
func (s *AttendanceService) CurrentSession(userID string) (*attendance.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}
	return s.machine.CurrentSession(userID)
}
