package services

import (
	"fmt"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	persistence "github.com/attendly/attendly-go/internal/infrastructure/persistence/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/security"
)

// ZoneService handles zone registry operations
type ZoneService struct {
	zoneRepo *persistence.ZoneRepository
}

// NewZoneService creates a new zone service
func NewZoneService(zoneRepo *persistence.ZoneRepository) *ZoneService {
	return &ZoneService{zoneRepo: zoneRepo}
}

// ZoneInput carries the caller-supplied zone fields.
type ZoneInput struct {
	Label        string  `json:"label"`
	Address      *string `json:"address,omitempty"`
	CenterLat    float64 `json:"centerLat"`
	CenterLon    float64 `json:"centerLon"`
	RadiusMeters float64 `json:"radiusMeters"`
	StartHour    int     `json:"startHour"`
	StartMinute  int     `json:"startMinute"`
	EndHour      int     `json:"endHour"`
	EndMinute    int     `json:"endMinute"`
}

func (in *ZoneInput) validate() error {
	if in.Label == "" {
		return fmt.Errorf("zone label cannot be empty")
	}
	if in.CenterLat < -90 || in.CenterLat > 90 {
		return fmt.Errorf("center latitude out of range: %f", in.CenterLat)
	}
	if in.CenterLon < -180 || in.CenterLon > 180 {
		return fmt.Errorf("center longitude out of range: %f", in.CenterLon)
	}
	if in.RadiusMeters <= 0 {
		return fmt.Errorf("radius must be positive: %f", in.RadiusMeters)
	}
	if in.StartHour < 0 || in.StartHour > 23 || in.EndHour < 0 || in.EndHour > 23 {
		return fmt.Errorf("window hours out of range")
	}
	if in.StartMinute < 0 || in.StartMinute > 59 || in.EndMinute < 0 || in.EndMinute > 59 {
		return fmt.Errorf("window minutes out of range")
	}
	return nil
}

func (in *ZoneInput) toZone(id string, created time.Time) *attendance.Zone {
	return &attendance.Zone{
		ID:           id,
		Label:        in.Label,
		Address:      in.Address,
		CenterLat:    in.CenterLat,
		CenterLon:    in.CenterLon,
		RadiusMeters: in.RadiusMeters,
		StartHour:    in.StartHour,
		StartMinute:  in.StartMinute,
		EndHour:      in.EndHour,
		EndMinute:    in.EndMinute,
		Created:      created,
	}
}

// GetZone retrieves a zone by id, superseded or not.
func (s *ZoneService) GetZone(id string) (*attendance.Zone, error) {
	if id == "" {
		return nil, fmt.Errorf("zone ID cannot be empty")
	}
	return s.zoneRepo.ZoneByID(id)
}

// GetActiveZones retrieves all zones that have not been superseded.
func (s *ZoneService) GetActiveZones() ([]*attendance.Zone, error) {
	zones, err := s.zoneRepo.ActiveZones()
	if err != nil {
		return nil, fmt.Errorf("failed to get active zones: %w", err)
	}
	return zones, nil
}

// CreateZone registers a new zone with a fresh id.
func (s *ZoneService) CreateZone(input ZoneInput) (*attendance.Zone, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	zone := input.toZone(security.NewZoneID(), time.Now().UTC())
	if err := s.zoneRepo.Store(zone); err != nil {
		return nil, fmt.Errorf("failed to create zone: %w", err)
	}
	return zone, nil
}

// UpdateZone replaces a zone's geometry by superseding it with a fresh id.
// Historical records keep resolving against the old geometry.
func (s *ZoneService) UpdateZone(oldID string, input ZoneInput) (*attendance.Zone, error) {
	if oldID == "" {
		return nil, fmt.Errorf("zone ID cannot be empty")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	replacement := input.toZone(security.NewZoneID(), time.Now().UTC())
	if err := s.zoneRepo.Supersede(oldID, replacement); err != nil {
		return nil, fmt.Errorf("failed to update zone %s: %w", oldID, err)
	}
	return replacement, nil
}
