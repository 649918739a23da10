// Package attendance defines the application's core attendance-related domain entities.
package attendance

import (
	"fmt"
	"time"
)

// LocationSample is one reading from the external location provider. The core
// only consumes samples; acquisition cadence and power mode belong to the
// provider.
type LocationSample struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracyMeters"`
	CapturedAt     time.Time `json:"capturedAt"`
}

// Validate rejects samples that can never be evaluated against a zone.
func (s LocationSample) Validate() error {
	if s.AccuracyMeters < 0 {
		return fmt.Errorf("accuracyMeters must be >= 0, got %f", s.AccuracyMeters)
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %f", s.Latitude)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %f", s.Longitude)
	}
	if s.CapturedAt.IsZero() {
		return fmt.Errorf("capturedAt is required")
	}
	return nil
}
