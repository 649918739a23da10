package geofence

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(lat, lon, accuracy float64) attendance.LocationSample {
	return attendance.LocationSample{
		Latitude:       lat,
		Longitude:      lon,
		AccuracyMeters: accuracy,
		CapturedAt:     time.Now().UTC(),
	}
}

func zoneAt(lat, lon, radius float64) *attendance.Zone {
	return &attendance.Zone{
		ID:           "zone-1",
		Label:        "HQ",
		CenterLat:    lat,
		CenterLon:    lon,
		RadiusMeters: radius,
		Created:      time.Now().UTC(),
	}
}

func TestEvaluateAtCenter(t *testing.T) {
	zone := zoneAt(45.0, 7.0, 50)
	verdict := Evaluate(sampleAt(45.0, 7.0, 5), zone)
	assert.Equal(t, VerdictInside, verdict)
}

func TestEvaluateOutside(t *testing.T) {
	zone := zoneAt(45.0, 7.0, 50)

	// ~60m north of center at accuracy 5: d - acc = 55 > 50.
	lat := 45.0 + 60.0/111320.0
	verdict := Evaluate(sampleAt(lat, 7.0, 5), zone)
	assert.Equal(t, VerdictOutside, verdict)
}

func TestEvaluateAmbiguousStraddlesBoundary(t *testing.T) {
	zone := zoneAt(45.0, 7.0, 50)

	// ~48m from center with accuracy 10: inside fails (58 > 50),
	// outside fails (38 <= 50).
	lat := 45.0 + 48.0/111320.0
	verdict := Evaluate(sampleAt(lat, 7.0, 10), zone)
	assert.Equal(t, VerdictAmbiguous, verdict)
}

func TestEvaluateZeroAccuracyOnBoundaryIsInside(t *testing.T) {
	zone := zoneAt(0, 0, 100)
	verdict := Evaluate(sampleAt(0, 0, 100), zone)
	assert.Equal(t, VerdictInside, verdict)
}

func TestDistanceKnownValue(t *testing.T) {
	// One degree of latitude is ~111.19 km on the sphere.
	d := Distance(0, 0, 1, 0)
	assert.InDelta(t, 111195, d, 100)
}

func TestDistanceSymmetric(t *testing.T) {
	d1 := Distance(45.07, 7.68, 41.90, 12.49)
	d2 := Distance(41.90, 12.49, 45.07, 7.68)
	assert.InDelta(t, d1, d2, 0.0001)
}

// TestEvaluateVerdictAlgebra checks the boundary algebra over randomized
// centers, radii and samples: the verdict is fully determined by the distance
// and accuracy, and exactly one of the three cases holds.
func TestEvaluateVerdictAlgebra(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		centerLat := rng.Float64()*160 - 80
		centerLon := rng.Float64()*360 - 180
		radius := rng.Float64()*450 + 10

		// Offset within a few radii of the center.
		offsetMeters := rng.Float64() * radius * 3
		bearing := rng.Float64() * 2 * math.Pi
		dLat := offsetMeters * math.Cos(bearing) / 111320.0
		dLon := offsetMeters * math.Sin(bearing) / (111320.0 * math.Cos(centerLat*math.Pi/180))

		sample := sampleAt(centerLat+dLat, centerLon+dLon, rng.Float64()*60)
		zone := zoneAt(centerLat, centerLon, radius)

		d := Distance(sample.Latitude, sample.Longitude, zone.CenterLat, zone.CenterLon)
		verdict := Evaluate(sample, zone)

		switch {
		case d+sample.AccuracyMeters <= radius:
			require.Equal(t, VerdictInside, verdict, "d=%f acc=%f r=%f", d, sample.AccuracyMeters, radius)
		case d-sample.AccuracyMeters > radius:
			require.Equal(t, VerdictOutside, verdict, "d=%f acc=%f r=%f", d, sample.AccuracyMeters, radius)
		default:
			require.Equal(t, VerdictAmbiguous, verdict, "d=%f acc=%f r=%f", d, sample.AccuracyMeters, radius)
		}
	}
}
