// Package geofence evaluates location samples against registered attendance
// zones. Evaluation is pure and deterministic; callers own the policy for
// ambiguous verdicts.
package geofence

import (
	"math"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
)

// Verdict is the result of evaluating a sample against a zone.
type Verdict string

const (
	VerdictInside    Verdict = "inside"
	VerdictOutside   Verdict = "outside"
	VerdictAmbiguous Verdict = "ambiguous"
)

const earthRadiusMeters = 6371000.0

// Evaluate classifies a sample against a zone using great-circle distance.
// Inside requires the whole accuracy circle within the zone radius; Outside
// requires it wholly beyond; anything straddling the boundary is Ambiguous
// and must never be silently treated as Inside.
func Evaluate(sample attendance.LocationSample, zone *attendance.Zone) Verdict {
	d := Distance(sample.Latitude, sample.Longitude, zone.CenterLat, zone.CenterLon)

	switch {
	case d+sample.AccuracyMeters <= zone.RadiusMeters:
		return VerdictInside
	case d-sample.AccuracyMeters > zone.RadiusMeters:
		return VerdictOutside
	default:
		return VerdictAmbiguous
	}
}

// Distance returns the great-circle distance in meters between two
// coordinates, via the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
