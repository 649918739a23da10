package attendance

import "time"

// Zone is a registered circular attendance area. A zone referenced by a
// committed record is immutable; edits are stored under a fresh zone id so
// historical records keep pointing at the geometry they were validated
// against.
type Zone struct {
	ID           string     `json:"id"`
	Label        string     `json:"label"`
	Address      *string    `json:"address,omitempty"`
	CenterLat    float64    `json:"centerLat"`
	CenterLon    float64    `json:"centerLon"`
	RadiusMeters float64    `json:"radiusMeters"`
	StartHour    int        `json:"startHour"`
	StartMinute  int        `json:"startMinute"`
	EndHour      int        `json:"endHour"`
	EndMinute    int        `json:"endMinute"`
	SupersededBy *string    `json:"supersededBy,omitempty"`
	Created      time.Time  `json:"created"`
	Changed      *time.Time `json:"changed,omitempty"`
}

// WindowOpensAt returns the working-window start on the given day, in the
// location of t.
func (z *Zone) WindowOpensAt(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), z.StartHour, z.StartMinute, 0, 0, t.Location())
}

// WindowClosesAt returns the working-window end on the given day.
func (z *Zone) WindowClosesAt(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), z.EndHour, z.EndMinute, 0, 0, t.Location())
}

// PunctualityAt derives the punctuality status for a check-in at t. Zones
// without a configured window always report OnTime.
func (z *Zone) PunctualityAt(t time.Time) Punctuality {
	if z.StartHour == 0 && z.StartMinute == 0 && z.EndHour == 0 && z.EndMinute == 0 {
		return PunctualityOnTime
	}
	if t.After(z.WindowOpensAt(t)) {
		return PunctualityLate
	}
	return PunctualityOnTime
}
