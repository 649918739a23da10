package attendance

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
)

// ZoneRepository manages the registry of geofenced attendance zones. Zones
// referenced by committed records are immutable: an edit supersedes the old
// row with a fresh id instead of rewriting geometry history.
type ZoneRepository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

// NewZoneRepository creates a zone repository.
func NewZoneRepository(db *sql.DB, logger *logging.ChanneledLogger) *ZoneRepository {
	return &ZoneRepository{db: db, logger: logger}
}

// ZoneByID loads a zone, superseded or not. Sessions opened against an old
// geometry still resolve it at check-out.
func (r *ZoneRepository) ZoneByID(id string) (*attendance.Zone, error) {
	row := r.db.QueryRow(`
		SELECT id, label, address, center_lat, center_lon, radius_meters, start_hour, start_minute, end_hour, end_minute, superseded_by, created, changed
		FROM zones WHERE id = ?`, id)

	z, err := scanZone(row)
	if err == sql.ErrNoRows {
		return nil, attendance.ErrZoneNotFound
	}
	return z, err
}

// ActiveZones lists zones that have not been superseded.
func (r *ZoneRepository) ActiveZones() ([]*attendance.Zone, error) {
	rows, err := r.db.Query(`
		SELECT id, label, address, center_lat, center_lon, radius_meters, start_hour, start_minute, end_hour, end_minute, superseded_by, created, changed
		FROM zones WHERE superseded_by IS NULL ORDER BY label ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones: %w", err)
	}
	defer rows.Close()

	var zones []*attendance.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// Store inserts a new zone.
func (r *ZoneRepository) Store(z *attendance.Zone) error {
	_, err := r.db.Exec(`
		INSERT INTO zones (id, label, address, center_lat, center_lon, radius_meters, start_hour, start_minute, end_hour, end_minute, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		z.ID, z.Label, z.Address, z.CenterLat, z.CenterLon, z.RadiusMeters,
		z.StartHour, z.StartMinute, z.EndHour, z.EndMinute, z.Created)
	if err != nil {
		return fmt.Errorf("failed to store zone %s: %w", z.ID, err)
	}

	r.logger.Geofence().Info("Zone registered", "zoneId", z.ID, "label", z.Label, "radiusMeters", z.RadiusMeters)
	return nil
}

// Supersede atomically inserts the replacement zone and marks the old one as
// superseded by it. The old id stays resolvable for historical records.
func (r *ZoneRepository) Supersede(oldID string, replacement *attendance.Zone) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin supersede transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO zones (id, label, address, center_lat, center_lon, radius_meters, start_hour, start_minute, end_hour, end_minute, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		replacement.ID, replacement.Label, replacement.Address, replacement.CenterLat, replacement.CenterLon,
		replacement.RadiusMeters, replacement.StartHour, replacement.StartMinute, replacement.EndHour, replacement.EndMinute, replacement.Created)
	if err != nil {
		return fmt.Errorf("failed to insert replacement zone: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.Exec(`
		UPDATE zones SET superseded_by = ?, changed = ? WHERE id = ? AND superseded_by IS NULL`,
		replacement.ID, now, oldID)
	if err != nil {
		return fmt.Errorf("failed to supersede zone %s: %w", oldID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.ErrZoneNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit supersede transaction: %w", err)
	}

	r.logger.Geofence().Info("Zone superseded", "oldZoneId", oldID, "newZoneId", replacement.ID)
	return nil
}

func scanZone(row rowScanner) (*attendance.Zone, error) {
	var z attendance.Zone
	var address, supersededBy sql.NullString
	var changed sql.NullTime

	err := row.Scan(&z.ID, &z.Label, &address, &z.CenterLat, &z.CenterLon, &z.RadiusMeters,
		&z.StartHour, &z.StartMinute, &z.EndHour, &z.EndMinute, &supersededBy, &z.Created, &changed)
	if err != nil {
		return nil, err
	}

	if address.Valid {
		z.Address = &address.String
	}
	if supersededBy.Valid {
		z.SupersededBy = &supersededBy.String
	}
	if changed.Valid {
		z.Changed = &changed.Time
	}
	return &z, nil
}
