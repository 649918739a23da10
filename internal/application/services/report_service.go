package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	persistence "github.com/attendly/attendly-go/internal/infrastructure/persistence/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/performance"
)

// ReportService projects committed attendance records into read models for
// history and summary views. It only ever reads the committed projection;
// pending queue entries are invisible to reports.
type ReportService struct {
	recordRepo *persistence.RecordRepository
	tracker    *performance.Tracker
}

// NewReportService creates a new report service
func NewReportService(recordRepo *persistence.RecordRepository, tracker *performance.Tracker) *ReportService {
	return &ReportService{recordRepo: recordRepo, tracker: tracker}
}

// ZoneSummary aggregates a user's committed records within one zone.
type ZoneSummary struct {
	ZoneID        string        `json:"zoneId"`
	Confirmed     int           `json:"confirmed"`
	Voided        int           `json:"voided"`
	Flagged       int           `json:"flagged"`
	LateArrivals  int           `json:"lateArrivals"`
	TotalAttended time.Duration `json:"totalAttendedNs"`
}

// DaySummary aggregates a user's committed records for one calendar day.
type DaySummary struct {
	Day           string        `json:"day"` // YYYY-MM-DD
	Confirmed     int           `json:"confirmed"`
	Voided        int           `json:"voided"`
	Flagged       int           `json:"flagged"`
	LateArrivals  int           `json:"lateArrivals"`
	TotalAttended time.Duration `json:"totalAttendedNs"`
}

// AttendanceSummary is the full summary projection over a date range.
type AttendanceSummary struct {
	UserID        string        `json:"userId"`
	From          time.Time     `json:"from"`
	To            time.Time     `json:"to"`
	Confirmed     int           `json:"confirmed"`
	Voided        int           `json:"voided"`
	Flagged       int           `json:"flagged"`
	LateArrivals  int           `json:"lateArrivals"`
	TotalAttended time.Duration `json:"totalAttendedNs"`
	ByZone        []ZoneSummary `json:"byZone"`
	ByDay         []DaySummary  `json:"byDay"`
}

// ListRecords returns the user's committed records in [from, to), ordered by
// openedAt ascending.
func (s *ReportService) ListRecords(userID string, from, to time.Time) ([]*attendance.Record, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID cannot be empty")
	}
	if !to.After(from) {
		return nil, fmt.Errorf("invalid range: to must be after from")
	}

	marker := s.tracker.StartOperation("report:list_records", "reports")
	defer s.tracker.CompleteOperation(marker)

	records, err := s.recordRepo.ListCommitted(userID, from, to)
	if err != nil {
		marker.SetError(err)
		return nil, fmt.Errorf("failed to list records for user %s: %w", userID, err)
	}
	marker.AddMetadata("records", len(records))
	return records, nil
}

// Summarize aggregates the user's committed records in [from, to) by zone and
// by calendar day. Only Confirmed records contribute attended duration; Voided
// records are counted but add no time.
func (s *ReportService) Summarize(userID string, from, to time.Time) (*AttendanceSummary, error) {
	marker := s.tracker.StartOperation("report:summarize", "reports")
	defer s.tracker.CompleteOperation(marker)

	records, err := s.ListRecords(userID, from, to)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	summary := &AttendanceSummary{
		UserID: userID,
		From:   from,
		To:     to,
	}

	byZone := make(map[string]*ZoneSummary)
	byDay := make(map[string]*DaySummary)

	for _, rec := range records {
		zone, ok := byZone[rec.ZoneID]
		if !ok {
			zone = &ZoneSummary{ZoneID: rec.ZoneID}
			byZone[rec.ZoneID] = zone
		}
		dayKey := rec.OpenedAt.UTC().Format("2006-01-02")
		day, ok := byDay[dayKey]
		if !ok {
			day = &DaySummary{Day: dayKey}
			byDay[dayKey] = day
		}

		var attended time.Duration
		switch rec.Outcome {
		case attendance.OutcomeConfirmed:
			attended = rec.ClosedAt.Sub(rec.OpenedAt)
			summary.Confirmed++
			zone.Confirmed++
			day.Confirmed++
		case attendance.OutcomeVoided:
			summary.Voided++
			zone.Voided++
			day.Voided++
		}
		if rec.FlaggedForReview {
			summary.Flagged++
			zone.Flagged++
			day.Flagged++
		}
		if rec.Punctuality == attendance.PunctualityLate {
			summary.LateArrivals++
			zone.LateArrivals++
			day.LateArrivals++
		}

		summary.TotalAttended += attended
		zone.TotalAttended += attended
		day.TotalAttended += attended
	}

	for _, zone := range byZone {
		summary.ByZone = append(summary.ByZone, *zone)
	}
	sort.Slice(summary.ByZone, func(i, j int) bool {
		return summary.ByZone[i].ZoneID < summary.ByZone[j].ZoneID
	})

	for _, day := range byDay {
		summary.ByDay = append(summary.ByDay, *day)
	}
	sort.Slice(summary.ByDay, func(i, j int) bool {
		return summary.ByDay[i].Day < summary.ByDay[j].Day
	})

	marker.AddMetadata("records", len(records))
	return summary, nil
}
