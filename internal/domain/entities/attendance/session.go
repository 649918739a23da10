package attendance

import "time"

// SessionState is the lifecycle state of one attendance session.
type SessionState string

const (
	SessionOpen   SessionState = "open"
	SessionClosed SessionState = "closed"
	SessionVoid   SessionState = "void"
)

// Session tracks one check-in to check-out span for a user at a zone. A
// session is owned exclusively by one user while Open and becomes immutable
// once Closed or Void.
type Session struct {
	SessionID   string          `json:"sessionId"`
	UserID      string          `json:"userId"`
	ZoneID      string          `json:"zoneId"`
	State       SessionState    `json:"state"`
	OpenedAt    time.Time       `json:"openedAt"`
	ClosedAt    *time.Time      `json:"closedAt,omitempty"`
	OpenSample  LocationSample  `json:"openSample"`
	CloseSample *LocationSample `json:"closeSample,omitempty"`
	Punctuality Punctuality     `json:"punctuality"`

	// FlaggedForReview marks sessions force-terminated by the overdue
	// sweeper rather than an explicit check-out.
	FlaggedForReview bool `json:"flaggedForReview"`
}

// IsTerminal reports whether the session can no longer transition.
func (s *Session) IsTerminal() bool {
	return s.State == SessionClosed || s.State == SessionVoid
}

// OpenFor returns how long the session has been open as of now.
func (s *Session) OpenFor(now time.Time) time.Duration {
	return now.Sub(s.OpenedAt)
}
