package attendance

import "time"

// QueueEntry wraps a Record with retry metadata while it awaits remote
// confirmation. Entries are owned exclusively by the durable queue until
// committed or dead-lettered.
type QueueEntry struct {
	Seq         int64      `json:"seq"`
	Record      Record     `json:"record"`
	SyncState   SyncState  `json:"syncState"`
	Attempts    int        `json:"attempts"`
	NextRetryAt time.Time  `json:"nextRetryAt"`
	LastError   *string    `json:"lastError,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueuedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeadAt      *time.Time `json:"deadAt,omitempty"`
}

// ConflictResolution names the winner of a resolved remote conflict.
type ConflictResolution string

const (
	ResolutionKeepLocal  ConflictResolution = "keep_local"
	ResolutionKeepRemote ConflictResolution = "keep_remote"
	ResolutionMerged     ConflictResolution = "merged"
)

// ConflictLogEntry records a resolved concurrent edit for optional manual
// review. Conflicts are always resolved deterministically; the log exists for
// audit, never as a blocking state.
type ConflictLogEntry struct {
	ID             int64              `json:"id"`
	RecordID       string             `json:"recordId"`
	LocalRevision  int64              `json:"localRevision"`
	RemoteRevision int64              `json:"remoteRevision"`
	LocalRecord    Record             `json:"localRecord"`
	RemoteRecord   Record             `json:"remoteRecord"`
	Resolution     ConflictResolution `json:"resolution"`
	ResolvedAt     time.Time          `json:"resolvedAt"`
}

// QueueStatus summarizes queue health for the API and the attention
// indicator.
type QueueStatus struct {
	Pending   int `json:"pending"`
	Uploading int `json:"uploading"`
	Dead      int `json:"dead"`
}
