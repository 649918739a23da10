// Package remote defines the contract with the authoritative remote
// attendance store and its libsql-backed implementation.
package remote

import (
	"context"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
)

// PutStatus is the remote store's answer to an idempotent put.
type PutStatus string

const (
	// StatusCommitted means the record is durable remotely at the returned
	// revision, whether this put wrote it or an identical copy already
	// existed (idempotent re-delivery).
	StatusCommitted PutStatus = "committed"

	// StatusConflict means a genuinely different record exists at the same
	// recordId. The caller owns resolution.
	StatusConflict PutStatus = "conflict"
)

// PutResult carries the outcome of a put.
type PutResult struct {
	Status   PutStatus
	Revision int64
	Remote   *attendance.Record // populated on conflict
}

// Store is the remote authoritative store, keyed by recordId. Put must be
// safe to retry: re-delivery of an identical record is a no-op. Transport
// failures are reported as errors wrapping attendance.ErrNetwork; a bounded
// timeout is a transport failure, never success.
type Store interface {
	Put(ctx context.Context, rec attendance.Record, expectedRevision int64) (*PutResult, error)

	// Overwrite force-writes the record as the conflict winner and returns
	// the new server revision.
	Overwrite(ctx context.Context, rec attendance.Record) (int64, error)
}
