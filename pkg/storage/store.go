package storage

import (
	"context"
	"errors"

	"github.com/playbeacon/beacon/pkg/types"
)

var (
	// ErrDuplicate is returned when a heartbeat with the same
	// (server_id, heartbeat_id) already exists. Replay, not an error
	// condition for the caller.
	ErrDuplicate = errors.New("duplicate heartbeat")

	// ErrIDConflict is returned when a heartbeat_id is already owned by
	// a different server. Protocol misuse, surfaced distinctly from
	// ordinary replay.
	ErrIDConflict = errors.New("heartbeat id owned by another server")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// HeartbeatStore is the append-only heartbeat log. Insert must be a
// single atomic insert-or-conflict at the storage layer; an
// application-level check-then-insert would race under concurrent
// duplicate submissions.
type HeartbeatStore interface {
	// Insert appends one heartbeat. Returns ErrDuplicate on a same-server
	// replay and ErrIDConflict when the heartbeat id belongs to a
	// different server.
	Insert(ctx context.Context, hb *types.Heartbeat) error

	// Recent returns up to limit heartbeats for the server, newest-first
	// by server-received time.
	Recent(ctx context.Context, serverID string, limit int) ([]types.Heartbeat, error)
}

// AuditStore records rejected heartbeats with a reason code and no
// payload data.
type AuditStore interface {
	RecordRejection(ctx context.Context, rec types.AuditRecord) error
	Rejections(ctx context.Context, serverID string, limit int) ([]types.AuditRecord, error)
}

// DerivedStore holds one derived-state record per server, written
// through the two-speed update structs.
type DerivedStore interface {
	// Get returns the derived state for a server, or ErrNotFound.
	Get(ctx context.Context, serverID string) (*types.DerivedState, error)

	// List returns all derived-state snapshots (for the ranking pass).
	List(ctx context.Context) ([]types.DerivedState, error)

	// ApplyFastPath writes the narrow ingest-time fields only.
	ApplyFastPath(ctx context.Context, upd types.FastPathUpdate) error

	// ApplyDerived writes the worker-owned fields in one update.
	ApplyDerived(ctx context.Context, upd types.DerivedUpdate) error

	// SetRanking writes the ranking score computed from a snapshot.
	SetRanking(ctx context.Context, serverID string, score float64) error
}

// KeyStore holds per-server cluster key material, owned by the
// administrative collaborator and consumed read-only by ingestion.
type KeyStore interface {
	GetKey(ctx context.Context, serverID string) (*types.ClusterKey, error)
	PutKey(ctx context.Context, key *types.ClusterKey) error
}
