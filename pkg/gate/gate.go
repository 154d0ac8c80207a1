package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/playbeacon/beacon/pkg/canonical"
	"github.com/playbeacon/beacon/pkg/log"
	"github.com/playbeacon/beacon/pkg/metrics"
	"github.com/playbeacon/beacon/pkg/queue"
	"github.com/playbeacon/beacon/pkg/storage"
	"github.com/playbeacon/beacon/pkg/types"
)

// KeyProvider resolves the cluster key for a server. Satisfied by
// keycache.Cache in production and by storage adapters in tests.
type KeyProvider interface {
	Get(ctx context.Context, serverID string) (*types.ClusterKey, error)
}

// EligibilityFunc reports whether a server has consented to submitting
// the named data type. The cluster's administrative side owns this
// decision; the gate only asks.
type EligibilityFunc func(ctx context.Context, serverID, dataType string) bool

// Submission is one raw heartbeat submission before admission.
type Submission struct {
	ServerID        string
	KeyVersion      int
	Timestamp       time.Time
	HeartbeatID     string
	Status          types.ServerStatus
	MapName         *string
	PlayersCurrent  *int
	PlayersCapacity *int
	AgentVersion    *string

	// Signature is the hex-encoded Ed25519 signature over the canonical
	// form of the fields above.
	Signature string
}

// Result is the outcome of one admission attempt. Exactly one of
// Accepted, Replay, or a non-empty Reason holds.
type Result struct {
	Accepted bool
	Replay   bool
	Reason   types.RejectReason

	// Heartbeat is the stored record when Accepted.
	Heartbeat *types.Heartbeat
}

// Gate is the single admission point for heartbeats. Checks run in a
// fixed order so an attacker probing with garbage learns the cheapest
// failure first: structure, consent, key version, signature, and only
// then the storage insert that doubles as replay detection.
type Gate struct {
	heartbeats storage.HeartbeatStore
	audit      storage.AuditStore
	derived    storage.DerivedStore
	keys       KeyProvider
	jobs       queue.Queue
	eligible   EligibilityFunc

	// Now stamps ReceivedAt; swappable in tests.
	Now func() time.Time
}

// New creates a gate over the given stores. A nil eligible func admits
// every server.
func New(hb storage.HeartbeatStore, audit storage.AuditStore, derived storage.DerivedStore,
	keys KeyProvider, jobs queue.Queue, eligible EligibilityFunc) *Gate {
	return &Gate{
		heartbeats: hb,
		audit:      audit,
		derived:    derived,
		keys:       keys,
		jobs:       jobs,
		eligible:   eligible,
		Now:        time.Now,
	}
}

// Admit runs the full admission pipeline for one submission. Replays are
// not errors: the result reports Replay and the submission has no side
// effects. Rejections are audited with a reason code and no payload.
func (g *Gate) Admit(ctx context.Context, sub *Submission) (*Result, error) {
	logger := log.WithComponent("gate")

	if reason, ok := validate(sub); !ok {
		return g.reject(ctx, sub.ServerID, reason)
	}

	if g.eligible != nil && !g.eligible(ctx, sub.ServerID, "heartbeat") {
		return g.reject(ctx, sub.ServerID, types.ReasonConsentDenied)
	}

	key, err := g.keys.Get(ctx, sub.ServerID)
	if err != nil {
		// A server with no registered key never consented to ingestion.
		return g.reject(ctx, sub.ServerID, types.ReasonConsentDenied)
	}
	if key.KeyVersion != sub.KeyVersion {
		return g.reject(ctx, sub.ServerID, types.ReasonKeyVersionMismatch)
	}

	env := canonical.Envelope{
		ServerID:        sub.ServerID,
		KeyVersion:      sub.KeyVersion,
		Timestamp:       sub.Timestamp,
		HeartbeatID:     sub.HeartbeatID,
		Status:          string(sub.Status),
		MapName:         sub.MapName,
		PlayersCurrent:  sub.PlayersCurrent,
		PlayersCapacity: sub.PlayersCapacity,
		AgentVersion:    sub.AgentVersion,
	}
	if !canonical.Verify(key.PublicKey, sub.Signature, env) {
		return g.reject(ctx, sub.ServerID, types.ReasonInvalidSignature)
	}

	hb := &types.Heartbeat{
		ServerID:        sub.ServerID,
		KeyVersion:      sub.KeyVersion,
		AgentTimestamp:  sub.Timestamp,
		HeartbeatID:     sub.HeartbeatID,
		Status:          sub.Status,
		MapName:         sub.MapName,
		PlayersCurrent:  sub.PlayersCurrent,
		PlayersCapacity: sub.PlayersCapacity,
		AgentVersion:    sub.AgentVersion,
		ReceivedAt:      g.Now().UTC(),
	}

	switch err := g.heartbeats.Insert(ctx, hb); {
	case err == nil:
	case err == storage.ErrDuplicate:
		metrics.HeartbeatsReplayed.Inc()
		logger.Debug().
			Str("server_id", sub.ServerID).
			Str("heartbeat_id", sub.HeartbeatID).
			Msg("heartbeat replayed")
		return &Result{Replay: true}, nil
	case err == storage.ErrIDConflict:
		return g.reject(ctx, sub.ServerID, types.ReasonIDConflict)
	default:
		return nil, fmt.Errorf("insert heartbeat: %w", err)
	}

	// The heartbeat is durable from here on. A fast-path failure costs a
	// stale dashboard until the worker runs, so it is logged, not fatal.
	if err := g.derived.ApplyFastPath(ctx, types.FastPathUpdate{
		ServerID:        hb.ServerID,
		LastHeartbeatAt: hb.ReceivedAt,
		PlayersCurrent:  hb.PlayersCurrent,
		PlayersCapacity: hb.PlayersCapacity,
	}); err != nil {
		logger.Warn().Err(err).Str("server_id", hb.ServerID).Msg("fast-path update failed")
	}

	if err := g.jobs.Enqueue(ctx, hb.ServerID); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	metrics.HeartbeatsAccepted.Inc()
	logger.Debug().
		Str("server_id", hb.ServerID).
		Str("heartbeat_id", hb.HeartbeatID).
		Str("status", string(hb.Status)).
		Msg("heartbeat accepted")

	return &Result{Accepted: true, Heartbeat: hb}, nil
}

// validate checks the structural requirements of a submission.
func validate(sub *Submission) (types.RejectReason, bool) {
	switch {
	case sub.ServerID == "",
		sub.HeartbeatID == "",
		sub.Signature == "",
		sub.KeyVersion <= 0,
		sub.Timestamp.IsZero(),
		!sub.Status.Valid():
		return types.ReasonInvalidPayload, false
	}
	if sub.PlayersCurrent != nil && *sub.PlayersCurrent < 0 {
		return types.ReasonInvalidPayload, false
	}
	if sub.PlayersCapacity != nil && *sub.PlayersCapacity <= 0 {
		return types.ReasonInvalidPayload, false
	}
	return "", true
}

func (g *Gate) reject(ctx context.Context, serverID string, reason types.RejectReason) (*Result, error) {
	metrics.HeartbeatsRejected.WithLabelValues(string(reason)).Inc()

	logger := log.WithComponent("gate")
	if serverID != "" {
		if err := g.audit.RecordRejection(ctx, types.AuditRecord{
			ServerID: serverID,
			Reason:   reason,
			At:       g.Now().UTC(),
		}); err != nil {
			logger.Warn().Err(err).Msg("audit write failed")
		}
	}

	logger.Info().
		Str("server_id", serverID).
		Str("reason", string(reason)).
		Msg("heartbeat rejected")

	return &Result{Reason: reason}, nil
}
