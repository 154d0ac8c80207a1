package queue

import (
	"context"
	"time"

	"github.com/playbeacon/beacon/pkg/types"
)

// Queue is the durable, at-least-once work queue keyed by server id.
//
// The claim model is deliberately simple: Claim increments attempts as
// part of the claim itself, so a worker crash after claiming still shows
// up as a recorded attempt without a separate lease mechanism. This
// assumes a single logical poller; running multiple worker processes
// would need a lease timestamp and stale-lease reclaim on top.
type Queue interface {
	// Enqueue coalesces: if a pending job exists for the server its
	// enqueued_at is refreshed, otherwise a new job is inserted with
	// zero attempts.
	Enqueue(ctx context.Context, serverID string) error

	// Claim returns up to batchSize pending jobs ordered by enqueued_at
	// ascending, incrementing attempts for each as part of the claim.
	Claim(ctx context.Context, batchSize int) ([]types.Job, error)

	// MarkProcessed makes the job terminal; it is excluded from future
	// claims.
	MarkProcessed(ctx context.Context, jobID string, at time.Time) error

	// MarkFailed records the error and attempt count, leaving the job
	// pending so a future poll reclaims it. There is no retry ceiling.
	MarkFailed(ctx context.Context, jobID string, jobErr error, attempts int) error

	// Depth returns the number of pending jobs.
	Depth(ctx context.Context) (int, error)
}
