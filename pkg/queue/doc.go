/*
Package queue provides the durable, at-least-once job queue that drives
derived-state recomputation.

One job represents "recompute derived state for this server". The gate
enqueues after every accepted (non-replay) heartbeat; Enqueue coalesces,
so a burst of heartbeats for one server collapses into a single pending
job whose enqueued_at keeps moving forward.

# Claim model

Claim increments attempts as part of the claim itself. A worker that
crashes between claiming and finishing leaves the job pending with the
attempt already recorded; the next poll reclaims it. There is no lease
or visibility timeout and no retry ceiling: the design assumes one
logical poller. Multiple concurrent worker processes would double-claim
under this model; adding a lease timestamp with stale-lease reclaim is
the extension point for that.

Two implementations: SQLiteQueue (shares the heartbeat store's database
file; a partial unique index on pending server_id makes Enqueue an
atomic upsert) and MemoryQueue (deterministic fake for tests).
*/
package queue
