/*
Package worker implements the single derived-state poller.

The worker claims batches of coalesced jobs from the queue on a fixed
interval and, for each job, recomputes the complete derived state of one
server: effective status, confidence tier, uptime percentage, anomaly
flag, and quality score. All engine outputs are written in one
DerivedUpdate so readers never observe a half-computed record.

# Single-Consumer Model

Exactly one worker runs per deployment. The queue's claim semantics
(claim increments attempts, no lease, no visibility timeout) depend on
this: a second consumer would double-process jobs. Scaling derived-state
throughput means raising the batch size, not adding pollers.

# Failure Isolation

Each job is processed independently. An error, including a panic inside
an engine, marks that one job failed and moves on; failed jobs stay
pending and are reclaimed on a later poll with their attempt count
intact. There is no retry ceiling because recomputation is idempotent
and cheap.

# Ranking

The ranking pass runs on its own ticker. It reads every derived-state
snapshot, computes the discovery score, and writes it back via
SetRanking. Keeping it out of the per-job path bounds its cost to one
fleet sweep per interval regardless of heartbeat volume.
*/
package worker
