/*
Package types defines the shared data model for Beacon's heartbeat
ingestion and derived-state pipeline.

The types here are deliberately plain structs with no behavior beyond
small accessors: Heartbeat (one accepted, append-only liveness report),
Job (one pending unit of recomputation), ClusterKey (per-server key
material and grace policy), DerivedState (the computed public record),
and AuditRecord (one rejection entry).

# Two-speed updates

DerivedState is written through two distinct update structs:

  - FastPathUpdate: written by the ingest gate at accept time. Carries
    only last-seen and player-count fields, for UX responsiveness.
  - DerivedUpdate: written by the worker after running the engines.
    Carries the authoritative status, confidence, uptime, quality and
    anomaly fields.

Keeping these as separate types (rather than a shared mutable record)
makes it impossible for the fast path to overwrite worker-owned fields.

# Ownership

	Heartbeat     created by the ingest gate, never mutated or deleted
	Job           created by the gate, mutated by the queue/worker
	ClusterKey    owned by the administrative collaborator, read-only here
	DerivedState  owned by the worker (plus the fast-path trio)
*/
package types
