/*
Package storage provides the persistence layer for Beacon: the
append-only heartbeat log, the rejection audit trail, the per-server
derived-state snapshots, and cluster key material.

Capabilities are expressed as narrow interfaces (HeartbeatStore,
AuditStore, DerivedStore, KeyStore) with two real adapters and one
deterministic in-memory fake:

	┌───────────────────── STORAGE LAYOUT ─────────────────────┐
	│                                                           │
	│  SQLiteStore (modernc.org/sqlite, WAL)                    │
	│    heartbeats   PK(server_id, heartbeat_id)               │
	│                 UNIQUE(heartbeat_id)                      │
	│    rejections   append-only audit entries                 │
	│                                                           │
	│  BoltStore (bbolt, beacon.db)                             │
	│    derived       one JSON record per server               │
	│    cluster_keys  per-server Ed25519 key material          │
	│                                                           │
	│  MemoryStore    all four capabilities, for tests          │
	└───────────────────────────────────────────────────────────┘

# Replay detection

Replay detection is the heartbeat table's unique constraint and nothing
else. Insert is a single atomic insert-or-conflict: the same
(server_id, heartbeat_id) yields ErrDuplicate, while a heartbeat_id
already owned by a different server yields ErrIDConflict. There is
deliberately no check-then-insert anywhere; that would race under
concurrent duplicate submissions.

# Two-speed derived writes

DerivedStore accepts two distinct update structs. ApplyFastPath touches
only last-seen and player counts (ingest-time UX write); ApplyDerived
replaces the worker-owned fields in one transaction. Both run as a
read-modify-write inside a single bolt update transaction, so concurrent
fast-path and worker writes never produce a torn record.
*/
package storage
