/*
Package gate implements the heartbeat admission pipeline.

Every heartbeat enters the system through Gate.Admit, which runs a fixed
sequence of checks and stops at the first failure:

 1. Structural validation of the submission (invalid_payload)
 2. Consent lookup with the cluster's eligibility hook (consent_denied)
 3. Key version match against the registered cluster key
    (key_version_mismatch)
 4. Ed25519 verification over the canonical form (invalid_signature)
 5. Atomic insert into the heartbeat log, which doubles as replay
    detection

Replay is not failure. A same-server duplicate heartbeat_id reports
Replay in the result and performs no writes, so agents can retry
deliveries blindly. A heartbeat_id already owned by a different server
is a protocol violation and rejects with heartbeat_id_conflict.

On acceptance the gate performs the two ingest-side effects: the
fast-path derived-state update (last_heartbeat_at and the player pair)
and the coalescing job enqueue that schedules full recomputation. The
worker owns every other derived field.

Rejections are recorded to the audit store as (server_id, reason,
timestamp) only; payload data from failed submissions is never
retained.
*/
package gate
