/*
Package api exposes the HTTP surface of the beacon server.

Endpoints:

	POST /api/v1/heartbeat               submit a signed heartbeat
	GET  /api/v1/servers                 all derived-state records
	GET  /api/v1/servers/{id}            one server's derived state
	GET  /api/v1/servers/{id}/rejections recent audited rejections
	GET  /healthz                        liveness probe
	GET  /metrics                        prometheus metrics

The heartbeat endpoint is a thin wire adapter over gate.Admit. Status
codes map admission reasons: 400 invalid_payload, 403 consent_denied,
401 invalid_signature, 409 for key_version_mismatch and
heartbeat_id_conflict. Replays return 200 with replay=true; the agent
treats them as success. Unknown body fields are dropped before the
envelope is rebuilt and warned about once per field name.
*/
package api
