package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/playbeacon/beacon/pkg/gate"
	"github.com/playbeacon/beacon/pkg/log"
	"github.com/playbeacon/beacon/pkg/types"
)

const maxBodyBytes = 64 << 10

// heartbeatRequest is the wire shape of a heartbeat submission. Payload
// is an opaque unsigned debug blob; it is accepted and discarded.
type heartbeatRequest struct {
	ServerID        string          `json:"server_id"`
	KeyVersion      int             `json:"key_version"`
	Timestamp       time.Time       `json:"timestamp"`
	HeartbeatID     string          `json:"heartbeat_id"`
	Status          string          `json:"status"`
	MapName         *string         `json:"map_name"`
	PlayersCurrent  *int            `json:"players_current"`
	PlayersCapacity *int            `json:"players_capacity"`
	AgentVersion    *string         `json:"agent_version"`
	Payload         json.RawMessage `json:"payload"`
	Signature       string          `json:"signature"`
}

// wireFields is the set of accepted request keys: the signed envelope
// plus the two unsigned carriers.
var wireFields = map[string]struct{}{
	"server_id":        {},
	"key_version":      {},
	"timestamp":        {},
	"heartbeat_id":     {},
	"status":           {},
	"map_name":         {},
	"players_current":  {},
	"players_capacity": {},
	"agent_version":    {},
	"payload":          {},
	"signature":        {},
}

// loggedUnknownFields tracks field names already warned about, so a
// misbehaving agent fleet produces one log line per field name, not one
// per heartbeat.
var loggedUnknownFields sync.Map

// decodeSubmission parses the request body into a gate submission.
// Unknown fields are not an error: they are excluded from the signed
// envelope by construction and logged once per field name.
func decodeSubmission(w http.ResponseWriter, r *http.Request) (*gate.Submission, bool) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, heartbeatResponse{
			Reason: string(types.ReasonInvalidPayload),
		})
		return nil, false
	}

	for field := range raw {
		if _, ok := wireFields[field]; ok {
			continue
		}
		if _, seen := loggedUnknownFields.LoadOrStore(field, struct{}{}); !seen {
			logger := log.WithComponent("api")
			logger.Warn().Str("field", field).Msg("ignoring unknown heartbeat field")
		}
		delete(raw, field)
	}

	known, err := json.Marshal(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, heartbeatResponse{
			Reason: string(types.ReasonInvalidPayload),
		})
		return nil, false
	}

	var req heartbeatRequest
	if err := json.Unmarshal(known, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, heartbeatResponse{
			Reason: string(types.ReasonInvalidPayload),
		})
		return nil, false
	}

	return &gate.Submission{
		ServerID:        req.ServerID,
		KeyVersion:      req.KeyVersion,
		Timestamp:       req.Timestamp,
		HeartbeatID:     req.HeartbeatID,
		Status:          types.ServerStatus(req.Status),
		MapName:         req.MapName,
		PlayersCurrent:  req.PlayersCurrent,
		PlayersCapacity: req.PlayersCapacity,
		AgentVersion:    req.AgentVersion,
		Signature:       req.Signature,
	}, true
}
