package types

import (
	"time"
)

// ServerStatus represents the liveness state of a game server
type ServerStatus string

const (
	StatusOnline  ServerStatus = "online"
	StatusOffline ServerStatus = "offline"
	StatusUnknown ServerStatus = "unknown" // no heartbeats ever received
)

// Valid reports whether the status is one of the wire-legal values.
// Agents may only claim online or offline; unknown is server-derived.
func (s ServerStatus) Valid() bool {
	return s == StatusOnline || s == StatusOffline
}

// Confidence is the red/yellow/green trust tier for a server's derived state
type Confidence string

const (
	ConfidenceGreen  Confidence = "green"
	ConfidenceYellow Confidence = "yellow"
	ConfidenceRed    Confidence = "red"
)

// Multiplier returns the weight applied to the confidence term of the
// quality score.
func (c Confidence) Multiplier() float64 {
	switch c {
	case ConfidenceGreen:
		return 1.0
	case ConfidenceYellow:
		return 0.7
	default:
		return 0.3
	}
}

// RejectReason classifies why a heartbeat was refused at the ingest gate
type RejectReason string

const (
	ReasonInvalidPayload     RejectReason = "invalid_payload"
	ReasonConsentDenied      RejectReason = "consent_denied"
	ReasonKeyVersionMismatch RejectReason = "key_version_mismatch"
	ReasonInvalidSignature   RejectReason = "invalid_signature"
	ReasonIDConflict         RejectReason = "heartbeat_id_conflict"
)

// Heartbeat is one accepted liveness report from a game-server agent.
// Rows are append-only and unique on (server_id, heartbeat_id); that
// uniqueness constraint is the replay-detection mechanism.
type Heartbeat struct {
	ServerID        string       `json:"server_id"`
	KeyVersion      int          `json:"key_version"`
	AgentTimestamp  time.Time    `json:"agent_timestamp"`
	HeartbeatID     string       `json:"heartbeat_id"`
	Status          ServerStatus `json:"status"`
	MapName         *string      `json:"map_name,omitempty"`
	PlayersCurrent  *int         `json:"players_current,omitempty"`
	PlayersCapacity *int         `json:"players_capacity,omitempty"`
	AgentVersion    *string      `json:"agent_version,omitempty"`

	// ReceivedAt is assigned by the ingest server, never by the agent.
	// All derived-state timing uses this field so a skewed or forged
	// agent clock cannot influence status.
	ReceivedAt time.Time `json:"received_at"`
}

// Job is one pending unit of derived-state recomputation for a server.
// Pending iff ProcessedAt is nil. Attempts is incremented at claim time,
// so a worker crash after claiming still shows as a recorded attempt.
type Job struct {
	ID          string     `json:"id"`
	ServerID    string     `json:"server_id"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
}

// ClusterKey is the key material and liveness policy for one server's
// agent, owned by the cluster's administrative side and consumed
// read-only here.
type ClusterKey struct {
	ServerID           string    `json:"server_id"`
	PublicKey          string    `json:"public_key"` // hex-encoded Ed25519 public key
	KeyVersion         int       `json:"key_version"`
	GraceWindowSeconds int       `json:"grace_window_seconds"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// GraceWindow returns the grace window as a duration.
func (k *ClusterKey) GraceWindow() time.Duration {
	return time.Duration(k.GraceWindowSeconds) * time.Second
}

// DerivedState is the computed public-facing record for one server.
// The worker owns every field except the fast-path trio (LastHeartbeatAt,
// PlayersCurrent, PlayersCapacity), which the ingest gate may also write.
type DerivedState struct {
	ServerID              string       `json:"server_id"`
	EffectiveStatus       ServerStatus `json:"effective_status"`
	Confidence            Confidence   `json:"confidence"`
	UptimePercent         *float64     `json:"uptime_percent,omitempty"`
	QualityScore          *float64     `json:"quality_score,omitempty"`
	AnomalyPlayersSpike   bool         `json:"anomaly_players_spike"`
	AnomalyLastDetectedAt *time.Time   `json:"anomaly_last_detected_at,omitempty"`
	PlayersCurrent        *int         `json:"players_current,omitempty"`
	PlayersCapacity       *int         `json:"players_capacity,omitempty"`
	LastHeartbeatAt       *time.Time   `json:"last_heartbeat_at,omitempty"`
	RankingScore          *float64     `json:"ranking_score,omitempty"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// FastPathUpdate is the narrow ingest-time write for UX responsiveness.
// It is deliberately a distinct struct from DerivedUpdate so the gate
// cannot touch worker-owned fields by construction.
type FastPathUpdate struct {
	ServerID        string
	LastHeartbeatAt time.Time
	PlayersCurrent  *int
	PlayersCapacity *int
}

// DerivedUpdate is the worker's single authoritative write per job. All
// engine outputs for one server are assembled into one update so a
// partially computed state is never visible.
type DerivedUpdate struct {
	ServerID              string
	EffectiveStatus       ServerStatus
	Confidence            Confidence
	UptimePercent         *float64
	QualityScore          *float64
	AnomalyPlayersSpike   bool
	AnomalyLastDetectedAt *time.Time
	PlayersCurrent        *int
	PlayersCapacity       *int
	LastHeartbeatAt       *time.Time
}

// AuditRecord is one rejected-heartbeat entry. It carries a reason code
// and the server id only; no agent payload data is retained.
type AuditRecord struct {
	ServerID string       `json:"server_id"`
	Reason   RejectReason `json:"reason"`
	At       time.Time    `json:"at"`
}
