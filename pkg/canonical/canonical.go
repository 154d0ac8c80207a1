// Package canonical implements deterministic serialization and Ed25519
// verification of heartbeat envelopes.
//
// The canonical form is a pure function of field values: keys are sorted
// alphabetically, absent optional fields serialize as explicit null, the
// timestamp is normalized to RFC3339 UTC with a literal Z and no sub-second
// precision, and no insignificant whitespace is emitted. Two envelopes with
// identical values always produce identical bytes regardless of how the
// input was ordered or which timezone the agent reported in.
package canonical

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Envelope is the fixed whitelist of signable heartbeat fields. The
// signature itself and any debug payload are never part of the signed
// bytes.
type Envelope struct {
	ServerID        string
	KeyVersion      int
	Timestamp       time.Time
	HeartbeatID     string
	Status          string
	MapName         *string
	PlayersCurrent  *int
	PlayersCapacity *int
	AgentVersion    *string
}

// SignedFields is the set of envelope keys included in the canonical
// form. Anything outside this set (other than signature and payload) is
// excluded from signing.
var SignedFields = map[string]struct{}{
	"server_id":        {},
	"key_version":      {},
	"timestamp":        {},
	"heartbeat_id":     {},
	"status":           {},
	"map_name":         {},
	"players_current":  {},
	"players_capacity": {},
	"agent_version":    {},
}

// Bytes returns the canonical UTF-8 serialization of the envelope, the
// exact message the agent signs.
func Bytes(env Envelope) []byte {
	var b strings.Builder

	// Keys in alphabetical order. Optional fields are written as
	// explicit null, never omitted.
	b.WriteByte('{')
	b.WriteString(`"agent_version":`)
	writeOptString(&b, env.AgentVersion)
	b.WriteString(`,"heartbeat_id":`)
	writeString(&b, env.HeartbeatID)
	b.WriteString(`,"key_version":`)
	b.WriteString(strconv.Itoa(env.KeyVersion))
	b.WriteString(`,"map_name":`)
	writeOptString(&b, env.MapName)
	b.WriteString(`,"players_capacity":`)
	writeOptInt(&b, env.PlayersCapacity)
	b.WriteString(`,"players_current":`)
	writeOptInt(&b, env.PlayersCurrent)
	b.WriteString(`,"server_id":`)
	writeString(&b, env.ServerID)
	b.WriteString(`,"status":`)
	writeString(&b, env.Status)
	b.WriteString(`,"timestamp":`)
	writeString(&b, NormalizeTimestamp(env.Timestamp))
	b.WriteByte('}')

	return []byte(b.String())
}

// NormalizeTimestamp converts any timestamp to exact RFC3339 UTC with a
// literal Z suffix and second precision.
func NormalizeTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// Sign signs the canonical bytes of the envelope and returns the
// hex-encoded Ed25519 signature. This is the agent side of the contract.
func Sign(priv ed25519.PrivateKey, env Envelope) string {
	return hex.EncodeToString(ed25519.Sign(priv, Bytes(env)))
}

// Verify checks the hex-encoded signature against the canonical bytes of
// the envelope using the hex-encoded public key. Any decoding failure,
// malformed key, or signature mismatch returns false. Fail closed, never
// panic.
func Verify(pubHex, sigHex string, env Envelope) bool {
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), Bytes(env), sig)
}

// writeString writes a JSON-escaped string value.
func writeString(b *strings.Builder, s string) {
	// json.Marshal on a string cannot fail.
	enc, _ := json.Marshal(s)
	b.Write(enc)
}

func writeOptString(b *strings.Builder, s *string) {
	if s == nil {
		b.WriteString("null")
		return
	}
	writeString(b, *s)
}

func writeOptInt(b *strings.Builder, n *int) {
	if n == nil {
		b.WriteString("null")
		return
	}
	b.WriteString(strconv.Itoa(*n))
}
