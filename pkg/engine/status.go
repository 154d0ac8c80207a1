package engine

import (
	"time"

	"github.com/playbeacon/beacon/pkg/types"
)

// Status derives the effective liveness state from heartbeat history.
// hbs must be ordered newest-first by received time. Unknown is returned
// only when zero heartbeats exist; otherwise a server is online while the
// most recent heartbeat is within the grace window and offline after.
//
// The server-assigned ReceivedAt is used, never the agent-claimed
// timestamp, so a forged agent clock cannot keep a dead server online.
func Status(hbs []types.Heartbeat, grace time.Duration, now time.Time) types.ServerStatus {
	if len(hbs) == 0 {
		return types.StatusUnknown
	}
	age := now.Sub(hbs[0].ReceivedAt)
	if age <= grace {
		return types.StatusOnline
	}
	return types.StatusOffline
}
