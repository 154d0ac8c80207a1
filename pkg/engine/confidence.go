package engine

import (
	"time"

	"github.com/playbeacon/beacon/pkg/types"
)

// MinSamplesForGreen is the heartbeat count below which confidence is
// capped at yellow regardless of freshness.
const MinSamplesForGreen = 3

// Confidence derives the red/yellow/green trust tier from heartbeat
// history. hbs must be ordered newest-first by received time.
//
// The checks run in strict order: staleness beyond twice the grace
// window is red before sample count is considered, and a thin history is
// yellow before freshness can grant green. Green therefore always
// requires both freshness and a sustained sample count at once; a single
// heartbeat after a stale period lands on yellow and must accumulate
// samples while staying fresh before it can reach green.
func Confidence(hbs []types.Heartbeat, grace time.Duration, now time.Time) types.Confidence {
	if len(hbs) == 0 {
		return types.ConfidenceRed
	}

	age := now.Sub(hbs[0].ReceivedAt)
	if age > 2*grace {
		return types.ConfidenceRed
	}
	if len(hbs) < MinSamplesForGreen {
		return types.ConfidenceYellow
	}
	if age <= grace {
		return types.ConfidenceGreen
	}
	// grace < age <= 2*grace with enough samples
	return types.ConfidenceYellow
}
