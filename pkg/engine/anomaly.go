package engine

import (
	"time"

	"github.com/playbeacon/beacon/pkg/types"
)

const (
	// DefaultCapacity substitutes for an unreported player capacity.
	DefaultCapacity = 70

	// DefaultDecay is how long an anomaly flag holds after its last
	// detection before decaying to false.
	DefaultDecay = 30 * time.Minute

	spikeRoundTripMin = 50               // middle player count for an impossible round trip
	spikeRoundTripWin = 60 * time.Second // elapsed oldest→newest
	spikeJumpRatio    = 0.5              // (newest-middle)/capacity for a suspicious jump
	spikeJumpWin      = 60 * time.Second
	spikeDropMin      = 30 // middle player count for an impossible drop
	spikeDropWin      = 10 * time.Second
)

// AnomalyState is the player-spike flag with its last detection time.
type AnomalyState struct {
	Flagged        bool
	LastDetectedAt *time.Time
}

// Anomaly scans consecutive heartbeat triples for impossible player-count
// movements. hbs must be ordered newest-first by received time; prev is
// the state from the previous pass.
//
// Three rules, any match flags:
//
//	(a) round trip: 0 → ≥50 → 0 players in under 60s
//	(b) jump: newest-middle exceeds 50% of capacity in under 60s
//	(c) drop: ≥30 → 0 players in under 10s
//
// The detection timestamp is the newest heartbeat of the first matching
// triple. When no triple matches, an existing flag holds until decay has
// elapsed since the last detection, then clears. This gives hysteresis
// instead of per-heartbeat flapping.
func Anomaly(hbs []types.Heartbeat, prev AnomalyState, decay time.Duration, defaultCapacity int, now time.Time) AnomalyState {
	if decay <= 0 {
		decay = DefaultDecay
	}
	if defaultCapacity <= 0 {
		defaultCapacity = DefaultCapacity
	}

	for i := 0; i+2 < len(hbs); i++ {
		newest, middle, oldest := hbs[i], hbs[i+1], hbs[i+2]
		if matchTriple(newest, middle, oldest, defaultCapacity) {
			at := newest.ReceivedAt
			return AnomalyState{Flagged: true, LastDetectedAt: &at}
		}
	}

	// No match this pass: decay or hold the prior flag.
	if prev.Flagged && prev.LastDetectedAt != nil {
		if now.Sub(*prev.LastDetectedAt) >= decay {
			return AnomalyState{Flagged: false, LastDetectedAt: prev.LastDetectedAt}
		}
	}
	return prev
}

func matchTriple(newest, middle, oldest types.Heartbeat, defaultCapacity int) bool {
	// (a) impossible round trip
	if oldest.PlayersCurrent != nil && middle.PlayersCurrent != nil && newest.PlayersCurrent != nil {
		elapsed := newest.ReceivedAt.Sub(oldest.ReceivedAt)
		if *oldest.PlayersCurrent == 0 && *middle.PlayersCurrent >= spikeRoundTripMin &&
			*newest.PlayersCurrent == 0 && elapsed < spikeRoundTripWin {
			return true
		}
	}

	// (b) suspicious jump
	if middle.PlayersCurrent != nil && newest.PlayersCurrent != nil {
		elapsed := newest.ReceivedAt.Sub(middle.ReceivedAt)
		capacity := defaultCapacity
		if newest.PlayersCapacity != nil && *newest.PlayersCapacity > 0 {
			capacity = *newest.PlayersCapacity
		}
		jump := float64(*newest.PlayersCurrent-*middle.PlayersCurrent) / float64(capacity)
		if jump > spikeJumpRatio && elapsed < spikeJumpWin {
			return true
		}

		// (c) impossible drop
		if *middle.PlayersCurrent >= spikeDropMin && *newest.PlayersCurrent == 0 && elapsed < spikeDropWin {
			return true
		}
	}

	return false
}
