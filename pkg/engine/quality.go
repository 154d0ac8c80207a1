package engine

import (
	"github.com/playbeacon/beacon/pkg/types"
)

// Weight constants for the quality score formula. They must sum to 1.0.
const (
	weightUptime     = 0.6
	weightPlayers    = 0.3
	weightConfidence = 0.1
)

// Quality computes the composite quality score:
//
//	quality = 0.6*uptime + 0.3*(100*min(1, players/capacity)) + 0.1*(100*confidence_multiplier)
//
// effective capacity falls back to DefaultCapacity when the reported
// capacity is unknown but a nonzero player count exists. Returns nil
// when uptime is nil (insufficient data); otherwise clamped to [0,100]
// and monotonic in each input held fixed.
func Quality(uptime *float64, playersCurrent, playersCapacity *int, conf types.Confidence, defaultCapacity int) *float64 {
	if uptime == nil {
		return nil
	}
	if defaultCapacity <= 0 {
		defaultCapacity = DefaultCapacity
	}

	playerTerm := 0.0
	if playersCurrent != nil && *playersCurrent > 0 {
		capacity := defaultCapacity
		if playersCapacity != nil && *playersCapacity > 0 {
			capacity = *playersCapacity
		}
		ratio := float64(*playersCurrent) / float64(capacity)
		if ratio > 1 {
			ratio = 1
		}
		playerTerm = 100 * ratio
	}

	q := weightUptime**uptime + weightPlayers*playerTerm + weightConfidence*100*conf.Multiplier()
	q = clamp(q, 0, 100)
	return &q
}
