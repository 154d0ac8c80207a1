package engine

import (
	"math"

	"github.com/playbeacon/beacon/pkg/types"
)

const (
	// RankingPlayerCap bounds the player term so headcount inflation
	// past this many players earns nothing extra.
	RankingPlayerCap = 50

	// AnomalyPenalty is subtracted from the score while the player-spike
	// flag is raised.
	AnomalyPenalty = 20

	uptimeKnee = 95.0 // uptime above this earns diminishing returns
)

// Ranking computes the directory ranking score from a derived-state
// snapshot. It never reads raw heartbeats and is O(1) per server.
//
//	score = 0.5*quality + 0.3*effective_uptime + 0.2*player_term - penalty
//
// effective_uptime follows a logarithmic diminishing-returns curve above
// 95%, and the player term is capped at playerCap players. Nil quality
// or uptime contribute zero. The result is clamped to >= 0.
func Ranking(s types.DerivedState, playerCap int) float64 {
	if playerCap <= 0 {
		playerCap = RankingPlayerCap
	}

	quality := 0.0
	if s.QualityScore != nil {
		quality = *s.QualityScore
	}

	uptime := 0.0
	if s.UptimePercent != nil {
		uptime = effectiveUptime(*s.UptimePercent)
	}

	playerTerm := 0.0
	if s.PlayersCurrent != nil && s.PlayersCapacity != nil && *s.PlayersCapacity > 0 {
		players := *s.PlayersCurrent
		if players > playerCap {
			players = playerCap
		}
		ratio := float64(players) / float64(*s.PlayersCapacity)
		if ratio > 1 {
			ratio = 1
		}
		playerTerm = 100 * ratio
	}

	score := 0.5*quality + 0.3*uptime + 0.2*playerTerm
	if s.AnomalyPlayersSpike {
		score -= AnomalyPenalty
	}
	if score < 0 {
		score = 0
	}
	return score
}

// effectiveUptime leaves values at or below the knee untouched and
// compresses the last five points logarithmically, so 95% → 95 and
// 100% → 100 but the approach flattens in between.
func effectiveUptime(u float64) float64 {
	if u <= uptimeKnee {
		return u
	}
	span := 100 - uptimeKnee
	return uptimeKnee + span*math.Log1p(u-uptimeKnee)/math.Log1p(span)
}
