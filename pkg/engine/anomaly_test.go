package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbeacon/beacon/pkg/types"
)

// playerBeats builds a newest-first history from (age, players) pairs.
func playerBeats(samples ...struct {
	age     time.Duration
	players int
}) []types.Heartbeat {
	hbs := make([]types.Heartbeat, 0, len(samples))
	for _, s := range samples {
		p := s.players
		hbs = append(hbs, types.Heartbeat{
			ServerID:       "srv-1",
			Status:         types.StatusOnline,
			PlayersCurrent: &p,
			ReceivedAt:     testNow.Add(-s.age),
		})
	}
	return hbs
}

type sample = struct {
	age     time.Duration
	players int
}

func TestAnomalyRoundTrip(t *testing.T) {
	// 0 → 70 → 0 players within 40s: impossible round trip.
	hbs := playerBeats(
		sample{0, 0},
		sample{20 * time.Second, 70},
		sample{40 * time.Second, 0},
	)

	got := Anomaly(hbs, AnomalyState{}, DefaultDecay, DefaultCapacity, testNow)
	assert.True(t, got.Flagged)
	require.NotNil(t, got.LastDetectedAt)
	assert.Equal(t, testNow, *got.LastDetectedAt)
}

func TestAnomalySuspiciousJump(t *testing.T) {
	// 5 → 45 players in 30s on a capacity-70 server: jump ratio 40/70 > 50%.
	hbs := playerBeats(
		sample{0, 45},
		sample{30 * time.Second, 5},
		sample{5 * time.Minute, 5},
	)

	got := Anomaly(hbs, AnomalyState{}, DefaultDecay, DefaultCapacity, testNow)
	assert.True(t, got.Flagged)
}

func TestAnomalyJumpUsesReportedCapacity(t *testing.T) {
	// Same jump on a 128-slot server: 40/128 < 50%, no anomaly.
	hbs := playerBeats(
		sample{0, 45},
		sample{30 * time.Second, 5},
		sample{5 * time.Minute, 5},
	)
	capacity := 128
	for i := range hbs {
		hbs[i].PlayersCapacity = &capacity
	}

	got := Anomaly(hbs, AnomalyState{}, DefaultDecay, DefaultCapacity, testNow)
	assert.False(t, got.Flagged)
}

func TestAnomalyImpossibleDrop(t *testing.T) {
	// 35 → 0 players in 5s.
	hbs := playerBeats(
		sample{0, 0},
		sample{5 * time.Second, 35},
		sample{10 * time.Minute, 30},
	)

	got := Anomaly(hbs, AnomalyState{}, DefaultDecay, DefaultCapacity, testNow)
	assert.True(t, got.Flagged)
}

func TestAnomalyNormalTrafficNotFlagged(t *testing.T) {
	hbs := playerBeats(
		sample{0, 20},
		sample{5 * time.Minute, 18},
		sample{10 * time.Minute, 15},
		sample{15 * time.Minute, 12},
	)

	got := Anomaly(hbs, AnomalyState{}, DefaultDecay, DefaultCapacity, testNow)
	assert.False(t, got.Flagged)
}

func TestAnomalyTooFewSamples(t *testing.T) {
	hbs := playerBeats(sample{0, 0}, sample{10 * time.Second, 70})
	got := Anomaly(hbs, AnomalyState{}, DefaultDecay, DefaultCapacity, testNow)
	assert.False(t, got.Flagged)
}

// TestAnomalyDecay tests flag hold and decay around the decay boundary
func TestAnomalyDecay(t *testing.T) {
	detected := testNow.Add(-DefaultDecay)
	clean := playerBeats(
		sample{0, 10},
		sample{5 * time.Minute, 10},
		sample{10 * time.Minute, 10},
	)

	tests := []struct {
		name       string
		detectedAt time.Time
		want       bool
	}{
		{"just before decay elapses", detected.Add(time.Second), true},
		{"exactly at decay", detected, false},
		{"well past decay", detected.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.detectedAt
			prev := AnomalyState{Flagged: true, LastDetectedAt: &at}
			got := Anomaly(clean, prev, DefaultDecay, DefaultCapacity, testNow)
			assert.Equal(t, tt.want, got.Flagged)
		})
	}
}

// TestAnomalyHoldsWithoutRetrigger tests that a clean pass inside the
// decay window keeps the flag raised
func TestAnomalyHoldsWithoutRetrigger(t *testing.T) {
	at := testNow.Add(-5 * time.Minute)
	prev := AnomalyState{Flagged: true, LastDetectedAt: &at}
	clean := playerBeats(
		sample{0, 10},
		sample{5 * time.Minute, 10},
		sample{10 * time.Minute, 10},
	)

	got := Anomaly(clean, prev, DefaultDecay, DefaultCapacity, testNow)
	assert.True(t, got.Flagged)
	require.NotNil(t, got.LastDetectedAt)
	assert.Equal(t, at, *got.LastDetectedAt)
}

// TestAnomalyDeterministic tests identical inputs give identical outputs
func TestAnomalyDeterministic(t *testing.T) {
	hbs := playerBeats(
		sample{0, 0},
		sample{20 * time.Second, 70},
		sample{40 * time.Second, 0},
	)
	a := Anomaly(hbs, AnomalyState{}, DefaultDecay, DefaultCapacity, testNow)
	b := Anomaly(hbs, AnomalyState{}, DefaultDecay, DefaultCapacity, testNow)
	assert.Equal(t, a, b)
}
