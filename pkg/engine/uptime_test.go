package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbeacon/beacon/pkg/types"
)

func TestUptimeNilWhenNoCoverage(t *testing.T) {
	grace := 600 * time.Second
	window := 24 * time.Hour

	assert.Nil(t, Uptime(nil, grace, window, testNow))

	// Heartbeats entirely before the window.
	old := beats(25*time.Hour, 26*time.Hour)
	assert.Nil(t, Uptime(old, grace, window, testNow))
}

func TestUptimeSingleHeartbeat(t *testing.T) {
	grace := 600 * time.Second
	window := 24 * time.Hour

	got := Uptime(beats(1*time.Hour), grace, window, testNow)
	require.NotNil(t, got)

	// One 600s coverage interval over a 24h window.
	want := 100 * (600.0 / (24 * 3600))
	assert.InDelta(t, want, *got, 1e-9)
}

func TestUptimeMergesOverlappingIntervals(t *testing.T) {
	grace := 600 * time.Second
	window := 24 * time.Hour

	// Three heartbeats 5 minutes apart: coverage intervals overlap and
	// merge into one 20-minute span (first start to last end).
	hbs := beats(10*time.Minute, 15*time.Minute, 20*time.Minute)
	got := Uptime(hbs, grace, window, testNow)
	require.NotNil(t, got)

	want := 100 * (1200.0 / (24 * 3600))
	assert.InDelta(t, want, *got, 1e-9)
}

func TestUptimeDisjointIntervalsSum(t *testing.T) {
	grace := 600 * time.Second
	window := 24 * time.Hour

	// Two heartbeats an hour apart: no overlap, 2x600s covered.
	hbs := beats(1*time.Hour, 2*time.Hour)
	got := Uptime(hbs, grace, window, testNow)
	require.NotNil(t, got)

	want := 100 * (1200.0 / (24 * 3600))
	assert.InDelta(t, want, *got, 1e-9)
}

// TestUptimeOrderIndependent tests that retrieval order does not affect
// the result
func TestUptimeOrderIndependent(t *testing.T) {
	grace := 600 * time.Second
	window := 24 * time.Hour

	hbs := beats(1*time.Hour, 30*time.Minute, 3*time.Hour, 2*time.Hour)
	shuffled := []types.Heartbeat{hbs[2], hbs[0], hbs[3], hbs[1]}

	a := Uptime(hbs, grace, window, testNow)
	b := Uptime(shuffled, grace, window, testNow)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, *a, *b)
}

// TestUptimeBounds tests 0 <= uptime <= 100 for dense histories
func TestUptimeBounds(t *testing.T) {
	grace := 2 * time.Hour // oversized grace to force saturation
	window := 1 * time.Hour

	var hbs []types.Heartbeat
	for age := time.Duration(0); age < time.Hour; age += time.Minute {
		hbs = append(hbs, types.Heartbeat{ServerID: "srv-1", ReceivedAt: testNow.Add(-age)})
	}

	got := Uptime(hbs, grace, window, testNow)
	require.NotNil(t, got)
	assert.GreaterOrEqual(t, *got, 0.0)
	assert.LessOrEqual(t, *got, 100.0)
	assert.InDelta(t, 100.0, *got, 1e-6)
}

// TestUptimeClampsFutureCoverage tests that coverage past now is clamped
func TestUptimeClampsFutureCoverage(t *testing.T) {
	grace := 600 * time.Second
	window := 24 * time.Hour

	// Heartbeat received just now: its interval would extend 600s into
	// the future but must clamp at now.
	got := Uptime(beats(0), grace, window, testNow)
	require.NotNil(t, got)
	assert.InDelta(t, 0.0, *got, 1e-9)
}
