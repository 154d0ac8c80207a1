package engine

import (
	"sort"
	"time"

	"github.com/playbeacon/beacon/pkg/types"
)

// DefaultWindow is the rolling uptime window.
const DefaultWindow = 24 * time.Hour

// Uptime computes the rolling uptime percentage over the given window.
// Each heartbeat contributes a coverage interval [received_at,
// received_at + grace], clamped to [now-window, now]. Overlapping
// intervals are merged before summing, so burst submissions do not
// inflate the result.
//
// Returns nil when no heartbeat falls within the window: that is
// insufficient data, not zero uptime.
func Uptime(hbs []types.Heartbeat, grace, window time.Duration, now time.Time) *float64 {
	windowStart := now.Add(-window)

	type interval struct{ start, end time.Time }
	var ivs []interval
	for _, hb := range hbs {
		if hb.ReceivedAt.Before(windowStart) || hb.ReceivedAt.After(now) {
			continue
		}
		start := hb.ReceivedAt
		end := hb.ReceivedAt.Add(grace)
		if end.After(now) {
			end = now
		}
		if end.After(start) {
			ivs = append(ivs, interval{start: start, end: end})
		} else {
			// Zero-length after clamping still counts as coverage
			// evidence for the null check.
			ivs = append(ivs, interval{start: start, end: start})
		}
	}
	if len(ivs) == 0 {
		return nil
	}

	// Sort by start ascending; merging is then deterministic and
	// independent of heartbeat retrieval order.
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].start.Before(ivs[j].start) })

	var covered time.Duration
	cur := ivs[0]
	for _, iv := range ivs[1:] {
		if !iv.start.After(cur.end) {
			if iv.end.After(cur.end) {
				cur.end = iv.end
			}
			continue
		}
		covered += cur.end.Sub(cur.start)
		cur = iv
	}
	covered += cur.end.Sub(cur.start)

	pct := 100 * float64(covered) / float64(window)
	pct = clamp(pct, 0, 100)
	return &pct
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
