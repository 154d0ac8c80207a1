package worker

import (
	"context"

	"github.com/playbeacon/beacon/pkg/engine"
	"github.com/playbeacon/beacon/pkg/log"
	"github.com/playbeacon/beacon/pkg/metrics"
	"github.com/playbeacon/beacon/pkg/types"
)

// RankAll sweeps every derived-state record, computes its ranking score
// from the current snapshot, and writes it back. Ranking runs on its own
// cadence rather than per job so a burst of heartbeats from one server
// cannot starve score refreshes for the rest of the fleet.
func (w *Worker) RankAll(ctx context.Context) {
	logger := log.WithComponent("ranker")

	states, err := w.derived.List(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("list derived states failed")
		return
	}

	byStatus := map[types.ServerStatus]int{}
	for _, state := range states {
		byStatus[state.EffectiveStatus]++

		score := engine.Ranking(state, w.opts.RankPlayerCap)
		if err := w.derived.SetRanking(ctx, state.ServerID, score); err != nil {
			logger.Error().Err(err).Str("server_id", state.ServerID).Msg("set ranking failed")
		}
	}

	for _, status := range []types.ServerStatus{types.StatusOnline, types.StatusOffline, types.StatusUnknown} {
		metrics.ServersByStatus.WithLabelValues(string(status)).Set(float64(byStatus[status]))
	}

	logger.Debug().Int("servers", len(states)).Msg("ranking pass complete")
}
