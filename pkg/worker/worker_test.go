package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbeacon/beacon/pkg/keycache"
	"github.com/playbeacon/beacon/pkg/log"
	"github.com/playbeacon/beacon/pkg/queue"
	"github.com/playbeacon/beacon/pkg/storage"
	"github.com/playbeacon/beacon/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions() Options {
	return Options{
		PollInterval:         time.Second,
		BatchSize:            16,
		HistoryLimit:         500,
		UptimeWindow:         24 * time.Hour,
		AnomalyDecay:         30 * time.Minute,
		DefaultCapacity:      70,
		RankInterval:         time.Minute,
		RankPlayerCap:        50,
		FallbackGraceSeconds: 600,
	}
}

func newWorker(t *testing.T, hb storage.HeartbeatStore, store *storage.MemoryStore, jobs queue.Queue) *Worker {
	t.Helper()
	w := New(hb, store, keycache.New(store, time.Minute), jobs, testOptions())
	w.Now = func() time.Time { return testNow }
	return w
}

// seed inserts heartbeats for a server at the given ages before testNow,
// online with the given player count.
func seed(t *testing.T, store *storage.MemoryStore, serverID string, players int, ages ...time.Duration) {
	t.Helper()
	for i, age := range ages {
		p := players
		require.NoError(t, store.Insert(context.Background(), &types.Heartbeat{
			ServerID:    serverID,
			KeyVersion:  1,
			HeartbeatID: fmt.Sprintf("%s-hb-%d", serverID, i),
			Status:      types.StatusOnline,
			PlayersCurrent: &p,
			ReceivedAt:  testNow.Add(-age),
		}))
	}
}

func TestProcessJobHealthyServer(t *testing.T) {
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()
	ctx := context.Background()

	// Five heartbeats five minutes apart, newest one minute old. With a
	// 600s grace the server is alive and the samples are dense.
	seed(t, store, "srv-1", 12,
		time.Minute, 6*time.Minute, 11*time.Minute, 16*time.Minute, 21*time.Minute)
	require.NoError(t, jobs.Enqueue(ctx, "srv-1"))

	w := newWorker(t, store, store, jobs)
	w.PollOnce(ctx)

	state, err := store.Get(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusOnline, state.EffectiveStatus)
	assert.Equal(t, types.ConfidenceGreen, state.Confidence)
	require.NotNil(t, state.UptimePercent)
	assert.Greater(t, *state.UptimePercent, 0.0)
	require.NotNil(t, state.QualityScore)
	require.NotNil(t, state.LastHeartbeatAt)
	assert.Equal(t, testNow.Add(-time.Minute), *state.LastHeartbeatAt)
	assert.False(t, state.AnomalyPlayersSpike)

	depth, err := jobs.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestProcessJobNoHeartbeats(t *testing.T) {
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, jobs.Enqueue(ctx, "srv-empty"))

	w := newWorker(t, store, store, jobs)
	w.PollOnce(ctx)

	// Job completes without creating a derived record.
	depth, err := jobs.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	_, err = store.Get(ctx, "srv-empty")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProcessJobStaleServerGoesOffline(t *testing.T) {
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()
	ctx := context.Background()

	// Last heartbeat two hours ago, well past the 600s grace.
	seed(t, store, "srv-stale", 0, 2*time.Hour, 2*time.Hour+5*time.Minute)
	require.NoError(t, jobs.Enqueue(ctx, "srv-stale"))

	w := newWorker(t, store, store, jobs)
	w.PollOnce(ctx)

	state, err := store.Get(ctx, "srv-stale")
	require.NoError(t, err)
	assert.Equal(t, types.StatusOffline, state.EffectiveStatus)
	assert.Equal(t, types.ConfidenceRed, state.Confidence)
}

// failingHeartbeats errors Recent for one server id.
type failingHeartbeats struct {
	storage.HeartbeatStore
	failFor string
}

func (s *failingHeartbeats) Recent(ctx context.Context, serverID string, limit int) ([]types.Heartbeat, error) {
	if serverID == s.failFor {
		return nil, errors.New("history unavailable")
	}
	return s.HeartbeatStore.Recent(ctx, serverID, limit)
}

func TestPollOnceIsolatesFailures(t *testing.T) {
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()
	ctx := context.Background()

	seed(t, store, "srv-good", 5, time.Minute)
	require.NoError(t, jobs.Enqueue(ctx, "srv-bad"))
	require.NoError(t, jobs.Enqueue(ctx, "srv-good"))
	// srv-bad has stored heartbeats so it reaches the failing load.
	seed(t, store, "srv-bad", 5, time.Minute)

	hb := &failingHeartbeats{HeartbeatStore: store, failFor: "srv-bad"}
	w := newWorker(t, hb, store, jobs)
	w.PollOnce(ctx)

	// srv-good succeeded despite srv-bad failing first in the batch.
	_, err := store.Get(ctx, "srv-good")
	require.NoError(t, err)

	// srv-bad stays pending with the error recorded.
	pending, err := jobs.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "srv-bad", pending[0].ServerID)
	assert.Equal(t, "history unavailable", pending[0].LastError)
	assert.Equal(t, 2, pending[0].Attempts)
}

func TestAnomalyStateCarriesAcrossJobs(t *testing.T) {
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()
	ctx := context.Background()

	// An impossible round trip: 0 -> 60 -> 0 players within a minute.
	zero, spike := 0, 60
	times := []struct {
		age     time.Duration
		players *int
	}{
		{30 * time.Second, &zero},
		{40 * time.Second, &spike},
		{50 * time.Second, &zero},
	}
	for i, s := range times {
		require.NoError(t, store.Insert(ctx, &types.Heartbeat{
			ServerID:       "srv-spike",
			KeyVersion:     1,
			HeartbeatID:    fmt.Sprintf("spike-%d", i),
			Status:         types.StatusOnline,
			PlayersCurrent: s.players,
			ReceivedAt:     testNow.Add(-s.age),
		}))
	}

	require.NoError(t, jobs.Enqueue(ctx, "srv-spike"))
	w := newWorker(t, store, store, jobs)
	w.PollOnce(ctx)

	state, err := store.Get(ctx, "srv-spike")
	require.NoError(t, err)
	assert.True(t, state.AnomalyPlayersSpike)
	require.NotNil(t, state.AnomalyLastDetectedAt)

	// A later job within the decay window keeps the flag raised even
	// though newer heartbeats are clean.
	require.NoError(t, store.Insert(ctx, &types.Heartbeat{
		ServerID:       "srv-spike",
		KeyVersion:     1,
		HeartbeatID:    "spike-clean",
		Status:         types.StatusOnline,
		PlayersCurrent: &zero,
		ReceivedAt:     testNow.Add(-10 * time.Second),
	}))
	require.NoError(t, jobs.Enqueue(ctx, "srv-spike"))
	w.PollOnce(ctx)

	state, err = store.Get(ctx, "srv-spike")
	require.NoError(t, err)
	assert.True(t, state.AnomalyPlayersSpike)
}

func TestRankAll(t *testing.T) {
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()
	ctx := context.Background()

	seed(t, store, "srv-a", 20, time.Minute, 6*time.Minute, 11*time.Minute)
	seed(t, store, "srv-b", 0, 3*time.Hour)
	require.NoError(t, jobs.Enqueue(ctx, "srv-a"))
	require.NoError(t, jobs.Enqueue(ctx, "srv-b"))

	w := newWorker(t, store, store, jobs)
	w.PollOnce(ctx)
	w.RankAll(ctx)

	a, err := store.Get(ctx, "srv-a")
	require.NoError(t, err)
	b, err := store.Get(ctx, "srv-b")
	require.NoError(t, err)

	require.NotNil(t, a.RankingScore)
	require.NotNil(t, b.RankingScore)
	assert.Greater(t, *a.RankingScore, *b.RankingScore)
}

func TestStartStop(t *testing.T) {
	store := storage.NewMemoryStore()
	jobs := queue.NewMemoryQueue()

	opts := testOptions()
	opts.PollInterval = 10 * time.Millisecond
	opts.RankInterval = 10 * time.Millisecond

	w := New(store, store, keycache.New(store, time.Minute), jobs, opts)
	w.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	w.Stop()
}
