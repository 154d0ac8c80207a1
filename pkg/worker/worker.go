package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/playbeacon/beacon/pkg/engine"
	"github.com/playbeacon/beacon/pkg/gate"
	"github.com/playbeacon/beacon/pkg/log"
	"github.com/playbeacon/beacon/pkg/metrics"
	"github.com/playbeacon/beacon/pkg/queue"
	"github.com/playbeacon/beacon/pkg/storage"
	"github.com/playbeacon/beacon/pkg/types"
)

// Options tunes the poller and the derived-state engines.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	HistoryLimit int

	UptimeWindow    time.Duration
	AnomalyDecay    time.Duration
	DefaultCapacity int

	RankInterval  time.Duration
	RankPlayerCap int

	// MaxAttempts is observability only: jobs past it are counted on a
	// gauge and logged, never skipped. 0 disables the check.
	MaxAttempts int

	// FallbackGraceSeconds applies when a server's cluster key cannot be
	// resolved at processing time.
	FallbackGraceSeconds int
}

// Worker is the single derived-state poller. Exactly one instance runs
// per deployment; the claim model in the queue assumes no competing
// consumers, which is what lets it skip leases entirely.
type Worker struct {
	heartbeats storage.HeartbeatStore
	derived    storage.DerivedStore
	keys       gate.KeyProvider
	jobs       queue.Queue
	opts       Options

	// Now is swappable for tests.
	Now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a worker over the given stores.
func New(hb storage.HeartbeatStore, derived storage.DerivedStore, keys gate.KeyProvider,
	jobs queue.Queue, opts Options) *Worker {
	return &Worker{
		heartbeats: hb,
		derived:    derived,
		keys:       keys,
		jobs:       jobs,
		opts:       opts,
		Now:        time.Now,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the poll loop and the ranking loop. It returns
// immediately; Stop blocks until both loops have exited.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
	logger := log.WithComponent("worker")
	logger.Info().
		Dur("poll_interval", w.opts.PollInterval).
		Int("batch_size", w.opts.BatchSize).
		Msg("worker started")
}

// Stop signals the loops to exit and waits for them.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
	logger := log.WithComponent("worker")
	logger.Info().Msg("worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	poll := time.NewTicker(w.opts.PollInterval)
	defer poll.Stop()
	rank := time.NewTicker(w.opts.RankInterval)
	defer rank.Stop()

	for {
		select {
		case <-poll.C:
			w.PollOnce(ctx)
		case <-rank.C:
			w.RankAll(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PollOnce claims one batch of pending jobs and processes each in
// isolation. A failing job is marked failed and never blocks the rest
// of the batch.
func (w *Worker) PollOnce(ctx context.Context) {
	logger := log.WithComponent("worker")

	jobs, err := w.jobs.Claim(ctx, w.opts.BatchSize)
	if err != nil {
		logger.Error().Err(err).Msg("claim failed")
		return
	}

	if depth, err := w.jobs.Depth(ctx); err == nil {
		metrics.QueueDepth.Set(float64(depth))
	}

	if w.opts.MaxAttempts > 0 {
		over := 0
		for _, job := range jobs {
			if job.Attempts > w.opts.MaxAttempts {
				over++
				logger.Warn().
					Str("job_id", job.ID).
					Str("server_id", job.ServerID).
					Int("attempts", job.Attempts).
					Msg("job past attempt limit")
			}
		}
		metrics.JobsOverAttemptLimit.Set(float64(over))
	}

	for _, job := range jobs {
		timer := metrics.NewTimer()
		if err := w.processJob(ctx, job); err != nil {
			metrics.JobsFailed.Inc()
			logger.Error().Err(err).
				Str("job_id", job.ID).
				Str("server_id", job.ServerID).
				Int("attempts", job.Attempts).
				Msg("job failed")
			if mErr := w.jobs.MarkFailed(ctx, job.ID, err, job.Attempts); mErr != nil {
				logger.Error().Err(mErr).Str("job_id", job.ID).Msg("mark failed errored")
			}
			continue
		}
		timer.ObserveDuration(metrics.JobDuration)
		metrics.JobsProcessed.Inc()
	}
}

// processJob recomputes the full derived state for one server. A panic
// in an engine is converted to a job error so one poisoned history
// cannot kill the poller.
func (w *Worker) processJob(ctx context.Context, job types.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	hbs, err := w.heartbeats.Recent(ctx, job.ServerID, w.opts.HistoryLimit)
	if err != nil {
		return fmt.Errorf("load heartbeats: %w", err)
	}

	// A job for a server with no stored heartbeats is complete by
	// definition; the derived record (if any) is left untouched.
	if len(hbs) == 0 {
		return w.jobs.MarkProcessed(ctx, job.ID, w.Now().UTC())
	}

	now := w.Now().UTC()
	grace := w.grace(ctx, job.ServerID)

	prev := engine.AnomalyState{}
	if state, err := w.derived.Get(ctx, job.ServerID); err == nil {
		prev = engine.AnomalyState{
			Flagged:        state.AnomalyPlayersSpike,
			LastDetectedAt: state.AnomalyLastDetectedAt,
		}
	} else if err != storage.ErrNotFound {
		return fmt.Errorf("load derived state: %w", err)
	}

	status := engine.Status(hbs, grace, now)
	conf := engine.Confidence(hbs, grace, now)
	uptime := engine.Uptime(hbs, grace, w.opts.UptimeWindow, now)
	anom := engine.Anomaly(hbs, prev, w.opts.AnomalyDecay, w.opts.DefaultCapacity, now)

	if anom.Flagged && !prev.Flagged {
		metrics.AnomaliesFlagged.Inc()
	}

	newest := hbs[0]
	quality := engine.Quality(uptime, newest.PlayersCurrent, newest.PlayersCapacity, conf, w.opts.DefaultCapacity)

	lastAt := newest.ReceivedAt
	upd := types.DerivedUpdate{
		ServerID:              job.ServerID,
		EffectiveStatus:       status,
		Confidence:            conf,
		UptimePercent:         uptime,
		QualityScore:          quality,
		AnomalyPlayersSpike:   anom.Flagged,
		AnomalyLastDetectedAt: anom.LastDetectedAt,
		PlayersCurrent:        newest.PlayersCurrent,
		PlayersCapacity:       newest.PlayersCapacity,
		LastHeartbeatAt:       &lastAt,
	}
	if err := w.derived.ApplyDerived(ctx, upd); err != nil {
		return fmt.Errorf("apply derived state: %w", err)
	}

	return w.jobs.MarkProcessed(ctx, job.ID, w.Now().UTC())
}

// grace resolves the liveness grace window for a server from its
// cluster key, falling back to the configured default when the key is
// unavailable.
func (w *Worker) grace(ctx context.Context, serverID string) time.Duration {
	if key, err := w.keys.Get(ctx, serverID); err == nil && key.GraceWindowSeconds > 0 {
		return key.GraceWindow()
	}
	return time.Duration(w.opts.FallbackGraceSeconds) * time.Second
}
