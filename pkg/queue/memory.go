package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playbeacon/beacon/pkg/types"
)

// MemoryQueue is a deterministic in-memory Queue for tests. Semantics
// match SQLiteQueue: coalescing enqueue, claim-increments-attempts,
// failed jobs stay pending.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []*types.Job

	// Now is the clock used for enqueued_at; overridable in tests.
	Now func() time.Time
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{Now: time.Now}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, serverID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.ServerID == serverID && job.ProcessedAt == nil {
			job.EnqueuedAt = q.Now().UTC()
			return nil
		}
	}
	q.jobs = append(q.jobs, &types.Job{
		ID:         uuid.New().String(),
		ServerID:   serverID,
		EnqueuedAt: q.Now().UTC(),
	})
	return nil
}

func (q *MemoryQueue) Claim(ctx context.Context, batchSize int) ([]types.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var pending []*types.Job
	for _, job := range q.jobs {
		if job.ProcessedAt == nil {
			pending = append(pending, job)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
	})
	if len(pending) > batchSize {
		pending = pending[:batchSize]
	}

	claimed := make([]types.Job, 0, len(pending))
	for _, job := range pending {
		job.Attempts++
		claimed = append(claimed, *job)
	}
	return claimed, nil
}

func (q *MemoryQueue) MarkProcessed(ctx context.Context, jobID string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.ID == jobID {
			t := at
			job.ProcessedAt = &t
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) MarkFailed(ctx context.Context, jobID string, jobErr error, attempts int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.ID == jobID {
			if jobErr != nil {
				job.LastError = jobErr.Error()
			}
			job.Attempts = attempts
			return nil
		}
	}
	return nil
}

func (q *MemoryQueue) Depth(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, job := range q.jobs {
		if job.ProcessedAt == nil {
			n++
		}
	}
	return n, nil
}

// Jobs returns a copy of every job, terminal included. Test helper.
func (q *MemoryQueue) Jobs() []types.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]types.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, *job)
	}
	return out
}
