package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/playbeacon/beacon/pkg/types"
)

// MemoryStore is a deterministic in-memory implementation of
// HeartbeatStore, AuditStore, DerivedStore and KeyStore for tests and
// local development. It mirrors the adapters' semantics exactly,
// including replay classification and the two-speed update separation.
type MemoryStore struct {
	mu         sync.RWMutex
	heartbeats map[string][]types.Heartbeat // server_id -> append order
	idOwner    map[string]string            // heartbeat_id -> server_id
	derived    map[string]*types.DerivedState
	keys       map[string]*types.ClusterKey
	rejections []types.AuditRecord

	// Now is the clock used for UpdatedAt stamps; overridable in tests.
	Now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		heartbeats: make(map[string][]types.Heartbeat),
		idOwner:    make(map[string]string),
		derived:    make(map[string]*types.DerivedState),
		keys:       make(map[string]*types.ClusterKey),
		Now:        time.Now,
	}
}

func (s *MemoryStore) Insert(ctx context.Context, hb *types.Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.idOwner[hb.HeartbeatID]; ok {
		if owner == hb.ServerID {
			return ErrDuplicate
		}
		return ErrIDConflict
	}
	s.idOwner[hb.HeartbeatID] = hb.ServerID
	s.heartbeats[hb.ServerID] = append(s.heartbeats[hb.ServerID], *hb)
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, serverID string, limit int) ([]types.Heartbeat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hbs := append([]types.Heartbeat(nil), s.heartbeats[serverID]...)
	sort.SliceStable(hbs, func(i, j int) bool {
		return hbs[i].ReceivedAt.After(hbs[j].ReceivedAt)
	})
	if limit > 0 && len(hbs) > limit {
		hbs = hbs[:limit]
	}
	return hbs, nil
}

// Count returns the number of stored heartbeats for a server.
func (s *MemoryStore) Count(serverID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.heartbeats[serverID])
}

func (s *MemoryStore) RecordRejection(ctx context.Context, rec types.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections = append(s.rejections, rec)
	return nil
}

func (s *MemoryStore) Rejections(ctx context.Context, serverID string, limit int) ([]types.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []types.AuditRecord
	for i := len(s.rejections) - 1; i >= 0; i-- {
		if s.rejections[i].ServerID == serverID {
			recs = append(recs, s.rejections[i])
			if limit > 0 && len(recs) == limit {
				break
			}
		}
	}
	return recs, nil
}

func (s *MemoryStore) Get(ctx context.Context, serverID string) (*types.DerivedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.derived[serverID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *state
	return &copied, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]types.DerivedState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.derived))
	for id := range s.derived {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	states := make([]types.DerivedState, 0, len(ids))
	for _, id := range ids {
		states = append(states, *s.derived[id])
	}
	return states, nil
}

func (s *MemoryStore) ApplyFastPath(ctx context.Context, upd types.FastPathUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.ensureLocked(upd.ServerID)
	t := upd.LastHeartbeatAt
	state.LastHeartbeatAt = &t
	if upd.PlayersCurrent != nil {
		state.PlayersCurrent = upd.PlayersCurrent
	}
	if upd.PlayersCapacity != nil {
		state.PlayersCapacity = upd.PlayersCapacity
	}
	state.UpdatedAt = s.Now().UTC()
	return nil
}

func (s *MemoryStore) ApplyDerived(ctx context.Context, upd types.DerivedUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.ensureLocked(upd.ServerID)
	state.EffectiveStatus = upd.EffectiveStatus
	state.Confidence = upd.Confidence
	state.UptimePercent = upd.UptimePercent
	state.QualityScore = upd.QualityScore
	state.AnomalyPlayersSpike = upd.AnomalyPlayersSpike
	state.AnomalyLastDetectedAt = upd.AnomalyLastDetectedAt
	state.PlayersCurrent = upd.PlayersCurrent
	state.PlayersCapacity = upd.PlayersCapacity
	state.LastHeartbeatAt = upd.LastHeartbeatAt
	state.UpdatedAt = s.Now().UTC()
	return nil
}

func (s *MemoryStore) SetRanking(ctx context.Context, serverID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.ensureLocked(serverID)
	state.RankingScore = &score
	state.UpdatedAt = s.Now().UTC()
	return nil
}

func (s *MemoryStore) ensureLocked(serverID string) *types.DerivedState {
	state, ok := s.derived[serverID]
	if !ok {
		state = &types.DerivedState{
			ServerID:        serverID,
			EffectiveStatus: types.StatusUnknown,
			Confidence:      types.ConfidenceRed,
		}
		s.derived[serverID] = state
	}
	return state
}

func (s *MemoryStore) GetKey(ctx context.Context, serverID string) (*types.ClusterKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[serverID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *key
	return &copied, nil
}

func (s *MemoryStore) PutKey(ctx context.Context, key *types.ClusterKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *key
	copied.UpdatedAt = s.Now().UTC()
	s.keys[key.ServerID] = &copied
	return nil
}
