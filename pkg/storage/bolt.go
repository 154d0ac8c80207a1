package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/playbeacon/beacon/pkg/types"
)

var (
	// Bucket names
	bucketDerived = []byte("derived")
	bucketKeys    = []byte("cluster_keys")
)

// BoltStore implements DerivedStore and KeyStore using BoltDB. Each
// update reads, mutates and rewrites the record inside one write
// transaction, so fast-path and worker writes never tear.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltStore creates a new BoltDB-backed derived-state store.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "beacon.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDerived, bucketKeys} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get returns the derived state for a server.
func (s *BoltStore) Get(ctx context.Context, serverID string) (*types.DerivedState, error) {
	var state types.DerivedState
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDerived).Get([]byte(serverID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// List returns all derived-state snapshots.
func (s *BoltStore) List(ctx context.Context) ([]types.DerivedState, error) {
	var states []types.DerivedState
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDerived).ForEach(func(k, v []byte) error {
			var state types.DerivedState
			if err := json.Unmarshal(v, &state); err != nil {
				return err
			}
			states = append(states, state)
			return nil
		})
	})
	return states, err
}

// ApplyFastPath writes the narrow ingest-time fields. Worker-owned
// fields pass through untouched; a missing record is created with
// unknown status so the directory can show last-seen immediately.
func (s *BoltStore) ApplyFastPath(ctx context.Context, upd types.FastPathUpdate) error {
	return s.mutate(upd.ServerID, func(state *types.DerivedState) {
		if state.EffectiveStatus == "" {
			state.EffectiveStatus = types.StatusUnknown
			state.Confidence = types.ConfidenceRed
		}
		t := upd.LastHeartbeatAt
		state.LastHeartbeatAt = &t
		if upd.PlayersCurrent != nil {
			state.PlayersCurrent = upd.PlayersCurrent
		}
		if upd.PlayersCapacity != nil {
			state.PlayersCapacity = upd.PlayersCapacity
		}
	})
}

// ApplyDerived writes the worker-owned fields in one update.
func (s *BoltStore) ApplyDerived(ctx context.Context, upd types.DerivedUpdate) error {
	return s.mutate(upd.ServerID, func(state *types.DerivedState) {
		state.EffectiveStatus = upd.EffectiveStatus
		state.Confidence = upd.Confidence
		state.UptimePercent = upd.UptimePercent
		state.QualityScore = upd.QualityScore
		state.AnomalyPlayersSpike = upd.AnomalyPlayersSpike
		state.AnomalyLastDetectedAt = upd.AnomalyLastDetectedAt
		state.PlayersCurrent = upd.PlayersCurrent
		state.PlayersCapacity = upd.PlayersCapacity
		state.LastHeartbeatAt = upd.LastHeartbeatAt
	})
}

// SetRanking writes the ranking score for a server.
func (s *BoltStore) SetRanking(ctx context.Context, serverID string, score float64) error {
	return s.mutate(serverID, func(state *types.DerivedState) {
		if state.EffectiveStatus == "" {
			state.EffectiveStatus = types.StatusUnknown
			state.Confidence = types.ConfidenceRed
		}
		state.RankingScore = &score
	})
}

// mutate loads, mutates and rewrites one derived record in a single
// write transaction.
func (s *BoltStore) mutate(serverID string, fn func(*types.DerivedState)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDerived)
		state := types.DerivedState{ServerID: serverID}
		if data := b.Get([]byte(serverID)); data != nil {
			if err := json.Unmarshal(data, &state); err != nil {
				return err
			}
		}
		fn(&state)
		state.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(&state)
		if err != nil {
			return err
		}
		return b.Put([]byte(serverID), data)
	})
}

// GetKey returns the key material for a server.
func (s *BoltStore) GetKey(ctx context.Context, serverID string) (*types.ClusterKey, error) {
	var key types.ClusterKey
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketKeys).Get([]byte(serverID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &key)
	})
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// PutKey stores key material for a server (upsert; rotation overwrites
// with the incremented key version).
func (s *BoltStore) PutKey(ctx context.Context, key *types.ClusterKey) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(key)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketKeys).Put([]byte(key.ServerID), data)
	})
}
