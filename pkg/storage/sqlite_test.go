package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbeacon/beacon/pkg/types"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "beacon.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testHeartbeat(serverID, hbID string, receivedAt time.Time) *types.Heartbeat {
	players := 12
	return &types.Heartbeat{
		ServerID:       serverID,
		KeyVersion:     1,
		AgentTimestamp: receivedAt.Add(-time.Second),
		HeartbeatID:    hbID,
		Status:         types.StatusOnline,
		PlayersCurrent: &players,
		ReceivedAt:     receivedAt,
	}
}

func TestSQLiteInsertAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of received order; Recent must still return newest-first.
	require.NoError(t, s.Insert(ctx, testHeartbeat("srv-1", "hb-2", base.Add(5*time.Minute))))
	require.NoError(t, s.Insert(ctx, testHeartbeat("srv-1", "hb-1", base)))
	require.NoError(t, s.Insert(ctx, testHeartbeat("srv-1", "hb-3", base.Add(10*time.Minute))))
	require.NoError(t, s.Insert(ctx, testHeartbeat("srv-2", "hb-other", base)))

	hbs, err := s.Recent(ctx, "srv-1", 10)
	require.NoError(t, err)
	require.Len(t, hbs, 3)
	assert.Equal(t, "hb-3", hbs[0].HeartbeatID)
	assert.Equal(t, "hb-2", hbs[1].HeartbeatID)
	assert.Equal(t, "hb-1", hbs[2].HeartbeatID)
	assert.Equal(t, 12, *hbs[0].PlayersCurrent)
	assert.Nil(t, hbs[0].MapName)

	limited, err := s.Recent(ctx, "srv-1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

// TestSQLiteReplayClassification tests the atomic conflict semantics:
// same server yields ErrDuplicate, another server yields ErrIDConflict
func TestSQLiteReplayClassification(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, testHeartbeat("srv-1", "hb-1", base)))

	err := s.Insert(ctx, testHeartbeat("srv-1", "hb-1", base.Add(time.Minute)))
	assert.ErrorIs(t, err, ErrDuplicate)

	err = s.Insert(ctx, testHeartbeat("srv-2", "hb-1", base.Add(time.Minute)))
	assert.ErrorIs(t, err, ErrIDConflict)

	// The replay must not have created a second row.
	hbs, err := s.Recent(ctx, "srv-1", 10)
	require.NoError(t, err)
	assert.Len(t, hbs, 1)
}

func TestSQLiteRejectionAudit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordRejection(ctx, types.AuditRecord{
		ServerID: "srv-1", Reason: types.ReasonInvalidSignature, At: base,
	}))
	require.NoError(t, s.RecordRejection(ctx, types.AuditRecord{
		ServerID: "srv-1", Reason: types.ReasonKeyVersionMismatch, At: base.Add(time.Minute),
	}))

	recs, err := s.Rejections(ctx, "srv-1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, types.ReasonKeyVersionMismatch, recs[0].Reason)
	assert.Equal(t, types.ReasonInvalidSignature, recs[1].Reason)
}
