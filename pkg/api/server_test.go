package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbeacon/beacon/pkg/canonical"
	"github.com/playbeacon/beacon/pkg/gate"
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

type fixture struct {
	server *Server
	store  *storage.MemoryStore
	jobs   *queue.MemoryQueue
	priv   ed25519.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	require.NoError(t, store.PutKey(context.Background(), &types.ClusterKey{
		ServerID:           "srv-1",
		PublicKey:          hex.EncodeToString(pub),
		KeyVersion:         1,
		GraceWindowSeconds: 600,
	}))

	jobs := queue.NewMemoryQueue()
	g := gate.New(store, store, store, keycache.New(store, time.Minute), jobs, nil)
	g.Now = func() time.Time { return testNow }

	return &fixture{
		server: New(":0", g, store, store),
		store:  store,
		jobs:   jobs,
		priv:   priv,
	}
}

// body builds a signed heartbeat request body, then applies extra
// top-level fields after signing.
func (f *fixture) body(t *testing.T, heartbeatID string, extra map[string]any) []byte {
	t.Helper()

	players := 8
	env := canonical.Envelope{
		ServerID:       "srv-1",
		KeyVersion:     1,
		Timestamp:      testNow.Add(-time.Second),
		HeartbeatID:    heartbeatID,
		Status:         "online",
		PlayersCurrent: &players,
	}

	req := map[string]any{
		"server_id":       env.ServerID,
		"key_version":     env.KeyVersion,
		"timestamp":       env.Timestamp.Format(time.RFC3339),
		"heartbeat_id":    env.HeartbeatID,
		"status":          env.Status,
		"players_current": players,
		"signature":       canonical.Sign(f.priv, env),
	}
	for k, v := range extra {
		req[k] = v
	}

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	return raw
}

func (f *fixture) post(t *testing.T, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/heartbeat", bytes.NewReader(body))
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) heartbeatResponse {
	t.Helper()
	var resp heartbeatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHeartbeatAccepted(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, f.body(t, "hb-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Received)
	assert.False(t, resp.Replay)
	assert.False(t, resp.Processed)
	assert.Equal(t, "srv-1", resp.ServerID)
	assert.Equal(t, 1, f.store.Count("srv-1"))
}

func TestHeartbeatReplay(t *testing.T) {
	f := newFixture(t)
	body := f.body(t, "hb-1", nil)

	rec := f.post(t, body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.post(t, body)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Received)
	assert.True(t, resp.Replay)
	assert.Equal(t, 1, f.store.Count("srv-1"))
}

func TestHeartbeatUnknownFieldsIgnored(t *testing.T) {
	f := newFixture(t)

	// Fields outside the wire contract are dropped before verification,
	// so the signature over the known fields still holds.
	rec := f.post(t, f.body(t, "hb-1", map[string]any{
		"debug_build": true,
		"payload":     map[string]any{"fps": 128},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).Received)
}

func TestHeartbeatRejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		body       []byte
		wantStatus int
		wantReason string
	}{
		{
			"tampered signature",
			f.body(t, "hb-sig", map[string]any{"players_current": 999}),
			http.StatusUnauthorized,
			"invalid_signature",
		},
		{
			"missing required fields",
			[]byte(`{"server_id": "srv-1"}`),
			http.StatusBadRequest,
			"invalid_payload",
		},
		{
			"not json",
			[]byte("not json"),
			http.StatusBadRequest,
			"invalid_payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.post(t, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			resp := decodeResponse(t, rec)
			assert.False(t, resp.Received)
			assert.Equal(t, tt.wantReason, resp.Reason)
		})
	}
}

func TestHeartbeatIDConflict(t *testing.T) {
	f := newFixture(t)

	rec := f.post(t, f.body(t, "hb-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// Second server reusing the same heartbeat id.
	pub2, priv2, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	require.NoError(t, f.store.PutKey(context.Background(), &types.ClusterKey{
		ServerID:           "srv-2",
		PublicKey:          hex.EncodeToString(pub2),
		KeyVersion:         1,
		GraceWindowSeconds: 600,
	}))

	env := canonical.Envelope{
		ServerID:    "srv-2",
		KeyVersion:  1,
		Timestamp:   testNow,
		HeartbeatID: "hb-1",
		Status:      "online",
	}
	raw, err := json.Marshal(map[string]any{
		"server_id":    "srv-2",
		"key_version":  1,
		"timestamp":    testNow.Format(time.RFC3339),
		"heartbeat_id": "hb-1",
		"status":       "online",
		"signature":    canonical.Sign(priv2, env),
	})
	require.NoError(t, err)

	rec = f.post(t, raw)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "heartbeat_id_conflict", decodeResponse(t, rec).Reason)
}

func TestGetServer(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/servers/srv-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.post(t, f.body(t, "hb-1", nil))

	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/servers/srv-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var state types.DerivedState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "srv-1", state.ServerID)
	require.NotNil(t, state.LastHeartbeatAt)
}

func TestListServers(t *testing.T) {
	f := newFixture(t)
	f.post(t, f.body(t, "hb-1", nil))

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Servers []types.DerivedState `json:"servers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Servers, 1)
}

func TestRejectionsEndpoint(t *testing.T) {
	f := newFixture(t)

	// Produce one audited rejection.
	rec := f.post(t, f.body(t, "hb-1", map[string]any{"players_current": 999}))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/servers/srv-1/rejections", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Rejections []types.AuditRecord `json:"rejections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rejections, 1)
	assert.Equal(t, types.ReasonInvalidSignature, resp.Rejections[0].Reason)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
