package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/playbeacon/beacon/pkg/canonical"
	"github.com/playbeacon/beacon/pkg/types"
)

// Client talks to a beacon server over HTTP. It signs heartbeats on
// behalf of one agent and reads derived state for tooling.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Heartbeat is one outgoing liveness report.
type Heartbeat struct {
	ServerID        string
	KeyVersion      int
	Timestamp       time.Time
	HeartbeatID     string
	Status          types.ServerStatus
	MapName         *string
	PlayersCurrent  *int
	PlayersCapacity *int
	AgentVersion    *string
}

// SubmitResult is the server's verdict on one heartbeat.
type SubmitResult struct {
	Received bool   `json:"received"`
	ServerID string `json:"server_id"`
	Replay   bool   `json:"replay"`
	Reason   string `json:"reason"`

	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
}

// SubmitHeartbeat signs the heartbeat with the agent's private key and
// posts it. A rejection is not a transport error: the result carries
// the reason and the caller decides how loudly to complain.
func (c *Client) SubmitHeartbeat(ctx context.Context, priv ed25519.PrivateKey, hb Heartbeat) (*SubmitResult, error) {
	env := canonical.Envelope{
		ServerID:        hb.ServerID,
		KeyVersion:      hb.KeyVersion,
		Timestamp:       hb.Timestamp,
		HeartbeatID:     hb.HeartbeatID,
		Status:          string(hb.Status),
		MapName:         hb.MapName,
		PlayersCurrent:  hb.PlayersCurrent,
		PlayersCapacity: hb.PlayersCapacity,
		AgentVersion:    hb.AgentVersion,
	}

	body := map[string]any{
		"server_id":    hb.ServerID,
		"key_version":  hb.KeyVersion,
		"timestamp":    canonical.NormalizeTimestamp(hb.Timestamp),
		"heartbeat_id": hb.HeartbeatID,
		"status":       string(hb.Status),
		"signature":    canonical.Sign(priv, env),
	}
	if hb.MapName != nil {
		body["map_name"] = *hb.MapName
	}
	if hb.PlayersCurrent != nil {
		body["players_current"] = *hb.PlayersCurrent
	}
	if hb.PlayersCapacity != nil {
		body["players_capacity"] = *hb.PlayersCapacity
	}
	if hb.AgentVersion != nil {
		body["agent_version"] = *hb.AgentVersion
	}

	var result SubmitResult
	status, err := c.post(ctx, "/api/v1/heartbeat", body, &result)
	if err != nil {
		return nil, err
	}
	result.StatusCode = status
	return &result, nil
}

// GetServer returns one server's derived state.
func (c *Client) GetServer(ctx context.Context, serverID string) (*types.DerivedState, error) {
	var state types.DerivedState
	if err := c.get(ctx, "/api/v1/servers/"+serverID, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ListServers returns the derived state of every known server.
func (c *Client) ListServers(ctx context.Context) ([]types.DerivedState, error) {
	var resp struct {
		Servers []types.DerivedState `json:"servers"`
	}
	if err := c.get(ctx, "/api/v1/servers", &resp); err != nil {
		return nil, err
	}
	return resp.Servers, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("get %s: status %d: %s", path, resp.StatusCode, msg)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
