package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/playbeacon/beacon/pkg/client"
	"github.com/playbeacon/beacon/pkg/log"
	"github.com/playbeacon/beacon/pkg/types"
)

var runOpts struct {
	endpoint   string
	keyPath    string
	serverID   string
	keyVersion int
	interval   time.Duration
	mapName    string
	players    int
	capacity   int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Send signed heartbeats on an interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runOpts.serverID == "" {
			return fmt.Errorf("--server-id is required")
		}
		priv, err := loadPrivateKey(runOpts.keyPath)
		if err != nil {
			return err
		}
		return runAgent(priv)
	},
}

func init() {
	runCmd.Flags().StringVar(&runOpts.endpoint, "endpoint", "http://localhost:8080", "beacon server base URL")
	runCmd.Flags().StringVarP(&runOpts.keyPath, "key", "k", "agent.key", "private key file from keygen")
	runCmd.Flags().StringVar(&runOpts.serverID, "server-id", "", "server id registered with the cluster")
	runCmd.Flags().IntVar(&runOpts.keyVersion, "key-version", 1, "key version registered server-side")
	runCmd.Flags().DurationVar(&runOpts.interval, "interval", 60*time.Second, "heartbeat interval")
	runCmd.Flags().StringVar(&runOpts.mapName, "map", "", "current map name")
	runCmd.Flags().IntVar(&runOpts.players, "players", -1, "current player count (-1 to omit)")
	runCmd.Flags().IntVar(&runOpts.capacity, "capacity", -1, "player capacity (-1 to omit)")
}

func loadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	priv, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil || len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("key file %s does not contain a hex-encoded Ed25519 private key", path)
	}
	return ed25519.PrivateKey(priv), nil
}

func runAgent(priv ed25519.PrivateKey) error {
	log.Init(log.Config{Level: log.InfoLevel})
	logger := log.WithComponent("agent")
	logger.Info().
		Str("server_id", runOpts.serverID).
		Str("endpoint", runOpts.endpoint).
		Dur("interval", runOpts.interval).
		Msg("agent starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(runOpts.endpoint)

	// First beat immediately, then on the interval.
	sendHeartbeat(ctx, c, priv)

	ticker := time.NewTicker(runOpts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sendHeartbeat(ctx, c, priv)
		case <-ctx.Done():
			logger.Info().Msg("agent stopped")
			return nil
		}
	}
}

func sendHeartbeat(ctx context.Context, c *client.Client, priv ed25519.PrivateKey) {
	logger := log.WithComponent("agent")

	hb := client.Heartbeat{
		ServerID:    runOpts.serverID,
		KeyVersion:  runOpts.keyVersion,
		Timestamp:   time.Now().UTC(),
		HeartbeatID: uuid.New().String(),
		Status:      types.StatusOnline,
	}
	if runOpts.mapName != "" {
		hb.MapName = &runOpts.mapName
	}
	if runOpts.players >= 0 {
		hb.PlayersCurrent = &runOpts.players
	}
	if runOpts.capacity >= 0 {
		hb.PlayersCapacity = &runOpts.capacity
	}
	agentVersion := Version
	hb.AgentVersion = &agentVersion

	result, err := c.SubmitHeartbeat(ctx, priv, hb)
	if err != nil {
		logger.Warn().Err(err).Msg("heartbeat delivery failed")
		return
	}

	if !result.Received {
		logger.Warn().
			Int("status", result.StatusCode).
			Str("reason", result.Reason).
			Msg("heartbeat rejected")
		return
	}
	logger.Debug().
		Str("heartbeat_id", hb.HeartbeatID).
		Bool("replay", result.Replay).
		Msg("heartbeat delivered")
}
