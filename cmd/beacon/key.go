package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/playbeacon/beacon/pkg/config"
	"github.com/playbeacon/beacon/pkg/storage"
	"github.com/playbeacon/beacon/pkg/types"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage per-server cluster keys",
}

var (
	keyConfigPath string
	keyVersion    int
	keyGraceSecs  int
)

var keyAddCmd = &cobra.Command{
	Use:   "add <server-id> <public-key-hex>",
	Short: "Register or rotate a server's Ed25519 public key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverID, pubHex := args[0], args[1]

		if raw, err := hex.DecodeString(pubHex); err != nil || len(raw) != 32 {
			return fmt.Errorf("public key must be 64 hex characters (32 bytes)")
		}

		store, err := openDerivedStore(keyConfigPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.PutKey(context.Background(), &types.ClusterKey{
			ServerID:           serverID,
			PublicKey:          pubHex,
			KeyVersion:         keyVersion,
			GraceWindowSeconds: keyGraceSecs,
		}); err != nil {
			return fmt.Errorf("store key: %w", err)
		}

		fmt.Printf("Key version %d registered for %s\n", keyVersion, serverID)
		return nil
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show <server-id>",
	Short: "Show a server's registered key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDerivedStore(keyConfigPath)
		if err != nil {
			return err
		}
		defer store.Close()

		key, err := store.GetKey(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("load key: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(key)
	},
}

func openDerivedStore(configPath string) (*storage.BoltStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return storage.NewBoltStore(cfg.Server.DataDir)
}

func init() {
	keyCmd.PersistentFlags().StringVarP(&keyConfigPath, "config", "c", "", "path to config.yaml")
	keyAddCmd.Flags().IntVar(&keyVersion, "key-version", 1, "key version the agent must submit")
	keyAddCmd.Flags().IntVar(&keyGraceSecs, "grace-seconds", config.DefaultGraceWindowSecs, "liveness grace window in seconds")

	keyCmd.AddCommand(keyAddCmd)
	keyCmd.AddCommand(keyShowCmd)
}
