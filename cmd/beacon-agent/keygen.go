package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 keypair for this agent",
	Long: `Generates a new Ed25519 keypair. The private key is written
hex-encoded to the output file with mode 0600; the public key is
printed to stdout for registration with "beacon key add".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}

		if err := os.WriteFile(keygenOut, []byte(hex.EncodeToString(priv)+"\n"), 0o600); err != nil {
			return fmt.Errorf("write private key: %w", err)
		}

		fmt.Printf("Private key written to %s\n", keygenOut)
		fmt.Printf("Public key: %s\n", hex.EncodeToString(pub))
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "agent.key", "private key output path")
}
