package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"log"

	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new key pair",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun(cmd *cobra.Command, args []string) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatal(err)
	}

	if err := signature.SaveKeyFile(getPrivateKeyPath(), privateKey); err != nil {
		log.Fatal(err)
	}
}
