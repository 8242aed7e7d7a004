package cmd

import (
	"crypto/ed25519"
	"fmt"
	"log"

	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the address for the specific wallet",
	Run:   accountRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func accountRun(cmd *cobra.Command, args []string) {
	privateKey, err := signature.LoadKeyFile(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	pkh := signature.HashPubKey(privateKey.Public().(ed25519.PublicKey))
	fmt.Println(signature.EncodeAddress(netPrefix, pkh))
}
