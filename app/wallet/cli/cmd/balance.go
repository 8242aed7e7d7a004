package cmd

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

type balance struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Balance uint64 `json:"balance"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := signature.LoadKeyFile(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	pkh := signature.HashPubKey(privateKey.Public().(ed25519.PublicKey))
	address := signature.EncodeAddress(netPrefix, pkh)
	fmt.Println("For Address:", address)

	resp, err := http.Get(fmt.Sprintf("%s/v1/balance/%s", url, address))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	var bal balance
	if err := decoder.Decode(&bal); err != nil {
		log.Fatal(err)
	}

	fmt.Println(bal.Balance)
}
