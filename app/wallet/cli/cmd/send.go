package cmd

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"

	"github.com/equiforge/equiforge/foundation/blockchain/database"
	"github.com/equiforge/equiforge/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var (
	url   string
	to    string
	value uint64
	fee   uint64
)

type unspent struct {
	TxID     string `json:"txid"`
	Vout     uint32 `json:"vout"`
	Value    uint64 `json:"value"`
	Height   uint32 `json:"height"`
	Coinbase bool   `json:"coinbase"`
}

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := signature.LoadKeyFile(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		sendWithDetails(privateKey)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address to pay.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
	sendCmd.Flags().Uint64VarP(&fee, "fee", "f", 1000, "Fee to pay the miner.")
}

func sendWithDetails(privateKey ed25519.PrivateKey) {
	toHash, err := signature.DecodeAddress(netPrefix, to)
	if err != nil {
		log.Fatal(err)
	}

	pkh := signature.HashPubKey(privateKey.Public().(ed25519.PublicKey))
	address := signature.EncodeAddress(netPrefix, pkh)

	utxos, err := fetchUnspent(address)
	if err != nil {
		log.Fatal(err)
	}

	inputs, total, err := selectCoins(utxos, value+fee)
	if err != nil {
		log.Fatal(err)
	}

	tx := database.Tx{
		Version: 1,
		Inputs:  inputs,
		Outputs: []database.TxOutput{
			{Value: value, PubKeyHash: toHash},
		},
	}

	if change := total - value - fee; change > 0 {
		tx.Outputs = append(tx.Outputs, database.TxOutput{Value: change, PubKeyHash: pkh})
	}

	if err := tx.Sign(privateKey); err != nil {
		log.Fatal(err)
	}

	if err := submit(tx); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Sent:", tx.TxID())
}

func fetchUnspent(address string) ([]unspent, error) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/utxo/list/%s", url, address))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var utxos []unspent
	if err := json.NewDecoder(resp.Body).Decode(&utxos); err != nil {
		return nil, err
	}

	return utxos, nil
}

// selectCoins accumulates outputs largest first until the target is covered.
func selectCoins(utxos []unspent, target uint64) ([]database.TxInput, uint64, error) {
	sort.Slice(utxos, func(i, j int) bool {
		return utxos[i].Value > utxos[j].Value
	})

	var inputs []database.TxInput
	var total uint64

	for _, u := range utxos {
		data, err := hexutil.Decode(u.TxID)
		if err != nil {
			return nil, 0, err
		}
		txID, err := signature.ToHash(data)
		if err != nil {
			return nil, 0, err
		}

		inputs = append(inputs, database.TxInput{
			Prev: database.OutPoint{TxID: txID, Vout: u.Vout},
		})
		total += u.Value

		if total >= target {
			return inputs, total, nil
		}
	}

	return nil, 0, fmt.Errorf("insufficient funds: have %d, need %d", total, target)
}

func submit(tx database.Tx) error {
	raw, err := json.Marshal(hexutil.Bytes(tx.Encode()))
	if err != nil {
		return err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(raw))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
			return fmt.Errorf("node rejected transaction: status %d", resp.StatusCode)
		}
		return fmt.Errorf("node rejected transaction: %s", e.Error)
	}

	return nil
}
