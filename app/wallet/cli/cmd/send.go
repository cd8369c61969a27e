package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/tessercoin/tesser/foundation/blockchain/database"
	"github.com/tessercoin/tesser/foundation/blockchain/wallet"
)

var (
	url   string
	to    string
	value uint64
	fee   uint64
)

type unspentOutput struct {
	TxID        string `json:"tx_id"`
	OutputIndex uint32 `json:"output_index"`
	Value       uint64 `json:"value"`
	PubKeyHash  string `json:"pub_key_hash"`
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send funds to the specified address",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address to send to.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
	sendCmd.Flags().Uint64VarP(&fee, "fee", "f", 0, "Fee to pay.")
}

func sendRun(cmd *cobra.Command, args []string) {
	w, err := wallet.LoadFromFile(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	utxo, err := fetchUnspent(w.Address())
	if err != nil {
		log.Fatal(err)
	}

	tx, err := w.CreateTransaction(to, value, fee, utxo)
	if err != nil {
		log.Fatal(err)
	}

	data, err := json.Marshal(tx)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("node rejected transaction: %s", resp.Status)
	}

	fmt.Println("sent tx:", tx.ID)
}

// fetchUnspent rebuilds a local unspent set from the node so the wallet can
// select outputs without holding chain state itself.
func fetchUnspent(address string) (*database.UTXOIndex, error) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/utxo/list/%s", url, address))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var unspent []unspentOutput
	if err := json.NewDecoder(resp.Body).Decode(&unspent); err != nil {
		return nil, err
	}

	utxo := database.NewUTXOIndex()
	for _, u := range unspent {
		op := database.OutPoint{TxID: u.TxID, OutputIndex: u.OutputIndex}
		utxo.Add(op, database.TxOutput{Value: u.Value, PubKeyHash: u.PubKeyHash})
	}

	return utxo, nil
}
