package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var (
	to    string
	value uint64
	data  []byte
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := loadPrivateKey()
		if err != nil {
			log.Fatal(err)
		}

		sendWithDetails(privateKey)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account id or key name to send to.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
	sendCmd.Flags().BytesHexVarP(&data, "data", "d", nil, "Data to store in your account.")
}

func sendWithDetails(privateKey *ecdsa.PrivateKey) {
	from := database.PublicKeyToAccountID(privateKey.PublicKey)

	// Every transaction references a recent slot hash so it expires.
	var recent struct {
		Slot uint64        `json:"slot"`
		Hash database.Hash `json:"hash"`
	}
	if err := get("/v1/slots/recent", &recent); err != nil {
		log.Fatal(err)
	}

	writes := []database.AccountID{from}
	var instructions []database.Instruction

	if value > 0 {
		toID, err := resolveAccount(to)
		if err != nil {
			log.Fatal(err)
		}
		writes = append(writes, toID)
		instructions = append(instructions, database.Transfer(from, toID, value))
	}

	if len(data) > 0 {
		instructions = append(instructions, database.SetData(from, data))
	}

	tx, err := database.NewTx(recent.Hash, nil, writes, instructions...)
	if err != nil {
		log.Fatal(err)
	}

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		log.Fatal(err)
	}

	body, err := json.Marshal(signedTx)
	if err != nil {
		log.Fatal(err)
	}
	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var result struct {
		Status string `json:"status"`
		ID     string `json:"id"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatal(err)
	}

	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("%s: %s", resp.Status, result.Error)
	}

	fmt.Println(result.ID)
}
