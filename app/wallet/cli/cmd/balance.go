package cmd

import (
	"fmt"
	"log"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

type account struct {
	Account database.AccountID `json:"account"`
	Name    string             `json:"name"`
	Balance uint64             `json:"balance"`
	Version uint64             `json:"version"`
}

type accountInfo struct {
	Slot     uint64    `json:"slot"`
	Accounts []account `json:"accounts"`
}

var slot string

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&slot, "slot", "s", "", "Slot to read the balance at, latest finalized by default.")
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := loadPrivateKey()
	if err != nil {
		log.Fatal(err)
	}

	accountID := database.PublicKeyToAccountID(privateKey.PublicKey)
	fmt.Println("For Account:", accountID)

	path := fmt.Sprintf("/v1/accounts/list/%s", accountID)
	if slot != "" {
		path += "?slot=" + slot
	}

	var info accountInfo
	if err := get(path, &info); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Slot:", info.Slot)
	if len(info.Accounts) > 0 {
		fmt.Println(info.Accounts[0].Balance)
	}
}
