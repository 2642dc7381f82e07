package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var resultCmd = &cobra.Command{
	Use:   "result [id]",
	Short: "Print the execution result of a transaction.",
	Args:  cobra.ExactArgs(1),
	Run:   resultRun,
}

func init() {
	rootCmd.AddCommand(resultCmd)
}

func resultRun(cmd *cobra.Command, args []string) {
	var result struct {
		Slot       uint64 `json:"slot"`
		Status     string `json:"status"`
		Reason     string `json:"reason"`
		SlotStatus string `json:"slot_status"`
	}
	if err := get("/v1/tx/results/"+args[0], &result); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("slot %d [%s]: %s", result.Slot, result.SlotStatus, result.Status)
	if result.Reason != "" {
		fmt.Printf(": %s", result.Reason)
	}
	fmt.Println()
}
