package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/ledger"
)

var (
	ledgerCustomer string
	ledgerLimit    int
	ledgerFormat   string
)

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.Flags().StringVar(&ledgerCustomer, "customer", "", "Customer ID (required)")
	ledgerCmd.Flags().IntVarP(&ledgerLimit, "limit", "n", 50, "Maximum entries to show")
	ledgerCmd.Flags().StringVarP(&ledgerFormat, "format", "f", "text", "Output format (text|json)")
	ledgerCmd.MarkFlagRequired("customer")
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show recent ledger entries for a customer",
	RunE:  runLedger,
}

func runLedger(cmd *cobra.Command, args []string) error {
	store, err := ledger.Open(flagLedgerPath)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Recent(cmd.Context(), ledgerCustomer, ledgerLimit)
	if err != nil {
		return err
	}

	switch ledgerFormat {
	case "json":
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		if len(entries) == 0 {
			fmt.Printf("no ledger entries for %s\n", ledgerCustomer)
			return nil
		}
		for _, e := range entries {
			printEntry(e)
		}
	}
	return nil
}
