package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/ads"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/alert"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/executor"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/policy"
)

var (
	applyBatch    string
	applyCustomer string
	applyMode     string
	applyGateway  string
	applyAPIKey   string
	applyFormat   string
)

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringVar(&applyBatch, "batch", "", "Path to the candidate-action batch JSON (required)")
	applyCmd.Flags().StringVar(&applyCustomer, "customer", "", "Customer ID (required)")
	applyCmd.Flags().StringVar(&applyMode, "mode", "dry-run", "Execution mode (dry-run|live)")
	applyCmd.Flags().StringVar(&applyGateway, "gateway", "", "Mutation API gateway base URL (required for live)")
	applyCmd.Flags().StringVar(&applyAPIKey, "api-key", "", "Mutation API key")
	applyCmd.Flags().StringVarP(&applyFormat, "format", "f", "text", "Output format (text|json)")
	applyCmd.MarkFlagRequired("batch")
	applyCmd.MarkFlagRequired("customer")
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Run a guarded batch in dry-run or live mode",
	Long: "Loads a batch of candidate actions, re-validates each one through the\n" +
		"guardrail gates immediately before mutation, applies it (or simulates\n" +
		"in dry-run), and journals every outcome to the ledger.\n\n" +
		"Exit code 0 if nothing failed, 1 if any item failed, 78 on a\n" +
		"configuration error.",
	RunE: runApply,
}

func runApply(cmd *cobra.Command, args []string) error {
	var mode executor.Mode
	switch applyMode {
	case "dry-run", "dry_run":
		mode = executor.DryRun
	case "live":
		mode = executor.Live
		if applyGateway == "" {
			fmt.Fprintln(os.Stderr, "FATAL: live mode requires --gateway")
			os.Exit(exitConfig)
		}
	default:
		fmt.Fprintf(os.Stderr, "FATAL: unknown mode %q\n", applyMode)
		os.Exit(exitConfig)
	}

	pol, policyHash, err := policy.LoadWithHash(flagPolicyPath, applyCustomer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(exitConfig)
	}

	batch, err := loadBatch(applyBatch)
	if err != nil {
		return err
	}

	store, reader, err := openStores()
	if err != nil {
		return err
	}
	defer store.Close()
	defer reader.Close()

	trail, err := openTrail()
	if err != nil {
		return err
	}
	if trail != nil {
		defer trail.Close()
	}

	dispatcher, err := openDispatcher()
	if err != nil {
		return err
	}

	var mutator ads.Mutator
	if mode == executor.Live {
		mutator = ads.NewHTTPMutator(applyGateway, applyAPIKey)
	}

	exec := executor.New(executor.Config{
		Ledger:  store,
		Mutator: mutator,
		Trail:   trail,
	})

	result, err := exec.Execute(cmd.Context(), batch, pol, policyHash, mode)
	if err != nil {
		if errors.Is(err, policy.ErrConfiguration) {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(exitConfig)
		}
		return err
	}

	if dispatcher != nil {
		for _, item := range result.Failed {
			dispatcher.Dispatch(alert.Event{
				Type:       alert.TypeMutationFailed,
				Timestamp:  time.Now().UTC(),
				CustomerID: item.Action.CustomerID,
				EntityType: string(item.Action.EntityType),
				EntityID:   item.Action.EntityID,
				Lever:      string(item.Action.Lever),
				Reason:     item.Err,
			})
		}
		dispatcher.Wait()
	}

	switch applyFormat {
	case "json":
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		printBatchResult(result)
	}

	if len(result.Failed) > 0 {
		os.Exit(1)
	}
	return nil
}
