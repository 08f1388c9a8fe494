package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/ads"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/executor"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/monitor"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/policy"
)

var (
	sweepCustomer string
	sweepGateway  string
	sweepAPIKey   string
	sweepFormat   string
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepCustomer, "customer", "", "Customer ID (required)")
	sweepCmd.Flags().StringVar(&sweepGateway, "gateway", "", "Mutation API gateway base URL (required)")
	sweepCmd.Flags().StringVar(&sweepAPIKey, "api-key", "", "Mutation API key")
	sweepCmd.Flags().StringVarP(&sweepFormat, "format", "f", "text", "Output format (text|json)")
	sweepCmd.MarkFlagRequired("customer")
	sweepCmd.MarkFlagRequired("gateway")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one rollback-monitoring sweep for a customer",
	Long: "Finds ledger entries whose monitoring window has elapsed, compares\n" +
		"before/after performance from the analytical store, and reverses\n" +
		"changes that regressed the client's primary KPI. Everything else is\n" +
		"confirmed good or deferred to the next sweep.",
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	pol, policyHash, err := policy.LoadWithHash(flagPolicyPath, sweepCustomer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(exitConfig)
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

	runner := executor.New(executor.Config{
		Ledger:     store,
		Mutator:    ads.NewHTTPMutator(sweepGateway, sweepAPIKey),
		Trail:      trail,
		ApprovedBy: "rollback_monitor",
	})

	mon := monitor.New(monitor.Config{
		Ledger:     store,
		Perf:       reader,
		Runner:     runner,
		Dispatcher: dispatcher,
		ReportDir:  flagReportDir,
	})

	report, err := mon.Sweep(cmd.Context(), pol, policyHash)
	if dispatcher != nil {
		dispatcher.Wait()
	}
	if err != nil {
		if errors.Is(err, policy.ErrConfiguration) {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(exitConfig)
		}
		return err
	}

	switch sweepFormat {
	case "json":
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		printSweepReport(report)
	}
	return nil
}
