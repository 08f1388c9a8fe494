package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/ads"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/daemon"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/executor"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/monitor"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/policy"
)

var (
	serveCustomers []string
	serveInterval  time.Duration
	serveGateway   string
	serveAPIKey    string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringSliceVar(&serveCustomers, "customers", nil, "Customer IDs to monitor (required)")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", time.Hour, "Sweep interval")
	serveCmd.Flags().StringVar(&serveGateway, "gateway", "", "Mutation API gateway base URL (required)")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "Mutation API key")
	serveCmd.MarkFlagRequired("customers")
	serveCmd.MarkFlagRequired("gateway")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run periodic rollback sweeps with policy hot reload",
	Long: "Sweeps every configured customer on an interval. The policy file is\n" +
		"watched for changes and reloaded without a restart. Stops cleanly on\n" +
		"SIGINT or SIGTERM.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if len(serveCustomers) == 0 {
		fmt.Fprintln(os.Stderr, "FATAL: --customers must name at least one customer")
		os.Exit(exitConfig)
	}

	// Load every customer's policy up front so a broken config fails at
	// startup, not on the first sweep.
	cache := policy.NewCache(func(customerID string) (*policy.ClientPolicy, string, error) {
		return policy.LoadWithHash(flagPolicyPath, customerID)
	}, 0)
	for _, customerID := range serveCustomers {
		if _, _, err := cache.Get(customerID); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(exitConfig)
		}
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
		Mutator:    ads.NewHTTPMutator(serveGateway, serveAPIKey),
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

	sweep := func(ctx context.Context, customerID string) error {
		pol, hash, err := cache.Get(customerID)
		if err != nil {
			return err
		}
		report, err := mon.Sweep(ctx, pol, hash)
		if err != nil {
			return err
		}
		log.Printf("sweep %s: customer=%s examined=%d rolled_back=%d confirmed_good=%d deferred=%d",
			report.SweepID, customerID, report.Examined, report.RolledBack, report.ConfirmedGood, report.Deferred)
		return nil
	}

	scheduler := daemon.NewScheduler(serveCustomers, serveInterval, sweep, func(customerID string, err error) {
		log.Printf("sweep failed: customer=%s err=%v", customerID, err)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flagPolicyPath != "" {
		watcher := daemon.NewPolicyWatcher(flagPolicyPath, func() {
			log.Printf("policy file changed, reloading: %s", flagPolicyPath)
			cache.InvalidateAll()
		})
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Printf("policy watcher stopped: %v", err)
			}
		}()
	}

	log.Printf("serving %d customers, sweep interval %s", len(serveCustomers), serveInterval)
	err = scheduler.Run(ctx)

	if dispatcher != nil {
		dispatcher.Wait()
	}
	return err
}
