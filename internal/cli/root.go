package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Shared flags for every command that touches the stores.
var (
	flagLedgerPath string
	flagPerfPath   string
	flagPolicyPath string
	flagSinksPath  string
	flagAuditPath  string
	flagReportDir  string
)

var rootCmd = &cobra.Command{
	Use:   "gadsctl",
	Short: "Guarded execution and rollback monitoring for ads optimizations",
	Long: "Applies proposed campaign optimizations through layered safety gates,\n" +
		"journals every change to an append-only ledger, and automatically\n" +
		"reverses changes that regress the client's primary KPI.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLedgerPath, "ledger", "gads-ledger.db", "Path to the ledger database")
	rootCmd.PersistentFlags().StringVar(&flagPerfPath, "perf", "gads-analytics.db", "Path to the analytical store")
	rootCmd.PersistentFlags().StringVar(&flagPolicyPath, "policy", "", "Path to the client policy YAML")
	rootCmd.PersistentFlags().StringVar(&flagSinksPath, "alerts", "", "Path to the alert sinks YAML")
	rootCmd.PersistentFlags().StringVar(&flagAuditPath, "audit", "", "Path to the audit trail (JSONL)")
	rootCmd.PersistentFlags().StringVar(&flagReportDir, "reports", "", "Directory for sweep report artifacts")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
