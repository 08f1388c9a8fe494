package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/audit"
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail operations",
	Long:  "Commands for verifying the hash-chained execution audit trail.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit trail",
	Long: "Walks the JSONL audit trail and validates that every entry's prev_hash\n" +
		"matches the SHA-256 of the previous line. Exits 0 if valid, 1 if tampered.",
	Args: cobra.ExactArgs(1),
	RunE: runAuditVerify,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	lines, err := audit.Verify(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK: %d entries verified\n", lines)
	return nil
}
