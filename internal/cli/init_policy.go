package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/policy"
)

var initPolicyOut string

func init() {
	rootCmd.AddCommand(initPolicyCmd)
	initPolicyCmd.Flags().StringVarP(&initPolicyOut, "out", "o", "policy.yaml", "Where to write the policy file")
}

var initPolicyCmd = &cobra.Command{
	Use:   "init-policy",
	Short: "Generate a default client policy with comments",
	Long: "Creates a policy YAML with default tolerances, caps, cooldowns and\n" +
		"rollback thresholds. Edit the file to customize per-client behavior.",
	RunE: runInitPolicy,
}

func runInitPolicy(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(initPolicyOut); err == nil {
		return fmt.Errorf("policy file already exists at %s", initPolicyOut)
	}

	content := policy.DefaultPolicyYAML()
	if err := os.WriteFile(initPolicyOut, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}

	fmt.Printf("Created %s\n", initPolicyOut)
	return nil
}
