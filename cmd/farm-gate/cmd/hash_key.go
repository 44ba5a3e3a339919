package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/farm-gate/farmgate/internal/adapter/inbound/admin"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Generate an Argon2id hash for an admin API key",
	Long: `Generate an Argon2id hash of an API key for use in config.

The output is a PHC-format string that can be placed directly in the
admin.api_keys list.

Example:
  farm-gate hash-key "my-secret-api-key"
  # Output: $argon2id$v=19$m=48128,t=1,p=1$...

Security note: The key will appear in shell history.
Consider clearing history after use or using an environment variable:
  farm-gate hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := admin.HashKey(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash key: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}
