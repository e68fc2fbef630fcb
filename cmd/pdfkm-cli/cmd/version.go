// =============================================================================
// VERSION COMMAND - SHOW VERSION INFORMATION
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the CLI version, overridable at build time via
// -ldflags "-X .../cmd.Version=v1.2.3".
var Version = "v0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Client Version: %s\n", Version)

		// Report whether the configured service answers at all.
		ctx, cancel := requestContext()
		defer cancel()
		if err := apiClient.Health(ctx); err == nil {
			fmt.Println("Server: reachable")
		} else {
			fmt.Println("Server: unreachable")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
