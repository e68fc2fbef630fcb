// =============================================================================
// CLUSTER COMMANDS - STATUS AND RECONNECT
// =============================================================================

package cmd

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show inference cluster state",
	Long: `Show every configured inference server with its health state,
consecutive error count, and last probe latency.

The service reprobes inactive servers before answering, so a server that
just came back shows as active here.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()

		status, err := apiClient.ClusterStatus(ctx)
		if err != nil {
			return err
		}
		return formatter.FormatClusterStatus(status)
	},
}

var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Force a reconnection check of inactive servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()

		status, err := apiClient.Reconnect(ctx)
		if err != nil {
			return err
		}
		return formatter.FormatClusterStatus(status)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reconnectCmd)
}
