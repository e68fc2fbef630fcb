// =============================================================================
// JOBS COMMANDS - LIST AND INSPECT PROCESSING JOBS
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List and inspect processing jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()

		jobs, err := apiClient.ListJobs(ctx)
		if err != nil {
			return err
		}
		return formatter.FormatJobs(jobs)
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one job's status and progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()

		job, err := apiClient.GetJob(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get job %s: %w", args[0], err)
		}
		return formatter.FormatJob(job)
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)
	rootCmd.AddCommand(jobsCmd)
}
