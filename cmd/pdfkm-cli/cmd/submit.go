// =============================================================================
// SUBMIT COMMAND - SEND A DOCUMENT FOR PROCESSING
// =============================================================================
//
// WHAT: Reads a text file (or stdin with "-") and submits it as a job.
// PDF conversion happens before this CLI; submit expects extracted text.
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Kineviz/pdf-km-server/pkg/client"
)

var submitModel string

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Submit a document's text for processing",
	Long: `Submit a text file as a processing job and print the queued job.
Use "-" to read from stdin. Poll with "pdfkm jobs get <id>".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		var text []byte
		var err error
		document := "stdin"
		if path == "-" {
			text, err = io.ReadAll(os.Stdin)
		} else {
			text, err = os.ReadFile(path)
			document = filepath.Base(path)
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if len(text) == 0 {
			return fmt.Errorf("input is empty")
		}

		ctx, cancel := requestContext()
		defer cancel()

		job, err := apiClient.SubmitJob(ctx, client.SubmitJobRequest{
			Document: document,
			Text:     string(text),
			Model:    submitModel,
		})
		if err != nil {
			return err
		}
		return formatter.FormatJob(job)
	},
}

func init() {
	submitCmd.Flags().StringVarP(&submitModel, "model", "m", "", "model to use (default: each server's configured model)")
	rootCmd.AddCommand(submitCmd)
}
