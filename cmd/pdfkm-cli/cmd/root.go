// =============================================================================
// ROOT COMMAND - CLI ENTRY POINT AND GLOBAL FLAGS
// =============================================================================
//
// WHAT: The root command that initializes the CLI and defines global flags.
// All subcommands inherit these flags and share the client configuration.
//
// GLOBAL FLAGS:
//   --server, -s    Service URL (default: http://localhost:8080)
//   --context, -c   Config context to use
//   --output, -o    Output format: table, json, yaml (default: table)
//   --timeout       Request timeout in seconds (default: 30)
//
// SUBCOMMANDS:
//   status      Show inference cluster state
//   reconnect   Force a reconnection check of inactive servers
//   jobs        List and inspect processing jobs
//   submit      Submit a document for processing
//   version     Show version information
//
// =============================================================================

package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Kineviz/pdf-km-server/internal/cli"
	"github.com/Kineviz/pdf-km-server/pkg/client"
)

var (
	// Global flags
	serverFlag  string
	contextFlag string
	outputFlag  string
	timeoutFlag int

	// Shared instances built by initializeClient
	apiClient  *client.Client
	formatter  *cli.Formatter
	reqTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "pdfkm",
	Short: "Command-line interface for the pdfkm extraction service",
	Long: `pdfkm CLI - Manage the PDF knowledge-mapping service from the command line.

The service converts documents into knowledge graphs by fanning text chunks
out across a pool of inference servers with health-checked failover.

Use "pdfkm [command] --help" for more information about a command.`,
	PersistentPreRunE: initializeClient,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "", "service URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVarP(&contextFlag, "context", "c", "", "config context to use")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.PersistentFlags().IntVar(&timeoutFlag, "timeout", 0, "request timeout in seconds")
}

// initializeClient resolves configuration and builds the shared client.
func initializeClient(cmd *cobra.Command, args []string) error {
	cfg, err := cli.LoadConfig("")
	if err != nil {
		return err
	}

	server, timeoutSec, err := cfg.Resolve(contextFlag, serverFlag, timeoutFlag)
	if err != nil {
		return err
	}

	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}

	reqTimeout = time.Duration(timeoutSec) * time.Second
	apiClient = client.New(client.Config{Address: server, Timeout: reqTimeout})
	formatter = cli.NewFormatter(format)
	return nil
}

// requestContext returns the context used for one CLI request.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), reqTimeout)
}
