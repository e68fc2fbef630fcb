// =============================================================================
// CLI OUTPUT FORMATTING - TABLES, JSON, YAML
// =============================================================================
//
// WHAT: Renders API responses for the terminal. Table output is the
// default; --output json|yaml switches to machine-readable forms.
//
// =============================================================================

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Kineviz/pdf-km-server/pkg/client"
)

// OutputFormat represents the output format type.
type OutputFormat string

// Supported output formats
const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

// ParseOutputFormat parses an output format string.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(s) {
	case "table", "":
		return OutputTable, nil
	case "json":
		return OutputJSON, nil
	case "yaml", "yml":
		return OutputYAML, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (supported: table, json, yaml)", s)
	}
}

// Formatter handles output formatting for CLI commands.
type Formatter struct {
	format OutputFormat
	writer io.Writer
}

// NewFormatter creates a formatter writing to stdout.
func NewFormatter(format OutputFormat) *Formatter {
	return &Formatter{format: format, writer: os.Stdout}
}

// SetWriter sets the output writer (for testing).
func (f *Formatter) SetWriter(w io.Writer) {
	f.writer = w
}

// structured renders JSON or YAML; returns false for table format.
func (f *Formatter) structured(data any) (bool, error) {
	switch f.format {
	case OutputJSON:
		enc := json.NewEncoder(f.writer)
		enc.SetIndent("", "  ")
		return true, enc.Encode(data)
	case OutputYAML:
		enc := yaml.NewEncoder(f.writer)
		enc.SetIndent(2)
		return true, enc.Encode(data)
	default:
		return false, nil
	}
}

// =============================================================================
// CLUSTER STATUS
// =============================================================================

// FormatClusterStatus renders the server pool state.
func (f *Formatter) FormatClusterStatus(status *client.ClusterStatus) error {
	if done, err := f.structured(status); done {
		return err
	}

	fmt.Fprintf(f.writer, "Servers: %d/%d active\n\n", status.ActiveServers, status.TotalServers)

	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURL\tMODEL\tSTATE\tERRORS\tRESPONSE\tLAST CHECK")
	for _, s := range status.Servers {
		state := "inactive"
		if s.Active {
			state = "active"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			s.Name, s.URL, s.Model, state,
			s.ErrorCount, s.MaxErrors,
			formatSeconds(s.ResponseTimeSec),
			formatTime(s.LastCheck))
	}
	return tw.Flush()
}

// =============================================================================
// JOBS
// =============================================================================

// FormatJobs renders a job list.
func (f *Formatter) FormatJobs(jobs []client.Job) error {
	if done, err := f.structured(jobs); done {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(f.writer, "No jobs found")
		return nil
	}

	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDOCUMENT\tMODEL\tSTATUS\tPROGRESS\tCHUNKS\tOBSERVATIONS")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%d/%d\t%d\n",
			shortID(j.ID), j.Document, j.Model, j.Status,
			j.Progress, j.ChunksProcessed, j.ChunksCount,
			j.ObservationsCount)
	}
	return tw.Flush()
}

// FormatJob renders one job in detail.
func (f *Formatter) FormatJob(j *client.Job) error {
	if done, err := f.structured(j); done {
		return err
	}

	tw := tabwriter.NewWriter(f.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", j.ID)
	fmt.Fprintf(tw, "Document:\t%s\n", j.Document)
	fmt.Fprintf(tw, "Model:\t%s\n", j.Model)
	fmt.Fprintf(tw, "Status:\t%s\n", j.Status)
	fmt.Fprintf(tw, "Progress:\t%d%% (%s)\n", j.Progress, j.Message)
	fmt.Fprintf(tw, "Created:\t%s\n", formatTime(j.CreatedAt))
	if j.WordCount > 0 {
		fmt.Fprintf(tw, "Words:\t%d (~%.1f pages)\n", j.WordCount, j.EstimatedPages)
	}
	if j.ChunksCount > 0 {
		fmt.Fprintf(tw, "Chunks:\t%d/%d processed\n", j.ChunksProcessed, j.ChunksCount)
	}
	if j.ObservationsCount > 0 {
		fmt.Fprintf(tw, "Observations:\t%d (%d entities)\n", j.ObservationsCount, j.EntitiesCount)
	}
	if j.ProcessingSeconds > 0 {
		fmt.Fprintf(tw, "Processing time:\t%.1fs\n", j.ProcessingSeconds)
	}
	return tw.Flush()
}

// =============================================================================
// HELPERS
// =============================================================================

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func formatSeconds(s float64) string {
	if s <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fs", s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("15:04:05")
}
