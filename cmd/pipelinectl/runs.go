package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// runRecord mirrors the run API response.
type runRecord struct {
	ID          string `json:"id"`
	Stage       string `json:"stage"`
	Generation  int64  `json:"generation,omitempty"`
	State       string `json:"state"`
	RowsWritten int64  `json:"rowsWritten,omitempty"`
	RequestedAt string `json:"requestedAt"`
	StartedAt   string `json:"startedAt,omitempty"`
	FinishedAt  string `json:"finishedAt,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	DurationMs  int64  `json:"durationMs,omitempty"`
}

// newRunsCmd creates the runs command group for inspecting background
// pipeline runs.
func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect background pipeline runs",
	}

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsGetCmd())

	return cmd
}

func newRunsListCmd() *cobra.Command {
	var (
		stage     string
		state     string
		pageSize  int
		pageToken string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if stage != "" {
				query.Set("stage", stage)
			}
			if state != "" {
				query.Set("state", state)
			}
			if pageSize > 0 {
				query.Set("pageSize", strconv.Itoa(pageSize))
			}
			if pageToken != "" {
				query.Set("pageToken", pageToken)
			}

			path := "/api/runs/v1"
			if len(query) > 0 {
				path += "?" + query.Encode()
			}
			body, err := globalClient.doRequest("GET", path, nil)
			if err != nil {
				return err
			}

			var result struct {
				Runs          []runRecord `json:"runs"`
				NextPageToken string      `json:"nextPageToken"`
				TotalSize     int64       `json:"totalSize"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}

			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}

			headers := []string{"id", "stage", "gen", "state", "rows", "requested", "duration"}
			rows := make([][]string, len(result.Runs))
			for i, run := range result.Runs {
				rows[i] = []string{
					truncate(run.ID, 12),
					run.Stage,
					strconv.FormatInt(run.Generation, 10),
					run.State,
					strconv.FormatInt(run.RowsWritten, 10),
					run.RequestedAt,
					formatDuration(run.DurationMs),
				}
			}
			if err := printOutput(cmd.OutOrStdout(), format, result, headers, rows); err != nil {
				return err
			}
			if format == outputTable && result.NextPageToken != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nNext page token: %s\n", result.NextPageToken)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "Filter by stage name")
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (queued, running, succeeded, failed)")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Number of runs per page")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Page token from a previous list call")

	return cmd
}

func newRunsGetCmd() *cobra.Command {
	var (
		stage      string
		generation int64
	)

	cmd := &cobra.Command{
		Use:   "get [RUN_ID]",
		Short: "Get a single pipeline run",
		Long: `Get a single pipeline run by its ID, or by stage and generation:

  pipelinectl runs get 3f1a...
  pipelinectl runs get --stage build-property-sale-history --generation 7`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			switch {
			case len(args) == 1:
				path = "/api/runs/v1/" + url.PathEscape(args[0])
			case stage != "" && generation > 0:
				path = fmt.Sprintf("/api/runs/v1/stage/%s/generation/%d", url.PathEscape(stage), generation)
			default:
				return fmt.Errorf("either a run ID or both --stage and --generation are required")
			}

			body, err := globalClient.doRequest("GET", path, nil)
			if err != nil {
				return err
			}

			var run runRecord
			if err := json.Unmarshal(body, &run); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}

			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}
			if format != outputTable {
				return printOutput(cmd.OutOrStdout(), format, run, nil, nil)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:           %s\n", run.ID)
			fmt.Fprintf(out, "Stage:        %s\n", run.Stage)
			fmt.Fprintf(out, "Generation:   %d\n", run.Generation)
			fmt.Fprintf(out, "State:        %s\n", run.State)
			fmt.Fprintf(out, "Rows written: %d\n", run.RowsWritten)
			fmt.Fprintf(out, "Requested at: %s\n", run.RequestedAt)
			if run.StartedAt != "" {
				fmt.Fprintf(out, "Started at:   %s\n", run.StartedAt)
			}
			if run.FinishedAt != "" {
				fmt.Fprintf(out, "Finished at:  %s\n", run.FinishedAt)
			}
			if run.DurationMs > 0 {
				fmt.Fprintf(out, "Duration:     %s\n", formatDuration(run.DurationMs))
			}
			if run.LastError != "" {
				fmt.Fprintf(out, "Last error:   %s\n", run.LastError)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "Stage name (with --generation)")
	cmd.Flags().Int64Var(&generation, "generation", 0, "Generation number (with --stage)")

	return cmd
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}
