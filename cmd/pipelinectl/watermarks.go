package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// watermarkRecord mirrors the watermark API response.
type watermarkRecord struct {
	TrackerID    int64  `json:"trackerId"`
	Table        string `json:"table"`
	LastLoadedAt string `json:"lastLoadedAt"`
	Generation   int64  `json:"generation"`
}

// newWatermarksCmd creates the watermarks command group.
func newWatermarksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watermarks",
		Short: "Inspect the watermark registry",
	}

	cmd.AddCommand(newWatermarksListCmd())
	cmd.AddCommand(newWatermarksHistoryCmd())

	return cmd
}

func newWatermarksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the current watermark of every tracked table",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := globalClient.doRequest("GET", "/api/pipeline/v1/watermarks", nil)
			if err != nil {
				return err
			}

			var result struct {
				Watermarks []watermarkRecord `json:"watermarks"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}

			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}

			headers := []string{"table", "last loaded", "generation"}
			rows := make([][]string, len(result.Watermarks))
			for i, wm := range result.Watermarks {
				rows[i] = []string{wm.Table, wm.LastLoadedAt, strconv.FormatInt(wm.Generation, 10)}
			}
			return printOutput(cmd.OutOrStdout(), format, result, headers, rows)
		},
	}
}

func newWatermarksHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history TABLE",
		Short: "Show the tracker history of one table, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/pipeline/v1/watermarks/" + url.PathEscape(args[0])
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			body, err := globalClient.doRequest("GET", path, nil)
			if err != nil {
				return err
			}

			var result struct {
				Table   string            `json:"table"`
				History []watermarkRecord `json:"history"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}

			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}

			headers := []string{"tracker id", "last loaded", "generation"}
			rows := make([][]string, len(result.History))
			for i, wm := range result.History {
				rows[i] = []string{strconv.FormatInt(wm.TrackerID, 10), wm.LastLoadedAt, strconv.FormatInt(wm.Generation, 10)}
			}
			return printOutput(cmd.OutOrStdout(), format, result, headers, rows)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of history rows (0 for all)")

	return cmd
}
