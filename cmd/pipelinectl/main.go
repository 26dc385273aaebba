// Package main provides the pipelinectl binary for managing the
// pipeline server. It is a management-plane tool that communicates
// with the pipeline-server HTTP API.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// Global flags
	serverURL    string
	outputFlag   string
	globalClient *pipelineClient
)

// pipelineClient wraps an HTTP client and the server base URL.
type pipelineClient struct {
	baseURL    string
	httpClient *http.Client
}

// newPipelineClient creates a new client targeting the given server URL.
func newPipelineClient(baseURL string) *pipelineClient {
	return &pipelineClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doRequest performs an HTTP request and returns the response body
// bytes. It returns an error if the status code indicates a failure.
func (c *pipelineClient) doRequest(method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to pipeline server at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "pipelinectl",
		Short: "CLI for the estate pipeline management plane",
		Long: `pipelinectl is a command-line tool for managing the pipeline server.

It provides commands for triggering ETL stages, inspecting background
runs, and viewing the watermark registry.

The CLI communicates with the pipeline-server HTTP API.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			globalClient = newPipelineClient(serverURL)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Pipeline server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(newTriggerCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newWatermarksCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
