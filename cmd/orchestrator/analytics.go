package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/polzovatel/browser-orchestrator/internal/markdown"
	"github.com/polzovatel/browser-orchestrator/internal/orchestrator"
)

// buildAnalyticsCmd fetches the live /v1/analytics snapshot from a
// running `serve` instance — execution history lives in that process,
// not in this short-lived one — and renders it as Markdown.
func buildAnalyticsCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Fetch and render the analytics snapshot from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Get(server + "/v1/analytics")
			if err != nil {
				fatal("fetch analytics: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				fatal("fetch analytics: server returned %s", resp.Status)
			}

			var a orchestrator.Analytics
			if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
				fatal("decode analytics: %v", err)
			}

			out, err := markdown.New().RenderAnalytics(a)
			if err != nil {
				fatal("render analytics: %v", err)
			}
			printf("%s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Base URL of a running 'orchestrator serve' instance")
	return cmd
}
