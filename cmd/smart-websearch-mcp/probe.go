package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Haoran/smart-websearch-mcp/pkg/mcp"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats for probe.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// probeStep is one request sent by probe.
type probeStep struct {
	title  string
	method string
	params interface{}
}

func newProbeCmd() (cmd *cobra.Command) {
	var url string
	var query string
	var format string
	var timeout time.Duration

	cmd = &cobra.Command{
		Use:   "probe",
		Short: "Connect to a running server and exercise initialize, tools/list and tools/call",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != formatJSON && format != formatYAML {
				return fmt.Errorf("invalid --format %q (want %s or %s)", format, formatJSON, formatYAML)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return runProbe(ctx, cmd.OutOrStdout(), url, probeSteps(query), format)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&url, "url", "ws://localhost:8765", "server WebSocket URL")
	flags.StringVar(&query, "query", "", "run smart_web_search with this query (skipped when empty)")
	flags.StringVar(&format, "format", formatJSON, "response format: json or yaml")
	flags.DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")

	return cmd
}

// probeSteps lists the requests to send. The search call is only made when a query is given.
func probeSteps(query string) (steps []probeStep) {
	steps = []probeStep{
		{
			title:  "Initialize",
			method: "initialize",
			params: map[string]interface{}{
				"clientInfo": map[string]interface{}{
					"name":    "smart-websearch-mcp-probe",
					"version": mcp.ServerVersion,
				},
			},
		},
		{
			title:  "List Tools",
			method: "tools/list",
		},
	}

	if query != "" {
		steps = append(steps, probeStep{
			title:  "Call " + mcp.ToolSmartWebSearch,
			method: "tools/call",
			params: map[string]interface{}{
				"name":      mcp.ToolSmartWebSearch,
				"arguments": map[string]interface{}{"query": query},
			},
		})
	}

	return steps
}

// runProbe sends each step in order on one connection and prints the responses.
func runProbe(ctx context.Context, out io.Writer, url string, steps []probeStep, format string) (err error) {
	header := color.New(color.FgCyan, color.Bold)

	color.New(color.FgHiBlack).Fprintf(out, "Connecting to %s...\n", url)

	client, err := mcp.Dial(ctx, url)
	if err != nil {
		color.New(color.FgRed).Fprintf(out, "✗ %v\n", err)
		return err
	}
	defer client.Close()

	color.New(color.FgGreen).Fprintln(out, "✓ Connected")

	for _, step := range steps {
		header.Fprintf(out, "\n=== %s ===\n", step.title)

		response, callErr := client.Call(ctx, step.method, step.params)
		if callErr != nil {
			color.New(color.FgRed).Fprintf(out, "✗ %v\n", callErr)
			err = callErr
			return err
		}

		if response.Error != nil {
			color.New(color.FgRed).Fprintf(out, "✗ error %d: %s\n", response.Error.Code, response.Error.Message)
		}

		rendered, renderErr := formatResponse(response, format)
		if renderErr != nil {
			err = renderErr
			return err
		}

		fmt.Fprintln(out, rendered)
	}

	return err
}

// formatResponse renders a response as indented JSON or as YAML.
func formatResponse(response mcp.ClientResponse, format string) (result string, err error) {
	var generic interface{}

	data, err := json.Marshal(response)
	if err != nil {
		err = fmt.Errorf("encoding response: %w", err)
		return result, err
	}

	err = json.Unmarshal(data, &generic)
	if err != nil {
		err = fmt.Errorf("decoding response: %w", err)
		return result, err
	}

	var rendered []byte

	switch format {
	case formatYAML:
		rendered, err = yaml.Marshal(generic)

	default:
		rendered, err = json.MarshalIndent(generic, "", "  ")
	}

	if err != nil {
		err = fmt.Errorf("formatting response: %w", err)
		return result, err
	}

	result = string(rendered)
	return result, err
}
