package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers all benchmark tools on the MCP server.
func RegisterTools(s *server.MCPServer, client *Client) {
	registerStatus(s, client)
	registerHealth(s, client)
	registerPause(s, client)
	registerResume(s, client)
	registerSetRate(s, client)
	registerListRuns(s, client)
	registerGetRun(s, client)
	registerDeleteRun(s, client)
}

func registerStatus(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("ftbench_status",
		gomcp.WithDescription("Get current benchmark status: phase, transfers sent/completed/failed, outstanding transactions, TPS, latency stats."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get("/v1/status")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Benchmark unreachable: %v\n\nIs a benchmark running? The monitor API is served for the duration of a run.", err)), nil
		}
		return gomcp.NewToolResultText(formatStatus(raw)), nil
	})
}

func registerHealth(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("ftbench_health",
		gomcp.WithDescription("Quick health check for the benchmark. Checks NEAR RPC connectivity."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get("/ready")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Benchmark unhealthy: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHealth(raw)), nil
	})
}

func registerPause(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("ftbench_pause",
		gomcp.WithDescription("Pause steady-state transfer submission. Transfers already in flight keep completing. This is a MUTATING operation."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		_, err := client.Post("/v1/control/pause", nil)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Pause failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Benchmark Paused"),
			"No new transfers will be submitted until resumed. Outstanding transfers keep completing.",
		)), nil
	})
}

func registerResume(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("ftbench_resume",
		gomcp.WithDescription("Resume a paused benchmark. This is a MUTATING operation."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		_, err := client.Post("/v1/control/resume", nil)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Resume failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Benchmark Resumed"),
			"Steady-state transfer submission continues.",
		)), nil
	})
}

func registerSetRate(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("ftbench_set_rate",
		gomcp.WithDescription("Set the steady-state transfer rate cap in TPS. 0 removes the cap. This is a MUTATING operation."),
		gomcp.WithNumber("tps",
			gomcp.Required(),
			gomcp.Description("Transfers per second cap (0 = uncapped)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		tps, err := req.RequireFloat("tps")
		if err != nil {
			return gomcp.NewToolResultError("tps is required"), nil
		}
		if tps < 0 {
			return gomcp.NewToolResultError("tps cannot be negative"), nil
		}

		raw, err := client.Post("/v1/control/rate", map[string]any{"tps": tps})
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Set rate failed: %v", err)), nil
		}
		var result map[string]any
		json.Unmarshal(raw, &result)
		applied := getNum(result, "tps")
		rate := "uncapped"
		if applied > 0 {
			rate = fmt.Sprintf("%.0f TPS", applied)
		}
		return gomcp.NewToolResultText(joinLines(
			section("Rate Cap Changed"),
			kv("Rate", rate),
		)), nil
	})
}

func registerListRuns(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("ftbench_list_runs",
		gomcp.WithDescription("List benchmark runs with summary metrics (paginated)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max results to return (default: 10, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Results offset for pagination (default: 0)"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		offset := req.GetInt("offset", 0)
		path := fmt.Sprintf("/v1/runs?limit=%d&offset=%d", limit, offset)

		raw, err := client.Get(path)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("List runs failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatRuns(raw)), nil
	})
}

func registerGetRun(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("ftbench_get_run",
		gomcp.WithDescription("Get detailed results for a specific benchmark run by ID."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		raw, err := client.Get("/v1/runs/" + id)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Get run failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatRunDetail(raw)), nil
	})
}

func registerDeleteRun(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("ftbench_delete_run",
		gomcp.WithDescription("Delete a benchmark run and its samples. This is a MUTATING operation."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Run ID to delete"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return gomcp.NewToolResultError("id is required"), nil
		}
		_, err = client.Delete("/v1/runs/" + id)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Delete failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(joinLines(
			section("Run Deleted"),
			kv("ID", id),
		)), nil
	})
}

// Response formatting functions

func formatStatus(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing status: %v", err)
	}

	phase := getStr(m, "phase")
	if paused, ok := m["paused"].(bool); ok && paused {
		phase += " (paused)"
	}
	completed := getNum(m, "txCompleted")
	failed := getNum(m, "txFailed")
	rateCap := "uncapped"
	if v := getNum(m, "rateCap"); v > 0 {
		rateCap = fmt.Sprintf("%.0f TPS", v)
	}

	lines := joinLines(
		section("Benchmark Status"),
		kv("Phase", phase),
		kv("Elapsed", fmt.Sprintf("%.1fs", getNum(m, "elapsedMs")/1000)),
		kv("Accounts", formatNumber(getNum(m, "accounts"))),
		kv("Workers", formatNumber(getNum(m, "workers"))),
		kv("Endpoints", formatNumber(getNum(m, "endpoints"))),
		kv("Transfers Sent", formatNumber(getNum(m, "transfersSent"))),
		kv("TXs Completed", formatNumber(completed)),
		kv("TXs Failed", formatNumber(failed)),
		kv("Success Rate", successRate(completed, failed)),
		kv("Outstanding", fmt.Sprintf("%s (peak %s, cap %s)",
			formatNumber(getNum(m, "outstanding")),
			formatNumber(getNum(m, "peakOutstanding")),
			formatNumber(getNum(m, "inFlightCap")))),
		kv("Current TPS", fmt.Sprintf("%.0f", getNum(m, "currentTps"))),
		kv("Average TPS", fmt.Sprintf("%.0f", getNum(m, "averageTps"))),
		kv("Rate Cap", rateCap),
	)

	// Submission counters
	lines += "\n\n" + joinLines(
		section("Submission"),
		kv("Submissions", formatNumber(getNum(m, "submissions"))),
		kv("Resubmissions", formatNumber(getNum(m, "resubmissions"))),
		kv("Submit Failures", formatNumber(getNum(m, "submitFailures"))),
		kv("Status Checks", formatNumber(getNum(m, "statusChecks"))),
	)

	// Latency stats
	if lat, ok := m["latency"].(map[string]any); ok {
		lines += "\n\n" + formatLatency(lat)
	}

	return lines
}

func formatLatency(lat map[string]any) string {
	return joinLines(
		section("Completion Latency"),
		kv("Min", formatMs(getNum(lat, "min"))),
		kv("P50", formatMs(getNum(lat, "p50"))),
		kv("P95", formatMs(getNum(lat, "p95"))),
		kv("P99", formatMs(getNum(lat, "p99"))),
		kv("Max", formatMs(getNum(lat, "max"))),
	)
}

func formatHealth(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing health: %v", err)
	}

	ready, _ := m["ready"].(bool)
	state := "READY"
	if !ready {
		state = "NOT READY"
	}

	lines := section("Benchmark Health: " + state)

	if checks, ok := m["checks"].([]any); ok {
		for _, c := range checks {
			if check, ok := c.(map[string]any); ok {
				name := getStr(check, "name")
				status := getStr(check, "status")
				latencyMs := getNum(check, "latency_ms")
				errMsg := getStr(check, "error")
				line := fmt.Sprintf("  %-15s %s (%dms)", name, status, int64(latencyMs))
				if errMsg != "" {
					line += " - " + errMsg
				}
				lines += "\n" + line
			}
		}
	}

	return lines
}

func formatRuns(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing runs: %v", err)
	}

	total := getNum(m, "total")
	lines := joinLines(
		section("Benchmark Runs"),
		kv("Total Runs", formatNumber(total)),
	)

	runs, ok := m["runs"].([]any)
	if !ok || len(runs) == 0 {
		return lines + "\n\nNo runs found."
	}

	for _, r := range runs {
		run, ok := r.(map[string]any)
		if !ok {
			continue
		}
		id := getStr(run, "id")
		status := getStr(run, "status")
		startedAt := getStr(run, "startedAt")

		// Parse and format the timestamp
		t, err := time.Parse(time.RFC3339Nano, startedAt)
		started := startedAt
		if err == nil {
			started = t.Format("2006-01-02 15:04:05")
		}

		lines += "\n\n### " + id + "\n"
		lines += joinLines(
			kv("Status", status),
			kv("Started", started),
			kv("Duration", fmt.Sprintf("%.1fs", getNum(run, "durationMs")/1000)),
			kv("Transfers Sent", formatNumber(getNum(run, "transfersSent"))),
			kv("TXs Completed", formatNumber(getNum(run, "txCompleted"))),
			kv("Avg TPS", fmt.Sprintf("%.0f", getNum(run, "averageTps"))),
		)
	}

	return lines
}

func formatRunDetail(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing run detail: %v", err)
	}

	// The detail response has a "run" field with the summary
	run, ok := m["run"].(map[string]any)
	if !ok {
		return "Run not found"
	}

	id := getStr(run, "id")
	completed := getNum(run, "txCompleted")
	failed := getNum(run, "txFailed")

	lines := joinLines(
		section("Run: "+id),
		kv("Status", getStr(run, "status")),
		kv("Duration", fmt.Sprintf("%.1fs", getNum(run, "durationMs")/1000)),
		kv("Accounts", formatNumber(getNum(run, "accounts"))),
		kv("Workers", formatNumber(getNum(run, "workers"))),
		kv("Transfers Sent", formatNumber(getNum(run, "transfersSent"))),
		kv("TXs Completed", formatNumber(completed)),
		kv("TXs Failed", formatNumber(failed)),
		kv("Success Rate", successRate(completed, failed)),
		kv("Avg TPS", fmt.Sprintf("%.0f", getNum(run, "averageTps"))),
		kv("Peak Outstanding", formatNumber(getNum(run, "peakOutstanding"))),
	)
	if errMsg := getStr(run, "errorMessage"); errMsg != "" {
		lines += "\n" + kv("Error", errMsg)
	}

	// Latency
	if lat, ok := run["latency"].(map[string]any); ok {
		lines += "\n\n" + formatLatency(lat)
	}

	// Config
	if cfg, ok := run["config"].(map[string]any); ok {
		lines += "\n\n" + section("Config")
		for k, v := range cfg {
			switch val := v.(type) {
			case float64:
				if val == float64(int64(val)) {
					lines += "\n" + kv(k, formatNumber(val))
				} else {
					lines += "\n" + kv(k, fmt.Sprintf("%.2f", val))
				}
			case string:
				if val != "" {
					lines += "\n" + kv(k, val)
				}
			case bool:
				lines += "\n" + kv(k, fmt.Sprintf("%t", val))
			}
		}
	}

	if samples, ok := m["samples"].([]any); ok {
		lines += "\n\n" + kv("Samples", formatNumber(len(samples)))
	}

	return lines
}

// successRate formats the completed fraction of all finished transactions.
func successRate(completed, failed float64) string {
	finished := completed + failed
	if finished == 0 {
		return "n/a"
	}
	return formatPct(completed / finished * 100)
}

// Helper functions
func getStr(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getNum(m map[string]any, key string) float64 {
	if v, ok := m[key]; ok {
		if n, ok := v.(float64); ok {
			return n
		}
	}
	return 0
}
