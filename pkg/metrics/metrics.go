package metrics

import "github.com/prometheus/client_golang/prometheus"

// Label constants.
const (
	Method    = "method"
	Outcome   = "outcome"
	Status    = "status"
	TokenType = "token_type"
	ToolName  = "tool_name"
)

// Outcome label values for MCPRequestsTotal.
const (
	OutcomeResult = "result"
	OutcomeError  = "error"
)

var (
	//nolint:gochecknoglobals // This is how the prometheus magic works.
	// MCPRequestsTotal Total number of MCP requests answered, by method and envelope kind.
	MCPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_requests_total",
			Help: "Total number of MCP requests answered",
		},
		[]string{Method, Outcome},
	)

	//nolint:gochecknoglobals // This is how the prometheus magic works.
	// MCPConnectionsActive Current number of open MCP connections.
	MCPConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcp_connections_active",
			Help: "Current number of open MCP connections",
		},
	)

	//nolint:gochecknoglobals // This is how the prometheus magic works.
	// ClaudeAPICallsTotal Total number of Claude API calls.
	ClaudeAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claude_api_calls_total",
			Help: "Total number of Claude API calls",
		},
		[]string{Status},
	)

	//nolint:gochecknoglobals // This is how the prometheus magic works.
	// ClaudeAPITokensTotal Total number of tokens used by Claude API.
	ClaudeAPITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claude_api_tokens_total",
			Help: "Total number of tokens used by Claude API",
		},
		[]string{TokenType},
	)

	//nolint:gochecknoglobals // This is how the prometheus magic works.
	// ToolExecutionsTotal Total number of tool executions.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{ToolName, Status},
	)

	//nolint:gochecknoglobals // This is how the prometheus magic works.
	// SearchDurationSeconds Latency of web searches, including failures.
	SearchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Latency of web searches",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
	)
)

//nolint:gochecknoinits // This is how the prometheus magic works.
func init() {
	_ = prometheus.Register(MCPRequestsTotal)
	_ = prometheus.Register(MCPConnectionsActive)
	_ = prometheus.Register(ClaudeAPICallsTotal)
	_ = prometheus.Register(ClaudeAPITokensTotal)
	_ = prometheus.Register(ToolExecutionsTotal)
	_ = prometheus.Register(SearchDurationSeconds)
}
