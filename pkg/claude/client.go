package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Haoran/smart-websearch-mcp/pkg/metrics"
	anthropic "github.com/liushuangls/go-anthropic/v2"
)

const (
	// DefaultModel is the model used when none is configured.
	DefaultModel = "claude-3-7-sonnet-latest"

	// MaxTokens is the default output limit for search responses.
	MaxTokens = 4000
)

// MessagesAPI is the subset of the Anthropic client used here.
type MessagesAPI interface {
	CreateMessages(ctx context.Context, request anthropic.MessagesRequest) (response anthropic.MessagesResponse, err error)
}

// Client wraps the Anthropic API client with web search support.
type Client struct {
	api       MessagesAPI
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewClient creates a new Claude API client. An empty model selects DefaultModel and a
// non-positive maxTokens selects MaxTokens.
func NewClient(apiKey string, model string, maxTokens int, logger *slog.Logger, opts ...anthropic.ClientOption) (result *Client) {
	result = NewClientWithAPI(anthropic.NewClient(apiKey, opts...), model, maxTokens, logger)

	return result
}

// NewClientWithAPI creates a Client over an existing MessagesAPI implementation.
func NewClientWithAPI(api MessagesAPI, model string, maxTokens int, logger *slog.Logger) (result *Client) {
	if model == "" {
		model = DefaultModel
	}

	if maxTokens <= 0 {
		maxTokens = MaxTokens
	}

	result = &Client{
		api:       api,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
	}

	return result
}

// SearchResponse is Claude's answer to a web search request.
type SearchResponse struct {
	// TextResponses holds the narrative text blocks in the order received.
	TextResponses []string
	// Queries holds the sub-queries Claude issued through the web_search tool.
	Queries    []string
	StopReason string
	Usage      anthropic.MessagesUsage
}

// WebSearch asks Claude to answer query using its server-side web search tool.
func (c *Client) WebSearch(ctx context.Context, query string) (result SearchResponse, err error) {
	var resp anthropic.MessagesResponse

	request := anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		Messages:  AppendUserMessage(nil, BuildSearchPrompt(query)),
		MaxTokens: c.maxTokens,
		System:    SearchSystemPrompt,
		Tools:     SearchTools(),
	}

	c.logger.InfoContext(ctx, "sending search to Claude",
		slog.String("model", c.model),
		slog.Int("max_tokens", c.maxTokens),
		slog.Int("query_bytes", len(query)))

	resp, err = c.api.CreateMessages(ctx, request)
	if err != nil {
		metrics.ClaudeAPICallsTotal.WithLabelValues("error").Inc()
		err = fmt.Errorf("calling Claude API: %w", err)
		return result, err
	}

	metrics.ClaudeAPICallsTotal.WithLabelValues("success").Inc()
	metrics.ClaudeAPITokensTotal.WithLabelValues("input").Add(float64(resp.Usage.InputTokens))
	metrics.ClaudeAPITokensTotal.WithLabelValues("output").Add(float64(resp.Usage.OutputTokens))

	c.logger.InfoContext(ctx, "received response from Claude",
		slog.String("stop_reason", string(resp.StopReason)),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
		slog.Int("content_blocks", len(resp.Content)))

	var textResponses []string
	var queries []string

	for _, content := range resp.Content {
		//nolint:exhaustive // Only text and tool invocations matter, search result blocks are ignored
		switch content.Type {
		case "text":
			if content.Text != nil {
				textResponses = append(textResponses, *content.Text)
			}

		case "tool_use", "server_tool_use":
			if content.MessageContentToolUse == nil || content.MessageContentToolUse.Name != WebSearchToolName {
				continue
			}

			actual, parseErr := parseSearchInput(content.MessageContentToolUse.Input)
			if parseErr != nil {
				c.logger.ErrorContext(ctx, "error parsing tool input", slog.String("error", parseErr.Error()))
				continue
			}

			c.logger.InfoContext(ctx, "actual search query", slog.String("query", actual))
			queries = append(queries, actual)

		default:
			// web_search_tool_result and other block types carry no narrative text
		}
	}

	result = SearchResponse{
		TextResponses: textResponses,
		Queries:       queries,
		StopReason:    string(resp.StopReason),
		Usage:         resp.Usage,
	}

	return result, err
}

// parseSearchInput extracts the query from a web_search invocation. The input may arrive
// either as an object or as a JSON string containing the object.
func parseSearchInput(raw json.RawMessage) (query string, err error) {
	var input struct {
		Query string `json:"query"`
	}

	var encoded string

	if json.Unmarshal(raw, &encoded) == nil {
		raw = json.RawMessage(encoded)
	}

	err = json.Unmarshal(raw, &input)
	if err != nil {
		err = fmt.Errorf("decoding web_search input: %w", err)
		return query, err
	}

	query = input.Query
	return query, err
}

// AppendUserMessage appends a user message to the message history.
func AppendUserMessage(messages []anthropic.Message, text string) (result []anthropic.Message) {
	result = append(messages, anthropic.Message{
		Role: anthropic.RoleUser,
		Content: []anthropic.MessageContent{
			{
				Type: "text",
				Text: &text,
			},
		},
	})

	return result
}
