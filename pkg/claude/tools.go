package claude

import (
	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// Server-side web search tool as declared to the Messages API.
const (
	WebSearchToolType = "web_search_20250305"
	WebSearchToolName = "web_search"
)

// SearchTools returns the tool definitions declared on every search request.
func SearchTools() (result []anthropic.ToolDefinition) {
	result = []anthropic.ToolDefinition{
		{
			Type: WebSearchToolType,
			Name: WebSearchToolName,
		},
	}

	return result
}
