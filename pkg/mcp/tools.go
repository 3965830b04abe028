package mcp

// Tool names.
const (
	ToolSmartWebSearch = "smart_web_search"
)

// ListTools returns the available MCP tool definitions. The catalog is fixed for
// the life of the process and always returned in the same order.
func ListTools() (result []MCPTool) {
	result = []MCPTool{
		{
			Name:        ToolSmartWebSearch,
			Description: "Searches the web and provides concise, insight-rich summaries from live data.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The content to search, can be any question or topic",
					},
				},
				"required": []string{"query"},
			},
		},
	}

	return result
}
