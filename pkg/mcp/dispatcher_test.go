package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Haoran/smart-websearch-mcp/pkg/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(searcher Searcher) (dispatcher *Dispatcher) {
	dispatcher = NewDispatcher(searcher, testLogger())
	return dispatcher
}

func TestParseMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method Method
	}{
		{name: "initialize", method: MethodInitialize},
		{name: "tools/list", method: MethodListTools},
		{name: "tools/call", method: MethodCallTool},
		{name: "not/a/real/method", method: MethodUnknown},
		{name: "", method: MethodUnknown},
		{name: "Initialize", method: MethodUnknown},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.method, ParseMethod(tt.name))
		})
	}

	assert.Equal(t, "tools/call", MethodCallTool.String())
	assert.Equal(t, "unknown", MethodUnknown.String())
}

func TestHandleMessageEchoesID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message string
		wantID  string
	}{
		{
			name:    "numeric id",
			message: `{"jsonrpc":"2.0","method":"initialize","id":7}`,
			wantID:  `7`,
		},
		{
			name:    "string id",
			message: `{"jsonrpc":"2.0","method":"tools/list","id":"req-abc"}`,
			wantID:  `"req-abc"`,
		},
		{
			name:    "fractional id kept as sent",
			message: `{"jsonrpc":"2.0","method":"tools/list","id":1.50}`,
			wantID:  `1.50`,
		},
		{
			name:    "object id",
			message: `{"jsonrpc":"2.0","method":"initialize","id":{"k":[1,2]}}`,
			wantID:  `{"k":[1,2]}`,
		},
		{
			name:    "null id",
			message: `{"jsonrpc":"2.0","method":"initialize","id":null}`,
			wantID:  `null`,
		},
		{
			name:    "absent id",
			message: `{"jsonrpc":"2.0","method":"initialize"}`,
			wantID:  `null`,
		},
		{
			name:    "unknown method keeps id",
			message: `{"jsonrpc":"2.0","method":"nope","id":42}`,
			wantID:  `42`,
		},
		{
			name:    "tools/call keeps id",
			message: `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"x"},"id":"c-1"}`,
			wantID:  `"c-1"`,
		},
	}

	dispatcher := newTestDispatcher(&fakeSearcher{result: "ok"})

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := dispatcher.HandleMessage(context.Background(), []byte(tt.message))

			var response MCPResponse
			err := json.Unmarshal(data, &response)
			require.NoError(t, err)

			assert.Equal(t, "2.0", response.JSONRPC)
			assert.Equal(t, tt.wantID, string(response.ID))
		})
	}
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	dispatcher := newTestDispatcher(&fakeSearcher{})
	message := []byte(`{"jsonrpc":"2.0","method":"initialize","params":{"clientInfo":{"name":"test-client","version":"1.0.0"}},"id":1}`)

	first := dispatcher.HandleMessage(context.Background(), message)
	second := dispatcher.HandleMessage(context.Background(), message)

	assert.True(t, bytes.Equal(first, second), "initialize should be byte-identical across calls")

	response := decodeResponse(t, first)
	assert.NotContains(t, response, "error")

	result, ok := response["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1.0.0", result["protocolVersion"])
	assert.Equal(t, map[string]interface{}{"name": "smart_web_search-mcp", "version": "1.0.0"}, result["serverInfo"])
	assert.Equal(t, map[string]interface{}{"tools": map[string]interface{}{}, "streaming": true}, result["capabilities"])
}

func TestToolsList(t *testing.T) {
	t.Parallel()

	dispatcher := newTestDispatcher(&fakeSearcher{})

	data := dispatcher.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":2}`))
	response := decodeResponse(t, data)
	assert.NotContains(t, response, "error")

	result, ok := response["result"].(map[string]interface{})
	require.True(t, ok)

	tools, ok := result["tools"].([]interface{})
	require.True(t, ok)
	require.Len(t, tools, 1)

	tool, ok := tools[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "smart_web_search", tool["name"])

	schema, ok := tool["inputSchema"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"query"}, schema["required"])
}

func TestToolsCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		params     string
		wantText   string
		wantPrefix string
		wantSearch bool
		wantQuery  string
	}{
		{
			name:       "search succeeds",
			params:     `{"name":"smart_web_search","arguments":{"query":"What is MCP protocol?"}}`,
			wantText:   "search results",
			wantSearch: true,
			wantQuery:  "What is MCP protocol?",
		},
		{
			name:       "empty query is forwarded",
			params:     `{"name":"smart_web_search","arguments":{"query":""}}`,
			wantText:   "search results",
			wantSearch: true,
			wantQuery:  "",
		},
		{
			name:       "unknown tool",
			params:     `{"name":"unknown_tool","arguments":{"query":"x"}}`,
			wantText:   "Unknown tool: unknown_tool",
			wantSearch: false,
		},
		{
			name:       "missing name",
			params:     `{"arguments":{"query":"x"}}`,
			wantPrefix: "Unknown tool",
			wantSearch: false,
		},
		{
			name:       "missing query",
			params:     `{"name":"smart_web_search","arguments":{"q":"x"}}`,
			wantText:   `Invalid arguments for smart_web_search: {"q":"x"}`,
			wantSearch: false,
		},
		{
			name:       "absent arguments",
			params:     `{"name":"smart_web_search"}`,
			wantText:   "Invalid arguments for smart_web_search: {}",
			wantSearch: false,
		},
		{
			name:       "arguments not an object",
			params:     `{"name":"smart_web_search","arguments":["query"]}`,
			wantPrefix: "Invalid arguments for smart_web_search",
			wantSearch: false,
		},
		{
			name:       "null arguments",
			params:     `{"name":"smart_web_search","arguments":null}`,
			wantPrefix: "Invalid arguments for smart_web_search",
			wantSearch: false,
		},
		{
			name:       "query not a string",
			params:     `{"name":"smart_web_search","arguments":{"query":42}}`,
			wantPrefix: "Invalid arguments for smart_web_search",
			wantSearch: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			searcher := &fakeSearcher{result: "search results"}
			dispatcher := newTestDispatcher(searcher)

			message := `{"jsonrpc":"2.0","method":"tools/call","params":` + tt.params + `,"id":3}`
			response := decodeResponse(t, dispatcher.HandleMessage(context.Background(), []byte(message)))

			assert.NotContains(t, response, "error", "tool-level outcomes must not be protocol errors")

			text := contentText(t, response)
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, text)
			}

			if tt.wantPrefix != "" {
				assert.True(t, strings.HasPrefix(text, tt.wantPrefix), "got %q", text)
			}

			calls := searcher.recorded()
			if !tt.wantSearch {
				assert.Empty(t, calls, "searcher should not be called")
				return
			}

			require.Len(t, calls, 1)
			assert.Equal(t, tt.wantQuery, calls[0].query)
		})
	}
}

func TestToolsCallUnknownToolMentionsUnknownTool(t *testing.T) {
	t.Parallel()

	dispatcher := newTestDispatcher(&fakeSearcher{})

	message := `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"unknown_tool","arguments":{}},"id":9}`
	response := decodeResponse(t, dispatcher.HandleMessage(context.Background(), []byte(message)))

	assert.NotContains(t, response, "error")
	assert.Contains(t, contentText(t, response), "Unknown tool")
}

func TestToolsCallRaisingSearcher(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{panicWith: "provider exploded"}
	dispatcher := newTestDispatcher(searcher)

	message := `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"smart_web_search","arguments":{"query":"q"}},"id":4}`
	response := decodeResponse(t, dispatcher.HandleMessage(context.Background(), []byte(message)))

	assert.NotContains(t, response, "error", "a failing search must still be a success envelope")

	text := contentText(t, response)
	assert.True(t, strings.HasPrefix(text, search.FailurePrefix), "got %q", text)
	assert.Contains(t, text, "provider exploded")
}

func TestToolsCallFailureTextPassesThrough(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{result: search.FailurePrefix + "timeout"}
	dispatcher := newTestDispatcher(searcher)

	message := `{"jsonrpc":"2.0","method":"tools/call","params":{"name":"smart_web_search","arguments":{"query":"q"}},"id":5}`
	response := decodeResponse(t, dispatcher.HandleMessage(context.Background(), []byte(message)))

	assert.NotContains(t, response, "error")
	assert.Equal(t, "Search failed: timeout", contentText(t, response))
}

func TestProtocolErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		message     string
		wantCode    int
		wantMessage string
		wantID      interface{}
	}{
		{
			name:        "unknown method",
			message:     `{"jsonrpc":"2.0","method":"not/a/real/method","id":1}`,
			wantCode:    CodeMethodNotFound,
			wantMessage: "Method not found: not/a/real/method",
			wantID:      float64(1),
		},
		{
			name:        "notification with unknown method still answered",
			message:     `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			wantCode:    CodeMethodNotFound,
			wantMessage: "Method not found: notifications/initialized",
			wantID:      nil,
		},
		{
			name:     "not JSON",
			message:  `this is not json`,
			wantCode: CodeInternalError,
			wantID:   nil,
		},
		{
			name:     "truncated JSON",
			message:  `{"jsonrpc":"2.0","method":"initialize","id":1`,
			wantCode: CodeInternalError,
			wantID:   nil,
		},
		{
			name:     "JSON array",
			message:  `[1,2,3]`,
			wantCode: CodeInternalError,
			wantID:   nil,
		},
		{
			name:     "JSON null",
			message:  `null`,
			wantCode: CodeInternalError,
			wantID:   nil,
		},
		{
			name:     "method not a string keeps the id",
			message:  `{"jsonrpc":"2.0","method":5,"id":1}`,
			wantCode: CodeInternalError,
			wantID:   float64(1),
		},
		{
			name:     "method an array keeps a string id",
			message:  `{"jsonrpc":"2.0","method":["initialize"],"id":"x"}`,
			wantCode: CodeInternalError,
			wantID:   "x",
		},
		{
			name:     "tools/call params not an object",
			message:  `{"jsonrpc":"2.0","method":"tools/call","params":"smart_web_search","id":"p"}`,
			wantCode: CodeInternalError,
			wantID:   "p",
		},
		{
			name:        "tools/call params null",
			message:     `{"jsonrpc":"2.0","method":"tools/call","params":null,"id":7}`,
			wantCode:    CodeInternalError,
			wantMessage: "invalid params: params must be an object",
			wantID:      float64(7),
		},
		{
			name:     "tools/call name not a string",
			message:  `{"jsonrpc":"2.0","method":"tools/call","params":{"name":12},"id":"n"}`,
			wantCode: CodeInternalError,
			wantID:   "n",
		},
	}

	dispatcher := newTestDispatcher(&fakeSearcher{})

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			response := decodeResponse(t, dispatcher.HandleMessage(context.Background(), []byte(tt.message)))

			assert.NotContains(t, response, "result", "error responses must not carry a result")
			assert.Equal(t, tt.wantCode, errorCode(t, response))
			assert.Equal(t, tt.wantID, response["id"])
			assert.Contains(t, response, "id", "id must be present even when null")

			errObj, ok := response["error"].(map[string]interface{})
			require.True(t, ok)

			message, ok := errObj["message"].(string)
			require.True(t, ok)
			assert.NotEmpty(t, message)

			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, message)
			}
		})
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	t.Parallel()

	dispatcher := NewDispatcher(nil, testLogger())

	// A nil searcher panics inside the search branch; that is caught as a failure result.
	response := dispatcher.Dispatch(context.Background(), MCPRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"smart_web_search","arguments":{"query":"q"}}`),
		ID:      json.RawMessage(`1`),
	})

	require.Nil(t, response.Error)

	result, ok := response.Result.(MCPToolResult)
	require.True(t, ok)
	require.Len(t, result.Content, 1)
	assert.True(t, strings.HasPrefix(result.Content[0].Text, search.FailurePrefix))
}
