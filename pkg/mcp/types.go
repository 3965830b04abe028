package mcp

import "encoding/json"

// JSON-RPC error codes.
const (
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// JSONRPCVersion is the protocol marker carried by every response.
const JSONRPCVersion = "2.0"

// MCPRequest represents an incoming MCP JSON-RPC request.
// ID is kept raw so it can be echoed back exactly as the client sent it.
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an MCP JSON-RPC response. Exactly one of Result or Error is set.
type MCPResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *MCPError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// MCPError represents an MCP error.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MCPServerInfo is the result of the initialize method.
type MCPServerInfo struct {
	ProtocolVersion string          `json:"protocolVersion"`
	ServerInfo      ServerMetadata  `json:"serverInfo"`
	Capabilities    MCPCapabilities `json:"capabilities"`
}

// MCPCapabilities describes what the server can do.
type MCPCapabilities struct {
	Tools     map[string]interface{} `json:"tools"`
	Streaming bool                   `json:"streaming"`
}

// ServerMetadata contains server identification.
type ServerMetadata struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPTool represents a tool definition.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolList is the result of the tools/list method.
type MCPToolList struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams represents parameters for a tool call.
// Arguments stays raw because its shape is only checked once the tool is known.
type MCPToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPContent is a single block of tool output.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MCPToolResult is the result of the tools/call method.
type MCPToolResult struct {
	Content []MCPContent `json:"content"`
}

// newResult builds a success envelope.
func newResult(id json.RawMessage, result interface{}) (response MCPResponse) {
	response = MCPResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  result,
	}

	return response
}

// newError builds an error envelope.
func newError(id json.RawMessage, code int, message string) (response MCPResponse) {
	response = MCPResponse{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
		},
	}

	return response
}

// textResult wraps a string as a single text content block.
func textResult(text string) (result MCPToolResult) {
	result = MCPToolResult{
		Content: []MCPContent{
			{
				Type: "text",
				Text: text,
			},
		},
	}

	return result
}
