package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Haoran/smart-websearch-mcp/pkg/metrics"
	"github.com/Haoran/smart-websearch-mcp/pkg/search"
)

// Method names.
const (
	methodInitialize = "initialize"
	methodToolsList  = "tools/list"
	methodToolsCall  = "tools/call"
)

// Server identity reported by initialize.
const (
	ProtocolVersion = "1.0.0"
	ServerName      = "smart_web_search-mcp"
	ServerVersion   = "1.0.0"
)

// Method is a parsed request method.
type Method int

// Supported methods. Anything else parses as MethodUnknown.
const (
	MethodUnknown Method = iota
	MethodInitialize
	MethodListTools
	MethodCallTool
)

// ParseMethod maps a wire method name onto a Method.
func ParseMethod(name string) (method Method) {
	switch name {
	case methodInitialize:
		method = MethodInitialize

	case methodToolsList:
		method = MethodListTools

	case methodToolsCall:
		method = MethodCallTool

	default:
		method = MethodUnknown
	}

	return method
}

// String returns the wire name, or "unknown".
func (m Method) String() (name string) {
	switch m {
	case MethodInitialize:
		name = methodInitialize

	case MethodListTools:
		name = methodToolsList

	case MethodCallTool:
		name = methodToolsCall

	case MethodUnknown:
		name = "unknown"
	}

	return name
}

// Searcher answers a free-text query. Implementations report their own failures as text.
type Searcher interface {
	Search(ctx context.Context, query string) (result string)
}

// Dispatcher turns one request into one response. It keeps no state between requests,
// so a single Dispatcher is shared by every connection.
type Dispatcher struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher backed by searcher.
func NewDispatcher(searcher Searcher, logger *slog.Logger) (result *Dispatcher) {
	result = &Dispatcher{
		searcher: searcher,
		logger:   logger,
	}

	return result
}

// MaxMessageSize bounds a single inbound message on every transport.
const MaxMessageSize = 4 * 1024 * 1024

// HandleMessage decodes a raw message, dispatches it, and returns the encoded response.
// A response is produced for every message, including ones that are not valid JSON.
func (d *Dispatcher) HandleMessage(ctx context.Context, raw []byte) (data []byte) {
	var response MCPResponse

	label := "invalid"

	request, err := decodeRequest(raw)
	if err != nil {
		d.logger.ErrorContext(ctx, "error processing message", slog.String("error", err.Error()))
		response = newError(salvageID(raw), CodeInternalError, err.Error())
	} else {
		label = ParseMethod(request.Method).String()
		response = d.Dispatch(ctx, request)
	}

	data = d.encode(ctx, label, response)
	return data
}

// handleOversized answers a message that exceeded the transport's size limit. The
// message body is never decoded, so the id is null.
func (d *Dispatcher) handleOversized(ctx context.Context) (data []byte) {
	d.logger.ErrorContext(ctx, "error processing message", slog.String("error", errMessageTooLong.Error()))

	data = d.encode(ctx, "invalid", newError(nil, CodeInternalError, errMessageTooLong.Error()))
	return data
}

// encode counts the response and marshals it.
func (d *Dispatcher) encode(ctx context.Context, label string, response MCPResponse) (data []byte) {
	outcome := metrics.OutcomeResult
	if response.Error != nil {
		outcome = metrics.OutcomeError
	}

	metrics.MCPRequestsTotal.WithLabelValues(label, outcome).Inc()

	data, err := json.Marshal(response)
	if err != nil {
		d.logger.ErrorContext(ctx, "error encoding response", slog.String("error", err.Error()))
		data, _ = json.Marshal(newError(response.ID, CodeInternalError, err.Error()))
	}

	return data
}

var (
	errMessageTooLong = errors.New("message too long")
	errNullParams     = errors.New("params must be an object")
)

// decodeRequest parses a request envelope. The message must be a JSON object.
func decodeRequest(raw []byte) (request MCPRequest, err error) {
	if isNull(raw) {
		err = errors.New("request must be a JSON object, got null")
		return request, err
	}

	err = json.Unmarshal(raw, &request)
	return request, err
}

// salvageID recovers the id of a message that is a JSON object but failed to decode as a
// request, e.g. because method is not a string. Anything else yields a null id.
func salvageID(raw []byte) (id json.RawMessage) {
	var envelope struct {
		ID json.RawMessage `json:"id"`
	}

	err := json.Unmarshal(raw, &envelope)
	if err != nil {
		return id
	}

	id = envelope.ID
	return id
}

func isNull(raw []byte) (null bool) {
	null = bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
	return null
}

// Dispatch routes a decoded request by method.
func (d *Dispatcher) Dispatch(ctx context.Context, req MCPRequest) (response MCPResponse) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "panic while handling request",
				slog.String("method", req.Method),
				slog.Any("panic", r))
			response = newError(req.ID, CodeInternalError, fmt.Sprint(r))
		}
	}()

	d.logger.InfoContext(ctx, "received method", slog.String("method", req.Method))

	switch ParseMethod(req.Method) {
	case MethodInitialize:
		response = d.handleInitialize(req)

	case MethodListTools:
		response = d.handleListTools(req)

	case MethodCallTool:
		response = d.handleToolCall(ctx, req)

	case MethodUnknown:
		response = newError(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}

	return response
}

// handleInitialize handles the initialize request.
func (d *Dispatcher) handleInitialize(req MCPRequest) (response MCPResponse) {
	response = newResult(req.ID, getServerInfo())
	return response
}

// handleListTools handles the tools/list request.
func (d *Dispatcher) handleListTools(req MCPRequest) (response MCPResponse) {
	response = newResult(req.ID, MCPToolList{Tools: ListTools()})
	return response
}

// handleToolCall handles the tools/call request. Only malformed params produce a protocol
// error; every tool-level problem comes back as result text.
func (d *Dispatcher) handleToolCall(ctx context.Context, req MCPRequest) (response MCPResponse) {
	var params MCPToolCallParams

	if isNull(req.Params) {
		response = newError(req.ID, CodeInternalError, fmt.Sprintf("invalid params: %v", errNullParams))
		return response
	}

	if len(req.Params) > 0 {
		err := json.Unmarshal(req.Params, &params)
		if err != nil {
			response = newError(req.ID, CodeInternalError, fmt.Sprintf("invalid params: %v", err))
			return response
		}
	}

	d.logger.InfoContext(ctx, "call_tool",
		slog.String("tool", params.Name),
		slog.String("arguments", string(params.Arguments)))

	text := d.executeTool(ctx, params)

	response = newResult(req.ID, textResult(text))
	return response
}

// executeTool executes a tool by name.
func (d *Dispatcher) executeTool(ctx context.Context, params MCPToolCallParams) (result string) {
	switch params.Name {
	case ToolSmartWebSearch:
		query, ok := searchQuery(params.Arguments)
		if !ok {
			result = fmt.Sprintf("Invalid arguments for %s: %s", ToolSmartWebSearch, describeArguments(params.Arguments))
			d.logger.ErrorContext(ctx, "invalid tool arguments", slog.String("tool", params.Name))
			metrics.ToolExecutionsTotal.WithLabelValues(ToolSmartWebSearch, "invalid_arguments").Inc()
			return result
		}

		result = d.search(ctx, query)

	default:
		result = fmt.Sprintf("Unknown tool: %s", params.Name)
		d.logger.ErrorContext(ctx, "unknown tool", slog.String("tool", params.Name))
		metrics.ToolExecutionsTotal.WithLabelValues("unknown", "unknown_tool").Inc()
	}

	return result
}

// search calls the Searcher on a context detached from the connection, so a client
// disconnect does not abort a search that is already running.
func (d *Dispatcher) search(ctx context.Context, query string) (result string) {
	status := "success"

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "search panicked", slog.Any("panic", r))
			result = search.FailurePrefix + fmt.Sprint(r)
			status = "failure"
		}

		metrics.ToolExecutionsTotal.WithLabelValues(ToolSmartWebSearch, status).Inc()
	}()

	result = d.searcher.Search(context.WithoutCancel(ctx), query)

	if strings.HasPrefix(result, search.FailurePrefix) {
		status = "failure"
	}

	return result
}

// searchQuery extracts the query argument. arguments must be an object whose query is a
// JSON string; a query of any other type (a number, say) is rejected rather than converted,
// matching the declared input schema.
func searchQuery(raw json.RawMessage) (query string, ok bool) {
	var args map[string]interface{}

	if len(raw) == 0 {
		return query, ok
	}

	err := json.Unmarshal(raw, &args)
	if err != nil {
		return query, ok
	}

	query, ok = args["query"].(string)
	return query, ok
}

// describeArguments renders arguments for an error message. Absent arguments read as {}.
func describeArguments(raw json.RawMessage) (result string) {
	if len(raw) == 0 {
		result = "{}"
		return result
	}

	result = string(raw)
	return result
}

// getServerInfo returns the initialize result. It is a constant document.
func getServerInfo() (info MCPServerInfo) {
	info = MCPServerInfo{
		ProtocolVersion: ProtocolVersion,
		ServerInfo: ServerMetadata{
			Name:    ServerName,
			Version: ServerVersion,
		},
		Capabilities: MCPCapabilities{
			Tools:     map[string]interface{}{},
			Streaming: true,
		},
	}

	return info
}
