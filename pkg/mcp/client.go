package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// ClientResponse is a response as seen by a client. Result is left raw so callers can
// decode it into the shape they expect.
type ClientResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *MCPError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Client is a minimal MCP WebSocket client. It sends one request at a time and waits
// for the answer, so it is not safe for concurrent use.
type Client struct {
	conn   *websocket.Conn
	nextID int64
}

// Dial connects to an MCP server at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (result *Client, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		err = fmt.Errorf("connecting to %s: %w", url, err)
		return result, err
	}

	result = &Client{conn: conn}
	return result, err
}

// Call sends a request with the next numeric id and returns the response.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (response ClientResponse, err error) {
	c.nextID++

	request := map[string]interface{}{
		"jsonrpc": JSONRPCVersion,
		"method":  method,
		"params":  params,
		"id":      c.nextID,
	}

	if params == nil {
		request["params"] = map[string]interface{}{}
	}

	data, err := json.Marshal(request)
	if err != nil {
		err = fmt.Errorf("encoding request: %w", err)
		return response, err
	}

	response, err = c.Send(ctx, data)
	return response, err
}

// Send writes a raw message and reads the next response.
func (c *Client) Send(ctx context.Context, message []byte) (response ClientResponse, err error) {
	err = c.Write(ctx, message)
	if err != nil {
		return response, err
	}

	response, err = c.Read(ctx)
	return response, err
}

// Write sends a raw message without waiting for a response.
func (c *Client) Write(ctx context.Context, message []byte) (err error) {
	deadline, _ := ctx.Deadline()

	err = c.conn.SetWriteDeadline(deadline)
	if err != nil {
		return err
	}

	err = c.conn.WriteMessage(websocket.TextMessage, message)
	if err != nil {
		err = fmt.Errorf("sending request: %w", err)
		return err
	}

	return err
}

// Read waits for the next response.
func (c *Client) Read(ctx context.Context) (response ClientResponse, err error) {
	deadline, _ := ctx.Deadline()

	err = c.conn.SetReadDeadline(deadline)
	if err != nil {
		return response, err
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		err = fmt.Errorf("reading response: %w", err)
		return response, err
	}

	err = json.Unmarshal(data, &response)
	if err != nil {
		err = fmt.Errorf("decoding response: %w", err)
		return response, err
	}

	return response, err
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() (err error) {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	err = c.conn.Close()
	return err
}
