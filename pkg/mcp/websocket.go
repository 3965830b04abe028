package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Haoran/smart-websearch-mcp/pkg/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketServer serves MCP over WebSocket. Each connection is handled by its own
// goroutine, and messages on one connection are answered strictly in order.
type WebSocketServer struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
	conns      map[*websocket.Conn]struct{}
	connsMu    sync.Mutex
	closing    bool

	// maxMessage bounds one inbound frame. Larger frames are drained and answered
	// with an error; the connection stays open.
	maxMessage int
}

// NewWebSocketServer creates a WebSocket server listening on addr.
func NewWebSocketServer(dispatcher *Dispatcher, addr string, logger *slog.Logger) (result *WebSocketServer) {
	result = &WebSocketServer{
		dispatcher: dispatcher,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		conns:      make(map[*websocket.Conn]struct{}),
		maxMessage: MaxMessageSize,
	}

	result.httpServer = &http.Server{
		Addr:              addr,
		Handler:           result.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return result
}

// Handler returns the HTTP handler: /health for probes, everything else upgrades to WebSocket.
func (w *WebSocketServer) Handler() (result http.Handler) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", w.handleHealth)
	mux.HandleFunc("/", w.handleUpgrade)

	result = mux
	return result
}

// Serve accepts connections on listener until Shutdown is called.
func (w *WebSocketServer) Serve(ctx context.Context, listener net.Listener) (err error) {
	w.logger.InfoContext(ctx, "WebSocket server listening", slog.String("addr", listener.Addr().String()))

	w.httpServer.BaseContext = func(_ net.Listener) context.Context { return ctx }

	err = w.httpServer.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = nil
	return err
}

// Shutdown stops accepting connections and closes the open ones. Hijacked WebSocket
// connections are not tracked by http.Server, so they are closed here.
func (w *WebSocketServer) Shutdown(ctx context.Context) (err error) {
	w.logger.InfoContext(ctx, "shutting down WebSocket server")

	w.connsMu.Lock()
	w.closing = true
	for conn := range w.conns {
		_ = conn.Close()
	}
	w.conns = make(map[*websocket.Conn]struct{})
	w.connsMu.Unlock()

	err = w.httpServer.Shutdown(ctx)
	return err
}

// handleHealth returns server health status.
func (w *WebSocketServer) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)

	response := map[string]interface{}{
		"status":  "healthy",
		"service": ServerName,
	}

	encoder := json.NewEncoder(rw)
	_ = encoder.Encode(response)
}

// handleUpgrade upgrades the request and serves the connection until it closes.
func (w *WebSocketServer) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.WarnContext(r.Context(), "WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	if !w.track(conn) {
		_ = conn.Close()
		return
	}
	defer w.untrack(conn)

	w.serveConn(r.Context(), conn)
}

// serveConn runs the receive, dispatch, send loop for one connection. A message that
// cannot be handled still gets an error response and the loop moves on; only a transport
// failure ends it.
func (w *WebSocketServer) serveConn(ctx context.Context, conn *websocket.Conn) {
	logger := w.logger.With(
		slog.String("connection_id", uuid.New().String()),
		slog.String("remote_addr", conn.RemoteAddr().String()))

	metrics.MCPConnectionsActive.Inc()
	defer metrics.MCPConnectionsActive.Dec()

	defer conn.Close()

	logger.InfoContext(ctx, "new WebSocket connection")

	dispatcher := NewDispatcher(w.dispatcher.searcher, logger)

	for {
		message, tooLong, err := readFrame(conn, w.maxMessage)
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.InfoContext(ctx, "WebSocket connection closed")
			} else {
				logger.WarnContext(ctx, "WebSocket connection ended", slog.String("error", err.Error()))
			}

			return
		}

		var response []byte

		if tooLong {
			response = dispatcher.handleOversized(ctx)
		} else {
			response = dispatcher.HandleMessage(ctx, message)
		}

		err = conn.WriteMessage(websocket.TextMessage, response)
		if err != nil {
			logger.WarnContext(ctx, "failed to send response", slog.String("error", err.Error()))
			return
		}

		logger.DebugContext(ctx, "sent response", slog.Int("bytes", len(response)))
	}
}

// readFrame reads the next data frame. A frame longer than limit is read to its end and
// discarded, so the next frame starts cleanly.
func readFrame(conn *websocket.Conn, limit int) (message []byte, tooLong bool, err error) {
	_, reader, err := conn.NextReader()
	if err != nil {
		return message, tooLong, err
	}

	message, err = io.ReadAll(io.LimitReader(reader, int64(limit)+1))
	if err != nil {
		return message, tooLong, err
	}

	if len(message) > limit {
		message = nil
		tooLong = true
		_, err = io.Copy(io.Discard, reader)
	}

	return message, tooLong, err
}

// track registers conn for shutdown. It reports false once shutdown has started.
func (w *WebSocketServer) track(conn *websocket.Conn) (ok bool) {
	w.connsMu.Lock()
	defer w.connsMu.Unlock()

	if w.closing {
		return ok
	}

	w.conns[conn] = struct{}{}
	ok = true
	return ok
}

func (w *WebSocketServer) untrack(conn *websocket.Conn) {
	w.connsMu.Lock()
	defer w.connsMu.Unlock()

	delete(w.conns, conn)
}

// RunWebSocket serves MCP over WebSocket on addr until ctx is cancelled. ready, if not
// nil, is called once the listener is bound.
func (d *Dispatcher) RunWebSocket(ctx context.Context, addr string, ready func()) (err error) {
	server := NewWebSocketServer(d, addr, d.logger)

	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		err = fmt.Errorf("listening on %s: %w", addr, err)
		return err
	}

	if ready != nil {
		ready()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	err = server.Serve(ctx, listener)
	return err
}
