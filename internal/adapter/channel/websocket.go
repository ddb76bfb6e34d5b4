package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
	"voicebot/internal/infra/middleware"
)

const wsWriteTimeout = 5 * time.Second

// WebSocketChannel accepts one binary frame per clip and answers each with
// a JSON frame shaped like the HTTP response.
type WebSocketChannel struct {
	cfg     config.WebSocketChannelConfig
	logger  *slog.Logger
	server  *http.Server
	handler domain.UtteranceHandler

	boundAddr string
	nextID    atomic.Uint64
	conns     sync.Map // uint64 -> *websocket.Conn
}

// NewWebSocketChannel creates a WebSocket channel.
func NewWebSocketChannel(cfg config.WebSocketChannelConfig, logger *slog.Logger) *WebSocketChannel {
	return &WebSocketChannel{cfg: cfg, logger: logger}
}

// Name implements domain.Channel.
func (c *WebSocketChannel) Name() string { return "websocket" }

// Addr returns the bound address. Only valid after Start.
func (c *WebSocketChannel) Addr() string { return c.boundAddr }

// Start begins serving. Non-blocking.
func (c *WebSocketChannel) Start(ctx context.Context, handler domain.UtteranceHandler) error {
	c.handler = handler
	c.server = &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           c.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", c.cfg.Addr, err)
	}
	c.boundAddr = ln.Addr().String()

	go func() {
		c.logger.Info("websocket channel started", "addr", c.boundAddr)
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("websocket server error", "error", err)
		}
	}()
	return nil
}

// Stop closes open connections and shuts the server down.
func (c *WebSocketChannel) Stop(ctx context.Context) error {
	c.conns.Range(func(key, value any) bool {
		value.(*websocket.Conn).Close(websocket.StatusGoingAway, "server shutting down")
		c.conns.Delete(key)
		return true
	})
	if c.server == nil {
		return nil
	}
	c.logger.Info("websocket channel stopping")
	return c.server.Shutdown(ctx)
}

func (c *WebSocketChannel) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/voice/ws", c.handleUpgrade)
	return middleware.Chain(mux, middleware.RequestLogger(c.logger))
}

func (c *WebSocketChannel) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("session_id")
	if key == "" {
		key = ulid.Make().String()
	}
	format := strings.ToLower(r.URL.Query().Get("format"))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		c.logger.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(defaultMaxUploadBytes)

	connID := c.nextID.Add(1)
	c.conns.Store(connID, ws)
	c.logger.Info("websocket client connected", "conn_id", connID, "session_key", key)

	c.serveConn(r.Context(), ws, key, format)

	c.conns.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	c.logger.Info("websocket client disconnected", "conn_id", connID)
}

// serveConn handles frames in order until the peer goes away. Clips on one
// connection are answered sequentially.
func (c *WebSocketChannel) serveConn(ctx context.Context, ws *websocket.Conn, key, format string) {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			return
		}

		var reply voiceResponse
		if typ != websocket.MessageBinary {
			reply = voiceResponse{
				SessionID: key,
				Error:     "expected a binary audio frame",
				Code:      string(domain.CodeInvalidInput),
			}
		} else {
			res, err := c.handler.SubmitUtterance(ctx, key, domain.AudioClip{Data: data, Format: format})
			if err != nil {
				c.logger.Warn("voice turn failed", "session_key", key, "error", err)
			}
			reply = newVoiceResponse(key, res, err)
		}

		wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		err = wsjson.Write(wctx, ws, reply)
		cancel()
		if err != nil {
			return
		}
	}
}

var _ domain.Channel = (*WebSocketChannel)(nil)
