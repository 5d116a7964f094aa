package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"npcchat/apps/server/internal/codec"
	"npcchat/dialogue"
)

const (
	readLimit   = 64 << 10
	pongWait    = 60 * time.Second
	pingPeriod  = 30 * time.Second
	writeWait   = 10 * time.Second
	sendBuffer  = 256
	initTimeout = 10 * time.Second
)

type outbound struct {
	kind int
	data []byte
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Gateway *Gateway

	send chan outbound
	done chan struct{}
}

// Gateway serves chat lookups over WebSocket connections.
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	closed      bool
	wg          sync.WaitGroup

	engine   *dialogue.Engine
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a Gateway. allowOrigin "*" or empty accepts any Origin.
func New(engine *dialogue.Engine, logger *zap.Logger, allowOrigin string) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowOrigin = strings.TrimSpace(allowOrigin)
	g := &Gateway{
		connections: make(map[string]*Connection),
		engine:      engine,
		logger:      logger.Named("gateway"),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowOrigin == "" || allowOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == allowOrigin
		},
	}
	return g
}

// HandleWebSocket handles WebSocket upgrade and connection
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := &Connection{
		ID:      uuid.NewString(),
		Conn:    conn,
		Gateway: g,
		send:    make(chan outbound, sendBuffer),
		done:    make(chan struct{}),
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		_ = conn.Close()
		return
	}
	g.connections[c.ID] = c
	total := len(g.connections)
	g.wg.Add(2)
	g.mu.Unlock()

	g.logger.Info("client connected", zap.String("conn", c.ID), zap.Int("total", total))

	go c.readPump()
	go c.writePump()
}

// ConnectionCount returns the number of open connections.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}

// Close drops every connection and waits for their pumps to exit.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	for _, c := range g.connections {
		_ = c.Conn.Close()
	}
	g.mu.Unlock()
	g.wg.Wait()
}

func (c *Connection) readPump() {
	defer func() {
		c.Gateway.removeConnection(c)
		close(c.done)
		c.Conn.Close()
		c.Gateway.wg.Done()
	}()

	c.Conn.SetReadLimit(readLimit)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.Gateway.logger.Warn("read failed", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}
		switch messageType {
		case websocket.TextMessage:
			c.handleMessage(codec.KindText, message)
		case websocket.BinaryMessage:
			c.handleMessage(codec.KindBinary, message)
		}
	}
}

func (c *Connection) handleMessage(kind codec.Kind, data []byte) {
	frame, err := codec.DecodeFrame(kind, data)
	if err != nil {
		c.reply(kind, codec.Reply{RequestID: frame.RequestID, Error: err.Error()})
		return
	}

	engine := c.Gateway.engine
	if !engine.IsLoaded() {
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		if err := engine.Initialize(ctx); err != nil {
			c.Gateway.logger.Warn("lazy initialize failed", zap.String("conn", c.ID), zap.Error(err))
		}
		cancel()
	}

	res, err := engine.Lookup(frame.Request)
	if err != nil {
		msg := "lookup failed"
		if errors.Is(err, dialogue.ErrNotReady) {
			msg = "engine not ready"
		}
		c.reply(kind, codec.Reply{RequestID: frame.RequestID, Error: msg})
		return
	}
	c.reply(kind, codec.Reply{RequestID: frame.RequestID, Result: &res})
}

func (c *Connection) reply(kind codec.Kind, r codec.Reply) {
	data, err := codec.EncodeReply(kind, r)
	if err != nil {
		c.Gateway.logger.Error("encode reply failed", zap.String("conn", c.ID), zap.Error(err))
		return
	}
	msgType := websocket.TextMessage
	if kind == codec.KindBinary {
		msgType = websocket.BinaryMessage
	}
	select {
	case c.send <- outbound{kind: msgType, data: data}:
	default:
		c.Gateway.logger.Warn("send buffer full, dropping reply", zap.String("conn", c.ID))
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Gateway.wg.Done()
	}()

	for {
		select {
		case msg := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(msg.kind, msg.data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.connections, c.ID)
	g.logger.Info("client disconnected", zap.String("conn", c.ID), zap.Int("total", len(g.connections)))
}
