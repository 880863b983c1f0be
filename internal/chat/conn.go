package chat

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/flux/internal/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ConnConfig bounds what a single live connection may consume.
type ConnConfig struct {
	MaxMessageSize int64
	SendBufferSize int
	PongWait       time.Duration
	WriteWait      time.Duration
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = 256
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	return c
}

// Conn is a live websocket transport. Outbound payloads go through a buffered
// queue drained by a single write pump; Send never blocks.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	cfg    ConnConfig
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	started bool

	pumpDone chan struct{}
}

// NewConn wraps an upgraded websocket.
func NewConn(ws *websocket.Conn, cfg ConnConfig, logger *slog.Logger) *Conn {
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	ws.SetReadLimit(cfg.MaxMessageSize)
	return &Conn{
		id:       id,
		ws:       ws,
		send:     make(chan []byte, cfg.SendBufferSize),
		cfg:      cfg,
		logger:   logger.With(logging.Conn(id)),
		pumpDone: make(chan struct{}),
	}
}

// ID identifies the connection in logs and delivery errors.
func (c *Conn) ID() string { return c.id }

// RemoteAddr is the peer address of the underlying transport.
func (c *Conn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

// Send queues payload for the write pump. It fails with ErrConnClosed once
// the connection is closed and with ErrSendBufferFull when the peer is not
// draining its queue.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close tells the peer the server is going away and releases the transport.
func (c *Conn) Close() error {
	return c.CloseWith(websocket.CloseGoingAway, "")
}

// CloseWith sends a close frame with code and reason, then closes the
// transport. Only the first call has any effect.
func (c *Conn) CloseWith(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteWait)
	if err := c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil && !isExpectedCloseError(err) {
		c.logger.Debug("chat conn - close frame - write failed", logging.Err(err))
	}
	return c.closeTransport()
}

func (c *Conn) closeTransport() error {
	if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
		return err
	}
	return nil
}

// Start arms the keepalive deadlines and launches the write pump.
func (c *Conn) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Warn("chat conn - set read deadline - failed", logging.Err(err))
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	go c.writePump()
}

// Wait blocks until the write pump has exited. It returns at once when the
// pump was never started.
func (c *Conn) Wait() {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.pumpDone
	}
}

// ReadFrame blocks for the next inbound message.
func (c *Conn) ReadFrame() ([]byte, error) {
	_, raw, err := c.ws.ReadMessage()
	return raw, err
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.closeTransport()
		close(c.pumpDone)
	}()

	for c.processWriteEvent(ticker) {
	}
}

func (c *Conn) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		if !ok {
			return false
		}
		return c.writeMessages(message)
	case <-ticker.C:
		return c.writePing()
	}
}

// writeMessages writes message and whatever is already queued behind it,
// one websocket frame per payload, so every frame carries exactly one
// JSON record.
func (c *Conn) writeMessages(message []byte) bool {
	if !c.writeFrame(message) {
		return false
	}
	for range len(c.send) {
		queued, ok := <-c.send
		if !ok {
			return true
		}
		if !c.writeFrame(queued) {
			return false
		}
	}
	return true
}

func (c *Conn) writeFrame(payload []byte) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return false
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logWriteError("write message", err)
		return false
	}
	return true
}

func (c *Conn) writePing() bool {
	if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
		c.logWriteError("ping", err)
		return false
	}
	return true
}

func (c *Conn) logWriteError(op string, err error) {
	if isExpectedCloseError(err) || errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	c.logger.Warn("chat conn - "+op+" - failed", logging.Err(err))
}
