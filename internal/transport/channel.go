// Package transport implements the duplex message channel to the voice agent over a websocket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain/entities"
	"github.com/satriahrh/voicecall/domain/repositories"
	"github.com/satriahrh/voicecall/internal/auth"
	"github.com/satriahrh/voicecall/internal/config"
	"github.com/satriahrh/voicecall/internal/metrics"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultDialTimeout    = 10 * time.Second
	defaultMaxMessageSize = 16 * 1024 * 1024

	// inbound frames buffered ahead of the consumer
	frameBuffer = 64
)

// Dialer opens websocket channels to the agent endpoint
type Dialer struct {
	cfg     config.AgentConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewDialer creates a Dialer for the configured agent
func NewDialer(cfg config.AgentConfig, logger *zap.Logger, m *metrics.Metrics) *Dialer {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Dialer{cfg: cfg, logger: logger, metrics: m}
}

// Dial performs the websocket handshake and starts the channel pumps
func (d *Dialer) Dial(ctx context.Context) (repositories.Transport, error) {
	header, err := d.header()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.cfg.DialTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, d.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial agent %s: status %d: %w", d.cfg.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial agent %s: %w", d.cfg.URL, err)
	}

	d.logger.Info("Connected to agent", zap.String("url", d.cfg.URL))
	return newChannel(conn, d.cfg, d.logger, d.metrics), nil
}

func (d *Dialer) header() (http.Header, error) {
	header := http.Header{}
	token := d.cfg.Token
	if token == "" && d.cfg.JWTSecret != "" {
		var err error
		token, err = auth.GenerateClientToken([]byte(d.cfg.JWTSecret), d.cfg.ClientID, auth.DefaultTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("mint client token: %w", err)
		}
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if d.cfg.ClientID != "" {
		header.Set("X-Client-ID", d.cfg.ClientID)
	}
	return header, nil
}

// Channel is an open websocket to the agent. Text messages are delivered as
// control frames and binary messages as media frames, in arrival order.
type Channel struct {
	conn    *websocket.Conn
	cfg     config.AgentConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	frames chan entities.InboundFrame
	done   chan struct{}

	// gorilla allows one concurrent writer
	writeMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	err       error
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newChannel(conn *websocket.Conn, cfg config.AgentConfig, logger *zap.Logger, m *metrics.Metrics) *Channel {
	c := &Channel{
		conn:    conn,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		frames:  make(chan entities.InboundFrame, frameBuffer),
		done:    make(chan struct{}),
		closeCh: make(chan struct{}),
	}

	go c.readPump()
	if cfg.PingPeriod > 0 {
		go c.pingLoop()
	}
	return c
}

// IsOpen reports whether the channel can still send
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Frames returns the inbound frame stream; it is closed when the channel ends
func (c *Channel) Frames() <-chan entities.InboundFrame {
	return c.frames
}

// Done is closed once the read side has ended
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err reports why the frame stream ended. It is nil for a normal close.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SendBinary writes one binary message
func (c *Channel) SendBinary(data []byte) error {
	if !c.IsOpen() {
		return entities.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("send binary: %w", err)
	}

	c.metrics.FramesSent.Inc()
	c.metrics.BytesSent.Add(float64(len(data)))
	return nil
}

// Close performs the close handshake and releases the connection. It is safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.markClosed(nil)
		close(c.closeCh)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait)); err != nil {
			c.logger.Debug("Failed to write close frame", zap.Error(err))
		}
		c.writeMu.Unlock()

		c.conn.Close()
	})
	return nil
}

// markClosed records the first terminal error
func (c *Channel) markClosed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
}

func (c *Channel) closing() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// readPump pumps messages from the websocket connection to the frame stream.
func (c *Channel) readPump() {
	defer func() {
		close(c.frames)
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	if c.cfg.PingPeriod > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.conn.SetPongHandler(func(string) error {
			c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
			return nil
		})
	}

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			c.markClosed(c.classify(err))
			return
		}

		var kind entities.FrameKind
		switch messageType {
		case websocket.TextMessage:
			kind = entities.FrameControl
		case websocket.BinaryMessage:
			kind = entities.FrameMedia
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
			continue
		}

		c.metrics.FramesReceived.WithLabelValues(kind.String()).Inc()
		frame := entities.InboundFrame{Kind: kind, Data: message, ReceivedAt: time.Now()}
		select {
		case c.frames <- frame:
		case <-c.closeCh:
			return
		}
	}
}

// classify turns a read error into the channel's terminal error
func (c *Channel) classify(err error) error {
	if c.closing() {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Info("Agent closed the connection")
		return nil
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Error("WebSocket error", zap.Error(err))
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Errorf("agent closed connection: %w", err)
	}
	return fmt.Errorf("read from agent: %w", err)
}

// pingLoop keeps the connection alive while it is open.
func (c *Channel) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("Ping failed", zap.Error(err))
				return
			}
		}
	}
}
