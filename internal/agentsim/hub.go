package agentsim

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/voicecall/domain"
	"github.com/satriahrh/voicecall/domain/entities"
	"github.com/satriahrh/voicecall/internal/auth"
	"github.com/satriahrh/voicecall/internal/config"
)

const (
	// VoicePath is where the agent endpoint is mounted
	VoicePath = "/api/agent/voice"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 20

	// CloseUnsupportedFrame is sent when the caller transmits a text frame
	CloseUnsupportedFrame = 4000

	// Rough byte rate of a compressed recording, used to estimate its duration
	assumedBytesPerSecond = 16000
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var script = []string{
	"Thanks for sharing that. How would you rate your overall experience on a scale of one to five?",
	"Got it. Was there anything that stood out, good or bad?",
	"That's really helpful. Would you recommend us to a friend?",
	"Thank you so much for your time. Have a wonderful day!",
}

// WriteData is a single outbound websocket message.
// Type is websocket.TextMessage or websocket.BinaryMessage.
type WriteData struct {
	Type    int
	Payload []byte
}

// Hub accepts caller connections and plays the agent side of a feedback call
type Hub struct {
	cfg    config.SimConfig
	secret []byte
	audio  []byte
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub prepares the endpoint. The reply audio is read from cfg.AudioFile;
// when the file cannot be read a generated tone is used instead.
// A non-empty secret makes a valid bearer token mandatory.
func NewHub(cfg config.SimConfig, secret []byte, logger *zap.Logger) *Hub {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1024
	}
	audio, err := os.ReadFile(cfg.AudioFile)
	if err != nil || len(audio) == 0 {
		logger.Warn("Sample audio unavailable, using generated tone",
			zap.String("file", cfg.AudioFile),
			zap.Error(err))
		audio = ToneWAV(440, 800*time.Millisecond, 16000)
	}
	return &Hub{
		cfg:     cfg,
		secret:  secret,
		audio:   audio,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// Register mounts the voice endpoint on e
func (h *Hub) Register(e *echo.Echo) {
	e.GET(VoicePath, h.HandleVoice)
}

// Clients returns the number of connected callers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every caller connection
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}

// HandleVoice upgrades the request and starts the caller's pumps
func (h *Hub) HandleVoice(c echo.Context) error {
	clientID, err := h.authorize(c.Request())
	if err != nil {
		h.logger.Warn("Rejected agent connection", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		id:       uuid.NewString(),
		clientID: clientID,
		send:     make(chan WriteData, 256),
		done:     make(chan struct{}),
		logger:   h.logger,
	}
	h.add(client)

	h.logger.Info("Caller connected",
		zap.String("connectionID", client.id),
		zap.String("clientID", clientID))

	go client.writePump()
	go client.readPump()
	return nil
}

func (h *Hub) authorize(r *http.Request) (string, error) {
	clientID := r.Header.Get("X-Client-ID")
	if len(h.secret) == 0 {
		return clientID, nil
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", errors.New("missing bearer token")
	}
	claims, err := auth.ValidateToken(h.secret, token)
	if err != nil {
		return "", err
	}
	return claims.ClientID, nil
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	h.logger.Info("Caller disconnected", zap.String("connectionID", c.id))
}

// Client is one connected caller
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	id       string
	clientID string
	send     chan WriteData
	done     chan struct{}
	once     sync.Once
	logger   *zap.Logger

	// owned by readPump
	turns int
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		c.hub.remove(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.sendControl(domain.ControlMessage{UserText: "Call started", AgentReply: c.hub.cfg.Greeting})
	if !c.streamAudio() {
		return
	}

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Caller read failed", zap.String("connectionID", c.id), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.BinaryMessage {
			c.logger.Warn("Caller sent a non-binary frame", zap.String("connectionID", c.id))
			c.closeWith(CloseUnsupportedFrame, "expected binary audio")
			return
		}
		if !c.respond(message) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(msg.Type, msg.Payload); err != nil {
				c.logger.Warn("Failed to write message", zap.String("connectionID", c.id), zap.Error(err))
				c.shutdown()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			return
		}
	}
}

// respond answers one recording. It returns false once the connection is gone.
func (c *Client) respond(recording []byte) bool {
	if len(recording) == 0 {
		return c.sendControl(domain.ControlMessage{Error: "Could not understand audio"})
	}

	reply := script[c.turns%len(script)]
	c.turns++

	duration := float64(len(recording)) / assumedBytesPerSecond
	report := simulatedReport(duration)

	c.logger.Info("Answering recording",
		zap.String("connectionID", c.id),
		zap.Int("bytes", len(recording)),
		zap.Int("turn", c.turns))

	msg := domain.ControlMessage{
		UserText:   fmt.Sprintf("(%.1f seconds of audio)", duration),
		AgentReply: reply,
		Metrics:    &report,
	}
	if !c.sendControl(msg) {
		return false
	}
	return c.streamAudio()
}

// simulatedReport returns fixed stage latencies in milliseconds
func simulatedReport(audioSeconds float64) entities.MetricsReport {
	r := entities.MetricsReport{
		STTUploadTime:     120,
		STTProcessingTime: 380,
		LLMTime:           650,
		TTSTime:           420,
		AudioDuration:     audioSeconds,
	}
	r.STTTotalTime = r.STTUploadTime + r.STTProcessingTime
	if audioSeconds > 0 {
		r.EfficiencyRatio = audioSeconds / (r.STTTotalTime / 1000)
	}
	return r
}

func (c *Client) sendControl(msg domain.ControlMessage) bool {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to encode control message", zap.Error(err))
		return false
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// streamAudio sends the sample audio as a paced burst of binary frames
func (c *Client) streamAudio() bool {
	size := c.hub.cfg.ChunkSize
	for start := 0; start < len(c.hub.audio); start += size {
		end := min(start+size, len(c.hub.audio))
		if !c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: c.hub.audio[start:end]}) {
			return false
		}
		if delay := c.hub.cfg.ChunkDelay; delay > 0 && end < len(c.hub.audio) {
			select {
			case <-time.After(delay):
			case <-c.done:
				return false
			}
		}
	}
	return true
}

func (c *Client) enqueue(msg WriteData) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) closeWith(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("Close frame not delivered", zap.String("connectionID", c.id), zap.Error(err))
	}
	c.shutdown()
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
