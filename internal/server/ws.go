package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KanuToCL/SonoTag-sub000/internal/config"
	"github.com/KanuToCL/SonoTag-sub000/internal/metrics"
	"github.com/KanuToCL/SonoTag-sub000/internal/protocol"
	"github.com/KanuToCL/SonoTag-sub000/internal/score"
	"github.com/KanuToCL/SonoTag-sub000/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxControlMessageSize bounds JSON control envelopes; binary PCM
	// frames are bounded separately by the audio config.
	maxControlMessageSize = 64 * 1024
)

// WSServer accepts capture clients over WebSocket. Each connection owns at
// most one session: JSON text frames carry control messages, binary frames
// carry little-endian float32 PCM audio.
type WSServer struct {
	config     *config.Config
	logger     *slog.Logger
	sessionMgr *session.Manager
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader

	// Statistics
	connectedClients int
	framesReceived   uint64
	decodeErrors     uint64

	mu sync.Mutex
}

// WSStats represents WebSocket server statistics
type WSStats struct {
	ConnectedClients int    `json:"connected_clients"`
	FramesReceived   uint64 `json:"frames_received"`
	DecodeErrors     uint64 `json:"decode_errors"`
}

// NewWSServer creates a new WebSocket ingest server
func NewWSServer(cfg *config.Config, logger *slog.Logger, sessionMgr *session.Manager, m *metrics.Metrics) *WSServer {
	return &WSServer{
		config:     cfg,
		logger:     logger,
		sessionMgr: sessionMgr,
		metrics:    m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Capture clients are browser pages served from anywhere
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleUpgrade upgrades one HTTP request to a capture connection
func (s *WSServer) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	client := &wsClient{
		server: s,
		conn:   conn,
		send:   make(chan []byte, s.config.Server.SendQueueSize),
		done:   make(chan struct{}),
		logger: s.logger.With(slog.String("remote", r.RemoteAddr)),
	}

	s.mu.Lock()
	s.connectedClients++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.WebSocketClients.Inc()
	}

	client.logger.Info("Capture client connected")

	go client.writePump()
	go client.readLoop()
}

// GetStats returns current WebSocket server statistics
func (s *WSServer) GetStats() WSStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return WSStats{
		ConnectedClients: s.connectedClients,
		FramesReceived:   s.framesReceived,
		DecodeErrors:     s.decodeErrors,
	}
}

func (s *WSServer) recordFrame() {
	s.mu.Lock()
	s.framesReceived++
	s.mu.Unlock()
}

func (s *WSServer) recordDecodeError() {
	s.mu.Lock()
	s.decodeErrors++
	s.mu.Unlock()
}

func (s *WSServer) clientClosed() {
	s.mu.Lock()
	s.connectedClients--
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.WebSocketClients.Dec()
	}
}

// wsClient is one capture connection. It is the EventSink for its session;
// events that cannot be queued are dropped rather than blocking the
// pipeline.
type wsClient struct {
	server *WSServer
	conn   *websocket.Conn
	logger *slog.Logger

	send chan []byte
	done chan struct{}

	session   *session.Session
	closeOnce sync.Once
	mu        sync.Mutex
}

// readLoop consumes control and audio frames until the connection drops
func (c *wsClient) readLoop() {
	defer c.close()

	c.conn.SetReadLimit(maxControlMessageSize + int64(c.server.config.Audio.MaxFrameSamples)*4)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("Connection lost", slog.String("error", err.Error()))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.handleControl(data)
		case websocket.BinaryMessage:
			c.handleAudio(data)
		}
	}
}

// handleControl processes one JSON control envelope
func (c *wsClient) handleControl(data []byte) {
	msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		c.sendEvent(protocol.NewErrorEvent(err.Error()))
		return
	}

	switch msg.Type {
	case protocol.TypeStart:
		c.handleStart(msg)
	case protocol.TypeConfigure:
		c.handleConfigure(msg)
	case protocol.TypeStop:
		c.handleStop()
	}
}

func (c *wsClient) handleStart(msg *protocol.ClientMessage) {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		c.sendEvent(protocol.NewErrorEvent("session already started"))
		return
	}
	c.mu.Unlock()

	sess, err := c.server.sessionMgr.CreateSession(msg.SourceRate, msg.Prompts, c)
	if err != nil {
		c.sendEvent(protocol.NewErrorEvent(err.Error()))
		return
	}

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	stats := sess.GetStats()
	c.sendEvent(protocol.NewStartedEvent(sess.ID(), stats.Prompts))
	c.logger.Info("Session bound to connection", slog.String("session_id", sess.ID()))
}

func (c *wsClient) handleConfigure(msg *protocol.ClientMessage) {
	sess := c.currentSession()
	if sess == nil {
		c.sendEvent(protocol.NewErrorEvent("no active session"))
		return
	}

	update := session.ConfigUpdate{
		WindowSeconds: msg.WindowSeconds,
		SlideSpeed:    msg.SlideSpeed,
		Normalizer:    msg.Normalizer,
		Prompts:       msg.NewPrompts,
	}
	if err := sess.Configure(update); err != nil {
		c.sendEvent(protocol.NewErrorEvent(err.Error()))
	}
}

func (c *wsClient) handleStop() {
	sess := c.currentSession()
	if sess == nil {
		return
	}

	c.server.sessionMgr.RemoveSession(sess.ID())
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	c.sendEvent(protocol.NewStoppedEvent(sess.ID()))
}

// handleAudio decodes one binary PCM frame and feeds the session
func (c *wsClient) handleAudio(data []byte) {
	sess := c.currentSession()
	if sess == nil {
		return
	}

	samples, err := protocol.DecodePCMFrame(data)
	if err != nil {
		c.server.recordDecodeError()
		c.sendEvent(protocol.NewErrorEvent(fmt.Sprintf("bad audio frame: %v", err)))
		return
	}

	c.server.recordFrame()
	if err := sess.PushFrame(samples); err != nil {
		c.sendEvent(protocol.NewErrorEvent(err.Error()))
	}
}

func (c *wsClient) currentSession() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// OnColumns implements session.EventSink
func (c *wsClient) OnColumns(spectral, heatmap []float64) {
	c.sendEvent(protocol.NewColumnsEvent(spectral, heatmap))
}

// OnScores implements session.EventSink
func (c *wsClient) OnScores(display *score.DisplayScoreSet, ranked []score.RankedScore, latency time.Duration) {
	c.sendEvent(protocol.NewScoresEvent(display.Prompts, display.Values, ranked, float64(latency.Milliseconds())))
}

// OnError implements session.EventSink
func (c *wsClient) OnError(message string) {
	c.sendEvent(protocol.NewErrorEvent(message))
}

// sendEvent queues one event for the write pump. A full queue drops the
// event so a slow client never stalls the render or capture paths.
func (c *wsClient) sendEvent(event *protocol.ServerEvent) {
	data, err := event.Encode()
	if err != nil {
		c.logger.Error("Failed to encode event", slog.String("error", err.Error()))
		return
	}

	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.logger.Debug("Send queue full, dropping event", slog.String("type", event.Type))
	}
}

// writePump serializes all writes to the connection
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// close tears down the connection and its session. Losing the capture
// source is fatal to the session; buffered audio is discarded.
func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()

		if sess := c.currentSession(); sess != nil {
			c.server.sessionMgr.RemoveSession(sess.ID())
		}

		c.server.clientClosed()
		c.logger.Info("Capture client disconnected")
	})
}
