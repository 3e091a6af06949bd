package websocket

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Fixverse25/KonvoAI/internal/voice"
	"github.com/Fixverse25/KonvoAI/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio frames

	segmentTimeout = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The call socket is guarded by the widget token, checked
		// before the upgrade.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// PipelineConfig holds the voice pipeline knobs shared by all calls.
type PipelineConfig struct {
	SampleRate    int
	VADThreshold  float64
	PromptTimeout time.Duration
	Debounce      time.Duration
	MaxSegment    time.Duration
}

// Hub maintains the set of active call clients.
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	voiceService *usecase.VoiceService
	pipeline     PipelineConfig

	logger *zap.Logger
}

// NewHub creates a new call hub.
func NewHub(voiceService *usecase.VoiceService, pipeline PipelineConfig, logger *zap.Logger) *Hub {
	if pipeline.SampleRate == 0 {
		pipeline.SampleRate = 16000
	}
	return &Hub{
		clients:      make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		voiceService: voiceService,
		pipeline:     pipeline,
		logger:       logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WriteData is one outbound websocket message.
type WriteData struct {
	// Type is websocket.TextMessage or websocket.BinaryMessage.
	Type    int
	Payload []byte
}

// Client is a middleman between one websocket connection and its call.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	id        string
	sessionID string
	language  string

	logger *zap.Logger

	mutex  sync.Mutex
	call   *voice.Call
	source *frameSource
}

// ServeCall upgrades the connection and runs the call protocol. The
// session ID comes from the validated widget token.
func ServeCall(hub *Hub, c echo.Context, sessionID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		id:        uuid.NewString(),
		sessionID: sessionID,
		logger:    logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the call.
func (c *Client) readPump() {
	defer func() {
		c.endCall()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processControlMessage(message)
		case websocket.BinaryMessage:
			c.processAudioFrame(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the call to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) processControlMessage(message []byte) {
	parsed, err := ParseClientMessage(message)
	if err != nil {
		c.logger.Warn("Rejected control message", zap.Error(err))
		c.sendJSON(NewErrorMessage("bad_message", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *CallStartMessage:
		c.startCall(msg)
	case *BaseMessage:
		if msg.Type == MessageTypeHangUp {
			c.endCall()
		}
	}
}

// processAudioFrame feeds one binary PCM16 frame into the active call.
func (c *Client) processAudioFrame(data []byte) {
	c.mutex.Lock()
	source := c.source
	c.mutex.Unlock()

	if source == nil {
		c.logger.Warn("Audio frame received without an active call",
			zap.String("clientID", c.id))
		return
	}
	source.Push(data)
}

// startCall wires the voice pipeline for this connection and begins
// consuming audio frames.
func (c *Client) startCall(msg *CallStartMessage) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.call != nil && c.call.State() == voice.CallActive {
		c.sendJSON(NewErrorMessage("call_active", "a call is already in progress"))
		return
	}

	sampleRate := c.hub.pipeline.SampleRate
	if msg.SampleRate > 0 {
		sampleRate = msg.SampleRate
	}
	c.language = msg.Language

	source := newFrameSource(sampleRate)
	call := voice.NewCall(voice.CallConfig{
		Detector: voice.NewDetector(c.hub.pipeline.VADThreshold),
		Segmenter: voice.NewSegmenter(voice.SegmenterConfig{
			SampleRate:    sampleRate,
			PromptTimeout: c.hub.pipeline.PromptTimeout,
			Debounce:      c.hub.pipeline.Debounce,
			MaxSegment:    c.hub.pipeline.MaxSegment,
		}),
		HandleSegment: c.handleSegment,
		PromptAudio: func(ctx context.Context) ([]byte, error) {
			return c.hub.voiceService.PromptAudio(ctx, c.currentLanguage())
		},
		Hooks: voice.CallHooks{
			OnResult: c.onResult,
			OnPrompt: c.onPrompt,
			OnEnded:  c.onEnded,
		},
		Logger:     c.logger,
		SampleRate: sampleRate,
	})

	if err := call.Start(context.Background(), source); err != nil {
		c.sendJSON(NewErrorMessage("call_failed", err.Error()))
		return
	}

	c.call = call
	c.source = source

	started := struct {
		BaseMessage
		SessionID string `json:"session_id"`
	}{newEnvelope(MessageTypeCallStarted), c.sessionID}
	c.sendJSON(started)

	c.logger.Info("Call started",
		zap.String("clientID", c.id),
		zap.String("sessionID", c.sessionID),
		zap.Int("sampleRate", sampleRate))
}

// handleSegment runs one finalized utterance through the voice service.
func (c *Client) handleSegment(ctx context.Context, wav []byte) (*voice.TurnResult, error) {
	ctx, cancel := context.WithTimeout(ctx, segmentTimeout)
	defer cancel()

	result, err := c.hub.voiceService.HandleUtterance(ctx, c.currentSessionID(), wav, c.currentLanguage())
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	c.sessionID = result.SessionID
	c.mutex.Unlock()

	return &voice.TurnResult{
		Transcription: result.Transcription,
		Reply:         result.Reply,
		Audio:         result.ReplyAudio,
		Prompted:      result.Prompted,
	}, nil
}

func (c *Client) onResult(result *voice.TurnResult) {
	sessionID := c.currentSessionID()
	c.sendJSON(&TranscriptionMessage{
		BaseMessage: newEnvelope(MessageTypeTranscription),
		SessionID:   sessionID,
		Text:        result.Transcription,
	})
	c.sendJSON(&ReplyMessage{
		BaseMessage: newEnvelope(MessageTypeReply),
		SessionID:   sessionID,
		Text:        result.Reply,
		HasAudio:    len(result.Audio) > 0,
	})
	if len(result.Audio) > 0 {
		c.sendBinary(result.Audio)
	}
}

func (c *Client) onPrompt(audio []byte) {
	c.sendJSON(&PromptMessage{
		BaseMessage: newEnvelope(MessageTypePrompt),
		Text:        c.hub.voiceService.PromptText(c.currentLanguage()),
		HasAudio:    len(audio) > 0,
	})
	if len(audio) > 0 {
		c.sendBinary(audio)
	}
}

func (c *Client) onEnded(err error) {
	reason := "hang_up"
	if err != nil {
		reason = "pipeline_failure"
	}
	c.sendJSON(NewCallEndedMessage(reason))
}

// endCall hangs up the active call, if any.
func (c *Client) endCall() {
	c.mutex.Lock()
	call := c.call
	c.call = nil
	c.source = nil
	c.mutex.Unlock()

	if call != nil {
		call.HangUp()
	}
}

func (c *Client) currentSessionID() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.sessionID
}

func (c *Client) currentLanguage() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.language
}

func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Dropping message, send buffer full", zap.String("clientID", c.id))
	}
}

func (c *Client) sendBinary(data []byte) {
	select {
	case c.send <- WriteData{Type: websocket.BinaryMessage, Payload: data}:
	default:
		c.logger.Warn("Dropping audio, send buffer full", zap.String("clientID", c.id))
	}
}

// frameSource adapts binary websocket frames into a CaptureSource.
// Frame timestamps are derived from the audio stream position, not
// wall-clock arrival, so jittery delivery does not skew segmentation.
type frameSource struct {
	frames     chan voice.Frame
	sampleRate int

	mu      sync.Mutex
	start   time.Time
	samples int
	closed  bool
}

var _ voice.CaptureSource = (*frameSource)(nil)

func newFrameSource(sampleRate int) *frameSource {
	return &frameSource{
		frames:     make(chan voice.Frame, 64),
		sampleRate: sampleRate,
		start:      time.Now(),
	}
}

func (f *frameSource) Frames() <-chan voice.Frame { return f.frames }

// Push decodes one little-endian PCM16 payload and queues it. Frames
// arriving after close, or when the consumer has fallen badly behind,
// are dropped.
func (f *frameSource) Push(data []byte) {
	if len(data) < 2 {
		return
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	at := f.start.Add(time.Duration(f.samples) * time.Second / time.Duration(f.sampleRate))
	f.samples += len(samples)

	select {
	case f.frames <- voice.Frame{Samples: samples, Time: at}:
	default:
	}
}

func (f *frameSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.frames)
	}
	return nil
}
