package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/anchor"
	"github.com/mcdev12/quizduel/go/internal/controller"
	"github.com/mcdev12/quizduel/go/internal/events"
	"github.com/mcdev12/quizduel/go/internal/models"
	"github.com/mcdev12/quizduel/go/internal/store"
)

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	ReadTimeout     time.Duration `env:"WS_READ_TIMEOUT" envDefault:"60s"`
	PingInterval    time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	MaxMessageSize  int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"4096"`
	ReadBufferSize  int           `env:"WS_READ_BUFFER" envDefault:"1024"`
	WriteBufferSize int           `env:"WS_WRITE_BUFFER" envDefault:"4096"`
	SendBuffer      int           `env:"WS_SEND_BUFFER" envDefault:"64"`
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBuffer:      64,
	}
}

// Deps are the collaborators every per-connection controller is built with.
type Deps struct {
	Store        store.Store
	Clock        clockwork.Clock
	Windows      anchor.Windows
	Seeder       controller.Seeder
	Archiver     controller.Archiver
	Publisher    events.Publisher
	TickInterval time.Duration
}

// ConnectionManager tracks live participant connections by session code.
type ConnectionManager struct {
	sessions map[string]map[*Connection]bool
	mu       sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	deps     Deps
}

// Connection is one participant's socket and the controller driving it.
type Connection struct {
	ID            string
	SessionID     string
	ParticipantID string
	Role          models.Role
	Conn          *websocket.Conn
	Send          chan []byte
	Manager       *ConnectionManager
	ConnectedAt   time.Time

	ctrl      *controller.Controller
	cancel    context.CancelFunc
	closeOnce sync.Once

	sendMu sync.Mutex
	closed bool
}

func NewConnectionManager(config ConnectionConfig, deps Deps) *ConnectionManager {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	check := config.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	def := DefaultConnectionConfig()
	if config.SendBuffer <= 0 {
		config.SendBuffer = def.SendBuffer
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	return &ConnectionManager{
		sessions: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     check,
		},
		config: config,
		deps:   deps,
	}
}

// UpgradeConnection upgrades the request and starts serving the participant.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, sessionID, participantID string, role models.Role) error {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		Role:          role,
		Conn:          ws,
		Send:          make(chan []byte, cm.config.SendBuffer),
		Manager:       cm,
		ConnectedAt:   cm.deps.Clock.Now(),
	}
	c.ctrl = controller.New(cm.sessionClient(c), cm.controllerOptions(c)...)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	cm.register(c)

	go c.run(ctx)
	go c.writePump()
	go c.readPump(ctx)

	log.Info().
		Str("connection_id", c.ID).
		Str("session_id", sessionID).
		Str("participant_id", participantID).
		Str("role", string(role)).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) sessionClient(c *Connection) *controller.SessionClient {
	sc := &controller.SessionClient{
		Store:         cm.deps.Store,
		SessionID:     c.SessionID,
		ParticipantID: c.ParticipantID,
		Role:          c.Role,
		Clock:         cm.deps.Clock,
		Windows:       cm.deps.Windows,
	}
	if c.Role == models.RoleHost {
		sc.Seeder = cm.deps.Seeder
		sc.Archiver = cm.deps.Archiver
	}
	return sc
}

func (cm *ConnectionManager) controllerOptions(c *Connection) []controller.Option {
	var publish controller.ViewSink
	if cm.deps.Publisher != nil {
		publish = events.ViewSink(cm.deps.Publisher, c.Role, cm.deps.Clock)
	}
	return []controller.Option{
		controller.WithTickInterval(cm.deps.TickInterval),
		controller.WithViewSink(controller.ViewFunc(func(ctx context.Context, v controller.ViewToken) {
			c.push(ServerMessage{Type: MessageView, View: &v, Path: v.Path()})
			if publish != nil {
				publish.View(ctx, v)
			}
		})),
		controller.WithFrameSink(controller.FrameFunc(func(_ context.Context, f controller.Frame) {
			c.push(ServerMessage{Type: MessageFrame, Frame: &f})
		})),
	}
}

func (cm *ConnectionManager) register(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessions[c.SessionID] == nil {
		cm.sessions[c.SessionID] = make(map[*Connection]bool)
	}
	cm.sessions[c.SessionID][c] = true

	log.Debug().
		Str("connection_id", c.ID).
		Str("session_id", c.SessionID).
		Int("total_connections", len(cm.sessions[c.SessionID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregister(c *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conns, ok := cm.sessions[c.SessionID]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(cm.sessions, c.SessionID)
	}
	log.Info().
		Str("connection_id", c.ID).
		Str("session_id", c.SessionID).
		Msg("connection unregistered")
}

// ConnectionStats summarizes live connections.
type ConnectionStats struct {
	TotalConnections int            `json:"totalConnections"`
	ActiveSessions   int            `json:"activeSessions"`
	Sessions         map[string]int `json:"sessions"`
}

func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := ConnectionStats{ActiveSessions: len(cm.sessions), Sessions: make(map[string]int)}
	for id, conns := range cm.sessions {
		out.TotalConnections += len(conns)
		out.Sessions[id] = len(conns)
	}
	return out
}

// CloseAll drops every connection.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, conns := range cm.sessions {
		for c := range conns {
			all = append(all, c)
		}
	}
	cm.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}

func (c *Connection) run(ctx context.Context) {
	if err := c.ctrl.Run(ctx); err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("controller failed")
		c.push(ServerMessage{Type: MessageError, Error: err.Error()})
	}
	c.close()
}

// push queues msg without blocking. A connection that cannot keep up is
// closed.
func (c *Connection) push(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal message")
		return
	}

	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return
	}
	slow := false
	select {
	case c.Send <- data:
	default:
		slow = true
	}
	c.sendMu.Unlock()

	if slow {
		log.Warn().Str("connection_id", c.ID).Msg("connection send buffer full, closing connection")
		go c.close()
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.Manager.unregister(c)
		if c.cancel != nil {
			c.cancel()
		}
		c.sendMu.Lock()
		c.closed = true
		close(c.Send)
		c.sendMu.Unlock()
	})
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump(ctx context.Context) {
	defer func() {
		c.close()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close error")
			}
			return
		}
		c.handleClientMessage(ctx, message)
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

func (c *Connection) handleClientMessage(ctx context.Context, message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.push(ServerMessage{Type: MessageError, Error: "malformed message"})
		return
	}

	err := c.ctrl.Do(ctx, msg.Action)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("action", string(msg.Kind)).
			Msg("action rejected")
		c.push(ServerMessage{Type: MessageError, Ref: msg.Ref, Error: err.Error()})
		return
	}
	c.push(ServerMessage{Type: MessageAck, Ref: msg.Ref})
}
