package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mlowery/pointdeck/internal/protocol"
)

// IntentHandler receives parsed intents and disconnects from connections.
type IntentHandler interface {
	HandleIntent(conn *Connection, event protocol.Event)
	HandleDisconnect(conn *Connection)
}

// ConnectionManager owns all WebSocket connections and fans room-scoped
// events out to them. A connection is room-agnostic when it is upgraded and
// is bound to a (room, player) pair only after a successful join.
type ConnectionManager struct {
	conns     map[*Connection]bool
	roomConns map[string]map[*Connection]bool
	mu        sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  IntentHandler

	broadcastCh chan broadcastMessage
}

// Connection represents a WebSocket connection to a participant.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time

	mu       sync.Mutex
	roomID   string
	playerID string
}

// Binding returns the room and player this connection joined as, or empty
// strings if it has not joined a room yet.
func (c *Connection) Binding() (roomID, playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.playerID
}

func (c *Connection) bind(roomID, playerID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.playerID = playerID
	c.mu.Unlock()
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// broadcastMessage is one event queued for fan-out. If Conn is set the event
// goes only to that connection, otherwise to every member of RoomID.
type broadcastMessage struct {
	RoomID string
	Conn   *Connection
	Event  protocol.Event
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig, handler IntentHandler) *ConnectionManager {
	return &ConnectionManager{
		conns:     make(map[*Connection]bool),
		roomConns: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		handler:     handler,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts its
// read/write pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.mu.Lock()
	cm.conns[connection] = true
	cm.mu.Unlock()

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Msg("WebSocket connection established")

	return nil
}

// BindToRoom associates a joined connection with its room pool. It reports
// false if the connection was already torn down or already bound to a room,
// in which case the caller must undo the membership it just granted.
func (cm *ConnectionManager) BindToRoom(conn *Connection, roomID, playerID string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.conns[conn] {
		return false
	}
	if boundRoom, _ := conn.Binding(); boundRoom != "" {
		return false
	}
	conn.bind(roomID, playerID)
	if cm.roomConns[roomID] == nil {
		cm.roomConns[roomID] = make(map[*Connection]bool)
	}
	cm.roomConns[roomID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", roomID).
		Str("player_id", playerID).
		Int("room_connections", len(cm.roomConns[roomID])).
		Msg("connection bound to room")
	return true
}

// unregisterConnection removes a connection from the manager. Idempotent;
// both pumps call it on their way out.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	if !cm.conns[conn] {
		cm.mu.Unlock()
		return
	}
	delete(cm.conns, conn)

	roomID, playerID := conn.Binding()
	if roomID != "" {
		if pool, exists := cm.roomConns[roomID]; exists {
			delete(pool, conn)
			if len(pool) == 0 {
				delete(cm.roomConns, roomID)
			}
		}
	}
	close(conn.Send)
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("room_id", roomID).
		Str("player_id", playerID).
		Msg("connection unregistered")

	cm.handler.HandleDisconnect(conn)
}

// BroadcastToRoom queues an event for every member of a room.
func (cm *ConnectionManager) BroadcastToRoom(roomID string, event protocol.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{RoomID: roomID, Event: event}:
	default:
		log.Warn().Str("room_id", roomID).Msg("broadcast channel full, dropping message")
	}
}

// SendToConnection queues an event for a single connection. Used for joined
// acks and error notifications, which are never broadcast.
func (cm *ConnectionManager) SendToConnection(conn *Connection, event protocol.Event) {
	select {
	case cm.broadcastCh <- broadcastMessage{Conn: conn, Event: event}:
	default:
		log.Warn().Str("connection_id", conn.ID).Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast delivers one queued event.
func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	cm.mu.RLock()
	var targets []*Connection
	if message.Conn != nil {
		if cm.conns[message.Conn] {
			targets = append(targets, message.Conn)
		}
	} else {
		for conn := range cm.roomConns[message.RoomID] {
			targets = append(targets, conn)
		}
	}

	// Sending under the read lock keeps the send channel open; closing it
	// requires the write lock.
	var evict []*Connection
	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			evict = append(evict, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range evict {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("room_id", message.RoomID).
		Int("connections", len(targets)).
		Msg("event delivered")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	roomCounts := make(map[string]int)
	for roomID, pool := range cm.roomConns {
		roomCounts[roomID] = len(pool)
	}

	return map[string]interface{}{
		"total_connections": len(cm.conns),
		"active_rooms":      len(cm.roomConns),
		"room_connections":  roomCounts,
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads intents from the WebSocket connection and hands them to the
// intent handler. Transport teardown here is the only leave-room signal.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage parses one inbound frame and dispatches the intent.
func (c *Connection) handleClientMessage(message []byte) {
	var event protocol.Event
	if err := json.Unmarshal(message, &event); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Msg("received malformed client message")
		c.Manager.sendProtocolError(c, "malformed event")
		return
	}

	c.Manager.handler.HandleIntent(c, event)
}

// sendProtocolError reports a channel-level parse failure to the sender.
func (cm *ConnectionManager) sendProtocolError(conn *Connection, message string) {
	event, err := protocol.NewEvent(protocol.EventTypeError, "", protocol.ErrorPayload{Message: message}, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to build protocol error event")
		return
	}
	cm.SendToConnection(conn, event)
}
