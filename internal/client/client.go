package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mlowery/pointdeck/internal/poker"
	"github.com/mlowery/pointdeck/internal/protocol"
)

// Client is a participant in one room: it sends intents to the coordinator
// and mirrors every broadcast into a local Session projection. Intents are
// send-and-forget; correction always arrives via broadcast.
type Client struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
	sess Session

	writeMu sync.Mutex

	updates chan Session
	errs    chan string
}

// New creates a client for the given websocket URL (e.g.
// ws://host:port/ws/session). No connection is made until Dial.
func New(url string) *Client {
	return &Client{
		url:     url,
		updates: make(chan Session, 64),
		errs:    make(chan string, 16),
	}
}

// Dial establishes the event channel. It does not imply room membership;
// that comes from RequestJoin.
func (c *Client) Dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.sess = Session{Connected: true}
	c.mu.Unlock()

	go c.readLoop(conn)

	log.Debug().Str("url", c.url).Msg("session channel connected")
	c.notify()
	return nil
}

// Close tears down the channel. The coordinator treats this as the leave
// signal; there is no separate leave intent in the protocol.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

// RequestJoin sends a join intent. Empty identifiers are rejected locally
// without a network send. The session enters the room optimistically;
// membership is confirmed by the joined ack and the first list broadcast.
func (c *Client) RequestJoin(roomID, playerName string) error {
	if roomID == "" {
		return &poker.ValidationError{Field: "room id", Reason: "must not be empty"}
	}
	if playerName == "" {
		return &poker.ValidationError{Field: "player name", Reason: "must not be empty"}
	}

	c.mu.Lock()
	if !c.sess.Connected {
		c.mu.Unlock()
		return fmt.Errorf("not connected")
	}
	// The coordinator binds a connection to at most one room for its
	// lifetime; mirror that rule locally so the projection never claims a
	// room the broadcasts are not coming from.
	if c.sess.RoomID != "" {
		joined := c.sess.RoomID
		c.mu.Unlock()
		return &poker.ValidationError{Field: "join", Reason: "already joined room " + joined}
	}
	c.sess.RoomID = roomID
	c.sess.SelfName = playerName
	c.mu.Unlock()
	c.notify()

	return c.send(protocol.EventTypeJoin, roomID, protocol.JoinPayload{PlayerName: playerName})
}

// CastVote sends a vote intent and records the optimistic local selection.
// It is a no-op unless connected, joined and not yet revealed.
func (c *Client) CastVote(vote float64) error {
	c.mu.Lock()
	if !c.sess.Connected || c.sess.RoomID == "" || c.sess.Revealed {
		c.mu.Unlock()
		return nil
	}
	v := vote
	c.sess.SelfVote = &v
	roomID := c.sess.RoomID
	c.mu.Unlock()
	c.notify()

	return c.send(protocol.EventTypeVote, roomID, protocol.VotePayload{Vote: vote})
}

// RequestReveal asks the coordinator to reveal all votes. No-op unless
// joined.
func (c *Client) RequestReveal() error {
	roomID := c.joinedRoom()
	if roomID == "" {
		return nil
	}
	return c.send(protocol.EventTypeReveal, roomID, nil)
}

// RequestReset asks the coordinator to clear all votes and start a new
// round. No-op unless joined.
func (c *Client) RequestReset() error {
	roomID := c.joinedRoom()
	if roomID == "" {
		return nil
	}
	return c.send(protocol.EventTypeReset, roomID, nil)
}

// Snapshot returns a copy of the current projection.
func (c *Client) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySession(c.sess)
}

// Updates delivers a projection snapshot after every applied broadcast, for
// a presentation layer to re-render from. Snapshots are dropped, not
// queued, when the consumer lags.
func (c *Client) Updates() <-chan Session {
	return c.updates
}

// Errors delivers coordinator-rejected intent messages.
func (c *Client) Errors() <-chan string {
	return c.errs
}

func (c *Client) joinedRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sess.Connected {
		return ""
	}
	return c.sess.RoomID
}

func (c *Client) send(eventType protocol.EventType, roomID string, payload interface{}) error {
	event, err := protocol.NewEvent(eventType, roomID, payload, time.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s intent: %w", eventType, err)
	}
	return nil
}

// readLoop applies every coordinator event to the projection until the
// channel drops, then invalidates the projection.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var event protocol.Event
		if err := json.Unmarshal(message, &event); err != nil {
			log.Debug().Err(err).Msg("malformed coordinator event")
			continue
		}

		if event.Type == protocol.EventTypeError {
			var payload protocol.ErrorPayload
			if err := json.Unmarshal(event.Data, &payload); err != nil {
				continue
			}
			log.Debug().Str("message", payload.Message).Msg("intent rejected by coordinator")
			select {
			case c.errs <- payload.Message:
			default:
			}
			continue
		}

		c.mu.Lock()
		changed := c.sess.apply(event)
		c.mu.Unlock()
		if changed {
			c.notify()
		}
	}

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.sess.invalidate()
	c.mu.Unlock()
	c.notify()

	log.Debug().Msg("session channel disconnected")
}

func (c *Client) notify() {
	select {
	case c.updates <- c.Snapshot():
	default:
	}
}

func copySession(s Session) Session {
	out := s
	if s.SelfVote != nil {
		v := *s.SelfVote
		out.SelfVote = &v
	}
	// An invalidated projection holds no player slice at all; keep it that
	// way rather than materializing an empty one.
	if s.Players == nil {
		return out
	}
	out.Players = make([]PlayerView, len(s.Players))
	for i, p := range s.Players {
		out.Players[i] = p
		if p.Vote != nil {
			v := *p.Vote
			out.Players[i].Vote = &v
		}
	}
	return out
}
