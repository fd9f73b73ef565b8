package coordinator

import (
	"crypto/rand"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mlowery/pointdeck/internal/poker"
	"github.com/mlowery/pointdeck/internal/protocol"
)

// roomCodeAlphabet avoids easily-confused characters in room ids.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const roomCodeLength = 6

const intentQueueSize = 256

// Registry owns every live room. Each room is driven by a single actor
// goroutine so no two intents for the same room are ever applied
// concurrently; rooms are independent and need no cross-room coordination.
type Registry struct {
	deck    poker.Deck
	clock   clockwork.Clock
	manager *ConnectionManager

	mu     sync.Mutex
	actors map[string]*roomActor
}

// intent is one unit of work queued for a room actor. Exactly one of the
// event / disconnect / snapshot variants is meaningful.
type intent struct {
	conn       *Connection
	event      protocol.Event
	disconnect bool
	snapshot   chan protocol.PlayerListPayload
}

// NewRegistry creates an empty room registry.
func NewRegistry(deck poker.Deck, clock clockwork.Clock) *Registry {
	return &Registry{
		deck:   deck,
		clock:  clock,
		actors: make(map[string]*roomActor),
	}
}

// SetConnectionManager wires the manager used for broadcasts. Must be called
// before any intent arrives; the two depend on each other at construction.
func (g *Registry) SetConnectionManager(manager *ConnectionManager) {
	g.manager = manager
}

// HandleIntent validates an inbound intent and routes it to the room actor.
// Implements IntentHandler.
func (g *Registry) HandleIntent(conn *Connection, event protocol.Event) {
	switch event.Type {
	case protocol.EventTypeJoin:
		g.handleJoinIntent(conn, event)

	case protocol.EventTypeVote, protocol.EventTypeReveal, protocol.EventTypeReset:
		if event.RoomID == "" {
			g.sendError(conn, &poker.ValidationError{Field: "room id", Reason: "must not be empty"})
			return
		}
		if !g.dispatch(event.RoomID, intent{conn: conn, event: event}, false) {
			g.sendError(conn, &poker.NotInRoomError{RoomID: event.RoomID})
		}

	default:
		g.sendError(conn, &poker.ValidationError{Field: "event type", Reason: "unknown intent " + string(event.Type)})
	}
}

func (g *Registry) handleJoinIntent(conn *Connection, event protocol.Event) {
	if event.RoomID == "" {
		g.sendError(conn, &poker.ValidationError{Field: "room id", Reason: "must not be empty"})
		return
	}

	var payload protocol.JoinPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil || payload.PlayerName == "" {
		g.sendError(conn, &poker.ValidationError{Field: "player name", Reason: "must not be empty"})
		return
	}

	if roomID, _ := conn.Binding(); roomID != "" {
		g.sendError(conn, &poker.ValidationError{Field: "join", Reason: "connection already joined room " + roomID})
		return
	}

	// Joining a previously-unknown room id creates the room.
	g.dispatch(event.RoomID, intent{conn: conn, event: event}, true)
}

// HandleDisconnect removes the player associated with a closed connection
// from their room, if any. Implements IntentHandler.
func (g *Registry) HandleDisconnect(conn *Connection) {
	roomID, _ := conn.Binding()
	if roomID == "" {
		return
	}
	g.dispatch(roomID, intent{conn: conn, disconnect: true}, false)
}

// dispatch queues an intent for a room actor, creating room and actor when
// create is set. It reports false if the room does not exist.
func (g *Registry) dispatch(roomID string, in intent, create bool) bool {
	g.mu.Lock()
	actor, ok := g.actors[roomID]
	if !ok {
		if !create {
			g.mu.Unlock()
			return false
		}
		actor = &roomActor{
			registry: g,
			room:     poker.NewRoom(roomID, g.clock.Now()),
			intents:  make(chan intent, intentQueueSize),
		}
		g.actors[roomID] = actor
		go actor.run()
		log.Info().Str("room_id", roomID).Msg("room created")
	}

	// Queue while holding the lock so a retiring actor always drains every
	// intent that was accepted for it.
	select {
	case actor.intents <- in:
	default:
		g.mu.Unlock()
		if in.conn != nil {
			g.sendError(in.conn, &poker.ValidationError{Field: "room", Reason: "room is busy"})
		}
		if in.snapshot != nil {
			close(in.snapshot)
		}
		return true
	}
	g.mu.Unlock()
	return true
}

// retire removes an emptied room from the registry. Evaluated synchronously
// after every membership-changing operation so empty rooms never leak.
func (g *Registry) retire(actor *roomActor) {
	g.mu.Lock()
	if g.actors[actor.room.ID] == actor {
		delete(g.actors, actor.room.ID)
	}
	g.mu.Unlock()
	log.Info().Str("room_id", actor.room.ID).Msg("room deleted")
}

// redispatch reroutes an intent that was queued on an actor as it retired. A
// join creates a fresh room under the same id; anything else targets a room
// that no longer exists.
func (g *Registry) redispatch(in intent) {
	switch {
	case in.disconnect:
		// The player was never in the fresh room; nothing to undo.
	case in.snapshot != nil:
		close(in.snapshot)
	case in.event.Type == protocol.EventTypeJoin:
		g.dispatch(in.event.RoomID, in, true)
	default:
		g.sendError(in.conn, &poker.NotInRoomError{RoomID: in.event.RoomID})
	}
}

// RoomExists reports whether a room id is currently live.
func (g *Registry) RoomExists(roomID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.actors[roomID]
	return ok
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.actors)
}

// AllocateRoomID returns a fresh short room code not currently in use. The
// room itself is created on first join.
func (g *Registry) AllocateRoomID() (string, error) {
	for {
		code, err := randomRoomCode()
		if err != nil {
			return "", err
		}
		if !g.RoomExists(code) {
			return code, nil
		}
	}
}

func randomRoomCode() (string, error) {
	buf := make([]byte, roomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf), nil
}

// Snapshot asks a room's actor for its current masked state. The second
// return value is false if the room does not exist.
func (g *Registry) Snapshot(roomID string) (protocol.PlayerListPayload, bool) {
	reply := make(chan protocol.PlayerListPayload, 1)
	if !g.dispatch(roomID, intent{snapshot: reply}, false) {
		return protocol.PlayerListPayload{}, false
	}
	payload, ok := <-reply
	return payload, ok
}

// sendError reports a rejected intent to its sender only. Rejections are
// always no-ops on canonical room state.
func (g *Registry) sendError(conn *Connection, cause error) {
	log.Debug().
		Err(cause).
		Str("connection_id", conn.ID).
		Msg("intent rejected")
	g.sendTo(conn, "", protocol.EventTypeError, protocol.ErrorPayload{Message: cause.Error()})
}

func (g *Registry) sendTo(conn *Connection, roomID string, eventType protocol.EventType, payload interface{}) {
	event, err := protocol.NewEvent(eventType, roomID, payload, g.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	g.manager.SendToConnection(conn, event)
}

func (g *Registry) broadcast(roomID string, eventType protocol.EventType, payload interface{}) {
	event, err := protocol.NewEvent(eventType, roomID, payload, g.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	g.manager.BroadcastToRoom(roomID, event)
}

// roomActor owns one poker.Room and applies its intents sequentially, in
// receipt order. Cross-sender interleaving on the queue is accepted
// non-determinism; per-sender order is preserved by the read pumps.
type roomActor struct {
	registry *Registry
	room     *poker.Room
	intents  chan intent
}

func (a *roomActor) run() {
	for in := range a.intents {
		a.handle(in)
		if a.room.Empty() {
			a.registry.retire(a)
			a.drain()
			return
		}
	}
}

// drain reroutes intents that were queued while the actor retired, then
// exits. After retire no new intents can be queued here.
func (a *roomActor) drain() {
	for {
		select {
		case in := <-a.intents:
			a.registry.redispatch(in)
		default:
			return
		}
	}
}

func (a *roomActor) handle(in intent) {
	switch {
	case in.disconnect:
		a.handleDisconnect(in)
	case in.snapshot != nil:
		in.snapshot <- listPayload(a.room)
	case in.event.Type == protocol.EventTypeJoin:
		a.handleJoin(in)
	case in.event.Type == protocol.EventTypeVote:
		a.handleVote(in)
	case in.event.Type == protocol.EventTypeReveal:
		a.handleReveal(in)
	case in.event.Type == protocol.EventTypeReset:
		a.handleReset(in)
	}
}

func (a *roomActor) handleJoin(in intent) {
	var payload protocol.JoinPayload
	if err := json.Unmarshal(in.event.Data, &payload); err != nil {
		a.registry.sendError(in.conn, &poker.ValidationError{Field: "join payload", Reason: "malformed"})
		return
	}

	player, err := a.room.AddPlayer(uuid.New().String(), payload.PlayerName, a.registry.clock.Now())
	if err != nil {
		a.registry.sendError(in.conn, err)
		return
	}

	if !a.registry.manager.BindToRoom(in.conn, a.room.ID, player.ID) {
		// Connection closed between upgrade and join, or raced a second
		// join; undo the membership just granted.
		a.room.RemovePlayer(player.ID)
		a.registry.sendError(in.conn, &poker.ValidationError{Field: "join", Reason: "connection already joined a room"})
		return
	}

	a.registry.sendTo(in.conn, a.room.ID, protocol.EventTypeJoined, protocol.JoinedPayload{
		PlayerID: player.ID,
		RoomID:   a.room.ID,
	})
	a.registry.broadcast(a.room.ID, protocol.EventTypePlayerListUpdate, listPayload(a.room))

	log.Info().
		Str("room_id", a.room.ID).
		Str("player_id", player.ID).
		Str("player_name", player.Name).
		Int("players", a.room.Size()).
		Msg("player joined")
}

func (a *roomActor) handleVote(in intent) {
	playerID, ok := a.member(in)
	if !ok {
		return
	}

	var payload protocol.VotePayload
	if err := json.Unmarshal(in.event.Data, &payload); err != nil {
		a.registry.sendError(in.conn, &poker.ValidationError{Field: "vote payload", Reason: "malformed"})
		return
	}

	if err := a.room.SetVote(playerID, payload.Vote, a.registry.deck); err != nil {
		a.registry.sendError(in.conn, err)
		return
	}

	// Broadcast that the player voted, not what they voted.
	a.registry.broadcast(a.room.ID, protocol.EventTypePlayerVoted, protocol.PlayerVotedPayload{PlayerID: playerID})

	log.Debug().
		Str("room_id", a.room.ID).
		Str("player_id", playerID).
		Msg("vote recorded")
}

func (a *roomActor) handleReveal(in intent) {
	if _, ok := a.member(in); !ok {
		return
	}

	a.room.Reveal()
	a.registry.broadcast(a.room.ID, protocol.EventTypeVotesRevealed, listPayload(a.room))

	log.Info().Str("room_id", a.room.ID).Msg("votes revealed")
}

func (a *roomActor) handleReset(in intent) {
	if _, ok := a.member(in); !ok {
		return
	}

	a.room.Reset()
	a.registry.broadcast(a.room.ID, protocol.EventTypeGameReset, listPayload(a.room))

	log.Info().Str("room_id", a.room.ID).Msg("game reset")
}

func (a *roomActor) handleDisconnect(in intent) {
	roomID, playerID := in.conn.Binding()
	if roomID != a.room.ID || playerID == "" {
		return
	}

	if !a.room.RemovePlayer(playerID) {
		return
	}

	log.Info().
		Str("room_id", a.room.ID).
		Str("player_id", playerID).
		Int("players", a.room.Size()).
		Msg("player disconnected")

	if !a.room.Empty() {
		a.registry.broadcast(a.room.ID, protocol.EventTypePlayerListUpdate, listPayload(a.room))
	}
}

// member resolves the sender to a player of this room, rejecting intents
// from non-members.
func (a *roomActor) member(in intent) (string, bool) {
	roomID, playerID := in.conn.Binding()
	if roomID != a.room.ID || playerID == "" || !a.room.HasPlayer(playerID) {
		a.registry.sendError(in.conn, &poker.NotInRoomError{RoomID: a.room.ID})
		return "", false
	}
	return playerID, true
}

// listPayload builds the wire form of a room's player list. Votes are masked
// until the room is revealed; real values never leave the coordinator while
// hidden.
func listPayload(room *poker.Room) protocol.PlayerListPayload {
	players := room.Players()
	entries := make([]protocol.PlayerEntry, 0, len(players))
	for _, p := range players {
		entry := protocol.PlayerEntry{
			ID:   p.ID,
			Name: p.Name,
			Vote: protocol.AbsentVote(),
		}
		switch {
		case p.Vote == nil:
		case room.Revealed:
			entry.Vote = protocol.NumericVote(*p.Vote)
		default:
			entry.Vote = protocol.MaskedVote()
		}
		entries = append(entries, entry)
	}
	return protocol.PlayerListPayload{Players: entries, Revealed: room.Revealed}
}
