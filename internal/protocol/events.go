package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every message on the session channel, in both
// directions. Data carries the type-specific payload.
type Event struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id,omitempty"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventType names a protocol message.
type EventType string

// Client -> coordinator intents.
const (
	EventTypeJoin   EventType = "join"
	EventTypeVote   EventType = "vote"
	EventTypeReveal EventType = "reveal"
	EventTypeReset  EventType = "reset"
)

// Coordinator -> client messages. Joined and Error go only to the
// originating connection; the rest are room-scoped broadcasts.
const (
	EventTypeJoined           EventType = "joined"
	EventTypePlayerListUpdate EventType = "player_list_update"
	EventTypePlayerVoted      EventType = "player_voted"
	EventTypeVotesRevealed    EventType = "votes_revealed"
	EventTypeGameReset        EventType = "game_reset"
	EventTypeError            EventType = "error"
)

// NewEvent builds an event envelope with a marshaled payload.
func NewEvent(eventType EventType, roomID string, payload interface{}, now time.Time) (Event, error) {
	event := Event{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: now,
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		event.Data = data
	}
	return event, nil
}

// ParseEventPayload parses event data into the appropriate payload struct.
func ParseEventPayload(event *Event) (interface{}, error) {
	switch event.Type {
	case EventTypeJoin:
		var payload JoinPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeVote:
		var payload VotePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeReveal, EventTypeReset:
		return nil, nil // No payload beyond the room id.

	case EventTypeJoined:
		var payload JoinedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypePlayerListUpdate, EventTypeVotesRevealed, EventTypeGameReset:
		var payload PlayerListPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypePlayerVoted:
		var payload PlayerVotedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeError:
		var payload ErrorPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type %q", event.Type)
	}
}
