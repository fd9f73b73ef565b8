package protocol

import (
	"encoding/json"
	"fmt"
)

// JoinPayload is the payload for a join intent. The target room travels in
// the envelope's room_id.
type JoinPayload struct {
	PlayerName string `json:"player_name"`
}

// VotePayload is the payload for a vote intent.
type VotePayload struct {
	Vote float64 `json:"vote"`
}

// JoinedPayload acknowledges a successful join to the requesting connection
// only, carrying the coordinator-assigned player id so the client can
// recognize itself in later list broadcasts.
type JoinedPayload struct {
	PlayerID string `json:"player_id"`
	RoomID   string `json:"room_id"`
}

// PlayerEntry is one player in a list broadcast, in join order.
type PlayerEntry struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Vote VoteField `json:"vote"`
}

// PlayerListPayload is the payload for player_list_update, votes_revealed and
// game_reset. Clients replace their projection wholesale with it.
type PlayerListPayload struct {
	Players  []PlayerEntry `json:"players"`
	Revealed bool          `json:"revealed"`
}

// PlayerVotedPayload notifies that a player cast a vote, without its value.
type PlayerVotedPayload struct {
	PlayerID string `json:"player_id"`
}

// ErrorPayload carries a rejected intent's message back to its sender.
type ErrorPayload struct {
	Message string `json:"message"`
}

// hiddenMarker is the wire form of a masked vote. The coordinator masks
// before a reveal; real values never leave it while votes are hidden.
const hiddenMarker = `"hidden"`

// VoteField is the wire form of a player's vote: null when no vote was cast,
// the string "hidden" when a vote exists but the room is not revealed, or the
// numeric value once revealed.
type VoteField struct {
	Masked bool
	Value  *float64
}

// AbsentVote is a vote field for a player who has not voted.
func AbsentVote() VoteField { return VoteField{} }

// MaskedVote is a vote field hiding an existing vote.
func MaskedVote() VoteField { return VoteField{Masked: true} }

// NumericVote is a revealed vote field.
func NumericVote(v float64) VoteField { return VoteField{Value: &v} }

func (v VoteField) MarshalJSON() ([]byte, error) {
	if v.Masked {
		return []byte(hiddenMarker), nil
	}
	if v.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*v.Value)
}

func (v *VoteField) UnmarshalJSON(data []byte) error {
	switch {
	case string(data) == "null":
		*v = VoteField{}
		return nil
	case string(data) == hiddenMarker:
		*v = VoteField{Masked: true}
		return nil
	default:
		var value float64
		if err := json.Unmarshal(data, &value); err != nil {
			return fmt.Errorf("vote must be null, %s or a number: %w", hiddenMarker, err)
		}
		*v = VoteField{Value: &value}
		return nil
	}
}
