package poker

import "fmt"

// ValidationError indicates a malformed or empty identifier in an intent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotInRoomError indicates an intent from a connection that is not a member
// of the room it targets.
type NotInRoomError struct {
	RoomID string
}

func (e *NotInRoomError) Error() string {
	return fmt.Sprintf("not a member of room %s", e.RoomID)
}

// InvalidVoteError indicates a vote value outside the deck, or a vote cast
// after the room was revealed.
type InvalidVoteError struct {
	Vote   float64
	Reason string
}

func (e *InvalidVoteError) Error() string {
	return fmt.Sprintf("invalid vote %v: %s", e.Vote, e.Reason)
}
