package poker

import (
	"time"
)

// Player is one participant in a room. The canonical vote is always either
// nil (no vote cast) or a real deck value; masking is a wire-level concern.
type Player struct {
	ID       string
	Name     string
	Vote     *float64
	JoinedAt time.Time
}

// Room is the canonical, coordinator-owned state of one estimation session.
// A Room is not safe for concurrent use; the owning actor serializes access.
type Room struct {
	ID        string
	Revealed  bool
	CreatedAt time.Time

	players map[string]*Player
	order   []string
}

// NewRoom creates an empty room.
func NewRoom(id string, now time.Time) *Room {
	return &Room{
		ID:        id,
		CreatedAt: now,
		players:   make(map[string]*Player),
	}
}

// AddPlayer adds a new player with no vote cast. Join order is preserved for
// stable display order. The player name must be non-empty.
func (r *Room) AddPlayer(id, name string, now time.Time) (*Player, error) {
	if name == "" {
		return nil, &ValidationError{Field: "player name", Reason: "must not be empty"}
	}

	player := &Player{
		ID:       id,
		Name:     name,
		JoinedAt: now,
	}
	r.players[id] = player
	r.order = append(r.order, id)
	return player, nil
}

// RemovePlayer removes a player by id, reporting whether they were a member.
func (r *Room) RemovePlayer(id string) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// HasPlayer reports whether the given player id is a member of the room.
func (r *Room) HasPlayer(id string) bool {
	_, ok := r.players[id]
	return ok
}

// SetVote records a vote for a player. A second vote from the same player
// overwrites the first. Voting is rejected once the room is revealed; the
// reveal freezes the round until a reset.
func (r *Room) SetVote(playerID string, vote float64, deck Deck) error {
	if _, ok := r.players[playerID]; !ok {
		return &NotInRoomError{RoomID: r.ID}
	}
	if r.Revealed {
		return &InvalidVoteError{Vote: vote, Reason: "votes are already revealed"}
	}
	if !deck.Contains(vote) {
		return &InvalidVoteError{Vote: vote, Reason: "not in the estimate deck"}
	}

	v := vote
	r.players[playerID].Vote = &v
	return nil
}

// Reveal makes all votes visible. Revealing an already-revealed room is a
// no-op, tolerating duplicate clicks and duplicate delivery.
func (r *Room) Reveal() {
	r.Revealed = true
}

// Reset clears every vote and starts a new round. Idempotent.
func (r *Room) Reset() {
	r.Revealed = false
	for _, p := range r.players {
		p.Vote = nil
	}
}

// Empty reports whether the room has no players and is eligible for removal
// from the registry.
func (r *Room) Empty() bool {
	return len(r.players) == 0
}

// Size returns the number of players in the room.
func (r *Room) Size() int {
	return len(r.players)
}

// Players returns a snapshot of all players in join order. Vote pointers are
// copied so callers cannot mutate canonical state.
func (r *Room) Players() []Player {
	out := make([]Player, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		snap := Player{
			ID:       p.ID,
			Name:     p.Name,
			JoinedAt: p.JoinedAt,
		}
		if p.Vote != nil {
			v := *p.Vote
			snap.Vote = &v
		}
		out = append(out, snap)
	}
	return out
}
