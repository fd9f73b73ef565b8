package client

import (
	"math"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/mlowery/pointdeck/internal/protocol"
)

// PlayerView is one player as last broadcast by the coordinator.
type PlayerView struct {
	ID    string
	Name  string
	Voted bool
	Vote  *float64
}

// Session is the participant's local projection of one room. Players and
// Revealed are always replaced wholesale by the latest broadcast, never
// merged field-by-field; the coordinator is always right.
//
// SelfVote is the one exception: it is a local-only optimistic echo of the
// vote this participant just sent, kept separate from broadcast state so the
// masked player_voted notification cannot clobber it. Only a reveal, reset
// or disconnect clears it.
type Session struct {
	Connected bool
	RoomID    string
	SelfID    string
	SelfName  string
	Players   []PlayerView
	Revealed  bool
	SelfVote  *float64
}

// apply updates the projection with one coordinator event and reports
// whether the projection changed.
func (s *Session) apply(event protocol.Event) bool {
	payload, err := protocol.ParseEventPayload(&event)
	if err != nil {
		log.Debug().Err(err).Str("event_type", string(event.Type)).Msg("malformed coordinator event")
		return false
	}

	switch event.Type {
	case protocol.EventTypeJoined:
		joined := payload.(protocol.JoinedPayload)
		s.SelfID = joined.PlayerID
		s.RoomID = joined.RoomID
		return true

	case protocol.EventTypePlayerListUpdate:
		s.replacePlayers(payload.(protocol.PlayerListPayload))
		return true

	case protocol.EventTypePlayerVoted:
		voted := payload.(protocol.PlayerVotedPayload)
		for i := range s.Players {
			if s.Players[i].ID == voted.PlayerID {
				s.Players[i].Voted = true
				return true
			}
		}
		return false

	case protocol.EventTypeVotesRevealed:
		list := payload.(protocol.PlayerListPayload)
		list.Revealed = true
		s.replacePlayers(list)
		return true

	case protocol.EventTypeGameReset:
		list := payload.(protocol.PlayerListPayload)
		list.Revealed = false
		s.replacePlayers(list)
		// Canonical state has reverted; the optimistic echo goes with it.
		s.SelfVote = nil
		return true

	default:
		return false
	}
}

// replacePlayers overwrites the player list and revealed flag wholesale.
func (s *Session) replacePlayers(payload protocol.PlayerListPayload) {
	players := make([]PlayerView, 0, len(payload.Players))
	for _, entry := range payload.Players {
		view := PlayerView{
			ID:    entry.ID,
			Name:  entry.Name,
			Voted: entry.Vote.Masked || entry.Vote.Value != nil,
		}
		if entry.Vote.Value != nil {
			v := *entry.Vote.Value
			view.Vote = &v
		}
		players = append(players, view)
	}
	s.Players = players
	s.Revealed = payload.Revealed
}

// invalidate clears all room state on transport disconnect; the coordinator
// has forgotten this participant too.
func (s *Session) invalidate() {
	s.Connected = false
	s.RoomID = ""
	s.SelfID = ""
	s.Players = nil
	s.Revealed = false
	s.SelfVote = nil
}

// Average returns the mean of all numeric votes in the projection, rounded
// to one fractional digit, as a display string. Masked and absent votes are
// excluded; "0" when no numeric votes exist. Meaningful once Revealed.
func (s *Session) Average() string {
	var sum float64
	count := 0
	for _, p := range s.Players {
		if p.Vote != nil {
			sum += *p.Vote
			count++
		}
	}
	if count == 0 {
		return "0"
	}
	avg := math.Round(sum/float64(count)*10) / 10
	return strconv.FormatFloat(avg, 'f', -1, 64)
}
