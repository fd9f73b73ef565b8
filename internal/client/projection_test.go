package client

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mlowery/pointdeck/internal/protocol"
)

func mustEvent(t *testing.T, eventType protocol.EventType, payload interface{}) protocol.Event {
	t.Helper()
	event, err := protocol.NewEvent(eventType, "R1", payload, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return event
}

func TestApplyReplacesWholesale(t *testing.T) {
	sess := Session{
		Connected: true,
		RoomID:    "R1",
		Players: []PlayerView{
			{ID: "stale", Name: "ghost", Voted: true},
		},
	}

	sess.apply(mustEvent(t, protocol.EventTypePlayerListUpdate, protocol.PlayerListPayload{
		Players: []protocol.PlayerEntry{
			{ID: "a", Name: "alice", Vote: protocol.MaskedVote()},
			{ID: "b", Name: "bob", Vote: protocol.AbsentVote()},
		},
	}))

	want := []PlayerView{
		{ID: "a", Name: "alice", Voted: true},
		{ID: "b", Name: "bob"},
	}
	if diff := cmp.Diff(want, sess.Players); diff != "" {
		t.Errorf("players not replaced wholesale (-want +got):\n%s", diff)
	}
}

func TestApplyJoinedAck(t *testing.T) {
	sess := Session{Connected: true}

	sess.apply(mustEvent(t, protocol.EventTypeJoined, protocol.JoinedPayload{
		PlayerID: "p1", RoomID: "R1",
	}))

	if sess.SelfID != "p1" || sess.RoomID != "R1" {
		t.Errorf("joined ack not applied: %+v", sess)
	}
}

func TestPlayerVotedKeepsOptimisticSelection(t *testing.T) {
	v := 5.0
	sess := Session{
		Connected: true,
		RoomID:    "R1",
		SelfID:    "a",
		SelfVote:  &v,
		Players: []PlayerView{
			{ID: "a", Name: "alice"},
			{ID: "b", Name: "bob"},
		},
	}

	// The masked notification for this player's own vote must not clobber
	// the local optimistic selection.
	sess.apply(mustEvent(t, protocol.EventTypePlayerVoted, protocol.PlayerVotedPayload{PlayerID: "a"}))

	if sess.SelfVote == nil || *sess.SelfVote != 5 {
		t.Errorf("optimistic vote lost: %v", sess.SelfVote)
	}
	if !sess.Players[0].Voted {
		t.Error("voted flag not set for alice")
	}
	if sess.Players[1].Voted {
		t.Error("voted flag leaked to bob")
	}
}

func TestRevealThenResetRound(t *testing.T) {
	v := 5.0
	sess := Session{Connected: true, RoomID: "R1", SelfID: "a", SelfVote: &v}

	sess.apply(mustEvent(t, protocol.EventTypeVotesRevealed, protocol.PlayerListPayload{
		Players: []protocol.PlayerEntry{
			{ID: "a", Name: "alice", Vote: protocol.NumericVote(5)},
			{ID: "b", Name: "bob", Vote: protocol.NumericVote(8)},
		},
		Revealed: true,
	}))

	if !sess.Revealed {
		t.Fatal("votes_revealed did not set the revealed flag")
	}
	if got := sess.Average(); got != "6.5" {
		t.Errorf("Average() = %q, want 6.5", got)
	}

	sess.apply(mustEvent(t, protocol.EventTypeGameReset, protocol.PlayerListPayload{
		Players: []protocol.PlayerEntry{
			{ID: "a", Name: "alice", Vote: protocol.AbsentVote()},
			{ID: "b", Name: "bob", Vote: protocol.AbsentVote()},
		},
	}))

	if sess.Revealed {
		t.Error("game_reset left the session revealed")
	}
	if sess.SelfVote != nil {
		t.Error("game_reset did not clear the optimistic vote")
	}
	if got := sess.Average(); got != "0" {
		t.Errorf("Average() after reset = %q, want 0", got)
	}
}

func TestAverage(t *testing.T) {
	vote := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		players []PlayerView
		want    string
	}{
		{
			name: "rounds to one decimal",
			players: []PlayerView{
				{Vote: vote(3)}, {Vote: vote(5)}, {Vote: vote(8)},
			},
			want: "5.3",
		},
		{
			name: "non-numeric votes excluded",
			players: []PlayerView{
				{Vote: vote(5)}, {Vote: vote(8)}, {Voted: true}, {},
			},
			want: "6.5",
		},
		{name: "no players", want: "0"},
		{
			name:    "no numeric votes",
			players: []PlayerView{{Voted: true}, {}},
			want:    "0",
		},
		{
			name:    "whole number renders without fraction",
			players: []PlayerView{{Vote: vote(5)}, {Vote: vote(5)}},
			want:    "5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := Session{Players: tt.players}
			if got := sess.Average(); got != tt.want {
				t.Errorf("Average() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInvalidate(t *testing.T) {
	v := 5.0
	sess := Session{
		Connected: true,
		RoomID:    "R1",
		SelfID:    "a",
		SelfName:  "alice",
		Revealed:  true,
		SelfVote:  &v,
		Players:   []PlayerView{{ID: "a", Name: "alice"}},
	}

	sess.invalidate()

	// The projection holds no room state while disconnected; the
	// coordinator has forgotten this participant too.
	if sess.Connected || sess.RoomID != "" || sess.SelfID != "" ||
		sess.Players != nil || sess.Revealed || sess.SelfVote != nil {
		t.Errorf("invalidate left state behind: %+v", sess)
	}
	if sess.SelfName != "alice" {
		t.Error("invalidate should keep the display name for rejoining")
	}
}
