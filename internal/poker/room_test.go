package poker

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestJoinOrderPreserved(t *testing.T) {
	now := time.Now()
	room := NewRoom("R1", now)

	names := []string{"alice", "bob", "carol", "dave"}
	for i, name := range names {
		if _, err := room.AddPlayer(string(rune('a'+i)), name, now); err != nil {
			t.Fatalf("AddPlayer(%s) failed: %v", name, err)
		}
	}

	players := room.Players()
	if len(players) != len(names) {
		t.Fatalf("expected %d players, got %d", len(names), len(players))
	}
	var got []string
	for _, p := range players {
		got = append(got, p.Name)
		if p.Vote != nil {
			t.Errorf("player %s joined with a vote already cast", p.Name)
		}
	}
	if diff := cmp.Diff(names, got); diff != "" {
		t.Errorf("join order mismatch (-want +got):\n%s", diff)
	}
}

func TestAddPlayerEmptyName(t *testing.T) {
	room := NewRoom("R1", time.Now())

	_, err := room.AddPlayer("p1", "", time.Now())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if room.Size() != 0 {
		t.Errorf("rejected join mutated the room: %d players", room.Size())
	}
}

func TestSetVote(t *testing.T) {
	deck := DefaultDeck()

	tests := []struct {
		name     string
		playerID string
		vote     float64
		reveal   bool
		wantErr  interface{}
	}{
		{name: "valid vote", playerID: "p1", vote: 5},
		{name: "overwrite is allowed", playerID: "p1", vote: 8},
		{name: "unknown player", playerID: "ghost", vote: 5, wantErr: &NotInRoomError{}},
		{name: "value outside deck", playerID: "p1", vote: 7, wantErr: &InvalidVoteError{}},
		{name: "vote after reveal", playerID: "p1", vote: 5, reveal: true, wantErr: &InvalidVoteError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := NewRoom("R1", time.Now())
			if _, err := room.AddPlayer("p1", "alice", time.Now()); err != nil {
				t.Fatal(err)
			}
			if tt.reveal {
				room.Reveal()
			}
			before := room.Players()

			err := room.SetVote(tt.playerID, tt.vote, deck)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("SetVote failed: %v", err)
				}
				got := room.Players()[0].Vote
				if got == nil || *got != tt.vote {
					t.Errorf("vote not recorded, got %v", got)
				}
				return
			}

			if err == nil {
				t.Fatal("expected an error")
			}
			switch tt.wantErr.(type) {
			case *NotInRoomError:
				var target *NotInRoomError
				if !errors.As(err, &target) {
					t.Errorf("expected NotInRoomError, got %v", err)
				}
			case *InvalidVoteError:
				var target *InvalidVoteError
				if !errors.As(err, &target) {
					t.Errorf("expected InvalidVoteError, got %v", err)
				}
			}
			// A rejected vote must leave canonical state untouched.
			if diff := cmp.Diff(before, room.Players()); diff != "" {
				t.Errorf("rejected vote mutated the room (-before +after):\n%s", diff)
			}
		})
	}
}

func TestRevealIdempotent(t *testing.T) {
	room := NewRoom("R1", time.Now())
	room.AddPlayer("p1", "alice", time.Now())
	room.SetVote("p1", 5, DefaultDeck())

	room.Reveal()
	after := room.Players()

	room.Reveal()
	if !room.Revealed {
		t.Error("second reveal flipped the revealed flag")
	}
	if diff := cmp.Diff(after, room.Players()); diff != "" {
		t.Errorf("second reveal changed canonical state (-first +second):\n%s", diff)
	}
}

func TestResetIdempotent(t *testing.T) {
	room := NewRoom("R1", time.Now())
	room.AddPlayer("p1", "alice", time.Now())
	room.AddPlayer("p2", "bob", time.Now())
	room.SetVote("p1", 5, DefaultDeck())
	room.SetVote("p2", 13, DefaultDeck())
	room.Reveal()

	for i := 0; i < 3; i++ {
		room.Reset()
		if room.Revealed {
			t.Fatalf("reset %d left the room revealed", i)
		}
		for _, p := range room.Players() {
			if p.Vote != nil {
				t.Fatalf("reset %d left a vote for %s", i, p.Name)
			}
		}
	}
}

func TestRemovePlayer(t *testing.T) {
	room := NewRoom("R1", time.Now())
	room.AddPlayer("p1", "alice", time.Now())
	room.AddPlayer("p2", "bob", time.Now())

	if !room.RemovePlayer("p1") {
		t.Fatal("RemovePlayer returned false for a member")
	}
	if room.RemovePlayer("p1") {
		t.Error("RemovePlayer returned true for an already-removed player")
	}
	players := room.Players()
	if len(players) != 1 || players[0].Name != "bob" {
		t.Errorf("unexpected players after removal: %+v", players)
	}
	if room.Empty() {
		t.Error("room with one player reported empty")
	}

	room.RemovePlayer("p2")
	if !room.Empty() {
		t.Error("room with zero players not reported empty")
	}
}

func TestPlayersSnapshotIsolated(t *testing.T) {
	room := NewRoom("R1", time.Now())
	room.AddPlayer("p1", "alice", time.Now())
	room.SetVote("p1", 5, DefaultDeck())

	snap := room.Players()
	*snap[0].Vote = 100

	if got := room.Players()[0].Vote; *got != 5 {
		t.Errorf("snapshot mutation leaked into canonical state: %v", *got)
	}
}
