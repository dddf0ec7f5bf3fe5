package chess

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	nchess "github.com/corentings/chess/v2"
)

func TestReplayRandomLegalGames(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		game := nchess.NewGame()
		var history []string
		for ply := 0; ply < 60 && game.Outcome() == nchess.NoOutcome; ply++ {
			moves := LegalMoves(game.Position())
			if len(moves) == 0 {
				break
			}
			pick := moves[r.Intn(len(moves))]
			if err := applySAN(game, pick); err != nil {
				t.Fatalf("apply generated move %s: %v", pick, err)
			}
			history = append(history, pick)
		}

		replayed, err := Replay(history)
		if err != nil {
			t.Fatalf("replay of legal history %v failed: %v", history, err)
		}
		if replayed.FEN() != game.FEN() {
			t.Fatalf("replayed FEN %s differs from %s", replayed.FEN(), game.FEN())
		}
	}
}

func TestReplayRejectsIllegalToken(t *testing.T) {
	_, err := Replay([]string{"e4", "e5", "Ke3"})
	if !errors.Is(err, ErrIllegalHistory) {
		t.Fatalf("expected ErrIllegalHistory, got %v", err)
	}
}

func TestIsCheckmateAndPlacement(t *testing.T) {
	game, err := Replay([]string{"f3", "e5", "g4", "Qh4#"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !IsCheckmate(game) {
		t.Fatalf("expected fool's mate to be checkmate")
	}

	start, _ := Replay(nil)
	if IsCheckmate(start) {
		t.Fatalf("start position is not checkmate")
	}
	if got := Placement(start.FEN()); got != "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR" {
		t.Fatalf("unexpected placement %q", got)
	}
	if got := Placement("  "); got != "" {
		t.Fatalf("blank fen placement = %q", got)
	}
}

func TestUCIMovesAndBack(t *testing.T) {
	history := []string{"e4", "e5", "Nf3", "Nc6", "Bb5", "a6", "O-O"}
	uci, err := UCIMoves(history)
	if err != nil {
		t.Fatalf("uci moves: %v", err)
	}
	want := []string{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "a7a6", "e1g1"}
	if !reflect.DeepEqual(uci, want) {
		t.Fatalf("expected %v, got %v", want, uci)
	}

	san, err := SANFromUCI(history[:6], "e1g1")
	if err != nil {
		t.Fatalf("san from uci: %v", err)
	}
	if san != "O-O" {
		t.Fatalf("expected O-O, got %q", san)
	}
	if _, err := SANFromUCI(nil, "e2e5"); err == nil {
		t.Fatalf("expected illegal engine move to fail")
	}
}
