package chess

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Replay rebuilds the game from the initial position by applying each SAN token in order.
// Tokens are matched exactly against generated SAN, the same rule used for user input.
func Replay(history []string) (*nchess.Game, error) {
	game := nchess.NewGame()
	for i, tok := range history {
		if err := applySAN(game, tok); err != nil {
			return nil, fmt.Errorf("%w: ply %d %q: %v", ErrIllegalHistory, i+1, tok, err)
		}
	}
	return game, nil
}

func IsCheckmate(game *nchess.Game) bool {
	return game != nil && game.Method() == nchess.Checkmate
}

// Placement returns the piece-placement field of a FEN, or "" when fen is blank.
func Placement(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// UCIMoves converts a replayed game's moves to UCI strings for the engine.
func UCIMoves(history []string) ([]string, error) {
	game := nchess.NewGame()
	uci := nchess.UCINotation{}
	out := make([]string, 0, len(history))
	for i, tok := range history {
		pos := game.Position()
		mv, err := findSAN(pos, tok)
		if err != nil {
			return nil, fmt.Errorf("%w: ply %d %q", ErrIllegalHistory, i+1, tok)
		}
		out = append(out, uci.Encode(pos, mv))
		if err := game.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("%w: ply %d %q: %v", ErrIllegalHistory, i+1, tok, err)
		}
	}
	return out, nil
}

// SANFromUCI converts an engine move in UCI form to SAN for the position after history.
func SANFromUCI(history []string, uciMove string) (string, error) {
	game, err := Replay(history)
	if err != nil {
		return "", err
	}
	pos := game.Position()
	want := strings.ToLower(strings.TrimSpace(uciMove))
	valid := pos.ValidMoves()
	uci := nchess.UCINotation{}
	for i := range valid {
		if uci.Encode(pos, &valid[i]) == want {
			return nchess.AlgebraicNotation{}.Encode(pos, &valid[i]), nil
		}
	}
	return "", fmt.Errorf("engine move %q is not legal after %d plies", uciMove, len(history))
}

func findSAN(pos *nchess.Position, token string) (*nchess.Move, error) {
	valid := pos.ValidMoves()
	notation := nchess.AlgebraicNotation{}
	for i := range valid {
		if notation.Encode(pos, &valid[i]) == token {
			mv := valid[i]
			return &mv, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidMove, token)
}
