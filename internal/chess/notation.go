package chess

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrInvalidMove       = errors.New("invalid move")
	ErrIllegalHistory    = errors.New("stored history cannot be replayed")
	ErrEngineUnavailable = errors.New("engine unavailable")
)

// LegalMoves lists every legal move in pos as SAN, check and mate suffixes included.
func LegalMoves(pos *nchess.Position) []string {
	if pos == nil {
		return nil
	}
	valid := pos.ValidMoves()
	notation := nchess.AlgebraicNotation{}
	out := make([]string, 0, len(valid))
	for i := range valid {
		out = append(out, notation.Encode(pos, &valid[i]))
	}
	return out
}

// ValidateAndApply returns history extended by candidate when candidate is one of the
// legal SAN strings of the replayed position. The input slice is never modified.
func ValidateAndApply(history []string, candidate string) ([]string, error) {
	game, err := Replay(history)
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(candidate)
	if token == "" {
		return nil, fmt.Errorf("%w: empty move", ErrInvalidMove)
	}
	if err := applySAN(game, token); err != nil {
		return nil, err
	}
	next := make([]string, 0, len(history)+1)
	next = append(next, history...)
	return append(next, token), nil
}

// Serialize joins tokens with single spaces and leaves a trailing space, the flat store format.
func Serialize(history []string) string {
	if len(history) == 0 {
		return ""
	}
	return strings.Join(history, " ") + " "
}

func Deserialize(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// ChunkForTransport packs whitespace-separated tokens into pieces of at most limit
// characters, each token followed by one space. A token longer than limit gets a piece
// of its own; tokens are never split or dropped.
func ChunkForTransport(text string, limit int) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}
	if limit <= 0 {
		return []string{strings.Join(tokens, " ") + " "}
	}

	var (
		chunks []string
		b      strings.Builder
	)
	for _, tok := range tokens {
		if b.Len() > 0 && b.Len()+len(tok)+1 > limit {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		b.WriteString(tok)
		b.WriteByte(' ')
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}

// applySAN plays token on game when it exactly matches a generated legal SAN string.
func applySAN(game *nchess.Game, token string) error {
	mv, err := findSAN(game.Position(), token)
	if err != nil {
		return err
	}
	if err := game.Move(mv, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMove, token, err)
	}
	return nil
}
