package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrDuplicateGame = errors.New("finished game already archived")

const (
	MethodCheckmate   = "checkmate"
	MethodResignation = "resignation"

	ColorWhite = "white"
	ColorBlack = "black"

	engineName = "Stockfish"
)

// FinishedGame is a completed bot game. Result uses PGN tokens ("1-0", "0-1").
type FinishedGame struct {
	ID         uuid.UUID
	Username   string
	UserColor  string
	History    []string
	Result     string
	Method     string
	PGN        string
	FinishedAt time.Time
}

type Archive interface {
	Record(ctx context.Context, game FinishedGame) error
	Recent(ctx context.Context, username string, limit int) ([]FinishedGame, error)
}

// NewCheckmate describes a game ended by the last move in history, played by the
// user when byUser is set. The side that made that move wins.
func NewCheckmate(username string, history []string, byUser bool) FinishedGame {
	whiteMoved := len(history)%2 == 1
	result := "0-1"
	if whiteMoved {
		result = "1-0"
	}
	userColor := ColorBlack
	if whiteMoved == byUser {
		userColor = ColorWhite
	}
	return newGame(username, userColor, history, result, MethodCheckmate)
}

// NewResignation describes the user resigning. The user is always the side to move.
func NewResignation(username string, history []string) FinishedGame {
	userColor, result := ColorWhite, "0-1"
	if len(history)%2 == 1 {
		userColor, result = ColorBlack, "1-0"
	}
	return newGame(username, userColor, history, result, MethodResignation)
}

func newGame(username, userColor string, history []string, result, method string) FinishedGame {
	g := FinishedGame{
		ID:         uuid.New(),
		Username:   username,
		UserColor:  userColor,
		History:    append([]string(nil), history...),
		Result:     result,
		Method:     method,
		FinishedAt: time.Now().UTC(),
	}
	g.PGN = BuildPGN(g)
	return g
}

// BuildPGN renders the game with a seven-tag roster and numbered movetext.
func BuildPGN(g FinishedGame) string {
	date := g.FinishedAt
	if date.IsZero() {
		date = time.Now()
	}
	white, black := sanitizePGN(g.Username), engineName
	if g.UserColor == ColorBlack {
		white, black = engineName, sanitizePGN(g.Username)
	}
	result := g.Result
	if result == "" {
		result = "*"
	}

	var b strings.Builder
	b.WriteString("[Event \"Chess Bot Game\"]\n")
	b.WriteString("[Site \"?\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString("[Round \"-\"]\n")
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", white))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", black))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n", result))
	if m := strings.TrimSpace(g.Method); m != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(m)))
	}
	b.WriteString("\n")

	for i := 0; i < len(g.History); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(g.History[i])))
		if i+1 < len(g.History) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(g.History[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse game id %q: %w", s, err)
	}
	return id, nil
}
