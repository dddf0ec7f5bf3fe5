package game

import (
	"strings"
	"unicode"
)

// Command is the class of an inbound mention. Earlier commands take priority.
type Command int

const (
	CommandResign Command = iota
	CommandErrorReport
	CommandListMoves
	CommandShowHistory
	CommandNoSession
	CommandStart
	CommandContinue
)

const (
	tagResign        = "#resign"
	tagError         = "#error"
	tagPossibleMoves = "#possiblemoves"
	tagGetPGN        = "#getpgn"
	tagStartGame     = "#startgame"
)

func (c Command) String() string {
	switch c {
	case CommandResign:
		return "resign"
	case CommandErrorReport:
		return "error_report"
	case CommandListMoves:
		return "list_moves"
	case CommandShowHistory:
		return "show_history"
	case CommandNoSession:
		return "no_session"
	case CommandStart:
		return "start"
	case CommandContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// Classify picks the command for text. Hashtags match as case-insensitive substrings.
func Classify(text string, hasSession bool) Command {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, tagResign):
		return CommandResign
	case strings.Contains(lower, tagError):
		return CommandErrorReport
	case strings.Contains(lower, tagPossibleMoves):
		return CommandListMoves
	case strings.Contains(lower, tagGetPGN):
		return CommandShowHistory
	case !hasSession && !strings.Contains(lower, tagStartGame):
		return CommandNoSession
	case strings.Contains(lower, tagStartGame):
		return CommandStart
	default:
		return CommandContinue
	}
}

// ExtractMove returns the text after "<marker> " up to the next hashtag, trimmed.
// A '#' not followed by a letter is a mate sign and stays in the move.
func ExtractMove(text, marker string) string {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return ""
	}
	idx := strings.Index(text, marker+" ")
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(marker)+1:]
	for i, r := range rest {
		if r != '#' {
			continue
		}
		next := rest[i+1:]
		if next == "" {
			break
		}
		if r2 := []rune(next)[0]; unicode.IsLetter(r2) {
			rest = rest[:i]
			break
		}
	}
	return strings.TrimSpace(rest)
}
