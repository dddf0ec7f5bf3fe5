package game

import (
	"context"
	"errors"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/archive"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/chess"
	"go.uber.org/zap"
)

// play handles Start and Continue. history is the session's moves before this
// mention, empty for a fresh start.
func (t *turn) play(ctx context.Context, history []string, start bool) ([]Post, error) {
	current, err := chess.Replay(history)
	if err != nil {
		return t.brokenGame(err)
	}

	move := ExtractMove(t.mention.Text, t.svc.cfg.MoveMarker)
	switch {
	case move != "":
		return t.userMove(ctx, history, move)
	case start:
		// The user takes black and the engine opens.
		return t.botMove(ctx, history, history)
	default:
		if err := t.add("reply.need_move", nil, fenOf(current)); err != nil {
			return nil, err
		}
		t.commit(history)
		return t.posts, nil
	}
}

func (t *turn) userMove(ctx context.Context, history []string, move string) ([]Post, error) {
	next, err := chess.ValidateAndApply(history, move)
	switch {
	case errors.Is(err, chess.ErrIllegalHistory):
		return t.brokenGame(err)
	case err != nil:
		t.log.Info("user_move_rejected", zap.String("move", move))
		current, _ := chess.Replay(history)
		if err := t.add("reply.invalid_move", nil, fenOf(current)); err != nil {
			return nil, err
		}
		t.commit(history)
		return t.posts, nil
	}

	game, err := chess.Replay(next)
	if err != nil {
		return t.brokenGame(err)
	}
	t.log.Info("user_move_applied", zap.String("move", move), zap.Int("ply", len(next)))

	if chess.IsCheckmate(game) {
		if err := t.add("reply.user_mated", nil, game.FEN()); err != nil {
			return nil, err
		}
		t.sessions.Remove(t.username)
		if err := t.gameOver(ctx, archive.NewCheckmate(t.username, next, true)); err != nil {
			return nil, err
		}
		return t.posts, nil
	}
	return t.botMove(ctx, history, next)
}

// botMove asks the engine to move after next. On engine failure the session falls
// back to before, discarding any user move made this turn.
func (t *turn) botMove(ctx context.Context, before, next []string) ([]Post, error) {
	reply, err := t.svc.engine.BestMove(ctx, next, t.svc.cfg.ThinkTime)
	if err != nil {
		t.log.Error("engine_move_failed", zap.Int("ply", len(next)+1), zap.Error(err))
		current, _ := chess.Replay(before)
		if err := t.add("reply.engine_unavailable", nil, fenOf(current)); err != nil {
			return nil, err
		}
		t.commit(before)
		return t.posts, nil
	}

	after, err := chess.ValidateAndApply(next, reply)
	if err != nil {
		t.log.Error("engine_move_rejected", zap.String("move", reply), zap.Error(err))
		current, _ := chess.Replay(before)
		if err := t.add("reply.engine_unavailable", nil, fenOf(current)); err != nil {
			return nil, err
		}
		t.commit(before)
		return t.posts, nil
	}
	game, err := chess.Replay(after)
	if err != nil {
		return t.brokenGame(err)
	}

	data := map[string]any{"Move": reply}
	if chess.IsCheckmate(game) {
		if err := t.add("reply.bot_mated", data, game.FEN()); err != nil {
			return nil, err
		}
		t.sessions.Remove(t.username)
		if err := t.gameOver(ctx, archive.NewCheckmate(t.username, after, false)); err != nil {
			return nil, err
		}
		return t.posts, nil
	}

	if err := t.add("reply.bot_move", data, game.FEN()); err != nil {
		return nil, err
	}
	t.commit(after)
	return t.posts, nil
}
