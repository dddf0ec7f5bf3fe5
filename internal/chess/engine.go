package chess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/chess/uci"
	"go.uber.org/zap"
)

const defaultTimeoutGrace = 5 * time.Second

type EngineConfig struct {
	BinaryPath   string
	Threads      int
	HashMB       int
	TimeoutGrace time.Duration
}

// Engine turns a SAN history into the engine's SAN reply.
type Engine struct {
	pool   *uci.Pool
	grace  time.Duration
	logger *zap.Logger
}

func NewEngine(cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.BinaryPath,
		Options:    uci.Options{Threads: cfg.Threads, HashMB: cfg.HashMB},
		Capacity:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return NewEngineWithPool(pool, cfg.TimeoutGrace, logger), nil
}

func NewEngineWithPool(pool *uci.Pool, grace time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if grace <= 0 {
		grace = defaultTimeoutGrace
	}
	return &Engine{pool: pool, grace: grace, logger: logger}
}

// BestMove asks the engine for a move after history, thinking for thinkTime.
// Engine-side failures wrap ErrEngineUnavailable; a history that does not replay wraps ErrIllegalHistory.
func (e *Engine) BestMove(ctx context.Context, history []string, thinkTime time.Duration) (string, error) {
	uciMoves, err := UCIMoves(history)
	if err != nil {
		return "", err
	}

	session, err := e.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: acquire session: %v", ErrEngineUnavailable, err)
	}
	var releaseErr error
	defer func() {
		e.pool.Release(session, releaseErr)
	}()

	if err := session.NewGame(ctx); err != nil {
		releaseErr = err
		return "", fmt.Errorf("%w: new game: %v", ErrEngineUnavailable, err)
	}

	start := time.Now()
	resp, err := session.Search(ctx, uci.SearchRequest{
		Moves:   uciMoves,
		Limits:  uci.Limits{MoveTime: thinkTime},
		Timeout: thinkTime + e.grace,
	})
	if err != nil {
		if !errors.Is(err, uci.ErrNoMove) {
			releaseErr = err
		}
		return "", fmt.Errorf("%w: search: %v", ErrEngineUnavailable, err)
	}

	san, err := SANFromUCI(history, resp.BestMove)
	if err != nil {
		releaseErr = err
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	e.logger.Debug("engine_move",
		zap.Int("ply", len(history)+1),
		zap.String("uci", resp.BestMove),
		zap.String("san", san),
		zap.Int("depth", resp.Info.Depth),
		zap.Int("score_cp", resp.Info.ScoreCP),
		zap.Duration("took", time.Since(start)))
	return san, nil
}

func (e *Engine) Close() error {
	if e.pool == nil {
		return nil
	}
	return e.pool.Close()
}
