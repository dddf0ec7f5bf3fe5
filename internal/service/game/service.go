package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/alert"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/archive"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/chess"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/msgcat"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/platform"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/store"
	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"
)

const (
	defaultThinkTime  = 5 * time.Second
	defaultChunkLimit = 240
	defaultMoveMarker = "captures"
)

// BestMover produces the engine reply in SAN for the position after history.
type BestMover interface {
	BestMove(ctx context.Context, history []string, thinkTime time.Duration) (string, error)
}

// Post is one reply to the triggering mention. FEN, when set, is drawn and attached.
type Post struct {
	Text string
	FEN  string
}

type Config struct {
	ThinkTime  time.Duration
	ChunkLimit int
	MoveMarker string
}

type Service struct {
	engine  BestMover
	catalog *msgcat.Catalog
	alerter alert.Alerter
	archive archive.Archive
	cfg     Config
	logger  *zap.Logger
}

var requiredMessages = []string{
	"reply.resign", "reply.possible_moves", "reply.no_game", "reply.need_start",
	"reply.user_mated", "reply.bot_move", "reply.bot_mated", "reply.invalid_move",
	"reply.need_move", "reply.engine_unavailable", "reply.broken_game",
	"reply.history_chunk", "reply.game_over", "reply.no_moves",
}

func NewService(engine BestMover, catalog *msgcat.Catalog, alerter alert.Alerter, arch archive.Archive, cfg Config, logger *zap.Logger) (*Service, error) {
	if engine == nil {
		return nil, errors.New("engine required")
	}
	if catalog == nil {
		return nil, errors.New("message catalog required")
	}
	if err := catalog.Require(requiredMessages...); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if alerter == nil {
		alerter = alert.NewLogAlerter(logger)
	}
	if arch == nil {
		arch = archive.NewMemory()
	}
	if cfg.ThinkTime <= 0 {
		cfg.ThinkTime = defaultThinkTime
	}
	if cfg.ChunkLimit <= 0 {
		cfg.ChunkLimit = defaultChunkLimit
	}
	if strings.TrimSpace(cfg.MoveMarker) == "" {
		cfg.MoveMarker = defaultMoveMarker
	}
	return &Service{
		engine:  engine,
		catalog: catalog,
		alerter: alerter,
		archive: arch,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Handle applies one mention to sessions and returns the replies to post, in order.
// Only sessions is mutated; persisting it is the caller's job.
func (s *Service) Handle(ctx context.Context, m platform.Mention, sessions *store.Sessions) ([]Post, error) {
	sess, exists := sessions.Find(m.Author)
	cmd := Classify(m.Text, exists)
	log := s.logger.With(
		zap.Int64("mention_id", m.ID),
		zap.String("author", m.Author),
		zap.Stringer("command", cmd))
	log.Debug("mention_classified", zap.Bool("has_session", exists))

	t := &turn{svc: s, mention: m, sessions: sessions, log: log}
	if exists {
		t.username = sess.Username
	} else {
		t.username = m.Author
	}

	switch cmd {
	case CommandResign:
		return t.resign(ctx, sess, exists)
	case CommandErrorReport:
		return t.reportError(ctx)
	case CommandListMoves:
		return t.listMoves(sess.History)
	case CommandShowHistory:
		return t.showHistory(sess, exists)
	case CommandNoSession:
		return t.text("reply.need_start", nil)
	case CommandStart:
		return t.play(ctx, nil, true)
	default:
		return t.play(ctx, sess.History, false)
	}
}

// turn carries the state of one mention through the handlers.
type turn struct {
	svc      *Service
	mention  platform.Mention
	sessions *store.Sessions
	username string
	log      *zap.Logger
	posts    []Post
}

func (t *turn) add(key string, data map[string]any, fen string) error {
	text, err := t.svc.catalog.Render(key, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", key, err)
	}
	t.posts = append(t.posts, Post{Text: text, FEN: fen})
	return nil
}

func (t *turn) text(key string, data map[string]any) ([]Post, error) {
	if err := t.add(key, data, ""); err != nil {
		return nil, err
	}
	return t.posts, nil
}

func (t *turn) resign(ctx context.Context, sess store.Session, exists bool) ([]Post, error) {
	if exists {
		t.sessions.Remove(t.username)
	}
	if err := t.add("reply.resign", nil, ""); err != nil {
		return nil, err
	}
	if !exists {
		return t.posts, nil
	}
	t.log.Info("game_resigned", zap.Int("plies", len(sess.History)))
	if err := t.gameOver(ctx, archive.NewResignation(t.username, sess.History)); err != nil {
		return nil, err
	}
	return t.posts, nil
}

func (t *turn) reportError(ctx context.Context) ([]Post, error) {
	err := t.svc.alerter.Alert(ctx, alert.Report{
		ID:     t.mention.ID,
		Author: t.mention.Author,
		Text:   t.mention.Text,
	})
	if err != nil {
		t.log.Error("error_report_alert_failed", zap.Error(err))
	}
	return nil, nil
}

func (t *turn) listMoves(history []string) ([]Post, error) {
	game, err := chess.Replay(history)
	if err != nil {
		return t.brokenGame(err)
	}
	chunks, err := t.moveChunks(chess.LegalMoves(game.Position()))
	if err != nil {
		return nil, err
	}
	if err := t.add("reply.possible_moves", map[string]any{"Moves": chunks[0]}, game.FEN()); err != nil {
		return nil, err
	}
	for _, c := range chunks[1:] {
		if err := t.add("reply.history_chunk", map[string]any{"Chunk": c}, ""); err != nil {
			return nil, err
		}
	}
	return t.posts, nil
}

// moveChunks splits moves so every post, lead-in and author address included, stays
// within the chunk limit.
func (t *turn) moveChunks(moves []string) ([]string, error) {
	lead, err := t.svc.catalog.Render("reply.possible_moves", map[string]any{"Moves": ""})
	if err != nil {
		return nil, fmt.Errorf("render reply.possible_moves: %w", err)
	}
	head := chess.ChunkForTransport(strings.Join(moves, " "), t.room(lead))
	if len(head) == 0 {
		return []string{""}, nil
	}
	rest := moves[len(strings.Fields(head[0])):]
	return append(head[:1], chess.ChunkForTransport(strings.Join(rest, " "), t.room(""))...), nil
}

// room is what is left of the chunk limit once text is addressed to the author.
func (t *turn) room(text string) int {
	n := t.svc.cfg.ChunkLimit - len(platform.Address(t.mention.Author, text))
	if n < 1 {
		return 1
	}
	return n
}

func (t *turn) showHistory(sess store.Session, exists bool) ([]Post, error) {
	if !exists {
		return t.text("reply.no_game", nil)
	}
	if len(sess.History) == 0 {
		return t.text("reply.no_moves", nil)
	}
	if err := t.addHistory(sess.History); err != nil {
		return nil, err
	}
	return t.posts, nil
}

func (t *turn) addHistory(history []string) error {
	for _, c := range chess.ChunkForTransport(chess.Serialize(history), t.svc.cfg.ChunkLimit) {
		if err := t.add("reply.history_chunk", map[string]any{"Chunk": c}, ""); err != nil {
			return err
		}
	}
	return nil
}

// brokenGame answers a session whose stored history no longer replays. The session is
// left as is so an operator can inspect it.
func (t *turn) brokenGame(cause error) ([]Post, error) {
	t.log.Error("stored_history_illegal", zap.Error(cause))
	return t.text("reply.broken_game", nil)
}

// gameOver queues the follow-up posts and archives the finished game.
func (t *turn) gameOver(ctx context.Context, finished archive.FinishedGame) error {
	if err := t.add("reply.game_over", nil, ""); err != nil {
		return err
	}
	if err := t.addHistory(finished.History); err != nil {
		return err
	}
	if err := t.svc.archive.Record(ctx, finished); err != nil {
		t.log.Warn("archive_record_failed", zap.String("game_id", finished.ID.String()), zap.Error(err))
		return nil
	}
	t.log.Info("game_archived",
		zap.String("game_id", finished.ID.String()),
		zap.String("result", finished.Result),
		zap.String("method", finished.Method))
	return nil
}

// commit stores history for the user, dropping the session when no moves were recorded.
func (t *turn) commit(history []string) {
	if len(history) == 0 {
		t.sessions.Remove(t.username)
		return
	}
	t.sessions.Upsert(store.Session{Username: t.username, History: history})
}

func fenOf(game *nchess.Game) string {
	if game == nil {
		return ""
	}
	return game.FEN()
}
