package poller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/boardimage"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/platform"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/service/game"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultInterval = 120 * time.Second

// Handler turns one mention into replies, mutating sessions in place.
type Handler interface {
	Handle(ctx context.Context, m platform.Mention, sessions *store.Sessions) ([]game.Post, error)
}

type Config struct {
	BotHandle string
	Interval  time.Duration
}

// Poller drives the bot: one cycle reads new mentions oldest first, advances the
// cursor before each one and rewrites the session store after it.
type Poller struct {
	platform platform.Platform
	sessions store.SessionStore
	cursor   store.CursorTracker
	handler  Handler
	images   boardimage.Source
	cfg      Config
	logger   *zap.Logger
}

func New(p platform.Platform, sessions store.SessionStore, cursor store.CursorTracker, handler Handler, images boardimage.Source, cfg Config, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	cfg.BotHandle = strings.TrimPrefix(strings.TrimSpace(cfg.BotHandle), "@")
	return &Poller{
		platform: p,
		sessions: sessions,
		cursor:   cursor,
		handler:  handler,
		images:   images,
		cfg:      cfg,
		logger:   logger,
	}
}

// Loop runs cycles until ctx ends. Cycle errors and panics are logged, never returned.
func (p *Poller) Loop(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		p.safeCycle(ctx)
		timer.Reset(p.cfg.Interval)
	}
}

func (p *Poller) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poll_cycle_panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	if err := p.Cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("poll_cycle_failed", zap.Error(err))
	}
}

// Cycle processes every mention newer than the cursor. Store failures abort it.
func (p *Poller) Cycle(ctx context.Context) error {
	log := p.logger.With(zap.String("cycle_id", uuid.NewString()))

	last, err := p.cursor.Read(ctx)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	mentions, err := p.platform.Mentions(ctx, last)
	if err != nil {
		return fmt.Errorf("fetch mentions: %w", err)
	}
	pending := newerThan(mentions, last)
	if len(pending) == 0 {
		log.Debug("poll_cycle_idle", zap.Int64("cursor", last))
		return nil
	}

	sessions, err := p.sessions.Load(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	log.Info("poll_cycle_started",
		zap.Int64("cursor", last),
		zap.Int("mentions", len(pending)),
		zap.Int("sessions", sessions.Len()))

	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.ID <= last {
			continue
		}
		if err := p.cursor.Write(ctx, m.ID); err != nil {
			return fmt.Errorf("write cursor %d: %w", m.ID, err)
		}
		last = m.ID
		if p.isOwn(m) {
			log.Debug("mention_skipped_own", zap.Int64("mention_id", m.ID))
			continue
		}
		p.process(ctx, log, m, sessions)
		if err := p.sessions.Save(ctx, sessions); err != nil {
			return fmt.Errorf("save sessions after %d: %w", m.ID, err)
		}
	}
	return nil
}

func (p *Poller) process(ctx context.Context, log *zap.Logger, m platform.Mention, sessions *store.Sessions) {
	mlog := log.With(zap.Int64("mention_id", m.ID), zap.String("author", m.Author))
	defer func() {
		if r := recover(); r != nil {
			mlog.Error("mention_panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	mlog.Info("mention_received", zap.String("text", m.Text))

	posts, err := p.handler.Handle(ctx, m, sessions)
	if err != nil {
		mlog.Error("mention_failed", zap.Error(err))
		return
	}
	for _, post := range posts {
		p.reply(ctx, mlog, m, post)
	}
}

func (p *Poller) reply(ctx context.Context, log *zap.Logger, m platform.Mention, post game.Post) {
	r := platform.Reply{InReplyTo: m.ID, Author: m.Author, Text: post.Text}
	if post.FEN != "" && p.images != nil {
		img, err := p.images.Fetch(ctx, post.FEN)
		if err != nil {
			log.Warn("board_image_failed", zap.String("fen", post.FEN), zap.Error(err))
		} else {
			r.ImagePath = img.Path
			defer func() {
				if err := img.Remove(); err != nil {
					log.Warn("board_image_remove_failed", zap.String("path", img.Path), zap.Error(err))
				}
			}()
		}
	}
	if err := p.platform.Reply(ctx, r); err != nil {
		log.Error("reply_failed", zap.String("text", post.Text), zap.Error(err))
	}
}

func (p *Poller) isOwn(m platform.Mention) bool {
	return p.cfg.BotHandle != "" && strings.EqualFold(m.Author, p.cfg.BotHandle)
}

// newerThan returns mentions with id > cursor sorted oldest first.
func newerThan(mentions []platform.Mention, cursor int64) []platform.Mention {
	out := make([]platform.Mention, 0, len(mentions))
	for _, m := range mentions {
		if m.ID > cursor {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
