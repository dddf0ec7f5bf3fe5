package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/alert"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/archive"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/boardimage"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/chess"
	appcfg "github.com/TBarmak/Chess-Twitter-Bot/internal/config"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/msgcat"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/platform"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/poller"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/service/game"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/store"
	"go.uber.org/zap"
)

type app struct {
	cfg     *appcfg.AppConfig
	logger  *zap.Logger
	poller  *poller.Poller
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown_close_failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func buildApp(ctx context.Context, opts *runOptions) (a *app, err error) {
	cfg, err := appcfg.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	logger := initLogger()
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	sessions, cursor, err := a.buildStore(ctx)
	if err != nil {
		return a, err
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return a, fmt.Errorf("message catalog: %w", err)
	}

	engine, err := chess.NewEngine(chess.EngineConfig{
		BinaryPath:   cfg.StockfishPath,
		Threads:      cfg.EngineThreads,
		HashMB:       cfg.EngineHashMB,
		TimeoutGrace: cfg.EngineTimeoutGrace,
	}, logger.Named("engine"))
	if err != nil {
		return a, err
	}
	a.closers = append(a.closers, engine.Close)

	alerter, err := a.buildAlerter(catalog)
	if err != nil {
		return a, err
	}
	arch, err := a.buildArchive(ctx)
	if err != nil {
		return a, err
	}

	svc, err := game.NewService(engine, catalog, alerter, arch, game.Config{
		ThinkTime:  cfg.EngineThinkTime,
		ChunkLimit: cfg.ChunkLimit,
		MoveMarker: cfg.MoveMarker,
	}, logger.Named("game"))
	if err != nil {
		return a, err
	}

	var client platform.Platform = platform.NewClient(cfg.PlatformBaseURL,
		platform.WithBearerToken(cfg.PlatformToken),
		platform.WithTimeout(cfg.PlatformTimeout),
		platform.WithRetry(cfg.PlatformRetries),
	)
	if opts.dryRun {
		client = platform.NewDryRun(client, logger.Named("platform"))
	}

	images := boardimage.Fallback(logger.Named("boardimage"),
		boardimage.NewFetcher(cfg.ImageBaseURL, cfg.ImageTimeout, cfg.ImageDir),
		boardimage.NewRenderer(cfg.ImageDir),
	)

	a.poller = poller.New(client, sessions, cursor, svc, images, poller.Config{
		BotHandle: cfg.BotHandle,
		Interval:  cfg.PollInterval,
	}, logger.Named("poller"))
	return a, nil
}

func (a *app) buildStore(ctx context.Context) (store.SessionStore, store.CursorTracker, error) {
	cfg := a.cfg
	switch cfg.SessionBackend {
	case appcfg.SessionBackendRedis:
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		a.logger.Info("session_store_ready", zap.String("backend", "redis"), zap.String("prefix", cfg.RedisKeyPrefix))
		return store.NewRedisSessionStore(rdb, cfg.RedisKeyPrefix, a.logger.Named("store")),
			store.NewRedisCursor(rdb, cfg.RedisKeyPrefix, cfg.CursorSeed), nil
	case appcfg.SessionBackendFile:
		a.logger.Info("session_store_ready",
			zap.String("backend", "file"),
			zap.String("sessions", cfg.SessionsFile),
			zap.String("cursor", cfg.CursorFile))
		return store.NewFileSessionStore(cfg.SessionsFile, a.logger.Named("store")),
			store.NewFileCursor(cfg.CursorFile, cfg.CursorSeed), nil
	default:
		return nil, nil, errors.New("unknown session backend: " + cfg.SessionBackend)
	}
}

func (a *app) buildAlerter(catalog *msgcat.Catalog) (alert.Alerter, error) {
	cfg := a.cfg
	if cfg.SMTPHost == "" {
		return alert.NewLogAlerter(a.logger.Named("alert")), nil
	}
	return alert.NewSMTPAlerter(alert.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.AlertFrom,
		To:       cfg.AlertTo,
	}, catalog)
}

func (a *app) buildArchive(ctx context.Context) (archive.Archive, error) {
	if a.cfg.DatabaseURL == "" {
		return archive.NewMemory(), nil
	}
	pg, err := archive.OpenPostgres(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("game archive: %w", err)
	}
	a.closers = append(a.closers, pg.Close)
	return pg, nil
}
