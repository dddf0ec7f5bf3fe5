package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to REDIS_URL style addresses and checks the connection.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis session backend")
	}
	opts, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}

// RedisSessionStore keeps the same line format as the file store in one Redis list,
// so the order of sessions survives a round trip.
type RedisSessionStore struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisSessionStore(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisSessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSessionStore{rdb: rdb, prefix: prefix, logger: logger}
}

func (s *RedisSessionStore) key() string { return s.prefix + ":sessions" }

func (s *RedisSessionStore) Load(ctx context.Context) (*Sessions, error) {
	lines, err := s.rdb.LRange(ctx, s.key(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: load sessions: %v", ErrStore, err)
	}
	sessions, bad, duplicates := ParseLines(lines)
	for _, line := range bad {
		s.logger.Warn("session_line_skipped", zap.String("key", s.key()), zap.String("line", line))
	}
	if duplicates > 0 {
		s.logger.Warn("session_duplicates_collapsed", zap.String("key", s.key()), zap.Int("count", duplicates))
	}
	return sessions, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, sessions *Sessions) error {
	var lines []any
	if sessions != nil {
		for _, sess := range sessions.All() {
			lines = append(lines, FormatLine(sess))
		}
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key())
	if len(lines) > 0 {
		pipe.RPush(ctx, s.key(), lines...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: save sessions: %v", ErrStore, err)
	}
	return nil
}

type RedisCursor struct {
	rdb    *redis.Client
	prefix string
	seed   int64
}

func NewRedisCursor(rdb *redis.Client, prefix string, seed int64) *RedisCursor {
	return &RedisCursor{rdb: rdb, prefix: prefix, seed: seed}
}

func (c *RedisCursor) key() string { return c.prefix + ":last_seen_id" }

func (c *RedisCursor) Read(ctx context.Context) (int64, error) {
	id, err := c.rdb.Get(ctx, c.key()).Int64()
	if errors.Is(err, redis.Nil) {
		return c.seed, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read cursor: %v", ErrStore, err)
	}
	return id, nil
}

func (c *RedisCursor) Write(ctx context.Context, id int64) error {
	if err := c.rdb.Set(ctx, c.key(), id, 0).Err(); err != nil {
		return fmt.Errorf("%w: write cursor: %v", ErrStore, err)
	}
	return nil
}
