package archive

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Migrations holds the embedded goose migrations for the archive table.
//
//go:embed migrations/*.sql
var Migrations embed.FS

type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with the lib/pq driver and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := OpenDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgres(db), nil
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate runs a goose command ("up", "down", "status", ...) against the archive migrations.
func Migrate(ctx context.Context, db *sql.DB, command string, args ...string) error {
	goose.SetBaseFS(Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, "migrations", args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// OpenDB opens and pings a lib/pq connection without migrating.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (p *Postgres) Record(ctx context.Context, game FinishedGame) error {
	const query = `
		INSERT INTO chess_bot_games (
			id, username, user_color, moves_san, result, method, pgn, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	res, err := p.db.ExecContext(ctx, query,
		game.ID.String(),
		game.Username,
		game.UserColor,
		pq.Array(game.History),
		game.Result,
		game.Method,
		game.PGN,
		game.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert finished game: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateGame
	}
	return nil
}

func (p *Postgres) Recent(ctx context.Context, username string, limit int) ([]FinishedGame, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT id, username, user_color, moves_san, result, method, pgn, finished_at
		FROM chess_bot_games
		WHERE lower(username) = lower($1)
		ORDER BY finished_at DESC
		LIMIT $2`

	rows, err := p.db.QueryContext(ctx, query, username, limit)
	if err != nil {
		return nil, fmt.Errorf("select finished games: %w", err)
	}
	defer rows.Close()

	games := make([]FinishedGame, 0, limit)
	for rows.Next() {
		var (
			g  FinishedGame
			id string
		)
		if err := rows.Scan(&id, &g.Username, &g.UserColor, pq.Array(&g.History),
			&g.Result, &g.Method, &g.PGN, &g.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan finished game: %w", err)
		}
		if g.ID, err = parseID(id); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finished games: %w", err)
	}
	return games, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
