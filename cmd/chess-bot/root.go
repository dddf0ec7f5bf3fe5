package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/archive"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/chess"
	"github.com/TBarmak/Chess-Twitter-Bot/internal/obslog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOptions struct {
	dryRun bool
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}
	root := &cobra.Command{
		Use:   "chess-bot",
		Short: "Play chess against an engine through social media mentions",
		// No subcommand runs the polling loop.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "read mentions but only log replies")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Poll mentions until interrupted",
			RunE:  func(cmd *cobra.Command, args []string) error { return runLoop(opts) },
		},
		&cobra.Command{
			Use:   "once",
			Short: "Run a single polling cycle and exit",
			RunE:  func(cmd *cobra.Command, args []string) error { return runOnce(opts) },
		},
		newMovesCmd(),
		newMigrateCmd(),
		newGamesCmd(),
		newVersionCmd(),
	)
	return root
}

func runLoop(opts *runOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("chess_bot_started",
		zap.String("version", version),
		zap.Bool("dry_run", opts.dryRun),
		zap.Duration("poll_interval", a.cfg.PollInterval))
	err = a.poller.Loop(ctx)
	a.logger.Info("chess_bot_stopped")
	return err
}

func runOnce(opts *runOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.poller.Cycle(ctx)
}

func newMovesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "moves [san...]",
		Short: "Print the legal moves after a move history",
		Example: "  chess-bot moves e4 e5 Nf3\n" +
			"  chess-bot moves \"e4 e5 Nf3 \"",
		RunE: func(cmd *cobra.Command, args []string) error {
			history := chess.Deserialize(strings.Join(args, " "))
			game, err := chess.Replay(history)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fen:   %s\n", game.FEN())
			fmt.Fprintf(out, "moves: %s\n", strings.Join(chess.LegalMoves(game.Position()), " "))
			if chess.IsCheckmate(game) {
				fmt.Fprintln(out, "checkmate")
			}
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|status|version]",
		Short: "Run game archive migrations against DATABASE_URL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				return errors.New("DATABASE_URL is required")
			}
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			db, err := archive.OpenDB(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer db.Close()
			return archive.Migrate(cmd.Context(), db, command)
		},
	}
}

func newGamesCmd() *cobra.Command {
	var (
		limit   int
		showPGN bool
	)
	cmd := &cobra.Command{
		Use:   "games <username>",
		Short: "List a user's most recent archived games from DATABASE_URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				return errors.New("DATABASE_URL is required")
			}
			db, err := archive.OpenDB(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer db.Close()
			return printRecentGames(cmd.Context(), cmd.OutOrStdout(), archive.NewPostgres(db), args[0], limit, showPGN)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of games to list")
	cmd.Flags().BoolVar(&showPGN, "pgn", false, "print the full PGN of each game")
	return cmd
}

func printRecentGames(ctx context.Context, out io.Writer, arch archive.Archive, username string, limit int, showPGN bool) error {
	games, err := arch.Recent(ctx, username, limit)
	if err != nil {
		return err
	}
	if len(games) == 0 {
		fmt.Fprintf(out, "no archived games for %s\n", username)
		return nil
	}
	for _, g := range games {
		fmt.Fprintf(out, "%s  %s  %-5s %s by %s, %d plies\n",
			g.FinishedAt.Format(time.RFC3339), g.ID, g.UserColor, g.Result, g.Method, len(g.History))
		if showPGN {
			fmt.Fprintln(out, g.PGN)
		}
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chess-bot %s (%s)\n", version, commit)
		},
	}
}

func initLogger() *zap.Logger {
	if err := obslog.InitFromEnv(); err != nil {
		fmt.Printf("logger init failed, falling back to stderr: %v\n", err)
	}
	return obslog.L()
}
