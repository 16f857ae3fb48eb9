// Command scoutctl inspects and edits a reel-scout state file.
package main

import (
	"errors"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/p-blackswan/reel-scout/internal/config"
	serrors "github.com/p-blackswan/reel-scout/internal/errors"
	"github.com/p-blackswan/reel-scout/internal/history"
	"github.com/p-blackswan/reel-scout/internal/instance"
	"github.com/p-blackswan/reel-scout/internal/session"
	"github.com/p-blackswan/reel-scout/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newApp(cfg).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp(cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:  "scoutctl",
		Usage: "operator tool for the reel-scout state file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "state",
				Usage: "path to the state document",
				Value: cfg.StatePath(),
			},
			&cli.StringFlag{
				Name:  "history",
				Usage: "path to the history journal",
				Value: cfg.HistoryPath(),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log to stderr",
			},
		},
	}
	app.Commands = []*cli.Command{
		analyzeCommand(),
		itemsCommand(),
		settingsCommand(),
		sessionCommand(),
		tokenCommand(cfg),
	}
	return app
}

var forceFlag = &cli.BoolFlag{
	Name:  "force",
	Usage: "edit the state file even while the daemon holds it",
}

func loggerFor(cctx *cli.Context) zerolog.Logger {
	if cctx.Bool("verbose") {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.Nop()
}

func openStore(cctx *cli.Context) (*state.Store, error) {
	return state.NewStore(cctx.String("state"), loggerFor(cctx))
}

// withManager runs fn with exclusive access to the state file. Without
// --force it refuses to run next to a live daemon.
func withManager(cctx *cli.Context, fn func(*session.Manager) error) error {
	logger := loggerFor(cctx)
	path := cctx.String("state")

	if !cctx.Bool("force") {
		guard, err := instance.Acquire(path)
		if errors.Is(err, serrors.ErrInstanceLocked) {
			return fmt.Errorf("the daemon is running on %s; use the management API or pass --force", path)
		}
		if err != nil {
			return err
		}
		defer guard.Release()
	}

	store, err := state.NewStore(path, logger)
	if err != nil {
		return err
	}
	opts := []session.ManagerOption{session.WithSource("scoutctl")}
	if p := cctx.String("history"); p != "" {
		journal, err := history.Open(p, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("history journal unavailable")
		} else {
			defer journal.Close()
			opts = append(opts, session.WithJournal(journal))
		}
	}
	return fn(session.NewManager(store, nil, nil, nil, logger, opts...))
}
