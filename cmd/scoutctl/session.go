package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/p-blackswan/reel-scout/internal/command"
	"github.com/p-blackswan/reel-scout/internal/session"
)

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "inspect or end the recorded session",
		Subcommands: []*cli.Command{
			{
				Name:  "status",
				Usage: "print the status summary",
				Action: func(cctx *cli.Context) error {
					store, err := openStore(cctx)
					if err != nil {
						return err
					}
					agg, err := store.Load()
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cctx.App.Writer, command.StatusText(agg))
					return err
				},
			},
			{
				Name:  "stop",
				Usage: "end the active session",
				Flags: []cli.Flag{
					forceFlag,
					&cli.StringFlag{Name: "reason", Value: "stopped_by_user"},
				},
				Action: func(cctx *cli.Context) error {
					return sessionAction(cctx, "stopped", func(m *session.Manager) error {
						return m.Stop(cctx.Context, cctx.String("reason"))
					})
				},
			},
			{
				Name:  "pause",
				Usage: "pause the active session",
				Flags: []cli.Flag{forceFlag},
				Action: func(cctx *cli.Context) error {
					return sessionAction(cctx, "paused", func(m *session.Manager) error {
						return m.Pause(cctx.Context)
					})
				},
			},
			{
				Name:  "resume",
				Usage: "resume a paused session",
				Flags: []cli.Flag{forceFlag},
				Action: func(cctx *cli.Context) error {
					return sessionAction(cctx, "resumed", func(m *session.Manager) error {
						return m.Resume(cctx.Context)
					})
				},
			},
		},
	}
}

func sessionAction(cctx *cli.Context, done string, fn func(*session.Manager) error) error {
	return withManager(cctx, func(m *session.Manager) error {
		if err := fn(m); err != nil {
			return err
		}
		_, err := fmt.Fprintln(cctx.App.Writer, "session", done)
		return err
	})
}
