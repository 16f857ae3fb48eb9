package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/p-blackswan/reel-scout/internal/config"
	"github.com/p-blackswan/reel-scout/internal/mgmt"
)

func tokenCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue a management API token (jwt auth mode)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Usage: "caller name recorded as the actor", Required: true},
			&cli.StringFlag{Name: "role", Value: string(mgmt.RoleOperator), Usage: "admin, operator or readonly"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
		},
		Action: func(cctx *cli.Context) error {
			if cfg.MgmtJWTSecret == "" {
				return fmt.Errorf("MGMT_JWT_SECRET is not set")
			}
			tok, err := mgmt.IssueToken(cfg.MgmtJWTSecret, cctx.String("subject"), mgmt.Role(cctx.String("role")), cctx.Duration("ttl"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cctx.App.Writer, tok)
			return err
		},
	}
}
