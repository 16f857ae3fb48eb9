package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/p-blackswan/reel-scout/internal/ageapi"
	"github.com/p-blackswan/reel-scout/internal/notify"
	"github.com/p-blackswan/reel-scout/internal/session"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

func itemsCommand() *cli.Command {
	return &cli.Command{
		Name:  "items",
		Usage: "inspect and decide on observed items",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list items, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "pending, approved, rejected or deleted"},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: runItemsList,
			},
			{
				Name:      "show",
				Usage:     "print one item as its preview caption",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print the stored item as JSON"},
				},
				Action: runItemsShow,
			},
			{
				Name:      "set-status",
				Usage:     "approve, reject or delete an item",
				ArgsUsage: "<id> <status>",
				Flags:     []cli.Flag{forceFlag},
				Action:    runItemsSetStatus,
			},
			{
				Name:      "attach-ocr",
				Usage:     "record recognized text (files, or stdin with -) and/or a known age on an item",
				ArgsUsage: "<id> [file|-]...",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "age-seconds", Value: -1, Usage: "known publish age in seconds"},
					forceFlag,
				},
				Action: runItemsAttachOCR,
			},
		},
	}
}

func runItemsList(cctx *cli.Context) error {
	var status state.Status
	if s := cctx.String("status"); s != "" {
		st, err := state.ParseStatus(s)
		if err != nil {
			return err
		}
		status = st
	}
	store, err := openStore(cctx)
	if err != nil {
		return err
	}
	agg, err := store.Load()
	if err != nil {
		return err
	}

	items := agg.SortedItems(status)
	if limit := cctx.Int("limit"); limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	w := tabwriter.NewWriter(cctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSCORE\tLABEL\tOBSERVED\tREF")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%s\t%s\t%s\n",
			it.ID, it.Status, it.Score, it.Label, it.ObservedAt.Format("2006-01-02 15:04"), it.ExternalRef)
	}
	return w.Flush()
}

func runItemsShow(cctx *cli.Context) error {
	id := cctx.Args().First()
	if id == "" {
		return fmt.Errorf("need an item id")
	}
	store, err := openStore(cctx)
	if err != nil {
		return err
	}
	agg, err := store.Load()
	if err != nil {
		return err
	}
	it, err := agg.Item(id)
	if err != nil {
		return err
	}
	if cctx.Bool("json") {
		enc := json.NewEncoder(cctx.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(it)
	}

	var analysis *temporal.Analysis
	if it.Status == state.StatusPending || it.Status == state.StatusApproved {
		a := ageapi.NewEnricher(nil, loggerFor(cctx)).Analyze(cctx.Context, it, agg.Settings)
		analysis = &a
	}
	_, err = fmt.Fprintln(cctx.App.Writer, notify.Caption(it, analysis))
	return err
}

func runItemsSetStatus(cctx *cli.Context) error {
	if cctx.NArg() != 2 {
		return fmt.Errorf("usage: items set-status <id> <status>")
	}
	id := cctx.Args().Get(0)
	status, err := state.ParseStatus(cctx.Args().Get(1))
	if err != nil {
		return err
	}
	return withManager(cctx, func(m *session.Manager) error {
		it, err := m.SetStatus(cctx.Context, id, status, "scoutctl")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cctx.App.Writer, "%s is now %s\n", it.ID, it.Status)
		return err
	})
}

func runItemsAttachOCR(cctx *cli.Context) error {
	id := cctx.Args().First()
	if id == "" {
		return fmt.Errorf("usage: items attach-ocr <id> [file|-]...")
	}
	var age *int64
	if secs := cctx.Int64("age-seconds"); secs >= 0 {
		age = &secs
	}
	paths := cctx.Args().Tail()
	var samples []string
	if len(paths) > 0 || age == nil {
		var err error
		if samples, err = readSamples(paths, cctx.App.Reader); err != nil {
			return err
		}
	}

	return withManager(cctx, func(m *session.Manager) error {
		var it *state.Item
		for i, text := range samples {
			var a *int64
			if i == 0 {
				a = age
			}
			var err error
			if it, err = m.AttachSample(cctx.Context, id, text, a); err != nil {
				return err
			}
		}
		if len(samples) == 0 {
			var err error
			if it, err = m.AttachSample(cctx.Context, id, "", age); err != nil {
				return err
			}
		}
		n := 0
		if raw, ok := it.Meta[temporal.MetaOCRSamples].([]any); ok {
			n = len(raw)
		}
		_, err := fmt.Fprintf(cctx.App.Writer, "%s now has %d text sample(s)\n", it.ID, n)
		return err
	})
}
