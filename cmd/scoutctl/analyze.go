package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "run the temporal analysis on recognized screen text",
		ArgsUsage: "[file ...]  (one sample per file, - or none for stdin)",
		Flags: []cli.Flag{
			&cli.TimestampFlag{
				Name:   "captured-at",
				Usage:  "capture time (RFC3339), defaults to now",
				Layout: time.RFC3339,
			},
			&cli.Int64Flag{
				Name:  "age-seconds",
				Usage: "known publish age, overrides any age in the text",
				Value: -1,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the analysis as JSON",
			},
		},
		Action: runAnalyze,
	}
}

func runAnalyze(cctx *cli.Context) error {
	samples, err := readSamples(cctx.Args().Slice(), os.Stdin)
	if err != nil {
		return err
	}

	capturedAt := time.Now()
	if ts := cctx.Timestamp("captured-at"); ts != nil {
		capturedAt = *ts
	}

	settings := state.Defaults()
	if store, err := openStore(cctx); err == nil {
		if agg, err := store.Load(); err == nil {
			settings = agg.Settings
		}
	}

	a := temporal.AnalyzeMeta(sampleMeta(samples, cctx.Int64("age-seconds")), capturedAt, temporal.ConfigFromSettings(settings))
	if cctx.Bool("json") {
		enc := json.NewEncoder(cctx.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}
	_, err = fmt.Fprintln(cctx.App.Writer, temporal.FormatBlock(a))
	return err
}

// readSamples reads one text sample per path; "-" or no path reads stdin.
func readSamples(paths []string, stdin io.Reader) ([]string, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		var (
			b   []byte
			err error
		)
		if p == "-" {
			b, err = io.ReadAll(stdin)
		} else {
			b, err = os.ReadFile(p)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		out = append(out, string(b))
	}
	return out, nil
}

func sampleMeta(samples []string, ageSeconds int64) map[string]any {
	meta := map[string]any{}
	if len(samples) == 1 {
		meta[temporal.MetaOCRText] = samples[0]
	} else {
		meta[temporal.MetaOCRSamples] = samples
	}
	if ageSeconds >= 0 {
		meta[temporal.MetaAgeSeconds] = ageSeconds
	}
	return meta
}
