package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/reel-scout/internal/session"
	"github.com/p-blackswan/reel-scout/internal/state"
)

func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "read and tune runtime settings",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "print every setting",
				Action: runSettingsShow,
			},
			{
				Name:      "set",
				Usage:     "change one setting",
				ArgsUsage: "<key> <value>",
				Flags:     []cli.Flag{forceFlag},
				Action:    runSettingsSet,
			},
			{
				Name:  "export",
				Usage: "write the settings as YAML",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "file to write, stdout when empty"},
				},
				Action: runSettingsExport,
			},
			{
				Name:      "import",
				Usage:     "apply settings from a YAML file",
				ArgsUsage: "<file>",
				Flags:     []cli.Flag{forceFlag},
				Action:    runSettingsImport,
			},
		},
	}
}

func loadSettings(cctx *cli.Context) (state.Settings, error) {
	store, err := openStore(cctx)
	if err != nil {
		return nil, err
	}
	agg, err := store.Load()
	if err != nil {
		return nil, err
	}
	return agg.Settings, nil
}

func runSettingsShow(cctx *cli.Context) error {
	settings, err := loadSettings(cctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cctx.App.Writer, 0, 4, 2, ' ', 0)
	for _, k := range state.Keys() {
		fmt.Fprintf(w, "%s\t%v\n", k, settings[k])
	}
	return w.Flush()
}

func runSettingsSet(cctx *cli.Context) error {
	if cctx.NArg() != 2 {
		return fmt.Errorf("usage: settings set <key> <value>")
	}
	return withManager(cctx, func(m *session.Manager) error {
		v, err := m.SetSetting(cctx.Context, cctx.Args().Get(0), cctx.Args().Get(1))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cctx.App.Writer, "%s = %v\n", cctx.Args().Get(0), v)
		return err
	})
}

func runSettingsExport(cctx *cli.Context) error {
	settings, err := loadSettings(cctx)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(map[string]any(settings))
	if err != nil {
		return err
	}
	if path := cctx.String("out"); path != "" {
		return os.WriteFile(path, out, 0o644)
	}
	_, err = cctx.App.Writer.Write(out)
	return err
}

func runSettingsImport(cctx *cli.Context) error {
	path := cctx.Args().First()
	if path == "" {
		return fmt.Errorf("need a YAML file")
	}
	kv, err := readSettingsFile(path)
	if err != nil {
		return err
	}
	return withManager(cctx, func(m *session.Manager) error {
		for _, k := range sortedKeys(kv) {
			v, err := m.SetSetting(cctx.Context, k, kv[k])
			if err != nil {
				return err
			}
			fmt.Fprintf(cctx.App.Writer, "%s = %v\n", k, v)
		}
		return nil
	})
}

// readSettingsFile parses a flat YAML mapping into raw setting values.
// Unknown keys are kept so SetSetting reports them.
func readSettingsFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		raw, err := yamlScalar(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = raw
	}
	return out, nil
}

func yamlScalar(v any) (string, error) {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case string:
		return x, nil
	}
	return "", fmt.Errorf("unsupported value %v", v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
