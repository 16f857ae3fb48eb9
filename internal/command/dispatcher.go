// Package command turns operator text commands into session operations.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	serrors "github.com/p-blackswan/reel-scout/internal/errors"
	"github.com/p-blackswan/reel-scout/internal/metrics"
	"github.com/p-blackswan/reel-scout/internal/notify"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/telegram"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

// Controller is the session surface commands drive.
type Controller interface {
	Start(ctx context.Context) (string, error)
	Stop(ctx context.Context, reason string) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SetStatus(ctx context.Context, itemID string, status state.Status, actor string) (*state.Item, error)
	SetSetting(ctx context.Context, key, value string) (any, error)
	AdjustSetting(ctx context.Context, key string, delta float64) (float64, error)
	Snapshot(ctx context.Context) (*state.Aggregate, error)
}

// Analyzer produces the temporal analysis of an item.
type Analyzer interface {
	Analyze(ctx context.Context, it *state.Item, settings state.Settings) temporal.Analysis
}

// Dispatcher parses and executes one command line.
type Dispatcher struct {
	ctrl     Controller
	analyzer Analyzer
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher. m may be nil.
func NewDispatcher(ctrl Controller, analyzer Analyzer, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{ctrl: ctrl, analyzer: analyzer, metrics: m, logger: logger.With().Str("component", "command").Logger()}
}

// Reply is the outcome of a command.
type Reply struct {
	Command  string
	Text     string
	Keyboard *telegram.InlineKeyboard
	Err      error
}

const helpText = `Commands:
/start  start a session
/stop  stop the session
/pause  pause stepping
/resume  resume stepping
/approve <id>  approve an item
/reject <id>  reject an item
/delete <id>  delete an item and its preview
/status  session, risk and item counts
/stv <id>  temporal analysis of an item
/set <key> <value>  change a setting
/settings  tuning panel with -/+ buttons
/adjust <key> <delta>  move a numeric setting by delta
/help  this text`

// Parse splits a line into a lowercase command name and its arguments.
// A leading slash and a @botname suffix are ignored.
func Parse(line string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}

// Execute runs line on behalf of actor.
func (d *Dispatcher) Execute(ctx context.Context, line, actor string) Reply {
	name, args := Parse(line)
	r := d.execute(ctx, name, args, actor)
	r.Command = name
	if d.metrics != nil && name != "" {
		d.metrics.RecordCommand(metricName(name))
	}
	if r.Err != nil {
		d.logger.Warn().Err(r.Err).Str("command", name).Str("actor", actor).Msg("Command failed")
		if r.Text == "" {
			r.Text = "⚠️ " + humanError(r.Err)
		}
	}
	return r
}

func (d *Dispatcher) execute(ctx context.Context, name string, args []string, actor string) Reply {
	switch name {
	case "start":
		sid, err := d.ctrl.Start(ctx)
		if err != nil {
			return Reply{Err: err}
		}
		return Reply{Text: "▶️ Session started: " + sid}

	case "stop":
		if err := d.ctrl.Stop(ctx, ""); err != nil {
			return Reply{Err: err}
		}
		return Reply{Text: "⏹ Session stopped"}

	case "pause":
		if err := d.ctrl.Pause(ctx); err != nil {
			return Reply{Err: err}
		}
		return Reply{Text: "⏸ Session paused"}

	case "resume":
		if err := d.ctrl.Resume(ctx); err != nil {
			return Reply{Err: err}
		}
		return Reply{Text: "▶️ Session resumed"}

	case "approve", "reject", "delete":
		if len(args) != 1 {
			return Reply{Err: fmt.Errorf("usage: /%s <id>", name)}
		}
		st := map[string]state.Status{"approve": state.StatusApproved, "reject": state.StatusRejected, "delete": state.StatusDeleted}[name]
		it, err := d.ctrl.SetStatus(ctx, args[0], st, actor)
		if err != nil {
			return Reply{Err: err}
		}
		return Reply{Text: fmt.Sprintf("%s %s → %s", statusEmoji(it.Status), it.ID, it.Status)}

	case "status":
		agg, err := d.ctrl.Snapshot(ctx)
		if err != nil {
			return Reply{Err: err}
		}
		return Reply{Text: StatusText(agg)}

	case "stv":
		if len(args) != 1 {
			return Reply{Err: errors.New("usage: /stv <id>")}
		}
		agg, err := d.ctrl.Snapshot(ctx)
		if err != nil {
			return Reply{Err: err}
		}
		it, err := agg.Item(args[0])
		if err != nil {
			return Reply{Err: err}
		}
		a := d.analyzer.Analyze(ctx, it, agg.Settings)
		return Reply{Text: "🆔 " + it.ID + "\n" + temporal.FormatBlock(a)}

	case "set":
		if len(args) != 2 {
			return Reply{Err: errors.New("usage: /set <key> <value>")}
		}
		v, err := d.ctrl.SetSetting(ctx, args[0], args[1])
		if err != nil {
			return Reply{Err: err}
		}
		return Reply{Text: fmt.Sprintf("⚙️ %s = %v", args[0], v)}

	case "settings":
		agg, err := d.ctrl.Snapshot(ctx)
		if err != nil {
			return Reply{Err: err}
		}
		return Reply{Text: settingsText(agg.Settings), Keyboard: notify.SettingsKeyboard()}

	case "adjust":
		if len(args) != 2 {
			return Reply{Err: errors.New("usage: /adjust <key> <delta>")}
		}
		delta, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return Reply{Err: fmt.Errorf("%w: %q is not a number", serrors.ErrInvalidSetting, args[1])}
		}
		v, err := d.ctrl.AdjustSetting(ctx, args[0], delta)
		if err != nil {
			return Reply{Err: err}
		}
		return Reply{Text: fmt.Sprintf("⚙️ %s = %s", args[0], strconv.FormatFloat(v, 'f', -1, 64))}

	case "help", "":
		return Reply{Text: helpText}
	}
	return Reply{Err: fmt.Errorf("unknown command %q", name), Text: "Unknown command. Send /help."}
}

func settingsText(s state.Settings) string {
	var b strings.Builder
	b.WriteString("⚙️ Settings")
	for _, p := range notify.SettingsPanel {
		fmt.Fprintf(&b, "\n%s = %s", p.Key, strconv.FormatFloat(s.Float(p.Key), 'f', -1, 64))
	}
	return b.String()
}

// StatusText summarizes the aggregate for the operator.
func StatusText(agg *state.Aggregate) string {
	var b strings.Builder
	switch {
	case agg.ActiveSessionID == "":
		b.WriteString("⏹ No active session")
		if agg.LastSessionStopReason != "" {
			fmt.Fprintf(&b, " (last stop: %s)", agg.LastSessionStopReason)
		}
	case agg.SessionPaused:
		fmt.Fprintf(&b, "⏸ Session %s paused", agg.ActiveSessionID)
	default:
		fmt.Fprintf(&b, "▶️ Session %s running", agg.ActiveSessionID)
	}
	b.WriteByte('\n')

	if r := agg.LastRisk; r != nil {
		fmt.Fprintf(&b, "🛡 Risk: %s (%s)\n", r.Level, r.Justification)
	}
	if agg.DeviceStatus != "" {
		fmt.Fprintf(&b, "📱 Device: %s\n", agg.DeviceStatus)
	}

	counts := map[state.Status]int{}
	for _, it := range agg.Items {
		counts[it.Status]++
	}
	keys := make([]string, 0, len(counts))
	for st := range counts {
		keys = append(keys, string(st))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[state.Status(k)]))
	}
	if len(parts) == 0 {
		parts = append(parts, "none")
	}
	fmt.Fprintf(&b, "🎬 Items: %s\n", strings.Join(parts, " "))

	safety := "ON"
	if !agg.Settings.Bool("risk_safety_enabled") {
		safety = "OFF"
	}
	fmt.Fprintf(&b, "⚙️ threshold=%.2f safety=%s target=%d",
		agg.Settings.Float("score_threshold"), safety, agg.Settings.Int("target_sent_per_session"))
	return b.String()
}

func statusEmoji(s state.Status) string {
	switch s {
	case state.StatusApproved:
		return "✅"
	case state.StatusRejected:
		return "❌"
	case state.StatusDeleted:
		return "🗑"
	}
	return "•"
}

func humanError(err error) string {
	switch {
	case errors.Is(err, serrors.ErrNoActiveSession):
		return "No active session."
	case errors.Is(err, serrors.ErrSessionActive):
		return "A session is already running."
	case errors.Is(err, serrors.ErrDeviceNotReady):
		return "Device not ready: " + err.Error()
	case errors.Is(err, serrors.ErrItemNotFound):
		return "Item not found."
	}
	return err.Error()
}

var known = map[string]bool{
	"start": true, "stop": true, "pause": true, "resume": true, "approve": true, "reject": true,
	"delete": true, "status": true, "stv": true, "set": true, "help": true,
	"settings": true, "adjust": true,
}

// metricName keeps label cardinality bounded.
func metricName(name string) string {
	if known[name] {
		return name
	}
	return "unknown"
}
