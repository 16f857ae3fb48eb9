package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all process configuration loaded from environment variables.
// Tunables the operator edits at runtime live in the persisted settings,
// not here.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	DataDir   string `envconfig:"SCOUT_DATA_DIR" default:"./storage"`
	StateFile string `envconfig:"SCOUT_STATE_FILE"` // default <data_dir>/state.json
	HistoryDB string `envconfig:"SCOUT_HISTORY_DB"` // default <data_dir>/history.db
	// HistoryRetention prunes journal rows older than this. Zero keeps everything.
	HistoryRetention time.Duration `envconfig:"SCOUT_HISTORY_RETENTION" default:"720h"`

	// Session pacing
	StepInterval      time.Duration `envconfig:"SCOUT_STEP_INTERVAL" default:"2s"`
	MaxSession        time.Duration `envconfig:"SCOUT_MAX_SESSION" default:"15m"`
	RiskAlertCooldown time.Duration `envconfig:"SCOUT_RISK_ALERT_COOLDOWN" default:"60s"`

	// Telegram (optional; commands and previews are disabled without a token)
	TelegramBotToken       string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramAllowedChatIDs string `envconfig:"TELEGRAM_ALLOWED_CHAT_IDS"` // comma-separated; empty allows every chat
	TelegramPollTimeout    int    `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"30"`

	// Slack (optional second channel)
	SlackBotToken string `envconfig:"SLACK_BOT_TOKEN"`
	SlackChannel  string `envconfig:"SLACK_CHANNEL"`

	// Management API
	MgmtListenAddr     string `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAuthMode       string `envconfig:"MGMT_AUTH_MODE" default:"api-key"`
	MgmtAPIKey         string `envconfig:"MGMT_API_KEY"`
	MgmtJWTSecret      string `envconfig:"MGMT_JWT_SECRET"`
	MgmtRateLimitRPS   int    `envconfig:"MGMT_RATE_LIMIT_RPS" default:"20"`
	MgmtRateLimitBurst int    `envconfig:"MGMT_RATE_LIMIT_BURST" default:"40"`
	MgmtTLSCert        string `envconfig:"MGMT_TLS_CERT"`
	MgmtTLSKey         string `envconfig:"MGMT_TLS_KEY"`
	MgmtCORSOrigins    string `envconfig:"MGMT_CORS_ORIGINS"`

	// Age lookup (optional)
	AgeAPIURL     string        `envconfig:"AGE_API_URL"`
	AgeAPITimeout time.Duration `envconfig:"AGE_API_TIMEOUT" default:"3s"`

	// Simulated device
	SimSeed               int64   `envconfig:"SIM_SEED"`
	SimOpenProbability    float64 `envconfig:"SIM_OPEN_PROBABILITY" default:"0.15"`
	SimPoolSize           int     `envconfig:"SIM_POOL_SIZE" default:"200"`
	SimCaptureFailureRate float64 `envconfig:"SIM_CAPTURE_FAILURE_RATE" default:"0.1"`
	SimAdRate             float64 `envconfig:"SIM_AD_RATE" default:"0.05"`
}

// StatePath returns the state document location.
func (c *Config) StatePath() string {
	if c.StateFile != "" {
		return c.StateFile
	}
	return filepath.Join(c.DataDir, "state.json")
}

// HistoryPath returns the journal database location.
func (c *Config) HistoryPath() string {
	if c.HistoryDB != "" {
		return c.HistoryDB
	}
	return filepath.Join(c.DataDir, "history.db")
}

// TelegramEnabled returns true if a bot token is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// SlackEnabled returns true if Slack credentials and a channel are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// AgeAPIEnabled returns true if an age endpoint is configured.
func (c *Config) AgeAPIEnabled() bool {
	return c.AgeAPIURL != ""
}

// AllowedChatIDs parses TELEGRAM_ALLOWED_CHAT_IDS.
func (c *Config) AllowedChatIDs() ([]int64, error) {
	return parseIDList(c.TelegramAllowedChatIDs)
}

// CORSOrigins returns the parsed list of allowed origins.
func (c *Config) CORSOrigins() []string {
	if c.MgmtCORSOrigins == "" {
		return nil
	}
	var out []string
	for _, o := range strings.Split(c.MgmtCORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Validate rejects combinations the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.MgmtAuthMode {
	case "api-key":
		if c.MgmtAPIKey == "" {
			return fmt.Errorf("MGMT_API_KEY is required when MGMT_AUTH_MODE=api-key")
		}
	case "jwt":
		if c.MgmtJWTSecret == "" {
			return fmt.Errorf("MGMT_JWT_SECRET is required when MGMT_AUTH_MODE=jwt")
		}
	case "none":
	default:
		return fmt.Errorf("unknown MGMT_AUTH_MODE %q", c.MgmtAuthMode)
	}
	if (c.MgmtTLSCert == "") != (c.MgmtTLSKey == "") {
		return fmt.Errorf("MGMT_TLS_CERT and MGMT_TLS_KEY must be set together")
	}
	if _, err := c.AllowedChatIDs(); err != nil {
		return err
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}
