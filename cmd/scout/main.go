package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/reel-scout/internal/ageapi"
	"github.com/p-blackswan/reel-scout/internal/command"
	"github.com/p-blackswan/reel-scout/internal/config"
	serrors "github.com/p-blackswan/reel-scout/internal/errors"
	"github.com/p-blackswan/reel-scout/internal/health"
	"github.com/p-blackswan/reel-scout/internal/history"
	"github.com/p-blackswan/reel-scout/internal/instance"
	"github.com/p-blackswan/reel-scout/internal/metrics"
	"github.com/p-blackswan/reel-scout/internal/mgmt"
	"github.com/p-blackswan/reel-scout/internal/mobile"
	"github.com/p-blackswan/reel-scout/internal/notify"
	"github.com/p-blackswan/reel-scout/internal/risk"
	"github.com/p-blackswan/reel-scout/internal/scheduler"
	"github.com/p-blackswan/reel-scout/internal/session"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/telegram"
)

// exitLocked is the exit code when another daemon owns the state file.
const exitLocked = 2

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("state_file", cfg.StatePath()).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Bool("telegram_enabled", cfg.TelegramEnabled()).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Bool("age_api_enabled", cfg.AgeAPIEnabled()).
		Msg("starting reel scout")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create data dir")
	}

	guard, err := instance.Acquire(cfg.StatePath())
	if err != nil {
		if errors.Is(err, serrors.ErrInstanceLocked) {
			logger.Error().Err(err).Msg("another instance is running on this state file")
			os.Exit(exitLocked)
		}
		logger.Fatal().Err(err).Msg("failed to acquire instance lock")
	}
	defer guard.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// --- Persistence ---
	store, err := state.NewStore(cfg.StatePath(), logger, state.WithInitialSettings(map[string]string{
		"loop_sleep_seconds": formatSeconds(cfg.StepInterval),
	}))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open state store")
	}
	boot, err := store.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load state")
	}

	journal, err := history.Open(cfg.HistoryPath(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open history journal")
	}
	defer journal.Close()

	m := metrics.New()

	// --- Device ---
	simCfg := mobile.DefaultSimulatedConfig()
	if cfg.SimSeed != 0 {
		simCfg.Seed = cfg.SimSeed
	}
	simCfg.OpenProbability = cfg.SimOpenProbability
	simCfg.PoolSize = cfg.SimPoolSize
	simCfg.CaptureFailureRate = cfg.SimCaptureFailureRate
	simCfg.AdRate = cfg.SimAdRate
	device := mobile.NewSimulator(simCfg)

	// --- Health ---
	checker := health.NewChecker(logger)
	checker.Register("state_store", health.PingCheck(store.Ping))
	checker.Register("history", health.PingCheck(journal.Ping))
	checker.Register("device", health.DeviceCheck(device))

	// --- Notification channels ---
	var (
		alerts    []notify.Notifier
		publisher notify.Publisher
		retract   = notify.Router{}
		tg        *telegram.Client
		tgNotify  *notify.Telegram
	)
	if cfg.TelegramEnabled() {
		tg = telegram.New(cfg.TelegramBotToken, logger)
		tgNotify = notify.NewTelegram(tg, boot.ControlChatID, logger, notify.TelegramWithMetrics(m))
		alerts = append(alerts, tgNotify)
		publisher = tgNotify
		retract[notify.ChannelTelegram] = tgNotify
	}
	if cfg.SlackEnabled() {
		sl := notify.NewSlack(cfg.SlackBotToken, cfg.SlackChannel, logger)
		alerts = append(alerts, sl)
		if publisher == nil {
			publisher = sl
		}
		retract[notify.ChannelSlack] = sl
	}
	logNotify := notify.NewLog(logger)
	if len(alerts) == 0 {
		alerts = append(alerts, logNotify)
	}
	if publisher == nil {
		publisher = logNotify
	}
	retract[notify.ChannelLog] = logNotify
	notifier := notify.NewMulti(alerts...)

	// --- Analysis ---
	var ageClient *ageapi.Client
	if cfg.AgeAPIEnabled() {
		ageClient, err = ageapi.New(cfg.AgeAPIURL, cfg.AgeAPITimeout, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to init age API client (non-fatal)")
		}
	}
	analyzer := ageapi.NewEnricher(ageClient, logger)

	// --- Session engine ---
	manager := session.NewManager(store, device, device, risk.NewEstimator(cfg.MaxSession, logger), logger,
		session.WithMetrics(m),
		session.WithJournal(journal),
		session.WithRetractor(retract),
	)

	loop := scheduler.New(scheduler.Config{
		Interval:      cfg.StepInterval,
		AlertCooldown: cfg.RiskAlertCooldown,
	}, store, manager, publisher, notifier, analyzer, logger, scheduler.WithMetrics(m))

	// The loop sleeps at most 30s between ticks.
	checker.Register("step_loop", health.LoopCheck(loop, 2*time.Minute))

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("step loop error")
		}
	}()

	// --- Telegram commands ---
	if tg != nil {
		allowed, _ := cfg.AllowedChatIDs()
		dispatcher := command.NewDispatcher(manager, analyzer, m, logger)
		poller := command.NewPoller(tg, store, dispatcher, logger,
			command.WithAllowedChats(allowed),
			command.WithPollTimeout(cfg.TelegramPollTimeout),
			command.WithControlChatHook(tgNotify.SetChatID),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := poller.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("command poller error")
			}
		}()
	} else {
		logger.Info().Msg("Telegram not configured, skipping command poller")
	}

	// --- Journal retention ---
	if cfg.HistoryRetention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				if err := journal.RunRetention(ctx, cfg.HistoryRetention); err != nil && ctx.Err() == nil {
					logger.Warn().Err(err).Msg("history retention failed")
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}

	// --- Management API ---
	handlers := mgmt.NewHandlers(manager, analyzer, journal, checker, logger)
	mgmtServer := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		AuthConfig: mgmt.AuthConfig{
			Mode:      cfg.MgmtAuthMode,
			APIKey:    cfg.MgmtAPIKey,
			JWTSecret: cfg.MgmtJWTSecret,
		},
		RateLimit: mgmt.RateLimitConfig{
			RPS:   cfg.MgmtRateLimitRPS,
			Burst: cfg.MgmtRateLimitBurst,
		},
		CORSOrigins: strings.Join(cfg.CORSOrigins(), ","),
		TLSCert:     cfg.MgmtTLSCert,
		TLSKey:      cfg.MgmtTLSKey,
	}, handlers, checker, m, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmtServer.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	logger.Info().Msg("reel scout ready")

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	cancel()
	if err := mgmtServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("management API shutdown error")
	}

	// An active session survives the restart; the loop picks it up again.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("graceful shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
