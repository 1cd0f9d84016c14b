package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/ctis"
	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/httpx"
	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/ledger"
	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/metrics"
	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/notifier"
	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/recordedfuture"
	"github.com/hive-corporation/rf-ctis-bridge/internal/config"
	"github.com/hive-corporation/rf-ctis-bridge/internal/core/service"
	"github.com/hive-corporation/rf-ctis-bridge/internal/logging"
	"github.com/hive-corporation/rf-ctis-bridge/internal/telemetry"
)

const serviceName = "rf-ctis-bridge"

var version = "dev"

func main() {
	// Load .env file if it exists (optional - secrets may come from the environment)
	envErr := godotenv.Load()

	logging.Init(serviceName)
	slog.SetDefault(slog.Default().With("run_id", uuid.NewString()))
	if envErr != nil {
		slog.Debug("⚠️  No .env file found (this is fine if secrets come from the environment)")
	}

	os.Exit(run())
}

func run() int {
	start := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("🚀 Started", "version", version)

	cfg, err := config.Load(config.Path())
	if err != nil {
		slog.Error("❌ Invalid configuration", "path", config.Path(), "error", err)
		return 1
	}

	var slack *notifier.SlackNotifier
	if cfg.Slack.URL != "" {
		slack = notifier.NewSlackNotifier(cfg.Slack.URL, nil)
	} else {
		slog.Warn("⚠️ Slack webhook not configured. Notifications will only be logged.")
	}
	notify := notifier.NewManager(slack)

	shutdown := telemetry.InitTracer(ctx, serviceName, version)
	defer telemetry.Flush(context.Background(), shutdown)

	metrics.InitMetrics()

	stats, err := runSync(ctx, cfg, notify)
	metrics.RecordRun(time.Since(start), err == nil)
	pushMetrics(cfg)

	if err != nil {
		attrs := []any{"error", err}
		var opErr *ctis.OperationError
		if errors.As(err, &opErr) {
			attrs = append(attrs, "status", opErr.Status)
		}
		slog.Error("❌ Got a fatal error, notifying + aborting", attrs...)
		notify.SendError("Fatal error", err.Error(), true)
		return 1
	}

	slog.Info("🏁 Finished, exiting",
		"alerts", stats.Alerts,
		"created", stats.Created,
		"skipped", stats.Skipped,
		"entity_errors", stats.EntityErrors,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return 0
}

func runSync(ctx context.Context, cfg *config.Config, notify *notifier.Manager) (service.Stats, error) {
	ctisConfig := httpx.DefaultConfig("ctis")
	ctisConfig.Timeout = cfg.CTIS.Timeout
	ctisHTTP := httpx.NewResilientClient(ctisConfig)

	slog.Info("🔌 Logging in to CTIS...", "url", cfg.CTIS.URL)
	session, err := ctis.Login(ctx, ctisHTTP, cfg.CTIS.URL, cfg.CTIS.Username, cfg.CTIS.Password)
	if err != nil {
		return service.Stats{}, err
	}

	led, err := ledger.Open(ctx, ledger.Config{
		Backend:     cfg.Ledger.Backend,
		Path:        cfg.Ledger.Path,
		DatabaseURL: cfg.Ledger.DatabaseURL,
		RedisAddr:   cfg.Ledger.RedisAddr,
		RedisPrefix: cfg.Ledger.RedisPrefix,
	})
	if err != nil {
		return service.Stats{}, err
	}
	defer led.Close()
	slog.Info("💾 Sync ledger ready", "backend", cfg.Ledger.Backend)

	platform := ctis.NewClient(session, ctisHTTP, ctis.Options{
		Mappings:            cfg.Mappings.Entities,
		IdentityAliases:     cfg.Mappings.Identities,
		SourceFilter:        cfg.Sources,
		MissingEntitiesFile: cfg.MissingEntitiesFile,
		Ledger:              led,
	})

	rf := recordedfuture.NewClient(
		httpx.NewResilientClient(httpx.DefaultConfig("recorded-future")),
		cfg.RecordedFuture.URL,
		cfg.RecordedFuture.Token,
	)

	bridge := service.NewBridge(rf, platform, notify, cfg.RecordedFuture.Limit)
	return bridge.Run(ctx)
}

func pushMetrics(cfg *config.Config) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}
	if err := metrics.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		slog.Warn("⚠️ Failed to push metrics", "error", err)
		return
	}
	slog.Info("📊 Metrics pushed", "gateway", cfg.Metrics.PushgatewayURL)
}
