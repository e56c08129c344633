package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"creditvault/config"
	"creditvault/observability/archive"
	"creditvault/observability/logging"
	telemetry "creditvault/observability/otel"
	"creditvault/services/portfoliod"
	"creditvault/services/portfoliod/navstore"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to portfoliod config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	env := strings.TrimSpace(os.Getenv("CREDITVAULT_ENV"))
	if env == "" {
		env = cfg.Log.Env
	}
	logger := logging.Setup("portfoliod", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.ResolvePath(cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryConfig(cfg.Telemetry, env, os.Getenv))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	opts := portfoliod.Options{Logger: logger}
	if cfg.Archive.Driver != "" {
		opts.Archive, err = archive.Open(cfg.Archive.Driver, cfg.Archive.DSN)
		if err != nil {
			log.Fatalf("open archive: %v", err)
		}
		logger.Info("event archive enabled",
			slog.String("driver", cfg.Archive.Driver),
			logging.MaskField("dsn", cfg.Archive.DSN))
	}
	if cfg.Keeper.Enabled && cfg.Keeper.NAVPath != "" {
		opts.NAV, err = navstore.Open(cfg.ResolvePath(cfg.Keeper.NAVPath))
		if err != nil {
			log.Fatalf("open nav store: %v", err)
		}
	}

	rt, err := portfoliod.New(cfg, opts)
	if err != nil {
		log.Fatalf("start runtime: %v", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Error("close runtime", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var keeper *portfoliod.Keeper
	if cfg.Keeper.Enabled {
		keeper = portfoliod.NewKeeper(ctx, rt)
		if err := keeper.Register(cfg.Keeper.Schedule); err != nil {
			log.Fatalf("keeper: %v", err)
		}
		keeper.Start()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", otelhttp.NewHandler(promhttp.Handler(), "portfoliod.metrics"))
	mux.Handle("/healthz", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), "portfoliod.healthz"))
	server := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", slog.String("address", cfg.MetricsAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", slog.Any("error", err))
			stop()
		}
	}()

	logger.Info("portfoliod started", slog.Int("vaults", len(rt.Vaults())))
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown", slog.Any("error", err))
	}
	if keeper != nil {
		keeper.Stop()
	}
	logger.Info("portfoliod stopped")
}

// telemetryConfig applies the standard OTEL_EXPORTER_OTLP_* variables on top of
// the telemetry section.
func telemetryConfig(t config.Telemetry, env string, getenv func(string) string) telemetry.Config {
	endpoint := strings.TrimSpace(t.Endpoint)
	if v := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		endpoint = v
	}
	insecure := t.Insecure
	if v := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			insecure = parsed
		}
	}
	headers := telemetry.ParseHeaders(t.Headers)
	for k, v := range telemetry.ParseHeaders(getenv("OTEL_EXPORTER_OTLP_HEADERS")) {
		headers[k] = v
	}
	return telemetry.Config{
		ServiceName: "portfoliod",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    insecure,
		Headers:     headers,
		Metrics:     t.Metrics,
		Traces:      t.Traces,
	}
}
