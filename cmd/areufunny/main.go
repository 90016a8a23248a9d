// Command areufunny is the main entry point for the areufunny.com server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/areufunny/areufunny/internal/blob"
	s3blob "github.com/areufunny/areufunny/internal/blob/s3"
	"github.com/areufunny/areufunny/internal/config"
	"github.com/areufunny/areufunny/internal/feed"
	"github.com/areufunny/areufunny/internal/health"
	"github.com/areufunny/areufunny/internal/observe"
	"github.com/areufunny/areufunny/internal/resilience"
	"github.com/areufunny/areufunny/internal/server"
	"github.com/areufunny/areufunny/internal/store/postgres"
	"github.com/areufunny/areufunny/internal/upload"
	"github.com/areufunny/areufunny/pkg/capture"
	paengine "github.com/areufunny/areufunny/pkg/capture/portaudio"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "areufunny: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "areufunny: %v\n", err)
		}
		return 1
	}
	if cfg.Storage.PostgresDSN == "" {
		fmt.Fprintln(os.Stderr, "areufunny: storage.postgres_dsn is required to run the server")
		return 1
	}
	if cfg.Blob.Bucket == "" {
		fmt.Fprintln(os.Stderr, "areufunny: blob.bucket is required to run the server")
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config reloads can adjust it live.
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("areufunny starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "areufunny",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	st, err := postgres.NewStore(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		return 1
	}
	defer st.Close()

	s3store, err := s3blob.New(ctx, s3blob.Config{
		Bucket:          cfg.Blob.Bucket,
		Region:          cfg.Blob.Region,
		AccessKeyID:     cfg.Blob.AccessKeyID,
		SecretAccessKey: cfg.Blob.SecretAccessKey,
		Endpoint:        cfg.Blob.Endpoint,
		PublicBaseURL:   cfg.Blob.PublicBaseURL,
	})
	if err != nil {
		slog.Error("failed to create blob store", "err", err)
		return 1
	}
	blobs := blob.WithBreaker(s3store, resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "blob",
	}))

	// ── Domain services ───────────────────────────────────────────────────────
	pipe, err := upload.NewPipeline(upload.Config{
		Blobs:          blobs,
		Sets:           st,
		Votes:          st,
		MinValid:       cfg.Capture.MinValidDuration.Std(),
		DailyPostLimit: cfg.Upload.DailyPostLimit,
		Metrics:        metrics,
	})
	if err != nil {
		slog.Error("failed to create upload pipeline", "err", err)
		return 1
	}
	feedSvc, err := feed.NewService(st, st, metrics)
	if err != nil {
		slog.Error("failed to create feed service", "err", err)
		return 1
	}

	srv, err := server.New(server.Config{
		ListenAddr:    cfg.Server.ListenAddr,
		Feed:          feedSvc,
		Uploads:       pipe,
		Sets:          st,
		Engine:        paengine.NewEngine(),
		CaptureTarget: captureTarget(cfg.Capture),
		CountdownFrom: cfg.Capture.CountdownFrom,
		FeedPageSize:  cfg.Feed.PageSize,
		Metrics:       metrics,
		Checkers: []health.Checker{
			{Name: "database", Check: st.Ping},
			{Name: "blob", Check: s3store.Ping},
		},
		TLSCertFile: tlsCert(cfg),
		TLSKeyFile:  tlsKey(cfg),
	})
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	// ── Config hot-reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if !d.Any() {
			return
		}
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "log_level", d.NewLogLevel)
		}
		if d.CaptureChanged {
			srv.SetCaptureTuning(captureTarget(d.NewCapture), d.NewCapture.CountdownFrom)
			slog.Info("capture tuning changed",
				"target", d.NewCapture.TargetDuration.Std(),
				"countdown_from", d.NewCapture.CountdownFrom,
			)
		}
		if d.FeedChanged {
			srv.SetFeedPageSize(d.NewFeed.PageSize)
			slog.Info("feed page size changed", "page_size", d.NewFeed.PageSize)
		}
		if d.CaptureChanged || d.UploadChanged {
			pipe.SetPolicy(new.Capture.MinValidDuration.Std(), new.Upload.DailyPostLimit)
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Wiring helpers ────────────────────────────────────────────────────────────

func captureTarget(c config.CaptureConfig) capture.Target {
	return capture.Target{
		Duration:      c.TargetDuration.Std(),
		MinValid:      c.MinValidDuration.Std(),
		SampleCadence: c.SampleCadence.Std(),
	}
}

func tlsCert(cfg *config.Config) string {
	if cfg.Server.TLS == nil {
		return ""
	}
	return cfg.Server.TLS.CertFile
}

func tlsKey(cfg *config.Config) string {
	if cfg.Server.TLS == nil {
		return ""
	}
	return cfg.Server.TLS.KeyFile
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       areufunny — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("listen", orDefault(cfg.Server.ListenAddr, ":8080"))
	printRow("tls", onOff(cfg.Server.TLS != nil))
	printRow("bucket", cfg.Blob.Bucket)
	printRow("target", durOrDefault(cfg.Capture.TargetDuration, capture.DefaultDuration))
	printRow("min valid", durOrDefault(cfg.Capture.MinValidDuration, capture.DefaultMinValid))
	if cfg.Upload.DailyPostLimit > 0 {
		printRow("daily limit", fmt.Sprintf("%d posts", cfg.Upload.DailyPostLimit))
	} else {
		printRow("daily limit", "off")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	fmt.Printf("║ %-12s %-24s ║\n", label, value)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func durOrDefault(d config.Duration, def time.Duration) string {
	if d <= 0 {
		return def.String()
	}
	return d.Std().String()
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
