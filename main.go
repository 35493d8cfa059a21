// Command chatcore is the entrypoint for the command-routing and
// message-classification core. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and Redis and runs idempotent migrations.
//   - Loads the command routing table and warms the classifier ensemble.
//   - Drives the daily global emote refresh in the background.
//   - Exposes the HTTP API: health, status, metrics, commands, detection,
//     emotes, and the admin surface.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chatcore/config"
	"github.com/onnwee/chatcore/db"
	"github.com/onnwee/chatcore/emotes"
	"github.com/onnwee/chatcore/kvcache"
	"github.com/onnwee/chatcore/language"
	"github.com/onnwee/chatcore/registry"
	"github.com/onnwee/chatcore/server"
	"github.com/onnwee/chatcore/telemetry"
	"github.com/onnwee/chatcore/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chatcore", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Versioned migrations first, embedded SQL as the fallback for deployments
	// that predate the schema_migrations table.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
	} else {
		slog.Info("versioned migrations completed", slog.String("component", "db_migrate"))
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb, err := kvcache.Connect(ctx)
	if err != nil {
		slog.Error("failed to connect redis", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("failed to close redis", slog.Any("err", err))
		}
	}()
	kv := kvcache.New(rdb)

	// Emote providers. The twitch provider needs Helix app credentials for
	// native emotes; BTTV/FFZ/7TV need none.
	var providers []emotes.Provider
	twitchProvider := &emotes.TwitchProvider{}
	if err := cfg.ValidateEmoteProviderReady(); err == nil {
		twitchProvider.Helix = &twitchapi.HelixClient{
			ClientID:    cfg.TwitchClientID,
			TokenSource: twitchapi.NewAppTokenSource(ctx, cfg.TwitchClientID, cfg.TwitchClientSecret),
		}
	} else {
		slog.Warn("twitch helix disabled; native emotes unavailable", slog.Any("err", err))
	}
	providers = append(providers, twitchProvider)
	emoteSvc := emotes.NewService(database, kv, providers...)

	// Command routing table
	reg := registry.New(database)
	if err := reg.Initialize(ctx); err != nil {
		slog.Error("failed to load command registry", slog.Any("err", err))
		os.Exit(1)
	}

	// Classifier ensemble; models load lazily on first detection, HealthCheck
	// forces it now so readiness reflects reality.
	detector := language.NewDetector()
	if !detector.HealthCheck() {
		slog.Warn("no language classifiers available; detection endpoints will fail")
	}

	// Daily global emote refresh: check hourly, run only when the last run is
	// more than a day old, so restarts don't burn provider rate limits.
	go func() {
		ticker := time.NewTicker(cfg.GlobalRefreshCheckInterval)
		defer ticker.Stop()
		for {
			if emoteSvc.NeedsGlobalRefresh(ctx) {
				emoteSvc.RefreshGlobalEmotesCron(ctx)
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	deps := server.Deps{
		DB:              database,
		KV:              kv,
		Registry:        reg,
		Emotes:          emoteSvc,
		Detector:        detector,
		DetectMinLength: cfg.DetectMinLength,
	}
	go func() {
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
