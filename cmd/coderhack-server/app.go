package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coderhack/adapters/jsonfile"
	mem "coderhack/adapters/memory"
	redisAdapter "coderhack/adapters/redis"
	sqlxAdapter "coderhack/adapters/sqlx"
	"coderhack/analytics"
	"coderhack/api/httpapi"
	"coderhack/config"
	"coderhack/core"
	"coderhack/engine"
	"coderhack/gamify"
	"coderhack/integrations/webhook"
	"coderhack/realtime"
)

// ConfigPath is the --config flag value; empty means defaults plus environment.
type ConfigPath string

// MetricsServer serves /metrics on its own listener. Server is nil when metrics are disabled.
type MetricsServer struct {
	Server *http.Server
}

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Service *engine.UserService
	Handler http.Handler
	Server  *http.Server
	Metrics MetricsServer
}

func provideConfig(path ConfigPath) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(string(path))
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg, os.Stdout, os.Stderr)
}

func provideHub() (*realtime.Hub, func()) {
	hub := realtime.NewHub()
	return hub, hub.Close
}

func provideStore(cfg *config.Config, logger *slog.Logger) (engine.Store, func(), error) {
	store, closeFn, err := setupStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := closeFn(); err != nil {
			logger.Error("close storage failed", "adapter", cfg.Storage.Adapter, "error", err)
		}
	}
	return store, cleanup, nil
}

func provideRegistry(cfg *config.Config) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if cfg.Metrics.CollectSystem {
		if err := reg.Register(collectors.NewGoCollector()); err != nil {
			return nil, err
		}
		if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func provideCollector(reg *prometheus.Registry) (*analytics.Collector, error) {
	return analytics.NewCollector(reg)
}

func provideWebhooks(cfg *config.Config, logger *slog.Logger) *webhook.Sink {
	if len(cfg.Events.Webhooks) == 0 {
		return nil
	}
	types := make([]core.EventType, 0, len(cfg.Events.WebhookEventTypes))
	for _, t := range cfg.Events.WebhookEventTypes {
		types = append(types, core.EventType(t))
	}
	return webhook.New(cfg.Events.Webhooks,
		webhook.WithClient(&http.Client{Timeout: cfg.Events.WebhookTimeout}),
		webhook.WithLogger(logger),
		webhook.WithEventTypes(types...),
	)
}

func provideService(
	cfg *config.Config,
	logger *slog.Logger,
	hub *realtime.Hub,
	store engine.Store,
	collector *analytics.Collector,
	hooks *webhook.Sink,
) (*engine.UserService, func()) {
	mode := engine.DispatchAsync
	if cfg.Events.Dispatch == config.DispatchSync {
		mode = engine.DispatchSync
	}
	opts := []gamify.Option{
		gamify.WithStore(store),
		gamify.WithLogger(logger),
		gamify.WithDispatchMode(mode),
		gamify.WithBusOptions(engine.WithWorkers(cfg.Events.Workers), engine.WithQueueSize(cfg.Events.QueueSize)),
		gamify.WithRealtime(hub),
		gamify.WithSink(collector),
	}
	if hooks != nil {
		opts = append(opts, gamify.WithSink(hooks))
	}
	svc := gamify.New(opts...)
	return svc, svc.Close
}

func provideHandler(svc *engine.UserService, hub *realtime.Hub, cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) (http.Handler, error) {
	return httpapi.NewRouter(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Logger:           logger,
		Metrics:          reg,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func provideMetricsServer(cfg *config.Config, reg *prometheus.Registry) MetricsServer {
	if !cfg.Metrics.Enabled {
		return MetricsServer{}
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return MetricsServer{Server: &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}}
}

// Run serves until ctx is cancelled, then shuts both listeners down within
// the configured timeout.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		a.Logger.Info("server listening", "server", name, "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go serve("api", a.Server)
	if a.Metrics.Server != nil {
		go serve("metrics", a.Metrics.Server)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	a.Logger.Info("shutting down server", "timeout", a.Config.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown api server: %w", err))
	}
	if a.Metrics.Server != nil {
		if err := a.Metrics.Server.Shutdown(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("shutdown metrics server: %w", err))
		}
	}
	return runErr
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config, stdout, stderr io.Writer) *slog.Logger {
	var handler slog.Handler

	out := stdout
	if cfg.Logging.Output == "stderr" {
		out = stderr
	}
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func convertAttributes(attrs map[string]string) []slog.Attr {
	result := make([]slog.Attr, 0, len(attrs))
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the storage adapter named by the configuration and a
// function that releases it.
func setupStorage(cfg *config.Config) (engine.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Storage.Adapter {
	case config.AdapterMemory:
		return mem.New(), noop, nil
	case config.AdapterRedis:
		s, err := redisAdapter.New(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.AdapterSQL:
		if cfg.Storage.SQL.Driver == sqlxAdapter.DriverSQLite {
			if err := ensureSQLiteDir(cfg.Storage.SQL.DSN); err != nil {
				return nil, nil, err
			}
		}
		s, err := sqlxAdapter.New(cfg.Storage.SQL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.AdapterFile:
		s, err := jsonfile.New(cfg.Storage.File.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

func ensureSQLiteDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
		return fmt.Errorf("create sqlite directory: %w", err)
	}
	return nil
}
