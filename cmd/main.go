package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/botpulse/internal/adapters/http/api"
	"github.com/okian/botpulse/internal/adapters/http/live"
	"github.com/okian/botpulse/internal/adapters/http/swagger"
	"github.com/okian/botpulse/internal/adapters/repository"
	"github.com/okian/botpulse/internal/adapters/sheets"
	app "github.com/okian/botpulse/internal/app"
	"github.com/okian/botpulse/internal/catalog"
	"github.com/okian/botpulse/internal/config"
	"github.com/okian/botpulse/pkg/logger"
	"github.com/okian/botpulse/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 60 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	a, err := build(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "startup failed", logger.Error(err))
		os.Exit(1)
	}
	defer a.close(context.Background())

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, a.service)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	// Websocket connections are hijacked, so Shutdown does not wait for them.
	a.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}

// application holds the wired components of the server.
type application struct {
	cache   repository.Store
	catalog *catalog.Watcher
	service *app.Service
	hub     *live.Hub
	handler http.Handler
	log     logger.Logger
}

// build wires every component from cfg and starts the background parts.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	a := &application{log: log}

	if cfg.CachePath != "" {
		store, err := repository.NewSQLiteStore(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		a.cache = store
	} else {
		a.cache = repository.NewMemoryStore()
	}

	watcher, err := catalog.NewWatcher(cfg.CatalogPath, catalog.WithLogger(log.Named("catalog")))
	if err != nil {
		_ = a.cache.Close()
		return nil, err
	}
	a.catalog = watcher

	client := sheets.New(
		sheets.WithAPIKey(cfg.SheetsAPIKey),
		sheets.WithBaseURL(cfg.SheetsBaseURL),
		sheets.WithProxies(cfg.SheetsProxies...),
		sheets.WithMaxAttempts(cfg.SheetsMaxAttempts),
		sheets.WithBackoff(config.Ms(cfg.SheetsInitialBackoffMS), config.Ms(cfg.SheetsMaxBackoffMS)),
		sheets.WithMaxRetryAfter(config.Ms(cfg.SheetsMaxRetryAfterMS)),
		sheets.WithTimeout(config.Ms(cfg.SheetsRequestTimeoutMS)),
		sheets.WithLogger(log.Named("sheets")),
	)

	a.hub = live.NewHub(live.WithLogger(log.Named("live")))

	a.service = app.New(watcher, client,
		app.WithLogger(log.Named("service")),
		app.WithCache(a.cache),
		app.WithNotifier(a.hub),
		app.WithWorkerCount(cfg.RefreshWorkerCount),
		app.WithQueueSize(cfg.RefreshQueueSize),
		app.WithCacheTTL(cfg.CacheTTL()),
		app.WithRefreshInterval(cfg.RefreshInterval()),
		app.WithLocation(cfg.Location()),
		app.WithMovingAverageWindow(cfg.MovingAverageWindow),
		app.WithFetchTimeout(config.Ms(cfg.FetchTimeoutMS)),
	)

	if err := watcher.Start(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	if err := a.service.Start(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}

	r := mux.NewRouter()
	swagger.Register(ctx, r)
	api.NewServer(a.service, a.service,
		api.WithLive(a.hub),
		api.WithLogger(log.Named("api")),
	).Register(ctx, r)
	r.Handle("/", http.RedirectHandler("/dashboard", http.StatusFound)).Methods(http.MethodGet)
	a.handler = r

	log.Info(ctx, "application wired",
		logger.Int("departments", len(watcher.Current().Departments)),
		logger.String("cache", cacheKind(cfg)),
		logger.Int("proxies", len(cfg.SheetsProxies)))
	return a, nil
}

// close stops the components in reverse order of start.
func (a *application) close(ctx context.Context) {
	if a.hub != nil {
		a.hub.Close()
	}
	if a.service != nil {
		a.service.Stop()
	}
	if a.catalog != nil {
		if err := a.catalog.Stop(); err != nil {
			a.log.Warn(ctx, "catalog watcher stop", logger.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn(ctx, "cache close", logger.Error(err))
		}
	}
}

func cacheKind(cfg *config.Config) string {
	if cfg.CachePath == "" {
		return "memory"
	}
	return "sqlite:" + cfg.CachePath
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater keeps the queue and cache gauges current.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics. GetStats refreshes the
// cache gauge itself.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()
	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
