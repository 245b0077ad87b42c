package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	app "github.com/lgmbx/DataProcessingOrchestrator"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/archive"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/client"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/config"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/engine"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/events"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/server"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store/journal"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store/memory"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/store/redis"
	"github.com/lgmbx/DataProcessingOrchestrator/internal/workflows"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/log"
)

type orchestrator struct {
	cfg        *config.Config
	store      store.Store
	archive    *archive.Store
	hub        *events.Hub
	engine     *engine.Engine
	apiServer  *server.Server
	httpServer *http.Server
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	quit       chan os.Signal
}

var (
	ErrCreateStore   = errors.New("failed to create state store")
	ErrOpenArchive   = errors.New("failed to open archive")
	ErrCreateCatalog = errors.New("failed to create workflow catalog")
)

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	o := &orchestrator{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	o.setupLogging()

	if err := o.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (o *orchestrator) run() error {
	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	defer cancel()

	if err := o.initializeStore(ctx); err != nil {
		return err
	}

	if err := o.initializeEngine(); err != nil {
		_ = o.store.Close()
		return err
	}
	o.startArchiver(ctx)
	o.startServer()

	signal.Notify(o.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(o.quit)
	<-o.quit

	o.shutdown()
	return nil
}

func (o *orchestrator) setupLogging() {
	level, _ := log.ParseLevel(o.cfg.LogLevel)

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Orchestrator starting",
		slog.String("log_level", o.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("store_backend", o.cfg.StoreBackend),
		slog.String("redis_addr", o.cfg.Redis.Addr),
		slog.Int("redis_db", o.cfg.Redis.DB),
		slog.Int("workers", o.cfg.Workers),
		slog.Bool("archive_enabled", o.cfg.ArchiveEnabled()),
		slog.String("api_host", o.cfg.APIHost),
		slog.Int("api_port", o.cfg.APIPort))
}

func (o *orchestrator) initializeStore(ctx context.Context) error {
	var a *archive.Archiver
	if o.cfg.ArchiveEnabled() {
		var err error
		a, err = archive.Open(
			ctx, o.cfg.Archive.BucketURL, o.cfg.Archive.Prefix,
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOpenArchive, err)
		}
	}

	primary, err := o.openPrimary(ctx, a)
	if err != nil {
		if a != nil {
			_ = a.Close()
		}
		return fmt.Errorf("%w: %w", ErrCreateStore, err)
	}

	if a == nil {
		o.store = primary
		return nil
	}
	o.archive = archive.NewStore(primary, a, archive.Options{
		MaxAge:    o.cfg.Archive.MaxAge,
		BatchSize: o.cfg.Archive.BatchSize,
	})
	o.store = o.archive
	return nil
}

func (o *orchestrator) openPrimary(
	ctx context.Context, a *archive.Archiver,
) (store.Store, error) {
	switch o.cfg.StoreBackend {
	case config.StoreBackendRedis:
		st, err := redis.New(ctx, o.cfg.Redis)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.StoreBackendTimebox:
		cfg := journal.Config{Redis: o.cfg.Redis}
		if a != nil {
			cfg.Hibernator = a.Hibernator()
		}
		st, err := journal.New(cfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return memory.New(), nil
	}
}

func (o *orchestrator) initializeEngine() error {
	cat, err := workflows.NewCatalog(workflows.Config{
		Shipper:     client.NewHTTPClient(api.Duration(o.cfg.StepTimeout)),
		ShippingURL: o.cfg.ShippingWebhookURL,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateCatalog, err)
	}

	o.hub = events.NewHub(events.DefaultBufferSize)
	o.hub.Start()

	o.engine = engine.New(o.cfg, engine.Dependencies{
		Store:   o.store,
		Catalog: cat,
		Events:  o.hub,
	})
	return o.engine.Start()
}

func (o *orchestrator) startArchiver(ctx context.Context) {
	if o.archive == nil {
		return
	}
	o.wg.Go(func() {
		slog.Info("Archiver started",
			slog.Duration("interval", o.cfg.Archive.SweepInterval),
			slog.Duration("max_age", o.cfg.Archive.MaxAge))
		o.archive.Run(ctx, o.cfg.Archive.SweepInterval)
	})
}

func (o *orchestrator) startServer() {
	o.apiServer = server.NewServer(o.engine, o.hub, server.Options{
		PublicBaseURL: o.cfg.PublicBaseURL,
		Service:       app.Name,
		Version:       app.Version,
	})
	mux := o.apiServer.SetupRoutes()

	o.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", o.cfg.APIHost, o.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", o.httpServer.Addr))
		err := o.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (o *orchestrator) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), o.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := o.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	o.apiServer.CloseWebSockets()

	if err := o.engine.Stop(); err != nil {
		slog.Error("Engine shutdown failed", log.Error(err))
	}

	o.cancel()
	o.wg.Wait()
	o.hub.Stop()

	if err := o.store.Close(); err != nil {
		slog.Error("Store close failed", log.Error(err))
	}

	slog.Info("Server exited")
}
