// Package app wires configuration, storage, models, and the detection
// pipeline into a runnable application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fieldwatch/fieldwatch/internal/log"
	"github.com/fieldwatch/fieldwatch/internal/modelstore"
	"github.com/fieldwatch/fieldwatch/internal/pipeline"
	"github.com/fieldwatch/fieldwatch/internal/recommend"
	"github.com/fieldwatch/fieldwatch/internal/storage"
	"github.com/fieldwatch/fieldwatch/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger

	pipeline *pipeline.Pipeline
	records  storage.RecordStore
	models   modelstore.Store
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Bootstrap loads configuration and assembles the detection pipeline.
// Persisted models are restored so an established deployment resumes
// scoring immediately instead of re-collecting its baseline.
func (a *App) Bootstrap(ctx context.Context) (*config.ConfigData, error) {
	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if cfg.Storage.TimescaleDB != nil {
		store, err := storage.NewTimescaleDBStore(cfg.Storage.TimescaleDB.ConnectionString, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to record store: %w", err)
		}
		a.records = store
	} else {
		a.logger.Info("no record store configured, records held in memory only")
		a.records = storage.NewMemoryStore()
	}

	a.models, err = openModelStore(cfg.Storage.ModelStore)
	if err != nil {
		return nil, err
	}

	rules := recommend.DefaultRules()
	if cfg.RulesFile != "" {
		rules, err = recommend.LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		a.logger.Infow("loaded rule table", "file", cfg.RulesFile, "rules", len(rules))
	}
	engine := recommend.NewEngine(rules, a.logger)

	registry := pipeline.NewModelRegistry()
	a.pipeline = pipeline.New(pipeline.OptionsFromConfig(cfg.Detection),
		registry, a.models, a.records, engine, a.logger)
	a.pipeline.LoadModels(ctx)

	return cfg, nil
}

func openModelStore(cfg config.ModelStoreData) (modelstore.Store, error) {
	switch cfg.Backend {
	case "", "file":
		path := cfg.Path
		if path == "" {
			path = "models"
		}
		return modelstore.NewFileStore(path)
	case "sqlite":
		return modelstore.NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown model store backend %q", cfg.Backend)
	}
}

// Pipeline returns the assembled detection pipeline. Valid after Bootstrap.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.Bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.closeStores()

	var metricsSrv *http.Server
	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			log.Infof("metrics listening on %s", cfg.Metrics.ListenAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	cancel()

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("metrics server shutdown: %v", err)
		}
	}

	log.Info("shutdown complete")
	return nil
}

func (a *App) closeStores() {
	if a.models != nil {
		if err := a.models.Close(); err != nil {
			log.Errorf("closing model store: %v", err)
		}
	}
	if a.records != nil {
		if err := a.records.Close(); err != nil {
			log.Errorf("closing record store: %v", err)
		}
	}
}
