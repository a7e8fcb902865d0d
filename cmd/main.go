package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"matclass/artifact"
	"matclass/db"
	qhttp "matclass/http"
	"matclass/logger"
	"matclass/monitoring"
	"matclass/predict"
)

func main() {
	// 1. Load config
	config, err := loadConfig(findConfig())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	zl, err := logger.New(config.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	// 3. Provenance store, optional
	var store *db.Store
	if config.Database.Driver != "none" {
		store, err = db.Open(context.Background(), config.Database.Driver, config.Database.DSN)
		if err != nil {
			zl.Warn("provenance store unavailable, continuing without it",
				zap.String("driver", config.Database.Driver), zap.Error(err))
			store = nil
		}
	}

	// 4. Provision and load artifacts; a failure leaves the service unavailable
	bundle := provision(config, store, zl)

	var watcher *artifact.Watcher
	if _, err := os.Stat(config.Artifacts.Dir); err == nil {
		watcher, err = artifact.NewWatcher(config.Artifacts, zl, nil)
		if err != nil {
			zl.Warn("artifact watcher disabled", zap.Error(err))
		}
	}

	// 5. HTTP server
	deps := qhttp.Deps{
		Service: predict.NewService(bundle, zl),
		Metrics: monitoring.NewPredictionMetrics(),
		Logger:  zl,
	}
	if store != nil {
		deps.Provenance = store
	}
	server := qhttp.NewServer(config.Http, deps)
	go func() {
		if err := server.Start(); err != nil {
			zl.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down")

	err = server.Stop()
	if watcher != nil {
		err = multierr.Append(err, watcher.Close())
	}
	if store != nil {
		err = multierr.Append(err, store.Close())
	}
	if err != nil {
		zl.Error("shutdown finished with errors", zap.Error(err))
	}
	zl.Info("exiting")
}

func provision(config *Config, store *db.Store, zl *zap.Logger) *artifact.Bundle {
	var opts []artifact.Option
	if store != nil {
		opts = append(opts, artifact.WithRecorder(store))
	}
	provider := artifact.NewProvider(config.Artifacts, zl, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), config.Artifacts.FetchTimeout)
	defer cancel()

	bundle, err := provider.Provision(ctx)
	if bundle == nil {
		zl.Error("model artifacts unavailable, /predict will answer with an error", zap.Error(err))
		return nil
	}
	if err != nil {
		zl.Warn("artifact provisioning reported errors", zap.Error(err))
	}
	info := bundle.ModelInfo()
	zl.Info("model artifacts loaded",
		zap.String("classifier", info.ClassifierType),
		zap.Int("trees", info.Trees),
		zap.String("scaler", info.ScalerType),
		zap.Strings("classes", info.Classes))
	return bundle
}
