package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/victoralfred/kube_provisioner/internal/app"
	"github.com/victoralfred/kube_provisioner/pkg/config"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "optional config file")
	flag.Parse()

	// Create context for initialization
	ctx := context.Background()

	// Bootstrap logger until configuration is known
	log := logger.New("info", os.Getenv("APP_ENV"))
	log.Info("starting kube_provisioner server")

	// Load configuration, overlaying store credentials from Vault when enabled
	cfg, secretsManager, err := config.LoadWithVault(ctx, *configFile, log)
	if err != nil {
		log.Fatal("failed to load configuration", err)
	}
	if secretsManager != nil {
		defer func() {
			if err := secretsManager.Close(); err != nil {
				log.Error("failed to close secrets manager", err)
			}
		}()
	}

	log = logger.New(cfg.App.LogLevel, cfg.App.Environment).
		WithField("app", cfg.App.Name).
		WithField("version", cfg.App.Version)
	log.WithField("backend", cfg.Store.Backend).Info("configuration loaded successfully")

	// Connect to the key-value backend
	kv, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", err)
	}

	if err := kv.Ping(ctx); err != nil {
		log.Fatal("store health check failed", err)
	}

	// Wire modules, propagator and journal
	application, err := app.New(cfg, kv, log)
	if err != nil {
		kv.Close()
		log.Fatal("failed to initialize application", err)
	}
	application.Start()
	log.Info("metrics collector started successfully")

	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      application.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.WithField("address", srv.Addr).Info("starting http server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", err)
	}

	// Flush the journal and close the store
	if err := application.Close(); err != nil {
		log.Error("failed to close application", err)
	}

	log.Info("server stopped")
}
