// Command authi-claims serves the chronic treatment claim intake API: a
// staged workflow that turns a clinical note into a documented claim.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/salulink/authi-claims/analysis"
	"github.com/salulink/authi-claims/catalog"
	"github.com/salulink/authi-claims/claim"
	"github.com/salulink/authi-claims/config"
	"github.com/salulink/authi-claims/handlers"
	"github.com/salulink/authi-claims/health"
	"github.com/salulink/authi-claims/logging"
	"github.com/salulink/authi-claims/refdata"
	"github.com/salulink/authi-claims/scheduler"
	"github.com/salulink/authi-claims/server"
	"github.com/salulink/authi-claims/session"
	"github.com/salulink/authi-claims/store"
	"github.com/salulink/authi-claims/validation"
	"github.com/salulink/authi-claims/workflow"
)

// application is the wired service
type application struct {
	catalog   *catalog.Catalog
	cases     *store.Store
	sessions  *session.Registry
	scheduler *scheduler.Scheduler
	server    *server.Server
}

// newApplication wires every component from cfg. Nothing is started.
func newApplication(cfg *config.Config) (*application, error) {
	cat := catalog.New()
	cat.SetServerStartTime(time.Now())

	cases := store.New()
	if cfg.CasesFile != "" {
		opened, err := store.Open(cfg.CasesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open case store: %w", err)
		}
		cases = opened
	}

	client := analysis.NewClient(cfg.AnalysisURL, cfg.AnalysisTimeout)
	exporter := claim.NewExporter(cfg.ProductName, claim.NewPDFRenderer())
	validator := validation.NewDataValidator()

	sessions := session.NewRegistry(workflow.Deps{
		Catalog:  cat,
		Detector: analysis.NewDetector(client),
		Store:    cases,
		Exporter: exporter,
	})

	loader := refdata.NewLoader(refdata.Paths{
		Conditions: cfg.ConditionsPath(),
		Treatments: cfg.TreatmentsPath(),
		Medicines:  cfg.MedicinesPath(),
	})
	sched := scheduler.NewScheduler(cat, loader, validator, sessions, scheduler.Options{
		ReloadAt:    cfg.ReloadAt,
		SessionIdle: cfg.SessionIdleTimeout,
	})

	checker := health.NewHealthChecker(cat, cases, client, cfg.ReloadAt)
	api := handlers.NewHTTPHandler(sessions, cat, cases, exporter, validator, checker)

	return &application{
		catalog:   cat,
		cases:     cases,
		sessions:  sessions,
		scheduler: sched,
		server:    server.NewServer(cfg, api),
	}, nil
}

// loadEnv reads .env from the working directory, then from the executable
// directory, which becomes the working directory so relative paths resolve
func loadEnv() {
	if err := godotenv.Load(); err == nil {
		return
	}
	ex, err := os.Executable()
	if err != nil {
		return
	}
	dir := filepath.Dir(ex)
	if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
		_ = os.Chdir(dir)
	}
}

func run() error {
	loadEnv()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logSvc := logging.InitLogger(logging.Options{
		Dir:            cfg.LogDir,
		Env:            cfg.Env,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	defer func() { _ = logSvc.Close() }()

	app, err := newApplication(cfg)
	if err != nil {
		return err
	}

	if err := app.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer app.scheduler.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- app.server.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logging.Info("Received shutdown signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return app.server.Shutdown(ctx)
}

func main() {
	if err := run(); err != nil {
		logging.Error("Service stopped", "error", err)
		os.Exit(1)
	}
}
