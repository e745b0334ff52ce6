package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"code-interpreter/internal/admission"
	"code-interpreter/internal/api"
	"code-interpreter/internal/chart"
	"code-interpreter/internal/config"
	"code-interpreter/internal/executor"
	"code-interpreter/internal/installer"
	"code-interpreter/internal/logging"
	"code-interpreter/internal/monitor"
	"code-interpreter/internal/runtime"
	"code-interpreter/internal/scratch"
	"code-interpreter/internal/storage"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg := config.DefaultConfig()
	fromFile := false
	if _, statErr := os.Stat(configPath); statErr == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
		cfg = loaded
		fromFile = true
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatal().Err(err).Msg("invalid environment override")
	}

	// Structured logging
	logFile, err := logging.Setup(cfg.Logging, os.Getenv("ENV") == "production")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}
	defer logFile.Close()

	if !fromFile {
		log.Info().Str("path", configPath).Msg("no config file found, using defaults")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := scratch.CleanupOrphaned(time.Now().Add(-time.Hour)); err != nil {
		log.Warn().Err(err).Msg("scratch cleanup failed")
	}

	metrics := monitor.NewMetrics()
	tracer := monitor.NewTracer()

	// Initialize database (optional; the install ledger is disabled without it)
	var db *storage.DB
	if cfg.Database.DSN != "" {
		db, err = storage.New(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.ConnMaxLifetime)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, install ledger disabled")
			db = nil
		} else {
			defer db.Close()
		}
	}

	instOpts := installer.Options{Metrics: metrics, Tracer: tracer}
	deps := api.Deps{Metrics: metrics}
	if db != nil {
		ledger := storage.NewAuditWriter(db, cfg.Database.LedgerBuffer)
		ledger.Start()
		defer ledger.Flush(10 * time.Second)

		instOpts.Ledger = ledger
		deps.Installs = db
		deps.DB = db
	}

	registry := runtime.NewRegistry(cfg.Execution.PythonBinary, cfg.Execution.Shell)
	interpreters := make(map[string]executor.Interpreter)
	for _, lang := range registry.Languages() {
		rt, _ := registry.Get(lang)
		if rt.Remediable() {
			interpreters[lang] = executor.NewPython(rt, cfg.Execution.MaxOutputBytes, cfg.Execution.WorkDir)
		} else {
			interpreters[lang] = executor.NewShell(rt, cfg.Execution.MaxOutputBytes, cfg.Execution.WorkDir)
		}
	}

	pythonRT, err := registry.Get(executor.DefaultLanguage)
	if err != nil {
		log.Fatal().Err(err).Msg("python runtime missing")
	}

	deps.Executor = executor.New(interpreters,
		installer.New(cfg.Execution.InstallCommand(), instOpts),
		executor.Options{Timeout: cfg.Execution.Timeout, Metrics: metrics, Tracer: tracer},
	)
	deps.Charts = chart.NewRenderer(pythonRT, chart.Options{
		MaxOutputBytes: cfg.Execution.MaxOutputBytes,
		WorkDir:        cfg.Execution.WorkDir,
		Timeout:        cfg.Execution.Timeout,
		Metrics:        metrics,
		Tracer:         tracer,
	})
	deps.Admission = admission.New(cfg.Admission.MaxRequestsPerClient)

	server := api.NewServer(cfg, deps)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Bool("db_enabled", db != nil).
		Str("python", cfg.Execution.PythonBinary).
		Int("admission_budget", cfg.Admission.MaxRequestsPerClient).
		Dur("timeout", cfg.Execution.Timeout).
		Msg("server starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("server stopped")
}
