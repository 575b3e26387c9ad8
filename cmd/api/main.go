package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/site-ledger/internal/api/handlers"
	"github.com/dvloznov/site-ledger/internal/app"
	"github.com/dvloznov/site-ledger/internal/bot"
	"github.com/dvloznov/site-ledger/internal/config"
	"github.com/dvloznov/site-ledger/internal/jobs"
	"github.com/dvloznov/site-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/site-ledger/internal/logger"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "Path to config file (or set "+config.ConfigPathEnv+")")
		addr       = flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	// Initialize logger
	log := logger.NewFromSettings(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(config.RoleAPI); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire pipeline")
	}
	defer a.Close()

	// HTTP callers poll the job for the reply, so the orchestrator has no replier.
	orchestrator, err := a.NewOrchestrator(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create orchestrator")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Queue.Buffer, jobStore).WithWorkers(cfg.Queue.Workers)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.Queue.Workers).Msg("Starting job workers")
	if err := jobQueue.Start(workerCtx, jobs.NewVoiceNoteHandler(orchestrator, bot.FormatOutcome)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	// Initialize handlers
	router := &handlers.Router{
		Voice:     handlers.NewVoiceHandler(jobQueue, cfg.Pipeline.MaxAudioBytes, log),
		Jobs:      handlers.NewJobsHandler(jobStore, log),
		Projects:  handlers.NewProjectsHandler(a.ListProjects, log),
		AuthToken: cfg.Server.AuthToken,
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router.Handler(log),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight voice notes
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
