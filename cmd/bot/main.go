package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dvloznov/site-ledger/internal/app"
	"github.com/dvloznov/site-ledger/internal/bot"
	"github.com/dvloznov/site-ledger/internal/config"
	"github.com/dvloznov/site-ledger/internal/jobs"
	"github.com/dvloznov/site-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/site-ledger/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (or set "+config.ConfigPathEnv+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromSettings(cfg.Log.Level, cfg.Log.Format)

	// Missing secrets stop the bot before it starts polling.
	if err := cfg.Validate(config.RoleBot); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire pipeline")
	}
	defer a.Close()

	bot.UseLogger(log)
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Telegram")
	}
	api.Debug = cfg.Telegram.Debug
	log.Info().Str("username", api.Self.UserName).Msg("Authorized on Telegram")

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Queue.Buffer, jobStore).WithWorkers(cfg.Queue.Workers)

	b := bot.New(api, jobQueue, bot.Options{
		Projects:   a.ListProjects,
		Counts:     jobStore.Counts,
		Storage:    storageLabel(cfg.Sheets.Backend),
		MaxRetries: cfg.Queue.MaxRetries,
	}, log)

	orchestrator, err := a.NewOrchestrator(b)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create orchestrator")
	}

	// Workers outlive ctx so that in-flight notes finish after a signal.
	workerCtx, cancelWorkers := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancelWorkers()
	if err := jobQueue.Start(workerCtx, jobs.NewVoiceNoteHandler(orchestrator, nil)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}
	log.Info().Int("workers", cfg.Queue.Workers).Msg("Job workers started")

	if err := b.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Bot stopped with error")
	}

	log.Info().Msg("Shutting down bot...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	log.Info().Msg("Bot exited")
}

func storageLabel(backend string) string {
	if backend == config.BackendXLSX {
		return "Planilhas locais (xlsx)"
	}
	return "Google Planilhas"
}
