package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/site-ledger/internal/app"
	"github.com/dvloznov/site-ledger/internal/bot"
	"github.com/dvloznov/site-ledger/internal/config"
	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/gcsuploader"
	infraBQ "github.com/dvloznov/site-ledger/internal/infra/bigquery"
	"github.com/dvloznov/site-ledger/internal/ledger"
	"github.com/dvloznov/site-ledger/internal/logger"
	"github.com/dvloznov/site-ledger/internal/pipeline"
)

// SourceCLI tags notes processed from the command line.
const SourceCLI = "cli"

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "process":
		runProcess(log)
	case "extract":
		runExtract(log)
	case "normalize":
		runNormalize()
	case "projects":
		runProjects(log)
	case "status":
		runStatus(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Site Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  process    Run a voice note through the full pipeline")
	fmt.Println("  extract    Extract a record from a transcript without writing it")
	fmt.Println("  normalize  Show the canonical project name for a spoken name")
	fmt.Println("  projects   List project spreadsheets")
	fmt.Println("  status     Show recent runs from BigQuery")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// loadConfig loads the configuration and switches log to its settings.
func loadConfig(path string, role config.Role, log *zerolog.Logger) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	*log = logger.NewFromSettings(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(role); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg
}

func runProcess(log zerolog.Logger) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	filePath := fs.String("file", "", "Path to a local audio file")
	gcsURI := fs.String("gcs-uri", "", "GCS URI of an archived voice note")
	mimeType := fs.String("mime", "", "Audio MIME type (guessed from the file name when empty)")
	sender := fs.String("sender", "", "Sender name recorded with the run")
	fs.Parse(os.Args[2:])

	if (*filePath == "") == (*gcsURI == "") {
		log.Fatal().Msg("Usage: cli process (-file PATH | -gcs-uri gs://bucket/object)")
	}

	cfg := loadConfig(*configPath, config.RolePipeline, &log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire pipeline")
	}
	defer a.Close()

	note := pipeline.VoiceNote{
		ID:         uuid.NewString(),
		Source:     SourceCLI,
		Sender:     *sender,
		ReceivedAt: time.Now(),
	}

	name := *filePath
	if *filePath != "" {
		note.Audio = pipeline.FileAudio(*filePath)
	} else {
		data, err := fetchArchived(ctx, a, *gcsURI)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to fetch archived note")
		}
		note.Audio = pipeline.BytesAudio(data)
		name = *gcsURI
	}
	note.MIMEType = *mimeType
	if note.MIMEType == "" {
		note.MIMEType = mimeFromName(name)
	}

	orchestrator, err := a.NewOrchestrator(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create orchestrator")
	}

	log.Info().
		Str("note_id", note.ID).
		Str("audio", name).
		Str("mime_type", note.MIMEType).
		Msg("Processing voice note")

	outcome := orchestrator.Process(ctx, note)
	fmt.Println(bot.FormatOutcome(outcome))

	if outcome.Failed() {
		log.Error().
			Err(outcome.Err).
			Stringer("failed_after", outcome.FailedAfter).
			Msg("Processing failed")
		a.Close()
		os.Exit(1)
	}
}

// fetchArchived downloads a note from the configured archive, or from the URI's own bucket.
func fetchArchived(ctx context.Context, a *app.App, uri string) ([]byte, error) {
	archive := a.Archive
	if archive == nil {
		bucket, _, err := gcsuploader.ParseGCSURI(uri)
		if err != nil {
			return nil, err
		}
		archive, err = gcsuploader.NewAudioArchive(ctx, bucket, "")
		if err != nil {
			return nil, err
		}
		defer archive.Close()
	}
	return archive.Fetch(ctx, uri)
}

func mimeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	default:
		return "audio/ogg"
	}
}

func runExtract(log zerolog.Logger) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	text := fs.String("text", "", "Transcript to extract from")
	date := fs.String("today", "", "Reference date YYYY-MM-DD (defaults to today)")
	fs.Parse(os.Args[2:])

	if *text == "" {
		log.Fatal().Msg("Error: -text is required")
	}

	cfg := loadConfig(*configPath, config.RoleExtract, &log)

	today, err := referenceDate(cfg, *date)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -today")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	extractor, err := app.NewExtractor(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extractor")
	}

	raw, err := extractor.Extract(ctx, *text, today)
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}

	fmt.Println("=== Model output ===")
	fmt.Println(raw)

	rec, err := pipeline.DecodeRecord(raw, today)
	if err != nil {
		log.Fatal().Err(err).Msg("Model output rejected")
	}

	fmt.Println("\n=== Record ===")
	fmt.Printf("Kind:     %s\n", rec.Kind)
	fmt.Printf("Project:  %s (%s)\n", rec.ProjectName, rec.Project().Title())
	fmt.Printf("Date:     %s\n", ledger.FormatDate(rec.Date))
	if rec.Kind == domain.KindPayment {
		fmt.Printf("Worker:   %s\n", rec.WorkerName)
		fmt.Printf("Role:     %s\n", ledger.RoleLabel(rec.Role))
	} else {
		fmt.Printf("Item:     %s\n", rec.Description)
		fmt.Printf("Category: %s\n", ledger.CategoryLabel(rec.Category))
	}
	fmt.Printf("Amount:   %s\n", bot.FormatBRL(rec.Amount))
	if rec.Notes != "" {
		fmt.Printf("Notes:    %s\n", rec.Notes)
	}
}

func referenceDate(cfg *config.Config, s string) (civil.Date, error) {
	if s != "" {
		return civil.ParseDate(s)
	}
	loc, err := cfg.Location()
	if err != nil {
		return civil.Date{}, err
	}
	return civil.DateOf(time.Now().In(loc)), nil
}

func runNormalize() {
	fs := flag.NewFlagSet("normalize", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: cli normalize NAME [NAME...]")
		os.Exit(1)
	}
	for _, spoken := range fs.Args() {
		p := domain.ProjectFor(spoken)
		fmt.Printf("%q -> %q (spreadsheet %q)\n", spoken, p.CanonicalName, p.Title())
	}
}

func runProjects(log zerolog.Logger) {
	fs := flag.NewFlagSet("projects", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(*configPath, config.RoleSheets, &log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	backend, err := app.NewBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create spreadsheet backend")
	}

	projects, err := ledger.ListProjects(ctx, backend)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list projects")
	}

	fmt.Printf("\n=== Projects (%d) ===\n", len(projects))
	for i, p := range projects {
		fmt.Printf("%d. %s\n", i+1, p.Name)
		if p.URL != "" {
			fmt.Printf("   %s\n", p.URL)
		}
	}
}

func runStatus(log zerolog.Logger) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	limit := fs.Int("limit", 20, "Number of runs to show")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log = logger.NewFromSettings(cfg.Log.Level, cfg.Log.Format)
	if cfg.Tracking.ProjectID == "" {
		log.Fatal().Msg("Error: tracking.project_id (SITE_LEDGER_BQ_PROJECT) is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	tracker, err := infraBQ.NewRunTracker(ctx, cfg.Tracking.ProjectID, cfg.Tracking.Dataset, app.ExtractorModel(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create run tracker")
	}
	defer tracker.Close()

	runs, err := tracker.RecentRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}

	fmt.Printf("\n=== Recent runs (%d) ===\n", len(runs))
	for i, r := range runs {
		fmt.Printf("\n%d. %s  %s/%s\n", i+1, r.Status, r.Source, r.NoteID)
		fmt.Printf("   Started:  %s\n", r.StartedTS.Format(time.RFC3339))
		if r.FinishedTS.Valid {
			fmt.Printf("   Finished: %s\n", r.FinishedTS.Timestamp.Format(time.RFC3339))
		}
		if r.Sender.Valid && r.Sender.StringVal != "" {
			fmt.Printf("   Sender:   %s\n", r.Sender.StringVal)
		}
		if r.SheetName.Valid {
			fmt.Printf("   Row:      %s!%d\n", r.SheetName.StringVal, r.RowIndex.Int64)
		}
		if r.ResourceURL.Valid && r.ResourceURL.StringVal != "" {
			fmt.Printf("   Sheet:    %s\n", r.ResourceURL.StringVal)
		}
		if r.ErrorMessage.Valid && r.ErrorMessage.StringVal != "" {
			fmt.Printf("   Error:    %s\n", r.ErrorMessage.StringVal)
		}
	}
	fmt.Println()
}
