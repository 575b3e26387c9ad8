// Package app builds the pipeline collaborators from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/dvloznov/site-ledger/internal/config"
	"github.com/dvloznov/site-ledger/internal/gcsuploader"
	bqinfra "github.com/dvloznov/site-ledger/internal/infra/bigquery"
	"github.com/dvloznov/site-ledger/internal/infra/gemini"
	"github.com/dvloznov/site-ledger/internal/infra/gsheets"
	"github.com/dvloznov/site-ledger/internal/infra/openai"
	"github.com/dvloznov/site-ledger/internal/infra/sqlite"
	"github.com/dvloznov/site-ledger/internal/infra/xlsx"
	"github.com/dvloznov/site-ledger/internal/ledger"
	"github.com/dvloznov/site-ledger/internal/pipeline"
	"github.com/dvloznov/site-ledger/internal/sheets"
)

// App holds everything a process needs to run voice notes.
// Registry, Archive and Tracker are nil when not configured.
type App struct {
	Config      *config.Config
	Backend     sheets.Backend
	Registry    *sqlite.Registry
	Resolver    *ledger.Resolver
	Appender    *ledger.Appender
	Transcriber pipeline.Transcriber
	Extractor   pipeline.Extractor
	Archive     *gcsuploader.AudioArchive
	Tracker     *bqinfra.RunTracker

	closers []func() error
}

// New wires the collaborators for cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}

	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Backend = backend

	if cfg.Registry.Path != "" {
		db, err := sqlite.New(cfg.Registry.Path)
		if err != nil {
			return nil, fmt.Errorf("app.New: open registry: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.Registry = sqlite.NewRegistry(db)
		log.Info().Str("path", cfg.Registry.Path).Msg("project registry enabled")
	}

	var registry ledger.Registry
	if a.Registry != nil {
		registry = a.Registry
	}
	a.Resolver = ledger.NewResolver(backend, registry)
	a.Appender = ledger.NewAppender(backend)

	var gc *genai.Client
	if cfg.Pipeline.Transcriber == config.ProviderGemini || cfg.Pipeline.Extractor == config.ProviderGemini {
		gc, err = gemini.NewClient(ctx, cfg.Gemini.APIKey)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	if a.Transcriber, err = newTranscriber(cfg, gc); err != nil {
		a.Close()
		return nil, err
	}
	if a.Extractor, err = newExtractor(cfg, gc); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Archive.Bucket != "" {
		archive, err := gcsuploader.NewAudioArchive(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, archive.Close)
		a.Archive = archive
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("voice note archive enabled")
	}

	if cfg.Tracking.ProjectID != "" {
		tracker, err := bqinfra.NewRunTracker(ctx, cfg.Tracking.ProjectID, cfg.Tracking.Dataset, ExtractorModel(cfg))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, tracker.Close)
		a.Tracker = tracker
		log.Info().
			Str("project_id", cfg.Tracking.ProjectID).
			Str("dataset", cfg.Tracking.Dataset).
			Msg("run tracking enabled")
	}

	log.Info().
		Str("backend", cfg.Sheets.Backend).
		Str("transcriber", cfg.Pipeline.Transcriber).
		Str("extractor", cfg.Pipeline.Extractor).
		Msg("pipeline wired")
	return a, nil
}

// NewBackend opens the configured spreadsheet backend.
func NewBackend(ctx context.Context, cfg *config.Config) (sheets.Backend, error) {
	switch cfg.Sheets.Backend {
	case config.BackendXLSX:
		b, err := xlsx.New(cfg.Sheets.XLSXDir)
		if err != nil {
			return nil, fmt.Errorf("NewBackend: %w", err)
		}
		return b, nil
	case config.BackendGoogleSheets:
		creds, err := cfg.GoogleCredentials()
		if err != nil {
			return nil, err
		}
		b, err := gsheets.New(ctx, creds, cfg.Sheets.ShareWith)
		if err != nil {
			return nil, fmt.Errorf("NewBackend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("NewBackend: unknown backend %q", cfg.Sheets.Backend)
	}
}

// NewExtractor builds only the extractor, for the CLI extract command.
func NewExtractor(ctx context.Context, cfg *config.Config) (pipeline.Extractor, error) {
	var gc *genai.Client
	if cfg.Pipeline.Extractor == config.ProviderGemini {
		var err error
		if gc, err = gemini.NewClient(ctx, cfg.Gemini.APIKey); err != nil {
			return nil, err
		}
	}
	return newExtractor(cfg, gc)
}

func newTranscriber(cfg *config.Config, gc *genai.Client) (pipeline.Transcriber, error) {
	switch cfg.Pipeline.Transcriber {
	case config.ProviderWhisper:
		if cfg.OpenAI.BaseURL != "" {
			return openai.NewWhisperClientWithURL(cfg.OpenAI.APIKey, cfg.OpenAI.WhisperModel, cfg.OpenAI.BaseURL), nil
		}
		return openai.NewWhisperClient(cfg.OpenAI.APIKey, cfg.OpenAI.WhisperModel), nil
	case config.ProviderGemini:
		return gemini.NewTranscriber(gc, cfg.Gemini.Model), nil
	default:
		return nil, fmt.Errorf("unknown transcriber %q", cfg.Pipeline.Transcriber)
	}
}

func newExtractor(cfg *config.Config, gc *genai.Client) (pipeline.Extractor, error) {
	switch cfg.Pipeline.Extractor {
	case config.ProviderOpenAI:
		if cfg.OpenAI.BaseURL != "" {
			return openai.NewChatExtractorWithURL(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel, cfg.OpenAI.BaseURL), nil
		}
		return openai.NewChatExtractor(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel), nil
	case config.ProviderGemini:
		return gemini.NewExtractor(gc, cfg.Gemini.Model), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", cfg.Pipeline.Extractor)
	}
}

// ExtractorModel is the model name stored with every tracked model output.
func ExtractorModel(cfg *config.Config) string {
	if cfg.Pipeline.Extractor == config.ProviderOpenAI {
		return cfg.OpenAI.ChatModel
	}
	return cfg.Gemini.Model
}

// Deps returns the orchestrator collaborators. replier may be nil.
func (a *App) Deps(replier pipeline.Replier) pipeline.Deps {
	deps := pipeline.Deps{
		Transcriber: a.Transcriber,
		Extractor:   a.Extractor,
		Resolver:    a.Resolver,
		Appender:    a.Appender,
		Replier:     replier,
	}
	// Typed nil pointers must not leak into the optional interfaces.
	if a.Archive != nil {
		deps.Archive = a.Archive
	}
	if a.Tracker != nil {
		deps.Tracker = a.Tracker
	}
	return deps
}

// PipelineConfig maps the configuration onto the orchestrator settings.
func PipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("PipelineConfig: %w", err)
	}
	return pipeline.Config{
		StepTimeout:   cfg.Pipeline.StepTimeout,
		Language:      cfg.Pipeline.Language,
		MaxAudioBytes: cfg.Pipeline.MaxAudioBytes,
		Location:      loc,
	}, nil
}

// NewOrchestrator builds the orchestrator, replying through replier when set.
func (a *App) NewOrchestrator(replier pipeline.Replier) (*pipeline.Orchestrator, error) {
	pcfg, err := PipelineConfig(a.Config)
	if err != nil {
		return nil, err
	}
	return pipeline.NewOrchestrator(a.Deps(replier), pcfg)
}

// ListProjects lists every project spreadsheet in the backend, including ones the
// registry has never seen.
func (a *App) ListProjects(ctx context.Context) ([]ledger.ProjectInfo, error) {
	return ledger.ListProjects(ctx, a.Backend)
}

// Close releases every client opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
