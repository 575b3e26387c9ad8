package pipeline

import (
	"context"
	"io"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/sheets"
)

// AudioSource yields the bytes of one voice note.
type AudioSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Transcriber turns speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, languageHint string) (string, error)
}

// Extractor asks a language model for the record described by text and
// returns the raw model output, which DecodeRecord validates.
type Extractor interface {
	Extract(ctx context.Context, text string, today civil.Date) (string, error)
}

// Resolver returns the spreadsheet of a canonical project name, creating it if needed.
type Resolver interface {
	Resolve(ctx context.Context, canonicalName string) (*sheets.Spreadsheet, error)
}

// Appender writes one record to a project spreadsheet.
type Appender interface {
	Append(ctx context.Context, s *sheets.Spreadsheet, rec *domain.Record) (*domain.AppendResult, error)
}

// Replier sends the outcome of a run back to whoever sent the note.
type Replier interface {
	Reply(ctx context.Context, note VoiceNote, outcome *Outcome) error
}

// AudioArchive keeps a copy of the raw voice note and returns its location.
type AudioArchive interface {
	Archive(ctx context.Context, note VoiceNote, audio []byte) (string, error)
}

// RunTracker records every run and the model output it produced.
type RunTracker interface {
	StartRun(ctx context.Context, note VoiceNote) (string, error)
	StoreModelOutput(ctx context.Context, runID, transcript, rawOutput string) error
	MarkRunFailed(ctx context.Context, runID string, runErr error)
	MarkRunSucceeded(ctx context.Context, runID string, result *domain.AppendResult) error
}
