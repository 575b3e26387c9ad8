package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/logger"
	"github.com/dvloznov/site-ledger/internal/sheets"
)

// PipelineStep represents a single step of a voice note run.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Note  VoiceNote
	Today civil.Date
	Stage Stage

	Audio         []byte
	ArchiveURI    string
	Transcript    string
	RawExtraction string
	Record        *domain.Record
	Project       domain.Project
	Spreadsheet   *sheets.Spreadsheet
	Result        *domain.AppendResult
}

// DownloadStep reads the voice note bytes.
type DownloadStep struct {
	MaxBytes int64
}

func (s *DownloadStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Note.Audio == nil {
		return domain.Wrap(domain.ErrTranscription, errors.New("DownloadStep: voice note has no audio"))
	}
	rc, err := state.Note.Audio.Open(ctx)
	if err != nil {
		return domain.Wrap(domain.ErrTranscription, fmt.Errorf("DownloadStep: open audio: %w", err))
	}
	defer rc.Close()

	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxAudioBytes
	}
	audio, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return domain.Wrap(domain.ErrTranscription, fmt.Errorf("DownloadStep: read audio: %w", err))
	}
	if int64(len(audio)) > limit {
		return domain.Wrap(domain.ErrTranscription, fmt.Errorf("DownloadStep: audio exceeds %d bytes", limit))
	}
	if len(audio) == 0 {
		return domain.Wrap(domain.ErrTranscription, errors.New("DownloadStep: audio is empty"))
	}

	state.Audio = audio
	state.Stage = StageDownloaded
	return nil
}

// ArchiveAudioStep keeps a copy of the voice note. Failures are logged and ignored.
type ArchiveAudioStep struct {
	Archive AudioArchive
}

func (s *ArchiveAudioStep) Execute(ctx context.Context, state *PipelineState) error {
	uri, err := s.Archive.Archive(ctx, state.Note, state.Audio)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).
			Str("note_id", state.Note.ID).
			Msg("failed to archive voice note")
		return nil
	}
	state.ArchiveURI = uri
	return nil
}

// TranscribeStep turns the audio into text.
type TranscribeStep struct {
	Transcriber Transcriber
	Language    string
}

func (s *TranscribeStep) Execute(ctx context.Context, state *PipelineState) error {
	text, err := s.Transcriber.Transcribe(ctx, state.Audio, s.Language)
	if err != nil {
		return domain.Wrap(domain.ErrTranscription, fmt.Errorf("TranscribeStep: %w", err))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Wrap(domain.ErrTranscription, errors.New("TranscribeStep: empty transcript"))
	}

	state.Transcript = text
	state.Stage = StageTranscribed
	log := logger.FromContext(ctx)
	log.Debug().Str("transcript", text).Msg("voice note transcribed")
	return nil
}

// ExtractStep asks the model for the record and validates its answer.
type ExtractStep struct {
	Extractor Extractor
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	raw, err := s.Extractor.Extract(ctx, state.Transcript, state.Today)
	if err != nil {
		return domain.Wrap(domain.ErrExtraction, fmt.Errorf("ExtractStep: %w", err))
	}
	state.RawExtraction = raw

	rec, err := DecodeRecord(raw, state.Today)
	if err != nil {
		return fmt.Errorf("ExtractStep: %w", err)
	}

	state.Record = rec
	state.Project = rec.Project()
	state.Stage = StageExtracted
	return nil
}

// ResolveStep finds or creates the project spreadsheet.
type ResolveStep struct {
	Resolver Resolver
}

func (s *ResolveStep) Execute(ctx context.Context, state *PipelineState) error {
	sheet, err := s.Resolver.Resolve(ctx, state.Project.CanonicalName)
	if err != nil {
		return domain.Wrap(domain.ErrResourceCreation, fmt.Errorf("ResolveStep: %w", err))
	}
	state.Spreadsheet = sheet
	state.Stage = StageResolved
	return nil
}

// AppendStep writes the record row.
type AppendStep struct {
	Appender Appender
}

func (s *AppendStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Appender.Append(ctx, state.Spreadsheet, state.Record)
	if err != nil {
		return domain.Wrap(domain.ErrAppend, fmt.Errorf("AppendStep: %w", err))
	}
	state.Result = res
	state.Stage = StageAppended
	return nil
}
