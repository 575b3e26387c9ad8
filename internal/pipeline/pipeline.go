package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/logger"
)

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps       []PipelineStep
	stepTimeout time.Duration
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// WithStepTimeout bounds every step with its own deadline. Zero disables it.
func (p *Pipeline) WithStepTimeout(d time.Duration) *Pipeline {
	p.stepTimeout = d
	return p
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := p.run(ctx, step, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, step PipelineStep, state *PipelineState) error {
	if p.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.stepTimeout)
		defer cancel()
	}
	err := step.Execute(ctx, state)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}

// Config tunes an Orchestrator. Zero values fall back to the package defaults.
type Config struct {
	StepTimeout   time.Duration
	Language      string
	MaxAudioBytes int64

	// Location is the time zone "today" is computed in.
	Location *time.Location
	Now      func() time.Time
}

// Deps are the collaborators of an Orchestrator. Replier, Archive and Tracker are optional.
type Deps struct {
	Transcriber Transcriber
	Extractor   Extractor
	Resolver    Resolver
	Appender    Appender
	Replier     Replier
	Archive     AudioArchive
	Tracker     RunTracker
}

// Orchestrator runs the voice note state machine:
// received, downloaded, transcribed, extracted, resolved, appended, replied.
// Any failure ends the run as failed; nothing is retried or rolled back.
type Orchestrator struct {
	deps     Deps
	cfg      Config
	pipeline *Pipeline
}

// NewOrchestrator wires the voice note pipeline.
func NewOrchestrator(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Transcriber == nil:
		return nil, domain.ConfigError("orchestrator: transcriber is required")
	case deps.Extractor == nil:
		return nil, domain.ConfigError("orchestrator: extractor is required")
	case deps.Resolver == nil:
		return nil, domain.ConfigError("orchestrator: resolver is required")
	case deps.Appender == nil:
		return nil, domain.ConfigError("orchestrator: appender is required")
	}

	if cfg.StepTimeout == 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.MaxAudioBytes == 0 {
		cfg.MaxAudioBytes = DefaultMaxAudioBytes
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	steps := []PipelineStep{&DownloadStep{MaxBytes: cfg.MaxAudioBytes}}
	if deps.Archive != nil {
		steps = append(steps, &ArchiveAudioStep{Archive: deps.Archive})
	}
	steps = append(steps,
		&TranscribeStep{Transcriber: deps.Transcriber, Language: cfg.Language},
		&ExtractStep{Extractor: deps.Extractor},
		&ResolveStep{Resolver: deps.Resolver},
		&AppendStep{Appender: deps.Appender},
	)

	return &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		pipeline: NewPipeline(steps...).WithStepTimeout(cfg.StepTimeout),
	}, nil
}

// Process runs one voice note to completion or failure and replies to the sender.
// It never panics on a collaborator error; every failure is reported in the Outcome.
func (o *Orchestrator) Process(ctx context.Context, note VoiceNote) *Outcome {
	log := logger.FromContext(ctx).With().
		Str("note_id", note.ID).
		Str("source", note.Source).
		Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{
		Note:  note,
		Today: civil.DateOf(o.cfg.Now().In(o.cfg.Location)),
		Stage: StageReceived,
	}
	log.Info().Msg("voice note received")

	runID := o.startRun(ctx, note)
	err := o.pipeline.Execute(ctx, state)
	outcome := buildOutcome(note, runID, state, err)
	o.finishRun(ctx, runID, state, outcome)

	if outcome.Failed() {
		log.Error().Err(err).
			Str("failed_after", outcome.FailedAfter.String()).
			Str("class", outcome.ErrorClass().Error()).
			Msg("voice note failed")
	} else {
		log.Info().
			Str("project", outcome.Project).
			Str("sheet", outcome.Result.SheetName).
			Int("row", outcome.Result.RowIndex).
			Msg("voice note recorded")
	}

	if o.deps.Replier != nil {
		if err := o.reply(ctx, note, outcome); err != nil {
			// The row, if any, stays written.
			outcome.ReplyErr = err
			log.Error().Err(err).Msg("failed to send reply")
		} else if !outcome.Failed() {
			outcome.Stage = StageReplied
		}
	}
	return outcome
}

func (o *Orchestrator) reply(ctx context.Context, note VoiceNote, outcome *Outcome) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
	defer cancel()
	return o.deps.Replier.Reply(ctx, note, outcome)
}

func buildOutcome(note VoiceNote, runID string, state *PipelineState, err error) *Outcome {
	out := &Outcome{
		NoteID:        note.ID,
		RunID:         runID,
		Stage:         state.Stage,
		Transcript:    state.Transcript,
		RawExtraction: state.RawExtraction,
		Record:        state.Record,
		Spreadsheet:   state.Spreadsheet,
		Result:        state.Result,
		ArchiveURI:    state.ArchiveURI,
	}
	if state.Record != nil {
		out.Project = state.Project.CanonicalName
	}

	if err != nil {
		if domain.Classify(err) == domain.ErrUnexpected && !errors.Is(err, domain.ErrUnexpected) {
			err = fmt.Errorf("%w: %w", domain.ErrUnexpected, err)
		}
		out.Err = err
		out.Error = err.Error()
		out.FailedAfter = state.Stage
		out.Stage = StageFailed
		out.Kind = OutcomeError
		return out
	}

	if state.Record.Kind == domain.KindPayment {
		out.Kind = OutcomePayment
	} else {
		out.Kind = OutcomeExpense
	}
	return out
}

func (o *Orchestrator) startRun(ctx context.Context, note VoiceNote) string {
	if o.deps.Tracker == nil {
		return ""
	}
	runID, err := o.deps.Tracker.StartRun(ctx, note)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("failed to start run tracking")
		return ""
	}
	return runID
}

func (o *Orchestrator) finishRun(ctx context.Context, runID string, state *PipelineState, outcome *Outcome) {
	if o.deps.Tracker == nil || runID == "" {
		return
	}
	log := logger.FromContext(ctx)

	if state.RawExtraction != "" {
		if err := o.deps.Tracker.StoreModelOutput(ctx, runID, state.Transcript, state.RawExtraction); err != nil {
			log.Warn().Err(err).Str("run_id", runID).Msg("failed to store model output")
		}
	}

	if outcome.Failed() {
		o.deps.Tracker.MarkRunFailed(ctx, runID, outcome.Err)
		return
	}
	if err := o.deps.Tracker.MarkRunSucceeded(ctx, runID, outcome.Result); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("failed to mark run succeeded")
	}
}
