package jobs

import (
	"context"

	"github.com/dvloznov/site-ledger/internal/logger"
	"github.com/dvloznov/site-ledger/internal/pipeline"
)

// Processor runs one voice note through the pipeline.
type Processor interface {
	Process(ctx context.Context, note pipeline.VoiceNote) *pipeline.Outcome
}

// NewVoiceNoteHandler returns a JobHandler that runs the pipeline and stores its
// outcome, plus the formatted reply when format is set, on the job.
func NewVoiceNoteHandler(p Processor, format func(*pipeline.Outcome) string) JobHandler {
	return func(ctx context.Context, job *VoiceNoteJob) error {
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With().Str("job_id", job.JobID).Logger())

		outcome := p.Process(ctx, job.Note())
		job.Outcome = outcome
		if format != nil {
			job.Reply = format(outcome)
		}
		if outcome.Failed() {
			return outcome.Err
		}
		return nil
	}
}
