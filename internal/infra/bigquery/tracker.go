package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/pipeline"
)

var _ pipeline.RunTracker = (*RunTracker)(nil)

// RunTracker records voice note runs and model outputs in BigQuery.
// It holds a shared client to avoid creating a new connection for each run.
type RunTracker struct {
	client    *bigquery.Client
	dataset   string
	modelName string
}

// NewRunTracker connects to BigQuery. modelName is stored with every model output.
func NewRunTracker(ctx context.Context, projectID, dataset, modelName string) (*RunTracker, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRunTracker: creating client: %w", err)
	}
	return &RunTracker{client: client, dataset: dataset, modelName: modelName}, nil
}

// Close closes the BigQuery client connection.
func (t *RunTracker) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

// StartRun inserts a RUNNING row for the note.
func (t *RunTracker) StartRun(ctx context.Context, note pipeline.VoiceNote) (string, error) {
	row := &VoiceRunRow{
		NoteID:           note.ID,
		Source:           note.Source,
		Sender:           bigquery.NullString{StringVal: note.Sender, Valid: note.Sender != ""},
		StartedTS:        note.ReceivedAt,
		ExtractorVersion: pipeline.ExtractorVersion,
	}
	return StartVoiceRunWithClient(ctx, t.client, t.dataset, row)
}

// StoreModelOutput inserts the transcript and raw extraction of a run.
func (t *RunTracker) StoreModelOutput(ctx context.Context, runID, transcript, rawOutput string) error {
	row := NewModelOutputRow(runID, t.modelName, pipeline.ExtractorVersion, transcript, rawOutput)
	return InsertModelOutputWithClient(ctx, t.client, t.dataset, row)
}

// MarkRunFailed delegates to MarkVoiceRunFailedWithClient.
func (t *RunTracker) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	MarkVoiceRunFailedWithClient(ctx, t.client, t.dataset, runID, runErr)
}

// MarkRunSucceeded records where the row was appended.
func (t *RunTracker) MarkRunSucceeded(ctx context.Context, runID string, result *domain.AppendResult) error {
	if result == nil {
		return fmt.Errorf("MarkRunSucceeded: run %s has no append result", runID)
	}
	return MarkVoiceRunSucceededWithClient(ctx, t.client, t.dataset, runID, result.SheetName, result.RowIndex, result.ResourceURL)
}

// RecentRuns returns the latest runs, newest first.
func (t *RunTracker) RecentRuns(ctx context.Context, limit int) ([]*VoiceRunRow, error) {
	return ListRecentVoiceRunsWithClient(ctx, t.client, t.dataset, limit)
}
