package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/site-ledger/internal/logger"
)

const (
	voiceRunsTable  = "voice_runs"
	maxErrorMessage = 2000
)

// StartVoiceRunWithClient inserts a voice_runs row with status=RUNNING and returns its run_id.
func StartVoiceRunWithClient(ctx context.Context, client *bigquery.Client, dataset string, row *VoiceRunRow) (string, error) {
	if row.RunID == "" {
		row.RunID = uuid.NewString()
	}
	if row.StartedTS.IsZero() {
		row.StartedTS = time.Now()
	}
	row.Status = RunStatusRunning

	q := client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			run_id,
			note_id,
			source,
			sender,
			started_ts,
			extractor_version,
			status
		)
		VALUES (
			@run_id,
			@note_id,
			@source,
			@sender,
			@started_ts,
			@extractor_version,
			@status
		)
	`, dataset, voiceRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: row.RunID},
		{Name: "note_id", Value: row.NoteID},
		{Name: "source", Value: row.Source},
		{Name: "sender", Value: row.Sender},
		{Name: "started_ts", Value: row.StartedTS},
		{Name: "extractor_version", Value: row.ExtractorVersion},
		{Name: "status", Value: row.Status},
	}

	if err := runDML(ctx, q); err != nil {
		return "", fmt.Errorf("StartVoiceRun: %w", err)
	}
	return row.RunID, nil
}

// MarkVoiceRunFailedWithClient sets status=FAILED, finished_ts and error_message.
// Errors are logged, never returned: a failed bookkeeping write must not mask the run error.
func MarkVoiceRunFailedWithClient(ctx context.Context, client *bigquery.Client, dataset, runID string, runErr error) {
	log := logger.FromContext(ctx)

	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, dataset, voiceRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errorMessage(runErr)},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkVoiceRunFailed: update failed")
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage]
	}
	return msg
}

// MarkVoiceRunSucceededWithClient sets status=SUCCESS, finished_ts and where the row landed.
func MarkVoiceRunSucceededWithClient(ctx context.Context, client *bigquery.Client, dataset, runID, sheetName string, rowIndex int, resourceURL string) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    sheet_name = @sheet_name,
		    row_index = @row_index,
		    resource_url = @resource_url
		WHERE run_id = @run_id
	`, dataset, voiceRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "sheet_name", Value: sheetName},
		{Name: "row_index", Value: rowIndex},
		{Name: "resource_url", Value: resourceURL},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("MarkVoiceRunSucceeded: %w", err)
	}
	return nil
}

// ListRecentVoiceRunsWithClient returns the latest runs, newest first.
func ListRecentVoiceRunsWithClient(ctx context.Context, client *bigquery.Client, dataset string, limit int) ([]*VoiceRunRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT *
		FROM %s.%s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, dataset, voiceRunsTable))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentVoiceRuns: running query: %w", err)
	}

	var rows []*VoiceRunRow
	for {
		var row VoiceRunRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentVoiceRuns: reading row: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

// runDML runs a DML statement and waits for it.
func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
