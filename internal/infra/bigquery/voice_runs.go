package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// Run statuses stored in voice_runs.status.
const (
	RunStatusRunning = "RUNNING"
	RunStatusFailed  = "FAILED"
	RunStatusSuccess = "SUCCESS"
)

type VoiceRunRow struct {
	RunID  string              `bigquery:"run_id"`  // REQUIRED
	NoteID string              `bigquery:"note_id"` // REQUIRED
	Source string              `bigquery:"source"`  // REQUIRED
	Sender bigquery.NullString `bigquery:"sender"`

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	ExtractorVersion string `bigquery:"extractor_version"`
	Status           string `bigquery:"status"` // RUNNING | FAILED | SUCCESS

	ErrorMessage bigquery.NullString `bigquery:"error_message"`
	SheetName    bigquery.NullString `bigquery:"sheet_name"`
	RowIndex     bigquery.NullInt64  `bigquery:"row_index"`
	ResourceURL  bigquery.NullString `bigquery:"resource_url"`
}
