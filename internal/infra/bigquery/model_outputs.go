package bigquery

import "cloud.google.com/go/bigquery"

type ModelOutputRow struct {
	OutputID string `bigquery:"output_id"` // REQUIRED
	RunID    string `bigquery:"run_id"`    // REQUIRED

	ModelName    string              `bigquery:"model_name"`    // REQUIRED
	ModelVersion bigquery.NullString `bigquery:"model_version"` // NULLABLE

	Transcript bigquery.NullString `bigquery:"transcript"` // NULLABLE
	RawOutput  bigquery.NullString `bigquery:"raw_output"` // model text, as returned
	RawJSON    bigquery.NullJSON   `bigquery:"raw_json"`   // NULL when the output is not valid JSON

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"` // REQUIRED
}
