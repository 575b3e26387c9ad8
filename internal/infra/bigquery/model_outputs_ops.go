package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

const modelOutputsTable = "model_outputs"

// NewModelOutputRow builds the row for one extraction. raw_json is only set
// when the model returned valid JSON; raw_output always keeps the text.
func NewModelOutputRow(runID, modelName, modelVersion, transcript, raw string) *ModelOutputRow {
	row := &ModelOutputRow{
		OutputID:     uuid.NewString(),
		RunID:        runID,
		ModelName:    modelName,
		ModelVersion: bigquery.NullString{StringVal: modelVersion, Valid: modelVersion != ""},
		Transcript:   bigquery.NullString{StringVal: transcript, Valid: transcript != ""},
		RawOutput:    bigquery.NullString{StringVal: raw, Valid: raw != ""},
		CreatedTS:    bigquery.NullTimestamp{Timestamp: time.Now(), Valid: true},
	}
	if json.Valid([]byte(raw)) {
		row.RawJSON = bigquery.NullJSON{JSONVal: raw, Valid: true}
	}
	return row
}

// InsertModelOutputWithClient inserts a single ModelOutputRow.
// Uses DML INSERT to avoid streaming buffer issues.
func InsertModelOutputWithClient(ctx context.Context, client *bigquery.Client, dataset string, row *ModelOutputRow) error {
	q := client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			output_id, run_id,
			model_name, model_version,
			transcript, raw_output, raw_json,
			created_ts
		)
		VALUES (
			@output_id, @run_id,
			@model_name, @model_version,
			@transcript, @raw_output, @raw_json,
			@created_ts
		)
	`, dataset, modelOutputsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "output_id", Value: row.OutputID},
		{Name: "run_id", Value: row.RunID},
		{Name: "model_name", Value: row.ModelName},
		{Name: "model_version", Value: row.ModelVersion},
		{Name: "transcript", Value: row.Transcript},
		{Name: "raw_output", Value: row.RawOutput},
		{Name: "raw_json", Value: row.RawJSON},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("InsertModelOutput: %w", err)
	}
	return nil
}
