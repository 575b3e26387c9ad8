package bigquery

import (
	"errors"
	"strings"
	"testing"
)

func TestNewModelOutputRow(t *testing.T) {
	row := NewModelOutputRow("run-1", "gemini-2.5-flash", "v1", "comprei cimento", `{"kind":"expense","amount":200}`)

	if row.OutputID == "" {
		t.Error("expected generated output ID")
	}
	if row.RunID != "run-1" || row.ModelName != "gemini-2.5-flash" {
		t.Errorf("unexpected identity fields: %+v", row)
	}
	if !row.RawJSON.Valid {
		t.Error("expected raw_json to be set for valid JSON")
	}
	if !row.Transcript.Valid || row.Transcript.StringVal != "comprei cimento" {
		t.Errorf("transcript = %+v", row.Transcript)
	}
	if !row.CreatedTS.Valid {
		t.Error("expected created_ts")
	}
}

func TestNewModelOutputRowInvalidJSON(t *testing.T) {
	row := NewModelOutputRow("run-2", "gpt-4.1-mini", "", "", "```json\n{\"kind\": }\n```")

	if row.RawJSON.Valid {
		t.Error("raw_json must stay NULL for invalid JSON")
	}
	if !row.RawOutput.Valid {
		t.Error("raw_output must keep the model text")
	}
	if row.ModelVersion.Valid || row.Transcript.Valid {
		t.Error("empty optional fields must be NULL")
	}
}

func TestErrorMessage(t *testing.T) {
	if got := errorMessage(nil); got != "" {
		t.Errorf("errorMessage(nil) = %q", got)
	}
	if got := errorMessage(errors.New("boom")); got != "boom" {
		t.Errorf("errorMessage = %q", got)
	}
	long := errors.New(strings.Repeat("x", maxErrorMessage+100))
	if got := errorMessage(long); len(got) != maxErrorMessage {
		t.Errorf("len = %d, want %d", len(got), maxErrorMessage)
	}
}
