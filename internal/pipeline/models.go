package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/sheets"
)

// VoiceNote is one incoming voice message.
type VoiceNote struct {
	ID       string // unique per message, used to name archived audio
	Source   string // telegram, http, cli
	ChatID   int64  // telegram chat to reply to, zero otherwise
	Sender   string
	MIMEType string
	Audio    AudioSource

	ReceivedAt time.Time
}

// BytesAudio is an AudioSource over bytes already in memory.
type BytesAudio []byte

func (b BytesAudio) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// FileAudio is an AudioSource reading a local file.
type FileAudio string

func (f FileAudio) Open(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(string(f))
}

// Stage is the position of a run in its state machine.
type Stage int

const (
	StageReceived Stage = iota
	StageDownloaded
	StageTranscribed
	StageExtracted
	StageResolved
	StageAppended
	StageReplied
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageDownloaded:
		return "downloaded"
	case StageTranscribed:
		return "transcribed"
	case StageExtracted:
		return "extracted"
	case StageResolved:
		return "resolved"
	case StageAppended:
		return "appended"
	case StageReplied:
		return "replied"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText makes stages readable in JSON and logs.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OutcomeKind selects the reply template.
type OutcomeKind string

const (
	OutcomeExpense OutcomeKind = "expense_confirmation"
	OutcomePayment OutcomeKind = "payment_confirmation"
	OutcomeError   OutcomeKind = "error"
)

// Outcome is the result of processing one voice note.
type Outcome struct {
	NoteID string      `json:"note_id"`
	RunID  string      `json:"run_id,omitempty"`
	Stage  Stage       `json:"stage"`
	Kind   OutcomeKind `json:"kind"`

	// FailedAfter is the last stage reached before a failure. It is
	// meaningful only when Err is set; StageReceived is a valid value.
	FailedAfter Stage `json:"-"`

	Transcript    string               `json:"transcript,omitempty"`
	RawExtraction string               `json:"-"`
	Record        *domain.Record       `json:"-"`
	Project       string               `json:"project,omitempty"`
	Spreadsheet   *sheets.Spreadsheet  `json:"-"`
	Result        *domain.AppendResult `json:"result,omitempty"`
	ArchiveURI    string               `json:"archive_uri,omitempty"`
	Err           error                `json:"-"`
	Error         string               `json:"error,omitempty"`
	ReplyErr      error                `json:"-"`
}

// MarshalJSON writes failed_after for every failed run, including one that
// stopped at StageReceived, and omits it for successful runs.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	type plain Outcome
	aux := struct {
		*plain
		FailedAfter *Stage `json:"failed_after,omitempty"`
	}{plain: (*plain)(o)}
	if o.Failed() {
		stage := o.FailedAfter
		aux.FailedAfter = &stage
	}
	return json.Marshal(aux)
}

// Failed reports whether the run ended in an error.
func (o *Outcome) Failed() bool {
	return o.Err != nil
}

// ErrorClass is the taxonomy member of the failure, or nil.
func (o *Outcome) ErrorClass() error {
	return domain.Classify(o.Err)
}
