package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy for a voice note run. Pipeline stages wrap their failures with one of
// these so callers can branch with errors.Is while the message keeps the cause.
var (
	// ErrConfiguration is the only fatal class: a required setting is missing at startup.
	ErrConfiguration = errors.New("configuration error")

	ErrTranscription    = errors.New("transcription failed")
	ErrExtraction       = errors.New("extraction failed")
	ErrResourceCreation = errors.New("spreadsheet creation failed")
	ErrAppend           = errors.New("append failed")
	ErrTimeout          = errors.New("remote call timed out")
	ErrUnexpected       = errors.New("unexpected error")
)

var taxonomy = []error{
	ErrConfiguration,
	ErrTimeout,
	ErrTranscription,
	ErrExtraction,
	ErrResourceCreation,
	ErrAppend,
	ErrUnexpected,
}

// Wrap tags err with kind. A deadline hit is reported as ErrTimeout regardless of kind.
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %w: %w", ErrTimeout, kind, err)
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Classify returns the taxonomy member carried by err, or ErrUnexpected.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range taxonomy {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrUnexpected
}

// ConfigError reports a missing or invalid setting.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
