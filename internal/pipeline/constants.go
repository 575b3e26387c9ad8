package pipeline

import "time"

// Defaults for a voice note run. Config overrides them per deployment.
const (
	// DefaultLanguage is the transcription language hint.
	DefaultLanguage = "pt"

	// DefaultStepTimeout bounds every remote step of a run.
	DefaultStepTimeout = 60 * time.Second

	// DefaultMaxAudioBytes is the largest voice note accepted (the Whisper upload limit).
	DefaultMaxAudioBytes = 25 << 20

	// DefaultGeminiModel is the Gemini model used for extraction and transcription.
	DefaultGeminiModel = "gemini-2.5-flash"

	// DefaultOpenAIModel is the chat model used for extraction.
	DefaultOpenAIModel = "gpt-4.1-mini"

	// DefaultWhisperModel is the OpenAI transcription model.
	DefaultWhisperModel = "whisper-1"

	// ExtractionTemperature keeps the extractor close to deterministic.
	ExtractionTemperature = 0.3

	// ExtractorVersion is recorded with every model output.
	ExtractorVersion = "v1"
)
