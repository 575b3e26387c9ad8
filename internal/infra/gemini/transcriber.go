package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/site-ledger/internal/pipeline"
)

// Transcriber sends the voice note to Gemini as inline audio.
type Transcriber struct {
	models   generator
	model    string
	mimeType string
}

// NewTranscriber builds a transcriber over client.Models. Voice notes are sent as audio/ogg.
func NewTranscriber(client *genai.Client, model string) *Transcriber {
	return newTranscriber(client.Models, model)
}

func newTranscriber(models generator, model string) *Transcriber {
	if model == "" {
		model = pipeline.DefaultGeminiModel
	}
	return &Transcriber{models: models, model: model, mimeType: "audio/ogg"}
}

func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, languageHint string) (string, error) {
	prompt := "Transcribe this voice note verbatim. Return only the transcript, without comments or formatting."
	if languageHint != "" {
		prompt += fmt.Sprintf(" The speaker uses language %q.", languageHint)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: t.mimeType,
						Data:     audio,
					},
				},
			},
		},
	}

	resp, err := t.models.GenerateContent(ctx, t.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("Transcriber.Transcribe: generate content: %w", err)
	}
	return strings.TrimSpace(responseText(resp)), nil
}
