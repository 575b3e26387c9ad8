package gemini

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"google.golang.org/genai"

	"github.com/dvloznov/site-ledger/internal/pipeline"
)

// Extractor asks Gemini for the record described by a transcript.
type Extractor struct {
	models generator
	model  string
}

// NewExtractor builds an extractor over client.Models.
func NewExtractor(client *genai.Client, model string) *Extractor {
	return newExtractor(client.Models, model)
}

func newExtractor(models generator, model string) *Extractor {
	if model == "" {
		model = pipeline.DefaultGeminiModel
	}
	return &Extractor{models: models, model: model}
}

func (e *Extractor) Extract(ctx context.Context, text string, today civil.Date) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: pipeline.BuildExtractionPrompt(text, today)}},
		},
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: pipeline.SystemInstruction}}},
		Temperature:       genai.Ptr[float32](pipeline.ExtractionTemperature),
		ResponseMIMEType:  "application/json",
	}

	resp, err := e.models.GenerateContent(ctx, e.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("Extractor.Extract: generate content: %w", err)
	}
	raw := strings.TrimSpace(responseText(resp))
	if raw == "" {
		return "", fmt.Errorf("Extractor.Extract: empty response from model")
	}
	return raw, nil
}
