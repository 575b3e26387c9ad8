// Package gemini implements the extractor and transcriber on Google Gemini.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// generator is the part of *genai.Models the package uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewClient creates a Gemini API client. An empty apiKey lets the SDK read
// GOOGLE_API_KEY / GEMINI_API_KEY or the Vertex AI environment.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{}
	if apiKey != "" {
		cfg.APIKey = apiKey
		cfg.Backend = genai.BackendGeminiAPI
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini.NewClient: create genai client: %w", err)
	}
	return client, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Text()
}
