package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/site-ledger/internal/infra"
	"github.com/dvloznov/site-ledger/internal/pipeline"
)

// ChatExtractor extracts records with the OpenAI chat completions endpoint.
type ChatExtractor struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	retry      infra.RetryConfig
}

func NewChatExtractor(apiKey, model string) *ChatExtractor {
	return NewChatExtractorWithURL(apiKey, model, defaultBaseURL)
}

func NewChatExtractorWithURL(apiKey, model, baseURL string) *ChatExtractor {
	if model == "" {
		model = pipeline.DefaultOpenAIModel
	}
	return &ChatExtractor{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		model:      model,
		retry:      infra.DefaultRetryConfig(),
	}
}

// WithRetryConfig overrides the retry policy.
func (c *ChatExtractor) WithRetryConfig(cfg infra.RetryConfig) *ChatExtractor {
	c.retry = cfg
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *ChatExtractor) Extract(ctx context.Context, text string, today civil.Date) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: pipeline.SystemInstruction},
			{Role: "user", Content: pipeline.BuildExtractionPrompt(text, today)},
		},
		Temperature:    pipeline.ExtractionTemperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("ChatExtractor.Extract: marshaling request: %w", err)
	}

	var result chatResponse
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return fmt.Errorf("openai API error %d: %s (retryable)", resp.StatusCode, string(respBody))
			}
			return infra.Permanent(fmt.Errorf("openai API error %d: %s", resp.StatusCode, string(respBody)))
		}
		if err = json.Unmarshal(respBody, &result); err != nil {
			return infra.Permanent(fmt.Errorf("decoding response: %w", err))
		}
		return nil
	})
	if retryErr != nil {
		return "", fmt.Errorf("ChatExtractor.Extract: %w", retryErr)
	}

	if result.Error != nil {
		return "", fmt.Errorf("ChatExtractor.Extract: openai error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("ChatExtractor.Extract: empty response from model")
	}
	content := strings.TrimSpace(result.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("ChatExtractor.Extract: empty response from model")
	}
	return content, nil
}
