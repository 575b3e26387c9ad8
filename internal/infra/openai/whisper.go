package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dvloznov/site-ledger/internal/infra"
)

const defaultBaseURL = "https://api.openai.com/v1"

// WhisperClient transcribes audio with the OpenAI transcription endpoint.
type WhisperClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	filename   string
	retry      infra.RetryConfig
}

func NewWhisperClient(apiKey, model string) *WhisperClient {
	return NewWhisperClientWithURL(apiKey, model, defaultBaseURL)
}

func NewWhisperClientWithURL(apiKey, model, baseURL string) *WhisperClient {
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		model:      model,
		// Telegram voice notes are OGG/Opus; the extension tells the API how to decode.
		filename: "voice.ogg",
		retry:    infra.DefaultRetryConfig(),
	}
}

// WithRetryConfig overrides the retry policy.
func (c *WhisperClient) WithRetryConfig(cfg infra.RetryConfig) *WhisperClient {
	c.retry = cfg
	return c
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, languageHint string) (string, error) {
	var result transcriptionResponse

	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		part, err := writer.CreateFormFile("file", c.filename)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating form file: %w", err))
		}
		if _, err = part.Write(audio); err != nil {
			return infra.Permanent(fmt.Errorf("writing audio: %w", err))
		}
		if err = writer.WriteField("model", c.model); err != nil {
			return infra.Permanent(fmt.Errorf("writing model field: %w", err))
		}
		if languageHint != "" {
			if err = writer.WriteField("language", languageHint); err != nil {
				return infra.Permanent(fmt.Errorf("writing language field: %w", err))
			}
		}
		if err = writer.Close(); err != nil {
			return infra.Permanent(fmt.Errorf("closing writer: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			if infra.IsRetryableHTTPStatus(resp.StatusCode) {
				return fmt.Errorf("whisper API error %d: %s (retryable)", resp.StatusCode, string(respBody))
			}
			return infra.Permanent(fmt.Errorf("whisper API error %d: %s", resp.StatusCode, string(respBody)))
		}

		if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return infra.Permanent(fmt.Errorf("decoding response: %w", err))
		}
		return nil
	})

	if retryErr != nil {
		return "", fmt.Errorf("WhisperClient.Transcribe: %w", retryErr)
	}
	return result.Text, nil
}
