package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/site-ledger/internal/infra"
	"github.com/dvloznov/site-ledger/internal/infra/openai"
)

func fastRetry() infra.RetryConfig {
	return infra.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestWhisperClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization: got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model: got %q, want whisper-1", got)
		}
		if got := r.FormValue("language"); got != "pt" {
			t.Errorf("language: got %q, want pt", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "OggS-audio" {
			t.Errorf("file: got %q", data)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": "Comprei cimento por 200 reais"})
	}))
	defer server.Close()

	client := openai.NewWhisperClientWithURL("test-key", "", server.URL)
	text, err := client.Transcribe(context.Background(), []byte("OggS-audio"), "pt")
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if text != "Comprei cimento por 200 reais" {
		t.Errorf("text: got %q", text)
	}
}

func TestWhisperClient_RetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer server.Close()

	client := openai.NewWhisperClientWithURL("k", "", server.URL).WithRetryConfig(fastRetry())
	text, err := client.Transcribe(context.Background(), []byte("a"), "pt")
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if text != "ok" || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("got text %q after %d calls", text, calls)
	}
}

func TestWhisperClient_NoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := openai.NewWhisperClientWithURL("k", "", server.URL).WithRetryConfig(fastRetry())
	_, err := client.Transcribe(context.Background(), []byte("a"), "pt")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls: got %d, want 1", n)
	}
}

func TestChatExtractor_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "gpt-4.1-mini" {
			t.Errorf("model: got %q", req.Model)
		}
		if req.Temperature != 0.3 {
			t.Errorf("temperature: got %v", req.Temperature)
		}
		if req.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format: got %q", req.ResponseFormat.Type)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" ||
			!strings.Contains(req.Messages[1].Content, "Paguei o pedreiro Pedro") ||
			!strings.Contains(req.Messages[1].Content, "17/10/2026") {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": ` {"kind":"payment"} `}},
			},
		})
	}))
	defer server.Close()

	ex := openai.NewChatExtractorWithURL("k", "", server.URL)
	raw, err := ex.Extract(context.Background(), "Paguei o pedreiro Pedro 350 reais", civil.Date{Year: 2026, Month: 10, Day: 17})
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if raw != `{"kind":"payment"}` {
		t.Errorf("raw: got %q", raw)
	}
}

func TestChatExtractor_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	_, err := openai.NewChatExtractorWithURL("k", "", server.URL).Extract(context.Background(), "x", civil.Date{Year: 2026, Month: 1, Day: 1})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}
