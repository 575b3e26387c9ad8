package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/site-ledger/internal/domain"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithEnv("", envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, ProviderWhisper, cfg.Pipeline.Transcriber)
	assert.Equal(t, ProviderGemini, cfg.Pipeline.Extractor)
	assert.Equal(t, "pt", cfg.Pipeline.Language)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.StepTimeout)
	assert.Equal(t, BackendGoogleSheets, cfg.Sheets.Backend)
	assert.Equal(t, "whisper-1", cfg.OpenAI.WhisperModel)
	assert.Equal(t, "gpt-4.1-mini", cfg.OpenAI.ChatModel)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 0, cfg.Queue.MaxRetries)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadFileWithExpansionAndOverrides(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: ${BOT_TOKEN}
pipeline:
  transcriber: gemini
  step_timeout: 45s
  timezone: America/Sao_Paulo
sheets:
  backend: xlsx
  xlsx_dir: /data/sheets
queue:
  workers: 2
log:
  level: debug
`)
	env := envMap(map[string]string{
		"BOT_TOKEN":              "from-file",
		"GEMINI_API_KEY":         "g-key",
		"SITE_LEDGER_LOG_LEVEL":  "warn",
		"SITE_LEDGER_SHARE_WITH": "a@example.com, b@example.com,",
	})

	cfg, err := LoadWithEnv(path, env)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Telegram.Token)
	assert.Equal(t, ProviderGemini, cfg.Pipeline.Transcriber)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.StepTimeout)
	assert.Equal(t, BackendXLSX, cfg.Sheets.Backend)
	assert.Equal(t, "/data/sheets", cfg.Sheets.XLSXDir)
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.Equal(t, "warn", cfg.Log.Level, "env wins over file")
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Sheets.ShareWith)
	require.NoError(t, cfg.Validate(RoleBot))

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", loc.String())
}

func TestLoadUsesConfigPathEnv(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")
	cfg, err := LoadWithEnv("", envMap(map[string]string{ConfigPathEnv: path}))
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil))
	assert.Error(t, err)

	_, err = LoadWithEnv(writeConfig(t, "pipeline: [oops"), envMap(nil))
	assert.Error(t, err)

	_, err = LoadWithEnv("", envMap(map[string]string{"SITE_LEDGER_WORKERS": "many"}))
	assert.ErrorContains(t, err, "SITE_LEDGER_WORKERS")

	_, err = LoadWithEnv("", envMap(map[string]string{"SITE_LEDGER_STEP_TIMEOUT": "soon"}))
	assert.ErrorContains(t, err, "SITE_LEDGER_STEP_TIMEOUT")
}

func TestValidate(t *testing.T) {
	full := map[string]string{
		"TELEGRAM_BOT_TOKEN":      "t",
		"OPENAI_API_KEY":          "o",
		"GEMINI_API_KEY":          "g",
		"GOOGLE_CREDENTIALS_JSON": "{}",
	}
	without := func(key string, extra ...string) map[string]string {
		m := make(map[string]string)
		for k, v := range full {
			if k != key {
				m[k] = v
			}
		}
		for i := 0; i+1 < len(extra); i += 2 {
			m[extra[i]] = extra[i+1]
		}
		return m
	}

	tests := []struct {
		name    string
		env     map[string]string
		role    Role
		wantErr string
	}{
		{"bot complete", full, RoleBot, ""},
		{"bot without token", without("TELEGRAM_BOT_TOKEN"), RoleBot, "TELEGRAM_BOT_TOKEN"},
		{"api needs no token", without("TELEGRAM_BOT_TOKEN"), RoleAPI, ""},
		{"whisper needs openai", without("OPENAI_API_KEY"), RoleAPI, "OPENAI_API_KEY"},
		{"gemini transcriber", without("OPENAI_API_KEY", "SITE_LEDGER_TRANSCRIBER", "gemini"), RolePipeline, ""},
		{"openai extractor", without("GEMINI_API_KEY", "SITE_LEDGER_EXTRACTOR", "openai"), RolePipeline, ""},
		{"gemini extractor needs key", without("GEMINI_API_KEY"), RoleExtract, "GEMINI_API_KEY"},
		{"gsheets needs credentials", without("GOOGLE_CREDENTIALS_JSON"), RoleSheets, "GOOGLE_CREDENTIALS_JSON"},
		{"xlsx needs no credentials", without("GOOGLE_CREDENTIALS_JSON", "SITE_LEDGER_SHEETS_BACKEND", "xlsx"), RoleSheets, ""},
		{"unknown backend", without("", "SITE_LEDGER_SHEETS_BACKEND", "excel"), RoleSheets, "unknown sheets backend"},
		{"unknown transcriber", without("", "SITE_LEDGER_TRANSCRIBER", "vosk"), RoleAPI, "unknown transcriber"},
		{"bad timezone", without("", "SITE_LEDGER_TIMEZONE", "Mars/Olympus"), RoleSheets, "invalid timezone"},
		{"unknown role", full, Role("cron"), "unknown role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithEnv("", envMap(tt.env))
			require.NoError(t, err)

			err = cfg.Validate(tt.role)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfiguration))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGoogleCredentials(t *testing.T) {
	cfg := &Config{Sheets: SheetsConfig{CredentialsJSON: `{"type":"service_account"}`}}
	data, err := cfg.GoogleCredentials()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"service_account"}`, string(data))

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"from":"file"}`), 0o600))
	cfg = &Config{Sheets: SheetsConfig{CredentialsFile: path}}
	data, err = cfg.GoogleCredentials()
	require.NoError(t, err)
	assert.Equal(t, `{"from":"file"}`, string(data))

	_, err = (&Config{}).GoogleCredentials()
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}
