// Package config loads settings from an optional YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/site-ledger/internal/domain"
	"github.com/dvloznov/site-ledger/internal/pipeline"
)

// Backend and provider names.
const (
	BackendGoogleSheets = "gsheets"
	BackendXLSX         = "xlsx"

	ProviderWhisper = "whisper"
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
)

// ConfigPathEnv names the config file when -config is not given.
const ConfigPathEnv = "SITE_LEDGER_CONFIG"

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Registry RegistryConfig `yaml:"registry"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Tracking TrackingConfig `yaml:"tracking"`
	Queue    QueueConfig    `yaml:"queue"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

type TelegramConfig struct {
	Token string `yaml:"token"`
	Debug bool   `yaml:"debug"`
}

type OpenAIConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	ChatModel    string `yaml:"chat_model"`
	WhisperModel string `yaml:"whisper_model"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type PipelineConfig struct {
	Transcriber   string        `yaml:"transcriber"` // whisper | gemini
	Extractor     string        `yaml:"extractor"`   // gemini | openai
	Language      string        `yaml:"language"`
	StepTimeout   time.Duration `yaml:"step_timeout"`
	MaxAudioBytes int64         `yaml:"max_audio_bytes"`
	Timezone      string        `yaml:"timezone"`
}

type SheetsConfig struct {
	Backend         string   `yaml:"backend"` // gsheets | xlsx
	CredentialsJSON string   `yaml:"credentials_json"`
	CredentialsFile string   `yaml:"credentials_file"`
	ShareWith       []string `yaml:"share_with"`
	XLSXDir         string   `yaml:"xlsx_dir"`
}

// RegistryConfig enables the sqlite project registry when Path is set.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// ArchiveConfig enables voice note archiving when Bucket is set.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// TrackingConfig enables BigQuery run tracking when ProjectID is set.
type TrackingConfig struct {
	ProjectID string `yaml:"project_id"`
	Dataset   string `yaml:"dataset"`
}

type QueueConfig struct {
	Workers    int `yaml:"workers"`
	Buffer     int `yaml:"buffer"`
	MaxRetries int `yaml:"max_retries"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path (or $SITE_LEDGER_CONFIG when path is empty; no file at all is fine),
// applies environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = getenv(ConfigPathEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := os.Expand(string(data), getenv)
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.Token)
	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("GEMINI_API_KEY", &c.Gemini.APIKey)
	str("GOOGLE_CREDENTIALS_JSON", &c.Sheets.CredentialsJSON)
	str("GOOGLE_APPLICATION_CREDENTIALS_FILE", &c.Sheets.CredentialsFile)
	str("SITE_LEDGER_TRANSCRIBER", &c.Pipeline.Transcriber)
	str("SITE_LEDGER_EXTRACTOR", &c.Pipeline.Extractor)
	str("SITE_LEDGER_LANGUAGE", &c.Pipeline.Language)
	str("SITE_LEDGER_TIMEZONE", &c.Pipeline.Timezone)
	str("SITE_LEDGER_SHEETS_BACKEND", &c.Sheets.Backend)
	str("SITE_LEDGER_XLSX_DIR", &c.Sheets.XLSXDir)
	str("SITE_LEDGER_REGISTRY_PATH", &c.Registry.Path)
	str("SITE_LEDGER_ARCHIVE_BUCKET", &c.Archive.Bucket)
	str("SITE_LEDGER_BQ_PROJECT", &c.Tracking.ProjectID)
	str("SITE_LEDGER_BQ_DATASET", &c.Tracking.Dataset)
	str("SITE_LEDGER_HTTP_ADDR", &c.Server.Addr)
	str("SITE_LEDGER_API_TOKEN", &c.Server.AuthToken)
	str("SITE_LEDGER_LOG_LEVEL", &c.Log.Level)
	str("SITE_LEDGER_LOG_FORMAT", &c.Log.Format)

	if v := getenv("SITE_LEDGER_SHARE_WITH"); v != "" {
		c.Sheets.ShareWith = nil
		for _, email := range strings.Split(v, ",") {
			if email = strings.TrimSpace(email); email != "" {
				c.Sheets.ShareWith = append(c.Sheets.ShareWith, email)
			}
		}
	}
	if v := getenv("SITE_LEDGER_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SITE_LEDGER_WORKERS: %w", err)
		}
		c.Queue.Workers = n
	}
	if v := getenv("SITE_LEDGER_STEP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SITE_LEDGER_STEP_TIMEOUT: %w", err)
		}
		c.Pipeline.StepTimeout = d
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Pipeline.Transcriber == "" {
		c.Pipeline.Transcriber = ProviderWhisper
	}
	if c.Pipeline.Extractor == "" {
		c.Pipeline.Extractor = ProviderGemini
	}
	if c.Pipeline.Language == "" {
		c.Pipeline.Language = pipeline.DefaultLanguage
	}
	if c.Pipeline.StepTimeout == 0 {
		c.Pipeline.StepTimeout = pipeline.DefaultStepTimeout
	}
	if c.Pipeline.MaxAudioBytes == 0 {
		c.Pipeline.MaxAudioBytes = pipeline.DefaultMaxAudioBytes
	}
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = pipeline.DefaultOpenAIModel
	}
	if c.OpenAI.WhisperModel == "" {
		c.OpenAI.WhisperModel = pipeline.DefaultWhisperModel
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = pipeline.DefaultGeminiModel
	}
	if c.Sheets.Backend == "" {
		c.Sheets.Backend = BackendGoogleSheets
	}
	if c.Sheets.XLSXDir == "" {
		c.Sheets.XLSXDir = "./spreadsheets"
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "voice-notes"
	}
	if c.Tracking.Dataset == "" {
		c.Tracking.Dataset = "site_ledger"
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.Buffer == 0 {
		c.Queue.Buffer = 100
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Role is what a process needs the configuration for.
type Role string

const (
	RoleBot      Role = "bot"      // Telegram bot: pipeline plus bot token
	RoleAPI      Role = "api"      // HTTP service: pipeline
	RolePipeline Role = "pipeline" // one-shot processing from the CLI
	RoleExtract  Role = "extract"  // extraction only
	RoleSheets   Role = "sheets"   // spreadsheet backend only
)

// Validate reports the first missing or invalid setting the role needs as a domain.ErrConfiguration.
func (c *Config) Validate(role Role) error {
	if _, err := c.Location(); err != nil {
		return domain.ConfigError("invalid timezone %q: %v", c.Pipeline.Timezone, err)
	}
	if c.Queue.Workers < 0 || c.Queue.MaxRetries < 0 {
		return domain.ConfigError("queue workers and max_retries must not be negative")
	}

	switch role {
	case RoleBot:
		if c.Telegram.Token == "" {
			return domain.ConfigError("TELEGRAM_BOT_TOKEN is not set")
		}
		return c.validatePipeline()
	case RoleAPI, RolePipeline:
		return c.validatePipeline()
	case RoleExtract:
		return c.validateExtractor()
	case RoleSheets:
		return c.validateSheets()
	default:
		return domain.ConfigError("unknown role %q", role)
	}
}

func (c *Config) validatePipeline() error {
	switch c.Pipeline.Transcriber {
	case ProviderWhisper:
		if c.OpenAI.APIKey == "" {
			return domain.ConfigError("OPENAI_API_KEY is not set (required by the whisper transcriber)")
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return domain.ConfigError("GEMINI_API_KEY is not set (required by the gemini transcriber)")
		}
	default:
		return domain.ConfigError("unknown transcriber %q", c.Pipeline.Transcriber)
	}
	if err := c.validateExtractor(); err != nil {
		return err
	}
	return c.validateSheets()
}

func (c *Config) validateExtractor() error {
	switch c.Pipeline.Extractor {
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return domain.ConfigError("GEMINI_API_KEY is not set (required by the gemini extractor)")
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return domain.ConfigError("OPENAI_API_KEY is not set (required by the openai extractor)")
		}
	default:
		return domain.ConfigError("unknown extractor %q", c.Pipeline.Extractor)
	}
	return nil
}

func (c *Config) validateSheets() error {
	switch c.Sheets.Backend {
	case BackendGoogleSheets:
		if c.Sheets.CredentialsJSON == "" && c.Sheets.CredentialsFile == "" {
			return domain.ConfigError("GOOGLE_CREDENTIALS_JSON is not set (required by the gsheets backend)")
		}
	case BackendXLSX:
		if c.Sheets.XLSXDir == "" {
			return domain.ConfigError("sheets.xlsx_dir is not set")
		}
	default:
		return domain.ConfigError("unknown sheets backend %q", c.Sheets.Backend)
	}
	return nil
}

// Location is the time zone used for "today". Empty means the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Pipeline.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Pipeline.Timezone)
}

// GoogleCredentials returns the service-account JSON, reading CredentialsFile if needed.
func (c *Config) GoogleCredentials() ([]byte, error) {
	if c.Sheets.CredentialsJSON != "" {
		return []byte(c.Sheets.CredentialsJSON), nil
	}
	if c.Sheets.CredentialsFile == "" {
		return nil, domain.ConfigError("GOOGLE_CREDENTIALS_JSON is not set")
	}
	data, err := os.ReadFile(c.Sheets.CredentialsFile)
	if err != nil {
		return nil, domain.ConfigError("reading credentials file: %v", err)
	}
	return data, nil
}
