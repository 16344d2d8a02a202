package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transcript backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

type Config struct {
	Port              int
	LogLevel          string
	NatsURL           string
	NatsToken         string
	TranscriptBackend string
	DatabaseURL       string
	SQLitePath        string
	MaxTurns          int
	ScanTurns         int
	DefaultSessionID  string
	AnthropicAPIKey   string
	AnthropicModel    string
	GenerationTimeout time.Duration
	SlackBotToken     string
	SlackChannel      string
	APIToken          string
	LexiconPath       string
	ResponsesPath     string
	AllowedOrigins    []string
}

func Load() Config {
	return Config{
		Port:              envInt("TRIAGE_PORT", 8760),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		NatsURL:           envStr("NATS_URL", ""),
		NatsToken:         envStr("NATS_TOKEN", ""),
		TranscriptBackend: strings.ToLower(envStr("TRANSCRIPT_BACKEND", BackendMemory)),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		SQLitePath:        envStr("SQLITE_PATH", "triage.db"),
		MaxTurns:          envInt("TRANSCRIPT_MAX_TURNS", 15),
		ScanTurns:         envInt("CONTEXT_SCAN_TURNS", 8),
		DefaultSessionID:  envStr("DEFAULT_SESSION_ID", "default_wa_id"),
		AnthropicAPIKey:   envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    envStr("TRIAGE_MODEL", "claude-sonnet-4-20250514"),
		GenerationTimeout: time.Duration(envInt("GENERATION_TIMEOUT_MS", 20000)) * time.Millisecond,
		SlackBotToken:     envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:      envStr("SLACK_ESCALATION_CHANNEL", ""),
		APIToken:          envStr("TRIAGE_API_TOKEN", ""),
		LexiconPath:       envStr("LEXICON_PATH", ""),
		ResponsesPath:     envStr("RESPONSES_PATH", ""),
		AllowedOrigins:    envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.TranscriptBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("TRANSCRIPT_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown TRANSCRIPT_BACKEND %q", c.TranscriptBackend)
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("TRANSCRIPT_MAX_TURNS must be positive, got %d", c.MaxTurns)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT_MS must be positive")
	}
	return nil
}

// GenerationEnabled reports whether an LLM key is configured.
func (c Config) GenerationEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// SlackEnabled reports whether escalation alerts can be posted.
func (c Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
