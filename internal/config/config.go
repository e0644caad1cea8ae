// Package config loads engine configuration from the environment with an
// optional YAML overlay.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider identifies an LLM or embedding backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Providers
	LLMProvider     Provider `yaml:"llm_provider"`
	LLMModel        string   `yaml:"llm_model"`
	EmbedProvider   Provider `yaml:"embed_provider"`
	EmbedModel      string   `yaml:"embed_model"`
	EmbedDimension  int      `yaml:"embed_dimension"`
	OllamaHost      string   `yaml:"ollama_host"`
	OpenAIAPIKey    string   `yaml:"openai_api_key"`
	AnthropicAPIKey string   `yaml:"anthropic_api_key"`

	// Orchestration
	GenerationTimeout  time.Duration `yaml:"generation_timeout"`
	ProviderRetries    int           `yaml:"provider_retries"`
	ConsistencyRetries int           `yaml:"consistency_retries"`

	// Context window
	TokenBudget    int `yaml:"token_budget"`
	WindowSegments int `yaml:"window_segments"`
	SummaryTokens  int `yaml:"summary_tokens"`

	// Memory store
	ReferencePolicy string `yaml:"reference_policy"` // "reject" or "placeholder"

	// Cache
	CacheBackend string        `yaml:"cache_backend"` // "memory" or "redis"
	RedisAddr    string        `yaml:"redis_addr"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "lorekeep"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "narrative"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     Provider(getEnv("LOREKEEP_LLM_PROVIDER", string(ProviderOllama))),
		LLMModel:        getEnv("LOREKEEP_LLM_MODEL", "llama3"),
		EmbedProvider:   Provider(getEnv("LOREKEEP_EMBED_PROVIDER", string(ProviderOllama))),
		EmbedModel:      getEnv("LOREKEEP_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension:  getEnvInt("LOREKEEP_EMBED_DIMENSION", 384),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		GenerationTimeout:  getEnvDuration("LOREKEEP_GENERATION_TIMEOUT", 120*time.Second),
		ProviderRetries:    getEnvInt("LOREKEEP_PROVIDER_RETRIES", 3),
		ConsistencyRetries: getEnvInt("LOREKEEP_CONSISTENCY_RETRIES", 2),

		TokenBudget:    getEnvInt("LOREKEEP_TOKEN_BUDGET", 4000),
		WindowSegments: getEnvInt("LOREKEEP_WINDOW_SEGMENTS", 10),
		SummaryTokens:  getEnvInt("LOREKEEP_SUMMARY_TOKENS", 800),

		ReferencePolicy: getEnv("LOREKEEP_REFERENCE_POLICY", "reject"),

		CacheBackend: getEnv("LOREKEEP_CACHE_BACKEND", "memory"),
		RedisAddr:    getEnv("LOREKEEP_REDIS_ADDR", "localhost:6379"),
		CacheTTL:     getEnvDuration("LOREKEEP_CACHE_TTL", 60*time.Second),

		LogFile:  getEnv("LOREKEEP_LOG_FILE", "/tmp/lorekeep.log"),
		LogLevel: parseLogLevel(getEnv("LOREKEEP_LOG_LEVEL", "INFO")),
	}
}

// LoadFile overlays values from a YAML file onto an env-loaded config.
// Env vars win only where the file leaves a field zero.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
