package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Semantic backends.
const (
	BackendNone     = "none"
	BackendValkey   = "valkey"
	BackendPgvector = "pgvector"
	BackendLexical  = "lexical"
	BackendMemory   = "memory"
)

// Config holds the dirsearch service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Valkey     ValkeyConfig     `yaml:"valkey"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Semantic   SemanticConfig   `yaml:"semantic"`
	Structured StructuredConfig `yaml:"structured"`
	Access     AccessConfig     `yaml:"access"`
	Sync       SyncConfig       `yaml:"sync"`
	Search     SearchConfig     `yaml:"search"`
	Tool       ToolConfig       `yaml:"tool"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds bearer keys. Empty key lists disable authentication for that route group.
type AuthConfig struct {
	AdminKeys []string `yaml:"admin_keys"`
	APIKeys   []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the relational catalog connection settings.
type DatabaseConfig struct {
	Driver             string `yaml:"driver"` // postgres, sqlite (default: sqlite)
	DSN                string `yaml:"dsn"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec"`
	ConnMaxIdleTimeSec int    `yaml:"conn_max_idle_time_sec"`
	ReadinessTimeout   int    `yaml:"readiness_timeout_sec"`
}

// ValkeyConfig holds Valkey connection settings (vector index and query embedding cache).
type ValkeyConfig struct {
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// EmbeddingConfig holds the OpenAI-compatible embedding provider settings.
type EmbeddingConfig struct {
	Provider            string  `yaml:"provider"` // metric label (default: openai)
	APIKey              string  `yaml:"api_key"`
	BaseURL             string  `yaml:"base_url"`
	Model               string  `yaml:"model"`
	Dimensions          int     `yaml:"dimensions"`
	DocumentInstruction string  `yaml:"document_instruction"`
	QueryInstruction    string  `yaml:"query_instruction"`
	TimeoutSec          int     `yaml:"timeout_sec"`
	RatePerSec          float64 `yaml:"rate_per_sec"` // 0 = unlimited
	Burst               int     `yaml:"burst"`
	Cache               bool    `yaml:"cache"` // query embedding cache in Valkey
	CacheTTLHours       int     `yaml:"cache_ttl_hours"`
}

// HNSWConfig holds HNSW index parameters of the Valkey backend.
type HNSWConfig struct {
	M           int `yaml:"m"`
	EFConstruct int `yaml:"ef_construction"`
}

// SemanticConfig selects and tunes the semantic index.
type SemanticConfig struct {
	Backend       string     `yaml:"backend"` // none, valkey, pgvector, lexical, memory (default: none)
	IndexName     string     `yaml:"index_name"`
	MinSimilarity float64    `yaml:"min_similarity"`
	TimeoutMs     int        `yaml:"timeout_ms"`
	HNSW          HNSWConfig `yaml:"hnsw"`
}

// StructuredConfig tunes the structured query path.
type StructuredConfig struct {
	TimeoutMs      int `yaml:"timeout_ms"`
	MaxAttempts    int `yaml:"max_attempts"`
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
}

// AccessConfig tunes the access resolver cache.
type AccessConfig struct {
	CacheTTLSec int `yaml:"cache_ttl_sec"`
}

// SyncConfig tunes the semantic index synchronizer.
type SyncConfig struct {
	Workers           int    `yaml:"workers"`
	QueueSize         int    `yaml:"queue_size"`
	MaxAttempts       int    `yaml:"max_attempts"`
	RetryBackoffMs    int    `yaml:"retry_backoff_ms"`
	ReplayIntervalSec int    `yaml:"replay_interval_sec"`
	MaxRounds         int    `yaml:"max_rounds"`
	OutboxPath        string `yaml:"outbox_path"` // empty keeps the outbox in memory
}

// SearchConfig tunes the hybrid search orchestrator.
type SearchConfig struct {
	CandidateLimit int `yaml:"candidate_limit"`
}

// ToolConfig tunes the agent-facing tool.
type ToolConfig struct {
	DefaultLimit int     `yaml:"default_limit"`
	MaxLimit     int     `yaml:"max_limit"`
	RatePerSec   float64 `yaml:"rate_per_sec"` // per agent, 0 = unlimited
	Burst        int     `yaml:"burst"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetimeSec <= 0 {
		c.Database.ConnMaxLifetimeSec = 1800
	}
	if c.Database.ConnMaxIdleTimeSec <= 0 {
		c.Database.ConnMaxIdleTimeSec = 300
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 10
	}
	if c.Embedding.Burst <= 0 {
		c.Embedding.Burst = 1
	}
	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 24
	}

	if c.Semantic.Backend == "" {
		c.Semantic.Backend = BackendNone
	}
	if c.Semantic.TimeoutMs <= 0 {
		c.Semantic.TimeoutMs = 800
	}
	if c.Semantic.HNSW.M <= 0 {
		c.Semantic.HNSW.M = 16
	}
	if c.Semantic.HNSW.EFConstruct <= 0 {
		c.Semantic.HNSW.EFConstruct = 200
	}

	if c.Structured.TimeoutMs <= 0 {
		c.Structured.TimeoutMs = 2000
	}
	if c.Structured.MaxAttempts <= 0 {
		c.Structured.MaxAttempts = 2
	}
	if c.Structured.RetryBackoffMs <= 0 {
		c.Structured.RetryBackoffMs = 50
	}

	if c.Access.CacheTTLSec <= 0 {
		c.Access.CacheTTLSec = 30
	}

	if c.Sync.Workers <= 0 {
		c.Sync.Workers = 4
	}
	if c.Sync.QueueSize <= 0 {
		c.Sync.QueueSize = 1024
	}
	if c.Sync.MaxAttempts <= 0 {
		c.Sync.MaxAttempts = 3
	}
	if c.Sync.RetryBackoffMs <= 0 {
		c.Sync.RetryBackoffMs = 500
	}
	if c.Sync.ReplayIntervalSec <= 0 {
		c.Sync.ReplayIntervalSec = 30
	}
	if c.Sync.MaxRounds <= 0 {
		c.Sync.MaxRounds = 20
	}

	if c.Search.CandidateLimit <= 0 {
		c.Search.CandidateLimit = 200
	}

	if c.Tool.DefaultLimit <= 0 {
		c.Tool.DefaultLimit = 5
	}
	if c.Tool.MaxLimit <= 0 {
		c.Tool.MaxLimit = 25
	}
	if c.Tool.Burst <= 0 {
		c.Tool.Burst = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be \"postgres\" or \"sqlite\", got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	switch c.Semantic.Backend {
	case BackendNone, BackendLexical:
	case BackendValkey:
		if len(c.Valkey.Addrs) == 0 {
			return fmt.Errorf("valkey.addrs is required for the valkey semantic backend")
		}
	case BackendPgvector:
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("semantic.backend pgvector requires database.driver postgres")
		}
	case BackendMemory:
	default:
		return fmt.Errorf(
			"semantic.backend must be one of none, valkey, pgvector, lexical, memory, got %q",
			c.Semantic.Backend,
		)
	}
	if c.Semantic.MinSimilarity < 0 || c.Semantic.MinSimilarity > 1 {
		return fmt.Errorf("semantic.min_similarity must be within [0, 1], got %v", c.Semantic.MinSimilarity)
	}
	if c.NeedsEmbedding() && c.Embedding.BaseURL == "" && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key or embedding.base_url is required for the %s backend", c.Semantic.Backend)
	}
	if c.Embedding.Cache && len(c.Valkey.Addrs) == 0 {
		return fmt.Errorf("valkey.addrs is required for embedding.cache")
	}

	if c.Tool.DefaultLimit > c.Tool.MaxLimit {
		return fmt.Errorf("tool.default_limit %d exceeds tool.max_limit %d", c.Tool.DefaultLimit, c.Tool.MaxLimit)
	}
	if c.Tool.MaxLimit > 25 {
		return fmt.Errorf("tool.max_limit must be at most 25, got %d", c.Tool.MaxLimit)
	}
	return nil
}

// NeedsEmbedding reports whether the selected semantic backend stores vectors.
func (c *Config) NeedsEmbedding() bool {
	switch c.Semantic.Backend {
	case BackendValkey, BackendPgvector, BackendMemory:
		return true
	default:
		return false
	}
}

// Ms converts a millisecond setting to a duration.
func Ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Sec converts a second setting to a duration.
func Sec(v int) time.Duration { return time.Duration(v) * time.Second }

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
