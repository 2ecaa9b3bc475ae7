package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the bookmarkd configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	SQL       SQLConfig       `yaml:"sql"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Queue     QueueConfig     `yaml:"queue"`
	Auth      AuthConfig      `yaml:"auth"`
	Chat      ChatConfig      `yaml:"chat"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Valkey/Redis connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SQLConfig holds the relational bookmark store settings.
type SQLConfig struct {
	Driver       string `yaml:"driver"` // postgres, sqlite
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// StorageConfig holds key layout settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"`
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
	Cache               bool   `yaml:"cache"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Name            string `yaml:"name"`
	Namespace       string `yaml:"namespace"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
	SearchTopK      int    `yaml:"search_top_k"`
}

// ScraperConfig holds content fetcher settings.
type ScraperConfig struct {
	Provider     string `yaml:"provider"` // firecrawl, local
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	TimeoutSec   int    `yaml:"timeout_sec"`
	UserAgent    string `yaml:"user_agent"`
	MaxBytes     int64  `yaml:"max_bytes"`
	AllowPrivate bool   `yaml:"allow_private"` // local fetcher may reach loopback/private hosts
}

// IngestConfig holds ingestion task settings.
type IngestConfig struct {
	Format        string `yaml:"format"` // json, markdown
	Prompt        string `yaml:"prompt"`
	TaskBudgetSec int    `yaml:"task_budget_sec"`
}

// QueueConfig holds task queue settings.
type QueueConfig struct {
	Driver      string `yaml:"driver"` // nats, inline
	URL         string `yaml:"url"`
	Stream      string `yaml:"stream"`
	Subject     string `yaml:"subject"`
	Consumer    string `yaml:"consumer"`
	MaxDeliver  int    `yaml:"max_deliver"`
	Concurrency int    `yaml:"concurrency"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys      []string `yaml:"api_keys"`
	IssuerURL    string   `yaml:"issuer_url"`
	ClientID     string   `yaml:"client_id"`
	LoginPath    string   `yaml:"login_path"`
	SecureCookie bool     `yaml:"secure_cookie"`
	TimeoutSec   int      `yaml:"timeout_sec"`
}

// ChatConfig holds chat assistant settings.
type ChatConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	TopK          int    `yaml:"top_k"`
	MaxToolRounds int    `yaml:"max_tool_rounds"`
	SystemPrompt  string `yaml:"system_prompt"`
}

// DefaultExtractionPrompt asks the scraping API for a title and a description of the page.
const DefaultExtractionPrompt = "Analyze the content of the page and figure out what content of the site is about, " +
	"and give it as description, also fetch the title"

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables in data, decodes it and applies defaults.
func Parse(data []byte) (Config, error) {
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

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// chat responses stream for as long as the model talks
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.SQL.Driver == "" {
		c.SQL.Driver = "sqlite"
	}
	if c.SQL.DSN == "" && c.SQL.Driver == "sqlite" {
		c.SQL.DSN = "file:bookmarks.db?_pragma=busy_timeout(5000)"
	}
	if c.SQL.MaxOpenConns <= 0 {
		c.SQL.MaxOpenConns = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "bookmarkd:"
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
	if c.Index.Name == "" {
		c.Index.Name = "sites"
	}
	if c.Index.Namespace == "" {
		c.Index.Namespace = "__default__"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Index.SearchTopK <= 0 {
		c.Index.SearchTopK = 10
	}
	if c.Scraper.Provider == "" {
		c.Scraper.Provider = "firecrawl"
	}
	if c.Scraper.BaseURL == "" && c.Scraper.Provider == "firecrawl" {
		c.Scraper.BaseURL = "https://api.firecrawl.dev"
	}
	if c.Scraper.TimeoutSec <= 0 {
		c.Scraper.TimeoutSec = 120
	}
	if c.Scraper.UserAgent == "" {
		c.Scraper.UserAgent = "bookmarkd/1.0"
	}
	if c.Scraper.MaxBytes <= 0 {
		c.Scraper.MaxBytes = 5 << 20
	}
	if c.Ingest.Format == "" {
		c.Ingest.Format = "json"
	}
	if c.Ingest.Prompt == "" {
		c.Ingest.Prompt = DefaultExtractionPrompt
	}
	if c.Ingest.TaskBudgetSec <= 0 {
		c.Ingest.TaskBudgetSec = 300
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = "inline"
	}
	if c.Queue.Stream == "" {
		c.Queue.Stream = "BOOKMARKS"
	}
	if c.Queue.Subject == "" {
		c.Queue.Subject = "bookmarks.ingest"
	}
	if c.Queue.Consumer == "" {
		c.Queue.Consumer = "bookmark-ingester"
	}
	if c.Queue.MaxDeliver <= 0 {
		c.Queue.MaxDeliver = 1
	}
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = 4
	}
	if c.Auth.LoginPath == "" {
		c.Auth.LoginPath = "/auth/login"
	}
	if c.Auth.TimeoutSec <= 0 {
		c.Auth.TimeoutSec = 5
	}
	if c.Chat.Model == "" {
		c.Chat.Model = "gpt-4o"
	}
	if c.Chat.TopK <= 0 {
		c.Chat.TopK = 5
	}
	if c.Chat.MaxToolRounds <= 0 {
		c.Chat.MaxToolRounds = 5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return errors.New("database.addrs is required")
	}
	switch c.Database.Driver {
	case "valkey", "redis":
	default:
		return fmt.Errorf("database.driver must be \"valkey\" or \"redis\", got %q", c.Database.Driver)
	}
	switch c.SQL.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("sql.driver must be \"postgres\" or \"sqlite\", got %q", c.SQL.Driver)
	}
	if c.SQL.DSN == "" {
		return errors.New("sql.dsn is required")
	}
	switch c.Scraper.Provider {
	case "firecrawl":
		if c.Scraper.APIKey == "" {
			return errors.New("scraper.api_key is required for the firecrawl provider")
		}
	case "local":
	default:
		return fmt.Errorf("scraper.provider must be \"firecrawl\" or \"local\", got %q", c.Scraper.Provider)
	}
	switch c.Ingest.Format {
	case "json", "markdown":
	default:
		return fmt.Errorf("ingest.format must be \"json\" or \"markdown\", got %q", c.Ingest.Format)
	}
	switch c.Queue.Driver {
	case "nats":
		if c.Queue.URL == "" {
			return errors.New("queue.url is required for the nats driver")
		}
	case "inline":
	default:
		return fmt.Errorf("queue.driver must be \"nats\" or \"inline\", got %q", c.Queue.Driver)
	}
	if !strings.HasPrefix(c.Auth.LoginPath, "/") {
		return fmt.Errorf("auth.login_path must start with /, got %q", c.Auth.LoginPath)
	}
	return nil
}

// TaskBudget returns the ingestion task deadline.
func (c *Config) TaskBudget() time.Duration {
	return time.Duration(c.Ingest.TaskBudgetSec) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// relative to the source file, for tests run from package dirs
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

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
