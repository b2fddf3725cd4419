package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "AMANDOCS_"

// Config represents the complete amandocs configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version" toml:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths" toml:"paths"`
	Search      SearchConfig      `yaml:"search" json:"search" toml:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings" toml:"embeddings"`
	Store       StoreConfig       `yaml:"store" json:"store" toml:"store"`
	Performance PerformanceConfig `yaml:"performance" json:"performance" toml:"performance"`
	Server      ServerConfig      `yaml:"server" json:"server" toml:"server"`
}

// PathsConfig configures where the index lives and which files are crawled.
// Include and Exclude are doublestar glob patterns relative to the crawl root.
type PathsConfig struct {
	DataDir string   `yaml:"data_dir" json:"data_dir" toml:"data_dir"`
	Include []string `yaml:"include" json:"include" toml:"include"`
	Exclude []string `yaml:"exclude" json:"exclude" toml:"exclude"`
}

// SearchConfig configures query behavior.
type SearchConfig struct {
	// DefaultLimit is used when a caller passes limit < 1.
	DefaultLimit int `yaml:"default_limit" json:"default_limit" toml:"default_limit"`

	// Oversample multiplies the limit before per-file deduplication.
	Oversample int `yaml:"oversample" json:"oversample" toml:"oversample"`

	// PreviewChars caps the stored preview text, in characters.
	PreviewChars int `yaml:"preview_chars" json:"preview_chars" toml:"preview_chars"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider      string `yaml:"provider" json:"provider" toml:"provider"` // static, ollama, openai
	Model         string `yaml:"model" json:"model" toml:"model"`
	Dimensions    int    `yaml:"dimensions" json:"dimensions" toml:"dimensions"`
	OllamaHost    string `yaml:"ollama_host" json:"ollama_host" toml:"ollama_host"`
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url" toml:"openai_base_url"`
	OpenAIAPIKey  string `yaml:"openai_api_key" json:"-" toml:"openai_api_key"`
	CacheSize     int    `yaml:"cache_size" json:"cache_size" toml:"cache_size"`
	MaxRetries    int    `yaml:"max_retries" json:"max_retries" toml:"max_retries"`
	Timeout       string `yaml:"timeout" json:"timeout" toml:"timeout"`
}

// StoreConfig configures the document store and its vector index.
type StoreConfig struct {
	Metric   string `yaml:"metric" json:"metric" toml:"metric"` // cos or l2
	M        int    `yaml:"m" json:"m" toml:"m"`
	EfSearch int    `yaml:"ef_search" json:"ef_search" toml:"ef_search"`
	Hash     string `yaml:"hash" json:"hash" toml:"hash"` // sha256 or xxhash
}

// PerformanceConfig configures performance tuning options.
type PerformanceConfig struct {
	IndexWorkers  int    `yaml:"index_workers" json:"index_workers" toml:"index_workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce" toml:"watch_debounce"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb" json:"max_file_size_mb" toml:"max_file_size_mb"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level" toml:"log_level"`
}

// defaultExcludePatterns are always excluded from crawling.
var defaultExcludePatterns = []string{
	".git/**",
	"node_modules/**",
	".amandocs/**",
	"**/.DS_Store",
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: ".amandocs",
			Include: []string{},
			Exclude: append([]string(nil), defaultExcludePatterns...),
		},
		Search: SearchConfig{
			DefaultLimit: 10,
			Oversample:   3,
			PreviewChars: 500,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "",
			Dimensions: 384, // all-MiniLM-L6-v2 compatible width
			CacheSize:  1000,
			MaxRetries: 2,
			Timeout:    "60s",
		},
		Store: StoreConfig{
			Metric:   "cos",
			M:        16,
			EfSearch: 20,
			Hash:     "sha256",
		},
		Performance: PerformanceConfig{
			IndexWorkers:  runtime.NumCPU(),
			WatchDebounce: "500ms",
			MaxFileSizeMB: 50,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/amandocs/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/amandocs/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amandocs", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amandocs", "config.yaml")
	}
	return filepath.Join(home, ".config", "amandocs", "config.yaml")
}

// loadUserConfig returns nil, nil when no user config exists.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := decodeFile(configPath, &parsed); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &parsed, nil
}

// Load loads configuration for a project directory.
// Precedence, lowest first:
//  1. Defaults
//  2. User config (~/.config/amandocs/config.yaml)
//  3. Project config (.amandocs.yaml, .amandocs.yml or .amandocs.toml)
//  4. Project .env file (never overrides variables already set)
//  5. Environment variables (AMANDOCS_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ProjectConfigPath returns the first project config file present in dir,
// or "" if there is none.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{".amandocs.yaml", ".amandocs.yml", ".amandocs.toml"} {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

func (c *Config) loadFromFile(dir string) error {
	path := ProjectConfigPath(dir)
	if path == "" {
		return nil
	}

	var parsed Config
	if err := decodeFile(path, &parsed); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

// decodeFile parses YAML or TOML depending on the file extension.
func decodeFile(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, into); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		return nil
	}

	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		// Extend the defaults rather than replace them
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Search.DefaultLimit > 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.Oversample > 0 {
		c.Search.Oversample = other.Search.Oversample
	}
	if other.Search.PreviewChars > 0 {
		c.Search.PreviewChars = other.Search.PreviewChars
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions > 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.OpenAIBaseURL != "" {
		c.Embeddings.OpenAIBaseURL = other.Embeddings.OpenAIBaseURL
	}
	if other.Embeddings.OpenAIAPIKey != "" {
		c.Embeddings.OpenAIAPIKey = other.Embeddings.OpenAIAPIKey
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.MaxRetries > 0 {
		c.Embeddings.MaxRetries = other.Embeddings.MaxRetries
	}
	if other.Embeddings.Timeout != "" {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	if other.Store.Metric != "" {
		c.Store.Metric = other.Store.Metric
	}
	if other.Store.M > 0 {
		c.Store.M = other.Store.M
	}
	if other.Store.EfSearch > 0 {
		c.Store.EfSearch = other.Store.EfSearch
	}
	if other.Store.Hash != "" {
		c.Store.Hash = other.Store.Hash
	}

	if other.Performance.IndexWorkers > 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.WatchDebounce != "" {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}
	if other.Performance.MaxFileSizeMB > 0 {
		c.Performance.MaxFileSizeMB = other.Performance.MaxFileSizeMB
	}

	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies AMANDOCS_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv(EnvPrefix + "EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv(EnvPrefix + "EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv(EnvPrefix + "DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embeddings.Dimensions = d
		}
	}
	if v := os.Getenv(EnvPrefix + "OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv(EnvPrefix + "OPENAI_BASE_URL"); v != "" {
		c.Embeddings.OpenAIBaseURL = v
	}
	// OPENAI_API_KEY is the conventional name; the prefixed form wins.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embeddings.OpenAIAPIKey == "" {
		c.Embeddings.OpenAIAPIKey = v
	}
	if v := os.Getenv(EnvPrefix + "OPENAI_API_KEY"); v != "" {
		c.Embeddings.OpenAIAPIKey = v
	}
	if v := os.Getenv(EnvPrefix + "EMBED_CACHE"); v != "" {
		if strings.EqualFold(v, "false") || v == "0" {
			c.Embeddings.CacheSize = -1
		}
	}
	if v := os.Getenv(EnvPrefix + "OVERSAMPLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.Oversample = n
		}
	}
	if v := os.Getenv(EnvPrefix + "HASH"); v != "" {
		c.Store.Hash = v
	}
	if v := os.Getenv(EnvPrefix + "METRIC"); v != "" {
		c.Store.Metric = v
	}
	if v := os.Getenv(EnvPrefix + "INDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.IndexWorkers = n
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir must not be empty")
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.Oversample < 1 {
		return fmt.Errorf("search.oversample must be at least 1, got %d", c.Search.Oversample)
	}
	if c.Search.PreviewChars < 1 {
		return fmt.Errorf("search.preview_chars must be positive, got %d", c.Search.PreviewChars)
	}

	validProviders := map[string]bool{"static": true, "ollama": true, "openai": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'static', 'ollama' or 'openai', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.Timeout != "" {
		if _, err := time.ParseDuration(c.Embeddings.Timeout); err != nil {
			return fmt.Errorf("embeddings.timeout: %w", err)
		}
	}

	if m := strings.ToLower(c.Store.Metric); m != "cos" && m != "l2" {
		return fmt.Errorf("store.metric must be 'cos' or 'l2', got %s", c.Store.Metric)
	}
	if h := strings.ToLower(c.Store.Hash); h != "sha256" && h != "xxhash" {
		return fmt.Errorf("store.hash must be 'sha256' or 'xxhash', got %s", c.Store.Hash)
	}

	if c.Performance.WatchDebounce != "" {
		if _, err := time.ParseDuration(c.Performance.WatchDebounce); err != nil {
			return fmt.Errorf("performance.watch_debounce: %w", err)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// DataDirFor resolves the data directory against a project root.
func (c *Config) DataDirFor(root string) string {
	if filepath.IsAbs(c.Paths.DataDir) {
		return c.Paths.DataDir
	}
	return filepath.Join(root, c.Paths.DataDir)
}

// EmbedTimeout returns the parsed embedding timeout, or 0 if unset.
func (c *Config) EmbedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embeddings.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// WatchDebounce returns the parsed watcher debounce window.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Performance.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// MaxFileSize returns the per-file size cap in bytes.
func (c *Config) MaxFileSize() int64 {
	return int64(c.Performance.MaxFileSizeMB) * 1024 * 1024
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// JSON returns the configuration as indented JSON. API keys are omitted.
func (c *Config) JSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
