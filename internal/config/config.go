// Package config loads and validates codectx's project and user
// configuration: embedding provider settings, vector store connection
// info, hybrid search weights, and path filters.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectType represents the type of project detected.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config is the full codectx configuration, merged from defaults, user
// config, project config, and environment overrides in that order.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	VectorStore VectorStoreConfig `yaml:"vector_store" json:"vector_store"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Submodules  SubmoduleConfig   `yaml:"submodules" json:"submodules"`
}

// PathsConfig configures which paths to include and exclude.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// SearchConfig configures hybrid search parameters.
//
// Weights and the RRF constant are loaded from, in increasing precedence:
//  1. user config (~/.config/codectx/config.yaml)
//  2. project config (.codectx.yaml)
//  3. environment variables (CODECTX_BM25_WEIGHT, CODECTX_SEMANTIC_WEIGHT, CODECTX_RRF_CONSTANT)
//
// The search engine reads none of them: fusion is unweighted reciprocal
// rank fusion with the fixed search.RRFConstant (100).
type SearchConfig struct {
	// BM25Weight is the weight for sparse/keyword matching (0.0-1.0).
	// Must sum to 1.0 with SemanticWeight.
	BM25Weight float64 `yaml:"bm25_weight" json:"bm25_weight"`

	// SemanticWeight is the weight for dense/semantic similarity (0.0-1.0).
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// RRFConstant is the RRF fusion smoothing parameter k. The search
	// engine does not read this field; it always uses search.RRFConstant.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	ChunkMaxTokens int `yaml:"chunk_max_tokens" json:"chunk_max_tokens"`
	ChunkOverlap   int `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxResults     int `yaml:"max_results" json:"max_results"`
}

// EmbeddingsConfig configures the OpenAI-compatible HTTP embedding
// endpoint used by EmbeddingClient.
type EmbeddingsConfig struct {
	// BaseURL is the endpoint root; requests are POSTed to
	// {BaseURL}/embeddings.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Model is the model name sent in each request body.
	Model string `yaml:"model" json:"model"`

	// APIKey authenticates requests. Read from the environment, never
	// written back to a config file on disk.
	APIKey string `yaml:"-" json:"-"`

	// AuthStyle selects how APIKey is attached: "bearer" (default,
	// Authorization: Bearer <key>) or "azure" (api-key: <key> header).
	AuthStyle string `yaml:"auth_style" json:"auth_style"`

	// ResponseShape selects the field name holding the embedding array
	// in each response item: "openai" (embedding) or "alibaba" (vector
	// under DashScope's schema).
	ResponseShape string `yaml:"response_shape" json:"response_shape"`

	// Dimensions is the expected embedding width. Zero means
	// auto-detect from the first response.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// CustomDimension, when non-zero, is sent as a request parameter
	// asking the provider for a truncated (Matryoshka) embedding.
	CustomDimension int `yaml:"custom_dimension" json:"custom_dimension"`

	// BatchSize is loaded, merged and saved with the rest of the
	// configuration, but the embedding client does not read it: the size
	// of each outbound request is bounded by ProviderBatchCeiling alone.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// ProviderBatchCeiling caps the batch size actually sent to the
	// provider; batches larger than this are split transparently.
	ProviderBatchCeiling int `yaml:"provider_batch_ceiling" json:"provider_batch_ceiling"`

	// RequestTimeout bounds a single HTTP call to the embeddings endpoint.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// VectorStoreConfig configures the vector store backend.
type VectorStoreConfig struct {
	// Backend selects "local" (embedded HNSW + tokenized sparse index)
	// or "http" (remote vector database over the capability surface).
	Backend string `yaml:"backend" json:"backend"`

	// Endpoint is the base URL for the "http" backend.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// APIKey authenticates requests to the "http" backend.
	APIKey string `yaml:"-" json:"-"`

	// CollectionPrefix is loaded and merged with the rest of the
	// configuration, but collection names do not use it: collection.Name
	// always produces "code_chunks_..." or "hybrid_code_chunks_...".
	CollectionPrefix string `yaml:"collection_prefix" json:"collection_prefix"`

	// VerificationThreshold is loaded, merged and validated with the rest
	// of the configuration, but nothing reads it: LocalStore flags a
	// verification warning against the fixed vectorstore.VerificationFloor.
	VerificationThreshold float64 `yaml:"verification_threshold" json:"verification_threshold"`
}

// PerformanceConfig configures performance tuning options.
type PerformanceConfig struct {
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	IndexWorkers  int    `yaml:"index_workers" json:"index_workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
	CacheSize     int    `yaml:"cache_size" json:"cache_size"`
}

// SubmoduleConfig configures git submodule discovery.
type SubmoduleConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Recursive bool     `yaml:"recursive" json:"recursive"`
	Include   []string `yaml:"include" json:"include"`
	Exclude   []string `yaml:"exclude" json:"exclude"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Search: SearchConfig{
			BM25Weight:     0.35,
			SemanticWeight: 0.65,
			RRFConstant:    100,
			ChunkMaxTokens: 1500,
			ChunkOverlap:   200,
			MaxResults:     20,
		},
		Embeddings: EmbeddingsConfig{
			BaseURL:              "http://localhost:11434/v1",
			Model:                "text-embedding-3-small",
			AuthStyle:            "bearer",
			ResponseShape:        "openai",
			Dimensions:           0,
			BatchSize:            32,
			ProviderBatchCeiling: 256,
			RequestTimeout:       60 * time.Second,
		},
		VectorStore: VectorStoreConfig{
			Backend:               "local",
			CollectionPrefix:      "codectx",
			VerificationThreshold: 0.8,
		},
		Performance: PerformanceConfig{
			MaxFiles:      100000,
			IndexWorkers:  runtime.NumCPU(),
			WatchDebounce: "500ms",
			CacheSize:     1000,
		},
		Submodules: SubmoduleConfig{
			Enabled:   false,
			Recursive: true,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codectx", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codectx", "config.yaml")
	}
	return filepath.Join(home, ".config", "codectx", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for the project rooted at dir, applying
// settings in order of increasing precedence:
//  1. hardcoded defaults
//  2. user/global config (~/.config/codectx/config.yaml)
//  3. project config (.codectx.yaml in dir)
//  4. environment variables (CODECTX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .codectx.yaml or .codectx.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".codectx.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".codectx.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.ChunkMaxTokens != 0 {
		c.Search.ChunkMaxTokens = other.Search.ChunkMaxTokens
	}
	if other.Search.ChunkOverlap != 0 {
		c.Search.ChunkOverlap = other.Search.ChunkOverlap
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	if other.Embeddings.BaseURL != "" {
		c.Embeddings.BaseURL = other.Embeddings.BaseURL
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.AuthStyle != "" {
		c.Embeddings.AuthStyle = other.Embeddings.AuthStyle
	}
	if other.Embeddings.ResponseShape != "" {
		c.Embeddings.ResponseShape = other.Embeddings.ResponseShape
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.CustomDimension != 0 {
		c.Embeddings.CustomDimension = other.Embeddings.CustomDimension
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.ProviderBatchCeiling != 0 {
		c.Embeddings.ProviderBatchCeiling = other.Embeddings.ProviderBatchCeiling
	}
	if other.Embeddings.RequestTimeout != 0 {
		c.Embeddings.RequestTimeout = other.Embeddings.RequestTimeout
	}

	if other.VectorStore.Backend != "" {
		c.VectorStore.Backend = other.VectorStore.Backend
	}
	if other.VectorStore.Endpoint != "" {
		c.VectorStore.Endpoint = other.VectorStore.Endpoint
	}
	if other.VectorStore.CollectionPrefix != "" {
		c.VectorStore.CollectionPrefix = other.VectorStore.CollectionPrefix
	}
	if other.VectorStore.VerificationThreshold != 0 {
		c.VectorStore.VerificationThreshold = other.VectorStore.VerificationThreshold
	}

	if other.Performance.MaxFiles != 0 {
		c.Performance.MaxFiles = other.Performance.MaxFiles
	}
	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.WatchDebounce != "" {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}
	if other.Performance.CacheSize != 0 {
		c.Performance.CacheSize = other.Performance.CacheSize
	}

	if other.Submodules.Enabled {
		c.Submodules.Enabled = other.Submodules.Enabled
	}
	if len(other.Submodules.Include) > 0 || len(other.Submodules.Exclude) > 0 || other.Submodules.Enabled {
		c.Submodules.Recursive = other.Submodules.Recursive
	}
	if len(other.Submodules.Include) > 0 {
		c.Submodules.Include = other.Submodules.Include
	}
	if len(other.Submodules.Exclude) > 0 {
		c.Submodules.Exclude = other.Submodules.Exclude
	}
}

// applyEnvOverrides applies CODECTX_* environment variable overrides,
// the highest-precedence configuration layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODECTX_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("CODECTX_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("CODECTX_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}

	if v := os.Getenv("CODECTX_EMBEDDINGS_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("CODECTX_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CODECTX_EMBEDDINGS_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("CODECTX_EMBEDDINGS_RESPONSE_SHAPE"); v != "" {
		c.Embeddings.ResponseShape = v
	}

	if v := os.Getenv("CODECTX_VECTOR_STORE_BACKEND"); v != "" {
		c.VectorStore.Backend = v
	}
	if v := os.Getenv("CODECTX_VECTOR_STORE_ENDPOINT"); v != "" {
		c.VectorStore.Endpoint = v
	}
	if v := os.Getenv("CODECTX_VECTOR_STORE_API_KEY"); v != "" {
		c.VectorStore.APIKey = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// DetectProjectType detects the project type based on marker files.
// Priority: go.mod > package.json > pyproject.toml/requirements.txt
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}
	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}
	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}
	return ProjectTypeUnknown
}

// FindProjectRoot finds the project root by walking up from startDir
// looking for a .git directory or a .codectx.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".codectx.yaml")) ||
			fileExists(filepath.Join(currentDir, ".codectx.yml")) {
			return currentDir, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// isNextJS checks if the project is a Next.js project.
func isNextJS(dir string) bool {
	pkgPath := filepath.Join(dir, "package.json")
	if !fileExists(pkgPath) {
		return false
	}

	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return false
	}

	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}

	_, hasNext := pkg.Dependencies["next"]
	_, hasNextDev := pkg.DevDependencies["next"]
	return hasNext || hasNextDev
}

// DiscoverSourceDirs discovers common source directories in the project.
func DiscoverSourceDirs(dir string) []string {
	commonSourceDirs := []string{"src", "lib", "pkg", "internal", "cmd"}
	frameworkDirs := []string{"app", "pages"}

	var found []string
	for _, d := range commonSourceDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}
	if isNextJS(dir) {
		for _, d := range frameworkDirs {
			if dirExists(filepath.Join(dir, d)) {
				found = append(found, d)
			}
		}
	}
	return found
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// String returns a string representation of ProjectType.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if sum := c.Search.BM25Weight + c.Search.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("bm25_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Search.ChunkMaxTokens < 0 {
		return fmt.Errorf("chunk_max_tokens must be non-negative, got %d", c.Search.ChunkMaxTokens)
	}

	if c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings.base_url is required")
	}
	validShapes := map[string]bool{"openai": true, "alibaba": true}
	if !validShapes[strings.ToLower(c.Embeddings.ResponseShape)] {
		return fmt.Errorf("embeddings.response_shape must be 'openai' or 'alibaba', got %s", c.Embeddings.ResponseShape)
	}
	validAuth := map[string]bool{"bearer": true, "azure": true}
	if !validAuth[strings.ToLower(c.Embeddings.AuthStyle)] {
		return fmt.Errorf("embeddings.auth_style must be 'bearer' or 'azure', got %s", c.Embeddings.AuthStyle)
	}

	validBackends := map[string]bool{"local": true, "http": true}
	if !validBackends[strings.ToLower(c.VectorStore.Backend)] {
		return fmt.Errorf("vector_store.backend must be 'local' or 'http', got %s", c.VectorStore.Backend)
	}
	if c.VectorStore.Backend == "http" && c.VectorStore.Endpoint == "" {
		return fmt.Errorf("vector_store.endpoint is required when backend is 'http'")
	}
	if c.VectorStore.VerificationThreshold < 0 || c.VectorStore.VerificationThreshold > 1 {
		return fmt.Errorf("vector_store.verification_threshold must be between 0 and 1, got %f", c.VectorStore.VerificationThreshold)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
