// internal/config/global.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wyattjoh/next-dev-utils/internal/config/validate"
	"github.com/wyattjoh/next-dev-utils/internal/digest"
	"github.com/wyattjoh/next-dev-utils/internal/pack"
	"github.com/wyattjoh/next-dev-utils/internal/utils/logger"
	"github.com/wyattjoh/next-dev-utils/internal/utils/security"
	"github.com/wyattjoh/next-dev-utils/internal/utils/slice"
	"gopkg.in/yaml.v3"
)

// ProjectPathEnv overrides next_project_path.
const ProjectPathEnv = "NEXT_PROJECT_PATH"

// GlobalConfig holds tool-level configuration
type GlobalConfig struct {
	Workers         int    `yaml:"workers" json:"workers"`     // Concurrent native target packs (1-64, default: 4)
	TempDir         string `yaml:"temp_dir" json:"temp_dir"`   // Root for per-pack temp dirs (empty = system default)
	CacheDir        string `yaml:"cache_dir" json:"cache_dir"` // Registry fetch cache (empty = user cache dir)
	NextProjectPath string `yaml:"next_project_path,omitempty" json:"next_project_path,omitempty"`

	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Registry   RegistryConfig   `yaml:"registry" json:"registry"`
	Upload     UploadConfig     `yaml:"upload" json:"upload"`
	Digest     DigestConfig     `yaml:"digest" json:"digest"`
	FetchCache FetchCacheConfig `yaml:"fetch_cache" json:"fetch_cache"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// StorageConfig points at the S3 compatible bucket artifacts are uploaded to.
type StorageConfig struct {
	Endpoint   string   `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Region     string   `yaml:"region,omitempty" json:"region,omitempty"`
	Bucket     string   `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	AccessKey  Value    `yaml:"access_key,omitempty" json:"access_key,omitempty"`
	SecretKey  Value    `yaml:"secret_key,omitempty" json:"secret_key,omitempty"`
	UseSSL     bool     `yaml:"use_ssl" json:"use_ssl"`
	PresignTTL Duration `yaml:"presign_ttl" json:"presign_ttl"` // Lifetime of returned download URLs (default: 24h)
}

// Configured reports whether enough is set to build a client.
func (s StorageConfig) Configured() bool {
	return s.Endpoint != "" && s.Bucket != "" && !s.AccessKey.IsZero() && !s.SecretKey.IsZero()
}

type RegistryConfig struct {
	URL         string   `yaml:"url" json:"url"`
	FallbackURL string   `yaml:"fallback_url" json:"fallback_url"`
	CanaryTag   string   `yaml:"canary_tag" json:"canary_tag"`
	Timeout     Duration `yaml:"timeout" json:"timeout"`
}

type UploadConfig struct {
	Retry       string   `yaml:"retry" json:"retry"` // prompt, auto or never
	MaxAttempts int      `yaml:"max_attempts" json:"max_attempts"`
	Backoff     Duration `yaml:"backoff" json:"backoff"`
}

type DigestConfig struct {
	Algorithm string `yaml:"algorithm" json:"algorithm"` // md5 or blake3
}

type FetchCacheConfig struct {
	TTL Duration `yaml:"ttl" json:"ttl"`
}

// LoggingConfig controls basic logging behavior
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`                   // debug, info (default), warn, error
	File  string `yaml:"file,omitempty" json:"file,omitempty"` // Optional log file path for teeing output to disk
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Global singleton variables
var (
	globalInstance *GlobalConfig
	globalMutex    sync.RWMutex
	once           sync.Once
)

// SetGlobal sets the global config instance (call once at startup in main.go)
func SetGlobal(config *GlobalConfig) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	globalInstance = config
}

// Global returns the global config instance
func Global() *GlobalConfig {
	once.Do(func() {
		globalMutex.Lock()
		defer globalMutex.Unlock()
		if globalInstance == nil {
			globalInstance = DefaultGlobalConfig()
		}
	})

	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return globalInstance
}

// DefaultGlobalConfig returns a GlobalConfig with sensible defaults
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Workers: 4,
		Storage: StorageConfig{
			Region:     "us-east-1",
			UseSSL:     true,
			PresignTTL: Duration(24 * time.Hour),
		},
		Registry: RegistryConfig{
			URL:         "https://registry.npmjs.org",
			FallbackURL: "https://unpkg.com",
			CanaryTag:   "canary",
			Timeout:     Duration(10 * time.Second),
		},
		Upload: UploadConfig{
			Retry:       string(pack.RetryPrompt),
			MaxAttempts: 3,
			Backoff:     Duration(2 * time.Second),
		},
		Digest: DigestConfig{
			Algorithm: digest.MD5,
		},
		FetchCache: FetchCacheConfig{
			TTL: Duration(time.Hour),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadGlobalConfig loads configuration from the specified path
func LoadGlobalConfig(configPath string) (*GlobalConfig, error) {
	log := logger.Logger()
	config := DefaultGlobalConfig()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		if errors.Is(err, os.ErrPermission) {
			log.Warnf("Config file %s is not accessible (%v); using defaults", configPath, err)
			return config, nil
		}
		return nil, fmt.Errorf("accessing config file %s: %w", configPath, err)
	}

	data, err := security.SafeReadFile(configPath, security.RejectSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
		if err := config.validateSchema(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml)", ext)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (gc *GlobalConfig) validateSchema() error {
	jsonData, err := json.Marshal(gc)
	if err != nil {
		return fmt.Errorf("converting config to JSON for validation: %w", err)
	}
	if err := validate.ValidateConfigJSON(jsonData); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// SaveGlobalConfig saves the configuration to the specified path
func (gc *GlobalConfig) SaveGlobalConfig(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config path is empty")
	}
	if err := ensureParent(configPath); err != nil {
		return err
	}
	if err := gc.validateSchema(); err != nil {
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	data, err := yaml.Marshal(gc)
	if err != nil {
		return fmt.Errorf("marshaling config to YAML: %w", err)
	}

	if err := security.SafeWriteFile(configPath, data, 0600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// SaveGlobalConfigWithComments writes the configuration with descriptive
// comments. Used by config init to create a starting file.
func (gc *GlobalConfig) SaveGlobalConfigWithComments(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config path is empty")
	}
	if err := ensureParent(configPath); err != nil {
		return err
	}
	if err := gc.validateSchema(); err != nil {
		return fmt.Errorf("config validation failed before save: %w", err)
	}

	if err := security.SafeWriteFile(configPath, []byte(gc.renderCommentedYAML()), 0600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func ensureParent(configPath string) error {
	dir := filepath.Dir(configPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	return nil
}

// renderCommentedYAML builds a YAML representation of the config with comments.
func (gc *GlobalConfig) renderCommentedYAML() string {
	var b strings.Builder

	b.WriteString("# next-dev-utils - Global Configuration\n")
	b.WriteString("# Settings for packing and distributing framework builds.\n\n")

	fmt.Fprintf(&b, "workers: %d\n", gc.Workers)
	b.WriteString("# Native targets packed concurrently (1-64, default: 4)\n\n")

	fmt.Fprintf(&b, "temp_dir: %q\n", gc.TempDir)
	b.WriteString("# Root for per-pack temporary directories. Empty uses the system default.\n\n")

	fmt.Fprintf(&b, "cache_dir: %q\n", gc.CacheDir)
	b.WriteString("# Registry fetch cache. Empty uses the user cache directory.\n\n")

	fmt.Fprintf(&b, "next_project_path: %q\n", gc.NextProjectPath)
	b.WriteString("# Framework checkout used by pack-next. NEXT_PROJECT_PATH overrides it.\n\n")

	b.WriteString("storage:\n")
	fmt.Fprintf(&b, "  endpoint: %q\n", gc.Storage.Endpoint)
	fmt.Fprintf(&b, "  region: %q\n", gc.Storage.Region)
	fmt.Fprintf(&b, "  bucket: %q\n", gc.Storage.Bucket)
	fmt.Fprintf(&b, "  access_key: %q\n", gc.Storage.AccessKey.Raw())
	fmt.Fprintf(&b, "  secret_key: %q\n", gc.Storage.SecretKey.Raw())
	b.WriteString("  # Keys may be op:// references resolved with the 1Password CLI\n")
	fmt.Fprintf(&b, "  use_ssl: %t\n", gc.Storage.UseSSL)
	fmt.Fprintf(&b, "  presign_ttl: %q\n", gc.Storage.PresignTTL)
	b.WriteString("  # Lifetime of returned download URLs\n\n")

	b.WriteString("registry:\n")
	fmt.Fprintf(&b, "  url: %q\n", gc.Registry.URL)
	fmt.Fprintf(&b, "  fallback_url: %q\n", gc.Registry.FallbackURL)
	fmt.Fprintf(&b, "  canary_tag: %q\n", gc.Registry.CanaryTag)
	fmt.Fprintf(&b, "  timeout: %q\n\n", gc.Registry.Timeout)

	b.WriteString("upload:\n")
	fmt.Fprintf(&b, "  retry: %q\n", gc.Upload.Retry)
	b.WriteString("  # prompt asks before retrying (never without a terminal), auto retries, never fails fast\n")
	fmt.Fprintf(&b, "  max_attempts: %d\n", gc.Upload.MaxAttempts)
	fmt.Fprintf(&b, "  backoff: %q\n\n", gc.Upload.Backoff)

	b.WriteString("digest:\n")
	fmt.Fprintf(&b, "  algorithm: %q\n", gc.Digest.Algorithm)
	b.WriteString("  # md5 or blake3\n\n")

	b.WriteString("fetch_cache:\n")
	fmt.Fprintf(&b, "  ttl: %q\n\n", gc.FetchCache.TTL)

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", gc.Logging.Level)
	b.WriteString("  # debug, info, warn or error\n")
	if gc.Logging.File != "" {
		fmt.Fprintf(&b, "  file: %q\n", gc.Logging.File)
		b.WriteString("  # Tee logs to this file (overwritten on each run)\n")
	}

	return b.String()
}

// Validate checks constraints the schema cannot express. It does not set
// defaults.
func (gc *GlobalConfig) Validate() error {
	if gc.Workers <= 0 || gc.Workers > 64 {
		return fmt.Errorf("workers must be between 1 and 64, got %d", gc.Workers)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slice.Contains(validLevels, gc.Logging.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s",
			gc.Logging.Level, strings.Join(validLevels, ", "))
	}
	gc.Logging.File = strings.TrimSpace(gc.Logging.File)

	if _, err := pack.ParseRetryMode(gc.Upload.Retry); err != nil {
		return err
	}
	if gc.Upload.MaxAttempts < 1 {
		return fmt.Errorf("upload.max_attempts must be at least 1, got %d", gc.Upload.MaxAttempts)
	}
	if _, err := digest.New(gc.Digest.Algorithm); err != nil {
		return err
	}
	if gc.Storage.PresignTTL <= 0 {
		return fmt.Errorf("storage.presign_ttl must be positive")
	}
	if gc.Storage.PresignTTL.Std() > 7*24*time.Hour {
		return fmt.Errorf("storage.presign_ttl cannot exceed 7 days, got %s", gc.Storage.PresignTTL)
	}
	if gc.Registry.Timeout <= 0 {
		return fmt.Errorf("registry.timeout must be positive")
	}
	return nil
}

// GetConfigPaths returns the standard configuration file paths to check
func GetConfigPaths() []string {
	homeDir, _ := os.UserHomeDir()

	paths := []string{
		"next-dev-utils.yml",
		".next-dev-utils.yml",
		"next-dev-utils.yaml",
		".next-dev-utils.yaml",
	}

	if homeDir != "" {
		paths = append(paths,
			filepath.Join(homeDir, ".next-dev-utils", "config.yml"),
			filepath.Join(homeDir, ".next-dev-utils", "config.yaml"),
			filepath.Join(homeDir, ".config", "next-dev-utils", "config.yml"),
			filepath.Join(homeDir, ".config", "next-dev-utils", "config.yaml"),
		)
	}
	return paths
}

// FindConfigFile searches for a configuration file in standard locations
func FindConfigFile() string {
	for _, path := range GetConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// DefaultConfigPath is where config set and init write when no file exists.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "next-dev-utils.yml"
	}
	return filepath.Join(homeDir, ".config", "next-dev-utils", "config.yml")
}

// Convenience functions that can be used anywhere in the codebase
func Workers() int {
	return Global().Workers
}

func TempDir() string {
	tempDir := Global().TempDir
	if tempDir == "" {
		return os.TempDir()
	}
	return tempDir
}

// CacheDir is the registry fetch cache directory.
func CacheDir() (string, error) {
	dir := Global().CacheDir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("resolving user cache directory: %w", err)
		}
		return filepath.Join(base, "next-dev-utils", "fetch"), nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve cache directory: %w", err)
	}
	return abs, nil
}

// ProjectPath is next_project_path unless NEXT_PROJECT_PATH is set.
func ProjectPath() string {
	if p := strings.TrimSpace(os.Getenv(ProjectPathEnv)); p != "" {
		return p
	}
	return Global().NextProjectPath
}

func LogLevel() string {
	return Global().Logging.Level
}

func IsDebugMode() bool {
	return Global().Logging.Level == "debug"
}
