package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "LYRE_"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `json:"database"`
	Cache    CacheConfig    `json:"cache"`
	Logging  LoggingConfig  `json:"logging"`
	Query    QueryConfig    `json:"query"`
	Server   ServerConfig   `json:"server"`
	Debug    DebugConfig    `json:"debug"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Path            string `json:"path"               env:"DB_PATH"               envDefault:"~/.config/lyre/lyre.db"`
	MaxConnections  int    `json:"max_connections"    env:"DB_MAX_CONNECTIONS"    envDefault:"10"`
	MaxIdleConns    int    `json:"max_idle_conns"     env:"DB_MAX_IDLE_CONNS"     envDefault:"5"`
	ConnMaxLifetime string `json:"conn_max_lifetime"  env:"DB_CONN_MAX_LIFETIME"  envDefault:"30m"`
	ConnMaxIdleTime string `json:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME" envDefault:"5m"`
	QueryTimeout    string `json:"query_timeout"      env:"DB_QUERY_TIMEOUT"      envDefault:"30s"`
}

// CacheConfig sizes the process-wide relation caches
type CacheConfig struct {
	RelationCacheSize int `json:"relation_cache_size" env:"CACHE_RELATION_SIZE" envDefault:"512"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string `json:"level"      env:"LOG_LEVEL"      envDefault:"info"`                         // debug, info, warn, error
	Format    string `json:"format"     env:"LOG_FORMAT"     envDefault:"text"`                         // text, json
	Output    string `json:"output"     env:"LOG_OUTPUT"     envDefault:"stderr"`                       // stdout, stderr, file
	File      string `json:"file"       env:"LOG_FILE"       envDefault:"~/.config/lyre/logs/lyre.log"` // log file path when output is file
	AddSource bool   `json:"add_source" env:"LOG_ADD_SOURCE" envDefault:"false"`
}

// QueryConfig holds the defaults applied when a request leaves them out
type QueryConfig struct {
	DefaultPerPage int  `json:"default_per_page" env:"QUERY_DEFAULT_PER_PAGE" envDefault:"9"`
	MaxPerPage     int  `json:"max_per_page"     env:"QUERY_MAX_PER_PAGE"     envDefault:"100"`
	RelationDepth  int  `json:"relation_depth"   env:"QUERY_RELATION_DEPTH"   envDefault:"1"`
	Lenient        bool `json:"lenient"          env:"QUERY_LENIENT"          envDefault:"true"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr         string `json:"addr"          env:"SERVER_ADDR"          envDefault:":8080"`
	ReadTimeout  string `json:"read_timeout"  env:"SERVER_READ_TIMEOUT"  envDefault:"15s"`
	WriteTimeout string `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
}

// DebugConfig represents debug configuration
type DebugConfig struct {
	Enabled bool `json:"enabled" env:"DEBUG"   envDefault:"false"`
	Verbose bool `json:"verbose" env:"VERBOSE" envDefault:"false"`
}

// DefaultConfig returns the configuration with every envDefault applied
func DefaultConfig() *Config {
	cfg := &Config{}
	// Parsing an empty environment only fills defaults.
	_ = env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix, Environment: map[string]string{}})

	return cfg
}

// LoadConfig loads configuration from file, environment variables, and command-line flags
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides.
// Precedence: defaults < config file < environment < flags.
func LoadConfigWithOverrides(flagOverrides map[string]any) (*Config, error) {
	config := &Config{}
	if err := env.ParseWithOptions(config, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	configPath := Path()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if flagOverrides != nil {
		applyFlagOverrides(config, flagOverrides)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile merges a JSON file into fields the environment left at their defaults
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig, DefaultConfig())

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]any) {
	for key, value := range overrides {
		switch key {
		case "db-path":
			if str, ok := value.(string); ok && str != "" {
				config.Database.Path = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "log-format":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Format = str
			}
		case "addr":
			if str, ok := value.(string); ok && str != "" {
				config.Server.Addr = str
			}
		case "per-page":
			if n, ok := value.(int); ok && n > 0 {
				config.Query.DefaultPerPage = n
			}
		case "verbose":
			if b, ok := value.(bool); ok {
				config.Debug.Verbose = b
			}
		case "debug":
			if b, ok := value.(bool); ok {
				config.Debug.Enabled = b
			}
		}
	}
}

// mergeConfigs merges source configuration into target configuration. With a
// baseline, only target fields still equal to the baseline are replaced.
func mergeConfigs(target, source, baseline *Config) {
	var mergeValues func(t, s, b reflect.Value)
	mergeValues = func(t, s, b reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := range s.NumField() {
				var bf reflect.Value
				if b.IsValid() {
					bf = b.Field(i)
				}
				mergeValues(t.Field(i), s.Field(i), bf)
			}

			return
		}

		if b.IsValid() && !reflect.DeepEqual(t.Interface(), b.Interface()) {
			return
		}

		// A zero value cannot be told apart from an omitted JSON key.
		if !s.IsZero() {
			t.Set(s)
		}
	}

	var b reflect.Value
	if baseline != nil {
		b = reflect.ValueOf(baseline).Elem()
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem(), b)
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	for name, value := range map[string]string{
		"database query timeout":     config.Database.QueryTimeout,
		"database conn max lifetime": config.Database.ConnMaxLifetime,
		"database conn max idle":     config.Database.ConnMaxIdleTime,
		"server read timeout":        config.Server.ReadTimeout,
		"server write timeout":       config.Server.WriteTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if config.Database.MaxConnections <= 0 {
		return fmt.Errorf(
			"database max connections must be positive: %d",
			config.Database.MaxConnections,
		)
	}

	if config.Query.DefaultPerPage <= 0 {
		return fmt.Errorf("query default per page must be positive: %d", config.Query.DefaultPerPage)
	}

	if config.Query.MaxPerPage < config.Query.DefaultPerPage {
		return fmt.Errorf(
			"query max per page (%d) must not be below the default (%d)",
			config.Query.MaxPerPage, config.Query.DefaultPerPage,
		)
	}

	if config.Query.RelationDepth < 1 {
		return fmt.Errorf("query relation depth must be at least 1: %d", config.Query.RelationDepth)
	}

	if config.Cache.RelationCacheSize <= 0 {
		return fmt.Errorf("relation cache size must be positive: %d", config.Cache.RelationCacheSize)
	}

	return nil
}

// Durations parses the database duration settings
func (c DatabaseConfig) Durations() (queryTimeout, maxLifetime, maxIdle time.Duration, err error) {
	if queryTimeout, err = time.ParseDuration(c.QueryTimeout); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid query_timeout: %w", err)
	}

	if maxLifetime, err = time.ParseDuration(c.ConnMaxLifetime); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid conn_max_lifetime: %w", err)
	}

	if maxIdle, err = time.ParseDuration(c.ConnMaxIdleTime); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid conn_max_idle_time: %w", err)
	}

	return queryTimeout, maxLifetime, maxIdle, nil
}

// SaveConfig writes config as JSON to Path
func SaveConfig(config *Config) error {
	configPath := Path()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Path returns the path to the configuration file
func Path() string {
	if configPath := os.Getenv("LYRE_CONFIG"); configPath != "" {
		return ExpandPath(configPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(homeDir, ".config", "lyre", "config.json")
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Database.Path = ExpandPath(c.Database.Path)
	c.Logging.File = ExpandPath(c.Logging.File)
}

type contextKey struct{}

// WithContext stores cfg on ctx for command actions
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext returns the configuration stored by WithContext, or nil
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}
