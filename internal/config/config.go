// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the application configuration.
type Config struct {
	App        AppConfig
	Logger     LoggerConfig
	Server     ServerConfig
	Cache      CacheConfig
	Remote     RemoteConfig
	Synthesis  SynthesisConfig
	Storage    StorageConfig
	Generation GenerationConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `validate:"required,oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        `validate:"required"`
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// CacheConfig holds local catalog cache configuration.
type CacheConfig struct {
	// Path is the directory for the local badger cache (default: ~/Narrate/cache).
	Path string `validate:"required"`
}

// RemoteConfig holds remote catalog store configuration.
type RemoteConfig struct {
	// DSN is the remote catalog database connection string. Empty means
	// the server runs in cache-only (degraded) mode.
	DSN string
	// Key is the row key the catalog is stored under.
	Key string `validate:"required"`
	// LegacyKey is an older row key checked when Key holds no catalog.
	// Data found there is migrated forward on load.
	LegacyKey    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Attempts     int `validate:"min=1"`
	Backoff      time.Duration
}

// SynthesisConfig holds text-to-speech provider configuration.
type SynthesisConfig struct {
	BaseURL      string `validate:"required,url"`
	APIKey       string
	DefaultVoice string `validate:"required"`
	// RequestsPerSecond throttles outbound synthesis calls.
	RequestsPerSecond float64 `validate:"gt=0"`
}

// StorageConfig holds object storage configuration for durable audio.
type StorageConfig struct {
	// OAuth client credentials for the storage API. All three must be set
	// for uploads to be enabled; otherwise audio stays inline only.
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
	APIBaseURL   string `validate:"required,url"`
	UploadURL    string `validate:"required,url"`
	// PublicBaseURL is the prefix of shareable playback links.
	PublicBaseURL string `validate:"required,url"`
	// FolderName is the folder all narration files are uploaded into.
	FolderName string `validate:"required"`
}

// GenerationConfig holds narration generation configuration.
type GenerationConfig struct {
	// Timeout is the ceiling for a single segment generation run.
	Timeout time.Duration `validate:"min=1s"`
	// TickInterval is how often simulated progress is published while
	// a run is in flight.
	TickInterval time.Duration `validate:"min=10ms"`
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	// Define command-line flags.
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	cachePath := flag.String("cache-path", "", "Directory for the local catalog cache")

	// Server flags
	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	// Remote catalog flags
	remoteDSN := flag.String("remote-dsn", "", "Remote catalog database DSN")
	remoteKey := flag.String("remote-key", "", "Catalog row key (default: catalog:v1)")
	remoteLegacyKey := flag.String("remote-legacy-key", "", "Legacy catalog row key to migrate from")

	// Synthesis flags
	synthesisURL := flag.String("synthesis-url", "", "Text-to-speech API base URL")
	synthesisVoice := flag.String("synthesis-voice", "", "Default narration voice")

	// Generation flags
	generationTimeout := flag.String("generation-timeout", "", "Per-segment generation timeout (default: 120s)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	// Parse flags but don't exit on error - we want to handle it gracefully.
	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	// Build config with proper precedence.
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8080"),
		},
		Cache: CacheConfig{
			Path: getConfigValue(*cachePath, "CACHE_PATH", ""),
		},
		Remote: RemoteConfig{
			DSN:       getConfigValue(*remoteDSN, "REMOTE_DSN", ""),
			Key:       getConfigValue(*remoteKey, "REMOTE_KEY", "catalog:v1"),
			LegacyKey: getConfigValue(*remoteLegacyKey, "REMOTE_LEGACY_KEY", "catalog"),
			Attempts:  getIntConfigValue("", "REMOTE_ATTEMPTS", 3),
		},
		Synthesis: SynthesisConfig{
			BaseURL:           getConfigValue(*synthesisURL, "SYNTHESIS_URL", "https://api.narrate.dev/tts"),
			APIKey:            getConfigValue("", "SYNTHESIS_API_KEY", ""),
			DefaultVoice:      getConfigValue(*synthesisVoice, "SYNTHESIS_VOICE", "en-US-standard"),
			RequestsPerSecond: getFloatConfigValue("", "SYNTHESIS_RPS", 2),
		},
		Storage: StorageConfig{
			ClientID:      getConfigValue("", "STORAGE_CLIENT_ID", ""),
			ClientSecret:  getConfigValue("", "STORAGE_CLIENT_SECRET", ""),
			RefreshToken:  getConfigValue("", "STORAGE_REFRESH_TOKEN", ""),
			TokenURL:      getConfigValue("", "STORAGE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			APIBaseURL:    getConfigValue("", "STORAGE_API_URL", "https://www.googleapis.com/drive/v3"),
			UploadURL:     getConfigValue("", "STORAGE_UPLOAD_URL", "https://www.googleapis.com/upload/drive/v3"),
			PublicBaseURL: getConfigValue("", "STORAGE_PUBLIC_URL", "https://drive.google.com/uc?export=open"),
			FolderName:    getConfigValue("", "STORAGE_FOLDER", "NarrateAudio"),
		},
	}

	// Parse server timeouts.
	readTimeoutStr := getConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s")
	readTimeoutDuration, err := time.ParseDuration(readTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid read timeout %q: %w", readTimeoutStr, err)
	}
	cfg.Server.ReadTimeout = readTimeoutDuration

	writeTimeoutStr := getConfigValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s")
	writeTimeoutDuration, err := time.ParseDuration(writeTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid write timeout %q: %w", writeTimeoutStr, err)
	}
	cfg.Server.WriteTimeout = writeTimeoutDuration

	idleTimeoutStr := getConfigValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s")
	idleTimeoutDuration, err := time.ParseDuration(idleTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid idle timeout %q: %w", idleTimeoutStr, err)
	}
	cfg.Server.IdleTimeout = idleTimeoutDuration

	// Parse remote store timeouts.
	remoteReadStr := getConfigValue("", "REMOTE_READ_TIMEOUT", "20s")
	remoteRead, err := time.ParseDuration(remoteReadStr)
	if err != nil {
		return nil, fmt.Errorf("invalid remote read timeout %q: %w", remoteReadStr, err)
	}
	cfg.Remote.ReadTimeout = remoteRead

	remoteWriteStr := getConfigValue("", "REMOTE_WRITE_TIMEOUT", "15s")
	remoteWrite, err := time.ParseDuration(remoteWriteStr)
	if err != nil {
		return nil, fmt.Errorf("invalid remote write timeout %q: %w", remoteWriteStr, err)
	}
	cfg.Remote.WriteTimeout = remoteWrite

	remoteBackoffStr := getConfigValue("", "REMOTE_BACKOFF", "500ms")
	remoteBackoff, err := time.ParseDuration(remoteBackoffStr)
	if err != nil {
		return nil, fmt.Errorf("invalid remote backoff %q: %w", remoteBackoffStr, err)
	}
	cfg.Remote.Backoff = remoteBackoff

	// Parse generation timings.
	generationTimeoutStr := getConfigValue(*generationTimeout, "GENERATION_TIMEOUT", "120s")
	generationTimeoutDuration, err := time.ParseDuration(generationTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid generation timeout %q: %w", generationTimeoutStr, err)
	}
	cfg.Generation.Timeout = generationTimeoutDuration

	tickIntervalStr := getConfigValue("", "GENERATION_TICK_INTERVAL", "1s")
	tickInterval, err := time.ParseDuration(tickIntervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid generation tick interval %q: %w", tickIntervalStr, err)
	}
	cfg.Generation.TickInterval = tickInterval

	// Expand and validate cache path.
	if err := cfg.expandCachePath(); err != nil {
		return nil, fmt.Errorf("invalid cache path: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if ok := errors.As(err, &errs); ok && len(errs) > 0 {
			first := errs[0]
			return fmt.Errorf("invalid %s: failed %q validation", first.Namespace(), first.Tag())
		}
		return err
	}

	if c.Remote.DSN != "" && c.Remote.Key == c.Remote.LegacyKey {
		return fmt.Errorf("remote key and legacy key must differ, both are %q", c.Remote.Key)
	}

	return nil
}

// RemoteConfigured reports whether a remote catalog store is configured.
func (c *Config) RemoteConfigured() bool {
	return c.Remote.DSN != ""
}

// StorageConfigured reports whether object storage uploads are enabled.
// All OAuth credentials must be present.
func (c *Config) StorageConfigured() bool {
	return c.Storage.ClientID != "" && c.Storage.ClientSecret != "" && c.Storage.RefreshToken != ""
}

// expandCachePath expands ~ and makes the path absolute.
// Defaults to ~/Narrate/cache if not specified.
func (c *Config) expandCachePath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "Narrate", "cache")

	expanded, err := expandPath(c.Cache.Path, defaultPath)
	if err != nil {
		return err
	}
	c.Cache.Path = expanded
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float64 from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
