// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/listenupapp/dirwatch/internal/errors"
	"github.com/listenupapp/dirwatch/internal/validation"
)

// envPrefix namespaces every environment variable the process reads.
const envPrefix = "DIRWATCH_"

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Watch  WatchConfig
	Server ServerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `env:"DIRWATCH_ENV" validate:"oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string `env:"DIRWATCH_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `env:"DIRWATCH_LOG_FORMAT" validate:"omitempty,oneof=json pretty"`
}

// WatchConfig holds the settings applied to every watch session.
type WatchConfig struct {
	// Roots are started as one session each.
	Roots     []string `env:"DIRWATCH_ROOTS" validate:"dive,required"`
	Recursive bool     `env:"DIRWATCH_RECURSIVE"`
	Debug     bool     `env:"DIRWATCH_DEBUG"`
	// Backend is "native" for the platform facility or "portable" for fsnotify.
	Backend string   `env:"DIRWATCH_BACKEND" validate:"oneof=native portable"`
	Ignore  []string `env:"DIRWATCH_IGNORE"`
	// MaxPathLength caps the byte length of a watch root (default: 512).
	MaxPathLength int `env:"DIRWATCH_MAX_PATH" validate:"gt=0"`
	// BufferSize is the capacity of the event channel between a session and its consumer (default: 256).
	BufferSize int `env:"DIRWATCH_BUFFER" validate:"gt=0"`
}

// ServerConfig holds the optional SSE API server configuration.
type ServerConfig struct {
	// Listen is empty to stream events to stdout instead of serving HTTP.
	Listen          string        `env:"DIRWATCH_LISTEN" validate:"omitempty,hostname_port"`
	CORSOrigins     []string      `env:"DIRWATCH_CORS_ORIGINS"`
	ShutdownTimeout time.Duration `env:"DIRWATCH_SHUTDOWN_TIMEOUT" validate:"gt=0"`
	// SessionRate limits session starts per client per minute; 0 disables the limit.
	SessionRate int `env:"DIRWATCH_SESSION_RATE" validate:"gte=0"`
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
//
// Positional arguments are taken as watch roots when no roots flag is given.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("dirwatch", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (json, pretty; default: by environment)")

	roots := fs.String("roots", "", "Comma-separated directories to watch")
	recursive := fs.String("recursive", "", "Watch subdirectories (default: true)")
	debug := fs.String("debug", "", "Log every raw notification to stderr (default: false)")
	backend := fs.String("backend", "", "Notification backend: native or portable (default: native)")
	ignore := fs.String("ignore", "", "Comma-separated glob patterns to suppress")
	maxPath := fs.String("max-path", "", "Maximum watch root length in bytes (default: 512)")
	buffer := fs.String("buffer", "", "Event buffer capacity (default: 256)")

	listen := fs.String("listen", "", "Serve the SSE API on this address instead of writing to stdout")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed CORS origins (default: *)")
	shutdownTimeout := fs.String("shutdown-timeout", "", "Graceful shutdown timeout (default: 30s)")
	sessionRate := fs.String("session-rate", "", "Session starts allowed per client per minute, 0 for no limit (default: 30)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "invalid command line")
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  strings.ToLower(getConfigValue(*logLevel, "LOG_LEVEL", "info")),
			Format: getConfigValue(*logFormat, "LOG_FORMAT", ""),
		},
		Watch: WatchConfig{
			Roots:         splitList(getConfigValue(*roots, "ROOTS", "")),
			Recursive:     getBoolConfigValue(*recursive, "RECURSIVE", true),
			Debug:         getBoolConfigValue(*debug, "DEBUG", false),
			Backend:       getConfigValue(*backend, "BACKEND", "native"),
			Ignore:        splitList(getConfigValue(*ignore, "IGNORE", "")),
			MaxPathLength: getIntConfigValue(*maxPath, "MAX_PATH", 512),
			BufferSize:    getIntConfigValue(*buffer, "BUFFER", 256),
		},
		Server: ServerConfig{
			Listen:      getConfigValue(*listen, "LISTEN", ""),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
			SessionRate: getIntConfigValue(*sessionRate, "SESSION_RATE", 30),
		},
	}

	if len(cfg.Watch.Roots) == 0 {
		cfg.Watch.Roots = fs.Args()
	}

	timeoutStr := getConfigValue(*shutdownTimeout, "SHUTDOWN_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeValidation, "invalid shutdown timeout %q", timeoutStr)
	}
	cfg.Server.ShutdownTimeout = timeout

	if err := cfg.expandRoots(); err != nil {
		return nil, fmt.Errorf("invalid watch root: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if err := validation.New().Validate(c); err != nil {
		return err
	}

	// Without an API there is no way to add sessions later.
	if c.Server.Listen == "" && len(c.Watch.Roots) == 0 {
		return errors.ValidationWithDetails("validation failed", map[string]string{
			"DIRWATCH_ROOTS": "is required when DIRWATCH_LISTEN is empty",
		})
	}

	return nil
}

// expandRoots expands ~ and makes every watch root absolute.
func (c *Config) expandRoots() error {
	for i, root := range c.Watch.Roots {
		expanded, err := expandPath(root, "")
		if err != nil {
			return err
		}
		c.Watch.Roots[i] = expanded
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// splitList splits a comma-separated value, dropping blank entries.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
// envKey is given without the DIRWATCH_ prefix.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if envValue := os.Getenv(envPrefix + envKey); envValue != "" {
		return envValue
	}

	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
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

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
