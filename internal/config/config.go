// Package config loads process settings from the environment and an
// optional TOML file. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/microblog/internal/source"
)

// ErrNoStore is returned by StoreLocation when neither database setting is present.
var ErrNoStore = errors.New("MB_DATABASE_URL or SQLITE_PATH is required")

// Batch size bounds for MB_TRANSFER_BATCH_SIZE.
const (
	MinBatchSize = 1
	MaxBatchSize = 1000
)

type Config struct {
	DatabaseURL string // MB_DATABASE_URL (PostgreSQL)
	SQLitePath  string // SQLITE_PATH

	HTTPAddr    string // MB_HTTP_ADDR (default ":5000")
	GRPCAddr    string // MB_GRPC_ADDR (optional, empty = no gRPC listener)
	NATSURL     string // MB_NATS_URL (optional, empty = no events)
	AuthToken   string // MB_AUTH_TOKEN (optional, empty = auth disabled)
	MetricsAddr string // MB_METRICS_ADDR (optional, separate metrics listener)
	ServerURL   string // MB_SERVER_URL (default "http://localhost:5000", used by client commands)

	TransferBatchSize  int    // MB_TRANSFER_BATCH_SIZE (default 20)
	TransferQuarantine bool   // MB_TRANSFER_QUARANTINE (default true)
	SampleSeed         uint64 // MB_SAMPLE_SEED (default 0 = time-seeded)

	// Export settings
	ExportInterval   time.Duration // MB_EXPORT_INTERVAL (default 0 = disabled)
	ExportFile       string        // MB_EXPORT_FILE
	ExportS3Bucket   string        // MB_EXPORT_S3_BUCKET (enables S3 when set)
	ExportS3Key      string        // MB_EXPORT_S3_KEY (default "microblog/messages.jsonl")
	ExportS3Region   string        // MB_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Endpoint string        // MB_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)

	LogLevel  string // LOG_LEVEL (default "INFO")
	LogFormat string // LOG_FORMAT (default "text")

	// Sources holds [sources.<name>] tables from the config file, with keys
	// expanded to full MB_SOURCE_ variable names.
	Sources map[string]source.Settings
}

// Load reads the file named by MB_CONFIG (when set) and the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("MB_CONFIG"))
}

// LoadFile reads the TOML file at path, then the environment. An empty
// path skips the file.
func LoadFile(path string) (*Config, error) {
	l := &loader{}
	if path != "" {
		if err := l.readFile(path); err != nil {
			return nil, err
		}
	}

	c := &Config{
		DatabaseURL:      l.str("MB_DATABASE_URL", ""),
		SQLitePath:       l.str("SQLITE_PATH", ""),
		HTTPAddr:         l.str("MB_HTTP_ADDR", ":5000"),
		GRPCAddr:         l.str("MB_GRPC_ADDR", ""),
		NATSURL:          l.str("MB_NATS_URL", ""),
		AuthToken:        l.str("MB_AUTH_TOKEN", ""),
		MetricsAddr:      l.str("MB_METRICS_ADDR", ""),
		ServerURL:        l.str("MB_SERVER_URL", "http://localhost:5000"),
		ExportFile:       l.str("MB_EXPORT_FILE", ""),
		ExportS3Bucket:   l.str("MB_EXPORT_S3_BUCKET", ""),
		ExportS3Key:      l.str("MB_EXPORT_S3_KEY", "microblog/messages.jsonl"),
		ExportS3Region:   l.str("MB_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Endpoint: l.str("MB_EXPORT_S3_ENDPOINT", ""),
		LogLevel:         l.str("LOG_LEVEL", "INFO"),
		LogFormat:        l.str("LOG_FORMAT", "text"),
		Sources:          l.sources,
	}

	var err error
	if c.TransferBatchSize, err = strconv.Atoi(l.str("MB_TRANSFER_BATCH_SIZE", "20")); err != nil {
		return nil, fmt.Errorf("MB_TRANSFER_BATCH_SIZE: %w", err)
	}
	if c.TransferBatchSize < MinBatchSize || c.TransferBatchSize > MaxBatchSize {
		return nil, fmt.Errorf("MB_TRANSFER_BATCH_SIZE must be between %d and %d, got %d",
			MinBatchSize, MaxBatchSize, c.TransferBatchSize)
	}
	if c.TransferQuarantine, err = strconv.ParseBool(l.str("MB_TRANSFER_QUARANTINE", "true")); err != nil {
		return nil, fmt.Errorf("MB_TRANSFER_QUARANTINE: %w", err)
	}
	if c.SampleSeed, err = strconv.ParseUint(l.str("MB_SAMPLE_SEED", "0"), 10, 64); err != nil {
		return nil, fmt.Errorf("MB_SAMPLE_SEED: %w", err)
	}
	if c.ExportInterval, err = time.ParseDuration(l.str("MB_EXPORT_INTERVAL", "0s")); err != nil {
		return nil, fmt.Errorf("MB_EXPORT_INTERVAL: %w", err)
	}
	if c.ExportInterval < 0 {
		return nil, fmt.Errorf("MB_EXPORT_INTERVAL must not be negative")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	return c, nil
}

// StoreLocation reports which backend to open. Exactly one of the two
// settings must be present.
func (c *Config) StoreLocation() (databaseURL, sqlitePath string, err error) {
	switch {
	case c.DatabaseURL != "" && c.SQLitePath != "":
		return "", "", fmt.Errorf("set only one of MB_DATABASE_URL and SQLITE_PATH")
	case c.DatabaseURL == "" && c.SQLitePath == "":
		return "", "", ErrNoStore
	}
	return c.DatabaseURL, c.SQLitePath, nil
}

// SourceSettings returns the settings for source name: the file's
// [sources.<name>] table with matching environment variables applied on top.
func (c *Config) SourceSettings(name string, environ []string) source.Settings {
	base := c.Sources[name]
	if base == nil {
		base = source.Settings{}
	}
	return base.Merge(source.SettingsFromEnv(name, environ))
}

// loader resolves one key at a time: environment first, then file.
type loader struct {
	file    map[string]any
	sources map[string]source.Settings
}

func (l *loader) readFile(path string) error {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	l.sources = make(map[string]source.Settings)
	if tables, ok := raw["sources"].(map[string]any); ok {
		for name, v := range tables {
			table, ok := v.(map[string]any)
			if !ok {
				return fmt.Errorf("reading config %s: sources.%s must be a table", path, name)
			}
			l.sources[name] = sourceSettings(name, table)
		}
	}
	delete(raw, "sources")
	l.file = raw
	return nil
}

// sourceSettings expands short keys such as "rule" to MB_SOURCE_<NAME>_RULE.
// Keys that already carry the prefix are kept as written.
func sourceSettings(name string, table map[string]any) source.Settings {
	settings := make(source.Settings, len(table))
	for k, v := range table {
		key := strings.ToUpper(k)
		if !strings.HasPrefix(key, source.EnvPrefix) {
			key = source.EnvPrefix + strings.ToUpper(name) + "_" + key
		}
		settings[key] = fmt.Sprint(v)
	}
	return settings
}

// fileKey maps an environment name to its config-file key:
// MB_HTTP_ADDR becomes http_addr and LOG_LEVEL becomes log_level.
func fileKey(env string) string {
	return strings.ToLower(strings.TrimPrefix(env, "MB_"))
}

func (l *loader) str(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := l.file[fileKey(key)]; ok {
		return fmt.Sprint(v)
	}
	return fallback
}
