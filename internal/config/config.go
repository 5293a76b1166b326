package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultChunkSize is both the chunked-transfer threshold and the part
	// size. 5MiB is the S3 minimum part size.
	DefaultChunkSize = 5 * 1024 * 1024

	// DefaultMaxSourceKeys caps the source listing per bucket on the
	// migration path. Buckets with more keys are only partially migrated.
	DefaultMaxSourceKeys = 1000000
)

// Config represents the application configuration
type Config struct {
	Source    EndpointConfig `yaml:"source"`
	Target    EndpointConfig `yaml:"target"`
	Migration Migration      `yaml:"migration"`
	LogLevel  string         `yaml:"log_level"`
}

// EndpointConfig describes one S3-compatible endpoint. Credentials come
// either from a static key pair or from an AWS-format credentials file.
type EndpointConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKey       string `yaml:"access_key"`
	SecretKey       string `yaml:"secret_key"`
	CredentialsFile string `yaml:"credentials_file"`
	Profile         string `yaml:"profile"`
	Secure          bool   `yaml:"secure"`
}

// Migration represents migration-specific configuration
type Migration struct {
	BucketSuffix    string `yaml:"bucket_suffix"`
	ChunkSize       int64  `yaml:"chunk_size"`
	PartConcurrency int    `yaml:"part_concurrency"`
	MaxSourceKeys   int    `yaml:"max_source_keys"`
	RetryBackoffMs  int    `yaml:"retry_backoff_ms"`
	MaxRetries      int    `yaml:"max_retries"`
	ContinueOnError bool   `yaml:"continue_on_error"`
	Checkpoint      string `yaml:"checkpoint"`
	ShowProgress    bool   `yaml:"show_progress"`
	MetricsAddr     string `yaml:"metrics_addr"`
}

// Load loads configuration from file and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Migration: Migration{
			ChunkSize:       DefaultChunkSize,
			PartConcurrency: 8,
			MaxSourceKeys:   DefaultMaxSourceKeys,
			RetryBackoffMs:  500,
			MaxRetries:      0, // retry until cancelled
			ContinueOnError: true,
			Checkpoint:      "./migration.db",
			ShowProgress:    true,
		},
	}

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with command line flags
	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadSweep loads configuration for the sweep tool. Only the source
// endpoint is required; migration settings keep their defaults.
func LoadSweep(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{LogLevel: "info"}

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	if err := cfg.Source.validate("source"); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	loadEndpointFlags(&cfg.Source, flags, "src")
	loadEndpointFlags(&cfg.Target, flags, "dst")

	if changed(flags, "bucket-suffix") {
		cfg.Migration.BucketSuffix, _ = flags.GetString("bucket-suffix")
	}
	if changed(flags, "chunk-size") {
		cfg.Migration.ChunkSize, _ = flags.GetInt64("chunk-size")
	}
	if changed(flags, "part-concurrency") {
		cfg.Migration.PartConcurrency, _ = flags.GetInt("part-concurrency")
	}
	if changed(flags, "max-source-keys") {
		cfg.Migration.MaxSourceKeys, _ = flags.GetInt("max-source-keys")
	}
	if changed(flags, "retry-backoff-ms") {
		cfg.Migration.RetryBackoffMs, _ = flags.GetInt("retry-backoff-ms")
	}
	if changed(flags, "max-retries") {
		cfg.Migration.MaxRetries, _ = flags.GetInt("max-retries")
	}
	if changed(flags, "continue-on-error") {
		cfg.Migration.ContinueOnError, _ = flags.GetBool("continue-on-error")
	}
	if changed(flags, "checkpoint") {
		cfg.Migration.Checkpoint, _ = flags.GetString("checkpoint")
	}
	if changed(flags, "show-progress") {
		cfg.Migration.ShowProgress, _ = flags.GetBool("show-progress")
	}
	if changed(flags, "metrics-addr") {
		cfg.Migration.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if changed(flags, "log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	return nil
}

func loadEndpointFlags(ec *EndpointConfig, flags *pflag.FlagSet, prefix string) {
	if changed(flags, prefix+"-endpoint") {
		ec.Endpoint, _ = flags.GetString(prefix + "-endpoint")
	}
	if changed(flags, prefix+"-region") {
		ec.Region, _ = flags.GetString(prefix + "-region")
	}
	if changed(flags, prefix+"-access-key") {
		ec.AccessKey, _ = flags.GetString(prefix + "-access-key")
	}
	if changed(flags, prefix+"-secret-key") {
		ec.SecretKey, _ = flags.GetString(prefix + "-secret-key")
	}
	if changed(flags, prefix+"-credentials-file") {
		ec.CredentialsFile, _ = flags.GetString(prefix + "-credentials-file")
	}
	if changed(flags, prefix+"-profile") {
		ec.Profile, _ = flags.GetString(prefix + "-profile")
	}
	if changed(flags, prefix+"-secure") {
		ec.Secure, _ = flags.GetBool(prefix + "-secure")
	}
}

func changed(flags *pflag.FlagSet, name string) bool {
	f := flags.Lookup(name)
	return f != nil && f.Changed
}

// Validate checks the full migration configuration.
func (c *Config) Validate() error {
	if err := c.Source.validate("source"); err != nil {
		return err
	}
	if err := c.Target.validate("target"); err != nil {
		return err
	}

	if c.Migration.ChunkSize < DefaultChunkSize {
		return fmt.Errorf("chunk size must be at least 5MiB")
	}

	if c.Migration.PartConcurrency <= 0 {
		return fmt.Errorf("part concurrency must be positive")
	}

	if c.Migration.MaxSourceKeys <= 0 {
		return fmt.Errorf("max source keys must be positive")
	}

	return nil
}

func (ec *EndpointConfig) validate(role string) error {
	if ec.Endpoint == "" {
		return fmt.Errorf("%s endpoint is required", role)
	}

	// A credentials file supplies the key pair
	if ec.CredentialsFile != "" {
		return nil
	}

	if ec.AccessKey == "" {
		return fmt.Errorf("%s access key is required", role)
	}
	if ec.SecretKey == "" {
		return fmt.Errorf("%s secret key is required", role)
	}

	return nil
}
