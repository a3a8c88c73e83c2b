package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// Default values shared by SetDefaults and the Get* accessors
const (
	DefaultBulkSize      = 100
	DefaultPayloadFormat = "application/json"
	DefaultDatabasePath  = "edithist.db"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Dump pipeline defaults
	v.SetDefault("dump.bulk_size", DefaultBulkSize)
	v.SetDefault("dump.workers", 1)
	v.SetDefault("dump.payload_format", DefaultPayloadFormat)
	v.SetDefault("dump.keep_invalid_revisions", true) // original calculator kept every revision
	v.SetDefault("dump.verify_patches", false)
	v.SetDefault("dump.extensions", []string{".xml", ".bz2", ".gz", ".7z"})

	// Staging defaults: each command streams the decoded dump to stdout
	v.SetDefault("staging.commands", map[string]string{
		"bz2": "bzip2 -dc",
		"gz":  "gzip -dc",
		"7z":  "7z e -so",
	})

	// Sink defaults
	v.SetDefault("sink.kind", SinkFile)
	v.SetDefault("sink.retry_attempts", 3)
	v.SetDefault("sink.retry_initial_ms", 200)
	v.SetDefault("sink.max_batches_per_second", 0.0)

	// Index defaults
	v.SetDefault("index.bulk_size", DefaultBulkSize)

	// Database defaults
	v.SetDefault("database.path", DefaultDatabasePath)
}

// BindSensitiveEnvVars explicitly binds path configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.path", "EDITHIST_DATABASE_PATH")
	_ = v.BindEnv("dump.input_dir", "EDITHIST_INPUT_DIR")
	_ = v.BindEnv("dump.output_dir", "EDITHIST_OUTPUT_DIR")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// GetBulkSize returns the dump bulk size, falling back to the default for zero
func (c *Config) GetBulkSize() int {
	if c.Dump.BulkSize <= 0 {
		return DefaultBulkSize
	}
	return c.Dump.BulkSize
}

// GetPayloadFormat returns the media type a revision must declare to be diffed
func (c *Config) GetPayloadFormat() string {
	if c.Dump.PayloadFormat == "" {
		return DefaultPayloadFormat
	}
	return c.Dump.PayloadFormat
}

// GetWorkers returns the file-level parallelism (at least 1)
func (c *Config) GetWorkers() int {
	if c.Dump.Workers < 1 {
		return 1
	}
	return c.Dump.Workers
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Dump: {Input: %s, Output: %s, Bulk: %d, Workers: %d}, Sink: %s}",
		c.Dump.InputDir, c.Dump.OutputDir, c.GetBulkSize(), c.GetWorkers(), c.Sink.Kind)
}
