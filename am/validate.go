package am

import (
	"os"

	"github.com/teranos/edithist/errors"
)

// Validate checks that the configuration is valid for the diff pipeline.
// Input and output directories are required; the entities file is optional
// but must exist when set.
func (c *Config) Validate() error {
	if c.Dump.InputDir == "" {
		return errors.NewConfigError("dump.input_dir is required")
	}
	if info, err := os.Stat(c.Dump.InputDir); err != nil {
		return errors.NewConfigError("dump.input_dir %s is not readable: %v", c.Dump.InputDir, err)
	} else if !info.IsDir() {
		return errors.NewConfigError("dump.input_dir %s is not a directory", c.Dump.InputDir)
	}

	if c.Dump.OutputDir == "" && c.Sink.Kind != SinkSQLite {
		return errors.NewConfigError("dump.output_dir is required for the %s sink", SinkFile)
	}

	if c.Dump.BulkSize < 0 {
		return errors.NewConfigError("dump.bulk_size must be >= 0, got %d", c.Dump.BulkSize)
	}
	if c.Dump.Workers < 0 {
		return errors.NewConfigError("dump.workers must be >= 0, got %d", c.Dump.Workers)
	}

	if c.Dump.EntitiesFile != "" {
		if _, err := os.Stat(c.Dump.EntitiesFile); err != nil {
			return errors.NewConfigError("dump.entities_file %s is not readable: %v", c.Dump.EntitiesFile, err)
		}
	}

	return c.validateSink()
}

// ValidateIndex checks the settings used by `ix index`
func (c *Config) ValidateIndex() error {
	if c.Index.BulkSize < 0 {
		return errors.NewConfigError("index.bulk_size must be >= 0, got %d", c.Index.BulkSize)
	}
	if c.Index.ClassesFile != "" {
		if _, err := os.Stat(c.Index.ClassesFile); err != nil {
			return errors.NewConfigError("index.classes_file %s is not readable: %v", c.Index.ClassesFile, err)
		}
	}
	return c.validateSink()
}

func (c *Config) validateSink() error {
	switch c.Sink.Kind {
	case "", SinkFile, SinkSQLite:
	default:
		return errors.NewConfigError("sink.kind must be %q or %q, got %q", SinkFile, SinkSQLite, c.Sink.Kind)
	}
	if c.Sink.RetryAttempts < 0 {
		return errors.NewConfigError("sink.retry_attempts must be >= 0, got %d", c.Sink.RetryAttempts)
	}
	if c.Sink.MaxBatchesPerSecond < 0 {
		return errors.NewConfigError("sink.max_batches_per_second must be >= 0, got %f", c.Sink.MaxBatchesPerSecond)
	}
	return nil
}
