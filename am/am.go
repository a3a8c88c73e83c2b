package am

// Config represents the edithist configuration
type Config struct {
	Dump     DumpConfig     `mapstructure:"dump" json:"dump" yaml:"dump" toml:"dump"`
	Staging  StagingConfig  `mapstructure:"staging" json:"staging" yaml:"staging" toml:"staging"`
	Sink     SinkConfig     `mapstructure:"sink" json:"sink" yaml:"sink" toml:"sink"`
	Index    IndexConfig    `mapstructure:"index" json:"index" yaml:"index" toml:"index"`
	Database DatabaseConfig `mapstructure:"database" json:"database" yaml:"database" toml:"database"`
}

// DumpConfig configures the dump parser and diff pipeline
type DumpConfig struct {
	InputDir     string `mapstructure:"input_dir" json:"input_dir" yaml:"input_dir" toml:"input_dir"`
	OutputDir    string `mapstructure:"output_dir" json:"output_dir" yaml:"output_dir" toml:"output_dir"`
	BulkSize     int    `mapstructure:"bulk_size" json:"bulk_size" yaml:"bulk_size" toml:"bulk_size"`                 // flush once the batch holds more than this many items
	EntitiesFile string `mapstructure:"entities_file" json:"entities_file" yaml:"entities_file" toml:"entities_file"` // newline list of titles to keep (empty = keep all)
	Workers      int    `mapstructure:"workers" json:"workers" yaml:"workers" toml:"workers"`                         // files processed in parallel (1 = sequential)

	// PayloadFormat is the declared <format> a revision must carry to be diffed
	PayloadFormat string `mapstructure:"payload_format" json:"payload_format" yaml:"payload_format" toml:"payload_format"`

	// KeepInvalidRevisions keeps metadata of revisions whose format does not
	// match PayloadFormat (with a null diff). false drops them entirely.
	KeepInvalidRevisions bool `mapstructure:"keep_invalid_revisions" json:"keep_invalid_revisions" yaml:"keep_invalid_revisions" toml:"keep_invalid_revisions"`

	// VerifyPatches re-applies every computed diff and checks it reproduces the payload
	VerifyPatches bool `mapstructure:"verify_patches" json:"verify_patches" yaml:"verify_patches" toml:"verify_patches"`

	// Extensions lists the file suffixes picked up from InputDir
	Extensions []string `mapstructure:"extensions" json:"extensions" yaml:"extensions" toml:"extensions"`
}

// StagingConfig configures archive decompression before parsing
type StagingConfig struct {
	TempDir string `mapstructure:"temp_dir" json:"temp_dir" yaml:"temp_dir" toml:"temp_dir"` // empty = os.TempDir()

	// Commands maps an archive suffix without its dot ("bz2") to a command line that writes
	// the decoded stream to stdout. The input path is appended as last argument.
	Commands map[string]string `mapstructure:"commands" json:"commands" yaml:"commands" toml:"commands"`
}

// SinkConfig selects where flushed batches go
type SinkConfig struct {
	Kind                string  `mapstructure:"kind" json:"kind" yaml:"kind" toml:"kind"` // file | sqlite
	RetryAttempts       int     `mapstructure:"retry_attempts" json:"retry_attempts" yaml:"retry_attempts" toml:"retry_attempts"`
	RetryInitialMS      int     `mapstructure:"retry_initial_ms" json:"retry_initial_ms" yaml:"retry_initial_ms" toml:"retry_initial_ms"`
	MaxBatchesPerSecond float64 `mapstructure:"max_batches_per_second" json:"max_batches_per_second" yaml:"max_batches_per_second" toml:"max_batches_per_second"` // 0 = unlimited
}

// IndexConfig configures loading diff files into the store
type IndexConfig struct {
	ClassesFile string `mapstructure:"classes_file" json:"classes_file" yaml:"classes_file" toml:"classes_file"` // CSV entity_id,class_id (optional)
	BulkSize    int    `mapstructure:"bulk_size" json:"bulk_size" yaml:"bulk_size" toml:"bulk_size"`
}

// DatabaseConfig configures the SQLite store
type DatabaseConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path" toml:"path"`
}

// Sink kinds
const (
	SinkFile   = "file"
	SinkSQLite = "sqlite"
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
