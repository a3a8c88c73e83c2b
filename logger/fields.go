package logger

// Standard field names for consistent structured logging across edithist.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID     = "run_id"
	FieldComponent = "component"
	FieldWorker    = "worker"

	// Dump positions
	FieldFile     = "file"
	FieldOffset   = "offset"
	FieldItem     = "item"
	FieldRevision = "revision"
	FieldFormat   = "format"

	// Batches and sinks
	FieldBatchSeq  = "batch_seq"
	FieldBatchSize = "batch_size"
	FieldSink      = "sink"
	FieldDropped   = "dropped"
	FieldAttempt   = "attempt"

	// Counts and sizes
	FieldCount      = "count"
	FieldSize       = "size"
	FieldTotalCount = "total_count"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Files and paths
	FieldPath    = "path"
	FieldCommand = "command"
)
