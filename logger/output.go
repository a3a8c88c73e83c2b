package logger

// Output controls what categories of CLI output are shown at each verbosity
// level. Log levels filter by severity; output categories filter by kind.
//
//	0 (default) - run summary, errors with hints
//	1 (-v)      - + run header, per-file result table
//	2 (-vv)     - + effective configuration, timings
//	3 (-vvv)    - + per-revision diff details

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults OutputCategory = iota // Run summaries, counts
	OutputErrors                        // Errors with hints

	// Level 1 (-v)
	OutputStartup     // Input, sink and filter header
	OutputFileResults // Per-dump result table

	// Level 2 (-vv)
	OutputConfig // Effective configuration values
	OutputTiming // Per-file and per-bulk timings

	// Level 3 (-vvv)
	OutputRevisionDetail // One line per diffed revision
)

var categoryLevels = map[OutputCategory]int{
	OutputResults: VerbosityUser,
	OutputErrors:  VerbosityUser,

	OutputStartup:     VerbosityInfo,
	OutputFileResults: VerbosityInfo,

	OutputConfig: VerbosityDebug,
	OutputTiming: VerbosityDebug,

	OutputRevisionDetail: VerbosityTrace,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, require the highest level
		return verbosity >= VerbosityTrace
	}
	return verbosity >= minLevel
}

var categoryNames = map[OutputCategory]string{
	OutputResults:        "results",
	OutputErrors:         "errors",
	OutputStartup:        "startup",
	OutputFileResults:    "file-results",
	OutputConfig:         "config",
	OutputTiming:         "timing",
	OutputRevisionDetail: "revision-detail",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}
