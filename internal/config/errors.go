package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages. Using errors.New() here rather than fmt.Errorf()
// because we don't need to include dynamic values in these messages.
var (
	// ErrNoSeeds is returned when no seed URL is specified.
	// The crawl has nowhere to start without at least one seed.
	ErrNoSeeds = errors.New("no seeds specified: provide at least one gemini URL")

	// ErrInvalidConcurrency is returned when the global concurrency
	// bound is not positive. Zero would mean no fetches at all.
	ErrInvalidConcurrency = errors.New("invalid max concurrency: must be positive")

	// ErrInvalidHostConcurrency is returned when the per-host
	// concurrency bound is not positive.
	ErrInvalidHostConcurrency = errors.New("invalid per-host concurrency: must be positive")

	// ErrInvalidMinInterval is returned when the per-host minimum
	// interval is negative. Use 0 to disable pacing.
	ErrInvalidMinInterval = errors.New("invalid per-host interval: must be non-negative")

	// ErrInvalidTimeout is returned when any of the per-phase timeouts
	// is not positive. A zero timeout would fail every request.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 to fall back to the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidRedirectHops is returned when the redirect hop bound
	// is negative. Use 0 to refuse all redirects.
	ErrInvalidRedirectHops = errors.New("invalid max redirect hops: must be non-negative")

	// ErrInvalidMaxPages is returned when the page cap is negative.
	// Use 0 for an unbounded crawl.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidRetry is returned when the retry count or backoff
	// is negative. Use 0 retries to disable retrying.
	ErrInvalidRetry = errors.New("invalid retry settings: must be non-negative")

	// ErrConflictingReportFormats is returned when more than one of
	// --json, --markdown, and --dot is specified. Only one output
	// format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: choose one of --json, --markdown, --dot")
)
