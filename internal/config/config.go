package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values are chosen based on typical Gemini capsule characteristics:
// small pages, single-threaded servers, and hobbyist hosting.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "gemini-crawler"

	// DefaultMaxConcurrency bounds the number of in-flight fetches across
	// all hosts. 16 keeps a crawl moving without exhausting file
	// descriptors or overwhelming the local network stack.
	DefaultMaxConcurrency = 16

	// DefaultPerHostConcurrency limits simultaneous connections to a
	// single host. Gemini capsules are frequently self-hosted on modest
	// hardware, so one connection at a time is the polite default.
	DefaultPerHostConcurrency = 1

	// DefaultPerHostMinInterval is the minimum spacing between request
	// starts against the same host. 500ms keeps request rate well under
	// what even a small capsule can serve.
	DefaultPerHostMinInterval = 500 * time.Millisecond

	// DefaultConnectTimeout bounds TCP connection establishment.
	// Gemini servers answer on a single well-known port, so ten seconds
	// is generous for anything actually online.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultHandshakeTimeout bounds the TLS handshake after the TCP
	// connection is up. Kept separate from the connect timeout so a
	// stalled handshake is reported distinctly.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultReadTimeout bounds reading the response header and body.
	// Thirty seconds covers slow capsules serving large gemtext indexes.
	DefaultReadTimeout = 30 * time.Second

	// DefaultMaxBodySize limits the response body size to read.
	// 5MB is far beyond any reasonable gemtext page while preventing
	// memory exhaustion from a misbehaving server.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultMaxRedirectHops is the longest redirect chain followed
	// before the fetch is abandoned. Five hops matches common client
	// behavior and breaks redirect loops quickly.
	DefaultMaxRedirectHops = 5

	// DefaultMaxPages caps the number of URLs dispatched in one run.
	// Zero means unlimited; the CLI sets a cap via --max-pages.
	DefaultMaxPages = 0

	// DefaultRetryMax is the number of additional attempts after a
	// transient failure (connect or read timeout). Two retries catch
	// most flaky capsules without stalling the crawl.
	DefaultRetryMax = 2

	// DefaultRetryBackoff is the initial wait before a retry.
	// The wait doubles after each failed attempt.
	DefaultRetryBackoff = 1 * time.Second
)

// Config holds all configuration options for the crawler.
// This struct is designed to be populated from CLI flags and the
// optional YAML config file, then passed through the application via
// dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., FetchConfig, ThrottleConfig) for simplicity. The number of
// options is manageable, and nesting would add complexity without
// significant benefit.
type Config struct {
	// Seeds is the list of gemini URLs the crawl starts from.
	// Must contain at least one entry.
	Seeds []string

	// MaxConcurrency is the global bound on in-flight fetches.
	MaxConcurrency int

	// PerHostConcurrency limits simultaneous connections to one host.
	// Host-specific overrides in the config file take precedence.
	PerHostConcurrency int

	// PerHostMinInterval is the minimum spacing between request starts
	// against the same host. Zero disables pacing.
	PerHostMinInterval time.Duration

	// ConnectTimeout bounds TCP connection establishment per request.
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds the TLS handshake per request.
	HandshakeTimeout time.Duration

	// ReadTimeout bounds reading the response header and body.
	ReadTimeout time.Duration

	// MaxBodySize is the maximum response body size in bytes to read.
	// Larger responses are truncated and recorded as partial successes.
	MaxBodySize int64

	// MaxRedirectHops is the longest redirect chain followed per fetch.
	MaxRedirectHops int

	// MaxPages caps the number of URLs dispatched in one run.
	// Zero means no cap.
	MaxPages int

	// Deadline is the wall-clock budget for the whole crawl.
	// Zero means no deadline. When it expires the crawl drains in-flight
	// fetches and returns what it has.
	Deadline time.Duration

	// RetryMax is the number of additional attempts after a transient
	// failure. Zero disables retries.
	RetryMax int

	// RetryBackoff is the initial wait before a retry, doubling after
	// each failed attempt.
	RetryBackoff time.Duration

	// TLSVerify enables certificate chain verification against the
	// system trust store. Disabled by default because self-signed
	// certificates are the norm in Geminispace.
	TLSVerify bool

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	// When empty, connections are made directly.
	ProxyAddress string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, info and above are logged.
	Verbose bool

	// ConfigFilePath is the path to the YAML configuration file.
	// If empty, the tool searches for .gemini-crawler in the current
	// directory and then in the user's home directory.
	ConfigFilePath string

	// HostConfigs holds host-specific throttle overrides loaded from
	// the config file. Populated by LoadConfigFile.
	HostConfigs *File

	// JSONReport enables JSON report output instead of human-readable format.
	// Mutually exclusive with MarkdownReport and DOTReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output instead of
	// human-readable format. Mutually exclusive with JSONReport and
	// DOTReport.
	MarkdownReport bool

	// DOTReport enables Graphviz DOT output of the link graph instead
	// of a human-readable report. Mutually exclusive with JSONReport
	// and MarkdownReport.
	DOTReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	// Directories are created automatically if they don't exist.
	ReportFile string

	// DBDir is the directory path for storing the SQLite database.
	// When set, crawl results are saved for later export and comparison.
	// When empty, crawl results are not persisted.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB indicates whether to save crawl results to the database.
	// This is automatically set to true when DBDir is configured.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeouts,
// concurrency bounds). This also serves as documentation of what the
// defaults are.
func NewConfig() *Config {
	return &Config{
		MaxConcurrency:     DefaultMaxConcurrency,
		PerHostConcurrency: DefaultPerHostConcurrency,
		PerHostMinInterval: DefaultPerHostMinInterval,
		ConnectTimeout:     DefaultConnectTimeout,
		HandshakeTimeout:   DefaultHandshakeTimeout,
		ReadTimeout:        DefaultReadTimeout,
		MaxBodySize:        DefaultMaxBodySize,
		MaxRedirectHops:    DefaultMaxRedirectHops,
		MaxPages:           DefaultMaxPages,
		RetryMax:           DefaultRetryMax,
		RetryBackoff:       DefaultRetryBackoff,
	}
}

// XDGDataDir returns the XDG data directory for the crawler.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.local/share/gemini-crawler
// On macOS: ~/Library/Application Support/gemini-crawler
// On Windows: %LOCALAPPDATA%\gemini-crawler
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for the crawler.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any crawling begins.
//
// We chose to return the first error found rather than collecting all
// errors because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeeds
	}

	if c.MaxConcurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.PerHostConcurrency <= 0 {
		return ErrInvalidHostConcurrency
	}

	if c.PerHostMinInterval < 0 {
		return ErrInvalidMinInterval
	}

	if c.ConnectTimeout <= 0 || c.HandshakeTimeout <= 0 || c.ReadTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.MaxRedirectHops < 0 {
		return ErrInvalidRedirectHops
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	if c.RetryMax < 0 || c.RetryBackoff < 0 {
		return ErrInvalidRetry
	}

	// Only one report format can be selected at a time
	formats := 0
	for _, enabled := range []bool{c.JSONReport, c.MarkdownReport, c.DOTReport} {
		if enabled {
			formats++
		}
	}
	if formats > 1 {
		return ErrConflictingReportFormats
	}

	return nil
}
