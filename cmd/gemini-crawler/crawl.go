package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cacharle/gemini-crawler/internal/config"
	"github.com/cacharle/gemini-crawler/internal/crawler"
	"github.com/cacharle/gemini-crawler/internal/database"
	"github.com/cacharle/gemini-crawler/internal/gemini"
	"github.com/cacharle/gemini-crawler/internal/log"
	"github.com/cacharle/gemini-crawler/internal/report"
	"github.com/cacharle/gemini-crawler/internal/throttle"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <gemini-url>...",
		Short: "Crawl Geminispace from one or more seed URLs",
		Long: `Crawl fetches pages over the Gemini protocol starting from the given
seed URLs, follows gemtext links, and records the resulting link graph.

Fetches are bounded globally and per host, with a minimum interval
between requests to the same host. Transient failures (connect and read
timeouts) are retried with doubling backoff.

Examples:
  # Crawl a single capsule
  gemini-crawler crawl gemini://geminiprotocol.net/

  # Crawl with a page cap and a wall-clock budget
  gemini-crawler crawl --max-pages 500 --deadline 10m gemini://example.org/

  # Crawl through a SOCKS5 proxy
  gemini-crawler crawl --proxy 127.0.0.1:9050 gemini://example.org/

  # Output the link graph as Graphviz DOT
  gemini-crawler crawl --dot -o graph.dot gemini://example.org/

Configuration file (.gemini-crawler) example:
  defaults:
    concurrency: 1
    minInterval: 500ms
  hosts:
    fragile.example.org:
      minInterval: 5s`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Concurrency and politeness flags
	cmd.Flags().IntP("max-concurrency", "n", config.DefaultMaxConcurrency,
		"Maximum number of in-flight fetches across all hosts")
	cmd.Flags().Int("host-concurrency", config.DefaultPerHostConcurrency,
		"Maximum simultaneous connections per host")
	cmd.Flags().Duration("host-interval", config.DefaultPerHostMinInterval,
		"Minimum interval between request starts against the same host")

	// Fetch behavior flags
	cmd.Flags().Duration("connect-timeout", config.DefaultConnectTimeout,
		"Timeout for TCP connection establishment")
	cmd.Flags().Duration("handshake-timeout", config.DefaultHandshakeTimeout,
		"Timeout for the TLS handshake")
	cmd.Flags().DurationP("read-timeout", "t", config.DefaultReadTimeout,
		"Timeout for reading the response header and body")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes; larger bodies are truncated")
	cmd.Flags().Int("max-redirects", config.DefaultMaxRedirectHops,
		"Maximum redirect hops followed per fetch")
	cmd.Flags().Bool("tls-verify", false,
		"Verify server certificates against the system trust store")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (e.g., 127.0.0.1:9050)")

	// Crawl bound flags
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of URLs dispatched (0 = unlimited)")
	cmd.Flags().DurationP("deadline", "d", 0,
		"Wall-clock budget for the whole crawl (0 = unlimited)")
	cmd.Flags().Int("retries", config.DefaultRetryMax,
		"Additional attempts after a transient failure")
	cmd.Flags().Duration("retry-backoff", config.DefaultRetryBackoff,
		"Initial wait before a retry, doubling after each attempt")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .gemini-crawler in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown and --dot)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json and --dot)")
	cmd.Flags().Bool("dot", false,
		"Output the link graph as Graphviz DOT (mutually exclusive with --json and --markdown)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-save", false,
		"Do not save crawl results to the local database")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, draining in-flight fetches...")
		cancel()
	}()

	return runCrawl(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.MaxConcurrency, err = cmd.Flags().GetInt("max-concurrency")
	if err != nil {
		return nil, err
	}

	cfg.PerHostConcurrency, err = cmd.Flags().GetInt("host-concurrency")
	if err != nil {
		return nil, err
	}

	cfg.PerHostMinInterval, err = cmd.Flags().GetDuration("host-interval")
	if err != nil {
		return nil, err
	}

	cfg.ConnectTimeout, err = cmd.Flags().GetDuration("connect-timeout")
	if err != nil {
		return nil, err
	}

	cfg.HandshakeTimeout, err = cmd.Flags().GetDuration("handshake-timeout")
	if err != nil {
		return nil, err
	}

	cfg.ReadTimeout, err = cmd.Flags().GetDuration("read-timeout")
	if err != nil {
		return nil, err
	}

	cfg.MaxBodySize, err = cmd.Flags().GetInt64("max-body-size")
	if err != nil {
		return nil, err
	}

	cfg.MaxRedirectHops, err = cmd.Flags().GetInt("max-redirects")
	if err != nil {
		return nil, err
	}

	cfg.TLSVerify, err = cmd.Flags().GetBool("tls-verify")
	if err != nil {
		return nil, err
	}

	cfg.ProxyAddress, err = cmd.Flags().GetString("proxy")
	if err != nil {
		return nil, err
	}

	cfg.MaxPages, err = cmd.Flags().GetInt("max-pages")
	if err != nil {
		return nil, err
	}

	cfg.Deadline, err = cmd.Flags().GetDuration("deadline")
	if err != nil {
		return nil, err
	}

	cfg.RetryMax, err = cmd.Flags().GetInt("retries")
	if err != nil {
		return nil, err
	}

	cfg.RetryBackoff, err = cmd.Flags().GetDuration("retry-backoff")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Load host throttle overrides from the config file.
	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty config if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.HostConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		cfg.HostConfigs = &config.File{
			Hosts: make(map[string]config.HostConfig),
		}
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.DOTReport, err = cmd.Flags().GetBool("dot")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	noSave, err := cmd.Flags().GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	if cfg.SaveToDB {
		cfg.DBDir = config.XDGDataDir()
	}

	cfg.Verbose = getVerboseFlag(cmd)

	// Positional arguments are the seed URLs
	cfg.Seeds = args

	return cfg, nil
}

// runCrawl executes the crawl and reports the result.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting crawl",
		"seeds", cfg.Seeds,
		"maxConcurrency", cfg.MaxConcurrency,
		"maxPages", cfg.MaxPages,
		"saveToDB", cfg.SaveToDB,
	)

	// Open database connection if saving is enabled
	var db *database.GraphDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	client, err := newClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create gemini client: %w", err)
	}

	cr := crawler.New(client,
		crawler.WithThrottle(newThrottle(cfg)),
		crawler.WithLogger(logger),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithDeadline(cfg.Deadline),
		crawler.WithMaxRedirectHops(cfg.MaxRedirectHops),
		crawler.WithRetry(cfg.RetryMax, cfg.RetryBackoff),
	)

	fmt.Printf("Crawling %d seed(s)...\n", len(cfg.Seeds))
	startedAt := time.Now()

	snap, err := cr.Run(ctx, cfg.Seeds)
	if err != nil && snap == nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	if err != nil {
		// Cancelled mid-run; the partial graph is still worth reporting.
		logger.Warn("crawl interrupted", "error", err)
	}

	finishedAt := time.Now()
	stats := cr.Stats()
	fmt.Printf("Crawl completed in %s: %d fetched, %d failed, %d nodes, %d edges\n\n",
		finishedAt.Sub(startedAt).Round(time.Millisecond),
		stats.Fetched, stats.Failed, len(snap.Nodes), len(snap.Edges))

	summary := &report.Summary{
		Seeds:      cfg.Seeds,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Snapshot:   snap,
	}

	// Save to database if enabled
	if db != nil {
		runID, err := db.SaveSnapshot(ctx, database.RunRecord{
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Seeds:      cfg.Seeds,
		}, snap)
		if err != nil {
			logger.Error("failed to save crawl run", "error", err)
		} else {
			summary.RunID = runID
			logger.Info("crawl run saved", "runID", runID)
		}
	}

	return outputReport(cfg, summary)
}

// newClient builds the protocol client from the configuration.
func newClient(cfg *config.Config) (*gemini.Client, error) {
	opts := []gemini.ClientOption{
		gemini.WithConnectTimeout(cfg.ConnectTimeout),
		gemini.WithHandshakeTimeout(cfg.HandshakeTimeout),
		gemini.WithReadTimeout(cfg.ReadTimeout),
		gemini.WithMaxBodySize(cfg.MaxBodySize),
		gemini.WithTLSVerify(cfg.TLSVerify),
	}
	if cfg.ProxyAddress != "" {
		opts = append(opts, gemini.WithProxy(cfg.ProxyAddress))
	}
	return gemini.NewClient(opts...)
}

// newThrottle builds the host throttle from the configuration, applying
// per-host overrides from the config file.
func newThrottle(cfg *config.Config) *throttle.Throttle {
	defaults := throttle.HostLimits{
		Concurrency: cfg.PerHostConcurrency,
		MinInterval: cfg.PerHostMinInterval,
	}

	var opts []throttle.Option
	if cfg.HostConfigs != nil {
		// Config file defaults override the flag-level defaults when set.
		if d := cfg.HostConfigs.Defaults; d.Concurrency != 0 || d.MinInterval != 0 {
			if d.Concurrency != 0 {
				defaults.Concurrency = d.Concurrency
			}
			if d.MinInterval != 0 {
				defaults.MinInterval = d.MinInterval
			}
		}

		for host := range cfg.HostConfigs.Hosts {
			hc := cfg.HostConfigs.GetHostConfig(host)
			limits := defaults
			if hc.Concurrency != 0 {
				limits.Concurrency = hc.Concurrency
			}
			if hc.MinInterval != 0 {
				limits.MinInterval = hc.MinInterval
			}
			opts = append(opts, throttle.WithHostLimits(host, limits))
		}
	}

	return throttle.New(cfg.MaxConcurrency, defaults, opts...)
}

// outputReport writes the crawl summary in the requested format.
func outputReport(cfg *config.Config, summary *report.Summary) error {
	// Determine output destination
	var output *os.File
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	case cfg.DOTReport:
		writer = report.NewDOTWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := writer.Write(summary)
	return err
}
