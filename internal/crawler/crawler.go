package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/cacharle/gemini-crawler/internal/gemini"
	"github.com/cacharle/gemini-crawler/internal/graph"
	"github.com/cacharle/gemini-crawler/internal/throttle"
)

// Crawler default values.
const (
	// DefaultMaxConcurrency bounds in-flight fetches when no throttle is
	// supplied.
	DefaultMaxConcurrency = 16

	// DefaultMaxRedirectHops bounds redirect chains. Five matches what
	// interactive Gemini clients commonly tolerate.
	DefaultMaxRedirectHops = 5

	// DefaultRetryMax is how many extra attempts a transient failure
	// (connect or read timeout) gets before the node is marked failed.
	DefaultRetryMax = 2

	// DefaultRetryBackoff is the wait before the first retry; it doubles
	// per attempt.
	DefaultRetryBackoff = 1 * time.Second

	// DefaultProgressInterval is how often the run logs progress.
	DefaultProgressInterval = 5 * time.Second
)

// ErrNoSeeds is returned when Run is called without any seed URL.
var ErrNoSeeds = errors.New("no seed URLs: the frontier would be empty")

// Fetcher performs one fetch and reports its outcome. *gemini.Client is
// the production implementation; tests substitute their own.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) *gemini.Outcome
}

// Crawler runs the crawl: it owns the frontier, the seen set, and the
// link graph for the duration of a run, and dispatches bounded concurrent
// fetch tasks.
type Crawler struct {
	// fetcher performs the network I/O of a single fetch.
	fetcher Fetcher

	// throttle gates every fetch attempt.
	throttle *throttle.Throttle

	// logger receives structured progress and event logs.
	logger *slog.Logger

	// maxPages bounds dispatched fetches per run; 0 means unbounded.
	maxPages int

	// deadline bounds the whole run; 0 means unbounded. Expiry drains
	// the run rather than erroring: in-flight fetches finish, nothing
	// new is dispatched.
	deadline time.Duration

	// maxRedirectHops bounds redirect chains per dispatched URL.
	maxRedirectHops int

	// retryMax and retryBackoff gate retries of transient failures.
	retryMax     int
	retryBackoff time.Duration

	// progressInterval is how often progress is logged; 0 disables it.
	progressInterval time.Duration

	// mu guards the counters below, which back Stats. The run loop
	// writes them; the progress goroutine and callers read them.
	mu         sync.Mutex
	started    time.Time
	dispatched int
	fetched    int
	failed     int
	redirects  int
	retries    int
	inFlight   int
	pending    int
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithThrottle sets the admission-control gate for fetches.
func WithThrottle(t *throttle.Throttle) Option {
	return func(c *Crawler) {
		c.throttle = t
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithMaxPages bounds how many fetches a run dispatches. 0 = unbounded.
func WithMaxPages(n int) Option {
	return func(c *Crawler) {
		c.maxPages = n
	}
}

// WithDeadline bounds the whole run's duration. 0 = unbounded.
func WithDeadline(d time.Duration) Option {
	return func(c *Crawler) {
		c.deadline = d
	}
}

// WithMaxRedirectHops bounds redirect chains.
func WithMaxRedirectHops(n int) Option {
	return func(c *Crawler) {
		c.maxRedirectHops = n
	}
}

// WithRetry configures retries of transient failures: up to max extra
// attempts, waiting backoff before the first and doubling after each.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(c *Crawler) {
		c.retryMax = maxAttempts
		c.retryBackoff = backoff
	}
}

// WithProgressInterval sets how often the run logs progress. 0 disables.
func WithProgressInterval(d time.Duration) Option {
	return func(c *Crawler) {
		c.progressInterval = d
	}
}

// New creates a Crawler around the given fetcher.
func New(fetcher Fetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:          fetcher,
		maxRedirectHops:  DefaultMaxRedirectHops,
		retryMax:         DefaultRetryMax,
		retryBackoff:     DefaultRetryBackoff,
		progressInterval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.throttle == nil {
		c.throttle = throttle.New(DefaultMaxConcurrency, throttle.HostLimits{})
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// taskResult is what a fetch task hands back to the run loop.
type taskResult struct {
	// url is the canonical URL the task was dispatched for.
	url string

	// outcome is the fetch result after redirects and retries. Nil when
	// the run was cancelled before the task could complete a fetch.
	outcome *gemini.Outcome

	// redirects and retries are the task's own counts, folded into the
	// run totals.
	redirects int
	retries   int
}

// Run crawls from the seed URLs until the frontier empties, the page
// budget or deadline drains the run, or ctx is cancelled. It returns the
// final graph snapshot; the snapshot is also returned on cancellation
// together with the context's error, since a partial graph is still a
// useful one.
func (c *Crawler) Run(ctx context.Context, seeds []string) (*graph.Snapshot, error) {
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}

	g := graph.New()
	front := newFrontier()
	for _, seed := range seeds {
		u, err := gemini.Normalize(nil, seed)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", seed, err)
		}
		if front.push(u.String()) {
			g.AddNode(u.String())
		}
	}

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if c.deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.deadline)
	}
	defer cancel()

	c.mu.Lock()
	c.started = time.Now()
	c.dispatched, c.fetched, c.failed, c.redirects, c.retries = 0, 0, 0, 0, 0
	c.inFlight, c.pending = 0, front.pending()
	c.mu.Unlock()

	stopProgress := c.startProgress(g)
	defer stopProgress()

	outcomes := make(chan taskResult)
	inFlight := 0
	dispatched := 0
	draining := false

	for {
		if !draining && runCtx.Err() != nil {
			c.logger.Info("run budget or cancellation reached, draining in-flight fetches")
			draining = true
		}

		if !draining {
			for front.pending() > 0 {
				if c.maxPages > 0 && dispatched >= c.maxPages {
					c.logger.Info("page budget exhausted, draining", "max_pages", c.maxPages)
					draining = true
					break
				}
				urlStr, _ := front.pop()
				g.MarkInFlight(urlStr)
				dispatched++
				inFlight++
				go c.fetchTask(runCtx, urlStr, outcomes)
			}
		}

		c.setGauges(dispatched, inFlight, front.pending())
		if inFlight == 0 {
			if draining || front.pending() == 0 {
				break
			}
			continue
		}

		if draining {
			res := <-outcomes
			inFlight--
			c.apply(g, front, res)
			continue
		}
		select {
		case res := <-outcomes:
			inFlight--
			c.apply(g, front, res)
		case <-runCtx.Done():
			// handled at the top of the loop
		}
	}

	c.setGauges(dispatched, inFlight, front.pending())
	stats := c.Stats()
	c.logger.Info("crawl finished",
		"fetched", stats.Fetched,
		"failed", stats.Failed,
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"elapsed", stats.Elapsed,
	)

	snap := g.Snapshot()
	if ctx.Err() != nil {
		// Only external cancellation is an error; our own deadline is a
		// run budget and draining on it is normal completion.
		return snap, ctx.Err()
	}
	return snap, nil
}

// apply folds one task result into the graph and the frontier. Only the
// run loop calls it, which is the whole concurrency discipline: one
// writer, serialized by the outcomes channel.
func (c *Crawler) apply(g *graph.Graph, front *frontier, res taskResult) {
	c.mu.Lock()
	c.redirects += res.redirects
	c.retries += res.retries
	c.mu.Unlock()

	if res.outcome == nil {
		// Cancelled before completing a fetch. The node stays in-flight
		// in the final graph, which is an honest record of the run.
		return
	}

	switch res.outcome.Kind {
	case gemini.OutcomeSuccess:
		info := graph.FetchInfo{
			Title:     res.outcome.Title(),
			MediaType: res.outcome.MediaType,
			BodySize:  int64(len(res.outcome.Body)),
			Truncated: res.outcome.Truncated,
		}
		finalURL := res.outcome.URL.String()
		if finalURL != res.url {
			// The dispatched URL redirected. The node keeps its
			// discovered identity; the final URL joins the seen set so
			// the capsule is not fetched twice under two names.
			info.FinalURL = finalURL
			front.markSeen(finalURL)
		}
		g.MarkFetched(res.url, info)

		for _, link := range res.outcome.Links {
			target := link.String()
			g.AddEdge(res.url, target)
			front.push(target)
		}

		c.mu.Lock()
		c.fetched++
		c.mu.Unlock()
		c.logger.Debug("fetched",
			"url", res.url,
			"status", res.outcome.Header.Status,
			"links", len(res.outcome.Links),
			"truncated", res.outcome.Truncated,
		)
	default:
		g.MarkFailed(res.url, res.outcome.Err.Kind)
		c.mu.Lock()
		c.failed++
		c.mu.Unlock()
		c.logger.Debug("fetch failed",
			"url", res.url,
			"kind", res.outcome.Err.Kind.String(),
			"error", res.outcome.Err,
		)
	}
}

// fetchTask is the goroutine body of one dispatched fetch. It always
// sends exactly one result, even when cancelled.
func (c *Crawler) fetchTask(ctx context.Context, urlStr string, out chan<- taskResult) {
	res := taskResult{url: urlStr}

	u, err := url.Parse(urlStr)
	if err != nil {
		// Canonical URLs always parse; this is a belt against future
		// frontier corruption, not an expected path.
		res.outcome = &gemini.Outcome{
			Kind: gemini.OutcomeFailure,
			Err:  &gemini.FetchError{Kind: gemini.FailureMalformedURL, Err: err},
		}
		out <- res
		return
	}

	res.outcome, res.redirects, res.retries = c.fetchWithRetry(ctx, u)
	out <- res
}

// fetchWithRetry wraps the redirect-following fetch with bounded retries
// of transient failures. The backoff doubles per attempt, and the permit
// is not held while backing off: a sleeping task must not occupy
// capacity.
func (c *Crawler) fetchWithRetry(ctx context.Context, u *url.URL) (outcome *gemini.Outcome, redirects, retries int) {
	backoff := c.retryBackoff
	for attempt := 0; ; attempt++ {
		var hops int
		outcome, hops = c.fetchChain(ctx, u)
		redirects += hops
		if outcome == nil {
			return nil, redirects, retries
		}
		if outcome.Kind != gemini.OutcomeFailure ||
			!outcome.Err.Kind.Transient() ||
			attempt >= c.retryMax ||
			ctx.Err() != nil {
			return outcome, redirects, retries
		}

		retries++
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return outcome, redirects, retries
		}
		backoff *= 2
	}
}

// fetchChain performs one fetch and follows its redirect chain up to the
// hop bound, one throttle permit per request. A chain that exceeds the
// bound terminates in a too-many-redirects failure even when the chain is
// a cycle.
func (c *Crawler) fetchChain(ctx context.Context, u *url.URL) (*gemini.Outcome, int) {
	current := u
	for hop := 0; ; hop++ {
		outcome := c.throttledFetch(ctx, current)
		if outcome == nil {
			return nil, hop
		}
		if outcome.Kind != gemini.OutcomeRedirect {
			return outcome, hop
		}
		if hop+1 > c.maxRedirectHops {
			return &gemini.Outcome{
				URL:  u,
				Kind: gemini.OutcomeFailure,
				Err: &gemini.FetchError{
					Kind: gemini.FailureTooManyRedirects,
					Err:  fmt.Errorf("chain exceeded %d hops at %s", c.maxRedirectHops, current),
				},
			}, hop + 1
		}
		c.logger.Debug("following redirect", "from", current.String(), "to", outcome.Target.String())
		current = outcome.Target
	}
}

// throttledFetch performs one request under a throttle permit. The
// permit's release is deferred, so it happens exactly once on every exit
// path, including panics inside the fetcher. Returns nil when the run is
// cancelled while waiting for a permit.
func (c *Crawler) throttledFetch(ctx context.Context, u *url.URL) *gemini.Outcome {
	permit, err := c.throttle.Acquire(ctx, u.Hostname())
	if err != nil {
		return nil
	}
	defer permit.Release()
	return c.fetcher.Fetch(ctx, u)
}

// setGauges publishes the run loop's live numbers for Stats readers.
func (c *Crawler) setGauges(dispatched, inFlight, pending int) {
	c.mu.Lock()
	c.dispatched = dispatched
	c.inFlight = inFlight
	c.pending = pending
	c.mu.Unlock()
}

// Stats is a read-only snapshot of run progress.
type Stats struct {
	// Dispatched counts fetch tasks started.
	Dispatched int

	// Fetched and Failed count completed fetch tasks by outcome.
	Fetched int
	Failed  int

	// InFlight and Pending are live gauges: tasks running and URLs
	// waiting in the frontier.
	InFlight int
	Pending  int

	// Redirects and Retries count extra requests beyond one per task.
	Redirects int
	Retries   int

	// Elapsed is the time since the run started.
	Elapsed time.Duration

	// PagesPerSecond is the successful fetch rate over the run so far.
	PagesPerSecond float64
}

// Stats returns current run statistics. Safe to call from any goroutine;
// progress reporting consumes this and never touches the graph.
func (c *Crawler) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Dispatched: c.dispatched,
		Fetched:    c.fetched,
		Failed:     c.failed,
		InFlight:   c.inFlight,
		Pending:    c.pending,
		Redirects:  c.redirects,
		Retries:    c.retries,
	}
	if !c.started.IsZero() {
		stats.Elapsed = time.Since(c.started)
		if secs := stats.Elapsed.Seconds(); secs > 0 {
			stats.PagesPerSecond = float64(stats.Fetched) / secs
		}
	}
	return stats
}

// startProgress launches the periodic progress logger and returns its
// stop function. The logger reads only Stats and graph counts.
func (c *Crawler) startProgress(g *graph.Graph) func() {
	if c.progressInterval <= 0 {
		return func() {}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				stats := c.Stats()
				c.logger.Info("crawl progress",
					"fetched", stats.Fetched,
					"failed", stats.Failed,
					"in_flight", stats.InFlight,
					"pending", stats.Pending,
					"nodes", g.NodeCount(),
					"edges", g.EdgeCount(),
					"pages_per_second", fmt.Sprintf("%.2f", stats.PagesPerSecond),
				)
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}
