package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/cacharle/gemini-crawler/internal/gemini"
	"github.com/cacharle/gemini-crawler/internal/graph"
	"github.com/cacharle/gemini-crawler/internal/throttle"
)

// fakeFetcher serves canned outcomes keyed by canonical URL and counts
// how often each URL was fetched. URLs without a canned outcome get a
// connection-refused failure.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]*gemini.Outcome
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string]*gemini.Outcome),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, u *url.URL) *gemini.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[u.String()]++
	if outcome, ok := f.pages[u.String()]; ok {
		return outcome
	}
	return &gemini.Outcome{
		URL:  u,
		Kind: gemini.OutcomeFailure,
		Err:  &gemini.FetchError{Kind: gemini.FailureConnectRefused, Err: errors.New("connection refused")},
	}
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// page registers a successful gemtext response whose body links to the
// given targets.
func (f *fakeFetcher) page(t *testing.T, rawURL string, linkTargets ...string) {
	t.Helper()

	u := mustParse(t, rawURL)
	body := "# " + u.Host + "\n"
	links := make([]*url.URL, 0, len(linkTargets))
	for _, target := range linkTargets {
		body += "=> " + target + "\n"
		links = append(links, mustParse(t, target))
	}
	f.pages[rawURL] = &gemini.Outcome{
		URL:       u,
		Kind:      gemini.OutcomeSuccess,
		Header:    gemini.Header{Status: 20, Meta: "text/gemini"},
		MediaType: "text/gemini",
		Body:      body,
		Document:  gemini.ParseDocument(body),
		Links:     links,
	}
}

// redirect registers a 31 response pointing at target.
func (f *fakeFetcher) redirect(t *testing.T, rawURL, target string) {
	t.Helper()

	f.pages[rawURL] = &gemini.Outcome{
		URL:    mustParse(t, rawURL),
		Kind:   gemini.OutcomeRedirect,
		Header: gemini.Header{Status: 31, Meta: target},
		Target: mustParse(t, target),
	}
}

// fail registers a failure of the given kind.
func (f *fakeFetcher) fail(t *testing.T, rawURL string, kind gemini.FailureKind) {
	t.Helper()

	f.pages[rawURL] = &gemini.Outcome{
		URL:  mustParse(t, rawURL),
		Kind: gemini.OutcomeFailure,
		Err:  &gemini.FetchError{Kind: kind, Err: fmt.Errorf("%s", kind)},
	}
}

func mustParse(t *testing.T, rawURL string) *url.URL {
	t.Helper()

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	return u
}

// newTestCrawler builds a crawler with retries and progress logging off
// unless a test opts back in.
func newTestCrawler(fetcher Fetcher, opts ...Option) *Crawler {
	base := []Option{
		WithRetry(0, time.Millisecond),
		WithProgressInterval(0),
	}
	return New(fetcher, append(base, opts...)...)
}

func findNode(t *testing.T, snap *graph.Snapshot, url string) graph.Node {
	t.Helper()

	for _, node := range snap.Nodes {
		if node.URL == url {
			return node
		}
	}
	t.Fatalf("node %q not in snapshot", url)
	return graph.Node{}
}

func TestRunSingleSeed(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.page(t, "gemini://example.org/",
		"gemini://example.org/about",
		"gemini://other.example.org/",
	)
	fetcher.page(t, "gemini://example.org/about")
	fetcher.page(t, "gemini://other.example.org/")

	c := newTestCrawler(fetcher)
	snap, err := c.Run(context.Background(), []string{"gemini://example.org/"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(snap.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3", len(snap.Nodes))
	}
	if len(snap.Edges) != 2 {
		t.Errorf("edges = %d, want 2", len(snap.Edges))
	}
	for _, node := range snap.Nodes {
		if node.Status != graph.StatusFetched {
			t.Errorf("node %s status = %s, want fetched", node.URL, node.Status)
		}
	}
	if got := findNode(t, snap, "gemini://example.org/").Title; got != "example.org" {
		t.Errorf("seed title = %q, want %q", got, "example.org")
	}

	stats := c.Stats()
	if stats.Fetched != 3 || stats.Failed != 0 || stats.Dispatched != 3 {
		t.Errorf("stats = %+v, want 3 fetched, 0 failed, 3 dispatched", stats)
	}
}

func TestRunNoSeeds(t *testing.T) {
	t.Parallel()

	c := newTestCrawler(newFakeFetcher())
	if _, err := c.Run(context.Background(), nil); !errors.Is(err, ErrNoSeeds) {
		t.Errorf("Run() error = %v, want ErrNoSeeds", err)
	}
}

func TestRunInvalidSeed(t *testing.T) {
	t.Parallel()

	c := newTestCrawler(newFakeFetcher())
	if _, err := c.Run(context.Background(), []string{"https://example.org/"}); err == nil {
		t.Error("Run() with a non-gemini seed should fail")
	}
}

func TestRunNormalizesSeeds(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.page(t, "gemini://example.org/")

	c := newTestCrawler(fetcher)
	// Both spellings canonicalize to the same URL; it is fetched once.
	snap, err := c.Run(context.Background(), []string{
		"gemini://EXAMPLE.ORG",
		"gemini://example.org:1965/",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(snap.Nodes) != 1 {
		t.Errorf("nodes = %d, want 1", len(snap.Nodes))
	}
	if got := fetcher.callCount("gemini://example.org/"); got != 1 {
		t.Errorf("seed fetched %d times, want 1", got)
	}
}

func TestRunDeduplicatesLinks(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	// Two pages both link to the same third page.
	fetcher.page(t, "gemini://a.example.org/", "gemini://shared.example.org/")
	fetcher.page(t, "gemini://b.example.org/", "gemini://shared.example.org/")
	fetcher.page(t, "gemini://shared.example.org/")

	c := newTestCrawler(fetcher)
	snap, err := c.Run(context.Background(), []string{
		"gemini://a.example.org/",
		"gemini://b.example.org/",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := fetcher.callCount("gemini://shared.example.org/"); got != 1 {
		t.Errorf("shared page fetched %d times, want 1", got)
	}
	// Both edges exist even though the target was fetched once.
	if len(snap.Edges) != 2 {
		t.Errorf("edges = %d, want 2", len(snap.Edges))
	}
}

func TestRunRecordsFailures(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.page(t, "gemini://example.org/", "gemini://down.example.org/")
	fetcher.fail(t, "gemini://down.example.org/", gemini.FailurePermanent)

	c := newTestCrawler(fetcher)
	snap, err := c.Run(context.Background(), []string{"gemini://example.org/"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	node := findNode(t, snap, "gemini://down.example.org/")
	if node.Status != graph.StatusFailed {
		t.Errorf("status = %s, want failed", node.Status)
	}
	if node.Failure != gemini.FailurePermanent {
		t.Errorf("failure = %s, want %s", node.Failure, gemini.FailurePermanent)
	}

	stats := c.Stats()
	if stats.Fetched != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 1 fetched, 1 failed", stats)
	}
}

func TestRunFollowsRedirects(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.redirect(t, "gemini://example.org/old", "gemini://example.org/new")
	fetcher.page(t, "gemini://example.org/new")

	c := newTestCrawler(fetcher)
	snap, err := c.Run(context.Background(), []string{"gemini://example.org/old"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The node keeps its discovered identity and records where it landed.
	node := findNode(t, snap, "gemini://example.org/old")
	if node.Status != graph.StatusFetched {
		t.Fatalf("status = %s, want fetched", node.Status)
	}
	if node.FinalURL != "gemini://example.org/new" {
		t.Errorf("final URL = %q, want %q", node.FinalURL, "gemini://example.org/new")
	}
	if got := c.Stats().Redirects; got != 1 {
		t.Errorf("redirects = %d, want 1", got)
	}
}

func TestRunRedirectTargetNotRefetched(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.redirect(t, "gemini://example.org/old", "gemini://example.org/new")
	// The landing page links back to itself under its canonical name.
	fetcher.page(t, "gemini://example.org/new", "gemini://example.org/new")

	c := newTestCrawler(fetcher)
	_, err := c.Run(context.Background(), []string{"gemini://example.org/old"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Once via the redirect chain; the discovered link is already seen.
	if got := fetcher.callCount("gemini://example.org/new"); got != 1 {
		t.Errorf("redirect target fetched %d times, want 1", got)
	}
}

func TestRunRedirectLoop(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.redirect(t, "gemini://example.org/a", "gemini://example.org/b")
	fetcher.redirect(t, "gemini://example.org/b", "gemini://example.org/a")

	c := newTestCrawler(fetcher, WithMaxRedirectHops(3))
	snap, err := c.Run(context.Background(), []string{"gemini://example.org/a"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	node := findNode(t, snap, "gemini://example.org/a")
	if node.Status != graph.StatusFailed {
		t.Fatalf("status = %s, want failed", node.Status)
	}
	if node.Failure != gemini.FailureTooManyRedirects {
		t.Errorf("failure = %s, want %s", node.Failure, gemini.FailureTooManyRedirects)
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.fail(t, "gemini://flaky.example.org/", gemini.FailureReadTimeout)

	c := New(fetcher,
		WithRetry(2, time.Millisecond),
		WithProgressInterval(0),
	)
	snap, err := c.Run(context.Background(), []string{"gemini://flaky.example.org/"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := fetcher.callCount("gemini://flaky.example.org/"); got != 3 {
		t.Errorf("flaky page fetched %d times, want 3 (initial + 2 retries)", got)
	}
	node := findNode(t, snap, "gemini://flaky.example.org/")
	if node.Failure != gemini.FailureReadTimeout {
		t.Errorf("failure = %s, want %s", node.Failure, gemini.FailureReadTimeout)
	}
	if got := c.Stats().Retries; got != 2 {
		t.Errorf("retries = %d, want 2", got)
	}
}

func TestRunDoesNotRetryPermanentFailures(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.fail(t, "gemini://gone.example.org/", gemini.FailurePermanent)

	c := New(fetcher,
		WithRetry(2, time.Millisecond),
		WithProgressInterval(0),
	)
	if _, err := c.Run(context.Background(), []string{"gemini://gone.example.org/"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := fetcher.callCount("gemini://gone.example.org/"); got != 1 {
		t.Errorf("permanent failure fetched %d times, want 1", got)
	}
}

func TestRunMaxPages(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.page(t, "gemini://example.org/",
		"gemini://example.org/1",
		"gemini://example.org/2",
		"gemini://example.org/3",
	)
	fetcher.page(t, "gemini://example.org/1")
	fetcher.page(t, "gemini://example.org/2")
	fetcher.page(t, "gemini://example.org/3")

	c := newTestCrawler(fetcher, WithMaxPages(2))
	snap, err := c.Run(context.Background(), []string{"gemini://example.org/"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := c.Stats().Dispatched; got != 2 {
		t.Errorf("dispatched = %d, want 2", got)
	}
	// Discovered but undispatched links remain unvisited in the graph.
	unvisited := 0
	for _, node := range snap.Nodes {
		if node.Status == graph.StatusUnvisited {
			unvisited++
		}
	}
	if unvisited != 2 {
		t.Errorf("unvisited nodes = %d, want 2", unvisited)
	}
}

func TestRunCancellation(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.page(t, "gemini://example.org/", "gemini://example.org/next")
	fetcher.page(t, "gemini://example.org/next")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCrawler(fetcher)
	snap, err := c.Run(ctx, []string{"gemini://example.org/"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	// A partial snapshot is still returned alongside the error.
	if snap == nil {
		t.Fatal("Run() snapshot = nil on cancellation")
	}
}

func TestRunDeadlineDrains(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.page(t, "gemini://example.org/", "gemini://example.org/next")
	fetcher.page(t, "gemini://example.org/next")

	// An expired run budget is normal completion, not an error.
	c := newTestCrawler(fetcher, WithDeadline(time.Nanosecond))
	snap, err := c.Run(context.Background(), []string{"gemini://example.org/"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if snap == nil {
		t.Fatal("Run() snapshot = nil")
	}
}

func TestRunWithThrottle(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.page(t, "gemini://example.org/",
		"gemini://example.org/1",
		"gemini://example.org/2",
	)
	fetcher.page(t, "gemini://example.org/1")
	fetcher.page(t, "gemini://example.org/2")

	th := throttle.New(1, throttle.HostLimits{Concurrency: 1})
	c := newTestCrawler(fetcher, WithThrottle(th))
	snap, err := c.Run(context.Background(), []string{"gemini://example.org/"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(snap.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3", len(snap.Nodes))
	}
	if got := c.Stats().Fetched; got != 3 {
		t.Errorf("fetched = %d, want 3", got)
	}
}

func TestFrontier(t *testing.T) {
	t.Parallel()

	t.Run("push deduplicates", func(t *testing.T) {
		t.Parallel()

		f := newFrontier()
		if !f.push("gemini://example.org/") {
			t.Error("first push should enqueue")
		}
		if f.push("gemini://example.org/") {
			t.Error("second push of the same URL should be a no-op")
		}
		if f.pending() != 1 {
			t.Errorf("pending = %d, want 1", f.pending())
		}
	})

	t.Run("pop is FIFO", func(t *testing.T) {
		t.Parallel()

		f := newFrontier()
		f.push("gemini://a.example.org/")
		f.push("gemini://b.example.org/")

		if url, ok := f.pop(); !ok || url != "gemini://a.example.org/" {
			t.Errorf("pop() = %q, %v, want first pushed URL", url, ok)
		}
		if url, ok := f.pop(); !ok || url != "gemini://b.example.org/" {
			t.Errorf("pop() = %q, %v, want second pushed URL", url, ok)
		}
		if _, ok := f.pop(); ok {
			t.Error("pop() of an empty frontier should report false")
		}
	})

	t.Run("markSeen blocks later push", func(t *testing.T) {
		t.Parallel()

		f := newFrontier()
		f.markSeen("gemini://example.org/")
		if f.push("gemini://example.org/") {
			t.Error("push of a seen URL should be a no-op")
		}
		if f.pending() != 0 {
			t.Errorf("pending = %d, want 0", f.pending())
		}
	})
}
