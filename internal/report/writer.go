package report

import (
	"io"
	"net/url"
	"sort"
	"time"

	"github.com/cacharle/gemini-crawler/internal/graph"
)

// Summary is the input of every report writer: the final graph snapshot
// plus the run's framing data.
type Summary struct {
	// RunID is the persisted run's UUID, empty for unsaved runs.
	RunID string `json:"run_id,omitempty"`

	// Seeds are the URLs the crawl started from.
	Seeds []string `json:"seeds"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Snapshot is the crawl's final graph.
	Snapshot *graph.Snapshot `json:"graph"`
}

// Duration returns how long the run took.
func (s *Summary) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// StatusCounts returns node counts keyed by status name.
func (s *Summary) StatusCounts() map[string]int {
	counts := make(map[string]int)
	for _, node := range s.Snapshot.Nodes {
		counts[node.Status.String()]++
	}
	return counts
}

// FailureCounts returns failed-node counts keyed by failure kind name.
func (s *Summary) FailureCounts() map[string]int {
	counts := make(map[string]int)
	for _, node := range s.Snapshot.Nodes {
		if node.Status == graph.StatusFailed {
			counts[node.FailureName]++
		}
	}
	return counts
}

// HostCounts returns node counts keyed by host, largest first.
func (s *Summary) HostCounts() []HostCount {
	counts := make(map[string]int)
	for _, node := range s.Snapshot.Nodes {
		counts[hostOf(node.URL)]++
	}
	result := make([]HostCount, 0, len(counts))
	for host, n := range counts {
		result = append(result, HostCount{Host: host, Nodes: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Nodes != result[j].Nodes {
			return result[i].Nodes > result[j].Nodes
		}
		return result[i].Host < result[j].Host
	})
	return result
}

// HostCount pairs a host with how many of the graph's nodes it serves.
type HostCount struct {
	Host  string
	Nodes int
}

// hostOf extracts the host of a canonical URL, or the URL itself when it
// somehow does not parse; a report must never fail over one bad row.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// Writer defines the interface for report output.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	// Write outputs the summary to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(summary *Summary) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously, useful for
// outputting to both terminal and file. It is a separate type rather
// than io.MultiWriter because our Writer consumes summaries, not bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to all configured Writers. Returns the total
// bytes written; stops on first error.
func (m *MultiWriter) Write(summary *Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides the shared output destination for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
