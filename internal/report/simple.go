package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cacharle/gemini-crawler/internal/graph"
)

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because it works in all terminals and pipes cleanly to
// files and other tools.
type SimpleWriter struct {
	baseWriter

	// verbose lists every node instead of only the counts.
	verbose bool

	// topHosts bounds the hosts section; 0 shows all.
	topHosts int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables per-node detail in the output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithTopHosts bounds how many hosts the hosts section lists.
func WithTopHosts(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.topHosts = n
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		topHosts:   10,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// titleCaser renders kebab-case identifiers as headings, e.g.
// "connect-timeout" becomes "Connect Timeout".
var titleCaser = cases.Title(language.English)

// heading renders a stable identifier as a human heading.
func heading(identifier string) string {
	return titleCaser.String(strings.ReplaceAll(identifier, "-", " "))
}

// Write outputs the summary as text.
func (w *SimpleWriter) Write(summary *Summary) (int, error) {
	var b strings.Builder

	b.WriteString("Gemini Crawl Report\n")
	b.WriteString(strings.Repeat("=", 70) + "\n\n")

	b.WriteString(fmt.Sprintf("  Seeds:    %s\n", strings.Join(summary.Seeds, ", ")))
	if !summary.StartedAt.IsZero() {
		b.WriteString(fmt.Sprintf("  Started:  %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 MST")))
		b.WriteString(fmt.Sprintf("  Duration: %s\n", summary.Duration().Round(summaryDurationUnit)))
	}
	if summary.RunID != "" {
		b.WriteString(fmt.Sprintf("  Run ID:   %s\n", summary.RunID))
	}
	b.WriteString(fmt.Sprintf("  Nodes:    %d\n", len(summary.Snapshot.Nodes)))
	b.WriteString(fmt.Sprintf("  Edges:    %d\n", len(summary.Snapshot.Edges)))
	b.WriteString("\n")

	w.writeStatusSection(&b, summary)
	w.writeFailureSection(&b, summary)
	w.writeHostSection(&b, summary)
	if w.verbose {
		w.writeNodeSection(&b, summary)
	}

	return io.WriteString(w.output, b.String())
}

// summaryDurationUnit is the rounding applied to displayed durations.
const summaryDurationUnit = 10 * time.Millisecond

// writeStatusSection lists node counts per visited-state.
func (w *SimpleWriter) writeStatusSection(b *strings.Builder, summary *Summary) {
	b.WriteString("Status\n")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	counts := summary.StatusCounts()
	for _, status := range []graph.Status{
		graph.StatusFetched, graph.StatusFailed, graph.StatusInFlight, graph.StatusUnvisited,
	} {
		name := status.String()
		if counts[name] == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("  %-12s %d\n", heading(name)+":", counts[name]))
	}
	b.WriteString("\n")
}

// writeFailureSection lists failure kinds, most frequent first.
func (w *SimpleWriter) writeFailureSection(b *strings.Builder, summary *Summary) {
	counts := summary.FailureCounts()
	if len(counts) == 0 {
		return
	}

	kinds := sortedByCount(counts)

	b.WriteString("Failures\n")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, kind := range kinds {
		b.WriteString(fmt.Sprintf("  %-24s %d\n", heading(kind)+":", counts[kind]))
	}
	b.WriteString("\n")
}

// writeHostSection lists the largest hosts by node count.
func (w *SimpleWriter) writeHostSection(b *strings.Builder, summary *Summary) {
	hosts := summary.HostCounts()
	if len(hosts) == 0 {
		return
	}
	if w.topHosts > 0 && len(hosts) > w.topHosts {
		hosts = hosts[:w.topHosts]
	}

	b.WriteString("Hosts\n")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, hc := range hosts {
		b.WriteString(fmt.Sprintf("  %-40s %d\n", hc.Host, hc.Nodes))
	}
	b.WriteString("\n")
}

// writeNodeSection lists every node with its status and title.
func (w *SimpleWriter) writeNodeSection(b *strings.Builder, summary *Summary) {
	b.WriteString("Capsules\n")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, node := range summary.Snapshot.Nodes {
		line := fmt.Sprintf("  [%s] %s", node.Status, node.URL)
		if node.Status == graph.StatusFailed && node.FailureName != "" {
			line += " (" + node.FailureName + ")"
		}
		if node.Title != "" {
			line += " - " + node.Title
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
}
