package report

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
)

// MarkdownWriter outputs reports in Markdown format, designed for
// documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent
// markdown generation: type-safe tables and headers beat hand-rolled
// string concatenation for anything beyond a paragraph.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given
// writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeStatuses(md, summary)
	w.writeFailures(md, summary)
	w.writeHosts(md, summary)

	return len(md.String()), md.Build()
}

// writeHeader writes the report title and the run's framing table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *Summary) {
	md.H1("Gemini Crawl Report")
	md.PlainText("")

	rows := [][]string{
		{"Seeds", "`" + strings.Join(summary.Seeds, "`, `") + "`"},
		{"Nodes", strconv.Itoa(len(summary.Snapshot.Nodes))},
		{"Edges", strconv.Itoa(len(summary.Snapshot.Edges))},
	}
	if !summary.StartedAt.IsZero() {
		rows = append(rows,
			[]string{"Started", summary.StartedAt.Format("2006-01-02 15:04:05 MST")},
			[]string{"Duration", summary.Duration().Round(summaryDurationUnit).String()},
		)
	}
	if summary.RunID != "" {
		rows = append(rows, []string{"Run ID", "`" + summary.RunID + "`"})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeStatuses writes the node-count-per-status table.
func (w *MarkdownWriter) writeStatuses(md *markdown.Markdown, summary *Summary) {
	md.H2("Status")
	counts := summary.StatusCounts()

	var rows [][]string
	for _, name := range []string{"fetched", "failed", "in-flight", "unvisited"} {
		if counts[name] == 0 {
			continue
		}
		rows = append(rows, []string{heading(name), strconv.Itoa(counts[name])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Capsules"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFailures writes the failure-kind table, if anything failed.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, summary *Summary) {
	counts := summary.FailureCounts()
	if len(counts) == 0 {
		return
	}

	md.H2("Failures")
	kinds := sortedByCount(counts)
	rows := make([][]string, 0, len(kinds))
	for _, kind := range kinds {
		rows = append(rows, []string{heading(kind), strconv.Itoa(counts[kind])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Kind", "Capsules"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeHosts writes the per-host node counts.
func (w *MarkdownWriter) writeHosts(md *markdown.Markdown, summary *Summary) {
	hosts := summary.HostCounts()
	if len(hosts) == 0 {
		return
	}

	md.H2("Hosts")
	rows := make([][]string, 0, len(hosts))
	for _, hc := range hosts {
		rows = append(rows, []string{"`" + hc.Host + "`", strconv.Itoa(hc.Nodes)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Host", "Capsules"},
		Rows:   rows,
	})
}

// sortedByCount orders map keys by descending count, name ascending for
// ties, so tables render deterministically.
func sortedByCount(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
