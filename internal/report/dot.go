package report

import (
	"fmt"
	"io"
	"net/url"
	"strings"
)

// DOTWriter outputs the link graph in Graphviz DOT format, ready to be
// piped into `dot -Tsvg` to render the crawled web as an image.
//
// Design decision: We emit DOT text instead of spawning graphviz
// ourselves because not every machine has it installed, and writing text
// keeps this package free of subprocess handling.
type DOTWriter struct {
	baseWriter
}

// NewDOTWriter creates a DOTWriter that outputs to the given writer.
func NewDOTWriter(output io.Writer) *DOTWriter {
	return &DOTWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the summary's graph as a DOT digraph. Nodes are labeled
// host+path and grouped by host so graphviz clusters capsules of one
// capsule server together.
func (w *DOTWriter) Write(summary *Summary) (int, error) {
	var b strings.Builder
	b.WriteString("digraph gemini {\n")

	index := make(map[string]int, len(summary.Snapshot.Nodes))
	for i, node := range summary.Snapshot.Nodes {
		index[node.URL] = i
		host, path := splitHostPath(node.URL)
		b.WriteString(fmt.Sprintf(
			"    %d [ label=%q group=%q fontname=\"monospace\" ]\n",
			i, host+path, host,
		))
	}
	for _, edge := range summary.Snapshot.Edges {
		src, ok := index[edge.Source]
		if !ok {
			continue
		}
		dst, ok := index[edge.Target]
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("    %d -> %d [ ]\n", src, dst))
	}
	b.WriteString("}\n")

	return io.WriteString(w.output, b.String())
}

// splitHostPath splits a canonical URL into its host and path parts for
// labeling. Unparseable URLs label themselves.
func splitHostPath(rawURL string) (host, path string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL, ""
	}
	return u.Host, u.Path
}
