// Package report renders crawl results for humans and tools.
//
// Every writer consumes the same input, a Summary wrapping a read-only
// graph snapshot, and writes one format:
//
//   - SimpleWriter: human-readable text for the terminal
//   - JSONWriter: the full snapshot for programmatic processing
//   - MarkdownWriter: GitHub-flavored Markdown with tables
//   - DOTWriter: Graphviz DOT for rendering the link graph as an image
//
// Writers never mutate the snapshot; reporting is strictly a reader.
package report
