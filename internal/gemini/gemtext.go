package gemini

import (
	"strings"
)

// LineType identifies the kind of a single gemtext line.
type LineType int

// Gemtext line types. Anything that is not a recognized prefix is plain
// text, including every line inside a preformatted block.
const (
	// LineText is a plain text line.
	LineText LineType = iota

	// LineLink is a "=>" line carrying a URL reference and optional label.
	LineLink

	// LineHeading1, LineHeading2, LineHeading3 are "#", "##", "###" lines.
	LineHeading1
	LineHeading2
	LineHeading3

	// LineListItem is a "* " bullet line.
	LineListItem

	// LineQuote is a ">" quotation line.
	LineQuote

	// LinePreToggle is a "```" fence toggling preformatted mode.
	LinePreToggle

	// LinePre is a raw line inside a preformatted block.
	LinePre
)

// Line is one parsed gemtext line.
type Line struct {
	// Type is the line's kind.
	Type LineType

	// Text is the line content with the type prefix stripped. For
	// LineLink it is the label (possibly empty), for LinePre the raw
	// line, for LinePreToggle the alt text after the fence.
	Text string

	// Ref is the raw link reference of a LineLink, before resolution.
	// Empty for every other type.
	Ref string
}

// Document is a gemtext body parsed into typed lines, preserving order.
type Document struct {
	// Lines holds every line of the body in document order.
	Lines []Line
}

// ParseDocument parses a text/gemini body. Parsing is forgiving by
// design: there is no such thing as a malformed gemtext document, only
// lines that fall back to plain text. This mirrors how Gemini clients
// behave and keeps one bad capsule from failing a fetch.
func ParseDocument(body string) *Document {
	doc := &Document{}
	inPre := false

	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimRight(raw, "\r")

		if strings.HasPrefix(line, "```") {
			inPre = !inPre
			doc.Lines = append(doc.Lines, Line{
				Type: LinePreToggle,
				Text: strings.TrimSpace(line[3:]),
			})
			continue
		}
		if inPre {
			doc.Lines = append(doc.Lines, Line{Type: LinePre, Text: line})
			continue
		}

		switch {
		case strings.HasPrefix(line, "=>"):
			ref, label := splitLinkLine(line[2:])
			if ref == "" {
				// A "=>" with no reference is treated as text.
				doc.Lines = append(doc.Lines, Line{Type: LineText, Text: line})
				continue
			}
			doc.Lines = append(doc.Lines, Line{Type: LineLink, Ref: ref, Text: label})
		case strings.HasPrefix(line, "###"):
			doc.Lines = append(doc.Lines, Line{Type: LineHeading3, Text: strings.TrimSpace(line[3:])})
		case strings.HasPrefix(line, "##"):
			doc.Lines = append(doc.Lines, Line{Type: LineHeading2, Text: strings.TrimSpace(line[2:])})
		case strings.HasPrefix(line, "#"):
			doc.Lines = append(doc.Lines, Line{Type: LineHeading1, Text: strings.TrimSpace(line[1:])})
		case strings.HasPrefix(line, "* "):
			doc.Lines = append(doc.Lines, Line{Type: LineListItem, Text: strings.TrimSpace(line[2:])})
		case strings.HasPrefix(line, ">"):
			doc.Lines = append(doc.Lines, Line{Type: LineQuote, Text: strings.TrimSpace(line[1:])})
		default:
			doc.Lines = append(doc.Lines, Line{Type: LineText, Text: line})
		}
	}
	return doc
}

// splitLinkLine splits the remainder of a "=>" line into its reference
// and label. Whitespace between the two may be any mix of spaces and
// tabs, so tabs are folded into spaces before splitting.
func splitLinkLine(rest string) (ref, label string) {
	rest = strings.TrimSpace(strings.ReplaceAll(rest, "\t", " "))
	ref, label, found := strings.Cut(rest, " ")
	if !found {
		return rest, ""
	}
	return ref, strings.TrimSpace(label)
}

// LinkRefs returns the raw link references of the document in order,
// unresolved. Callers resolve them against the capsule URL.
func (d *Document) LinkRefs() []string {
	refs := make([]string, 0, len(d.Lines))
	for _, line := range d.Lines {
		if line.Type == LineLink {
			refs = append(refs, line.Ref)
		}
	}
	return refs
}

// Title returns the first level-one heading, or "" if the document has
// none. Used as the node title in reports.
func (d *Document) Title() string {
	for _, line := range d.Lines {
		if line.Type == LineHeading1 {
			return line.Text
		}
	}
	return ""
}

// String renders the document back to gemtext. The rendering is
// normalized (single spaces after prefixes) rather than byte-identical
// to the input.
func (d *Document) String() string {
	var b strings.Builder
	for _, line := range d.Lines {
		switch line.Type {
		case LineLink:
			b.WriteString("=> " + line.Ref)
			if line.Text != "" {
				b.WriteString(" " + line.Text)
			}
		case LineHeading1:
			b.WriteString("# " + line.Text)
		case LineHeading2:
			b.WriteString("## " + line.Text)
		case LineHeading3:
			b.WriteString("### " + line.Text)
		case LineListItem:
			b.WriteString("* " + line.Text)
		case LineQuote:
			b.WriteString("> " + line.Text)
		case LinePreToggle:
			b.WriteString("```" + line.Text)
		default:
			b.WriteString(line.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}
