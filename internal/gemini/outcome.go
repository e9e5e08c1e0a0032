package gemini

import (
	"net/url"
)

// OutcomeKind tags the three terminal results of a fetch.
type OutcomeKind int

// Outcome kinds.
const (
	// OutcomeFailure means the fetch failed; Err carries the reason.
	OutcomeFailure OutcomeKind = iota

	// OutcomeSuccess means a 2x response with a (possibly truncated) body.
	OutcomeSuccess

	// OutcomeRedirect means a 3x response; Target is the resolved
	// destination. No body was read.
	OutcomeRedirect
)

// Outcome is the complete result of one fetch. It is the only thing a
// fetch produces: the client writes nothing to shared state, the
// scheduler performs all graph mutation from outcomes.
type Outcome struct {
	// URL is the capsule the fetch was issued for.
	URL *url.URL

	// Kind tags which of the remaining fields are meaningful.
	Kind OutcomeKind

	// Header is the parsed response header. Zero for failures that
	// happened before a header was received.
	Header Header

	// MediaType is the parsed MIME type of a successful response,
	// without parameters (e.g. "text/gemini").
	MediaType string

	// Body is the decoded body of a successful response. Non-text
	// bodies are kept raw.
	Body string

	// Document is the parsed gemtext body. Nil for non-gemtext bodies.
	Document *Document

	// Links are the normalized outbound links discovered in the body,
	// deduplicated and in document order. Malformed or non-gemini link
	// lines are skipped, never fatal.
	Links []*url.URL

	// Truncated is set when the body hit the size cap. A truncated
	// fetch is still a success, just a partial one.
	Truncated bool

	// Target is the resolved redirect destination of an
	// OutcomeRedirect.
	Target *url.URL

	// Err is the classified failure of an OutcomeFailure.
	Err *FetchError
}

// Title returns the capsule's title for display: the first level-one
// heading of a gemtext body, or "" when there is none.
func (o *Outcome) Title() string {
	if o.Document == nil {
		return ""
	}
	return o.Document.Title()
}

// failure builds a failure outcome for u.
func failure(u *url.URL, kind FailureKind, err error) *Outcome {
	return &Outcome{
		URL:  u,
		Kind: OutcomeFailure,
		Err:  newFetchError(kind, err),
	}
}
