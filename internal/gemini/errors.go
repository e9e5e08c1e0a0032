package gemini

import (
	"errors"
	"fmt"
)

// URL normalization errors.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances at each call site. This allows callers to
// use errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrUnsupportedScheme is returned when a URL uses a scheme other than
	// "gemini". The crawler never follows http, gopher, mailto, or other
	// cross-protocol links.
	ErrUnsupportedScheme = errors.New("unsupported scheme: only gemini:// URLs are crawled")

	// ErrMalformedURL is returned when a URL cannot be parsed or lacks a
	// host. Malformed link lines are skipped by the crawler, not fatal.
	ErrMalformedURL = errors.New("malformed URL")
)

// FailureKind classifies why a fetch failed.
// The kind is recorded on the graph node so a finished crawl is fully
// auditable: every failed capsule carries the reason it failed.
type FailureKind int

// Failure kinds, one per distinguishable failure path of a fetch.
const (
	// FailureUnknown is the zero value and should not normally appear.
	FailureUnknown FailureKind = iota

	// FailureConnectTimeout means the TCP connection did not complete
	// within the connect timeout. Eligible for retry.
	FailureConnectTimeout

	// FailureConnectRefused means the host actively refused the
	// connection or was unreachable.
	FailureConnectRefused

	// FailureHandshake means the TLS handshake failed or timed out.
	FailureHandshake

	// FailureWrite means the request line could not be written.
	FailureWrite

	// FailureReadTimeout means the header or body was not received
	// within the read timeout. Eligible for retry.
	FailureReadTimeout

	// FailureProtocol means the response header was malformed.
	FailureProtocol

	// FailureTooManyRedirects means a redirect chain exceeded the
	// configured hop limit. Produced by the scheduler, not the client.
	FailureTooManyRedirects

	// FailureUnsupportedScheme means a redirect target used a scheme
	// other than gemini.
	FailureUnsupportedScheme

	// FailureMalformedURL means a redirect target could not be parsed.
	FailureMalformedURL

	// FailureInputRequired means the server answered with a 1x status.
	// An unattended crawler cannot supply input, so this is terminal.
	FailureInputRequired

	// FailureTemporary means the server answered with a 4x status.
	FailureTemporary

	// FailurePermanent means the server answered with a 5x status.
	FailurePermanent

	// FailureCertRequired means the server answered with a 6x status
	// requesting a client certificate. The crawler carries none.
	FailureCertRequired
)

// failureKindNames maps kinds to their stable string form. The strings are
// persisted in the database, so changing them breaks old snapshots.
var failureKindNames = map[FailureKind]string{
	FailureUnknown:           "unknown",
	FailureConnectTimeout:    "connect-timeout",
	FailureConnectRefused:    "connect-refused",
	FailureHandshake:         "handshake",
	FailureWrite:             "write",
	FailureReadTimeout:       "read-timeout",
	FailureProtocol:          "protocol",
	FailureTooManyRedirects:  "too-many-redirects",
	FailureUnsupportedScheme: "unsupported-scheme",
	FailureMalformedURL:      "malformed-url",
	FailureInputRequired:     "input-required",
	FailureTemporary:         "temporary-failure",
	FailurePermanent:         "permanent-failure",
	FailureCertRequired:      "certificate-required",
}

// String returns the stable string form of the failure kind.
func (k FailureKind) String() string {
	if name, ok := failureKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseFailureKind converts a stable string form back to a FailureKind.
// Unrecognized strings map to FailureUnknown; loading an old snapshot
// must never fail because of a kind added or removed since it was saved.
func ParseFailureKind(s string) FailureKind {
	for kind, name := range failureKindNames {
		if name == s {
			return kind
		}
	}
	return FailureUnknown
}

// Transient reports whether a failure of this kind may succeed on retry.
// Only network timeouts qualify: refused connections, protocol errors,
// and status-level failures are considered stable for the rest of the run.
func (k FailureKind) Transient() bool {
	return k == FailureConnectTimeout || k == FailureReadTimeout
}

// FetchError pairs a failure kind with the underlying error, if any.
// It satisfies the error interface and unwraps to the cause so callers
// can use errors.Is/errors.As on the original network error.
type FetchError struct {
	// Kind is the classified failure reason.
	Kind FailureKind

	// Err is the underlying error. May be nil for status-level failures
	// where the server answered cleanly (e.g. a 51 not found).
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// newFetchError builds a FetchError from a kind and cause.
func newFetchError(kind FailureKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}
