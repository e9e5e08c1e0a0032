package gemini

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// Scheme is the only URL scheme the crawler follows.
const Scheme = "gemini"

// DefaultPort is the well-known Gemini port. URLs carrying it explicitly
// are normalized to omit it so both spellings map to the same node.
const DefaultPort = "1965"

// Normalize resolves candidate against base and returns the canonical form
// used as a node identity everywhere in the crawler.
//
// Canonicalization performs, in order:
//   - relative reference resolution against base (base may be nil for
//     absolute candidates such as seed URLs)
//   - fragment removal (a fragment never changes the fetched capsule)
//   - userinfo removal (Gemini URLs carry no credentials)
//   - scheme and host lowercasing, with the host mapped through IDNA so
//     internationalized hostnames collapse to their punycode form
//   - removal of an explicit default port
//   - empty path normalized to "/"
//
// Normalize is pure and deterministic, and idempotent: feeding its output
// back in yields the same URL. The frontier's at-most-once-enqueue
// invariant depends on both properties.
func Normalize(base *url.URL, candidate string) (*url.URL, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrMalformedURL)
	}

	ref, err := url.Parse(candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedURL, candidate, err)
	}

	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	}

	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q: relative URL without base", ErrMalformedURL, candidate)
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	u.Scheme = Scheme

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: %q: missing host", ErrMalformedURL, candidate)
	}

	// IDNA-map the host so "Café.example" and "xn--caf-dma.example" are
	// the same node. Lookup profile rejects hosts that could never
	// resolve, which is exactly what we want for deduplication keys.
	// IPv6 literals are kept as-is; IDNA does not apply to them.
	mapped := strings.ToLower(host)
	if !strings.Contains(host, ":") {
		mapped, err = idna.Lookup.ToASCII(strings.ToLower(host))
		if err != nil {
			return nil, fmt.Errorf("%w: host %q: %v", ErrMalformedURL, host, err)
		}
	} else {
		mapped = "[" + mapped + "]"
	}

	port := u.Port()
	if port == "" || port == DefaultPort {
		u.Host = mapped
	} else {
		u.Host = mapped + ":" + port
	}

	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

// HostPort returns the dial address for a normalized URL, filling in the
// default Gemini port when the URL does not carry one.
func HostPort(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = DefaultPort
	}
	return u.Hostname() + ":" + port
}
