package gemini

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/text/encoding/htmlindex"
)

// Client default values. They mirror the crawl configuration defaults and
// exist so a zero-option client is usable in tests.
const (
	// DefaultConnectTimeout bounds the TCP connect phase. Gemini servers
	// are often small machines on home connections, so this is generous
	// compared to typical web defaults.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultHandshakeTimeout bounds the TLS handshake phase.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultReadTimeout bounds each read phase (header, then body)
	// independently. A slow connect should fail faster than a slow body
	// transfer, which is why this is separate from the connect timeout.
	DefaultReadTimeout = 30 * time.Second

	// DefaultMaxBodySize caps how much of a body is read. Bodies beyond
	// the cap are truncated and the outcome marked partial, not failed.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// maxHeaderLength bounds the response header line: two digit status,
	// space, meta up to maxMetaLength, CRLF, with slack for sloppy servers.
	maxHeaderLength = 2048
)

// Client performs single Gemini fetches. Each fetch walks the protocol's
// phases with an independent timeout per phase: connect, TLS handshake,
// request write, header read, body read.
//
// Design decision: We require no external connection object and dial per
// fetch because:
//  1. Gemini has no persistent connections: one request per connection
//  2. Per-fetch dialing keeps all per-fetch state task-local
//  3. The throttle, not a connection pool, bounds concurrency
//
// A Client is safe for concurrent use; it holds only immutable
// configuration after construction.
type Client struct {
	// connectTimeout bounds the TCP connect phase.
	connectTimeout time.Duration

	// handshakeTimeout bounds the TLS handshake phase.
	handshakeTimeout time.Duration

	// readTimeout bounds the header read and the body read, each.
	readTimeout time.Duration

	// maxBodySize caps body reads; beyond it the body is truncated.
	maxBodySize int64

	// tlsVerify enables full certificate verification. Self-signed
	// certificates are the norm in Geminispace, so this defaults to
	// false and accepting any certificate is a supported policy, not a
	// degraded mode.
	tlsVerify bool

	// dialer is the SOCKS5 proxy dialer, or nil for direct connections.
	dialer proxy.Dialer
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// WithConnectTimeout sets the TCP connect timeout.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.connectTimeout = d
		return nil
	}
}

// WithHandshakeTimeout sets the TLS handshake timeout.
func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.handshakeTimeout = d
		return nil
	}
}

// WithReadTimeout sets the timeout applied to the header read and to the
// body read, each independently.
func WithReadTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.readTimeout = d
		return nil
	}
}

// WithMaxBodySize caps how many body bytes are read before truncating.
func WithMaxBodySize(size int64) ClientOption {
	return func(c *Client) error {
		c.maxBodySize = size
		return nil
	}
}

// WithTLSVerify enables or disables certificate verification.
func WithTLSVerify(verify bool) ClientOption {
	return func(c *Client) error {
		c.tlsVerify = verify
		return nil
	}
}

// WithProxy routes all connections through a SOCKS5 proxy at the given
// "host:port" address. Useful for crawling capsules served as onion
// services through a local Tor daemon.
func WithProxy(address string) ClientOption {
	return func(c *Client) error {
		dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		c.dialer = dialer
		return nil
	}
}

// NewClient creates a Client with the given options applied over the
// defaults.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		connectTimeout:   DefaultConnectTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
		readTimeout:      DefaultReadTimeout,
		maxBodySize:      DefaultMaxBodySize,
		tlsVerify:        false,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Fetch performs one request for u and returns its outcome. The URL must
// already be normalized. Fetch never panics the run with an error return:
// every network or protocol problem is captured as a failure outcome so
// the scheduler can record it and move on.
func (c *Client) Fetch(ctx context.Context, u *url.URL) *Outcome {
	conn, err := c.dial(ctx, HostPort(u))
	if err != nil {
		if isTimeout(err) {
			return failure(u, FailureConnectTimeout, err)
		}
		return failure(u, FailureConnectRefused, err)
	}
	defer conn.Close() //nolint:errcheck // read side is done by then

	tlsConn, err := c.handshake(ctx, conn, u.Hostname())
	if err != nil {
		return failure(u, FailureHandshake, err)
	}

	// Request is a single line: the absolute URL followed by CRLF.
	if err := tlsConn.SetWriteDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return failure(u, FailureWrite, err)
	}
	if _, err := tlsConn.Write([]byte(u.String() + "\r\n")); err != nil {
		return failure(u, FailureWrite, err)
	}

	if err := tlsConn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return failure(u, FailureReadTimeout, err)
	}
	br := bufio.NewReaderSize(tlsConn, maxHeaderLength)
	header, err := c.readHeader(br)
	if err != nil {
		if isTimeout(err) {
			return failure(u, FailureReadTimeout, err)
		}
		return failure(u, FailureProtocol, err)
	}

	switch header.Class() {
	case ClassSuccess:
		return c.readBody(u, header, tlsConn, br)
	case ClassRedirect:
		return c.redirect(u, header)
	case ClassInput:
		return statusFailure(u, header, FailureInputRequired)
	case ClassTemporaryFailure:
		return statusFailure(u, header, FailureTemporary)
	case ClassPermanentFailure:
		return statusFailure(u, header, FailurePermanent)
	case ClassCertRequired:
		return statusFailure(u, header, FailureCertRequired)
	default:
		return failure(u, FailureProtocol, fmt.Errorf("unhandled status %d", header.Status))
	}
}

// dial opens the TCP connection, through the SOCKS5 proxy when one is
// configured, bounded by the connect timeout.
func (c *Client) dial(ctx context.Context, address string) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	if c.dialer != nil {
		// x/net/proxy dialers created by SOCKS5 also implement
		// ContextDialer; the interface just doesn't promise it.
		if cd, ok := c.dialer.(proxy.ContextDialer); ok {
			return cd.DialContext(dialCtx, "tcp", address)
		}
		return c.dialer.Dial("tcp", address)
	}

	var d net.Dialer
	return d.DialContext(dialCtx, "tcp", address)
}

// handshake performs the TLS handshake bounded by the handshake timeout.
func (c *Client) handshake(ctx context.Context, conn net.Conn, serverName string) (*tls.Conn, error) {
	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: !c.tlsVerify, //nolint:gosec // accept-any is a supported trust mode
		MinVersion:         tls.VersionTLS12,
	})

	hsCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// readHeader reads and parses the response header line. ReadSlice fails
// with ErrBufferFull if no newline shows up within the buffer, which is
// how oversized headers become protocol errors instead of memory growth.
func (c *Client) readHeader(br *bufio.Reader) (Header, error) {
	line, err := br.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return Header{}, fmt.Errorf("header exceeds %d bytes", maxHeaderLength)
		}
		return Header{}, err
	}
	return ParseHeader(strings.TrimRight(string(line), "\r\n"))
}

// readBody reads a success response body, decodes it, and extracts links.
func (c *Client) readBody(u *url.URL, header Header, conn net.Conn, br *bufio.Reader) *Outcome {
	// The body gets its own read deadline: a server that sent its header
	// promptly may still trickle the body forever.
	if err := conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return failure(u, FailureReadTimeout, err)
	}

	raw, err := io.ReadAll(io.LimitReader(br, c.maxBodySize+1))
	if err != nil {
		if isTimeout(err) {
			return failure(u, FailureReadTimeout, err)
		}
		return failure(u, FailureProtocol, err)
	}

	truncated := false
	if int64(len(raw)) > c.maxBodySize {
		raw = raw[:c.maxBodySize]
		truncated = true
	}

	mediaType, body := decodeBody(header.Meta, raw)
	outcome := &Outcome{
		URL:       u,
		Kind:      OutcomeSuccess,
		Header:    header,
		MediaType: mediaType,
		Body:      body,
		Truncated: truncated,
	}

	if mediaType == "text/gemini" {
		outcome.Document = ParseDocument(body)
		outcome.Links = resolveLinks(u, outcome.Document.LinkRefs())
	}
	return outcome
}

// redirect resolves a 3x target against the current URL. The scheduler
// bounds chain length; the client only hands back one resolved hop.
func (c *Client) redirect(u *url.URL, header Header) *Outcome {
	if header.Meta == "" {
		return failure(u, FailureProtocol, errors.New("redirect without target"))
	}
	target, err := Normalize(u, header.Meta)
	if err != nil {
		kind := FailureMalformedURL
		if errors.Is(err, ErrUnsupportedScheme) {
			kind = FailureUnsupportedScheme
		}
		out := failure(u, kind, err)
		out.Header = header
		return out
	}
	return &Outcome{
		URL:    u,
		Kind:   OutcomeRedirect,
		Header: header,
		Target: target,
	}
}

// statusFailure builds a failure outcome for a cleanly delivered non-2x,
// non-3x status. There is no underlying error; the server simply said no.
func statusFailure(u *url.URL, header Header, kind FailureKind) *Outcome {
	out := failure(u, kind, nil)
	out.Header = header
	if header.Meta != "" {
		out.Err.Err = errors.New(header.Meta)
	}
	return out
}

// decodeBody parses the meta MIME type and decodes text bodies to UTF-8
// using the charset parameter. An empty meta means "text/gemini" in
// UTF-8 per the protocol. Undecodable bodies are kept raw rather than
// failing the fetch.
func decodeBody(meta string, raw []byte) (mediaType, body string) {
	if meta == "" {
		return "text/gemini", string(raw)
	}

	mediaType, params, err := mime.ParseMediaType(meta)
	if err != nil {
		// Sloppy meta from a real server: assume gemtext and move on.
		return "text/gemini", string(raw)
	}

	if !strings.HasPrefix(mediaType, "text/") {
		return mediaType, string(raw)
	}

	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "us-ascii" {
		return mediaType, string(raw)
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return mediaType, string(raw)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return mediaType, string(raw)
	}
	return mediaType, string(decoded)
}

// resolveLinks normalizes raw link references against the capsule URL,
// skipping malformed and cross-protocol ones, and deduplicates while
// preserving document order.
func resolveLinks(base *url.URL, refs []string) []*url.URL {
	seen := make(map[string]bool, len(refs))
	links := make([]*url.URL, 0, len(refs))
	for _, ref := range refs {
		target, err := Normalize(base, ref)
		if err != nil {
			continue
		}
		key := target.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		links = append(links, target)
	}
	return links
}

// isTimeout reports whether err is a deadline expiry, either from a net
// deadline or from a context-bounded phase.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
