package gemini

import (
	"fmt"
	"strconv"
	"strings"
)

// maxMetaLength is the protocol's limit on the meta portion of a response
// header. Servers sending more are misbehaving and we refuse to parse it.
const maxMetaLength = 1024

// StatusClass groups the two-digit Gemini status codes by their first
// digit, which is the only part the crawler dispatches on.
type StatusClass int

// Status classes in protocol order.
const (
	// ClassInput (1x) asks for user input. An unattended crawler treats
	// this as a terminal failure.
	ClassInput StatusClass = 1

	// ClassSuccess (2x) carries a body; meta is the body's MIME type.
	ClassSuccess StatusClass = 2

	// ClassRedirect (3x) carries no body; meta is the redirect target.
	ClassRedirect StatusClass = 3

	// ClassTemporaryFailure (4x) carries no body.
	ClassTemporaryFailure StatusClass = 4

	// ClassPermanentFailure (5x) carries no body.
	ClassPermanentFailure StatusClass = 5

	// ClassCertRequired (6x) requests a client certificate.
	ClassCertRequired StatusClass = 6
)

// Header is a parsed Gemini response header line.
type Header struct {
	// Status is the full two-digit status code (e.g. 20, 31, 51).
	Status int

	// Meta is the status-dependent rest of the line: a MIME type for 2x,
	// a target reference for 3x, a human-readable message otherwise.
	Meta string
}

// Class returns the status class of the header.
func (h Header) Class() StatusClass {
	return StatusClass(h.Status / 10)
}

// ParseHeader parses a response header line with the trailing CRLF already
// removed. The wire format is "<STATUS><SPACE><META>"; a lone status with
// no meta is tolerated since several servers in the wild send it.
func ParseHeader(line string) (Header, error) {
	code, meta, found := strings.Cut(line, " ")
	if !found {
		code = strings.TrimRight(line, "\t ")
		meta = ""
	}

	if len(code) != 2 {
		return Header{}, fmt.Errorf("status code must be two digits, got %q", code)
	}
	status, err := strconv.Atoi(code)
	if err != nil {
		return Header{}, fmt.Errorf("invalid status code %q: %w", code, err)
	}
	if status < 10 || status > 69 {
		return Header{}, fmt.Errorf("status code %d out of range", status)
	}

	meta = strings.TrimSpace(meta)
	if len(meta) > maxMetaLength {
		return Header{}, fmt.Errorf("meta exceeds %d bytes", maxMetaLength)
	}
	return Header{Status: status, Meta: meta}, nil
}
