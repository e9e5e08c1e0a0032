// Package gemini implements the Gemini protocol client side used by the
// crawler: URL normalization, the request/response exchange, and parsing
// of text/gemini ("gemtext") documents.
//
// # Architecture
//
//   - Normalize: canonicalizes URLs so the crawler can deduplicate them
//   - Client: drives a single fetch through its phases (connect, TLS
//     handshake, request, header, body) with an independent timeout per phase
//   - Document: a line-typed representation of a gemtext body
//
// Design decision: We implement the protocol by hand rather than using a
// third-party Gemini library because:
//  1. The protocol is a single request line and a single response header
//  2. The crawler needs per-phase timeouts and failure classification that
//     general-purpose clients do not expose
//  3. Reduces external dependencies for the one piece we must fully control
//
// # Outcomes
//
// Client.Fetch never returns a Go error for network-level problems. Every
// fetch produces an Outcome: a success with body and discovered links, a
// redirect with its resolved target, or a failure with a classified kind.
// The scheduler owns all shared state; this package touches none of it.
package gemini
