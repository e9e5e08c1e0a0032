// Package graph holds the crawl's shared link graph: one node per
// canonical capsule URL and one directed edge per "links to" pair.
//
// The graph and the scheduler's seen set are the only state shared across
// concurrent fetch tasks. All mutation goes through the Graph API under a
// single mutex; fetch tasks never touch the graph directly, they hand
// outcomes to the scheduler which applies them.
//
// Snapshot produces a consistent, ordered copy for persistence and
// reporting. A reader of a snapshot can never observe a half-applied edge
// insertion.
package graph
