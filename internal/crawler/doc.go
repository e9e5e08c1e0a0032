// Package crawler drives a crawl run: it owns the frontier, the seen set,
// and the link graph, dispatches fetch tasks as throttle capacity allows,
// and folds their outcomes back into the graph.
//
// # Architecture
//
// The run loop is a single owner goroutine (an actor over the shared
// state): fetch tasks perform network I/O concurrently but never touch
// the graph or the frontier. They send an outcome over a channel and the
// owner applies it. This serializes every mutation without fine-grained
// locking and makes the at-most-once-enqueue invariant a plain map check.
//
// Recursive link-following is replaced by the explicit frontier queue
// driving an iterative dispatch loop, which keeps redirect-hop and
// max-page bounds trivial to enforce and the call stack flat no matter
// how deep a link chain runs.
//
// # Lifecycle
//
// A run moves from running to draining (budget exhausted or cancelled:
// in-flight fetches finish, nothing new dispatches) to stopped (frontier
// empty, nothing in flight). Cancellation is cooperative; fetches are
// never killed mid-I/O, they run into their own phase timeouts.
package crawler
