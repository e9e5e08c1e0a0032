// Package throttle is the admission-control gate in front of every fetch.
//
// Two independent caps apply: a global limit on concurrently in-flight
// fetches and, per remote host, a concurrency limit plus a minimum
// interval between requests. A fetch task acquires a permit before any
// network I/O and releases it exactly once on every exit path.
//
// Acquisition order matters for fairness: the per-host slot and interval
// are waited on before the global semaphore. A host with a long queue
// therefore waits in its own line and cannot occupy global capacity while
// doing so, so one slow host never starves the others.
package throttle
