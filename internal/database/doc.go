// Package database persists crawl results in SQLite.
//
// Each crawl run is stored as a row in crawl_runs plus its graph
// snapshot in the nodes and edges tables, keyed by the run's UUID. Runs
// are append-only: a new crawl never rewrites an old one, which is what
// makes historical comparison of the same capsule space possible.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of
// other databases because:
//  1. No external dependencies - the database is a single file
//  2. CGO-free implementation allows easy cross-compilation
//  3. Sufficient performance for our use case
//  4. WAL mode provides good concurrent read performance
package database
