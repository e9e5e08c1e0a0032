package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/cacharle/gemini-crawler/internal/graph"
)

// ErrRunNotFound is returned when a run ID does not exist in the database.
var ErrRunNotFound = errors.New("crawl run not found")

// GraphDB stores crawl runs and their graph snapshots in SQLite.
type GraphDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures GraphDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent
	// performance. Recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a GraphDB at the specified directory.
// If CreateIfNotExists is false and the database doesn't exist, an error
// is returned; export-only commands use this so they never create an
// empty database by accident.
func Open(dbDir string, opts Options) (*GraphDB, error) {
	dbPath := filepath.Join(dbDir, "gemini-crawler.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating new
	// files, mode=rwc allows creation.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports only one writer; a larger pool just queues inside
	// the driver.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	gdb := &GraphDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := gdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return gdb, nil
}

// Close closes the database connection.
func (gdb *GraphDB) Close() error {
	return gdb.db.Close()
}

// Path returns the path of the underlying database file.
func (gdb *GraphDB) Path() string {
	return gdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (gdb *GraphDB) createTables() error {
	schema := `
	-- One row per crawl run
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		seeds TEXT NOT NULL,
		node_count INTEGER NOT NULL,
		edge_count INTEGER NOT NULL,
		fetched INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);

	-- Graph nodes, one row per capsule per run
	CREATE TABLE IF NOT EXISTS nodes (
		run_id TEXT NOT NULL REFERENCES crawl_runs(id),
		url TEXT NOT NULL,
		status TEXT NOT NULL,
		failure TEXT,
		title TEXT,
		media_type TEXT,
		body_size INTEGER NOT NULL DEFAULT 0,
		truncated INTEGER NOT NULL DEFAULT 0,
		final_url TEXT,
		fetched_at DATETIME,
		PRIMARY KEY (run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_status ON nodes(run_id, status);

	-- Graph edges, one row per directed link per run
	CREATE TABLE IF NOT EXISTS edges (
		run_id TEXT NOT NULL REFERENCES crawl_runs(id),
		source_url TEXT NOT NULL,
		target_url TEXT NOT NULL,
		PRIMARY KEY (run_id, source_url, target_url)
	);
	`
	_, err := gdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunRecord describes one stored crawl run.
type RunRecord struct {
	// ID is the run's UUID.
	ID string

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time

	// Seeds are the URLs the run started from.
	Seeds []string

	// NodeCount and EdgeCount are the stored graph's sizes.
	NodeCount int
	EdgeCount int

	// Fetched and Failed count nodes by final status.
	Fetched int
	Failed  int
}

// SaveSnapshot stores a finished run and its graph snapshot in a single
// transaction and returns the new run's UUID. A reader never observes a
// run without its nodes and edges.
func (gdb *GraphDB) SaveSnapshot(ctx context.Context, record RunRecord, snap *graph.Snapshot) (string, error) {
	runID := uuid.NewString()

	seedsJSON, err := json.Marshal(record.Seeds)
	if err != nil {
		return "", fmt.Errorf("failed to serialize seeds: %w", err)
	}

	fetched, failed := 0, 0
	for _, node := range snap.Nodes {
		switch node.Status {
		case graph.StatusFetched:
			fetched++
		case graph.StatusFailed:
			failed++
		}
	}

	tx, err := gdb.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (id, started_at, finished_at, seeds, node_count, edge_count, fetched, failed)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		record.StartedAt.UTC().Format(time.RFC3339Nano),
		record.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(seedsJSON),
		len(snap.Nodes),
		len(snap.Edges),
		fetched,
		failed,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert crawl run: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO nodes (run_id, url, status, failure, title, media_type, body_size, truncated, final_url, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer nodeStmt.Close() //nolint:errcheck // read-only cleanup

	for _, node := range snap.Nodes {
		var fetchedAt any
		if !node.FetchedAt.IsZero() {
			fetchedAt = node.FetchedAt.UTC().Format(time.RFC3339Nano)
		}
		_, err = nodeStmt.ExecContext(ctx,
			runID,
			node.URL,
			node.Status.String(),
			node.FailureName,
			node.Title,
			node.MediaType,
			node.BodySize,
			node.Truncated,
			node.FinalURL,
			fetchedAt,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert node %s: %w", node.URL, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO edges (run_id, source_url, target_url) VALUES (?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer edgeStmt.Close() //nolint:errcheck // read-only cleanup

	for _, edge := range snap.Edges {
		if _, err := edgeStmt.ExecContext(ctx, runID, edge.Source, edge.Target); err != nil {
			return "", fmt.Errorf("failed to insert edge %s -> %s: %w", edge.Source, edge.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return runID, nil
}

// LoadSnapshot loads the graph snapshot of a run. An empty runID loads
// the most recent run.
func (gdb *GraphDB) LoadSnapshot(ctx context.Context, runID string) (*graph.Snapshot, error) {
	if runID == "" {
		latest, err := gdb.latestRunID(ctx)
		if err != nil {
			return nil, err
		}
		runID = latest
	} else if _, err := gdb.runExists(ctx, runID); err != nil {
		return nil, err
	}

	snap := &graph.Snapshot{}

	rows, err := gdb.db.QueryContext(ctx, `
	SELECT url, status, failure, title, media_type, body_size, truncated, final_url, fetched_at
	FROM nodes WHERE run_id = ? ORDER BY url`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cleanup

	for rows.Next() {
		var node graph.Node
		var failure, title, mediaType, finalURL sql.NullString
		var fetchedAt sql.NullString
		if err := rows.Scan(
			&node.URL,
			&node.StatusName,
			&failure,
			&title,
			&mediaType,
			&node.BodySize,
			&node.Truncated,
			&finalURL,
			&fetchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		node.Status = graph.ParseStatus(node.StatusName)
		node.FailureName = failure.String
		node.Title = title.String
		node.MediaType = mediaType.String
		node.FinalURL = finalURL.String
		if fetchedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, fetchedAt.String); err == nil {
				node.FetchedAt = t
			}
		}
		snap.Nodes = append(snap.Nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read nodes: %w", err)
	}

	edgeRows, err := gdb.db.QueryContext(ctx, `
	SELECT source_url, target_url FROM edges
	WHERE run_id = ? ORDER BY source_url, target_url`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer edgeRows.Close() //nolint:errcheck // read-only cleanup

	for edgeRows.Next() {
		var edge graph.Edge
		if err := edgeRows.Scan(&edge.Source, &edge.Target); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		snap.Edges = append(snap.Edges, edge)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read edges: %w", err)
	}

	return snap, nil
}

// ListRuns returns every stored run, most recent first.
func (gdb *GraphDB) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := gdb.db.QueryContext(ctx, `
	SELECT id, started_at, finished_at, seeds, node_count, edge_count, fetched, failed
	FROM crawl_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cleanup

	var records []RunRecord
	for rows.Next() {
		var record RunRecord
		var startedAt, finishedAt, seedsJSON string
		if err := rows.Scan(
			&record.ID,
			&startedAt,
			&finishedAt,
			&seedsJSON,
			&record.NodeCount,
			&record.EdgeCount,
			&record.Fetched,
			&record.Failed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			record.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
			record.FinishedAt = t
		}
		if seedsJSON != "" {
			if err := json.Unmarshal([]byte(seedsJSON), &record.Seeds); err != nil {
				return nil, fmt.Errorf("failed to parse seeds: %w", err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return records, nil
}

// Run returns the stored record of a single run. An empty runID returns
// the most recent run.
func (gdb *GraphDB) Run(ctx context.Context, runID string) (RunRecord, error) {
	if runID == "" {
		latest, err := gdb.latestRunID(ctx)
		if err != nil {
			return RunRecord{}, err
		}
		runID = latest
	}

	var record RunRecord
	var startedAt, finishedAt, seedsJSON string
	err := gdb.db.QueryRowContext(ctx, `
	SELECT id, started_at, finished_at, seeds, node_count, edge_count, fetched, failed
	FROM crawl_runs WHERE id = ?`, runID).Scan(
		&record.ID,
		&startedAt,
		&finishedAt,
		&seedsJSON,
		&record.NodeCount,
		&record.EdgeCount,
		&record.Fetched,
		&record.Failed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to query run: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		record.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
		record.FinishedAt = t
	}
	if seedsJSON != "" {
		if err := json.Unmarshal([]byte(seedsJSON), &record.Seeds); err != nil {
			return RunRecord{}, fmt.Errorf("failed to parse seeds: %w", err)
		}
	}
	return record, nil
}

// latestRunID returns the ID of the most recently started run.
func (gdb *GraphDB) latestRunID(ctx context.Context) (string, error) {
	var runID string
	err := gdb.db.QueryRowContext(ctx,
		`SELECT id FROM crawl_runs ORDER BY started_at DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRunNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find latest run: %w", err)
	}
	return runID, nil
}

// runExists verifies a run ID is present.
func (gdb *GraphDB) runExists(ctx context.Context, runID string) (bool, error) {
	var one int
	err := gdb.db.QueryRowContext(ctx,
		`SELECT 1 FROM crawl_runs WHERE id = ?`, runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check run: %w", err)
	}
	return true, nil
}
