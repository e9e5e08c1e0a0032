package graph

import (
	"sort"
	"sync"
	"time"

	"github.com/cacharle/gemini-crawler/internal/gemini"
)

// Status is the visited-state of a node. A node only ever moves forward:
// unvisited to in-flight to fetched or failed, driven by the scheduler.
type Status int

// Node statuses.
const (
	// StatusUnvisited means the capsule is known only as a link target.
	StatusUnvisited Status = iota

	// StatusInFlight means a fetch for the capsule has been dispatched.
	StatusInFlight

	// StatusFetched means the capsule was fetched successfully.
	StatusFetched

	// StatusFailed means the fetch failed; the node records why.
	StatusFailed
)

// statusNames maps statuses to their stable string form used in the
// database and in reports.
var statusNames = map[Status]string{
	StatusUnvisited: "unvisited",
	StatusInFlight:  "in-flight",
	StatusFetched:   "fetched",
	StatusFailed:    "failed",
}

// String returns the stable string form of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unvisited"
}

// ParseStatus converts a stable string form back to a Status.
// Unrecognized strings map to StatusUnvisited.
func ParseStatus(s string) Status {
	for status, name := range statusNames {
		if name == s {
			return status
		}
	}
	return StatusUnvisited
}

// Node is one capsule in the graph, identified by its canonical URL.
type Node struct {
	// URL is the canonical URL, the node's identity.
	URL string `json:"url"`

	// Status is the node's visited-state.
	Status Status `json:"-"`

	// StatusName is the stable string form of Status, used for
	// serialization so snapshots stay readable and stable.
	StatusName string `json:"status"`

	// Failure is why the fetch failed. Only meaningful for StatusFailed.
	Failure gemini.FailureKind `json:"-"`

	// FailureName is the stable string form of Failure.
	FailureName string `json:"failure,omitempty"`

	// FetchedAt is when the last fetch attempt finished.
	FetchedAt time.Time `json:"fetched_at,omitempty"`

	// Title is the capsule's first level-one heading, if any.
	Title string `json:"title,omitempty"`

	// MediaType is the MIME type of the fetched body.
	MediaType string `json:"media_type,omitempty"`

	// BodySize is how many body bytes were read.
	BodySize int64 `json:"body_size,omitempty"`

	// Truncated is set when the body hit the size cap.
	Truncated bool `json:"truncated,omitempty"`

	// FinalURL is where a redirect chain ended, when it differs from the
	// node URL. Redirect hops never become nodes of their own; the node
	// keeps its discovered identity and records where it resolved to.
	FinalURL string `json:"final_url,omitempty"`
}

// Edge is a directed "links to" pair of canonical URLs. Edges carry no
// attributes beyond existence; inserting the same pair twice is a no-op.
type Edge struct {
	// Source is the canonical URL of the linking capsule.
	Source string `json:"source_url"`

	// Target is the canonical URL of the linked capsule.
	Target string `json:"target_url"`
}

// FetchInfo carries the body metadata the scheduler records on a
// successfully fetched node.
type FetchInfo struct {
	// Title is the capsule's first level-one heading, if any.
	Title string

	// MediaType is the MIME type of the body.
	MediaType string

	// BodySize is how many body bytes were read.
	BodySize int64

	// Truncated is set when the body hit the size cap.
	Truncated bool

	// FinalURL is where a redirect chain ended, if anywhere else.
	FinalURL string
}

// Graph is the shared link graph. All methods are safe for concurrent
// use; every mutation takes the write lock so a reader never sees a
// partially-applied insertion.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[Edge]struct{}
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[Edge]struct{}),
	}
}

// ensureNode returns the node for url, creating it as unvisited if
// absent. Callers must hold the write lock.
func (g *Graph) ensureNode(url string) *Node {
	if node, ok := g.nodes[url]; ok {
		return node
	}
	node := &Node{URL: url, Status: StatusUnvisited}
	g.nodes[url] = node
	return node
}

// AddNode registers url as a node if it is not already one.
func (g *Graph) AddNode(url string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureNode(url)
}

// AddEdge inserts the directed edge source->target, creating either
// endpoint if absent so the graph never holds a dangling edge. Inserting
// an existing edge is a no-op.
func (g *Graph) AddEdge(source, target string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureNode(source)
	g.ensureNode(target)
	g.edges[Edge{Source: source, Target: target}] = struct{}{}
}

// MarkInFlight transitions url to StatusInFlight.
func (g *Graph) MarkInFlight(url string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node := g.ensureNode(url)
	node.Status = StatusInFlight
}

// MarkFetched transitions url to StatusFetched and records the fetch
// metadata and timestamp.
func (g *Graph) MarkFetched(url string, info FetchInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node := g.ensureNode(url)
	node.Status = StatusFetched
	node.Failure = gemini.FailureUnknown
	node.FetchedAt = time.Now()
	node.Title = info.Title
	node.MediaType = info.MediaType
	node.BodySize = info.BodySize
	node.Truncated = info.Truncated
	node.FinalURL = info.FinalURL
}

// MarkFailed transitions url to StatusFailed and records the reason.
func (g *Graph) MarkFailed(url string, kind gemini.FailureKind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	node := g.ensureNode(url)
	node.Status = StatusFailed
	node.Failure = kind
	node.FetchedAt = time.Now()
}

// Node returns a copy of the node for url and whether it exists.
func (g *Graph) Node(url string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[url]
	if !ok {
		return Node{}, false
	}
	return *node, true
}

// HasEdge reports whether the directed edge source->target exists.
func (g *Graph) HasEdge(source, target string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.edges[Edge{Source: source, Target: target}]
	return ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// CountByStatus returns how many nodes are in each status. Used by
// progress reporting, which only ever consumes read-only counts.
func (g *Graph) CountByStatus() map[Status]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	counts := make(map[Status]int, 4)
	for _, node := range g.nodes {
		counts[node.Status]++
	}
	return counts
}

// Snapshot is a consistent, ordered copy of the graph, the logical schema
// every consumer (persistence, reports, exports) works from.
type Snapshot struct {
	// Nodes are the graph's nodes ordered by canonical URL.
	Nodes []Node `json:"nodes"`

	// Edges are the graph's edges ordered by (source, target).
	Edges []Edge `json:"edges"`
}

// Snapshot copies the graph under the read lock. Nodes and edges are
// sorted so two snapshots of equal graphs are byte-identical when
// serialized.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := &Snapshot{
		Nodes: make([]Node, 0, len(g.nodes)),
		Edges: make([]Edge, 0, len(g.edges)),
	}
	for _, node := range g.nodes {
		n := *node
		n.StatusName = n.Status.String()
		if n.Status == StatusFailed {
			n.FailureName = n.Failure.String()
		}
		snap.Nodes = append(snap.Nodes, n)
	}
	for edge := range g.edges {
		snap.Edges = append(snap.Edges, edge)
	}

	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].URL < snap.Nodes[j].URL })
	sort.Slice(snap.Edges, func(i, j int) bool {
		if snap.Edges[i].Source != snap.Edges[j].Source {
			return snap.Edges[i].Source < snap.Edges[j].Source
		}
		return snap.Edges[i].Target < snap.Edges[j].Target
	})
	return snap
}

// FromSnapshot rebuilds a graph from a snapshot, resolving the string
// forms of status and failure kind back to their typed values.
func FromSnapshot(snap *Snapshot) *Graph {
	g := New()
	for _, node := range snap.Nodes {
		n := node
		if n.StatusName != "" {
			n.Status = ParseStatus(n.StatusName)
		}
		if n.FailureName != "" {
			n.Failure = gemini.ParseFailureKind(n.FailureName)
		}
		g.nodes[n.URL] = &n
	}
	for _, edge := range snap.Edges {
		g.ensureNode(edge.Source)
		g.ensureNode(edge.Target)
		g.edges[edge] = struct{}{}
	}
	return g
}
