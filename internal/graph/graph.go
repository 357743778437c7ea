// Package graph implements the write-only knowledge graph described in
// spec section 4.8: Session, Application and Concept nodes linked by USES
// and MENTIONS edges, persisted as a single JSON snapshot. Keys are
// app_name/user_id in the in-memory service this is grounded on; here the
// key is simply each node's stable identifier, since the graph has only
// one "user" (this machine).
package graph

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/mnemosyne/brain/internal/logging"
	"github.com/mnemosyne/brain/internal/model"
)

// Graph is an in-memory node/edge index with idempotent inserts, matching
// the knowledge-graph write pattern from spec section 4.8 step 7: only
// additive, never mutated or pruned by anything else in this module.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]model.GraphNode
	edges map[edgeKey]model.GraphEdge
	path  string
}

type edgeKey struct {
	from     string
	to       string
	relation model.GraphRelation
}

type snapshot struct {
	Nodes []model.GraphNode `json:"nodes"`
	Edges []model.GraphEdge `json:"edges"`
}

// New builds a Graph backed by path, loading any existing snapshot. A
// missing or unreadable file starts from an empty graph rather than
// failing, since the graph is best-effort persistence (spec section 4.8:
// "if the graph is enabled").
func New(path string) *Graph {
	g := &Graph{
		nodes: make(map[string]model.GraphNode),
		edges: make(map[edgeKey]model.GraphEdge),
		path:  path,
	}
	g.load()
	return g
}

func (g *Graph) load() {
	if g.path == "" {
		return
	}
	data, err := os.ReadFile(g.path)
	if err != nil {
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logging.Debug().Err(err).Str("path", g.path).Msg("graph: failed to parse existing snapshot, starting empty")
		return
	}

	for _, n := range snap.Nodes {
		g.nodes[n.ID] = n
	}
	for _, e := range snap.Edges {
		g.edges[edgeKey{from: e.From, to: e.To, relation: e.Relation}] = e
	}
}

// AddNode inserts a node if its id is not already present.
func (g *Graph) AddNode(id string, kind model.GraphNodeKind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = model.GraphNode{ID: id, Kind: kind}
	}
}

// AddEdge inserts a directed, labelled edge if it is not already present.
func (g *Graph) AddEdge(from, to string, relation model.GraphRelation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := edgeKey{from: from, to: to, relation: relation}
	if _, exists := g.edges[key]; !exists {
		g.edges[key] = model.GraphEdge{From: from, To: to, Relation: relation}
	}
}

// NodeCount and EdgeCount report the current graph size, mostly useful for
// logging and tests.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Persist writes the current graph to its configured path as a single
// JSON snapshot. A no-op when no path was configured.
func (g *Graph) Persist() error {
	if g.path == "" {
		return nil
	}

	g.mu.RLock()
	snap := snapshot{
		Nodes: make([]model.GraphNode, 0, len(g.nodes)),
		Edges: make([]model.GraphEdge, 0, len(g.edges)),
	}
	for _, n := range g.nodes {
		snap.Nodes = append(snap.Nodes, n)
	}
	for _, e := range g.edges {
		snap.Edges = append(snap.Edges, e)
	}
	g.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp := g.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, g.path)
}

// RecordSessionUse adds a Session node, an Application node, and a USES
// edge between them (spec section 4.8 step 7).
func (g *Graph) RecordSessionUse(sessionID, processName string) {
	sessionNode := model.SessionNodeID(sessionID)
	appNode := model.AppNodeID(processName)
	g.AddNode(sessionNode, model.NodeSession)
	g.AddNode(appNode, model.NodeApplication)
	g.AddEdge(sessionNode, appNode, model.RelationUses)
}

// RecordMentions adds a Concept node for term and a MENTIONS edge from the
// session node to it.
func (g *Graph) RecordMentions(sessionID, term string) {
	sessionNode := model.SessionNodeID(sessionID)
	conceptNode := model.ConceptNodeID(term)
	g.AddNode(conceptNode, model.NodeConcept)
	g.AddEdge(sessionNode, conceptNode, model.RelationMentions)
}

// RecordTriple adds both concept nodes from a secondary-analysis triple
// and a labelled edge between them.
func (g *Graph) RecordTriple(from, relation, to string) {
	fromNode := model.ConceptNodeID(from)
	toNode := model.ConceptNodeID(to)
	g.AddNode(fromNode, model.NodeConcept)
	g.AddNode(toNode, model.NodeConcept)
	g.AddEdge(fromNode, toNode, model.GraphRelation(relation))
}
