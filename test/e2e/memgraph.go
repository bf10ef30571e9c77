package e2e

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hyperjump/tsunagu/internal/graph"
)

// MemGraph is an in-memory stand-in for the graph server. It satisfies
// both the builder's store interface and the answer service's reader
// interface. Vertex ids follow the server's primary-key scheme,
// "label:name", and traversal walks edges in both directions the way
// the gremlin expansion does.
type MemGraph struct {
	mu       sync.Mutex
	order    []string
	vertices map[string]*memVertex
	edges    []memEdge
}

type memVertex struct {
	id    string
	label string
	props map[string]interface{}
}

type memEdge struct {
	label string
	outV  string
	inV   string
}

// NewMemGraph returns an empty graph.
func NewMemGraph() *MemGraph {
	return &MemGraph{vertices: map[string]*memVertex{}}
}

// ImportSchema accepts any schema; the in-memory graph is schemaless.
func (g *MemGraph) ImportSchema(ctx context.Context, s *graph.Schema) (int, error) {
	if s == nil {
		return 0, nil
	}
	return len(s.PropertyKeys) + len(s.VertexLabels) + len(s.EdgeLabels), nil
}

// AddVertices upserts vertices keyed by "label:name" and returns the
// assigned ids in input order.
func (g *MemGraph) AddVertices(ctx context.Context, vertices []graph.Vertex) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(vertices))
	for _, v := range vertices {
		name, _ := v.Properties["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("vertex without name property (label %q)", v.Label)
		}
		id := v.Label + ":" + name
		if existing, ok := g.vertices[id]; ok {
			for k, val := range v.Properties {
				existing.props[k] = val
			}
		} else {
			props := make(map[string]interface{}, len(v.Properties))
			for k, val := range v.Properties {
				props[k] = val
			}
			g.vertices[id] = &memVertex{id: id, label: v.Label, props: props}
			g.order = append(g.order, id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AddEdges stores edges between committed vertices, skipping exact
// duplicates so re-appending a document does not multiply paths.
func (g *MemGraph) AddEdges(ctx context.Context, edges []graph.Edge) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	added := 0
	for _, e := range edges {
		if _, ok := g.vertices[e.OutV]; !ok {
			return added, fmt.Errorf("edge %q references unknown vertex %q", e.Label, e.OutV)
		}
		if _, ok := g.vertices[e.InV]; !ok {
			return added, fmt.Errorf("edge %q references unknown vertex %q", e.Label, e.InV)
		}
		if g.hasEdge(e.Label, e.OutV, e.InV) {
			continue
		}
		g.edges = append(g.edges, memEdge{label: e.Label, outV: e.OutV, inV: e.InV})
		added++
	}
	return added, nil
}

func (g *MemGraph) hasEdge(label, outV, inV string) bool {
	for _, e := range g.edges {
		if e.label == label && e.outV == outV && e.inV == inV {
			return true
		}
	}
	return false
}

// ClearData drops all vertices and edges.
func (g *MemGraph) ClearData(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.order = nil
	g.vertices = map[string]*memVertex{}
	g.edges = nil
	return nil
}

// Vertices lists up to limit vertices in insertion order.
func (g *MemGraph) Vertices(ctx context.Context, limit int) ([]graph.VertexRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	records := make([]graph.VertexRecord, 0, len(g.order))
	for _, id := range g.order {
		if len(records) >= limit {
			break
		}
		v := g.vertices[id]
		props := make(map[string]interface{}, len(v.props))
		for k, val := range v.props {
			props[k] = val
		}
		records = append(records, graph.VertexRecord{ID: v.id, Label: v.label, Properties: props})
	}
	return records, nil
}

// ExistingVertexIDs returns the subset of ids present in the graph.
func (g *MemGraph) ExistingVertexIDs(ctx context.Context, ids []string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var found []string
	for _, id := range ids {
		if _, ok := g.vertices[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

// NeighborPaths walks up to depth edges out from each seed, in both
// edge directions, never revisiting a vertex within one path, and emits
// a rendered path at every hop.
func (g *MemGraph) NeighborPaths(ctx context.Context, vids []string, depth, limit int) ([]graph.Path, error) {
	if len(vids) == 0 {
		return nil, nil
	}
	if depth < 1 {
		depth = 1
	}
	if limit < 1 {
		limit = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var paths []graph.Path
	for _, vid := range vids {
		if _, ok := g.vertices[vid]; !ok {
			continue
		}
		seen := map[string]bool{vid: true}
		g.walk(vid, vid, 0, depth, limit, seen, &paths)
	}
	return paths, nil
}

func (g *MemGraph) walk(current, text string, hops, depth, limit int, seen map[string]bool, paths *[]graph.Path) {
	if hops >= depth || len(*paths) >= limit {
		return
	}
	for _, e := range g.edges {
		var next string
		switch current {
		case e.outV:
			next = e.inV
		case e.inV:
			next = e.outV
		default:
			continue
		}
		if seen[next] {
			continue
		}
		if len(*paths) >= limit {
			return
		}
		rendered := text + " --[" + e.label + "]--> " + next
		*paths = append(*paths, graph.Path{Text: rendered, Hops: hops + 1})
		seen[next] = true
		g.walk(next, rendered, hops+1, depth, limit, seen, paths)
		delete(seen, next)
	}
}

// VertexCount reports how many vertices are stored.
func (g *MemGraph) VertexCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}

// EdgeCount reports how many distinct edges are stored.
func (g *MemGraph) EdgeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.edges)
}

// VertexNames returns the name property of every vertex, in insertion
// order.
func (g *MemGraph) VertexNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if name, ok := g.vertices[id].props["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names
}

// String renders the graph for debugging failed assertions.
func (g *MemGraph) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "%d vertices, %d edges\n", len(g.order), len(g.edges))
	for _, e := range g.edges {
		fmt.Fprintf(&b, "  %s --[%s]--> %s\n", e.outV, e.label, e.inV)
	}
	return b.String()
}
