package e2e

import (
	"context"
	"strings"
	"testing"

	"github.com/hyperjump/tsunagu/internal/graph"
)

func entity(name string) graph.Vertex {
	return graph.Vertex{Label: "entity", Properties: map[string]interface{}{"name": name}}
}

func edge(label, outV, inV string) graph.Edge {
	return graph.Edge{Label: label, OutV: outV, OutVLabel: "entity", InV: inV, InVLabel: "entity"}
}

func TestMemGraphUpsertAndIDs(t *testing.T) {
	g := NewMemGraph()
	ctx := context.Background()

	ids, err := g.AddVertices(ctx, []graph.Vertex{entity("Alpha"), entity("Beta")})
	if err != nil {
		t.Fatalf("AddVertices: %v", err)
	}
	if ids[0] != "entity:Alpha" || ids[1] != "entity:Beta" {
		t.Errorf("ids = %v", ids)
	}

	again, err := g.AddVertices(ctx, []graph.Vertex{{
		Label:      "entity",
		Properties: map[string]interface{}{"name": "Alpha", "role": "first"},
	}})
	if err != nil {
		t.Fatalf("AddVertices: %v", err)
	}
	if again[0] != "entity:Alpha" {
		t.Errorf("re-added id = %q", again[0])
	}
	if g.VertexCount() != 2 {
		t.Errorf("count = %d, want 2", g.VertexCount())
	}

	records, err := g.Vertices(ctx, 10)
	if err != nil {
		t.Fatalf("Vertices: %v", err)
	}
	if records[0].Properties["role"] != "first" {
		t.Errorf("upsert dropped new property: %+v", records[0])
	}

	if _, err := g.AddVertices(ctx, []graph.Vertex{{Label: "entity"}}); err == nil {
		t.Error("vertex without a name was accepted")
	}
}

func TestMemGraphNeighborPaths(t *testing.T) {
	g := NewMemGraph()
	ctx := context.Background()
	if _, err := g.AddVertices(ctx, []graph.Vertex{entity("Alpha"), entity("Beta"), entity("Gamma")}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddEdges(ctx, []graph.Edge{
		edge("linked_to", "entity:Alpha", "entity:Beta"),
		edge("linked_to", "entity:Beta", "entity:Gamma"),
	}); err != nil {
		t.Fatal(err)
	}

	paths, err := g.NeighborPaths(ctx, []string{"entity:Alpha"}, 2, 10)
	if err != nil {
		t.Fatalf("NeighborPaths: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	if paths[0].Text != "entity:Alpha --[linked_to]--> entity:Beta" || paths[0].Hops != 1 {
		t.Errorf("first path = %+v", paths[0])
	}
	if paths[1].Text != "entity:Alpha --[linked_to]--> entity:Beta --[linked_to]--> entity:Gamma" || paths[1].Hops != 2 {
		t.Errorf("second path = %+v", paths[1])
	}

	// Traversal ignores edge direction.
	back, err := g.NeighborPaths(ctx, []string{"entity:Gamma"}, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 1 || back[0].Text != "entity:Gamma --[linked_to]--> entity:Beta" {
		t.Errorf("reverse paths = %v", back)
	}

	// A cycle never revisits a vertex within one path.
	if _, err := g.AddEdges(ctx, []graph.Edge{edge("closes", "entity:Gamma", "entity:Alpha")}); err != nil {
		t.Fatal(err)
	}
	cyclic, err := g.NeighborPaths(ctx, []string{"entity:Alpha"}, 3, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(cyclic) != 4 {
		t.Errorf("cyclic paths = %v", cyclic)
	}
	for _, p := range cyclic {
		if strings.Count(p.Text, "entity:Alpha") != 1 {
			t.Errorf("path revisits its seed: %q", p.Text)
		}
	}

	limited, err := g.NeighborPaths(ctx, []string{"entity:Alpha"}, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limit ignored: %v", limited)
	}

	none, err := g.NeighborPaths(ctx, []string{"entity:Nobody"}, 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("unknown seed produced paths: %v", none)
	}
}

func TestMemGraphEdgesAndClear(t *testing.T) {
	g := NewMemGraph()
	ctx := context.Background()
	if _, err := g.AddVertices(ctx, []graph.Vertex{entity("Alpha"), entity("Beta")}); err != nil {
		t.Fatal(err)
	}

	n, err := g.AddEdges(ctx, []graph.Edge{edge("linked_to", "entity:Alpha", "entity:Beta")})
	if err != nil || n != 1 {
		t.Fatalf("AddEdges = %d, %v", n, err)
	}
	n, err = g.AddEdges(ctx, []graph.Edge{edge("linked_to", "entity:Alpha", "entity:Beta")})
	if err != nil || n != 0 {
		t.Errorf("duplicate edge added: %d, %v", n, err)
	}
	if g.EdgeCount() != 1 {
		t.Errorf("edges = %d, want 1", g.EdgeCount())
	}

	if _, err := g.AddEdges(ctx, []graph.Edge{edge("linked_to", "entity:Alpha", "entity:Missing")}); err == nil {
		t.Error("edge to an unknown vertex was accepted")
	}

	existing, err := g.ExistingVertexIDs(ctx, []string{"entity:Alpha", "entity:Missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(existing) != 1 || existing[0] != "entity:Alpha" {
		t.Errorf("existing = %v", existing)
	}

	if err := g.ClearData(ctx); err != nil {
		t.Fatalf("ClearData: %v", err)
	}
	if g.VertexCount() != 0 || g.EdgeCount() != 0 {
		t.Errorf("clear left %d vertices, %d edges", g.VertexCount(), g.EdgeCount())
	}
}
