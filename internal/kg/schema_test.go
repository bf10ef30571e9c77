package kg

import (
	"encoding/json"
	"testing"
)

func TestParseSchemaInfo(t *testing.T) {
	info, err := parseSchemaInfo(personSchemaJSON)
	if err != nil {
		t.Fatalf("parseSchemaInfo failed: %v", err)
	}
	if len(info.vertices) != 1 {
		t.Fatalf("want 1 vertex label, got %d", len(info.vertices))
	}
	v := info.vertices[0]
	if v.Label != "person" {
		t.Errorf("vertex label = %q", v.Label)
	}
	if !v.Properties["age"] || !v.Properties["occupation"] || v.Properties["height"] {
		t.Errorf("vertex properties = %+v", v.Properties)
	}
	if len(info.edges) != 1 {
		t.Fatalf("want 1 edge label, got %d", len(info.edges))
	}
	e := info.edges[0]
	if e.Label != "roommate" || e.SourceLabel != "person" || e.TargetLabel != "person" {
		t.Errorf("edge = %+v", e)
	}
	if info.schema == nil || len(info.schema.VertexLabels) != 1 {
		t.Error("importable schema should carry the raw elements")
	}
}

func TestParseSchemaInfo_Invalid(t *testing.T) {
	if _, err := parseSchemaInfo("not json"); err == nil {
		t.Error("malformed json should fail")
	}
	if _, err := parseSchemaInfo(`{"propertykeys": []}`); err == nil {
		t.Error("schema with no elements should fail")
	}
}

func TestSynthesizeSchema(t *testing.T) {
	g := &ExtractedGraph{
		Vertices: []ExtractedVertex{
			{ID: "entity-Alice", Name: "Alice", Label: "entity"},
			{ID: "entity-Bob", Name: "Bob", Label: "entity"},
		},
		Edges: []ExtractedEdge{
			{Start: "entity-Alice", End: "entity-Bob", Label: "owns"},
			{Start: "entity-Bob", End: "entity-Alice", Label: "roommate_of"},
			{Start: "entity-Alice", End: "entity-Bob", Label: "owns"},
		},
	}

	s, err := synthesizeSchema(g)
	if err != nil {
		t.Fatalf("synthesizeSchema failed: %v", err)
	}
	if len(s.PropertyKeys) != 1 || len(s.VertexLabels) != 1 {
		t.Fatalf("want 1 property key and 1 vertex label, got %d/%d", len(s.PropertyKeys), len(s.VertexLabels))
	}

	var vl struct {
		Name        string   `json:"name"`
		IDStrategy  string   `json:"id_strategy"`
		PrimaryKeys []string `json:"primary_keys"`
	}
	if err := json.Unmarshal(s.VertexLabels[0], &vl); err != nil {
		t.Fatalf("decode vertex label: %v", err)
	}
	if vl.Name != "entity" || vl.IDStrategy != "PRIMARY_KEY" {
		t.Errorf("vertex label = %+v", vl)
	}
	if len(vl.PrimaryKeys) != 1 || vl.PrimaryKeys[0] != "name" {
		t.Errorf("primary keys = %v", vl.PrimaryKeys)
	}

	// One edge label per distinct predicate, first-appearance order.
	if len(s.EdgeLabels) != 2 {
		t.Fatalf("want 2 edge labels, got %d", len(s.EdgeLabels))
	}
	var el struct {
		Name        string `json:"name"`
		SourceLabel string `json:"source_label"`
		TargetLabel string `json:"target_label"`
	}
	if err := json.Unmarshal(s.EdgeLabels[0], &el); err != nil {
		t.Fatalf("decode edge label: %v", err)
	}
	if el.Name != "owns" || el.SourceLabel != "entity" || el.TargetLabel != "entity" {
		t.Errorf("edge label 0 = %+v", el)
	}
	if err := json.Unmarshal(s.EdgeLabels[1], &el); err != nil {
		t.Fatalf("decode edge label: %v", err)
	}
	if el.Name != "roommate_of" {
		t.Errorf("edge label 1 = %+v", el)
	}
}

func TestEdgeLabelFor(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Roommate of", "roommate_of"},
		{"Age", "age"},
		{" Owns ", "owns"},
		{"is-a", "is_a"},
		{"works at!", "works_at"},
		{"???", ""},
		{"首都", "首都"},
	}
	for _, tc := range cases {
		if got := edgeLabelFor(tc.in); got != tc.want {
			t.Errorf("edgeLabelFor(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
