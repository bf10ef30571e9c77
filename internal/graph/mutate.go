package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Vertex is one vertex to commit. The server derives the id from the label's
// id strategy and the primary-key properties.
type Vertex struct {
	Label      string                 `json:"label"`
	Properties map[string]interface{} `json:"properties"`
}

// Edge is one edge to commit between two existing vertices.
type Edge struct {
	Label      string                 `json:"label"`
	OutV       string                 `json:"outV"`
	OutVLabel  string                 `json:"outVLabel"`
	InV        string                 `json:"inV"`
	InVLabel   string                 `json:"inVLabel"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Schema is a schema document: property keys, vertex labels, and edge
// labels in the server's own JSON forms. Only the name is interpreted
// client-side; definitions pass through untouched.
type Schema struct {
	PropertyKeys []json.RawMessage `json:"propertykeys"`
	VertexLabels []json.RawMessage `json:"vertexlabels"`
	EdgeLabels   []json.RawMessage `json:"edgelabels"`
	IndexLabels  []json.RawMessage `json:"indexlabels"`
}

// ParseSchema decodes a schema document from its JSON text.
func ParseSchema(text string) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if len(s.PropertyKeys) == 0 && len(s.VertexLabels) == 0 && len(s.EdgeLabels) == 0 {
		return nil, fmt.Errorf("parse schema: no propertykeys, vertexlabels, or edgelabels")
	}
	return &s, nil
}

// Schema fetches the graph's current schema document.
func (c *Client) Schema(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.graphPath("/schema"), nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch schema: %w", err)
	}
	return raw, nil
}

// ImportSchema creates the schema elements that do not exist yet. Elements
// whose names are already present are left alone, so re-importing the same
// schema is safe. It returns how many elements were created.
func (c *Client) ImportSchema(ctx context.Context, s *Schema) (int, error) {
	current, err := c.schemaNames(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	groups := []struct {
		endpoint string
		elements []json.RawMessage
		existing map[string]bool
	}{
		{"/schema/propertykeys", s.PropertyKeys, current.propertyKeys},
		{"/schema/vertexlabels", s.VertexLabels, current.vertexLabels},
		{"/schema/edgelabels", s.EdgeLabels, current.edgeLabels},
		{"/schema/indexlabels", s.IndexLabels, current.indexLabels},
	}
	for _, group := range groups {
		for _, element := range group.elements {
			name, err := elementName(element)
			if err != nil {
				return created, err
			}
			if group.existing[name] {
				continue
			}
			if err := c.do(ctx, http.MethodPost, c.graphPath(group.endpoint), element, nil); err != nil {
				return created, fmt.Errorf("create schema element %q: %w", name, err)
			}
			created++
		}
	}
	return created, nil
}

// AddVertices commits vertices in one batch and returns their assigned ids.
func (c *Client) AddVertices(ctx context.Context, vertices []Vertex) ([]string, error) {
	if len(vertices) == 0 {
		return nil, nil
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, c.graphPath("/graph/vertices/batch"), vertices, &raw); err != nil {
		return nil, fmt.Errorf("add vertices: %w", err)
	}
	ids, err := decodeStrings(raw)
	if err != nil {
		return nil, fmt.Errorf("add vertices: %w", err)
	}
	return ids, nil
}

// AddEdges commits edges in one batch and returns how many were created.
func (c *Client) AddEdges(ctx context.Context, edges []Edge) (int, error) {
	if len(edges) == 0 {
		return 0, nil
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, c.graphPath("/graph/edges/batch"), edges, &raw); err != nil {
		return 0, fmt.Errorf("add edges: %w", err)
	}
	ids, err := decodeStrings(raw)
	if err != nil {
		return 0, fmt.Errorf("add edges: %w", err)
	}
	return len(ids), nil
}

type schemaNames struct {
	propertyKeys map[string]bool
	vertexLabels map[string]bool
	edgeLabels   map[string]bool
	indexLabels  map[string]bool
}

func (c *Client) schemaNames(ctx context.Context) (*schemaNames, error) {
	raw, err := c.Schema(ctx)
	if err != nil {
		return nil, err
	}
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	names := &schemaNames{
		propertyKeys: nameSet(s.PropertyKeys),
		vertexLabels: nameSet(s.VertexLabels),
		edgeLabels:   nameSet(s.EdgeLabels),
		indexLabels:  nameSet(s.IndexLabels),
	}
	return names, nil
}

func nameSet(elements []json.RawMessage) map[string]bool {
	set := make(map[string]bool, len(elements))
	for _, element := range elements {
		name, err := elementName(element)
		if err != nil {
			continue
		}
		set[name] = true
	}
	return set
}

func elementName(element json.RawMessage) (string, error) {
	var named struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(element, &named); err != nil {
		return "", fmt.Errorf("schema element missing name: %w", err)
	}
	if named.Name == "" {
		return "", fmt.Errorf("schema element missing name")
	}
	return named.Name, nil
}
