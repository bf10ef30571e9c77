package kg

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/hyperjump/tsunagu/internal/graph"
)

// Labels used when no schema is supplied: every extracted entity is an
// "entity" vertex keyed by its name.
const (
	defaultVertexLabel = "entity"
	nameProperty       = "name"
)

// schemaVertex and schemaEdge are the parts of a schema the extractor
// consults when resolving "(s, p, o) - LABEL" lines.
type schemaVertex struct {
	Label      string
	Properties map[string]bool
}

type schemaEdge struct {
	Label       string
	SourceLabel string
	TargetLabel string
}

// schemaInfo pairs the importable schema document with the label lookup
// tables extraction needs. raw is the original JSON text, embedded verbatim
// in the extraction prompt.
type schemaInfo struct {
	schema   *graph.Schema
	vertices []schemaVertex
	edges    []schemaEdge
	raw      string
}

// parseSchemaInfo decodes a schema document in the graph server's JSON form:
// vertexlabels carry name and properties, edgelabels carry name,
// source_label, and target_label.
func parseSchemaInfo(text string) (*schemaInfo, error) {
	s, err := graph.ParseSchema(text)
	if err != nil {
		return nil, err
	}
	info := &schemaInfo{schema: s, raw: text}
	for _, element := range s.VertexLabels {
		var vl struct {
			Name       string   `json:"name"`
			Properties []string `json:"properties"`
		}
		if err := json.Unmarshal(element, &vl); err != nil {
			return nil, fmt.Errorf("parse vertex label: %w", err)
		}
		props := make(map[string]bool, len(vl.Properties))
		for _, p := range vl.Properties {
			props[p] = true
		}
		info.vertices = append(info.vertices, schemaVertex{Label: vl.Name, Properties: props})
	}
	for _, element := range s.EdgeLabels {
		var el struct {
			Name        string `json:"name"`
			SourceLabel string `json:"source_label"`
			TargetLabel string `json:"target_label"`
		}
		if err := json.Unmarshal(element, &el); err != nil {
			return nil, fmt.Errorf("parse edge label: %w", err)
		}
		info.edges = append(info.edges, schemaEdge{Label: el.Name, SourceLabel: el.SourceLabel, TargetLabel: el.TargetLabel})
	}
	return info, nil
}

// synthesizeSchema builds the minimal schema a schema-free extraction needs:
// one name property, one entity vertex label keyed by it, and one edge label
// per distinct predicate, in first-appearance order.
func synthesizeSchema(g *ExtractedGraph) (*graph.Schema, error) {
	s := &graph.Schema{}

	propertyKey := map[string]interface{}{
		"name":        nameProperty,
		"data_type":   "TEXT",
		"cardinality": "SINGLE",
	}
	raw, err := json.Marshal(propertyKey)
	if err != nil {
		return nil, fmt.Errorf("synthesize schema: %w", err)
	}
	s.PropertyKeys = append(s.PropertyKeys, raw)

	vertexLabel := map[string]interface{}{
		"name":          defaultVertexLabel,
		"id_strategy":   "PRIMARY_KEY",
		"primary_keys":  []string{nameProperty},
		"properties":    []string{nameProperty},
		"nullable_keys": []string{},
	}
	raw, err = json.Marshal(vertexLabel)
	if err != nil {
		return nil, fmt.Errorf("synthesize schema: %w", err)
	}
	s.VertexLabels = append(s.VertexLabels, raw)

	seen := make(map[string]bool)
	for _, e := range g.Edges {
		if seen[e.Label] {
			continue
		}
		seen[e.Label] = true
		edgeLabel := map[string]interface{}{
			"name":         e.Label,
			"source_label": defaultVertexLabel,
			"target_label": defaultVertexLabel,
			"properties":   []string{},
		}
		raw, err = json.Marshal(edgeLabel)
		if err != nil {
			return nil, fmt.Errorf("synthesize schema: %w", err)
		}
		s.EdgeLabels = append(s.EdgeLabels, raw)
	}
	return s, nil
}

// edgeLabelFor normalizes a free-form predicate into a graph edge label:
// lower-cased, letter/digit runs kept, everything else collapsed to single
// underscores. Returns "" when nothing survives.
func edgeLabelFor(predicate string) string {
	var b strings.Builder
	pendingGap := false
	for _, r := range strings.ToLower(strings.TrimSpace(predicate)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingGap && b.Len() > 0 {
				b.WriteRune('_')
			}
			pendingGap = false
			b.WriteRune(r)
			continue
		}
		pendingGap = true
	}
	return b.String()
}
