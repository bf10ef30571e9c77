package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Path is one rendered neighbor path. Text reads
// "a --[knows]--> b --[works_at]--> c"; Hops counts the edges.
type Path struct {
	Text string
	Hops int
}

// NeighborPaths expands paths of up to depth edges around the given vertex
// ids and renders them. At most limit paths are returned. No vids means no
// paths, not an error.
func (c *Client) NeighborPaths(ctx context.Context, vids []string, depth, limit int) ([]Path, error) {
	if len(vids) == 0 {
		return nil, nil
	}
	if depth < 1 {
		depth = 1
	}
	if limit < 1 {
		limit = 1
	}

	query := fmt.Sprintf(
		"g.V(%s).repeat(bothE().otherV().simplePath()).emit().times(%d).path().by(id()).by(label()).limit(%d)",
		quoteGremlinList(vids), depth, limit,
	)
	data, err := c.Gremlin(ctx, query)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Objects []interface{} `json:"objects"`
	}
	if err := decodeData(data, &rows); err != nil {
		return nil, fmt.Errorf("decode paths: %w", err)
	}

	paths := make([]Path, 0, len(rows))
	for _, row := range rows {
		// A well-formed path alternates vertex, edge label, vertex.
		if len(row.Objects) < 3 || len(row.Objects)%2 == 0 {
			continue
		}
		var b strings.Builder
		for i, obj := range row.Objects {
			s := stringify(obj)
			if i == 0 {
				b.WriteString(s)
			} else if i%2 == 1 {
				b.WriteString(" --[" + s + "]--> ")
			} else {
				b.WriteString(s)
			}
		}
		paths = append(paths, Path{Text: b.String(), Hops: len(row.Objects) / 2})
	}
	return paths, nil
}

// VertexRecord is one stored vertex with its properties.
type VertexRecord struct {
	ID         string
	Label      string
	Properties map[string]interface{}
}

// Vertices lists up to limit vertices with their properties.
func (c *Client) Vertices(ctx context.Context, limit int) ([]VertexRecord, error) {
	if limit < 1 {
		limit = 1
	}
	var raw json.RawMessage
	path := c.graphPath(fmt.Sprintf("/graph/vertices?limit=%d", limit))
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("list vertices: %w", err)
	}
	var envelope struct {
		Vertices []struct {
			ID         interface{}            `json:"id"`
			Label      string                 `json:"label"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"vertices"`
	}
	if err := decodeData(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode vertices: %w", err)
	}
	records := make([]VertexRecord, 0, len(envelope.Vertices))
	for _, v := range envelope.Vertices {
		records = append(records, VertexRecord{
			ID:         stringify(v.ID),
			Label:      v.Label,
			Properties: v.Properties,
		})
	}
	return records, nil
}

// ExistingVertexIDs returns the subset of ids present in the graph.
func (c *Client) ExistingVertexIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := c.Gremlin(ctx, fmt.Sprintf("g.V(%s).id()", quoteGremlinList(ids)))
	if err != nil {
		return nil, err
	}
	return decodeStrings(data)
}

// VertexIDs lists up to limit vertex ids.
func (c *Client) VertexIDs(ctx context.Context, limit int) ([]string, error) {
	if limit < 1 {
		limit = 1
	}
	data, err := c.Gremlin(ctx, fmt.Sprintf("g.V().limit(%d).id()", limit))
	if err != nil {
		return nil, err
	}
	return decodeStrings(data)
}

// Counts returns the number of vertices and edges in the graph.
func (c *Client) Counts(ctx context.Context) (vertices, edges int64, err error) {
	vertices, err = c.count(ctx, "g.V().count()")
	if err != nil {
		return 0, 0, err
	}
	edges, err = c.count(ctx, "g.E().count()")
	if err != nil {
		return 0, 0, err
	}
	return vertices, edges, nil
}

func (c *Client) count(ctx context.Context, query string) (int64, error) {
	data, err := c.Gremlin(ctx, query)
	if err != nil {
		return 0, err
	}
	var counts []json.Number
	if err := decodeData(data, &counts); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	if len(counts) == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}
	n, err := counts[0].Int64()
	if err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return n, nil
}

// decodeData unmarshals a gremlin data array, keeping numbers as
// json.Number so numeric vertex ids survive stringification.
func decodeData(data json.RawMessage, out interface{}) error {
	if len(data) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

func decodeStrings(data json.RawMessage) ([]string, error) {
	var raw []interface{}
	if err := decodeData(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ids: %w", err)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, stringify(v))
	}
	return out, nil
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
