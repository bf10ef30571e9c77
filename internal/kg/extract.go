package kg

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/tsunagu/internal/llm"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/pkg/utils"
)

// Vertex ids longer than this are discarded; they are almost always the
// model quoting a sentence instead of naming an entity.
const maxVertexIDRunes = 120

const spoExtractPrompt = `Extract subject-verb-object (SPO) triples from text strictly according to the
following format, each structure has only three elements: ("vertex_1", "edge", "vertex_2").
for example:
Alice lawyer and is 25 years old and Bob is her roommate since 2001. Bob works as a journalist.
Alice owns a the webpage www.alice.com and Bob owns the webpage www.bob.com
output:[("Alice", "Age", "25"),("Alice", "Profession", "lawyer"),("Bob", "Job", "journalist"),
("Alice", "Roommate of", "Bob"),("Alice", "Owns", "http://www.alice.com"),
("Bob", "Owns", "http://www.bob.com")]

The extracted text is: %s`

const schemaExtractPrompt = `Given the graph schema: %s

Based on the above schema, extract triples from the following text.
The output format must be: (X,Y,Z) - LABEL
In this format, Y must be a value from "properties" or "edge_label",
and LABEL must be X's vertex_label or Y's edge_label.

The extracted text is: %s`

var (
	tripleRe        = regexp.MustCompile(`\((.*?), (.*?), (.*?)\)`)
	labeledTripleRe = regexp.MustCompile(`\((.*?), (.*?), (.*?)\) - ([^ ]*)`)
)

// Triple is one extracted subject-predicate-object statement.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

// ExtractedVertex is a vertex accumulated during extraction. ID is the
// client-side key "label-name"; the server assigns the real id at commit.
type ExtractedVertex struct {
	ID         string
	Name       string
	Label      string
	Properties map[string]interface{}
}

// ExtractedEdge joins two extracted vertices by their client-side keys.
type ExtractedEdge struct {
	Start string
	End   string
	Label string
}

// ExtractedGraph is everything extraction produced across all chunks.
type ExtractedGraph struct {
	Triples  []Triple
	Vertices []ExtractedVertex
	Edges    []ExtractedEdge
	Warnings []string
}

// Extractor turns chunk text into graph elements: one generation call per
// chunk, then regex parsing of the model output. With a schema the model is
// asked for "(X,Y,Z) - LABEL" lines resolved against the schema's vertex
// properties and edge labels; without one it is asked for plain SPO triples
// committed under a synthesized entity/edge schema.
type Extractor struct {
	generator llm.Generator
	schema    *schemaInfo
	template  string
	log       *zap.Logger
}

// NewExtractor creates an extractor. schema may be nil for schema-free SPO
// extraction. template overrides the built-in prompt; the placeholders
// {schema} and {text} are substituted per chunk.
func NewExtractor(generator llm.Generator, schema *schemaInfo, template string, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{generator: generator, schema: schema, template: template, log: log}
}

// Extract runs the extraction over the chunks in order. A generation failure
// aborts the whole extraction; parse misses never do.
func (e *Extractor) Extract(ctx context.Context, chunks []models.Chunk) (*ExtractedGraph, error) {
	acc := newAccumulator()
	for _, chunk := range chunks {
		output, err := e.generator.Generate(ctx, e.promptFor(chunk.Content))
		if err != nil {
			return nil, fmt.Errorf("extract triples from chunk %s: %w", chunk.ID, err)
		}
		e.log.Debug("extraction output",
			zap.String("chunk_id", chunk.ID),
			zap.String("output", utils.Truncate(output, 200)))
		if e.schema != nil {
			acc.addLabeled(e.schema, output)
		} else {
			acc.addPlain(output)
		}
	}
	return acc.finish(), nil
}

func (e *Extractor) promptFor(text string) string {
	if e.template != "" {
		prompt := strings.ReplaceAll(e.template, "{text}", text)
		if e.schema != nil {
			prompt = strings.ReplaceAll(prompt, "{schema}", e.schema.raw)
		}
		return prompt
	}
	if e.schema != nil {
		return fmt.Sprintf(schemaExtractPrompt, e.schema.raw, text)
	}
	return fmt.Sprintf(spoExtractPrompt, text)
}

// scrubOutput flattens model output before regex matching: escaped newlines,
// stray backslashes, and real newlines all become spaces so a triple split
// across lines still matches.
func scrubOutput(text string) string {
	text = strings.ReplaceAll(text, "\\n", " ")
	text = strings.ReplaceAll(text, "\\", " ")
	return strings.ReplaceAll(text, "\n", " ")
}

func cleanTerm(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

type accumulator struct {
	triples  []Triple
	vertices []ExtractedVertex
	edges    []ExtractedEdge
	index    map[string]int
}

func newAccumulator() *accumulator {
	return &accumulator{index: make(map[string]int)}
}

// vertex returns the key of the vertex with the given label and name,
// creating it on first sight and merging props into an existing one.
func (a *accumulator) vertex(label, name string, props map[string]interface{}) string {
	key := label + "-" + name
	if i, ok := a.index[key]; ok {
		for k, v := range props {
			a.vertices[i].Properties[k] = v
		}
		return key
	}
	merged := make(map[string]interface{}, len(props))
	for k, v := range props {
		merged[k] = v
	}
	a.vertices = append(a.vertices, ExtractedVertex{ID: key, Name: name, Label: label, Properties: merged})
	a.index[key] = len(a.vertices) - 1
	return key
}

// addPlain parses "(s, p, o)" forms. Every subject and object becomes an
// entity vertex; every predicate becomes an edge under its normalized label.
func (a *accumulator) addPlain(output string) {
	for _, m := range tripleRe.FindAllStringSubmatch(scrubOutput(output), -1) {
		s, p, o := cleanTerm(m[1]), cleanTerm(m[2]), cleanTerm(m[3])
		if s == "" || p == "" || o == "" {
			continue
		}
		a.triples = append(a.triples, Triple{Subject: s, Predicate: p, Object: o})
		start := a.vertex(defaultVertexLabel, s, nil)
		end := a.vertex(defaultVertexLabel, o, nil)
		if label := edgeLabelFor(p); label != "" {
			a.edges = append(a.edges, ExtractedEdge{Start: start, End: end, Label: label})
		}
	}
}

// addLabeled parses "(s, p, o) - LABEL" forms against the schema. A label
// matching a vertex label whose properties include p sets a vertex property;
// a label matching an edge label creates an edge with the schema's endpoint
// labels. The two checks are not exclusive.
func (a *accumulator) addLabeled(schema *schemaInfo, output string) {
	for _, m := range labeledTripleRe.FindAllStringSubmatch(scrubOutput(output), -1) {
		s, p, o, label := cleanTerm(m[1]), cleanTerm(m[2]), cleanTerm(m[3]), cleanTerm(m[4])
		if s == "" || p == "" || o == "" || label == "" {
			continue
		}
		for _, v := range schema.vertices {
			if v.Label == label && v.Properties[p] {
				a.vertex(label, s, map[string]interface{}{p: o})
				break
			}
		}
		for _, e := range schema.edges {
			if e.Label == label {
				a.triples = append(a.triples, Triple{Subject: s, Predicate: p, Object: o})
				start := a.vertex(e.SourceLabel, s, nil)
				end := a.vertex(e.TargetLabel, o, nil)
				a.edges = append(a.edges, ExtractedEdge{Start: start, End: end, Label: label})
				break
			}
		}
	}
}

// finish drops oversized vertex ids and the edges touching them, recording
// one warning per category.
func (a *accumulator) finish() *ExtractedGraph {
	g := &ExtractedGraph{Triples: a.triples}

	droppedVertices := 0
	for _, v := range a.vertices {
		if utf8.RuneCountInString(v.ID) >= maxVertexIDRunes {
			droppedVertices++
			continue
		}
		g.Vertices = append(g.Vertices, v)
	}
	droppedEdges := 0
	for _, e := range a.edges {
		if utf8.RuneCountInString(e.Start) >= maxVertexIDRunes || utf8.RuneCountInString(e.End) >= maxVertexIDRunes {
			droppedEdges++
			continue
		}
		g.Edges = append(g.Edges, e)
	}
	if droppedVertices > 0 {
		g.Warnings = append(g.Warnings, fmt.Sprintf("dropped %d vertices with oversized ids", droppedVertices))
	}
	if droppedEdges > 0 {
		g.Warnings = append(g.Warnings, fmt.Sprintf("dropped %d edges touching oversized ids", droppedEdges))
	}
	return g
}
