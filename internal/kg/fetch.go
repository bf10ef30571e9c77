package kg

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/tsunagu/internal/graph"
)

// renderVertex flattens a fetched vertex into one line of indexable text,
// "id (label): k=v, k=v" with property keys sorted for determinism. This is
// what the similarity index serves when it is rebuilt from the graph.
func renderVertex(v graph.VertexRecord) string {
	var b strings.Builder
	b.WriteString(v.ID)
	if v.Label != "" {
		fmt.Fprintf(&b, " (%s)", v.Label)
	}
	if len(v.Properties) > 0 {
		keys := make([]string, 0, len(v.Properties))
		for k := range v.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v.Properties[k]))
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(parts, ", "))
	}
	return b.String()
}
