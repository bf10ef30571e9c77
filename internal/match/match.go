// Package match resolves free-form keywords to graph vertex ids with fuzzy
// matching. The index lives in memory and is rebuilt from the graph after
// every commit, so there is nothing to persist.
package match

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const defaultFuzziness = 2

// vertexDoc is the indexed document per vertex id. The standard analyzer
// tokenizes ids like "1:alice" into searchable words.
type vertexDoc struct {
	Name string `json:"name"`
}

// Matcher is an in-memory fuzzy index over vertex ids.
type Matcher struct {
	mu        sync.RWMutex
	index     bleve.Index
	fuzziness int
}

// NewMatcher creates an empty matcher.
func NewMatcher() (*Matcher, error) {
	index, err := newMemIndex()
	if err != nil {
		return nil, err
	}
	return &Matcher{index: index, fuzziness: defaultFuzziness}, nil
}

func newMemIndex() (bleve.Index, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so a keyword
	// matches the exact word it was written as.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	im.AddDocumentMapping("vertex", docMapping)
	im.DefaultType = "vertex"
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create matcher index: %w", err)
	}
	return index, nil
}

// Rebuild replaces the indexed ids with the given set.
func (m *Matcher) Rebuild(ids []string) error {
	fresh, err := newMemIndex()
	if err != nil {
		return err
	}
	batch := fresh.NewBatch()
	for _, id := range ids {
		if err := batch.Index(id, vertexDoc{Name: id}); err != nil {
			fresh.Close()
			return fmt.Errorf("failed to index vertex id %q: %w", id, err)
		}
	}
	if err := fresh.Batch(batch); err != nil {
		fresh.Close()
		return fmt.Errorf("failed to apply matcher batch: %w", err)
	}

	m.mu.Lock()
	old := m.index
	m.index = fresh
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Match returns up to limit vertex ids whose names fuzzy-match keyword,
// best first. An empty keyword matches nothing.
func (m *Matcher) Match(keyword string, limit int) ([]string, error) {
	terms := strings.Fields(strings.ToLower(keyword))
	if len(terms) == 0 {
		return nil, nil
	}
	if limit < 1 {
		limit = 1
	}

	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(m.fuzziness)
		fq.SetField("name")
		queries = append(queries, fq)
	}
	var q blevequery.Query
	if len(queries) == 1 {
		q = queries[0]
	} else {
		q = bleve.NewDisjunctionQuery(queries...)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit

	m.mu.RLock()
	defer m.mu.RUnlock()
	results, err := m.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("matcher search failed: %w", err)
	}
	ids := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Size returns how many vertex ids are indexed.
func (m *Matcher) Size() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.DocCount()
}

// Close closes the underlying index.
func (m *Matcher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == nil {
		return nil
	}
	err := m.index.Close()
	m.index = nil
	return err
}
