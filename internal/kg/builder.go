// Package kg builds the knowledge graph and its vector indices from source
// documents: split into chunks, extract triples with the language model,
// commit schema and elements to the graph store, and index chunk and vertex
// embeddings for retrieval. Which of those side effects actually run is
// selected by the build mode.
package kg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/fileid"
	"github.com/hyperjump/tsunagu/internal/graph"
	"github.com/hyperjump/tsunagu/internal/llm"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/store"
	"github.com/hyperjump/tsunagu/internal/vector"
)

// ErrInvalidRequest marks build requests rejected before any work happens.
var ErrInvalidRequest = errors.New("invalid build request")

// Index pair base names under the index directory.
const (
	ChunkIndexName = "chunks"
	VidIndexName   = "vids"
)

// SourceExtractor extracts plain text from a document file.
type SourceExtractor interface {
	Extract(path string) (string, error)
}

// GraphStore is the graph access a build needs.
type GraphStore interface {
	ImportSchema(ctx context.Context, s *graph.Schema) (int, error)
	AddVertices(ctx context.Context, vertices []graph.Vertex) ([]string, error)
	AddEdges(ctx context.Context, edges []graph.Edge) (int, error)
	ClearData(ctx context.Context) error
	Vertices(ctx context.Context, limit int) ([]graph.VertexRecord, error)
}

// VidMatcher is the fuzzy vertex-name matcher refreshed after commits.
type VidMatcher interface {
	Rebuild(ids []string) error
}

// BuilderOptions tunes a Builder.
type BuilderOptions struct {
	// ChunkSize and ChunkOverlap are the splitter window, in words.
	ChunkSize    int
	ChunkOverlap int
	// FetchLimit caps how many vertices a graph refresh fetches.
	FetchLimit int
	// IndexDir is where index payloads persist. Empty disables persistence.
	IndexDir string
}

// DefaultBuilderOptions returns the defaults used when none are given.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{ChunkSize: 512, ChunkOverlap: 50, FetchLimit: 10000}
}

// Builder runs knowledge-graph construction end to end. One Builder serves
// all modes; every run selects its side effects via the request mode.
type Builder struct {
	embedder  embedding.Embedder
	generator llm.Generator
	graph     GraphStore
	store     *store.Store
	extractor SourceExtractor
	chunks    *vector.Handle
	vids      *vector.Handle
	matcher   VidMatcher
	splitter  *Splitter
	log       *zap.Logger
	opts      BuilderOptions

	// mu serializes runs. Concurrent builds would interleave vid-index swaps
	// and write the persisted index files over each other.
	mu sync.Mutex
}

// NewBuilder wires a builder. embedder, generator, and store are required.
// graph may be nil when only test-mode runs are expected; extractor may be
// nil when no file sources are used; matcher may be nil to skip fuzzy-match
// refreshes.
func NewBuilder(
	embedder embedding.Embedder,
	generator llm.Generator,
	graphStore GraphStore,
	st *store.Store,
	extractor SourceExtractor,
	chunks *vector.Handle,
	vids *vector.Handle,
	matcher VidMatcher,
	log *zap.Logger,
	opts *BuilderOptions,
) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	o := DefaultBuilderOptions()
	if opts != nil {
		if opts.ChunkSize > 0 {
			o.ChunkSize = opts.ChunkSize
		}
		if opts.ChunkOverlap > 0 {
			o.ChunkOverlap = opts.ChunkOverlap
		}
		if opts.FetchLimit > 0 {
			o.FetchLimit = opts.FetchLimit
		}
		o.IndexDir = opts.IndexDir
	}
	return &Builder{
		embedder:  embedder,
		generator: generator,
		graph:     graphStore,
		store:     st,
		extractor: extractor,
		chunks:    chunks,
		vids:      vids,
		matcher:   matcher,
		splitter:  NewSplitter(o.ChunkSize, o.ChunkOverlap),
		log:       log,
		opts:      o,
	}
}

// Build runs one construction invocation. An empty runID gets a generated
// one; callers starting builds asynchronously pass their own so the run can
// be polled before Build returns. Runs serialize: a build arriving while
// another is in flight waits its turn, and its run record exists only once
// it starts. The record is finalized whatever happens; committed side
// effects are never rolled back.
func (b *Builder) Build(ctx context.Context, runID string, req models.BuildRequest) (*models.BuildResult, error) {
	mode, err := ParseMode(req.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validateRequest(mode, req); err != nil {
		return nil, err
	}
	if runID == "" {
		runID = uuid.New().String()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	run := &models.BuildRun{
		ID:        runID,
		Mode:      string(mode),
		Source:    sourceName(req),
		Status:    models.BuildRunning,
		StartedAt: start,
	}
	if err := b.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record build run: %w", err)
	}
	b.log.Info("build started",
		zap.String("run_id", runID),
		zap.String("mode", string(mode)),
		zap.String("source", run.Source))

	result, err := b.run(ctx, mode, req)
	if err != nil {
		run.Status = models.BuildFailed
		run.Error = err.Error()
		run.FinishedAt = time.Now()
		if ferr := b.store.FinishRun(ctx, run); ferr != nil {
			b.log.Warn("finalize failed build run", zap.String("run_id", runID), zap.Error(ferr))
		}
		return nil, err
	}

	result.RunID = runID
	result.Mode = string(mode)
	result.Took = time.Since(start)

	run.Status = models.BuildDone
	if result.Skipped {
		run.Status = models.BuildSkipped
	}
	run.Chunks = result.Chunks
	run.Vertices = result.Vertices
	run.Edges = result.Edges
	run.Indexed = result.Indexed
	run.Warnings = result.Warnings
	run.FinishedAt = time.Now()
	if err := b.store.FinishRun(ctx, run); err != nil {
		b.log.Warn("finalize build run", zap.String("run_id", runID), zap.Error(err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("run record not finalized: %v", err))
	}

	b.log.Info("build finished",
		zap.String("run_id", runID),
		zap.String("mode", string(mode)),
		zap.Int("chunks", result.Chunks),
		zap.Int("vertices", result.Vertices),
		zap.Int("edges", result.Edges),
		zap.Int("indexed", result.Indexed),
		zap.Bool("skipped", result.Skipped),
		zap.Duration("took", result.Took))
	return result, nil
}

func (b *Builder) run(ctx context.Context, mode Mode, req models.BuildRequest) (*models.BuildResult, error) {
	eff := mode.effects()
	result := &models.BuildResult{}

	if mode == ModeRebuildVector {
		if b.graph == nil {
			return nil, fmt.Errorf("mode %q needs a graph store", mode)
		}
		return b.rebuildFromGraph(ctx, result)
	}
	if (eff.doClearGraph || eff.doCommitGraph) && b.graph == nil {
		return nil, fmt.Errorf("mode %q needs a graph store", mode)
	}

	docID, title, text, err := b.resolveSource(req)
	if err != nil {
		return nil, err
	}
	hash := fileid.ContentHash(text)

	if mode == ModeAppend {
		doc, err := b.store.GetDocument(ctx, docID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check existing document: %w", err)
		}
		if err == nil && doc.ContentHash == hash {
			b.log.Info("source unchanged, skipping", zap.String("doc_id", docID), zap.String("title", title))
			result.Skipped = true
			return result, nil
		}
	}

	chunks := b.splitter.Split(docID, text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: source %q has no extractable text", ErrInvalidRequest, title)
	}
	result.Chunks = len(chunks)

	// Parse the schema before any model call so a malformed document fails
	// the run up front.
	var info *schemaInfo
	if req.SchemaJSON != "" {
		info, err = parseSchemaInfo(req.SchemaJSON)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	extractor := NewExtractor(b.generator, info, req.ExtractPrompt, b.log)
	extracted, err := extractor.Extract(ctx, chunks)
	if err != nil {
		return nil, err
	}
	result.Vertices = len(extracted.Vertices)
	result.Edges = len(extracted.Edges)
	result.Warnings = extracted.Warnings

	var schema *graph.Schema
	if info != nil {
		schema = info.schema
	} else if len(extracted.Vertices) > 0 {
		schema, err = synthesizeSchema(extracted)
		if err != nil {
			return nil, err
		}
	}

	if eff.doIndex {
		indexed, err := b.indexChunks(ctx, chunks, eff.doClearIndex)
		if err != nil {
			return nil, err
		}
		result.Indexed = indexed
		if err := b.store.UpsertDocument(ctx, &models.Document{ID: docID, Title: title, Path: req.SourcePath, ContentHash: hash}); err != nil {
			return nil, fmt.Errorf("record document: %w", err)
		}
		if err := b.store.ReplaceChunks(ctx, docID, chunks); err != nil {
			return nil, fmt.Errorf("record chunks: %w", err)
		}
	}

	if eff.doClearGraph {
		if err := b.graph.ClearData(ctx); err != nil {
			return nil, fmt.Errorf("clear graph data: %w", err)
		}
		b.log.Info("graph data cleared")
	}

	if eff.doCommitGraph {
		ids, edges, err := b.commit(ctx, schema, extracted)
		if err != nil {
			return nil, err
		}
		result.Vertices = len(ids)
		result.Edges = edges
	}

	if eff.doIndex && eff.doCommitGraph {
		if _, err := b.refreshVids(ctx); err != nil {
			return nil, err
		}
	}

	if eff.doIndex {
		if err := b.persistIndices(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// rebuildFromGraph recomputes both vector indices from the already committed
// graph: the chunk index from rendered vertex text, the vid index from
// vertex ids. Extraction and graph writes are skipped entirely.
func (b *Builder) rebuildFromGraph(ctx context.Context, result *models.BuildResult) (*models.BuildResult, error) {
	records, err := b.graph.Vertices(ctx, b.opts.FetchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch graph vertices: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("graph has no vertices to rebuild from")
	}

	texts := make([]string, len(records))
	props := make([]vector.Properties, len(records))
	for i, r := range records {
		texts[i] = renderVertex(r)
		props[i] = vector.Properties{models.PropContent: texts[i], models.PropVid: r.ID}
	}
	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed graph vertices: %w", err)
	}
	fresh, err := vector.New(b.embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	if err := fresh.Add(vectors, props); err != nil {
		return nil, fmt.Errorf("rebuild chunk index: %w", err)
	}
	b.chunks.Swap(fresh)

	indexed, err := b.refreshVids(ctx)
	if err != nil {
		return nil, err
	}
	result.Vertices = len(records)
	result.Indexed = len(records)
	b.log.Info("vector indices rebuilt from graph", zap.Int("vertices", len(records)), zap.Int("vids", indexed))

	if err := b.persistIndices(); err != nil {
		return nil, err
	}
	return result, nil
}

// indexChunks embeds the chunks and writes them to the chunk index: into a
// fresh one when clearing, appended otherwise.
func (b *Builder) indexChunks(ctx context.Context, chunks []models.Chunk, clear bool) (int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	props := make([]vector.Properties, len(chunks))
	for i, c := range chunks {
		props[i] = vector.Properties{
			models.PropContent: c.Content,
			models.PropDocID:   c.DocumentID,
			models.PropChunkID: c.ID,
		}
	}
	if clear {
		fresh, err := vector.New(b.embedder.Dimensions())
		if err != nil {
			return 0, err
		}
		if err := fresh.Add(vectors, props); err != nil {
			return 0, fmt.Errorf("build chunk index: %w", err)
		}
		b.chunks.Swap(fresh)
		return len(chunks), nil
	}
	if err := b.chunks.Add(vectors, props); err != nil {
		return 0, fmt.Errorf("append chunk index: %w", err)
	}
	return len(chunks), nil
}

// commit imports the schema, then the vertices, then the edges. Edge
// endpoints are mapped from the client-side "label-name" keys to the ids the
// vertex batch returned.
func (b *Builder) commit(ctx context.Context, schema *graph.Schema, ex *ExtractedGraph) ([]string, int, error) {
	if schema != nil {
		created, err := b.graph.ImportSchema(ctx, schema)
		if err != nil {
			return nil, 0, fmt.Errorf("import schema: %w", err)
		}
		if created > 0 {
			b.log.Info("schema elements created", zap.Int("count", created))
		}
	}
	if len(ex.Vertices) == 0 {
		return nil, 0, nil
	}

	vertices := make([]graph.Vertex, len(ex.Vertices))
	for i, v := range ex.Vertices {
		props := make(map[string]interface{}, len(v.Properties)+1)
		for k, val := range v.Properties {
			props[k] = val
		}
		// The name always rides along as a property so primary-key labels
		// keyed by name can materialize the vertex.
		if _, ok := props[nameProperty]; !ok {
			props[nameProperty] = v.Name
		}
		vertices[i] = graph.Vertex{Label: v.Label, Properties: props}
	}
	ids, err := b.graph.AddVertices(ctx, vertices)
	if err != nil {
		return nil, 0, fmt.Errorf("commit vertices: %w", err)
	}

	byKey := make(map[string]int, len(ex.Vertices))
	for i, v := range ex.Vertices {
		byKey[v.ID] = i
	}
	edges := make([]graph.Edge, 0, len(ex.Edges))
	for _, e := range ex.Edges {
		si, ok := byKey[e.Start]
		ti, tok := byKey[e.End]
		if !ok || !tok || si >= len(ids) || ti >= len(ids) {
			continue
		}
		edges = append(edges, graph.Edge{
			Label:     e.Label,
			OutV:      ids[si],
			OutVLabel: ex.Vertices[si].Label,
			InV:       ids[ti],
			InVLabel:  ex.Vertices[ti].Label,
		})
	}
	committed, err := b.graph.AddEdges(ctx, edges)
	if err != nil {
		return ids, 0, fmt.Errorf("commit edges: %w", err)
	}
	return ids, committed, nil
}

// refreshVids rebuilds the vid semantic index and the fuzzy matcher from the
// full committed vertex set.
func (b *Builder) refreshVids(ctx context.Context) (int, error) {
	records, err := b.graph.Vertices(ctx, b.opts.FetchLimit)
	if err != nil {
		return 0, fmt.Errorf("fetch graph vertices: %w", err)
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}

	fresh, err := vector.New(b.embedder.Dimensions())
	if err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		vectors, err := b.embedder.EmbedBatch(ctx, ids)
		if err != nil {
			return 0, fmt.Errorf("embed vertex ids: %w", err)
		}
		props := make([]vector.Properties, len(ids))
		for i, id := range ids {
			props[i] = vector.Properties{models.PropVid: id}
		}
		if err := fresh.Add(vectors, props); err != nil {
			return 0, fmt.Errorf("build vid index: %w", err)
		}
	}
	b.vids.Swap(fresh)

	if b.matcher != nil {
		if err := b.matcher.Rebuild(ids); err != nil {
			return 0, fmt.Errorf("rebuild vid matcher: %w", err)
		}
	}
	return len(ids), nil
}

// PersistIndices writes both index pairs to the configured index directory,
// so a restart does not lose additions made since the last build. No-op when
// persistence is disabled.
func (b *Builder) PersistIndices() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.persistIndices()
}

func (b *Builder) persistIndices() error {
	if b.opts.IndexDir == "" {
		return nil
	}
	if err := os.MkdirAll(b.opts.IndexDir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := b.chunks.Persist(indexPair(b.opts.IndexDir, ChunkIndexName)); err != nil {
		return fmt.Errorf("persist chunk index: %w", err)
	}
	if err := b.vids.Persist(indexPair(b.opts.IndexDir, VidIndexName)); err != nil {
		return fmt.Errorf("persist vid index: %w", err)
	}
	return nil
}

// indexPair returns the vector and properties paths for a named index pair.
func indexPair(dir, name string) (string, string) {
	return filepath.Join(dir, name+".vec"), filepath.Join(dir, name+".props")
}

// LoadOrNew loads a persisted index pair from dir, or returns a fresh empty
// index of the given dimension when the pair has never been written.
func LoadOrNew(dir, name string, dim int) (*vector.FlatIndex, error) {
	vecPath, propsPath := indexPair(dir, name)
	if _, err := os.Stat(vecPath); errors.Is(err, os.ErrNotExist) {
		return vector.New(dim)
	}
	return vector.Load(vecPath, propsPath)
}

// ValidateRequest checks a request exactly the way Build would, without
// running anything. Callers that accept builds asynchronously use it to turn
// malformed requests away while the client is still on the line.
func ValidateRequest(req models.BuildRequest) error {
	mode, err := ParseMode(req.Mode)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return validateRequest(mode, req)
}

// validateRequest rejects malformed requests before a run record exists, so
// run rows always correspond to real build attempts.
func validateRequest(mode Mode, req models.BuildRequest) error {
	if mode == ModeRebuildVector {
		return nil
	}
	switch {
	case req.SourcePath != "" && req.SourceText != "":
		return fmt.Errorf("%w: source_path and source_text are mutually exclusive", ErrInvalidRequest)
	case req.SourcePath == "" && req.SourceText == "":
		return fmt.Errorf("%w: source_path or source_text required", ErrInvalidRequest)
	}
	return nil
}

func (b *Builder) resolveSource(req models.BuildRequest) (docID, title, text string, err error) {
	if req.SourcePath != "" {
		if b.extractor == nil {
			return "", "", "", fmt.Errorf("%w: no file extractor configured", ErrInvalidRequest)
		}
		text, err = b.extractor.Extract(req.SourcePath)
		if err != nil {
			return "", "", "", fmt.Errorf("extract %s: %w", req.SourcePath, err)
		}
		title = req.Title
		if title == "" {
			title = filepath.Base(req.SourcePath)
		}
		return fileid.FileDocID(req.SourcePath), title, text, nil
	}
	title = req.Title
	if title == "" {
		title = "inline-text"
	}
	return fileid.TextDocID(title, req.SourceText), title, req.SourceText, nil
}

func sourceName(req models.BuildRequest) string {
	switch {
	case req.SourcePath != "":
		return req.SourcePath
	case req.Title != "":
		return req.Title
	case req.SourceText != "":
		return "inline-text"
	default:
		return "graph"
	}
}
