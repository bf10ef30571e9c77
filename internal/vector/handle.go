package vector

import "sync"

// Handle wraps a replaceable FlatIndex behind one stable reference. Query
// paths hold the Handle while builds swap a freshly built index underneath
// them; since FlatIndex is append-only, a swap is also the only way to clear
// one. The wrapped index must never be nil.
type Handle struct {
	mu  sync.RWMutex
	idx *FlatIndex
}

// NewHandle wraps the given index.
func NewHandle(idx *FlatIndex) *Handle {
	return &Handle{idx: idx}
}

// Index returns the current index.
func (h *Handle) Index() *FlatIndex {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idx
}

// Swap installs a new index and returns the previous one. In-flight searches
// against the old index finish against the old index.
func (h *Handle) Swap(idx *FlatIndex) *FlatIndex {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.idx
	h.idx = idx
	return old
}

// Search runs against the current index.
func (h *Handle) Search(query []float32, topK int) ([]Hit, error) {
	return h.Index().Search(query, topK)
}

// Add appends to the current index.
func (h *Handle) Add(vectors [][]float32, props []Properties) error {
	return h.Index().Add(vectors, props)
}

// Size reports the current index size.
func (h *Handle) Size() int {
	return h.Index().Size()
}

// Dimension reports the current index dimension.
func (h *Handle) Dimension() int {
	return h.Index().Dimension()
}

// Persist writes the current index as a paired payload.
func (h *Handle) Persist(indexPath, propsPath string) error {
	return h.Index().Persist(indexPath, propsPath)
}
