// Package vector provides an exact nearest-neighbor index over fixed-dimension
// embeddings with paired-file persistence.
package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/mohae/deepcopy"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hyperjump/tsunagu/pkg/utils"
)

// Properties is the opaque payload stored alongside each vector and returned
// on a hit. Values must round-trip through msgpack; use interface{} maps and
// slices for nested data.
type Properties map[string]interface{}

var (
	// ErrDimensionMismatch means a vector's length disagrees with the index
	// dimension, or add was called with unequal vector/property counts.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrCorruptIndex means a persisted pair is missing, unreadable, or the
	// two files do not belong together.
	ErrCorruptIndex = errors.New("corrupt index files")
)

var payloadMagic = [4]byte{'T', 'V', 'I', 'X'}

const (
	payloadVersion = 1
	propsVersion   = 1
)

// FlatIndex holds vectors and their properties in insertion order and scans
// the whole set on every search (exact squared-L2, no approximation). Add is
// serialized by a write lock; searches run concurrently under a read lock.
type FlatIndex struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
	props   []Properties
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int) (*FlatIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	return &FlatIndex{dim: dimension}, nil
}

// Dimension returns the fixed vector dimension.
func (ix *FlatIndex) Dimension() int {
	return ix.dim
}

// Size returns the number of stored vectors.
func (ix *FlatIndex) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Add appends vectors and their properties in lock-step. Every vector must
// have the index dimension and len(vectors) must equal len(props); otherwise
// nothing is appended and ErrDimensionMismatch is returned. Vectors are
// copied; the index never aliases caller slices.
func (ix *FlatIndex) Add(vectors [][]float32, props []Properties) error {
	if len(vectors) != len(props) {
		return fmt.Errorf("%w: %d vectors with %d properties", ErrDimensionMismatch, len(vectors), len(props))
	}
	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("%w: vector %d has dimension %d, index has %d", ErrDimensionMismatch, i, len(v), ix.dim)
		}
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i, v := range vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		ix.vectors = append(ix.vectors, cp)
		ix.props = append(ix.props, props[i])
	}
	return nil
}

// Hit is one search result: the squared-L2 distance to the query and a deep
// copy of the stored properties.
type Hit struct {
	Distance float32
	Props    Properties
}

// Search returns up to topK hits in ascending distance order (closest first).
// Ties keep insertion order. An empty index yields no hits rather than an
// error. Returned properties are deep copies; mutating them does not affect
// the index.
func (ix *FlatIndex) Search(query []float32, topK int) ([]Hit, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	if topK < 1 {
		return nil, fmt.Errorf("topK must be at least 1, got %d", topK)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.vectors) == 0 {
		return nil, nil
	}
	type scored struct {
		idx  int
		dist float32
	}
	scores := make([]scored, len(ix.vectors))
	for i, v := range ix.vectors {
		scores[i] = scored{idx: i, dist: utils.SquaredL2(query, v)}
	}
	sort.Slice(scores, func(a, b int) bool {
		if scores[a].dist != scores[b].dist {
			return scores[a].dist < scores[b].dist
		}
		return scores[a].idx < scores[b].idx
	})
	if topK > len(scores) {
		topK = len(scores)
	}
	hits := make([]Hit, topK)
	for i := 0; i < topK; i++ {
		hits[i] = Hit{Distance: scores[i].dist, Props: cloneProps(ix.props[scores[i].idx])}
	}
	return hits, nil
}

func cloneProps(p Properties) Properties {
	if p == nil {
		return nil
	}
	return deepcopy.Copy(p).(Properties)
}

// propsEnvelope is the on-disk shape of the properties payload.
type propsEnvelope struct {
	Version int          `msgpack:"version"`
	Count   int          `msgpack:"count"`
	Props   []Properties `msgpack:"props"`
}

// Persist writes the index as a matched pair: the vector payload at indexPath
// and the properties payload at propsPath. The two files must always be
// written and read together; neither is meaningful alone.
func (ix *FlatIndex) Persist(indexPath, propsPath string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if err := ix.writeVectors(indexPath); err != nil {
		return fmt.Errorf("write vector payload %s: %w", indexPath, err)
	}
	if err := ix.writeProps(propsPath); err != nil {
		return fmt.Errorf("write properties payload %s: %w", propsPath, err)
	}
	return nil
}

func (ix *FlatIndex) writeVectors(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(payloadMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint8(payloadVersion)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(ix.dim)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(ix.vectors))); err != nil {
		return err
	}
	for _, v := range ix.vectors {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return f.Sync()
}

func (ix *FlatIndex) writeProps(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	env := propsEnvelope{Version: propsVersion, Count: len(ix.props), Props: ix.props}
	if err := msgpack.NewEncoder(f).Encode(&env); err != nil {
		return err
	}
	return f.Sync()
}

// Load reconstructs an index from a persisted pair. The dimension is
// recovered from the vector payload. A missing, unreadable, truncated, or
// mismatched file fails fast with ErrCorruptIndex; a half-loaded index is
// never returned.
func Load(indexPath, propsPath string) (*FlatIndex, error) {
	dim, vectors, err := readVectors(indexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: vector payload %s: %v", ErrCorruptIndex, indexPath, err)
	}
	props, err := readProps(propsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: properties payload %s: %v", ErrCorruptIndex, propsPath, err)
	}
	if len(props) != len(vectors) {
		return nil, fmt.Errorf("%w: %d vectors but %d properties, files are not a pair", ErrCorruptIndex, len(vectors), len(props))
	}
	return &FlatIndex{dim: dim, vectors: vectors, props: props}, nil
}

func readVectors(path string) (int, [][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return 0, nil, fmt.Errorf("read header: %v", err)
	}
	if magic != payloadMagic {
		return 0, nil, fmt.Errorf("bad magic %q", magic[:])
	}
	var ver uint8
	if err := binary.Read(f, binary.LittleEndian, &ver); err != nil {
		return 0, nil, fmt.Errorf("read version: %v", err)
	}
	if ver != payloadVersion {
		return 0, nil, fmt.Errorf("unsupported payload version %d", ver)
	}
	var dim, count uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return 0, nil, fmt.Errorf("read dimension: %v", err)
	}
	if dim == 0 {
		return 0, nil, fmt.Errorf("zero dimension")
	}
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return 0, nil, fmt.Errorf("read count: %v", err)
	}
	vectors := make([][]float32, 0, count)
	for i := uint32(0); i < count; i++ {
		v := make([]float32, dim)
		if err := binary.Read(f, binary.LittleEndian, v); err != nil {
			return 0, nil, fmt.Errorf("read vector %d of %d: %v", i, count, err)
		}
		vectors = append(vectors, v)
	}
	// The payload must end exactly after the last vector.
	var extra [1]byte
	if _, err := f.Read(extra[:]); err != io.EOF {
		return 0, nil, fmt.Errorf("trailing data after %d vectors", count)
	}
	return int(dim), vectors, nil
}

func readProps(path string) ([]Properties, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var env propsEnvelope
	if err := msgpack.NewDecoder(f).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode: %v", err)
	}
	if env.Version != propsVersion {
		return nil, fmt.Errorf("unsupported properties version %d", env.Version)
	}
	if env.Count != len(env.Props) {
		return nil, fmt.Errorf("envelope count %d does not match %d properties", env.Count, len(env.Props))
	}
	return env.Props, nil
}
