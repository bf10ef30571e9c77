package vector

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewRejectsBadDimension(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero dimension")
	}
	if _, err := New(-3); err == nil {
		t.Fatal("expected error for negative dimension")
	}
}

func TestAddAndSearch(t *testing.T) {
	ix, err := New(3)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	err = ix.Add(
		[][]float32{{1, 0, 0}, {0, 1, 0}},
		[]Properties{{"text": "A"}, {"text": "B"}},
	)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if ix.Size() != 2 {
		t.Fatalf("Size = %d, want 2", ix.Size())
	}

	hits, err := ix.Search([]float32{1, 0, 0.1}, 1)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Props["text"] != "A" {
		t.Errorf("closest hit = %v, want A", hits[0].Props["text"])
	}
}

func TestSearchOrderAscendingDistance(t *testing.T) {
	ix, _ := New(2)
	err := ix.Add(
		[][]float32{{10, 0}, {1, 0}, {5, 0}},
		[]Properties{{"text": "far"}, {"text": "near"}, {"text": "mid"}},
	)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	hits, err := ix.Search([]float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	got := []string{}
	for _, h := range hits {
		got = append(got, h.Props["text"].(string))
	}
	want := []string{"near", "mid", "far"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if !(hits[0].Distance < hits[1].Distance && hits[1].Distance < hits[2].Distance) {
		t.Errorf("distances not ascending: %v %v %v", hits[0].Distance, hits[1].Distance, hits[2].Distance)
	}
}

func TestSearchUpperBound(t *testing.T) {
	ix, _ := New(2)
	_ = ix.Add([][]float32{{1, 0}, {0, 1}}, []Properties{{"text": "a"}, {"text": "b"}})

	hits, err := ix.Search([]float32{1, 1}, 10)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits, want 2 (index size)", len(hits))
	}
	hits, _ = ix.Search([]float32{1, 1}, 1)
	if len(hits) != 1 {
		t.Errorf("got %d hits, want 1 (topK)", len(hits))
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	ix, _ := New(4)
	hits, err := ix.Search([]float32{0, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("empty index search must not fail: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits from empty index", len(hits))
	}
}

func TestDimensionMismatch(t *testing.T) {
	ix, _ := New(3)
	err := ix.Add([][]float32{{1, 0}}, []Properties{{"text": "short"}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Add wrong dimension: got %v", err)
	}
	if ix.Size() != 0 {
		t.Error("failed Add must not grow the index")
	}

	err = ix.Add([][]float32{{1, 0, 0}, {0, 1, 0}}, []Properties{{"text": "only one"}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Add unequal lengths: got %v", err)
	}

	_, err = ix.Search([]float32{1, 0}, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Search wrong dimension: got %v", err)
	}
}

func TestSearchRejectsBadTopK(t *testing.T) {
	ix, _ := New(2)
	if _, err := ix.Search([]float32{0, 0}, 0); err == nil {
		t.Fatal("expected error for topK 0")
	}
}

func TestAppendOnlyGrowth(t *testing.T) {
	ix, _ := New(2)
	_ = ix.Add([][]float32{{1, 0}}, []Properties{{"text": "first"}})
	_ = ix.Add([][]float32{{0, 1}, {1, 1}}, []Properties{{"text": "second"}, {"text": "third"}})
	if ix.Size() != 3 {
		t.Fatalf("Size = %d, want 3", ix.Size())
	}
	// The earliest entry is still reachable and unchanged.
	hits, err := ix.Search([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if hits[0].Props["text"] != "first" {
		t.Errorf("first entry = %v, want first", hits[0].Props["text"])
	}
}

func TestSearchReturnsDeepCopies(t *testing.T) {
	ix, _ := New(2)
	_ = ix.Add([][]float32{{1, 0}}, []Properties{{"text": "original", "meta": map[string]interface{}{"vid": "1:a"}}})

	hits, _ := ix.Search([]float32{1, 0}, 1)
	hits[0].Props["text"] = "mutated"
	hits[0].Props["meta"].(map[string]interface{})["vid"] = "mutated"

	again, _ := ix.Search([]float32{1, 0}, 1)
	if again[0].Props["text"] != "original" {
		t.Error("index storage was mutated through a returned hit")
	}
	if again[0].Props["meta"].(map[string]interface{})["vid"] != "1:a" {
		t.Error("nested property was mutated through a returned hit")
	}
}

func TestAddCopiesVectors(t *testing.T) {
	ix, _ := New(2)
	v := []float32{1, 0}
	_ = ix.Add([][]float32{v}, []Properties{{"text": "a"}})
	v[0] = 99

	hits, _ := ix.Search([]float32{1, 0}, 1)
	if hits[0].Distance != 0 {
		t.Errorf("stored vector aliased caller slice, distance = %v", hits[0].Distance)
	}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "chunks.vec")
	propsPath := filepath.Join(dir, "chunks.props")

	ix, _ := New(3)
	err := ix.Add(
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		[]Properties{
			{"text": "A"},
			{"text": "B", "meta": map[string]interface{}{"vid": "1:b"}},
			{"text": "C"},
		},
	)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := ix.Persist(indexPath, propsPath); err != nil {
		t.Fatalf("Persist error: %v", err)
	}

	loaded, err := Load(indexPath, propsPath)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if loaded.Dimension() != 3 {
		t.Errorf("Dimension = %d, want 3 (recovered from payload)", loaded.Dimension())
	}
	if loaded.Size() != 3 {
		t.Errorf("Size = %d, want 3", loaded.Size())
	}

	queries := [][]float32{{1, 0, 0}, {0, 1, 0.1}, {0.2, 0.2, 0.9}}
	for _, q := range queries {
		want, err := ix.Search(q, 3)
		if err != nil {
			t.Fatalf("Search original: %v", err)
		}
		got, err := loaded.Search(q, 3)
		if err != nil {
			t.Fatalf("Search loaded: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("query %v: loaded results differ\ngot  %v\nwant %v", q, got, want)
		}
	}
}

func TestLoadMissingPartnerFails(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "chunks.vec")
	propsPath := filepath.Join(dir, "chunks.props")

	ix, _ := New(2)
	_ = ix.Add([][]float32{{1, 0}}, []Properties{{"text": "a"}})
	if err := ix.Persist(indexPath, propsPath); err != nil {
		t.Fatalf("Persist error: %v", err)
	}

	if err := os.Remove(propsPath); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(indexPath, propsPath); !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("missing properties file: got %v, want ErrCorruptIndex", err)
	}

	if _, err := Load(filepath.Join(dir, "nope.vec"), propsPath); !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("missing vector file: got %v, want ErrCorruptIndex", err)
	}
}

func TestLoadUnpairedFilesFail(t *testing.T) {
	dir := t.TempDir()

	one, _ := New(2)
	_ = one.Add([][]float32{{1, 0}}, []Properties{{"text": "a"}})
	if err := one.Persist(filepath.Join(dir, "one.vec"), filepath.Join(dir, "one.props")); err != nil {
		t.Fatal(err)
	}

	two, _ := New(2)
	_ = two.Add([][]float32{{1, 0}, {0, 1}}, []Properties{{"text": "a"}, {"text": "b"}})
	if err := two.Persist(filepath.Join(dir, "two.vec"), filepath.Join(dir, "two.props")); err != nil {
		t.Fatal(err)
	}

	// Vector payload of one index with the properties payload of another.
	_, err := Load(filepath.Join(dir, "one.vec"), filepath.Join(dir, "two.props"))
	if !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("mixed pair: got %v, want ErrCorruptIndex", err)
	}
}

func TestLoadGarbageFails(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "bad.vec")
	propsPath := filepath.Join(dir, "bad.props")
	if err := os.WriteFile(indexPath, []byte("not an index"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(propsPath, []byte{0xc1}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(indexPath, propsPath); !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("garbage payload: got %v, want ErrCorruptIndex", err)
	}
}

func TestLoadTruncatedVectorPayloadFails(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "chunks.vec")
	propsPath := filepath.Join(dir, "chunks.props")

	ix, _ := New(4)
	_ = ix.Add([][]float32{{1, 2, 3, 4}, {5, 6, 7, 8}}, []Properties{{"text": "a"}, {"text": "b"}})
	if err := ix.Persist(indexPath, propsPath); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(indexPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(indexPath, data[:len(data)-5], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(indexPath, propsPath); !errors.Is(err, ErrCorruptIndex) {
		t.Fatalf("truncated payload: got %v, want ErrCorruptIndex", err)
	}
}

func TestPersistEmptyIndexRoundTrips(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "empty.vec")
	propsPath := filepath.Join(dir, "empty.props")

	ix, _ := New(5)
	if err := ix.Persist(indexPath, propsPath); err != nil {
		t.Fatalf("Persist error: %v", err)
	}
	loaded, err := Load(indexPath, propsPath)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if loaded.Dimension() != 5 || loaded.Size() != 0 {
		t.Errorf("got dim %d size %d, want dim 5 size 0", loaded.Dimension(), loaded.Size())
	}
}
