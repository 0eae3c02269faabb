package index_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/barbourakais/Ai-audio-chatbot/internal/index"
	"github.com/barbourakais/Ai-audio-chatbot/internal/knowledge"
)

func entry(id, text string, vec ...float32) index.Entry {
	return index.Entry{
		Chunk: knowledge.Chunk{
			ID:        id,
			SectionID: "company",
			Kind:      knowledge.KindFact,
			Text:      text,
			Hash:      knowledge.HashText(text),
		},
		Embedding: vec,
	}
}

func TestMemorySearchOrdersBySimilarity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewMemory(2)
	err := idx.Replace(ctx, []index.Entry{
		entry("a", "points east", 1, 0),
		entry("b", "points north", 0, 1),
		entry("c", "points northeast", 0.7, 0.7),
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}

	results, err := idx.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Entry.Chunk.ID != "a" || results[1].Entry.Chunk.ID != "c" {
		t.Errorf("order = %s, %s, want a, c", results[0].Entry.Chunk.ID, results[1].Entry.Chunk.ID)
	}
	if results[0].Score < 0.999 {
		t.Errorf("exact match score = %f, want ~1", results[0].Score)
	}
}

func TestMemorySearchTiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewMemory(2)
	err := idx.Replace(ctx, []index.Entry{
		entry("first", "one", 0, 1),
		entry("second", "two", 0, 1),
		entry("third", "three", 0, 1),
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}

	results, err := idx.Search(ctx, []float32{0, 1}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if results[i].Entry.Chunk.ID != w {
			t.Errorf("results[%d] = %s, want %s", i, results[i].Entry.Chunk.ID, w)
		}
	}
}

func TestMemorySearchClampsK(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewMemory(2)
	if err := idx.Replace(ctx, []index.Entry{entry("only", "one", 1, 0)}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	results, err := idx.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

func TestMemorySearchEmptyIndex(t *testing.T) {
	t.Parallel()

	results, err := index.NewMemory(2).Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestMemoryDimensionMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewMemory(3)
	err := idx.Replace(ctx, []index.Entry{entry("bad", "short vector", 1, 0)})
	if !errors.Is(err, index.ErrDimensionMismatch) {
		t.Errorf("Replace err = %v, want ErrDimensionMismatch", err)
	}

	if err := idx.Replace(ctx, []index.Entry{entry("ok", "fits", 1, 0, 0)}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	if !errors.Is(err, index.ErrDimensionMismatch) {
		t.Errorf("Search err = %v, want ErrDimensionMismatch", err)
	}
}

func TestMemoryReplaceIsAtomicUnderQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := index.NewMemory(2)

	setA := []index.Entry{entry("a1", "alpha", 1, 0), entry("a2", "alpha two", 0, 1)}
	setB := []index.Entry{
		entry("b1", "beta", 1, 0),
		entry("b2", "beta two", 0, 1),
		entry("b3", "beta three", 0.5, 0.5),
	}
	if err := idx.Replace(ctx, setA); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				results, err := idx.Search(ctx, []float32{1, 0}, 10)
				if err != nil {
					t.Errorf("Search: %v", err)
					return
				}
				// Either generation is fine, a mix is not.
				if n := len(results); n != 2 && n != 3 {
					t.Errorf("saw %d results, want 2 or 3", n)
					return
				}
			}
		}()
	}
	for range 50 {
		if err := idx.Replace(ctx, setB); err != nil {
			t.Errorf("Replace: %v", err)
		}
		if err := idx.Replace(ctx, setA); err != nil {
			t.Errorf("Replace: %v", err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "index.json")

	src := index.NewMemory(2)
	entries := []index.Entry{
		entry("a", "first chunk", 1, 0),
		entry("b", "second chunk", 0, 1),
	}
	if err := src.Replace(ctx, entries); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := index.SaveSnapshot(ctx, src, path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	dst := index.NewMemory(2)
	ok, err := index.LoadSnapshot(ctx, dst, path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if !ok {
		t.Fatal("LoadSnapshot ok = false, want true")
	}

	loaded, err := dst.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(loaded) != len(entries) {
		t.Fatalf("loaded %d entries, want %d", len(loaded), len(entries))
	}
	for i := range entries {
		if loaded[i].Chunk != entries[i].Chunk {
			t.Errorf("entry %d chunk differs: %+v vs %+v", i, loaded[i].Chunk, entries[i].Chunk)
		}
	}
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	t.Parallel()

	idx := index.NewMemory(2)
	ok, err := index.LoadSnapshot(context.Background(), idx, filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if ok {
		t.Error("LoadSnapshot ok = true for missing file, want false")
	}
	if n, _ := idx.Len(context.Background()); n != 0 {
		t.Errorf("index len = %d, want 0", n)
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := index.CosineSimilarity(tc.a, tc.b)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("CosineSimilarity = %f, want %f", got, tc.want)
			}
		})
	}
}
