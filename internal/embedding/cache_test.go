package embedding

import (
	"context"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Get("a") // a is now most recently used
	c.Set("c", []float32{6}) // evicts b
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestEmbeddingCache_ReturnsCopies(t *testing.T) {
	c := NewEmbeddingCache(4)
	in := []float32{1, 2}
	c.Set("k", in)
	in[0] = 99
	out, _ := c.Get("k")
	if out[0] != 1 {
		t.Errorf("cache kept caller slice: %v", out)
	}
	out[1] = 42
	again, _ := c.Get("k")
	if again[1] != 2 {
		t.Errorf("cache returned shared slice: %v", again)
	}
}

func TestEmbeddingCache_ZeroCapacity(t *testing.T) {
	c := NewEmbeddingCache(0)
	c.Set("a", []float32{1})
	if _, ok := c.Get("a"); ok {
		t.Error("zero-capacity cache should not store")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	mock := NewMockEmbedder(8)
	e := NewCachedEmbedder(mock, 16)

	first, err := e.Embed(ctx, "population estimates")
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Embed(ctx, "population estimates")
	if err != nil {
		t.Fatal(err)
	}
	if mock.Calls() != 1 {
		t.Errorf("underlying embedder called %d times, want 1", mock.Calls())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached embedding differs at %d", i)
		}
	}

	batch, err := e.EmbedBatch(ctx, []string{"population estimates", "gdp"})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 || mock.Calls() != 2 {
		t.Errorf("batch len %d, calls %d", len(batch), mock.Calls())
	}
	if e.Dimensions() != 8 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
}

func TestCachedEmbedder_DoesNotCacheErrors(t *testing.T) {
	failing := NewFailingEmbedder(4)
	e := NewCachedEmbedder(failing, 16)
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	failing.FailOn = func(string) bool { return false }
	if _, err := e.Embed(context.Background(), "x"); err != nil {
		t.Errorf("error was cached: %v", err)
	}
}
