package embedding

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func newCached(t *testing.T, size int) (*Cached, *MockEmbedder) {
	t.Helper()
	mock := NewMockEmbedder(16)
	cached, err := WrapLRU(mock, size, zap.NewNop())
	if err != nil {
		t.Fatalf("WrapLRU: %v", err)
	}
	return cached, mock
}

func TestCachedEmbedHit(t *testing.T) {
	cached, mock := newCached(t, 8)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	second, err := cached.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if mock.Calls() != 1 {
		t.Errorf("expected 1 model call, got %d", mock.Calls())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cached embedding differs")
		}
	}
}

func TestCachedEmbedBatchPartialMiss(t *testing.T) {
	cached, mock := newCached(t, 8)
	ctx := context.Background()

	if _, err := cached.Embed(ctx, "a"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	vecs, err := cached.EmbedBatch(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	// One warm call plus two misses.
	if mock.Calls() != 3 {
		t.Errorf("expected 3 model calls, got %d", mock.Calls())
	}
	want, _ := NewMockEmbedder(16).Embed(ctx, "b")
	for i := range want {
		if vecs[1][i] != want[i] {
			t.Fatal("batch result out of order")
		}
	}
}

func TestCachedReturnsCopies(t *testing.T) {
	cached, _ := newCached(t, 8)
	ctx := context.Background()

	first, _ := cached.Embed(ctx, "mutate")
	first[0] = 42
	second, _ := cached.Embed(ctx, "mutate")
	if second[0] == 42 {
		t.Error("cache entry was mutated through a returned slice")
	}
}

func TestCachedEviction(t *testing.T) {
	cached, mock := newCached(t, 2)
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c"} {
		if _, err := cached.Embed(ctx, s); err != nil {
			t.Fatalf("Embed: %v", err)
		}
	}
	// "a" was evicted by "c".
	if _, err := cached.Embed(ctx, "a"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if mock.Calls() != 4 {
		t.Errorf("expected 4 model calls, got %d", mock.Calls())
	}
}

func TestMockEmbedderDeterministic(t *testing.T) {
	mock := NewMockEmbedder(32)
	ctx := context.Background()
	a, _ := mock.Embed(ctx, "same")
	b, _ := mock.Embed(ctx, "same")
	c, _ := mock.Embed(ctx, "different")
	if len(a) != 32 {
		t.Fatalf("dimension = %d", len(a))
	}
	same, diff := true, true
	for i := range a {
		if a[i] != b[i] {
			same = false
		}
		if a[i] != c[i] {
			diff = false
		}
	}
	if !same {
		t.Error("same text produced different embeddings")
	}
	if diff {
		t.Error("different texts produced identical embeddings")
	}
}
