package embeddings

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/simon020286/go-transforms/models"
)

type countingService struct {
	calls [][]string
	err   error
}

func (s *countingService) ComputeEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls = append(s.calls, texts)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func TestCachingService_Hits(t *testing.T) {
	svc := &countingService{}
	cache := NewCachingService(svc, 10)
	ctx := context.Background()

	if _, err := cache.ComputeEmbeddings(ctx, []string{"a", "bb"}); err != nil {
		t.Fatalf("ComputeEmbeddings failed: %v", err)
	}
	vectors, err := cache.ComputeEmbeddings(ctx, []string{"bb", "ccc", "a"})
	if err != nil {
		t.Fatalf("ComputeEmbeddings failed: %v", err)
	}

	expected := [][]float32{{2}, {3}, {1}}
	if !reflect.DeepEqual(vectors, expected) {
		t.Errorf("Expected %v, got %v", expected, vectors)
	}
	// only the new text reaches the service
	if len(svc.calls) != 2 || !reflect.DeepEqual(svc.calls[1], []string{"ccc"}) {
		t.Errorf("Unexpected service calls %v", svc.calls)
	}
	if cache.Len() != 3 {
		t.Errorf("Expected 3 cached texts, got %d", cache.Len())
	}
}

func TestCachingService_Eviction(t *testing.T) {
	svc := &countingService{}
	cache := NewCachingService(svc, 2)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		if _, err := cache.ComputeEmbeddings(ctx, []string{text}); err != nil {
			t.Fatalf("ComputeEmbeddings failed: %v", err)
		}
	}
	if cache.Len() != 2 {
		t.Errorf("Expected 2 cached texts, got %d", cache.Len())
	}
	// "a" was evicted
	cache.ComputeEmbeddings(ctx, []string{"a"})
	if len(svc.calls) != 4 {
		t.Errorf("Expected the evicted text to be computed again, got %d calls", len(svc.calls))
	}
}

func TestCachingService_Error(t *testing.T) {
	svc := &countingService{err: errors.New("unavailable")}
	cache := NewCachingService(svc, 2)
	if _, err := cache.ComputeEmbeddings(context.Background(), []string{"a"}); err == nil {
		t.Error("Expected the service error")
	}
	if cache.Len() != 0 {
		t.Error("Failed calls must not be cached")
	}
}

type staticProvider struct {
	svc models.EmbeddingsService
}

func (p staticProvider) EmbeddingsService(model string, options map[string]any) (models.EmbeddingsService, error) {
	return p.svc, nil
}

func TestCachingProvider(t *testing.T) {
	svc := &countingService{}
	provider := NewCachingProvider(staticProvider{svc: svc}, 4)

	cached, err := provider.EmbeddingsService("m", nil)
	if err != nil {
		t.Fatalf("EmbeddingsService failed: %v", err)
	}
	if _, ok := cached.(*CachingService); !ok {
		t.Fatalf("Expected a CachingService, got %T", cached)
	}
	cached.ComputeEmbeddings(context.Background(), []string{"a"})
	cached.ComputeEmbeddings(context.Background(), []string{"a"})
	if len(svc.calls) != 1 {
		t.Errorf("Expected 1 service call, got %d", len(svc.calls))
	}
}
