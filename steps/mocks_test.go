package steps

import (
	"context"
	"sync"

	"github.com/simon020286/go-transforms/models"
)

type mockCompletions struct {
	mu       sync.Mutex
	answer   string
	err      error
	requests []models.ChatCompletionsRequest
}

func (m *mockCompletions) ChatCompletions(ctx context.Context, req models.ChatCompletionsRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.answer, m.err
}

func (m *mockCompletions) lastContent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return ""
	}
	return m.requests[len(m.requests)-1].Messages[0].Content
}

type mockEmbeddings struct {
	mu      sync.Mutex
	model   string
	options map[string]any
	vector  []float32
	err     error
	texts   []string
}

func (m *mockEmbeddings) EmbeddingsService(model string, options map[string]any) (models.EmbeddingsService, error) {
	m.model, m.options = model, options
	return m, nil
}

func (m *mockEmbeddings) ComputeEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, texts...)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.vector
	}
	return out, nil
}

type mockDataSource struct {
	rows   []*models.Tree
	err    error
	query  string
	params []any
}

func (m *mockDataSource) FetchData(ctx context.Context, query string, params []any) ([]*models.Tree, error) {
	m.query, m.params = query, params
	return m.rows, m.err
}

func (m *mockDataSource) Close() error {
	return nil
}
