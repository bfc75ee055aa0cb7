package transforms

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/models"
	"github.com/simon020286/go-transforms/services/embeddings"
)

// eventRecorder collects the events of a pipeline
type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) OnEvent(event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) count(eventType models.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type mockDataSource struct {
	closed bool
}

func (m *mockDataSource) FetchData(ctx context.Context, query string, params []any) ([]*models.Tree, error) {
	row := models.NewTree()
	row.Set("stock", models.Int(3))
	return []*models.Tree{row}, nil
}

func (m *mockDataSource) Close() error {
	m.closed = true
	return nil
}

type mockEmbeddings struct{}

func (mockEmbeddings) EmbeddingsService(model string, options map[string]any) (models.EmbeddingsService, error) {
	return nil, nil
}

func jsonRecord(value string) *models.Record {
	key := "test-key"
	return &models.Record{
		Schema:    &models.Schema{Type: models.SchemaTypeJSON},
		Value:     []byte(value),
		Key:       &key,
		TopicName: "test-input-topic",
	}
}

func buildPipeline(t *testing.T, yaml string, opts ...Option) *Pipeline {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	p, err := BuildFromConfig(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("BuildFromConfig failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPipeline_Process(t *testing.T) {
	p := buildPipeline(t, `
name: products
steps:
  - type: drop-fields
    fields: [internal]
  - type: compute
    fields:
      - name: value.label
        expression: fn.uppercase(value.name)
        type: STRING
  - type: compute
    when: value.price > 100
    fields:
      - name: value.premium
        expression: "true"
        type: BOOLEAN
`)

	out, err := p.Process(context.Background(), jsonRecord(`{"name":"lamp","price":20,"internal":"x"}`))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if got := string(out.Value.([]byte)); got != `{"name":"lamp","price":20,"label":"LAMP"}` {
		t.Errorf("Unexpected value %s", got)
	}

	out, err = p.Process(context.Background(), jsonRecord(`{"name":"desk","price":120}`))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if got := string(out.Value.([]byte)); got != `{"name":"desk","price":120,"label":"DESK","premium":true}` {
		t.Errorf("Unexpected value %s", got)
	}
	if out.TopicName != "test-input-topic" || *out.Key != "test-key" {
		t.Errorf("Headers not preserved: %+v", out)
	}
}

func TestPipeline_Drop(t *testing.T) {
	recorder := &eventRecorder{}
	p := buildPipeline(t, `
steps:
  - type: drop
    when: value.price < 10
  - type: compute
    fields:
      - name: value.checked
        expression: "true"
`, WithListener(recorder))

	out, err := p.Process(context.Background(), jsonRecord(`{"price":5}`))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out != nil {
		t.Errorf("Expected the record to be dropped, got %+v", out)
	}

	out, err = p.Process(context.Background(), jsonRecord(`{"price":50}`))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if got := string(out.Value.([]byte)); got != `{"price":50,"checked":true}` {
		t.Errorf("Unexpected value %s", got)
	}

	p.eventBus.Wait()
	if n := recorder.count(models.EventRecordDropped); n != 1 {
		t.Errorf("Expected 1 dropped record, got %d", n)
	}
	if n := recorder.count(models.EventRecordProcessed); n != 1 {
		t.Errorf("Expected 1 processed record, got %d", n)
	}
	if n := recorder.count(models.EventStepSkipped); n != 1 {
		t.Errorf("Expected 1 skipped step, got %d", n)
	}
	// the compute step never runs on the dropped record
	if n := recorder.count(models.EventStepCompleted); n != 2 {
		t.Errorf("Expected 2 completed steps, got %d", n)
	}
}

func TestPipeline_StepError(t *testing.T) {
	recorder := &eventRecorder{}
	p := buildPipeline(t, `
steps:
  - type: flatten
  - type: compute
    fields:
      - name: value.total
        expression: value.missing.deeper
`, WithListener(recorder))

	_, err := p.Process(context.Background(), jsonRecord(`{"a":1}`))
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !strings.HasPrefix(err.Error(), "step 1 (compute): ") {
		t.Errorf("Expected the step index and type in %q", err)
	}
	if !errors.Is(err, models.ErrExpression) {
		t.Errorf("Expected an expression error, got %v", err)
	}

	p.eventBus.Wait()
	if recorder.count(models.EventRecordFailed) != 1 || recorder.count(models.EventStepError) != 1 {
		t.Errorf("Unexpected events %+v", recorder.events)
	}
}

func TestPipeline_AddStep(t *testing.T) {
	p := NewPipeline()
	p.AddStep("fail", models.StepFunc(func(ctx context.Context, tc *models.TransformContext) error {
		return errors.New("boom")
	}), nil)

	_, err := p.Process(context.Background(), jsonRecord(`{}`))
	if err == nil || err.Error() != "step 0 (fail): boom" {
		t.Errorf("Unexpected error %v", err)
	}
}

func TestPipeline_Identity(t *testing.T) {
	skipped := buildPipeline(t, `
steps:
  - type: drop-fields
    fields: [a]
    when: value.n == 0
`)
	tests := []struct {
		name  string
		p     *Pipeline
		value string
	}{
		{"no steps", NewPipeline(), `{"a": 1.50, "n": 12345678901234567890}`},
		{"no steps with json conversion", NewPipeline(WithAttemptJSONConversion(true)), `{ "a" : [1.0, 2e3] }`},
		{"skipped step", skipped, `{"a": 1.50, "n": 12345678901234567890}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.p.Process(context.Background(), jsonRecord(tt.value))
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if string(out.Value.([]byte)) != tt.value {
				t.Errorf("Expected %s, got %s", tt.value, out.Value)
			}
			if out.Schema.Type != models.SchemaTypeJSON || *out.Key != "test-key" {
				t.Errorf("Unexpected output %s %v", out.Schema.Type, out.Key)
			}
		})
	}
}

func TestPipeline_CanceledContext(t *testing.T) {
	called := false
	p := NewPipeline()
	p.AddStep("noop", models.StepFunc(func(ctx context.Context, tc *models.TransformContext) error {
		called = true
		return nil
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Process(ctx, jsonRecord(`{}`)); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("Step should not run on a canceled context")
	}
}

func TestPipeline_AttemptJSONConversion(t *testing.T) {
	p := buildPipeline(t, `
attempt_json_conversion: true
steps:
  - type: drop-fields
    fields: [secret]
`)
	key := "k"
	rec := &models.Record{
		Schema: &models.Schema{Type: models.SchemaTypeString},
		Value:  `{"id":1,"secret":"s"}`,
		Key:    &key,
	}
	out, err := p.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Value != `{"id":1}` {
		t.Errorf("Unexpected value %v", out.Value)
	}
}

func TestBuildFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		contains string
	}{
		{"unknown step type", "steps:\n  - type: unknown\n", "invalid step type"},
		{"invalid step config", "steps:\n  - type: cast\n", "schema_type"},
		{"invalid predicate", "steps:\n  - type: drop\n    when: \"value.(\"\n", "invalid 'when'"},
		{"missing capability", "steps:\n  - type: chat-completions\n    model: m\n    messages: [{role: user, content: hi}]\n", "OpenAI"},
		{"invalid openai section", "openai: {provider: azure, access_key: k}\nsteps:\n  - type: drop\n", "url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			_, err = BuildFromConfig(context.Background(), cfg)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("Expected a configuration error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("Expected %q in %q", tt.contains, err)
			}
		})
	}
}

func TestBuildFromConfig_Services(t *testing.T) {
	ds := &mockDataSource{}
	p := buildPipeline(t, `
openai:
  access_key: test-key
embeddings_cache_size: 8
steps:
  - type: query
    query: select stock from products where name = ?
    fields: [value.name]
    output_field: value.stock
    only_first: true
`, WithDataSource(ds), WithEmbeddingsProvider(builder.ServiceHuggingFace, mockEmbeddings{}))

	if p.deps.Completions == nil {
		t.Error("Expected the openai client to be the completions service")
	}
	for _, service := range []string{builder.ServiceOpenAI, builder.ServiceHuggingFace} {
		if _, ok := p.deps.Embeddings[service].(*embeddings.CachingProvider); !ok {
			t.Errorf("Expected a cached %s provider, got %T", service, p.deps.Embeddings[service])
		}
	}

	out, err := p.Process(context.Background(), jsonRecord(`{"name":"lamp"}`))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if got := string(out.Value.([]byte)); got != `{"name":"lamp","stock":{"stock":3}}` {
		t.Errorf("Unexpected value %s", got)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !ds.closed {
		t.Error("Expected the datasource to be closed")
	}
}
