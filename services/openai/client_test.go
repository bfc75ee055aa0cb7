package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/models"
)

func TestClient_ChatCompletions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Unexpected authorization %q", r.Header.Get("Authorization"))
		}
		var req models.ChatCompletionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Invalid request body: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("Unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"result"}}]}`))
	}))
	defer server.Close()

	client, err := New(&config.OpenAIConfig{URL: server.URL + "/v1", AccessKey: "test-key"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	answer, err := client.ChatCompletions(context.Background(), models.ChatCompletionsRequest{
		Model:    "test-model",
		Messages: []models.ChatMessage{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletions failed: %v", err)
	}
	if answer != "result" {
		t.Errorf("Expected 'result', got %q", answer)
	}
}

func TestClient_Azure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/my-deployment/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != AzureAPIVersion {
			t.Errorf("Unexpected api-version %q", r.URL.Query().Get("api-version"))
		}
		if r.Header.Get("api-key") != "azure-key" || r.Header.Get("Authorization") != "" {
			t.Errorf("Unexpected credentials %v", r.Header)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"from azure"}}]}`))
	}))
	defer server.Close()

	client, err := New(&config.OpenAIConfig{URL: server.URL, AccessKey: "azure-key", Provider: "azure"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	answer, err := client.ChatCompletions(context.Background(), models.ChatCompletionsRequest{Model: "my-deployment"})
	if err != nil {
		t.Fatalf("ChatCompletions failed: %v", err)
	}
	if answer != "from azure" {
		t.Errorf("Unexpected answer %q", answer)
	}
}

func TestClient_Embeddings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Invalid request body: %v", err)
		}
		if req.Model != "text-embedding-ada-002" || !reflect.DeepEqual(req.Input, []string{"a", "b"}) {
			t.Errorf("Unexpected request %+v", req)
		}
		// out of order on purpose
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0.3,0.4]},{"index":0,"embedding":[0.1,0.2]}]}`))
	}))
	defer server.Close()

	client, err := New(&config.OpenAIConfig{URL: server.URL, AccessKey: "test-key"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	svc, err := client.EmbeddingsService("text-embedding-ada-002", nil)
	if err != nil {
		t.Fatalf("EmbeddingsService failed: %v", err)
	}
	vectors, err := svc.ComputeEmbeddings(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("ComputeEmbeddings failed: %v", err)
	}
	expected := [][]float32{{0.1, 0.2}, {0.3, 0.4}}
	if !reflect.DeepEqual(vectors, expected) {
		t.Errorf("Expected %v, got %v", expected, vectors)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client, err := New(&config.OpenAIConfig{URL: server.URL, AccessKey: "test-key"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = client.ChatCompletions(context.Background(), models.ChatCompletionsRequest{Model: "m"})
	if err == nil || !strings.Contains(err.Error(), "status 429") || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("Expected status error, got %v", err)
	}
}

func TestClient_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client, _ := New(&config.OpenAIConfig{URL: server.URL, AccessKey: "test-key"})
	if _, err := client.ChatCompletions(context.Background(), models.ChatCompletionsRequest{Model: "m"}); err == nil {
		t.Error("Expected an error when no choices are returned")
	}
}

func TestNew_Config(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "from-env")

	client, err := New(&config.OpenAIConfig{AccessKey: "$env:TEST_OPENAI_KEY"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if client.accessKey != "from-env" || client.baseURL != DefaultURL || client.Provider() != ProviderOpenAI {
		t.Errorf("Unexpected client %+v", client)
	}

	invalid := []*config.OpenAIConfig{
		{},
		{AccessKey: "$env:TEST_OPENAI_MISSING_KEY"},
		{AccessKey: "k", Provider: "azure"},
		{AccessKey: "k", Provider: "other"},
	}
	for _, cfg := range invalid {
		if _, err := New(cfg); !errors.Is(err, models.ErrConfiguration) {
			t.Errorf("%+v: expected configuration error, got %v", cfg, err)
		}
	}
}
