package huggingface

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/goccy/go-json"

	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/models"
)

func TestClient_ComputeEmbeddings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer hf-key" {
			t.Errorf("Unexpected authorization %q", r.Header.Get("Authorization"))
		}
		var req featureExtractionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Invalid request body: %v", err)
		}
		if !reflect.DeepEqual(req.Inputs, []string{"hello"}) {
			t.Errorf("Unexpected inputs %v", req.Inputs)
		}
		if req.Options["wait_for_model"] != true {
			t.Errorf("Expected wait_for_model by default, got %v", req.Options)
		}
		w.Write([]byte(`[[0.5,0.25]]`))
	}))
	defer server.Close()

	client, err := New(&config.HuggingFaceConfig{APIURL: server.URL + "/models", AccessKey: "hf-key"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	svc, err := client.EmbeddingsService("test-model", nil)
	if err != nil {
		t.Fatalf("EmbeddingsService failed: %v", err)
	}
	vectors, err := svc.ComputeEmbeddings(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("ComputeEmbeddings failed: %v", err)
	}
	if !reflect.DeepEqual(vectors, [][]float32{{0.5, 0.25}}) {
		t.Errorf("Unexpected vectors %v", vectors)
	}
}

func TestClient_Options(t *testing.T) {
	client, err := New(&config.HuggingFaceConfig{Options: map[string]any{"use_cache": false}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	svc, err := client.EmbeddingsService("m", map[string]any{"wait_for_model": false})
	if err != nil {
		t.Fatalf("EmbeddingsService failed: %v", err)
	}
	options := svc.(*embeddingsService).options
	expected := map[string]any{"use_cache": false, "wait_for_model": false}
	if !reflect.DeepEqual(options, expected) {
		t.Errorf("Expected %v, got %v", expected, options)
	}
	if client.apiURL != DefaultURL {
		t.Errorf("Expected default URL, got %s", client.apiURL)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := New(&config.HuggingFaceConfig{APIURL: server.URL})
	svc, _ := client.EmbeddingsService("m", nil)
	if _, err := svc.ComputeEmbeddings(context.Background(), []string{"a"}); err == nil {
		t.Error("Expected an error for status 503")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	for _, provider := range []string{"local", "other"} {
		if _, err := New(&config.HuggingFaceConfig{Provider: provider}); !errors.Is(err, models.ErrConfiguration) {
			t.Errorf("%s: expected configuration error, got %v", provider, err)
		}
	}
	client, _ := New(&config.HuggingFaceConfig{})
	if _, err := client.EmbeddingsService("", nil); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("Expected configuration error for a missing model, got %v", err)
	}
}
