// Package huggingface computes embeddings with the HuggingFace inference API
package huggingface

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/models"
)

const (
	ProviderAPI   = "api"
	ProviderLocal = "local"

	DefaultURL = "https://api-inference.huggingface.co/pipeline/feature-extraction/"

	defaultTimeout = 60 * time.Second
)

// Client is an embeddings provider. It is safe for concurrent use.
type Client struct {
	apiURL    string
	accessKey string
	options   map[string]any
	http      *http.Client
}

var _ models.EmbeddingsProvider = (*Client)(nil)

func New(cfg *config.HuggingFaceConfig) (*Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderAPI:
	case ProviderLocal:
		return nil, &models.ConfigError{Msg: "huggingface: the local provider is not supported, use 'api'"}
	default:
		return nil, &models.ConfigError{Msg: fmt.Sprintf("huggingface: unsupported provider '%s'", cfg.Provider)}
	}

	accessKey, err := config.ResolveString(cfg.AccessKey)
	if err != nil {
		return nil, &models.ConfigError{Msg: "huggingface access_key", Err: err}
	}
	apiURL, err := config.ResolveString(cfg.APIURL)
	if err != nil {
		return nil, &models.ConfigError{Msg: "huggingface api_url", Err: err}
	}
	if apiURL == "" {
		apiURL = DefaultURL
	}
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiURL:    apiURL,
		accessKey: accessKey,
		options:   cfg.Options,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// EmbeddingsService returns the service of a model. Step options override the
// client options; with none, the API is asked to wait for the model to load.
func (c *Client) EmbeddingsService(model string, options map[string]any) (models.EmbeddingsService, error) {
	if model == "" {
		return nil, &models.ConfigError{Msg: "huggingface: model name is required"}
	}
	merged := map[string]any{}
	maps.Copy(merged, c.options)
	maps.Copy(merged, options)
	if len(merged) == 0 {
		merged["wait_for_model"] = true
	}
	return &embeddingsService{client: c, model: model, options: merged}, nil
}

type embeddingsService struct {
	client  *Client
	model   string
	options map[string]any
}

type featureExtractionRequest struct {
	Inputs  []string       `json:"inputs"`
	Options map[string]any `json:"options,omitempty"`
}

func (s *embeddingsService) ComputeEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(featureExtractionRequest{Inputs: texts, Options: s.options})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.apiURL+s.model, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.client.accessKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.client.accessKey)
	}

	resp, err := s.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("failed to decode JSON response: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}
