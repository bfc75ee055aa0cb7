// Package openai implements the chat completions and embeddings capabilities
// on the OpenAI REST API, or on an Azure OpenAI resource.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/models"
)

const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"

	DefaultURL      = "https://api.openai.com/v1"
	AzureAPIVersion = "2023-05-15"

	defaultTimeout = 30 * time.Second
)

// Client talks to one OpenAI endpoint. It is safe for concurrent use.
type Client struct {
	baseURL   string
	accessKey string
	provider  string
	http      *http.Client
}

var (
	_ models.ChatCompletionsService = (*Client)(nil)
	_ models.EmbeddingsProvider     = (*Client)(nil)
)

// New creates a client from the pipeline configuration
func New(cfg *config.OpenAIConfig) (*Client, error) {
	accessKey, err := config.ResolveString(cfg.AccessKey)
	if err != nil {
		return nil, &models.ConfigError{Msg: "openai access_key", Err: err}
	}
	if accessKey == "" {
		return nil, &models.ConfigError{Msg: "openai: missing 'access_key'"}
	}
	baseURL, err := config.ResolveString(cfg.URL)
	if err != nil {
		return nil, &models.ConfigError{Msg: "openai url", Err: err}
	}

	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case "", ProviderOpenAI:
		provider = ProviderOpenAI
		if baseURL == "" {
			baseURL = DefaultURL
		}
	case ProviderAzure:
		if baseURL == "" {
			return nil, &models.ConfigError{Msg: "openai: the azure provider requires 'url'"}
		}
	default:
		return nil, &models.ConfigError{Msg: fmt.Sprintf("openai: unsupported provider '%s'", cfg.Provider)}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
		provider:  provider,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

// endpoint builds the URL of an operation. Azure addresses models as deployments.
func (c *Client) endpoint(model, operation string) string {
	if c.provider == ProviderAzure {
		return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
			c.baseURL, url.PathEscape(model), operation, AzureAPIVersion)
	}
	return c.baseURL + "/" + operation
}

// post sends body as JSON and decodes a successful response into out
func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.provider == ProviderAzure {
		req.Header.Set("api-key", c.accessKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.accessKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode JSON response: %w", err)
	}
	return nil
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message models.ChatMessage `json:"message"`
	} `json:"choices"`
}

// ChatCompletions returns the content of the first choice
func (c *Client) ChatCompletions(ctx context.Context, req models.ChatCompletionsRequest) (string, error) {
	var resp chatCompletionsResponse
	if err := c.post(ctx, c.endpoint(req.Model, "chat/completions"), req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// EmbeddingsService returns the embeddings service of a model. Options are not
// used by this API.
func (c *Client) EmbeddingsService(model string, options map[string]any) (models.EmbeddingsService, error) {
	if model == "" {
		return nil, &models.ConfigError{Msg: "openai: missing embeddings model"}
	}
	return &embeddingsService{client: c, model: model}, nil
}

type embeddingsService struct {
	client *Client
	model  string
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (s *embeddingsService) ComputeEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	var resp embeddingsResponse
	req := embeddingsRequest{Model: s.model, Input: texts}
	if err := s.client.post(ctx, s.client.endpoint(s.model, "embeddings"), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
