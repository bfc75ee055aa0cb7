package models

import "context"

// EmbeddingsService turns texts into vectors, one per text
type EmbeddingsService interface {
	ComputeEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingsProvider builds an EmbeddingsService for a model
type EmbeddingsProvider interface {
	EmbeddingsService(model string, options map[string]any) (EmbeddingsService, error)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionsRequest struct {
	Model            string         `json:"model"`
	Messages         []ChatMessage  `json:"messages"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	Stop             []string       `json:"stop,omitempty"`
	User             string         `json:"user,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	LogitBias        map[string]int `json:"logit_bias,omitempty"`
}

// ChatCompletionsService returns the content of the first completion choice
type ChatCompletionsService interface {
	ChatCompletions(ctx context.Context, req ChatCompletionsRequest) (string, error)
}

// QueryStepDataSource runs a parameterized query and returns one ordered object per row
type QueryStepDataSource interface {
	FetchData(ctx context.Context, query string, params []any) ([]*Tree, error)
	Close() error
}
