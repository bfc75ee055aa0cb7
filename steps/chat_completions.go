package steps

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/expression"
	"github.com/simon020286/go-transforms/fieldpath"
	"github.com/simon020286/go-transforms/models"
)

// @step name=ai-chat-completions category=ai aliases=chat-completions description=Sends templated chat messages to a completions model and stores the answer
type ChatCompletionsConfig struct {
	Model            string              `mapstructure:"model" step:"required,desc=Completions model or deployment"`
	Messages         []ChatMessageConfig `mapstructure:"messages" step:"required,desc=Messages whose content may reference {{ value.field }}"`
	Field            string              `mapstructure:"field" step:"default=value,desc=Field receiving the answer"`
	LogField         string              `mapstructure:"log_field" step:"desc=Field receiving the request as JSON"`
	MaxTokens        *int                `mapstructure:"max_tokens"`
	Temperature      *float64            `mapstructure:"temperature"`
	TopP             *float64            `mapstructure:"top_p"`
	Stop             []string            `mapstructure:"stop"`
	User             string              `mapstructure:"user"`
	PresencePenalty  *float64            `mapstructure:"presence_penalty"`
	FrequencyPenalty *float64            `mapstructure:"frequency_penalty"`
	LogitBias        map[string]int      `mapstructure:"logit_bias"`
}

type ChatMessageConfig struct {
	Role    string `mapstructure:"role"`
	Content string `mapstructure:"content"`
}

type chatMessage struct {
	role    string
	content *expression.Template
}

type ChatCompletionsStep struct {
	request  models.ChatCompletionsRequest
	messages []chatMessage
	field    fieldpath.Path
	logField *fieldpath.Path
	client   models.ChatCompletionsService
}

func (s *ChatCompletionsStep) Process(ctx context.Context, tc *models.TransformContext) error {
	req := s.request
	req.Messages = make([]models.ChatMessage, len(s.messages))
	for i, m := range s.messages {
		content, err := m.content.Render(tc)
		if err != nil {
			return err
		}
		req.Messages[i] = models.ChatMessage{Role: m.role, Content: content}
	}

	answer, err := s.client.ChatCompletions(ctx, req)
	if err != nil {
		return models.ErrCapabilityCall("chat-completions", err)
	}
	if err := s.field.Assign(tc, models.String(answer), models.Field{Type: models.SchemaTypeString, Optional: true}); err != nil {
		return err
	}

	if s.logField != nil {
		logged, err := json.Marshal(req)
		if err != nil {
			return models.ErrConvert(err, "cannot serialize the completions request")
		}
		field := models.Field{Type: models.SchemaTypeString, Optional: true}
		if err := s.logField.Assign(tc, models.String(logged), field); err != nil {
			return err
		}
	}
	return nil
}

func parseOutputField(stepType, name string) (fieldpath.Path, error) {
	p, err := fieldpath.Parse(name)
	if err != nil {
		return p, models.ErrConfigWrap(stepType, err)
	}
	if err := p.CheckWritable(); err != nil {
		return p, models.ErrConfigWrap(stepType, err)
	}
	if p.Root == fieldpath.RootEventTime {
		return p, models.ErrConfig(stepType, "cannot write a text result to %s", name)
	}
	return p, nil
}

func newChatCompletionsStep(stepType string, cfg map[string]any, deps *builder.Dependencies) (models.Step, error) {
	var c ChatCompletionsConfig
	if err := config.DecodeStep(stepType, cfg, &c); err != nil {
		return nil, err
	}
	if deps.Completions == nil {
		return nil, models.ErrConfig(stepType, "The OpenAI client must be configured for this step")
	}
	if len(c.Messages) == 0 {
		return nil, models.ErrConfig(stepType, "'messages' must not be empty")
	}

	step := &ChatCompletionsStep{
		client: deps.Completions,
		request: models.ChatCompletionsRequest{
			Model:            c.Model,
			MaxTokens:        c.MaxTokens,
			Temperature:      c.Temperature,
			TopP:             c.TopP,
			Stop:             c.Stop,
			User:             c.User,
			PresencePenalty:  c.PresencePenalty,
			FrequencyPenalty: c.FrequencyPenalty,
			LogitBias:        c.LogitBias,
		},
	}
	for _, m := range c.Messages {
		if m.Role == "" {
			return nil, models.ErrConfigWrap(stepType, models.ErrMissingConfig("messages.role"))
		}
		content, err := expression.ParseTemplate(m.Content)
		if err != nil {
			return nil, models.ErrConfigWrap(stepType, err)
		}
		step.messages = append(step.messages, chatMessage{role: m.Role, content: content})
	}

	field, err := parseOutputField(stepType, c.Field)
	if err != nil {
		return nil, err
	}
	step.field = field
	if c.LogField != "" {
		logField, err := parseOutputField(stepType, c.LogField)
		if err != nil {
			return nil, err
		}
		step.logField = &logField
	}
	return step, nil
}

func init() {
	builder.RegisterStepType("ai-chat-completions", func(cfg map[string]any, deps *builder.Dependencies) (models.Step, error) {
		return newChatCompletionsStep("ai-chat-completions", cfg, deps)
	})
	builder.RegisterAlias("chat-completions", "ai-chat-completions")
}
