// Package transforms runs a linear list of record transformation steps over
// single host records: schema casts, field pruning, flattening, key-value
// merging, computed fields, AI enrichments and datasource lookups.
package transforms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/simon020286/go-transforms/builder"
	"github.com/simon020286/go-transforms/codec"
	"github.com/simon020286/go-transforms/models"
	_ "github.com/simon020286/go-transforms/steps"
)

// StepPredicatePair is one entry of the pipeline: the step and the optional
// predicate gating it
type StepPredicatePair struct {
	Name      string // step type, used in errors, logs and events
	Step      models.Step
	Predicate models.Predicate
}

// Pipeline applies its steps in order to one record at a time.
// Process is safe for concurrent use once the pipeline is built.
type Pipeline struct {
	steps []StepPredicatePair

	deps     builder.Dependencies
	logger   *slog.Logger
	eventBus *eventBus

	cacheSize int
	closers   []io.Closer
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger used by the pipeline and its steps
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithListener adds a listener receiving the record and step events
func WithListener(listener models.EventListener) Option {
	return func(p *Pipeline) { p.eventBus.addListener(listener) }
}

// WithAttemptJSONConversion parses STRING and BYTES sides holding a JSON object into trees
func WithAttemptJSONConversion(enabled bool) Option {
	return func(p *Pipeline) { p.deps.AttemptJSONConversion = enabled }
}

// WithCompletionsService sets the chat completions capability. It takes
// precedence over the openai section of a configuration.
func WithCompletionsService(svc models.ChatCompletionsService) Option {
	return func(p *Pipeline) { p.deps.Completions = svc }
}

// WithEmbeddingsProvider sets the embeddings capability of a service
// (openai or huggingface)
func WithEmbeddingsProvider(service string, provider models.EmbeddingsProvider) Option {
	return func(p *Pipeline) {
		if p.deps.Embeddings == nil {
			p.deps.Embeddings = make(map[string]models.EmbeddingsProvider)
		}
		p.deps.Embeddings[service] = provider
	}
}

// WithDataSource sets the datasource of query steps. The pipeline closes it on Close.
func WithDataSource(ds models.QueryStepDataSource) Option {
	return func(p *Pipeline) { p.deps.DataSource = ds }
}

// WithEmbeddingsCache caches the vectors of the last size texts of every embeddings step
func WithEmbeddingsCache(size int) Option {
	return func(p *Pipeline) { p.cacheSize = size }
}

// NewPipeline creates an empty pipeline
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		eventBus: newEventBus(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.deps.Logger = p.logger
	return p
}

// AddStep appends a step; a nil predicate always passes
func (p *Pipeline) AddStep(name string, step models.Step, predicate models.Predicate) {
	if step == nil {
		panic("step cannot be nil")
	}
	p.steps = append(p.steps, StepPredicatePair{Name: name, Step: step, Predicate: predicate})
}

// Steps returns the configured steps in order
func (p *Pipeline) Steps() []StepPredicatePair {
	return p.steps
}

// AddListener adds a listener to receive events from the pipeline
func (p *Pipeline) AddListener(listener models.EventListener) {
	p.eventBus.addListener(listener)
}

// Process runs every step over rec and returns the rebuilt record, or nil
// when a step dropped it. Any step or predicate error aborts the record;
// no partial output is returned.
func (p *Pipeline) Process(ctx context.Context, rec *models.Record) (*models.Record, error) {
	if rec == nil {
		return nil, errors.New("record cannot be nil")
	}
	invocationID := uuid.NewString()
	startTime := time.Now()
	log := p.logger.With("invocation_id", invocationID, "topic", rec.TopicName)

	out, err := p.process(ctx, invocationID, rec, log)
	if err != nil {
		log.Warn("record transformation failed", "error", err)
		p.eventBus.EmitRecordFailed(invocationID, rec.TopicName, err)
		return nil, err
	}
	if out != nil {
		p.eventBus.EmitRecordProcessed(invocationID, rec.TopicName, time.Since(startTime))
	}
	return out, nil
}

func (p *Pipeline) process(ctx context.Context, invocationID string, rec *models.Record, log *slog.Logger) (*models.Record, error) {
	tc, err := codec.NewTransformContext(rec, p.deps.AttemptJSONConversion)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	for i, pair := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pair.Predicate != nil {
			ok, err := pair.Predicate.Test(ctx, tc)
			if err != nil {
				p.eventBus.EmitStepError(invocationID, i, pair.Name, err)
				return nil, fmt.Errorf("step %d (%s): %w", i, pair.Name, err)
			}
			if !ok {
				log.Debug("step skipped", "step_index", i, "step_type", pair.Name)
				p.eventBus.EmitStepSkipped(invocationID, i, pair.Name)
				continue
			}
		}

		stepStart := time.Now()
		if err := pair.Step.Process(ctx, tc); err != nil {
			p.eventBus.EmitStepError(invocationID, i, pair.Name, err)
			return nil, fmt.Errorf("step %d (%s): %w", i, pair.Name, err)
		}
		duration := time.Since(stepStart)
		log.Debug("step completed", "step_index", i, "step_type", pair.Name, "duration", duration)
		p.eventBus.EmitStepCompleted(invocationID, i, pair.Name, duration)

		if tc.DropCurrentRecord {
			log.Debug("record dropped", "step_index", i, "step_type", pair.Name)
			p.eventBus.EmitRecordDropped(invocationID, rec.TopicName, i, pair.Name)
			return nil, nil
		}
	}

	out, err := codec.BuildRecord(tc)
	if err != nil {
		return nil, fmt.Errorf("failed to build record: %w", err)
	}
	return out, nil
}

// Close waits for pending events and releases the datasource and the
// capability clients opened by the pipeline
func (p *Pipeline) Close() error {
	p.eventBus.Wait()

	var errs []error
	if p.deps.DataSource != nil {
		if err := p.deps.DataSource.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close datasource: %w", err))
		}
	}
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
