// Package metrics exposes the pipeline events as Prometheus collectors.
//
// A Listener is registered on a pipeline with transforms.WithListener and
// counts records by outcome and steps by status. Step durations are observed
// in a histogram labelled by step type.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/simon020286/go-transforms/models"
)

// Record outcomes and step statuses used as label values
const (
	OutcomeProcessed = "processed"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"

	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
	StatusError     = "error"
)

// Listener is a models.EventListener feeding Prometheus collectors
type Listener struct {
	records      *prometheus.CounterVec   // transform_records_total
	steps        *prometheus.CounterVec   // transform_steps_total
	stepDuration *prometheus.HistogramVec // transform_step_duration_seconds
}

var _ models.EventListener = (*Listener)(nil)

// NewListener creates the collectors and registers them on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewListener(reg prometheus.Registerer) (*Listener, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transform_records_total",
			Help: "Total number of records handled by the pipeline, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	steps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transform_steps_total",
			Help: "Total number of step executions, partitioned by step type and status.",
		},
		[]string{"step", "status"},
	)
	stepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transform_step_duration_seconds",
			Help:    "Duration of completed steps in seconds, partitioned by step type.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"step"},
	)

	for name, c := range map[string]prometheus.Collector{
		"records counter": records,
		"steps counter":   steps,
		"step histogram":  stepDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register %s: %w", name, err)
		}
	}

	return &Listener{
		records:      records,
		steps:        steps,
		stepDuration: stepDuration,
	}, nil
}

func (l *Listener) OnEvent(event models.Event) {
	switch event.Type {
	case models.EventRecordProcessed:
		l.records.WithLabelValues(OutcomeProcessed).Inc()
	case models.EventRecordDropped:
		l.records.WithLabelValues(OutcomeDropped).Inc()
	case models.EventRecordFailed:
		l.records.WithLabelValues(OutcomeFailed).Inc()

	case models.EventStepCompleted:
		step := stepType(event)
		l.steps.WithLabelValues(step, StatusCompleted).Inc()
		if d, ok := event.Data[models.EventDataDuration].(time.Duration); ok {
			l.stepDuration.WithLabelValues(step).Observe(d.Seconds())
		}
	case models.EventStepSkipped:
		l.steps.WithLabelValues(stepType(event), StatusSkipped).Inc()
	case models.EventStepError:
		l.steps.WithLabelValues(stepType(event), StatusError).Inc()
	}
}

func stepType(event models.Event) string {
	s, _ := event.Data[models.EventDataStepType].(string)
	return s
}
