package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/simon020286/go-transforms/models"
)

func stepEvent(eventType models.EventType, step string, duration time.Duration) models.Event {
	return models.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data: map[string]any{
			models.EventDataStepType: step,
			models.EventDataDuration: duration,
		},
	}
}

func TestListener_OnEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	l, err := NewListener(reg)
	if err != nil {
		t.Fatalf("NewListener failed: %v", err)
	}

	l.OnEvent(models.Event{Type: models.EventRecordProcessed})
	l.OnEvent(models.Event{Type: models.EventRecordProcessed})
	l.OnEvent(models.Event{Type: models.EventRecordDropped})
	l.OnEvent(models.Event{Type: models.EventRecordFailed})
	l.OnEvent(stepEvent(models.EventStepCompleted, "compute", 2*time.Millisecond))
	l.OnEvent(stepEvent(models.EventStepCompleted, "compute", 4*time.Millisecond))
	l.OnEvent(stepEvent(models.EventStepSkipped, "drop", 0))
	l.OnEvent(stepEvent(models.EventStepError, "query", 0))

	tests := []struct {
		name     string
		c        prometheus.Collector
		expected float64
	}{
		{"processed", l.records.WithLabelValues(OutcomeProcessed), 2},
		{"dropped", l.records.WithLabelValues(OutcomeDropped), 1},
		{"failed", l.records.WithLabelValues(OutcomeFailed), 1},
		{"compute completed", l.steps.WithLabelValues("compute", StatusCompleted), 2},
		{"drop skipped", l.steps.WithLabelValues("drop", StatusSkipped), 1},
		{"query error", l.steps.WithLabelValues("query", StatusError), 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.expected {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.expected, got)
		}
	}

	if n := testutil.CollectAndCount(l.stepDuration); n != 1 {
		t.Errorf("Expected 1 histogram series, got %d", n)
	}
	problems, err := testutil.CollectAndLint(l.stepDuration)
	if err != nil {
		t.Fatalf("CollectAndLint failed: %v", err)
	}
	if len(problems) != 0 {
		t.Errorf("Unexpected lint problems %v", problems)
	}
}

func TestNewListener_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewListener(reg); err != nil {
		t.Fatalf("NewListener failed: %v", err)
	}
	if _, err := NewListener(reg); err == nil {
		t.Error("Expected an error registering the collectors twice")
	}
}
