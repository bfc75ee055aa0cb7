package models

import (
	"time"
)

// EventType identifies an event emitted by the pipeline
type EventType string

const (
	// Record events
	EventRecordProcessed EventType = "record.processed"
	EventRecordDropped   EventType = "record.dropped"
	EventRecordFailed    EventType = "record.failed"

	// Step events
	EventStepCompleted EventType = "step.completed"
	EventStepSkipped   EventType = "step.skipped"
	EventStepError     EventType = "step.error"
)

// Event is a pipeline event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Event data keys
const (
	EventDataInvocationID = "invocation_id"
	EventDataTopic        = "topic"
	EventDataStepIndex    = "step_index"
	EventDataStepType     = "step_type"
	EventDataDuration     = "duration"
	EventDataError        = "error"
)

// EventListener receives pipeline events
type EventListener interface {
	OnEvent(event Event)
}

// EventListenerFunc adapts a function to EventListener
type EventListenerFunc func(event Event)

func (f EventListenerFunc) OnEvent(event Event) {
	f(event)
}
