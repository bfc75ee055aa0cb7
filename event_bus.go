package transforms

import (
	"sync"
	"time"

	"github.com/simon020286/go-transforms/models"
)

// eventBus manages event distribution to registered listeners (private)
type eventBus struct {
	listeners []models.EventListener
	mutex     sync.RWMutex
	pendingWg sync.WaitGroup // Tracks events being processed
}

// newEventBus creates a new eventBus instance (private)
func newEventBus() *eventBus {
	return &eventBus{
		listeners: make([]models.EventListener, 0),
	}
}

// addListener registers a new listener
func (eb *eventBus) addListener(listener models.EventListener) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	eb.listeners = append(eb.listeners, listener)
}

// Emit sends an event to all registered listeners
func (eb *eventBus) Emit(eventType models.EventType, data map[string]any) {
	eb.mutex.RLock()
	listeners := make([]models.EventListener, len(eb.listeners))
	copy(listeners, eb.listeners)
	eb.mutex.RUnlock()

	if len(listeners) == 0 {
		return
	}

	event := models.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Notify all listeners asynchronously to avoid blocking record processing
	for _, listener := range listeners {
		eb.pendingWg.Add(1)
		go func(l models.EventListener) {
			defer eb.pendingWg.Done()
			l.OnEvent(event)
		}(listener)
	}
}

// Wait waits for all pending events to be processed
func (eb *eventBus) Wait() {
	eb.pendingWg.Wait()
}

// EmitRecordProcessed emits the event of a record that went through every step
func (eb *eventBus) EmitRecordProcessed(invocationID, topic string, duration time.Duration) {
	eb.Emit(models.EventRecordProcessed, map[string]any{
		models.EventDataInvocationID: invocationID,
		models.EventDataTopic:        topic,
		models.EventDataDuration:     duration,
	})
}

// EmitRecordDropped emits the event of a record dropped at stepIndex
func (eb *eventBus) EmitRecordDropped(invocationID, topic string, stepIndex int, stepType string) {
	eb.Emit(models.EventRecordDropped, map[string]any{
		models.EventDataInvocationID: invocationID,
		models.EventDataTopic:        topic,
		models.EventDataStepIndex:    stepIndex,
		models.EventDataStepType:     stepType,
	})
}

// EmitRecordFailed emits a record failure event
func (eb *eventBus) EmitRecordFailed(invocationID, topic string, err error) {
	eb.Emit(models.EventRecordFailed, map[string]any{
		models.EventDataInvocationID: invocationID,
		models.EventDataTopic:        topic,
		models.EventDataError:        err.Error(),
	})
}

// EmitStepCompleted emits a step completion event
func (eb *eventBus) EmitStepCompleted(invocationID string, stepIndex int, stepType string, duration time.Duration) {
	eb.Emit(models.EventStepCompleted, map[string]any{
		models.EventDataInvocationID: invocationID,
		models.EventDataStepIndex:    stepIndex,
		models.EventDataStepType:     stepType,
		models.EventDataDuration:     duration,
	})
}

// EmitStepSkipped emits the event of a step whose predicate did not pass
func (eb *eventBus) EmitStepSkipped(invocationID string, stepIndex int, stepType string) {
	eb.Emit(models.EventStepSkipped, map[string]any{
		models.EventDataInvocationID: invocationID,
		models.EventDataStepIndex:    stepIndex,
		models.EventDataStepType:     stepType,
	})
}

// EmitStepError emits a step error event
func (eb *eventBus) EmitStepError(invocationID string, stepIndex int, stepType string, err error) {
	eb.Emit(models.EventStepError, map[string]any{
		models.EventDataInvocationID: invocationID,
		models.EventDataStepIndex:    stepIndex,
		models.EventDataStepType:     stepType,
		models.EventDataError:        err.Error(),
	})
}
