package builder

import (
	"fmt"
	"sort"
	"sync"

	"github.com/simon020286/go-transforms/models"
)

// StepFactory is a function that creates a Step from a configuration
type StepFactory func(config map[string]any, deps *Dependencies) (models.Step, error)

var (
	// registry contains all registered factories by step type
	registry = make(map[string]StepFactory)
	// aliases maps alternative names to their registered step type
	aliases = make(map[string]string)
	mu      sync.RWMutex
)

// RegisterStepType registers a factory for a step type.
// It is called by init() in step packages and panics on a duplicate name.
func RegisterStepType(stepType string, factory StepFactory) {
	mu.Lock()
	defer mu.Unlock()
	if stepType == "" || factory == nil {
		panic("builder: step type and factory are required")
	}
	if _, exists := lookupLocked(stepType); exists {
		panic(fmt.Sprintf("builder: step type %s already registered", stepType))
	}
	registry[stepType] = factory
}

// RegisterAlias makes alias create steps of an already registered type
func RegisterAlias(alias, stepType string) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[stepType]; !exists {
		panic(fmt.Sprintf("builder: alias %s of unknown step type %s", alias, stepType))
	}
	if _, exists := lookupLocked(alias); exists {
		panic(fmt.Sprintf("builder: step type %s already registered", alias))
	}
	aliases[alias] = stepType
}

func lookupLocked(stepType string) (StepFactory, bool) {
	if target, ok := aliases[stepType]; ok {
		stepType = target
	}
	factory, ok := registry[stepType]
	return factory, ok
}

// CanonicalStepType resolves an alias; other names are returned unchanged
func CanonicalStepType(stepType string) string {
	mu.RLock()
	defer mu.RUnlock()
	if target, ok := aliases[stepType]; ok {
		return target
	}
	return stepType
}

// GetStepFactory returns the factory for a step type or one of its aliases
func GetStepFactory(stepType string) (StepFactory, error) {
	mu.RLock()
	defer mu.RUnlock()

	factory, exists := lookupLocked(stepType)
	if !exists {
		return nil, &models.ConfigError{Msg: fmt.Sprintf("invalid step type: %s", stepType)}
	}
	return factory, nil
}

// ListStepTypes returns all registered step types and aliases, sorted
func ListStepTypes() []string {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]string, 0, len(registry)+len(aliases))
	for t := range registry {
		types = append(types, t)
	}
	for a := range aliases {
		types = append(types, a)
	}
	sort.Strings(types)
	return types
}
