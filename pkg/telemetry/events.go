package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a build lifecycle event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Vertex is the associated artifact path, if applicable.
	Vertex string `json:"vertex,omitempty"`

	// Action is the associated action name, if applicable.
	Action string `json:"action,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeBuildStarted   = "build.started"
	EventTypeBuildCompleted = "build.completed"
	EventTypeBuildFailed    = "build.failed"
	EventTypeVertexBuilt    = "vertex.built"
	EventTypeVertexSkipped  = "vertex.skipped"
	EventTypeVertexFailed   = "vertex.failed"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher delivers events to subscribers synchronously, in the order
// they are published.
type EventPublisher struct {
	config      EventsConfig
	subscribers []subscriberEntry
	filters     []EventFilter
	mu          sync.RWMutex
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	return &EventPublisher{config: cfg}
}

// Publish delivers an event to all matching subscribers.
func (ep *EventPublisher) Publish(event Event) {
	if !ep.config.Enabled {
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, filter := range ep.filters {
		if !filter(event) {
			return
		}
	}
	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// PublishBuildStarted publishes a build started event.
func (ep *EventPublisher) PublishBuildStarted(runID, command, root string) {
	ep.Publish(Event{
		Type:    EventTypeBuildStarted,
		RunID:   runID,
		Message: fmt.Sprintf("%s started in %s", command, root),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"command": command,
			"root":    root,
		},
	})
}

// PublishBuildCompleted publishes a build completed event.
func (ep *EventPublisher) PublishBuildCompleted(runID string, executed, skipped int, duration time.Duration) {
	ep.Publish(Event{
		Type:    EventTypeBuildCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("build completed: %d built, %d up to date", executed, skipped),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"executed": executed,
			"skipped":  skipped,
			"duration": duration.Seconds(),
		},
	})
}

// PublishBuildFailed publishes a build failed event.
func (ep *EventPublisher) PublishBuildFailed(runID, kind, reason string) {
	ep.Publish(Event{
		Type:    EventTypeBuildFailed,
		RunID:   runID,
		Message: fmt.Sprintf("build failed: %s", reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"kind":   kind,
			"reason": reason,
		},
	})
}

// PublishVertexBuilt publishes an event for an artifact produced by an operator.
func (ep *EventPublisher) PublishVertexBuilt(runID, vertex, action string, duration time.Duration) {
	ep.Publish(Event{
		Type:    EventTypeVertexBuilt,
		RunID:   runID,
		Vertex:  vertex,
		Action:  action,
		Message: fmt.Sprintf("%s %s", action, vertex),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishVertexSkipped publishes an event for an up-to-date artifact.
func (ep *EventPublisher) PublishVertexSkipped(runID, vertex, action string) {
	ep.Publish(Event{
		Type:    EventTypeVertexSkipped,
		RunID:   runID,
		Vertex:  vertex,
		Action:  action,
		Message: fmt.Sprintf("%s is up to date", vertex),
		Level:   EventLevelInfo,
	})
}

// PublishVertexFailed publishes an event for a failed operator invocation.
func (ep *EventPublisher) PublishVertexFailed(runID, vertex, action, reason string) {
	ep.Publish(Event{
		Type:    EventTypeVertexFailed,
		RunID:   runID,
		Vertex:  vertex,
		Action:  action,
		Message: fmt.Sprintf("%s %s failed: %s", action, vertex, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// Subscribe adds a subscriber. A nil filter receives every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// FilterByLevel allows events of minLevel or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}
	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType allows only events of the given types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID allows only events for one run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
