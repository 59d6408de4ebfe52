package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event emitted during instantiation or a cook run.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// CookRunID is the associated cook run ID, if applicable.
	CookRunID string `json:"cook_run_id,omitempty"`

	// JobID is the associated cook job ID, if applicable.
	JobID string `json:"job_id,omitempty"`

	// Target is the associated target's qualified name, if applicable.
	Target string `json:"target,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeCookRunStarted   = "cook_run.started"
	EventTypeCookRunCompleted = "cook_run.completed"
	EventTypeCookRunFailed    = "cook_run.failed"
	EventTypeJobStarted       = "job.started"
	EventTypeJobCompleted     = "job.completed"
	EventTypeJobFailed        = "job.failed"
	EventTypeTargetStateChanged = "target.state_changed"
	EventTypeCacheResult      = "cache.result"
	EventTypePolicyViolation  = "policy.violation"
	EventTypeProviderInvoked  = "provider.invoked"
	EventTypeError            = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	// Start the periodic flush goroutine
	if cfg.FlushInterval > 0 {
		ep.wg.Add(1)
		go ep.periodicFlush()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishCookRunStarted publishes a cook run started event.
func (ep *EventPublisher) PublishCookRunStarted(cookRunID, workspace string) error {
	return ep.Publish(Event{
		Type:      EventTypeCookRunStarted,
		Source:    "cook",
		CookRunID: cookRunID,
		Message:   fmt.Sprintf("cook run %s started for workspace %s", cookRunID, workspace),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"workspace": workspace,
		},
	})
}

// PublishCookRunCompleted publishes a cook run completed event.
func (ep *EventPublisher) PublishCookRunCompleted(cookRunID, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypeCookRunCompleted,
		Source:    "cook",
		CookRunID: cookRunID,
		Message:   fmt.Sprintf("cook run %s completed with status: %s", cookRunID, status),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishCookRunFailed publishes a cook run failed event.
func (ep *EventPublisher) PublishCookRunFailed(cookRunID, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeCookRunFailed,
		Source:    "cook",
		CookRunID: cookRunID,
		Message:   fmt.Sprintf("cook run %s failed: %s", cookRunID, reason),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishJobStarted publishes a cook job started event.
func (ep *EventPublisher) PublishJobStarted(cookRunID, jobID, target, command string) error {
	return ep.Publish(Event{
		Type:      EventTypeJobStarted,
		Source:    "cook",
		CookRunID: cookRunID,
		JobID:     jobID,
		Target:    target,
		Message:   fmt.Sprintf("job %s started: %s on target %s", jobID, command, target),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"command": command,
		},
	})
}

// PublishJobCompleted publishes a cook job completed event.
func (ep *EventPublisher) PublishJobCompleted(cookRunID, jobID, target string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypeJobCompleted,
		Source:    "cook",
		CookRunID: cookRunID,
		JobID:     jobID,
		Target:    target,
		Message:   fmt.Sprintf("job %s completed for target %s", jobID, target),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishJobFailed publishes a cook job failed event.
func (ep *EventPublisher) PublishJobFailed(cookRunID, jobID, target, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeJobFailed,
		Source:    "cook",
		CookRunID: cookRunID,
		JobID:     jobID,
		Target:    target,
		Message:   fmt.Sprintf("job %s failed for target %s: %s", jobID, target, reason),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishTargetStateChanged publishes a target state change event.
func (ep *EventPublisher) PublishTargetStateChanged(target, oldState, newState string) error {
	return ep.Publish(Event{
		Type:    EventTypeTargetStateChanged,
		Source:  "modinst",
		Target:  target,
		Message: fmt.Sprintf("target %s state changed from %s to %s", target, oldState, newState),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"old_state": oldState,
			"new_state": newState,
		},
	})
}

// PublishCacheResult publishes a cook cache lookup event.
func (ep *EventPublisher) PublishCacheResult(jobID, outcome string) error {
	return ep.Publish(Event{
		Type:    EventTypeCacheResult,
		Source:  "cook_cache",
		JobID:   jobID,
		Message: fmt.Sprintf("cache lookup for job %s: %s", jobID, outcome),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"outcome": outcome,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(providerName, policyName, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy_engine",
		Target:  providerName,
		Message: fmt.Sprintf("policy violation for provider %s: %s - %s", providerName, policyName, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber.
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

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	// A partial batch is delivered every FlushInterval instead of
	// waiting for MaxBatchSize events or Shutdown.
	var tick <-chan time.Time
	if ep.config.FlushInterval > 0 {
		ticker := time.NewTicker(ep.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// periodicFlush runs a FlushInterval ticker until Shutdown. It
// delivers nothing itself; processEvents flushes partial batches on
// its own ticker.
func (ep *EventPublisher) periodicFlush() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// The flush happens in processEvents, which owns the batch.
		case <-ep.ctx.Done():
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
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

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByCookRunID creates a filter that only allows events for a specific cook run.
func FilterByCookRunID(cookRunID string) EventFilter {
	return func(event Event) bool {
		return event.CookRunID == cookRunID
	}
}

// FilterByTarget creates a filter that only allows events for a specific target.
func FilterByTarget(target string) EventFilter {
	return func(event Event) bool {
		return event.Target == target
	}
}
