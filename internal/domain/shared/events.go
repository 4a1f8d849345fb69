// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types emitted while a prediction run progresses.
const (
	// Run events
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"

	// Student events
	EventStudentEvaluated EventType = "student.evaluated"
	EventStudentFailed    EventType = "student.failed"

	// Audit events
	EventConsistencyViolation EventType = "audit.consistency_violation"
	EventCohortAudited        EventType = "audit.cohort_audited"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Run Events
// ═══════════════════════════════════════════════════════════════════════════

// RunStartedEvent is emitted before the first student of a major is evaluated.
type RunStartedEvent struct {
	BaseEvent
	Major      string `json:"major"`
	Students   int    `json:"students"`
	MinGrade   int    `json:"min_grade"`
	MaxGrade   int    `json:"max_grade"`
	WithSearch bool   `json:"with_search"`
}

// Payload implements Event interface.
func (e RunStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"major":       e.Major,
		"students":    e.Students,
		"min_grade":   e.MinGrade,
		"max_grade":   e.MaxGrade,
		"with_search": e.WithSearch,
	}
}

// NewRunStartedEvent creates a new RunStartedEvent.
func NewRunStartedEvent(runID, major string, students, minGrade, maxGrade int, withSearch bool) RunStartedEvent {
	return RunStartedEvent{
		BaseEvent:  NewBaseEvent(EventRunStarted, runID),
		Major:      major,
		Students:   students,
		MinGrade:   minGrade,
		MaxGrade:   maxGrade,
		WithSearch: withSearch,
	}
}

// RunCompletedEvent is emitted once every student of a major has a row or a failure.
type RunCompletedEvent struct {
	BaseEvent
	Major      string        `json:"major"`
	Evaluated  int           `json:"evaluated"`
	Failed     int           `json:"failed"`
	Violations int           `json:"violations"`
	Duration   time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e RunCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"major":      e.Major,
		"evaluated":  e.Evaluated,
		"failed":     e.Failed,
		"violations": e.Violations,
		"duration":   e.Duration.String(),
	}
}

// NewRunCompletedEvent creates a new RunCompletedEvent.
func NewRunCompletedEvent(runID, major string, evaluated, failed, violations int, d time.Duration) RunCompletedEvent {
	return RunCompletedEvent{
		BaseEvent:  NewBaseEvent(EventRunCompleted, runID),
		Major:      major,
		Evaluated:  evaluated,
		Failed:     failed,
		Violations: violations,
		Duration:   d,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Student Events
// ═══════════════════════════════════════════════════════════════════════════

// StudentEvaluatedEvent is emitted when a student's prediction and search finish.
type StudentEvaluatedEvent struct {
	BaseEvent
	StudentID      string  `json:"student_id"`
	PredictedClass int     `json:"predicted_class"`
	S1             float64 `json:"s1"`
	S2             float64 `json:"s2"`
	Policy1        string  `json:"policy_1"`
	Policy2        string  `json:"policy_2"`
	CacheHit       bool    `json:"cache_hit"`
}

// Payload implements Event interface.
func (e StudentEvaluatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":      e.StudentID,
		"predicted_class": e.PredictedClass,
		"s1":              e.S1,
		"s2":              e.S2,
		"policy_1":        e.Policy1,
		"policy_2":        e.Policy2,
		"cache_hit":       e.CacheHit,
	}
}

// NewStudentEvaluatedEvent creates a new StudentEvaluatedEvent.
func NewStudentEvaluatedEvent(runID, studentID string, class int, s1, s2 float64, p1, p2 string, cacheHit bool) StudentEvaluatedEvent {
	return StudentEvaluatedEvent{
		BaseEvent:      NewBaseEvent(EventStudentEvaluated, runID),
		StudentID:      studentID,
		PredictedClass: class,
		S1:             s1,
		S2:             s2,
		Policy1:        p1,
		Policy2:        p2,
		CacheHit:       cacheHit,
	}
}

// StudentFailedEvent is emitted when a single student's evaluation errors.
type StudentFailedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	Error     string `json:"error"`
}

// Payload implements Event interface.
func (e StudentFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"error":      e.Error,
	}
}

// NewStudentFailedEvent creates a new StudentFailedEvent.
func NewStudentFailedEvent(runID, studentID string, err error) StudentFailedEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return StudentFailedEvent{
		BaseEvent: NewBaseEvent(EventStudentFailed, runID),
		StudentID: studentID,
		Error:     msg,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Audit Events
// ═══════════════════════════════════════════════════════════════════════════

// ConsistencyViolationEvent reports a student whose target 1 score is below target 2.
// It is diagnostic; the student's row is written unchanged.
type ConsistencyViolationEvent struct {
	BaseEvent
	Position   int     `json:"position"`
	StudentID  string  `json:"student_id"`
	Major      string  `json:"major"`
	S1         float64 `json:"s1"`
	S2         float64 `json:"s2"`
	Difference float64 `json:"difference"`
}

// Payload implements Event interface.
func (e ConsistencyViolationEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"position":   e.Position,
		"student_id": e.StudentID,
		"major":      e.Major,
		"s1":         e.S1,
		"s2":         e.S2,
		"difference": e.Difference,
	}
}

// NewConsistencyViolationEvent creates a new ConsistencyViolationEvent.
func NewConsistencyViolationEvent(runID string, position int, studentID, major string, s1, s2 float64) ConsistencyViolationEvent {
	return ConsistencyViolationEvent{
		BaseEvent:  NewBaseEvent(EventConsistencyViolation, runID),
		Position:   position,
		StudentID:  studentID,
		Major:      major,
		S1:         s1,
		S2:         s2,
		Difference: s2 - s1,
	}
}

// CohortAuditedEvent summarises one audit pass.
type CohortAuditedEvent struct {
	BaseEvent
	Major      string `json:"major"`
	Checked    int    `json:"checked"`
	Violations int    `json:"violations"`
}

// Payload implements Event interface.
func (e CohortAuditedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"major":      e.Major,
		"checked":    e.Checked,
		"violations": e.Violations,
	}
}

// NewCohortAuditedEvent creates a new CohortAuditedEvent.
func NewCohortAuditedEvent(runID, major string, checked, violations int) CohortAuditedEvent {
	return CohortAuditedEvent{
		BaseEvent:  NewBaseEvent(EventCohortAudited, runID),
		Major:      major,
		Checked:    checked,
		Violations: violations,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Interfaces
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
