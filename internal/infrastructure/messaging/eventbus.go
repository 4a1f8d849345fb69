// Package messaging implements the in-process event bus that carries run,
// student and audit events to their subscribers.
package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus is an in-memory implementation of shared.EventBus.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *slog.Logger
	stats       *EventBusStats
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on a bounded worker pool instead of inline.
	AsyncMode bool

	// WorkerPoolSize is the number of concurrent handler executions in async mode.
	WorkerPoolSize int

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		logger:     config.Logger,
		stats:      newEventBusStats(),
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("subscribed handler", "event_type", eventType)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.allHandlers = append(b.allHandlers, handler)
	b.logger.Debug("subscribed global handler")
	return nil
}

// Publish sends an event to all subscribed handlers.
// Handler errors are logged and counted, never returned to the publisher.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	if b.asyncMode {
		// Registered under the read lock so Close cannot miss it.
		b.wg.Add(len(handlers))
	}
	b.mu.RUnlock()

	b.stats.recordPublish(event.EventType())
	metrics.EventPublished(string(event.EventType()))

	for _, handler := range handlers {
		if b.asyncMode {
			go b.executeAsync(event, handler)
			continue
		}
		if err := b.execute(event, handler); err != nil {
			b.logger.Error("handler error", "event_type", event.EventType(), "error", err)
		}
	}
	return nil
}

// executeAsync runs a handler on the worker pool.
func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	defer b.wg.Done()

	select {
	case b.workerPool <- struct{}{}:
		defer func() { <-b.workerPool }()
	case <-b.closeCh:
		return
	}

	if err := b.execute(event, handler); err != nil {
		b.logger.Error("async handler error", "event_type", event.EventType(), "error", err)
	}
}

// execute runs one handler, converting a panic to ErrHandlerPanic.
func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrHandlerPanic, r, debug.Stack())
		}
		b.stats.recordHandler(err == nil, time.Since(start))
		if err != nil {
			metrics.HandlerFailed(string(event.EventType()))
		}
	}()
	return handler(event)
}

// Close stops accepting events and waits for running handlers.
// Async handlers still waiting for a worker slot are dropped.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("event bus closed")
	return nil
}

// Drain waits for every handler started so far without closing the bus.
func (b *InMemoryEventBus) Drain() {
	b.wg.Wait()
}

// Stats returns a snapshot of publish and handler counters.
func (b *InMemoryEventBus) Stats() EventBusStatsSnapshot {
	return b.stats.snapshot()
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusStats tracks in-process bus counters.
type EventBusStats struct {
	mu               sync.Mutex
	published        map[shared.EventType]int64
	handlerRuns      int64
	handlerFailures  int64
	handlerTotalTime time.Duration
}

func newEventBusStats() *EventBusStats {
	return &EventBusStats{published: make(map[shared.EventType]int64)}
}

func (s *EventBusStats) recordPublish(t shared.EventType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published[t]++
}

func (s *EventBusStats) recordHandler(ok bool, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlerRuns++
	s.handlerTotalTime += d
	if !ok {
		s.handlerFailures++
	}
}

func (s *EventBusStats) snapshot() EventBusStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := EventBusStatsSnapshot{
		Published:       make(map[shared.EventType]int64, len(s.published)),
		HandlerRuns:     s.handlerRuns,
		HandlerFailures: s.handlerFailures,
	}
	for k, v := range s.published {
		snap.Published[k] = v
		snap.TotalPublished += v
	}
	if s.handlerRuns > 0 {
		snap.AverageHandlerDuration = s.handlerTotalTime / time.Duration(s.handlerRuns)
	}
	return snap
}

// EventBusStatsSnapshot is a point-in-time copy of the bus counters.
type EventBusStatsSnapshot struct {
	Published              map[shared.EventType]int64
	TotalPublished         int64
	HandlerRuns            int64
	HandlerFailures        int64
	AverageHandlerDuration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")
)
