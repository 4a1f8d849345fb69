// Package eventhandler contains subscribers for domain events.
package eventhandler

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/metrics"
)

// ═══════════════════════════════════════════════════════════════════════════
// AUDIT HANDLER
// Reports cohort consistency findings. Findings never reject a row; they are
// logged, counted and kept per run for the HTTP run view.
// ═══════════════════════════════════════════════════════════════════════════

// AuditHandler logs consistency violations and audit summaries.
type AuditHandler struct {
	logger *slog.Logger

	mu         sync.Mutex
	violations map[string][]shared.ConsistencyViolationEvent // by run ID
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(logger *slog.Logger) *AuditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditHandler{
		logger:     logger.With("handler", "audit"),
		violations: make(map[string][]shared.ConsistencyViolationEvent),
	}
}

// Register subscribes the handler to the audit events of bus.
func (h *AuditHandler) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventConsistencyViolation, h.Handle); err != nil {
		return fmt.Errorf("subscribe violations: %w", err)
	}
	if err := bus.Subscribe(shared.EventCohortAudited, h.Handle); err != nil {
		return fmt.Errorf("subscribe audit summary: %w", err)
	}
	return nil
}

// Handle implements shared.EventHandler.
func (h *AuditHandler) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.ConsistencyViolationEvent:
		h.mu.Lock()
		h.violations[e.AggregateID()] = append(h.violations[e.AggregateID()], e)
		h.mu.Unlock()

		h.logger.Warn("target 1 score below target 2 score",
			"run_id", e.AggregateID(),
			"position", e.Position,
			"student_id", e.StudentID,
			"major", e.Major,
			"s1", e.S1,
			"s2", e.S2,
			"difference", e.Difference,
		)
		return nil

	case shared.CohortAuditedEvent:
		metrics.Violations(e.Major, e.Violations)
		if e.Violations == 0 {
			h.logger.Info("consistency audit passed",
				"run_id", e.AggregateID(), "major", e.Major, "checked", e.Checked)
			return nil
		}
		h.logger.Warn("consistency audit found violations",
			"run_id", e.AggregateID(), "major", e.Major,
			"checked", e.Checked, "violations", e.Violations)
		return nil

	default:
		return fmt.Errorf("audit handler: unexpected event %s", event.EventType())
	}
}

// Violations returns the findings recorded for runID in arrival order.
func (h *AuditHandler) Violations(runID string) []shared.ConsistencyViolationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]shared.ConsistencyViolationEvent, len(h.violations[runID]))
	copy(out, h.violations[runID])
	return out
}
