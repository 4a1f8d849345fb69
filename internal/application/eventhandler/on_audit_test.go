package eventhandler

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/messaging"
)

func TestAuditHandler_RecordsViolationsPerRun(t *testing.T) {
	var buf bytes.Buffer
	h := NewAuditHandler(slog.New(slog.NewTextHandler(&buf, nil)))

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()
	require.NoError(t, h.Register(bus))

	require.NoError(t, bus.Publish(shared.NewConsistencyViolationEvent("r1", 4, "2023004", "物联网工程", 62, 70)))
	require.NoError(t, bus.Publish(shared.NewConsistencyViolationEvent("r1", 9, "2023009", "物联网工程", 60, 61)))
	require.NoError(t, bus.Publish(shared.NewConsistencyViolationEvent("r2", 1, "2023101", "电子信息工程", 65, 80)))
	require.NoError(t, bus.Publish(shared.NewCohortAuditedEvent("r1", "物联网工程", 12, 2)))

	got := h.Violations("r1")
	require.Len(t, got, 2)
	assert.Equal(t, 4, got[0].Position)
	assert.Equal(t, "2023009", got[1].StudentID)

	got[0].Position = 100
	assert.Equal(t, 4, h.Violations("r1")[0].Position, "callers get a copy")

	assert.Len(t, h.Violations("r2"), 1)
	assert.Empty(t, h.Violations("unknown"))

	assert.Contains(t, buf.String(), "target 1 score below target 2 score")
	assert.Contains(t, buf.String(), "consistency audit found violations")
}

func TestAuditHandler_PassedAuditAndUnexpectedEvent(t *testing.T) {
	var buf bytes.Buffer
	h := NewAuditHandler(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, h.Handle(shared.NewCohortAuditedEvent("r1", "物联网工程", 3, 0)))
	assert.Contains(t, buf.String(), "consistency audit passed")

	assert.Error(t, h.Handle(shared.NewRunStartedEvent("r1", "物联网工程", 3, 60, 90, true)))
}
