package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/logger"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
)

func testConsumer() *Consumer {
	return &Consumer{retryDelay: time.Millisecond, maxRetryDelay: 4 * time.Millisecond}
}

func TestDeliverRetriesSameEventUntilHandled(t *testing.T) {
	logger.Discard()
	c := testConsumer()

	var seen []string
	handler := func(_ context.Context, event models.Event) error {
		seen = append(seen, event.ID)
		if len(seen) < 4 {
			return errors.New("redis unavailable")
		}
		return nil
	}

	err := c.deliver(context.Background(), handler, models.Event{ID: "evt-1", Type: models.EventPrescriptionProcessed})

	require.NoError(t, err)
	assert.Equal(t, []string{"evt-1", "evt-1", "evt-1", "evt-1"}, seen)
}

func TestDeliverStopsWhenContextEnds(t *testing.T) {
	logger.Discard()
	c := testConsumer()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	calls := 0
	err := c.deliver(ctx, func(context.Context, models.Event) error {
		calls++
		return errors.New("redis unavailable")
	}, models.Event{ID: "evt-2"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, calls, 1)
}
