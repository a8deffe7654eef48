package aggregation

import (
	"context"

	"github.com/synaptica-ai/rxdigitizer/pkg/common/logger"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
)

// Refresher rebuilds the cached rollup whenever a prescription event arrives,
// so readers on other instances see new counts before the TTL expires.
type Refresher struct {
	store *Store
	topN  int
}

func NewRefresher(store *Store, topN int) *Refresher {
	if topN <= 0 {
		topN = 10
	}
	return &Refresher{store: store, topN: topN}
}

// HandleEvent matches kafka.EventHandler.
func (r *Refresher) HandleEvent(ctx context.Context, event models.Event) error {
	switch event.Type {
	case models.EventPrescriptionProcessed, models.EventPrescriptionDeleted:
	default:
		return nil
	}

	if err := r.store.Refresh(ctx, r.topN); err != nil {
		return err
	}
	logger.Log.WithField("event_id", event.ID).Debug("medicine stats cache refreshed")
	return nil
}
