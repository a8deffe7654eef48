package aggregation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/logger"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
)

func TestRefresherHandlesPrescriptionEvents(t *testing.T) {
	logger.Discard()
	store := setupTestStore(t)
	r := NewRefresher(store, 5)

	assert.NoError(t, r.HandleEvent(context.Background(), models.Event{ID: "1", Type: models.EventPrescriptionProcessed}))
	assert.NoError(t, r.HandleEvent(context.Background(), models.Event{ID: "2", Type: models.EventPrescriptionDeleted}))
	assert.NoError(t, r.HandleEvent(context.Background(), models.Event{ID: "3", Type: "something.else"}))
}

func TestRefresherReportsStoreErrors(t *testing.T) {
	logger.Discard()
	store := setupTestStore(t)
	sqlDB, err := store.db.DB()
	assert.NoError(t, err)
	assert.NoError(t, sqlDB.Close())

	r := NewRefresher(store, 5)

	assert.Error(t, r.HandleEvent(context.Background(), models.Event{Type: models.EventPrescriptionProcessed}))
	assert.NoError(t, r.HandleEvent(context.Background(), models.Event{Type: "ignored"}))
}
