package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/synaptica-ai/rxdigitizer/pkg/common/logger"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store maintains per-key prescription counts. The key is the exact
// (name, dosage, frequency) triple: no case or whitespace folding.
type Store struct {
	db    *gorm.DB
	cache *Cache
	now   func() time.Time
}

func NewStore(db *gorm.DB, cache *Cache) *Store {
	return &Store{db: db, cache: cache, now: time.Now}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Stat{})
}

// WithTx returns a Store whose writes join tx.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, cache: s.cache, now: s.now}
}

// RecordOccurrence inserts the key with count 1 or increments it in a single
// INSERT ... ON CONFLICT statement, so concurrent callers on the same key
// never lose an increment.
func (s *Store) RecordOccurrence(ctx context.Context, name, dosage, frequency, duration string) error {
	now := s.now().UTC()
	stat := Stat{
		MedicineName:      name,
		Dosage:            dosage,
		Frequency:         frequency,
		Duration:          duration,
		PrescriptionCount: 1,
		LastUpdated:       now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "medicine_name"}, {Name: "dosage"}, {Name: "frequency"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"prescription_count": gorm.Expr(Stat{}.TableName() + ".prescription_count + 1"),
			"duration":           gorm.Expr("excluded.duration"),
			"last_updated":       now,
		}),
	}).Create(&stat).Error
	if err != nil {
		return fmt.Errorf("recording occurrence of %q: %w", name, err)
	}
	return nil
}

// Top returns the n most prescribed keys, served from cache when possible.
func (s *Store) Top(ctx context.Context, n int) ([]models.MedicineStat, error) {
	if n <= 0 {
		n = 10
	}
	gen, cacheable := s.cache.Generation(ctx)
	if cacheable {
		if cached, ok := s.cache.GetTop(ctx, gen, n); ok {
			return cached, nil
		}
	}

	var stats []Stat
	err := s.db.WithContext(ctx).
		Order("prescription_count DESC, medicine_name ASC, id ASC").
		Limit(n).
		Find(&stats).Error
	if err != nil {
		return nil, err
	}

	out := views(stats)
	if cacheable {
		if err := s.cache.SetTop(ctx, gen, n, out); err != nil {
			logger.Log.WithError(err).Debug("failed to cache top medicines")
		}
	}
	return out, nil
}

// All lists every key ordered by count descending.
func (s *Store) All(ctx context.Context) ([]models.MedicineStat, error) {
	var stats []Stat
	err := s.db.WithContext(ctx).
		Order("prescription_count DESC, medicine_name ASC, id ASC").
		Find(&stats).Error
	if err != nil {
		return nil, err
	}
	return views(stats), nil
}

func (s *Store) Get(ctx context.Context, name, dosage, frequency string) (*Stat, error) {
	var stat Stat
	err := s.db.WithContext(ctx).
		Where("medicine_name = ? AND dosage = ? AND frequency = ?", name, dosage, frequency).
		First(&stat).Error
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// UniqueMedicineNames counts distinct medicine names across all keys.
func (s *Store) UniqueMedicineNames(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Stat{}).Distinct("medicine_name").Count(&n).Error
	return n, err
}

// Invalidate drops cached rollups; call after the writing transaction commits.
func (s *Store) Invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		logger.Log.WithError(err).Warn("failed to invalidate medicine stats cache")
	}
}

// Refresh recomputes the cached top-n rollup from the database.
func (s *Store) Refresh(ctx context.Context, n int) error {
	if err := s.cache.Invalidate(ctx); err != nil {
		return err
	}
	_, err := s.Top(ctx, n)
	return err
}
