package prescription

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/synaptica-ai/rxdigitizer/pkg/aggregation"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Prescription{}, &MedicineEntry{})
}

// Persist writes the prescription, its entries and the aggregate increments
// in one transaction. Each distinct key is counted once per prescription.
func (r *Repository) Persist(ctx context.Context, rec *Prescription, entries []MedicineEntry, stats *aggregation.Store) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(rec).Error; err != nil {
			return fmt.Errorf("creating prescription: %w", err)
		}

		for i := range entries {
			entries[i].ID = 0
			entries[i].PrescriptionID = rec.ID
			if err := tx.Create(&entries[i]).Error; err != nil {
				return fmt.Errorf("creating medicine entry %d: %w", i, err)
			}
		}

		agg := stats.WithTx(tx)
		for _, e := range distinctKeys(entries) {
			if err := agg.RecordOccurrence(ctx, e.MedicineName, e.Dosage, e.Frequency, e.Duration); err != nil {
				return err
			}
		}

		rec.Medicines = entries
		return nil
	})
}

// distinctKeys keeps one entry per (name, dosage, frequency), carrying the
// duration of the last occurrence. The result is sorted by key so concurrent
// transactions take row locks on the aggregate table in the same order.
func distinctKeys(entries []MedicineEntry) []MedicineEntry {
	type key struct{ name, dosage, frequency string }
	index := make(map[key]int, len(entries))
	var out []MedicineEntry
	for _, e := range entries {
		k := key{e.MedicineName, e.Dosage, e.Frequency}
		if i, ok := index[k]; ok {
			out[i].Duration = e.Duration
			continue
		}
		index[k] = len(out)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MedicineName != b.MedicineName {
			return a.MedicineName < b.MedicineName
		}
		if a.Dosage != b.Dosage {
			return a.Dosage < b.Dosage
		}
		return a.Frequency < b.Frequency
	})
	return out
}

func (r *Repository) Get(ctx context.Context, id string, actor Actor) (*Prescription, error) {
	var rec Prescription
	q := r.db.WithContext(ctx).Preload("Medicines", orderEntries).Where("prescription_id = ?", id)
	if !actor.Staff {
		q = q.Where("patient_id = ?", actor.UserID)
	}
	err := q.First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByPatient returns a patient's prescriptions newest first with medicines.
func (r *Repository) ListByPatient(ctx context.Context, patientID string) ([]Prescription, error) {
	var recs []Prescription
	err := r.db.WithContext(ctx).
		Preload("Medicines", orderEntries).
		Where("patient_id = ?", patientID).
		Order("upload_date DESC").
		Find(&recs).Error
	return recs, err
}

func (r *Repository) ListAll(ctx context.Context) ([]Prescription, error) {
	var recs []Prescription
	err := r.db.WithContext(ctx).
		Preload("Medicines", orderEntries).
		Order("upload_date DESC").
		Find(&recs).Error
	return recs, err
}

// Delete removes the prescription and its medicine entries. Aggregates are
// left untouched. The deleted record is returned so the caller can drop the
// stored image.
func (r *Repository) Delete(ctx context.Context, id string, actor Actor) (*Prescription, error) {
	var deleted Prescription
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("prescription_id = ?", id)
		if !actor.Staff {
			q = q.Where("patient_id = ?", actor.UserID)
		}
		if err := q.First(&deleted).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Where("prescription_id = ?", id).Delete(&MedicineEntry{}).Error; err != nil {
			return fmt.Errorf("deleting medicine entries: %w", err)
		}
		if err := tx.Where("prescription_id = ?", id).Delete(&Prescription{}).Error; err != nil {
			return fmt.Errorf("deleting prescription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Prescription{}).Count(&n).Error
	return n, err
}

func (r *Repository) CountPatients(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Prescription{}).Distinct("patient_id").Count(&n).Error
	return n, err
}

// MaskedTexts lists redacted texts newest first, skipping rows without one.
func (r *Repository) MaskedTexts(ctx context.Context) ([]models.MaskedPrescription, error) {
	var recs []Prescription
	err := r.db.WithContext(ctx).
		Select("prescription_id", "upload_date", "ocr_masked_text").
		Where("ocr_masked_text IS NOT NULL").
		Order("upload_date DESC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.MaskedPrescription, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.MaskedPrescription{
			PrescriptionID: rec.ID,
			UploadedAt:     rec.UploadedAt,
			MaskedText:     *rec.MaskedText,
		})
	}
	return out, nil
}

func orderEntries(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}
