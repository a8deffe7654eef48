package aggregation

import (
	"time"

	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
)

// Stat is the historical counter for one (medicine, dosage, frequency) key.
// Rows are never decremented or deleted by normal operation.
type Stat struct {
	ID                uint      `gorm:"primaryKey;column:id" json:"id"`
	MedicineName      string    `gorm:"column:medicine_name;type:text;not null;uniqueIndex:idx_anonymized_medicine_key,priority:1" json:"medicine_name"`
	Dosage            string    `gorm:"column:dosage;type:text;not null;uniqueIndex:idx_anonymized_medicine_key,priority:2" json:"dosage"`
	Frequency         string    `gorm:"column:frequency;type:text;not null;uniqueIndex:idx_anonymized_medicine_key,priority:3" json:"frequency"`
	Duration          string    `gorm:"column:duration;type:text" json:"duration"`
	PrescriptionCount int64     `gorm:"column:prescription_count;not null;default:1;index" json:"prescription_count"`
	LastUpdated       time.Time `gorm:"column:last_updated" json:"last_updated"`
}

func (Stat) TableName() string {
	return "anonymized_medicines"
}

func (s Stat) View() models.MedicineStat {
	return models.MedicineStat{
		MedicineName:      s.MedicineName,
		Dosage:            s.Dosage,
		Frequency:         s.Frequency,
		Duration:          s.Duration,
		PrescriptionCount: s.PrescriptionCount,
		LastUpdated:       s.LastUpdated,
	}
}

func views(stats []Stat) []models.MedicineStat {
	out := make([]models.MedicineStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, s.View())
	}
	return out
}
