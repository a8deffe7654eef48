package prescription

import (
	"time"

	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
	"gorm.io/datatypes"
)

// Prescription is one uploaded prescription. Text fields are written once by
// the pipeline and never mutated afterwards.
type Prescription struct {
	ID           string            `gorm:"primaryKey;column:prescription_id;type:varchar(36)" json:"prescription_id"`
	PatientID    string            `gorm:"column:patient_id;index;not null" json:"patient_id"`
	UploadedAt   time.Time         `gorm:"column:upload_date;index" json:"upload_date"`
	ImageRef     string            `gorm:"column:image_filename;not null" json:"image_filename"`
	RawText      *string           `gorm:"column:ocr_raw_text" json:"-"`
	MaskedText   *string           `gorm:"column:ocr_masked_text" json:"masked_text,omitempty"`
	PipelineMeta datatypes.JSONMap `gorm:"column:pipeline_meta" json:"pipeline,omitempty"`
	Medicines    []MedicineEntry   `gorm:"foreignKey:PrescriptionID;references:ID;constraint:OnDelete:CASCADE" json:"medicines"`
}

func (Prescription) TableName() string {
	return "prescriptions"
}

// MedicineEntry is exclusively owned by its Prescription.
type MedicineEntry struct {
	ID             uint   `gorm:"primaryKey;column:id" json:"-"`
	PrescriptionID string `gorm:"column:prescription_id;type:varchar(36);index;not null" json:"-"`
	MedicineName   string `gorm:"column:medicine_name;not null" json:"medicine_name"`
	Dosage         string `gorm:"column:dosage" json:"dosage"`
	Route          string `gorm:"column:route" json:"route"`
	Frequency      string `gorm:"column:frequency" json:"frequency"`
	Duration       string `gorm:"column:duration" json:"duration"`
}

func (MedicineEntry) TableName() string {
	return "medicines_extracted"
}

func entryFromModel(m models.Medicine) MedicineEntry {
	return MedicineEntry{
		MedicineName: orNotSpecified(m.Name),
		Dosage:       orNotSpecified(m.Dosage),
		Route:        orNotSpecified(m.Route),
		Frequency:    orNotSpecified(m.Frequency),
		Duration:     orNotSpecified(m.Duration),
	}
}

func orNotSpecified(v string) string {
	if v == "" {
		return models.NotSpecified
	}
	return v
}

// Actor is the authenticated caller of a read or delete.
type Actor struct {
	UserID string
	Staff  bool
}
