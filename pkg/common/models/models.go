package models

import "time"

// Event bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // prescription.processed, prescription.deleted
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

const (
	EventPrescriptionProcessed = "prescription.processed"
	EventPrescriptionDeleted   = "prescription.deleted"
)

// TransformOutcome records whether a fail-open transform actually ran.
// Degraded means the component fell back to its default result.
type TransformOutcome string

const (
	OutcomeSuccess  TransformOutcome = "success"
	OutcomeDegraded TransformOutcome = "degraded"
)

func (o TransformOutcome) Degraded() bool {
	return o == OutcomeDegraded
}

// NotSpecified is the sentinel for medicine fields the model could not determine.
const NotSpecified = "Not specified"

// Medicine is one structured medicine line as produced by extraction.
type Medicine struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Route     string `json:"route"`
	Frequency string `json:"frequency"`
	Duration  string `json:"duration"`
}

// Dashboard aggregates
type MedicineStat struct {
	MedicineName      string    `json:"medicine_name"`
	Dosage            string    `json:"dosage"`
	Frequency         string    `json:"frequency"`
	Duration          string    `json:"duration"`
	PrescriptionCount int64     `json:"prescription_count"`
	LastUpdated       time.Time `json:"last_updated"`
}

type MaskedPrescription struct {
	PrescriptionID string    `json:"prescription_id"`
	UploadedAt     time.Time `json:"uploaded_at"`
	MaskedText     string    `json:"masked_text"`
}

type DashboardSummary struct {
	TotalPrescriptions  int64                `json:"total_prescriptions"`
	TotalPatients       int64                `json:"total_patients"`
	UniqueMedicines     int64                `json:"unique_medicines"`
	TopMedicines        []MedicineStat       `json:"top_medicines"`
	AllMedicines        []MedicineStat       `json:"all_medicines"`
	MaskedPrescriptions []MaskedPrescription `json:"masked_prescriptions"`
}
