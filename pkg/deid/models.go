package deid

import "github.com/synaptica-ai/rxdigitizer/pkg/common/models"

// Placeholder tokens substituted for personal identifiers.
const (
	TokenPatientName = "[PATIENT_NAME]"
	TokenAge         = "[AGE]"
	TokenPhone       = "[PHONE]"
	TokenPatientID   = "[PATIENT_ID]"
	TokenAddress     = "[ADDRESS]"
)

// Result is the redacted text plus whether redaction actually ran.
// On a degraded result Text is the unmodified input and Cause is set.
type Result struct {
	Text    string
	Outcome models.TransformOutcome
	Cause   error
}
