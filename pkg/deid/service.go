package deid

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/logger"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
	"github.com/synaptica-ai/rxdigitizer/pkg/dlp"
	"github.com/synaptica-ai/rxdigitizer/pkg/llm"
	"github.com/synaptica-ai/rxdigitizer/pkg/observability/metrics"
)

const component = "redactor"

var errEmptyRedaction = errors.New("model returned empty redaction")

const promptTemplate = `You are a medical data anonymization tool. Replace personal information with tokens:

Replace:
- Patient names → ` + TokenPatientName + `
- Ages/DOB → ` + TokenAge + `
- Phone numbers → ` + TokenPhone + `
- Patient IDs → ` + TokenPatientID + `
- Addresses → ` + TokenAddress + `

Keep unchanged:
- Medicine names
- Dosages
- Doctor names
- Hospital names

Text:
%s

Output only the masked text:`

// Redactor masks personal identifiers through a language model. It fails
// open: any model failure yields the input text with a degraded outcome.
type Redactor struct {
	model   llm.Completer
	auditor *dlp.Detector
}

// NewRedactor builds a Redactor. auditor may be nil; when set, masked output
// is scanned for identifiers the model left behind.
func NewRedactor(model llm.Completer, auditor *dlp.Detector) *Redactor {
	return &Redactor{model: model, auditor: auditor}
}

func (r *Redactor) Redact(ctx context.Context, rawText string) Result {
	masked, err := r.model.Complete(ctx, fmt.Sprintf(promptTemplate, rawText))
	if err == nil && strings.TrimSpace(masked) == "" && strings.TrimSpace(rawText) != "" {
		err = errEmptyRedaction
	}
	if err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"component": component,
			"outcome":   models.OutcomeDegraded,
		}).Warn("redaction degraded, keeping unredacted text")
		metrics.ObserveTransform(component, string(models.OutcomeDegraded))
		return Result{Text: rawText, Outcome: models.OutcomeDegraded, Cause: err}
	}

	metrics.ObserveTransform(component, string(models.OutcomeSuccess))
	r.audit(masked)
	return Result{Text: masked, Outcome: models.OutcomeSuccess}
}

func (r *Redactor) audit(masked string) {
	if r.auditor == nil {
		return
	}
	result := r.auditor.Detect(masked)
	if !result.Detected {
		return
	}
	for _, f := range result.Findings {
		metrics.ObserveResidualIdentifier(f.Type)
	}
	logger.Log.WithFields(logrus.Fields{
		"component":  component,
		"types":      result.Types,
		"count":      len(result.Findings),
		"confidence": result.Confidence,
	}).Warn("redacted text still contains identifier-like patterns")
}
