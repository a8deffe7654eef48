package extraction

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/logger"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
	"github.com/synaptica-ai/rxdigitizer/pkg/llm"
	"github.com/synaptica-ai/rxdigitizer/pkg/observability/metrics"
)

const component = "extractor"

const promptTemplate = `Extract medicine information and return ONLY a JSON object:

{
  "medicines": [
    {
      "name": "medicine name",
      "dosage": "dosage with unit",
      "route": "route (oral/IV/IM)",
      "frequency": "frequency (OD/BD/TDS)",
      "duration": "duration"
    }
  ]
}

If information is missing, use "` + models.NotSpecified + `".

OCR Text:
%s

JSON:`

type Result struct {
	Medicines []models.Medicine
	Outcome   models.TransformOutcome
	Cause     error
}

// Extractor turns raw prescription text into medicine entries. Field values
// are free text and are not checked against any vocabulary.
type Extractor struct {
	model llm.Completer
}

func NewExtractor(model llm.Completer) *Extractor {
	return &Extractor{model: model}
}

// Extract never fails: on any error the result is an empty list with a
// degraded outcome.
func (e *Extractor) Extract(ctx context.Context, rawText string) Result {
	output, err := e.model.Complete(ctx, fmt.Sprintf(promptTemplate, rawText))
	if err != nil {
		return e.degraded(fmt.Errorf("model call: %w", err))
	}

	meds, err := ParseMedicines(output)
	if err != nil {
		return e.degraded(err)
	}

	metrics.ObserveTransform(component, string(models.OutcomeSuccess))
	return Result{Medicines: meds, Outcome: models.OutcomeSuccess}
}

func (e *Extractor) degraded(cause error) Result {
	logger.Log.WithError(cause).WithFields(logrus.Fields{
		"component": component,
		"outcome":   models.OutcomeDegraded,
	}).Warn("medicine extraction degraded, continuing with no medicines")
	metrics.ObserveTransform(component, string(models.OutcomeDegraded))
	return Result{Medicines: []models.Medicine{}, Outcome: models.OutcomeDegraded, Cause: cause}
}
