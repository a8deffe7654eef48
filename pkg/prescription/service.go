package prescription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/rxdigitizer/pkg/aggregation"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/logger"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
	"github.com/synaptica-ai/rxdigitizer/pkg/deid"
	"github.com/synaptica-ai/rxdigitizer/pkg/extraction"
	"github.com/synaptica-ai/rxdigitizer/pkg/gateway/httpclient"
	"github.com/synaptica-ai/rxdigitizer/pkg/observability/metrics"
	"github.com/synaptica-ai/rxdigitizer/pkg/ocr"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

const eventSource = "prescription-service"

type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte, contentType string) (string, error)
}

type Redactor interface {
	Redact(ctx context.Context, rawText string) deid.Result
}

type MedicineExtractor interface {
	Extract(ctx context.Context, rawText string) extraction.Result
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, source, key string, data map[string]interface{}) error
}

// ImageRemover drops stored images when a prescription is deleted.
type ImageRemover interface {
	Remove(ref string) error
}

type Options struct {
	// RecognitionAttempts bounds retries of transport failures; recognition
	// failures reported by the service are never retried.
	RecognitionAttempts int
	RetryDelay          time.Duration
}

// Service is the prescription pipeline: recognize, transform, persist.
type Service struct {
	recognizer TextRecognizer
	redactor   Redactor
	extractor  MedicineExtractor
	repo       *Repository
	stats      *aggregation.Store
	images     ImageRemover
	events     EventPublisher
	opts       Options
	now        func() time.Time
}

// NewService wires the pipeline. events and images may be nil.
func NewService(recognizer TextRecognizer, redactor Redactor, extractor MedicineExtractor, repo *Repository, stats *aggregation.Store, images ImageRemover, events EventPublisher, opts Options) *Service {
	if opts.RecognitionAttempts <= 0 {
		opts.RecognitionAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	return &Service{
		recognizer: recognizer,
		redactor:   redactor,
		extractor:  extractor,
		repo:       repo,
		stats:      stats,
		images:     images,
		events:     events,
		opts:       opts,
		now:        time.Now,
	}
}

// Process runs one unit of work for an already stored image and returns the
// new prescription id. Only recognition errors, persistence errors and
// cancellation are reported; transform failures degrade silently.
func (s *Service) Process(ctx context.Context, patientID, imageRef string, image []byte, contentType string) (string, error) {
	log := logger.WithFields(logrus.Fields{
		"patient_id": patientID,
		"image":      imageRef,
	})

	// Recognizing
	stageStart := time.Now()
	attempts := 0
	var rawText string
	err := httpclient.Retry(ctx, s.opts.RecognitionAttempts, s.opts.RetryDelay, isTransportError, func() error {
		attempts++
		text, err := s.recognizer.Recognize(ctx, image, contentType)
		if err != nil {
			return err
		}
		rawText = text
		return nil
	})
	metrics.ObserveStage("recognize", time.Since(stageStart).Seconds())
	if err != nil {
		return "", s.recognitionFailure(ctx, log.WithField("attempts", attempts), err)
	}

	// Transforming: both depend only on the raw text and never fail.
	stageStart = time.Now()
	var redacted deid.Result
	var extracted extraction.Result
	var g errgroup.Group
	g.Go(func() error {
		redacted = s.redactor.Redact(ctx, rawText)
		return nil
	})
	g.Go(func() error {
		extracted = s.extractor.Extract(ctx, rawText)
		return nil
	})
	_ = g.Wait()
	metrics.ObserveStage("transform", time.Since(stageStart).Seconds())

	if err := ctx.Err(); err != nil {
		metrics.ObserveRun(metrics.RunCancelled)
		log.WithError(err).Info("prescription processing cancelled before persistence")
		return "", err
	}

	// Persisting
	rec := &Prescription{
		ID:         uuid.New().String(),
		PatientID:  patientID,
		UploadedAt: s.now().UTC(),
		ImageRef:   imageRef,
		RawText:    &rawText,
		MaskedText: &redacted.Text,
		PipelineMeta: datatypes.JSONMap{
			"recognition_attempts": attempts,
			"redaction":            string(redacted.Outcome),
			"extraction":           string(extracted.Outcome),
			"medicine_count":       len(extracted.Medicines),
		},
	}
	entries := make([]MedicineEntry, 0, len(extracted.Medicines))
	for _, m := range extracted.Medicines {
		entries = append(entries, entryFromModel(m))
	}

	stageStart = time.Now()
	if err := s.repo.Persist(ctx, rec, entries, s.stats); err != nil {
		metrics.ObserveStage("persist", time.Since(stageStart).Seconds())
		if ctx.Err() != nil {
			metrics.ObserveRun(metrics.RunCancelled)
		} else {
			metrics.ObserveRun(metrics.RunPersistenceFailed)
		}
		log.WithError(err).Error("failed to persist prescription, image left on storage")
		return "", &PersistenceFailed{Cause: err}
	}
	metrics.ObserveStage("persist", time.Since(stageStart).Seconds())

	// Completed
	metrics.ObserveRun(metrics.RunCompleted)
	metrics.ObserveMedicines(len(entries))
	log.WithFields(logrus.Fields{
		"prescription_id": rec.ID,
		"medicines":       len(entries),
		"redaction":       redacted.Outcome,
		"extraction":      extracted.Outcome,
	}).Info("prescription processed")

	s.afterCommit(ctx, models.EventPrescriptionProcessed, rec.ID, map[string]interface{}{
		"prescription_id": rec.ID,
		"medicine_count":  len(entries),
		"redaction":       string(redacted.Outcome),
		"extraction":      string(extracted.Outcome),
	})

	return rec.ID, nil
}

func (s *Service) recognitionFailure(ctx context.Context, log *logrus.Entry, err error) error {
	var failed *ocr.RecognitionFailed
	switch {
	case errors.As(err, &failed):
		metrics.ObserveRun(metrics.RunRecognitionFailed)
		log.WithField("reason", failed.Message).Warn("recognition service rejected image")
	case ctx.Err() != nil:
		metrics.ObserveRun(metrics.RunCancelled)
		log.WithError(err).Info("prescription processing cancelled during recognition")
		return ctx.Err()
	default:
		metrics.ObserveRun(metrics.RunTransportError)
		log.WithError(err).Error("recognition service unreachable")
	}
	return err
}

// isTransportError classifies recognition retries by error type alone, so a
// malformed response is retried like a dropped connection.
func isTransportError(err error) bool {
	var transport *ocr.TransportError
	return errors.As(err, &transport)
}

// afterCommit refreshes caches and publishes an event. Failures are logged
// only; the write has already succeeded.
func (s *Service) afterCommit(ctx context.Context, eventType, id string, data map[string]interface{}) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	s.stats.Invalidate(bg)
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(bg, eventType, eventSource, id, data); err != nil {
		logger.Log.WithError(err).WithField("prescription_id", id).Warn("failed to publish prescription event")
	}
}

func (s *Service) PatientPrescriptions(ctx context.Context, patientID string) ([]Prescription, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *Service) AllPrescriptions(ctx context.Context) ([]Prescription, error) {
	return s.repo.ListAll(ctx)
}

func (s *Service) Get(ctx context.Context, id string, actor Actor) (*Prescription, error) {
	return s.repo.Get(ctx, id, actor)
}

// Delete removes a prescription the actor may access, cascades to its
// medicines and removes the stored image. Aggregates are not decremented.
func (s *Service) Delete(ctx context.Context, id string, actor Actor) error {
	rec, err := s.repo.Delete(ctx, id, actor)
	if err != nil {
		return err
	}

	if s.images != nil {
		if err := s.images.Remove(rec.ImageRef); err != nil {
			logger.Log.WithError(err).WithField("prescription_id", id).Warn("failed to remove prescription image")
		}
	}

	if s.events != nil {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.events.PublishEvent(bg, models.EventPrescriptionDeleted, eventSource, id, map[string]interface{}{
			"prescription_id": id,
		}); err != nil {
			logger.Log.WithError(err).WithField("prescription_id", id).Warn("failed to publish prescription event")
		}
	}
	return nil
}

func (s *Service) TopMedicines(ctx context.Context, n int) ([]models.MedicineStat, error) {
	return s.stats.Top(ctx, n)
}

func (s *Service) AllMedicines(ctx context.Context) ([]models.MedicineStat, error) {
	return s.stats.All(ctx)
}

// Summary assembles the staff dashboard rollup.
func (s *Service) Summary(ctx context.Context, topN int) (*models.DashboardSummary, error) {
	var (
		out models.DashboardSummary
		err error
	)
	if out.TotalPrescriptions, err = s.repo.Count(ctx); err != nil {
		return nil, err
	}
	if out.TotalPatients, err = s.repo.CountPatients(ctx); err != nil {
		return nil, err
	}
	if out.UniqueMedicines, err = s.stats.UniqueMedicineNames(ctx); err != nil {
		return nil, err
	}
	if out.TopMedicines, err = s.stats.Top(ctx, topN); err != nil {
		return nil, err
	}
	if out.AllMedicines, err = s.stats.All(ctx); err != nil {
		return nil, err
	}
	if out.MaskedPrescriptions, err = s.repo.MaskedTexts(ctx); err != nil {
		return nil, err
	}
	return &out, nil
}
