package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/logger"
	"github.com/synaptica-ai/rxdigitizer/pkg/gateway/auth"
	"github.com/synaptica-ai/rxdigitizer/pkg/gateway/middleware"
	"github.com/synaptica-ai/rxdigitizer/pkg/imagestore"
	"github.com/synaptica-ai/rxdigitizer/pkg/ocr"
)

const uploadField = "prescription"

// multipartOverhead leaves room for form boundaries around the file part.
const multipartOverhead = 1 << 20

// statusClientClosedRequest is logged when the caller went away mid-pipeline.
const statusClientClosedRequest = 499

type ImageStore interface {
	Save(patientID, originalName string, data []byte, at time.Time) (string, error)
	Path(ref string) (string, error)
}

type HTTPHandler struct {
	service   *Service
	images    ImageStore
	validator *UploadValidator
	maxBody   int64
	topN      int
}

func NewHTTPHandler(service *Service, images ImageStore, validator *UploadValidator, maxBody int64, topN int) *HTTPHandler {
	if topN <= 0 {
		topN = 10
	}
	return &HTTPHandler{service: service, images: images, validator: validator, maxBody: maxBody, topN: topN}
}

// Register mounts the routes. Callers must already be authenticated.
func (h *HTTPHandler) Register(router *mux.Router) {
	patient := middleware.RequireRole(auth.RolePatient)
	anyone := middleware.RequireRole(auth.RolePatient, auth.RoleStaff)
	staff := middleware.RequireRole(auth.RoleStaff)

	router.Handle("/prescriptions", patient(http.HandlerFunc(h.handleUpload))).Methods(http.MethodPost)
	router.Handle("/prescriptions", anyone(http.HandlerFunc(h.handleList))).Methods(http.MethodGet)
	router.Handle("/prescriptions/{id}", anyone(http.HandlerFunc(h.handleGet))).Methods(http.MethodGet)
	router.Handle("/prescriptions/{id}", anyone(http.HandlerFunc(h.handleDelete))).Methods(http.MethodDelete)
	router.Handle("/prescriptions/{id}/image", anyone(http.HandlerFunc(h.handleImage))).Methods(http.MethodGet)
	router.Handle("/stats/medicines", staff(http.HandlerFunc(h.handleTopMedicines))).Methods(http.MethodGet)
	router.Handle("/stats/summary", staff(http.HandlerFunc(h.handleSummary))).Methods(http.MethodGet)
}

type uploadResponse struct {
	PrescriptionID string `json:"prescription_id"`
}

func (h *HTTPHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody+multipartOverhead)
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		logger.Log.WithError(err).Warn("invalid upload payload")
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeError(w, ValidationError{reason: errMissingFile})
		return
	}
	defer file.Close()

	contentType, err := h.validator.Validate(header.Filename, header.Size)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		logger.Log.WithError(err).Warn("failed reading upload")
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}

	ref, err := h.images.Save(actor.UserID, header.Filename, data, time.Now())
	if err != nil {
		logger.Log.WithError(err).Error("failed to store prescription image")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	id, err := h.service.Process(r.Context(), actor.UserID, ref, data, contentType)
	if err != nil {
		writeError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, uploadResponse{PrescriptionID: id})
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())

	var (
		recs []Prescription
		err  error
	)
	if actor.Staff {
		recs, err = h.service.AllPrescriptions(r.Context())
	} else {
		recs, err = h.service.PatientPrescriptions(r.Context(), actor.UserID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []Prescription{}
	}
	respondJSON(w, http.StatusOK, recs)
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), mux.Vars(r)["id"], actorFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *HTTPHandler) handleImage(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), mux.Vars(r)["id"], actorFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	path, err := h.images.Path(rec.ImageRef)
	if err != nil {
		if errors.Is(err, imagestore.ErrNotFound) || errors.Is(err, imagestore.ErrInvalidRef) {
			http.Error(w, "image not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to resolve prescription image")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.ServeFile(w, r, path)
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), mux.Vars(r)["id"], actorFrom(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) handleTopMedicines(w http.ResponseWriter, r *http.Request) {
	n := h.topN
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}

	stats, err := h.service.TopMedicines(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *HTTPHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), h.topN)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func actorFrom(ctx context.Context) Actor {
	claims, ok := middleware.ClaimsFromContext(ctx)
	if !ok {
		return Actor{}
	}
	return Actor{UserID: claims.Subject, Staff: claims.IsStaff()}
}

func writeError(w http.ResponseWriter, err error) {
	var (
		failed    *ocr.RecognitionFailed
		transport *ocr.TransportError
		persist   *PersistenceFailed
	)
	switch {
	case IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "prescription not found", http.StatusNotFound)
	case errors.As(err, &failed):
		http.Error(w, "could not read prescription: "+failed.Message, http.StatusUnprocessableEntity)
	case errors.Is(err, context.Canceled):
		logger.Log.WithError(err).Info("request cancelled")
		w.WriteHeader(statusClientClosedRequest)
	case errors.As(err, &transport):
		http.Error(w, "recognition service unavailable", http.StatusBadGateway)
	case errors.As(err, &persist):
		http.Error(w, "could not save prescription", http.StatusServiceUnavailable)
	default:
		logger.Log.WithError(err).Error("prescription request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Warn("failed to encode response")
	}
}
