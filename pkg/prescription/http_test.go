package prescription

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/rxdigitizer/pkg/common/models"
	"github.com/synaptica-ai/rxdigitizer/pkg/gateway/auth"
	"github.com/synaptica-ai/rxdigitizer/pkg/gateway/middleware"
	"github.com/synaptica-ai/rxdigitizer/pkg/imagestore"
	"github.com/synaptica-ai/rxdigitizer/pkg/ocr"
)

type httpEnv struct {
	*testEnv
	router *mux.Router
	tokens *auth.JWTManager
	images *imagestore.Store
	dir    string
}

func setupHTTP(t *testing.T, rec TextRecognizer) *httpEnv {
	t.Helper()
	env := setupEnv(t)

	dir := t.TempDir()
	images, err := imagestore.New(dir)
	require.NoError(t, err)

	tokens, err := auth.NewJWTManager("test-secret-0123456789", "rxdigitizer", "rxdigitizer-api", time.Hour)
	require.NoError(t, err)

	reply := `{"medicines":[{"name":"Paracetamol","dosage":"500mg","frequency":"BD","duration":"5 days"}]}`
	svc := NewService(rec, passthrough(), modelReplying(reply), env.repo, env.stats, images, env.events, Options{})

	router := mux.NewRouter()
	router.Use(middleware.Authenticate(tokens))
	NewHTTPHandler(svc, images, NewUploadValidator(16<<20), 16<<20, 5).Register(router)

	return &httpEnv{testEnv: env, router: router, tokens: tokens, images: images, dir: dir}
}

func (e *httpEnv) do(t *testing.T, req *http.Request, subject, role string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := e.tokens.IssueToken(subject, role)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(uploadField, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/prescriptions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (e *httpEnv) upload(t *testing.T, patient string) string {
	t.Helper()
	rec := e.do(t, uploadRequest(t, "scan.jpg", []byte("jpeg-bytes")), patient, auth.RolePatient)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.PrescriptionID
}

func TestUploadProcessesAndStoresImage(t *testing.T) {
	var gotType string
	env := setupHTTP(t, recognizerFunc(func(_ context.Context, _ []byte, ct string) (string, error) {
		gotType = ct
		return "Paracetamol 500mg BD 5 days", nil
	}))

	id := env.upload(t, "patient-1")

	assert.Equal(t, "image/jpeg", gotType)
	rec, err := env.repo.Get(context.Background(), id, Actor{UserID: "patient-1"})
	require.NoError(t, err)
	assert.Len(t, rec.Medicines, 1)

	path, err := env.images.Path(rec.ImageRef)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
}

func TestUploadRejections(t *testing.T) {
	env := setupHTTP(t, staticText("text"))

	rec := env.do(t, uploadRequest(t, "scan.gif", []byte("gif")), "patient-1", auth.RolePatient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, uploadRequest(t, "scan.png", nil), "patient-1", auth.RolePatient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, uploadRequest(t, "scan.png", []byte("png")), "staff-1", auth.RoleStaff)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := uploadRequest(t, "scan.png", []byte("png"))
	unauth := httptest.NewRecorder()
	env.router.ServeHTTP(unauth, req)
	assert.Equal(t, http.StatusUnauthorized, unauth.Code)

	entries, err := os.ReadDir(env.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadMapsPipelineErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"recognition failed", &ocr.RecognitionFailed{Message: "image too blurry"}, http.StatusUnprocessableEntity},
		{"transport error", &ocr.TransportError{Cause: context.DeadlineExceeded}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupHTTP(t, recognizerFunc(func(context.Context, []byte, string) (string, error) {
				return "", tt.err
			}))

			rec := env.do(t, uploadRequest(t, "scan.pdf", []byte("%PDF")), "patient-1", auth.RolePatient)

			assert.Equal(t, tt.status, rec.Code)
			p, _, _ := env.counts(t)
			assert.Zero(t, p)
		})
	}
}

func TestListScopesByRole(t *testing.T) {
	env := setupHTTP(t, staticText("Paracetamol 500mg BD 5 days"))
	env.upload(t, "patient-1")
	env.upload(t, "patient-2")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/prescriptions", nil), "patient-1", auth.RolePatient)
	require.Equal(t, http.StatusOK, rec.Code)
	var own []Prescription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &own))
	require.Len(t, own, 1)
	assert.Equal(t, "patient-1", own[0].PatientID)
	assert.NotContains(t, rec.Body.String(), "ocr_raw_text")

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/prescriptions", nil), "patient-3", auth.RolePatient)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/prescriptions", nil), "staff-1", auth.RoleStaff)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []Prescription
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestImageAccess(t *testing.T) {
	env := setupHTTP(t, staticText("Paracetamol 500mg BD 5 days"))
	id := env.upload(t, "patient-1")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/prescriptions/"+id+"/image", nil), "patient-1", auth.RolePatient)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/prescriptions/"+id+"/image", nil), "patient-2", auth.RolePatient)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/prescriptions/"+id+"/image", nil), "staff-1", auth.RoleStaff)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteRemovesImage(t *testing.T) {
	env := setupHTTP(t, staticText("Paracetamol 500mg BD 5 days"))
	id := env.upload(t, "patient-1")
	stored, err := env.repo.Get(context.Background(), id, Actor{Staff: true})
	require.NoError(t, err)

	rec := env.do(t, httptest.NewRequest(http.MethodDelete, "/prescriptions/"+id, nil), "patient-2", auth.RolePatient)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodDelete, "/prescriptions/"+id, nil), "patient-1", auth.RolePatient)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = os.Stat(filepath.Join(env.dir, stored.ImageRef))
	assert.True(t, os.IsNotExist(err))

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/prescriptions/"+id, nil), "patient-1", auth.RolePatient)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsEndpointsAreStaffOnly(t *testing.T) {
	env := setupHTTP(t, staticText("Paracetamol 500mg BD 5 days"))
	env.upload(t, "patient-1")
	env.upload(t, "patient-2")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/stats/medicines", nil), "patient-1", auth.RolePatient)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/stats/medicines?limit=abc", nil), "staff-1", auth.RoleStaff)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/stats/medicines?limit=3", nil), "staff-1", auth.RoleStaff)
	require.Equal(t, http.StatusOK, rec.Code)
	var top []models.MedicineStat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.Len(t, top, 1)
	assert.Equal(t, int64(2), top[0].PrescriptionCount)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/stats/summary", nil), "staff-1", auth.RoleStaff)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.DashboardSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(2), summary.TotalPrescriptions)
	assert.Equal(t, int64(2), summary.TotalPatients)
	assert.Len(t, summary.MaskedPrescriptions, 2)
}
