package ocr

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEndpoint = "https://ocr.test/parse/image"

func newTestRecognizer(t *testing.T) (*Recognizer, *httpmock.MockTransport) {
	t.Helper()
	rec := NewRecognizer(Options{APIKey: "test-key", Endpoint: testEndpoint})
	mock := httpmock.NewMockTransport()
	rec.Client().Transport = mock
	return rec, mock
}

func TestRecognizeReturnsFirstParsedTextVerbatim(t *testing.T) {
	rec, mock := newTestRecognizer(t)

	var form map[string]string
	mock.RegisterResponder(http.MethodPost, testEndpoint, func(req *http.Request) (*http.Response, error) {
		require.NoError(t, req.ParseMultipartForm(1<<20))
		form = map[string]string{}
		for k, v := range req.MultipartForm.Value {
			form[k] = v[0]
		}
		_, _, err := req.FormFile("file")
		require.NoError(t, err)
		return httpmock.NewStringResponse(http.StatusOK, `{
			"IsErroredOnProcessing": false,
			"ParsedResults": [
				{"ParsedText": "  Paracetamol 500mg\tBD\r\n5 days  "},
				{"ParsedText": "second page"}
			]
		}`), nil
	})

	text, err := rec.Recognize(context.Background(), []byte("fake-image"), "image/jpeg")

	require.NoError(t, err)
	assert.Equal(t, "  Paracetamol 500mg\tBD\r\n5 days  ", text)
	assert.Equal(t, "test-key", form["apikey"])
	assert.Equal(t, "eng", form["language"])
	assert.Equal(t, "true", form["detectOrientation"])
	assert.Equal(t, "true", form["scale"])
	assert.Equal(t, "2", form["OCREngine"])
	assert.Equal(t, "JPG", form["filetype"])
}

func TestRecognizeReportsServiceFailure(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"string message", `{"IsErroredOnProcessing": true, "ErrorMessage": "image too blurry"}`, "image too blurry"},
		{"array message", `{"IsErroredOnProcessing": true, "ErrorMessage": ["E301", "image too blurry"]}`, "E301; image too blurry"},
		{"missing message", `{"IsErroredOnProcessing": true}`, "unknown recognition error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, mock := newTestRecognizer(t)
			mock.RegisterResponder(http.MethodPost, testEndpoint, httpmock.NewStringResponder(http.StatusOK, tt.body))

			text, err := rec.Recognize(context.Background(), []byte("img"), "image/png")

			require.Error(t, err)
			assert.Empty(t, text)
			var failed *RecognitionFailed
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, tt.message, failed.Message)
		})
	}
}

func TestRecognizeTransportFailures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"connection error", httpmock.NewErrorResponder(errors.New("connection refused"))},
		{"malformed json", httpmock.NewStringResponder(http.StatusOK, `<html>gateway</html>`)},
		{"no parsed results", httpmock.NewStringResponder(http.StatusOK, `{"IsErroredOnProcessing": false, "ParsedResults": []}`)},
		{"server error", httpmock.NewStringResponder(http.StatusBadGateway, `bad gateway`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, mock := newTestRecognizer(t)
			mock.RegisterResponder(http.MethodPost, testEndpoint, tt.responder)

			_, err := rec.Recognize(context.Background(), []byte("img"), "image/jpeg")

			var transport *TransportError
			require.ErrorAs(t, err, &transport)
			var failed *RecognitionFailed
			assert.False(t, errors.As(err, &failed))
		})
	}
}

func TestRecognizeCancelledContext(t *testing.T) {
	rec, mock := newTestRecognizer(t)
	mock.RegisterResponder(http.MethodPost, testEndpoint, func(req *http.Request) (*http.Response, error) {
		return nil, req.Context().Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rec.Recognize(ctx, []byte("img"), "image/jpeg")

	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.ErrorIs(t, err, context.Canceled)
}
