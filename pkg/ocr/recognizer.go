package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/synaptica-ai/rxdigitizer/pkg/gateway/httpclient"
)

const (
	DefaultEndpoint = "https://api.ocr.space/parse/image"
	DefaultTimeout  = 30 * time.Second

	// EngineHandwriting selects the service engine tuned for handwriting.
	EngineHandwriting = 2

	maxResponseBytes = 8 << 20
)

type Options struct {
	APIKey   string
	Endpoint string
	Language string
	Engine   int
	Timeout  time.Duration
}

// Recognizer turns prescription images into raw text using the OCR.space
// parse endpoint. It does not retry.
type Recognizer struct {
	client *http.Client
	opts   Options
}

func NewRecognizer(opts Options) *Recognizer {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.Engine == 0 {
		opts.Engine = EngineHandwriting
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Recognizer{client: httpclient.New(opts.Timeout), opts: opts}
}

// Client exposes the underlying HTTP client so tests can intercept it.
func (r *Recognizer) Client() *http.Client {
	return r.client
}

type parseResponse struct {
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
	ParsedResults         []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
}

// Recognize returns the first parsed text block verbatim.
func (r *Recognizer) Recognize(ctx context.Context, image []byte, contentType string) (string, error) {
	body, formContentType, err := r.buildForm(image, contentType)
	if err != nil {
		return "", &TransportError{Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.Endpoint, body)
	if err != nil {
		return "", &TransportError{Cause: err}
	}
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("apikey", r.opts.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &TransportError{Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &TransportError{Cause: fmt.Errorf("reading response: %w", err)}
	}

	var parsed parseResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", &TransportError{Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
		}
		return "", &TransportError{Cause: fmt.Errorf("malformed response: %w", err)}
	}

	if parsed.IsErroredOnProcessing {
		return "", &RecognitionFailed{Message: errorMessage(parsed.ErrorMessage)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if len(parsed.ParsedResults) == 0 {
		return "", &TransportError{Cause: errors.New("malformed response: no parsed results")}
	}

	return parsed.ParsedResults[0].ParsedText, nil
}

func (r *Recognizer) buildForm(image []byte, contentType string) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := [][2]string{
		{"apikey", r.opts.APIKey},
		{"language", r.opts.Language},
		{"isOverlayRequired", "false"},
		{"detectOrientation", "true"},
		{"scale", "true"},
		{"OCREngine", strconv.Itoa(r.opts.Engine)},
	}
	if ft := fileType(contentType); ft != "" {
		fields = append(fields, [2]string{"filetype", ft})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("writing field %s: %w", f[0], err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="prescription`+extension(contentType)+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("copying image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// errorMessage flattens ErrorMessage, which the service sends either as a
// string or as an array of strings.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown recognition error"
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return strings.Join(many, "; ")
	}
	return string(raw)
}

func fileType(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return "PNG"
	case "image/jpeg", "image/jpg":
		return "JPG"
	case "application/pdf":
		return "PDF"
	default:
		return ""
	}
}

func extension(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "application/pdf":
		return ".pdf"
	default:
		return ".jpg"
	}
}
