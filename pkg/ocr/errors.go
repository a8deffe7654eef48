package ocr

import "fmt"

// TransportError reports that the recognition service could not be reached
// or answered with something that is not a recognition response. Retryable.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ocr transport: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// RecognitionFailed reports that the service processed the request and
// explicitly rejected the image. Message is the service's diagnostic.
type RecognitionFailed struct {
	Message string
}

func (e *RecognitionFailed) Error() string {
	return "ocr recognition failed: " + e.Message
}
