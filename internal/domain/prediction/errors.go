package prediction

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds. Callers match them with errors.Is; the detail types
// below unwrap to them.
var (
	ErrMissingFeatures   = errors.New("missing required features")
	ErrLengthMismatch    = errors.New("flux length mismatch")
	ErrUnknownModel      = errors.New("invalid model type")
	ErrMalformedRequest  = errors.New("malformed request")
	ErrModelUnavailable  = errors.New("model unavailable")
	ErrPredictionFailure = errors.New("prediction failed")
)

// MissingFeaturesError lists every required feature absent from a request.
type MissingFeaturesError struct {
	Missing []string
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingFeatures, strings.Join(e.Missing, ", "))
}

func (e *MissingFeaturesError) Unwrap() error { return ErrMissingFeatures }

// LengthMismatchError reports a flux series of the wrong length.
type LengthMismatchError struct {
	Expected int
	Received int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("expected %d flux values, got %d", e.Expected, e.Received)
}

func (e *LengthMismatchError) Unwrap() error { return ErrLengthMismatch }

// ItemError ties a batch failure to the position of the offending item.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRequest, fmt.Sprintf(format, args...))
}

// Error codes reported to clients and used as metric outcomes.
const (
	CodeMissingFeatures   = "missing_features"
	CodeLengthMismatch    = "length_mismatch"
	CodeUnknownModel      = "unknown_model"
	CodeMalformedRequest  = "bad_request"
	CodeModelUnavailable  = "model_unavailable"
	CodePredictionFailure = "prediction_failed"
)

// Code returns the client-facing code for err. Unclassified errors are
// reported as prediction failures.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMissingFeatures):
		return CodeMissingFeatures
	case errors.Is(err, ErrLengthMismatch):
		return CodeLengthMismatch
	case errors.Is(err, ErrUnknownModel):
		return CodeUnknownModel
	case errors.Is(err, ErrMalformedRequest):
		return CodeMalformedRequest
	case errors.Is(err, ErrModelUnavailable):
		return CodeModelUnavailable
	}
	return CodePredictionFailure
}

// IsClientError reports whether err was caused by the request rather than
// the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingFeatures) ||
		errors.Is(err, ErrLengthMismatch) ||
		errors.Is(err, ErrUnknownModel) ||
		errors.Is(err, ErrMalformedRequest)
}
