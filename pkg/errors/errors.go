package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrExplanationFailed marks a sample whose attribution could not be
	// computed (degenerate feature vector, singular surrogate fit). Recovered
	// locally: the sample is skipped and the run continues.
	ErrExplanationFailed = errors.New("explanation failed")
	// ErrUndefinedSimilarity is returned when both compared token sets are
	// empty (0/0 Jaccard). Recovered locally: the sample is skipped.
	ErrUndefinedSimilarity = errors.New("similarity undefined for two empty sets")
	// ErrModelUnavailable means the classifier cannot be loaded or reached.
	// Fatal: a run aborts before any sampling occurs.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrMalformedRecord marks a dataset row without usable text. Filtered at
	// load time, never reaches the evaluator.
	ErrMalformedRecord = errors.New("malformed record")

	ErrRunNotFound  = errors.New("run not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrTimeout      = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedRecord):
		return http.StatusBadRequest
	case errors.Is(err, ErrModelUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
