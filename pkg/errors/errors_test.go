package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorWrapsSentinel(t *testing.T) {
	err := Newf(ErrModelUnavailable, 503, "loading model %s", "m1")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Error("AppError must unwrap to its sentinel")
	}
	if got := err.Error(); got != "model unavailable: loading model m1" {
		t.Errorf("Error() = %q", got)
	}
}

func TestHTTPStatusCodeFromAppError(t *testing.T) {
	err := New(ErrInvalidInput, http.StatusBadRequest, "bad field")
	if got := HTTPStatusCode(err); got != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", got)
	}
	// Wrapped AppErrors still resolve.
	wrapped := fmt.Errorf("handling request: %w", err)
	if got := HTTPStatusCode(wrapped); got != http.StatusBadRequest {
		t.Errorf("wrapped status = %d, want 400", got)
	}
}

func TestHTTPStatusCodeFromSentinels(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrRunNotFound, http.StatusNotFound},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrMalformedRecord, http.StatusBadRequest},
		{ErrModelUnavailable, http.StatusServiceUnavailable},
		{ErrTimeout, http.StatusServiceUnavailable},
		{ErrInternal, http.StatusInternalServerError},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatusCode(tt.err); got != tt.want {
			t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSkipSentinelsAreDistinct(t *testing.T) {
	if errors.Is(ErrExplanationFailed, ErrUndefinedSimilarity) {
		t.Error("skip sentinels must be distinguishable")
	}
}
