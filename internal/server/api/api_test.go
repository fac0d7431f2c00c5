package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/session"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"decode", &capture.DecodeError{Input: "frame", Err: errors.New("x")}, http.StatusBadRequest},
		{"wrapped decode", fmt.Errorf("outer: %w", &capture.DecodeError{Input: "video", Err: capture.ErrNoFrames}), http.StatusBadRequest},
		{"too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{"too large inside decode", &capture.DecodeError{Input: "video", Err: &http.MaxBytesError{Limit: 10}}, http.StatusRequestEntityTooLarge},
		{"no model", session.ErrNoClassifier, http.StatusServiceUnavailable},
		{"model failure", classifier.Fatal("predict", classifier.ErrUnavailable), http.StatusInternalServerError},
		{"extraction", fmt.Errorf("%w: boom", session.ErrExtract), http.StatusInternalServerError},
		{"other", errors.New("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor() = %d, want %d", got, tt.want)
			}
		})
	}
}
