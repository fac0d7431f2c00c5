package session

import (
	"context"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/sequence"
)

// Response is the reply to one request.
//
// While the window is filling, Sequence carries the accumulated vectors for
// the client to send back and Action is null. Once full, Sequence is null
// and Confidence and AllProbabilities hold the classifier output.
type Response struct {
	Sequence         []feature.Vector   `json:"sequence"`
	SequenceLength   int                `json:"sequence_length"`
	Action           *string            `json:"action"`
	Confidence       float64            `json:"confidence"`
	AllProbabilities map[string]float64 `json:"all_probabilities"`
}

// Ready reports whether the response carries a classification.
func (r *Response) Ready() bool {
	return r.Sequence == nil
}

func pending(win *sequence.Window) *Response {
	return &Response{
		Sequence:         win.Vectors(),
		SequenceLength:   win.Len(),
		AllProbabilities: map[string]float64{},
	}
}

func classified(length int, v gesture.Verdict) *Response {
	r := &Response{
		SequenceLength:   length,
		Confidence:       v.Confidence,
		AllProbabilities: v.Probabilities,
	}
	if v.Recognized() {
		action := v.Action
		r.Action = &action
	}
	return r
}

// Outcome describes one produced verdict. It never carries the sequence.
type Outcome struct {
	ID      string
	Mode    capture.Mode
	Verdict gesture.Verdict
	At      time.Time
}

// Sink receives outcomes after each classification. Errors are logged by
// the handler and never affect the response.
type Sink interface {
	Observe(ctx context.Context, out Outcome) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, out Outcome) error

// Observe calls f.
func (f SinkFunc) Observe(ctx context.Context, out Outcome) error {
	return f(ctx, out)
}
