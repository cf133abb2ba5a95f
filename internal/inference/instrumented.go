package inference

import (
	"context"
	"errors"
	"time"
)

// Recorder receives one observation per inference call. The observability
// package's Metrics satisfies it.
type Recorder interface {
	RecordInference(ctx context.Context, kind, model string, elapsed time.Duration, err error)
}

// Instrumented decorates a Service with latency and outcome recording, and
// stamps InferenceTime on responses that did not set it.
type Instrumented struct {
	next     Service
	model    string
	recorder Recorder
	now      func() time.Time
}

// Instrument wraps next. model labels the observations.
//
// Precondition: next and recorder must be non-nil.
func Instrument(next Service, model string, recorder Recorder) *Instrumented {
	return &Instrumented{next: next, model: model, recorder: recorder, now: time.Now}
}

// GenerateDialogue implements Service.
func (i *Instrumented) GenerateDialogue(ctx context.Context, req DialogueRequest) (DialogueResponse, error) {
	start := i.now()
	resp, err := i.next.GenerateDialogue(ctx, req)
	elapsed := i.now().Sub(start)
	if err == nil && resp.InferenceTime == 0 {
		resp.InferenceTime = elapsed
	}
	i.recorder.RecordInference(ctx, "dialogue", i.model, elapsed, err)
	return resp, err
}

// DecideBehavior implements Service.
func (i *Instrumented) DecideBehavior(ctx context.Context, req BehaviorRequest) (BehaviorResponse, error) {
	start := i.now()
	resp, err := i.next.DecideBehavior(ctx, req)
	elapsed := i.now().Sub(start)
	if err == nil && resp.InferenceTime == 0 {
		resp.InferenceTime = elapsed
	}
	i.recorder.RecordInference(ctx, "behavior", i.model, elapsed, err)
	return resp, err
}

func errorsIsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Outcome classifies err for metric labels: ok, timeout, circuit_open,
// canceled, or error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
