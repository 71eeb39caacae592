package llmcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/xraph/llmcore/llm"
)

// streamChannelCapacity bounds the event channel between the
// background loop and the consumer; a full channel blocks the loop, so
// memory is bounded by the consumer's poll rate.
const streamChannelCapacity = 64

// StreamItem is one delivery on the orchestration event channel:
// either an event or a fatal run error, never both.
type StreamItem struct {
	Event llm.ChatStreamEvent
	Err   error
}

// StreamOrchestration is the caller's handle on a streaming run.
type StreamOrchestration struct {
	// Events delivers step 0's stream events in source order, then any
	// fatal error. It is closed when the run ends.
	Events <-chan StreamItem
	// Steps delivers the completed step list exactly once, after the
	// run ends.
	Steps <-chan []StepResult
	// Cancel requests cooperative cancellation: the loop stops before
	// the next step or the next forwarded event, fires OnAbort once,
	// and exits. An already-awaited network call is not interrupted.
	Cancel *CancelHandle
}

// RunStream executes the streaming variant: step 0 streams and its
// events are forwarded to the caller; later steps use blocking calls
// to advance the conversation. The whole loop runs on one background
// goroutine; ordering is source order within a step, and step N's
// events fully precede step N+1's.
func (o *Orchestrator) RunStream(ctx context.Context, req llm.ChatRequest) (*StreamOrchestration, error) {
	if o.model == nil {
		return nil, llm.NewConfigurationError("orchestrator has no model")
	}
	events := make(chan StreamItem, streamChannelCapacity)
	stepsCh := make(chan []StepResult, 1)
	cancel := NewCancelHandle()

	go o.streamLoop(ctx, req, events, stepsCh, cancel)

	return &StreamOrchestration{Events: events, Steps: stepsCh, Cancel: cancel}, nil
}

func (o *Orchestrator) streamLoop(ctx context.Context, req llm.ChatRequest, events chan<- StreamItem, stepsCh chan<- []StepResult, cancel *CancelHandle) {
	runID := uuid.NewString()
	startTime := time.Now()
	history := append([]llm.ChatMessage(nil), req.Messages...)
	processed := make(map[string]bool)

	forward := func(ev llm.ChatStreamEvent) error {
		if cancel.IsCancelled() {
			return errCancelled
		}
		select {
		case events <- StreamItem{Event: ev}:
		case <-ctx.Done():
			return ctx.Err()
		}
		if o.opts.OnChunk != nil && ev.Type == llm.EventContentDelta {
			o.opts.OnChunk(ev)
		}
		return nil
	}

	var steps []StepResult
	encounteredError := false
	aborted := false
	for stepIdx := 0; stepIdx < o.opts.MaxSteps; stepIdx++ {
		if cancel.IsCancelled() {
			aborted = true
			break
		}
		var stepForward func(llm.ChatStreamEvent) error
		if stepIdx == 0 {
			stepForward = forward
		}
		step, _, err := o.runStep(ctx, req, &history, steps, processed, stepIdx, stepForward)
		if err != nil {
			if errors.Is(err, errCancelled) {
				aborted = true
				break
			}
			encounteredError = true
			select {
			case events <- StreamItem{Err: err}:
			case <-ctx.Done():
			}
			break
		}
		steps = append(steps, step)

		if o.shouldStop(steps) || len(step.ToolCalls) == 0 {
			break
		}
	}

	// The outcome follows how the loop exited, not the handle's state
	// afterwards: a cancel landing after the final step still reports a
	// finished run.
	switch {
	case aborted:
		if o.opts.OnAbort != nil {
			o.opts.OnAbort(steps)
		}
	case !encounteredError:
		if o.opts.OnFinish != nil {
			o.opts.OnFinish(steps)
		}
	}
	o.recordRun(runID, len(steps), startTime)

	stepsCh <- steps
	close(stepsCh)
	close(events)
}
