package llmcore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	errors "github.com/xraph/go-utils/errs"
	logger "github.com/xraph/go-utils/log"
	"github.com/xraph/go-utils/metrics"
	"github.com/xraph/llmcore/internal/messages"
	"github.com/xraph/llmcore/llm"
)

// DefaultMaxSteps is the step budget when none is configured.
const DefaultMaxSteps = 8

// ChatModel is the model surface the orchestrator drives. *Client
// implements it; tests use mocks.
type ChatModel interface {
	Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	ChatStream(ctx context.Context, req llm.ChatRequest, handler func(llm.ChatStreamEvent) error) error
}

// StepResult records one model-call-plus-tool-execution round. The
// step list of a run is append-only; a StepResult is immutable once
// produced.
type StepResult struct {
	Messages     []llm.ChatMessage
	FinishReason string
	Usage        *llm.Usage
	ToolCalls    []llm.ToolCall
	ToolResults  []llm.ContentPart
	Warnings     []string
}

// MergeStepUsage totals usage across a run's steps.
func MergeStepUsage(steps []StepResult) llm.Usage {
	var total llm.Usage
	for _, s := range steps {
		total.Merge(s.Usage)
	}
	return total
}

// ApprovalAction is the outcome of a tool-approval callback.
type ApprovalAction string

const (
	ApprovalApprove ApprovalAction = "approve"
	ApprovalModify  ApprovalAction = "modify"
	ApprovalDeny    ApprovalAction = "deny"
)

// ApprovalDecision is returned by the approval callback for each tool
// call.
type ApprovalDecision struct {
	Action ApprovalAction
	// Arguments replaces the call's arguments when Action is
	// ApprovalModify.
	Arguments json.RawMessage
	// Reason explains a denial; it is surfaced to the model.
	Reason string
}

// Approve accepts the call with its original arguments.
func Approve() ApprovalDecision {
	return ApprovalDecision{Action: ApprovalApprove}
}

// ModifyArguments accepts the call with replacement arguments.
func ModifyArguments(args json.RawMessage) ApprovalDecision {
	return ApprovalDecision{Action: ApprovalModify, Arguments: args}
}

// Deny rejects the call; the reason is synthesized into the tool
// result.
func Deny(reason string) ApprovalDecision {
	return ApprovalDecision{Action: ApprovalDeny, Reason: reason}
}

// ApprovalFunc decides whether a requested tool call may run.
type ApprovalFunc func(toolName string, args json.RawMessage) ApprovalDecision

// ToolResolver executes tool calls. CallToolStream is what the
// orchestrator invokes: implementations may emit preliminary outputs
// (progress, partial results) before returning the final one.
type ToolResolver interface {
	CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
	CallToolStream(ctx context.Context, name string, args json.RawMessage, emit func(preliminary json.RawMessage)) (json.RawMessage, error)
}

// FuncResolver is a ToolResolver backed by a name→function map. Its
// streaming API emits no preliminary results.
type FuncResolver map[string]func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

func (r FuncResolver) CallTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	fn, ok := r[name]
	if !ok {
		return nil, llm.NewInvalidParameter("unknown tool: " + name)
	}
	return fn(ctx, args)
}

func (r FuncResolver) CallToolStream(ctx context.Context, name string, args json.RawMessage, _ func(json.RawMessage)) (json.RawMessage, error) {
	return r.CallTool(ctx, name, args)
}

// OrchestratorOptions configures a run. All callbacks are optional.
type OrchestratorOptions struct {
	// MaxSteps bounds the number of steps; 0 means DefaultMaxSteps.
	MaxSteps int

	PrepareStep    PrepareStepFunc
	OnStepFinish   func(StepResult)
	OnFinish       func([]StepResult)
	OnToolApproval ApprovalFunc
	// OnPreliminaryToolResult receives a tool's intermediate outputs
	// during streaming execution; only the final output enters the
	// conversation.
	OnPreliminaryToolResult func(toolName string, output json.RawMessage)

	// OnChunk and OnAbort apply to streaming runs only.
	OnChunk func(llm.ChatStreamEvent)
	OnAbort func([]StepResult)

	Processor ProcessorOptions

	Logger  logger.Logger
	Metrics metrics.Metrics
}

// Orchestrator drives the multi-step tool-use loop: ask, execute
// requested tools, re-ask, until a stop condition holds or the model
// answers without tools.
type Orchestrator struct {
	model    ChatModel
	resolver ToolResolver
	stops    []StopCondition
	opts     OrchestratorOptions
}

// NewOrchestrator returns an orchestrator over the given model.
// resolver may be nil (tool calls are then recorded but not executed);
// stops may be empty.
func NewOrchestrator(model ChatModel, resolver ToolResolver, stops []StopCondition, opts OrchestratorOptions) *Orchestrator {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	return &Orchestrator{model: model, resolver: resolver, stops: stops, opts: opts}
}

// errCancelled aborts an in-flight model stream when the run's cancel
// handle fires.
var errCancelled = errors.New("orchestration cancelled")

// Run executes the blocking variant: every step uses a blocking model
// call. req supplies the initial messages, the tool set, and the model
// parameters. It returns the final response and every step produced.
func (o *Orchestrator) Run(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, []StepResult, error) {
	runID := uuid.NewString()
	startTime := time.Now()
	history := append([]llm.ChatMessage(nil), req.Messages...)
	processed := make(map[string]bool)

	var steps []StepResult
	var lastResp llm.ChatResponse
	for stepIdx := 0; stepIdx < o.opts.MaxSteps; stepIdx++ {
		step, resp, err := o.runStep(ctx, req, &history, steps, processed, stepIdx, nil)
		if err != nil {
			// Model-call errors are fatal to the run; no partial step
			// is recorded for the failed attempt.
			return llm.ChatResponse{}, steps, err
		}
		steps = append(steps, step)
		lastResp = resp

		if o.shouldStop(steps) || len(step.ToolCalls) == 0 {
			break
		}
	}

	if len(steps) == 0 {
		return llm.ChatResponse{}, nil, llm.NewInternalError("orchestrator produced no steps")
	}
	if o.opts.OnFinish != nil {
		o.opts.OnFinish(steps)
	}
	o.recordRun(runID, len(steps), startTime)
	return lastResp, steps, nil
}

func (o *Orchestrator) shouldStop(steps []StepResult) bool {
	for _, c := range o.stops {
		if c.ShouldStop(steps) {
			return true
		}
	}
	return false
}

// runStep executes one step: prepare, model call, assistant append,
// tool execution with dedup/validation/approval, step record. Both the
// blocking and streaming variants share it; a non-nil forward makes
// the model call stream and forwards each event.
func (o *Orchestrator) runStep(ctx context.Context, base llm.ChatRequest, history *[]llm.ChatMessage, steps []StepResult, processed map[string]bool, stepIdx int, forward func(llm.ChatStreamEvent) error) (StepResult, llm.ChatResponse, error) {
	curTools := base.Tools
	curMessages := *history
	curChoice := base.ToolChoice

	if o.opts.PrepareStep != nil {
		prep := o.opts.PrepareStep(PrepareStepContext{
			StepNumber: stepIdx,
			Steps:      steps,
			Messages:   curMessages,
		})
		if len(prep.ActiveTools) > 0 {
			curTools = filterActiveTools(curTools, prep.ActiveTools)
		}
		if prep.Messages != nil {
			curMessages = prep.Messages
		}
		if prep.System != "" {
			curMessages = messages.WithSystem(curMessages, prep.System)
		}
		if prep.ToolChoice != nil {
			if prep.ToolChoice.Mode == ToolChoiceSpecific {
				curChoice = prep.ToolChoice.ToolName
			} else {
				curChoice = string(prep.ToolChoice.Mode)
			}
		}
	}

	req := base
	req.Messages = curMessages
	req.Tools = curTools
	req.ToolChoice = curChoice

	var resp llm.ChatResponse
	if forward != nil {
		proc := NewStreamProcessor(o.opts.Processor)
		err := o.model.ChatStream(ctx, req, func(ev llm.ChatStreamEvent) error {
			if err := forward(ev); err != nil {
				return err
			}
			proc.ProcessEvent(ev)
			return nil
		})
		if err != nil {
			return StepResult{}, llm.ChatResponse{}, err
		}
		resp = proc.FinalResponse()
	} else {
		var err error
		resp, err = o.model.Chat(ctx, req)
		if err != nil {
			return StepResult{}, llm.ChatResponse{}, err
		}
	}

	stepMsgs := make([]llm.ChatMessage, 0, 1+len(resp.ToolCalls))
	assistant := messages.Assistant(resp.Text(), resp.ToolCalls)
	*history = append(*history, assistant)
	stepMsgs = append(stepMsgs, assistant)

	var toolResults []llm.ContentPart
	if len(resp.ToolCalls) > 0 && o.resolver != nil {
		for _, call := range resp.ToolCalls {
			if call.Function == nil {
				continue
			}
			// The same call id must never execute twice in one run,
			// even if a later step reports it again.
			if processed[call.ID] {
				continue
			}

			args := call.Function.Arguments
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			if def := findTool(curTools, call.Function.Name); def != nil {
				if reason := validateToolArgs(def.Function.Parameters, args); reason != "" {
					msg := messages.ToolError("invalid_args", reason, call.ID)
					*history = append(*history, msg)
					stepMsgs = append(stepMsgs, msg)
					toolResults = append(toolResults, llm.TextPart(msg.Content))
					continue
				}
			}

			decision := Approve()
			if o.opts.OnToolApproval != nil {
				decision = o.opts.OnToolApproval(call.Function.Name, json.RawMessage(args))
			}

			var msg llm.ChatMessage
			switch decision.Action {
			case ApprovalDeny:
				msg = messages.ToolError("denied", decision.Reason, call.ID)
			default:
				callArgs := json.RawMessage(args)
				if decision.Action == ApprovalModify && decision.Arguments != nil {
					callArgs = decision.Arguments
				}
				output, err := o.resolver.CallToolStream(ctx, call.Function.Name, callArgs, func(preliminary json.RawMessage) {
					if o.opts.OnPreliminaryToolResult != nil {
						o.opts.OnPreliminaryToolResult(call.Function.Name, preliminary)
					}
				})
				if err != nil {
					// A flaky tool must not kill the run: the error
					// goes back to the model as the call's result.
					msg = messages.ToolError("tool_failed", err.Error(), call.ID)
				} else {
					msg = messages.ToolResult(output, call.ID)
				}
			}
			*history = append(*history, msg)
			stepMsgs = append(stepMsgs, msg)
			toolResults = append(toolResults, llm.TextPart(msg.Content))
			processed[call.ID] = true

			if o.opts.Metrics != nil {
				o.opts.Metrics.Counter("llmcore.orchestrator.tool_calls",
					metrics.WithLabel("tool", call.Function.Name),
				).Inc()
			}
		}
	}

	step := StepResult{
		Messages:     stepMsgs,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		ToolCalls:    resp.ToolCalls,
		ToolResults:  toolResults,
		Warnings:     resp.Warnings,
	}
	if o.opts.OnStepFinish != nil {
		o.opts.OnStepFinish(step)
	}
	if o.opts.Logger != nil {
		o.opts.Logger.Debug("orchestrator step finished",
			logger.Int("step", stepIdx),
			logger.Int("tool_calls", len(step.ToolCalls)),
			logger.String("finish_reason", step.FinishReason),
		)
	}
	return step, resp, nil
}

func findTool(tools []llm.Tool, name string) *llm.Tool {
	for i := range tools {
		if tools[i].Function.Name == name {
			return &tools[i]
		}
	}
	return nil
}

// validateToolArgs checks a call's arguments against the tool's
// declared schema. It returns a non-empty reason on failure.
func validateToolArgs(schema json.RawMessage, args string) string {
	if len(schema) == 0 {
		return ""
	}
	var doc any
	if err := parseJSONWithRepair([]byte(args), &doc); err != nil {
		return "arguments are not valid JSON: " + err.Error()
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return "schema validation failed: " + err.Error()
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return strings.Join(reasons, "; ")
	}
	return ""
}

func (o *Orchestrator) recordRun(runID string, stepCount int, startTime time.Time) {
	if o.opts.Logger != nil {
		o.opts.Logger.Info("orchestration finished",
			logger.String("run_id", runID),
			logger.Int("steps", stepCount),
			logger.Duration("duration", time.Since(startTime)),
		)
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.Counter("llmcore.orchestrator.runs").Inc()
		o.opts.Metrics.Histogram("llmcore.orchestrator.steps").Observe(float64(stepCount))
		o.opts.Metrics.Histogram("llmcore.orchestrator.duration").Observe(time.Since(startTime).Seconds())
	}
}
