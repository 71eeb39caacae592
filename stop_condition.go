package llmcore

// StopCondition decides when a multi-step run should stop. Conditions
// are evaluated after each step over the full accumulated step list;
// any condition returning true stops the loop.
type StopCondition interface {
	ShouldStop(steps []StepResult) bool
}

// ConditionFunc adapts a closure to StopCondition.
type ConditionFunc func(steps []StepResult) bool

func (f ConditionFunc) ShouldStop(steps []StepResult) bool { return f(steps) }

// StepCountIs stops once the step count reaches n.
func StepCountIs(n int) StopCondition {
	return ConditionFunc(func(steps []StepResult) bool {
		return len(steps) >= n
	})
}

// HasToolCall stops when the last step called the named tool. Useful
// for "finalAnswer"-style terminator tools.
func HasToolCall(toolName string) StopCondition {
	return ConditionFunc(func(steps []StepResult) bool {
		if len(steps) == 0 {
			return false
		}
		for _, call := range steps[len(steps)-1].ToolCalls {
			if call.Function != nil && call.Function.Name == toolName {
				return true
			}
		}
		return false
	})
}

// HasTextResponse stops when the last step produced no tool calls,
// i.e. the model gave a final text answer.
func HasTextResponse() StopCondition {
	return ConditionFunc(func(steps []StepResult) bool {
		return len(steps) > 0 && len(steps[len(steps)-1].ToolCalls) == 0
	})
}

// HasNoToolCalls is an alias of HasTextResponse with naming aligned to
// the tool-loop view.
func HasNoToolCalls() StopCondition { return HasTextResponse() }

// HasToolResult stops when the last step produced tool results.
func HasToolResult() StopCondition {
	return ConditionFunc(func(steps []StepResult) bool {
		return len(steps) > 0 && len(steps[len(steps)-1].ToolResults) > 0
	})
}

// AnyOf stops when any of the given conditions holds.
func AnyOf(conditions ...StopCondition) StopCondition {
	return ConditionFunc(func(steps []StepResult) bool {
		for _, c := range conditions {
			if c.ShouldStop(steps) {
				return true
			}
		}
		return false
	})
}

// AllOf stops when every given condition holds. An empty set never
// stops.
func AllOf(conditions ...StopCondition) StopCondition {
	return ConditionFunc(func(steps []StepResult) bool {
		if len(conditions) == 0 {
			return false
		}
		for _, c := range conditions {
			if !c.ShouldStop(steps) {
				return false
			}
		}
		return true
	})
}
