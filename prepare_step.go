package llmcore

import "github.com/xraph/llmcore/llm"

// ToolChoiceMode controls how the model may use tools for one step.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceSpecific ToolChoiceMode = "specific"
)

// ToolChoice is a per-step tool-choice override.
type ToolChoice struct {
	Mode ToolChoiceMode
	// ToolName names the forced tool when Mode is ToolChoiceSpecific.
	ToolName string
}

// PrepareStepContext is handed to the prepare-step hook before each
// step. Steps and Messages are read-only views.
type PrepareStepContext struct {
	// StepNumber is 0-indexed.
	StepNumber int
	Steps      []StepResult
	Messages   []llm.ChatMessage
}

// PrepareStepResult overrides step inputs. Nil/empty fields keep the
// run's defaults.
type PrepareStepResult struct {
	// ToolChoice forces a tool-choice policy for this step only.
	ToolChoice *ToolChoice
	// ActiveTools narrows the tool set to the named tools.
	ActiveTools []string
	// System injects a system message for this step only.
	System string
	// Messages replaces the history sent to the model for this step.
	Messages []llm.ChatMessage
}

// PrepareStepFunc runs before each step; it may narrow tools, rewrite
// history, force a tool choice, or inject a system message.
type PrepareStepFunc func(ctx PrepareStepContext) PrepareStepResult

// filterActiveTools keeps only the tools whose names appear in active.
func filterActiveTools(tools []llm.Tool, active []string) []llm.Tool {
	if len(active) == 0 {
		return nil
	}
	keep := make(map[string]bool, len(active))
	for _, name := range active {
		keep[name] = true
	}
	out := make([]llm.Tool, 0, len(active))
	for _, t := range tools {
		if keep[t.Function.Name] {
			out = append(out, t)
		}
	}
	return out
}
