package jobs

import (
	"context"

	"mediagen/jobcore"
)

const stepEnhance = "prompt-enhancement"

// PromptJob prints an enhanced version of the user's prompt.
type PromptJob struct {
	deps *Deps
}

func (j *PromptJob) Spec() jobcore.Spec {
	return jobcore.Spec{
		Kind:    jobcore.KindPrompt,
		Program: "promptassist",
		Args:    []string{jobcore.ArgUserPrompt, jobcore.ArgInstruction},
	}
}

func (j *PromptJob) Run(ctx context.Context, s *jobcore.Session) (jobcore.Result, error) {
	text, err := j.deps.Enhancer.Enhance(ctx, s.Request.Prompt, s.Request.Instruction)
	if err != nil {
		return jobcore.Result{}, llmFailure(stepEnhance, jobcore.CodeInference, err)
	}
	return jobcore.TextResult(text), nil
}
