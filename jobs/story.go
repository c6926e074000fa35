package jobs

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mediagen/device"
	"mediagen/jobcore"
	"mediagen/llm"
	"mediagen/pdfprocessor"
	"mediagen/storage"
)

const storyPromptTemplate = `You are a creative storyteller. Read the source material below and write an engaging short story inspired by it. Keep its key characters, places and ideas, give the story a clear beginning, middle and end, and write in plain prose without headings.

Source material:
%s

Story:`

// BuildStoryPrompt wraps source text in the story instruction.
func BuildStoryPrompt(source string) string {
	return fmt.Sprintf(storyPromptTemplate, strings.TrimSpace(source))
}

// StoryJob turns a text or PDF source into storage/stories/story_<id>.txt.
type StoryJob struct {
	deps *Deps
}

func (j *StoryJob) Spec() jobcore.Spec {
	return jobcore.Spec{
		Kind:    jobcore.KindStory,
		Program: "storygen",
		Args:    []string{jobcore.ArgSourcePath, jobcore.ArgContentID},
	}
}

func (j *StoryJob) Run(ctx context.Context, s *jobcore.Session) (jobcore.Result, error) {
	req := s.Request
	cfg := s.Config

	source, err := pdfprocessor.ReadSource(req.SourcePath, cfg.StoryMaxSourceChars)
	if err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeIO, stepSource, err)
	}
	if strings.TrimSpace(source) == "" {
		return jobcore.Result{}, jobcore.Failf(jobcore.CodeIO, stepSource, "%s has no text", req.SourcePath)
	}
	s.Logger.Info("source loaded",
		zap.Int("chars", len([]rune(source))),
		zap.Int("estimated_input", pdfprocessor.EstimateTokenCount(source)))

	seed := int(s.Seed())
	params := llm.TextParams{
		MaxTokens:   cfg.StoryMaxTokens,
		Temperature: float32(cfg.StoryTemperature),
		TopP:        float32(cfg.StoryTopP),
		Seed:        &seed,
	}
	prompt := BuildStoryPrompt(source)

	story, err := jobcore.RunStage(ctx, s.Stages(ctx), StageTextGen,
		func(ctx context.Context, _ device.Kind) (TextModel, error) {
			m, err := j.deps.Text.Load(ctx)
			if err != nil {
				return nil, llmFailure(StageTextGen, jobcore.CodeResourceAcquisition, err)
			}
			return m, nil
		},
		func(ctx context.Context, m TextModel) (string, error) {
			text, err := m.Complete(ctx, prompt, params)
			if err != nil {
				return "", llmFailure(StageTextGen, jobcore.CodeInference, err)
			}
			return text, nil
		})
	if err != nil {
		return jobcore.Result{}, err
	}

	name := fmt.Sprintf("story_%s.txt", req.ContentID)
	rel, err := j.deps.Store.WriteText(ctx, storage.Stories, name, story)
	if err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeIO, stepSave, err)
	}
	logSaved(s, rel, int64(len(story)))
	return jobcore.PathResult(rel), nil
}
