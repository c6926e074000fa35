// Package jobs holds the concrete generation jobs and the process entry
// point shared by the binaries under cmd/.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"mediagen/core"
	"mediagen/device"
	"mediagen/jobcore"
	"mediagen/llm"
	"mediagen/logging"
	"mediagen/mediatool"
	"mediagen/pdfprocessor"
	"mediagen/sdruntime"
	"mediagen/storage"
)

// ImageModel is a loaded text-to-image or image-to-image model.
type ImageModel interface {
	jobcore.Releaser
	Generate(ctx context.Context, params sdruntime.GenerateParams) (*sdruntime.GenerateResult, error)
}

// VideoModel is a loaded image-to-video model.
type VideoModel interface {
	jobcore.Releaser
	GenerateFrames(ctx context.Context, params sdruntime.VideoParams) (*sdruntime.VideoResult, error)
}

// ImageEngine loads synthesis models onto a device.
type ImageEngine interface {
	LoadImage(ctx context.Context, mode sdruntime.Mode, dev device.Kind) (ImageModel, error)
	LoadVideo(ctx context.Context, dev device.Kind) (VideoModel, error)
}

// TextModel is a loaded text-generation model.
type TextModel interface {
	jobcore.Releaser
	Complete(ctx context.Context, prompt string, params llm.TextParams) (string, error)
}

// TextEngine loads the story text model.
type TextEngine interface {
	Load(ctx context.Context) (TextModel, error)
}

// PromptEnhancer rewrites a user prompt following an instruction.
type PromptEnhancer interface {
	Enhance(ctx context.Context, userPrompt, instruction string) (string, error)
}

// Rasterizer renders document pages into a frame set.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, frames *mediatool.FrameSet) error
}

// VideoEncoder turns a frame set into a video file.
type VideoEncoder interface {
	Encode(ctx context.Context, frames *mediatool.FrameSet, output string) error
}

// Deps are the collaborators a job may use. Jobs touch only the fields
// they need, so tests fill in just those.
type Deps struct {
	Images          ImageEngine
	Text            TextEngine
	Enhancer        PromptEnhancer
	Rasterizer      Rasterizer
	DocumentEncoder VideoEncoder
	ClipEncoder     VideoEncoder
	Store           *storage.Store
}

// NewDeps wires the production collaborators from cfg.
func NewDeps(cfg *core.Config, logger *logging.Logger) (*Deps, error) {
	store, err := storage.New(cfg.BaseDir, cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	ffmpeg := &mediatool.Tool{Name: "ffmpeg", Path: cfg.FFmpegPath, Timeout: cfg.ToolTimeout, Logger: logger.Named("ffmpeg")}
	pdftoppm := &mediatool.Tool{Name: "pdftoppm", Path: cfg.PdftoppmPath, Timeout: cfg.ToolTimeout, Logger: logger.Named("pdftoppm")}

	engine := sdruntime.NewEngine(sdruntime.EngineConfig{
		ImageModelPath: cfg.SDModelPath,
		VideoModelPath: cfg.SDVideoModelPath,
		Threads:        cfg.SDThreads,
	}, logger.Named("sdruntime"))

	return &Deps{
		Images:          sdEngine{engine},
		Text:            textEngine{llm.NewTextEngineFromConfig(cfg, logger.Named("llm"))},
		Enhancer:        llm.NewEnhancerFromConfig(cfg, logger.Named("llm")),
		Rasterizer:      mediatool.NewRasterizer(pdftoppm, cfg.RasterDPI, pdfprocessor.PageCount),
		DocumentEncoder: mediatool.NewEncoder(ffmpeg, mediatool.DocumentProfile),
		ClipEncoder:     mediatool.NewEncoder(ffmpeg, mediatool.ClipProfile(cfg.SVDFPS)),
		Store:           store,
	}, nil
}

// New returns the job for kind.
func New(kind jobcore.Kind, deps *Deps) (jobcore.Job, error) {
	switch kind {
	case jobcore.KindImage:
		return &ImageJob{deps: deps}, nil
	case jobcore.KindImageEdit:
		return &ImageEditJob{deps: deps}, nil
	case jobcore.KindVideo:
		return &VideoJob{deps: deps}, nil
	case jobcore.KindDocVideo:
		return &DocVideoJob{deps: deps}, nil
	case jobcore.KindStory:
		return &StoryJob{deps: deps}, nil
	case jobcore.KindPrompt:
		return &PromptJob{deps: deps}, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
}

// sdEngine adapts *sdruntime.Engine to ImageEngine.
type sdEngine struct {
	engine *sdruntime.Engine
}

func (e sdEngine) LoadImage(ctx context.Context, mode sdruntime.Mode, dev device.Kind) (ImageModel, error) {
	m, err := e.engine.Load(ctx, mode, dev.String())
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (e sdEngine) LoadVideo(ctx context.Context, dev device.Kind) (VideoModel, error) {
	m, err := e.engine.Load(ctx, sdruntime.ModeImageToVideo, dev.String())
	if err != nil {
		return nil, err
	}
	return m, nil
}

// textEngine adapts *llm.TextEngine to TextEngine.
type textEngine struct {
	engine *llm.TextEngine
}

func (e textEngine) Load(ctx context.Context) (TextModel, error) {
	m, err := e.engine.Load(ctx)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// toolFailure classifies a frame or encoder error.
func toolFailure(stage string, err error) error {
	if errors.Is(err, mediatool.ErrToolNotFound) ||
		errors.Is(err, mediatool.ErrToolFailed) ||
		errors.Is(err, mediatool.ErrToolTimeout) {
		return jobcore.Fail(jobcore.CodeExternalTool, stage, err)
	}
	return jobcore.Fail(jobcore.CodeIO, stage, err)
}

// llmFailure classifies an error from a text endpoint. fallback is used for
// anything that is not a transport or server failure.
func llmFailure(stage string, fallback jobcore.Code, err error) error {
	switch {
	case errors.Is(err, llm.ErrUnreachable),
		errors.Is(err, llm.ErrTimeout),
		errors.Is(err, llm.ErrUpstream):
		return jobcore.Fail(jobcore.CodeUpstreamService, stage, err)
	case errors.Is(err, llm.ErrEmptyPrompt):
		return jobcore.Fail(jobcore.CodeUsage, stage, err)
	default:
		return jobcore.Fail(fallback, stage, err)
	}
}
