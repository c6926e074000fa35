package jobs

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mediagen/core"
	"mediagen/device"
	"mediagen/jobcore"
	"mediagen/sdruntime"
	"mediagen/storage"
)

// Stage names, as they appear in logs and errors.
const (
	StageTextToImage  = "text-to-image"
	StageImageToImage = "image-to-image"
	StageImageToVideo = "image-to-video"
	StageTextGen      = "text-generation"

	stepDecodeSource = "decode-source"
	stepSave         = "save"
)

// ImageJob renders a prompt into storage/images/image_<id>_<seed>.png.
type ImageJob struct {
	deps *Deps
}

func (j *ImageJob) Spec() jobcore.Spec {
	return jobcore.Spec{
		Kind:    jobcore.KindImage,
		Program: "imagegen",
		Args:    []string{jobcore.ArgPrompt, jobcore.ArgContentID},
		Options: []string{jobcore.ArgSeed},
	}
}

func (j *ImageJob) Run(ctx context.Context, s *jobcore.Session) (jobcore.Result, error) {
	req := s.Request
	if err := sdruntime.ValidatePrompt(req.Prompt); err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeUsage, "", err)
	}

	seed := s.Seed()
	params := imageParams(s.Config, req.Prompt, seed)

	png, err := generateImage(ctx, s.Stages(ctx), j.deps.Images, StageTextToImage, sdruntime.ModeTextToImage, params)
	if err != nil {
		return jobcore.Result{}, err
	}

	name := fmt.Sprintf("image_%s_%d.png", req.ContentID, int64(seed))
	rel, err := j.deps.Store.Write(ctx, storage.Images, name, png)
	if err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeIO, stepSave, err)
	}
	logSaved(s, rel, int64(len(png)))
	return jobcore.SeededPathResult(rel, seed), nil
}

// ImageEditJob transforms a caller-supplied image following a prompt into
// storage/images/image_edit_<id>_<seed>.png.
type ImageEditJob struct {
	deps *Deps
}

func (j *ImageEditJob) Spec() jobcore.Spec {
	return jobcore.Spec{
		Kind:    jobcore.KindImageEdit,
		Program: "img2img",
		Args: []string{
			jobcore.ArgPrompt, jobcore.ArgContentID, jobcore.ArgSeed,
			jobcore.ArgSourceImage, jobcore.ArgSourceMIME,
		},
	}
}

func (j *ImageEditJob) Run(ctx context.Context, s *jobcore.Session) (jobcore.Result, error) {
	req := s.Request
	if err := sdruntime.ValidatePrompt(req.Prompt); err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeUsage, "", err)
	}

	// The source is decoded before any model is loaded so a bad payload
	// costs nothing.
	src, format, err := sdruntime.DecodeBase64Image(req.SourceImage)
	if err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeIO, stepDecodeSource, err)
	}
	if !mimeMatches(req.SourceMIME, format) {
		s.Logger.Warn("source image type differs from declared MIME type",
			zap.String("declared", req.SourceMIME),
			zap.String("detected", format))
	}
	size := s.Config.SDImageSize
	prepared, err := sdruntime.PrepareSourceImage(src, size, size)
	if err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeIO, stepDecodeSource, err)
	}
	initPNG, err := sdruntime.EncodePNG(prepared)
	if err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeIO, stepDecodeSource, err)
	}

	seed := s.Seed()
	params := imageParams(s.Config, req.Prompt, seed)
	params.InitImage = initPNG
	params.Strength = s.Config.SDStrength

	png, err := generateImage(ctx, s.Stages(ctx), j.deps.Images, StageImageToImage, sdruntime.ModeImageToImage, params)
	if err != nil {
		return jobcore.Result{}, err
	}

	name := fmt.Sprintf("image_edit_%s_%d.png", req.ContentID, int64(seed))
	rel, err := j.deps.Store.Write(ctx, storage.Images, name, png)
	if err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeIO, stepSave, err)
	}
	logSaved(s, rel, int64(len(png)))
	return jobcore.SeededPathResult(rel, seed), nil
}

// logSaved records where an output landed and how large it is.
func logSaved(s *jobcore.Session, rel string, size int64) {
	s.Logger.Info("output saved", zap.String("path", rel), zap.String("size", core.FormatBytes(size)))
}

// imageParams fills the configured quality settings for one image call.
// Unset settings keep the runtime defaults.
func imageParams(cfg *core.Config, prompt string, seed jobcore.Seed) sdruntime.GenerateParams {
	p := sdruntime.DefaultParams()
	p.Prompt = prompt
	p.NegativePrompt = cfg.SDNegativePrompt
	p.Seed = int64(seed)
	if cfg.SDImageSize > 0 {
		p.Width, p.Height = cfg.SDImageSize, cfg.SDImageSize
	}
	if cfg.SDGuidanceScale > 0 {
		p.CFGScale = cfg.SDGuidanceScale
	}
	if cfg.SDInferenceSteps > 0 {
		p.Steps = cfg.SDInferenceSteps
	}
	return p
}

// modelHint names the setting to fix when a weights file is missing.
func modelHint(err error, key string) error {
	if sdruntime.IsModelNotFound(err) {
		return fmt.Errorf("%w (check %s)", err, key)
	}
	return err
}

// generateImage runs one image stage and returns the PNG it produced.
func generateImage(ctx context.Context, stages *jobcore.StageManager, engine ImageEngine, stage string, mode sdruntime.Mode, params sdruntime.GenerateParams) ([]byte, error) {
	if err := sdruntime.ValidateParams(params); err != nil {
		return nil, jobcore.Fail(jobcore.CodeInference, stage, err)
	}
	return jobcore.RunStage(ctx, stages, stage,
		func(ctx context.Context, dev device.Kind) (ImageModel, error) {
			m, err := engine.LoadImage(ctx, mode, dev)
			return m, modelHint(err, "SD_MODEL_PATH")
		},
		func(ctx context.Context, m ImageModel) ([]byte, error) {
			result, err := m.Generate(ctx, params)
			if err != nil {
				return nil, err
			}
			if len(result.ImageData) == 0 {
				return nil, fmt.Errorf("%w: empty image", sdruntime.ErrGenerationFailed)
			}
			return result.ImageData, nil
		})
}

// mimeMatches compares a declared MIME type such as "image/jpg" with the
// format name image.Decode reported.
func mimeMatches(mime, format string) bool {
	declared := strings.ToLower(strings.TrimSpace(mime))
	declared = strings.TrimPrefix(declared, "image/")
	if declared == "jpg" {
		declared = "jpeg"
	}
	return declared == format
}
