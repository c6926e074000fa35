package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"mediagen/device"
	"mediagen/jobcore"
	"mediagen/mediatool"
	"mediagen/sdruntime"
	"mediagen/storage"
)

const (
	stepRasterize = "rasterize"
	stepFrames    = "write-frames"
	stepEncode    = "encode"
	stepSource    = "read-source"
)

// VideoJob renders a still from the prompt, animates it and encodes the
// frames into storage/videos/video_<id>.mp4. The two models are never
// resident at the same time.
type VideoJob struct {
	deps *Deps
}

func (j *VideoJob) Spec() jobcore.Spec {
	return jobcore.Spec{
		Kind:    jobcore.KindVideo,
		Program: "svdvideo",
		Args:    []string{jobcore.ArgPrompt, jobcore.ArgContentID},
		Options: []string{jobcore.ArgSeed},
	}
}

func (j *VideoJob) Run(ctx context.Context, s *jobcore.Session) (jobcore.Result, error) {
	req := s.Request
	cfg := s.Config
	if err := sdruntime.ValidatePrompt(req.Prompt); err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeUsage, "", err)
	}

	seed := s.Seed()
	stages := s.Stages(ctx)

	params := imageParams(cfg, req.Prompt, seed)
	params.Steps = cfg.SVDBaseSteps
	still, err := generateImage(ctx, stages, j.deps.Images, StageTextToImage, sdruntime.ModeTextToImage, params)
	if err != nil {
		return jobcore.Result{}, err
	}

	// the motion stage draws its own seed from the job seed so both stages
	// replay together
	motion := sdruntime.VideoParams{
		InitImage:       still,
		Frames:          cfg.SVDFrames,
		DecodeChunkSize: cfg.SVDDecodeChunkSize,
		MotionBucketID:  cfg.SVDMotionBucketID,
		FPS:             cfg.SVDFPS,
		Seed:            seed.Rand().Int64N(jobcore.DefaultSeedMax) + 1,
	}
	if err := sdruntime.ValidateVideoParams(motion); err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeInference, StageImageToVideo, err)
	}
	frames, err := jobcore.RunStage(ctx, stages, StageImageToVideo,
		func(ctx context.Context, dev device.Kind) (VideoModel, error) {
			m, err := j.deps.Images.LoadVideo(ctx, dev)
			return m, modelHint(err, "SD_VIDEO_MODEL_PATH")
		},
		func(ctx context.Context, m VideoModel) ([][]byte, error) {
			result, err := m.GenerateFrames(ctx, motion)
			if err != nil {
				return nil, err
			}
			return result.Frames, nil
		})
	if err != nil {
		return jobcore.Result{}, err
	}

	name := fmt.Sprintf("video_%s.mp4", req.ContentID)
	output, rel, err := j.deps.Store.Path(storage.Videos, name)
	if err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeIO, stepSave, err)
	}

	scratch := filepath.Join(cfg.ScratchRoot(), "temp_svd_frames_"+req.ContentID)
	err = mediatool.WithFrameSet(scratch, "svd_frame_", s.Logger.Named("frames"), func(fs *mediatool.FrameSet) error {
		for _, data := range frames {
			if _, err := fs.AddPNG(data); err != nil {
				return jobcore.Fail(jobcore.CodeIO, stepFrames, err)
			}
		}
		s.ToolInvoked()
		if err := j.deps.ClipEncoder.Encode(ctx, fs, output); err != nil {
			return toolFailure(stepEncode, err)
		}
		return nil
	})
	if err != nil {
		return jobcore.Result{}, toolFailure(stepFrames, err)
	}
	if info, err := os.Stat(output); err == nil {
		logSaved(s, rel, info.Size())
	}
	return jobcore.PathResult(rel), nil
}

// DocVideoJob shows each page of a PDF for one second in
// storage/videos/video_pdf_<id>.mp4.
type DocVideoJob struct {
	deps *Deps
}

func (j *DocVideoJob) Spec() jobcore.Spec {
	return jobcore.Spec{
		Kind:    jobcore.KindDocVideo,
		Program: "pdfvideo",
		Args:    []string{jobcore.ArgDocument, jobcore.ArgContentID},
	}
}

func (j *DocVideoJob) Run(ctx context.Context, s *jobcore.Session) (jobcore.Result, error) {
	req := s.Request
	info, err := os.Stat(req.SourcePath)
	if err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeIO, stepSource, err)
	}
	if info.IsDir() {
		return jobcore.Result{}, jobcore.Failf(jobcore.CodeIO, stepSource, "%s is a directory", req.SourcePath)
	}

	name := fmt.Sprintf("video_pdf_%s.mp4", req.ContentID)
	output, rel, err := j.deps.Store.Path(storage.Videos, name)
	if err != nil {
		return jobcore.Result{}, jobcore.Fail(jobcore.CodeIO, stepSave, err)
	}

	scratch := filepath.Join(s.Config.ScratchRoot(), "temp_pdf_frames_"+req.ContentID)
	err = mediatool.WithFrameSet(scratch, "pdf_frame_", s.Logger.Named("frames"), func(fs *mediatool.FrameSet) error {
		s.ToolInvoked()
		if err := j.deps.Rasterizer.Rasterize(ctx, req.SourcePath, fs); err != nil {
			return toolFailure(stepRasterize, err)
		}
		if fs.Len() == 0 {
			return jobcore.Fail(jobcore.CodeIO, stepRasterize, mediatool.ErrNoFrames)
		}
		s.Logger.Info("document rasterized", zap.Int("pages", fs.Len()))

		if err := j.deps.DocumentEncoder.Encode(ctx, fs, output); err != nil {
			if errors.Is(err, mediatool.ErrNoFrames) {
				return jobcore.Fail(jobcore.CodeIO, stepEncode, err)
			}
			return toolFailure(stepEncode, err)
		}
		return nil
	})
	if err != nil {
		return jobcore.Result{}, toolFailure(stepFrames, err)
	}
	if info, err := os.Stat(output); err == nil {
		logSaved(s, rel, info.Size())
	}
	return jobcore.PathResult(rel), nil
}
