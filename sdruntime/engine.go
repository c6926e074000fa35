package sdruntime

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediagen/logging"
)

// EngineConfig names the model files per mode.
type EngineConfig struct {
	ImageModelPath string // text-to-image and image-to-image share base weights
	VideoModelPath string // image-to-video
	Threads        int
}

// Engine loads models on demand. It holds no model memory itself.
type Engine struct {
	cfg    EngineConfig
	logger *logging.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Load loads the model for mode onto device ("cuda" or "cpu"). On the
// accelerator weights are loaded in half precision and the video pipeline
// offloads idle submodules to host memory.
func (e *Engine) Load(ctx context.Context, mode Mode, device string) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := e.cfg.ImageModelPath
	if mode == ModeImageToVideo {
		path = e.cfg.VideoModelPath
	}
	accelerated := device == "cuda"

	opts := LoadOptions{
		ModelPath:     path,
		Mode:          mode,
		Device:        device,
		HalfPrecision: accelerated,
		CPUOffload:    accelerated && mode == ModeImageToVideo,
		Threads:       e.cfg.Threads,
	}

	start := time.Now()
	sdctx, err := LoadModel(opts)
	if err != nil {
		return nil, err
	}
	e.logger.Info("model loaded",
		zap.String("mode", mode.String()),
		zap.String("model", path),
		zap.String("device", device),
		zap.Bool("half_precision", opts.HalfPrecision),
		zap.String("backend", GetBackendInfo()),
		zap.Duration("elapsed", time.Since(start)))

	return &Model{sdctx: sdctx, device: device, logger: e.logger}, nil
}

// Model is a loaded model handle owned by exactly one stage.
type Model struct {
	sdctx  *SDContext
	device string
	logger *logging.Logger
}

// Mode returns the pipeline this model runs.
func (m *Model) Mode() Mode {
	return m.sdctx.Mode()
}

// Generate runs text-to-image or image-to-image.
func (m *Model) Generate(ctx context.Context, params GenerateParams) (*GenerateResult, error) {
	if !m.sdctx.IsValid() {
		return nil, ErrModelReleased
	}
	// the C call cannot be interrupted, so check before starting it
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := GenerateImage(m.sdctx, params)
	if err != nil {
		return nil, err
	}
	m.logger.Info("image generated",
		zap.Int("width", result.Width),
		zap.Int("height", result.Height),
		zap.Int64("seed", result.Seed),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// GenerateFrames runs image-to-video.
func (m *Model) GenerateFrames(ctx context.Context, params VideoParams) (*VideoResult, error) {
	if !m.sdctx.IsValid() {
		return nil, ErrModelReleased
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := GenerateVideo(m.sdctx, params)
	if err != nil {
		return nil, err
	}
	if len(result.Frames) == 0 {
		return nil, fmt.Errorf("%w: no frames returned", ErrGenerationFailed)
	}
	m.logger.Info("frames generated",
		zap.Int("frames", len(result.Frames)),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// Release frees the model. It is safe to call more than once.
func (m *Model) Release() error {
	FreeContext(m.sdctx)
	return nil
}

// PurgeCache empties the device allocator cache after Release.
func (m *Model) PurgeCache() error {
	return PurgeDeviceCache(m.device)
}
