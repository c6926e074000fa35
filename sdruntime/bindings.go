package sdruntime

// SDContext is an opaque handle to a loaded stable-diffusion.cpp context.
// The backend keeps the C pointer; Go code only sees the id.
type SDContext struct {
	id        uint64
	modelPath string
	mode      Mode
	device    string
	valid     bool
}

// IsValid returns whether this context is valid and usable.
func (c *SDContext) IsValid() bool {
	return c != nil && c.valid
}

// ModelPath returns the model path used to create this context.
func (c *SDContext) ModelPath() string {
	if c == nil {
		return ""
	}
	return c.modelPath
}

// Mode returns the pipeline the context was loaded for.
func (c *SDContext) Mode() Mode {
	if c == nil {
		return ModeTextToImage
	}
	return c.mode
}

// GenerateResult holds the result of an image generation operation.
type GenerateResult struct {
	ImageData []byte // PNG
	Width     int
	Height    int
	Seed      int64
}

// VideoResult holds generated motion frames in order.
type VideoResult struct {
	Frames [][]byte // PNG per frame
	FPS    int
	Seed   int64
}

// LoadModel loads a model for opts.Mode on opts.Device.
//
// Errors:
//   - ErrModelNotFound: the model path does not exist
//   - ErrModelLoadFailed: the library rejected the model or the device
//
// The returned SDContext must be freed with FreeContext.
func LoadModel(opts LoadOptions) (*SDContext, error) {
	return loadModelImpl(opts)
}

// GenerateImage runs text-to-image, or image-to-image when params.InitImage is set.
func GenerateImage(ctx *SDContext, params GenerateParams) (*GenerateResult, error) {
	if err := ValidateParams(params); err != nil {
		return nil, err
	}
	want := ModeTextToImage
	if params.InitImage != nil {
		want = ModeImageToImage
	}
	if ctx.Mode() != want {
		return nil, ErrModeMismatch
	}
	return generateImageImpl(ctx, params)
}

// GenerateVideo runs image-to-video and returns the frames.
func GenerateVideo(ctx *SDContext, params VideoParams) (*VideoResult, error) {
	if err := ValidateVideoParams(params); err != nil {
		return nil, err
	}
	if ctx.Mode() != ModeImageToVideo {
		return nil, ErrModeMismatch
	}
	return generateVideoImpl(ctx, params)
}

// FreeContext releases resources associated with an SDContext.
// Calling FreeContext on a nil or already-freed context is a no-op.
func FreeContext(ctx *SDContext) {
	freeContextImpl(ctx)
}

// PurgeDeviceCache returns cached allocator blocks on device to the driver.
// It is a no-op for the general processor.
func PurgeDeviceCache(device string) error {
	if device != "cuda" {
		return nil
	}
	return purgeDeviceCacheImpl()
}

// GetBackendInfo returns information about the available compute backend.
func GetBackendInfo() string {
	return getBackendInfoImpl()
}
