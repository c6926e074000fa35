package sdruntime

import (
	"fmt"
	"strings"
)

// Mode selects which pipeline a model is loaded for.
type Mode int

const (
	ModeTextToImage Mode = iota
	ModeImageToImage
	ModeImageToVideo
)

func (m Mode) String() string {
	switch m {
	case ModeTextToImage:
		return "text-to-image"
	case ModeImageToImage:
		return "image-to-image"
	case ModeImageToVideo:
		return "image-to-video"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// LoadOptions describes how to load a model.
type LoadOptions struct {
	ModelPath string
	Mode      Mode
	Device    string // "cuda" or "cpu"

	// HalfPrecision loads fp16 weights; only meaningful on an accelerator.
	HalfPrecision bool
	// CPUOffload keeps idle submodules in host memory between steps.
	CPUOffload bool
	// Threads for general-processor inference (0 = library default).
	Threads int
}

// GenerateParams holds parameters for image generation.
type GenerateParams struct {
	Prompt         string  // Required: text description of the image to generate
	NegativePrompt string  // Optional: what to avoid in the image
	Width          int     // Image width in pixels (128-2048, must be divisible by 8)
	Height         int     // Image height in pixels (128-2048, must be divisible by 8)
	Steps          int     // Number of inference steps (1-150)
	CFGScale       float64 // Classifier-free guidance scale (1.0-30.0)
	Seed           int64   // Seed for the per-call generator

	// InitImage is a PNG source for image-to-image; nil for text-to-image.
	InitImage []byte
	// Strength is how far the result may move from InitImage (0-1].
	Strength float64
}

// VideoParams holds parameters for image-to-video generation.
type VideoParams struct {
	InitImage       []byte // PNG still the motion starts from
	Frames          int
	DecodeChunkSize int
	MotionBucketID  int
	FPS             int
	Seed            int64
}

// Parameter validation constants
const (
	MinImageSize      = 128
	MaxImageSize      = 2048
	ImageSizeMultiple = 8 // Image dimensions must be divisible by this

	MinSteps = 1
	MaxSteps = 150

	MinCFGScale = 1.0
	MaxCFGScale = 30.0

	MaxPromptLength = 2000
	MaxVideoFrames  = 128
)

// DefaultParams returns text-to-image defaults matching the job configuration defaults.
func DefaultParams() GenerateParams {
	return GenerateParams{
		Width:    512,
		Height:   512,
		Steps:    50,
		CFGScale: 11.5,
	}
}

// ValidateParams validates generation parameters and returns an error if invalid.
// This is a pure function with no side effects.
func ValidateParams(p GenerateParams) error {
	if err := ValidatePrompt(p.Prompt); err != nil {
		return err
	}

	if err := validateDimension("width", p.Width); err != nil {
		return err
	}
	if err := validateDimension("height", p.Height); err != nil {
		return err
	}

	if p.Steps < MinSteps || p.Steps > MaxSteps {
		return fmt.Errorf("%w: steps %d must be between %d and %d",
			ErrInvalidParams, p.Steps, MinSteps, MaxSteps)
	}

	if p.CFGScale < MinCFGScale || p.CFGScale > MaxCFGScale {
		return fmt.Errorf("%w: CFGScale %.2f must be between %.1f and %.1f",
			ErrInvalidParams, p.CFGScale, MinCFGScale, MaxCFGScale)
	}

	if len(p.NegativePrompt) > MaxPromptLength {
		return fmt.Errorf("%w: negative prompt length %d exceeds maximum %d",
			ErrInvalidParams, len(p.NegativePrompt), MaxPromptLength)
	}

	if p.InitImage != nil {
		if err := ValidateImageData(p.InitImage); err != nil {
			return fmt.Errorf("%w: init image: %v", ErrInvalidParams, err)
		}
		if p.Strength <= 0 || p.Strength > 1 {
			return fmt.Errorf("%w: strength %.2f must be in (0, 1]", ErrInvalidParams, p.Strength)
		}
	}

	return nil
}

// ValidateVideoParams validates image-to-video parameters.
func ValidateVideoParams(p VideoParams) error {
	if err := ValidateImageData(p.InitImage); err != nil {
		return fmt.Errorf("%w: init image: %v", ErrInvalidParams, err)
	}
	if p.Frames < 1 || p.Frames > MaxVideoFrames {
		return fmt.Errorf("%w: frames %d must be between 1 and %d", ErrInvalidParams, p.Frames, MaxVideoFrames)
	}
	if p.DecodeChunkSize < 1 {
		return fmt.Errorf("%w: decode chunk size must be positive", ErrInvalidParams)
	}
	if p.FPS < 1 {
		return fmt.Errorf("%w: fps must be positive", ErrInvalidParams)
	}
	return nil
}

func validateDimension(name string, v int) error {
	if v < MinImageSize || v > MaxImageSize {
		return fmt.Errorf("%w: %s %d must be between %d and %d",
			ErrInvalidParams, name, v, MinImageSize, MaxImageSize)
	}
	if v%ImageSizeMultiple != 0 {
		return fmt.Errorf("%w: %s %d must be divisible by %d",
			ErrInvalidParams, name, v, ImageSizeMultiple)
	}
	return nil
}

// ValidatePrompt rejects prompts the C library cannot take.
func ValidatePrompt(prompt string) error {
	switch {
	case strings.TrimSpace(prompt) == "":
		return fmt.Errorf("%w: prompt cannot be empty", ErrInvalidPrompt)
	case strings.ContainsRune(prompt, '\x00'):
		return fmt.Errorf("%w: prompt contains null bytes", ErrInvalidPrompt)
	case len(prompt) > MaxPromptLength:
		return fmt.Errorf("%w: prompt length %d exceeds maximum %d",
			ErrInvalidPrompt, len(prompt), MaxPromptLength)
	}
	return nil
}
