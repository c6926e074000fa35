package sdruntime

import "errors"

// Sentinel errors for SD runtime operations.
var (
	// Model-related errors
	ErrModelNotFound   = errors.New("sdruntime: model file not found")
	ErrModelLoadFailed = errors.New("sdruntime: failed to load model")
	ErrModelReleased   = errors.New("sdruntime: model already released")
	ErrModeMismatch    = errors.New("sdruntime: operation not supported by this model mode")

	// Generation errors
	ErrGenerationFailed = errors.New("sdruntime: generation failed")

	// Input validation errors
	ErrInvalidPrompt = errors.New("sdruntime: invalid prompt")
	ErrInvalidParams = errors.New("sdruntime: invalid generation parameters")

	// Hardware/resource errors
	ErrOutOfVRAM = errors.New("sdruntime: out of VRAM")
)

// IsModelNotFound checks if an error indicates a missing model file.
func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}
