//go:build !sd || !cgo

// Stub backend used when stable-diffusion.cpp is not linked.
// Build with -tags sd (and cgo enabled) for the real backend.

package sdruntime

import (
	"fmt"
	"os"
	"sync/atomic"
)

var stubContextCounter uint64

// loadModelImpl validates the model path exists but does not load weights.
func loadModelImpl(opts LoadOptions) (*SDContext, error) {
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("%w: no model path configured for %s", ErrModelNotFound, opts.Mode)
	}
	if _, err := os.Stat(opts.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, opts.ModelPath)
	} else if err != nil {
		return nil, fmt.Errorf("%w: unable to access %s: %v", ErrModelLoadFailed, opts.ModelPath, err)
	}

	return &SDContext{
		id:        atomic.AddUint64(&stubContextCounter, 1),
		modelPath: opts.ModelPath,
		mode:      opts.Mode,
		device:    opts.Device,
		valid:     true,
	}, nil
}

func generateImageImpl(ctx *SDContext, params GenerateParams) (*GenerateResult, error) {
	if !ctx.IsValid() {
		return nil, fmt.Errorf("%w: context is nil or invalid", ErrGenerationFailed)
	}
	return nil, fmt.Errorf("%w: stable-diffusion.cpp library not available (stub mode). "+
		"Build with CGO and the 'sd' tag to enable generation", ErrGenerationFailed)
}

func generateVideoImpl(ctx *SDContext, params VideoParams) (*VideoResult, error) {
	if !ctx.IsValid() {
		return nil, fmt.Errorf("%w: context is nil or invalid", ErrGenerationFailed)
	}
	return nil, fmt.Errorf("%w: stable-diffusion.cpp library not available (stub mode)", ErrGenerationFailed)
}

func freeContextImpl(ctx *SDContext) {
	if ctx == nil {
		return
	}
	ctx.valid = false
}

func purgeDeviceCacheImpl() error {
	return nil
}

func getBackendInfoImpl() string {
	return "stub (no stable-diffusion.cpp library linked)"
}
