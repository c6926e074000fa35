// Package device chooses where synthesis runs for a single job.
//
// A job asks once, at start-up, whether an accelerator is usable. The
// answer never fails the job: any probe problem means the job runs on the
// general processor, only slower.
package device

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediagen/core"
	"mediagen/logging"
)

// Kind is the processing device a job's stages run on.
type Kind int

const (
	// GeneralProcessor is the always-available fallback.
	GeneralProcessor Kind = iota
	// Accelerator is a CUDA-capable GPU.
	Accelerator
)

// String returns the device name engines understand.
func (k Kind) String() string {
	switch k {
	case Accelerator:
		return "cuda"
	case GeneralProcessor:
		return "cpu"
	default:
		return fmt.Sprintf("device(%d)", int(k))
	}
}

// Hint is the human-readable performance expectation logged with the choice.
func (k Kind) Hint() string {
	if k == Accelerator {
		return "fast path"
	}
	return "slow path: running on the general processor"
}

// Info describes a detected accelerator.
type Info struct {
	Name        string
	MemoryTotal int64 // bytes
	MemoryFree  int64 // bytes
}

// Probe reports whether an accelerator is present.
// Implementations return an error when none is usable.
type Probe interface {
	Probe(ctx context.Context) (Info, error)
}

// Select probes once and returns the device for the whole job.
// Probe errors and panics both select GeneralProcessor.
func Select(ctx context.Context, probe Probe, enabled bool, logger *logging.Logger) (kind Kind) {
	start := time.Now()
	kind = GeneralProcessor

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("device probe panicked, using general processor",
				zap.Any("panic", r))
			kind = GeneralProcessor
		}
		logger.Info("device selected",
			zap.String("device", kind.String()),
			zap.String("hint", kind.Hint()),
			zap.Duration("probe_elapsed", time.Since(start)))
	}()

	if !enabled {
		logger.Debug("accelerator disabled by configuration")
		return GeneralProcessor
	}
	if probe == nil {
		return GeneralProcessor
	}

	info, err := probe.Probe(ctx)
	if err != nil {
		logger.Warn("accelerator unavailable", zap.Error(err))
		return GeneralProcessor
	}

	logger.Debug("accelerator detected",
		zap.String("name", info.Name),
		zap.String("memory_total", core.FormatBytes(info.MemoryTotal)),
		zap.String("memory_free", core.FormatBytes(info.MemoryFree)))
	return Accelerator
}
