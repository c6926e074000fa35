package jobcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediagen/device"
	"mediagen/logging"
)

// Releaser is a loaded model handle. Release frees the memory it holds.
type Releaser interface {
	Release() error
}

// CachePurger is implemented by handles whose device keeps a cache that
// must be emptied after Release before the next stage loads.
type CachePurger interface {
	PurgeCache() error
}

// Phase is a stage lifecycle step reported to observers.
type Phase int

const (
	PhaseAcquired Phase = iota
	PhaseReleased
)

func (p Phase) String() string {
	if p == PhaseAcquired {
		return "acquired"
	}
	return "released"
}

// StageEvent is delivered to observers on every acquire and release.
type StageEvent struct {
	Stage  string
	Phase  Phase
	Device device.Kind
	Err    error // Release or purge failure, PhaseReleased only
}

// StageManager enforces that at most one stage holds model memory at a time.
type StageManager struct {
	device    device.Kind
	logger    *logging.Logger
	active    string
	observers []func(StageEvent)
}

// NewStageManager creates a manager whose stages all run on dev.
func NewStageManager(dev device.Kind, logger *logging.Logger) *StageManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StageManager{device: dev, logger: logger}
}

// Observe registers fn to be called on every stage event, in order.
func (m *StageManager) Observe(fn func(StageEvent)) {
	m.observers = append(m.observers, fn)
}

// Device returns the device every stage is loaded on.
func (m *StageManager) Device() device.Kind {
	return m.device
}

// Active returns the name of the stage currently holding resources, or "".
func (m *StageManager) Active() string {
	return m.active
}

// RunStage acquires a model handle, passes it to use, and releases it on
// every exit path including panics.
//
// Acquisition failures are CodeResourceAcquisition; failures inside use are
// CodeInference unless use already returned a *JobError. A release failure
// is fatal because the device memory state is then unknown.
func RunStage[R Releaser, T any](
	ctx context.Context,
	m *StageManager,
	name string,
	acquire func(ctx context.Context, dev device.Kind) (R, error),
	use func(ctx context.Context, handle R) (T, error),
) (out T, err error) {
	if m.active != "" {
		return out, Failf(CodeResourceAcquisition, name, "stage %q still holds resources", m.active)
	}
	if err := ctx.Err(); err != nil {
		return out, Fail(CodeResourceAcquisition, name, err)
	}

	start := time.Now()
	m.logger.Info("acquiring stage", zap.String("stage", name), zap.String("device", m.device.String()))

	handle, err := acquire(ctx, m.device)
	if err != nil {
		return out, Fail(CodeResourceAcquisition, name, err)
	}
	if any(handle) == nil {
		return out, Failf(CodeResourceAcquisition, name, "loader returned no model")
	}

	m.active = name
	m.notify(StageEvent{Stage: name, Phase: PhaseAcquired, Device: m.device})
	m.logger.Info("stage acquired", logging.StageFields(name, m.device.String(), time.Since(start))...)

	defer func() {
		if r := recover(); r != nil {
			err = Failf(CodeInference, name, "stage panicked: %v", r)
		}
		if releaseErr := m.release(name, handle, start); releaseErr != nil {
			if err == nil {
				err = releaseErr
			} else {
				m.logger.Error("stage release failed after stage error", zap.Error(releaseErr))
			}
		}
	}()

	out, err = use(ctx, handle)
	if err != nil {
		return out, Fail(CodeInference, name, err)
	}
	return out, nil
}

func (m *StageManager) release(name string, handle Releaser, start time.Time) error {
	m.active = ""

	var errs []error
	if err := handle.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release: %w", err))
	}
	if purger, ok := handle.(CachePurger); ok {
		if err := purger.PurgeCache(); err != nil {
			errs = append(errs, fmt.Errorf("purge device cache: %w", err))
		}
	}
	joined := errors.Join(errs...)

	m.notify(StageEvent{Stage: name, Phase: PhaseReleased, Device: m.device, Err: joined})
	if joined != nil {
		return Fail(CodeResourceAcquisition, name, joined)
	}
	m.logger.Info("stage released", logging.StageFields(name, m.device.String(), time.Since(start))...)
	return nil
}

func (m *StageManager) notify(ev StageEvent) {
	for _, fn := range m.observers {
		fn(ev)
	}
}
