package jobcore

import (
	"context"

	"go.uber.org/zap"

	"mediagen/core"
	"mediagen/device"
	"mediagen/logging"
)

// State is a job lifecycle state.
type State int

const (
	StateStart State = iota
	StateSeedResolved
	StateDeviceSelected
	StateStageAcquired
	StateStageReleased
	StateToolInvoked
	StateResultEmitted
	StateFailed
)

var stateNames = map[State]string{
	StateStart:          "start",
	StateSeedResolved:   "seed_resolved",
	StateDeviceSelected: "device_selected",
	StateStageAcquired:  "stage_acquired",
	StateStageReleased:  "stage_released",
	StateToolInvoked:    "external_tool_invoked",
	StateResultEmitted:  "result_emitted",
	StateFailed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Session is the per-run context handed to a Job. It resolves the seed and
// the device at most once and records the lifecycle.
type Session struct {
	Request Request
	Config  *core.Config
	Logger  *logging.Logger

	seeds SeedResolver
	probe device.Probe

	seed         Seed
	seedResolved bool

	stages *StageManager

	state   State
	history []State
}

func newSession(req Request, cfg *core.Config, logger *logging.Logger, seeds SeedResolver, probe device.Probe) *Session {
	return &Session{
		Request: req,
		Config:  cfg,
		Logger:  logger,
		seeds:   seeds,
		probe:   probe,
		state:   StateStart,
		history: []State{StateStart},
	}
}

// Seed resolves the request's seed token on first use.
func (s *Session) Seed() Seed {
	if !s.seedResolved {
		s.seed = s.seeds.Resolve(s.Request.SeedToken, s.Request.SeedGiven)
		s.seedResolved = true
		s.enter(StateSeedResolved)
	}
	return s.seed
}

// Stages selects the device on first use and returns the stage manager
// bound to it.
func (s *Session) Stages(ctx context.Context) *StageManager {
	if s.stages == nil {
		dev := device.Select(ctx, s.probe, s.Config.AcceleratorEnabled, s.Logger.Named("device"))
		s.stages = NewStageManager(dev, s.Logger)
		s.stages.Observe(func(ev StageEvent) {
			if ev.Phase == PhaseAcquired {
				s.enter(StateStageAcquired)
			} else {
				s.enter(StateStageReleased)
			}
		})
		s.enter(StateDeviceSelected)
	}
	return s.stages
}

// ToolInvoked records that an external tool is about to run.
func (s *Session) ToolInvoked() {
	s.enter(StateToolInvoked)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// History returns every state entered so far, in order.
func (s *Session) History() []State {
	return append([]State(nil), s.history...)
}

func (s *Session) enter(state State) {
	s.state = state
	s.history = append(s.history, state)
	s.Logger.Debug("job state", zap.String("state", state.String()))
}
