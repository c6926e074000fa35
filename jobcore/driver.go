package jobcore

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediagen/core"
	"mediagen/device"
	"mediagen/logging"
)

// Job is one concrete generation job.
type Job interface {
	Spec() Spec
	Run(ctx context.Context, s *Session) (Result, error)
}

// Driver runs a Job with the process-level contract: one result line on
// stdout on success, diagnostics on stderr, exit code 0 or 1.
type Driver struct {
	Config *core.Config
	Logger *logging.Logger

	// Probe detects the accelerator. Nil means always the general processor.
	Probe device.Probe

	// Random overrides the random seed source (tests).
	Random func(max int64) int64

	Stdout io.Writer
	Stderr io.Writer
}

// Run executes job with the positional args and returns the exit code.
func (d *Driver) Run(ctx context.Context, job Job, args []string) int {
	stdout, stderr := d.Stdout, d.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	spec := job.Spec()

	req, err := ParseRequest(spec, args)
	if err != nil {
		d.printUsage(stderr, spec, err)
		return core.ExitCodeError
	}

	logger := d.Logger.With(logging.RunFields(string(spec.Kind), uuid.NewString(), req.ContentID)...)
	seeds := SeedResolver{Max: d.Config.SeedMax, Random: d.Random, Logger: logger}
	sess := newSession(req, d.Config, logger, seeds, d.Probe)

	start := time.Now()
	logger.Info("job started", zap.String("version", core.Version))

	result, err := d.execute(ctx, job, sess)
	if err != nil {
		sess.enter(StateFailed)
		logger.Error("job failed",
			zap.String("error_code", string(CodeOf(err))),
			zap.String("stage", StageOf(err)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return core.ExitCodeError
	}

	if err := Emit(stdout, result); err != nil {
		sess.enter(StateFailed)
		logger.Error("failed to write result", zap.Error(err))
		return core.ExitCodeError
	}
	sess.enter(StateResultEmitted)
	logger.Info("job finished", zap.Duration("elapsed", time.Since(start)))
	return core.ExitCodeSuccess
}

func (d *Driver) execute(ctx context.Context, job Job, sess *Session) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			sess.Logger.Error("job panicked", zap.ByteString("stack", debug.Stack()))
			err = Failf(CodeInference, "", "panic: %v", r)
		}
	}()
	return job.Run(ctx, sess)
}

// PrintUsage writes the usage line in red followed by the argument error.
func PrintUsage(w io.Writer, spec Spec, err error) {
	red := color.New(color.FgRed)
	red.Fprintln(w, spec.Usage())
	fmt.Fprintf(w, "error: %v\n", err)
}

func (d *Driver) printUsage(w io.Writer, spec Spec, err error) {
	PrintUsage(w, spec, err)
	d.Logger.Error("invalid arguments",
		zap.String("job", string(spec.Kind)),
		zap.String("error_code", string(CodeUsage)),
		zap.Error(err))
}
