package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mediagen/core"
	"mediagen/device"
	"mediagen/jobcore"
	"mediagen/logging"
)

// Main runs the job of the given kind with the process arguments (without
// the program name) and returns the exit code.
func Main(kind jobcore.Kind, args []string) int {
	return run(kind, args, os.Stdout, os.Stderr)
}

func run(kind jobcore.Kind, args []string, stdout, stderr io.Writer) int {
	// arguments are checked before any configuration is read
	unbound, err := New(kind, nil)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return core.ExitCodeError
	}
	if _, err := jobcore.ParseRequest(unbound.Spec(), args); err != nil {
		jobcore.PrintUsage(stderr, unbound.Spec(), err)
		return core.ExitCodeError
	}

	// .env is optional; variables already set in the environment win
	envErr := godotenv.Load()

	cfg, err := core.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return core.ExitCodeError
	}

	logger, err := logging.NewLogger(logging.Options{
		Level:       logging.ParseLogLevelString(cfg.LogLevel, zapcore.InfoLevel),
		Development: cfg.DevMode,
		FilePath:    cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}
	defer logger.Sync()

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("failed to load .env", zap.Error(envErr))
	}

	deps, err := NewDeps(cfg, logger)
	if err != nil {
		logger.Error("failed to set up job", zap.Error(err))
		return core.ExitCodeError
	}
	job, err := New(kind, deps)
	if err != nil {
		logger.Error("failed to set up job", zap.Error(err))
		return core.ExitCodeError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver := &jobcore.Driver{
		Config: cfg,
		Logger: logger,
		Probe:  device.NvidiaSMIProbe{Path: cfg.NvidiaSMIPath, Timeout: cfg.DeviceProbeTimeout},
		Stdout: stdout,
		Stderr: stderr,
	}
	return driver.Run(ctx, job, args)
}
