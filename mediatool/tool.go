// Package mediatool runs the external media executables a job depends on
// (ffmpeg, pdftoppm) and owns the scratch frames they consume.
package mediatool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"mediagen/logging"
)

var (
	// ErrToolNotFound means the executable is not installed or not on PATH.
	ErrToolNotFound = errors.New("mediatool: executable not found")

	// ErrToolFailed means the executable ran and exited unsuccessfully.
	ErrToolFailed = errors.New("mediatool: tool exited with an error")

	// ErrToolTimeout means the tool was killed after exceeding its timeout.
	ErrToolTimeout = errors.New("mediatool: tool timed out")
)

// waitDelay bounds how long Run waits for output after the process is killed.
const waitDelay = 2 * time.Second

// maxStderrInError bounds how much tool output is carried in an error.
const maxStderrInError = 4096

// ExitError reports a non-zero exit together with the tool's stderr.
type ExitError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Is makes errors.Is(err, ErrToolFailed) match any ExitError.
func (e *ExitError) Is(target error) bool {
	return target == ErrToolFailed
}

// Output is the captured result of a successful run.
type Output struct {
	Stdout  string
	Stderr  string
	Elapsed time.Duration
}

// Tool is an external executable.
type Tool struct {
	// Name is used in logs and errors, e.g. "ffmpeg".
	Name string

	// Path is an absolute path or a name looked up on PATH.
	Path string

	// Timeout kills the process when exceeded. Zero means no timeout.
	Timeout time.Duration

	Logger *logging.Logger
}

// Resolve returns the executable path, or ErrToolNotFound.
func (t *Tool) Resolve() (string, error) {
	path := t.Path
	if path == "" {
		path = t.Name
	}
	if strings.ContainsRune(path, os.PathSeparator) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return "", fmt.Errorf("%w: %s", ErrToolNotFound, path)
		}
		return path, nil
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s (%v)", ErrToolNotFound, path, err)
	}
	return resolved, nil
}

// Run executes the tool with args, capturing stdout and stderr separately.
func (t *Tool) Run(ctx context.Context, args ...string) (*Output, error) {
	logger := t.logger()

	path, err := t.Resolve()
	if err != nil {
		logger.Error("external tool not found", zap.String("tool", t.Name), zap.Error(err))
		return nil, err
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// stop waiting on pipes held open by orphaned children once killed
	cmd.WaitDelay = waitDelay

	logger.Debug("running external tool", zap.String("command", cmd.String()))
	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrToolTimeout, t.Name, t.Timeout)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s interrupted: %w", t.Name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			failure := &ExitError{
				Tool:     t.Name,
				ExitCode: exitErr.ExitCode(),
				Stderr:   tail(strings.TrimSpace(stderr.String()), maxStderrInError),
			}
			logger.Error("external tool failed",
				append(logging.ToolFields(t.Name, args, elapsed), zap.Int("exit_code", failure.ExitCode))...)
			return nil, failure
		}
		return nil, fmt.Errorf("%s: %w", t.Name, runErr)
	}

	logger.Info("external tool finished", logging.ToolFields(t.Name, args, elapsed)...)
	return &Output{Stdout: stdout.String(), Stderr: stderr.String(), Elapsed: elapsed}, nil
}

func (t *Tool) logger() *logging.Logger {
	if t.Logger == nil {
		return logging.NewNop()
	}
	return t.Logger
}

// tail keeps the last n bytes of s, where tools put the actual error.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
