package jobcore

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"mediagen/core"
	"mediagen/device"
	"mediagen/logging"
)

// scriptedJob returns a fixed outcome.
type scriptedJob struct {
	run  func(ctx context.Context, s *Session) (Result, error)
	last *Session
}

func (j *scriptedJob) Spec() Spec { return imageSpec }

func (j *scriptedJob) Run(ctx context.Context, s *Session) (Result, error) {
	j.last = s
	return j.run(ctx, s)
}

type failingProbe struct{}

func (failingProbe) Probe(ctx context.Context) (device.Info, error) {
	return device.Info{}, errors.New("no nvidia-smi")
}

func newTestDriver(stdout, stderr *bytes.Buffer) *Driver {
	cfg := core.DefaultConfig()
	return &Driver{
		Config: cfg,
		Logger: logging.NewLoggerWithWriter(stderr, logging.DebugLevel),
		Probe:  failingProbe{},
		Random: func(max int64) int64 { return 31337 },
		Stdout: stdout,
		Stderr: stderr,
	}
}

func TestDriver_Success(t *testing.T) {
	var stdout, stderr bytes.Buffer
	d := newTestDriver(&stdout, &stderr)

	job := &scriptedJob{run: func(ctx context.Context, s *Session) (Result, error) {
		seed := s.Seed()
		s.Stages(ctx)
		return SeededPathResult("storage/images/image_"+s.Request.ContentID+"_"+seed.String()+".png", seed), nil
	}}

	code := d.Run(context.Background(), job, []string{"a red apple", "c123", "42"})
	if code != core.ExitCodeSuccess {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	if got := stdout.String(); got != "storage/images/image_c123_42.png:42\n" {
		t.Errorf("stdout = %q", got)
	}

	wantStates := []State{StateStart, StateSeedResolved, StateDeviceSelected, StateResultEmitted}
	got := job.last.History()
	if len(got) != len(wantStates) {
		t.Fatalf("history = %v, want %v", got, wantStates)
	}
	for i := range wantStates {
		if got[i] != wantStates[i] {
			t.Errorf("history[%d] = %v, want %v", i, got[i], wantStates[i])
		}
	}
	if job.last.Stages(context.Background()).Device() != device.GeneralProcessor {
		t.Error("failing probe should select the general processor")
	}
}

func TestDriver_RandomSeed(t *testing.T) {
	var stdout, stderr bytes.Buffer
	d := newTestDriver(&stdout, &stderr)

	job := &scriptedJob{run: func(ctx context.Context, s *Session) (Result, error) {
		seed := s.Seed()
		return SeededPathResult("storage/images/image_c124_"+seed.String()+".png", seed), nil
	}}

	if code := d.Run(context.Background(), job, []string{"a red apple", "c124", "random"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	line := strings.TrimSuffix(stdout.String(), "\n")
	if line != "storage/images/image_c124_31337.png:31337" {
		t.Errorf("stdout = %q", line)
	}
}

func TestDriver_UsageError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	d := newTestDriver(&stdout, &stderr)

	ran := false
	job := &scriptedJob{run: func(ctx context.Context, s *Session) (Result, error) {
		ran = true
		return Result{}, nil
	}}

	code := d.Run(context.Background(), job, []string{"only a prompt"})
	if code != core.ExitCodeError {
		t.Errorf("exit code = %d, want %d", code, core.ExitCodeError)
	}
	if ran {
		t.Error("job ran despite usage error")
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Usage: imagegen <prompt> <contentId> [seedToken]") {
		t.Errorf("stderr missing usage line: %s", stderr.String())
	}
}

func TestDriver_Failure(t *testing.T) {
	var stdout, stderr bytes.Buffer
	d := newTestDriver(&stdout, &stderr)

	job := &scriptedJob{run: func(ctx context.Context, s *Session) (Result, error) {
		return Result{}, Failf(CodeExternalTool, "encode", "ffmpeg not found")
	}}

	code := d.Run(context.Background(), job, []string{"p", "c1"})
	if code != core.ExitCodeError {
		t.Errorf("exit code = %d", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", stdout.String())
	}
	if !strings.Contains(stderr.String(), string(CodeExternalTool)) {
		t.Errorf("stderr missing error code: %s", stderr.String())
	}
	if job.last.State() != StateFailed {
		t.Errorf("State() = %v, want failed", job.last.State())
	}
}

func TestDriver_PanicBecomesFailure(t *testing.T) {
	var stdout, stderr bytes.Buffer
	d := newTestDriver(&stdout, &stderr)

	job := &scriptedJob{run: func(ctx context.Context, s *Session) (Result, error) {
		panic("unexpected nil model")
	}}

	if code := d.Run(context.Background(), job, []string{"p", "c1"}); code != core.ExitCodeError {
		t.Errorf("exit code = %d", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout = %q, want empty", stdout.String())
	}
}

func TestDriver_DiagnosticsStayOffStdout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	d := newTestDriver(&stdout, &stderr)

	job := &scriptedJob{run: func(ctx context.Context, s *Session) (Result, error) {
		s.Logger.Info("progress")
		s.Logger.Warn("slow path")
		return PathResult("storage/stories/story_s1.txt"), nil
	}}

	d.Run(context.Background(), job, []string{"p", "s1"})
	if got := stdout.String(); got != "storage/stories/story_s1.txt\n" {
		t.Errorf("stdout = %q", got)
	}
	if !strings.Contains(stderr.String(), "slow path") {
		t.Errorf("stderr missing diagnostics: %s", stderr.String())
	}
}
