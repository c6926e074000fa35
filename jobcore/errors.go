// Package jobcore drives a single generation job from positional arguments
// to one result line.
//
// A job runs as its own process: the Driver parses the request, resolves a
// seed, selects a device, runs model stages strictly one at a time through
// RunStage, and finally emits exactly one Result on stdout. Every failure is
// a *JobError, reported on stderr with exit code 1.
package jobcore

import (
	"errors"
	"fmt"
)

// Code classifies why a job failed.
type Code string

// Failure codes. None of them are retried.
const (
	CodeUsage               Code = "USAGE"
	CodeResourceAcquisition Code = "RESOURCE_ACQUISITION"
	CodeInference           Code = "INFERENCE"
	CodeIO                  Code = "IO"
	CodeExternalTool        Code = "EXTERNAL_TOOL"
	CodeUpstreamService     Code = "UPSTREAM_SERVICE"
)

// JobError is the single failure type a job reports.
type JobError struct {
	Code  Code
	Stage string // Stage or step that failed; empty for usage errors
	Err   error
}

func (e *JobError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s in %s: %v", e.Code, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Fail wraps err as a *JobError. An err that already is a *JobError is
// returned unchanged so the innermost classification wins.
func Fail(code Code, stage string, err error) error {
	if err == nil {
		return nil
	}
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return err
	}
	return &JobError{Code: code, Stage: stage, Err: err}
}

// Failf is Fail with a formatted message.
func Failf(code Code, stage, format string, args ...interface{}) error {
	return &JobError{Code: code, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// CodeOf returns the failure code carried by err, or CodeInference for
// untyped errors.
func CodeOf(err error) Code {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Code
	}
	return CodeInference
}

// StageOf returns the stage recorded on err, if any.
func StageOf(err error) string {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Stage
	}
	return ""
}
