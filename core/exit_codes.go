package core

// Exit codes for job processes.
//
// The calling application only distinguishes success from failure, so every
// fatal condition (usage, resource, inference, IO, tool, upstream, signal)
// maps to ExitCodeError. The failure reason travels on stderr.
const (
	// ExitCodeSuccess indicates the result line was written (exit code 0)
	ExitCodeSuccess = 0

	// ExitCodeError indicates the job failed and stdout is empty (exit code 1)
	ExitCodeError = 1
)
