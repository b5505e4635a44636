// Package worker runs the external collaborators the engine dispatches
// jobs to: agent workers (a CLI given an opaque prompt) and the
// deterministic test-runner worker (a configured shell command). Both
// report the same shape back: transcript lines, a success flag, and an
// exit code.
package worker

// Report is the final outcome of one worker invocation. The engine only
// sees this via FinishActiveJob, having already received incremental
// lines through the caller's output callback.
type Report struct {
	Lines    []string
	Success  bool
	ExitCode int
}

// Config describes how to invoke an agent worker CLI.
type Config struct {
	Command string   // Binary name (e.g. "claude", "codex")
	Args    []string // Default args prepended before the prompt
	WorkDir string
}
