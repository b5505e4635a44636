package worker

import (
	"context"
)

// TestCommand runs the configured deterministic test command through
// the shell. It takes no prompt; the directive is fixed.
type TestCommand struct {
	Command string // e.g. "go test ./..."; empty means not configured
	Dir     string
}

// Run executes the test command and reports the outcome. A missing
// command is a worker-side failure, retried by the engine like any
// other failure rather than raised as an error.
func (t *TestCommand) Run(ctx context.Context, onLine func(string)) (Report, error) {
	if t.Command == "" {
		line := "no test command configured"
		if onLine != nil {
			onLine(line)
		}
		return Report{Lines: []string{line}, Success: false, ExitCode: 1}, nil
	}

	cmd := newCommand(ctx, "sh", "-c", t.Command)
	if t.Dir != "" {
		cmd.Dir = t.Dir
	}

	lines, exitCode, err := runCommand(ctx, cmd, onLine)
	if err != nil {
		return Report{Lines: lines, Success: false, ExitCode: exitCode}, err
	}

	return Report{
		Lines:    lines,
		Success:  exitCode == 0,
		ExitCode: exitCode,
	}, nil
}
