package worker

import (
	"context"
	"fmt"
)

// Agent invokes a coding-agent CLI with an opaque prompt and streams
// its output back as transcript lines.
type Agent struct {
	cfg Config
}

// NewAgent creates an agent worker for the given CLI configuration.
func NewAgent(cfg Config) (*Agent, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("agent worker requires a command")
	}
	return &Agent{cfg: cfg}, nil
}

// Run executes the agent with the prompt appended to the configured
// args. Each output line is forwarded to onLine as it arrives. A
// non-zero exit or a spawn failure yields Success=false; spawn failures
// are additionally returned as an error so the resilience layer can
// retry them.
func (a *Agent) Run(ctx context.Context, prompt string, onLine func(string)) (Report, error) {
	args := append(append([]string(nil), a.cfg.Args...), prompt)
	cmd := newCommand(ctx, a.cfg.Command, args...)
	if a.cfg.WorkDir != "" {
		cmd.Dir = a.cfg.WorkDir
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
