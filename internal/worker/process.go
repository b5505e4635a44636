package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// newCommand creates an exec.Cmd with process group isolation so the
// whole subprocess tree can be terminated together.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return cmd
}

// lineCollector accumulates transcript lines from concurrent readers
// and forwards each one to the caller's callback.
type lineCollector struct {
	mu     sync.Mutex
	lines  []string
	onLine func(string)
}

func (c *lineCollector) add(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
	if c.onLine != nil {
		c.onLine(line)
	}
}

func (c *lineCollector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// runCommand starts the command and drains stdout and stderr
// concurrently, line by line. Draining both pipes before cmd.Wait
// prevents deadlocks when output exceeds the pipe buffer. Returns the
// collected transcript, the process exit code, and any spawn error;
// a non-zero exit is not a spawn error.
func runCommand(ctx context.Context, cmd *exec.Cmd, onLine func(string)) ([]string, int, error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, -1, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, -1, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, -1, fmt.Errorf("failed to start command: %w", err)
	}

	collector := &lineCollector{onLine: onLine}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		scanner := bufio.NewScanner(stdoutPipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			collector.add(scanner.Text())
		}
		return scanner.Err()
	})
	g.Go(func() error {
		scanner := bufio.NewScanner(stderrPipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			collector.add(scanner.Text())
		}
		return scanner.Err()
	})

	readErr := g.Wait()
	waitErr := cmd.Wait()

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return collector.all(), -1, fmt.Errorf("command failed: %w", waitErr)
		}
	}
	if readErr != nil && exitCode == 0 {
		return collector.all(), -1, fmt.Errorf("failed to read command output: %w", readErr)
	}

	return collector.all(), exitCode, nil
}
