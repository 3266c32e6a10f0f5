package hardware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Command describes one external program invocation.
type Command struct {
	Name  string
	Args  []string
	Stdin string
}

// String renders the command line for logging.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Elevated wraps c in a sudo invocation. The host is expected to allow
// the kiosk user password-less sudo for the few privileged operations.
func (c Command) Elevated() Command {
	return Command{
		Name:  "sudo",
		Args:  append([]string{"-n", c.Name}, c.Args...),
		Stdin: c.Stdin,
	}
}

// Result is the outcome of a command. Exactly one of Output and Err is
// meaningful: Err is nil on success and Output holds trimmed stdout;
// otherwise Err carries the stderr text (or the start failure).
type Result struct {
	Output string
	Err    error
}

// OK reports whether the command succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Runner executes external commands. Run blocks until the command
// exits; Start returns immediately and delivers exactly one Result on
// the returned channel, which callers may ignore.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
	Start(ctx context.Context, cmd Command) <-chan Result
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger *slog.Logger
}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{Logger: logger}
}

// Run executes cmd and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) Result {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}

	r.Logger.Log(ctx, levelTrace, "exec", "command", cmd.String())

	if err := c.Run(); err != nil {
		msg := cleanOutput(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return Result{Err: fmt.Errorf("%s: %w", cmd.Name, errors.New(msg))}
	}
	return Result{Output: cleanOutput(stdout.String())}
}

// Start runs cmd in its own goroutine. The child is not tied to ctx
// cancellation beyond process start so that a shutdown command is not
// killed by the caller returning.
func (r *ExecRunner) Start(ctx context.Context, cmd Command) <-chan Result {
	done := make(chan Result, 1)
	go func() {
		done <- r.Run(context.WithoutCancel(ctx), cmd)
		close(done)
	}()
	return done
}

// cleanOutput trims whitespace and strips NUL bytes, which device-tree
// files and some tools append.
func cleanOutput(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// levelTrace mirrors config.LevelTrace without importing config.
const levelTrace = slog.Level(-8)
