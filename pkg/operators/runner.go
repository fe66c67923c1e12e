package operators

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/epicbuild/epic/pkg/engine"
)

// Command is a single tool invocation.
type Command struct {
	// Tool is the executable name or path.
	Tool string

	// Args are the arguments passed to Tool.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra environment variables layered over the process environment.
	Env map[string]string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Tool + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a finished invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Output returns stdout followed by stderr.
func (r *Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner starts tool processes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands as local subprocesses.
type ExecRunner struct {
	Logger *zerolog.Logger
}

// Run executes cmd and waits for it. A tool that cannot be started yields a
// tool-not-found error. A non-zero exit or cancellation yields a process
// error carrying the captured output.
func (r ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	logger := log.Logger
	if r.Logger != nil {
		logger = *r.Logger
	}

	cmd := exec.CommandContext(ctx, c.Tool, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		env := os.Environ()
		for k, v := range c.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug().Str("command", c.String()).Msg("Running tool")

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			return result, engine.NewProcessError(c.Tool, result.Output(), ctx.Err())
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
			return result, engine.NewProcessError(c.Tool, result.Output(), err).
				WithDetail("exit_code", result.ExitCode)
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			return result, engine.NewToolNotFoundError(c.Tool, err)
		default:
			return result, engine.NewProcessError(c.Tool, result.Output(), err)
		}
	}

	logger.Debug().
		Str("tool", c.Tool).
		Dur("duration", result.Duration).
		Msg("Tool finished")
	return result, nil
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath
