package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/becomeliminal/nim-orchestrator/core"
)

// Dispatcher runs capabilities by name.
//
// Directory capabilities are executed as a subprocess in their own
// directory. The arguments are written to stdin as a JSON object and the
// trimmed stdout is the result. A non-zero exit status is a failure and
// stderr is attached to the error.
//
// Invocations are never retried: capabilities may touch the filesystem or
// external services.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	env      []string
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout bounds each invocation. Zero means no bound.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) {
		x.timeout = d
	}
}

// WithEnv appends KEY=VALUE pairs to the environment of subprocess capabilities.
func WithEnv(env ...string) DispatcherOption {
	return func(x *Dispatcher) {
		x.env = append(x.env, env...)
	}
}

// NewDispatcher creates a dispatcher resolving names through registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{registry: registry}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Invoke runs the capability called name with args and returns its result.
// Unknown names yield *core.ToolNotFoundError; failures inside the
// capability yield *core.ToolExecutionError.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		result string
		err    error
	)
	if dir, ok := d.registry.capabilityDir(name); ok {
		result, err = d.runDir(ctx, name, dir, args)
	} else if b, ok := d.registry.builtin(name); ok {
		result, err = runBuiltin(ctx, b, args)
	} else {
		return "", &core.ToolNotFoundError{Name: name}
	}

	if err != nil {
		log.Printf("[TOOLS] %s failed after %s: %v", name, time.Since(start).Round(time.Millisecond), err)
		return "", &core.ToolExecutionError{Name: name, Err: err}
	}
	log.Printf("[TOOLS] %s completed in %s", name, time.Since(start).Round(time.Millisecond))
	return result, nil
}

func (d *Dispatcher) runDir(ctx context.Context, name, dir string, args map[string]any) (string, error) {
	entry, ok := entryPoint(dir)
	if !ok {
		return "", fmt.Errorf("entry point disappeared from %s", dir)
	}
	input, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode arguments: %w", err)
	}

	abs, err := filepath.Abs(entry)
	if err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, abs)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(os.Environ(), "NIM_TOOL_NAME="+name)
	cmd.Env = append(cmd.Env, d.env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %v", ctxErr, err)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return strings.TrimRight(stdout.String(), "\r\n"), nil
}

func runBuiltin(ctx context.Context, b *Builtin, args map[string]any) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if b.Run == nil {
		return "", errors.New("builtin has no implementation")
	}
	return b.Run(ctx, args)
}
