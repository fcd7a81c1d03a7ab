package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/becomeliminal/nim-orchestrator/core"
)

const service = "completion"

// WithTimeout bounds each call to c by d and converts failures into
// *core.UpstreamError. Structured output support is preserved.
func WithTimeout(c Completer, d time.Duration) Completer {
	t := &timed{inner: c, timeout: d}
	if s, ok := c.(StructuredCompleter); ok {
		return &timedStructured{timed: t, inner: s}
	}
	return t
}

type timed struct {
	inner   Completer
	timeout time.Duration
}

func (t *timed) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	out, err := t.inner.Complete(ctx, prompt)
	return out, classify(ctx, err)
}

func (t *timed) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

type timedStructured struct {
	*timed
	inner StructuredCompleter
}

func (t *timedStructured) CompleteJSON(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	out, err := t.inner.CompleteJSON(ctx, prompt, schema)
	return out, classify(ctx, err)
}

// classify maps a provider error to *core.UpstreamError. SDKs do not always
// wrap the context error, so an expired deadline is checked directly.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return core.Upstream(service, err)
}
