// Package llm provides the generative completion backends used by semantic classifiers.
// Every backend runs in strict JSON mode and returns the raw response text; parsing and
// validation belong to the caller.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ContextWindow is the context size requested from backends that accept one.
const ContextWindow = 8192

// ErrEmptyResponse is returned when a backend completes without any text.
var ErrEmptyResponse = errors.New("empty model response")

// Generator produces a single JSON object for prompt. key names the one boolean field the
// caller expects; backends that support response schemas constrain output with it.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt, key string) (string, error)
	Name() string
}

// WithTimeout bounds every call to g. A zero timeout returns g unchanged.
func WithTimeout(g Generator, timeout time.Duration) Generator {
	if timeout <= 0 {
		return g
	}
	return timeoutGenerator{next: g, timeout: timeout}
}

type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

func (t timeoutGenerator) GenerateJSON(ctx context.Context, prompt, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	out, err := t.next.GenerateJSON(ctx, prompt, key)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%s: no response within %s: %w", t.next.Name(), t.timeout, context.DeadlineExceeded)
	}
	return out, err
}

func (t timeoutGenerator) Name() string { return t.next.Name() }
