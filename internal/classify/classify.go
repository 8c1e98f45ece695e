// Package classify implements the message predicates consulted by the rule chain.
//
// Two strategies share the Classifier interface: heuristics are pure functions over
// structural fields and run in constant time; semantic classifiers prompt a generative
// backend and parse exactly one boolean key from its JSON reply. Heuristics are used to
// gate semantic calls (see Gate) so the expensive path only runs when it can matter.
package classify

import (
	"context"
	"fmt"

	"github.com/joshsymonds/mailsort/internal/mail"
)

// Classifier is a named predicate over a message.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, msg mail.Message) (bool, error)
}

type heuristic struct {
	name string
	fn   func(mail.Message) bool
}

// Func wraps a pure predicate as a Classifier.
func Func(name string, fn func(mail.Message) bool) Classifier {
	return heuristic{name: name, fn: fn}
}

func (h heuristic) Name() string { return h.name }

func (h heuristic) Classify(_ context.Context, msg mail.Message) (bool, error) {
	return h.fn(msg), nil
}

type gate struct {
	pre   Classifier
	inner Classifier
}

// Gate invokes inner only when pre holds. The gate reports inner's name.
func Gate(pre, inner Classifier) Classifier {
	return gate{pre: pre, inner: inner}
}

func (g gate) Name() string { return g.inner.Name() }

func (g gate) Classify(ctx context.Context, msg mail.Message) (bool, error) {
	ok, err := g.pre.Classify(ctx, msg)
	if err != nil || !ok {
		return false, err
	}
	return g.inner.Classify(ctx, msg)
}

type all struct {
	name  string
	parts []Classifier
}

// All is a short-circuit AND: evaluation stops at the first false or error.
func All(name string, parts ...Classifier) Classifier {
	return all{name: name, parts: parts}
}

func (a all) Name() string { return a.name }

func (a all) Classify(ctx context.Context, msg mail.Message) (bool, error) {
	for _, p := range a.parts {
		ok, err := p.Classify(ctx, msg)
		if err != nil {
			return false, fmt.Errorf("%s: %w", a.name, err)
		}
		if !ok {
			return false, nil
		}
	}
	return len(a.parts) > 0, nil
}

type not struct{ inner Classifier }

// Not negates c. Errors are passed through, never negated.
func Not(c Classifier) Classifier { return not{inner: c} }

func (n not) Name() string { return "not_" + n.inner.Name() }

func (n not) Classify(ctx context.Context, msg mail.Message) (bool, error) {
	ok, err := n.inner.Classify(ctx, msg)
	if err != nil {
		return false, err
	}
	return !ok, nil
}
