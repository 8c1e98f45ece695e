package triage

import (
	"context"
	"fmt"

	"github.com/joshsymonds/mailsort/internal/classify"
	"github.com/joshsymonds/mailsort/internal/mail"
)

// Outcome produces the action of a matched rule. Most rules use Always; a rule whose
// action depends on a second predicate uses If.
type Outcome interface {
	Resolve(ctx context.Context, msg mail.Message) (Action, error)
}

type always struct{ action Action }

func Always(a Action) Outcome { return always{action: a} }

func (a always) Resolve(context.Context, mail.Message) (Action, error) { return a.action, nil }

type compute func(mail.Message) Action

// Compute derives the action from message fields without consulting a classifier.
func Compute(fn func(mail.Message) Action) Outcome { return compute(fn) }

func (c compute) Resolve(_ context.Context, msg mail.Message) (Action, error) { return c(msg), nil }

type branch struct {
	cond      classify.Classifier
	then      Outcome
	otherwise Outcome
}

// If resolves then when cond holds and otherwise when it does not.
func If(cond classify.Classifier, then, otherwise Outcome) Outcome {
	return branch{cond: cond, then: then, otherwise: otherwise}
}

func (b branch) Resolve(ctx context.Context, msg mail.Message) (Action, error) {
	ok, err := b.cond.Classify(ctx, msg)
	if err != nil {
		return Action{}, fmt.Errorf("%s: %w", b.cond.Name(), err)
	}
	if ok {
		return b.then.Resolve(ctx, msg)
	}
	return b.otherwise.Resolve(ctx, msg)
}

// Rule pairs a predicate with the outcome applied when it matches.
type Rule struct {
	Name string
	When classify.Classifier
	Then Outcome
}

// Decision is the result of one chain evaluation. Rule is empty when nothing matched.
type Decision struct {
	Rule   string
	Action Action
}

// Chain is an ordered, immutable rule list evaluated first-match-wins.
type Chain struct {
	rules []Rule
}

func NewChain(rules ...Rule) *Chain {
	return &Chain{rules: append([]Rule(nil), rules...)}
}

// Rules returns a copy of the rules in priority order.
func (c *Chain) Rules() []Rule { return append([]Rule(nil), c.rules...) }

// Evaluate runs rules top to bottom and stops at the first match. Rules after the match
// are never consulted. A classifier error aborts evaluation and is returned wrapped with
// the rule name; no partial decision is returned with it.
func (c *Chain) Evaluate(ctx context.Context, msg mail.Message) (Decision, error) {
	for _, rule := range c.rules {
		matched, err := rule.When.Classify(ctx, msg)
		if err != nil {
			return Decision{}, fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		if !matched {
			continue
		}
		action, err := rule.Then.Resolve(ctx, msg)
		if err != nil {
			return Decision{}, fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		return Decision{Rule: rule.Name, Action: action}, nil
	}
	return Decision{Action: NoAction()}, nil
}
