// Package executor applies triage actions to a mailbox.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joshsymonds/mailsort/internal/mail"
	"github.com/joshsymonds/mailsort/internal/metrics"
	"github.com/joshsymonds/mailsort/internal/triage"
)

type Status string

const (
	StatusNone     Status = "none"
	StatusApplied  Status = "applied"
	StatusSkipped  Status = "skipped"  // a label did not resolve; nothing was changed
	StatusDegraded Status = "degraded" // destination added but source not removed
	StatusFailed   Status = "failed"
	StatusDryRun   Status = "dry_run"
)

// Result describes what Apply did. Action is the action as executed, so a Trash
// request comes back as the equivalent move.
type Result struct {
	Status     Status
	Action     triage.Action
	Missing    []string
	MarkedRead bool
}

// Modifier is the part of mail.Backend the executor writes through.
type Modifier interface {
	Modify(ctx context.Context, ids []mail.MessageID, ops mail.ModifyOps) error
}

// Resolver maps label names to labels; *labels.Directory satisfies it.
type Resolver interface {
	Resolve(name string) (mail.Label, bool)
}

type Executor struct {
	Backend Modifier
	Labels  Resolver
	Inbox   string
	Trash   string
	DryRun  bool
	Log     *slog.Logger
}

// Apply performs action on msg.
//
// Both labels are resolved before anything is written. Mark-read comes first and is best
// effort. A failure to add the destination is returned; a failure to remove the source
// leaves the message in both places and is reported as StatusDegraded without an error.
func (e *Executor) Apply(ctx context.Context, msg mail.Message, action triage.Action) (Result, error) {
	if action.Kind == triage.KindTrash {
		action = triage.MoveTo(e.Inbox, e.Trash, true)
	}
	if action.Kind != triage.KindMove {
		return Result{Status: StatusNone, Action: action}, nil
	}

	res := Result{Action: action}
	from, fromOK := e.Labels.Resolve(action.From)
	to, toOK := e.Labels.Resolve(action.To)
	if !fromOK {
		res.Missing = append(res.Missing, action.From)
	}
	if !toOK {
		res.Missing = append(res.Missing, action.To)
	}
	if len(res.Missing) > 0 {
		for _, name := range res.Missing {
			metrics.LabelsMissing.WithLabelValues(name).Inc()
		}
		res.Status = StatusSkipped
		e.logger().Warn("label not found, action skipped",
			slog.String("message", string(msg.ID)),
			slog.String("subject", msg.Subject),
			slog.Any("missing", res.Missing))
		e.record(res)
		return res, nil
	}

	if e.DryRun {
		res.Status = StatusDryRun
		res.MarkedRead = action.MarkRead && msg.Unread
		e.report(msg, res)
		e.record(res)
		return res, nil
	}

	ids := []mail.MessageID{msg.ID}
	if action.MarkRead && msg.Unread {
		if err := e.Backend.Modify(ctx, ids, mail.ModifyOps{MarkRead: true}); err != nil {
			e.logger().Warn("mark read failed",
				slog.String("message", string(msg.ID)),
				slog.String("error", err.Error()))
		} else {
			res.MarkedRead = true
		}
	}

	if err := e.Backend.Modify(ctx, ids, mail.ModifyOps{AddLabels: []mail.LabelID{to.ID}}); err != nil {
		res.Status = StatusFailed
		e.record(res)
		return res, fmt.Errorf("add label %s to %s: %w", action.To, msg.ID, err)
	}

	res.Status = StatusApplied
	if err := e.Backend.Modify(ctx, ids, mail.ModifyOps{RemoveLabels: []mail.LabelID{from.ID}}); err != nil {
		res.Status = StatusDegraded
		e.logger().Warn("remove source label failed, message kept in both",
			slog.String("message", string(msg.ID)),
			slog.String("from", action.From),
			slog.String("to", action.To),
			slog.String("error", err.Error()))
	}
	e.report(msg, res)
	e.record(res)
	return res, nil
}

func (e *Executor) report(msg mail.Message, res Result) {
	e.logger().Info("moved message",
		slog.String("message", string(msg.ID)),
		slog.String("subject", msg.Subject),
		slog.String("from", res.Action.From),
		slog.String("to", res.Action.To),
		slog.Bool("marked_read", res.MarkedRead),
		slog.String("status", string(res.Status)))
}

func (e *Executor) record(res Result) {
	metrics.ActionsTotal.WithLabelValues(res.Action.Kind.String(), res.Action.To, string(res.Status)).Inc()
}

func (e *Executor) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}
