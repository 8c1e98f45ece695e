// Package ingest feeds mailbox messages through the rule chain: one backfill pass over
// the Inbox at startup, then polling for new arrivals until the context ends.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joshsymonds/mailsort/internal/executor"
	"github.com/joshsymonds/mailsort/internal/labels"
	"github.com/joshsymonds/mailsort/internal/mail"
	"github.com/joshsymonds/mailsort/internal/metrics"
	"github.com/joshsymonds/mailsort/internal/triage"
)

// ErrInboxMissing means the configured Inbox label does not exist. It is the only
// error other than cancellation that ends Run.
var ErrInboxMissing = errors.New("inbox label not found")

const (
	DefaultPollInterval = 60 * time.Second
	DefaultPageSize     = 100

	PhaseBackfill = "backfill"
	PhasePoll     = "poll"
)

// Evaluator decides the action for a message; *triage.Chain satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, msg mail.Message) (triage.Decision, error)
}

type Options struct {
	PollInterval time.Duration
	PageSize     int
	DryRun       bool
}

type Service struct {
	Backend mail.Backend
	Chain   Evaluator
	Names   triage.LabelNames
	Options Options
	Log     *slog.Logger

	// RefreshLabels re-reads the label directory between polls when signalled.
	RefreshLabels <-chan struct{}
	// NewTicker defaults to time.NewTicker.
	NewTicker func(time.Duration) (<-chan time.Time, func())
}

type run struct {
	dir   *labels.Directory
	inbox mail.Label
	exec  executor.Executor

	// backfilled holds the ids seen by the backfill until the first successful poll,
	// which may report the same arrivals again.
	backfilled map[mail.MessageID]struct{}
}

// Run loads labels, takes the event cursor, backfills the Inbox and then polls until ctx
// is done. Per-message failures are logged and counted, never returned.
func (s *Service) Run(ctx context.Context) error {
	if s.Log == nil {
		s.Log = slog.Default()
	}
	dir, err := labels.Load(ctx, s.Backend, s.Log)
	if err != nil {
		return fmt.Errorf("load labels: %w", err)
	}
	inbox, ok := dir.Resolve(s.Names.Inbox)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInboxMissing, s.Names.Inbox)
	}
	if missing := dir.Missing(s.Names.Destinations()...); len(missing) > 0 {
		s.Log.Warn("destination labels missing, their rules will be skipped", slog.Any("labels", missing))
	}

	r := &run{
		dir:   dir,
		inbox: inbox,
		exec: executor.Executor{
			Backend: s.Backend,
			Labels:  dir,
			Inbox:   s.Names.Inbox,
			Trash:   s.Names.Trash,
			DryRun:  s.Options.DryRun,
		},
	}

	// Take the cursor first so anything arriving during the backfill is polled later.
	cursor, err := s.Backend.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	s.Log.Info("watching for new messages", slog.String("cursor", string(cursor)))

	if err := s.backfill(ctx, r); err != nil {
		return err
	}
	return s.poll(ctx, r, cursor)
}

func (s *Service) backfill(ctx context.Context, r *run) error {
	var all []mail.MessageID
	pageToken := ""
	for {
		page, err := s.Backend.List(ctx, r.inbox.ID, pageToken, s.pageSize())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.Log.Error("backfill listing failed, continuing with polling", "error", err, "listed", len(all))
			break
		}
		all = append(all, page.IDs...)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	s.Log.Info("backfill", "count", len(all), "labels", r.dir.Len())
	r.backfilled = make(map[mail.MessageID]struct{}, len(all))
	for _, id := range all {
		r.backfilled[id] = struct{}{}
	}
	for _, id := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.handle(ctx, r, PhaseBackfill, id)
	}
	return ctx.Err()
}

func (s *Service) poll(ctx context.Context, r *run, cursor mail.Cursor) error {
	tick, stop := s.ticker()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.RefreshLabels:
			if err := r.dir.Refresh(ctx); err != nil {
				s.Log.Warn("label refresh failed", "error", err)
			}
			continue
		case <-tick:
		}

		batch, err := s.Backend.Poll(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.PollTicks.WithLabelValues("error").Inc()
			s.Log.Warn("poll failed, keeping cursor", "error", err, slog.String("cursor", string(cursor)))
			continue
		}
		batch.MessageIDs = r.unseen(batch.MessageIDs)
		r.backfilled = nil
		if len(batch.MessageIDs) == 0 {
			metrics.PollTicks.WithLabelValues("empty").Inc()
			s.Log.Debug("no new messages")
			if batch.Next != "" {
				cursor = batch.Next
			}
			continue
		}
		metrics.PollTicks.WithLabelValues("messages").Inc()
		for _, id := range batch.MessageIDs {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.handle(ctx, r, PhasePoll, id)
		}
		if batch.Next != "" {
			cursor = batch.Next
		}
	}
}

// unseen drops ids the backfill already handled.
func (r *run) unseen(ids []mail.MessageID) []mail.MessageID {
	if len(r.backfilled) == 0 {
		return ids
	}
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := r.backfilled[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// handle processes one message and nets its error.
func (s *Service) handle(ctx context.Context, r *run, phase string, id mail.MessageID) {
	log := s.Log.With(slog.String("pass", uuid.NewString()), slog.String("message", string(id)))
	outcome, err := s.process(ctx, r, log, id)
	if err != nil {
		kind := Kind(err)
		outcome = kind
		if kind == KindCanceled {
			log.Debug("processing interrupted", "error", err)
		} else {
			log.Error("processing failed", slog.String("kind", kind), "error", err)
		}
	}
	metrics.MessagesProcessed.WithLabelValues(phase, outcome).Inc()
}

func (s *Service) process(ctx context.Context, r *run, log *slog.Logger, id mail.MessageID) (string, error) {
	msg, err := s.Backend.Get(ctx, id, mail.GetOptions{MarkAsRead: false})
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	log.Info(msg.From + ": " + msg.Subject)
	if !msg.HasLabel(r.inbox.ID) {
		log.Debug("message already left the inbox")
		return "left_inbox", nil
	}

	decision, err := s.Chain.Evaluate(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	if decision.Rule != "" {
		log.Debug("rule matched", slog.String("rule", decision.Rule), slog.String("action", decision.Action.String()))
	}

	exec := r.exec
	exec.Log = log
	res, err := exec.Apply(ctx, msg, decision.Action)
	if err != nil {
		return "", fmt.Errorf("apply %s: %w", decision.Action, err)
	}
	return string(res.Status), nil
}

func (s *Service) pageSize() int {
	if s.Options.PageSize > 0 {
		return s.Options.PageSize
	}
	return DefaultPageSize
}

func (s *Service) ticker() (<-chan time.Time, func()) {
	d := s.Options.PollInterval
	if d <= 0 {
		d = DefaultPollInterval
	}
	if s.NewTicker != nil {
		return s.NewTicker(d)
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}
