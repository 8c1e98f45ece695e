package mail

import (
	"context"
	"fmt"
)

// Waiter gates outbound calls; *rate.TokenBucket satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

type limited struct {
	next Backend
	rate Waiter
}

// Limit returns a Backend that waits on w before every call. A nil w returns b unchanged.
func Limit(b Backend, w Waiter) Backend {
	if w == nil {
		return b
	}
	return &limited{next: b, rate: w}
}

func (l *limited) wait(ctx context.Context, operation string) error {
	if err := l.rate.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit %s: %w", operation, err)
	}
	return nil
}

func (l *limited) ListLabels(ctx context.Context) ([]Label, error) {
	if err := l.wait(ctx, "labels"); err != nil {
		return nil, err
	}
	return l.next.ListLabels(ctx)
}

func (l *limited) List(ctx context.Context, label LabelID, pageToken string, pageSize int) (ListPage, error) {
	if err := l.wait(ctx, "list"); err != nil {
		return ListPage{}, err
	}
	return l.next.List(ctx, label, pageToken, pageSize)
}

func (l *limited) Get(ctx context.Context, id MessageID, opts GetOptions) (Message, error) {
	if err := l.wait(ctx, "get"); err != nil {
		return Message{}, err
	}
	return l.next.Get(ctx, id, opts)
}

func (l *limited) Modify(ctx context.Context, ids []MessageID, ops ModifyOps) error {
	if err := l.wait(ctx, "modify"); err != nil {
		return err
	}
	return l.next.Modify(ctx, ids, ops)
}

func (l *limited) Watch(ctx context.Context) (Cursor, error) {
	if err := l.wait(ctx, "watch"); err != nil {
		return "", err
	}
	return l.next.Watch(ctx)
}

func (l *limited) Poll(ctx context.Context, since Cursor) (EventBatch, error) {
	if err := l.wait(ctx, "poll"); err != nil {
		return EventBatch{}, err
	}
	return l.next.Poll(ctx, since)
}
