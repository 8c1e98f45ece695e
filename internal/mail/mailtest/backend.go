// Package mailtest provides an in-memory mail.Backend for tests.
package mailtest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/joshsymonds/mailsort/internal/mail"
)

// ErrNotFound is returned by Get for unknown message ids.
var ErrNotFound = errors.New("mailtest: message not found")

// Call records one invocation of a mutating or fetching method.
type Call struct {
	Op     string
	IDs    []mail.MessageID
	Ops    mail.ModifyOps
	Cursor mail.Cursor
}

// Backend stores messages with their current label sets. Modify applies set semantics,
// so repeating a mutation leaves the mailbox unchanged.
//
// Error fields are consulted on every call; set them before or between calls.
type Backend struct {
	mu       sync.Mutex
	labels   []mail.Label
	order    []mail.MessageID
	messages map[mail.MessageID]*mail.Message
	events   [][]mail.MessageID
	cursor   int
	calls    []Call

	LabelsErr error
	ListErr   error
	WatchErr  error
	PollErrs  []error                    // consumed one per Poll call; nil entries succeed
	GetErrs   map[mail.MessageID]error   // per message
	ModifyErr func(mail.ModifyOps) error // nil succeeds
}

func New(labels ...mail.Label) *Backend {
	return &Backend{
		labels:   append([]mail.Label(nil), labels...),
		messages: map[mail.MessageID]*mail.Message{},
		GetErrs:  map[mail.MessageID]error{},
	}
}

// Add stores msg. Messages are listed in insertion order.
func (b *Backend) Add(msgs ...mail.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, msg := range msgs {
		m := clone(msg)
		if _, ok := b.messages[m.ID]; !ok {
			b.order = append(b.order, m.ID)
		}
		b.messages[m.ID] = &m
	}
}

// Arrive stores msgs and queues their ids as one event batch for Poll.
func (b *Backend) Arrive(msgs ...mail.Message) {
	b.Add(msgs...)
	ids := make([]mail.MessageID, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	b.mu.Lock()
	b.events = append(b.events, ids)
	b.mu.Unlock()
}

// Message returns the current state of id.
func (b *Backend) Message(id mail.MessageID) (mail.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.messages[id]
	if !ok {
		return mail.Message{}, false
	}
	return clone(*m), true
}

// Calls returns every recorded call in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Mutations returns only the recorded Modify calls.
func (b *Backend) Mutations() []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Op == "modify" {
			out = append(out, c)
		}
	}
	return out
}

func (b *Backend) record(c Call) {
	b.calls = append(b.calls, c)
}

func (b *Backend) ListLabels(ctx context.Context) ([]mail.Label, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Call{Op: "labels"})
	if b.LabelsErr != nil {
		return nil, b.LabelsErr
	}
	return append([]mail.Label(nil), b.labels...), nil
}

func (b *Backend) List(ctx context.Context, label mail.LabelID, pageToken string, pageSize int) (mail.ListPage, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Call{Op: "list"})
	if b.ListErr != nil {
		return mail.ListPage{}, b.ListErr
	}
	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return mail.ListPage{}, fmt.Errorf("bad page token %q", pageToken)
		}
		start = n
	}
	var matching []mail.MessageID
	for _, id := range b.order {
		if b.messages[id].HasLabel(label) {
			matching = append(matching, id)
		}
	}
	if start > len(matching) {
		start = len(matching)
	}
	end := len(matching)
	if pageSize > 0 && start+pageSize < end {
		end = start + pageSize
	}
	page := mail.ListPage{IDs: append([]mail.MessageID(nil), matching[start:end]...)}
	if end < len(matching) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (b *Backend) Get(ctx context.Context, id mail.MessageID, opts mail.GetOptions) (mail.Message, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Call{Op: "get", IDs: []mail.MessageID{id}})
	if err := b.GetErrs[id]; err != nil {
		return mail.Message{}, err
	}
	m, ok := b.messages[id]
	if !ok {
		return mail.Message{}, ErrNotFound
	}
	if opts.MarkAsRead {
		m.Unread = false
	}
	return clone(*m), nil
}

func (b *Backend) Modify(ctx context.Context, ids []mail.MessageID, ops mail.ModifyOps) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Call{Op: "modify", IDs: append([]mail.MessageID(nil), ids...), Ops: ops})
	if b.ModifyErr != nil {
		if err := b.ModifyErr(ops); err != nil {
			return err
		}
	}
	for _, id := range ids {
		m, ok := b.messages[id]
		if !ok {
			return ErrNotFound
		}
		if ops.MarkRead {
			m.Unread = false
		}
		for _, add := range ops.AddLabels {
			if !m.HasLabel(add) {
				m.LabelIDs = append(m.LabelIDs, add)
			}
		}
		for _, rm := range ops.RemoveLabels {
			kept := m.LabelIDs[:0]
			for _, l := range m.LabelIDs {
				if l != rm {
					kept = append(kept, l)
				}
			}
			m.LabelIDs = kept
		}
	}
	return nil
}

func (b *Backend) Watch(ctx context.Context) (mail.Cursor, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Call{Op: "watch"})
	if b.WatchErr != nil {
		return "", b.WatchErr
	}
	return mail.Cursor(strconv.Itoa(b.cursor)), nil
}

// Poll returns the next queued batch. The cursor only advances when a batch is returned.
func (b *Backend) Poll(ctx context.Context, since mail.Cursor) (mail.EventBatch, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Call{Op: "poll", Cursor: since})
	if len(b.PollErrs) > 0 {
		err := b.PollErrs[0]
		b.PollErrs = b.PollErrs[1:]
		if err != nil {
			return mail.EventBatch{}, err
		}
	}
	if len(b.events) == 0 {
		return mail.EventBatch{Next: since}, nil
	}
	batch := b.events[0]
	b.events = b.events[1:]
	b.cursor++
	return mail.EventBatch{MessageIDs: batch, Next: mail.Cursor(strconv.Itoa(b.cursor))}, nil
}

func clone(m mail.Message) mail.Message {
	m.Attachments = append([]mail.Attachment(nil), m.Attachments...)
	m.LabelIDs = append([]mail.LabelID(nil), m.LabelIDs...)
	return m
}

var _ mail.Backend = (*Backend)(nil)
