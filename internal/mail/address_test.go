package mail

import (
	"context"
	"errors"
	"testing"
)

func TestAddressOf(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "bare", input: "Shop@Store.com", want: "shop@store.com"},
		{name: "display-name", input: `"LinkedIn" <no-reply@linkedin.com>`, want: "no-reply@linkedin.com"},
		{name: "list", input: "a@x.io, b@y.io", want: "a@x.io"},
		{name: "garbage", input: "<not an address>", want: "not an address"},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if got := AddressOf(tc.input); got != tc.want {
				t.Fatalf("AddressOf(%q) = %q want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestDomainOf(t *testing.T) {
	if got := DomainOf("Facebook <notify@facebookmail.com>"); got != "facebookmail.com" {
		t.Fatalf("unexpected domain %q", got)
	}
	if got := DomainOf("nobody"); got != "" {
		t.Fatalf("expected empty domain, got %q", got)
	}
}

func TestMessageHelpers(t *testing.T) {
	msg := Message{
		LabelIDs:    []LabelID{"INBOX", "UNREAD"},
		Attachments: []Attachment{{MIMEType: "image/png"}, {MIMEType: "Application/PDF"}},
	}
	if !msg.HasLabel("INBOX") || msg.HasLabel("SPAM") {
		t.Fatalf("HasLabel mismatch")
	}
	if !msg.HasAttachmentType("application/pdf") {
		t.Fatalf("expected pdf attachment to be detected")
	}
	if (Message{}).HasAttachmentType("application/pdf") {
		t.Fatalf("expected no pdf on empty message")
	}
}

type countingWaiter struct {
	calls int
	err   error
}

func (w *countingWaiter) Wait(ctx context.Context) error {
	_ = ctx
	w.calls++
	return w.err
}

type nopBackend struct{ Backend }

func (nopBackend) Get(ctx context.Context, id MessageID, opts GetOptions) (Message, error) {
	_ = ctx
	_ = opts
	return Message{ID: id}, nil
}

func TestLimitWaitsBeforeCalls(t *testing.T) {
	w := &countingWaiter{}
	b := Limit(nopBackend{}, w)
	msg, err := b.Get(context.Background(), "m1", GetOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != "m1" || w.calls != 1 {
		t.Fatalf("expected one wait and passthrough, got calls=%d id=%q", w.calls, msg.ID)
	}

	w.err = context.Canceled
	if _, err := b.Get(context.Background(), "m2", GetOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected wait error to surface, got %v", err)
	}
}

func TestLimitNilWaiter(t *testing.T) {
	var b Backend = nopBackend{}
	if Limit(b, nil) != b {
		t.Fatalf("expected nil waiter to return backend unchanged")
	}
}
