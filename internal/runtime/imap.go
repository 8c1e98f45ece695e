package runtime

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	_ "github.com/emersion/go-message/charset" // decode non-UTF-8 bodies and headers
	gomail "github.com/emersion/go-message/mail"

	"github.com/joshsymonds/mailsort/internal/mail"
)

const imapInbox = "INBOX"

// IMAPOptions describes how to reach and authenticate against an IMAP server.
type IMAPOptions struct {
	Addr               string
	User               string
	Password           string
	StartTLS           bool
	InsecureSkipVerify bool
}

// IMAPBackend exposes an IMAP account as a mail.Backend. Mailboxes play the role of
// labels, message ids are Inbox UIDs, and the event feed is the Inbox UID sequence.
// The connection is shared, so calls are serialized. A connection that fails below the
// protocol level is dropped and redialled on the next call.
type IMAPBackend struct {
	mu   sync.Mutex
	opts IMAPOptions
	dial func(context.Context, IMAPOptions) (*imapclient.Client, error)
	c    *imapclient.Client
	log  *slog.Logger
}

// DialIMAP connects, logs in and selects the Inbox.
func DialIMAP(ctx context.Context, opts IMAPOptions, log *slog.Logger) (*IMAPBackend, error) {
	if log == nil {
		log = slog.Default()
	}
	b := &IMAPBackend{opts: opts, dial: dialIMAP, log: log}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func dialIMAP(ctx context.Context, opts IMAPOptions) (*imapclient.Client, error) {
	host, _, err := net.SplitHostPort(opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("imap addr %q: %w", opts.Addr, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clientOpts := &imapclient.Options{
		TLSConfig: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify, // #nosec G402 opt-in for local bridges
			MinVersion:         tls.VersionTLS12,
		},
	}
	var c *imapclient.Client
	if opts.StartTLS {
		c, err = imapclient.DialStartTLS(opts.Addr, clientOpts)
	} else {
		c, err = imapclient.DialTLS(opts.Addr, clientOpts)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Addr, err)
	}
	if err := c.Login(opts.User, opts.Password).Wait(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("login %s: %w", opts.User, err)
	}
	if _, err := c.Select(imapInbox, nil).Wait(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("select %s: %w", imapInbox, err)
	}
	return c, nil
}

// ready checks ctx and dials when there is no live connection. Callers hold mu.
func (b *IMAPBackend) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.c != nil {
		return nil
	}
	c, err := b.dial(ctx, b.opts)
	if err != nil {
		return err
	}
	b.c = c
	b.log.Info("imap connected", "addr", b.opts.Addr, "user", b.opts.User, "starttls", b.opts.StartTLS)
	return nil
}

// transport drops the connection unless err is a tagged server response, so the next
// call reconnects. It returns err unchanged. Callers hold mu.
func (b *IMAPBackend) transport(err error) error {
	if err == nil || b.c == nil {
		return err
	}
	var resp *imap.Error
	if errors.As(err, &resp) {
		return err
	}
	b.log.Warn("imap connection lost, reconnecting on next call", "error", err)
	_ = b.c.Close()
	b.c = nil
	return err
}

// Close logs out and drops the connection.
func (b *IMAPBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.c == nil {
		return nil
	}
	if err := b.c.Logout().Wait(); err != nil {
		b.log.Debug("imap logout failed", "error", err)
	}
	err := b.c.Close()
	b.c = nil
	return err
}

// ListLabels returns one label per mailbox. The Junk and Trash special-use mailboxes
// are also reachable as SPAM and TRASH so the default label names work unchanged.
func (b *IMAPBackend) ListLabels(ctx context.Context) ([]mail.Label, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(ctx); err != nil {
		return nil, err
	}
	boxes, err := b.c.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", b.transport(err))
	}
	return mailboxLabels(boxes), nil
}

func mailboxLabels(boxes []*imap.ListData) []mail.Label {
	out := make([]mail.Label, 0, len(boxes)+2)
	names := make(map[string]bool, len(boxes))
	aliases := map[string]string{}
	for _, box := range boxes {
		if box == nil || slices.Contains(box.Attrs, imap.MailboxAttrNoSelect) {
			continue
		}
		name := box.Mailbox
		system := strings.EqualFold(name, imapInbox)
		if system {
			// INBOX is case-insensitive; messages always carry the canonical id.
			name = imapInbox
		}
		names[name] = true
		switch {
		case slices.Contains(box.Attrs, imap.MailboxAttrJunk):
			aliases["SPAM"] = box.Mailbox
			system = true
		case slices.Contains(box.Attrs, imap.MailboxAttrTrash):
			aliases["TRASH"] = box.Mailbox
			system = true
		}
		out = append(out, mail.Label{ID: mail.LabelID(name), Name: name, System: system})
	}
	for _, alias := range []string{"SPAM", "TRASH"} {
		target, ok := aliases[alias]
		if !ok || names[alias] {
			continue
		}
		out = append(out, mail.Label{ID: mail.LabelID(target), Name: alias, System: true})
	}
	return out
}

// List pages through the Inbox UIDs in ascending order. The page token is an offset.
func (b *IMAPBackend) List(ctx context.Context, label mail.LabelID, pageToken string, pageSize int) (mail.ListPage, error) {
	if label != imapInbox {
		return mail.ListPage{}, fmt.Errorf("imap: listing %q is not supported", label)
	}
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return mail.ListPage{}, fmt.Errorf("imap: bad page token %q", pageToken)
		}
		offset = n
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(ctx); err != nil {
		return mail.ListPage{}, err
	}
	uids, err := b.search(imap.UIDRange{Start: 1, Stop: 0})
	if err != nil {
		return mail.ListPage{}, err
	}
	if offset >= len(uids) {
		return mail.ListPage{}, nil
	}
	end := len(uids)
	if pageSize > 0 && offset+pageSize < end {
		end = offset + pageSize
	}
	page := mail.ListPage{IDs: make([]mail.MessageID, 0, end-offset)}
	for _, uid := range uids[offset:end] {
		page.IDs = append(page.IDs, uidToID(uid))
	}
	if end < len(uids) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// search returns live (not \Deleted) Inbox UIDs within r, ascending.
func (b *IMAPBackend) search(r imap.UIDRange) ([]imap.UID, error) {
	data, err := b.c.UIDSearch(&imap.SearchCriteria{
		UID:     []imap.UIDSet{{r}},
		NotFlag: []imap.Flag{imap.FlagDeleted},
	}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", b.transport(err))
	}
	uids := data.AllUIDs()
	slices.Sort(uids)
	return uids, nil
}

// Get fetches the full message without setting \Seen, then stores \Seen when asked to.
func (b *IMAPBackend) Get(ctx context.Context, id mail.MessageID, opts mail.GetOptions) (mail.Message, error) {
	uid, err := idToUID(id)
	if err != nil {
		return mail.Message{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(ctx); err != nil {
		return mail.Message{}, err
	}
	flags, raw, err := b.fetch(uid)
	if err != nil {
		return mail.Message{}, err
	}
	msg, err := parseMessage(id, flags, raw)
	if err != nil {
		return mail.Message{}, err
	}
	if opts.MarkAsRead && msg.Unread {
		if err := b.storeFlag(imap.UIDSetNum(uid), imap.FlagSeen); err != nil {
			return mail.Message{}, fmt.Errorf("mark read: %w", err)
		}
	}
	return msg, nil
}

func (b *IMAPBackend) fetch(uid imap.UID) ([]imap.Flag, []byte, error) {
	cmd := b.c.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{{Peek: true}},
	})
	var (
		flags []imap.Flag
		raw   []byte
		found bool
	)
	for msg := cmd.Next(); msg != nil; msg = cmd.Next() {
		found = true
		for item := msg.Next(); item != nil; item = msg.Next() {
			switch item := item.(type) {
			case imapclient.FetchItemDataFlags:
				flags = item.Flags
			case imapclient.FetchItemDataBodySection:
				body, err := io.ReadAll(item.Literal)
				if err != nil {
					_ = cmd.Close()
					return nil, nil, fmt.Errorf("read uid %d: %w", uid, b.transport(err))
				}
				raw = body
			}
		}
	}
	if err := cmd.Close(); err != nil {
		return nil, nil, fmt.Errorf("fetch uid %d: %w", uid, b.transport(err))
	}
	if !found || raw == nil {
		return nil, nil, fmt.Errorf("fetch uid %d: %w", uid, errNoSuchMessage)
	}
	return flags, raw, nil
}

var errNoSuchMessage = errors.New("no such message")

// parseMessage turns a fetched RFC 5322 message into a snapshot. Messages fetched here
// are always Inbox members.
func parseMessage(id mail.MessageID, flags []imap.Flag, raw []byte) (mail.Message, error) {
	msg := mail.Message{
		ID:       id,
		Unread:   !slices.Contains(flags, imap.FlagSeen),
		LabelIDs: []mail.LabelID{imapInbox},
	}
	r, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return mail.Message{}, fmt.Errorf("parse message %s: %w", id, err)
	}
	defer func() { _ = r.Close() }()

	if from, err := r.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = strings.ToLower(from[0].Address)
	} else {
		msg.From = mail.AddressOf(r.Header.Get("From"))
	}
	if subject, err := r.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = r.Header.Get("Subject")
	}

	var html, plain string
	for index := 1; ; index++ {
		part, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return mail.Message{}, fmt.Errorf("parse message %s: %w", id, err)
		}
		switch h := part.Header.(type) {
		case *gomail.AttachmentHeader:
			mediaType, _, _ := h.ContentType()
			filename, _ := h.Filename()
			msg.Attachments = append(msg.Attachments, mail.Attachment{
				MIMEType: mediaType,
				Filename: filename,
				Ref:      strconv.Itoa(index),
			})
		case *gomail.InlineHeader:
			mediaType, _, _ := h.ContentType()
			if mediaType != "text/html" && mediaType != "text/plain" {
				continue
			}
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return mail.Message{}, fmt.Errorf("read part %d of %s: %w", index, id, err)
			}
			if mediaType == "text/html" && html == "" {
				html = string(body)
			} else if mediaType == "text/plain" && plain == "" {
				plain = string(body)
			}
		}
	}
	msg.Body = html
	if msg.Body == "" {
		msg.Body = plain
	}
	return msg, nil
}

// Modify maps label operations onto mailboxes: adding a label copies into that mailbox,
// removing the Inbox flags the messages \Deleted and expunges them by UID. Any other
// removal has no IMAP equivalent.
func (b *IMAPBackend) Modify(ctx context.Context, ids []mail.MessageID, ops mail.ModifyOps) error {
	if ops.Empty() || len(ids) == 0 {
		return nil
	}
	for _, l := range ops.RemoveLabels {
		if l != imapInbox {
			return fmt.Errorf("imap: cannot remove label %q", l)
		}
	}
	set := imap.UIDSet{}
	for _, id := range ids {
		uid, err := idToUID(id)
		if err != nil {
			return err
		}
		set.AddNum(uid)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(ctx); err != nil {
		return err
	}
	if ops.MarkRead {
		if err := b.storeFlag(set, imap.FlagSeen); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
	}
	for _, l := range ops.AddLabels {
		if l == imapInbox {
			continue
		}
		if _, err := b.c.Copy(set, string(l)).Wait(); err != nil {
			return fmt.Errorf("copy to %s: %w", l, b.transport(err))
		}
	}
	if len(ops.RemoveLabels) > 0 {
		if err := b.storeFlag(set, imap.FlagDeleted); err != nil {
			return fmt.Errorf("flag deleted: %w", err)
		}
		if err := b.c.UIDExpunge(set).Close(); err != nil {
			return fmt.Errorf("expunge: %w", b.transport(err))
		}
	}
	return nil
}

func (b *IMAPBackend) storeFlag(set imap.NumSet, flag imap.Flag) error {
	return b.transport(b.c.Store(set, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{flag},
	}, nil).Close())
}

// Watch returns the highest UID the Inbox could hold right now.
func (b *IMAPBackend) Watch(ctx context.Context) (mail.Cursor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(ctx); err != nil {
		return "", err
	}
	data, err := b.c.Select(imapInbox, nil).Wait()
	if err != nil {
		return "", fmt.Errorf("select %s: %w", imapInbox, b.transport(err))
	}
	next := uint32(data.UIDNext)
	if next > 0 {
		next--
	}
	return mail.Cursor(strconv.FormatUint(uint64(next), 10)), nil
}

// Poll returns Inbox UIDs above since. The cursor advances to the highest UID returned.
func (b *IMAPBackend) Poll(ctx context.Context, since mail.Cursor) (mail.EventBatch, error) {
	last, err := strconv.ParseUint(string(since), 10, 32)
	if err != nil {
		return mail.EventBatch{}, fmt.Errorf("parse cursor %q: %w", since, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(ctx); err != nil {
		return mail.EventBatch{}, err
	}
	// NOOP lets the server report new arrivals on the selected mailbox.
	if err := b.c.Noop().Wait(); err != nil {
		return mail.EventBatch{}, fmt.Errorf("noop: %w", b.transport(err))
	}
	uids, err := b.search(imap.UIDRange{Start: imap.UID(last + 1), Stop: 0})
	if err != nil {
		return mail.EventBatch{}, err
	}
	batch := mail.EventBatch{Next: since}
	high := last
	for _, uid := range uids {
		// "n:*" always matches the highest UID, even when it is below n.
		if uint64(uid) <= last {
			continue
		}
		batch.MessageIDs = append(batch.MessageIDs, uidToID(uid))
		if uint64(uid) > high {
			high = uint64(uid)
		}
	}
	if high > last {
		batch.Next = mail.Cursor(strconv.FormatUint(high, 10))
	}
	return batch, nil
}

func uidToID(uid imap.UID) mail.MessageID {
	return mail.MessageID(strconv.FormatUint(uint64(uid), 10))
}

func idToUID(id mail.MessageID) (imap.UID, error) {
	n, err := strconv.ParseUint(string(id), 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("imap: bad message id %q", id)
	}
	return imap.UID(n), nil
}
