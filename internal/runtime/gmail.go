// internal/runtime/gmail.go adapts *gmail.Service to mail.Backend
package runtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/joshsymonds/mailsort/internal/mail"
)

const (
	gmailUser      = "me"
	gmailInbox     = "INBOX"
	gmailUnread    = "UNREAD"
	gmailBatchSize = 1000
)

type gmailBackend struct{ svc *gmail.Service }

func NewGmailBackend(svc *gmail.Service) mail.Backend { return &gmailBackend{svc} }

func (g *gmailBackend) ListLabels(ctx context.Context) ([]mail.Label, error) {
	res, err := g.svc.Users.Labels.List(gmailUser).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make([]mail.Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		out = append(out, mail.Label{ID: mail.LabelID(l.Id), Name: l.Name, System: l.Type == "system"})
	}
	return out, nil
}

func (g *gmailBackend) List(ctx context.Context, label mail.LabelID, pageToken string, pageSize int) (mail.ListPage, error) {
	call := g.svc.Users.Messages.List(gmailUser).LabelIds(string(label)).MaxResults(int64(pageSize))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return mail.ListPage{}, err
	}
	ids := make([]mail.MessageID, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, mail.MessageID(m.Id))
	}
	return mail.ListPage{IDs: ids, NextPageToken: res.NextPageToken}, nil
}

func (g *gmailBackend) Get(ctx context.Context, id mail.MessageID, opts mail.GetOptions) (mail.Message, error) {
	raw, err := g.svc.Users.Messages.Get(gmailUser, string(id)).Format("full").Context(ctx).Do()
	if err != nil {
		return mail.Message{}, err
	}
	if err := g.fetchBodies(ctx, raw); err != nil {
		return mail.Message{}, err
	}
	msg := convertMessage(raw)
	if opts.MarkAsRead && msg.Unread {
		if err := g.Modify(ctx, []mail.MessageID{id}, mail.ModifyOps{MarkRead: true}); err != nil {
			return mail.Message{}, fmt.Errorf("mark read: %w", err)
		}
	}
	return msg, nil
}

func (g *gmailBackend) Modify(ctx context.Context, ids []mail.MessageID, ops mail.ModifyOps) error {
	if ops.Empty() || len(ids) == 0 {
		return nil
	}
	remove := toStringsL(ops.RemoveLabels)
	if ops.MarkRead {
		remove = append(remove, gmailUnread)
	}
	for i := 0; i < len(ids); i += gmailBatchSize {
		j := i + gmailBatchSize
		if j > len(ids) {
			j = len(ids)
		}
		req := &gmail.BatchModifyMessagesRequest{
			Ids:            toStrings(ids[i:j]),
			AddLabelIds:    toStringsL(ops.AddLabels),
			RemoveLabelIds: remove,
		}
		if err := g.svc.Users.Messages.BatchModify(gmailUser, req).Context(ctx).Do(); err != nil {
			return err
		}
	}
	return nil
}

// Watch returns the mailbox's current history id.
func (g *gmailBackend) Watch(ctx context.Context) (mail.Cursor, error) {
	prof, err := g.svc.Users.GetProfile(gmailUser).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return mail.Cursor(strconv.FormatUint(prof.HistoryId, 10)), nil
}

// Poll lists messages added to the Inbox after since. Gmail expires old history ids;
// an expired cursor is replaced with the current one and yields an empty batch.
func (g *gmailBackend) Poll(ctx context.Context, since mail.Cursor) (mail.EventBatch, error) {
	start, err := strconv.ParseUint(string(since), 10, 64)
	if err != nil {
		return mail.EventBatch{}, fmt.Errorf("parse cursor %q: %w", since, err)
	}
	var (
		ids  []mail.MessageID
		seen = map[string]bool{}
		next = start
	)
	err = g.svc.Users.History.List(gmailUser).
		StartHistoryId(start).
		HistoryTypes("messageAdded").
		LabelId(gmailInbox).
		Pages(ctx, func(res *gmail.ListHistoryResponse) error {
			for _, h := range res.History {
				for _, added := range h.MessagesAdded {
					if added.Message == nil || seen[added.Message.Id] {
						continue
					}
					seen[added.Message.Id] = true
					ids = append(ids, mail.MessageID(added.Message.Id))
				}
			}
			if res.HistoryId > next {
				next = res.HistoryId
			}
			return nil
		})
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			fresh, werr := g.Watch(ctx)
			if werr != nil {
				return mail.EventBatch{}, fmt.Errorf("reset expired cursor: %w", werr)
			}
			return mail.EventBatch{Next: fresh}, nil
		}
		return mail.EventBatch{}, err
	}
	return mail.EventBatch{MessageIDs: ids, Next: mail.Cursor(strconv.FormatUint(next, 10))}, nil
}

// fetchBodies loads text parts that Gmail stored out of line, usually large HTML bodies,
// so convertMessage sees their data.
func (g *gmailBackend) fetchBodies(ctx context.Context, raw *gmail.Message) error {
	var pending []*gmail.MessagePart
	walkParts(raw.Payload, func(p *gmail.MessagePart) {
		if isOutOfLineBody(p) {
			pending = append(pending, p)
		}
	})
	for _, p := range pending {
		body, err := g.svc.Users.Messages.Attachments.Get(gmailUser, raw.Id, p.Body.AttachmentId).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("fetch %s body: %w", p.MimeType, err)
		}
		p.Body.Data = body.Data
	}
	return nil
}

func isOutOfLineBody(p *gmail.MessagePart) bool {
	return p.Filename == "" && strings.HasPrefix(p.MimeType, "text/") &&
		p.Body != nil && p.Body.AttachmentId != "" && p.Body.Data == ""
}

// isAttachment reports named parts and unnamed non-text parts stored out of line.
func isAttachment(p *gmail.MessagePart) bool {
	if p.Filename != "" {
		return true
	}
	return p.Body != nil && p.Body.AttachmentId != "" && !strings.HasPrefix(p.MimeType, "text/")
}

func convertMessage(raw *gmail.Message) mail.Message {
	msg := mail.Message{
		ID:       mail.MessageID(raw.Id),
		LabelIDs: toLabelIDs(raw.LabelIds),
	}
	msg.Unread = msg.HasLabel(gmailUnread)
	if raw.Payload == nil {
		return msg
	}
	for _, h := range raw.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = mail.AddressOf(h.Value)
		case "subject":
			msg.Subject = h.Value
		}
	}
	var html, plain string
	walkParts(raw.Payload, func(p *gmail.MessagePart) {
		if isAttachment(p) {
			a := mail.Attachment{MIMEType: p.MimeType, Filename: p.Filename}
			if p.Body != nil {
				a.Ref = p.Body.AttachmentId
			}
			msg.Attachments = append(msg.Attachments, a)
			return
		}
		if p.Body == nil || p.Body.Data == "" {
			return
		}
		switch {
		case strings.HasPrefix(p.MimeType, "text/html") && html == "":
			html = decodeBody(p.Body.Data)
		case strings.HasPrefix(p.MimeType, "text/plain") && plain == "":
			plain = decodeBody(p.Body.Data)
		}
	})
	msg.Body = html
	if msg.Body == "" {
		msg.Body = plain
	}
	return msg
}

func walkParts(p *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if p == nil {
		return
	}
	if len(p.Parts) == 0 {
		fn(p)
		return
	}
	for _, child := range p.Parts {
		walkParts(child, fn)
	}
}

// decodeBody accepts both padded and unpadded base64url.
func decodeBody(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(b)
	}
	return ""
}

func toStrings(ids []mail.MessageID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

func toStringsL(ids []mail.LabelID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

func toLabelIDs(ids []string) []mail.LabelID {
	out := make([]mail.LabelID, 0, len(ids))
	for _, id := range ids {
		out = append(out, mail.LabelID(id))
	}
	return out
}
