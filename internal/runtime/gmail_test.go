package runtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/joshsymonds/mailsort/internal/mail"
)

func b64(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

func TestConvertMessagePrefersHTML(t *testing.T) {
	raw := &gmail.Message{
		Id:       "m1",
		LabelIds: []string{"INBOX", "UNREAD"},
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: `"Shop" <Orders@Shop.DK>`},
				{Name: "Subject", Value: "Din kvittering"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("plain body")}},
						{MimeType: "text/html; charset=utf-8", Body: &gmail.MessagePartBody{Data: b64("<p>html body</p>")}},
					},
				},
				{
					MimeType: "application/pdf",
					Filename: "receipt.pdf",
					Body:     &gmail.MessagePartBody{AttachmentId: "att-1"},
				},
			},
		},
	}
	msg := convertMessage(raw)
	if msg.ID != "m1" || msg.From != "orders@shop.dk" || msg.Subject != "Din kvittering" {
		t.Fatalf("headers mismatch: %+v", msg)
	}
	if msg.Body != "<p>html body</p>" {
		t.Fatalf("expected html body, got %q", msg.Body)
	}
	if !msg.Unread || !msg.HasLabel("INBOX") {
		t.Fatalf("labels mismatch: %+v", msg.LabelIDs)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Ref != "att-1" || !msg.HasAttachmentType("application/pdf") {
		t.Fatalf("attachments mismatch: %+v", msg.Attachments)
	}
}

func TestConvertMessageOutOfLineHTMLIsBody(t *testing.T) {
	raw := &gmail.Message{
		Id: "m3",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("plain body")}},
				{MimeType: "text/html", Body: &gmail.MessagePartBody{AttachmentId: "body-1", Size: 120000}},
			},
		},
	}
	msg := convertMessage(raw)
	if len(msg.Attachments) != 0 {
		t.Fatalf("unnamed text part must not be an attachment: %+v", msg.Attachments)
	}
	if msg.Body != "plain body" {
		t.Fatalf("expected plain fallback before the html is fetched, got %q", msg.Body)
	}
}

func TestConvertMessagePlainOnly(t *testing.T) {
	raw := &gmail.Message{
		Id: "m2",
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Body:     &gmail.MessagePartBody{Data: strings.TrimRight(b64("no padding here!"), "=")},
		},
	}
	msg := convertMessage(raw)
	if msg.Body != "no padding here!" {
		t.Fatalf("unexpected body %q", msg.Body)
	}
	if msg.Unread {
		t.Fatalf("message without UNREAD label must be read")
	}
}

// fakeGmail serves the handful of endpoints the backend calls.
type fakeGmail struct {
	batchModify []gmail.BatchModifyMessagesRequest
	historyCode int
	fetched     []string
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/users/me/labels"):
		_ = json.NewEncoder(w).Encode(gmail.ListLabelsResponse{Labels: []*gmail.Label{
			{Id: "INBOX", Name: "INBOX", Type: "system"},
			{Id: "Label_1", Name: "Receipts", Type: "user"},
		}})
	case strings.HasSuffix(r.URL.Path, "/users/me/messages/batchModify"):
		var req gmail.BatchModifyMessagesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.batchModify = append(f.batchModify, req)
		w.WriteHeader(http.StatusNoContent)
	case strings.HasSuffix(r.URL.Path, "/users/me/messages/m4/attachments/body-1"):
		f.fetched = append(f.fetched, "body-1")
		_ = json.NewEncoder(w).Encode(gmail.MessagePartBody{Data: b64("<p>big html</p>")})
	case strings.HasSuffix(r.URL.Path, "/users/me/messages/m4"):
		_ = json.NewEncoder(w).Encode(gmail.Message{
			Id:       "m4",
			LabelIds: []string{"INBOX"},
			Payload: &gmail.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{AttachmentId: "body-1"}},
					{MimeType: "application/pdf", Filename: "faktura.pdf", Body: &gmail.MessagePartBody{AttachmentId: "att-2"}},
				},
			},
		})
	case strings.HasSuffix(r.URL.Path, "/users/me/profile"):
		_ = json.NewEncoder(w).Encode(gmail.Profile{EmailAddress: "me@example.com", HistoryId: 900})
	case strings.HasSuffix(r.URL.Path, "/users/me/history"):
		if f.historyCode != 0 {
			w.WriteHeader(f.historyCode)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
			return
		}
		if r.URL.Query().Get("startHistoryId") != "100" || r.URL.Query().Get("labelId") != "INBOX" {
			http.Error(w, "bad query "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(gmail.ListHistoryResponse{
			HistoryId: 120,
			History: []*gmail.History{
				{MessagesAdded: []*gmail.HistoryMessageAdded{{Message: &gmail.Message{Id: "a"}}}},
				{MessagesAdded: []*gmail.HistoryMessageAdded{{Message: &gmail.Message{Id: "b"}}, {Message: &gmail.Message{Id: "a"}}}},
			},
		})
	default:
		http.NotFound(w, r)
	}
}

func newFakeBackend(t *testing.T, f *fakeGmail) mail.Backend {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewGmailBackend(svc)
}

func TestGmailBackendLabels(t *testing.T) {
	b := newFakeBackend(t, &fakeGmail{})
	labels, err := b.ListLabels(context.Background())
	if err != nil {
		t.Fatalf("list labels: %v", err)
	}
	if len(labels) != 2 || !labels[0].System || labels[1].System || labels[1].ID != "Label_1" {
		t.Fatalf("labels mismatch: %+v", labels)
	}
}

func TestGmailBackendModifyMarkRead(t *testing.T) {
	f := &fakeGmail{}
	b := newFakeBackend(t, f)
	err := b.Modify(context.Background(), []mail.MessageID{"m1"}, mail.ModifyOps{
		AddLabels:    []mail.LabelID{"Label_1"},
		RemoveLabels: []mail.LabelID{"INBOX"},
		MarkRead:     true,
	})
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if len(f.batchModify) != 1 {
		t.Fatalf("expected one batch, got %d", len(f.batchModify))
	}
	req := f.batchModify[0]
	if strings.Join(req.AddLabelIds, ",") != "Label_1" || strings.Join(req.RemoveLabelIds, ",") != "INBOX,UNREAD" {
		t.Fatalf("request mismatch: %+v", req)
	}

	if err := b.Modify(context.Background(), []mail.MessageID{"m1"}, mail.ModifyOps{}); err != nil {
		t.Fatalf("empty modify: %v", err)
	}
	if len(f.batchModify) != 1 {
		t.Fatalf("empty ops must not call the API")
	}
}

func TestGmailBackendGetFetchesOutOfLineBody(t *testing.T) {
	f := &fakeGmail{}
	b := newFakeBackend(t, f)
	msg, err := b.Get(context.Background(), "m4", mail.GetOptions{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if msg.Body != "<p>big html</p>" {
		t.Fatalf("expected fetched html body, got %q", msg.Body)
	}
	if len(f.fetched) != 1 {
		t.Fatalf("expected the html body to be fetched once, got %v", f.fetched)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Filename != "faktura.pdf" {
		t.Fatalf("attachments mismatch: %+v", msg.Attachments)
	}
}

func TestGmailBackendPoll(t *testing.T) {
	b := newFakeBackend(t, &fakeGmail{})
	cursor, err := b.Watch(context.Background())
	if err != nil || cursor != "900" {
		t.Fatalf("watch: %q %v", cursor, err)
	}
	batch, err := b.Poll(context.Background(), "100")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(batch.MessageIDs) != 2 || batch.MessageIDs[0] != "a" || batch.MessageIDs[1] != "b" {
		t.Fatalf("ids mismatch: %+v", batch.MessageIDs)
	}
	if batch.Next != "120" {
		t.Fatalf("cursor mismatch: %q", batch.Next)
	}
}

func TestGmailBackendPollExpiredCursor(t *testing.T) {
	b := newFakeBackend(t, &fakeGmail{historyCode: http.StatusNotFound})
	batch, err := b.Poll(context.Background(), "100")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(batch.MessageIDs) != 0 || batch.Next != "900" {
		t.Fatalf("expected reset to current history id, got %+v", batch)
	}
}
