// internal/mail/types.go
package mail

import "strings"

type MessageID string
type LabelID string

// Cursor is an opaque position in a backend's new-message event feed.
type Cursor string

// Label is a named tag in the mailbox. Names are unique within a mailbox.
type Label struct {
	ID     LabelID
	Name   string
	System bool
}

// Attachment describes one attachment of a message. Ref is backend specific
// (a Gmail attachment id, an IMAP part path) and is never dereferenced by the pipeline.
type Attachment struct {
	MIMEType string
	Filename string
	Ref      string
}

// Message is an immutable snapshot of a fetched message.
type Message struct {
	ID          MessageID
	From        string // bare, lower-cased sender address
	Subject     string
	Body        string // raw markup; HTML preferred over text/plain
	Attachments []Attachment
	Unread      bool
	LabelIDs    []LabelID
}

// HasLabel reports whether the message carried id when it was fetched.
func (m Message) HasLabel(id LabelID) bool {
	for _, l := range m.LabelIDs {
		if l == id {
			return true
		}
	}
	return false
}

// HasAttachmentType reports whether any attachment's MIME type contains mimeType.
func (m Message) HasAttachmentType(mimeType string) bool {
	mimeType = strings.ToLower(mimeType)
	for _, a := range m.Attachments {
		if strings.Contains(strings.ToLower(a.MIMEType), mimeType) {
			return true
		}
	}
	return false
}

type ModifyOps struct {
	AddLabels    []LabelID
	RemoveLabels []LabelID
	MarkRead     bool
}

// Empty reports whether applying ops would be a no-op.
func (o ModifyOps) Empty() bool {
	return len(o.AddLabels) == 0 && len(o.RemoveLabels) == 0 && !o.MarkRead
}

type GetOptions struct {
	MarkAsRead bool
}

type ListPage struct {
	IDs           []MessageID
	NextPageToken string
}

// EventBatch is one poll result: new message references in backend order and the
// cursor to resume from.
type EventBatch struct {
	MessageIDs []MessageID
	Next       Cursor
}
