package mail

import "context"

// Backend is the narrow mailbox surface required by mailsort.
type Backend interface {
	ListLabels(ctx context.Context) ([]Label, error)
	List(ctx context.Context, label LabelID, pageToken string, pageSize int) (ListPage, error)
	Get(ctx context.Context, id MessageID, opts GetOptions) (Message, error)
	Modify(ctx context.Context, ids []MessageID, ops ModifyOps) error
	// Watch returns the current position of the new-message feed.
	Watch(ctx context.Context) (Cursor, error)
	// Poll returns the messages that arrived after since. An empty batch keeps since.
	Poll(ctx context.Context, since Cursor) (EventBatch, error)
}
