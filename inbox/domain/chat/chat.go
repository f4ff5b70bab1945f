package chat

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("chat not found")
	// ErrDuplicate is returned by Create when the wamid is already stored.
	ErrDuplicate = errors.New("chat with this wamid already exists")
)

// Chat is one message in a thread. Wamid is nil for local-only messages.
type Chat struct {
	ID            string    `json:"id"`
	ThreadID      string    `json:"thread_id"`
	Wamid         *string   `json:"wamid,omitempty"`
	From          string    `json:"from"`
	PhoneNumberID string    `json:"phone_number_id"`
	MediaID       string    `json:"media_id,omitempty"`
	MediaType     string    `json:"media_type,omitempty"`
	MediaPath     string    `json:"media_path,omitempty"`
	Message       string    `json:"message"`
	Unread        bool      `json:"unread"`
	ReplyTo       string    `json:"reply_to,omitempty"`
	RepliedBy     string    `json:"replied_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Store interface {
	Init(ctx context.Context) error

	Create(ctx context.Context, c *Chat) error
	FindByWamid(ctx context.Context, wamid string) (*Chat, error)
	ListByThread(ctx context.Context, threadID string, limit int) ([]Chat, error)
	// MarkRead flips unread to false and reports whether a row changed.
	MarkRead(ctx context.Context, id string) (bool, error)
	// MarkReadUpTo marks every unread chat of the thread created at or before until.
	MarkReadUpTo(ctx context.Context, threadID string, until time.Time) (int64, error)
}
