package messages

import (
	"context"
	"errors"
	"time"
)

// maxThreadPageSize bounds a single thread page.
const maxThreadPageSize = 100

var (
	ErrThreadsDisabled = errors.New("threads are disabled")
	ErrNotAllowed      = errors.New("not allowed")
)

// Message is a stored room message. System messages carry a SystemType and
// thread heads a positive ThreadCount.
type Message struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Body        string    `json:"body,omitempty"`
	SystemType  string    `json:"system_type,omitempty"`
	ThreadID    string    `json:"thread_id,omitempty"`
	ThreadCount int       `json:"thread_count,omitempty"`
	Hidden      bool      `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// ThreadPage is the thread head followed by a slice of its replies.
type ThreadPage struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}

// Store is the persistence surface of the messages service.
type Store interface {
	Message(ctx context.Context, id string) (Message, bool, error)
	// ThreadReplies returns visible replies of threadID sorted newest first.
	ThreadReplies(ctx context.Context, threadID string, limit, skip int) ([]Message, error)
	CountThreadReplies(ctx context.Context, threadID string) (int, error)
	CreateMessage(ctx context.Context, msg Message) (Message, error)
	// MarkThreadRead clears threadID from the user's unread threads.
	MarkThreadRead(ctx context.Context, roomID, userID, threadID string) error
}

// RoomAccess gates thread reads; implemented by the permissions service.
type RoomAccess interface {
	CanAccessRoom(ctx context.Context, userID, roomID string) (bool, error)
}
