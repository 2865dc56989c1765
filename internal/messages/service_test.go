package messages

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/parlorchat/parlor/internal/config"
)

type fakeMessageStore struct {
	messages map[string]Message
	replies  map[string][]Message
	created  []Message
	marked   []string
	markErr  error
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		messages: map[string]Message{},
		replies:  map[string][]Message{},
	}
}

func (f *fakeMessageStore) Message(_ context.Context, id string) (Message, bool, error) {
	msg, ok := f.messages[id]
	return msg, ok, nil
}

func (f *fakeMessageStore) ThreadReplies(_ context.Context, threadID string, limit, skip int) ([]Message, error) {
	all := f.replies[threadID]
	if skip >= len(all) {
		return []Message{}, nil
	}
	all = all[skip:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeMessageStore) CountThreadReplies(_ context.Context, threadID string) (int, error) {
	return len(f.replies[threadID]), nil
}

func (f *fakeMessageStore) CreateMessage(_ context.Context, msg Message) (Message, error) {
	msg.ID = "m-created"
	f.created = append(f.created, msg)
	return msg, nil
}

func (f *fakeMessageStore) MarkThreadRead(_ context.Context, roomID, userID, threadID string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, roomID+"/"+userID+"/"+threadID)
	return nil
}

type fakeAccess struct {
	allowed bool
}

func (f *fakeAccess) CanAccessRoom(_ context.Context, _, _ string) (bool, error) {
	return f.allowed, nil
}

func testMessagesService(store *fakeMessageStore, allowed, threadsEnabled bool) *Service {
	cfg := config.AccountsConfig{ThreadsEnabled: threadsEnabled}
	return NewService(slog.New(slog.DiscardHandler), store, &fakeAccess{allowed: allowed}, cfg)
}

func seedThread(store *fakeMessageStore, replyCount int) Message {
	head := Message{ID: "t1", RoomID: "room-1", Username: "alice", Body: "head", ThreadCount: replyCount}
	store.messages["t1"] = head
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := replyCount; i >= 1; i-- {
		store.replies["t1"] = append(store.replies["t1"], Message{
			ID:        "r" + string(rune('0'+i)),
			RoomID:    "room-1",
			ThreadID:  "t1",
			Body:      "reply",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return head
}

func TestGetThreadMessages(t *testing.T) {
	store := newFakeMessageStore()
	seedThread(store, 3)
	svc := testMessagesService(store, true, true)

	page, err := svc.GetThreadMessages(context.Background(), "u1", "t1", 50, 0)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if len(page.Messages) != 4 {
		t.Fatalf("expected head plus 3 replies, got %d", len(page.Messages))
	}
	if page.Messages[0].ID != "t1" {
		t.Fatalf("head must come first, got %s", page.Messages[0].ID)
	}
	if page.Messages[1].ID != "r3" || page.Messages[3].ID != "r1" {
		t.Fatalf("replies must be newest first: %s .. %s", page.Messages[1].ID, page.Messages[3].ID)
	}
	if page.Total != 4 {
		t.Fatalf("expected total 4, got %d", page.Total)
	}
	if len(store.marked) != 1 || store.marked[0] != "room-1/u1/t1" {
		t.Fatalf("thread not marked read: %v", store.marked)
	}
}

func TestGetThreadMessagesLimitAndSkip(t *testing.T) {
	store := newFakeMessageStore()
	seedThread(store, 3)
	svc := testMessagesService(store, true, true)

	page, err := svc.GetThreadMessages(context.Background(), "u1", "t1", 1, 1)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("expected head plus 1 reply, got %d", len(page.Messages))
	}
	if page.Messages[1].ID != "r2" {
		t.Fatalf("skip must drop the newest reply, got %s", page.Messages[1].ID)
	}
}

func TestGetThreadMessagesDisabled(t *testing.T) {
	svc := testMessagesService(newFakeMessageStore(), true, false)
	if _, err := svc.GetThreadMessages(context.Background(), "u1", "t1", 10, 0); !errors.Is(err, ErrThreadsDisabled) {
		t.Fatalf("expected ErrThreadsDisabled, got %v", err)
	}
}

func TestGetThreadMessagesLimitTooLarge(t *testing.T) {
	svc := testMessagesService(newFakeMessageStore(), true, true)
	if _, err := svc.GetThreadMessages(context.Background(), "u1", "t1", 101, 0); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestGetThreadMessagesMissingHead(t *testing.T) {
	store := newFakeMessageStore()
	svc := testMessagesService(store, true, true)

	page, err := svc.GetThreadMessages(context.Background(), "u1", "missing", 10, 0)
	if err != nil {
		t.Fatalf("missing head: %v", err)
	}
	if len(page.Messages) != 0 {
		t.Fatalf("expected empty page, got %d messages", len(page.Messages))
	}
	if len(store.marked) != 0 {
		t.Fatalf("missing thread must not be marked read: %v", store.marked)
	}
}

func TestGetThreadMessagesNoReplies(t *testing.T) {
	store := newFakeMessageStore()
	store.messages["t1"] = Message{ID: "t1", RoomID: "room-1", Body: "lonely"}
	svc := testMessagesService(store, true, true)

	page, err := svc.GetThreadMessages(context.Background(), "u1", "t1", 10, 0)
	if err != nil {
		t.Fatalf("no replies: %v", err)
	}
	if len(page.Messages) != 0 {
		t.Fatalf("head without replies must yield empty page, got %d", len(page.Messages))
	}
}

func TestGetThreadMessagesRoomForbidden(t *testing.T) {
	store := newFakeMessageStore()
	seedThread(store, 1)
	svc := testMessagesService(store, false, true)

	if _, err := svc.GetThreadMessages(context.Background(), "u1", "t1", 10, 0); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestGetThreadMessagesMarkReadFailureIsNotFatal(t *testing.T) {
	store := newFakeMessageStore()
	seedThread(store, 1)
	store.markErr = errors.New("subscription gone")
	svc := testMessagesService(store, true, true)

	page, err := svc.GetThreadMessages(context.Background(), "u1", "t1", 10, 0)
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("expected head plus 1 reply, got %d", len(page.Messages))
	}
}

func TestCreateSystemMessage(t *testing.T) {
	store := newFakeMessageStore()
	svc := testMessagesService(store, true, true)

	err := svc.CreateSystemMessage(context.Background(), "room-1", "u1", "alice", "ul", "alice")
	if err != nil {
		t.Fatalf("create system message: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one message, got %d", len(store.created))
	}
	msg := store.created[0]
	if msg.RoomID != "room-1" || msg.SystemType != "ul" || msg.Username != "alice" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}
