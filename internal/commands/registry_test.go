package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.DiscardHandler))
}

func TestListSortedByName(t *testing.T) {
	reg := newTestRegistry()
	for _, name := range []string{"mute", "kick", "leave"} {
		reg.Register(Command{Name: name})
	}

	listed := reg.List()
	want := []string{"kick", "leave", "mute"}
	if len(listed) != len(want) {
		t.Fatalf("expected %d commands, got %d", len(want), len(listed))
	}
	for i, cmd := range listed {
		if cmd.Name != want[i] {
			t.Fatalf("position %d: got %q, want %q", i, cmd.Name, want[i])
		}
	}
}

func TestRegisterAndRun(t *testing.T) {
	reg := newTestRegistry()
	var got Invocation
	reg.Register(Command{
		Name: "Echo",
		Callback: func(_ context.Context, inv Invocation) error {
			got = inv
			return nil
		},
	})

	if !reg.Exists("echo") || !reg.Exists("ECHO") {
		t.Fatal("lookup must be case-insensitive")
	}

	inv := Invocation{Params: "hello", RoomID: "room-1", UserID: "u1"}
	if err := reg.Run(context.Background(), "ECHO", inv); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.Command != "echo" || got.Params != "hello" {
		t.Fatalf("unexpected invocation: %+v", got)
	}
}

func TestRunWithoutRoom(t *testing.T) {
	reg := newTestRegistry()
	reg.Register(Command{Name: "echo", Callback: func(context.Context, Invocation) error { return nil }})

	err := reg.Run(context.Background(), "echo", Invocation{Params: "hello"})
	if !errors.Is(err, ErrRoomRequired) {
		t.Fatalf("expected ErrRoomRequired, got %v", err)
	}
}

func TestRunUnknownCommandIsNoop(t *testing.T) {
	reg := newTestRegistry()
	if err := reg.Run(context.Background(), "missing", Invocation{RoomID: "room-1"}); err != nil {
		t.Fatalf("unknown command must be silent: %v", err)
	}
}

func TestRunCommandWithoutCallbackIsNoop(t *testing.T) {
	reg := newTestRegistry()
	reg.Register(Command{Name: "stub"})
	if err := reg.Run(context.Background(), "stub", Invocation{RoomID: "room-1"}); err != nil {
		t.Fatalf("callback-less command must be silent: %v", err)
	}
}

func TestRegisterReplaces(t *testing.T) {
	reg := newTestRegistry()
	calls := 0
	reg.Register(Command{Name: "dup", Callback: func(context.Context, Invocation) error {
		t.Fatal("old callback must be replaced")
		return nil
	}})
	reg.Register(Command{Name: "dup", Callback: func(context.Context, Invocation) error {
		calls++
		return nil
	}})

	if err := reg.Run(context.Background(), "dup", Invocation{RoomID: "room-1"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected new callback once, got %d", calls)
	}
	if len(reg.List()) != 1 {
		t.Fatalf("expected single registration, got %d", len(reg.List()))
	}
}

func TestPreviewsCapped(t *testing.T) {
	reg := newTestRegistry()
	reg.Register(Command{
		Name:            "giphy",
		ProvidesPreview: true,
		PreviewCallback: func(context.Context, Invocation) (PreviewResult, error) {
			items := make([]PreviewItem, 25)
			for i := range items {
				items[i] = PreviewItem{ID: fmt.Sprintf("%d", i), Type: "image", Value: "u"}
			}
			return PreviewResult{Items: items}, nil
		},
	})

	result, err := reg.Previews(context.Background(), "giphy", Invocation{RoomID: "room-1"})
	if err != nil {
		t.Fatalf("previews: %v", err)
	}
	if len(result.Items) != 10 {
		t.Fatalf("expected 10 items, got %d", len(result.Items))
	}
}

func TestPreviewsUnknownCommand(t *testing.T) {
	reg := newTestRegistry()
	if _, err := reg.Previews(context.Background(), "missing", Invocation{RoomID: "room-1"}); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestPreviewsWithoutPreviewSupport(t *testing.T) {
	reg := newTestRegistry()
	reg.Register(Command{Name: "echo"})
	if _, err := reg.Previews(context.Background(), "echo", Invocation{RoomID: "room-1"}); !errors.Is(err, ErrNoPreview) {
		t.Fatalf("expected ErrNoPreview, got %v", err)
	}
}

func TestExecutePreview(t *testing.T) {
	reg := newTestRegistry()
	var picked PreviewItem
	reg.Register(Command{
		Name:            "giphy",
		ProvidesPreview: true,
		PreviewExecute: func(_ context.Context, _ Invocation, item PreviewItem) error {
			picked = item
			return nil
		},
	})

	item := PreviewItem{ID: "1", Type: "image", Value: "https://example.com/cat.gif"}
	if err := reg.ExecutePreview(context.Background(), "giphy", Invocation{RoomID: "room-1"}, item); err != nil {
		t.Fatalf("execute preview: %v", err)
	}
	if picked != item {
		t.Fatalf("unexpected item: %+v", picked)
	}
}

func TestExecutePreviewValidation(t *testing.T) {
	reg := newTestRegistry()
	reg.Register(Command{Name: "giphy", ProvidesPreview: true,
		PreviewExecute: func(context.Context, Invocation, PreviewItem) error { return nil }})

	bad := []PreviewItem{
		{Type: "image", Value: "v"},
		{ID: "1", Value: "v"},
		{ID: "1", Type: "image"},
	}
	for _, item := range bad {
		err := reg.ExecutePreview(context.Background(), "giphy", Invocation{RoomID: "room-1"}, item)
		if !errors.Is(err, ErrInvalidPreviewItem) {
			t.Fatalf("item %+v: expected ErrInvalidPreviewItem, got %v", item, err)
		}
	}
}
