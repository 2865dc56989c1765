// Package commands keeps the slash-command registry. Commands are registered
// at boot and dispatched by name; preview-capable commands additionally serve
// preview item lists.
package commands

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// maxPreviewItems bounds a single preview response.
const maxPreviewItems = 10

var (
	ErrRoomRequired       = errors.New("command invocation requires a room id")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrNoPreview          = errors.New("command does not provide previews")
	ErrInvalidPreviewItem = errors.New("preview item needs id, type and value")
)

// Invocation carries one slash-command call.
type Invocation struct {
	Command   string `json:"command"`
	Params    string `json:"params"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	TriggerID string `json:"trigger_id,omitempty"`
}

// PreviewItem is a single entry of a command preview.
type PreviewItem struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// PreviewResult is the typed item list a preview command returns.
type PreviewResult struct {
	ItemType string        `json:"i18nTitle,omitempty"`
	Items    []PreviewItem `json:"items"`
}

// Command is a registered slash command and its callbacks.
type Command struct {
	Name            string
	Params          string
	Description     string
	Permission      string
	ProvidesPreview bool

	Callback        func(ctx context.Context, inv Invocation) error
	PreviewCallback func(ctx context.Context, inv Invocation) (PreviewResult, error)
	PreviewExecute  func(ctx context.Context, inv Invocation, item PreviewItem) error
}

// Registry is the process-wide command table. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
	logger   *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		commands: make(map[string]Command),
		logger:   log.With(slog.String("service", "commands")),
	}
}

// Register adds or replaces a command under its lowercased name.
func (r *Registry) Register(cmd Command) {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" {
		return
	}
	cmd.Name = name
	r.mu.Lock()
	r.commands[name] = cmd
	r.mu.Unlock()
	r.logger.Debug("command registered", slog.String("command", name))
}

func (r *Registry) get(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[strings.ToLower(strings.TrimSpace(name))]
	return cmd, ok
}

// Lookup returns the registered command for name.
func (r *Registry) Lookup(name string) (Command, bool) {
	return r.get(name)
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	_, ok := r.get(name)
	return ok
}

// List returns every registered command sorted by name, for the command
// listing endpoint.
func (r *Registry) List() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Run executes the command callback. An unknown command or a command without
// a callback is a no-op; callers wanting a hard failure check Exists first.
func (r *Registry) Run(ctx context.Context, name string, inv Invocation) error {
	if strings.TrimSpace(inv.RoomID) == "" {
		return ErrRoomRequired
	}
	cmd, ok := r.get(name)
	if !ok || cmd.Callback == nil {
		return nil
	}
	inv.Command = cmd.Name
	return cmd.Callback(ctx, inv)
}

// Previews returns the command's preview items, capped at ten.
func (r *Registry) Previews(ctx context.Context, name string, inv Invocation) (PreviewResult, error) {
	if strings.TrimSpace(inv.RoomID) == "" {
		return PreviewResult{}, ErrRoomRequired
	}
	cmd, ok := r.get(name)
	if !ok {
		return PreviewResult{}, ErrUnknownCommand
	}
	if !cmd.ProvidesPreview || cmd.PreviewCallback == nil {
		return PreviewResult{}, ErrNoPreview
	}
	inv.Command = cmd.Name
	result, err := cmd.PreviewCallback(ctx, inv)
	if err != nil {
		return PreviewResult{}, err
	}
	if len(result.Items) > maxPreviewItems {
		result.Items = result.Items[:maxPreviewItems]
	}
	return result, nil
}

// ExecutePreview runs the command's preview selection callback.
func (r *Registry) ExecutePreview(ctx context.Context, name string, inv Invocation, item PreviewItem) error {
	if strings.TrimSpace(inv.RoomID) == "" {
		return ErrRoomRequired
	}
	if item.ID == "" || item.Type == "" || item.Value == "" {
		return ErrInvalidPreviewItem
	}
	cmd, ok := r.get(name)
	if !ok {
		return ErrUnknownCommand
	}
	if cmd.PreviewExecute == nil {
		return ErrNoPreview
	}
	inv.Command = cmd.Name
	return cmd.PreviewExecute(ctx, inv, item)
}
