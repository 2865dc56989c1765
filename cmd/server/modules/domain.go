package modules

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/parlorchat/parlor/internal/commands"
	"github.com/parlorchat/parlor/internal/config"
	"github.com/parlorchat/parlor/internal/directory"
	"github.com/parlorchat/parlor/internal/mailer"
	"github.com/parlorchat/parlor/internal/messages"
	"github.com/parlorchat/parlor/internal/permissions"
	"github.com/parlorchat/parlor/internal/queue"
	"github.com/parlorchat/parlor/internal/rooms"
	"github.com/parlorchat/parlor/internal/spotlight"
	"github.com/parlorchat/parlor/internal/users"
	"github.com/parlorchat/parlor/internal/voip"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		providePermissions,
		provideRoomStore,
		provideRoomSource,
		provideAggregator,
		provideMessages,
		provideRooms,
		provideUserStore,
		provideMailer,
		provideUsers,
		provideVoip,
		provideRegistry,
		provideQueueMonitor,
	),
)

func providePermissions(log *slog.Logger, pool *pgxpool.Pool) *permissions.Service {
	return permissions.NewService(log, permissions.NewPgStore(pool))
}

func provideRoomStore(log *slog.Logger, pool *pgxpool.Pool) *rooms.PgStore {
	return rooms.NewPgStore(log, pool)
}

func provideRoomSource(store *rooms.PgStore) *rooms.SpotlightSource {
	return rooms.NewSpotlightSource(store)
}

func provideAggregator(log *slog.Logger, pool *pgxpool.Pool, source *rooms.SpotlightSource, perms *permissions.Service) *spotlight.Aggregator {
	return spotlight.NewAggregator(log, directory.NewStore(log, pool), source, perms)
}

func provideMessages(log *slog.Logger, pool *pgxpool.Pool, source *rooms.SpotlightSource, perms *permissions.Service, cfg config.Config) *messages.Service {
	gate := permissions.NewRoomGate(perms, source)
	return messages.NewService(log, messages.NewPgStore(log, pool), gate, cfg.Accounts)
}

func provideRooms(log *slog.Logger, store *rooms.PgStore, perms *permissions.Service, messenger *messages.Service) *rooms.Service {
	return rooms.NewService(log, store, perms, messenger)
}

func provideUserStore(log *slog.Logger, pool *pgxpool.Pool) *users.PgStore {
	return users.NewPgStore(log, pool)
}

func provideMailer(log *slog.Logger, cfg config.Config) *mailer.SMTPMailer {
	return mailer.New(log, cfg.SMTP)
}

func provideUsers(log *slog.Logger, store *users.PgStore, perms *permissions.Service, smtp *mailer.SMTPMailer, cfg config.Config) *users.Service {
	return users.NewService(log, store, perms, smtp, cfg.Accounts)
}

func provideVoip(log *slog.Logger, store *users.PgStore, perms *permissions.Service, cfg config.Config) *voip.Service {
	connector := voip.NewHTTPConnector(cfg.VoIP.ConnectorURL)
	return voip.NewService(log, connector, store, perms, cfg.VoIP)
}

// provideRegistry registers the built-in room commands.
func provideRegistry(log *slog.Logger, roomService *rooms.Service) *commands.Registry {
	registry := commands.NewRegistry(log)
	registry.Register(commands.Command{
		Name:        "leave",
		Description: "Leave the current channel",
		Callback: func(ctx context.Context, inv commands.Invocation) error {
			return roomService.Leave(ctx, inv.RoomID, inv.UserID)
		},
	})
	registry.Register(commands.Command{
		Name:        "mute",
		Params:      "@username",
		Description: "Mute a user in the current channel",
		Permission:  permissions.MuteUser,
		Callback: func(ctx context.Context, inv commands.Invocation) error {
			return roomService.Mute(ctx, inv.RoomID, inv.UserID, trimMention(inv.Params))
		},
	})
	registry.Register(commands.Command{
		Name:        "unmute",
		Params:      "@username",
		Description: "Unmute a user in the current channel",
		Permission:  permissions.MuteUser,
		Callback: func(ctx context.Context, inv commands.Invocation) error {
			return roomService.Unmute(ctx, inv.RoomID, inv.UserID, trimMention(inv.Params))
		},
	})
	registry.Register(commands.Command{
		Name:        "kick",
		Params:      "@username",
		Description: "Remove a user from the current channel",
		Permission:  permissions.RemoveUser,
		Callback: func(ctx context.Context, inv commands.Invocation) error {
			return roomService.Remove(ctx, inv.RoomID, inv.UserID, trimMention(inv.Params))
		},
	})
	return registry
}

func trimMention(params string) string {
	return strings.TrimLeft(strings.TrimSpace(params), "@")
}

func provideQueueMonitor(log *slog.Logger, pool *pgxpool.Pool, roomService *rooms.Service, userStore *users.PgStore, cfg config.Config) *queue.Monitor {
	return queue.NewMonitor(log, queue.NewPgStore(log, pool), roomService, userStore, cfg.Queue, cfg.Accounts)
}
