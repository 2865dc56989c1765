package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.uber.org/fx"
	"golang.org/x/crypto/bcrypt"

	"github.com/parlorchat/parlor/internal/commands"
	"github.com/parlorchat/parlor/internal/config"
	"github.com/parlorchat/parlor/internal/handlers"
	"github.com/parlorchat/parlor/internal/permissions"
	"github.com/parlorchat/parlor/internal/queue"
	"github.com/parlorchat/parlor/internal/server"
	"github.com/parlorchat/parlor/internal/spotlight"
	"github.com/parlorchat/parlor/internal/users"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(provideSpotlightHandler),
		provideServerHandler(handlers.NewUsersHandler),
		provideServerHandler(handlers.NewRoomsHandler),
		provideServerHandler(handlers.NewThreadsHandler),
		provideServerHandler(provideCommandsHandler),
		provideServerHandler(handlers.NewVoipHandler),
		provideServer,
	),
	fx.Invoke(
		startQueueMonitor,
		startServer,
	),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideSpotlightHandler(log *slog.Logger, aggregator *spotlight.Aggregator, cfg config.Config) *handlers.SpotlightHandler {
	return handlers.NewSpotlightHandler(log, aggregator, cfg.Spotlight, cfg.Auth.JWTSecret)
}

func provideCommandsHandler(log *slog.Logger, registry *commands.Registry, perms *permissions.Service) *handlers.CommandsHandler {
	return handlers.NewCommandsHandler(log, registry, perms)
}

type serverParams struct {
	fx.In

	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.Handlers...)
}

func startQueueMonitor(lc fx.Lifecycle, monitor *queue.Monitor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return monitor.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			monitor.Stop()
			return nil
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
	cfg config.Config,
	userStore *users.PgStore,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := ensureSystemUsers(ctx, logger, userStore, cfg); err != nil {
				return err
			}
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

// ensureSystemUsers creates the initial admin account on an empty database
// and the resident system user closings and unlinked messages belong to.
func ensureSystemUsers(ctx context.Context, log *slog.Logger, store *users.PgStore, cfg config.Config) error {
	count, err := store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		username := strings.TrimSpace(cfg.Admin.Username)
		password := strings.TrimSpace(cfg.Admin.Password)
		if username == "" || password == "" {
			return fmt.Errorf("admin username/password required in config")
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		admin, err := store.CreateUser(ctx, username, cfg.Admin.Email, string(hashed), []string{"admin", "user"})
		if err != nil {
			return err
		}
		log.Info("admin user created", slog.String("username", admin.Username))
	}

	resident := strings.TrimSpace(cfg.Accounts.ResidentUsername)
	if resident == "" {
		return nil
	}
	if _, ok, err := store.UserByUsername(ctx, resident); err != nil {
		return err
	} else if ok {
		return nil
	}
	bot, err := store.CreateUser(ctx, resident, "", "", []string{"bot"})
	if err != nil {
		return err
	}
	log.Info("resident user created", slog.String("username", bot.Username))
	return nil
}
