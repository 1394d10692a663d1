// Package app assembles the shop bot from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/shopbot/core/bootstrap"
	"github.com/m3rciful/shopbot/core/clock"
	"github.com/m3rciful/shopbot/core/logger"
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/migrations"
	"github.com/m3rciful/shopbot/shop/bot"
	"github.com/m3rciful/shopbot/shop/config"
	"github.com/m3rciful/shopbot/shop/flow"
	"github.com/m3rciful/shopbot/shop/ledger"
	"github.com/m3rciful/shopbot/shop/moderation"
	"github.com/m3rciful/shopbot/shop/roster"
	"github.com/m3rciful/shopbot/shop/session"
)

// Options override infrastructure hooks, mostly for tests.
type Options struct {
	Bootstrap bootstrap.Options
	Clock     clock.Clock
}

// App owns every long-lived component of the shop.
type App struct {
	cfg      *config.Config
	infra    *bootstrap.Result
	registry *tg.Registry

	Telegram   *bot.Telegram
	Sessions   *session.Store
	Orders     *ledger.Ledger
	Roster     *roster.Roster
	Flow       *flow.Controller
	Moderation *moderation.Router
	Handlers   *bot.Handlers
}

// OpenRoster opens the roster store selected by the configuration. db is
// only used by the postgres driver.
func OpenRoster(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*roster.Roster, error) {
	if cfg.UsesPostgres() {
		if db == nil {
			return nil, errors.New("app: postgres roster without database")
		}
		return roster.Open(ctx, roster.NewPostgresStore(db))
	}
	return roster.Open(ctx, roster.NewFileStore(cfg.Shop.Roster.Path))
}

// New bootstraps logging and storage, then wires the shop components.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}

	bo := opts.Bootstrap
	bo.Config = cfg.CoreConfig()
	bo.UseDatabase = cfg.UsesPostgres()
	bo.Database = cfg.Database
	if bo.Migrations == nil {
		bo.Migrations = migrations.FS
	}
	infra, err := bootstrap.Run(bo)
	if err != nil {
		return nil, err
	}

	a, err := build(cfg, infra, opts.Clock)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, infra *bootstrap.Result, c clock.Clock) (*App, error) {
	ctx := logger.Background()
	if c == nil {
		c = clock.Real()
	}

	cat, err := cfg.Shop.Catalog()
	if err != nil {
		return nil, fmt.Errorf("app: catalog: %w", err)
	}
	orders, err := ledger.New(cfg.Shop.OrderNodeID, c)
	if err != nil {
		return nil, fmt.Errorf("app: ledger: %w", err)
	}
	users, err := OpenRoster(ctx, cfg, infra.DB)
	if err != nil {
		return nil, fmt.Errorf("app: roster: %w", err)
	}

	a := &App{
		cfg:      cfg,
		infra:    infra,
		registry: tg.NewRegistry(),
		Telegram: bot.NewTelegram(),
		Sessions: session.NewStore(c),
		Orders:   orders,
		Roster:   users,
	}

	a.Moderation, err = moderation.New(orders, users, a.Telegram, moderation.Options{
		AdminID:            cfg.Telegram.AdminID,
		AdminChatID:        cfg.Shop.AdminChatID,
		BroadcastPerSecond: cfg.Shop.BroadcastPerSecond,
	})
	if err != nil {
		return nil, err
	}
	a.Flow, err = flow.New(flow.Deps{
		Sessions:  a.Sessions,
		Orders:    orders,
		Catalog:   cat,
		Messenger: a.Telegram,
		Invoicer:  a.Telegram,
		Announcer: a.Moderation,
		Clock:     c,
	}, flow.Options{
		Deadline:       cfg.Shop.Deadline(),
		TickInterval:   cfg.Shop.TickInterval(),
		StarsCurrency:  cfg.Shop.StarsCurrency,
		CryptoCurrency: cfg.Shop.Crypto.Currency,
		CryptoAddress:  cfg.Shop.Crypto.Address,
		SupportContact: cfg.Shop.SupportContact,
	})
	if err != nil {
		return nil, err
	}
	a.Handlers, err = bot.NewHandlers(a.Flow, a.Moderation, users, cfg.Telegram.AdminID)
	if err != nil {
		a.Flow.Stop()
		return nil, err
	}
	if err := a.Handlers.Register(a.registry); err != nil {
		a.Flow.Stop()
		return nil, err
	}

	logger.Info(ctx, "app", "shop.ready",
		slog.Int("services", len(cat.List())),
		slog.Int("known_users", users.Len()),
		slog.String("roster", cfg.Shop.Roster.Driver),
	)
	return a, nil
}

// Registry returns the command and callback registry.
func (a *App) Registry() *tg.Registry { return a.registry }

// TelegramRunOptions describes how the runtime should serve the shop.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()
	return tg.RunOptions{
		Config:         core,
		Registry:       a.registry,
		Middlewares:    tg.DefaultMiddlewares(core, a.Handlers.RateLimited, a.Handlers.TrackUsers()),
		Routes:         a.Handlers.Routes(a.registry),
		AllowedUpdates: bot.AllowedUpdates,
		OnStart: func(_ context.Context, rt tg.Runtime) error {
			if rt.Bot == nil {
				return errors.New("app: runtime without bot")
			}
			a.Telegram.Bind(rt.Bot, rt.Dispatcher)
			return nil
		},
		OnStop: func(context.Context, tg.Runtime) error {
			return a.Close()
		},
	}, nil
}

// Close stops pending countdowns and releases the database.
func (a *App) Close() error {
	a.Flow.Stop()
	return a.infra.Close()
}
