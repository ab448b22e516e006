// Package bot assembles the MyXL account bot: command handlers, the login
// and switch conversations, and the liveness endpoint.
package bot

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/aprizal/myxl-bot/auth"
	"github.com/aprizal/myxl-bot/core/bootstrap"
	"github.com/aprizal/myxl-bot/core/cmd"
	coreconfig "github.com/aprizal/myxl-bot/core/config"
	tg "github.com/aprizal/myxl-bot/core/telegram"
	tghelpers "github.com/aprizal/myxl-bot/core/telegram/helpers"
	"github.com/aprizal/myxl-bot/core/telegram/keyboard"
	"github.com/aprizal/myxl-bot/core/telegram/router"
	"github.com/aprizal/myxl-bot/myxl"
	"github.com/aprizal/myxl-bot/session"
)

// cancelAction is the callback key of the inline cancel button shown while
// a flow is in progress.
const cancelAction = "flow_cancel"

// Config wraps the core configuration for the cmd runner.
type Config struct {
	core *coreconfig.Config
}

// LoadConfig reads the YAML/env configuration for the bot.
func LoadConfig(path string) (cmd.ConfigCarrier, error) {
	core, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return &Config{core: core}, nil
}

// CoreConfig returns the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return c.core
}

// App holds the wired application components.
type App struct {
	cfg      *coreconfig.Config
	api      *myxl.Client
	accounts *auth.Service
	machine  *session.Machine
	health   *healthServer
	db       *sqlx.DB
}

// Bootstrap initializes infrastructure and builds the application. The
// stored token sequence is loaded here and, when no account is active, the
// first stored one is activated before the bot starts taking updates.
func Bootstrap(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg := carrier.CoreConfig()

	res, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}

	api := myxl.NewClient(cfg.MyXL)
	accounts := auth.NewService(res.Store, api)

	ctx := context.Background()
	if err := accounts.Load(ctx); err != nil {
		return nil, fmt.Errorf("bot: load credential store: %w", err)
	}
	if err := accounts.EnsureActive(ctx); err != nil {
		return nil, fmt.Errorf("bot: activate stored account: %w", err)
	}

	machine := session.NewMachine(session.NewRegistry(), api, accounts)

	return &App{
		cfg:      cfg,
		api:      api,
		accounts: accounts,
		machine:  machine,
		health:   newHealthServer(cfg.Health.Listen),
		db:       res.DB,
	}, nil
}

// TelegramRunOptions wires registry, routes, and lifecycle hooks.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	a.registerCommands(reg)

	if err := reg.RegisterCallback(cancelAction, a.handleCancelCallback); err != nil {
		return tg.RunOptions{}, err
	}

	routes := router.CommandRoutes(reg)
	routes = append(routes, router.TextRoute(fsmAdapter{a}, reg, router.TextOptions{}))
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))

	reg.SetTextFallback(a.handleIdleText)

	opts := tg.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, _ tg.Runtime) error {
			a.health.Start()
			return nil
		},
		OnStop: func(ctx context.Context, _ tg.Runtime) error {
			err := a.health.Stop(ctx)
			if a.db != nil {
				_ = a.db.Close()
			}
			return err
		},
	}
	return opts, nil
}

// fsmAdapter exposes the session machine to the text router.
type fsmAdapter struct {
	app *App
}

func (f fsmAdapter) InProgress(userID int64) bool {
	return f.app.machine.InProgress(userID)
}

func (f fsmAdapter) Handle(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return f.app.machine.HandleText(ctx, c.Sender().ID, c.Text(), f.app.replyFor(c))
}

// flowReply builds the reply function handed to the machine. The machine
// invokes it while holding the user's flow lock, so inProgress must be
// readable without that lock. While a flow is in progress every reply goes
// out via withCancel.
func flowReply(inProgress func(userID int64) bool, userID int64, plain, withCancel func(text string) error) session.ReplyFunc {
	return func(text string) error {
		if inProgress(userID) {
			return withCancel(text)
		}
		return plain(text)
	}
}

// replyFor binds flowReply to one update: plain text when idle, an inline
// cancel button while the flow runs.
func (a *App) replyFor(c tele.Context) session.ReplyFunc {
	return flowReply(a.machine.InProgress, c.Sender().ID,
		func(text string) error {
			return tghelpers.SendText(c, text)
		},
		func(text string) error {
			return tghelpers.SendWithMarkup(c, text, keyboard.SingleCancelMarkup(cancelAction))
		})
}

// handleCancelCallback aborts the flow from the inline button. The prompt
// message that carried the button is edited in place.
func (a *App) handleCancelCallback(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return a.machine.Cancel(ctx, c.Sender().ID, func(text string) error {
		return tghelpers.EditOrSendMD(c, text)
	})
}

func (a *App) handleIdleText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return a.machine.HandleText(ctx, c.Sender().ID, c.Text(), a.replyFor(c))
}
