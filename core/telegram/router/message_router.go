package router

import (
	"time"

	tg "github.com/aprizal/myxl-bot/core/telegram"
	"github.com/aprizal/myxl-bot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// FSM is the minimal interface for a conversation manager. Free text goes to
// the FSM whenever the sender has a flow in progress.
type FSM interface {
	InProgress(userID int64) bool
	Handle(c tele.Context) error
}

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// resolveText picks the handler for a free-text update. Precedence:
// active conversation, typed command text, registry fallback, unknown-text
// option.
func resolveText(c tele.Context, fsmMgr FSM, reg *tg.Registry, opts TextOptions) (string, tele.HandlerFunc) {
	if fsmMgr != nil && fsmMgr.InProgress(c.Sender().ID) {
		return "fsm", fsmMgr.Handle
	}
	if reg != nil {
		if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
			return normalizeHandlerName(key), cmd.Handler
		}
		if fb := reg.TextFallback(); fb != nil {
			return "fallback", fb
		}
	}
	if opts.UnknownText != nil {
		return "unknown_text", opts.UnknownText
	}
	return "", nil
}

// TextRoute builds the handler that routes free text between the FSM, typed
// command lookups, and the fallback.
func TextRoute(fsmMgr FSM, reg *tg.Registry, opts TextOptions) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()

		name, fn := resolveText(c, fsmMgr, reg, opts)
		if fn == nil {
			logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
			return nil
		}
		return handleWithSummary(c, name, start, "", "", func() error {
			return fn(c)
		})
	}

	return tg.Route{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
