package router

import (
	"log/slog"

	"github.com/aprizal/myxl-bot/core/logger"
	tg "github.com/aprizal/myxl-bot/core/telegram"
	"github.com/aprizal/myxl-bot/core/telegram/middleware"
)

// CommandRoutes prepares one route per registered command, each wrapped with
// the recover and logger middleware.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for endpoint, def := range cmds {
		routes = append(routes, tg.Route{
			Endpoint: endpoint,
			Handler:  middleware.LoggerMiddleware(middleware.RecoverMiddleware(def.Handler)),
		})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)

	return routes
}
