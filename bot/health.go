package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/aprizal/myxl-bot/core/buildinfo"
	"github.com/aprizal/myxl-bot/core/logger"
)

// healthServer serves the liveness endpoint next to the bot runtime.
type healthServer struct {
	srv *http.Server
}

func newHealthServer(listen string) *healthServer {
	if listen == "" {
		return &healthServer{}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": buildinfo.Version,
			"commit":  buildinfo.Commit,
		})
	})

	return &healthServer{
		srv: &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background. Disabled when no listen address is set.
func (h *healthServer) Start() {
	if h.srv == nil {
		return
	}
	go func() {
		logger.Component("health").Info("health endpoint",
			slog.String("event", "listen"),
			slog.String("listen", h.srv.Addr),
		)
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Component("health").Error("health endpoint failed",
				slog.String("event", "listen"),
				slog.String("err", err.Error()),
			)
		}
	}()
}

func (h *healthServer) Stop(ctx context.Context) error {
	if h.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.srv.Shutdown(shutdownCtx)
}
