package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "spotcheck/internal/adapters/http_server"
	"spotcheck/internal/adapters/observability"
	"spotcheck/internal/shared"
)

// stubapi serves an in-memory stand-in for the places data service, for
// local development against the spotcheck CLI.
func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel, nil)

	observability.Serve(cfg.MetricsAddr)

	b := server.NewBackend(server.BackendOptions{
		FirstPlaceID:         cfg.StubFirstPlaceID,
		IssueTokenOnRegister: cfg.StubRegisterToken,
	})

	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(server.NewHandlers(b))

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Int64("first_place_id", cfg.StubFirstPlaceID).Msg("stub API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("stub API stopped")
}
