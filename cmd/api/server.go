package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	apihttp "github.com/example/issue-unfurl/internal/http"
	"github.com/example/issue-unfurl/internal/jobs"
)

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := newApp(ctx)
	defer a.Close()

	cron, err := jobs.NewCron(a.cfg, a.log, a.repo)
	if err != nil {
		a.log.Error().Err(err).Str("spec", a.cfg.RetentionCron).Msg("retention cron disabled")
	} else {
		cron.Start()
		defer cron.Stop()
	}

	handlers := apihttp.NewHandlers(a.cfg, a.log, a.svc)
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           apihttp.NewRouter(a.cfg, a.log, handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	a.log.Info().Str("addr", a.cfg.HTTPAddr).Msg("http listening")

	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down...")
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
		if serveErr != nil {
			a.log.Error().Err(serveErr).Msg("http server error")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}

	// link_shared jobs still hold pool connections; drain them before a.Close.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 3*a.cfg.HTTPTimeout)
	defer cancelDrain()
	if err := handlers.Wait(drainCtx); err != nil {
		a.log.Warn().Err(err).Msg("link_shared jobs still running at exit")
	}
	return serveErr
}
