package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Daxiongmao87/youspotter/internal/server"
	"github.com/Daxiongmao87/youspotter/internal/services"
	"github.com/Daxiongmao87/youspotter/internal/tasks"
	"github.com/urfave/cli/v3"
)

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the sync daemon and status API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Status API port (overrides config)",
			},
		},
		Action: r.Serve,
	}
}

// Serve runs the full daemon: catalog database, Spotify source, resolver
// fetcher, scheduler loop, and the HTTP status API. Blocks until SIGINT or
// SIGTERM, then shuts down the HTTP server gracefully.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, db, err := r.openCatalog()
	if err != nil {
		return err
	}
	defer db.Close()

	source, err := services.NewSpotifySource(r.config.Credentials.Spotify)
	if err != nil {
		return err
	}
	token, err := loadToken()
	if err != nil {
		return err
	}
	source.SetToken(ctx, token)

	fetcher := services.NewResolverFetcher(r.config.Resolver)
	activity := tasks.NewActivity()
	live := tasks.NewQueueView()

	dispatcher := tasks.NewDispatcher(fetcher, store, tasks.DispatcherOpts{
		Concurrency:    r.config.Sync.Concurrency,
		MaxAttempts:    r.config.Sync.MaxAttempts,
		RateLimit:      r.config.Sync.RateLimit,
		FetchTimeout:   r.config.Sync.FetchTimeout(),
		Format:         r.config.Library.Format,
		MinBitrateKbps: r.config.Library.Bitrate,
		PathTemplate:   r.config.Library.PathTemplate,
	}, r.logger, activity, live)

	reconciler := tasks.NewReconciler(store, r.logger)
	engine := tasks.NewEngine(source, store, dispatcher, reconciler, r.config.Sync.Interval(), r.logger, activity)
	scheduler := tasks.NewScheduler(engine, r.logger)

	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger))
	router.Handler(server.NewAPIHandler(engine, scheduler, store, activity, live, r.logger))

	port := r.config.Server.Port
	if cmd.Int("port") > 0 {
		port = int(cmd.Int("port"))
	}
	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, port)
	srv := &http.Server{Addr: addr, Handler: router}

	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- scheduler.Start(ctx)
	}()

	serverDone := make(chan error, 1)
	go func() {
		r.logger.Info("status API listening", "addr", addr)
		serverDone <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status API failed: %w", err)
		}
	case <-ctx.Done():
		r.logger.Info("shutting down")
	case err := <-schedulerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("forced shutdown", "error", err)
	}
	return nil
}
