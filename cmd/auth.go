package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Daxiongmao87/youspotter/internal/server"
	"github.com/Daxiongmao87/youspotter/internal/services"
	"github.com/Daxiongmao87/youspotter/internal/shared"
	"github.com/urfave/cli/v3"
)

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authorization",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize youspotter with your Spotify account",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "Address for the local OAuth callback server",
						Value: "localhost:8080",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser authorization",
						Value: 5 * time.Minute,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show whether a Spotify token is saved",
				Action: r.AuthStatus,
			},
		},
	}
}

// AuthLogin runs the authorization code flow: a temporary local server
// receives the callback, the code is exchanged, and the token is saved for
// later sessions.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	source, err := services.NewSpotifySource(r.config.Credentials.Spotify)
	if err != nil {
		return err
	}

	state := shared.GenerateID()
	handler := server.NewOAuthHandler(source.Config(), state)

	router := server.NewBasicRouter()
	router.Handler(handler)

	srv := &http.Server{Addr: cmd.String("listen"), Handler: router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	r.writePlain("Open this URL in your browser to authorize:\n\n  %s\n\n", source.AuthURL(state))
	r.logger.Info("waiting for authorization callback", "listen", cmd.String("listen"))

	select {
	case err := <-errCh:
		return fmt.Errorf("callback server failed: %w", err)
	case <-time.After(cmd.Duration("timeout")):
		return fmt.Errorf("%w: no authorization callback received", shared.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case result := <-handler.Result():
		if result.Error() != nil {
			return fmt.Errorf("%w: %v", shared.ErrAuthFailed, result.Error())
		}
		path, err := saveToken(result.Token)
		if err != nil {
			return err
		}
		r.logger.Info("token saved", "path", path)
		return r.writePlain("✓ Spotify authorized\n")
	}
}

// AuthStatus reports whether a saved token exists and whether it is still
// valid.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	token, err := loadToken()
	if err != nil {
		return r.writePlain("✗ Not authorized: %v\n", err)
	}

	if token.Valid() {
		return r.writePlain("✓ Authorized (token valid until %s)\n", token.Expiry.Format(time.RFC1123))
	}
	if token.RefreshToken != "" {
		return r.writePlain("✓ Authorized (access token expired, will refresh)\n")
	}
	return r.writePlain("✗ Token expired and no refresh token saved, run 'youspotter auth login'\n")
}
