package main

import (
	"context"
	"fmt"

	"github.com/Daxiongmao87/youspotter/internal/identity"
	"github.com/Daxiongmao87/youspotter/internal/services"
	"github.com/Daxiongmao87/youspotter/internal/tasks"
	"github.com/Daxiongmao87/youspotter/internal/ui"
	"github.com/urfave/cli/v3"
)

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "Manage which playlists are kept in sync",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List your Spotify playlists",
				Action: r.PlaylistsList,
			},
			{
				Name:  "monitor",
				Usage: "Add a playlist to the monitored set",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name for the playlist",
					},
					&cli.BoolFlag{
						Name:  "songs",
						Usage: "Acquire the playlist's own songs",
						Value: true,
					},
					&cli.BoolFlag{
						Name:  "artists",
						Usage: "Acquire every song by each artist on the playlist",
					},
					&cli.BoolFlag{
						Name:  "albums",
						Usage: "Acquire every album the playlist references",
					},
				},
				Action: r.PlaylistsMonitor,
			},
			{
				Name:  "forget",
				Usage: "Remove a playlist from the monitored set",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.PlaylistsForget,
			},
			{
				Name:   "show",
				Usage:  "Show the monitored playlists and their strategies",
				Action: r.PlaylistsShow,
			},
		},
	}
}

func (r *Runner) monitoredEngine() (*tasks.Engine, func() error, error) {
	// Only the settings accessors are needed; the engine is not started.
	store, db, err := r.openCatalog()
	if err != nil {
		return nil, nil, err
	}
	engine := tasks.NewEngine(nil, store, nil, nil, r.config.Sync.Interval(), r.logger, nil)
	return engine, db.Close, nil
}

// PlaylistsList prints the authenticated user's Spotify playlists.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	source, err := services.NewSpotifySource(r.config.Credentials.Spotify)
	if err != nil {
		return err
	}
	token, err := loadToken()
	if err != nil {
		return err
	}
	source.SetToken(ctx, token)

	playlists, err := source.Playlists(ctx)
	if err != nil {
		return err
	}

	r.writePlain("%s\n", ui.Title("Spotify playlists"))
	for _, p := range playlists {
		r.writePlain("  %s  %s (%d tracks, %s)\n", p.ID, p.Name, p.TrackCount, ui.Help(p.Owner))
	}
	return nil
}

// PlaylistsMonitor adds or updates a monitored playlist.
func (r *Runner) PlaylistsMonitor(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("playlist id is required")
	}

	engine, closeDB, err := r.monitoredEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	playlists, err := engine.MonitoredPlaylists(ctx)
	if err != nil {
		return err
	}

	entry := tasks.MonitoredPlaylist{
		ID:   id,
		Name: cmd.String("name"),
		Strategy: identity.Strategy{
			Song:   cmd.Bool("songs"),
			Artist: cmd.Bool("artists"),
			Album:  cmd.Bool("albums"),
		},
	}

	replaced := false
	for i, p := range playlists {
		if p.ID == id {
			playlists[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		playlists = append(playlists, entry)
	}

	if err := engine.SetMonitoredPlaylists(ctx, playlists); err != nil {
		return err
	}
	return r.writePlain("✓ Monitoring %s (songs=%t artists=%t albums=%t)\n",
		id, entry.Strategy.Song, entry.Strategy.Artist, entry.Strategy.Album)
}

// PlaylistsForget removes a playlist from the monitored set. Tracks already
// in the catalog stay there.
func (r *Runner) PlaylistsForget(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("playlist id is required")
	}

	engine, closeDB, err := r.monitoredEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	playlists, err := engine.MonitoredPlaylists(ctx)
	if err != nil {
		return err
	}

	kept := playlists[:0]
	for _, p := range playlists {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(playlists) {
		return r.writePlain("Playlist %s was not monitored\n", id)
	}

	if err := engine.SetMonitoredPlaylists(ctx, kept); err != nil {
		return err
	}
	return r.writePlain("✓ Forgot %s\n", id)
}

// PlaylistsShow prints the monitored set.
func (r *Runner) PlaylistsShow(ctx context.Context, cmd *cli.Command) error {
	engine, closeDB, err := r.monitoredEngine()
	if err != nil {
		return err
	}
	defer closeDB()

	playlists, err := engine.MonitoredPlaylists(ctx)
	if err != nil {
		return err
	}
	if len(playlists) == 0 {
		return r.writePlain("No playlists monitored, add one with 'youspotter playlists monitor <id>'\n")
	}

	r.writePlain("%s\n", ui.Title("Monitored playlists"))
	for _, p := range playlists {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		r.writePlain("  %s  songs=%t artists=%t albums=%t\n", name, p.Strategy.Song, p.Strategy.Artist, p.Strategy.Album)
	}
	return nil
}
