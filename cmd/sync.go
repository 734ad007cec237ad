package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/tasks"
	"github.com/Daxiongmao87/youspotter/internal/ui"
	"github.com/urfave/cli/v3"
)

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "sync",
		Usage:  "Trigger an immediate sync cycle on the running daemon",
		Action: r.SyncNow,
	}
}

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show catalog counters and the last cycle",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit raw JSON instead of formatted output",
			},
		},
		Action: r.Status,
	}
}

func queueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Show the live acquisition queue",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "page",
				Usage: "Catalog page to list",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit raw JSON instead of formatted output",
			},
		},
		Action: r.Queue,
	}
}

// SyncNow asks the daemon to start a cycle immediately.
func (r *Runner) SyncNow(ctx context.Context, cmd *cli.Command) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiURL("/api/sync"), nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return r.writePlain("✓ Sync started\n")
	case http.StatusConflict:
		return r.writePlain("A sync cycle is already running\n")
	default:
		return fmt.Errorf("unexpected daemon response: status %d", resp.StatusCode)
	}
}

// Status fetches /api/status from the daemon and renders it.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	var resp struct {
		Counters models.Counters    `json:"counters"`
		Running  bool               `json:"running"`
		Paused   bool               `json:"paused"`
		Live     tasks.LiveSnapshot `json:"live"`
		Version  int64              `json:"catalog_version"`
	}
	if err := r.getJSON(ctx, "/api/status", &resp); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(resp, true)
	}

	r.writePlain("%s", ui.RenderCounters(resp.Counters))
	if resp.Running {
		r.writePlain("\n%s", ui.RenderLiveQueue(resp.Live))
	}
	if resp.Paused {
		r.writePlain("\n%s\n", ui.Warn("downloads paused"))
	}
	return nil
}

// Queue fetches /api/queue from the daemon and renders it.
func (r *Runner) Queue(ctx context.Context, cmd *cli.Command) error {
	var resp struct {
		Page   int                `json:"page"`
		Tracks []json.RawMessage  `json:"tracks"`
		Live   tasks.LiveSnapshot `json:"live"`
	}
	path := fmt.Sprintf("/api/queue?page=%d", cmd.Int("page"))
	if err := r.getJSON(ctx, path, &resp); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(resp, true)
	}

	r.writePlain("%s", ui.RenderLiveQueue(resp.Live))
	r.writePlain("\n%s page %d, %d tracks\n", ui.Help("catalog"), resp.Page, len(resp.Tracks))
	return nil
}

func (r *Runner) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.apiURL(path), nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected daemon response: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
