package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Daxiongmao87/youspotter/internal/catalog"
	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/shared"
	"github.com/Daxiongmao87/youspotter/internal/tasks"
	"github.com/charmbracelet/log"
)

// queuePageSize is the default page size for catalog listings.
const queuePageSize = 50

// APIHandler serves the JSON status API. Implements [Handler].
type APIHandler struct {
	engine    *tasks.Engine
	scheduler *tasks.Scheduler
	store     *catalog.Store
	activity  *tasks.Activity
	live      *tasks.QueueView
	logger    *log.Logger
}

// NewAPIHandler wires the status API against the running engine.
func NewAPIHandler(engine *tasks.Engine, scheduler *tasks.Scheduler, store *catalog.Store, activity *tasks.Activity, live *tasks.QueueView, logger *log.Logger) *APIHandler {
	return &APIHandler{
		engine:    engine,
		scheduler: scheduler,
		store:     store,
		activity:  activity,
		live:      live,
		logger:    logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *APIHandler) Routes() []string {
	return []string{
		"/api/status",
		"/api/queue",
		"/api/sync",
		"/api/pause",
		"/api/resume",
		"/api/activity",
		"/api/schedule",
		"/api/playlists",
		"/api/catalog/version",
		"/api/catalog/artists",
		"/api/catalog/albums",
	}
}

// ServeHTTP dispatches to the endpoint implementations.
func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/status":
		h.handleStatus(w, r)
	case "/api/queue":
		h.handleQueue(w, r)
	case "/api/sync":
		h.handleSync(w, r)
	case "/api/pause":
		h.handlePause(w, r, true)
	case "/api/resume":
		h.handlePause(w, r, false)
	case "/api/activity":
		h.handleActivity(w, r)
	case "/api/schedule":
		h.handleSchedule(w, r)
	case "/api/playlists":
		h.handlePlaylists(w, r)
	case "/api/catalog/version":
		h.handleVersion(w, r)
	case "/api/catalog/artists":
		h.handleArtists(w, r)
	case "/api/catalog/albums":
		h.handleAlbums(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

type statusResponse struct {
	Counters models.Counters    `json:"counters"`
	Running  bool               `json:"running"`
	Paused   bool               `json:"paused"`
	Live     tasks.LiveSnapshot `json:"live"`
	Version  int64              `json:"catalog_version"`
	Cycle    *cycleResponse     `json:"last_cycle,omitempty"`
}

type cycleResponse struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"`
	Outcome     string    `json:"outcome"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	Error       string    `json:"error,omitempty"`
}

func (h *APIHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	counters, err := h.store.Counters(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	version, err := h.store.Version(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := statusResponse{
		Counters: counters,
		Running:  h.engine.Running(),
		Paused:   h.engine.Dispatcher().Paused(),
		Live:     h.live.Snapshot(),
		Version:  version,
	}
	if last := h.engine.LastCycle(); last.ID != "" {
		resp.Cycle = &cycleResponse{
			ID:          last.ID,
			Trigger:     last.Trigger.String(),
			Outcome:     last.Outcome.String(),
			StartedAt:   last.StartedAt,
			CompletedAt: last.CompletedAt,
			Error:       last.Error,
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	status := r.URL.Query().Get("status")

	tracks, err := h.store.Tracks(r.Context(), status, page, queuePageSize)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	type trackRow struct {
		models.Track
		Status string `json:"status"`
	}
	rows := make([]trackRow, len(tracks))
	for i, t := range tracks {
		rows[i] = trackRow{Track: t, Status: t.Status.String()}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"page":   page,
		"tracks": rows,
		"live":   h.live.Snapshot(),
	})
}

func (h *APIHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	err := h.scheduler.TriggerSync()
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
	case errors.Is(err, shared.ErrSyncRunning):
		// The rejection carries the running cycle so callers can show
		// what they are waiting on.
		conflict := map[string]any{
			"error":   err.Error(),
			"running": h.engine.Running(),
		}
		if last := h.engine.LastCycle(); last.ID != "" {
			conflict["cycle"] = cycleResponse{
				ID:          last.ID,
				Trigger:     last.Trigger.String(),
				Outcome:     last.Outcome.String(),
				StartedAt:   last.StartedAt,
				CompletedAt: last.CompletedAt,
				Error:       last.Error,
			}
		}
		h.writeJSON(w, http.StatusConflict, conflict)
	default:
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *APIHandler) handlePause(w http.ResponseWriter, r *http.Request, pause bool) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if pause {
		h.engine.Dispatcher().Pause()
	} else {
		h.engine.Dispatcher().Resume()
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"paused": h.engine.Dispatcher().Paused()})
}

func (h *APIHandler) handleActivity(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": h.activity.Recent()})
}

func (h *APIHandler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"interval_seconds": int(h.engine.Interval().Seconds()),
		"next_run_at":      h.engine.NextRunAt(),
		"running":          h.engine.Running(),
	})
}

func (h *APIHandler) handlePlaylists(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		playlists, err := h.engine.MonitoredPlaylists(r.Context())
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
	case http.MethodPut:
		var playlists []tasks.MonitoredPlaylist
		if err := json.NewDecoder(r.Body).Decode(&playlists); err != nil {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.engine.SetMonitoredPlaylists(r.Context(), playlists); err != nil {
			h.writeError(w, http.StatusInternalServerError, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *APIHandler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	version, err := h.store.Version(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"version": version})
}

func (h *APIHandler) handleArtists(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	artists, err := h.store.ArtistAggregates(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"artists": artists})
}

func (h *APIHandler) handleAlbums(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	albums, err := h.store.AlbumAggregates(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"albums": albums})
}
