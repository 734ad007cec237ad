// Resolver sidecar implementation of [Fetcher]
//
// Communicates with the download resolver service, which wraps the actual
// search-and-fetch tooling behind a small HTTP API. The resolver streams
// newline-delimited JSON events while a transfer runs and finishes with a
// done or error event.
package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Daxiongmao87/youspotter/internal/shared"
)

const defaultResolverURL = "http://localhost:8090"

// ResolverFetcher implements [Fetcher] against the resolver sidecar.
type ResolverFetcher struct {
	baseURL    string
	cookie     string
	httpClient *http.Client
}

// NewResolverFetcher creates a resolver-backed fetcher.
func NewResolverFetcher(cfg shared.ResolverConfig) *ResolverFetcher {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultResolverURL
	}
	return &ResolverFetcher{
		baseURL:    baseURL,
		cookie:     cfg.Cookie,
		httpClient: http.DefaultClient,
	}
}

// Name returns the fetcher name.
func (f *ResolverFetcher) Name() string {
	return "resolver"
}

type resolverRequest struct {
	Artist       string `json:"artist"`
	Title        string `json:"title"`
	Album        string `json:"album,omitempty"`
	Duration     int    `json:"duration"`
	SourceID     string `json:"source_id,omitempty"`
	Format       string `json:"format"`
	MinBitrate   int    `json:"min_bitrate"`
	PathTemplate string `json:"path_template,omitempty"`
}

type resolverEvent struct {
	Event   string `json:"event"` // progress, done, error
	Percent int    `json:"percent,omitempty"`
	Path    string `json:"path,omitempty"`
	Bitrate int    `json:"bitrate,omitempty"`
	Reason  string `json:"reason,omitempty"` // not_found, quality
	Message string `json:"message,omitempty"`
}

// Acquire asks the resolver to search for and download the track, consuming
// progress events until the stream ends. Context cancellation aborts the
// transfer; the resolver cleans up its own partial files.
func (f *ResolverFetcher) Acquire(ctx context.Context, req AcquireRequest) (*AcquireResult, error) {
	body, err := json.Marshal(resolverRequest{
		Artist:       req.Descriptor.Artist,
		Title:        req.Descriptor.Title,
		Album:        req.Descriptor.Album,
		Duration:     req.Descriptor.Duration,
		SourceID:     req.Descriptor.SourceID,
		Format:       req.Format,
		MinBitrate:   req.MinBitrateKbps,
		PathTemplate: req.PathTemplate,
	})
	if err != nil {
		return nil, &FetchError{Reason: FetchTransient, Message: fmt.Sprintf("encode request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/download", bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Reason: FetchTransient, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if f.cookie != "" {
		httpReq.Header.Set("Cookie", f.cookie)
	}

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, &FetchError{Reason: FetchTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Reason: FetchTransient, Message: fmt.Sprintf("resolver status %d", resp.StatusCode)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var event resolverEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, &FetchError{Reason: FetchTransient, Message: fmt.Sprintf("decode event: %v", err)}
		}

		switch event.Event {
		case "progress":
			if req.OnProgress != nil {
				req.OnProgress(event.Percent)
			}
		case "done":
			if req.OnProgress != nil {
				req.OnProgress(100)
			}
			return &AcquireResult{LocalPath: event.Path, BitrateKbps: event.Bitrate}, nil
		case "error":
			return nil, fetchErrorFromEvent(event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &FetchError{Reason: FetchTransient, Message: fmt.Sprintf("read stream: %v", err)}
	}
	return nil, &FetchError{Reason: FetchTransient, Message: "stream ended without result"}
}

func fetchErrorFromEvent(event resolverEvent) *FetchError {
	switch event.Reason {
	case "not_found":
		return &FetchError{Reason: FetchNotFound, Message: event.Message}
	case "quality":
		return &FetchError{Reason: FetchQualityInsufficient, Message: event.Message}
	default:
		return &FetchError{Reason: FetchTransient, Message: event.Message}
	}
}
