package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/shared"
)

func resolverServer(t *testing.T, handler http.HandlerFunc) *ResolverFetcher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewResolverFetcher(shared.ResolverConfig{URL: server.URL})
}

func sampleRequest() AcquireRequest {
	return AcquireRequest{
		Descriptor:     models.Descriptor{Artist: "Daft Punk", Title: "One More Time", Duration: 320},
		Format:         "mp3",
		MinBitrateKbps: 192,
	}
}

func TestResolverFetcher(t *testing.T) {
	t.Run("Successful Acquire", func(t *testing.T) {
		fetcher := resolverServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/download" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write([]byte(`{"event": "progress", "percent": 40}` + "\n"))
			w.Write([]byte(`{"event": "progress", "percent": 80}` + "\n"))
			w.Write([]byte(`{"event": "done", "path": "/music/one more time.mp3", "bitrate": 256}` + "\n"))
		})

		var percents []int
		req := sampleRequest()
		req.OnProgress = func(p int) { percents = append(percents, p) }

		result, err := fetcher.Acquire(context.Background(), req)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.LocalPath != "/music/one more time.mp3" {
			t.Errorf("unexpected path %s", result.LocalPath)
		}
		if result.BitrateKbps != 256 {
			t.Errorf("unexpected bitrate %d", result.BitrateKbps)
		}
		if len(percents) != 3 || percents[len(percents)-1] != 100 {
			t.Errorf("unexpected progress sequence %v", percents)
		}
	})

	t.Run("Not Found", func(t *testing.T) {
		fetcher := resolverServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"event": "error", "reason": "not_found", "message": "no candidate"}` + "\n"))
		})

		_, err := fetcher.Acquire(context.Background(), sampleRequest())
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected FetchError, got %v", err)
		}
		if fetchErr.Reason != FetchNotFound {
			t.Errorf("expected not found, got %v", fetchErr.Reason)
		}
		if !fetchErr.Retryable() {
			t.Error("not found failures should be retryable")
		}
	})

	t.Run("Quality Rejection Is Terminal", func(t *testing.T) {
		fetcher := resolverServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"event": "error", "reason": "quality", "message": "best candidate 128kbps"}` + "\n"))
		})

		_, err := fetcher.Acquire(context.Background(), sampleRequest())
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected FetchError, got %v", err)
		}
		if fetchErr.Reason != FetchQualityInsufficient {
			t.Errorf("expected quality rejection, got %v", fetchErr.Reason)
		}
		if fetchErr.Retryable() {
			t.Error("quality rejections must not be retried")
		}
	})

	t.Run("Server Error Is Transient", func(t *testing.T) {
		fetcher := resolverServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := fetcher.Acquire(context.Background(), sampleRequest())
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected FetchError, got %v", err)
		}
		if fetchErr.Reason != FetchTransient {
			t.Errorf("expected transient, got %v", fetchErr.Reason)
		}
	})

	t.Run("Truncated Stream Is Transient", func(t *testing.T) {
		fetcher := resolverServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"event": "progress", "percent": 10}` + "\n"))
		})

		_, err := fetcher.Acquire(context.Background(), sampleRequest())
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Fatalf("expected FetchError, got %v", err)
		}
		if fetchErr.Reason != FetchTransient {
			t.Errorf("expected transient, got %v", fetchErr.Reason)
		}
	})
}
