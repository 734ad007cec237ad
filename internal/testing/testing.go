// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/services"
)

// MockSource is a configurable test double for [services.Source].
type MockSource struct {
	PlaylistsFn      func(ctx context.Context) ([]services.Playlist, error)
	PlaylistTracksFn func(ctx context.Context, playlistID string) ([]models.Descriptor, error)
	ArtistTracksFn   func(ctx context.Context, artistID string) ([]models.Descriptor, error)
	AlbumTracksFn    func(ctx context.Context, albumID string) ([]models.Descriptor, error)
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) Playlists(ctx context.Context) ([]services.Playlist, error) {
	if m.PlaylistsFn != nil {
		return m.PlaylistsFn(ctx)
	}
	return []services.Playlist{}, nil
}

func (m *MockSource) PlaylistTracks(ctx context.Context, playlistID string) ([]models.Descriptor, error) {
	if m.PlaylistTracksFn != nil {
		return m.PlaylistTracksFn(ctx, playlistID)
	}
	return []models.Descriptor{}, nil
}

func (m *MockSource) ArtistTracks(ctx context.Context, artistID string) ([]models.Descriptor, error) {
	if m.ArtistTracksFn != nil {
		return m.ArtistTracksFn(ctx, artistID)
	}
	return []models.Descriptor{}, nil
}

func (m *MockSource) AlbumTracks(ctx context.Context, albumID string) ([]models.Descriptor, error) {
	if m.AlbumTracksFn != nil {
		return m.AlbumTracksFn(ctx, albumID)
	}
	return []models.Descriptor{}, nil
}

// MockFetcher is a test double for [services.Fetcher] that tracks how many
// acquisitions ran simultaneously.
type MockFetcher struct {
	AcquireFn func(ctx context.Context, req services.AcquireRequest) (*services.AcquireResult, error)

	mu        sync.Mutex
	inFlight  int
	highWater int
	calls     []services.AcquireRequest
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) Acquire(ctx context.Context, req services.AcquireRequest) (*services.AcquireResult, error) {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.highWater {
		m.highWater = m.inFlight
	}
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.AcquireFn != nil {
		return m.AcquireFn(ctx, req)
	}
	return &services.AcquireResult{LocalPath: "/tmp/" + req.Descriptor.Title + ".mp3", BitrateKbps: 256}, nil
}

// HighWater returns the maximum number of simultaneous Acquire calls seen.
func (m *MockFetcher) HighWater() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highWater
}

// Calls returns a copy of every request received.
func (m *MockFetcher) Calls() []services.AcquireRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]services.AcquireRequest(nil), m.calls...)
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
