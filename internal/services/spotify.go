// Spotify implementation of [Source]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Daxiongmao87/youspotter/internal/models"
	"github.com/Daxiongmao87/youspotter/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Spotify caps page sizes at 50 for most collection endpoints.
	spotifyPageLimit = 50
)

// SpotifyArtist represents an artist reference in Spotify responses.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents an album reference in Spotify responses.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	AlbumType   string          `json:"album_type"`
	TotalTracks int             `json:"total_tracks"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
}

type spotifyOwner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type spotifyPlaylistTracksRef struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a playlist row in list responses.
type SpotifySimplePlaylist struct {
	ID     string                   `json:"id"`
	Name   string                   `json:"name"`
	Owner  spotifyOwner             `json:"owner"`
	Tracks spotifyPlaylistTracksRef `json:"tracks"`
}

// SpotifyPlaylistTrack represents a track within a playlist context.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"` // nil for removed/local entries
}

type paginated[T any] struct {
	Items []T     `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

// SpotifySource implements [Source] against the Spotify Web API.
// Uses [oauth2] for authentication; the token client refreshes transparently.
type SpotifySource struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
}

// NewSpotifySource creates a Spotify source from OAuth2 credentials.
func NewSpotifySource(cfg shared.SpotifyConfig) (*SpotifySource, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
			"user-library-read",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifySource{config: config, httpClient: http.DefaultClient}, nil
}

// Name returns the provider name.
func (s *SpotifySource) Name() string {
	return "Spotify"
}

// Config exposes the OAuth2 configuration for callback handling.
func (s *SpotifySource) Config() *oauth2.Config {
	return s.config
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifySource) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and installs the
// auto-refreshing client.
func (s *SpotifySource) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	s.SetToken(ctx, token)
	return token, nil
}

// SetToken installs a previously persisted token.
func (s *SpotifySource) SetToken(ctx context.Context, token *oauth2.Token) {
	s.token = token
	s.httpClient = s.config.Client(ctx, token)
}

// Authenticated reports whether a token is installed.
func (s *SpotifySource) Authenticated() bool {
	return s.token != nil
}

// doRequest performs an authenticated GET against the Spotify API.
//
// Every failure is wrapped in [shared.ErrSourceUnavailable]: the sync engine
// treats any Source error as grounds to abort the cycle, so callers never
// need to distinguish network errors from API errors.
func (s *SpotifySource) doRequest(ctx context.Context, endpoint string, result any) error {
	if s.token == nil {
		return fmt.Errorf("%w: call Exchange or SetToken first", shared.ErrNotAuthenticated)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spotifyBaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", shared.ErrSourceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: spotify API status %d for %s", shared.ErrSourceUnavailable, resp.StatusCode, endpoint)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: decode response: %v", shared.ErrSourceUnavailable, err)
		}
	}
	return nil
}

// Playlists retrieves all of the user's playlists, following pagination.
func (s *SpotifySource) Playlists(ctx context.Context) ([]Playlist, error) {
	playlists := make([]Playlist, 0)
	offset := 0
	for {
		var page paginated[SpotifySimplePlaylist]
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", spotifyPageLimit, offset)
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, p := range page.Items {
			playlists = append(playlists, Playlist{
				ID:         p.ID,
				Name:       p.Name,
				Owner:      p.Owner.DisplayName,
				TrackCount: p.Tracks.Total,
			})
		}
		if page.Next == nil || len(page.Items) == 0 {
			return playlists, nil
		}
		offset += len(page.Items)
	}
}

// PlaylistTracks retrieves every track on a playlist in playlist order.
func (s *SpotifySource) PlaylistTracks(ctx context.Context, playlistID string) ([]models.Descriptor, error) {
	descriptors := make([]models.Descriptor, 0)
	offset := 0
	for {
		var page paginated[SpotifyPlaylistTrack]
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d",
			url.PathEscape(playlistID), spotifyPageLimit, offset)
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if item.Track == nil {
				continue
			}
			descriptors = append(descriptors, descriptorFromTrack(*item.Track, playlistID, models.OriginPlaylist))
		}
		if page.Next == nil || len(page.Items) == 0 {
			return descriptors, nil
		}
		offset += len(page.Items)
	}
}

// ArtistTracks retrieves an artist's full catalog: each album and single,
// then every track on them.
func (s *SpotifySource) ArtistTracks(ctx context.Context, artistID string) ([]models.Descriptor, error) {
	albums := make([]SpotifyAlbum, 0)
	offset := 0
	for {
		var page paginated[SpotifyAlbum]
		endpoint := fmt.Sprintf("/artists/%s/albums?include_groups=album,single&limit=%d&offset=%d",
			url.PathEscape(artistID), spotifyPageLimit, offset)
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		albums = append(albums, page.Items...)
		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}

	descriptors := make([]models.Descriptor, 0)
	for _, album := range albums {
		tracks, err := s.AlbumTracks(ctx, album.ID)
		if err != nil {
			return nil, err
		}
		for i := range tracks {
			tracks[i].Origin = models.OriginArtist
		}
		descriptors = append(descriptors, tracks...)
	}
	return descriptors, nil
}

// AlbumTracks retrieves every track on an album.
//
// Album track listings omit the album object, so each descriptor is filled
// from the album endpoint itself.
func (s *SpotifySource) AlbumTracks(ctx context.Context, albumID string) ([]models.Descriptor, error) {
	var album struct {
		SpotifyAlbum
		Tracks paginated[SpotifyTrack] `json:"tracks"`
	}
	if err := s.doRequest(ctx, "/albums/"+url.PathEscape(albumID), &album); err != nil {
		return nil, err
	}

	items := album.Tracks.Items
	offset := len(items)
	for album.Tracks.Next != nil && offset < album.Tracks.Total {
		var page paginated[SpotifyTrack]
		endpoint := fmt.Sprintf("/albums/%s/tracks?limit=%d&offset=%d",
			url.PathEscape(albumID), spotifyPageLimit, offset)
		if err := s.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			break
		}
		items = append(items, page.Items...)
		offset += len(page.Items)
		album.Tracks.Next = page.Next
	}

	descriptors := make([]models.Descriptor, 0, len(items))
	for _, t := range items {
		t.Album = album.SpotifyAlbum
		descriptors = append(descriptors, descriptorFromTrack(t, "", models.OriginAlbum))
	}
	return descriptors, nil
}

func descriptorFromTrack(t SpotifyTrack, playlistID, origin string) models.Descriptor {
	d := models.Descriptor{
		SourceID:   t.ID,
		PlaylistID: playlistID,
		AlbumID:    t.Album.ID,
		Title:      t.Name,
		Album:      t.Album.Name,
		Duration:   t.DurationMS / 1000,
		Origin:     origin,
	}
	if len(t.Artists) > 0 {
		d.ArtistID = t.Artists[0].ID
		d.Artist = t.Artists[0].Name
	}
	return d
}
