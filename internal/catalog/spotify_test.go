package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/muso-fm/muso/internal/shared"
)

// fakeSpotify is a stand-in for the accounts and API endpoints. It serves one
// playlist of trackCount tracks paged by pageSize.
type fakeSpotify struct {
	mux            *http.ServeMux
	tokenExchanges atomic.Int64
	pageRequests   atomic.Int64
	expiresIn      int
	failOffsets    map[int]bool
	trackCount     int
	pageSize       int
}

func (f *fakeSpotify) trackJSON(i int) map[string]any {
	return map[string]any{
		"id":            fmt.Sprintf("track%03d", i),
		"name":          fmt.Sprintf("Song %d", i),
		"duration_ms":   180000,
		"artists":       []map[string]any{{"name": "Artist"}},
		"album":         map[string]any{"images": []map[string]any{{"url": "https://img.example/cover.jpg"}}},
		"external_urls": map[string]any{"spotify": fmt.Sprintf("https://open.spotify.com/track/track%03d", i)},
		"external_ids":  map[string]any{"isrc": fmt.Sprintf("USUM7%07d", i)},
	}
}

func (f *fakeSpotify) pageJSON(offset int) map[string]any {
	var items []map[string]any
	for i := offset; i < min(offset+f.pageSize, f.trackCount); i++ {
		items = append(items, map[string]any{"track": f.trackJSON(i)})
	}
	if items == nil {
		items = []map[string]any{}
	}
	return map[string]any{
		"items": items,
		"total": f.trackCount,
		"limit": f.pageSize,
	}
}

func newFakeSpotify(trackCount, pageSize int) *fakeSpotify {
	f := &fakeSpotify{
		mux:        http.NewServeMux(),
		expiresIn:  3600,
		trackCount: trackCount,
		pageSize:   pageSize,
	}

	f.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenExchanges.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fake-token",
			"expires_in":   f.expiresIn,
		})
	})

	f.mux.HandleFunc("/playlists/pl1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":            "pl1",
			"name":          "Test Playlist",
			"owner":         map[string]any{"display_name": "tester"},
			"images":        []map[string]any{{"url": "https://img.example/playlist.jpg"}},
			"external_urls": map[string]any{"spotify": "https://open.spotify.com/playlist/pl1"},
			"tracks":        f.pageJSON(0),
		})
	})

	f.mux.HandleFunc("/playlists/pl1/tracks", func(w http.ResponseWriter, r *http.Request) {
		f.pageRequests.Add(1)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if f.failOffsets[offset] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(f.pageJSON(offset))
	})

	f.mux.HandleFunc("/tracks/trk1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(f.trackJSON(1))
	})

	f.mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tracks": map[string]any{
				"items": []map[string]any{f.trackJSON(1), f.trackJSON(2)},
			},
		})
	})

	f.mux.HandleFunc("/recommendations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tracks": []map[string]any{f.trackJSON(7)},
		})
	})

	return f
}

func (f *fakeSpotify) client(t *testing.T, opts SpotifyOpts) *SpotifyClient {
	t.Helper()

	server := httptest.NewServer(f.mux)
	t.Cleanup(server.Close)

	opts.ClientID = "id"
	opts.ClientSecret = "secret"
	opts.APIURL = server.URL
	opts.AccountsURL = server.URL + "/token"
	opts.Logger = shared.NewLogger(io.Discard)

	c, err := NewSpotifyClient(opts)
	if err != nil {
		t.Fatalf("NewSpotifyClient() error: %v", err)
	}
	return c
}

func TestNewSpotifyClient(t *testing.T) {
	t.Run("Requires Credentials", func(t *testing.T) {
		_, err := NewSpotifyClient(SpotifyOpts{ClientID: "id"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Matches Spotify URLs Only", func(t *testing.T) {
		c, err := NewSpotifyClient(SpotifyOpts{ClientID: "id", ClientSecret: "secret"})
		if err != nil {
			t.Fatalf("NewSpotifyClient() error: %v", err)
		}
		if !c.Matches("https://open.spotify.com/track/6rqhFgbbKwnb9MLmUQDhG6") {
			t.Error("expected spotify track URL to match")
		}
		if c.Matches("https://music.apple.com/us/album/positions/1553944254") {
			t.Error("expected apple music URL not to match")
		}
	})
}

func TestSpotifyToken(t *testing.T) {
	ctx := context.Background()

	t.Run("Reused While Valid", func(t *testing.T) {
		f := newFakeSpotify(0, 100)
		c := f.client(t, SpotifyOpts{})

		for range 3 {
			if _, err := c.Resolve(ctx, "https://open.spotify.com/track/trk1"); err != nil {
				t.Fatalf("Resolve() error: %v", err)
			}
		}
		if got := f.tokenExchanges.Load(); got != 1 {
			t.Errorf("expected 1 token exchange, got %d", got)
		}
	})

	t.Run("Refetched After Expiry", func(t *testing.T) {
		f := newFakeSpotify(0, 100)
		f.expiresIn = 5 // inside the early-refresh window, never considered valid
		c := f.client(t, SpotifyOpts{})

		for range 2 {
			if _, err := c.Resolve(ctx, "https://open.spotify.com/track/trk1"); err != nil {
				t.Fatalf("Resolve() error: %v", err)
			}
		}
		if got := f.tokenExchanges.Load(); got != 2 {
			t.Errorf("expected 2 token exchanges, got %d", got)
		}
	})

	t.Run("Exchange Failure Surfaces As ErrAuth", func(t *testing.T) {
		f := newFakeSpotify(0, 100)
		f.mux.HandleFunc("/token2", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})
		c := f.client(t, SpotifyOpts{})
		c.accountsURL = c.accountsURL + "2"

		_, err := c.Resolve(ctx, "https://open.spotify.com/track/trk1")
		if !errors.Is(err, shared.ErrAuth) {
			t.Errorf("expected ErrAuth, got %v", err)
		}
	})
}

func TestSpotifyResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("Track", func(t *testing.T) {
		f := newFakeSpotify(0, 100)
		c := f.client(t, SpotifyOpts{})

		entity, err := c.Resolve(ctx, "https://open.spotify.com/track/trk1")
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}

		track, ok := entity.(*Track)
		if !ok {
			t.Fatalf("expected *Track, got %T", entity)
		}
		if track.Title != "Song 1" || track.Author != "Artist" {
			t.Errorf("unexpected mapping: %q by %q", track.Title, track.Author)
		}
		if track.ISRC != "USUM70000001" {
			t.Errorf("unexpected ISRC %q", track.ISRC)
		}
		if track.Thumbnail == "" {
			t.Error("expected thumbnail to be mapped")
		}
	})

	t.Run("Playlist Fetches Every Page", func(t *testing.T) {
		f := newFakeSpotify(250, 100)
		c := f.client(t, SpotifyOpts{Concurrency: 4})

		entity, err := c.Resolve(ctx, "https://open.spotify.com/playlist/pl1")
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}

		playlist, ok := entity.(*Playlist)
		if !ok {
			t.Fatalf("expected *Playlist, got %T", entity)
		}
		if len(playlist.Tracks) != 250 {
			t.Fatalf("expected 250 tracks, got %d", len(playlist.Tracks))
		}
		if playlist.Total != 250 {
			t.Errorf("expected total 250, got %d", playlist.Total)
		}
		if playlist.Degraded() {
			t.Error("expected a complete playlist")
		}
		for i, track := range playlist.Tracks {
			if want := fmt.Sprintf("track%03d", i); track.Identifier != want {
				t.Fatalf("track %d out of order: got %s, want %s", i, track.Identifier, want)
			}
			if track.Playlist != playlist {
				t.Fatal("expected track to link back to its playlist")
			}
		}
		if got := f.pageRequests.Load(); got != 2 {
			t.Errorf("expected 2 page requests, got %d", got)
		}
	})

	t.Run("Page Limit Caps Extra Pages", func(t *testing.T) {
		f := newFakeSpotify(450, 100)
		c := f.client(t, SpotifyOpts{PageLimit: 1})

		entity, err := c.Resolve(ctx, "https://open.spotify.com/playlist/pl1")
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}

		playlist := entity.(*Playlist)
		if len(playlist.Tracks) != 200 {
			t.Errorf("expected 200 tracks with a single extra page, got %d", len(playlist.Tracks))
		}
	})

	t.Run("Failed Pages Are Skipped", func(t *testing.T) {
		f := newFakeSpotify(300, 100)
		f.failOffsets = map[int]bool{200: true}
		c := f.client(t, SpotifyOpts{})

		entity, err := c.Resolve(ctx, "https://open.spotify.com/playlist/pl1")
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}

		playlist := entity.(*Playlist)
		if len(playlist.Tracks) != 200 {
			t.Errorf("expected 200 tracks, got %d", len(playlist.Tracks))
		}
		if playlist.PagesDropped != 1 {
			t.Errorf("expected 1 dropped page, got %d", playlist.PagesDropped)
		}
		if !playlist.Degraded() {
			t.Error("expected the playlist to report degradation")
		}
	})

	t.Run("Empty Playlist", func(t *testing.T) {
		f := newFakeSpotify(0, 100)
		c := f.client(t, SpotifyOpts{})

		_, err := c.Resolve(ctx, "https://open.spotify.com/playlist/pl1")
		if !errors.Is(err, shared.ErrEmptyResult) {
			t.Errorf("expected ErrEmptyResult, got %v", err)
		}
	})

	t.Run("Unknown Resource Returns RequestError", func(t *testing.T) {
		f := newFakeSpotify(0, 100)
		c := f.client(t, SpotifyOpts{})

		_, err := c.Resolve(ctx, "https://open.spotify.com/track/missing")
		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			t.Fatalf("expected *RequestError, got %v", err)
		}
		if reqErr.Status != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", reqErr.Status)
		}
	})
}

func TestSpotifyStreamPlaylist(t *testing.T) {
	ctx := context.Background()

	t.Run("Matches The Aggregate Resolve", func(t *testing.T) {
		f := newFakeSpotify(250, 100)
		c := f.client(t, SpotifyOpts{BatchSize: 60})

		entity, err := c.Resolve(ctx, "https://open.spotify.com/playlist/pl1")
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		want := make([]string, 0, 250)
		for _, track := range entity.(*Playlist).Tracks {
			want = append(want, track.Identifier)
		}

		stream, err := c.StreamPlaylist(ctx, "https://open.spotify.com/playlist/pl1")
		if err != nil {
			t.Fatalf("StreamPlaylist() error: %v", err)
		}
		var got []string
		for batch := range stream {
			if len(batch) > 60 {
				t.Errorf("batch of %d exceeds batch size 60", len(batch))
			}
			for _, track := range batch {
				got = append(got, track.Identifier)
			}
		}

		sort.Strings(want)
		sort.Strings(got)
		if len(got) != len(want) {
			t.Fatalf("expected %d streamed tracks, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("streamed track set diverges at %d: got %s, want %s", i, got[i], want[i])
			}
		}
	})

	t.Run("Rejects Non-Playlist URLs", func(t *testing.T) {
		f := newFakeSpotify(0, 100)
		c := f.client(t, SpotifyOpts{})

		_, err := c.StreamPlaylist(ctx, "https://open.spotify.com/album/alb1")
		if !errors.Is(err, shared.ErrInvalidURL) {
			t.Errorf("expected ErrInvalidURL, got %v", err)
		}
	})

	t.Run("Cancellation Ends The Stream", func(t *testing.T) {
		f := newFakeSpotify(2000, 100)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		c := f.client(t, SpotifyOpts{Concurrency: 1, BatchSize: 50})

		stream, err := c.StreamPlaylist(ctx, "https://open.spotify.com/playlist/pl1")
		if err != nil {
			t.Fatalf("StreamPlaylist() error: %v", err)
		}

		received := 0
		for batch := range stream {
			received += len(batch)
			if received >= 100 {
				cancel()
			}
		}

		if received >= 2000 {
			t.Errorf("expected the stream to end early, got all %d tracks", received)
		}
	})
}

func TestSpotifyRecommendations(t *testing.T) {
	ctx := context.Background()

	t.Run("Seeded By Track URL", func(t *testing.T) {
		f := newFakeSpotify(0, 100)
		c := f.client(t, SpotifyOpts{})

		tracks, err := c.Recommendations(ctx, "https://open.spotify.com/track/trk1")
		if err != nil {
			t.Fatalf("Recommendations() error: %v", err)
		}
		if len(tracks) != 1 || tracks[0].Identifier != "track007" {
			t.Errorf("unexpected recommendations: %+v", tracks)
		}
	})

	t.Run("Rejects Non-Track URLs", func(t *testing.T) {
		f := newFakeSpotify(0, 100)
		c := f.client(t, SpotifyOpts{})

		_, err := c.Recommendations(ctx, "https://open.spotify.com/playlist/pl1")
		if !errors.Is(err, shared.ErrInvalidURL) {
			t.Errorf("expected ErrInvalidURL, got %v", err)
		}
	})
}

func TestSpotifySearchTracks(t *testing.T) {
	f := newFakeSpotify(0, 100)
	c := f.client(t, SpotifyOpts{})

	tracks, err := c.SearchTracks(context.Background(), "song one")
	if err != nil {
		t.Fatalf("SearchTracks() error: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].Title != "Song 1" {
		t.Errorf("unexpected first result %q", tracks[0].Title)
	}
}
