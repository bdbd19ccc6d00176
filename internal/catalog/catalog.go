// package catalog resolves catalog URLs (track, album, playlist and artist
// links) from metadata providers into structured entities.
//
// Large playlists are paginated transparently: remaining pages are fetched in
// waves under a bounded number of concurrent requests, and pages that fail are
// skipped rather than failing the whole resolve. A streaming variant yields
// tracks in batches as pages arrive instead of materializing the playlist.
package catalog

import (
	"context"
	"fmt"

	"github.com/muso-fm/muso/internal/shared"
)

// Kind identifies which variant of catalog entity a route or response refers to.
type Kind string

const (
	KindTrack    Kind = "track"
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
	KindArtist   Kind = "artist"
)

// Entity is a resolved catalog object: *Track, *Album, *Playlist or *Artist.
type Entity interface {
	Kind() Kind
}

// Track represents a single resolved track.
type Track struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	URI        string `json:"uri"`
	Length     int    `json:"length_ms"`
	IsStream   bool   `json:"is_stream"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	ISRC       string `json:"isrc,omitempty"`

	// Playlist is a descriptive back-link to the playlist this track was
	// resolved from, if any. Not set for standalone lookups.
	Playlist *Playlist `json:"-"`
}

func (*Track) Kind() Kind { return KindTrack }

// Album represents a resolved album and the tracks on it.
type Album struct {
	Identifier string   `json:"identifier"`
	Name       string   `json:"name"`
	Author     string   `json:"author"`
	URI        string   `json:"uri"`
	Thumbnail  string   `json:"thumbnail,omitempty"`
	Tracks     []*Track `json:"tracks"`
}

func (*Album) Kind() Kind { return KindAlbum }

// Playlist represents a resolved playlist. Tracks are appended in the order
// pages completed their wave, which approximates but does not guarantee the
// provider's canonical order for very large playlists.
type Playlist struct {
	Identifier string   `json:"identifier"`
	Name       string   `json:"name"`
	Owner      string   `json:"owner,omitempty"`
	URI        string   `json:"uri"`
	Thumbnail  string   `json:"thumbnail,omitempty"`
	Tracks     []*Track `json:"tracks"`

	// Total is the provider-reported track count. The resolved track count is
	// lower when pages were dropped.
	Total int `json:"total"`

	// PagesDropped counts pagination pages skipped due to fetch failures.
	PagesDropped int `json:"pages_dropped,omitempty"`
}

func (*Playlist) Kind() Kind { return KindPlaylist }

// Degraded reports whether any pages were lost while resolving this playlist.
func (p *Playlist) Degraded() bool { return p.PagesDropped > 0 }

// Artist represents a resolved artist and their top tracks.
type Artist struct {
	Identifier string   `json:"identifier"`
	Name       string   `json:"name"`
	URI        string   `json:"uri"`
	Thumbnail  string   `json:"thumbnail,omitempty"`
	TopTracks  []*Track `json:"top_tracks"`
}

func (*Artist) Kind() Kind { return KindArtist }

// Resolver resolves catalog URLs for a single provider.
type Resolver interface {
	// Name returns the provider name (e.g. "Spotify", "Apple Music").
	Name() string

	// Matches reports whether rawURL has this provider's URL shape.
	Matches(rawURL string) bool

	// Resolve fetches the entity behind rawURL. Playlists are fully
	// materialized, paginating as needed.
	Resolve(ctx context.Context, rawURL string) (Entity, error)

	// StreamPlaylist resolves a playlist URL lazily, yielding tracks in
	// batches over the returned channel as pages arrive. The channel closes
	// once all pages have been fetched; cancel ctx to abandon the stream.
	StreamPlaylist(ctx context.Context, rawURL string) (<-chan []*Track, error)
}

// Match returns the first resolver whose URL shape matches rawURL.
func Match(resolvers []Resolver, rawURL string) (Resolver, error) {
	for _, r := range resolvers {
		if r.Matches(rawURL) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrInvalidURL, rawURL)
}
