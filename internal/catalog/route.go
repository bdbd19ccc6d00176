package catalog

import (
	"fmt"
	"regexp"

	"github.com/muso-fm/muso/internal/shared"
)

var (
	spotifyURLRegex = regexp.MustCompile(
		`^https?://open\.spotify\.com/(?:intl-[a-zA-Z-]+/)?(track|album|playlist|artist)/([a-zA-Z0-9]+)(?:/)?(?:\?.*)?$`,
	)

	appleMusicURLRegex = regexp.MustCompile(
		`^https?://music\.apple\.com/([a-zA-Z]{2})/(album|playlist|song|artist)/(?:.+?)/([^/?]+?)(?:/)?(?:\?.*)?$`,
	)
	// Apple Music links a single off an album by appending ?i=<track id> to the
	// album URL. Checked before classifying a link as an album.
	appleSingleInAlbumRegex = regexp.MustCompile(
		`^https?://music\.apple\.com/[a-zA-Z]{2}/album/.+/[^/?]+\?i=([^&]+)`,
	)
)

// Route is the parsed {type, id} extracted from a catalog URL. It is derived
// purely from the URL and carries no lifecycle beyond the parse call.
type Route struct {
	Kind    Kind
	ID      string
	Country string // Apple Music storefront; empty for Spotify routes
}

// parseSpotifyRoute matches rawURL against the open.spotify.com URL shape.
func parseSpotifyRoute(rawURL string) (Route, error) {
	m := spotifyURLRegex.FindStringSubmatch(rawURL)
	if m == nil {
		return Route{}, fmt.Errorf("%w: %s", shared.ErrInvalidURL, rawURL)
	}
	return Route{Kind: Kind(m[1]), ID: m[2]}, nil
}

// parseAppleMusicRoute matches rawURL against the music.apple.com URL shape,
// reclassifying single-in-album links from album to track.
func parseAppleMusicRoute(rawURL string) (Route, error) {
	m := appleMusicURLRegex.FindStringSubmatch(rawURL)
	if m == nil {
		return Route{}, fmt.Errorf("%w: %s", shared.ErrInvalidURL, rawURL)
	}

	route := Route{Country: m[1], ID: m[3]}
	switch m[2] {
	case "song":
		route.Kind = KindTrack
	case "album":
		route.Kind = KindAlbum
		if sub := appleSingleInAlbumRegex.FindStringSubmatch(rawURL); sub != nil {
			route.Kind = KindTrack
			route.ID = sub[1]
		}
	default:
		route.Kind = Kind(m[2])
	}

	return route, nil
}
