// Spotify resolver.
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muso-fm/muso/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAccountsURL = "https://accounts.spotify.com/api/token"
	spotifyAPIURL      = "https://api.spotify.com/v1"

	// Reduced projection for pagination requests. The first page is requested
	// without a filter because the playlist's own metadata is needed.
	spotifyPageFields = "items(track(name,duration_ms,id,is_local,external_urls,external_ids,artists(name),album(images))),next"
)

type spotifyTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type spotifyImage struct {
	URL string `json:"url"`
}

type spotifyArtistRef struct {
	Name string `json:"name"`
}

type spotifyExternalURLs struct {
	Spotify string `json:"spotify"`
}

type spotifyExternalIDs struct {
	ISRC string `json:"isrc"`
}

// spotifyTrack represents a Spotify track object, full or simplified.
type spotifyTrack struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	DurationMS   int                 `json:"duration_ms"`
	IsLocal      bool                `json:"is_local"`
	Artists      []spotifyArtistRef  `json:"artists"`
	Album        spotifyAlbumRef     `json:"album"`
	ExternalURLs spotifyExternalURLs `json:"external_urls"`
	ExternalIDs  spotifyExternalIDs  `json:"external_ids"`
}

type spotifyAlbumRef struct {
	Images []spotifyImage `json:"images"`
}

// spotifyTracksPage represents one page of a playlist's tracks, including the
// pagination descriptor (offset style: limit + total).
type spotifyTracksPage struct {
	Items []struct {
		Track *spotifyTrack `json:"track"`
	} `json:"items"`
	Total int     `json:"total"`
	Limit int     `json:"limit"`
	Next  *string `json:"next"`
}

// spotifyAlbum represents a Spotify album with its embedded track listing.
type spotifyAlbum struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Artists      []spotifyArtistRef `json:"artists"`
	Images       []spotifyImage     `json:"images"`
	ExternalURLs spotifyExternalURLs `json:"external_urls"`
	Tracks       struct {
		Items []spotifyTrack `json:"items"`
	} `json:"tracks"`
}

// spotifyPlaylist represents a Spotify playlist with its first page of tracks.
type spotifyPlaylist struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner struct {
		DisplayName string `json:"display_name"`
	} `json:"owner"`
	Images       []spotifyImage      `json:"images"`
	ExternalURLs spotifyExternalURLs `json:"external_urls"`
	Tracks       spotifyTracksPage   `json:"tracks"`
}

type spotifyArtist struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Images       []spotifyImage      `json:"images"`
	ExternalURLs spotifyExternalURLs `json:"external_urls"`
}

// SpotifyClient resolves open.spotify.com URLs. It authenticates with the
// client-credentials grant and caches the bearer token until expiry.
type SpotifyClient struct {
	httpClient  *http.Client
	apiURL      string
	accountsURL string
	authHeader  string
	tokens      *tokenSource
	pager       *paginator
	pageLimit   int
	batchSize   int
	log         *log.Logger
}

// SpotifyOpts configures a SpotifyClient.
type SpotifyOpts struct {
	ClientID     string
	ClientSecret string
	Concurrency  int     // max concurrent page requests (default 10, clamped to >= 1)
	PageLimit    int     // cap on extra pages fetched per playlist (0 = no cap)
	BatchSize    int     // tracks per streamed batch (default 100)
	RateLimit    float64 // page requests per second (0 = unlimited)
	HTTPClient   *http.Client
	Logger       *log.Logger
	APIURL       string // override for tests
	AccountsURL  string // override for tests
}

// NewSpotifyClient creates a Spotify resolver with the given credentials.
func NewSpotifyClient(opts SpotifyOpts) (*SpotifyClient, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret are required", shared.ErrMissingCredentials)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.APIURL == "" {
		opts.APIURL = spotifyAPIURL
	}
	if opts.AccountsURL == "" {
		opts.AccountsURL = spotifyAccountsURL
	}

	basic := base64.StdEncoding.EncodeToString([]byte(opts.ClientID + ":" + opts.ClientSecret))

	c := &SpotifyClient{
		httpClient:  opts.HTTPClient,
		apiURL:      opts.APIURL,
		accountsURL: opts.AccountsURL,
		authHeader:  "Basic " + basic,
		pager:       newPaginator(opts.Concurrency, opts.RateLimit, opts.Logger),
		pageLimit:   opts.PageLimit,
		batchSize:   opts.BatchSize,
		log:         opts.Logger,
	}
	c.tokens = &tokenSource{fetch: c.exchangeToken}

	return c, nil
}

func (c *SpotifyClient) Name() string { return "Spotify" }

// Matches reports whether rawURL has the open.spotify.com URL shape.
func (c *SpotifyClient) Matches(rawURL string) bool {
	return spotifyURLRegex.MatchString(rawURL)
}

// exchangeToken performs the client-credentials grant against the accounts
// endpoint. The returned token expires expires_in seconds from now; the token
// cache refreshes slightly early.
func (c *SpotifyClient) exchangeToken(ctx context.Context) (*oauth2.Token, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuth, err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: token exchange returned %d %s", shared.ErrAuth, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var payload spotifyTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: malformed token response: %v", shared.ErrAuth, err)
	}
	if payload.AccessToken == "" || payload.ExpiresIn <= 0 {
		return nil, fmt.Errorf("%w: token response missing access_token or expires_in", shared.ErrAuth)
	}

	c.log.Debug("fetched spotify bearer token", "expires_in", payload.ExpiresIn)

	return &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}

// getJSON performs an authenticated GET against the Spotify API.
func (c *SpotifyClient) getJSON(ctx context.Context, bearer, rawURL string, result any) error {
	header := http.Header{"Authorization": {"Bearer " + bearer}}
	return fetchJSON(ctx, c.httpClient, rawURL, header, result)
}

// Resolve fetches the entity behind a Spotify URL.
func (c *SpotifyClient) Resolve(ctx context.Context, rawURL string) (Entity, error) {
	bearer, err := c.tokens.bearer(ctx)
	if err != nil {
		return nil, err
	}

	route, err := parseSpotifyRoute(rawURL)
	if err != nil {
		return nil, err
	}

	logger := shared.WithLogger(c.log, "request_id", shared.GenerateID(), "kind", route.Kind, "id", route.ID)
	resourceURL := fmt.Sprintf("%s/%ss/%s", c.apiURL, route.Kind, route.ID)

	switch route.Kind {
	case KindTrack:
		var raw spotifyTrack
		if err := c.getJSON(ctx, bearer, resourceURL, &raw); err != nil {
			return nil, err
		}
		return mapSpotifyTrack(&raw), nil

	case KindAlbum:
		var raw spotifyAlbum
		if err := c.getJSON(ctx, bearer, resourceURL, &raw); err != nil {
			return nil, err
		}
		return mapSpotifyAlbum(&raw), nil

	case KindArtist:
		var raw spotifyArtist
		if err := c.getJSON(ctx, bearer, resourceURL, &raw); err != nil {
			return nil, err
		}
		var top struct {
			Tracks []spotifyTrack `json:"tracks"`
		}
		if err := c.getJSON(ctx, bearer, resourceURL+"/top-tracks?market=US", &top); err != nil {
			return nil, err
		}
		return mapSpotifyArtist(&raw, top.Tracks), nil

	default:
		var raw spotifyPlaylist
		if err := c.getJSON(ctx, bearer, resourceURL, &raw); err != nil {
			return nil, err
		}
		return c.resolvePlaylist(ctx, bearer, logger, resourceURL, &raw)
	}
}

// resolvePlaylist materializes a playlist from its first page, paginating the
// remainder in waves.
func (c *SpotifyClient) resolvePlaylist(ctx context.Context, bearer string, logger *log.Logger, resourceURL string, raw *spotifyPlaylist) (*Playlist, error) {
	playlist := mapSpotifyPlaylist(raw)
	if len(playlist.Tracks) == 0 {
		return nil, fmt.Errorf("%w: playlist %s", shared.ErrEmptyResult, raw.ID)
	}

	offsets := remainingOffsets(raw.Tracks.Limit, raw.Tracks.Total, c.pageLimit)
	if len(offsets) > 0 {
		logger.Debug("paginating playlist", "total", raw.Tracks.Total, "limit", raw.Tracks.Limit, "pages", len(offsets))
		rest, dropped := c.pager.collectOffsets(ctx, offsets, c.pageFetcher(bearer, resourceURL, raw.Tracks.Limit))
		playlist.Tracks = append(playlist.Tracks, rest...)
		playlist.PagesDropped = dropped
	}

	for _, track := range playlist.Tracks {
		track.Playlist = playlist
	}

	return playlist, nil
}

// pageFetcher returns an offsetPage bound to one playlist's tracks endpoint,
// requesting the reduced fields projection.
func (c *SpotifyClient) pageFetcher(bearer, resourceURL string, limit int) offsetPage {
	return func(ctx context.Context, offset int) ([]*Track, error) {
		pageURL := fmt.Sprintf("%s/tracks?offset=%d&limit=%d&fields=%s",
			resourceURL, offset, limit, url.QueryEscape(spotifyPageFields))
		var page spotifyTracksPage
		if err := c.getJSON(ctx, bearer, pageURL, &page); err != nil {
			return nil, err
		}
		return mapSpotifyItems(&page), nil
	}
}

// StreamPlaylist resolves a playlist URL lazily. The first page's tracks are
// emitted immediately in batches; remaining pages arrive batch by batch as
// their wave completes. Cancelling ctx stops future waves, though in-flight
// page requests run to completion.
func (c *SpotifyClient) StreamPlaylist(ctx context.Context, rawURL string) (<-chan []*Track, error) {
	bearer, err := c.tokens.bearer(ctx)
	if err != nil {
		return nil, err
	}

	route, err := parseSpotifyRoute(rawURL)
	if err != nil {
		return nil, err
	}
	if route.Kind != KindPlaylist {
		return nil, fmt.Errorf("%w: not a spotify playlist link: %s", shared.ErrInvalidURL, rawURL)
	}

	resourceURL := fmt.Sprintf("%s/playlists/%s", c.apiURL, route.ID)
	var raw spotifyPlaylist
	if err := c.getJSON(ctx, bearer, resourceURL, &raw); err != nil {
		return nil, err
	}

	first := mapSpotifyItems(&raw.Tracks)
	offsets := remainingOffsets(raw.Tracks.Limit, raw.Tracks.Total, c.pageLimit)

	out := make(chan []*Track)
	go func() {
		defer close(out)

		send := func(batch []*Track) {
			select {
			case out <- batch:
			case <-ctx.Done():
			}
		}

		for _, batch := range batches(first, c.batchSize) {
			send(batch)
		}

		c.pager.offsetWaves(ctx, offsets, c.pageFetcher(bearer, resourceURL, raw.Tracks.Limit), func(page []*Track) {
			for _, batch := range batches(page, c.batchSize) {
				send(batch)
			}
		})
	}()

	return out, nil
}

// Recommendations returns tracks similar to the given track link.
func (c *SpotifyClient) Recommendations(ctx context.Context, rawURL string) ([]*Track, error) {
	bearer, err := c.tokens.bearer(ctx)
	if err != nil {
		return nil, err
	}

	route, err := parseSpotifyRoute(rawURL)
	if err != nil {
		return nil, err
	}
	if route.Kind != KindTrack {
		return nil, fmt.Errorf("%w: recommendations require a spotify track link", shared.ErrInvalidURL)
	}

	reqURL := fmt.Sprintf("%s/recommendations?seed_tracks=%s", c.apiURL, route.ID)
	var raw struct {
		Tracks []spotifyTrack `json:"tracks"`
	}
	if err := c.getJSON(ctx, bearer, reqURL, &raw); err != nil {
		return nil, err
	}

	return mapSpotifyTracks(raw.Tracks), nil
}

// SearchTracks performs a free-text track search.
func (c *SpotifyClient) SearchTracks(ctx context.Context, query string) ([]*Track, error) {
	bearer, err := c.tokens.bearer(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/search?q=%s&type=track", c.apiURL, url.QueryEscape(query))
	var raw struct {
		Tracks struct {
			Items []spotifyTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := c.getJSON(ctx, bearer, reqURL, &raw); err != nil {
		return nil, err
	}

	return mapSpotifyTracks(raw.Tracks.Items), nil
}

// mapSpotifyTrack converts a raw track record into a Track entity.
func mapSpotifyTrack(raw *spotifyTrack) *Track {
	track := &Track{
		Identifier: raw.ID,
		Title:      raw.Name,
		URI:        raw.ExternalURLs.Spotify,
		Length:     raw.DurationMS,
		ISRC:       raw.ExternalIDs.ISRC,
	}
	if len(raw.Artists) > 0 {
		track.Author = raw.Artists[0].Name
	}
	if len(raw.Album.Images) > 0 {
		track.Thumbnail = raw.Album.Images[0].URL
	}
	return track
}

func mapSpotifyTracks(raw []spotifyTrack) []*Track {
	tracks := make([]*Track, 0, len(raw))
	for i := range raw {
		tracks = append(tracks, mapSpotifyTrack(&raw[i]))
	}
	return tracks
}

// mapSpotifyItems converts a page of playlist items, skipping entries whose
// track record is missing (removed or local-only content).
func mapSpotifyItems(page *spotifyTracksPage) []*Track {
	tracks := make([]*Track, 0, len(page.Items))
	for _, item := range page.Items {
		if item.Track == nil {
			continue
		}
		tracks = append(tracks, mapSpotifyTrack(item.Track))
	}
	return tracks
}

func mapSpotifyAlbum(raw *spotifyAlbum) *Album {
	album := &Album{
		Identifier: raw.ID,
		Name:       raw.Name,
		URI:        raw.ExternalURLs.Spotify,
		Tracks:     mapSpotifyTracks(raw.Tracks.Items),
	}
	if len(raw.Artists) > 0 {
		album.Author = raw.Artists[0].Name
	}
	if len(raw.Images) > 0 {
		album.Thumbnail = raw.Images[0].URL
		// Simplified album tracks carry no image of their own
		for _, track := range album.Tracks {
			if track.Thumbnail == "" {
				track.Thumbnail = album.Thumbnail
			}
		}
	}
	return album
}

func mapSpotifyPlaylist(raw *spotifyPlaylist) *Playlist {
	playlist := &Playlist{
		Identifier: raw.ID,
		Name:       raw.Name,
		Owner:      raw.Owner.DisplayName,
		URI:        raw.ExternalURLs.Spotify,
		Tracks:     mapSpotifyItems(&raw.Tracks),
		Total:      raw.Tracks.Total,
	}
	if len(raw.Images) > 0 {
		playlist.Thumbnail = raw.Images[0].URL
	}
	return playlist
}

func mapSpotifyArtist(raw *spotifyArtist, top []spotifyTrack) *Artist {
	artist := &Artist{
		Identifier: raw.ID,
		Name:       raw.Name,
		URI:        raw.ExternalURLs.Spotify,
		TopTracks:  mapSpotifyTracks(top),
	}
	if len(raw.Images) > 0 {
		artist.Thumbnail = raw.Images[0].URL
	}
	return artist
}
