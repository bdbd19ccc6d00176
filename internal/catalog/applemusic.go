// Apple Music resolver.
//
// No client credentials are required: the bearer token is the one the web
// player ships in its script bundle, scraped on demand and cached until the
// expiry encoded in the token itself.
package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muso-fm/muso/internal/shared"
	"golang.org/x/oauth2"
)

const (
	appleMusicSiteURL = "https://music.apple.com"
	appleMusicAPIURL  = "https://api.music.apple.com"
)

var (
	appleScriptRegex = regexp.MustCompile(`<script.*?src="(/assets/index-.*?)"`)
	appleTokenRegex  = regexp.MustCompile(`"(eyJ.+?)"`)
)

type appleArtwork struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type appleSong struct {
	ID         string `json:"id"`
	Attributes struct {
		Name             string       `json:"name"`
		ArtistName       string       `json:"artistName"`
		URL              string       `json:"url"`
		DurationInMillis int          `json:"durationInMillis"`
		ISRC             string       `json:"isrc"`
		Artwork          appleArtwork `json:"artwork"`
	} `json:"attributes"`
}

// appleTracksPage is one page of a collection's track relationship. Next is an
// opaque cursor: the request path of the following page.
type appleTracksPage struct {
	Data []appleSong `json:"data"`
	Next string      `json:"next"`
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
}

type appleAlbum struct {
	ID         string `json:"id"`
	Attributes struct {
		Name       string       `json:"name"`
		ArtistName string       `json:"artistName"`
		URL        string       `json:"url"`
		Artwork    appleArtwork `json:"artwork"`
	} `json:"attributes"`
	Relationships struct {
		Tracks appleTracksPage `json:"tracks"`
	} `json:"relationships"`
}

type applePlaylist struct {
	ID         string `json:"id"`
	Attributes struct {
		Name        string       `json:"name"`
		CuratorName string       `json:"curatorName"`
		URL         string       `json:"url"`
		Artwork     appleArtwork `json:"artwork"`
	} `json:"attributes"`
	Relationships struct {
		Tracks appleTracksPage `json:"tracks"`
	} `json:"relationships"`
}

type appleArtist struct {
	ID         string `json:"id"`
	Attributes struct {
		Name    string       `json:"name"`
		URL     string       `json:"url"`
		Artwork appleArtwork `json:"artwork"`
	} `json:"attributes"`
}

// AppleMusicClient resolves music.apple.com URLs.
type AppleMusicClient struct {
	httpClient *http.Client
	siteURL    string
	apiURL     string
	tokens     *tokenSource
	pager      *paginator
	batchSize  int
	log        *log.Logger
}

// AppleMusicOpts configures an AppleMusicClient.
type AppleMusicOpts struct {
	Concurrency int     // max concurrent page requests (default 6, clamped to >= 1)
	BatchSize   int     // tracks per streamed batch (default 100)
	RateLimit   float64 // page requests per second (0 = unlimited)
	HTTPClient  *http.Client
	Logger      *log.Logger
	SiteURL     string // override for tests
	APIURL      string // override for tests
}

// NewAppleMusicClient creates an Apple Music resolver.
func NewAppleMusicClient(opts AppleMusicOpts) *AppleMusicClient {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 6
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
	if opts.SiteURL == "" {
		opts.SiteURL = appleMusicSiteURL
	}
	if opts.APIURL == "" {
		opts.APIURL = appleMusicAPIURL
	}

	c := &AppleMusicClient{
		httpClient: opts.HTTPClient,
		siteURL:    opts.SiteURL,
		apiURL:     opts.APIURL,
		pager:      newPaginator(opts.Concurrency, opts.RateLimit, opts.Logger),
		batchSize:  opts.BatchSize,
		log:        opts.Logger,
	}
	c.tokens = &tokenSource{fetch: c.scrapeToken}

	return c
}

func (c *AppleMusicClient) Name() string { return "Apple Music" }

// Matches reports whether rawURL has the music.apple.com URL shape.
func (c *AppleMusicClient) Matches(rawURL string) bool {
	return appleMusicURLRegex.MatchString(rawURL)
}

// scrapeToken extracts the web player's bearer token: the main page names a
// script asset, the asset embeds a JWT, and the JWT's exp claim gives the
// expiry.
func (c *AppleMusicClient) scrapeToken(ctx context.Context) (*oauth2.Token, error) {
	page, err := fetchText(ctx, c.httpClient, c.siteURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuth, err)
	}

	m := appleScriptRegex.FindStringSubmatch(page)
	if m == nil {
		return nil, fmt.Errorf("%w: no script asset found in apple music page", shared.ErrAuth)
	}

	asset, err := fetchText(ctx, c.httpClient, c.siteURL+m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuth, err)
	}

	tm := appleTokenRegex.FindStringSubmatch(asset)
	if tm == nil {
		return nil, fmt.Errorf("%w: no token found in script asset", shared.ErrAuth)
	}

	expiry, err := jwtExpiry(tm[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuth, err)
	}

	c.log.Debug("fetched apple music bearer token", "expiry", expiry)

	return &oauth2.Token{AccessToken: tm[1], TokenType: "Bearer", Expiry: expiry}, nil
}

// jwtExpiry decodes the exp claim of an unverified JWT.
func jwtExpiry(token string) (time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("malformed token")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to decode token payload: %w", err)
	}

	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token claims: %w", err)
	}
	if claims.Exp == 0 {
		return time.Time{}, fmt.Errorf("token missing exp claim")
	}

	return time.Unix(claims.Exp, 0), nil
}

// getJSON performs an authenticated GET against the Apple Music API.
func (c *AppleMusicClient) getJSON(ctx context.Context, bearer, rawURL string, result any) error {
	header := http.Header{
		"Authorization": {"Bearer " + bearer},
		"Origin":        {"https://apple.com"},
	}
	return fetchJSON(ctx, c.httpClient, rawURL, header, result)
}

// resourceURL builds the catalog lookup URL for a route.
func (c *AppleMusicClient) resourceURL(route Route) string {
	segment := string(route.Kind) + "s"
	if route.Kind == KindTrack {
		segment = "songs"
	}
	return fmt.Sprintf("%s/v1/catalog/%s/%s/%s", c.apiURL, route.Country, segment, route.ID)
}

// Resolve fetches the entity behind an Apple Music URL.
func (c *AppleMusicClient) Resolve(ctx context.Context, rawURL string) (Entity, error) {
	bearer, err := c.tokens.bearer(ctx)
	if err != nil {
		return nil, err
	}

	route, err := parseAppleMusicRoute(rawURL)
	if err != nil {
		return nil, err
	}

	logger := shared.WithLogger(c.log, "request_id", shared.GenerateID(), "kind", route.Kind, "id", route.ID)
	resourceURL := c.resourceURL(route)

	switch route.Kind {
	case KindTrack:
		var envelope struct {
			Data []appleSong `json:"data"`
		}
		if err := c.getJSON(ctx, bearer, resourceURL, &envelope); err != nil {
			return nil, err
		}
		if len(envelope.Data) == 0 {
			return nil, fmt.Errorf("%w: song %s", shared.ErrEmptyResult, route.ID)
		}
		return mapAppleSong(&envelope.Data[0]), nil

	case KindAlbum:
		var envelope struct {
			Data []appleAlbum `json:"data"`
		}
		if err := c.getJSON(ctx, bearer, resourceURL, &envelope); err != nil {
			return nil, err
		}
		if len(envelope.Data) == 0 {
			return nil, fmt.Errorf("%w: album %s", shared.ErrEmptyResult, route.ID)
		}
		return mapAppleAlbum(&envelope.Data[0]), nil

	case KindArtist:
		var envelope struct {
			Data []appleArtist `json:"data"`
		}
		if err := c.getJSON(ctx, bearer, resourceURL, &envelope); err != nil {
			return nil, err
		}
		if len(envelope.Data) == 0 {
			return nil, fmt.Errorf("%w: artist %s", shared.ErrEmptyResult, route.ID)
		}
		var top struct {
			Data []appleSong `json:"data"`
		}
		if err := c.getJSON(ctx, bearer, resourceURL+"/view/top-songs", &top); err != nil {
			return nil, err
		}
		return mapAppleArtist(&envelope.Data[0], top.Data), nil

	default:
		var envelope struct {
			Data []applePlaylist `json:"data"`
		}
		if err := c.getJSON(ctx, bearer, resourceURL, &envelope); err != nil {
			return nil, err
		}
		if len(envelope.Data) == 0 {
			return nil, fmt.Errorf("%w: playlist %s", shared.ErrEmptyResult, route.ID)
		}
		return c.resolvePlaylist(ctx, bearer, logger, &envelope.Data[0])
	}
}

// resolvePlaylist materializes a playlist from its first page, following the
// cursor chain in waves.
func (c *AppleMusicClient) resolvePlaylist(ctx context.Context, bearer string, logger *log.Logger, raw *applePlaylist) (*Playlist, error) {
	playlist := mapApplePlaylist(raw)
	if len(playlist.Tracks) == 0 {
		return nil, fmt.Errorf("%w: playlist %s", shared.ErrEmptyResult, raw.ID)
	}

	if next := raw.Relationships.Tracks.Next; next != "" {
		logger.Debug("following playlist cursor chain")
		rest, dropped := c.pager.collectCursors(ctx, next, c.pageFetcher(bearer))
		playlist.Tracks = append(playlist.Tracks, rest...)
		playlist.PagesDropped = dropped
	}
	if playlist.Total = raw.Relationships.Tracks.Meta.Total; playlist.Total == 0 {
		playlist.Total = len(playlist.Tracks)
	}

	for _, track := range playlist.Tracks {
		track.Playlist = playlist
	}

	return playlist, nil
}

// pageFetcher returns a cursorPage that resolves cursors against the API host.
func (c *AppleMusicClient) pageFetcher(bearer string) cursorPage {
	return func(ctx context.Context, cursor string) ([]*Track, string, error) {
		var page appleTracksPage
		if err := c.getJSON(ctx, bearer, c.apiURL+cursor, &page); err != nil {
			return nil, "", err
		}
		return mapAppleSongs(page.Data), page.Next, nil
	}
}

// StreamPlaylist resolves a playlist URL lazily. The first page's tracks are
// emitted immediately in batches; remaining pages arrive batch by batch as
// their wave completes. Cancelling ctx stops future waves, though in-flight
// page requests run to completion.
func (c *AppleMusicClient) StreamPlaylist(ctx context.Context, rawURL string) (<-chan []*Track, error) {
	bearer, err := c.tokens.bearer(ctx)
	if err != nil {
		return nil, err
	}

	route, err := parseAppleMusicRoute(rawURL)
	if err != nil {
		return nil, err
	}
	if route.Kind != KindPlaylist {
		return nil, fmt.Errorf("%w: not an apple music playlist link: %s", shared.ErrInvalidURL, rawURL)
	}

	var envelope struct {
		Data []applePlaylist `json:"data"`
	}
	if err := c.getJSON(ctx, bearer, c.resourceURL(route), &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("%w: playlist %s", shared.ErrEmptyResult, route.ID)
	}

	raw := &envelope.Data[0]
	first := mapAppleSongs(raw.Relationships.Tracks.Data)
	next := raw.Relationships.Tracks.Next

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

		c.pager.cursorWaves(ctx, next, c.pageFetcher(bearer), func(page []*Track) {
			for _, batch := range batches(page, c.batchSize) {
				send(batch)
			}
		})
	}()

	return out, nil
}

// artworkURL fills the {w}x{h} placeholders Apple Music uses in artwork URLs.
func artworkURL(art appleArtwork) string {
	if art.URL == "" {
		return ""
	}
	width, height := art.Width, art.Height
	if width == 0 {
		width = 600
	}
	if height == 0 {
		height = 600
	}
	url := strings.Replace(art.URL, "{w}", strconv.Itoa(width), 1)
	return strings.Replace(url, "{h}", strconv.Itoa(height), 1)
}

// mapAppleSong converts a raw song record into a Track entity.
func mapAppleSong(raw *appleSong) *Track {
	return &Track{
		Identifier: raw.ID,
		Title:      raw.Attributes.Name,
		Author:     raw.Attributes.ArtistName,
		URI:        raw.Attributes.URL,
		Length:     raw.Attributes.DurationInMillis,
		ISRC:       raw.Attributes.ISRC,
		Thumbnail:  artworkURL(raw.Attributes.Artwork),
	}
}

func mapAppleSongs(raw []appleSong) []*Track {
	tracks := make([]*Track, 0, len(raw))
	for i := range raw {
		tracks = append(tracks, mapAppleSong(&raw[i]))
	}
	return tracks
}

func mapAppleAlbum(raw *appleAlbum) *Album {
	return &Album{
		Identifier: raw.ID,
		Name:       raw.Attributes.Name,
		Author:     raw.Attributes.ArtistName,
		URI:        raw.Attributes.URL,
		Thumbnail:  artworkURL(raw.Attributes.Artwork),
		Tracks:     mapAppleSongs(raw.Relationships.Tracks.Data),
	}
}

func mapApplePlaylist(raw *applePlaylist) *Playlist {
	return &Playlist{
		Identifier: raw.ID,
		Name:       raw.Attributes.Name,
		Owner:      raw.Attributes.CuratorName,
		URI:        raw.Attributes.URL,
		Thumbnail:  artworkURL(raw.Attributes.Artwork),
		Tracks:     mapAppleSongs(raw.Relationships.Tracks.Data),
	}
}

func mapAppleArtist(raw *appleArtist, top []appleSong) *Artist {
	return &Artist{
		Identifier: raw.ID,
		Name:       raw.Attributes.Name,
		URI:        raw.Attributes.URL,
		Thumbnail:  artworkURL(raw.Attributes.Artwork),
		TopTracks:  mapAppleSongs(top),
	}
}
