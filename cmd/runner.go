package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/muso-fm/muso/internal/catalog"
	"github.com/muso-fm/muso/internal/formatter"
	"github.com/muso-fm/muso/internal/repositories"
	"github.com/muso-fm/muso/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config    *shared.Config
	spotify   *catalog.SpotifyClient
	resolvers []catalog.Resolver
	logger    *log.Logger
	output    io.Writer
	db        *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Spotify    *catalog.SpotifyClient
	AppleMusic *catalog.AppleMusicClient
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	var resolvers []catalog.Resolver
	if opts.Spotify != nil {
		resolvers = append(resolvers, opts.Spotify)
	}
	if opts.AppleMusic != nil {
		resolvers = append(resolvers, opts.AppleMusic)
	}

	return &Runner{
		config:    opts.Config,
		spotify:   opts.Spotify,
		resolvers: resolvers,
		logger:    opts.Logger,
		output:    opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		resolveCommand, streamCommand, exportCommand, searchCommand, recommendCommand, setupCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// openDB lazily opens the track cache database and runs pending migrations.
func (r *Runner) openDB() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	r.db = db
	return db, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	fmt.Fprintln(r.output, string(output))
	return nil
}

// Resolve handles the resolve command: URL in, entity summary out.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	rawURL := cmd.Args().First()
	if rawURL == "" {
		return fmt.Errorf("%w: url", shared.ErrMissingArgument)
	}

	resolver, err := catalog.Match(r.resolvers, rawURL)
	if err != nil {
		return err
	}

	entity, err := resolver.Resolve(ctx, rawURL)
	if err != nil {
		return err
	}

	if cmd.Bool("cache") {
		if err := r.cacheEntity(resolver.Name(), entity); err != nil {
			r.logger.Warn("failed to cache resolved tracks", "err", err)
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(entity, cmd.Bool("pretty"))
	}

	r.printEntity(resolver.Name(), entity)
	return nil
}

// printEntity writes a human-readable summary of a resolved entity.
func (r *Runner) printEntity(provider string, entity catalog.Entity) {
	switch e := entity.(type) {
	case *catalog.Track:
		fmt.Fprintf(r.output, "%s track: %s - %s (%s)\n", provider, e.Author, e.Title, e.URI)
	case *catalog.Album:
		fmt.Fprintf(r.output, "%s album: %s - %s, %d tracks\n", provider, e.Author, e.Name, len(e.Tracks))
	case *catalog.Artist:
		fmt.Fprintf(r.output, "%s artist: %s, %d top tracks\n", provider, e.Name, len(e.TopTracks))
	case *catalog.Playlist:
		fmt.Fprintf(r.output, "%s playlist: %s, %d/%d tracks\n", provider, e.Name, len(e.Tracks), e.Total)
		if e.Degraded() {
			fmt.Fprintf(r.output, "warning: %d pages could not be fetched\n", e.PagesDropped)
		}
	}
}

// cacheEntity records an entity's tracks in the local cache.
func (r *Runner) cacheEntity(provider string, entity catalog.Entity) error {
	db, err := r.openDB()
	if err != nil {
		return err
	}
	cache := repositories.NewTrackCache(repositories.NewTrackRepository(db))

	var tracks []*catalog.Track
	switch e := entity.(type) {
	case *catalog.Track:
		tracks = []*catalog.Track{e}
	case *catalog.Album:
		tracks = e.Tracks
	case *catalog.Playlist:
		tracks = e.Tracks
	case *catalog.Artist:
		tracks = e.TopTracks
	}

	return cache.CacheTracks(provider, tracks)
}

// Stream handles the stream command, printing playlist batches as they arrive.
func (r *Runner) Stream(ctx context.Context, cmd *cli.Command) error {
	rawURL := cmd.Args().First()
	if rawURL == "" {
		return fmt.Errorf("%w: url", shared.ErrMissingArgument)
	}

	resolver, err := catalog.Match(r.resolvers, rawURL)
	if err != nil {
		return err
	}

	stream, err := resolver.StreamPlaylist(ctx, rawURL)
	if err != nil {
		return err
	}

	total := 0
	for batch := range stream {
		total += len(batch)
		if cmd.Bool("titles") {
			for _, track := range batch {
				fmt.Fprintf(r.output, "%s - %s\n", track.Author, track.Title)
			}
			continue
		}
		fmt.Fprintf(r.output, "batch of %d tracks (%d so far)\n", len(batch), total)
	}
	fmt.Fprintf(r.output, "streamed %d tracks\n", total)

	return nil
}

// Export handles the export command: resolve a playlist and write it to a file.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	rawURL := cmd.Args().First()
	if rawURL == "" {
		return fmt.Errorf("%w: url", shared.ErrMissingArgument)
	}

	resolver, err := catalog.Match(r.resolvers, rawURL)
	if err != nil {
		return err
	}

	entity, err := resolver.Resolve(ctx, rawURL)
	if err != nil {
		return err
	}

	playlist, ok := entity.(*catalog.Playlist)
	if !ok {
		// Albums export fine as playlists
		if album, isAlbum := entity.(*catalog.Album); isAlbum {
			playlist = &catalog.Playlist{
				Identifier: album.Identifier,
				Name:       album.Name,
				Owner:      album.Author,
				URI:        album.URI,
				Thumbnail:  album.Thumbnail,
				Tracks:     album.Tracks,
				Total:      len(album.Tracks),
			}
		} else {
			return fmt.Errorf("%w: export requires a playlist or album URL", shared.ErrInvalidInput)
		}
	}

	output := cmd.String("output")
	if err := formatter.WriteExport(playlist, cmd.String("format"), output); err != nil {
		return err
	}

	fmt.Fprintf(r.output, "exported %d tracks to %s\n", len(playlist.Tracks), output)
	return nil
}

// Search handles the search command.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		return fmt.Errorf("%w: spotify credentials not configured", shared.ErrMissingCredentials)
	}

	query := cmd.Args().First()
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}

	tracks, err := r.spotify.SearchTracks(ctx, query)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, true)
	}

	for _, track := range tracks {
		fmt.Fprintf(r.output, "%s - %s (%s)\n", track.Author, track.Title, track.URI)
	}
	return nil
}

// Recommend handles the recommend command.
func (r *Runner) Recommend(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		return fmt.Errorf("%w: spotify credentials not configured", shared.ErrMissingCredentials)
	}

	rawURL := cmd.Args().First()
	if rawURL == "" {
		return fmt.Errorf("%w: url", shared.ErrMissingArgument)
	}

	tracks, err := r.spotify.Recommendations(ctx, rawURL)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, true)
	}

	for _, track := range tracks {
		fmt.Fprintf(r.output, "%s - %s (%s)\n", track.Author, track.Title, track.URI)
	}
	return nil
}

// Setup handles the setup command: write a starter config and initialize the
// cache database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := shared.CreateConfigFile(path); err != nil {
		r.logger.Warn("skipping config creation", "err", err)
	} else {
		fmt.Fprintf(r.output, "created %s\n", path)
	}

	if _, err := r.openDB(); err != nil {
		return err
	}

	fmt.Fprintf(r.output, "track cache ready at %s\n", r.config.Database.Path)
	return nil
}

// CacheList handles the cache list command.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDB()
	if err != nil {
		return err
	}

	repo := repositories.NewTrackRepository(db)
	tracks, err := repo.List(cmd.String("provider"), int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	for _, cached := range tracks {
		fmt.Fprintf(r.output, "%s\t%s - %s\n", cached.ProviderID, cached.Track.Author, cached.Track.Title)
	}
	return nil
}

// CacheStats handles the cache stats command.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDB()
	if err != nil {
		return err
	}

	count, err := repositories.NewTrackRepository(db).Count()
	if err != nil {
		return err
	}

	fmt.Fprintf(r.output, "%d cached tracks\n", count)
	return nil
}
