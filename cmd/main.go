package main

import (
	"context"
	"errors"
	"os"

	"github.com/muso-fm/muso/internal/catalog"
	"github.com/muso-fm/muso/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	var spotify *catalog.SpotifyClient
	if config.Spotify.ClientID != "" && config.Spotify.ClientSecret != "" {
		client, err := catalog.NewSpotifyClient(catalog.SpotifyOpts{
			ClientID:     config.Spotify.ClientID,
			ClientSecret: config.Spotify.ClientSecret,
			Concurrency:  config.Spotify.Concurrency,
			PageLimit:    config.Spotify.PageLimit,
			BatchSize:    config.Spotify.BatchSize,
			RateLimit:    config.Spotify.RateLimit,
			Logger:       logger,
		})
		if err == nil {
			spotify = client
		}
	}

	appleMusic := catalog.NewAppleMusicClient(catalog.AppleMusicOpts{
		Concurrency: config.AppleMusic.Concurrency,
		BatchSize:   config.AppleMusic.BatchSize,
		RateLimit:   config.AppleMusic.RateLimit,
		Logger:      logger,
	})

	runner := NewRunner(RunnerOpts{
		Config:     config,
		Spotify:    spotify,
		AppleMusic: appleMusic,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "muso",
		Usage:    "Resolve Spotify & Apple Music catalog URLs into playlists and tracks",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}
