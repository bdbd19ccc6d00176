// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to configuration file",
	Value:   "config.toml",
}

// resolveCommand resolves a catalog URL into an entity summary
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve a Spotify or Apple Music URL",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			configFlag,
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
			},
			&cli.BoolFlag{
				Name:  "cache",
				Usage: "Record resolved tracks in the local cache",
			},
		},
		Action: r.Resolve,
	}
}

// streamCommand resolves a playlist lazily, printing batches as they arrive
func streamCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Stream a playlist's tracks in batches without waiting for the full resolve",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			configFlag,
			&cli.BoolFlag{
				Name:  "titles",
				Usage: "Print every track title instead of batch summaries",
			},
		},
		Action: r.Stream,
	}
}

// exportCommand writes a resolved playlist to a file
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Resolve a playlist URL and export it to a file",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			configFlag,
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Export format: json or m3u",
				Value:   "json",
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "Output file path",
				Required: true,
			},
		},
		Action: r.Export,
	}
}

// searchCommand performs a free-text Spotify track search
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search Spotify for tracks",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			configFlag,
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Search,
	}
}

// recommendCommand fetches recommendations seeded by a track URL
func recommendCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "recommend",
		Usage:     "Recommend tracks similar to a Spotify track URL",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			configFlag,
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Recommend,
	}
}

// setupCommand initializes the config file and the track cache database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create a config file and initialize the track cache database",
		Flags:  []cli.Flag{configFlag},
		Action: r.Setup,
	}
}

// cacheCommand inspects the local track cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Track cache operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached tracks for a provider",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:     "provider",
						Usage:    "Provider name (Spotify, Apple Music)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of tracks to list",
						Value: 50,
					},
				},
				Action: r.CacheList,
			},
			{
				Name:   "stats",
				Usage:  "Show cache statistics",
				Flags:  []cli.Flag{configFlag},
				Action: r.CacheStats,
			},
		},
	}
}
