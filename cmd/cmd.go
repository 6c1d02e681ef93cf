// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles first-run initialization.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize the data directory, configuration, and database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Setup,
	}
}

// authCommand handles music server session operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the music server session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Log in to the music server and store the session token",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "username",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Password (falls back to the FERMATA_PASSWORD environment variable)",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Drop the stored session token",
				Action: r.AuthLogout,
			},
			{
				Name:  "status",
				Usage: "Show the stored session and its expiry",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthStatus,
			},
		},
	}
}

// agentCommand handles the background agent lifecycle
func agentCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "agent",
		Usage: "Run and control the background agent",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the agent in the foreground until interrupted",
				Action: r.AgentRun,
			},
			{
				Name:  "status",
				Usage: "Show a running agent's flags and cache summary",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (table or json)",
						Value:   "table",
					},
				},
				Action: r.AgentStatus,
			},
			{
				Name:   "update",
				Usage:  "Apply a pending server update now",
				Action: r.AgentUpdate,
			},
			{
				Name:   "stop",
				Usage:  "Stop a running agent",
				Action: r.AgentStop,
			},
		},
	}
}

// cacheCommand handles bulk media caching operations
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Download media into the offline cache",
		Commands: []*cli.Command{
			{
				Name:  "song",
				Usage: "Cache one song's audio and artwork",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.CacheSong,
			},
			{
				Name:  "playlist",
				Usage: "Cache every song in a playlist",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.CachePlaylist,
			},
			{
				Name:   "library",
				Usage:  "Cache the whole saved library",
				Action: r.CacheLibrary,
			},
			{
				Name:  "status",
				Usage: "Show cache contents and storage pressure",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (table or json)",
						Value:   "table",
					},
				},
				Action: r.CacheStatus,
			},
			{
				Name:  "evict",
				Usage: "Drop cached media for one song, or everything",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "song",
						Usage: "Song ID to evict",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Drop every cached entry",
					},
				},
				Action: r.CacheEvict,
			},
		},
	}
}

// syncCommand handles metadata synchronization
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run a metadata sync cycle against the music server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Show per-entity sync state instead of syncing",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (table or json)",
				Value:   "table",
			},
		},
		Action: r.Sync,
	}
}

// quotaCommand handles storage readouts
func quotaCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "quota",
		Usage: "Show cache storage usage against its cap",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Re-measure on an interval until interrupted",
			},
			&cli.IntFlag{
				Name:  "interval",
				Usage: "Watch interval in seconds",
				Value: 5,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (table or json)",
				Value:   "table",
			},
		},
		Action: r.Quota,
	}
}

// importCommand handles guest-mode library seeding
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import a directory of audio files into the cache",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "dir",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "library",
				Aliases: []string{"l"},
				Usage:   "Playlist name to group the imported songs under",
			},
		},
		Action: r.Import,
	}
}

// tuiCommand returns the top-level TUI command for the interactive dashboard.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive cache dashboard",
		Action:  r.TUI,
	}
}
