// Package main is the entry point for the termtv IPTV browser.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pasiegel/termtv/internal/config"
	"github.com/pasiegel/termtv/internal/data"
	"github.com/pasiegel/termtv/internal/menu"
	"github.com/pasiegel/termtv/internal/player"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfg = config.DefaultConfig()
	log = logrus.New()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "termtv",
		Short: "Browse IPTV playlists and their programme guides from the terminal",
		Long: `termtv loads the IPTV playlists listed in a config file, matches their
channels against XMLTV guides, lets you search channels interactively and
hands the selected stream to an external media player.

The config file is YAML or JSON:

  {"playlists": [{"name": "Free TV", "m3u_url": "https://...", "epg_url": "https://..."}]}

It is reloaded automatically when it changes.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Playlist config file (YAML or JSON)")
	rootCmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	// Fetch flags
	rootCmd.Flags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout for each playlist or guide download")
	rootCmd.Flags().StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent sent to IPTV providers")

	// Player flags
	rootCmd.Flags().StringVar(&cfg.Player, "player", cfg.Player, "Media player command")
	rootCmd.Flags().StringArrayVar(&cfg.PlayerArgs, "player-arg", cfg.PlayerArgs, "Extra argument passed to the player (repeatable)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	file, err := config.LoadFile(cfg.ConfigPath)
	if err != nil {
		return err
	}

	cfg.Apply(file, cmd.Flags().Changed)

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Configure logger
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	log.SetLevel(level)

	log.WithFields(logrus.Fields{
		"config":    cfg.ConfigPath,
		"playlists": len(cfg.Playlists),
		"player":    cfg.Player,
	}).Info("Starting termtv")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	holder := config.NewHolder(cfg.Playlists)

	watcher := config.NewWatcher(log, cfg.ConfigPath, holder)
	if err := watcher.Start(ctx); err != nil {
		log.WithError(err).Warn("Config reload disabled")
	}

	defer func() {
		if err := watcher.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop config watcher")
		}
	}()

	fetcher := data.NewFetcher(log, cfg.Timeout, cfg.UserAgent)
	loader := data.NewLoader(log, fetcher)
	launcher := player.NewExec(log, cfg.Player, cfg.PlayerArgs...)

	m := menu.New(log, os.Stdin, os.Stdout, holder, loader, launcher)

	// The menu blocks on stdin, so a signal is handled here rather than
	// waiting for the next line of input.
	done := make(chan error, 1)

	go func() {
		done <- m.Run(ctx)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if errors.Is(err, context.Canceled) {
		fmt.Println("\nExiting.")

		return nil
	}

	return err
}
