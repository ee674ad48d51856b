// Package config provides configuration for the termtv browser.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoPlaylists is returned when the configuration lists no playlists.
var ErrNoPlaylists = errors.New("no playlists configured")

// Config holds the application configuration.
type Config struct {
	// Playlist file, reloaded while running.
	ConfigPath string
	Playlists  []Playlist

	LogLevel string

	// Fetching
	Timeout   time.Duration
	UserAgent string

	// Player
	Player     string
	PlayerArgs []string
}

// Playlist is one configured playlist entry.
type Playlist struct {
	Name   string `yaml:"name"`
	M3UURL string `yaml:"m3u_url"`
	// EPGURL is optional and may hold several comma-separated URLs.
	EPGURL string `yaml:"epg_url"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ConfigPath: "config.json",
		LogLevel:   "info",
		Timeout:    10 * time.Second,
		UserAgent:  "termtv/1.0",
		Player:     "mpv",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}

	if strings.TrimSpace(c.Player) == "" {
		return errors.New("--player is required")
	}

	return ValidatePlaylists(c.Playlists)
}

// ValidatePlaylists checks a playlist list on its own, as done on reload.
func ValidatePlaylists(playlists []Playlist) error {
	if len(playlists) == 0 {
		return ErrNoPlaylists
	}

	for i, p := range playlists {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("playlist %d: %w", i+1, err)
		}
	}

	return nil
}

// Validate checks a single playlist entry.
func (p Playlist) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}

	if p.M3UURL == "" {
		return fmt.Errorf("%q: m3u_url is required", p.Name)
	}

	if err := validateURL(p.M3UURL); err != nil {
		return fmt.Errorf("%q: invalid M3U URL: %w", p.Name, err)
	}

	for i, epgURL := range p.EPGURLs() {
		if err := validateURL(epgURL); err != nil {
			return fmt.Errorf("%q: invalid EPG URL at position %d: %w", p.Name, i+1, err)
		}
	}

	return nil
}

// EPGURLs returns the list of EPG URLs (comma-separated in EPGURL).
func (p Playlist) EPGURLs() []string {
	if p.EPGURL == "" {
		return nil
	}

	urls := strings.Split(p.EPGURL, ",")
	result := make([]string, 0, len(urls))

	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u != "" {
			result = append(result, u)
		}
	}

	return result
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("missing host")
	}

	return nil
}
