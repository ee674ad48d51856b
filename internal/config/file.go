package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk playlist file. JSON is accepted as well as YAML, so
// {"playlists":[{"name":..,"m3u_url":..,"epg_url":..}]} loads unchanged.
type File struct {
	Playlists  []Playlist    `yaml:"playlists"`
	LogLevel   string        `yaml:"log_level"`
	Timeout    time.Duration `yaml:"timeout"`
	UserAgent  string        `yaml:"user_agent"`
	Player     string        `yaml:"player"`
	PlayerArgs []string      `yaml:"player_args"`
}

// LoadFile reads and parses the playlist file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseFile(data)
}

// ParseFile parses playlist file contents.
func ParseFile(data []byte) (*File, error) {
	var f File

	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &f, nil
}

// Apply copies the file's settings into c. Playlists always come from the
// file; other settings only fill values whose flag was not set explicitly.
func (c *Config) Apply(f *File, flagChanged func(name string) bool) {
	if flagChanged == nil {
		flagChanged = func(string) bool { return false }
	}

	c.Playlists = append([]Playlist(nil), f.Playlists...)

	if f.LogLevel != "" && !flagChanged("log-level") {
		c.LogLevel = f.LogLevel
	}

	if f.Timeout > 0 && !flagChanged("timeout") {
		c.Timeout = f.Timeout
	}

	if f.UserAgent != "" && !flagChanged("user-agent") {
		c.UserAgent = f.UserAgent
	}

	if f.Player != "" && !flagChanged("player") {
		c.Player = f.Player
	}

	if len(f.PlayerArgs) > 0 && !flagChanged("player-arg") {
		c.PlayerArgs = append([]string(nil), f.PlayerArgs...)
	}
}
