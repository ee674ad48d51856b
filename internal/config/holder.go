package config

import (
	"slices"
	"sync"
)

// Holder keeps the current playlist list and allows it to be swapped while
// readers are active.
type Holder struct {
	mu        sync.RWMutex
	playlists []Playlist
}

// NewHolder creates a holder with an initial list.
func NewHolder(playlists []Playlist) *Holder {
	return &Holder{playlists: slices.Clone(playlists)}
}

// Playlists returns a copy of the current list.
func (h *Holder) Playlists() []Playlist {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return slices.Clone(h.playlists)
}

// Set replaces the current list.
func (h *Holder) Set(playlists []Playlist) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.playlists = slices.Clone(playlists)
}
