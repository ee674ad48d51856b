// Package playlist joins M3U channels with EPG programmes into an immutable
// Playlist that can be searched and browsed.
package playlist

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/pasiegel/termtv/internal/diag"
	"github.com/pasiegel/termtv/internal/epg"
	"github.com/pasiegel/termtv/internal/m3u"
)

// Playlist is a loaded channel list with its guide. It is never mutated
// after Match returns; accessors hand out copies.
type Playlist struct {
	name       string
	channels   []m3u.Channel
	byID       map[string]int
	lowerNames []string
	programmes map[string][]epg.Programme
	warnings   []diag.Warning
	stats      MatchStats
}

// Name returns the playlist's configured name.
func (p *Playlist) Name() string {
	return p.name
}

// Len returns the number of channels.
func (p *Playlist) Len() int {
	return len(p.channels)
}

// Channels returns all channels in playlist order.
func (p *Playlist) Channels() []m3u.Channel {
	return slices.Clone(p.channels)
}

// Channel looks up a channel by id.
func (p *Playlist) Channel(id string) (m3u.Channel, bool) {
	idx, ok := p.byID[id]
	if !ok {
		return m3u.Channel{}, false
	}

	return p.channels[idx], true
}

// Warnings returns the non-fatal problems met while loading the playlist.
func (p *Playlist) Warnings() []diag.Warning {
	return slices.Clone(p.warnings)
}

// Stats returns how channels were matched to the guide.
func (p *Playlist) Stats() MatchStats {
	s := p.stats
	s.Unmatched = slices.Clone(p.stats.Unmatched)

	return s
}

// Programmes returns the channel's schedule sorted by start. A channel with
// no guide data has an empty schedule.
func (p *Playlist) Programmes(channelID string) []epg.Programme {
	return slices.Clone(p.programmes[channelID])
}

// NowPlaying returns the programme airing at now. Intervals are half-open:
// a programme that stops at now is no longer playing. When merged guides
// overlap, the latest-starting programme still airing wins.
func (p *Playlist) NowPlaying(channelID string, now time.Time) (epg.Programme, bool) {
	progs := p.programmes[channelID]

	for i := firstAfter(progs, now) - 1; i >= 0; i-- {
		if now.Before(progs[i].Stop) {
			return progs[i], true
		}
	}

	return epg.Programme{}, false
}

// UpNext returns the first programme starting after now.
func (p *Playlist) UpNext(channelID string, now time.Time) (epg.Programme, bool) {
	progs := p.programmes[channelID]

	i := firstAfter(progs, now)
	if i >= len(progs) {
		return epg.Programme{}, false
	}

	return progs[i], true
}

// Upcoming returns up to n programmes: the one airing at now, if any,
// followed by those starting after now.
func (p *Playlist) Upcoming(channelID string, now time.Time, n int) []epg.Programme {
	if n <= 0 {
		return nil
	}

	progs := p.programmes[channelID]
	out := make([]epg.Programme, 0, n)

	if cur, ok := p.NowPlaying(channelID, now); ok {
		out = append(out, cur)
	}

	for i := firstAfter(progs, now); i < len(progs) && len(out) < n; i++ {
		out = append(out, progs[i])
	}

	return out
}

// firstAfter returns the index of the first programme with start > now.
func firstAfter(progs []epg.Programme, now time.Time) int {
	return sort.Search(len(progs), func(i int) bool {
		return progs[i].Start.After(now)
	})
}

// Groups returns all unique group-titles, sorted alphabetically.
func (p *Playlist) Groups() []string {
	seen := make(map[string]bool)
	groups := make([]string, 0)

	for _, ch := range p.channels {
		if ch.Group != "" && !seen[ch.Group] {
			seen[ch.Group] = true
			groups = append(groups, ch.Group)
		}
	}

	sort.Strings(groups)

	return groups
}

// ByGroup returns channels matching a specific group in playlist order.
// Empty group returns all channels.
func (p *Playlist) ByGroup(group string) []m3u.Channel {
	if group == "" {
		return p.Channels()
	}

	filtered := make([]m3u.Channel, 0)

	for _, ch := range p.channels {
		if ch.Group == group {
			filtered = append(filtered, ch)
		}
	}

	return filtered
}

func newPlaylist(name string, channels []m3u.Channel) *Playlist {
	p := &Playlist{
		name:       name,
		channels:   slices.Clone(channels),
		byID:       make(map[string]int, len(channels)),
		lowerNames: make([]string, len(channels)),
		programmes: make(map[string][]epg.Programme, len(channels)),
	}

	for i, ch := range p.channels {
		if _, exists := p.byID[ch.ID]; !exists {
			p.byID[ch.ID] = i
		}

		p.lowerNames[i] = strings.ToLower(ch.Name)
	}

	return p
}
