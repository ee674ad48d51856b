package playlist

import (
	"slices"
	"strings"

	"github.com/pasiegel/termtv/internal/m3u"
)

// Search returns the channels whose name contains query, ignoring case, in
// playlist order. A blank query returns every channel.
func (p *Playlist) Search(query string) []m3u.Channel {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return slices.Clone(p.channels)
	}

	results := make([]m3u.Channel, 0)

	for i, name := range p.lowerNames {
		if strings.Contains(name, query) {
			results = append(results, p.channels[i])
		}
	}

	return results
}
