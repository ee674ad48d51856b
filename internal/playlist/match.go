package playlist

import (
	"sort"

	"github.com/pasiegel/termtv/internal/diag"
	"github.com/pasiegel/termtv/internal/epg"
	"github.com/pasiegel/termtv/internal/m3u"
	"github.com/sirupsen/logrus"
)

// MatchStats reports how many channels each matching tier resolved.
type MatchStats struct {
	ByID           int
	ByNormalizedID int
	ByDisplayName  int
	// Unmatched holds the ids of channels left without guide data, in playlist order.
	Unmatched []string
}

// Matched returns the number of channels that found guide data.
func (s MatchStats) Matched() int {
	return s.ByID + s.ByNormalizedID + s.ByDisplayName
}

type matchTier int

const (
	tierNone matchTier = iota
	tierID
	tierNormalizedID
	tierDisplayName
)

// guideIndex holds the lookup tables built once per Match call.
type guideIndex struct {
	programmes   map[string][]epg.Programme
	byNormalized map[string]string
	byName       map[string]string
}

func newGuideIndex(guide *epg.Guide) *guideIndex {
	idx := &guideIndex{
		programmes:   map[string][]epg.Programme{},
		byNormalized: map[string]string{},
		byName:       map[string]string{},
	}

	if guide == nil {
		return idx
	}

	idx.programmes = guide.Programmes

	ids := make([]string, 0, len(guide.Programmes))
	for id, progs := range guide.Programmes {
		if len(progs) > 0 {
			ids = append(ids, id)
		}
	}

	// Sorted so that colliding normalized keys resolve the same way every run.
	sort.Strings(ids)

	for _, id := range ids {
		key := normalizeKey(id)
		if _, taken := idx.byNormalized[key]; key != "" && !taken {
			idx.byNormalized[key] = id
		}
	}

	for _, ch := range guide.Channels {
		if len(guide.Programmes[ch.ID]) == 0 {
			continue
		}

		for _, dn := range ch.DisplayNames {
			key := normalizeChannelName(dn)
			if _, taken := idx.byName[key]; key != "" && !taken {
				idx.byName[key] = ch.ID
			}
		}
	}

	return idx
}

func (idx *guideIndex) has(id string) bool {
	return id != "" && len(idx.programmes[id]) > 0
}

// lookup resolves a channel to a guide channel id.
func (idx *guideIndex) lookup(ch m3u.Channel) (string, matchTier) {
	for _, id := range []string{ch.ID, ch.TVGID} {
		if idx.has(id) {
			return id, tierID
		}
	}

	for _, id := range []string{ch.TVGID, ch.ID} {
		if guideID, ok := idx.byNormalized[normalizeKey(id)]; ok && id != "" {
			return guideID, tierNormalizedID
		}
	}

	for _, name := range []string{ch.Name, ch.TVGName} {
		if guideID, ok := idx.byName[normalizeChannelName(name)]; ok && name != "" {
			return guideID, tierDisplayName
		}
	}

	return "", tierNone
}

// Match joins channels with the guide and returns the resulting Playlist.
// A nil guide is treated as empty. Channels that find no guide data get an
// empty schedule.
func Match(
	log logrus.FieldLogger,
	name string,
	channels []m3u.Channel,
	guide *epg.Guide,
	warnings []diag.Warning,
) *Playlist {
	p := newPlaylist(name, channels)
	p.warnings = append([]diag.Warning(nil), warnings...)
	p.stats.Unmatched = []string{}

	idx := newGuideIndex(guide)

	for _, ch := range p.channels {
		guideID, tier := idx.lookup(ch)

		switch tier {
		case tierID:
			p.stats.ByID++
		case tierNormalizedID:
			p.stats.ByNormalizedID++
		case tierDisplayName:
			p.stats.ByDisplayName++
		case tierNone:
			p.stats.Unmatched = append(p.stats.Unmatched, ch.ID)

			continue
		}

		p.programmes[ch.ID] = idx.programmes[guideID]

		log.WithFields(logrus.Fields{
			"channel": ch.Name,
			"epgID":   guideID,
			"tier":    tier.String(),
		}).Debug("Matched channel to guide")
	}

	logUnmatched(log, p)

	return p
}

func (t matchTier) String() string {
	switch t {
	case tierID:
		return "id"
	case tierNormalizedID:
		return "normalized-id"
	case tierDisplayName:
		return "display-name"
	default:
		return "none"
	}
}

func logUnmatched(log logrus.FieldLogger, p *Playlist) {
	if n := len(p.stats.Unmatched); n > 0 {
		log.WithField("count", n).Info("Channels have no EPG match")

		for _, id := range p.stats.Unmatched {
			log.WithField("channel", id).Debug("Unmatched channel")
		}
	}

	log.WithFields(logrus.Fields{
		"playlist": p.name,
		"matched":  p.stats.Matched(),
		"total":    len(p.channels),
	}).Info("Matched channels between M3U and EPG")
}
