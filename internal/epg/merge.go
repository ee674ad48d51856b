package epg

import "sort"

// Merge combines guides from several sources. Earlier guides have priority:
// the first channel entry for an ID wins, and a programme from a later guide
// is dropped when the channel already has one with the same start time.
func Merge(guides ...*Guide) *Guide {
	merged := NewGuide()

	seenChannels := make(map[string]bool, 100)

	for _, g := range guides {
		if g == nil {
			continue
		}

		for _, ch := range g.Channels {
			if seenChannels[ch.ID] {
				continue
			}

			seenChannels[ch.ID] = true
			merged.Channels = append(merged.Channels, ch)
		}

		for id, progs := range g.Programmes {
			existing := merged.Programmes[id]

			for _, prog := range progs {
				if !hasSameStart(existing, prog) {
					existing = append(existing, prog)
				}
			}

			merged.Programmes[id] = existing
		}
	}

	for _, progs := range merged.Programmes {
		sort.SliceStable(progs, func(i, j int) bool {
			return progs[i].Start.Before(progs[j].Start)
		})
	}

	return merged
}

// hasSameStart reports whether a programme with the same start is already present.
func hasSameStart(existing []Programme, prog Programme) bool {
	for _, p := range existing {
		if p.Start.Equal(prog.Start) {
			return true
		}
	}

	return false
}
