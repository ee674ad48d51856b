package data

import (
	"context"
	"fmt"
	"sort"

	"github.com/pasiegel/termtv/internal/config"
	"github.com/pasiegel/termtv/internal/diag"
	"github.com/pasiegel/termtv/internal/epg"
	"github.com/pasiegel/termtv/internal/m3u"
	"github.com/pasiegel/termtv/internal/playlist"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Source retrieves the raw bytes of a document.
type Source interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Loader builds a Playlist from a configured entry. The playlist and its
// guide are fetched and parsed concurrently; the guide is best-effort.
type Loader struct {
	log    logrus.FieldLogger
	source Source
}

// NewLoader creates a loader reading documents from source.
func NewLoader(log logrus.FieldLogger, source Source) *Loader {
	return &Loader{
		log:    log.WithField("component", "loader"),
		source: source,
	}
}

// Load fetches, parses and matches one playlist. It fails only when the
// M3U cannot be fetched or holds no channels; guide problems become
// warnings on the returned Playlist.
func (l *Loader) Load(ctx context.Context, entry config.Playlist) (*playlist.Playlist, error) {
	log := l.log.WithField("playlist", entry.Name)

	var (
		channels    []m3u.Channel
		m3uWarnings []diag.Warning
		guide       *epg.Guide
		epgWarnings []diag.Warning
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("url", entry.M3UURL).Info("Fetching M3U playlist")

		body, err := l.source.Fetch(gctx, entry.M3UURL)
		if err != nil {
			return err
		}

		channels, m3uWarnings = m3u.Parse(body)

		return nil
	})

	if urls := entry.EPGURLs(); len(urls) > 0 {
		g.Go(func() error {
			guide, epgWarnings = l.loadGuide(gctx, log, urls)

			return nil
		})
	} else {
		log.Debug("No EPG configured")
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Failed to fetch M3U playlist")

		return nil, &LoadError{Playlist: entry.Name, Kind: ErrFetchFailed, Err: err}
	}

	// An aborted load is discarded even if the M3U made it through.
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Playlist: entry.Name, Kind: ErrFetchFailed, Err: err}
	}

	if len(channels) == 0 {
		return nil, &LoadError{Playlist: entry.Name, Kind: ErrNoChannels}
	}

	log.WithField("channels", len(channels)).Info("M3U playlist loaded")
	logGroupSummary(log, channels)

	warnings := make([]diag.Warning, 0, len(m3uWarnings)+len(epgWarnings))
	warnings = append(warnings, m3uWarnings...)
	warnings = append(warnings, epgWarnings...)

	logWarnings(log, warnings)

	return playlist.Match(log, entry.Name, channels, guide, warnings), nil
}

// loadGuide fetches every EPG source in priority order and merges the ones
// that parse. Failures are returned as warnings, never as errors.
func (l *Loader) loadGuide(ctx context.Context, log logrus.FieldLogger, urls []string) (*epg.Guide, []diag.Warning) {
	guides := make([]*epg.Guide, 0, len(urls))

	var warnings []diag.Warning

	unavailable := func(epgURL, msg string, err error) {
		log.WithError(err).WithField("url", epgURL).Warn(msg)

		warnings = append(warnings, diag.Warning{
			Source:  diag.SourceEPG,
			Kind:    diag.KindEPGUnavailable,
			Message: fmt.Sprintf("%s: %v", msg, err),
		})
	}

	for i, epgURL := range urls {
		if ctx.Err() != nil {
			break
		}

		log.WithFields(logrus.Fields{
			"url":      epgURL,
			"priority": i + 1,
			"total":    len(urls),
		}).Info("Fetching EPG source")

		body, err := l.source.Fetch(ctx, epgURL)
		if err != nil {
			unavailable(epgURL, "Failed to fetch EPG source", err)

			continue
		}

		guide, parseWarnings, err := epg.Parse(body)
		if err != nil {
			unavailable(epgURL, "Failed to parse EPG source", err)

			continue
		}

		warnings = append(warnings, parseWarnings...)
		guides = append(guides, guide)

		log.WithFields(logrus.Fields{
			"url":        epgURL,
			"channels":   len(guide.Programmes),
			"programmes": guide.ProgrammeCount(),
		}).Info("Parsed EPG source")
	}

	if len(guides) == 0 {
		return nil, warnings
	}

	return epg.Merge(guides...), warnings
}

// logGroupSummary logs a summary of channels per group.
func logGroupSummary(log logrus.FieldLogger, channels []m3u.Channel) {
	groupCounts := make(map[string]int, 32)

	for _, ch := range channels {
		group := ch.Group
		if group == "" {
			group = "(no group)"
		}

		groupCounts[group]++
	}

	log.WithField("groups", len(groupCounts)).Debug("Channel groups summary")

	groups := make([]string, 0, len(groupCounts))
	for group := range groupCounts {
		groups = append(groups, group)
	}

	sort.Strings(groups)

	for _, group := range groups {
		log.WithFields(logrus.Fields{
			"group":    group,
			"channels": groupCounts[group],
		}).Debug("Group")
	}
}

func logWarnings(log logrus.FieldLogger, warnings []diag.Warning) {
	if len(warnings) == 0 {
		return
	}

	for _, w := range warnings {
		log.WithFields(logrus.Fields{
			"source": w.Source,
			"kind":   w.Kind,
			"line":   w.Line,
		}).Debug(w.Message)
	}

	fields := logrus.Fields{"count": len(warnings)}
	for kind, n := range diag.Count(warnings) {
		fields[string(kind)] = n
	}

	log.WithFields(fields).Warn("Playlist loaded with warnings")
}
