package playlist

import (
	"io"
	"testing"
	"time"

	"github.com/pasiegel/termtv/internal/diag"
	"github.com/pasiegel/termtv/internal/epg"
	"github.com/pasiegel/termtv/internal/m3u"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func newTestLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logger
}

func at(hour, minute int) time.Time {
	return time.Date(2026, time.January, 4, hour, minute, 0, 0, time.UTC)
}

func prog(channel, title string, startHour, stopHour int) epg.Programme {
	return epg.Programme{
		ChannelID: channel,
		Title:     title,
		Start:     at(startHour, 0),
		Stop:      at(stopHour, 0),
	}
}

func guideWith(channels []epg.ChannelInfo, programmes map[string][]epg.Programme) *epg.Guide {
	g := epg.NewGuide()
	g.Channels = channels
	g.Programmes = programmes

	return g
}

func TestNowPlaying_HalfOpenIntervals(t *testing.T) {
	channels := []m3u.Channel{{ID: "ch1", Name: "Channel One", URL: "http://x/1"}}
	guide := guideWith(nil, map[string][]epg.Programme{
		"ch1": {prog("ch1", "A", 10, 11), prog("ch1", "B", 11, 12)},
	})

	p := Match(newTestLogger(), "test", channels, guide, nil)

	tests := []struct {
		name     string
		now      time.Time
		want     string
		wantNone bool
	}{
		{name: "middle of first", now: at(10, 30), want: "A"},
		{name: "exact start", now: at(10, 0), want: "A"},
		{name: "boundary belongs to next", now: at(11, 0), want: "B"},
		{name: "before schedule", now: at(9, 59), wantNone: true},
		{name: "stop of last is exclusive", now: at(12, 0), wantNone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.NowPlaying("ch1", tt.now)
			if tt.wantNone {
				require.False(t, ok)

				return
			}

			require.True(t, ok)
			require.Equal(t, tt.want, got.Title)
		})
	}
}

func TestNowPlaying_Gap(t *testing.T) {
	channels := []m3u.Channel{{ID: "ch1", Name: "One", URL: "http://x/1"}}
	guide := guideWith(nil, map[string][]epg.Programme{
		"ch1": {prog("ch1", "A", 10, 11), prog("ch1", "B", 12, 13)},
	})

	p := Match(newTestLogger(), "test", channels, guide, nil)

	_, ok := p.NowPlaying("ch1", at(11, 30))
	require.False(t, ok)

	next, ok := p.UpNext("ch1", at(11, 30))
	require.True(t, ok)
	require.Equal(t, "B", next.Title)
}

func TestNowPlaying_Overlap(t *testing.T) {
	channels := []m3u.Channel{{ID: "ch1", Name: "One", URL: "http://x/1"}}
	guide := guideWith(nil, map[string][]epg.Programme{
		"ch1": {
			prog("ch1", "Movie", 10, 13),
			{ChannelID: "ch1", Title: "Short", Start: at(11, 0), Stop: at(11, 30)},
		},
	})

	p := Match(newTestLogger(), "test", channels, guide, nil)

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{name: "before the short one", now: at(10, 30), want: "Movie"},
		{name: "inside both", now: at(11, 15), want: "Short"},
		{name: "short one has ended", now: at(12, 0), want: "Movie"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.NowPlaying("ch1", tt.now)
			require.True(t, ok)
			require.Equal(t, tt.want, got.Title)
		})
	}

	_, ok := p.NowPlaying("ch1", at(13, 0))
	require.False(t, ok)
}

func TestUpNext(t *testing.T) {
	channels := []m3u.Channel{{ID: "ch1", Name: "One", URL: "http://x/1"}}
	guide := guideWith(nil, map[string][]epg.Programme{
		"ch1": {prog("ch1", "A", 10, 11), prog("ch1", "B", 11, 12)},
	})

	p := Match(newTestLogger(), "test", channels, guide, nil)

	next, ok := p.UpNext("ch1", at(10, 30))
	require.True(t, ok)
	require.Equal(t, "B", next.Title)

	// A programme starting exactly now is playing, not next.
	_, ok = p.UpNext("ch1", at(11, 0))
	require.False(t, ok)

	_, ok = p.UpNext("missing", at(10, 30))
	require.False(t, ok)
}

func TestUpcoming(t *testing.T) {
	channels := []m3u.Channel{{ID: "ch1", Name: "One", URL: "http://x/1"}}
	guide := guideWith(nil, map[string][]epg.Programme{
		"ch1": {
			prog("ch1", "A", 10, 11),
			prog("ch1", "B", 11, 12),
			prog("ch1", "C", 12, 13),
			prog("ch1", "D", 13, 14),
		},
	})

	p := Match(newTestLogger(), "test", channels, guide, nil)

	titles := func(progs []epg.Programme) []string {
		out := make([]string, 0, len(progs))
		for _, pr := range progs {
			out = append(out, pr.Title)
		}

		return out
	}

	require.Equal(t, []string{"A", "B", "C"}, titles(p.Upcoming("ch1", at(10, 30), 3)))
	require.Equal(t, []string{"A", "B", "C", "D"}, titles(p.Upcoming("ch1", at(9, 0), 5)))
	require.Equal(t, []string{"D"}, titles(p.Upcoming("ch1", at(13, 0), 5)))
	require.Empty(t, p.Upcoming("ch1", at(14, 0), 5))
	require.Empty(t, p.Upcoming("ch1", at(10, 30), 0))
}

func TestPlaylist_AccessorsReturnCopies(t *testing.T) {
	channels := []m3u.Channel{{ID: "ch1", Name: "One", URL: "http://x/1"}}
	guide := guideWith(nil, map[string][]epg.Programme{
		"ch1": {prog("ch1", "A", 10, 11)},
	})
	warnings := []diag.Warning{{Source: diag.SourceM3U, Kind: diag.KindOrphanURL, Line: 3}}

	p := Match(newTestLogger(), "test", channels, guide, warnings)

	got := p.Channels()
	got[0].Name = "changed"
	require.Equal(t, "One", p.Channels()[0].Name)

	progs := p.Programmes("ch1")
	progs[0].Title = "changed"
	require.Equal(t, "A", p.Programmes("ch1")[0].Title)

	// Mutating the inputs after Match does not leak into the playlist.
	channels[0].Name = "mutated"
	warnings[0].Line = 99
	require.Equal(t, "One", p.Channels()[0].Name)
	require.Equal(t, 3, p.Warnings()[0].Line)
}

func TestPlaylist_Channel(t *testing.T) {
	channels := []m3u.Channel{
		{ID: "news", Name: "News", URL: "http://x/1"},
		{ID: "news-2", Name: "News", URL: "http://x/2"},
	}

	p := Match(newTestLogger(), "test", channels, nil, nil)

	require.Equal(t, "test", p.Name())
	require.Equal(t, 2, p.Len())

	ch, ok := p.Channel("news-2")
	require.True(t, ok)
	require.Equal(t, "http://x/2", ch.URL)

	_, ok = p.Channel("sports")
	require.False(t, ok)
}

func TestGroupsAndByGroup(t *testing.T) {
	channels := []m3u.Channel{
		{ID: "a", Name: "A", Group: "Sports", URL: "http://x/a"},
		{ID: "b", Name: "B", Group: "News", URL: "http://x/b"},
		{ID: "c", Name: "C", Group: "Sports", URL: "http://x/c"},
		{ID: "d", Name: "D", URL: "http://x/d"},
	}

	p := Match(newTestLogger(), "test", channels, nil, nil)

	require.Equal(t, []string{"News", "Sports"}, p.Groups())

	sports := p.ByGroup("Sports")
	require.Len(t, sports, 2)
	require.Equal(t, "a", sports[0].ID)
	require.Equal(t, "c", sports[1].ID)

	require.Len(t, p.ByGroup(""), 4)
	require.Empty(t, p.ByGroup("Movies"))
}

func TestMatch_Tiers(t *testing.T) {
	channels := []m3u.Channel{
		{ID: "bbc1.uk", TVGID: "bbc1.uk", Name: "BBC One", URL: "http://x/1"},
		{ID: "CNN-US", TVGID: "CNN-US", Name: "CNN", URL: "http://x/2"},
		{ID: "uk espn hd", Name: "UK: ESPN HD", URL: "http://x/3"},
		{ID: "nothing", TVGID: "nothing", Name: "Nothing", URL: "http://x/4"},
	}
	guide := guideWith(
		[]epg.ChannelInfo{
			{ID: "bbc1.uk", DisplayNames: []string{"BBC One"}},
			{ID: "cnn.us", DisplayNames: []string{"CNN International"}},
			{ID: "espn.us", DisplayNames: []string{"ESPN"}},
			{ID: "idle", DisplayNames: []string{"Nothing"}},
		},
		map[string][]epg.Programme{
			"bbc1.uk": {prog("bbc1.uk", "News at Ten", 10, 11)},
			"cnnus":   {prog("cnnus", "Headlines", 10, 11)},
			"espn.us": {prog("espn.us", "SportsCenter", 10, 11)},
		},
	)

	p := Match(newTestLogger(), "test", channels, guide, nil)

	require.Equal(t, "News at Ten", p.Programmes("bbc1.uk")[0].Title)
	require.Equal(t, "Headlines", p.Programmes("CNN-US")[0].Title)
	require.Equal(t, "SportsCenter", p.Programmes("uk espn hd")[0].Title)
	require.Empty(t, p.Programmes("nothing"))

	stats := p.Stats()
	require.Equal(t, 1, stats.ByID)
	require.Equal(t, 1, stats.ByNormalizedID)
	require.Equal(t, 1, stats.ByDisplayName)
	require.Equal(t, 3, stats.Matched())
	require.Equal(t, []string{"nothing"}, stats.Unmatched)
}

func TestMatch_SuffixedDuplicateUsesTVGID(t *testing.T) {
	channels := []m3u.Channel{
		{ID: "news", TVGID: "news", Name: "News", URL: "http://x/1"},
		{ID: "news-2", TVGID: "news", Name: "News Backup", URL: "http://x/2"},
	}
	guide := guideWith(nil, map[string][]epg.Programme{
		"news": {prog("news", "Bulletin", 10, 11)},
	})

	p := Match(newTestLogger(), "test", channels, guide, nil)

	require.Len(t, p.Programmes("news"), 1)
	require.Len(t, p.Programmes("news-2"), 1)
	require.Equal(t, 2, p.Stats().ByID)
}

func TestMatch_NilAndEmptyGuide(t *testing.T) {
	channels := []m3u.Channel{{ID: "ch1", Name: "One", URL: "http://x/1"}}

	for name, guide := range map[string]*epg.Guide{"nil": nil, "empty": epg.NewGuide()} {
		t.Run(name, func(t *testing.T) {
			p := Match(newTestLogger(), "test", channels, guide, nil)

			require.Equal(t, 1, p.Len())
			require.Empty(t, p.Programmes("ch1"))

			_, ok := p.NowPlaying("ch1", at(10, 0))
			require.False(t, ok)
			require.Equal(t, []string{"ch1"}, p.Stats().Unmatched)
		})
	}
}

func TestMatch_LogsUnmatched(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	channels := []m3u.Channel{
		{ID: "a", Name: "A", URL: "http://x/a"},
		{ID: "b", Name: "B", URL: "http://x/b"},
	}

	Match(logger, "test", channels, nil, nil)

	var unmatched int

	for _, entry := range hook.AllEntries() {
		if entry.Message == "Channels have no EPG match" {
			require.Equal(t, 2, entry.Data["count"])

			unmatched++
		}
	}

	require.Equal(t, 1, unmatched)
	require.Equal(t, "Matched channels between M3U and EPG", hook.LastEntry().Message)
}
