package data

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pasiegel/termtv/internal/config"
	"github.com/pasiegel/termtv/internal/diag"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testM3U = `#EXTM3U
#EXTINF:-1 tvg-id="news.uk" group-title="News",World News
http://stream.example/news
#EXTINF:-1 tvg-id="sport.uk" group-title="Sports",Sport One
http://stream.example/sport
#EXTINF:-1 group-title="Sports",Sport Two
http://stream.example/sport2
`

const testGuide = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <channel id="news.uk"><display-name>World News</display-name></channel>
  <programme channel="news.uk" start="20260104100000 +0000" stop="20260104110000 +0000">
    <title>Morning Bulletin</title>
  </programme>
  <programme channel="news.uk" start="20260104110000 +0000" stop="20260104120000 +0000">
    <title>Midday Report</title>
  </programme>
</tv>`

const secondGuide = `<?xml version="1.0" encoding="UTF-8"?>
<tv>
  <programme channel="sport.uk" start="20260104100000 +0000" stop="20260104120000 +0000">
    <title>Match of the Day</title>
  </programme>
</tv>`

// fakeSource serves canned responses keyed by URL.
type fakeSource struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	requested []string
}

func (s *fakeSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	s.requested = append(s.requested, url)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err, ok := s.errs[url]; ok {
		return nil, err
	}

	body, ok := s.responses[url]
	if !ok {
		return nil, &FetchError{URL: url, Kind: ErrHTTPStatus, StatusCode: http.StatusNotFound}
	}

	return []byte(body), nil
}

func at(hour, minute int) time.Time {
	return time.Date(2026, time.January, 4, hour, minute, 0, 0, time.UTC)
}

func TestLoad_WithGuide(t *testing.T) {
	source := &fakeSource{responses: map[string]string{
		"http://x/list.m3u":  testM3U,
		"http://x/guide.xml": testGuide,
	}}

	loader := NewLoader(newTestLogger(), source)

	p, err := loader.Load(context.Background(), config.Playlist{
		Name:   "Home",
		M3UURL: "http://x/list.m3u",
		EPGURL: "http://x/guide.xml",
	})
	require.NoError(t, err)
	require.Equal(t, "Home", p.Name())
	require.Equal(t, 3, p.Len())
	require.Empty(t, p.Warnings())

	now, ok := p.NowPlaying("news.uk", at(10, 30))
	require.True(t, ok)
	require.Equal(t, "Morning Bulletin", now.Title)

	next, ok := p.UpNext("news.uk", at(10, 30))
	require.True(t, ok)
	require.Equal(t, "Midday Report", next.Title)

	require.Empty(t, p.Programmes("sport.uk"))
	require.Equal(t, []string{"sport.uk", "sport two"}, p.Stats().Unmatched)
}

func TestLoad_MergesMultipleGuides(t *testing.T) {
	source := &fakeSource{responses: map[string]string{
		"http://x/list.m3u": testM3U,
		"http://x/a.xml":    testGuide,
		"http://x/b.xml":    secondGuide,
	}}

	loader := NewLoader(newTestLogger(), source)

	p, err := loader.Load(context.Background(), config.Playlist{
		Name:   "Home",
		M3UURL: "http://x/list.m3u",
		EPGURL: "http://x/a.xml, http://x/missing.xml, http://x/b.xml",
	})
	require.NoError(t, err)

	require.Len(t, p.Programmes("news.uk"), 2)
	require.Len(t, p.Programmes("sport.uk"), 1)

	warnings := p.Warnings()
	require.Len(t, warnings, 1)
	require.Equal(t, diag.SourceEPG, warnings[0].Source)
	require.Equal(t, diag.KindEPGUnavailable, warnings[0].Kind)
	require.Contains(t, warnings[0].Message, "missing.xml")
}

func TestLoad_NoGuideConfigured(t *testing.T) {
	source := &fakeSource{responses: map[string]string{"http://x/list.m3u": testM3U}}

	p, err := NewLoader(newTestLogger(), source).Load(context.Background(), config.Playlist{
		Name:   "Home",
		M3UURL: "http://x/list.m3u",
	})
	require.NoError(t, err)
	require.Equal(t, 3, p.Len())
	require.Empty(t, p.Warnings())
	require.Equal(t, []string{"http://x/list.m3u"}, source.requested)
}

func TestLoad_GuideFailuresAreWarnings(t *testing.T) {
	tests := []struct {
		name     string
		guide    string
		guideErr error
		wantMsg  string
	}{
		{
			name:     "fetch failure",
			guideErr: &FetchError{URL: "http://x/guide.xml", Kind: ErrNetwork, Err: errors.New("connection refused")},
			wantMsg:  "Failed to fetch EPG source",
		},
		{
			name:    "malformed xml",
			guide:   "<tv><programme",
			wantMsg: "Failed to parse EPG source",
		},
		{
			name:    "empty document",
			guide:   "",
			wantMsg: "Failed to parse EPG source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{
				responses: map[string]string{
					"http://x/list.m3u":  testM3U,
					"http://x/guide.xml": tt.guide,
				},
				errs: map[string]error{},
			}
			if tt.guideErr != nil {
				source.errs["http://x/guide.xml"] = tt.guideErr
			}

			p, err := NewLoader(newTestLogger(), source).Load(context.Background(), config.Playlist{
				Name:   "Home",
				M3UURL: "http://x/list.m3u",
				EPGURL: "http://x/guide.xml",
			})
			require.NoError(t, err)
			require.Equal(t, 3, p.Len())
			require.Empty(t, p.Programmes("news.uk"))

			warnings := p.Warnings()
			require.Len(t, warnings, 1)
			require.Equal(t, diag.KindEPGUnavailable, warnings[0].Kind)
			require.True(t, strings.HasPrefix(warnings[0].Message, tt.wantMsg))
		})
	}
}

func TestLoad_ParseWarningsAreCollected(t *testing.T) {
	m3uWithOrphan := "#EXTM3U\nhttp://orphan.example/stream\n" + strings.TrimPrefix(testM3U, "#EXTM3U\n")
	guideWithBadTime := strings.Replace(testGuide, "20260104110000 +0000\" stop", "not-a-time\" stop", 1)

	source := &fakeSource{responses: map[string]string{
		"http://x/list.m3u":  m3uWithOrphan,
		"http://x/guide.xml": guideWithBadTime,
	}}

	p, err := NewLoader(newTestLogger(), source).Load(context.Background(), config.Playlist{
		Name:   "Home",
		M3UURL: "http://x/list.m3u",
		EPGURL: "http://x/guide.xml",
	})
	require.NoError(t, err)

	counts := diag.Count(p.Warnings())
	require.Equal(t, 1, counts[diag.KindOrphanURL])
	require.Equal(t, 1, counts[diag.KindBadTimestamp])

	// M3U warnings come first.
	require.Equal(t, diag.SourceM3U, p.Warnings()[0].Source)
	require.Len(t, p.Programmes("news.uk"), 1)
}

func TestLoad_M3UFailureIsFatal(t *testing.T) {
	cause := &FetchError{URL: "http://x/list.m3u", Kind: ErrHTTPStatus, StatusCode: http.StatusForbidden}
	source := &fakeSource{
		responses: map[string]string{"http://x/guide.xml": testGuide},
		errs:      map[string]error{"http://x/list.m3u": cause},
	}

	p, err := NewLoader(newTestLogger(), source).Load(context.Background(), config.Playlist{
		Name:   "Home",
		M3UURL: "http://x/list.m3u",
		EPGURL: "http://x/guide.xml",
	})
	require.Nil(t, p)
	require.ErrorIs(t, err, ErrFetchFailed)
	require.ErrorIs(t, err, ErrHTTPStatus)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "Home", loadErr.Playlist)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
}

func TestLoad_NoChannels(t *testing.T) {
	for name, body := range map[string]string{
		"empty":       "",
		"header only": "#EXTM3U\n",
		"html":        "<html><body>Service unavailable</body></html>",
	} {
		t.Run(name, func(t *testing.T) {
			source := &fakeSource{responses: map[string]string{"http://x/list.m3u": body}}

			p, err := NewLoader(newTestLogger(), source).Load(context.Background(), config.Playlist{
				Name:   "Home",
				M3UURL: "http://x/list.m3u",
			})
			require.Nil(t, p)
			require.ErrorIs(t, err, ErrNoChannels)
			require.NotErrorIs(t, err, ErrFetchFailed)
		})
	}
}

func TestLoad_CancelledContext(t *testing.T) {
	source := &fakeSource{responses: map[string]string{"http://x/list.m3u": testM3U}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := NewLoader(newTestLogger(), source).Load(ctx, config.Playlist{
		Name:   "Home",
		M3UURL: "http://x/list.m3u",
	})
	require.Nil(t, p)
	require.ErrorIs(t, err, ErrFetchFailed)
	require.ErrorIs(t, err, context.Canceled)
}

// M3U failure must abort an EPG download that would otherwise hang, and
// leave no goroutines behind.
func TestLoad_M3UFailureCancelsGuideFetch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	guideStarted := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/guide.xml", func(_ http.ResponseWriter, r *http.Request) {
		close(guideStarted)

		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/list.m3u", func(w http.ResponseWriter, _ *http.Request) {
		<-guideStarted
		w.WriteHeader(http.StatusBadGateway)
	})

	server := serve(t, mux.ServeHTTP)
	defer server.Close()
	defer close(release)

	fetcher := NewFetcher(newTestLogger(), 30*time.Second, "")
	defer fetcher.httpClient.CloseIdleConnections()

	start := time.Now()

	p, err := NewLoader(newTestLogger(), fetcher).Load(context.Background(), config.Playlist{
		Name:   "Home",
		M3UURL: server.URL + "/list.m3u",
		EPGURL: server.URL + "/guide.xml",
	})
	require.Nil(t, p)
	require.ErrorIs(t, err, ErrHTTPStatus)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestLoadError_Message(t *testing.T) {
	err := &LoadError{Playlist: "Home", Kind: ErrNoChannels}
	require.Equal(t, `load playlist "Home": playlist has no channels`, err.Error())
}
