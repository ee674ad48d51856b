// Package menu implements the line-oriented playlist and channel browser.
package menu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pasiegel/termtv/internal/config"
	"github.com/pasiegel/termtv/internal/m3u"
	"github.com/pasiegel/termtv/internal/player"
	"github.com/pasiegel/termtv/internal/playlist"
	"github.com/sirupsen/logrus"
)

const (
	upcomingShows   = 5
	maxShownNotices = 5
)

// Loader builds a playlist from a configured entry.
type Loader interface {
	Load(ctx context.Context, entry config.Playlist) (*playlist.Playlist, error)
}

// PlaylistSource provides the current list of configured playlists.
type PlaylistSource interface {
	Playlists() []config.Playlist
}

// Menu drives the interactive session. The loaded playlist is owned by the
// playlist loop and dropped when the user goes back.
type Menu struct {
	log       logrus.FieldLogger
	in        *bufio.Scanner
	out       io.Writer
	playlists PlaylistSource
	loader    Loader
	player    player.Launcher

	now func() time.Time
	loc *time.Location
}

// New creates a menu reading commands from in and writing to out.
func New(
	log logrus.FieldLogger,
	in io.Reader,
	out io.Writer,
	playlists PlaylistSource,
	loader Loader,
	launcher player.Launcher,
) *Menu {
	return &Menu{
		log:       log.WithField("component", "menu"),
		in:        bufio.NewScanner(in),
		out:       out,
		playlists: playlists,
		loader:    loader,
		player:    launcher,
		now:       time.Now,
		loc:       time.Local,
	}
}

// errQuit unwinds the loops when the user asks to leave.
var errQuit = errors.New("quit")

// Run shows the playlist menu until the user quits, input ends or ctx is
// cancelled.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry, ok := m.selectPlaylist()
		if !ok {
			return nil
		}

		if entry == nil {
			continue
		}

		err := m.browse(ctx, *entry)
		if errors.Is(err, errQuit) {
			return nil
		}

		if err != nil {
			return err
		}
	}
}

// selectPlaylist returns ok=false when the user quits or input ends, and a
// nil entry when the selection was invalid.
func (m *Menu) selectPlaylist() (*config.Playlist, bool) {
	playlists := m.playlists.Playlists()
	if len(playlists) == 0 {
		m.printf("No playlists configured.\n")

		return nil, false
	}

	m.printf("\nAvailable playlists:\n")

	for i, p := range playlists {
		m.printf("%d. %s\n", i+1, p.Name)
	}

	line, ok := m.prompt(fmt.Sprintf("Select playlist (1-%d, 'quit' to exit): ", len(playlists)))
	if !ok || isQuit(line) {
		return nil, false
	}

	idx, valid := parseChoice(line, len(playlists))
	if !valid {
		m.printf("Invalid selection.\n")

		return nil, true
	}

	return &playlists[idx], true
}

// browse loads a playlist and runs the search loop over it. It returns nil
// when the user goes back and errQuit when they quit.
func (m *Menu) browse(ctx context.Context, entry config.Playlist) error {
	m.printf("\nLoading: %s\n", entry.Name)

	p, err := m.loader.Load(ctx, entry)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.log.WithError(err).WithField("playlist", entry.Name).Debug("Playlist load failed")
		m.printf("Error: could not load %s: %v\n", entry.Name, err)

		return nil
	}

	m.printf("Loaded %d channels.\n", p.Len())

	if stats := p.Stats(); stats.Matched() > 0 {
		m.printf("Loaded EPG for %d channels.\n", stats.Matched())
	}

	m.printNotices(p)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		query, ok := m.prompt("\nSearch for a channel (empty lists all, 'back' for playlists, 'quit' to exit): ")
		if !ok || isQuit(query) {
			return errQuit
		}

		if strings.EqualFold(query, "back") {
			return nil
		}

		results := p.Search(query)
		if len(results) == 0 {
			m.printf("No channels found matching your search.\n")

			continue
		}

		ch, ok := m.selectChannel(p, results)
		if !ok {
			return errQuit
		}

		if ch == nil {
			continue
		}

		m.showUpcoming(p, *ch)
		m.play(ctx, *ch)
	}
}

func (m *Menu) selectChannel(p *playlist.Playlist, results []m3u.Channel) (*m3u.Channel, bool) {
	now := m.now()

	m.printf("\nAvailable channels:\n")

	for i, ch := range results {
		m.printf("%d. %s\n", i+1, describe(p, ch, now))
	}

	line, ok := m.prompt(fmt.Sprintf("Select channel (1-%d, empty to search again): ", len(results)))
	if !ok || isQuit(line) {
		return nil, false
	}

	if line == "" {
		return nil, true
	}

	idx, valid := parseChoice(line, len(results))
	if !valid {
		m.printf("Invalid selection.\n")

		return nil, true
	}

	return &results[idx], true
}

func (m *Menu) showUpcoming(p *playlist.Playlist, ch m3u.Channel) {
	shows := p.Upcoming(ch.ID, m.now(), upcomingShows)
	if len(shows) == 0 {
		return
	}

	m.printf("\nUpcoming shows:\n")

	for _, s := range shows {
		m.printf("- %s-%s : %s\n",
			s.Start.In(m.loc).Format("Mon 15:04"),
			s.Stop.In(m.loc).Format("15:04"),
			s.Title)
	}
}

func (m *Menu) play(ctx context.Context, ch m3u.Channel) {
	m.printf("\nLaunching: %s\n", ch.Name)

	if err := m.player.Launch(ctx, ch.URL); err != nil {
		m.log.WithError(err).WithField("channel", ch.Name).Warn("Failed to launch player")
		m.printf("Error: %v\n", err)
	}
}

func (m *Menu) printNotices(p *playlist.Playlist) {
	warnings := p.Warnings()
	if len(warnings) == 0 {
		return
	}

	m.printf("Notice: %d problems while loading this playlist.\n", len(warnings))

	for i, w := range warnings {
		if i == maxShownNotices {
			m.printf("  ... and %d more (use --log-level debug to see all)\n", len(warnings)-maxShownNotices)

			break
		}

		m.printf("  - %s\n", w)
	}
}

// prompt prints text and reads one trimmed line. ok is false at end of input.
func (m *Menu) prompt(text string) (string, bool) {
	m.printf("%s", text)

	if !m.in.Scan() {
		m.printf("\n")

		return "", false
	}

	return strings.TrimSpace(m.in.Text()), true
}

func (m *Menu) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(m.out, format, args...)
}

// describe formats a search result as "[group] name  now: title".
func describe(p *playlist.Playlist, ch m3u.Channel, now time.Time) string {
	var sb strings.Builder

	if ch.Group != "" {
		sb.WriteString("[" + ch.Group + "] ")
	}

	sb.WriteString(ch.Name)

	if prog, ok := p.NowPlaying(ch.ID, now); ok {
		sb.WriteString("  now: " + prog.Title)
	}

	return sb.String()
}

func parseChoice(s string, n int) (int, bool) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 1 || i > n {
		return 0, false
	}

	return i - 1, true
}

func isQuit(s string) bool {
	return strings.EqualFold(s, "quit") || strings.EqualFold(s, "exit") || strings.EqualFold(s, "q")
}
