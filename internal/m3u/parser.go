// Package m3u provides tolerant parsing of M3U/M3U8 playlist files.
package m3u

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/pasiegel/termtv/internal/diag"
)

const (
	extinfPrefix = "#EXTINF:"
	extgrpPrefix = "#EXTGRP:"
	headerPrefix = "#EXTM3U"

	// UnknownName is used when an #EXTINF line carries no display name.
	UnknownName = "Unknown"

	maxLineSize = 1024 * 1024
)

// Channel represents a single channel entry in an M3U playlist.
type Channel struct {
	// ID is tvg-id when present, otherwise a normalized form of Name.
	// It is unique within one parse result.
	ID       string
	Name     string
	URL      string
	TVGID    string
	TVGName  string
	TVGLogo  string
	TVGChno  string
	Group    string
	Original string
}

type scanState int

const (
	stateIdle scanState = iota
	stateAwaitingURL
)

// scanner is the two-state line scanner behind Parse.
type scanner struct {
	state    scanState
	pending  Channel
	line     int // line of the pending #EXTINF
	isM3U    bool
	ids      *idSet
	channels []Channel
	warnings []diag.Warning
}

// Parse extracts channels from M3U playlist data. It never fails: malformed
// entries are dropped and reported as warnings, in source order.
func Parse(data []byte) ([]Channel, []diag.Warning) {
	s := &scanner{
		ids:      newIDSet(),
		channels: make([]Channel, 0, 100),
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	sc.Split(scanLines)

	lineNum := 0

	for sc.Scan() {
		lineNum++

		line := strings.TrimSpace(sc.Text())
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}

		s.feed(lineNum, line)
	}

	if err := sc.Err(); err != nil {
		s.warn(diag.KindUnreadable, lineNum+1, fmt.Sprintf("stopped reading playlist: %v", err))
	}

	s.finish()

	if !s.isM3U {
		return []Channel{}, nil
	}

	return s.channels, s.warnings
}

func (s *scanner) feed(lineNum int, line string) {
	switch {
	case line == "":
	case hasPrefixFold(line, headerPrefix):
		s.isM3U = true
	case hasPrefixFold(line, extinfPrefix):
		s.isM3U = true
		s.startEntry(lineNum, line)
	case hasPrefixFold(line, extgrpPrefix):
		if s.state == stateAwaitingURL && s.pending.Group == "" {
			s.pending.Group = strings.TrimSpace(line[len(extgrpPrefix):])
		}
	case strings.HasPrefix(line, "#"):
	default:
		s.completeEntry(lineNum, line)
	}
}

// scanLines is bufio.ScanLines extended to treat a bare CR as a line end.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}

		// CR: swallow a following LF, waiting for more input if needed.
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}

			return i + 1, data[:i], nil
		}

		if !atEOF {
			return 0, nil, nil
		}

		return i + 1, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func (s *scanner) startEntry(lineNum int, line string) {
	if s.state == stateAwaitingURL {
		s.warn(diag.KindIncompleteEntry, s.line,
			fmt.Sprintf("entry %q has no stream URL before the next #EXTINF", s.pending.Name))
	}

	info, problems := parseExtinf(line[len(extinfPrefix):])
	for _, p := range problems {
		s.warn(diag.KindBadAttribute, lineNum, p)
	}

	s.pending = Channel{
		Name:     info.name,
		TVGID:    info.attrs["tvg-id"],
		TVGName:  info.attrs["tvg-name"],
		TVGLogo:  info.attrs["tvg-logo"],
		TVGChno:  info.attrs["tvg-chno"],
		Group:    info.attrs["group-title"],
		Original: line,
	}
	s.line = lineNum
	s.state = stateAwaitingURL
}

func (s *scanner) completeEntry(lineNum int, url string) {
	if s.state != stateAwaitingURL {
		s.warn(diag.KindOrphanURL, lineNum, fmt.Sprintf("stream URL %q has no preceding #EXTINF", url))

		return
	}

	ch := s.pending
	ch.URL = url

	base := ch.TVGID
	if base == "" {
		base = NormalizeName(ch.Name)
	}

	id, dup := s.ids.claim(base)
	if dup {
		s.warn(diag.KindDuplicateID, s.line,
			fmt.Sprintf("channel id %q already used, %q assigned to %q", base, id, ch.Name))
	}

	ch.ID = id

	s.channels = append(s.channels, ch)
	s.pending = Channel{}
	s.state = stateIdle
}

func (s *scanner) finish() {
	if s.state == stateAwaitingURL {
		s.warn(diag.KindIncompleteEntry, s.line,
			fmt.Sprintf("entry %q has no stream URL before end of playlist", s.pending.Name))
		s.state = stateIdle
	}
}

func (s *scanner) warn(kind diag.Kind, line int, msg string) {
	s.warnings = append(s.warnings, diag.Warning{
		Source:  diag.SourceM3U,
		Kind:    kind,
		Line:    line,
		Message: msg,
	})
}

// idSet hands out unique ids, suffixing repeats with their occurrence count.
type idSet struct {
	used  map[string]bool
	count map[string]int
}

func newIDSet() *idSet {
	return &idSet{
		used:  make(map[string]bool, 128),
		count: make(map[string]int, 128),
	}
}

func (s *idSet) claim(base string) (string, bool) {
	s.count[base]++

	if !s.used[base] {
		s.used[base] = true

		return base, false
	}

	n := s.count[base]

	id := fmt.Sprintf("%s-%d", base, n)
	for s.used[id] {
		n++
		id = fmt.Sprintf("%s-%d", base, n)
	}

	s.used[id] = true

	return id, true
}
