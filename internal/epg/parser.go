// Package epg provides parsing for EPG (Electronic Program Guide) XMLTV data.
package epg

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pasiegel/termtv/internal/diag"
	"golang.org/x/net/html/charset"
)

// UntitledProgramme is the title used when a programme carries none.
const UntitledProgramme = "Untitled"

// ErrXML is matched by every error that aborts a guide parse.
var ErrXML = errors.New("malformed XMLTV document")

// ParseError reports a structural XML failure. Only these abort Parse.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse EPG XML: %v", e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrXML, e.Err}
}

// ChannelInfo is an informational <channel> element.
type ChannelInfo struct {
	ID           string
	DisplayNames []string
	Icon         string
}

// Programme is one scheduled show. Start and Stop are UTC and Start < Stop.
type Programme struct {
	ChannelID   string
	Title       string
	Start       time.Time
	Stop        time.Time
	Description string
	Category    string
}

// Guide is a parsed XMLTV document. Programmes are keyed by the verbatim
// channel attribute and sorted ascending by Start.
type Guide struct {
	Channels   []ChannelInfo
	Programmes map[string][]Programme
}

// NewGuide returns an empty guide.
func NewGuide() *Guide {
	return &Guide{
		Channels:   []ChannelInfo{},
		Programmes: make(map[string][]Programme),
	}
}

// ProgrammeCount returns the total number of programmes in the guide.
func (g *Guide) ProgrammeCount() int {
	n := 0
	for _, progs := range g.Programmes {
		n += len(progs)
	}

	return n
}

type xmlText struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

type xmlIcon struct {
	Src string `xml:"src,attr"`
}

type xmlChannel struct {
	ID           string    `xml:"id,attr"`
	DisplayNames []xmlText `xml:"display-name"`
	Icon         xmlIcon   `xml:"icon"`
}

type xmlProgramme struct {
	Channel    string    `xml:"channel,attr"`
	Start      string    `xml:"start,attr"`
	Stop       string    `xml:"stop,attr"`
	Titles     []xmlText `xml:"title"`
	Descs      []xmlText `xml:"desc"`
	Categories []xmlText `xml:"category"`
}

// pendingProgramme is a programme whose stop may still need filling in.
type pendingProgramme struct {
	Programme

	line    int
	hasStop bool
}

// Parse parses XMLTV data. Individual bad programmes are skipped and
// reported as warnings; only a structurally broken document is an error.
func Parse(data []byte) (*Guide, []diag.Warning, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Entity = xml.HTMLEntity

	p := &guideParser{
		guide:   NewGuide(),
		pending: make(map[string][]pendingProgramme),
	}

	rootSeen := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, nil, &ParseError{Err: err}
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if !rootSeen {
			rootSeen = true

			continue
		}

		line, _ := dec.InputPos()

		switch start.Name.Local {
		case "channel":
			var ch xmlChannel
			if err := dec.DecodeElement(&ch, &start); err != nil {
				return nil, nil, &ParseError{Err: err}
			}

			p.addChannel(ch)
		case "programme":
			var prog xmlProgramme
			if err := dec.DecodeElement(&prog, &start); err != nil {
				return nil, nil, &ParseError{Err: err}
			}

			p.addProgramme(line, prog)
		default:
			if err := dec.Skip(); err != nil {
				return nil, nil, &ParseError{Err: err}
			}
		}
	}

	if !rootSeen {
		return nil, nil, &ParseError{Err: errors.New("no root element")}
	}

	p.finish()

	return p.guide, p.warnings, nil
}

type guideParser struct {
	guide    *Guide
	pending  map[string][]pendingProgramme
	warnings []diag.Warning
}

func (p *guideParser) warn(kind diag.Kind, line int, msg string) {
	p.warnings = append(p.warnings, diag.Warning{
		Source:  diag.SourceEPG,
		Kind:    kind,
		Line:    line,
		Message: msg,
	})
}

func (p *guideParser) addChannel(ch xmlChannel) {
	info := ChannelInfo{
		ID:   ch.ID,
		Icon: ch.Icon.Src,
	}

	for _, dn := range ch.DisplayNames {
		if name := strings.TrimSpace(dn.Value); name != "" {
			info.DisplayNames = append(info.DisplayNames, name)
		}
	}

	p.guide.Channels = append(p.guide.Channels, info)
}

func (p *guideParser) addProgramme(line int, prog xmlProgramme) {
	if prog.Channel == "" {
		p.warn(diag.KindMissingField, line, "programme without channel attribute skipped")

		return
	}

	start, err := ParseTime(prog.Start)
	if err != nil {
		p.warn(diag.KindBadTimestamp, line,
			fmt.Sprintf("programme on %q skipped: bad start %q", prog.Channel, prog.Start))

		return
	}

	pp := pendingProgramme{
		Programme: Programme{
			ChannelID:   prog.Channel,
			Title:       firstText(prog.Titles),
			Start:       start,
			Description: firstText(prog.Descs),
			Category:    firstText(prog.Categories),
		},
		line: line,
	}

	if pp.Title == "" {
		pp.Title = UntitledProgramme
	}

	if strings.TrimSpace(prog.Stop) != "" {
		stop, err := ParseTime(prog.Stop)
		if err != nil {
			p.warn(diag.KindBadTimestamp, line,
				fmt.Sprintf("programme %q on %q skipped: bad stop %q", pp.Title, prog.Channel, prog.Stop))

			return
		}

		pp.Stop = stop
		pp.hasStop = true
	}

	p.pending[prog.Channel] = append(p.pending[prog.Channel], pp)
}

// finish sorts each channel, drops duplicate starts, fills missing stops
// from the following programme and validates intervals.
func (p *guideParser) finish() {
	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		progs := p.pending[id]

		sort.SliceStable(progs, func(i, j int) bool {
			return progs[i].Start.Before(progs[j].Start)
		})

		deduped := progs[:0]

		for _, prog := range progs {
			if n := len(deduped); n > 0 && deduped[n-1].Start.Equal(prog.Start) {
				p.warn(diag.KindDuplicateStart, prog.line,
					fmt.Sprintf("programme %q on %q dropped: another programme starts at %s",
						prog.Title, id, FormatTime(prog.Start)))

				continue
			}

			deduped = append(deduped, prog)
		}

		out := make([]Programme, 0, len(deduped))

		for i, prog := range deduped {
			if !prog.hasStop {
				if i+1 >= len(deduped) {
					p.warn(diag.KindMissingField, prog.line,
						fmt.Sprintf("programme %q on %q skipped: no stop time", prog.Title, id))

					continue
				}

				prog.Stop = deduped[i+1].Start
			}

			if !prog.Start.Before(prog.Stop) {
				p.warn(diag.KindBadInterval, prog.line,
					fmt.Sprintf("programme %q on %q skipped: stop %s is not after start %s",
						prog.Title, id, FormatTime(prog.Stop), FormatTime(prog.Start)))

				continue
			}

			out = append(out, prog.Programme)
		}

		if len(out) > 0 {
			p.guide.Programmes[id] = out
		}
	}
}

func firstText(texts []xmlText) string {
	for _, t := range texts {
		if v := strings.TrimSpace(t.Value); v != "" {
			return v
		}
	}

	return ""
}
