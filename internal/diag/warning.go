// Package diag holds the non-fatal warnings produced while loading a playlist.
package diag

import "fmt"

// Source identifies the stage that produced a warning.
type Source string

const (
	SourceM3U   Source = "m3u"
	SourceEPG   Source = "epg"
	SourceMatch Source = "match"
)

// Kind classifies a warning.
type Kind string

const (
	KindOrphanURL       Kind = "orphan-url"
	KindIncompleteEntry Kind = "incomplete-entry"
	KindBadAttribute    Kind = "bad-attribute"
	KindDuplicateID     Kind = "duplicate-id"
	KindBadTimestamp    Kind = "bad-timestamp"
	KindMissingField    Kind = "missing-field"
	KindBadInterval     Kind = "bad-interval"
	KindDuplicateStart  Kind = "duplicate-start"
	KindEPGUnavailable  Kind = "epg-unavailable"
	KindUnreadable      Kind = "unreadable"
)

// Warning is a recoverable anomaly. Line is 1-based and zero when unknown.
type Warning struct {
	Source  Source
	Kind    Kind
	Line    int
	Message string
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s line %d: %s (%s)", w.Source, w.Line, w.Message, w.Kind)
	}

	return fmt.Sprintf("%s: %s (%s)", w.Source, w.Message, w.Kind)
}

// Count returns the number of warnings per kind.
func Count(warnings []Warning) map[Kind]int {
	counts := make(map[Kind]int, len(warnings))

	for _, w := range warnings {
		counts[w.Kind]++
	}

	return counts
}
