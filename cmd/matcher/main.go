// Package main provides a CLI tool for debugging EPG channel matching.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pasiegel/termtv/internal/config"
	"github.com/pasiegel/termtv/internal/data"
	"github.com/pasiegel/termtv/internal/diag"
	"github.com/pasiegel/termtv/internal/epg"
	"github.com/pasiegel/termtv/internal/m3u"
	"github.com/pasiegel/termtv/internal/playlist"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const noProgramsMsg = "NO PROGRAMS"

var (
	m3uPath  string
	epgPath  string
	logLevel string
	atTime   string
	timeout  time.Duration
	log      = logrus.New()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "matcher",
		Short: "Debug EPG channel matching",
		Long: `A debugging tool to analyze how M3U channels match to EPG data.

Outputs detailed information about:
- How many channels matched and by what strategy (id, normalized id, display-name)
- What is on now and next for each matched channel
- Which channels failed to match, with close matches from the guide
- Parse warnings and summary statistics

Examples:
  # Using local files (.gz and .xz are decompressed)
  go run ./cmd/matcher --m3u testdata/channels.m3u --epg testdata/epg.xml.gz

  # Using URLs, several guides merged in priority order
  go run ./cmd/matcher --m3u https://example.com/playlist.m3u --epg https://a.example/epg.xml,https://b.example/epg.xml`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVar(&m3uPath, "m3u", "", "Path or URL to M3U playlist (required)")
	rootCmd.Flags().StringVar(&epgPath, "epg", "", "Comma-separated paths or URLs to XMLTV guides")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&atTime, "at", "", "Evaluate now/next at this RFC3339 time instead of the current time")
	rootCmd.Flags().DurationVar(&timeout, "timeout", data.DefaultTimeout, "Timeout for each download")

	if err := rootCmd.MarkFlagRequired("m3u"); err != nil {
		log.WithError(err).Fatal("Failed to mark m3u flag as required")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadData fetches data from a URL or reads from a local file.
func loadData(ctx context.Context, fetcher *data.Fetcher, path string) ([]byte, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return fetcher.Fetch(ctx, path)
	}

	return data.ReadFile(path)
}

func run(cmd *cobra.Command, _ []string) error {
	// Configure logger
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	now := time.Now()
	if atTime != "" {
		if now, err = time.Parse(time.RFC3339, atTime); err != nil {
			return fmt.Errorf("invalid --at time: %w", err)
		}
	}

	ctx := cmd.Context()
	fetcher := data.NewFetcher(log, timeout, config.DefaultConfig().UserAgent)

	// Load M3U
	log.WithField("source", m3uPath).Info("Loading M3U")

	m3uData, err := loadData(ctx, fetcher, m3uPath)
	if err != nil {
		return fmt.Errorf("failed to load M3U: %w", err)
	}

	channels, warnings := m3u.Parse(m3uData)

	log.WithField("count", len(channels)).Info("Parsed M3U channels")

	// Load EPG
	guides := make([]*epg.Guide, 0, 1)

	for _, source := range (config.Playlist{EPGURL: epgPath}).EPGURLs() {
		log.WithField("source", source).Info("Loading EPG")

		epgData, err := loadData(ctx, fetcher, source)
		if err != nil {
			return fmt.Errorf("failed to load EPG: %w", err)
		}

		guide, guideWarnings, err := epg.Parse(epgData)
		if err != nil {
			return fmt.Errorf("failed to parse EPG: %w", err)
		}

		warnings = append(warnings, guideWarnings...)
		guides = append(guides, guide)

		log.WithFields(logrus.Fields{
			"channels":   len(guide.Channels),
			"programmes": guide.ProgrammeCount(),
		}).Info("Parsed EPG data")
	}

	guide := epg.Merge(guides...)

	// Run the actual matcher from internal/playlist
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("RUNNING MATCHER (internal/playlist.Match)")
	fmt.Println(strings.Repeat("=", 80))

	p := playlist.Match(log, "matcher", channels, guide, warnings)

	analyzeResults(p, guide, now)

	return nil
}

// analyzeResults prints detailed matching analysis.
func analyzeResults(p *playlist.Playlist, guide *epg.Guide, now time.Time) {
	stats := p.Stats()

	unmatched := make(map[string]bool, len(stats.Unmatched))
	for _, id := range stats.Unmatched {
		unmatched[id] = true
	}

	// Print matched channels
	fmt.Println("\n" + strings.Repeat("-", 80))
	fmt.Printf("MATCHED CHANNELS (%d/%d) at %s\n", stats.Matched(), p.Len(), now.Format(time.RFC3339))
	fmt.Println(strings.Repeat("-", 80))

	for _, ch := range p.Channels() {
		if unmatched[ch.ID] {
			continue
		}

		current := noProgramsMsg
		if prog, ok := p.NowPlaying(ch.ID, now); ok {
			current = prog.Title
		}

		next := "-"
		if prog, ok := p.UpNext(ch.ID, now); ok {
			next = prog.Title
		}

		fmt.Printf("    %-40s now: %-30s next: %s\n",
			truncate(ch.Name, 40),
			truncate(current, 30),
			truncate(next, 30),
		)
	}

	// Print unmatched channels
	fmt.Println("\n" + strings.Repeat("-", 80))
	fmt.Printf("UNMATCHED CHANNELS (%d/%d)\n", len(stats.Unmatched), p.Len())
	fmt.Println(strings.Repeat("-", 80))

	if len(stats.Unmatched) == 0 {
		fmt.Println("  All channels matched!")
	} else {
		for _, id := range stats.Unmatched {
			ch, _ := p.Channel(id)

			fmt.Printf("\n  %s\n", ch.Name)
			fmt.Printf("    tvg-id: %q\n", ch.TVGID)

			closeMatches := findClosestMatches(ch.Name, guide.Channels)
			if len(closeMatches) > 0 {
				fmt.Println("    close matches in EPG:")

				for _, match := range closeMatches {
					fmt.Printf("      - %s\n", match)
				}
			} else {
				fmt.Println("    no close matches found")
			}
		}
	}

	printWarnings(p.Warnings())

	// Print summary
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	matchRate := 0.0
	if p.Len() > 0 {
		matchRate = float64(stats.Matched()) / float64(p.Len()) * 100
	}

	fmt.Printf("  Total M3U channels:  %d\n", p.Len())
	fmt.Printf("  Matched:             %d (%.1f%%)\n", stats.Matched(), matchRate)
	fmt.Printf("  Unmatched:           %d\n", len(stats.Unmatched))
	fmt.Println()
	fmt.Printf("  By strategy:\n")
	fmt.Printf("    id:            %d\n", stats.ByID)
	fmt.Printf("    normalized id: %d\n", stats.ByNormalizedID)
	fmt.Printf("    display-name:  %d\n", stats.ByDisplayName)

	fmt.Println(strings.Repeat("=", 80))
}

func printWarnings(warnings []diag.Warning) {
	fmt.Println("\n" + strings.Repeat("-", 80))
	fmt.Printf("WARNINGS (%d)\n", len(warnings))
	fmt.Println(strings.Repeat("-", 80))

	counts := diag.Count(warnings)

	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, string(kind))
	}

	sort.Strings(kinds)

	for _, kind := range kinds {
		fmt.Printf("  %-20s %d\n", kind, counts[diag.Kind(kind)])
	}

	for _, w := range warnings {
		log.Debug(w.String())
	}
}

// findClosestMatches finds guide channels with similar names using simple token matching.
func findClosestMatches(name string, guideChannels []epg.ChannelInfo) []string {
	// Simple tokenization for matching
	tokens := strings.Fields(strings.ToLower(name))

	if len(tokens) == 0 {
		return nil
	}

	type scored struct {
		name  string
		score int
	}

	candidates := make([]scored, 0, 10)

	for _, ch := range guideChannels {
		for _, displayName := range ch.DisplayNames {
			guideTokens := strings.Fields(strings.ToLower(displayName))

			// Count matching tokens
			matches := 0

			for _, t1 := range tokens {
				for _, t2 := range guideTokens {
					if t1 == t2 {
						matches++

						break
					}
				}
			}

			if matches > 0 {
				candidates = append(candidates, scored{
					name:  fmt.Sprintf("%s (%s)", displayName, ch.ID),
					score: matches,
				})
			}
		}
	}

	// Sort by score (descending)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	// Return top 5
	result := make([]string, 0, 5)

	for i := 0; i < len(candidates) && i < 5; i++ {
		result = append(result, candidates[i].name)
	}

	return result
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}

	return string(r[:maxLen-3]) + "..."
}
