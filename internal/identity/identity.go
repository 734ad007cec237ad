// Package identity normalizes track descriptors into stable identity keys
// and decides whether two descriptors denote the same logical track.
//
// Key computation is pure and deterministic: equal normalized (artist, title)
// plus a duration within the same 5-second bucket always yield the same key,
// so minor metadata discrepancies between the Source and the Fetcher do not
// fragment identity.
package identity

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Daxiongmao87/youspotter/internal/models"
	"golang.org/x/text/unicode/norm"
)

// DurationBucketSize groups durations into 5-second buckets for keying.
const DurationBucketSize = 5

// DurationTolerance is the maximum duration delta, in seconds, for two
// descriptors to be considered the same track.
const DurationTolerance = 5

var (
	featPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\((?:feat|ft)\..*?\)`),
		regexp.MustCompile(`\s*\[(?:feat|ft)\..*?\]`),
		regexp.MustCompile(`\s*(?:feat|ft)\..*$`),
	}
	nonAlnum   = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Normalize folds a metadata string into its canonical comparison form:
// diacritics stripped, lowercased, "feat."/"ft." suffixes removed,
// punctuation replaced with spaces, whitespace collapsed.
func Normalize(text string) string {
	folded := make([]rune, 0, len(text))
	for _, r := range norm.NFKD.String(text) {
		if r < utf8.RuneSelf {
			folded = append(folded, unicode.ToLower(r))
		}
	}

	s := string(folded)
	for _, pat := range featPatterns {
		s = strings.TrimSpace(pat.ReplaceAllString(s, ""))
	}
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Key derives the stable identity key for a track from its normalized artist,
// normalized title, and bucketed duration.
func Key(artist, title string, durationSeconds int) string {
	return fmt.Sprintf("%s|%s|%d", Normalize(artist), Normalize(title), durationSeconds/DurationBucketSize)
}

// KeyFor derives the identity key for a descriptor.
func KeyFor(d models.Descriptor) string {
	return Key(d.Artist, d.Title, d.Duration)
}

// DurationWithin reports whether two durations differ by at most tolerance seconds.
func DurationWithin(target, candidate, tolerance int) bool {
	delta := target - candidate
	if delta < 0 {
		delta = -delta
	}
	return delta <= tolerance
}

// Match reports whether candidate denotes the same logical track as target:
// normalized primary artist and title equal, duration within
// [DurationTolerance]. Album equality is a scoring bonus (see [Score]),
// never a requirement.
func Match(target, candidate models.Descriptor) bool {
	if Normalize(target.Artist) != Normalize(candidate.Artist) {
		return false
	}
	if Normalize(target.Title) != Normalize(candidate.Title) {
		return false
	}
	return DurationWithin(target.Duration, candidate.Duration, DurationTolerance)
}

// Score ranks a matching candidate. Non-matching candidates score zero;
// matches score 1 with a bonus when the album also agrees.
func Score(target, candidate models.Descriptor) float64 {
	if !Match(target, candidate) {
		return 0
	}
	score := 1.0
	if target.Album != "" && Normalize(target.Album) == Normalize(candidate.Album) {
		score += 0.25
	}
	return score
}
