package fuzzy

import (
	"regexp"
	"strings"
)

// PlatformBrands are streaming brand names that leak into scraped titles and artists.
var PlatformBrands = []string{
	"Spotify", "Apple Music", "Tidal", "Amazon Music", "YouTube Music", "YouTube",
	"Deezer", "SoundCloud", "Napster", "Pandora", "Audiomack",
	"Anghami", "Boomplay", "Yandex Music", "Audius", "Bandcamp", "Shazam",
}

// brandPatterns match a brand as a whole word together with the spaces, dashes
// and pipes around it. Order matters: "YouTube Music" goes before "YouTube".
var brandPatterns = compileBrandPatterns(PlatformBrands)

func compileBrandPatterns(brands []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(brands))
	for _, brand := range brands {
		patterns = append(patterns, regexp.MustCompile(`(?i)[\s\-|]*\b`+regexp.QuoteMeta(brand)+`\b[\s\-|]*`))
	}
	return patterns
}

// StripBrands replaces every platform brand occurrence with a single space and trims the result.
func StripBrands(s string) string {
	for _, re := range brandPatterns {
		s = strings.TrimSpace(re.ReplaceAllString(s, " "))
	}
	return s
}

// CleanSearchQuery builds the manual-search query for a fallback result:
// brand names are stripped from both parts, and the artist is appended when non-blank.
func CleanSearchQuery(title, artist string) string {
	title = StripBrands(title)
	artist = StripBrands(artist)
	if strings.TrimSpace(artist) == "" {
		return title
	}
	return title + " " + artist
}
