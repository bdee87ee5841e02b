package musiclink

import (
	"net/url"
	"strings"
)

// DirectFileArtist is the artist recorded for plain audio file links.
const DirectFileArtist = "Direct File"

var audioExtensions = []string{".mp3", ".m4a", ".wav", ".aac", ".ogg"}

// IsDirectFile reports whether rawURL points at an audio file.
// Any occurrence of a known extension counts, including inside the query.
func IsDirectFile(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, ext := range audioExtensions {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// FileTitle derives a display title from the last path segment of rawURL.
// The segment is URL-decoded first and then cut at the first '?'.
func FileTitle(rawURL string) (string, error) {
	segment := rawURL
	if idx := strings.LastIndex(rawURL, "/"); idx >= 0 {
		segment = rawURL[idx+1:]
	}

	decoded, err := url.QueryUnescape(segment)
	if err != nil {
		return "", err
	}

	name, _, _ := strings.Cut(decoded, "?")
	return name, nil
}
