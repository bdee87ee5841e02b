// Package text pulls links out of shared text such as "Listen to X on Spotify: https://...".
package text

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	urlRegex        = regexp.MustCompile(`https?://\S+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Normalize applies NFKC and collapses whitespace, so full-width and
// compatibility characters from share sheets do not end up in URLs.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
}

// ExtractURLs returns every http(s) URL in text, in order of appearance.
func ExtractURLs(text string) []string {
	matches := urlRegex.FindAllString(Normalize(text), -1)
	var urls []string
	for _, match := range matches {
		if clean := cleanURL(match); clean != "" {
			urls = append(urls, clean)
		}
	}
	return urls
}

// ExtractURL returns the first URL in text. Input that is already a bare URL is returned as is.
func ExtractURL(text string) (string, bool) {
	urls := ExtractURLs(text)
	if len(urls) == 0 {
		return "", false
	}
	return urls[0], true
}

// cleanURL drops trailing sentence punctuation and rejects host-less matches.
// The query is left untouched: the URL is a cache key.
func cleanURL(rawURL string) string {
	rawURL = strings.TrimRight(rawURL, ".,!?;")

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return rawURL
}
