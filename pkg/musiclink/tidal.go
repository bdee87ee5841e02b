package musiclink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// TidalResolver resolves Tidal track and album links via HTML scraping.
type TidalResolver struct {
	client *http.Client
}

// NewTidalResolver creates a new Tidal link resolver.
func NewTidalResolver(client *http.Client) *TidalResolver {
	if client == nil {
		client = newHTTPClient(defaultHTTPTimeout)
	}
	return &TidalResolver{client: client}
}

// CanResolve checks if the URL is a Tidal link.
func (r *TidalResolver) CanResolve(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	switch strings.ToLower(u.Hostname()) {
	case "tidal.com", "www.tidal.com", "listen.tidal.com":
		return true
	}
	return false
}

// Resolve extracts track information from a Tidal URL by scraping the HTML.
func (r *TidalResolver) Resolve(ctx context.Context, rawURL string) (*TrackInfo, error) {
	if !r.CanResolve(rawURL) {
		return nil, errors.New("not a Tidal URL")
	}
	if !strings.Contains(rawURL, "/track/") && !strings.Contains(rawURL, "/album/") {
		return nil, errors.New("not a Tidal track or album URL")
	}

	doc, err := fetchDocument(ctx, r.client, rawURL, "Tidal")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Tidal page: %w", err)
	}

	var info *TrackInfo
	if ogTitle := metaContent(doc, "og:title"); ogTitle != "" {
		info = extractTidalFromMeta(ogTitle, metaContent(doc, "og:description"))
	} else {
		info = extractTidalFromTitle(titleTag(doc))
	}
	if info.Title == "" {
		return nil, fmt.Errorf("Tidal page: %w", ErrNoMetadata)
	}
	info.ThumbnailURL = metaContent(doc, "og:image")
	return info, nil
}

// extractTidalFromMeta uses og:title as the title; descriptions usually read "... by Artist".
func extractTidalFromMeta(title, description string) *TrackInfo {
	info := &TrackInfo{Title: title}
	if idx := strings.LastIndex(strings.ToLower(description), "by "); idx >= 0 {
		info.Artist = strings.TrimSpace(description[idx+len("by "):])
	}
	return info
}

// extractTidalFromTitle handles "Title – Artist | TIDAL", "Title - Artist | TIDAL"
// and "Title by Artist on TIDAL".
func extractTidalFromTitle(text string) *TrackInfo {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "| TIDAL"))

	for _, sep := range []string{" – ", " - "} {
		if strings.Contains(text, sep) {
			title, artist := splitTitleAndArtist(text, "", sep)
			return &TrackInfo{Title: title, Artist: artist}
		}
	}

	title, artist := splitTitleAndArtist(text, " on TIDAL", " by ")
	return &TrackInfo{Title: title, Artist: artist}
}
