package musiclink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ShazamResolver resolves Shazam track pages via their OpenGraph title.
type ShazamResolver struct {
	client *http.Client
}

// NewShazamResolver creates a new Shazam link resolver.
func NewShazamResolver(client *http.Client) *ShazamResolver {
	if client == nil {
		client = newHTTPClient(defaultHTTPTimeout)
	}
	return &ShazamResolver{client: client}
}

// CanResolve checks if the URL is a Shazam link.
func (r *ShazamResolver) CanResolve(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	hostname := strings.ToLower(u.Hostname())
	return hostname == "shazam.com" || strings.HasSuffix(hostname, ".shazam.com")
}

// Resolve scrapes a Shazam page. Titles look like
// "Song Title - Artist Name: Song Lyrics, Music Videos & Concerts".
func (r *ShazamResolver) Resolve(ctx context.Context, rawURL string) (*TrackInfo, error) {
	if !r.CanResolve(rawURL) {
		return nil, errors.New("not a Shazam URL")
	}

	doc, err := fetchDocument(ctx, r.client, rawURL, "Shazam")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Shazam page: %w", err)
	}

	meta := ParsePageMeta(doc)
	if meta.Title == "" {
		return nil, fmt.Errorf("Shazam page: %w", ErrNoMetadata)
	}

	title, artist := parseShazamTitle(meta.Title)
	return &TrackInfo{
		Title:        title,
		Artist:       artist,
		ThumbnailURL: meta.Image,
	}, nil
}

func parseShazamTitle(text string) (title, artist string) {
	parts := strings.SplitN(text, " - ", expectedSplitParts)
	title = strings.TrimSpace(parts[0])
	if len(parts) == expectedSplitParts {
		artist, _, _ = strings.Cut(parts[1], ":")
		artist = strings.TrimSpace(artist)
	}
	return title, artist
}
