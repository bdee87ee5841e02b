package musiclink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const amazonMusicSuffix = " on Amazon Music"

// AmazonMusicResolver resolves Amazon Music links to track information via HTML scraping.
type AmazonMusicResolver struct {
	client *http.Client
}

// NewAmazonMusicResolver creates a new Amazon Music link resolver.
func NewAmazonMusicResolver(client *http.Client) *AmazonMusicResolver {
	if client == nil {
		client = newHTTPClient(defaultHTTPTimeout)
	}
	return &AmazonMusicResolver{client: client}
}

// CanResolve checks if the URL is an Amazon Music link.
func (r *AmazonMusicResolver) CanResolve(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	hostname := strings.ToLower(u.Hostname())
	// music.amazon.com, music.amazon.co.uk, music.amazon.de, ...
	return strings.HasPrefix(hostname, "music.amazon.")
}

// Resolve extracts track information from an Amazon Music URL by scraping the HTML.
func (r *AmazonMusicResolver) Resolve(ctx context.Context, rawURL string) (*TrackInfo, error) {
	if !r.CanResolve(rawURL) {
		return nil, errors.New("not an Amazon Music URL")
	}

	doc, err := fetchDocument(ctx, r.client, rawURL, "Amazon Music")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch Amazon Music page: %w", err)
	}

	meta := ParsePageMeta(doc)
	info := r.extractTrackInfo(meta, metaContent(doc, "og:title") != "")
	if info.Title == "" {
		return nil, fmt.Errorf("Amazon Music page: %w", ErrNoMetadata)
	}
	return info, nil
}

// extractTrackInfo reads og:title plus the "Song by Artist on Amazon Music" description,
// or splits the <title> text when no OpenGraph title exists.
func (r *AmazonMusicResolver) extractTrackInfo(meta *PageMeta, fromOpenGraph bool) *TrackInfo {
	info := &TrackInfo{ThumbnailURL: meta.Image}

	if !fromOpenGraph {
		info.Title, info.Artist = splitTitleAndArtist(meta.Title, amazonMusicSuffix, " by ")
		return info
	}

	info.Title = meta.Title
	if _, artist, found := strings.Cut(meta.Description, " by "); found {
		artist, _, _ = strings.Cut(artist, amazonMusicSuffix)
		info.Artist = strings.TrimSpace(artist)
	}
	return info
}
