// Package musiclink provides the metadata clients used when the link resolution API cannot
// identify a URL: oEmbed lookups, OpenGraph page scraping, platform page scrapers,
// short-link expansion and direct audio file detection.
package musiclink

import (
	"context"
	"errors"
)

var (
	// ErrNoMetadata is returned when a page was fetched but carried no usable title.
	ErrNoMetadata = errors.New("could not extract metadata")
	// ErrNoResolver is returned when no scraper can handle a URL.
	ErrNoResolver = errors.New("no resolver found for URL")
	// ErrNoOEmbedProvider is returned when a URL has no known oEmbed endpoint.
	ErrNoOEmbedProvider = errors.New("no oEmbed endpoint for URL")
)

// TrackInfo holds metadata extracted from a provider page or API.
type TrackInfo struct {
	Title        string // Track, album or episode title.
	Artist       string // Artist name(s), may be empty.
	ThumbnailURL string // Artwork URL, may be empty.
}

// Resolver extracts metadata from a specific provider's pages.
type Resolver interface {
	// Resolve extracts track information from a provider URL.
	Resolve(ctx context.Context, url string) (*TrackInfo, error)

	// CanResolve checks if this resolver can handle the given URL.
	CanResolve(url string) bool
}
