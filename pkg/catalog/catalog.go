// Package catalog searches public music catalogs for the manual-fix flow:
// when a link cannot be resolved, the user picks the right item from search results
// and its URL is resolved instead.
package catalog

import (
	"context"
	"strings"
)

// Kind selects what a search looks for.
type Kind string

const (
	KindSong    Kind = "song"
	KindAlbum   Kind = "album"
	KindPodcast Kind = "pod"
	KindEpisode Kind = "episode"
)

// ParseKind maps user input to a Kind. Unknown values search songs.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindAlbum:
		return KindAlbum
	case KindPodcast:
		return KindPodcast
	case KindEpisode:
		return KindEpisode
	default:
		return KindSong
	}
}

// Result is a single catalog hit.
type Result struct {
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	URL        string `json:"url"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	Kind       Kind   `json:"kind"`
	Source     string `json:"source"`
}

// Searcher looks up catalog items by free-text term.
type Searcher interface {
	Search(ctx context.Context, term string, kind Kind) ([]Result, error)
}
