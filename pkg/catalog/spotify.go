package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

const sourceSpotify = "spotify"

// ErrMissingCredentials is returned when Spotify search is enabled without client credentials.
var ErrMissingCredentials = errors.New("spotify client id and secret are required")

// SpotifyOptions configures a SpotifySearcher.
type SpotifyOptions struct {
	ClientID     string
	ClientSecret string
	Market       string // Optional ISO country code.
	Limit        int
}

// SpotifySearcher searches the Spotify catalog with an app-only token.
type SpotifySearcher struct {
	client *spotify.Client
	market string
	limit  int
}

// NewSpotifySearcher authenticates with the client-credentials flow.
// The token is fetched lazily on the first search and refreshed as needed.
func NewSpotifySearcher(ctx context.Context, opts SpotifyOptions) (*SpotifySearcher, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	config := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return newSpotifySearcher(spotify.New(config.Client(ctx)), opts), nil
}

func newSpotifySearcher(client *spotify.Client, opts SpotifyOptions) *SpotifySearcher {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &SpotifySearcher{client: client, market: opts.Market, limit: limit}
}

func spotifySearchType(kind Kind) spotify.SearchType {
	switch kind {
	case KindAlbum:
		return spotify.SearchTypeAlbum
	case KindPodcast:
		return spotify.SearchTypeShow
	case KindEpisode:
		return spotify.SearchTypeEpisode
	default:
		return spotify.SearchTypeTrack
	}
}

// Search runs a catalog search for the given kind.
func (s *SpotifySearcher) Search(ctx context.Context, term string, kind Kind) ([]Result, error) {
	opts := []spotify.RequestOption{spotify.Limit(s.limit)}
	if s.market != "" {
		opts = append(opts, spotify.Market(s.market))
	}

	page, err := s.client.Search(ctx, term, spotifySearchType(kind), opts...)
	if err != nil {
		return nil, fmt.Errorf("spotify search failed: %w", err)
	}

	var results []Result
	add := func(title, artist string, urls map[string]string, images []spotify.Image) {
		link := urls[sourceSpotify]
		if link == "" {
			return
		}
		results = append(results, Result{
			Title:      firstNonEmpty(title, unknownTitle),
			Artist:     artist,
			URL:        link,
			ArtworkURL: firstImage(images),
			Kind:       kind,
			Source:     sourceSpotify,
		})
	}

	switch kind {
	case KindAlbum:
		if page.Albums != nil {
			for i := range page.Albums.Albums {
				album := &page.Albums.Albums[i]
				add(album.Name, joinArtists(album.Artists), album.ExternalURLs, album.Images)
			}
		}
	case KindPodcast:
		if page.Shows != nil {
			for i := range page.Shows.Shows {
				show := &page.Shows.Shows[i]
				add(show.Name, show.Publisher, show.ExternalURLs, show.Images)
			}
		}
	case KindEpisode:
		if page.Episodes != nil {
			for i := range page.Episodes.Episodes {
				episode := &page.Episodes.Episodes[i]
				add(episode.Name, "", episode.ExternalURLs, episode.Images)
			}
		}
	default:
		if page.Tracks != nil {
			for i := range page.Tracks.Tracks {
				track := &page.Tracks.Tracks[i]
				add(track.Name, joinArtists(track.Artists), track.ExternalURLs, track.Album.Images)
			}
		}
	}
	return results, nil
}

func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, 0, len(artists))
	for _, artist := range artists {
		names = append(names, artist.Name)
	}
	return strings.Join(names, ", ")
}

func firstImage(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}
