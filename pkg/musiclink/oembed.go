package musiclink

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	// SpotifyOEmbedURL is the Spotify oEmbed API endpoint.
	SpotifyOEmbedURL = "https://open.spotify.com/oembed"
	// AppleMusicOEmbedURL is the Apple Music oEmbed API endpoint.
	AppleMusicOEmbedURL = "https://music.apple.com/oembed"
	// YouTubeOEmbedURL is the YouTube oEmbed API endpoint.
	YouTubeOEmbedURL = "https://www.youtube.com/oembed"
	// SoundCloudOEmbedURL is the SoundCloud oEmbed API endpoint.
	SoundCloudOEmbedURL = "https://soundcloud.com/oembed"

	// OEmbedRequestTimeout is the timeout for oEmbed API requests.
	OEmbedRequestTimeout = defaultHTTPTimeout
)

// OEmbedResponse is the subset of an oEmbed document we care about.
type OEmbedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ProviderName string `json:"provider_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type oembedProvider struct {
	endpoint string
	matches  func(host string) bool
	// parse turns the raw document into title and artist.
	parse func(resp *OEmbedResponse) (title, artist string)
}

// OEmbedClient looks up track metadata through the providers' oEmbed endpoints.
type OEmbedClient struct {
	client    *http.Client
	providers []oembedProvider
}

// NewOEmbedClient creates an oEmbed client for Spotify and Apple Music URLs.
// With extended set, YouTube and SoundCloud endpoints are consulted too.
func NewOEmbedClient(client *http.Client, extended bool) *OEmbedClient {
	if client == nil {
		client = newHTTPClient(OEmbedRequestTimeout)
	}

	providers := []oembedProvider{
		{
			endpoint: SpotifyOEmbedURL,
			matches:  func(host string) bool { return host == "spotify.com" || strings.HasSuffix(host, ".spotify.com") },
			parse:    plainOEmbed,
		},
		{
			endpoint: AppleMusicOEmbedURL,
			matches:  func(host string) bool { return host == "music.apple.com" },
			parse:    plainOEmbed,
		},
	}
	if extended {
		providers = append(providers,
			oembedProvider{
				endpoint: YouTubeOEmbedURL,
				matches:  isYouTubeHost,
				parse:    parseYouTubeOEmbed,
			},
			oembedProvider{
				endpoint: SoundCloudOEmbedURL,
				matches:  func(host string) bool { return host == "soundcloud.com" || host == "m.soundcloud.com" },
				parse:    parseSoundCloudOEmbed,
			},
		)
	}

	return &OEmbedClient{client: client, providers: providers}
}

// Endpoint returns the oEmbed endpoint serving rawURL.
func (c *OEmbedClient) Endpoint(rawURL string) (string, bool) {
	p, ok := c.provider(rawURL)
	if !ok {
		return "", false
	}
	return p.endpoint, true
}

// Lookup fetches the oEmbed document for rawURL and extracts track information.
// The returned title may be empty when the provider omits it.
func (c *OEmbedClient) Lookup(ctx context.Context, rawURL string) (*TrackInfo, error) {
	p, ok := c.provider(rawURL)
	if !ok {
		return nil, ErrNoOEmbedProvider
	}

	var resp OEmbedResponse
	if err := fetchOEmbedJSON(ctx, c.client, p.endpoint, rawURL, &resp); err != nil {
		return nil, fmt.Errorf("oEmbed lookup failed: %w", err)
	}

	title, artist := p.parse(&resp)
	return &TrackInfo{
		Title:        title,
		Artist:       artist,
		ThumbnailURL: strings.TrimSpace(resp.ThumbnailURL),
	}, nil
}

func (c *OEmbedClient) provider(rawURL string) (oembedProvider, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return oembedProvider{}, false
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range c.providers {
		if p.matches(host) {
			return p, true
		}
	}
	return oembedProvider{}, false
}

func plainOEmbed(resp *OEmbedResponse) (title, artist string) {
	return strings.TrimSpace(resp.Title), strings.TrimSpace(resp.AuthorName)
}

func isYouTubeHost(host string) bool {
	switch host {
	case "youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

var (
	youTubeNoise = regexp.MustCompile(
		`(?i)[(\[](official (music )?video|official audio|lyric video|lyrics|hd|4k)[)\]]`)
	camelCaseBoundary = regexp.MustCompile(`([a-z])([A-Z])`)
)

// parseYouTubeOEmbed strips video decorations from the title and derives
// the artist from VEVO/Topic channels or an "Artist - Title" shape.
func parseYouTubeOEmbed(resp *OEmbedResponse) (title, artist string) {
	title = strings.TrimSpace(youTubeNoise.ReplaceAllString(resp.Title, ""))
	author := strings.TrimSpace(resp.AuthorName)

	switch {
	case strings.HasSuffix(author, "VEVO"):
		artist = camelCaseBoundary.ReplaceAllString(strings.TrimSuffix(author, "VEVO"), "$1 $2")
	case strings.HasSuffix(author, " - Topic"):
		artist = strings.TrimSuffix(author, " - Topic")
	case strings.Contains(title, " - "):
		parts := strings.SplitN(title, " - ", expectedSplitParts)
		artist = strings.TrimSpace(parts[0])
		title = strings.TrimSpace(parts[1])
	default:
		artist = author
	}
	return title, artist
}

// parseSoundCloudOEmbed handles the "Track Title by Artist Name" title shape.
func parseSoundCloudOEmbed(resp *OEmbedResponse) (title, artist string) {
	title, artist = splitTitleAndArtist(resp.Title, "", " by ")
	if artist == "" {
		artist = strings.TrimSpace(resp.AuthorName)
	}
	return title, artist
}
