// Package platform holds the static table of streaming platforms and the URL classification helpers.
package platform

import (
	"net/url"
	"strings"
)

// Identifiers of music platforms.
const (
	Spotify      = "spotify"
	AppleMusic   = "apple_music"
	Tidal        = "tidal"
	AmazonMusic  = "amazon_music"
	YouTubeMusic = "youtube_music"
	Deezer       = "deezer"
	SoundCloud   = "soundcloud"
	Napster      = "napster"
	Pandora      = "pandora"
	Audiomack    = "audiomack"
	Anghami      = "anghami"
	Boomplay     = "boomplay"
	Yandex       = "yandex"
	Audius       = "audius"
	Bandcamp     = "bandcamp"
	YouTube      = "youtube"
	Shazam       = "shazam"

	// Universal is not a platform; it asks the caller to present every link.
	Universal = "universal"
)

// Identifiers of podcast targets.
const (
	PodcastSpotify     = "podcast_spotify"
	PodcastApple       = "podcast_apple"
	PodcastPocketCasts = "podcast_pocket_casts"
	PodcastCastbox     = "podcast_castbox"
	PodcastAddict      = "podcast_addict"
	PodcastPlayerFM    = "podcast_player_fm"
	PodcastAntennaPod  = "podcast_antennapod"
	PodcastPodbean     = "podcast_podbean"
	PodcastGuru        = "podcast_guru"
	PodcastWeb         = "podcast_web"
)

// Resolver keys used by the link resolution API for platforms that need special handling.
const (
	KeyAppleMusic = "appleMusic"
	KeyITunes     = "itunes"
	KeySpotify    = "spotify"
)

// fallbackSearchTemplate is used when a platform has no search page of its own.
const fallbackSearchTemplate = "https://odesli.co/?q=%s"

// Info describes a single platform.
type Info struct {
	ID             string
	DisplayName    string
	Icon           string
	ResolverKey    string // Empty when the resolution API does not know the platform.
	SearchTemplate string // Printf template taking the escaped query, empty if unsupported.
}

// SearchURL renders the platform's search template for query.
// Platforms without a template fall back to the cross-platform search page.
func (i Info) SearchURL(query string) string {
	tmpl := i.SearchTemplate
	if tmpl == "" {
		tmpl = fallbackSearchTemplate
	}
	escaped := strings.ReplaceAll(url.QueryEscape(query), "+", "%20")
	return strings.Replace(tmpl, "%s", escaped, 1)
}

var platforms = []Info{
	{Spotify, "Spotify", "ic_spotify", "spotify", "spotify:search:%s"},
	{AppleMusic, "Apple Music", "ic_apple_music", "appleMusic", "https://music.apple.com/us/search?term=%s"},
	{Tidal, "Tidal", "ic_tidal", "tidal", "https://listen.tidal.com/search/%s"},
	{AmazonMusic, "Amazon Music", "ic_amazon_music", "amazonMusic", "https://music.amazon.com/search/%s"},
	{YouTubeMusic, "YouTube Music", "ic_youtube_music", "youtubeMusic", "https://music.youtube.com/search?q=%s"},
	{Deezer, "Deezer", "ic_deezer", "deezer", "deezer://www.deezer.com/search/%s"},
	{SoundCloud, "SoundCloud", "ic_soundcloud", "soundcloud", "https://soundcloud.com/search?q=%s"},
	{Napster, "Napster", "ic_napster", "napster", "https://web.napster.com/search?query=%s"},
	{Pandora, "Pandora", "ic_pandora", "pandora", "https://www.pandora.com/search/%s"},
	{Audiomack, "Audiomack", "ic_audiomack", "audiomack", "https://audiomack.com/search?q=%s"},
	{Anghami, "Anghami", "ic_anghami", "anghami", "https://play.anghami.com/search/%s"},
	{Boomplay, "Boomplay", "ic_boomplay", "boomplay", "https://www.boomplay.com/search/%s"},
	{Yandex, "Yandex Music", "ic_yandex_music", "yandex", "https://music.yandex.ru/search?text=%s"},
	{Audius, "Audius", "ic_audius", "audius", "https://audius.co/search/%s"},
	{Bandcamp, "Bandcamp", "ic_bandcamp", "bandcamp", "https://bandcamp.com/search?q=%s"},
	{YouTube, "YouTube", "ic_youtube", "youtube", "https://www.youtube.com/results?search_query=%s"},
	{Shazam, "Shazam", "ic_shazam", "shazam", ""},
}

var podcastPlatforms = []Info{
	{PodcastSpotify, "Spotify", "ic_spotify", "spotify", ""},
	{PodcastApple, "Apple Podcasts", "ic_apple_music", "appleMusic", ""},
	{PodcastPocketCasts, "Pocket Casts", "ic_placeholder_service", "", ""},
	{PodcastCastbox, "Castbox", "ic_placeholder_service", "", ""},
	{PodcastAddict, "Podcast Addict", "ic_placeholder_service", "", ""},
	{PodcastPlayerFM, "Player FM", "ic_placeholder_service", "", ""},
	{PodcastAntennaPod, "AntennaPod", "ic_placeholder_service", "", ""},
	{PodcastPodbean, "Podbean", "ic_placeholder_service", "", ""},
	{PodcastGuru, "Podcast Guru", "ic_placeholder_service", "", ""},
}

// hostRule maps a URL substring to a platform identifier. Order matters: the first match wins.
type hostRule struct {
	fragments []string
	id        string
}

var platformRules = []hostRule{
	{[]string{"spotify.com"}, Spotify},
	{[]string{"apple.com", "itunes.apple.com"}, AppleMusic},
	{[]string{"tidal.com"}, Tidal},
	{[]string{"amazon.com"}, AmazonMusic},
	{[]string{"music.youtube.com"}, YouTubeMusic},
	{[]string{"youtube.com", "youtu.be"}, YouTube},
	{[]string{"deezer.com"}, Deezer},
	{[]string{"soundcloud.com"}, SoundCloud},
	{[]string{"napster.com"}, Napster},
	{[]string{"pandora.com"}, Pandora},
	{[]string{"audiomack.com"}, Audiomack},
	{[]string{"yandex.com", "yandex.ru"}, Yandex},
	{[]string{"anghami.com"}, Anghami},
	{[]string{"boomplay.com"}, Boomplay},
	{[]string{"audius.co"}, Audius},
	{[]string{"bandcamp.com"}, Bandcamp},
	{[]string{"shazam.com"}, Shazam},
}

var podcastRules = []hostRule{
	{[]string{"podcasts.apple.com"}, PodcastApple},
	{[]string{"pca.st", "pocketcasts.com"}, PodcastPocketCasts},
	{[]string{"castbox.fm"}, PodcastCastbox},
	{[]string{"podcastaddict.com"}, PodcastAddict},
	{[]string{"player.fm"}, PodcastPlayerFM},
	{[]string{"antennapod.org"}, PodcastAntennaPod},
	{[]string{"podbean.com"}, PodcastPodbean},
	{[]string{"podcastguru.io"}, PodcastGuru},
	{[]string{"spotify.com"}, PodcastSpotify},
}

var podcastURLFragments = []string{
	"podcasts.apple.com",
	"pca.st",
	"pocketcasts.com",
	"castbox.fm",
	"podcastaddict.com",
	"player.fm",
	"antennapod.org",
	"podbean.com",
	"podcastguru.io",
	"open.spotify.com/episode",
	"open.spotify.com/show",
}

// All returns a copy of the music platform table in display order.
func All() []Info {
	out := make([]Info, len(platforms))
	copy(out, platforms)
	return out
}

// Podcasts returns a copy of the podcast target table.
func Podcasts() []Info {
	out := make([]Info, len(podcastPlatforms))
	copy(out, podcastPlatforms)
	return out
}

// ByID looks up a music platform or podcast target by identifier.
func ByID(id string) (Info, bool) {
	for _, p := range platforms {
		if p.ID == id {
			return p, true
		}
	}
	for _, p := range podcastPlatforms {
		if p.ID == id {
			return p, true
		}
	}
	return Info{}, false
}

// ByResolverKey looks up a platform by the resolution API's key.
func ByResolverKey(key string) (Info, bool) {
	if key == "" {
		return Info{}, false
	}
	for _, p := range platforms {
		if p.ResolverKey == key {
			return p, true
		}
	}
	for _, p := range podcastPlatforms {
		if p.ResolverKey == key {
			return p, true
		}
	}
	return Info{}, false
}

// ForURL returns the music platform a URL belongs to, or "" if unknown.
func ForURL(rawURL string) string {
	return match(platformRules, rawURL)
}

// PodcastForURL returns the podcast target a URL belongs to, or "" if unknown.
func PodcastForURL(rawURL string) string {
	return match(podcastRules, rawURL)
}

// IsPodcastURL reports whether the URL points at a podcast show or episode.
func IsPodcastURL(rawURL string) bool {
	for _, fragment := range podcastURLFragments {
		if strings.Contains(rawURL, fragment) {
			return true
		}
	}
	return false
}

func match(rules []hostRule, rawURL string) string {
	for _, rule := range rules {
		for _, fragment := range rule.fragments {
			if strings.Contains(rawURL, fragment) {
				return rule.id
			}
		}
	}
	return ""
}
