package musiclink

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestScrapers_CanResolve(t *testing.T) {
	shazam := NewShazamResolver(nil)
	amazon := NewAmazonMusicResolver(nil)
	tidal := NewTidalResolver(nil)

	tests := []struct {
		name     string
		resolver Resolver
		url      string
		expected bool
	}{
		{"Shazam track", shazam, "https://www.shazam.com/track/5933917/africa", true},
		{"Shazam bare host", shazam, "https://shazam.com/song/1", true},
		{"Shazam rejects Spotify", shazam, "https://open.spotify.com/track/1", false},
		{"Amazon US", amazon, "https://music.amazon.com/albums/B08X123456", true},
		{"Amazon UK", amazon, "https://music.amazon.co.uk/albums/B08X123456", true},
		{"Amazon store", amazon, "https://www.amazon.com/dp/B08X123456", false},
		{"Tidal", tidal, "https://tidal.com/track/12345678", true},
		{"Tidal listen", tidal, "https://listen.tidal.com/album/1", true},
		{"Tidal rejects example", tidal, "https://example.com", false},
		{"Malformed URL", tidal, "://bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resolver.CanResolve(tt.url); got != tt.expected {
				t.Errorf("CanResolve() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestShazamResolver_Resolve(t *testing.T) {
	client := newTestClient(t, htmlHandler(`<html><head>
		<meta property="og:title" content="Africa - TOTO: Song Lyrics, Music Videos &amp; Concerts">
		<meta property="og:image" content="https://is1.mzstatic.com/africa.jpg">
		</head></html>`))

	info, err := NewShazamResolver(client).Resolve(context.Background(), "https://www.shazam.com/track/5933917/africa")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := TrackInfo{Title: "Africa", Artist: "TOTO", ThumbnailURL: "https://is1.mzstatic.com/africa.jpg"}
	if *info != want {
		t.Errorf("Resolve() = %+v, want %+v", *info, want)
	}
}

func TestShazamResolver_Resolve_NoTitle(t *testing.T) {
	client := newTestClient(t, htmlHandler(`<html><head></head></html>`))

	_, err := NewShazamResolver(client).Resolve(context.Background(), "https://www.shazam.com/track/1")
	if !errors.Is(err, ErrNoMetadata) {
		t.Errorf("Resolve() error = %v, want ErrNoMetadata", err)
	}
}

func TestParseShazamTitle(t *testing.T) {
	tests := []struct {
		text           string
		expectedTitle  string
		expectedArtist string
	}{
		{"Africa - TOTO: Song Lyrics", "Africa", "TOTO"},
		{"Just A Title", "Just A Title", ""},
		{"Song - Artist", "Song", "Artist"},
		{"Hyphen-Title - Band: x: y", "Hyphen-Title", "Band"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			title, artist := parseShazamTitle(tt.text)
			if title != tt.expectedTitle || artist != tt.expectedArtist {
				t.Errorf("parseShazamTitle() = %q, %q, want %q, %q", title, artist, tt.expectedTitle, tt.expectedArtist)
			}
		})
	}
}

func TestAmazonMusicResolver_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected TrackInfo
	}{
		{
			name: "OpenGraph tags",
			html: `<meta property="og:title" content="Blinding Lights">
				<meta property="og:description" content="Blinding Lights by The Weeknd on Amazon Music">`,
			expected: TrackInfo{Title: "Blinding Lights", Artist: "The Weeknd"},
		},
		{
			name:     "Title tag",
			html:     `<title>Levitating by Dua Lipa on Amazon Music</title>`,
			expected: TrackInfo{Title: "Levitating", Artist: "Dua Lipa"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, htmlHandler(tt.html))
			info, err := NewAmazonMusicResolver(client).Resolve(context.Background(), "https://music.amazon.com/tracks/B1")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if *info != tt.expected {
				t.Errorf("Resolve() = %+v, want %+v", *info, tt.expected)
			}
		})
	}
}

func TestTidalResolver_Resolve(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected TrackInfo
	}{
		{
			name:     "En dash title tag",
			html:     `<title>Never Gonna Give You Up – Rick Astley | TIDAL</title>`,
			expected: TrackInfo{Title: "Never Gonna Give You Up", Artist: "Rick Astley"},
		},
		{
			name:     "By title tag",
			html:     `<title>Hold On by Some Band on TIDAL</title>`,
			expected: TrackInfo{Title: "Hold On", Artist: "Some Band"},
		},
		{
			name: "OpenGraph tags",
			html: `<meta property="og:title" content="Track Title">
				<meta property="og:description" content="Listen to Track Title by Artist Name">
				<meta property="og:image" content="https://img/t.jpg">`,
			expected: TrackInfo{Title: "Track Title", Artist: "Artist Name", ThumbnailURL: "https://img/t.jpg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, htmlHandler(tt.html))
			info, err := NewTidalResolver(client).Resolve(context.Background(), "https://tidal.com/browse/track/1")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if *info != tt.expected {
				t.Errorf("Resolve() = %+v, want %+v", *info, tt.expected)
			}
		})
	}
}

func TestTidalResolver_Resolve_RejectsArtistPages(t *testing.T) {
	if _, err := NewTidalResolver(nil).Resolve(context.Background(), "https://tidal.com/artist/1"); err == nil {
		t.Error("Resolve() expected error for artist page")
	}
}

type stubResolver struct {
	host  string
	title string
}

func (s stubResolver) CanResolve(url string) bool { return url == s.host }

func (s stubResolver) Resolve(context.Context, string) (*TrackInfo, error) {
	return &TrackInfo{Title: s.title}, nil
}

func TestManager(t *testing.T) {
	manager := NewManagerWith(stubResolver{"a", "first"}, stubResolver{"a", "second"}, stubResolver{"b", "third"})

	info, err := manager.Resolve(context.Background(), "a")
	if err != nil || info.Title != "first" {
		t.Errorf("Resolve(a) = %+v, %v, want first", info, err)
	}
	if !manager.CanResolve("b") {
		t.Error("CanResolve(b) = false, want true")
	}
	if _, err := manager.Resolve(context.Background(), "c"); !errors.Is(err, ErrNoResolver) {
		t.Errorf("Resolve(c) error = %v, want ErrNoResolver", err)
	}

	defaults := NewManager(nil)
	for _, url := range []string{
		"https://www.shazam.com/track/1",
		"https://music.amazon.de/albums/1",
		"https://tidal.com/track/1",
	} {
		if !defaults.CanResolve(url) {
			t.Errorf("NewManager().CanResolve(%q) = false", url)
		}
	}
	if defaults.CanResolve("https://open.spotify.com/track/1") {
		t.Error("NewManager() should not scrape Spotify")
	}
}
