package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
	}{
		{"song", KindSong},
		{"ALBUM", KindAlbum},
		{" pod ", KindPodcast},
		{"episode", KindEpisode},
		{"", KindSong},
		{"playlist", KindSong},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseKind(tt.input); got != tt.expected {
				t.Errorf("ParseKind() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestITunesEntity(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindSong, "song"},
		{KindAlbum, "album"},
		{KindPodcast, "podcast"},
		{KindEpisode, "podcastEpisode"},
		{Kind("other"), "song"},
	}

	for _, tt := range tests {
		if got := iTunesEntity(tt.kind); got != tt.expected {
			t.Errorf("iTunesEntity(%q) = %q, want %q", tt.kind, got, tt.expected)
		}
	}
}

const iTunesBody = `{"resultCount": 3, "results": [
  {"wrapperType": "track", "trackName": "Africa", "artistName": "TOTO",
   "artworkUrl100": "https://a/100.jpg", "trackViewUrl": "https://music.apple.com/us/album/toto-iv/1?i=2"},
  {"wrapperType": "collection", "collectionName": "Toto IV", "artistName": "TOTO",
   "collectionViewUrl": "https://music.apple.com/us/album/toto-iv/1"},
  {"wrapperType": "track", "trackName": "No Link"}
]}`

func TestITunesSearcher_Search(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q, want /search", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(iTunesBody))
	}))
	defer server.Close()

	searcher := NewITunesSearcher(ITunesOptions{BaseURL: server.URL, Country: "US"})
	results, err := searcher.Search(context.Background(), "africa toto", KindEpisode)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	expectedQuery := map[string]string{
		"term":    "africa toto",
		"entity":  "podcastEpisode",
		"limit":   "20",
		"country": "US",
	}
	for key, want := range expectedQuery {
		if got := gotQuery[key]; len(got) != 1 || got[0] != want {
			t.Errorf("query %s = %v, want %q", key, got, want)
		}
	}

	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	first := Result{
		Title:      "Africa",
		Artist:     "TOTO",
		URL:        "https://music.apple.com/us/album/toto-iv/1?i=2",
		ArtworkURL: "https://a/100.jpg",
		Kind:       KindEpisode,
		Source:     sourceITunes,
	}
	if results[0] != first {
		t.Errorf("results[0] = %+v, want %+v", results[0], first)
	}
	if results[1].Title != "Toto IV" || results[1].URL != "https://music.apple.com/us/album/toto-iv/1" {
		t.Errorf("results[1] = %+v, want collection fallback", results[1])
	}
}

func TestITunesSearcher_Search_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := NewITunesSearcher(ITunesOptions{BaseURL: server.URL}).Search(context.Background(), "x", KindSong); err == nil {
		t.Error("Search() expected error for 503")
	}
}
