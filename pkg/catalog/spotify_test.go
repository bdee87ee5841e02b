package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zmb3/spotify/v2"
)

func TestNewSpotifySearcher_MissingCredentials(t *testing.T) {
	_, err := NewSpotifySearcher(context.Background(), SpotifyOptions{ClientID: "id"})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("NewSpotifySearcher() error = %v, want ErrMissingCredentials", err)
	}
}

func TestSpotifySearcher_Search_Tracks(t *testing.T) {
	var gotQuery, gotType, gotMarket string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotType = r.URL.Query().Get("type")
		gotMarket = r.URL.Query().Get("market")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tracks": {"items": [
			{"name": "Africa", "artists": [{"name": "TOTO"}],
			 "external_urls": {"spotify": "https://open.spotify.com/track/2374M0fQpWi3dLnB54qaLX"},
			 "album": {"name": "Toto IV", "images": [{"url": "https://i.scdn.co/image/a", "height": 640, "width": 640}]}},
			{"name": "Local", "artists": [], "external_urls": {}}
		]}}`))
	}))
	defer server.Close()

	client := spotify.New(http.DefaultClient, spotify.WithBaseURL(server.URL+"/"))
	searcher := newSpotifySearcher(client, SpotifyOptions{Market: "DE"})

	results, err := searcher.Search(context.Background(), "africa", KindSong)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotQuery != "africa" || gotType != "track" || gotMarket != "DE" {
		t.Errorf("query = %q type = %q market = %q", gotQuery, gotType, gotMarket)
	}
	if len(results) != 1 {
		t.Fatalf("Search() returned %d results, want 1", len(results))
	}
	want := Result{
		Title:      "Africa",
		Artist:     "TOTO",
		URL:        "https://open.spotify.com/track/2374M0fQpWi3dLnB54qaLX",
		ArtworkURL: "https://i.scdn.co/image/a",
		Kind:       KindSong,
		Source:     sourceSpotify,
	}
	if results[0] != want {
		t.Errorf("results[0] = %+v, want %+v", results[0], want)
	}
}

func TestSpotifySearchType(t *testing.T) {
	if spotifySearchType(KindAlbum) != spotify.SearchTypeAlbum {
		t.Error("album kind should search albums")
	}
	if spotifySearchType(KindPodcast) != spotify.SearchTypeShow {
		t.Error("pod kind should search shows")
	}
	if spotifySearchType(Kind("x")) != spotify.SearchTypeTrack {
		t.Error("unknown kind should search tracks")
	}
}
