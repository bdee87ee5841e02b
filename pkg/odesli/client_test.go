package odesli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const africaBody = `{
  "entityUniqueId": "SPOTIFY_SONG::X",
  "userCountry": "US",
  "pageUrl": "https://song.link/s/X",
  "entitiesByUniqueId": {
    "SPOTIFY_SONG::X": {"id": "X", "type": "song", "title": "Africa", "artistName": "Toto", "thumbnailUrl": "https://i.scdn.co/image/x"}
  },
  "linksByPlatform": {
    "spotify": {"url": "https://open.spotify.com/track/X", "nativeAppUriDesktop": "spotify:track:X", "entityUniqueId": "SPOTIFY_SONG::X"}
  }
}`

func TestClient_Links_Success(t *testing.T) {
	var gotQuery map[string][]string
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != linksPath {
			t.Errorf("path = %q, want %q", r.URL.Path, linksPath)
		}
		gotQuery = r.URL.Query()
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(africaBody))
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, UserCountry: "DE", SongIfSingle: true})
	resp, err := client.Links(context.Background(), "https://open.spotify.com/track/X?si=1")
	if err != nil {
		t.Fatalf("Links() error = %v", err)
	}

	if got := gotQuery["url"]; len(got) != 1 || got[0] != "https://open.spotify.com/track/X?si=1" {
		t.Errorf("url query = %v", got)
	}
	if got := gotQuery["userCountry"]; len(got) != 1 || got[0] != "DE" {
		t.Errorf("userCountry query = %v", got)
	}
	if got := gotQuery["songIfSingle"]; len(got) != 1 || got[0] != "true" {
		t.Errorf("songIfSingle query = %v", got)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}

	entity, ok := resp.Entity()
	if !ok {
		t.Fatal("Entity() not found")
	}
	if entity.Title != "Africa" || entity.ArtistName != "Toto" || entity.Type != EntitySong {
		t.Errorf("Entity() = %+v", entity)
	}
	if resp.LinksByPlatform["spotify"].URL != "https://open.spotify.com/track/X" {
		t.Errorf("spotify link = %+v", resp.LinksByPlatform["spotify"])
	}
}

func TestClient_Links_StatusError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		unsupported bool
	}{
		{"bad request", http.StatusBadRequest, true},
		{"method not allowed", http.StatusMethodNotAllowed, true},
		{"not found", http.StatusNotFound, false},
		{"server error", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := NewClient(Options{BaseURL: server.URL}).Links(context.Background(), "https://x")
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Links() error = %v, want *StatusError", err)
			}
			if statusErr.Code != tt.status {
				t.Errorf("Code = %d, want %d", statusErr.Code, tt.status)
			}
			if statusErr.Unsupported() != tt.unsupported {
				t.Errorf("Unsupported() = %v, want %v", statusErr.Unsupported(), tt.unsupported)
			}
		})
	}
}

func TestClient_Links_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := NewClient(Options{BaseURL: server.URL}).Links(context.Background(), "https://x")
	if !errors.Is(err, ErrEmptyBody) {
		t.Errorf("Links() error = %v, want ErrEmptyBody", err)
	}
}

func TestClient_Links_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"pageUrl": `))
	}))
	defer server.Close()

	if _, err := NewClient(Options{BaseURL: server.URL}).Links(context.Background(), "https://x"); err == nil {
		t.Error("Links() expected decode error")
	}
}

func TestResponse_EntityID_FirstKeyInDocumentOrder(t *testing.T) {
	body := `{"entitiesByUniqueId": {
		"ZZZ::1": {"title": "first"},
		"AAA::2": {"title": "second"},
		"MMM::3": {"title": "third"}
	}}`

	for i := 0; i < 10; i++ {
		var resp Response
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if got := resp.EntityID(); got != "ZZZ::1" {
			t.Fatalf("EntityID() = %q, want %q", got, "ZZZ::1")
		}
	}
}

func TestResponse_EntityID_Explicit(t *testing.T) {
	resp := &Response{
		EntityUniqueID:     "B",
		EntitiesByUniqueID: map[string]Entity{"A": {}, "B": {Title: "b"}},
	}
	if got := resp.EntityID(); got != "B" {
		t.Errorf("EntityID() = %q, want B", got)
	}

	empty := &Response{}
	if got := empty.EntityID(); got != "" {
		t.Errorf("EntityID() on empty response = %q", got)
	}
	if _, ok := empty.Entity(); ok {
		t.Error("Entity() on empty response should not be found")
	}
}

func TestMergeAppleMusicLinks(t *testing.T) {
	t.Run("itunes replaces missing appleMusic", func(t *testing.T) {
		links := map[string]PlatformLink{
			"itunes":  {URL: "itunes_url"},
			"spotify": {URL: "spotify_url"},
		}
		merged := MergeAppleMusicLinks(links)
		if merged["appleMusic"].URL != "itunes_url" {
			t.Errorf("appleMusic = %+v", merged["appleMusic"])
		}
		if _, ok := merged["itunes"]; ok {
			t.Error("itunes key should be removed")
		}
		if _, ok := links["itunes"]; !ok {
			t.Error("input map must not be modified")
		}
	})

	t.Run("existing appleMusic wins", func(t *testing.T) {
		merged := MergeAppleMusicLinks(map[string]PlatformLink{
			"itunes":     {URL: "itunes_url"},
			"appleMusic": {URL: "am_url"},
		})
		if merged["appleMusic"].URL != "am_url" {
			t.Errorf("appleMusic = %+v", merged["appleMusic"])
		}
		if len(merged) != 1 {
			t.Errorf("len = %d, want 1", len(merged))
		}
	})

	t.Run("no itunes link", func(t *testing.T) {
		merged := MergeAppleMusicLinks(map[string]PlatformLink{"spotify": {URL: "s"}})
		if len(merged) != 1 {
			t.Errorf("len = %d, want 1", len(merged))
		}
	})
}
