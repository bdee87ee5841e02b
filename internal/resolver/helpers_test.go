package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"go.uber.org/zap"

	"crossfade/internal/store"
	"crossfade/pkg/musiclink"
	"crossfade/pkg/odesli"
)

type primaryResult struct {
	resp *odesli.Response
	err  error
}

// fakePrimary answers Links from a table and counts calls per URL.
type fakePrimary struct {
	mu      sync.Mutex
	results map[string][]primaryResult
	calls   map[string]int
}

func newFakePrimary() *fakePrimary {
	return &fakePrimary{
		results: make(map[string][]primaryResult),
		calls:   make(map[string]int),
	}
}

// on queues results for url; the last one repeats.
func (f *fakePrimary) on(url string, results ...primaryResult) *fakePrimary {
	f.results[url] = results
	return f
}

func (f *fakePrimary) Links(_ context.Context, url string) (*odesli.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.calls[url]
	f.calls[url]++

	results, ok := f.results[url]
	if !ok || len(results) == 0 {
		return nil, &odesli.StatusError{Code: http.StatusNotFound, Status: "Not Found"}
	}
	if n >= len(results) {
		n = len(results) - 1
	}
	return results[n].resp, results[n].err
}

func (f *fakePrimary) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type fakeOEmbed struct {
	info  *musiclink.TrackInfo
	err   error
	calls int
}

func (f *fakeOEmbed) Lookup(context.Context, string) (*musiclink.TrackInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.info == nil {
		return nil, musiclink.ErrNoOEmbedProvider
	}
	return f.info, nil
}

type fakePages struct {
	meta  *musiclink.PageMeta
	err   error
	calls int
}

func (f *fakePages) Scrape(context.Context, string) (*musiclink.PageMeta, error) {
	f.calls++
	return f.meta, f.err
}

type fakeExpander struct {
	canonical string
	err       error
	calls     int
}

func (f *fakeExpander) Expand(context.Context, string) (string, error) {
	f.calls++
	return f.canonical, f.err
}

type stubScraper struct {
	info *musiclink.TrackInfo
	err  error
}

func (s stubScraper) CanResolve(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.Hostname() == "scrape.example"
}

func (s stubScraper) Resolve(context.Context, string) (*musiclink.TrackInfo, error) {
	return s.info, s.err
}

// rewriteTransport sends every request to the test server, keeping the original URL on the response.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Host = rt.target.Host
	resp, err := http.DefaultTransport.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}

func newTestHTTPClient(t *testing.T, handler http.Handler) *http.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	target, _ := url.Parse(server.URL)
	return &http.Client{Transport: rewriteTransport{target: target}}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), store.MemoryPath, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

type testEnv struct {
	store    *store.SQLiteStore
	primary  *fakePrimary
	oembed   *fakeOEmbed
	pages    *fakePages
	expander *fakeExpander
	scrapers musiclink.Resolver
	resolver *LinkResolver
}

func newTestEnv(t *testing.T, configure func(env *testEnv)) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   newTestStore(t),
		primary: newFakePrimary(),
		oembed:  &fakeOEmbed{},
		pages:   &fakePages{meta: &musiclink.PageMeta{}},
	}
	if configure != nil {
		configure(env)
	}

	logger := zap.NewNop()
	fallback := NewFallbackResolver(FallbackDeps{
		Store:    env.store,
		Scrapers: env.scrapers,
		OEmbed:   env.oembed,
		Pages:    env.pages,
	}, logger)

	deps := Deps{
		Store:    env.store,
		Primary:  env.primary,
		Fallback: fallback,
	}
	if env.expander != nil {
		deps.Expander = env.expander
	}
	env.resolver = New(deps, Options{ManualAttempts: 2}, logger)
	return env
}

func songResponse(title, artist, entityType string, links map[string]odesli.PlatformLink) *odesli.Response {
	return &odesli.Response{
		EntityUniqueID: "SPOTIFY_SONG::1",
		PageURL:        "https://song.link/s/1",
		EntitiesByUniqueID: map[string]odesli.Entity{
			"SPOTIFY_SONG::1": {
				ID:           "1",
				Type:         entityType,
				Title:        title,
				ArtistName:   artist,
				ThumbnailURL: "https://i.scdn.co/image/1",
			},
		},
		LinksByPlatform: links,
	}
}
