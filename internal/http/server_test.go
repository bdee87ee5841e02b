package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"crossfade/internal/core"
	"crossfade/internal/flood"
	"crossfade/internal/resolver"
	"crossfade/internal/store"
	"crossfade/pkg/catalog"
	"crossfade/pkg/odesli"
	"crossfade/pkg/platform"
)

type fakeResolver struct {
	outcomes   map[string]resolver.Outcome
	manual     resolver.Outcome
	manualReq  resolver.ManualRequest
	unresolved []string
	history    []store.HistoryRecord
	results    []catalog.Result
	searchErr  error
	searchKind catalog.Kind
}

func (f *fakeResolver) ResolveLink(_ context.Context, url string) resolver.Outcome {
	if out, ok := f.outcomes[url]; ok {
		return out
	}
	return resolver.Failure("All resolutions failed: not found")
}

func (f *fakeResolver) ResolveManual(_ context.Context, req resolver.ManualRequest) resolver.Outcome {
	f.manualReq = req
	return f.manual
}

func (f *fakeResolver) SaveUnresolvedLink(_ context.Context, url string) error {
	f.unresolved = append(f.unresolved, url)
	return nil
}

func (f *fakeResolver) SearchCatalog(_ context.Context, _ string, kind catalog.Kind) ([]catalog.Result, error) {
	f.searchKind = kind
	return f.results, f.searchErr
}

func (f *fakeResolver) History(context.Context) ([]store.HistoryRecord, error) {
	return f.history, nil
}

const songURL = "https://open.spotify.com/track/1"

func newFakeResolver() *fakeResolver {
	resp := &odesli.Response{
		PageURL: "https://song.link/s/1",
		LinksByPlatform: map[string]odesli.PlatformLink{
			"spotify":    {URL: songURL, NativeAppURIMobile: "spotify:track:1"},
			"appleMusic": {URL: "https://music.apple.com/us/album/1?i=2"},
		},
	}
	return &fakeResolver{
		outcomes: map[string]resolver.Outcome{
			songURL: resolver.Success(resp, &store.HistoryRecord{ID: 1, OriginalURL: songURL, SongTitle: "Africa"}),
			"https://example.com/page": resolver.Fallback(
				&store.HistoryRecord{ID: 2, SongTitle: "Take On Me"}, "Take On Me"),
		},
	}
}

func newTestHandler(t *testing.T, res Resolver, opts Options) http.Handler {
	t.Helper()
	if opts.App.DefaultPlatform == "" {
		opts.App = core.DefaultConfig().App
	}
	if opts.Gatherer == nil {
		reg := prometheus.NewRegistry()
		opts.Registerer, opts.Gatherer = reg, reg
	}
	return NewServer(&core.DefaultConfig().Server, res, opts, zap.NewNop()).Handler()
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	return serve(h, http.MethodGet, target, "")
}

func post(h http.Handler, target, body string) *httptest.ResponseRecorder {
	return serve(h, http.MethodPost, target, body)
}

func TestCreateHTTPServer(t *testing.T) {
	config := &core.ServerConfig{
		Host:         "0.0.0.0",
		Port:         9090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	mux := http.NewServeMux()
	server := createHTTPServer(config, mux)

	if server.Addr != "0.0.0.0:9090" {
		t.Errorf("createHTTPServer() Addr = %q, expected %q", server.Addr, "0.0.0.0:9090")
	}
	if server.Handler != mux {
		t.Errorf("createHTTPServer() Handler mismatch")
	}
	if server.ReadTimeout != config.ReadTimeout || server.WriteTimeout != config.WriteTimeout {
		t.Errorf("createHTTPServer() timeouts = %v/%v", server.ReadTimeout, server.WriteTimeout)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	h := newTestHandler(t, newFakeResolver(), Options{
		Ready: func(context.Context) error { return nil },
	})

	rec := get(h, "/healthz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("/healthz = %d %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("/healthz Content-Type = %q", ct)
	}

	rec = get(h, "/readyz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ready"`) {
		t.Errorf("/readyz = %d %s", rec.Code, rec.Body)
	}

	rec = get(h, "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "crossfade") {
		t.Errorf("/ = %d", rec.Code)
	}
	if rec = get(h, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("/nope = %d, want 404", rec.Code)
	}

	failing := newTestHandler(t, newFakeResolver(), Options{
		Ready: func(context.Context) error { return errors.New("database locked") },
	})
	if rec = get(failing, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz with failing check = %d, want 503", rec.Code)
	}
}

func TestResolveEndpoint(t *testing.T) {
	h := newTestHandler(t, newFakeResolver(), Options{})

	rec := get(h, "/api/resolve?url="+songURL)
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/resolve = %d %s", rec.Code, rec.Body)
	}

	var got struct {
		Kind      string              `json:"kind"`
		TargetURL string              `json:"targetUrl"`
		Record    store.HistoryRecord `json:"record"`
		Response  odesli.Response     `json:"response"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != "success" || got.TargetURL != "spotify:track:1" || got.Record.SongTitle != "Africa" {
		t.Errorf("/api/resolve = %+v", got)
	}
	if got.Response.PageURL != "https://song.link/s/1" {
		t.Errorf("response pageUrl = %q", got.Response.PageURL)
	}
}

func TestResolveEndpoint_SharedText(t *testing.T) {
	h := newTestHandler(t, newFakeResolver(), Options{})

	rec := get(h, "/api/resolve?text=Listen+to+Take+On+Me:+https://example.com/page")
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, `"kind":"fallback"`) {
		t.Errorf("/api/resolve text = %d %s", rec.Code, body)
	}
	if !strings.Contains(body, `"targetUrl":"spotify:search:Take%20On%20Me"`) {
		t.Errorf("fallback target missing: %s", body)
	}
}

func TestResolveEndpoint_ErrorSavesUnresolved(t *testing.T) {
	res := newFakeResolver()
	h := newTestHandler(t, res, Options{})

	rec := get(h, "/api/resolve?url=https://unknown.example/x")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("/api/resolve error = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "All resolutions failed") {
		t.Errorf("body = %s", rec.Body)
	}
	if len(res.unresolved) != 1 || res.unresolved[0] != "https://unknown.example/x" {
		t.Errorf("unresolved = %v", res.unresolved)
	}

	if rec = get(h, "/api/resolve?url=not-a-link"); rec.Code != http.StatusBadRequest {
		t.Errorf("/api/resolve invalid = %d, want 400", rec.Code)
	}
}

func TestTargetEndpoint(t *testing.T) {
	h := newTestHandler(t, newFakeResolver(), Options{})

	tests := []struct {
		name     string
		query    string
		status   int
		expected string
	}{
		{"Default platform", "?url=" + songURL, http.StatusOK, "spotify:track:1"},
		{"Apple Music", "?url=" + songURL + "&platform=" + platform.AppleMusic, http.StatusOK, "https://music.apple.com/us/album/1?i=2"},
		{"Unknown platform", "?url=" + songURL + "&platform=zune", http.StatusBadRequest, ""},
		{"Unresolvable", "?url=https://unknown.example/x", http.StatusUnprocessableEntity, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(h, "/api/target"+tt.query)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if tt.expected == "" {
				return
			}
			var got map[string]string
			_ = json.Unmarshal(rec.Body.Bytes(), &got)
			if got["targetUrl"] != tt.expected {
				t.Errorf("targetUrl = %q, want %q", got["targetUrl"], tt.expected)
			}
		})
	}
}

func TestManualEndpoint(t *testing.T) {
	res := newFakeResolver()
	res.manual = resolver.Failure("Odesli error: 500 Internal Server Error. Please try again.")
	h := newTestHandler(t, res, Options{})

	rec := post(h, "/api/resolve/manual",
		`{"record":{"originalUrl":"https://example.com/x"},"selectedUrl":"https://open.spotify.com/track/9","fallbackTitle":"T"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("manual error status = %d, want 502", rec.Code)
	}
	if res.manualReq.SelectedURL != "https://open.spotify.com/track/9" || res.manualReq.FallbackTitle != "T" ||
		res.manualReq.Record.OriginalURL != "https://example.com/x" {
		t.Errorf("manual request = %+v", res.manualReq)
	}

	res.manual = resolver.Success(&odesli.Response{PageURL: "https://song.link/s/9", LinksByPlatform: map[string]odesli.PlatformLink{}},
		&store.HistoryRecord{ID: 3, OriginalURL: "https://example.com/x", IsResolved: true})
	rec = post(h, "/api/resolve/manual",
		`{"record":{"id":3},"selectedUrl":"https://open.spotify.com/track/9"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"targetUrl":"https://song.link/s/9"`) {
		t.Errorf("manual success = %d %s", rec.Code, rec.Body)
	}

	if rec = post(h, "/api/resolve/manual", `{"selectedUrl":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("manual invalid status = %d, want 400", rec.Code)
	}
}

func TestUnresolvedEndpoint(t *testing.T) {
	res := newFakeResolver()
	h := newTestHandler(t, res, Options{})

	if rec := post(h, "/api/unresolved", `{"url":"https://example.com/later"}`); rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if len(res.unresolved) != 1 || res.unresolved[0] != "https://example.com/later" {
		t.Errorf("unresolved = %v", res.unresolved)
	}

	if rec := post(h, "/api/unresolved", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %d, want 400", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	res := newFakeResolver()
	h := newTestHandler(t, res, Options{})

	if body := strings.TrimSpace(get(h, "/api/history").Body.String()); body != "[]" {
		t.Errorf("empty history = %s, want []", body)
	}

	res.history = []store.HistoryRecord{{ID: 1, OriginalURL: songURL, IsResolved: true}}
	rec := get(h, "/api/history")
	var records []store.HistoryRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil || len(records) != 1 || records[0].OriginalURL != songURL {
		t.Errorf("history = %s (%v)", rec.Body, err)
	}
}

func TestSearchEndpoint(t *testing.T) {
	res := newFakeResolver()
	res.results = []catalog.Result{{Title: "Africa", Artist: "Toto", URL: "https://music.apple.com/x", Kind: catalog.KindAlbum}}
	h := newTestHandler(t, res, Options{})

	rec := get(h, "/api/search?term=africa&kind=album")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"Africa"`) {
		t.Errorf("/api/search = %d %s", rec.Code, rec.Body)
	}
	if res.searchKind != catalog.KindAlbum {
		t.Errorf("kind = %q, want album", res.searchKind)
	}

	if rec = get(h, "/api/search"); rec.Code != http.StatusBadRequest {
		t.Errorf("/api/search without term = %d, want 400", rec.Code)
	}

	res.searchErr = resolver.ErrCatalogDisabled
	if rec = get(h, "/api/search?term=x"); rec.Code != http.StatusNotImplemented {
		t.Errorf("/api/search disabled = %d, want 501", rec.Code)
	}

	res.searchErr = errors.New("upstream 503")
	if rec = get(h, "/api/search?term=x"); rec.Code != http.StatusBadGateway {
		t.Errorf("/api/search failing = %d, want 502", rec.Code)
	}
}

func TestPlatformsEndpoint(t *testing.T) {
	h := newTestHandler(t, newFakeResolver(), Options{})

	body := get(h, "/api/platforms").Body.String()
	if !strings.Contains(body, `"id":"spotify"`) || !strings.Contains(body, `"id":"podcast_apple"`) {
		t.Errorf("/api/platforms = %s", body)
	}
}

func TestRateLimitAndMetrics(t *testing.T) {
	gate := flood.New(2)
	defer gate.Stop()
	reg := prometheus.NewRegistry()

	h := newTestHandler(t, newFakeResolver(), Options{Gate: gate, Registerer: reg, Gatherer: reg})

	for i := 0; i < 2; i++ {
		if rec := get(h, "/api/history"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}

	rec := get(h, "/api/history")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// Each route has its own window.
	if rec = get(h, "/api/platforms"); rec.Code != http.StatusOK {
		t.Errorf("/api/platforms status = %d", rec.Code)
	}

	rec = get(h, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "crossfade_http_requests_total") {
		t.Errorf("/metrics missing request counter: %d", rec.Code)
	}

	if n, err := testutil.GatherAndCount(reg, "crossfade_http_rate_limited_total"); err != nil || n != 1 {
		t.Errorf("rate limited series = %d (%v), want 1", n, err)
	}

	if m := NewServer(&core.DefaultConfig().Server, newFakeResolver(), Options{}, zap.NewNop()).GetMetrics(); m != nil {
		t.Error("GetMetrics() without registerer should be nil")
	}
}
