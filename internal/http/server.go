// Package http serves the resolver as a JSON API next to health and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crossfade/internal/core"
	"crossfade/internal/flood"
	"crossfade/internal/resolver"
	"crossfade/internal/store"
	"crossfade/pkg/catalog"
	"crossfade/pkg/platform"
	"crossfade/pkg/text"
)

const (
	shutdownTimeout = 10 * time.Second
	maxRequestBody  = 64 << 10
)

// Resolver is the part of resolver.LinkResolver the API exposes.
type Resolver interface {
	ResolveLink(ctx context.Context, url string) resolver.Outcome
	ResolveManual(ctx context.Context, req resolver.ManualRequest) resolver.Outcome
	SaveUnresolvedLink(ctx context.Context, url string) error
	SearchCatalog(ctx context.Context, term string, kind catalog.Kind) ([]catalog.Result, error)
	History(ctx context.Context) ([]store.HistoryRecord, error)
}

// Options wire the server's optional collaborators.
type Options struct {
	App        core.AppConfig
	Gate       *flood.Gate           // nil disables rate limiting.
	Registerer prometheus.Registerer // Server metrics; nil skips them.
	Gatherer   prometheus.Gatherer   // Source for /metrics; nil uses the default registry.
	Ready      func(ctx context.Context) error
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics
}

type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RateLimitedTotal *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossfade_http_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"route", "code"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossfade_http_rate_limited_total",
				Help: "Total number of API requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
	}
	reg.MustRegister(m.RequestsTotal, m.RateLimitedTotal)
	return m
}

func NewServer(config *core.ServerConfig, res Resolver, opts Options, logger *zap.Logger) *Server {
	logger = logger.Named("http")
	h := &handlers{
		resolver: res,
		app:      opts.App,
		gate:     opts.Gate,
		ready:    opts.Ready,
		metrics:  newMetrics(opts.Registerer),
		logger:   logger,
	}

	return &Server{
		config:  config,
		logger:  logger,
		server:  createHTTPServer(config, setupRoutes(h, opts.Gatherer)),
		metrics: h.metrics,
	}
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func setupRoutes(h *handlers, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "crossfade"}, h.logger)
	})
	mux.HandleFunc("GET /readyz", h.readyz)

	if gatherer == nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	} else {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	mux.Handle("GET /api/resolve", h.api("resolve", h.resolve))
	mux.Handle("GET /api/target", h.api("resolve", h.target))
	mux.Handle("POST /api/resolve/manual", h.api("manual", h.resolveManual))
	mux.Handle("POST /api/unresolved", h.api("unresolved", h.saveUnresolved))
	mux.Handle("GET /api/history", h.api("history", h.history))
	mux.Handle("GET /api/search", h.api("search", h.search))
	mux.Handle("GET /api/platforms", h.api("platforms", h.platforms))

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(indexPage))
	})

	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Handler returns the server's routes, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

type handlers struct {
	resolver Resolver
	app      core.AppConfig
	gate     *flood.Gate
	ready    func(ctx context.Context) error
	metrics  *Metrics
	logger   *zap.Logger
}

// apiError is the body of every non-2xx API answer.
type apiError struct {
	Error string `json:"error"`
}

// resolveResponse is an outcome plus what the caller should open next.
type resolveResponse struct {
	resolver.Outcome
	TargetURL string `json:"targetUrl,omitempty"`
}

// statusRecorder remembers the status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// api wraps an API handler with the per-client rate limit and request metrics.
func (h *handlers) api(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if h.metrics != nil {
				h.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			}
		}()

		if h.gate != nil {
			client := clientAddr(r)
			if !h.gate.Allow(route, client) {
				if h.metrics != nil {
					h.metrics.RateLimitedTotal.WithLabelValues(route).Inc()
				}
				retry := h.gate.RetryAfter(route, client)
				rec.Header().Set("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())))
				writeJSON(rec, http.StatusTooManyRequests, apiError{Error: "rate limit exceeded"}, h.logger)
				return
			}
		}

		next(rec, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *handlers) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "service": "crossfade"}, h.logger)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": "crossfade"}, h.logger)
}

// linkParam reads the url parameter, accepting shared text that merely contains a link.
func linkParam(r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		raw = r.URL.Query().Get("text")
	}
	return text.ExtractURL(raw)
}

func (h *handlers) resolveOutcome(ctx context.Context, link string) resolver.Outcome {
	out := h.resolver.ResolveLink(ctx, link)
	if out.Kind == resolver.OutcomeError {
		if err := h.resolver.SaveUnresolvedLink(ctx, link); err != nil {
			h.logger.Warn("Failed to remember unresolved link", zap.String("url", link), zap.Error(err))
		}
	}
	return out
}

func (h *handlers) resolve(w http.ResponseWriter, r *http.Request) {
	link, ok := linkParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing or invalid url"}, h.logger)
		return
	}

	out := h.resolveOutcome(r.Context(), link)
	status := http.StatusOK
	if out.Kind == resolver.OutcomeError {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resolveResponse{
		Outcome:   out,
		TargetURL: resolver.TargetFor(out, h.app.DefaultPlatform, h.app.DefaultPodcastPlatform),
	}, h.logger)
}

// target resolves a link and answers only with the URL to open on the requested platform.
func (h *handlers) target(w http.ResponseWriter, r *http.Request) {
	link, ok := linkParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing or invalid url"}, h.logger)
		return
	}

	musicTarget, podcastTarget := h.app.DefaultPlatform, h.app.DefaultPodcastPlatform
	if p := r.URL.Query().Get("platform"); p != "" {
		if _, known := platform.ByID(p); !known {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "unknown platform " + p}, h.logger)
			return
		}
		if strings.HasPrefix(p, "podcast_") {
			podcastTarget = p
		} else {
			musicTarget = p
		}
	}

	out := h.resolveOutcome(r.Context(), link)
	if out.Kind == resolver.OutcomeError {
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: out.Message}, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"kind":      out.Kind.String(),
		"targetUrl": resolver.TargetFor(out, musicTarget, podcastTarget),
	}, h.logger)
}

func (h *handlers) resolveManual(w http.ResponseWriter, r *http.Request) {
	var req resolver.ManualRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body"}, h.logger)
		return
	}
	if req.SelectedURL == "" || (req.Record.ID == 0 && req.Record.OriginalURL == "") {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "record and selectedUrl are required"}, h.logger)
		return
	}

	out := h.resolver.ResolveManual(r.Context(), req)
	status := http.StatusOK
	if out.Kind == resolver.OutcomeError {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resolveResponse{
		Outcome:   out,
		TargetURL: resolver.TargetFor(out, h.app.DefaultPlatform, h.app.DefaultPodcastPlatform),
	}, h.logger)
}

func (h *handlers) saveUnresolved(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body"}, h.logger)
		return
	}
	link, ok := text.ExtractURL(req.URL)
	if !ok {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing or invalid url"}, h.logger)
		return
	}

	if err := h.resolver.SaveUnresolvedLink(r.Context(), link); err != nil {
		h.logger.Error("Failed to save unresolved link", zap.String("url", link), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to save link"}, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	records, err := h.resolver.History(r.Context())
	if err != nil {
		h.logger.Error("Failed to list history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to list history"}, h.logger)
		return
	}
	if records == nil {
		records = []store.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, records, h.logger)
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing term"}, h.logger)
		return
	}

	results, err := h.resolver.SearchCatalog(r.Context(), term, catalog.ParseKind(r.URL.Query().Get("kind")))
	switch {
	case errors.Is(err, resolver.ErrCatalogDisabled):
		writeJSON(w, http.StatusNotImplemented, apiError{Error: err.Error()}, h.logger)
		return
	case err != nil:
		h.logger.Warn("Catalog search failed", zap.String("term", term), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, apiError{Error: "catalog search failed"}, h.logger)
		return
	}
	if results == nil {
		results = []catalog.Result{}
	}
	writeJSON(w, http.StatusOK, results, h.logger)
}

func (h *handlers) platforms(w http.ResponseWriter, _ *http.Request) {
	type entry struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		Podcast     bool   `json:"podcast"`
	}
	var entries []entry
	for _, p := range platform.All() {
		entries = append(entries, entry{ID: p.ID, DisplayName: p.DisplayName})
	}
	for _, p := range platform.Podcasts() {
		entries = append(entries, entry{ID: p.ID, DisplayName: p.DisplayName, Podcast: true})
	}
	writeJSON(w, http.StatusOK, entries, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write response", zap.Error(err))
	}
}

const indexPage = `<!DOCTYPE html>
<html>
<head>
    <title>crossfade</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
    </style>
</head>
<body>
    <h1>crossfade</h1>
    <p>Music and podcast link resolver</p>

    <h2>Endpoints</h2>
    <div class="endpoint"><a href="/api/resolve?url=">/api/resolve?url=</a> - Resolve a link</div>
    <div class="endpoint"><a href="/api/history">/api/history</a> - Resolution history</div>
    <div class="endpoint"><a href="/api/platforms">/api/platforms</a> - Target platforms</div>
    <div class="endpoint"><a href="/metrics">/metrics</a> - Prometheus metrics</div>
    <div class="endpoint"><a href="/healthz">/healthz</a> - Health check</div>
    <div class="endpoint"><a href="/readyz">/readyz</a> - Readiness check</div>
</body>
</html>`
