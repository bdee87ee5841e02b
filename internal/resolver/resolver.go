package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"crossfade/internal/store"
	"crossfade/pkg/catalog"
	"crossfade/pkg/musiclink"
	"crossfade/pkg/odesli"
	"crossfade/pkg/platform"
)

const (
	defaultManualAttempts   = 2
	defaultManualRetryDelay = 1500 * time.Millisecond

	errManualInitial = "Failed to resolve the selected item."
	retrySuggestion  = ". Please try again."
)

// ErrCatalogDisabled is returned by SearchCatalog when no catalog searcher is configured.
var ErrCatalogDisabled = errors.New("catalog search is not configured")

// LinkLookup is the link resolution API.
type LinkLookup interface {
	Links(ctx context.Context, url string) (*odesli.Response, error)
}

// ShortLinkExpander follows share-link redirects.
type ShortLinkExpander interface {
	Expand(ctx context.Context, url string) (string, error)
}

// Deps are the collaborators of a LinkResolver. Expander and Catalog are optional.
type Deps struct {
	Store    store.HistoryStore
	Primary  LinkLookup
	Fallback *FallbackResolver
	Expander ShortLinkExpander
	Catalog  catalog.Searcher
	Metrics  *Metrics
}

// Options tune manual resolution.
type Options struct {
	ManualAttempts   int
	ManualRetryDelay time.Duration
}

// ManualRequest asks to resolve a history record through a user-selected URL.
// The fallback fields are used when the API rejects the selected URL's shape.
type ManualRequest struct {
	Record            store.HistoryRecord `json:"record"`
	SelectedURL       string              `json:"selectedUrl"`
	FallbackTitle     string              `json:"fallbackTitle,omitempty"`
	FallbackArtist    string              `json:"fallbackArtist,omitempty"`
	FallbackThumbnail string              `json:"fallbackThumbnail,omitempty"`
}

// LinkResolver orchestrates resolution: history cache, short-link expansion,
// the link resolution API and the fallback chain. It is safe for concurrent use.
type LinkResolver struct {
	store    store.HistoryStore
	primary  LinkLookup
	fallback *FallbackResolver
	expander ShortLinkExpander
	catalog  catalog.Searcher
	metrics  *Metrics
	logger   *zap.Logger

	manualAttempts   int
	manualRetryDelay time.Duration

	inflight singleflight.Group
}

// New creates a LinkResolver.
func New(deps Deps, opts Options, logger *zap.Logger) *LinkResolver {
	if opts.ManualAttempts <= 0 {
		opts.ManualAttempts = defaultManualAttempts
	}
	if opts.ManualRetryDelay < 0 {
		opts.ManualRetryDelay = defaultManualRetryDelay
	}
	return &LinkResolver{
		store:            deps.Store,
		primary:          deps.Primary,
		fallback:         deps.Fallback,
		expander:         deps.Expander,
		catalog:          deps.Catalog,
		metrics:          deps.Metrics,
		logger:           logger.Named("resolver"),
		manualAttempts:   opts.ManualAttempts,
		manualRetryDelay: opts.ManualRetryDelay,
	}
}

// ResolveLink resolves url. Concurrent calls for the same URL share one resolution.
func (r *LinkResolver) ResolveLink(ctx context.Context, url string) Outcome {
	defer r.metrics.recordDuration("resolve", time.Now())

	v, _, _ := r.inflight.Do(url, func() (any, error) {
		return r.resolve(ctx, url, true), nil
	})
	return v.(Outcome)
}

func (r *LinkResolver) resolve(ctx context.Context, url string, expand bool) Outcome {
	if out, ok := r.fromCache(ctx, url); ok {
		r.metrics.recordOutcome(out, SourceCache)
		return out
	}

	effective := url
	if expand && r.expander != nil && musiclink.IsShortLink(url) {
		canonical, err := r.expander.Expand(ctx, url)
		if err != nil {
			r.metrics.recordShortLink("failed")
			r.logger.Debug("Short link expansion failed", zap.String("url", url), zap.Error(err))
		} else {
			r.metrics.recordShortLink("expanded")
			effective = canonical
			if rec, err := r.store.GetByURL(ctx, canonical); err == nil && rec.IsResolved {
				return r.resolve(ctx, canonical, false)
			}
		}
	}

	if out, ok := r.resolvePrimary(ctx, url, effective); ok {
		r.metrics.recordOutcome(out, SourcePrimary)
		return out
	}

	return r.fallback.TryFallback(ctx, url)
}

// fromCache replays a resolved record. Unresolved records and undecodable link maps are misses.
func (r *LinkResolver) fromCache(ctx context.Context, url string) (Outcome, bool) {
	rec, err := r.store.GetByURL(ctx, url)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("Failed to read history", zap.String("url", url), zap.Error(err))
		}
		return Outcome{}, false
	}
	if !rec.IsResolved {
		return Outcome{}, false
	}

	if !rec.HasLinks() {
		return Fallback(rec, replayQuery(rec)), true
	}

	var links map[string]odesli.PlatformLink
	if err := json.Unmarshal([]byte(*rec.LinksJSON), &links); err != nil {
		r.logger.Warn("Failed to decode cached links", zap.String("url", url), zap.Error(err))
		return Outcome{}, false
	}
	return Success(&odesli.Response{PageURL: rec.PageURL, LinksByPlatform: links}, rec), true
}

func replayQuery(rec *store.HistoryRecord) string {
	if strings.TrimSpace(rec.ArtistName) == "" {
		return rec.SongTitle
	}
	return rec.SongTitle + " " + rec.ArtistName
}

// resolvePrimary asks the API about effective and stores the result under url.
func (r *LinkResolver) resolvePrimary(ctx context.Context, url, effective string) (Outcome, bool) {
	resp, err := r.primary.Links(ctx, effective)
	if err != nil {
		r.metrics.recordStepFailure(SourcePrimary)
		r.logger.Debug("Primary resolution failed", zap.String("url", effective), zap.Error(err))
		return Outcome{}, false
	}

	entity, ok := resp.Entity()
	if !ok || strings.TrimSpace(entity.Title) == "" {
		r.metrics.recordStepFailure(SourcePrimary)
		r.logger.Debug("Primary resolution returned no usable entity", zap.String("url", effective))
		return Outcome{}, false
	}

	isAlbum, isPodcast, isEpisode := classify(entity.Type)
	rec := &store.HistoryRecord{
		ID:               existingID(ctx, r.store, url, r.logger),
		OriginalURL:      url,
		SongTitle:        entity.Title,
		ArtistName:       entity.ArtistName,
		IsAlbum:          isAlbum,
		IsPodcast:        isPodcast,
		IsPodcastEpisode: isEpisode,
		ThumbnailURL:     entity.ThumbnailURL,
		OriginalImageURL: entity.ThumbnailURL,
		PageURL:          resp.PageURL,
		LinksJSON:        encodeLinks(resp.LinksByPlatform),
		IsResolved:       true,
		Timestamp:        time.Now(),
	}

	if id, err := r.store.InsertOrReplace(ctx, rec); err != nil {
		r.logger.Warn("Failed to save resolution", zap.String("url", url), zap.Error(err))
	} else {
		rec.ID = id
	}
	return Success(resp, rec), true
}

func classify(entityType string) (isAlbum, isPodcast, isEpisode bool) {
	switch entityType {
	case odesli.EntityAlbum:
		return true, false, false
	case odesli.EntityPodcast, odesli.EntityPodcastShow:
		return false, true, false
	case odesli.EntityPodcastEpisode:
		return false, false, true
	default:
		return false, false, false
	}
}

func encodeLinks(links map[string]odesli.PlatformLink) *string {
	if links == nil {
		links = map[string]odesli.PlatformLink{}
	}
	data, err := json.Marshal(links)
	if err != nil {
		return store.Links(store.EmptyLinks)
	}
	return store.Links(string(data))
}

// ResolveManual resolves req.SelectedURL on behalf of req.Record and overwrites the record
// with the result. When the API rejects the URL shape and a fallback title was given, the
// record is resolved with a single link to the selected URL instead.
func (r *LinkResolver) ResolveManual(ctx context.Context, req ManualRequest) Outcome {
	defer r.metrics.recordDuration("manual", time.Now())

	target := req.Record
	if target.ID == 0 {
		if existing, err := r.store.GetByURL(ctx, target.OriginalURL); err == nil {
			target = *existing
		}
	}

	lastErr := errManualInitial
	for attempt := 1; attempt <= r.manualAttempts; attempt++ {
		resp, err := r.primary.Links(ctx, req.SelectedURL)
		if err == nil {
			return r.saveManual(ctx, target, resp)
		}

		var statusErr *odesli.StatusError
		switch {
		case errors.As(err, &statusErr):
			if statusErr.Unsupported() && req.FallbackTitle != "" {
				return r.saveSynthetic(ctx, target, req)
			}
			lastErr = fmt.Sprintf("Odesli error: %d %s", statusErr.Code, statusErr.Status)
		default:
			lastErr = "Network error: " + err.Error()
		}
		r.metrics.recordStepFailure(SourceManual)
		r.logger.Debug("Manual resolution attempt failed",
			zap.Int("attempt", attempt),
			zap.String("url", req.SelectedURL),
			zap.Error(err))

		if attempt < r.manualAttempts {
			select {
			case <-ctx.Done():
				out := Failure(lastErr + retrySuggestion)
				r.metrics.recordOutcome(out, SourceManual)
				return out
			case <-time.After(r.manualRetryDelay):
			}
		}
	}

	out := Failure(lastErr + retrySuggestion)
	r.metrics.recordOutcome(out, SourceManual)
	return out
}

func (r *LinkResolver) saveManual(ctx context.Context, rec store.HistoryRecord, resp *odesli.Response) Outcome {
	entity, _ := resp.Entity()
	title := entity.Title
	if title == "" {
		title = unknownTitle
	}

	rec.SongTitle = title
	rec.ArtistName = entity.ArtistName
	rec.IsAlbum, rec.IsPodcast, rec.IsPodcastEpisode = classify(entity.Type)
	rec.ThumbnailURL = entity.ThumbnailURL
	rec.OriginalImageURL = entity.ThumbnailURL
	rec.PageURL = resp.PageURL
	rec.LinksJSON = encodeLinks(resp.LinksByPlatform)
	rec.IsResolved = true

	r.persist(ctx, &rec)
	out := Success(resp, &rec)
	r.metrics.recordOutcome(out, SourceManual)
	return out
}

// saveSynthetic resolves rec with a one-entry link map pointing at the selected URL.
func (r *LinkResolver) saveSynthetic(ctx context.Context, rec store.HistoryRecord, req ManualRequest) Outcome {
	isPodcast := strings.Contains(req.Record.OriginalURL, "podcasts.apple.com") ||
		platform.IsPodcastURL(req.Record.OriginalURL)
	isEpisode := isPodcast && strings.Contains(req.Record.OriginalURL, "?i=")

	links := map[string]odesli.PlatformLink{}
	platformID := platform.PodcastForURL(req.SelectedURL)
	if platformID == "" {
		platformID = platform.ForURL(req.SelectedURL)
	}
	if info, ok := platform.ByID(platformID); ok && info.ResolverKey != "" {
		links[info.ResolverKey] = odesli.PlatformLink{URL: req.SelectedURL}
	}

	rec.SongTitle = req.FallbackTitle
	rec.ArtistName = req.FallbackArtist
	rec.ThumbnailURL = req.FallbackThumbnail
	rec.OriginalImageURL = req.FallbackThumbnail
	rec.PageURL = req.SelectedURL
	rec.LinksJSON = encodeLinks(links)
	rec.IsResolved = true
	rec.IsPodcast = isPodcast
	rec.IsPodcastEpisode = isEpisode

	r.persist(ctx, &rec)
	out := Success(&odesli.Response{PageURL: req.SelectedURL, LinksByPlatform: links}, &rec)
	r.metrics.recordOutcome(out, SourceSynthetic)
	return out
}

// persist updates rec in place, or inserts it when it has no id yet.
func (r *LinkResolver) persist(ctx context.Context, rec *store.HistoryRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.ID != 0 {
		if err := r.store.Update(ctx, rec); err != nil {
			r.logger.Warn("Failed to update history record", zap.Int64("id", rec.ID), zap.Error(err))
		}
		return
	}
	id, err := r.store.InsertOrReplace(ctx, rec)
	if err != nil {
		r.logger.Warn("Failed to save history record", zap.String("url", rec.OriginalURL), zap.Error(err))
		return
	}
	rec.ID = id
}

// SaveUnresolvedLink remembers url for a later retry. Resolved records are left alone.
func (r *LinkResolver) SaveUnresolvedLink(ctx context.Context, url string) error {
	existing, err := r.store.GetByURL(ctx, url)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to look up %s: %w", url, err)
	}

	var id int64
	if existing != nil {
		if existing.IsResolved {
			return nil
		}
		id = existing.ID
	}

	_, err = r.store.InsertOrReplace(ctx, &store.HistoryRecord{
		ID:          id,
		OriginalURL: url,
		IsResolved:  false,
		Timestamp:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save unresolved link: %w", err)
	}
	return nil
}

// SearchCatalog searches the music catalog for manual matching.
func (r *LinkResolver) SearchCatalog(ctx context.Context, term string, kind catalog.Kind) ([]catalog.Result, error) {
	if r.catalog == nil {
		return nil, ErrCatalogDisabled
	}
	defer r.metrics.recordDuration("search", time.Now())
	return r.catalog.Search(ctx, term, kind)
}

// History returns every record, newest first.
func (r *LinkResolver) History(ctx context.Context) ([]store.HistoryRecord, error) {
	return r.store.List(ctx)
}

// TargetURL picks the URL to open for platformID: the platform's native app URI, then its
// web URL, then the response's landing page. Apple Music falls back to the legacy iTunes
// entry. It returns "" when the response carries no link map.
func TargetURL(resp *odesli.Response, platformID string) string {
	if resp == nil || resp.LinksByPlatform == nil {
		return ""
	}

	info, ok := platform.ByID(platformID)
	if !ok || info.ResolverKey == "" {
		return resp.PageURL
	}

	link, ok := lookupLink(resp.LinksByPlatform, info.ResolverKey)
	switch {
	case ok && link.NativeAppURIMobile != "":
		return link.NativeAppURIMobile
	case ok && link.URL != "":
		return link.URL
	default:
		return resp.PageURL
	}
}

// PodcastTargetURL picks the web URL to open for a podcast target. Only Spotify and
// Apple Podcasts have entries in the link map; other targets get the landing page.
func PodcastTargetURL(resp *odesli.Response, podcastTargetID string) string {
	if resp == nil || resp.LinksByPlatform == nil {
		return ""
	}

	var key string
	switch podcastTargetID {
	case platform.PodcastSpotify:
		key = platform.KeySpotify
	case platform.PodcastApple:
		key = platform.KeyAppleMusic
	default:
		return resp.PageURL
	}

	if link, ok := lookupLink(resp.LinksByPlatform, key); ok && link.URL != "" {
		return link.URL
	}
	return resp.PageURL
}

// SearchURL renders the platform's search page for a Fallback outcome's query.
func SearchURL(platformID, query string) string {
	info, _ := platform.ByID(platformID)
	return info.SearchURL(query)
}

func lookupLink(links map[string]odesli.PlatformLink, key string) (odesli.PlatformLink, bool) {
	link, ok := links[key]
	if !ok && key == platform.KeyAppleMusic {
		link, ok = links[platform.KeyITunes]
	}
	return link, ok
}

// TargetFor picks what a caller should open for out: the preferred platform's link for a
// Success (the podcast target for podcast records), or the preferred platform's search page
// for a Fallback. Error outcomes have no target.
func TargetFor(out Outcome, musicTarget, podcastTarget string) string {
	switch out.Kind {
	case OutcomeSuccess:
		if out.Record != nil && (out.Record.IsPodcast || out.Record.IsPodcastEpisode) {
			return PodcastTargetURL(out.Response, podcastTarget)
		}
		return TargetURL(out.Response, musicTarget)
	case OutcomeFallback:
		return SearchURL(musicTarget, out.SearchQuery)
	default:
		return ""
	}
}
