package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"crossfade/internal/store"
	"crossfade/pkg/fuzzy"
	"crossfade/pkg/musiclink"
)

const (
	unknownTitle         = "Unknown Title"
	maxDescriptionArtist = 100
	errCouldNotExtract   = "Could not extract metadata"
	errAllFailedPrefix   = "All resolutions failed: "
	errFileParsePrefix   = "Failed to parse file URL: "
)

// ignoredSiteNames are og:site_name values that name a platform, not an artist.
var ignoredSiteNames = []string{
	"Spotify", "Apple Music", "Tidal", "Amazon Music", "YouTube Music",
	"Deezer", "SoundCloud", "Napster", "Pandora", "Audiomack",
	"Anghami", "Boomplay", "Yandex Music", "Audius", "Bandcamp", "Shazam",
}

// OEmbedLookup fetches oEmbed metadata for a URL.
type OEmbedLookup interface {
	Lookup(ctx context.Context, url string) (*musiclink.TrackInfo, error)
}

// PageScraper fetches OpenGraph metadata for a URL.
type PageScraper interface {
	Scrape(ctx context.Context, url string) (*musiclink.PageMeta, error)
}

// FallbackDeps are the collaborators of a FallbackResolver. Nil clients skip their step,
// except Pages, which is the last resort.
type FallbackDeps struct {
	Store    store.HistoryStore
	Scrapers musiclink.Resolver
	OEmbed   OEmbedLookup
	Pages    PageScraper
	Metrics  *Metrics
}

// FallbackResolver extracts display metadata when the link resolution API cannot
// identify a URL. Steps run in order and the first that yields a title wins:
// platform page scrapers, oEmbed, direct audio files, generic OpenGraph scrape.
type FallbackResolver struct {
	store    store.HistoryStore
	scrapers musiclink.Resolver
	oembed   OEmbedLookup
	pages    PageScraper
	metrics  *Metrics
	logger   *zap.Logger
}

// NewFallbackResolver creates a fallback chain.
func NewFallbackResolver(deps FallbackDeps, logger *zap.Logger) *FallbackResolver {
	pages := deps.Pages
	if pages == nil {
		pages = musiclink.NewPageScraper(nil)
	}
	return &FallbackResolver{
		store:    deps.Store,
		scrapers: deps.Scrapers,
		oembed:   deps.OEmbed,
		pages:    pages,
		metrics:  deps.Metrics,
		logger:   logger.Named("fallback"),
	}
}

// TryFallback runs the chain for url. The result is a Fallback or an Error outcome.
func (f *FallbackResolver) TryFallback(ctx context.Context, url string) Outcome {
	if out, ok := f.tryScrapers(ctx, url); ok {
		return out
	}
	if out, ok := f.tryOEmbed(ctx, url); ok {
		return out
	}
	if musiclink.IsDirectFile(url) {
		return f.tryDirectFile(ctx, url)
	}
	return f.tryPage(ctx, url)
}

func (f *FallbackResolver) tryScrapers(ctx context.Context, url string) (Outcome, bool) {
	if f.scrapers == nil || !f.scrapers.CanResolve(url) {
		return Outcome{}, false
	}

	info, err := f.scrapers.Resolve(ctx, url)
	if err == nil && strings.TrimSpace(info.Title) == "" {
		err = musiclink.ErrNoMetadata
	}
	if err != nil {
		f.metrics.recordStepFailure(SourceScrape)
		f.logger.Debug("Platform scrape failed", zap.String("url", url), zap.Error(err))
		return Outcome{}, false
	}
	return f.createFallbackResult(ctx, url, info.Title, info.Artist, info.ThumbnailURL, SourceScrape), true
}

func (f *FallbackResolver) tryOEmbed(ctx context.Context, url string) (Outcome, bool) {
	if f.oembed == nil {
		return Outcome{}, false
	}

	info, err := f.oembed.Lookup(ctx, url)
	if errors.Is(err, musiclink.ErrNoOEmbedProvider) {
		return Outcome{}, false
	}
	if err != nil {
		f.metrics.recordStepFailure(SourceOEmbed)
		f.logger.Debug("oEmbed lookup failed", zap.String("url", url), zap.Error(err))
		return Outcome{}, false
	}

	title := info.Title
	if strings.TrimSpace(title) == "" {
		title = unknownTitle
	}
	return f.createFallbackResult(ctx, url, title, info.Artist, info.ThumbnailURL, SourceOEmbed), true
}

func (f *FallbackResolver) tryDirectFile(ctx context.Context, url string) Outcome {
	title, err := musiclink.FileTitle(url)
	if err != nil {
		f.metrics.recordStepFailure(SourceFile)
		out := Failure(errFileParsePrefix + err.Error())
		f.metrics.recordOutcome(out, SourceFile)
		return out
	}
	return f.createFallbackResult(ctx, url, title, musiclink.DirectFileArtist, "", SourceFile)
}

func (f *FallbackResolver) tryPage(ctx context.Context, url string) Outcome {
	meta, err := f.pages.Scrape(ctx, url)
	if err != nil {
		f.metrics.recordStepFailure(SourcePage)
		f.logger.Debug("Page scrape failed", zap.String("url", url), zap.Error(err))
		out := Failure(errAllFailedPrefix + err.Error())
		f.metrics.recordOutcome(out, SourcePage)
		return out
	}

	if strings.TrimSpace(meta.Title) == "" {
		f.metrics.recordStepFailure(SourcePage)
		out := Failure(errCouldNotExtract)
		f.metrics.recordOutcome(out, SourcePage)
		return out
	}
	return f.createFallbackResult(ctx, url, meta.Title, pageArtist(meta), strings.TrimSpace(meta.Image), SourcePage)
}

// pageArtist picks the artist line for a generic page: the site name unless it is a
// streaming platform, else a short description.
func pageArtist(meta *musiclink.PageMeta) string {
	siteName := strings.TrimSpace(meta.SiteName)
	if siteName != "" && !isIgnoredSiteName(siteName) {
		return meta.SiteName
	}
	description := strings.TrimSpace(meta.Description)
	if description != "" && len([]rune(meta.Description)) < maxDescriptionArtist {
		return meta.Description
	}
	return ""
}

func isIgnoredSiteName(siteName string) bool {
	for _, ignored := range ignoredSiteNames {
		if strings.EqualFold(siteName, ignored) {
			return true
		}
	}
	return false
}

// createFallbackResult persists a metadata-only record for url, keeping the id of any
// existing record, and returns it with a brand-free search query.
func (f *FallbackResolver) createFallbackResult(
	ctx context.Context, url, title, artist, thumbnail, source string,
) Outcome {
	rec := &store.HistoryRecord{
		ID:               existingID(ctx, f.store, url, f.logger),
		OriginalURL:      url,
		SongTitle:        title,
		ArtistName:       artist,
		ThumbnailURL:     thumbnail,
		OriginalImageURL: thumbnail,
		LinksJSON:        store.Links(store.EmptyLinks),
		IsResolved:       true,
		Timestamp:        time.Now(),
	}

	if id, err := f.store.InsertOrReplace(ctx, rec); err != nil {
		f.logger.Warn("Failed to save fallback result", zap.String("url", url), zap.Error(err))
	} else {
		rec.ID = id
	}

	out := Fallback(rec, fuzzy.CleanSearchQuery(title, artist))
	f.metrics.recordOutcome(out, source)
	return out
}

// existingID returns the id of the record stored for url, or 0.
func existingID(ctx context.Context, s store.HistoryStore, url string, logger *zap.Logger) int64 {
	rec, err := s.GetByURL(ctx, url)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("Failed to look up history record", zap.String("url", url), zap.Error(err))
		}
		return 0
	}
	return rec.ID
}
