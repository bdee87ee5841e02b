// Package store persists resolution history: a SQLite-backed record store keyed by
// original URL and a read-through cache in front of it.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// EmptyLinks is the linksJson sentinel of a record resolved without cross-platform links.
const EmptyLinks = "{}"

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("history record not found")

// HistoryRecord is the persisted resolution state of one URL.
type HistoryRecord struct {
	ID               int64     `json:"id"`
	OriginalURL      string    `json:"originalUrl"`
	SongTitle        string    `json:"songTitle,omitempty"`
	ArtistName       string    `json:"artistName,omitempty"`
	IsAlbum          bool      `json:"isAlbum"`
	IsPodcast        bool      `json:"isPodcast"`
	IsPodcastEpisode bool      `json:"isPodcastEpisode"`
	ThumbnailURL     string    `json:"thumbnailUrl,omitempty"`
	OriginalImageURL string    `json:"originalImageUrl,omitempty"`
	PageURL          string    `json:"pageUrl,omitempty"`
	LinksJSON        *string   `json:"linksJson,omitempty"` // nil: never resolved.
	IsResolved       bool      `json:"isResolved"`
	Timestamp        time.Time `json:"timestamp"`
}

// HasLinks reports whether the record carries a non-empty serialized link map.
func (r *HistoryRecord) HasLinks() bool {
	if r.LinksJSON == nil {
		return false
	}
	links := strings.TrimSpace(*r.LinksJSON)
	return links != "" && links != EmptyLinks
}

// Links returns a pointer to a copy of s, for LinksJSON.
func Links(s string) *string {
	return &s
}

// HistoryStore is the persistence collaborator of the resolver.
// Implementations are safe for concurrent use.
type HistoryStore interface {
	// GetByURL returns the record for url, or ErrNotFound.
	GetByURL(ctx context.Context, url string) (*HistoryRecord, error)
	// InsertOrReplace inserts rec, or replaces the row with rec.ID when it is set, and returns the id.
	InsertOrReplace(ctx context.Context, rec *HistoryRecord) (int64, error)
	// Update overwrites the row with rec.ID; ErrNotFound if there is none.
	Update(ctx context.Context, rec *HistoryRecord) error
	// Delete removes the row with rec.ID. Deleting a missing row is not an error.
	Delete(ctx context.Context, rec *HistoryRecord) error
	// ClearAll removes every record.
	ClearAll(ctx context.Context) error
	// List returns all records, newest first.
	List(ctx context.Context) ([]HistoryRecord, error)
	// Watch emits the current List snapshot and a fresh one after every mutation
	// until ctx is done. Slow readers only see the latest snapshot.
	Watch(ctx context.Context) (<-chan []HistoryRecord, error)
}
