package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	original_url       TEXT    NOT NULL,
	song_title         TEXT,
	artist_name        TEXT,
	is_album           INTEGER NOT NULL DEFAULT 0,
	is_podcast         INTEGER NOT NULL DEFAULT 0,
	is_podcast_episode INTEGER NOT NULL DEFAULT 0,
	thumbnail_url      TEXT,
	original_image_url TEXT,
	page_url           TEXT,
	links_json         TEXT,
	is_resolved        INTEGER NOT NULL DEFAULT 1,
	timestamp          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_original_url ON history (original_url);
`

const selectColumns = `SELECT id, original_url, song_title, artist_name, is_album, is_podcast,
	is_podcast_episode, thumbnail_url, original_image_url, page_url, links_json, is_resolved, timestamp
	FROM history`

// SQLiteStore is a HistoryStore on a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger

	watchersMu sync.Mutex
	watchers   map[chan []HistoryRecord]struct{}
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	if path == MemoryPath {
		dsn = MemoryPath
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}

	return &SQLiteStore{
		db:       db,
		logger:   logger.Named("store"),
		watchers: make(map[chan []HistoryRecord]struct{}),
	}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetByURL implements HistoryStore.
func (s *SQLiteStore) GetByURL(ctx context.Context, url string) (*HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE original_url = ? ORDER BY id LIMIT 1`, url)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history record: %w", err)
	}
	return rec, nil
}

// InsertOrReplace implements HistoryStore.
func (s *SQLiteStore) InsertOrReplace(ctx context.Context, rec *HistoryRecord) (int64, error) {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	args := []any{
		rec.OriginalURL, nullString(rec.SongTitle), nullString(rec.ArtistName),
		rec.IsAlbum, rec.IsPodcast, rec.IsPodcastEpisode,
		nullString(rec.ThumbnailURL), nullString(rec.OriginalImageURL), nullString(rec.PageURL),
		rec.LinksJSON, rec.IsResolved, ts.UnixMilli(),
	}

	var (
		result sql.Result
		err    error
	)
	if rec.ID == 0 {
		result, err = s.db.ExecContext(ctx, `INSERT INTO history (original_url, song_title, artist_name,
			is_album, is_podcast, is_podcast_episode, thumbnail_url, original_image_url, page_url,
			links_json, is_resolved, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	} else {
		result, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO history (id, original_url, song_title,
			artist_name, is_album, is_podcast, is_podcast_episode, thumbnail_url, original_image_url,
			page_url, links_json, is_resolved, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			append([]any{rec.ID}, args...)...)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write history record: %w", err)
	}

	id := rec.ID
	if id == 0 {
		if id, err = result.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to read inserted id: %w", err)
		}
	}

	s.publish(ctx)
	return id, nil
}

// Update implements HistoryStore.
func (s *SQLiteStore) Update(ctx context.Context, rec *HistoryRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `UPDATE history SET original_url = ?, song_title = ?,
		artist_name = ?, is_album = ?, is_podcast = ?, is_podcast_episode = ?, thumbnail_url = ?,
		original_image_url = ?, page_url = ?, links_json = ?, is_resolved = ?, timestamp = ?
		WHERE id = ?`,
		rec.OriginalURL, nullString(rec.SongTitle), nullString(rec.ArtistName),
		rec.IsAlbum, rec.IsPodcast, rec.IsPodcastEpisode,
		nullString(rec.ThumbnailURL), nullString(rec.OriginalImageURL), nullString(rec.PageURL),
		rec.LinksJSON, rec.IsResolved, ts.UnixMilli(), rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update history record: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	s.publish(ctx)
	return nil
}

// Delete implements HistoryStore.
func (s *SQLiteStore) Delete(ctx context.Context, rec *HistoryRecord) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, rec.ID); err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	s.publish(ctx)
	return nil
}

// ClearAll implements HistoryStore.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	s.publish(ctx)
	return nil
}

// List implements HistoryStore.
func (s *SQLiteStore) List(ctx context.Context) ([]HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []HistoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read history record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Watch implements HistoryStore.
func (s *SQLiteStore) Watch(ctx context.Context) (<-chan []HistoryRecord, error) {
	snapshot, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan []HistoryRecord, 1)
	ch <- snapshot

	s.watchersMu.Lock()
	s.watchers[ch] = struct{}{}
	s.watchersMu.Unlock()

	go func() {
		<-ctx.Done()
		s.watchersMu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.watchersMu.Unlock()
	}()

	return ch, nil
}

// publish sends a fresh snapshot to every watcher, replacing any unread one.
func (s *SQLiteStore) publish(ctx context.Context) {
	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()

	if len(s.watchers) == 0 {
		return
	}

	snapshot, err := s.List(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Warn("Failed to snapshot history for watchers", zap.Error(err))
		return
	}

	for ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*HistoryRecord, error) {
	var (
		rec                                   HistoryRecord
		title, artist, thumb, origImage, page sql.NullString
		links                                 sql.NullString
		timestampMillis                       int64
	)
	err := row.Scan(&rec.ID, &rec.OriginalURL, &title, &artist, &rec.IsAlbum, &rec.IsPodcast,
		&rec.IsPodcastEpisode, &thumb, &origImage, &page, &links, &rec.IsResolved, &timestampMillis)
	if err != nil {
		return nil, err
	}

	rec.SongTitle = title.String
	rec.ArtistName = artist.String
	rec.ThumbnailURL = thumb.String
	rec.OriginalImageURL = origImage.String
	rec.PageURL = page.String
	if links.Valid {
		rec.LinksJSON = Links(links.String)
	}
	rec.Timestamp = time.UnixMilli(timestampMillis)
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
