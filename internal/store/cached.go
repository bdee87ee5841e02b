package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

const minBloomCapacity = 10000

// CachedStore is a HistoryStore that answers lookups from an LRU of recent records
// and a Bloom filter of every URL it has seen, falling back to the wrapped store.
// It assumes it is the only writer of the wrapped store.
type CachedStore struct {
	next                   HistoryStore
	bloom                  *bloom.BloomFilter
	lru                    *lru.Cache[string, HistoryRecord]
	mutex                  sync.RWMutex
	bloomCapacity          uint
	bloomFalsePositiveRate float64
}

// NewCachedStore wraps next and seeds the Bloom filter from its current contents.
func NewCachedStore(ctx context.Context, next HistoryStore, cacheSize int, bloomFalsePositiveRate float64) (*CachedStore, error) {
	if cacheSize <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", cacheSize)
	}
	lruCache, err := lru.New[string, HistoryRecord](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}

	records, err := next.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to seed record cache: %w", err)
	}

	capacity := max(minBloomCapacity, 2*len(records), cacheSize)
	cs := &CachedStore{
		next:                   next,
		lru:                    lruCache,
		bloomCapacity:          uint(capacity),
		bloomFalsePositiveRate: bloomFalsePositiveRate,
	}
	cs.bloom = bloom.NewWithEstimates(cs.bloomCapacity, bloomFalsePositiveRate)
	for i := range records {
		cs.bloom.AddString(records[i].OriginalURL)
	}
	return cs, nil
}

// GetByURL implements HistoryStore.
func (cs *CachedStore) GetByURL(ctx context.Context, url string) (*HistoryRecord, error) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	if !cs.bloom.TestString(url) {
		return nil, ErrNotFound
	}
	if rec, ok := cs.lru.Get(url); ok {
		return &rec, nil
	}

	rec, err := cs.next.GetByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	cs.lru.Add(url, *rec)
	return rec, nil
}

// InsertOrReplace implements HistoryStore.
func (cs *CachedStore) InsertOrReplace(ctx context.Context, rec *HistoryRecord) (int64, error) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	id, err := cs.next.InsertOrReplace(ctx, rec)
	if err != nil {
		return 0, err
	}
	cs.invalidate(rec.OriginalURL, id)
	cs.bloom.AddString(rec.OriginalURL)
	return id, nil
}

// Update implements HistoryStore.
func (cs *CachedStore) Update(ctx context.Context, rec *HistoryRecord) error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if err := cs.next.Update(ctx, rec); err != nil {
		return err
	}
	cs.invalidate(rec.OriginalURL, rec.ID)
	cs.bloom.AddString(rec.OriginalURL)
	return nil
}

// Delete implements HistoryStore.
func (cs *CachedStore) Delete(ctx context.Context, rec *HistoryRecord) error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if err := cs.next.Delete(ctx, rec); err != nil {
		return err
	}
	// The Bloom filter keeps the URL; a stale positive only costs a lookup.
	cs.invalidate(rec.OriginalURL, rec.ID)
	return nil
}

// ClearAll implements HistoryStore.
func (cs *CachedStore) ClearAll(ctx context.Context) error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if err := cs.next.ClearAll(ctx); err != nil {
		return err
	}
	cs.lru.Purge()
	cs.bloom = bloom.NewWithEstimates(cs.bloomCapacity, cs.bloomFalsePositiveRate)
	return nil
}

// List implements HistoryStore.
func (cs *CachedStore) List(ctx context.Context) ([]HistoryRecord, error) {
	return cs.next.List(ctx)
}

// Watch implements HistoryStore.
func (cs *CachedStore) Watch(ctx context.Context) (<-chan []HistoryRecord, error) {
	return cs.next.Watch(ctx)
}

// Len returns the number of cached records.
func (cs *CachedStore) Len() int {
	return cs.lru.Len()
}

// invalidate drops the cached record for url and any cached record with id,
// since a replace by id may have moved the row to another URL.
func (cs *CachedStore) invalidate(url string, id int64) {
	cs.lru.Remove(url)
	if id == 0 {
		return
	}
	for _, key := range cs.lru.Keys() {
		if rec, ok := cs.lru.Peek(key); ok && rec.ID == id {
			cs.lru.Remove(key)
		}
	}
}
