package db

import (
	"log"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Connection-status lookups are cached here with a short TTL so the
// operator API doesn't hit Postgres on every poll. Keys are tracked in a
// registry so the whole family can be invalidated at once.
var (
	Cache               *ristretto.Cache
	ConnStatusCacheKeys = struct {
		sync.RWMutex
		m map[string]struct{}
	}{m: make(map[string]struct{})}
)

const connStatusTTL = 60 * time.Second

func InitCache() {
	var err error
	Cache, err = ristretto.NewCache(&ristretto.Config{
		NumCounters: 100000, // number of keys to track frequency of
		MaxCost:     100000,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		log.Fatalf("failed to initialize cache: %v", err)
	}
}

// Connection Status Cache Functions
func SetConnStatusCache(cacheKey string, value interface{}) {
	ConnStatusCacheKeys.Lock()
	ConnStatusCacheKeys.m[cacheKey] = struct{}{}
	ConnStatusCacheKeys.Unlock()
	Cache.SetWithTTL(cacheKey, value, 1, connStatusTTL)
}

func GetConnStatusCache(cacheKey string) (interface{}, bool) {
	return Cache.Get(cacheKey)
}

func DelConnStatusCache(cacheKey string) {
	ConnStatusCacheKeys.Lock()
	delete(ConnStatusCacheKeys.m, cacheKey)
	ConnStatusCacheKeys.Unlock()
	Cache.Del(cacheKey)
}

func ClearAllConnStatusCaches() {
	ConnStatusCacheKeys.Lock()
	for key := range ConnStatusCacheKeys.m {
		Cache.Del(key)
	}
	ConnStatusCacheKeys.m = make(map[string]struct{})
	ConnStatusCacheKeys.Unlock()
}

// ReplayCache is the short-term seen-event-id set used by the webhook
// validator. Ristretto writes are buffered, so a same-instant duplicate
// can slip past; the webhook_events unique index is the authoritative
// backstop.
type ReplayCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewReplayCache(ttl time.Duration) *ReplayCache {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1000000,
		MaxCost:     1000000,
		BufferItems: 64,
	})
	if err != nil {
		log.Fatalf("failed to initialize replay cache: %v", err)
	}
	return &ReplayCache{cache: cache, ttl: ttl}
}

func (r *ReplayCache) Seen(eventID string) bool {
	_, ok := r.cache.Get("evt:" + eventID)
	return ok
}

func (r *ReplayCache) Mark(eventID string) {
	r.cache.SetWithTTL("evt:"+eventID, struct{}{}, 1, r.ttl)
}
