package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"church-messaging/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const indexKeyPrefix = "phoneidx:"

// IndexedResolver keeps a phone -> identity index in Redis in front of a
// ScanResolver. Each entry records the directory version it was resolved
// at and is trusted only while that version is current, so any church,
// member or visitor change sends the next lookup back to the scan. Only
// directory matches are indexed; history fallbacks and misses always scan.
//
// Redis and version errors are logged and resolution falls through to the scan.
type IndexedResolver struct {
	Scan     *ScanResolver
	Versions Versioner
	RDB      *redis.Client
	TTL      time.Duration
}

type indexEntry struct {
	Attribution
	Version int64 `json:"version"`
}

func NewIndexedResolver(scan *ScanResolver, versions Versioner, rdb *redis.Client, ttl time.Duration) *IndexedResolver {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &IndexedResolver{Scan: scan, Versions: versions, RDB: rdb, TTL: ttl}
}

func (r *IndexedResolver) Resolve(ctx context.Context, normalizedPhone string) (Attribution, error) {
	if r.Scan == nil {
		return Attribution{}, errors.New("identity: scan resolver not configured")
	}
	if r.RDB == nil || r.Versions == nil {
		return r.Scan.Resolve(ctx, normalizedPhone)
	}
	log := logger.From(ctx)

	// Read before scanning: a change during the scan leaves the entry stale.
	version, err := r.Versions.DirectoryVersion(ctx)
	if err != nil {
		log.Warn("directory version unavailable, scanning", "err", err)
		return r.Scan.Resolve(ctx, normalizedPhone)
	}

	key := indexKeyPrefix + normalizedPhone
	if e, ok := r.lookup(ctx, key); ok && e.Version == version {
		return e.Attribution, nil
	}

	a, cacheable, err := r.Scan.resolve(ctx, normalizedPhone)
	if err != nil {
		return Attribution{}, err
	}
	if cacheable {
		if b, jerr := json.Marshal(indexEntry{Attribution: a, Version: version}); jerr == nil {
			if serr := r.RDB.Set(ctx, key, b, r.TTL).Err(); serr != nil {
				log.Warn("phone index write failed", "err", serr)
			}
		}
	}
	return a, nil
}

func (r *IndexedResolver) lookup(ctx context.Context, key string) (indexEntry, bool) {
	raw, err := r.RDB.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return indexEntry{}, false
	case err != nil:
		logger.From(ctx).Warn("phone index lookup failed", "err", err)
		return indexEntry{}, false
	}
	var e indexEntry
	if err := json.Unmarshal(raw, &e); err != nil || !e.Attributed() || e.Validate() != nil {
		logger.From(ctx).Warn("phone index entry unreadable, rescanning", "key", key)
		return indexEntry{}, false
	}
	return e, true
}
