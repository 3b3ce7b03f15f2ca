package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
)

const expandedLinksTTL = 600 // seconds

// ExpandedLinksCache memoizes serialized expanded-links responses in
// memcached. Misses and backend failures both fall through to a fresh
// resolution, so the cache is purely an accelerator.
type ExpandedLinksCache struct {
	mc     *memcache.Client
	logger *slog.Logger
}

func NewExpandedLinksCache(mc *memcache.Client, logger *slog.Logger) *ExpandedLinksCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpandedLinksCache{mc: mc, logger: logger}
}

func expandedLinksKey(contentID, locale string, withDrafts bool) string {
	return fmt.Sprintf("expanded:%s:%s:%t", contentID, locale, withDrafts)
}

// Get returns the cached response body, or nil on a miss.
func (c *ExpandedLinksCache) Get(ctx context.Context, contentID, locale string, withDrafts bool) []byte {
	item, err := c.mc.Get(expandedLinksKey(contentID, locale, withDrafts))
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			c.logger.Warn("expanded links cache read failed", "content_id", contentID, "error", err)
		}
		return nil
	}
	return item.Value
}

func (c *ExpandedLinksCache) Set(ctx context.Context, contentID, locale string, withDrafts bool, body []byte) {
	err := c.mc.Set(&memcache.Item{
		Key:        expandedLinksKey(contentID, locale, withDrafts),
		Value:      body,
		Expiration: expandedLinksTTL,
	})
	if err != nil {
		c.logger.Warn("expanded links cache write failed", "content_id", contentID, "error", err)
	}
}

// Invalidate drops both drafts variants for a document. Callers invoke
// it after any commit that may have changed the document's graph.
func (c *ExpandedLinksCache) Invalidate(ctx context.Context, contentID, locale string) {
	for _, withDrafts := range []bool{false, true} {
		err := c.mc.Delete(expandedLinksKey(contentID, locale, withDrafts))
		if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			c.logger.Warn("expanded links cache invalidation failed", "content_id", contentID, "error", err)
		}
	}
}
