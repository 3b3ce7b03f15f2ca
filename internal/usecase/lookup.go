package usecase

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// LookupUsecase maps live base paths to content ids. Results are
// cached in-process with a short TTL; lookups tolerate staleness the
// same way resolution does.
type LookupUsecase struct {
	store Store
	cache *gocache.Cache
}

func NewLookupUsecase(store Store) *LookupUsecase {
	return &LookupUsecase{
		store: store,
		cache: gocache.New(10*time.Minute, 15*time.Minute),
	}
}

// ByBasePath returns the content id visible on the live site for each
// base path that has one. Withdrawn items are still visible; paths
// occupied by redirects, gones or vanished content are not.
func (u *LookupUsecase) ByBasePath(ctx context.Context, basePaths []string) (map[string]string, error) {
	result := make(map[string]string, len(basePaths))
	var remaining []string
	for _, path := range basePaths {
		if cached, found := u.cache.Get(path); found {
			result[path] = cached.(string)
		} else {
			remaining = append(remaining, path)
		}
	}
	if len(remaining) == 0 {
		return result, nil
	}

	found, err := u.store.LookupLiveContentIDs(ctx, remaining)
	if err != nil {
		return nil, err
	}
	for path, contentID := range found {
		result[path] = contentID
		u.cache.Set(path, contentID, gocache.DefaultExpiration)
	}
	return result, nil
}
