package expansion

import (
	"context"

	"github.com/contentgraph/publishing/internal/domain"
)

// ContentReader is the batched content lookup boundary. It returns,
// per content id, the candidate editions in the queried states along
// with their unpublishing reason; eligibility selection happens in
// ContentCache.
type ContentReader interface {
	BatchLoad(ctx context.Context, contentIDs []string, locale string, withDrafts bool) (map[string][]*domain.ContentEntry, error)
}

// ContentCache holds every content entry one resolution call can
// touch, loaded in a single batch and keyed by content id, so the
// cost of re-expanding repeated subgraphs stays close to the number
// of distinct reachable content ids.
type ContentCache struct {
	entries map[string]*domain.ContentEntry
}

// NewContentCache batch-loads the eligible edition for each content id.
func NewContentCache(ctx context.Context, reader ContentReader, contentIDs []string, locale string, withDrafts bool) (*ContentCache, error) {
	candidates, err := reader.BatchLoad(ctx, contentIDs, locale, withDrafts)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]*domain.ContentEntry, len(candidates))
	for contentID, editions := range candidates {
		if entry := selectEligible(editions, withDrafts); entry != nil {
			entries[contentID] = entry
		}
	}
	return &ContentCache{entries: entries}, nil
}

// Find returns the eligible entry for a content id, or nil when the
// document has no eligible edition and cannot appear as a link target.
func (c *ContentCache) Find(contentID string) *domain.ContentEntry {
	return c.entries[contentID]
}

// selectEligible picks one edition per content id: draft over
// published over unpublished when drafts are requested, published
// over unpublished otherwise. An unpublished edition only qualifies
// when it was withdrawn; any other unpublishing reason makes the
// document ineligible as a link target altogether.
func selectEligible(candidates []*domain.ContentEntry, withDrafts bool) *domain.ContentEntry {
	byState := make(map[domain.State]*domain.ContentEntry, len(candidates))
	for _, c := range candidates {
		if _, ok := byState[c.State]; !ok {
			byState[c.State] = c
		}
	}

	var precedence []domain.State
	if withDrafts {
		precedence = []domain.State{domain.StateDraft, domain.StatePublished, domain.StateUnpublished}
	} else {
		precedence = []domain.State{domain.StatePublished, domain.StateUnpublished}
	}

	for _, state := range precedence {
		entry, ok := byState[state]
		if !ok {
			continue
		}
		if state == domain.StateUnpublished && !entry.Withdrawn() {
			return nil
		}
		return entry
	}
	return nil
}
