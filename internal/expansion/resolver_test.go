package expansion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentgraph/publishing/internal/domain"
)

// fakeLinkReader serves edges from in-memory maps, honoring the
// allowed and exclude filters the way the database reader does, and
// records the scope of every reverse query.
type fakeLinkReader struct {
	outgoing        map[string]map[domain.LinkType][]string
	incoming        map[string]map[domain.LinkType][]string
	incomingQueries []incomingQuery
}

type incomingQuery struct {
	contentID  string
	locale     string
	withDrafts bool
}

func (f *fakeLinkReader) OutgoingLinks(ctx context.Context, contentID, locale string, withDrafts bool, allowed []domain.LinkType, exclude []string) (map[domain.LinkType][]string, error) {
	return filterEdges(f.outgoing[contentID], allowed, exclude), nil
}

func (f *fakeLinkReader) IncomingLinks(ctx context.Context, contentID, locale string, withDrafts bool, forwardTypes []domain.LinkType, exclude []string) (map[domain.LinkType][]string, error) {
	f.incomingQueries = append(f.incomingQueries, incomingQuery{contentID: contentID, locale: locale, withDrafts: withDrafts})
	return filterEdges(f.incoming[contentID], forwardTypes, exclude), nil
}

func filterEdges(edges map[domain.LinkType][]string, allowed []domain.LinkType, exclude []string) map[domain.LinkType][]string {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	permitted := map[domain.LinkType]bool{}
	for _, lt := range allowed {
		permitted[lt] = true
	}

	out := make(map[domain.LinkType][]string)
	for lt, targets := range edges {
		if allowed != nil && !permitted[lt] {
			continue
		}
		for _, target := range targets {
			if !excluded[target] {
				out[lt] = append(out[lt], target)
			}
		}
	}
	return out
}

type fakeContentReader struct {
	entries map[string][]*domain.ContentEntry
	calls   int
}

func (f *fakeContentReader) BatchLoad(ctx context.Context, contentIDs []string, locale string, withDrafts bool) (map[string][]*domain.ContentEntry, error) {
	f.calls++
	out := make(map[string][]*domain.ContentEntry)
	for _, id := range contentIDs {
		if candidates, ok := f.entries[id]; ok {
			out[id] = candidates
		}
	}
	return out, nil
}

func publishedEntry(contentID, title string) *domain.ContentEntry {
	return &domain.ContentEntry{
		ContentID:    contentID,
		Locale:       "en",
		State:        domain.StatePublished,
		DocumentType: "guide",
		SchemaName:   "guide",
		Title:        title,
		BasePath:     "/" + contentID,
	}
}

func TestResolveParentChain(t *testing.T) {
	links := &fakeLinkReader{
		outgoing: map[string]map[domain.LinkType][]string{
			"a": {"parent": {"b"}},
			"b": {"parent": {"c"}},
		},
		incoming: map[string]map[domain.LinkType][]string{},
	}
	content := &fakeContentReader{entries: map[string][]*domain.ContentEntry{
		"a": {publishedEntry("a", "A")},
		"b": {publishedEntry("b", "B")},
		"c": {publishedEntry("c", "C")},
	}}

	resolver := NewResolver(links, content)
	stats := &Stats{}
	expanded, err := resolver.Resolve(context.Background(), Request{
		RootContentID: "a", Locale: "en", Stats: stats,
	})
	require.NoError(t, err)

	parents := expanded["parent"]
	require.Len(t, parents, 1)
	assert.Equal(t, "b", parents[0]["content_id"])

	nested := parents[0]["links"].(ExpandedLinks)
	require.Len(t, nested["parent"], 1)
	assert.Equal(t, "c", nested["parent"][0]["content_id"])

	assert.Equal(t, 1, content.calls, "content is loaded in one batch")
	assert.Equal(t, 3, stats.ContentLookups)
}

func TestResolveCycleTerminates(t *testing.T) {
	links := &fakeLinkReader{
		outgoing: map[string]map[domain.LinkType][]string{
			"a": {"parent": {"b"}},
			"b": {"parent": {"a"}},
		},
		incoming: map[string]map[domain.LinkType][]string{},
	}
	content := &fakeContentReader{entries: map[string][]*domain.ContentEntry{
		"a": {publishedEntry("a", "A")},
		"b": {publishedEntry("b", "B")},
	}}

	expanded, err := NewResolver(links, content).Resolve(context.Background(), Request{
		RootContentID: "a", Locale: "en",
	})
	require.NoError(t, err)

	parents := expanded["parent"]
	require.Len(t, parents, 1)
	assert.Equal(t, "b", parents[0]["content_id"])
	assert.Empty(t, parents[0]["links"].(ExpandedLinks), "traversal must not re-enter the root")
}

func TestResolveReverseChildrenWithReciprocal(t *testing.T) {
	// c declares a parent edge to a; a's expansion materializes c under
	// children, and c carries the forward edge back to a.
	links := &fakeLinkReader{
		outgoing: map[string]map[domain.LinkType][]string{
			"c": {"parent": {"a"}},
		},
		incoming: map[string]map[domain.LinkType][]string{
			"a": {"parent": {"c"}},
		},
	}
	content := &fakeContentReader{entries: map[string][]*domain.ContentEntry{
		"a": {publishedEntry("a", "A")},
		"c": {publishedEntry("c", "C")},
	}}

	expanded, err := NewResolver(links, content).Resolve(context.Background(), Request{
		RootContentID: "a", Locale: "en",
	})
	require.NoError(t, err)

	children := expanded["children"]
	require.Len(t, children, 1)
	assert.Equal(t, "c", children[0]["content_id"])

	nested := children[0]["links"].(ExpandedLinks)
	require.Len(t, nested["parent"], 1)
	reciprocal := nested["parent"][0]
	assert.Equal(t, "a", reciprocal["content_id"])
	assert.Empty(t, reciprocal["links"].(ExpandedLinks), "the reciprocal entry does not expand further")
}

func TestResolveScopesReverseQueries(t *testing.T) {
	links := &fakeLinkReader{
		outgoing: map[string]map[domain.LinkType][]string{},
		incoming: map[string]map[domain.LinkType][]string{
			"a": {"parent": {"c"}},
		},
	}
	content := &fakeContentReader{entries: map[string][]*domain.ContentEntry{
		"a": {publishedEntry("a", "A")},
		"c": {publishedEntry("c", "C")},
	}}

	_, err := NewResolver(links, content).Resolve(context.Background(), Request{
		RootContentID: "a", Locale: "cy", WithDrafts: true,
	})
	require.NoError(t, err)

	require.NotEmpty(t, links.incomingQueries)
	for _, q := range links.incomingQueries {
		assert.Equal(t, "cy", q.locale, "reverse queries must carry the request locale")
		assert.True(t, q.withDrafts, "reverse queries must carry the draft scope")
	}
}

func TestResolveWithdrawnVisibility(t *testing.T) {
	withdrawn := func(id string) *domain.ContentEntry {
		e := publishedEntry(id, id)
		e.State = domain.StateUnpublished
		e.Unpublishing = &domain.Unpublishing{Type: domain.UnpublishingWithdrawal}
		return e
	}

	links := &fakeLinkReader{
		outgoing: map[string]map[domain.LinkType][]string{
			"a": {
				"related_statistical_data_sets": {"b"},
				"ordered_related_items":         {"c"},
			},
		},
		incoming: map[string]map[domain.LinkType][]string{},
	}
	content := &fakeContentReader{entries: map[string][]*domain.ContentEntry{
		"a": {publishedEntry("a", "A")},
		"b": {withdrawn("b")},
		"c": {withdrawn("c")},
	}}

	expanded, err := NewResolver(links, content).Resolve(context.Background(), Request{
		RootContentID: "a", Locale: "en",
	})
	require.NoError(t, err)

	require.Len(t, expanded["related_statistical_data_sets"], 1)
	assert.Equal(t, true, expanded["related_statistical_data_sets"][0]["withdrawn"])
	assert.Empty(t, expanded["ordered_related_items"], "withdrawn content hides behind non-permitted link types")
}

func TestResolveDraftPrecedence(t *testing.T) {
	draft := publishedEntry("b", "Draft title")
	draft.State = domain.StateDraft
	published := publishedEntry("b", "Published title")

	links := &fakeLinkReader{
		outgoing: map[string]map[domain.LinkType][]string{
			"a": {"parent": {"b"}},
		},
		incoming: map[string]map[domain.LinkType][]string{},
	}
	content := &fakeContentReader{entries: map[string][]*domain.ContentEntry{
		"a": {publishedEntry("a", "A")},
		"b": {draft, published},
	}}
	resolver := NewResolver(links, content)

	withDrafts, err := resolver.Resolve(context.Background(), Request{
		RootContentID: "a", Locale: "en", WithDrafts: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Draft title", withDrafts["parent"][0]["title"])

	liveOnly, err := resolver.Resolve(context.Background(), Request{
		RootContentID: "a", Locale: "en",
	})
	require.NoError(t, err)
	assert.Equal(t, "Published title", liveOnly["parent"][0]["title"])
}

func TestResolveNonWithdrawalUnpublishedExcluded(t *testing.T) {
	gone := publishedEntry("b", "B")
	gone.State = domain.StateUnpublished
	gone.Unpublishing = &domain.Unpublishing{Type: domain.UnpublishingGone}

	links := &fakeLinkReader{
		outgoing: map[string]map[domain.LinkType][]string{
			"a": {"parent": {"b"}},
		},
		incoming: map[string]map[domain.LinkType][]string{},
	}
	content := &fakeContentReader{entries: map[string][]*domain.ContentEntry{
		"a": {publishedEntry("a", "A")},
		"b": {gone},
	}}

	expanded, err := NewResolver(links, content).Resolve(context.Background(), Request{
		RootContentID: "a", Locale: "en",
	})
	require.NoError(t, err)
	assert.Empty(t, expanded["parent"], "a gone document cannot appear as a link target even through parent")
}
