package expansion

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("expansion")

// Stats is the explicit instrumentation object for one resolution
// call. Callers that want timings pass one in; there is no ambient
// global state around resolution.
type Stats struct {
	Nodes          int
	ContentLookups int
	Elapsed        time.Duration
}

// Request describes one resolution call.
type Request struct {
	RootContentID string
	Locale        string
	WithDrafts    bool
	Stats         *Stats
}

// ExpandedLinks is the resolved tree: expanded entries grouped by
// link type, each entry nesting its own links under "links".
type ExpandedLinks map[string][]map[string]any

// Resolver walks the link graph from a root content id and expands
// each reachable node into its projected fields. Resolution is
// read-only, stateless per call and safe to run in parallel.
type Resolver struct {
	links   LinkReader
	content ContentReader
}

func NewResolver(links LinkReader, content ContentReader) *Resolver {
	return &Resolver{links: links, content: content}
}

// Resolve builds the link graph, batch-loads every reachable content
// id through a per-call ContentCache, and returns the expanded tree.
func (r *Resolver) Resolve(ctx context.Context, req Request) (ExpandedLinks, error) {
	ctx, span := tracer.Start(ctx, "Expansion.Resolver.Resolve")
	defer span.End()

	start := time.Now()
	defer func() {
		if req.Stats != nil {
			req.Stats.Elapsed = time.Since(start)
		}
	}()

	graph, err := buildGraph(ctx, r.links, req.RootContentID, req.Locale, req.WithDrafts, req.Stats)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ids := graph.ContentIDs()
	if req.Stats != nil {
		req.Stats.ContentLookups = len(ids)
	}
	cache, err := NewContentCache(ctx, r.content, ids, req.Locale, req.WithDrafts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := make(ExpandedLinks)
	for _, lt := range graph.rootOrder {
		entries := r.populate(graph, cache, graph.rootLinks[lt])
		if len(entries) > 0 {
			out[string(lt)] = entries
		}
	}
	return out, nil
}

func (r *Resolver) populate(g *Graph, cache *ContentCache, nodeIdxs []int) []map[string]any {
	var entries []map[string]any
	for _, idx := range nodeIdxs {
		if entry := r.expandNode(g, cache, idx); entry != nil {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (r *Resolver) expandNode(g *Graph, cache *ContentCache, idx int) map[string]any {
	n := &g.nodes[idx]
	entry := cache.Find(n.contentID)
	if entry == nil || !ShouldLink(n.linkType, entry) {
		return nil
	}

	expanded := ExpandFields(entry)

	links := make(ExpandedLinks)
	for _, rev := range r.reciprocalLinks(g, cache, n) {
		links[rev.linkType] = rev.entries
	}
	byType := make(map[string][]int)
	var order []string
	for _, child := range n.children {
		lt := string(g.nodes[child].linkType)
		if _, ok := byType[lt]; !ok {
			order = append(order, lt)
		}
		byType[lt] = append(byType[lt], child)
	}
	for _, lt := range order {
		if childEntries := r.populate(g, cache, byType[lt]); len(childEntries) > 0 {
			links[lt] = childEntries
		}
	}
	expanded["links"] = links
	return expanded
}

type reciprocal struct {
	linkType string
	entries  []map[string]any
}

// reciprocalLinks synthesizes the forward-direction edge back at the
// root for a node that was reached through a depth-1 reverse link,
// sparing consumers a second root query. Deeper nodes never get one.
func (r *Resolver) reciprocalLinks(g *Graph, cache *ContentCache, n *node) []reciprocal {
	if len(n.path) != 1 || !IsReverseLinkType(n.path[0]) {
		return nil
	}
	root := cache.Find(g.rootContentID)
	if root == nil || !ShouldLink(n.linkType, root) {
		return nil
	}
	fwd, ok := UnReverseLinkType(n.path[0])
	if !ok {
		return nil
	}
	entry := ExpandFields(root)
	entry["links"] = ExpandedLinks{}
	return []reciprocal{{linkType: string(fwd), entries: []map[string]any{entry}}}
}
