package expansion

import (
	"context"
	"sort"

	"github.com/contentgraph/publishing/internal/domain"
)

// LinkReader supplies graph edges during resolution. Both queries must
// exclude the given content ids from their results so traversal never
// re-enters an ancestor.
type LinkReader interface {
	// OutgoingLinks returns direct edges from contentID's linkset and
	// current edition, grouped by link type, ordered by (link_type,
	// position). A nil allowed set means unrestricted.
	OutgoingLinks(ctx context.Context, contentID, locale string, withDrafts bool, allowed []domain.LinkType, exclude []string) (map[domain.LinkType][]string, error)
	// IncomingLinks returns the source content ids of edges pointing at
	// contentID, grouped by their declared forward link type. Sources
	// are scoped by the same locale and draft rules as OutgoingLinks.
	IncomingLinks(ctx context.Context, contentID, locale string, withDrafts bool, forwardTypes []domain.LinkType, exclude []string) (map[domain.LinkType][]string, error)
}

// node is one traversal position. Nodes live in the graph's arena and
// reference their parent by index, never by pointer.
type node struct {
	contentID string
	linkType  domain.LinkType
	parent    int // -1 for depth-1 nodes
	children  []int
	path      []domain.LinkType // link types from the root, inclusive
}

// Graph is the ephemeral tree of reachable nodes for one resolution
// call. It is recomputed per call and never persisted.
type Graph struct {
	rootContentID string
	rootLinks     map[domain.LinkType][]int
	rootOrder     []domain.LinkType
	nodes         []node
}

type graphBuilder struct {
	links      LinkReader
	locale     string
	withDrafts bool
	stats      *Stats
}

// buildGraph expands the link graph from the root, depth first,
// excluding each node's strict-ancestor chain to guarantee
// termination. Sibling branches are expanded independently.
func buildGraph(ctx context.Context, links LinkReader, rootContentID, locale string, withDrafts bool, stats *Stats) (*Graph, error) {
	b := &graphBuilder{links: links, locale: locale, withDrafts: withDrafts, stats: stats}
	g := &Graph{rootContentID: rootContentID, rootLinks: make(map[domain.LinkType][]int)}

	rootEdges, err := b.rootEdges(ctx, rootContentID)
	if err != nil {
		return nil, err
	}
	for _, lt := range sortedTypes(rootEdges) {
		g.rootOrder = append(g.rootOrder, lt)
		for _, target := range rootEdges[lt] {
			idx, err := b.addNode(ctx, g, target, lt, -1)
			if err != nil {
				return nil, err
			}
			g.rootLinks[lt] = append(g.rootLinks[lt], idx)
		}
	}
	return g, nil
}

func (b *graphBuilder) addNode(ctx context.Context, g *Graph, contentID string, linkType domain.LinkType, parent int) (int, error) {
	var path []domain.LinkType
	if parent >= 0 {
		ancestor := g.nodes[parent]
		path = append(append([]domain.LinkType{}, ancestor.path...), linkType)
	} else {
		path = []domain.LinkType{linkType}
	}

	idx := len(g.nodes)
	g.nodes = append(g.nodes, node{
		contentID: contentID,
		linkType:  linkType,
		parent:    parent,
		path:      path,
	})
	if b.stats != nil {
		b.stats.Nodes++
	}

	permitted := NextLevelLinkTypes(path)
	if len(permitted) == 0 {
		return idx, nil
	}

	edges, err := b.descendantEdges(ctx, g, idx, permitted)
	if err != nil {
		return 0, err
	}
	for _, lt := range sortedTypes(edges) {
		for _, target := range edges[lt] {
			child, err := b.addNode(ctx, g, target, lt, idx)
			if err != nil {
				return 0, err
			}
			g.nodes[idx].children = append(g.nodes[idx].children, child)
		}
	}
	return idx, nil
}

// rootEdges merges the root's direct outgoing links with reverse
// links synthesized from incoming edges of root-eligible types.
// Direct links win on a colliding link type.
func (b *graphBuilder) rootEdges(ctx context.Context, rootContentID string) (map[domain.LinkType][]string, error) {
	reverse, err := b.reverseEdges(ctx, rootContentID, RootReverseLinkTypes(), []string{rootContentID})
	if err != nil {
		return nil, err
	}
	direct, err := b.links.OutgoingLinks(ctx, rootContentID, b.locale, b.withDrafts, nil, []string{rootContentID})
	if err != nil {
		return nil, err
	}
	merged := make(map[domain.LinkType][]string, len(reverse)+len(direct))
	for lt, targets := range reverse {
		merged[lt] = targets
	}
	for lt, targets := range direct {
		merged[lt] = targets
	}
	return merged, nil
}

// descendantEdges queries a node's own edges for the permitted types,
// excluding the node itself and every strict ancestor.
func (b *graphBuilder) descendantEdges(ctx context.Context, g *Graph, idx int, permitted []domain.LinkType) (map[domain.LinkType][]string, error) {
	var reverseTypes, directTypes []domain.LinkType
	for _, lt := range permitted {
		if IsReverseLinkType(lt) {
			reverseTypes = append(reverseTypes, lt)
		} else {
			directTypes = append(directTypes, lt)
		}
	}

	exclude := g.ancestorChain(idx)
	merged := make(map[domain.LinkType][]string)
	if len(reverseTypes) > 0 {
		reverse, err := b.reverseEdges(ctx, g.nodes[idx].contentID, reverseTypes, exclude)
		if err != nil {
			return nil, err
		}
		for lt, targets := range reverse {
			merged[lt] = targets
		}
	}
	if len(directTypes) > 0 {
		direct, err := b.links.OutgoingLinks(ctx, g.nodes[idx].contentID, b.locale, b.withDrafts, directTypes, exclude)
		if err != nil {
			return nil, err
		}
		for lt, targets := range direct {
			merged[lt] = targets
		}
	}
	return merged, nil
}

func (b *graphBuilder) reverseEdges(ctx context.Context, contentID string, reverseTypes []domain.LinkType, exclude []string) (map[domain.LinkType][]string, error) {
	incoming, err := b.links.IncomingLinks(ctx, contentID, b.locale, b.withDrafts, UnReverseAll(reverseTypes), exclude)
	if err != nil {
		return nil, err
	}
	renamed := make(map[domain.LinkType][]string, len(incoming))
	for fwd, sources := range incoming {
		if rev, ok := ReverseLinkType(fwd); ok {
			renamed[rev] = sources
		}
	}
	return renamed, nil
}

// ancestorChain returns the node's own content id plus every strict
// ancestor's, the exclusion set that guarantees termination.
func (g *Graph) ancestorChain(idx int) []string {
	chain := []string{g.rootContentID}
	for i := idx; i >= 0; i = g.nodes[i].parent {
		chain = append(chain, g.nodes[i].contentID)
	}
	return chain
}

// ContentIDs returns every distinct content id reachable in the graph,
// root included, for batched content lookup.
func (g *Graph) ContentIDs() []string {
	seen := map[string]bool{g.rootContentID: true}
	ids := []string{g.rootContentID}
	for i := range g.nodes {
		if !seen[g.nodes[i].contentID] {
			seen[g.nodes[i].contentID] = true
			ids = append(ids, g.nodes[i].contentID)
		}
	}
	return ids
}

func sortedTypes(m map[domain.LinkType][]string) []domain.LinkType {
	types := make([]domain.LinkType, 0, len(m))
	for lt := range m {
		types = append(types, lt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
