package expansion

import (
	"github.com/contentgraph/publishing/internal/domain"
)

// Rules is the static, side-effect-free rule set governing link graph
// expansion: which link types may be followed at each depth, how
// reverse link types map onto forward ones, and which fields each
// document type exposes once expanded.

// recursiveLinkTypes are the template paths an expansion may follow
// below the root. A template's final element repeats without bound
// once the template is exhausted.
var recursiveLinkTypes = [][]domain.LinkType{
	{"parent"},
	{"parent_taxons"},
	{"taxons", "parent_taxons"},
	{"ordered_related_items", "mainstream_browse_pages", "parent"},
}

// reverseNames maps a forward link type to the reverse type it is
// materialized under on the target document.
var reverseNames = map[domain.LinkType]domain.LinkType{
	"parent":         "children",
	"documents":      "document_collections",
	"working_groups": "policies",
}

var forwardNames = func() map[domain.LinkType]domain.LinkType {
	m := make(map[domain.LinkType]domain.LinkType, len(reverseNames))
	for fwd, rev := range reverseNames {
		m[rev] = fwd
	}
	return m
}()

// IsReverseLinkType reports whether t only exists as the inverse of
// some forward link type.
func IsReverseLinkType(t domain.LinkType) bool {
	_, ok := forwardNames[t]
	return ok
}

// UnReverseLinkType returns the forward type a reverse type inverts.
func UnReverseLinkType(t domain.LinkType) (domain.LinkType, bool) {
	fwd, ok := forwardNames[t]
	return fwd, ok
}

// ReverseLinkType returns the reverse name of a forward type.
func ReverseLinkType(t domain.LinkType) (domain.LinkType, bool) {
	rev, ok := reverseNames[t]
	return rev, ok
}

// UnReverseAll maps a set of reverse types to their forward names,
// skipping types with no mapping.
func UnReverseAll(types []domain.LinkType) []domain.LinkType {
	out := make([]domain.LinkType, 0, len(types))
	for _, t := range types {
		if fwd, ok := forwardNames[t]; ok {
			out = append(out, fwd)
		}
	}
	return out
}

// RootReverseLinkTypes is the allow-list of reverse types resolvable
// at the root of an expansion.
func RootReverseLinkTypes() []domain.LinkType {
	return []domain.LinkType{"children", "document_collections", "policies"}
}

// NextLevelLinkTypes returns the link types permitted at the level
// below a node reached via path. An empty result stops the descent.
// Only called with a non-empty path; the root is unrestricted.
//
// Matching compares the last element of path against each template at
// index len(path)-1; a match permits the template's next element, or
// its terminal element again once the template is exhausted. A path
// whose last element merely equals some template's terminal also
// permits that terminal. The second clause lets some diverged paths
// keep repeating a terminal type; that looseness is longstanding
// observable behavior and is preserved deliberately.
func NextLevelLinkTypes(path []domain.LinkType) []domain.LinkType {
	level := len(path) - 1
	last := path[level]

	var allowed []domain.LinkType
	seen := make(map[domain.LinkType]bool)
	add := func(t domain.LinkType) {
		if !seen[t] {
			seen[t] = true
			allowed = append(allowed, t)
		}
	}

	for _, tmpl := range recursiveLinkTypes {
		terminal := tmpl[len(tmpl)-1]
		if level < len(tmpl) && tmpl[level] == last {
			if level+1 < len(tmpl) {
				add(tmpl[level+1])
			} else {
				add(terminal)
			}
		} else if terminal == last {
			add(terminal)
		}
	}
	return allowed
}

// defaultFields is the projection every expanded entry exposes unless
// its document type overrides it.
var defaultFields = []string{
	"analytics_identifier",
	"api_path",
	"base_path",
	"content_id",
	"description",
	"document_type",
	"locale",
	"public_updated_at",
	"schema_name",
	"title",
	"withdrawn",
}

var detailsFields = append(append([]string{}, defaultFields...), "details")

// customFields overrides the projected field set per document type.
// Redirects and gones expose nothing beyond their existence.
var customFields = map[string][]string{
	"redirect":                  {},
	"gone":                      {},
	"organisation":              detailsFields,
	"placeholder_organisation":  detailsFields,
	"taxon":                     detailsFields,
	"need":                      detailsFields,
	"topical_event":             detailsFields,
	"placeholder_topical_event": detailsFields,
}

// ExpansionFields returns the projected field names for a document type.
func ExpansionFields(documentType string) []string {
	if fields, ok := customFields[documentType]; ok {
		return fields
	}
	return defaultFields
}

// ExpandFields projects a content entry onto its document type's
// field set.
func ExpandFields(entry *domain.ContentEntry) map[string]any {
	out := make(map[string]any)
	for _, field := range ExpansionFields(entry.DocumentType) {
		switch field {
		case "analytics_identifier":
			out[field] = entry.AnalyticsIdentifier
		case "api_path":
			out[field] = entry.APIPath()
		case "base_path":
			out[field] = entry.BasePath
		case "content_id":
			out[field] = entry.ContentID
		case "description":
			out[field] = entry.Description
		case "document_type":
			out[field] = entry.DocumentType
		case "locale":
			out[field] = entry.Locale
		case "public_updated_at":
			out[field] = entry.PublicUpdatedAt
		case "schema_name":
			out[field] = entry.SchemaName
		case "title":
			out[field] = entry.Title
		case "withdrawn":
			out[field] = entry.Withdrawn()
		case "details":
			out[field] = entry.Details
		}
	}
	return out
}

// linkableWhileUnpublished is the fixed set of structurally necessary
// link types through which withdrawn content stays visible.
var linkableWhileUnpublished = map[domain.LinkType]bool{
	"children":                      true,
	"parent":                        true,
	"related_statistical_data_sets": true,
}

// ShouldLink reports whether a target entry reached via linkType is
// included in expansion output.
func ShouldLink(linkType domain.LinkType, entry *domain.ContentEntry) bool {
	return linkableWhileUnpublished[linkType] || entry.State != domain.StateUnpublished
}
