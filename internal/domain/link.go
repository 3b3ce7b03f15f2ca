package domain

import (
	"encoding/json"
	"time"
)

// LinkType names one kind of directed edge in the content graph.
type LinkType string

// Link is a directed edge from an edition or a linkset to a target
// document. Position orders links within (source, link_type).
type Link struct {
	LinkType        LinkType
	TargetContentID string
	Position        int
}

// LinkSet is the document-scoped, version-independent collection of
// outgoing links for a content id. It carries its own optimistic lock
// counter, separate from the per-locale document counter.
type LinkSet struct {
	ContentID        string
	StaleLockVersion int64
	Links            []Link
}

// ContentEntry is the projection of a content id's currently eligible
// edition, as consumed by link graph resolution. It is read-only and
// never written back.
type ContentEntry struct {
	ContentID           string
	Locale              string
	State               State
	DocumentType        string
	SchemaName          string
	BasePath            string
	Title               string
	Description         string
	AnalyticsIdentifier string
	PublicUpdatedAt     *time.Time
	Details             json.RawMessage
	Unpublishing        *Unpublishing // set only when State is unpublished
}

// Withdrawn reports whether the entry's edition was unpublished as a
// withdrawal, the only unpublishing kind visible through expansion.
func (c *ContentEntry) Withdrawn() bool {
	return c.State == StateUnpublished && c.Unpublishing != nil && c.Unpublishing.Type == UnpublishingWithdrawal
}

// APIPath is the canonical machine-readable path for the entry.
func (c *ContentEntry) APIPath() string {
	if c.BasePath == "" {
		return ""
	}
	return "/api/content" + c.BasePath
}
