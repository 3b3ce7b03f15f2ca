package domain

import (
	"encoding/json"
	"time"
)

// State is the lifecycle state of an edition.
type State string

const (
	StateDraft       State = "draft"
	StatePublished   State = "published"
	StateUnpublished State = "unpublished"
	StateSuperseded  State = "superseded"
)

// ContentStore names which downstream store an edition belongs to.
// Superseded editions belong to neither and carry StoreNone.
type ContentStore string

const (
	StoreDraft ContentStore = "draft"
	StoreLive  ContentStore = "live"
	StoreNone  ContentStore = ""
)

// UpdateType classifies a content change for change-note retention and
// downstream queue selection.
type UpdateType string

const (
	UpdateTypeMajor     UpdateType = "major"
	UpdateTypeMinor     UpdateType = "minor"
	UpdateTypeRepublish UpdateType = "republish"
	UpdateTypeLinks     UpdateType = "links"
)

// ValidUpdateTypes lists every update type accepted by write commands.
var ValidUpdateTypes = []UpdateType{
	UpdateTypeMajor,
	UpdateTypeMinor,
	UpdateTypeRepublish,
	UpdateTypeLinks,
}

func (u UpdateType) Valid() bool {
	for _, v := range ValidUpdateTypes {
		if u == v {
			return true
		}
	}
	return false
}

// UnpublishingType records why an edition was unpublished. Only
// withdrawn editions remain eligible link targets.
type UnpublishingType string

const (
	UnpublishingWithdrawal UnpublishingType = "withdrawal"
	UnpublishingRedirect   UnpublishingType = "redirect"
	UnpublishingGone       UnpublishingType = "gone"
	UnpublishingVanish     UnpublishingType = "vanish"
)

// Document is the identity record for one (content_id, locale) pair
// across all of its editions. StaleLockVersion is the optimistic lock
// counter incremented on every successful write command.
type Document struct {
	ContentID        string
	Locale           string
	StaleLockVersion int64
}

// Edition is one immutable-once-published version of a document's
// content. A document has at most one draft and at most one published
// edition at any instant.
type Edition struct {
	ID                  int64
	ContentID           string
	Locale              string
	UserFacingVersion   int
	State               State
	ContentStore        ContentStore
	BasePath            string // empty for pathless formats
	Title               string
	Description         string
	DocumentType        string
	SchemaName          string
	AnalyticsIdentifier string
	UpdateType          UpdateType
	Details             json.RawMessage
	PublicUpdatedAt     *time.Time
	FirstPublishedAt    *time.Time
	LastEditedAt        *time.Time
	Links               []Link
}

// Pathless reports whether the edition has no base path, which exempts
// it from redirect and substitution handling on publish.
func (e *Edition) Pathless() bool {
	return e.BasePath == ""
}

// LinkTargets returns the target content ids of the edition's links.
func (e *Edition) LinkTargets() []string {
	targets := make([]string, 0, len(e.Links))
	for _, l := range e.Links {
		targets = append(targets, l.TargetContentID)
	}
	return targets
}

// ChangeNote is a user-facing description of an edition's change,
// retained only for major updates.
type ChangeNote struct {
	Note            string
	PublicTimestamp time.Time
}

// AccessLimit restricts pre-publish visibility of a draft edition.
type AccessLimit struct {
	Users     []string
	BypassIDs []string
}

// Unpublishing records the removal of a published edition from the
// live site, with the reason and an optional alternative path.
type Unpublishing struct {
	Type            UnpublishingType
	Explanation     string
	AlternativePath string
}
