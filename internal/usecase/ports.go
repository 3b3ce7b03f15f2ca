package usecase

import (
	"context"
	"time"

	"github.com/contentgraph/publishing/internal/domain"
)

// ContentRef identifies one document.
type ContentRef struct {
	ContentID string
	Locale    string
}

// Store is the transactional persistence boundary for documents,
// editions, links, access limits, change notes and audit events.
// InTx runs fn against a transaction-scoped Store; every write
// command performs all of its mutations inside one InTx call.
type Store interface {
	InTx(ctx context.Context, fn func(tx Store) error) error

	FindDocument(ctx context.Context, contentID, locale string) (*domain.Document, error)
	FindOrCreateDocument(ctx context.Context, contentID, locale string) (*domain.Document, error)
	IncrementLock(ctx context.Context, contentID, locale string) (int64, error)

	// Draft and PublishedOrUnpublished return nil without error when no
	// such edition exists.
	Draft(ctx context.Context, contentID, locale string) (*domain.Edition, error)
	PublishedOrUnpublished(ctx context.Context, contentID, locale string) (*domain.Edition, error)
	DraftRedirectAt(ctx context.Context, basePath, locale string) (*domain.Edition, error)

	CreateEdition(ctx context.Context, edition *domain.Edition) error
	UpdateEdition(ctx context.Context, edition *domain.Edition) error
	SupersedeEdition(ctx context.Context, editionID int64) error
	// ClearBasePath removes any other edition occupying the path in the
	// given store, preventing two live editions colliding on one path.
	ClearBasePath(ctx context.Context, basePath, locale string, store domain.ContentStore, excludeEditionID int64) error

	ReplaceEditionLinks(ctx context.Context, editionID int64, links []domain.Link) error

	DeleteChangeNotes(ctx context.Context, editionID int64) error
	CreateChangeNote(ctx context.Context, editionID int64, note domain.ChangeNote) error

	UpsertAccessLimit(ctx context.Context, editionID int64, limit domain.AccessLimit) error
	// DeleteAccessLimit reports whether a limit existed.
	DeleteAccessLimit(ctx context.Context, editionID int64) (bool, error)

	FindOrCreateLinkSet(ctx context.Context, contentID string) (*domain.LinkSet, error)
	ReplaceLinkSetLinks(ctx context.Context, contentID string, linkType domain.LinkType, targets []string) error
	IncrementLinkSetLock(ctx context.Context, contentID string) (int64, error)

	// AppendEvent appends to the audit log and returns the event's
	// monotonic id, which doubles as the downstream payload version.
	AppendEvent(ctx context.Context, action, contentID, locale string) (int64, error)

	DocumentLocales(ctx context.Context, contentID string) ([]string, error)
	LiveContentRefs(ctx context.Context) ([]ContentRef, error)
	LookupLiveContentIDs(ctx context.Context, basePaths []string) (map[string]string, error)
}

// Lock is the advisory cross-process mutual exclusion boundary.
// Acquire is non-blocking with zero retry; false means another
// process holds the lock and the caller skips its critical section.
type Lock interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

// PublishSignal is broadcast after a publish commits, for realtime
// subscribers.
type PublishSignal struct {
	ContentID      string `json:"content_id"`
	Locale         string `json:"locale"`
	BasePath       string `json:"base_path,omitempty"`
	PayloadVersion int64  `json:"payload_version"`
}

// SignalPublisher fans publish signals out to subscribers.
type SignalPublisher interface {
	PublishedEdition(ctx context.Context, signal PublishSignal) error
}

// ExpandedLinksInvalidator drops cached expanded-links responses for
// a document after its graph may have changed.
type ExpandedLinksInvalidator interface {
	Invalidate(ctx context.Context, contentID, locale string)
}
