// Package downstream builds the idempotent propagation payloads that
// keep the draft and live read stores synchronized after writes, and
// selects which queue channel each job travels on.
package downstream

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/contentgraph/publishing/internal/domain"
)

// The four durable channels. Bulk republishes route low so they never
// starve interactively triggered publishes.
const (
	ChannelLiveHigh  = "downstream_live_high"
	ChannelLiveLow   = "downstream_live_low"
	ChannelDraftHigh = "downstream_draft_high"
	ChannelDraftLow  = "downstream_draft_low"
)

// Payload is one propagation job. PayloadVersion increases
// monotonically per document, so a consumer receiving duplicate or
// out-of-order deliveries discards anything older than what it has
// already applied.
type Payload struct {
	ContentID              string   `json:"content_id"`
	Locale                 string   `json:"locale"`
	PayloadVersion         int64    `json:"payload_version"`
	MessageQueueUpdateType string   `json:"message_queue_update_type,omitempty"`
	UpdateDependencies     *bool    `json:"update_dependencies,omitempty"`
	OrphanedContentIDs     []string `json:"orphaned_content_ids,omitempty"`
}

// Queue is the outbound message boundary. Enqueueing is synchronous
// and fast; delivery happens in a separate worker pool out of scope
// here.
type Queue interface {
	Enqueue(ctx context.Context, channel string, payload Payload) error
}

// LiveChannel selects the live-store channel for an update type.
func LiveChannel(updateType domain.UpdateType) string {
	if updateType == domain.UpdateTypeRepublish {
		return ChannelLiveLow
	}
	return ChannelLiveHigh
}

// DraftChannel selects the draft-store channel for an update type.
func DraftChannel(updateType domain.UpdateType) string {
	if updateType == domain.UpdateTypeRepublish {
		return ChannelDraftLow
	}
	return ChannelDraftHigh
}

// Sync enqueues propagation jobs. It must only ever be invoked after
// the triggering transaction has committed.
type Sync struct {
	queue  Queue
	logger *slog.Logger
}

func NewSync(queue Queue, logger *slog.Logger) *Sync {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sync{queue: queue, logger: logger}
}

// SendLive enqueues the live-store job for a published edition.
// update_dependencies is only set when the structural diff against
// the previous edition is non-empty, sparing the consumer a
// dependency re-resolution for cosmetic changes.
func (s *Sync) SendLive(ctx context.Context, edition, previous *domain.Edition, updateType domain.UpdateType, payloadVersion int64) error {
	deps := UpdateDependencies(edition, previous)
	payload := Payload{
		ContentID:              edition.ContentID,
		Locale:                 edition.Locale,
		PayloadVersion:         payloadVersion,
		MessageQueueUpdateType: string(updateType),
		UpdateDependencies:     &deps,
		OrphanedContentIDs:     OrphanedContentIDs(edition, previous),
	}
	return s.enqueue(ctx, LiveChannel(updateType), payload)
}

// SendLiveLinksUpdate enqueues a live-store job after a linkset
// change. Linkset edges always affect dependency resolution, so
// update_dependencies is unconditionally set.
func (s *Sync) SendLiveLinksUpdate(ctx context.Context, edition *domain.Edition, payloadVersion int64) error {
	deps := true
	payload := Payload{
		ContentID:              edition.ContentID,
		Locale:                 edition.Locale,
		PayloadVersion:         payloadVersion,
		MessageQueueUpdateType: string(domain.UpdateTypeLinks),
		UpdateDependencies:     &deps,
	}
	return s.enqueue(ctx, LiveChannel(domain.UpdateTypeLinks), payload)
}

// SendDraft enqueues the draft-store job for an edition. Access
// limited content keeps its protected preview synchronized this way
// even when it is also published.
func (s *Sync) SendDraft(ctx context.Context, edition *domain.Edition, updateType domain.UpdateType, payloadVersion int64, updateDependencies bool) error {
	payload := Payload{
		ContentID:          edition.ContentID,
		Locale:             edition.Locale,
		PayloadVersion:     payloadVersion,
		UpdateDependencies: &updateDependencies,
	}
	return s.enqueue(ctx, DraftChannel(updateType), payload)
}

// enqueue reports failures as an independently reconcilable gap: the
// triggering transaction has already committed, so the error is
// surfaced, never masked as success, and never rolled back.
func (s *Sync) enqueue(ctx context.Context, channel string, payload Payload) error {
	if err := s.queue.Enqueue(ctx, channel, payload); err != nil {
		s.logger.Error("downstream enqueue failed; read store gap requires reconciliation",
			"channel", channel,
			"content_id", payload.ContentID,
			"locale", payload.Locale,
			"payload_version", payload.PayloadVersion,
			"error", err,
		)
		return err
	}
	return nil
}

// UpdateDependencies reports whether the structural field diff
// between the new and previous edition is non-empty. A first publish
// has no previous edition and always counts as structural.
func UpdateDependencies(edition, previous *domain.Edition) bool {
	if previous == nil {
		return true
	}
	if edition.Title != previous.Title ||
		edition.BasePath != previous.BasePath ||
		edition.Description != previous.Description ||
		edition.DocumentType != previous.DocumentType ||
		edition.SchemaName != previous.SchemaName {
		return true
	}
	if !bytes.Equal(edition.Details, previous.Details) {
		return true
	}
	return !sameLinks(edition.Links, previous.Links)
}

// OrphanedContentIDs lists link targets present on the previous
// edition but absent from the new one, so the consumer can re-resolve
// content that may have lost this item as a dependent.
func OrphanedContentIDs(edition, previous *domain.Edition) []string {
	if previous == nil {
		return nil
	}
	current := make(map[string]bool, len(edition.Links))
	for _, target := range edition.LinkTargets() {
		current[target] = true
	}
	var orphaned []string
	seen := make(map[string]bool)
	for _, target := range previous.LinkTargets() {
		if !current[target] && !seen[target] {
			seen[target] = true
			orphaned = append(orphaned, target)
		}
	}
	return orphaned
}

func sameLinks(a, b []domain.Link) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
