package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/contentgraph/publishing/internal/domain"
	"github.com/contentgraph/publishing/internal/downstream"
)

// PatchLinkSetInput replaces a document-level linkset's entries for
// the link types it names; other link types are left untouched.
type PatchLinkSetInput struct {
	ContentID       string
	Links           map[domain.LinkType][]string
	PreviousVersion *int64
}

// PatchLinkSetUsecase maintains the version-independent linkset of a
// content id and re-propagates every locale of the document after a
// change, since linkset edges feed resolution for all of them.
type PatchLinkSetUsecase struct {
	store  Store
	sync   *downstream.Sync
	cache  ExpandedLinksInvalidator
	logger *slog.Logger
}

func NewPatchLinkSetUsecase(store Store, sync *downstream.Sync, cache ExpandedLinksInvalidator, logger *slog.Logger) *PatchLinkSetUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &PatchLinkSetUsecase{store: store, sync: sync, cache: cache, logger: logger}
}

func (u *PatchLinkSetUsecase) Patch(ctx context.Context, input PatchLinkSetInput) error {
	ctx, span := tracer.Start(ctx, "Usecase.PatchLinkSet")
	defer span.End()

	if err := validatePatchLinkSet(input); err != nil {
		return err
	}

	var (
		payloadVersion int64
		locales        []string
	)
	err := u.store.InTx(ctx, func(tx Store) error {
		linkSet, err := tx.FindOrCreateLinkSet(ctx, input.ContentID)
		if err != nil {
			return errors.Wrap(err, "finding linkset")
		}
		if err := CheckVersion(linkSet.StaleLockVersion, input.PreviousVersion); err != nil {
			return err
		}

		for _, linkType := range sortedLinkTypes(input.Links) {
			if err := tx.ReplaceLinkSetLinks(ctx, input.ContentID, linkType, input.Links[linkType]); err != nil {
				return errors.Wrap(err, "replacing linkset links")
			}
		}
		if _, err := tx.IncrementLinkSetLock(ctx, input.ContentID); err != nil {
			return errors.Wrap(err, "incrementing linkset lock")
		}

		locales, err = tx.DocumentLocales(ctx, input.ContentID)
		if err != nil {
			return err
		}
		payloadVersion, err = tx.AppendEvent(ctx, "PatchLinkSet", input.ContentID, "")
		return err
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	return u.afterCommit(ctx, input.ContentID, locales, payloadVersion)
}

// afterCommit re-propagates each locale: the draft store always, the
// live store when a live edition exists.
func (u *PatchLinkSetUsecase) afterCommit(ctx context.Context, contentID string, locales []string, payloadVersion int64) error {
	var firstErr error
	for _, locale := range locales {
		draft := &domain.Edition{ContentID: contentID, Locale: locale}
		if err := u.sync.SendDraft(ctx, draft, domain.UpdateTypeLinks, payloadVersion, true); err != nil && firstErr == nil {
			firstErr = err
		}

		live, err := u.store.PublishedOrUnpublished(ctx, contentID, locale)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if live != nil && live.State == domain.StatePublished {
			if err := u.sync.SendLiveLinksUpdate(ctx, live, payloadVersion); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if u.cache != nil {
			u.cache.Invalidate(ctx, contentID, locale)
		}
	}
	return firstErr
}

func validatePatchLinkSet(input PatchLinkSetInput) error {
	fields := make(map[string][]string)
	if _, err := uuid.Parse(input.ContentID); err != nil {
		fields["content_id"] = []string{"must be a valid UUID"}
	}
	for linkType, targets := range input.Links {
		for _, target := range targets {
			if _, err := uuid.Parse(target); err != nil {
				fields[string(linkType)] = append(fields[string(linkType)], "target "+target+" must be a valid UUID")
			}
		}
	}
	if len(fields) > 0 {
		return domain.ValidationError{Message: "invalid linkset payload", Fields: fields}
	}
	return nil
}

func sortedLinkTypes(links map[domain.LinkType][]string) []domain.LinkType {
	types := make([]domain.LinkType, 0, len(links))
	for lt := range links {
		types = append(types, lt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
