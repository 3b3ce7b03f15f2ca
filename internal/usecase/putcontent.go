package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/contentgraph/publishing/internal/domain"
	"github.com/contentgraph/publishing/internal/downstream"
)

// PutContentInput is the payload for creating or updating a draft.
type PutContentInput struct {
	ContentID           string
	Locale              string
	BasePath            string
	Title               string
	Description         string
	DocumentType        string
	SchemaName          string
	AnalyticsIdentifier string
	UpdateType          domain.UpdateType
	Details             json.RawMessage
	Links               []domain.Link
	AccessLimit         *domain.AccessLimit
	ChangeNote          *domain.ChangeNote
	PreviousVersion     *int64
}

// PutContentUsecase creates a document's next draft edition, or
// updates the draft in place when one already exists.
type PutContentUsecase struct {
	store  Store
	sync   *downstream.Sync
	cache  ExpandedLinksInvalidator
	logger *slog.Logger
	now    func() time.Time
}

func NewPutContentUsecase(store Store, sync *downstream.Sync, cache ExpandedLinksInvalidator, logger *slog.Logger) *PutContentUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &PutContentUsecase{store: store, sync: sync, cache: cache, logger: logger, now: time.Now}
}

// PutContent writes the draft inside one transaction, then enqueues
// draft-store propagation after commit.
func (u *PutContentUsecase) PutContent(ctx context.Context, input PutContentInput) (*domain.Edition, error) {
	ctx, span := tracer.Start(ctx, "Usecase.PutContent")
	defer span.End()

	if err := validatePutContent(input); err != nil {
		return nil, err
	}
	locale := input.Locale
	if locale == "" {
		locale = DefaultLocale
	}

	var (
		edition        *domain.Edition
		previous       *domain.Edition
		payloadVersion int64
	)
	err := u.store.InTx(ctx, func(tx Store) error {
		doc, err := tx.FindOrCreateDocument(ctx, input.ContentID, locale)
		if err != nil {
			return errors.Wrap(err, "finding document")
		}
		if err := CheckVersion(doc.StaleLockVersion, input.PreviousVersion); err != nil {
			return err
		}

		draft, err := tx.Draft(ctx, input.ContentID, locale)
		if err != nil {
			return err
		}
		previous, err = tx.PublishedOrUnpublished(ctx, input.ContentID, locale)
		if err != nil {
			return err
		}

		now := u.now()
		if draft == nil {
			draft = &domain.Edition{
				ContentID:         input.ContentID,
				Locale:            locale,
				UserFacingVersion: nextUserFacingVersion(previous),
				State:             domain.StateDraft,
				ContentStore:      domain.StoreDraft,
			}
			if previous != nil {
				draft.FirstPublishedAt = previous.FirstPublishedAt
				draft.LastEditedAt = previous.LastEditedAt
			}
		}
		draft.BasePath = input.BasePath
		draft.Title = input.Title
		draft.Description = input.Description
		draft.DocumentType = input.DocumentType
		draft.SchemaName = input.SchemaName
		draft.AnalyticsIdentifier = input.AnalyticsIdentifier
		draft.UpdateType = input.UpdateType
		draft.Details = input.Details
		draft.LastEditedAt = &now
		draft.Links = input.Links

		if draft.ID == 0 {
			if err := tx.CreateEdition(ctx, draft); err != nil {
				return errors.Wrap(err, "creating draft edition")
			}
		} else {
			if err := tx.UpdateEdition(ctx, draft); err != nil {
				return errors.Wrap(err, "updating draft edition")
			}
		}

		if !draft.Pathless() {
			if err := tx.ClearBasePath(ctx, draft.BasePath, locale, domain.StoreDraft, draft.ID); err != nil {
				return err
			}
		}

		if err := tx.ReplaceEditionLinks(ctx, draft.ID, input.Links); err != nil {
			return errors.Wrap(err, "replacing links")
		}

		if input.AccessLimit != nil {
			if err := tx.UpsertAccessLimit(ctx, draft.ID, *input.AccessLimit); err != nil {
				return errors.Wrap(err, "setting access limit")
			}
		} else if _, err := tx.DeleteAccessLimit(ctx, draft.ID); err != nil {
			return errors.Wrap(err, "removing access limit")
		}

		if err := tx.DeleteChangeNotes(ctx, draft.ID); err != nil {
			return err
		}
		if input.ChangeNote != nil {
			if err := tx.CreateChangeNote(ctx, draft.ID, *input.ChangeNote); err != nil {
				return err
			}
		}

		if _, err := tx.IncrementLock(ctx, input.ContentID, locale); err != nil {
			return errors.Wrap(err, "incrementing lock")
		}
		payloadVersion, err = tx.AppendEvent(ctx, "PutContent", input.ContentID, locale)
		if err != nil {
			return errors.Wrap(err, "appending event")
		}
		edition = draft
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	deps := downstream.UpdateDependencies(edition, previous)
	if err := u.sync.SendDraft(ctx, edition, edition.UpdateType, payloadVersion, deps); err != nil {
		return edition, err
	}
	if u.cache != nil {
		u.cache.Invalidate(ctx, edition.ContentID, edition.Locale)
	}
	return edition, nil
}

func nextUserFacingVersion(previous *domain.Edition) int {
	if previous == nil {
		return 1
	}
	return previous.UserFacingVersion + 1
}

func validatePutContent(input PutContentInput) error {
	fields := make(map[string][]string)
	if _, err := uuid.Parse(input.ContentID); err != nil {
		fields["content_id"] = []string{"must be a valid UUID"}
	}
	for _, link := range input.Links {
		if _, err := uuid.Parse(link.TargetContentID); err != nil {
			fields["links"] = append(fields["links"], "target "+link.TargetContentID+" must be a valid UUID")
		}
	}
	if input.UpdateType != "" && !input.UpdateType.Valid() {
		fields["update_type"] = []string{"must be one of major, minor, republish, links"}
	}
	if len(fields) > 0 {
		return domain.ValidationError{Message: "invalid content payload", Fields: fields}
	}
	return nil
}
