package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/contentgraph/publishing/internal/domain"
	"github.com/contentgraph/publishing/internal/downstream"
)

var tracer = otel.Tracer("usecase")

// DefaultLocale is assumed when a command omits the locale.
const DefaultLocale = "en"

// PublishInput is the validated input for publishing a draft edition.
type PublishInput struct {
	ContentID       string
	Locale          string
	UpdateType      domain.UpdateType // inherited from the draft when empty
	PreviousVersion *int64
	ChangeNote      *domain.ChangeNote
}

// PublishUsecase drives the draft to published transition and its
// side effects: supersession, redirects, base path substitution,
// access limit removal and downstream propagation.
type PublishUsecase struct {
	store  Store
	sync   *downstream.Sync
	signal SignalPublisher
	cache  ExpandedLinksInvalidator
	logger *slog.Logger
	now    func() time.Time
}

func NewPublishUsecase(store Store, sync *downstream.Sync, signal SignalPublisher, cache ExpandedLinksInvalidator, logger *slog.Logger) *PublishUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishUsecase{
		store:  store,
		sync:   sync,
		signal: signal,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// publishResult captures one published edition for post-commit work.
type publishResult struct {
	edition        *domain.Edition
	previous       *domain.Edition
	updateType     domain.UpdateType
	payloadVersion int64
}

// Publish runs the whole transition inside one transaction and only
// enqueues downstream propagation after it has committed. A changed
// base path publishes a redirect edition at the old path through this
// same flow, so one call can yield several published editions.
func (u *PublishUsecase) Publish(ctx context.Context, input PublishInput) error {
	ctx, span := tracer.Start(ctx, "Usecase.Publish")
	defer span.End()

	locale := input.Locale
	if locale == "" {
		locale = DefaultLocale
	}

	var results []publishResult
	err := u.store.InTx(ctx, func(tx Store) error {
		return u.publishEdition(ctx, tx, input.ContentID, locale, input.UpdateType, input.PreviousVersion, input.ChangeNote, &results)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	return u.afterCommit(ctx, results)
}

func (u *PublishUsecase) publishEdition(
	ctx context.Context,
	tx Store,
	contentID, locale string,
	updateTypeOverride domain.UpdateType,
	previousVersion *int64,
	changeNote *domain.ChangeNote,
	results *[]publishResult,
) error {
	doc, err := tx.FindDocument(ctx, contentID, locale)
	if err != nil {
		return err
	}

	draft, err := tx.Draft(ctx, contentID, locale)
	if err != nil {
		return errors.Wrap(err, "loading draft")
	}
	previous, err := tx.PublishedOrUnpublished(ctx, contentID, locale)
	if err != nil {
		return errors.Wrap(err, "loading previous edition")
	}

	if draft == nil {
		if previous != nil && previous.State == domain.StatePublished {
			return domain.ConflictError{Message: "Cannot publish an already published edition"}
		}
		return domain.NotFoundError{Resource: "draft edition"}
	}

	updateType := updateTypeOverride
	if updateType == "" {
		updateType = draft.UpdateType
	}
	if updateType == "" {
		return domain.ValidationError{
			Message: "update_type is required",
			Fields:  map[string][]string{"update_type": {"is invalid"}},
		}
	}
	if !updateType.Valid() {
		return domain.ValidationError{
			Message: "An update_type of '" + string(updateType) + "' is invalid",
			Fields:  map[string][]string{"update_type": {"must be one of major, minor, republish, links"}},
		}
	}

	if err := CheckVersion(doc.StaleLockVersion, previousVersion); err != nil {
		return err
	}
	if _, err := tx.IncrementLock(ctx, contentID, locale); err != nil {
		return errors.Wrap(err, "incrementing lock")
	}

	if updateType != domain.UpdateTypeMajor {
		if err := tx.DeleteChangeNotes(ctx, draft.ID); err != nil {
			return errors.Wrap(err, "deleting change notes")
		}
	}
	if previous != nil {
		if err := tx.SupersedeEdition(ctx, previous.ID); err != nil {
			return errors.Wrap(err, "superseding previous edition")
		}
	}

	if !draft.Pathless() {
		// Redirect formats never need a redirect of their own, which
		// bounds the recursion.
		if previous != nil && !previous.Pathless() &&
			previous.BasePath != draft.BasePath && draft.DocumentType != "redirect" {
			if err := u.publishRedirect(ctx, tx, previous.BasePath, draft.BasePath, locale, results); err != nil {
				return err
			}
		}
		if err := tx.ClearBasePath(ctx, draft.BasePath, locale, domain.StoreLive, draft.ID); err != nil {
			return err
		}
	}

	now := u.now()
	if draft.PublicUpdatedAt == nil {
		switch updateType {
		case domain.UpdateTypeMajor:
			draft.PublicUpdatedAt = &now
		case domain.UpdateTypeMinor:
			if previous != nil {
				draft.PublicUpdatedAt = previous.PublicUpdatedAt
			}
		}
	}
	if draft.FirstPublishedAt == nil {
		draft.FirstPublishedAt = &now
	}

	draft.State = domain.StatePublished
	draft.ContentStore = domain.StoreLive
	if err := tx.UpdateEdition(ctx, draft); err != nil {
		return errors.Wrap(err, "publishing edition")
	}

	if _, err := tx.DeleteAccessLimit(ctx, draft.ID); err != nil {
		return errors.Wrap(err, "removing access limit")
	}

	payloadVersion, err := tx.AppendEvent(ctx, "Publish", contentID, locale)
	if err != nil {
		return errors.Wrap(err, "appending publish event")
	}

	if updateTypeOverride != "" && changeNote != nil {
		if err := tx.CreateChangeNote(ctx, draft.ID, *changeNote); err != nil {
			return errors.Wrap(err, "creating change note")
		}
	}

	*results = append(*results, publishResult{
		edition:        draft,
		previous:       previous,
		updateType:     updateType,
		payloadVersion: payloadVersion,
	})
	return nil
}

// publishRedirect puts a redirect draft at the vacated base path and
// runs the publish flow for it inside the same transaction. An
// already waiting redirect draft is reused.
func (u *PublishUsecase) publishRedirect(ctx context.Context, tx Store, oldPath, newPath, locale string, results *[]publishResult) error {
	redirect, err := tx.DraftRedirectAt(ctx, oldPath, locale)
	if err != nil {
		return errors.Wrap(err, "finding redirect draft")
	}
	if redirect == nil {
		doc, err := tx.FindOrCreateDocument(ctx, uuid.NewString(), locale)
		if err != nil {
			return errors.Wrap(err, "creating redirect document")
		}
		details, err := json.Marshal(map[string]any{
			"redirects": []map[string]string{
				{"path": oldPath, "type": "exact", "destination": newPath},
			},
		})
		if err != nil {
			return err
		}
		redirect = &domain.Edition{
			ContentID:         doc.ContentID,
			Locale:            locale,
			UserFacingVersion: 1,
			State:             domain.StateDraft,
			ContentStore:      domain.StoreDraft,
			BasePath:          oldPath,
			DocumentType:      "redirect",
			SchemaName:        "redirect",
			UpdateType:        domain.UpdateTypeMajor,
			Details:           details,
		}
		if err := tx.CreateEdition(ctx, redirect); err != nil {
			return errors.Wrap(err, "creating redirect draft")
		}
	}
	return u.publishEdition(ctx, tx, redirect.ContentID, locale, domain.UpdateTypeMajor, nil, nil, results)
}

// afterCommit enqueues propagation for every edition the transaction
// published. Failures here cannot be rolled back; they are logged as
// a reconcilable gap and surfaced to the caller.
func (u *PublishUsecase) afterCommit(ctx context.Context, results []publishResult) error {
	var firstErr error
	for _, res := range results {
		deps := downstream.UpdateDependencies(res.edition, res.previous)
		if err := u.sync.SendLive(ctx, res.edition, res.previous, res.updateType, res.payloadVersion); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := u.sync.SendDraft(ctx, res.edition, res.updateType, res.payloadVersion, deps); err != nil && firstErr == nil {
			firstErr = err
		}
		if u.signal != nil {
			signal := PublishSignal{
				ContentID:      res.edition.ContentID,
				Locale:         res.edition.Locale,
				BasePath:       res.edition.BasePath,
				PayloadVersion: res.payloadVersion,
			}
			if err := u.signal.PublishedEdition(ctx, signal); err != nil {
				u.logger.Warn("publish signal failed", "content_id", res.edition.ContentID, "error", err)
			}
		}
		if u.cache != nil {
			u.cache.Invalidate(ctx, res.edition.ContentID, res.edition.Locale)
		}
	}
	return firstErr
}
