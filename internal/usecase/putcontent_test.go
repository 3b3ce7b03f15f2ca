package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/contentgraph/publishing/internal/domain"
	"github.com/contentgraph/publishing/internal/downstream"
)

const (
	testContentID = "f3bbdec2-0e62-4520-a7fd-6ffd5d36e03a"
	testTargetID  = "8e0a2b4f-7c7a-4a64-9a2d-3d8f2f9f2b11"
)

func newPutContentHarness() (*fakeStore, *fakeQueue, *fakeInvalidator, *PutContentUsecase) {
	store := newFakeStore()
	queue := &fakeQueue{}
	cache := &fakeInvalidator{}
	uc := NewPutContentUsecase(store, downstream.NewSync(queue, nil), cache, nil)
	return store, queue, cache, uc
}

func TestPutContentCreatesFirstDraft(t *testing.T) {
	store, queue, cache, uc := newPutContentHarness()

	edition, err := uc.PutContent(context.Background(), PutContentInput{
		ContentID:    testContentID,
		BasePath:     "/vat-rates",
		Title:        "VAT rates",
		DocumentType: "guide",
		SchemaName:   "guide",
		UpdateType:   domain.UpdateTypeMajor,
		Links: []domain.Link{
			{LinkType: "taxons", TargetContentID: testTargetID},
		},
	})
	if err != nil {
		t.Fatalf("put content failed: %v", err)
	}

	if edition.State != domain.StateDraft || edition.UserFacingVersion != 1 {
		t.Fatalf("expected a version 1 draft, got %s v%d", edition.State, edition.UserFacingVersion)
	}
	if edition.Locale != DefaultLocale {
		t.Fatalf("expected default locale, got %s", edition.Locale)
	}
	if edition.LastEditedAt == nil {
		t.Fatal("expected last_edited_at to be set")
	}
	if len(store.editionLinks[edition.ID]) != 1 {
		t.Fatal("expected edition links to be replaced")
	}
	if store.docs[docKey(testContentID, "en")].StaleLockVersion != 1 {
		t.Fatal("expected the document lock version to be incremented")
	}
	if len(store.events) != 1 || store.events[0] != "PutContent" {
		t.Fatalf("expected one PutContent event, got %v", store.events)
	}

	drafts := queue.byChannel(downstream.ChannelDraftHigh)
	if len(drafts) != 1 {
		t.Fatalf("expected one draft payload, got %+v", queue.jobs)
	}
	if drafts[0].UpdateDependencies == nil || !*drafts[0].UpdateDependencies {
		t.Fatal("a first draft must request dependency re-resolution")
	}
	if len(queue.byChannel(downstream.ChannelLiveHigh)) != 0 {
		t.Fatal("a draft save must never touch the live channel")
	}
	if len(cache.invalidated) != 1 {
		t.Fatal("expected the expanded links cache to be invalidated")
	}
}

func TestPutContentIncrementsVersionAfterPublish(t *testing.T) {
	store, _, _, uc := newPutContentHarness()
	store.addDocument(testContentID, "en", 0)

	first := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	published := &domain.Edition{
		ContentID:         testContentID,
		Locale:            "en",
		UserFacingVersion: 3,
		State:             domain.StatePublished,
		ContentStore:      domain.StoreLive,
		BasePath:          "/vat-rates",
		FirstPublishedAt:  &first,
	}
	store.addEdition(published)

	edition, err := uc.PutContent(context.Background(), PutContentInput{
		ContentID:    testContentID,
		BasePath:     "/vat-rates",
		Title:        "VAT rates",
		DocumentType: "guide",
		SchemaName:   "guide",
	})
	if err != nil {
		t.Fatalf("put content failed: %v", err)
	}

	if edition.UserFacingVersion != 4 {
		t.Fatalf("expected version 4, got %d", edition.UserFacingVersion)
	}
	if edition.FirstPublishedAt == nil || !edition.FirstPublishedAt.Equal(first) {
		t.Fatal("a new draft inherits first_published_at from the published edition")
	}
	if published.State != domain.StatePublished {
		t.Fatal("saving a draft must not disturb the published edition")
	}
}

func TestPutContentUpdatesExistingDraftInPlace(t *testing.T) {
	store, _, _, uc := newPutContentHarness()
	store.addDocument(testContentID, "en", 0)
	draft := &domain.Edition{
		ContentID:         testContentID,
		Locale:            "en",
		UserFacingVersion: 1,
		State:             domain.StateDraft,
		ContentStore:      domain.StoreDraft,
		Title:             "Old title",
	}
	store.addEdition(draft)

	edition, err := uc.PutContent(context.Background(), PutContentInput{
		ContentID: testContentID,
		Title:     "New title",
	})
	if err != nil {
		t.Fatalf("put content failed: %v", err)
	}
	if edition.ID != draft.ID {
		t.Fatal("expected the existing draft to be updated in place")
	}
	if draft.Title != "New title" {
		t.Fatalf("draft title not updated, got %s", draft.Title)
	}
	if edition.UserFacingVersion != 1 {
		t.Fatalf("in-place update must not bump the version, got %d", edition.UserFacingVersion)
	}
}

func TestPutContentValidation(t *testing.T) {
	_, _, _, uc := newPutContentHarness()

	_, err := uc.PutContent(context.Background(), PutContentInput{ContentID: "not-a-uuid"})
	var validation domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := validation.Fields["content_id"]; !ok {
		t.Fatalf("expected content_id field error, got %v", validation.Fields)
	}

	_, err = uc.PutContent(context.Background(), PutContentInput{
		ContentID:  testContentID,
		UpdateType: "banana",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for update_type, got %v", err)
	}
}

func TestPutContentStaleLockVersion(t *testing.T) {
	store, queue, _, uc := newPutContentHarness()
	store.addDocument(testContentID, "en", 5)

	stale := int64(4)
	_, err := uc.PutContent(context.Background(), PutContentInput{
		ContentID:       testContentID,
		PreviousVersion: &stale,
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatal("a rejected save must not enqueue anything")
	}
}

func TestPutContentAccessLimit(t *testing.T) {
	store, _, _, uc := newPutContentHarness()

	edition, err := uc.PutContent(context.Background(), PutContentInput{
		ContentID:   testContentID,
		AccessLimit: &domain.AccessLimit{Users: []string{"u1"}},
	})
	if err != nil {
		t.Fatalf("put content failed: %v", err)
	}
	if _, ok := store.accessLimits[edition.ID]; !ok {
		t.Fatal("expected the access limit to be stored")
	}

	_, err = uc.PutContent(context.Background(), PutContentInput{ContentID: testContentID})
	if err != nil {
		t.Fatalf("put content failed: %v", err)
	}
	if _, ok := store.accessLimits[edition.ID]; ok {
		t.Fatal("omitting the access limit must remove it")
	}
}
