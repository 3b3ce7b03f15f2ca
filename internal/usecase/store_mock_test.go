package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/contentgraph/publishing/internal/domain"
	"github.com/contentgraph/publishing/internal/downstream"
)

func docKey(contentID, locale string) string {
	return contentID + "|" + locale
}

// fakeStore is the in-memory Store used across usecase tests. Editions
// are held by pointer, so state transitions made by a usecase are
// visible to subsequent queries the same way committed rows are.
type fakeStore struct {
	docs               map[string]*domain.Document
	editions           []*domain.Edition
	linkSets           map[string]*domain.LinkSet
	linkSetLinks       map[string]map[domain.LinkType][]string
	editionLinks       map[int64][]domain.Link
	accessLimits       map[int64]domain.AccessLimit
	changeNotes        map[int64][]domain.ChangeNote
	deletedChangeNotes []int64
	clearedPaths       []string
	events             []string
	lookup             map[string]string
	lookupCalls        int
	nextEditionID      int64
	nextEventID        int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:         make(map[string]*domain.Document),
		linkSets:     make(map[string]*domain.LinkSet),
		linkSetLinks: make(map[string]map[domain.LinkType][]string),
		editionLinks: make(map[int64][]domain.Link),
		accessLimits: make(map[int64]domain.AccessLimit),
		changeNotes:  make(map[int64][]domain.ChangeNote),
		lookup:       make(map[string]string),
	}
}

func (s *fakeStore) addDocument(contentID, locale string, lockVersion int64) {
	s.docs[docKey(contentID, locale)] = &domain.Document{
		ContentID:        contentID,
		Locale:           locale,
		StaleLockVersion: lockVersion,
	}
}

func (s *fakeStore) addEdition(e *domain.Edition) *domain.Edition {
	s.nextEditionID++
	e.ID = s.nextEditionID
	s.editions = append(s.editions, e)
	return e
}

func (s *fakeStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(s)
}

func (s *fakeStore) FindDocument(ctx context.Context, contentID, locale string) (*domain.Document, error) {
	doc, ok := s.docs[docKey(contentID, locale)]
	if !ok {
		return nil, domain.NotFoundError{Resource: "document"}
	}
	return doc, nil
}

func (s *fakeStore) FindOrCreateDocument(ctx context.Context, contentID, locale string) (*domain.Document, error) {
	if doc, ok := s.docs[docKey(contentID, locale)]; ok {
		return doc, nil
	}
	s.addDocument(contentID, locale, 0)
	return s.docs[docKey(contentID, locale)], nil
}

func (s *fakeStore) IncrementLock(ctx context.Context, contentID, locale string) (int64, error) {
	doc, err := s.FindDocument(ctx, contentID, locale)
	if err != nil {
		return 0, err
	}
	doc.StaleLockVersion++
	return doc.StaleLockVersion, nil
}

func (s *fakeStore) findEdition(contentID, locale string, states ...domain.State) *domain.Edition {
	for _, e := range s.editions {
		if e.ContentID != contentID || e.Locale != locale {
			continue
		}
		for _, state := range states {
			if e.State == state {
				return e
			}
		}
	}
	return nil
}

func (s *fakeStore) Draft(ctx context.Context, contentID, locale string) (*domain.Edition, error) {
	return s.findEdition(contentID, locale, domain.StateDraft), nil
}

func (s *fakeStore) PublishedOrUnpublished(ctx context.Context, contentID, locale string) (*domain.Edition, error) {
	return s.findEdition(contentID, locale, domain.StatePublished, domain.StateUnpublished), nil
}

func (s *fakeStore) DraftRedirectAt(ctx context.Context, basePath, locale string) (*domain.Edition, error) {
	for _, e := range s.editions {
		if e.State == domain.StateDraft && e.BasePath == basePath && e.Locale == locale && e.SchemaName == "redirect" {
			return e, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateEdition(ctx context.Context, edition *domain.Edition) error {
	s.addEdition(edition)
	return nil
}

func (s *fakeStore) UpdateEdition(ctx context.Context, edition *domain.Edition) error {
	return nil
}

func (s *fakeStore) SupersedeEdition(ctx context.Context, editionID int64) error {
	for _, e := range s.editions {
		if e.ID == editionID {
			e.State = domain.StateSuperseded
			e.ContentStore = domain.StoreNone
		}
	}
	return nil
}

func (s *fakeStore) ClearBasePath(ctx context.Context, basePath, locale string, store domain.ContentStore, excludeEditionID int64) error {
	s.clearedPaths = append(s.clearedPaths, basePath+"|"+locale+"|"+string(store))
	return nil
}

func (s *fakeStore) ReplaceEditionLinks(ctx context.Context, editionID int64, links []domain.Link) error {
	s.editionLinks[editionID] = links
	return nil
}

func (s *fakeStore) DeleteChangeNotes(ctx context.Context, editionID int64) error {
	s.deletedChangeNotes = append(s.deletedChangeNotes, editionID)
	delete(s.changeNotes, editionID)
	return nil
}

func (s *fakeStore) CreateChangeNote(ctx context.Context, editionID int64, note domain.ChangeNote) error {
	s.changeNotes[editionID] = append(s.changeNotes[editionID], note)
	return nil
}

func (s *fakeStore) UpsertAccessLimit(ctx context.Context, editionID int64, limit domain.AccessLimit) error {
	s.accessLimits[editionID] = limit
	return nil
}

func (s *fakeStore) DeleteAccessLimit(ctx context.Context, editionID int64) (bool, error) {
	_, existed := s.accessLimits[editionID]
	delete(s.accessLimits, editionID)
	return existed, nil
}

func (s *fakeStore) FindOrCreateLinkSet(ctx context.Context, contentID string) (*domain.LinkSet, error) {
	if ls, ok := s.linkSets[contentID]; ok {
		return ls, nil
	}
	ls := &domain.LinkSet{ContentID: contentID}
	s.linkSets[contentID] = ls
	return ls, nil
}

func (s *fakeStore) ReplaceLinkSetLinks(ctx context.Context, contentID string, linkType domain.LinkType, targets []string) error {
	if _, ok := s.linkSetLinks[contentID]; !ok {
		s.linkSetLinks[contentID] = make(map[domain.LinkType][]string)
	}
	s.linkSetLinks[contentID][linkType] = targets
	return nil
}

func (s *fakeStore) IncrementLinkSetLock(ctx context.Context, contentID string) (int64, error) {
	ls, err := s.FindOrCreateLinkSet(ctx, contentID)
	if err != nil {
		return 0, err
	}
	ls.StaleLockVersion++
	return ls.StaleLockVersion, nil
}

func (s *fakeStore) AppendEvent(ctx context.Context, action, contentID, locale string) (int64, error) {
	s.nextEventID++
	s.events = append(s.events, action)
	return s.nextEventID, nil
}

func (s *fakeStore) DocumentLocales(ctx context.Context, contentID string) ([]string, error) {
	var locales []string
	for key := range s.docs {
		if strings.HasPrefix(key, contentID+"|") {
			locales = append(locales, strings.TrimPrefix(key, contentID+"|"))
		}
	}
	return locales, nil
}

func (s *fakeStore) LiveContentRefs(ctx context.Context) ([]ContentRef, error) {
	var refs []ContentRef
	for _, e := range s.editions {
		if e.State == domain.StatePublished {
			refs = append(refs, ContentRef{ContentID: e.ContentID, Locale: e.Locale})
		}
	}
	return refs, nil
}

func (s *fakeStore) LookupLiveContentIDs(ctx context.Context, basePaths []string) (map[string]string, error) {
	s.lookupCalls++
	out := make(map[string]string)
	for _, path := range basePaths {
		if contentID, ok := s.lookup[path]; ok {
			out[path] = contentID
		}
	}
	return out, nil
}

type capturedJob struct {
	channel string
	payload downstream.Payload
}

type fakeQueue struct {
	jobs []capturedJob
}

func (q *fakeQueue) Enqueue(ctx context.Context, channel string, payload downstream.Payload) error {
	q.jobs = append(q.jobs, capturedJob{channel: channel, payload: payload})
	return nil
}

func (q *fakeQueue) byChannel(channel string) []downstream.Payload {
	var out []downstream.Payload
	for _, job := range q.jobs {
		if job.channel == channel {
			out = append(out, job.payload)
		}
	}
	return out
}

type fakeLock struct {
	granted  bool
	acquired []string
}

func (l *fakeLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.acquired = append(l.acquired, name)
	return l.granted, nil
}

type fakeSignal struct {
	signals []PublishSignal
}

func (f *fakeSignal) PublishedEdition(ctx context.Context, signal PublishSignal) error {
	f.signals = append(f.signals, signal)
	return nil
}

type fakeInvalidator struct {
	invalidated []string
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, contentID, locale string) {
	f.invalidated = append(f.invalidated, docKey(contentID, locale))
}
