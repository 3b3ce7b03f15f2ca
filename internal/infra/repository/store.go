package repository

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contentgraph/publishing/internal/domain"
	"github.com/contentgraph/publishing/internal/infra/database/models"
	"github.com/contentgraph/publishing/internal/usecase"
)

// ContentStore is the gorm-backed implementation of the transactional
// persistence boundary.
type ContentStore struct {
	db *gorm.DB
}

func NewContentStore(db *gorm.DB) *ContentStore {
	return &ContentStore{db: db}
}

func (s *ContentStore) InTx(ctx context.Context, fn func(tx usecase.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ContentStore{db: tx})
	})
}

func (s *ContentStore) FindDocument(ctx context.Context, contentID, locale string) (*domain.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).
		Where("content_id = ? AND locale = ?", contentID, locale).
		Take(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFoundError{Resource: "document"}
		}
		return nil, err
	}
	return documentFromModel(&doc), nil
}

func (s *ContentStore) FindOrCreateDocument(ctx context.Context, contentID, locale string) (*domain.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).
		Where(models.Document{ContentID: contentID, Locale: locale}).
		FirstOrCreate(&doc).Error
	if err != nil {
		return nil, err
	}
	return documentFromModel(&doc), nil
}

func (s *ContentStore) IncrementLock(ctx context.Context, contentID, locale string) (int64, error) {
	err := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("content_id = ? AND locale = ?", contentID, locale).
		UpdateColumn("stale_lock_version", gorm.Expr("stale_lock_version + 1")).Error
	if err != nil {
		return 0, err
	}
	doc, err := s.FindDocument(ctx, contentID, locale)
	if err != nil {
		return 0, err
	}
	return doc.StaleLockVersion, nil
}

func (s *ContentStore) Draft(ctx context.Context, contentID, locale string) (*domain.Edition, error) {
	return s.editionInStates(ctx, contentID, locale, []string{string(domain.StateDraft)})
}

func (s *ContentStore) PublishedOrUnpublished(ctx context.Context, contentID, locale string) (*domain.Edition, error) {
	return s.editionInStates(ctx, contentID, locale, []string{
		string(domain.StatePublished), string(domain.StateUnpublished),
	})
}

func (s *ContentStore) editionInStates(ctx context.Context, contentID, locale string, states []string) (*domain.Edition, error) {
	var edition models.Edition
	err := s.db.WithContext(ctx).
		Joins("JOIN documents ON documents.id = editions.document_id").
		Where("documents.content_id = ? AND documents.locale = ?", contentID, locale).
		Where("editions.state IN ?", states).
		Take(&edition).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.editionFromModel(ctx, &edition, contentID, locale)
}

func (s *ContentStore) DraftRedirectAt(ctx context.Context, basePath, locale string) (*domain.Edition, error) {
	var edition models.Edition
	err := s.db.WithContext(ctx).
		Joins("JOIN documents ON documents.id = editions.document_id").
		Where("editions.state = ? AND editions.base_path = ? AND editions.schema_name = ?",
			string(domain.StateDraft), basePath, "redirect").
		Where("documents.locale = ?", locale).
		Take(&edition).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var doc models.Document
	if err := s.db.WithContext(ctx).Take(&doc, "id = ?", edition.DocumentID).Error; err != nil {
		return nil, err
	}
	return s.editionFromModel(ctx, &edition, doc.ContentID, doc.Locale)
}

func (s *ContentStore) CreateEdition(ctx context.Context, edition *domain.Edition) error {
	var doc models.Document
	err := s.db.WithContext(ctx).
		Where("content_id = ? AND locale = ?", edition.ContentID, edition.Locale).
		Take(&doc).Error
	if err != nil {
		return errors.Wrap(err, "resolving document for edition")
	}
	m := editionToModel(edition, doc.ID)
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	edition.ID = m.ID
	return nil
}

func (s *ContentStore) UpdateEdition(ctx context.Context, edition *domain.Edition) error {
	updates := map[string]any{
		"user_facing_version":  edition.UserFacingVersion,
		"state":                string(edition.State),
		"content_store":        contentStoreColumn(edition.ContentStore),
		"base_path":            nullable(edition.BasePath),
		"title":                edition.Title,
		"description":          edition.Description,
		"document_type":        edition.DocumentType,
		"schema_name":          edition.SchemaName,
		"analytics_identifier": edition.AnalyticsIdentifier,
		"update_type":          string(edition.UpdateType),
		"details":              detailsColumn(edition.Details),
		"public_updated_at":    edition.PublicUpdatedAt,
		"first_published_at":   edition.FirstPublishedAt,
		"last_edited_at":       edition.LastEditedAt,
	}
	return s.db.WithContext(ctx).Model(&models.Edition{}).
		Where("id = ?", edition.ID).
		Updates(updates).Error
}

func (s *ContentStore) SupersedeEdition(ctx context.Context, editionID int64) error {
	return s.db.WithContext(ctx).Model(&models.Edition{}).
		Where("id = ?", editionID).
		Updates(map[string]any{
			"state":         string(domain.StateSuperseded),
			"content_store": nil,
		}).Error
}

func (s *ContentStore) ClearBasePath(ctx context.Context, basePath, locale string, store domain.ContentStore, excludeEditionID int64) error {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.Edition{}).
		Joins("JOIN documents ON documents.id = editions.document_id").
		Where("editions.base_path = ? AND documents.locale = ?", basePath, locale).
		Where("editions.content_store = ?", string(store)).
		Where("editions.id <> ?", excludeEditionID).
		Pluck("editions.id", &ids).Error
	if err != nil || len(ids) == 0 {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.Edition{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"state":         string(domain.StateSuperseded),
			"content_store": nil,
		}).Error
}

func (s *ContentStore) ReplaceEditionLinks(ctx context.Context, editionID int64, links []domain.Link) error {
	if err := s.db.WithContext(ctx).Delete(&models.Link{}, "edition_id = ?", editionID).Error; err != nil {
		return err
	}
	positions := make(map[domain.LinkType]int)
	for _, link := range links {
		position := positions[link.LinkType]
		positions[link.LinkType]++
		row := models.Link{
			EditionID:       &editionID,
			LinkType:        string(link.LinkType),
			TargetContentID: link.TargetContentID,
			Position:        position,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *ContentStore) DeleteChangeNotes(ctx context.Context, editionID int64) error {
	return s.db.WithContext(ctx).Delete(&models.ChangeNote{}, "edition_id = ?", editionID).Error
}

func (s *ContentStore) CreateChangeNote(ctx context.Context, editionID int64, note domain.ChangeNote) error {
	return s.db.WithContext(ctx).Create(&models.ChangeNote{
		EditionID:       editionID,
		Note:            note.Note,
		PublicTimestamp: note.PublicTimestamp,
	}).Error
}

func (s *ContentStore) UpsertAccessLimit(ctx context.Context, editionID int64, limit domain.AccessLimit) error {
	users, err := json.Marshal(limit.Users)
	if err != nil {
		return err
	}
	bypass, err := json.Marshal(limit.BypassIDs)
	if err != nil {
		return err
	}
	row := models.AccessLimit{
		EditionID: editionID,
		Users:     string(users),
		BypassIDs: string(bypass),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "edition_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"users", "bypass_ids"}),
	}).Create(&row).Error
}

func (s *ContentStore) DeleteAccessLimit(ctx context.Context, editionID int64) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&models.AccessLimit{}, "edition_id = ?", editionID)
	return result.RowsAffected > 0, result.Error
}

func (s *ContentStore) FindOrCreateLinkSet(ctx context.Context, contentID string) (*domain.LinkSet, error) {
	var linkSet models.LinkSet
	err := s.db.WithContext(ctx).
		Where(models.LinkSet{ContentID: contentID}).
		FirstOrCreate(&linkSet).Error
	if err != nil {
		return nil, err
	}
	return &domain.LinkSet{
		ContentID:        linkSet.ContentID,
		StaleLockVersion: linkSet.StaleLockVersion,
	}, nil
}

func (s *ContentStore) ReplaceLinkSetLinks(ctx context.Context, contentID string, linkType domain.LinkType, targets []string) error {
	var linkSet models.LinkSet
	err := s.db.WithContext(ctx).
		Where(models.LinkSet{ContentID: contentID}).
		FirstOrCreate(&linkSet).Error
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Delete(&models.Link{}, "link_set_id = ? AND link_type = ?", linkSet.ID, string(linkType)).Error
	if err != nil {
		return err
	}
	for position, target := range targets {
		row := models.Link{
			LinkSetID:       &linkSet.ID,
			LinkType:        string(linkType),
			TargetContentID: target,
			Position:        position,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *ContentStore) IncrementLinkSetLock(ctx context.Context, contentID string) (int64, error) {
	err := s.db.WithContext(ctx).Model(&models.LinkSet{}).
		Where("content_id = ?", contentID).
		UpdateColumn("stale_lock_version", gorm.Expr("stale_lock_version + 1")).Error
	if err != nil {
		return 0, err
	}
	var linkSet models.LinkSet
	if err := s.db.WithContext(ctx).Take(&linkSet, "content_id = ?", contentID).Error; err != nil {
		return 0, err
	}
	return linkSet.StaleLockVersion, nil
}

func (s *ContentStore) AppendEvent(ctx context.Context, action, contentID, locale string) (int64, error) {
	event := models.Event{
		Action:    action,
		ContentID: contentID,
		Locale:    locale,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		return 0, err
	}
	return event.ID, nil
}

func (s *ContentStore) DocumentLocales(ctx context.Context, contentID string) ([]string, error) {
	var locales []string
	err := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("content_id = ?", contentID).
		Pluck("locale", &locales).Error
	return locales, err
}

func (s *ContentStore) LiveContentRefs(ctx context.Context) ([]usecase.ContentRef, error) {
	var refs []usecase.ContentRef
	err := s.db.WithContext(ctx).Model(&models.Edition{}).
		Select("documents.content_id AS content_id, documents.locale AS locale").
		Joins("JOIN documents ON documents.id = editions.document_id").
		Where("editions.state = ?", string(domain.StatePublished)).
		Scan(&refs).Error
	return refs, err
}

// LookupLiveContentIDs returns content visible on the live site.
// Withdrawn items are still visible; paths held by redirects, gones
// or vanished content are not.
func (s *ContentStore) LookupLiveContentIDs(ctx context.Context, basePaths []string) (map[string]string, error) {
	type row struct {
		BasePath  string
		ContentID string
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Edition{}).
		Select("editions.base_path AS base_path, documents.content_id AS content_id").
		Joins("JOIN documents ON documents.id = editions.document_id").
		Joins("LEFT JOIN unpublishings ON unpublishings.edition_id = editions.id").
		Where("unpublishings.type IS NULL OR unpublishings.type NOT IN ?",
			[]string{"vanish", "redirect", "gone"}).
		Where("editions.state IN ?", []string{"published", "unpublished"}).
		Where("editions.content_store = ?", "live").
		Where("editions.base_path IN ?", basePaths).
		Where("editions.document_type NOT IN ?", []string{"gone", "redirect"}).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, len(rows))
	for _, r := range rows {
		result[r.BasePath] = r.ContentID
	}
	return result, nil
}

func (s *ContentStore) editionFromModel(ctx context.Context, m *models.Edition, contentID, locale string) (*domain.Edition, error) {
	var linkRows []models.Link
	err := s.db.WithContext(ctx).
		Where("edition_id = ?", m.ID).
		Order("link_type ASC, position ASC").
		Find(&linkRows).Error
	if err != nil {
		return nil, err
	}
	links := make([]domain.Link, 0, len(linkRows))
	for _, l := range linkRows {
		links = append(links, domain.Link{
			LinkType:        domain.LinkType(l.LinkType),
			TargetContentID: l.TargetContentID,
			Position:        l.Position,
		})
	}

	edition := &domain.Edition{
		ID:                  m.ID,
		ContentID:           contentID,
		Locale:              locale,
		UserFacingVersion:   m.UserFacingVersion,
		State:               domain.State(m.State),
		Title:               m.Title,
		Description:         m.Description,
		DocumentType:        m.DocumentType,
		SchemaName:          m.SchemaName,
		AnalyticsIdentifier: m.AnalyticsID,
		UpdateType:          domain.UpdateType(m.UpdateType),
		Details:             json.RawMessage(m.Details),
		PublicUpdatedAt:     m.PublicUpdatedAt,
		FirstPublishedAt:    m.FirstPublishedAt,
		LastEditedAt:        m.LastEditedAt,
		Links:               links,
	}
	if m.ContentStore != nil {
		edition.ContentStore = domain.ContentStore(*m.ContentStore)
	}
	if m.BasePath != nil {
		edition.BasePath = *m.BasePath
	}
	return edition, nil
}

func editionToModel(e *domain.Edition, documentID int64) *models.Edition {
	return &models.Edition{
		DocumentID:        documentID,
		UserFacingVersion: e.UserFacingVersion,
		State:             string(e.State),
		ContentStore:      contentStoreColumn(e.ContentStore),
		BasePath:          nullable(e.BasePath),
		Title:             e.Title,
		Description:       e.Description,
		DocumentType:      e.DocumentType,
		SchemaName:        e.SchemaName,
		AnalyticsID:       e.AnalyticsIdentifier,
		UpdateType:        string(e.UpdateType),
		Details:           detailsColumn(e.Details),
		PublicUpdatedAt:   e.PublicUpdatedAt,
		FirstPublishedAt:  e.FirstPublishedAt,
		LastEditedAt:      e.LastEditedAt,
	}
}

func documentFromModel(m *models.Document) *domain.Document {
	return &domain.Document{
		ContentID:        m.ContentID,
		Locale:           m.Locale,
		StaleLockVersion: m.StaleLockVersion,
	}
}

func contentStoreColumn(store domain.ContentStore) *string {
	if store == domain.StoreNone {
		return nil
	}
	s := string(store)
	return &s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func detailsColumn(details json.RawMessage) string {
	if len(details) == 0 {
		return "{}"
	}
	return string(details)
}
