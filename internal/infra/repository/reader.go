package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/contentgraph/publishing/internal/domain"
)

// GraphReader answers the link and content queries that drive link
// expansion. Unlike ContentStore it never writes; resolution runs
// outside any transaction and tolerates concurrent edits.
type GraphReader struct {
	db *gorm.DB
}

func NewGraphReader(db *gorm.DB) *GraphReader {
	return &GraphReader{db: db}
}

type linkRow struct {
	LinkType        string
	TargetContentID string
}

// OutgoingLinks unions linkset links with edition links in a single
// query. Linkset links carry no edition, so the state predicate
// accepts NULL. Edition links are read from the draft when one exists
// and drafts are requested, otherwise from the published or
// unpublished edition.
func (r *GraphReader) OutgoingLinks(ctx context.Context, contentID, locale string, withDrafts bool, allowed []domain.LinkType, exclude []string) (map[domain.LinkType][]string, error) {
	q := r.db.WithContext(ctx).Table("links").
		Select("links.link_type AS link_type, links.target_content_id AS target_content_id").
		Joins("LEFT JOIN link_sets ON link_sets.id = links.link_set_id").
		Joins("LEFT JOIN editions ON editions.id = links.edition_id").
		Joins("LEFT JOIN documents ON documents.id = editions.document_id").
		Where("link_sets.content_id = ? OR documents.content_id = ?", contentID, contentID).
		Where("documents.locale IS NULL OR documents.locale = ?", locale)

	q = eligibleEditionState(q, withDrafts)

	if allowed != nil {
		q = q.Where("links.link_type IN ?", linkTypeStrings(allowed))
	}
	if len(exclude) > 0 {
		q = q.Where("links.target_content_id NOT IN ?", exclude)
	}

	var rows []linkRow
	err := q.Order("links.link_type ASC, links.position ASC").Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[domain.LinkType][]string)
	for _, row := range rows {
		lt := domain.LinkType(row.LinkType)
		result[lt] = append(result[lt], row.TargetContentID)
	}
	return result, nil
}

// IncomingLinks returns the sources of edges pointing at contentID,
// keyed by the forward link type the source declared. Edition-sourced
// edges only count while their edition is current, under the same
// locale and draft scoping as OutgoingLinks; a link row left behind by
// a superseded edition never produces a reverse edge.
func (r *GraphReader) IncomingLinks(ctx context.Context, contentID, locale string, withDrafts bool, forwardTypes []domain.LinkType, exclude []string) (map[domain.LinkType][]string, error) {
	type sourceRow struct {
		LinkType        string
		SourceContentID string
	}

	q := r.db.WithContext(ctx).Table("links").
		Select("links.link_type AS link_type, COALESCE(link_sets.content_id, documents.content_id) AS source_content_id").
		Joins("LEFT JOIN link_sets ON link_sets.id = links.link_set_id").
		Joins("LEFT JOIN editions ON editions.id = links.edition_id").
		Joins("LEFT JOIN documents ON documents.id = editions.document_id").
		Where("links.target_content_id = ?", contentID).
		Where("links.link_type IN ?", linkTypeStrings(forwardTypes)).
		Where("documents.locale IS NULL OR documents.locale = ?", locale)
	q = eligibleEditionState(q, withDrafts)
	if len(exclude) > 0 {
		q = q.Where("COALESCE(link_sets.content_id, documents.content_id) NOT IN ?", exclude)
	}

	var rows []sourceRow
	err := q.Order("links.link_type ASC, links.position ASC").Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[domain.LinkType][]string)
	for _, row := range rows {
		lt := domain.LinkType(row.LinkType)
		result[lt] = append(result[lt], row.SourceContentID)
	}
	return result, nil
}

// BatchLoad fetches the candidate editions for a set of content ids in
// one round trip. State precedence is applied by the caller.
func (r *GraphReader) BatchLoad(ctx context.Context, contentIDs []string, locale string, withDrafts bool) (map[string][]*domain.ContentEntry, error) {
	if len(contentIDs) == 0 {
		return map[string][]*domain.ContentEntry{}, nil
	}

	states := []string{"published", "unpublished"}
	if withDrafts {
		states = append([]string{"draft"}, states...)
	}

	type entryRow struct {
		ContentID               string
		Locale                  string
		State                   string
		BasePath                *string
		Title                   string
		Description             string
		DocumentType            string
		SchemaName              string
		AnalyticsIdentifier     string
		Details                 string
		PublicUpdatedAt         *time.Time
		UnpublishingType        *string
		UnpublishingExplanation *string
		UnpublishingAltPath     *string
	}

	var rows []entryRow
	err := r.db.WithContext(ctx).Table("editions").
		Select(`documents.content_id AS content_id, documents.locale AS locale,
			editions.state AS state, editions.base_path AS base_path,
			editions.title AS title, editions.description AS description,
			editions.document_type AS document_type, editions.schema_name AS schema_name,
			editions.analytics_identifier AS analytics_identifier,
			editions.details AS details, editions.public_updated_at AS public_updated_at,
			unpublishings.type AS unpublishing_type,
			unpublishings.explanation AS unpublishing_explanation,
			unpublishings.alternative_path AS unpublishing_alt_path`).
		Joins("JOIN documents ON documents.id = editions.document_id").
		Joins("LEFT JOIN unpublishings ON unpublishings.edition_id = editions.id").
		Where("documents.content_id IN ?", contentIDs).
		Where("documents.locale = ?", locale).
		Where("editions.state IN ?", states).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string][]*domain.ContentEntry, len(rows))
	for _, row := range rows {
		entry := &domain.ContentEntry{
			ContentID:           row.ContentID,
			Locale:              row.Locale,
			State:               domain.State(row.State),
			Title:               row.Title,
			Description:         row.Description,
			DocumentType:        row.DocumentType,
			SchemaName:          row.SchemaName,
			AnalyticsIdentifier: row.AnalyticsIdentifier,
			Details:             []byte(row.Details),
			PublicUpdatedAt:     row.PublicUpdatedAt,
		}
		if row.BasePath != nil {
			entry.BasePath = *row.BasePath
		}
		if row.UnpublishingType != nil {
			entry.Unpublishing = &domain.Unpublishing{
				Type: domain.UnpublishingType(*row.UnpublishingType),
			}
			if row.UnpublishingExplanation != nil {
				entry.Unpublishing.Explanation = *row.UnpublishingExplanation
			}
			if row.UnpublishingAltPath != nil {
				entry.Unpublishing.AlternativePath = *row.UnpublishingAltPath
			}
		}
		result[row.ContentID] = append(result[row.ContentID], entry)
	}
	return result, nil
}

// eligibleEditionState keeps linkset rows, which carry no edition, and
// rows whose edition is current: the draft when drafts are requested
// and one exists, otherwise the published or unpublished edition.
// Superseded editions never contribute edges.
func eligibleEditionState(q *gorm.DB, withDrafts bool) *gorm.DB {
	if withDrafts {
		return q.Where(`editions.state IS NULL OR CASE
			WHEN EXISTS (
				SELECT 1 FROM editions AS drafts
				WHERE drafts.document_id = documents.id AND drafts.state = 'draft'
			) THEN editions.state = 'draft'
			ELSE editions.state IN ('published', 'unpublished')
		END`)
	}
	return q.Where("editions.state IS NULL OR editions.state IN ('published', 'unpublished')")
}

func linkTypeStrings(types []domain.LinkType) []string {
	out := make([]string, len(types))
	for i, lt := range types {
		out[i] = string(lt)
	}
	return out
}
