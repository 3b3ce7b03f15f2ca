package models

import (
	"time"
)

type Document struct {
	ID               int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ContentID        string    `json:"content_id" gorm:"type:uuid;not null;uniqueIndex:idx_documents_content_id_locale"`
	Locale           string    `json:"locale" gorm:"type:text;not null;uniqueIndex:idx_documents_content_id_locale"`
	StaleLockVersion int64     `json:"stale_lock_version" gorm:"not null;default:0"`
	CDate            time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Edition struct {
	ID                int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	DocumentID        int64      `json:"document_id" gorm:"index;not null"`
	Document          Document   `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	UserFacingVersion int        `json:"user_facing_version" gorm:"not null"`
	State             string     `json:"state" gorm:"type:text;index;not null"`
	ContentStore      *string    `json:"content_store" gorm:"type:text;index"`
	BasePath          *string    `json:"base_path" gorm:"type:text;index"`
	Title             string     `json:"title" gorm:"type:text"`
	Description       string     `json:"description" gorm:"type:text"`
	DocumentType      string     `json:"document_type" gorm:"type:text;index"`
	SchemaName        string     `json:"schema_name" gorm:"type:text"`
	AnalyticsID       string     `json:"analytics_identifier" gorm:"column:analytics_identifier;type:text"`
	UpdateType        string     `json:"update_type" gorm:"type:text"`
	Details           string     `json:"details" gorm:"type:jsonb;default:'{}'"`
	PublicUpdatedAt   *time.Time `json:"public_updated_at" gorm:"type:timestamp with time zone"`
	FirstPublishedAt  *time.Time `json:"first_published_at" gorm:"type:timestamp with time zone"`
	LastEditedAt      *time.Time `json:"last_edited_at" gorm:"type:timestamp with time zone"`
	CDate             time.Time  `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type LinkSet struct {
	ID               int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	ContentID        string `json:"content_id" gorm:"type:uuid;not null;uniqueIndex"`
	StaleLockVersion int64  `json:"stale_lock_version" gorm:"not null;default:0"`
}

type Link struct {
	ID              int64    `json:"id" gorm:"primaryKey;autoIncrement"`
	EditionID       *int64   `json:"edition_id" gorm:"index"`
	Edition         *Edition `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	LinkSetID       *int64   `json:"link_set_id" gorm:"index"`
	LinkSet         *LinkSet `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	LinkType        string   `json:"link_type" gorm:"type:text;index;not null"`
	TargetContentID string   `json:"target_content_id" gorm:"type:uuid;index;not null"`
	Position        int      `json:"position" gorm:"not null;default:0"`
}

type AccessLimit struct {
	ID        int64   `json:"id" gorm:"primaryKey;autoIncrement"`
	EditionID int64   `json:"edition_id" gorm:"uniqueIndex;not null"`
	Edition   Edition `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	Users     string  `json:"users" gorm:"type:jsonb;default:'[]'"`
	BypassIDs string  `json:"bypass_ids" gorm:"type:jsonb;default:'[]'"`
}

type ChangeNote struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	EditionID       int64     `json:"edition_id" gorm:"index;not null"`
	Edition         Edition   `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	Note            string    `json:"note" gorm:"type:text"`
	PublicTimestamp time.Time `json:"public_timestamp" gorm:"type:timestamp with time zone"`
}

type Unpublishing struct {
	ID              int64   `json:"id" gorm:"primaryKey;autoIncrement"`
	EditionID       int64   `json:"edition_id" gorm:"uniqueIndex;not null"`
	Edition         Edition `json:"-" gorm:"constraint:OnDelete:CASCADE;"`
	Type            string  `json:"type" gorm:"type:text;index;not null"`
	Explanation     string  `json:"explanation" gorm:"type:text"`
	AlternativePath string  `json:"alternative_path" gorm:"type:text"`
}

// Event is the append-only audit log. Its monotonic id doubles as the
// downstream payload version.
type Event struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Action    string    `json:"action" gorm:"type:text;not null"`
	ContentID string    `json:"content_id" gorm:"type:text;index"`
	Locale    string    `json:"locale" gorm:"type:text"`
	CDate     time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
