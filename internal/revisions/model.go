package revisions

import (
	"time"

	"github.com/peterolson/dong-chinese-v2-sub000/internal/characters"
	"gorm.io/datatypes"
)

// Status is the review state of a revision.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Revision is one proposed or decided edit of a character. It stores a full snapshot of
// the editable fields; ChangedFields names the ones the editor actually touched and is
// nil only for legacy rows.
type Revision struct {
	ID        string `gorm:"column:id;primaryKey;size:36" json:"id"`
	Character string `gorm:"column:hanzi;size:16;not null;index:idx_character_revisions_hanzi_created,priority:1" json:"character"`
	characters.Fields
	ChangedFields      datatypes.JSONSlice[characters.FieldName] `gorm:"column:changed_fields" json:"changedFields"`
	Status             Status                                    `gorm:"column:status;size:16;not null;index" json:"status"`
	UserID             *string                                   `gorm:"column:user_id;size:190;index" json:"userId"`
	AnonymousSessionID *string                                   `gorm:"column:anonymous_session_id;size:190;index" json:"anonymousSessionId"`
	Comment            string                                    `gorm:"column:comment;not null;default:''" json:"comment"`
	Reviewer           *string                                   `gorm:"column:reviewer;size:190" json:"reviewer"`
	ReviewedAt         *time.Time                                `gorm:"column:reviewed_at" json:"reviewedAt"`
	ReviewComment      *string                                   `gorm:"column:review_comment" json:"reviewComment"`
	CreatedAt          time.Time                                 `gorm:"column:created_at;not null;index:idx_character_revisions_hanzi_created,priority:2;autoCreateTime:false" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (Revision) TableName() string {
	return "character_revisions"
}

// EditorIdentity identifies who proposed an edit: an authenticated user, an anonymous session, or both.
type EditorIdentity struct {
	UserID             string
	AnonymousSessionID string
}

// Authenticated reports whether the editor carries a user id.
func (identity EditorIdentity) Authenticated() bool {
	return identity.UserID != ""
}

func (identity EditorIdentity) empty() bool {
	return identity.UserID == "" && identity.AnonymousSessionID == ""
}

func (identity EditorIdentity) owns(revision Revision) bool {
	if identity.UserID != "" && revision.UserID != nil && *revision.UserID == identity.UserID {
		return true
	}
	return identity.AnonymousSessionID != "" && revision.AnonymousSessionID != nil &&
		*revision.AnonymousSessionID == identity.AnonymousSessionID
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
