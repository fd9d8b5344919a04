package store

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// GORM models. JSON-shaped columns use the Scanner/Valuer types from
// pkg/models and are stored as TEXT.

// Session is the persisted analysis session row.
type Session struct {
	ID        string `gorm:"primaryKey"`
	ProjectID string `gorm:"index;not null"`
	Stage     string `gorm:"type:text;check:stage IN ('setup','analysis','questions','report');default:'setup';index"`
	Status    string `gorm:"type:text;check:status IN ('idle','processing','completed','failed');default:'idle';index"`
	Provider  string
	Model     string
	Depth     string `gorm:"default:'standard'"`
	Archived  bool   `gorm:"default:false;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Session) TableName() string { return "analysis_sessions" }

// Question is a persisted generated (or static default) question.
type Question struct {
	ID          string `gorm:"primaryKey"`
	SessionID   string `gorm:"index;not null"`
	Category    string
	Text        string `gorm:"not null"`
	Type        string `gorm:"type:text;check:type IN ('text','textarea','select','multiselect','number');default:'text'"`
	Options     models.JSONStringArray `gorm:"type:text"`
	Required    bool                   `gorm:"default:false"`
	HelpText    string
	Priority    int     `gorm:"default:0"`
	Confidence  float64 `gorm:"type:real;default:0"`
	AIGenerated bool    `gorm:"default:false"`
	CreatedAt   time.Time
}

func (Question) TableName() string { return "questions" }

// Answer is the single per-question answer row, last-write-wins.
type Answer struct {
	ID          string           `gorm:"primaryKey"`
	QuestionID  string           `gorm:"uniqueIndex;not null"`
	SessionID   string           `gorm:"index;not null"`
	Value       models.JSONValue `gorm:"type:text"`
	Confidence  int              `gorm:"default:5"`
	Draft       bool             `gorm:"default:false"`
	Notes       string
	Attachments models.JSONStringArray `gorm:"type:text"`
	UpdatedAt   time.Time
}

func (Answer) TableName() string { return "answers" }

// Result is a persisted analysis or report artifact. Superseded rows stay in
// place; the newest row per (session, kind) is the current artifact.
type Result struct {
	ID              string `gorm:"primaryKey"`
	SessionID       string `gorm:"index:idx_results_session_kind,priority:1;not null"`
	Kind            string `gorm:"index:idx_results_session_kind,priority:2;type:text;check:kind IN ('analysis','report');default:'analysis'"`
	Summary         string
	KeyFindings     models.JSONStringArray `gorm:"type:text"`
	Risks           string                 `gorm:"type:text"` // JSON array of models.Risk
	Recommendations models.JSONStringArray `gorm:"type:text"`
	Timeline        string                 `gorm:"type:text"` // JSON array of models.TimelinePhase
	ParseError      bool                   `gorm:"default:false"`
	ErrorMessage    sql.NullString
	Provider        string
	Model           string
	CreatedAt       time.Time `gorm:"index"`
}

func (Result) TableName() string { return "analysis_results" }

// UsageRecord is one append-only usage log row, unique per
// (user, provider, model, date, hour) bucket so re-recording is idempotent.
type UsageRecord struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	UserID       string `gorm:"uniqueIndex:idx_usage_bucket,priority:1;index;not null"`
	Provider     string `gorm:"uniqueIndex:idx_usage_bucket,priority:2;not null"`
	Model        string `gorm:"uniqueIndex:idx_usage_bucket,priority:3;not null"`
	Date         string `gorm:"uniqueIndex:idx_usage_bucket,priority:4;index;not null"` // YYYY-MM-DD
	Hour         int    `gorm:"uniqueIndex:idx_usage_bucket,priority:5;not null"`
	Requests     int    `gorm:"default:0"`
	InputTokens  int    `gorm:"default:0"`
	OutputTokens int    `gorm:"default:0"`
	TotalTokens  int    `gorm:"default:0"`
	Cost         float64 `gorm:"type:real;default:0"`
	Success      bool    `gorm:"default:true"`
	Endpoint     string
	CreatedAt    time.Time
}

func (UsageRecord) TableName() string { return "usage_records" }

// QuotaGrant is one audit-trail entry for additional quota.
type QuotaGrant struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"index;not null"`
	Amount    int    `gorm:"not null"`
	GrantedBy string
	Reason    string
	CreatedAt time.Time
}

func (QuotaGrant) TableName() string { return "quota_grants" }

// BeforeCreate hooks keep timestamps set even when callers skip them.

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	return nil
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	return nil
}

func (r *Result) BeforeCreate(tx *gorm.DB) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return nil
}

func (u *UsageRecord) BeforeCreate(tx *gorm.DB) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	return nil
}

func (g *QuotaGrant) BeforeCreate(tx *gorm.DB) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	return nil
}
