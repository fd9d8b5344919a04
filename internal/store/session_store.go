package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// SessionStore provides session persistence.
type SessionStore struct {
	store *Store
}

// NewSessionStore creates a new session store.
func NewSessionStore(store *Store) *SessionStore {
	return &SessionStore{store: store}
}

// Create inserts a new session in the setup stage.
func (s *SessionStore) Create(ctx context.Context, projectID string) (*models.AnalysisSession, error) {
	row := Session{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Stage:     string(models.StageSetup),
		Status:    string(models.StatusIdle),
		Depth:     string(models.DepthStandard),
	}
	if err := s.store.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return sessionToDomain(&row), nil
}

// Get returns a session by ID, or nil when not found.
func (s *SessionStore) Get(ctx context.Context, id string) (*models.AnalysisSession, error) {
	var row Session
	err := s.store.DB.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sessionToDomain(&row), nil
}

// Save persists the mutable session fields (stage, status, provider
// configuration, archive flag).
func (s *SessionStore) Save(ctx context.Context, sess *models.AnalysisSession) error {
	return s.store.DB.WithContext(ctx).Model(&Session{}).
		Where("id = ?", sess.ID).
		Updates(map[string]any{
			"stage":      string(sess.Stage),
			"status":     string(sess.Status),
			"provider":   string(sess.Provider),
			"model":      sess.Model,
			"depth":      string(sess.Depth),
			"archived":   sess.Archived,
			"updated_at": time.Now(),
		}).Error
}

// Archive soft-archives a session. Sessions are never hard-deleted.
func (s *SessionStore) Archive(ctx context.Context, id string) error {
	return s.store.DB.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Updates(map[string]any{"archived": true, "updated_at": time.Now()}).Error
}

// ListByProject returns the non-archived sessions of a project, newest first.
func (s *SessionStore) ListByProject(ctx context.Context, projectID string) ([]*models.AnalysisSession, error) {
	var rows []Session
	err := s.store.DB.WithContext(ctx).
		Where("project_id = ? AND archived = ?", projectID, false).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*models.AnalysisSession, 0, len(rows))
	for i := range rows {
		out = append(out, sessionToDomain(&rows[i]))
	}
	return out, nil
}

func sessionToDomain(row *Session) *models.AnalysisSession {
	return &models.AnalysisSession{
		ID:        row.ID,
		ProjectID: row.ProjectID,
		Stage:     models.Stage(row.Stage),
		Status:    models.SessionStatus(row.Status),
		Provider:  models.Provider(row.Provider),
		Model:     row.Model,
		Depth:     models.Depth(row.Depth),
		Archived:  row.Archived,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
