package store

import (
	"context"
	"database/sql"
	"errors"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// ResultStore persists analysis and report artifacts.
type ResultStore struct {
	store *Store
}

// NewResultStore creates a new result store.
func NewResultStore(store *Store) *ResultStore {
	return &ResultStore{store: store}
}

// Save inserts a new artifact row. Existing rows are never updated; a
// re-analysis supersedes by inserting a newer row.
func (s *ResultStore) Save(ctx context.Context, r *models.AnalysisResult) (*models.AnalysisResult, error) {
	row, err := resultFromDomain(r)
	if err != nil {
		return nil, err
	}
	if err := s.store.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return resultToDomain(&row)
}

// Latest returns the newest artifact of the given kind for a session, or nil.
func (s *ResultStore) Latest(ctx context.Context, sessionID string, kind models.ResultKind) (*models.AnalysisResult, error) {
	var row Result
	err := s.store.DB.WithContext(ctx).
		Where("session_id = ? AND kind = ?", sessionID, string(kind)).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resultToDomain(&row)
}

func resultFromDomain(r *models.AnalysisResult) (Result, error) {
	id := r.ID
	if id == "" {
		id = uuid.New().String()
	}
	risks, err := json.Marshal(r.Risks)
	if err != nil {
		return Result{}, err
	}
	timeline, err := json.Marshal(r.Timeline)
	if err != nil {
		return Result{}, err
	}
	return Result{
		ID:              id,
		SessionID:       r.SessionID,
		Kind:            string(r.Kind),
		Summary:         r.Summary,
		KeyFindings:     r.KeyFindings,
		Risks:           string(risks),
		Recommendations: r.Recommendations,
		Timeline:        string(timeline),
		ParseError:      r.ParseError,
		ErrorMessage:    sql.NullString{String: r.ErrorMessage, Valid: r.ErrorMessage != ""},
		Provider:        string(r.Provider),
		Model:           r.Model,
		CreatedAt:       r.CreatedAt,
	}, nil
}

func resultToDomain(row *Result) (*models.AnalysisResult, error) {
	var risks []models.Risk
	if row.Risks != "" {
		if err := json.Unmarshal([]byte(row.Risks), &risks); err != nil {
			return nil, err
		}
	}
	var timeline []models.TimelinePhase
	if row.Timeline != "" {
		if err := json.Unmarshal([]byte(row.Timeline), &timeline); err != nil {
			return nil, err
		}
	}
	return &models.AnalysisResult{
		ID:              row.ID,
		SessionID:       row.SessionID,
		Kind:            models.ResultKind(row.Kind),
		Summary:         row.Summary,
		KeyFindings:     row.KeyFindings,
		Risks:           risks,
		Recommendations: row.Recommendations,
		Timeline:        timeline,
		ParseError:      row.ParseError,
		ErrorMessage:    row.ErrorMessage.String,
		Provider:        models.Provider(row.Provider),
		Model:           row.Model,
		CreatedAt:       row.CreatedAt,
	}, nil
}
