package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// QuestionStore provides question and answer persistence.
type QuestionStore struct {
	store *Store
}

// NewQuestionStore creates a new question store.
func NewQuestionStore(store *Store) *QuestionStore {
	return &QuestionStore{store: store}
}

// Replace atomically swaps a session's questions: prior answers are deleted
// first, then prior questions, then the new set is inserted, all in one
// transaction so question and answer IDs can never disagree.
func (s *QuestionStore) Replace(ctx context.Context, sessionID string, questions []models.Question) ([]models.Question, error) {
	inserted := make([]models.Question, 0, len(questions))

	err := s.store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&Question{}).Error; err != nil {
			return err
		}
		for _, q := range questions {
			row := questionFromDomain(sessionID, q)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			inserted = append(inserted, *questionToDomain(&row))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// BySession returns a session's questions ordered by priority.
func (s *QuestionStore) BySession(ctx context.Context, sessionID string) ([]models.Question, error) {
	var rows []Question
	err := s.store.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("priority DESC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Question, 0, len(rows))
	for i := range rows {
		out = append(out, *questionToDomain(&rows[i]))
	}
	return out, nil
}

// Get returns one question by ID, or nil when not found.
func (s *QuestionStore) Get(ctx context.Context, id string) (*models.Question, error) {
	var row Question
	err := s.store.DB.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return questionToDomain(&row), nil
}

// UpsertAnswer writes the single answer for a question, last-write-wins.
// There is no version check: a session has a single human writer.
func (s *QuestionStore) UpsertAnswer(ctx context.Context, a models.Answer) (*models.Answer, error) {
	row := Answer{
		ID:          a.ID,
		QuestionID:  a.QuestionID,
		SessionID:   a.SessionID,
		Value:       models.JSONValue{V: a.Value},
		Confidence:  a.Confidence,
		Draft:       a.Draft,
		Notes:       a.Notes,
		Attachments: a.Attachments,
		UpdatedAt:   time.Now(),
	}
	if row.ID == "" {
		row.ID = uuid.New().String()
	}

	err := s.store.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value", "confidence", "draft", "notes", "attachments", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}

	stored, err := s.AnswerFor(ctx, a.QuestionID)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// AnswerFor returns the answer for a question, or nil when unanswered.
func (s *QuestionStore) AnswerFor(ctx context.Context, questionID string) (*models.Answer, error) {
	var row Answer
	err := s.store.DB.WithContext(ctx).First(&row, "question_id = ?", questionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return answerToDomain(&row), nil
}

// AnswersBySession returns all answers of a session keyed by question ID.
func (s *QuestionStore) AnswersBySession(ctx context.Context, sessionID string) (map[string]*models.Answer, error) {
	var rows []Answer
	err := s.store.DB.WithContext(ctx).Where("session_id = ?", sessionID).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.Answer, len(rows))
	for i := range rows {
		out[rows[i].QuestionID] = answerToDomain(&rows[i])
	}
	return out, nil
}

func questionFromDomain(sessionID string, q models.Question) Question {
	id := q.ID
	if id == "" {
		id = uuid.New().String()
	}
	return Question{
		ID:          id,
		SessionID:   sessionID,
		Category:    q.Category,
		Text:        q.Text,
		Type:        string(q.Type),
		Options:     q.Options,
		Required:    q.Required,
		HelpText:    q.HelpText,
		Priority:    q.Priority,
		Confidence:  q.Confidence,
		AIGenerated: q.AIGenerated,
	}
}

func questionToDomain(row *Question) *models.Question {
	return &models.Question{
		ID:          row.ID,
		SessionID:   row.SessionID,
		Category:    row.Category,
		Text:        row.Text,
		Type:        models.InputType(row.Type),
		Options:     row.Options,
		Required:    row.Required,
		HelpText:    row.HelpText,
		Priority:    row.Priority,
		Confidence:  row.Confidence,
		AIGenerated: row.AIGenerated,
		CreatedAt:   row.CreatedAt,
	}
}

func answerToDomain(row *Answer) *models.Answer {
	return &models.Answer{
		ID:          row.ID,
		QuestionID:  row.QuestionID,
		SessionID:   row.SessionID,
		Value:       row.Value.V,
		Confidence:  row.Confidence,
		Draft:       row.Draft,
		Notes:       row.Notes,
		Attachments: row.Attachments,
		UpdatedAt:   row.UpdatedAt,
	}
}
