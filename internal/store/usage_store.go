package store

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// UsageStore persists the append-only usage log and the quota grant trail.
type UsageStore struct {
	store *Store
}

// NewUsageStore creates a new usage store.
func NewUsageStore(store *Store) *UsageStore {
	return &UsageStore{store: store}
}

// Record upserts one usage record into its (user, provider, model, date,
// hour) bucket. Hitting an existing bucket accumulates counts, so replaying
// a record after a crash never produces a duplicate row.
func (s *UsageStore) Record(ctx context.Context, rec models.UsageRecord) error {
	row := UsageRecord{
		UserID:       rec.UserID,
		Provider:     string(rec.Provider),
		Model:        rec.Model,
		Date:         rec.Date,
		Hour:         rec.Hour,
		Requests:     rec.Requests,
		InputTokens:  rec.InputTokens,
		OutputTokens: rec.OutputTokens,
		TotalTokens:  rec.TotalTokens,
		Cost:         rec.Cost,
		Success:      rec.Success,
		Endpoint:     rec.Endpoint,
	}
	if row.Requests == 0 {
		row.Requests = 1
	}
	if row.TotalTokens == 0 {
		row.TotalTokens = row.InputTokens + row.OutputTokens
	}

	return s.store.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "provider"}, {Name: "model"},
			{Name: "date"}, {Name: "hour"},
		},
		DoUpdates: clause.Assignments(map[string]any{
			"requests":      clause.Expr{SQL: "requests + ?", Vars: []any{row.Requests}},
			"input_tokens":  clause.Expr{SQL: "input_tokens + ?", Vars: []any{row.InputTokens}},
			"output_tokens": clause.Expr{SQL: "output_tokens + ?", Vars: []any{row.OutputTokens}},
			"total_tokens":  clause.Expr{SQL: "total_tokens + ?", Vars: []any{row.TotalTokens}},
			"cost":          clause.Expr{SQL: "cost + ?", Vars: []any{row.Cost}},
		}),
	}).Create(&row).Error
}

// SumRequests returns the total request count for a user across the
// inclusive [from, to] date range. Quota math is always recomputed from the
// log, never maintained incrementally.
func (s *UsageStore) SumRequests(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var total int64
	err := s.store.DB.WithContext(ctx).Model(&UsageRecord{}).
		Where("user_id = ? AND date >= ? AND date <= ?",
			userID, from.Format("2006-01-02"), to.Format("2006-01-02")).
		Select("COALESCE(SUM(requests), 0)").
		Scan(&total).Error
	return int(total), err
}

// Range returns the raw usage records for a user across a date range,
// ordered by date and hour. Used for reporting.
func (s *UsageStore) Range(ctx context.Context, userID string, from, to time.Time) ([]models.UsageRecord, error) {
	var rows []UsageRecord
	err := s.store.DB.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?",
			userID, from.Format("2006-01-02"), to.Format("2006-01-02")).
		Order("date ASC, hour ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.UsageRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.UsageRecord{
			UserID:       r.UserID,
			Provider:     models.Provider(r.Provider),
			Model:        r.Model,
			Date:         r.Date,
			Hour:         r.Hour,
			Requests:     r.Requests,
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			TotalTokens:  r.TotalTokens,
			Cost:         r.Cost,
			Success:      r.Success,
			Endpoint:     r.Endpoint,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out, nil
}

// AddGrant appends one quota grant to the audit trail.
func (s *UsageStore) AddGrant(ctx context.Context, g models.QuotaGrant) error {
	return s.store.DB.WithContext(ctx).Create(&QuotaGrant{
		UserID:    g.UserID,
		Amount:    g.Amount,
		GrantedBy: g.GrantedBy,
		Reason:    g.Reason,
	}).Error
}

// Grants returns the full grant trail for a user, oldest first.
func (s *UsageStore) Grants(ctx context.Context, userID string) ([]models.QuotaGrant, error) {
	var rows []QuotaGrant
	err := s.store.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.QuotaGrant, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.QuotaGrant{
			UserID:    r.UserID,
			Amount:    r.Amount,
			GrantedBy: r.GrantedBy,
			Reason:    r.Reason,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
