// Package quota enforces per-user daily and monthly request ceilings.
//
// Counters are never maintained incrementally: every check recomputes usage
// from the append-only usage log filtered by date range, so a crash or
// replay can never leave the counters out of sync with the log.
package quota

import (
	"context"
	"errors"
	"time"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// Unlimited is the sentinel quota value meaning no ceiling.
const Unlimited = -1

// ErrExceeded blocks a request before any provider budget is spent.
var ErrExceeded = errors.New("quota exceeded")

// Limits are a user's request ceilings. Unlimited disables a ceiling.
type Limits struct {
	Daily   int `yaml:"daily"`
	Monthly int `yaml:"monthly"`
}

// UsageSource is the slice of the persistence layer the governor reads.
type UsageSource interface {
	SumRequests(ctx context.Context, userID string, from, to time.Time) (int, error)
	AddGrant(ctx context.Context, g models.QuotaGrant) error
	Grants(ctx context.Context, userID string) ([]models.QuotaGrant, error)
}

// Governor evaluates users against their role-derived ceilings plus any
// additional grants.
type Governor struct {
	usage    UsageSource
	roles    map[string]Limits
	defaults Limits
	now      func() time.Time
}

// NewGovernor creates a governor. roles maps role names to ceilings; users
// with an unknown role get defaults.
func NewGovernor(usage UsageSource, roles map[string]Limits, defaults Limits) *Governor {
	return &Governor{usage: usage, roles: roles, defaults: defaults, now: time.Now}
}

// limitsFor resolves the effective ceilings: role base plus grants.
// Each granted unit raises the daily ceiling by the grant amount and the
// monthly ceiling by thirty times the amount.
func (g *Governor) limitsFor(ctx context.Context, userID, role string) (Limits, error) {
	base, ok := g.roles[role]
	if !ok {
		base = g.defaults
	}
	if base.Daily == Unlimited || base.Monthly == Unlimited {
		return Limits{Daily: Unlimited, Monthly: Unlimited}, nil
	}

	grants, err := g.usage.Grants(ctx, userID)
	if err != nil {
		return Limits{}, err
	}
	for _, gr := range grants {
		base.Daily += gr.Amount
		base.Monthly += gr.Amount * 30
	}
	return base, nil
}

// GetQuotaInfo returns the full quota snapshot for a user.
func (g *Governor) GetQuotaInfo(ctx context.Context, userID, role string) (models.QuotaInfo, error) {
	limits, err := g.limitsFor(ctx, userID, role)
	if err != nil {
		return models.QuotaInfo{}, err
	}

	if limits.Daily == Unlimited {
		return models.QuotaInfo{
			DailyQuota:       Unlimited,
			MonthlyQuota:     Unlimited,
			DailyRemaining:   Unlimited,
			MonthlyRemaining: Unlimited,
			IsUnlimited:      true,
		}, nil
	}

	// Usage rows are bucketed by UTC date, so the windows must be too.
	now := g.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	dailyUsed, err := g.usage.SumRequests(ctx, userID, today, now)
	if err != nil {
		return models.QuotaInfo{}, err
	}
	monthlyUsed, err := g.usage.SumRequests(ctx, userID, monthStart, now)
	if err != nil {
		return models.QuotaInfo{}, err
	}

	return models.QuotaInfo{
		DailyQuota:       limits.Daily,
		MonthlyQuota:     limits.Monthly,
		DailyUsed:        dailyUsed,
		MonthlyUsed:      monthlyUsed,
		DailyRemaining:   maxInt(limits.Daily-dailyUsed, 0),
		MonthlyRemaining: maxInt(limits.Monthly-monthlyUsed, 0),
	}, nil
}

// CheckExceeded evaluates whether the user can make another request.
func (g *Governor) CheckExceeded(ctx context.Context, userID, role string) (models.QuotaCheck, error) {
	info, err := g.GetQuotaInfo(ctx, userID, role)
	if err != nil {
		return models.QuotaCheck{}, err
	}
	if info.IsUnlimited {
		return models.QuotaCheck{CanMakeRequest: true}, nil
	}
	check := models.QuotaCheck{
		DailyExceeded:   info.DailyUsed >= info.DailyQuota,
		MonthlyExceeded: info.MonthlyUsed >= info.MonthlyQuota,
	}
	check.CanMakeRequest = !check.DailyExceeded && !check.MonthlyExceeded
	return check, nil
}

// Authorize returns ErrExceeded when the user is over either ceiling.
// Called before any provider call is issued.
func (g *Governor) Authorize(ctx context.Context, userID, role string) error {
	check, err := g.CheckExceeded(ctx, userID, role)
	if err != nil {
		return err
	}
	if !check.CanMakeRequest {
		return ErrExceeded
	}
	return nil
}

// GrantAdditional appends an audit-trail entry raising the user's ceilings.
func (g *Governor) GrantAdditional(ctx context.Context, userID string, amount int, grantedBy, reason string) error {
	if amount <= 0 {
		return errors.New("grant amount must be positive")
	}
	return g.usage.AddGrant(ctx, models.QuotaGrant{
		UserID:    userID,
		Amount:    amount,
		GrantedBy: grantedBy,
		Reason:    reason,
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
