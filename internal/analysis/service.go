// Package analysis orchestrates the AI pipeline: it builds prompts, issues
// provider calls under stage-specific timeouts, extracts structured output,
// accounts usage and cost, and moves sessions through their stages.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Donggull/ea-plan-05-sub006/internal/pricing"
	"github.com/Donggull/ea-plan-05-sub006/internal/promptengine"
	"github.com/Donggull/ea-plan-05-sub006/internal/provider"
	"github.com/Donggull/ea-plan-05-sub006/internal/session"
	"github.com/Donggull/ea-plan-05-sub006/internal/telemetry"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// ErrSessionNotFound is returned when an operation references an unknown
// session.
var ErrSessionNotFound = errors.New("analysis: session not found")

// SessionStore is the session persistence the service needs.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.AnalysisSession, error)
	Save(ctx context.Context, sess *models.AnalysisSession) error
}

// QuestionStore is the question persistence the service needs. Replace swaps
// a session's questions and their answers in one transaction.
type QuestionStore interface {
	Replace(ctx context.Context, sessionID string, questions []models.Question) ([]models.Question, error)
	BySession(ctx context.Context, sessionID string) ([]models.Question, error)
	AnswersBySession(ctx context.Context, sessionID string) (map[string]*models.Answer, error)
}

// ResultStore is the analysis-artifact persistence the service needs.
type ResultStore interface {
	Save(ctx context.Context, r *models.AnalysisResult) (*models.AnalysisResult, error)
	Latest(ctx context.Context, sessionID string, kind models.ResultKind) (*models.AnalysisResult, error)
}

// UsageStore records per-bucket usage rows.
type UsageStore interface {
	Record(ctx context.Context, rec models.UsageRecord) error
}

// Authorizer gates requests on quota before any provider budget is spent.
type Authorizer interface {
	Authorize(ctx context.Context, userID, role string) error
}

// Config wires a Service.
type Config struct {
	Registry  *provider.Registry
	Engine    *promptengine.Engine
	Pricing   *pricing.Table
	Quota     Authorizer
	Sessions  SessionStore
	Questions QuestionStore
	Results   ResultStore
	Usage     UsageStore
	Machine   *session.Machine
	Metrics   *telemetry.Metrics
}

// Service is the pipeline orchestrator. Safe for concurrent use across
// sessions; callers are expected to be single-writer per session.
type Service struct {
	registry  *provider.Registry
	engine    *promptengine.Engine
	pricing   *pricing.Table
	quota     Authorizer
	sessions  SessionStore
	questions QuestionStore
	results   ResultStore
	usage     UsageStore
	machine   *session.Machine
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// NewService creates the orchestrator. Engine and Machine default when nil;
// Quota, Usage and Metrics are optional.
func NewService(cfg Config) *Service {
	s := &Service{
		registry:  cfg.Registry,
		engine:    cfg.Engine,
		pricing:   cfg.Pricing,
		quota:     cfg.Quota,
		sessions:  cfg.Sessions,
		questions: cfg.Questions,
		results:   cfg.Results,
		usage:     cfg.Usage,
		machine:   cfg.Machine,
		metrics:   cfg.Metrics,
		now:       time.Now,
	}
	if s.engine == nil {
		s.engine = promptengine.New()
	}
	if s.machine == nil {
		s.machine = session.New()
	}
	if s.pricing == nil {
		s.pricing = pricing.NewTable()
	}
	return s
}

// Machine exposes the state machine for progress queries.
func (s *Service) Machine() *session.Machine { return s.machine }

// CompletionInput is a direct pass-through completion request.
type CompletionInput struct {
	UserID      string
	Role        string
	Provider    models.Provider
	Model       string
	Prompt      string
	Messages    []provider.Message
	MaxTokens   int
	Temperature float32
	TopP        float32
	Timeout     time.Duration
	Endpoint    string
}

// CompletionResult carries the provider output plus accounting.
type CompletionResult struct {
	Content      string
	Usage        models.Usage
	Cost         float64
	Model        string
	FinishReason string
	ResponseTime time.Duration
}

// Complete issues one provider call with quota gating and usage accounting.
// Usage is recorded only when the call succeeds.
func (s *Service) Complete(ctx context.Context, in CompletionInput) (*CompletionResult, error) {
	if err := s.authorize(ctx, in.UserID, in.Role); err != nil {
		return nil, err
	}
	client, err := s.registry.Get(in.Provider)
	if err != nil {
		return nil, err
	}

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = provider.ShortTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := s.now()
	resp, err := client.Complete(callCtx, provider.Request{
		Model:       in.Model,
		Prompt:      in.Prompt,
		Messages:    in.Messages,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
		TopP:        in.TopP,
	})
	elapsed := s.now().Sub(started)
	if err != nil {
		s.metrics.RecordFailure(ctx, in.Provider, in.Model)
		log.Warn().Err(err).
			Str("provider", string(in.Provider)).
			Str("model", in.Model).
			Msg("Provider call failed")
		return nil, err
	}

	cost := pricing.Cost(s.pricing.Lookup(in.Provider, in.Model), resp.Usage)
	s.recordUsage(ctx, in.UserID, in.Provider, resp.Model, resp.Usage, cost, in.Endpoint)
	s.metrics.RecordCall(ctx, in.Provider, resp.Model, resp.Usage, cost)

	log.Info().
		Str("provider", string(in.Provider)).
		Str("model", resp.Model).
		Int("total_tokens", resp.Usage.Total()).
		Float64("cost", cost).
		Dur("elapsed", elapsed).
		Msg("Completion served")

	return &CompletionResult{
		Content:      resp.Content,
		Usage:        resp.Usage,
		Cost:         cost,
		Model:        resp.Model,
		FinishReason: resp.FinishReason,
		ResponseTime: elapsed,
	}, nil
}

func (s *Service) authorize(ctx context.Context, userID, role string) error {
	if s.quota == nil || userID == "" {
		return nil
	}
	return s.quota.Authorize(ctx, userID, role)
}

// recordUsage writes one usage bucket row. Failures are logged, not
// propagated: accounting must never fail a served request.
func (s *Service) recordUsage(ctx context.Context, userID string, p models.Provider, model string, usage models.Usage, cost float64, endpoint string) {
	if s.usage == nil || userID == "" {
		return
	}
	now := s.now().UTC()
	rec := models.UsageRecord{
		UserID:       userID,
		Provider:     p,
		Model:        model,
		Date:         now.Format("2006-01-02"),
		Hour:         now.Hour(),
		Requests:     1,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.Total(),
		Cost:         cost,
		Success:      true,
		Endpoint:     endpoint,
	}
	if err := s.usage.Record(ctx, rec); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to record usage")
	}
}

func (s *Service) loadSession(ctx context.Context, id string) (*models.AnalysisSession, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// saveStatus persists a status flip, logging on failure. Transition failures
// after a successful provider call must not lose the artifact.
func (s *Service) saveStatus(ctx context.Context, sess *models.AnalysisSession) {
	if err := s.sessions.Save(ctx, sess); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to persist session state")
	}
}
