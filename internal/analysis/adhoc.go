package analysis

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Donggull/ea-plan-05-sub006/internal/pricing"
	"github.com/Donggull/ea-plan-05-sub006/internal/promptengine"
	"github.com/Donggull/ea-plan-05-sub006/internal/provider"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// AdhocInput is a sessionless question-generation request.
type AdhocInput struct {
	UserID             string
	Role               string
	Provider           models.Provider
	Model              string
	Depth              models.Depth
	Project            promptengine.ProjectInput
	PreAnalysisSummary string
}

// AdhocQuestions generates questions without a session. Nothing is
// persisted; parse failures still resolve to the static default set.
func (s *Service) AdhocQuestions(ctx context.Context, in AdhocInput) (*QuestionsOutput, error) {
	if err := s.authorize(ctx, in.UserID, in.Role); err != nil {
		return nil, err
	}
	client, err := s.registry.Get(in.Provider)
	if err != nil {
		return nil, err
	}

	var prior *models.AnalysisResult
	if in.PreAnalysisSummary != "" {
		prior = &models.AnalysisResult{Summary: in.PreAnalysisSummary}
	}
	msgs := s.engine.Questions(in.Project, prior, in.Depth)
	settings := promptengine.SettingsFor(in.Depth)

	started := s.now()
	callCtx, cancel := context.WithTimeout(ctx, provider.ShortTimeout)
	defer cancel()
	resp, err := client.Complete(callCtx, provider.Request{
		Model:       in.Model,
		Messages:    toProviderMessages(msgs),
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
		TopP:        settings.TopP,
	})
	elapsed := s.now().Sub(started)
	if err != nil {
		s.metrics.RecordFailure(ctx, in.Provider, in.Model)
		return nil, err
	}

	cost := pricing.Cost(s.pricing.Lookup(in.Provider, in.Model), resp.Usage)
	s.recordUsage(ctx, in.UserID, in.Provider, resp.Model, resp.Usage, cost, "questions")
	s.metrics.RecordCall(ctx, in.Provider, resp.Model, resp.Usage, cost)

	questions := decodeQuestions("", resp.Content)
	log.Info().
		Str("provider", string(in.Provider)).
		Int("questions", len(questions)).
		Msg("Ad hoc questions generated")
	return &QuestionsOutput{
		Questions:    questions,
		Regenerated:  true,
		Usage:        resp.Usage,
		Cost:         cost,
		Model:        resp.Model,
		ResponseTime: elapsed,
	}, nil
}
