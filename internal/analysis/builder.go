package analysis

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Donggull/ea-plan-05-sub006/internal/contextcache"
	"github.com/Donggull/ea-plan-05-sub006/internal/extract"
	"github.com/Donggull/ea-plan-05-sub006/internal/pricing"
	"github.com/Donggull/ea-plan-05-sub006/internal/promptengine"
	"github.com/Donggull/ea-plan-05-sub006/internal/provider"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// ProjectResolver looks up the project data behind a session. The project
// catalog lives outside this service; callers supply the lookup.
type ProjectResolver func(ctx context.Context, sessionID string) (promptengine.ProjectInput, error)

// ContextBuilder assembles the enriched context bundle from the three
// sub-analyses. It satisfies the cache's Builder interface; sub-analysis
// calls run sequentially, one short-timeout provider call each.
type ContextBuilder struct {
	svc     *Service
	resolve ProjectResolver
}

// NewContextBuilder creates a builder over the orchestrator.
func NewContextBuilder(svc *Service, resolve ProjectResolver) *ContextBuilder {
	return &ContextBuilder{svc: svc, resolve: resolve}
}

var _ contextcache.Builder = (*ContextBuilder)(nil)

type subAnalysisPayload struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Confidence float64  `json:"confidence"`
}

// Build recomputes the enriched context for a session. A failed or
// unparseable sub-analysis is skipped rather than failing the bundle; the
// bundle errors only when no sub-analysis could be produced.
func (b *ContextBuilder) Build(ctx context.Context, sessionID string, opts contextcache.BuildOptions) (*models.EnrichedContext, error) {
	sess, err := b.svc.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	project, err := b.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ec := &models.EnrichedContext{SessionID: sessionID}
	kinds := []struct {
		kind    string
		enabled bool
		slot    **models.SubAnalysis
	}{
		{"project_structure", opts.IncludeProjectStructure, &ec.ProjectStructure},
		{"market_insights", opts.IncludeMarketInsights, &ec.MarketInsights},
		{"tech_trend", opts.IncludeTechTrend, &ec.TechTrend},
	}

	var produced int
	var confidenceSum float64
	var lastErr error
	for _, k := range kinds {
		if !k.enabled {
			continue
		}
		sub, err := b.subAnalysis(ctx, sess, project, k.kind)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).
				Str("session_id", sessionID).
				Str("kind", k.kind).
				Msg("Sub-analysis failed")
			continue
		}
		*k.slot = sub
		produced++
		confidenceSum += sub.Confidence
	}
	if produced == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return ec, nil
	}
	ec.Metadata.SourceCount = produced
	ec.Metadata.Confidence = confidenceSum / float64(produced)
	return ec, nil
}

func (b *ContextBuilder) subAnalysis(ctx context.Context, sess *models.AnalysisSession, project promptengine.ProjectInput, kind string) (*models.SubAnalysis, error) {
	client, err := b.svc.registry.Get(sess.Provider)
	if err != nil {
		return nil, err
	}
	msgs := b.svc.engine.Enrichment(kind, project)
	settings := promptengine.SettingsFor(sess.Depth)

	callCtx, cancel := context.WithTimeout(ctx, provider.ShortTimeout)
	defer cancel()
	resp, err := client.Complete(callCtx, provider.Request{
		Model:       sess.Model,
		Messages:    toProviderMessages(msgs),
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
		TopP:        settings.TopP,
	})
	if err != nil {
		b.svc.metrics.RecordFailure(ctx, sess.Provider, sess.Model)
		return nil, err
	}

	cost := pricing.Cost(b.svc.pricing.Lookup(sess.Provider, sess.Model), resp.Usage)
	b.svc.metrics.RecordCall(ctx, sess.Provider, resp.Model, resp.Usage, cost)

	obj := extract.Extract(resp.Content)
	sub := &models.SubAnalysis{Kind: kind}
	if extract.IsParseFailure(obj) {
		sub.Summary, _ = obj["summary"].(string)
		return sub, nil
	}
	var payload subAnalysisPayload
	if err := extract.Decode(obj, &payload); err != nil {
		return sub, nil
	}
	sub.Summary = payload.Summary
	sub.Highlights = payload.Highlights
	sub.Confidence = payload.Confidence
	return sub, nil
}
