package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Donggull/ea-plan-05-sub006/internal/contextcache"
	"github.com/Donggull/ea-plan-05-sub006/internal/promptengine"
)

func staticResolver(p promptengine.ProjectInput) ProjectResolver {
	return func(context.Context, string) (promptengine.ProjectInput, error) {
		return p, nil
	}
}

func TestBuildComposesSubAnalyses(t *testing.T) {
	f := newFixture(t, okResponse(`{"summary":"insight","highlights":["h1"],"confidence":0.9}`), nil)
	b := NewContextBuilder(f.svc, staticResolver(promptengine.ProjectInput{Name: "P", Description: "d"}))

	ec, err := b.Build(context.Background(), "sess-1", contextcache.DefaultBuildOptions())
	require.NoError(t, err)
	require.NotNil(t, ec.ProjectStructure)
	require.NotNil(t, ec.MarketInsights)
	require.NotNil(t, ec.TechTrend)
	assert.Equal(t, "insight", ec.MarketInsights.Summary)
	assert.Equal(t, 3, ec.Metadata.SourceCount)
	assert.InDelta(t, 0.9, ec.Metadata.Confidence, 1e-9)
	assert.Equal(t, 3, f.client.calls, "one call per sub-analysis")
}

func TestBuildHonorsOptions(t *testing.T) {
	f := newFixture(t, okResponse(`{"summary":"s","confidence":0.5}`), nil)
	b := NewContextBuilder(f.svc, staticResolver(promptengine.ProjectInput{Name: "P"}))

	ec, err := b.Build(context.Background(), "sess-1", contextcache.BuildOptions{IncludeMarketInsights: true})
	require.NoError(t, err)
	assert.Nil(t, ec.ProjectStructure)
	assert.NotNil(t, ec.MarketInsights)
	assert.Nil(t, ec.TechTrend)
	assert.Equal(t, 1, ec.Metadata.SourceCount)
	assert.Equal(t, 1, f.client.calls)
}

func TestBuildFailsWhenNothingProduced(t *testing.T) {
	f := newFixture(t, nil, errors.New("provider down"))
	b := NewContextBuilder(f.svc, staticResolver(promptengine.ProjectInput{Name: "P"}))

	_, err := b.Build(context.Background(), "sess-1", contextcache.DefaultBuildOptions())
	require.Error(t, err)
}

func TestBuildUnknownSession(t *testing.T) {
	f := newFixture(t, okResponse("{}"), nil)
	b := NewContextBuilder(f.svc, staticResolver(promptengine.ProjectInput{}))
	_, err := b.Build(context.Background(), "missing", contextcache.DefaultBuildOptions())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
