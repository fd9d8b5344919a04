package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

func newSession(stage models.Stage) *models.AnalysisSession {
	return &models.AnalysisSession{
		ID:       "sess-1",
		Stage:    stage,
		Status:   models.StatusIdle,
		Provider: models.ProviderOpenAI,
		Model:    "gpt-4o",
	}
}

func TestAdvanceHappyPath(t *testing.T) {
	m := New()
	s := newSession(models.StageSetup)
	a := Artifacts{
		Analysis:  &models.AnalysisResult{Summary: "ok"},
		Questions: []models.Question{{ID: "q1", Required: true}},
		Answers:   map[string]*models.Answer{"q1": {QuestionID: "q1", Value: "yes"}},
	}

	require.NoError(t, m.Advance(s, a))
	assert.Equal(t, models.StageAnalysis, s.Stage)

	require.NoError(t, m.Advance(s, a))
	assert.Equal(t, models.StageQuestions, s.Stage)

	require.NoError(t, m.Advance(s, a))
	assert.Equal(t, models.StageReport, s.Stage)

	_, err := m.CanAdvance(s, a)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, models.StageReport, terr.From)
}

func TestGuardSetupNeedsProviderAndModel(t *testing.T) {
	m := New()
	s := newSession(models.StageSetup)
	s.Model = ""
	_, err := m.CanAdvance(s, Artifacts{})
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, models.StageAnalysis, terr.To)
}

func TestGuardQuestionsNeedsAnalysisResult(t *testing.T) {
	m := New()
	s := newSession(models.StageAnalysis)
	_, err := m.CanAdvance(s, Artifacts{})
	require.Error(t, err)

	_, err = m.CanAdvance(s, Artifacts{Analysis: &models.AnalysisResult{Summary: "done"}})
	assert.NoError(t, err)
}

func TestGuardReportNeedsRequiredAnswers(t *testing.T) {
	m := New()
	s := newSession(models.StageQuestions)
	a := Artifacts{
		Analysis: &models.AnalysisResult{Summary: "done"},
		Questions: []models.Question{
			{ID: "q1", Required: true},
			{ID: "q2", Required: false},
		},
		Answers: map[string]*models.Answer{},
	}

	_, err := m.CanAdvance(s, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "q1")

	// Draft answers do not satisfy required questions.
	a.Answers["q1"] = &models.Answer{QuestionID: "q1", Value: "x", Draft: true}
	_, err = m.CanAdvance(s, a)
	require.Error(t, err)

	a.Answers["q1"] = &models.Answer{QuestionID: "q1", Value: "x"}
	_, err = m.CanAdvance(s, a)
	assert.NoError(t, err)
}

func TestMarkFailedKeepsStage(t *testing.T) {
	m := New()
	s := newSession(models.StageAnalysis)
	m.MarkProcessing(s)
	m.MarkFailed(s)
	assert.Equal(t, models.StageAnalysis, s.Stage)
	assert.Equal(t, models.StatusFailed, s.Status)

	// Still advanceable once the artifact exists.
	_, err := m.CanAdvance(s, Artifacts{Analysis: &models.AnalysisResult{Summary: "ok"}})
	assert.NoError(t, err)
}

func TestRestartIsOnlyRegression(t *testing.T) {
	m := New()
	s := newSession(models.StageReport)
	s.Status = models.StatusCompleted
	m.Restart(s)
	assert.Equal(t, models.StageSetup, s.Stage)
	assert.Equal(t, models.StatusIdle, s.Status)
}

func TestProgressWeights(t *testing.T) {
	m := New()
	tests := []struct {
		name   string
		stage  models.Stage
		status models.SessionStatus
		a      Artifacts
		want   int
	}{
		{"fresh setup", models.StageSetup, models.StatusIdle, Artifacts{}, 0},
		{"setup done", models.StageSetup, models.StatusCompleted, Artifacts{}, 10},
		{"analysis running", models.StageAnalysis, models.StatusProcessing, Artifacts{}, 30},
		{"analysis done", models.StageAnalysis, models.StatusCompleted, Artifacts{}, 50},
		{"report done", models.StageReport, models.StatusCompleted, Artifacts{}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(tt.stage)
			s.Status = tt.status
			assert.Equal(t, tt.want, m.Progress(s, tt.a))
		})
	}
}

func TestProgressAnsweredRatio(t *testing.T) {
	m := New()
	s := newSession(models.StageQuestions)
	a := Artifacts{
		Questions: []models.Question{{ID: "q1"}, {ID: "q2"}, {ID: "q3"}, {ID: "q4"}},
		Answers: map[string]*models.Answer{
			"q1": {QuestionID: "q1", Value: "a"},
			"q2": {QuestionID: "q2", Value: "b"},
		},
	}
	// 10 + 40 passed, plus 30 * 2/4 partial credit.
	assert.Equal(t, 65, m.Progress(s, a))
}

func TestProgressMonotonicThroughPipeline(t *testing.T) {
	m := New()
	s := newSession(models.StageSetup)
	a := Artifacts{
		Analysis:  &models.AnalysisResult{Summary: "ok"},
		Questions: []models.Question{{ID: "q1"}},
		Answers:   map[string]*models.Answer{"q1": {QuestionID: "q1", Value: "v"}},
	}
	prev := m.Progress(s, a)
	for s.Stage.Next() != s.Stage {
		require.NoError(t, m.Advance(s, a))
		cur := m.Progress(s, a)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	m.MarkCompleted(s)
	assert.Equal(t, 100, m.Progress(s, a))
}

func TestRegenerationPolicy(t *testing.T) {
	p := DefaultRegenerationPolicy()

	staticQs := []models.Question{{ID: "q1"}, {ID: "q2"}}
	aiQs := []models.Question{{ID: "q1", AIGenerated: true}, {ID: "q2"}}

	assert.True(t, p.ShouldRegenerate(nil, false), "no questions always regenerates")
	assert.True(t, p.ShouldRegenerate(staticQs, true), "all static with upstream data regenerates")
	assert.False(t, p.ShouldRegenerate(staticQs, false), "no upstream data keeps statics")
	assert.False(t, p.ShouldRegenerate(aiQs, true), "AI questions are kept")

	loose := RegenerationPolicy{}
	assert.True(t, loose.ShouldRegenerate(aiQs, false), "permissive policy always regenerates")
}
