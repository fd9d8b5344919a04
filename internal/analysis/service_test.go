package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Donggull/ea-plan-05-sub006/internal/provider"
	"github.com/Donggull/ea-plan-05-sub006/internal/quota"
	"github.com/Donggull/ea-plan-05-sub006/internal/session"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

type fakeClient struct {
	name    models.Provider
	resp    *provider.Response
	err     error
	calls   int
	lastReq provider.Request
}

func (f *fakeClient) Name() models.Provider { return f.name }

func (f *fakeClient) Complete(_ context.Context, req provider.Request) (*provider.Response, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type memSessions struct {
	byID map[string]*models.AnalysisSession
}

func (m *memSessions) Get(_ context.Context, id string) (*models.AnalysisSession, error) {
	return m.byID[id], nil
}

func (m *memSessions) Save(_ context.Context, sess *models.AnalysisSession) error {
	m.byID[sess.ID] = sess
	return nil
}

type memQuestions struct {
	questions map[string][]models.Question
	answers   map[string]map[string]*models.Answer
	replaces  int
}

func (m *memQuestions) Replace(_ context.Context, sessionID string, qs []models.Question) ([]models.Question, error) {
	m.replaces++
	m.questions[sessionID] = qs
	delete(m.answers, sessionID)
	return qs, nil
}

func (m *memQuestions) BySession(_ context.Context, sessionID string) ([]models.Question, error) {
	return m.questions[sessionID], nil
}

func (m *memQuestions) AnswersBySession(_ context.Context, sessionID string) (map[string]*models.Answer, error) {
	if m.answers[sessionID] == nil {
		return map[string]*models.Answer{}, nil
	}
	return m.answers[sessionID], nil
}

type memResults struct {
	saved []*models.AnalysisResult
}

func (m *memResults) Save(_ context.Context, r *models.AnalysisResult) (*models.AnalysisResult, error) {
	m.saved = append(m.saved, r)
	return r, nil
}

func (m *memResults) Latest(_ context.Context, sessionID string, kind models.ResultKind) (*models.AnalysisResult, error) {
	for i := len(m.saved) - 1; i >= 0; i-- {
		if m.saved[i].SessionID == sessionID && m.saved[i].Kind == kind {
			return m.saved[i], nil
		}
	}
	return nil, nil
}

type memUsage struct {
	records []models.UsageRecord
}

func (m *memUsage) Record(_ context.Context, rec models.UsageRecord) error {
	m.records = append(m.records, rec)
	return nil
}

type fakeQuota struct {
	err   error
	calls int
}

func (f *fakeQuota) Authorize(context.Context, string, string) error {
	f.calls++
	return f.err
}

type fixture struct {
	svc       *Service
	client    *fakeClient
	sessions  *memSessions
	questions *memQuestions
	results   *memResults
	usage     *memUsage
	quota     *fakeQuota
}

func newFixture(t *testing.T, resp *provider.Response, callErr error) *fixture {
	t.Helper()
	f := &fixture{
		client: &fakeClient{name: models.ProviderOpenAI, resp: resp, err: callErr},
		sessions: &memSessions{byID: map[string]*models.AnalysisSession{
			"sess-1": {
				ID: "sess-1", ProjectID: "proj-1",
				Stage: models.StageSetup, Status: models.StatusIdle,
				Provider: models.ProviderOpenAI, Model: "gpt-4o",
				Depth: models.DepthStandard,
			},
		}},
		questions: &memQuestions{
			questions: map[string][]models.Question{},
			answers:   map[string]map[string]*models.Answer{},
		},
		results: &memResults{},
		usage:   &memUsage{},
		quota:   &fakeQuota{},
	}
	f.svc = NewService(Config{
		Registry:  provider.NewRegistry(f.client),
		Quota:     f.quota,
		Sessions:  f.sessions,
		Questions: f.questions,
		Results:   f.results,
		Usage:     f.usage,
	})
	return f
}

func okResponse(content string) *provider.Response {
	return &provider.Response{
		Content:      content,
		Usage:        models.Usage{InputTokens: 1000, OutputTokens: 500},
		FinishReason: "stop",
		Model:        "gpt-4o",
	}
}

func stageInput() StageInput {
	return StageInput{SessionID: "sess-1", UserID: "user-1", Role: "member"}
}

func TestCompleteRecordsUsageAndCost(t *testing.T) {
	f := newFixture(t, okResponse(`{"summary":"hi"}`), nil)
	out, err := f.svc.Complete(context.Background(), CompletionInput{
		UserID: "user-1", Provider: models.ProviderOpenAI, Model: "gpt-4o",
		Prompt: "hello", Endpoint: "completion",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"hi"}`, out.Content)
	assert.Greater(t, out.Cost, 0.0)

	require.Len(t, f.usage.records, 1)
	rec := f.usage.records[0]
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, 1500, rec.TotalTokens)
	assert.Equal(t, "completion", rec.Endpoint)
	assert.True(t, rec.Success)
}

func TestCompleteQuotaShortCircuits(t *testing.T) {
	f := newFixture(t, okResponse("x"), nil)
	f.quota.err = quota.ErrExceeded
	_, err := f.svc.Complete(context.Background(), CompletionInput{
		UserID: "user-1", Provider: models.ProviderOpenAI, Model: "gpt-4o", Prompt: "hi",
	})
	require.ErrorIs(t, err, quota.ErrExceeded)
	assert.Zero(t, f.client.calls, "no provider budget spent")
	assert.Empty(t, f.usage.records)
}

func TestCompleteFailureRecordsNoUsage(t *testing.T) {
	f := newFixture(t, nil, errors.New("upstream down"))
	_, err := f.svc.Complete(context.Background(), CompletionInput{
		UserID: "user-1", Provider: models.ProviderOpenAI, Model: "gpt-4o", Prompt: "hi",
	})
	require.Error(t, err)
	assert.Empty(t, f.usage.records)
}

func TestRunAnalysisHappyPath(t *testing.T) {
	body := `{"summary":"A solid project.","key_findings":["f1","f2"],"risks":[{"title":"scope creep","severity":"medium","probability":40,"impact":60}],"recommendations":["r1"],"timeline":[{"name":"discovery","duration_days":10}]}`
	f := newFixture(t, okResponse(body), nil)

	result, err := f.svc.RunAnalysis(context.Background(), stageInput())
	require.NoError(t, err)
	assert.False(t, result.ParseError)
	assert.Equal(t, "A solid project.", result.Summary)
	assert.Len(t, result.Risks, 1)
	assert.Equal(t, models.ResultKindAnalysis, result.Kind)

	sess := f.sessions.byID["sess-1"]
	assert.Equal(t, models.StageQuestions, sess.Stage)
	require.Len(t, f.usage.records, 1)
	assert.Equal(t, "analysis", f.usage.records[0].Endpoint)
}

func TestRunAnalysisProviderFailureKeepsStage(t *testing.T) {
	f := newFixture(t, nil, errors.New("overloaded"))
	_, err := f.svc.RunAnalysis(context.Background(), stageInput())
	require.Error(t, err)

	sess := f.sessions.byID["sess-1"]
	assert.Equal(t, models.StageAnalysis, sess.Stage, "stage not advanced")
	assert.Equal(t, models.StatusFailed, sess.Status)
	assert.Empty(t, f.usage.records, "usage only on success")
	assert.Empty(t, f.results.saved)
}

func TestRunAnalysisParseFailureIsAbsorbed(t *testing.T) {
	f := newFixture(t, okResponse("I could not produce JSON today."), nil)
	result, err := f.svc.RunAnalysis(context.Background(), stageInput())
	require.NoError(t, err, "parse failures never propagate")
	assert.True(t, result.ParseError)
	assert.NotEmpty(t, result.ErrorMessage)
	require.Len(t, f.usage.records, 1, "the call itself succeeded")
}

func TestRunAnalysisRefusesWithoutModel(t *testing.T) {
	f := newFixture(t, okResponse("{}"), nil)
	f.sessions.byID["sess-1"].Model = ""
	_, err := f.svc.RunAnalysis(context.Background(), stageInput())
	require.Error(t, err)
	assert.Zero(t, f.client.calls)
}

func TestReanalysisAtQuestionsKeepsStage(t *testing.T) {
	f := newFixture(t, okResponse(`{"summary":"second pass"}`), nil)
	f.sessions.byID["sess-1"].Stage = models.StageQuestions
	f.questions.questions["sess-1"] = []models.Question{
		{ID: "q1", SessionID: "sess-1", Text: "Budget?", Required: true},
	}

	result, err := f.svc.RunAnalysis(context.Background(), stageInput())
	require.NoError(t, err)
	assert.Equal(t, "second pass", result.Summary)

	sess := f.sessions.byID["sess-1"]
	assert.Equal(t, models.StageQuestions, sess.Stage,
		"re-analysis supersedes the result without moving the session")
	assert.Equal(t, models.StatusCompleted, sess.Status)
}

func TestRunAnalysisUnknownSession(t *testing.T) {
	f := newFixture(t, okResponse("{}"), nil)
	_, err := f.svc.RunAnalysis(context.Background(), StageInput{SessionID: "nope"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGenerateQuestionsRejectsBeforeAnalysis(t *testing.T) {
	f := newFixture(t, okResponse("{}"), nil)

	for _, stage := range []models.Stage{models.StageSetup, models.StageAnalysis} {
		f.sessions.byID["sess-1"].Stage = stage
		_, err := f.svc.GenerateQuestions(context.Background(), stageInput())
		var te *session.TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, stage, te.From)
	}
	assert.Zero(t, f.client.calls)
}

func TestGenerateQuestionsParsesPayload(t *testing.T) {
	body := "```json\n{\"questions\":[{\"category\":\"scope\",\"text\":\"What platforms?\",\"type\":\"multiselect\",\"options\":[\"web\",\"mobile\"],\"required\":true,\"priority\":9,\"confidence\":0.8}]}\n```"
	f := newFixture(t, okResponse(body), nil)
	f.sessions.byID["sess-1"].Stage = models.StageQuestions

	out, err := f.svc.GenerateQuestions(context.Background(), stageInput())
	require.NoError(t, err)
	assert.True(t, out.Regenerated)
	require.Len(t, out.Questions, 1)
	q := out.Questions[0]
	assert.Equal(t, "What platforms?", q.Text)
	assert.Equal(t, models.InputMultiselect, q.Type)
	assert.True(t, q.AIGenerated)
	assert.NotEmpty(t, q.ID)
	assert.Equal(t, 1, f.questions.replaces)
}

func TestGenerateQuestionsFallsBackToDefaults(t *testing.T) {
	f := newFixture(t, okResponse("sorry, no JSON here"), nil)
	f.sessions.byID["sess-1"].Stage = models.StageQuestions

	out, err := f.svc.GenerateQuestions(context.Background(), stageInput())
	require.NoError(t, err)
	require.Len(t, out.Questions, 3)
	for _, q := range out.Questions {
		assert.False(t, q.AIGenerated)
		assert.True(t, q.Required)
	}
}

func TestGenerateQuestionsKeepsAIGenerated(t *testing.T) {
	f := newFixture(t, okResponse(`{"questions":[{"text":"new"}]}`), nil)
	f.sessions.byID["sess-1"].Stage = models.StageQuestions
	existing := []models.Question{{ID: "q1", SessionID: "sess-1", Text: "old", AIGenerated: true}}
	f.questions.questions["sess-1"] = existing

	out, err := f.svc.GenerateQuestions(context.Background(), stageInput())
	require.NoError(t, err)
	assert.False(t, out.Regenerated)
	assert.Equal(t, existing, out.Questions)
	assert.Zero(t, f.client.calls, "policy kept existing questions")
}

func TestGenerateQuestionsRegeneratesStaticDefaults(t *testing.T) {
	f := newFixture(t, okResponse(`{"questions":[{"text":"Which cloud provider?","category":"tech"}]}`), nil)
	f.sessions.byID["sess-1"].Stage = models.StageQuestions
	f.questions.questions["sess-1"] = DefaultQuestions("sess-1")
	f.results.saved = append(f.results.saved, &models.AnalysisResult{
		SessionID: "sess-1", Kind: models.ResultKindAnalysis, Summary: "done",
	})

	out, err := f.svc.GenerateQuestions(context.Background(), stageInput())
	require.NoError(t, err)
	assert.True(t, out.Regenerated)
	require.Len(t, out.Questions, 1)
	assert.Equal(t, "Which cloud provider?", out.Questions[0].Text)
}

func TestGenerateReportGuardsRequiredAnswers(t *testing.T) {
	f := newFixture(t, okResponse(`{"summary":"final"}`), nil)
	sess := f.sessions.byID["sess-1"]
	sess.Stage = models.StageQuestions
	f.results.saved = append(f.results.saved, &models.AnalysisResult{
		SessionID: "sess-1", Kind: models.ResultKindAnalysis, Summary: "prior",
	})
	f.questions.questions["sess-1"] = []models.Question{{ID: "q1", SessionID: "sess-1", Text: "Budget?", Required: true}}

	_, err := f.svc.GenerateReport(context.Background(), stageInput())
	require.Error(t, err, "required question unanswered")
	assert.Zero(t, f.client.calls)

	f.questions.answers["sess-1"] = map[string]*models.Answer{
		"q1": {QuestionID: "q1", SessionID: "sess-1", Value: "100k"},
	}
	report, err := f.svc.GenerateReport(context.Background(), stageInput())
	require.NoError(t, err)
	assert.Equal(t, models.ResultKindReport, report.Kind)
	assert.Equal(t, "final", report.Summary)
	assert.Equal(t, models.StageReport, f.sessions.byID["sess-1"].Stage)
}
