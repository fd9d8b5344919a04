package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// StoreSuite exercises the persistence layer against a real SQLite file.
type StoreSuite struct {
	suite.Suite
	store     *Store
	sessions  *SessionStore
	questions *QuestionStore
	results   *ResultStore
	usage     *UsageStore
	ctx       context.Context
}

func (s *StoreSuite) SetupTest() {
	var err error
	s.store, err = New(Config{Path: filepath.Join(s.T().TempDir(), "test.db")})
	s.Require().NoError(err)
	s.sessions = NewSessionStore(s.store)
	s.questions = NewQuestionStore(s.store)
	s.results = NewResultStore(s.store)
	s.usage = NewUsageStore(s.store)
	s.ctx = context.Background()
}

func (s *StoreSuite) TearDownTest() {
	s.store.Close()
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) createSession() *models.AnalysisSession {
	sess, err := s.sessions.Create(s.ctx, "proj-1")
	s.Require().NoError(err)
	return sess
}

func (s *StoreSuite) TestSessionLifecycle() {
	sess := s.createSession()
	s.NotEmpty(sess.ID)
	s.Equal(models.StageSetup, sess.Stage)
	s.Equal(models.StatusIdle, sess.Status)

	sess.Stage = models.StageAnalysis
	sess.Status = models.StatusProcessing
	sess.Provider = models.ProviderAnthropic
	sess.Model = "claude-sonnet-4"
	sess.Depth = models.DepthDeep
	s.Require().NoError(s.sessions.Save(s.ctx, sess))

	got, err := s.sessions.Get(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(models.StageAnalysis, got.Stage)
	s.Equal(models.ProviderAnthropic, got.Provider)
	s.Equal(models.DepthDeep, got.Depth)

	missing, err := s.sessions.Get(s.ctx, "nope")
	s.Require().NoError(err)
	s.Nil(missing)
}

func (s *StoreSuite) TestSessionArchiveIsSoft() {
	sess := s.createSession()
	s.Require().NoError(s.sessions.Archive(s.ctx, sess.ID))

	got, err := s.sessions.Get(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got, "archived sessions are never hard-deleted")
	s.True(got.Archived)

	listed, err := s.sessions.ListByProject(s.ctx, "proj-1")
	s.Require().NoError(err)
	s.Empty(listed, "archived sessions drop out of project listings")
}

func (s *StoreSuite) TestReplaceQuestionsCascadesAnswers() {
	sess := s.createSession()
	first, err := s.questions.Replace(s.ctx, sess.ID, []models.Question{
		{ID: "q1", SessionID: sess.ID, Text: "Budget?", AIGenerated: true, Priority: 9},
		{ID: "q2", SessionID: sess.ID, Text: "Timeline?", Priority: 5},
	})
	s.Require().NoError(err)
	s.Len(first, 2)

	_, err = s.questions.UpsertAnswer(s.ctx, models.Answer{
		QuestionID: "q1", SessionID: sess.ID, Value: "100k", Confidence: 7,
	})
	s.Require().NoError(err)

	// Replacing questions deletes the stale answers too.
	_, err = s.questions.Replace(s.ctx, sess.ID, []models.Question{
		{ID: "q3", SessionID: sess.ID, Text: "Scope?"},
	})
	s.Require().NoError(err)

	remaining, err := s.questions.BySession(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Require().Len(remaining, 1)
	s.Equal("Scope?", remaining[0].Text)

	answers, err := s.questions.AnswersBySession(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Empty(answers)
}

func (s *StoreSuite) TestQuestionsOrderedByPriority() {
	sess := s.createSession()
	_, err := s.questions.Replace(s.ctx, sess.ID, []models.Question{
		{ID: "low", SessionID: sess.ID, Text: "low", Priority: 1},
		{ID: "high", SessionID: sess.ID, Text: "high", Priority: 10},
		{ID: "mid", SessionID: sess.ID, Text: "mid", Priority: 5},
	})
	s.Require().NoError(err)

	got, err := s.questions.BySession(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal("high", got[0].ID)
	s.Equal("low", got[2].ID)
}

func (s *StoreSuite) TestAnswerLastWriteWins() {
	sess := s.createSession()
	_, err := s.questions.Replace(s.ctx, sess.ID, []models.Question{
		{ID: "q1", SessionID: sess.ID, Text: "Budget?"},
	})
	s.Require().NoError(err)

	_, err = s.questions.UpsertAnswer(s.ctx, models.Answer{
		QuestionID: "q1", SessionID: sess.ID, Value: "draft guess", Draft: true,
	})
	s.Require().NoError(err)

	_, err = s.questions.UpsertAnswer(s.ctx, models.Answer{
		QuestionID: "q1", SessionID: sess.ID, Value: "250k", Confidence: 9,
		Notes: "confirmed with client",
	})
	s.Require().NoError(err)

	got, err := s.questions.AnswerFor(s.ctx, "q1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal("250k", got.Value)
	s.False(got.Draft)
	s.Equal("confirmed with client", got.Notes)
}

func (s *StoreSuite) TestAnswerValueRoundTrip() {
	sess := s.createSession()
	_, err := s.questions.Replace(s.ctx, sess.ID, []models.Question{
		{ID: "q1", SessionID: sess.ID, Text: "Platforms?", Type: models.InputMultiselect},
	})
	s.Require().NoError(err)

	_, err = s.questions.UpsertAnswer(s.ctx, models.Answer{
		QuestionID: "q1", SessionID: sess.ID, Value: []any{"web", "ios"},
	})
	s.Require().NoError(err)

	got, err := s.questions.AnswerFor(s.ctx, "q1")
	s.Require().NoError(err)
	s.Equal([]any{"web", "ios"}, got.Value)
}

func (s *StoreSuite) TestResultsLatestByKind() {
	sess := s.createSession()
	_, err := s.results.Save(s.ctx, &models.AnalysisResult{
		SessionID: sess.ID, Kind: models.ResultKindAnalysis, Summary: "first pass",
		Provider: models.ProviderOpenAI, Model: "gpt-4o",
		Risks: []models.Risk{{Title: "scope creep", Severity: models.SeverityMedium, Probability: 40, Impact: 60}},
	})
	s.Require().NoError(err)

	// Newer rows supersede, older artifacts are kept.
	time.Sleep(5 * time.Millisecond)
	_, err = s.results.Save(s.ctx, &models.AnalysisResult{
		SessionID: sess.ID, Kind: models.ResultKindAnalysis, Summary: "second pass",
		Provider: models.ProviderOpenAI, Model: "gpt-4o",
	})
	s.Require().NoError(err)

	latest, err := s.results.Latest(s.ctx, sess.ID, models.ResultKindAnalysis)
	s.Require().NoError(err)
	s.Require().NotNil(latest)
	s.Equal("second pass", latest.Summary)

	report, err := s.results.Latest(s.ctx, sess.ID, models.ResultKindReport)
	s.Require().NoError(err)
	s.Nil(report)
}

func (s *StoreSuite) TestResultRisksRoundTrip() {
	sess := s.createSession()
	saved, err := s.results.Save(s.ctx, &models.AnalysisResult{
		SessionID: sess.ID, Kind: models.ResultKindReport, Summary: "final",
		Risks:    []models.Risk{{Title: "vendor lock-in", Severity: models.SeverityHigh, Probability: 30, Impact: 80, Mitigation: "abstraction layer"}},
		Timeline: []models.TimelinePhase{{Name: "discovery", Duration: 10, Milestones: []string{"kickoff"}}},
	})
	s.Require().NoError(err)
	s.NotEmpty(saved.ID)

	got, err := s.results.Latest(s.ctx, sess.ID, models.ResultKindReport)
	s.Require().NoError(err)
	s.Require().Len(got.Risks, 1)
	s.Equal("vendor lock-in", got.Risks[0].Title)
	s.Require().Len(got.Timeline, 1)
	s.Equal(10, got.Timeline[0].Duration)
}

func (s *StoreSuite) TestUsageUpsertAccumulates() {
	rec := models.UsageRecord{
		UserID: "u1", Provider: models.ProviderOpenAI, Model: "gpt-4o",
		Date: "2025-06-15", Hour: 10,
		InputTokens: 100, OutputTokens: 50, Cost: 0.01, Success: true,
		Endpoint: "completion",
	}
	s.Require().NoError(s.usage.Record(s.ctx, rec))
	s.Require().NoError(s.usage.Record(s.ctx, rec))

	from := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	rows, err := s.usage.Range(s.ctx, "u1", from, to)
	s.Require().NoError(err)
	s.Require().Len(rows, 1, "same bucket collapses to one row")
	s.Equal(2, rows[0].Requests)
	s.Equal(200, rows[0].InputTokens)
	s.Equal(300, rows[0].TotalTokens)
	s.InDelta(0.02, rows[0].Cost, 1e-9)

	total, err := s.usage.SumRequests(s.ctx, "u1", from, to)
	s.Require().NoError(err)
	s.Equal(2, total)
}

func (s *StoreSuite) TestUsageDistinctBuckets() {
	base := models.UsageRecord{
		UserID: "u1", Provider: models.ProviderOpenAI, Model: "gpt-4o",
		Date: "2025-06-15", Hour: 10, InputTokens: 10, OutputTokens: 5, Success: true,
	}
	other := base
	other.Hour = 11
	s.Require().NoError(s.usage.Record(s.ctx, base))
	s.Require().NoError(s.usage.Record(s.ctx, other))

	from := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	rows, err := s.usage.Range(s.ctx, "u1", from, from.AddDate(0, 0, 1))
	s.Require().NoError(err)
	s.Len(rows, 2)
}

func (s *StoreSuite) TestGrantsAuditTrail() {
	s.Require().NoError(s.usage.AddGrant(s.ctx, models.QuotaGrant{
		UserID: "u1", Amount: 20, GrantedBy: "admin", Reason: "launch week",
	}))
	s.Require().NoError(s.usage.AddGrant(s.ctx, models.QuotaGrant{
		UserID: "u1", Amount: 10, GrantedBy: "admin", Reason: "overflow",
	}))

	grants, err := s.usage.Grants(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(grants, 2)

	none, err := s.usage.Grants(s.ctx, "u2")
	s.Require().NoError(err)
	s.Empty(none)
}
