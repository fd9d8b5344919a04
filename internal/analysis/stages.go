package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Donggull/ea-plan-05-sub006/internal/extract"
	"github.com/Donggull/ea-plan-05-sub006/internal/pricing"
	"github.com/Donggull/ea-plan-05-sub006/internal/promptengine"
	"github.com/Donggull/ea-plan-05-sub006/internal/provider"
	"github.com/Donggull/ea-plan-05-sub006/internal/session"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// StageInput identifies the session and the project data a stage runs over.
type StageInput struct {
	SessionID string
	UserID    string
	Role      string
	Project   promptengine.ProjectInput
}

type resultPayload struct {
	Summary         string                 `json:"summary"`
	KeyFindings     []string               `json:"key_findings"`
	Risks           []models.Risk          `json:"risks"`
	Recommendations []string               `json:"recommendations"`
	Timeline        []models.TimelinePhase `json:"timeline"`
}

// RunAnalysis executes the full-document analysis stage. A session still in
// setup is advanced first, which enforces the provider/model guard. On
// provider failure the session keeps its stage with status failed; parse
// failures are absorbed into a flagged artifact, never an error.
func (s *Service) RunAnalysis(ctx context.Context, in StageInput) (*models.AnalysisResult, error) {
	sess, err := s.loadSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Stage == models.StageSetup {
		if err := s.machine.Advance(sess, session.Artifacts{}); err != nil {
			return nil, err
		}
		s.saveStatus(ctx, sess)
	}
	if err := s.authorize(ctx, in.UserID, in.Role); err != nil {
		return nil, err
	}

	resp, err := s.callStage(ctx, sess, s.engine.Analysis(in.Project, sess.Depth), provider.LongTimeout)
	if err != nil {
		return nil, s.failStage(ctx, sess, err)
	}

	result := s.decodeResult(sess, models.ResultKindAnalysis, resp)
	saved, err := s.results.Save(ctx, result)
	if err != nil {
		return nil, s.failStage(ctx, sess, err)
	}

	s.accountStage(ctx, sess, in, resp, "analysis")
	s.machine.MarkCompleted(sess)
	// Re-analysis of a later-stage session supersedes the result but must
	// not move the session; only the first pass advances to questions.
	if sess.Stage == models.StageAnalysis {
		if err := s.machine.Advance(sess, session.Artifacts{Analysis: saved}); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("Analysis done but stage not advanced")
		}
	}
	s.saveStatus(ctx, sess)

	log.Info().
		Str("session_id", sess.ID).
		Bool("parse_error", saved.ParseError).
		Msg("Analysis stage completed")
	return saved, nil
}

type questionPayload struct {
	Category   string   `json:"category"`
	Text       string   `json:"text"`
	Type       string   `json:"type"`
	Options    []string `json:"options"`
	Required   bool     `json:"required"`
	HelpText   string   `json:"helpText"`
	Priority   int      `json:"priority"`
	Confidence float64  `json:"confidence"`
}

type questionsPayload struct {
	Questions []questionPayload `json:"questions"`
}

// QuestionsOutput is the question-generation stage result.
type QuestionsOutput struct {
	Questions    []models.Question
	Regenerated  bool
	Usage        models.Usage
	Cost         float64
	Model        string
	ResponseTime time.Duration
}

// GenerateQuestions runs the question-generation stage for a session. The
// regeneration policy decides whether existing questions survive; when they
// do, no provider call is made. On total parse failure a static default set
// is persisted instead of an error.
func (s *Service) GenerateQuestions(ctx context.Context, in StageInput) (*QuestionsOutput, error) {
	sess, err := s.loadSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Stage == models.StageSetup || sess.Stage == models.StageAnalysis {
		return nil, &session.TransitionError{
			From:   sess.Stage,
			To:     models.StageQuestions,
			Reason: "analysis has not completed",
		}
	}
	prior, err := s.results.Latest(ctx, sess.ID, models.ResultKindAnalysis)
	if err != nil {
		return nil, err
	}
	existing, err := s.questions.BySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if !s.machine.Policy().ShouldRegenerate(existing, prior != nil && !prior.ParseError) {
		return &QuestionsOutput{Questions: existing}, nil
	}
	if err := s.authorize(ctx, in.UserID, in.Role); err != nil {
		return nil, err
	}

	started := s.now()
	resp, err := s.callStage(ctx, sess, s.engine.Questions(in.Project, prior, sess.Depth), provider.ShortTimeout)
	if err != nil {
		return nil, s.failStage(ctx, sess, err)
	}

	generated := decodeQuestions(sess.ID, resp.Content)
	stored, err := s.questions.Replace(ctx, sess.ID, generated)
	if err != nil {
		return nil, s.failStage(ctx, sess, err)
	}

	cost := s.accountStage(ctx, sess, in, resp, "questions")
	s.machine.MarkCompleted(sess)
	s.saveStatus(ctx, sess)

	log.Info().
		Str("session_id", sess.ID).
		Int("questions", len(stored)).
		Msg("Question stage completed")
	return &QuestionsOutput{
		Questions:    stored,
		Regenerated:  true,
		Usage:        resp.Usage,
		Cost:         cost,
		Model:        resp.Model,
		ResponseTime: s.now().Sub(started),
	}, nil
}

// GenerateReport runs the final report stage. Moving out of questions
// enforces the required-answer guard.
func (s *Service) GenerateReport(ctx context.Context, in StageInput) (*models.AnalysisResult, error) {
	sess, err := s.loadSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	prior, err := s.results.Latest(ctx, sess.ID, models.ResultKindAnalysis)
	if err != nil {
		return nil, err
	}
	questions, err := s.questions.BySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	answers, err := s.questions.AnswersBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if sess.Stage == models.StageQuestions {
		arts := session.Artifacts{Analysis: prior, Questions: questions, Answers: answers}
		if err := s.machine.Advance(sess, arts); err != nil {
			return nil, err
		}
		s.saveStatus(ctx, sess)
	}
	if err := s.authorize(ctx, in.UserID, in.Role); err != nil {
		return nil, err
	}

	msgs := s.engine.Report(in.Project, prior, questions, answers, sess.Depth)
	resp, err := s.callStage(ctx, sess, msgs, provider.ReportTimeout)
	if err != nil {
		return nil, s.failStage(ctx, sess, err)
	}

	result := s.decodeResult(sess, models.ResultKindReport, resp)
	saved, err := s.results.Save(ctx, result)
	if err != nil {
		return nil, s.failStage(ctx, sess, err)
	}

	s.accountStage(ctx, sess, in, resp, "report")
	s.machine.MarkCompleted(sess)
	s.saveStatus(ctx, sess)

	log.Info().Str("session_id", sess.ID).Msg("Report stage completed")
	return saved, nil
}

// callStage flips the session into processing and issues the provider call
// under the stage timeout.
func (s *Service) callStage(ctx context.Context, sess *models.AnalysisSession, msgs []promptengine.Message, timeout time.Duration) (*provider.Response, error) {
	client, err := s.registry.Get(sess.Provider)
	if err != nil {
		return nil, err
	}
	s.machine.MarkProcessing(sess)
	s.saveStatus(ctx, sess)

	settings := promptengine.SettingsFor(sess.Depth)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Complete(callCtx, provider.Request{
		Model:       sess.Model,
		Messages:    toProviderMessages(msgs),
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
		TopP:        settings.TopP,
	})
}

// failStage records the failure without advancing the stage and returns the
// original error.
func (s *Service) failStage(ctx context.Context, sess *models.AnalysisSession, err error) error {
	s.machine.MarkFailed(sess)
	s.saveStatus(ctx, sess)
	s.metrics.RecordFailure(ctx, sess.Provider, sess.Model)
	log.Warn().Err(err).
		Str("session_id", sess.ID).
		Str("stage", string(sess.Stage)).
		Msg("Stage failed")
	return err
}

func (s *Service) accountStage(ctx context.Context, sess *models.AnalysisSession, in StageInput, resp *provider.Response, endpoint string) float64 {
	cost := pricing.Cost(s.pricing.Lookup(sess.Provider, sess.Model), resp.Usage)
	s.recordUsage(ctx, in.UserID, sess.Provider, resp.Model, resp.Usage, cost, endpoint)
	s.metrics.RecordCall(ctx, sess.Provider, resp.Model, resp.Usage, cost)
	return cost
}

// decodeResult turns raw provider text into an artifact. Extraction is
// total: unparseable output becomes a flagged artifact carrying the
// sentinel's error context.
func (s *Service) decodeResult(sess *models.AnalysisSession, kind models.ResultKind, resp *provider.Response) *models.AnalysisResult {
	obj := extract.Extract(resp.Content)
	result := &models.AnalysisResult{
		SessionID: sess.ID,
		Kind:      kind,
		Provider:  sess.Provider,
		Model:     resp.Model,
	}
	if extract.IsParseFailure(obj) {
		result.ParseError = true
		result.Summary, _ = obj["summary"].(string)
		result.ErrorMessage, _ = obj["errorMessage"].(string)
		return result
	}
	var payload resultPayload
	if err := extract.Decode(obj, &payload); err != nil {
		result.ParseError = true
		result.ErrorMessage = err.Error()
		return result
	}
	result.Summary = payload.Summary
	result.KeyFindings = payload.KeyFindings
	result.Risks = payload.Risks
	result.Recommendations = payload.Recommendations
	result.Timeline = payload.Timeline
	return result
}

// decodeQuestions parses generated questions, falling back to the static
// default set when extraction failed or produced nothing usable.
func decodeQuestions(sessionID, content string) []models.Question {
	obj := extract.Extract(content)
	if extract.IsParseFailure(obj) {
		return DefaultQuestions(sessionID)
	}
	var payload questionsPayload
	if err := extract.Decode(obj, &payload); err != nil || len(payload.Questions) == 0 {
		return DefaultQuestions(sessionID)
	}
	out := make([]models.Question, 0, len(payload.Questions))
	for _, q := range payload.Questions {
		if q.Text == "" {
			continue
		}
		out = append(out, models.Question{
			ID:          uuid.NewString(),
			SessionID:   sessionID,
			Category:    q.Category,
			Text:        q.Text,
			Type:        models.InputType(q.Type),
			Options:     q.Options,
			Required:    q.Required,
			HelpText:    q.HelpText,
			Priority:    q.Priority,
			Confidence:  q.Confidence,
			AIGenerated: true,
		})
	}
	if len(out) == 0 {
		return DefaultQuestions(sessionID)
	}
	return out
}

// DefaultQuestions is the static fallback set served when generation output
// cannot be parsed. These are deliberately generic and not AI generated, so
// the regeneration policy replaces them once analysis data exists.
func DefaultQuestions(sessionID string) []models.Question {
	mk := func(category, text string, t models.InputType, priority int) models.Question {
		return models.Question{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Category:  category,
			Text:      text,
			Type:      t,
			Required:  true,
			Priority:  priority,
		}
	}
	return []models.Question{
		mk("scope", "What are the primary goals and success criteria for this project?", models.InputTextarea, 10),
		mk("budget", "What is the expected budget range for this project?", models.InputText, 8),
		mk("timeline", "What is the target completion date or timeline?", models.InputText, 8),
	}
}

func toProviderMessages(msgs []promptengine.Message) []provider.Message {
	out := make([]provider.Message, len(msgs))
	for i, m := range msgs {
		out[i] = provider.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
