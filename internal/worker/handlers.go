package worker

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Donggull/ea-plan-05-sub006/internal/analysis"
	"github.com/Donggull/ea-plan-05-sub006/internal/contextcache"
	"github.com/Donggull/ea-plan-05-sub006/internal/promptengine"
	"github.com/Donggull/ea-plan-05-sub006/internal/provider"
	"github.com/Donggull/ea-plan-05-sub006/internal/session"
	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

type completionRequest struct {
	Provider    models.Provider    `json:"provider"`
	Model       string             `json:"model"`
	Prompt      string             `json:"prompt"`
	Messages    []provider.Message `json:"messages"`
	MaxTokens   int                `json:"maxTokens"`
	Temperature float32            `json:"temperature"`
	TopP        float32            `json:"topP"`
	UserID      string             `json:"userId"`
	Role        string             `json:"role"`
}

type usagePayload struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type completionData struct {
	Content      string       `json:"content"`
	Usage        usagePayload `json:"usage"`
	Model        string       `json:"model"`
	FinishReason string       `json:"finishReason"`
}

// completionResponse keeps the legacy top-level mirror fields alongside the
// data envelope.
type completionResponse struct {
	Success bool           `json:"success"`
	Data    completionData `json:"data"`
	Content string         `json:"content"`
	Usage   usagePayload   `json:"usage"`
	Model   string         `json:"model"`
}

func (s *Service) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(w, "invalid JSON body")
		return
	}
	if !req.Provider.Valid() {
		writeValidationError(w, "provider must be one of openai, anthropic, google")
		return
	}
	if req.Model == "" {
		writeValidationError(w, "model is required")
		return
	}
	if req.Prompt == "" && len(req.Messages) == 0 {
		writeValidationError(w, "prompt or messages is required")
		return
	}

	out, err := s.pipeline.Complete(r.Context(), analysis.CompletionInput{
		UserID:      req.UserID,
		Role:        req.Role,
		Provider:    req.Provider,
		Model:       req.Model,
		Prompt:      req.Prompt,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Endpoint:    "completion",
	})
	if err != nil {
		writeError(w, err)
		return
	}

	usage := usagePayload{
		PromptTokens:     out.Usage.InputTokens,
		CompletionTokens: out.Usage.OutputTokens,
		TotalTokens:      out.Usage.Total(),
	}
	writeJSON(w, http.StatusOK, completionResponse{
		Success: true,
		Data: completionData{
			Content:      out.Content,
			Usage:        usage,
			Model:        out.Model,
			FinishReason: out.FinishReason,
		},
		Content: out.Content,
		Usage:   usage,
		Model:   out.Model,
	})
}

type projectInfoPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Industry    string `json:"industry"`
}

type adhocQuestionsRequest struct {
	Provider        models.Provider    `json:"provider"`
	Model           string             `json:"model"`
	ProjectID       string             `json:"projectId"`
	ProjectInfo     projectInfoPayload `json:"projectInfo"`
	Documents       []string           `json:"documents"`
	PreAnalysisData string             `json:"preAnalysisData"`
	Depth           models.Depth       `json:"depth"`
	UserID          string             `json:"userId"`
	Role            string             `json:"role"`
}

type questionsResponse struct {
	Questions    []models.Question `json:"questions"`
	Usage        usagePayload      `json:"usage"`
	Cost         float64           `json:"cost"`
	Model        string            `json:"model"`
	ResponseTime int64             `json:"responseTime"`
	Metadata     map[string]any    `json:"metadata"`
}

func (s *Service) handleAdhocQuestions(w http.ResponseWriter, r *http.Request) {
	var req adhocQuestionsRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(w, "invalid JSON body")
		return
	}
	if !req.Provider.Valid() || req.Model == "" {
		writeValidationError(w, "provider and model are required")
		return
	}
	if req.ProjectInfo.Name == "" {
		writeValidationError(w, "projectInfo.name is required")
		return
	}

	out, err := s.pipeline.AdhocQuestions(r.Context(), analysis.AdhocInput{
		UserID:   req.UserID,
		Role:     req.Role,
		Provider: req.Provider,
		Model:    req.Model,
		Depth:    req.Depth,
		Project: promptengine.ProjectInput{
			Name:        req.ProjectInfo.Name,
			Description: req.ProjectInfo.Description,
			Industry:    req.ProjectInfo.Industry,
			Documents:   req.Documents,
		},
		PreAnalysisSummary: req.PreAnalysisData,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questionsResponse{
		Questions: out.Questions,
		Usage: usagePayload{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.Total(),
		},
		Cost:         out.Cost,
		Model:        out.Model,
		ResponseTime: out.ResponseTime.Milliseconds(),
		Metadata: map[string]any{
			"projectId": req.ProjectID,
			"generated": time.Now().UTC(),
		},
	})
}

type createSessionRequest struct {
	ProjectID string          `json:"projectId"`
	Provider  models.Provider `json:"provider"`
	Model     string          `json:"model"`
	Depth     models.Depth    `json:"depth"`
}

func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(w, "invalid JSON body")
		return
	}
	if req.ProjectID == "" {
		writeValidationError(w, "projectId is required")
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.ProjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Provider != "" || req.Model != "" || req.Depth != "" {
		sess.Provider = req.Provider
		sess.Model = req.Model
		if req.Depth != "" {
			sess.Depth = req.Depth
		}
		if err := s.sessions.Save(r.Context(), sess); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Service) loadSession(w http.ResponseWriter, r *http.Request) *models.AnalysisSession {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return nil
	}
	if sess == nil {
		writeError(w, analysis.ErrSessionNotFound)
		return nil
	}
	return sess
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if sess := s.loadSession(w, r); sess != nil {
		writeJSON(w, http.StatusOK, sess)
	}
}

func (s *Service) handleArchiveSession(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	if err := s.sessions.Archive(r.Context(), sess.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": true})
}

func (s *Service) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	arts, err := s.artifactsFor(r, sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stage":    sess.Stage,
		"status":   sess.Status,
		"progress": s.pipeline.Machine().Progress(sess, arts),
	})
}

type stageRequest struct {
	UserID      string             `json:"userId"`
	Role        string             `json:"role"`
	ProjectInfo projectInfoPayload `json:"projectInfo"`
	Documents   []string           `json:"documents"`
}

func (s *Service) stageInput(r *http.Request, sessionID string) (analysis.StageInput, error) {
	var req stageRequest
	if err := decodeBody(r, &req); err != nil {
		return analysis.StageInput{}, err
	}
	project := promptengine.ProjectInput{
		Name:        req.ProjectInfo.Name,
		Description: req.ProjectInfo.Description,
		Industry:    req.ProjectInfo.Industry,
		Documents:   req.Documents,
	}
	if project.Name != "" {
		s.projects.Store(sessionID, project)
	} else if v, ok := s.projects.Load(sessionID); ok {
		project = v.(promptengine.ProjectInput)
	}
	return analysis.StageInput{
		SessionID: sessionID,
		UserID:    req.UserID,
		Role:      req.Role,
		Project:   project,
	}, nil
}

func (s *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	in, err := s.stageInput(r, sess.ID)
	if err != nil {
		writeValidationError(w, "invalid JSON body")
		return
	}
	result, err := s.pipeline.RunAnalysis(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	in, err := s.stageInput(r, sess.ID)
	if err != nil {
		writeValidationError(w, "invalid JSON body")
		return
	}
	out, err := s.pipeline.GenerateQuestions(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"questions":   out.Questions,
		"regenerated": out.Regenerated,
		"cost":        out.Cost,
		"model":       out.Model,
	})
}

func (s *Service) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	questions, err := s.questions.BySession(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	answers, err := s.questions.AnswersBySession(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"questions": questions,
		"answers":   answers,
	})
}

type answerRequest struct {
	Value       any      `json:"value"`
	Confidence  int      `json:"confidence"`
	Draft       bool     `json:"draft"`
	Notes       string   `json:"notes"`
	Attachments []string `json:"attachments"`
}

func (s *Service) handleUpsertAnswer(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	questionID := chi.URLParam(r, "questionID")
	q, err := s.questions.Get(r.Context(), questionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if q == nil || q.SessionID != sess.ID {
		writeValidationError(w, "unknown question for session")
		return
	}

	var req answerRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(w, "invalid JSON body")
		return
	}
	saved, err := s.questions.UpsertAnswer(r.Context(), models.Answer{
		QuestionID:  questionID,
		SessionID:   sess.ID,
		Value:       req.Value,
		Confidence:  req.Confidence,
		Draft:       req.Draft,
		Notes:       req.Notes,
		Attachments: req.Attachments,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Service) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	in, err := s.stageInput(r, sess.ID)
	if err != nil {
		writeValidationError(w, "invalid JSON body")
		return
	}
	result, err := s.pipeline.GenerateReport(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleResults(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	kind := models.ResultKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = models.ResultKindAnalysis
	}
	result, err := s.results.Latest(r.Context(), sess.ID, kind)
	if err != nil {
		writeError(w, err)
		return
	}
	if result == nil {
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:     "not found",
			Details:   "no result of requested kind",
			Timestamp: time.Now().UTC(),
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type contextRequest struct {
	Refresh     bool               `json:"refresh"`
	ProjectInfo projectInfoPayload `json:"projectInfo"`
	Documents   []string           `json:"documents"`
	Options     *struct {
		ProjectStructure bool `json:"projectStructure"`
		MarketInsights   bool `json:"marketInsights"`
		TechTrend        bool `json:"techTrend"`
	} `json:"options"`
}

func (s *Service) handleEnrichedContext(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:     "enriched context disabled",
			Timestamp: time.Now().UTC(),
		})
		return
	}
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	var req contextRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(w, "invalid JSON body")
		return
	}
	if req.ProjectInfo.Name != "" {
		s.projects.Store(sess.ID, promptengine.ProjectInput{
			Name:        req.ProjectInfo.Name,
			Description: req.ProjectInfo.Description,
			Industry:    req.ProjectInfo.Industry,
			Documents:   req.Documents,
		})
	}

	opts := contextcache.DefaultBuildOptions()
	if req.Options != nil {
		opts = contextcache.BuildOptions{
			IncludeProjectStructure: req.Options.ProjectStructure,
			IncludeMarketInsights:   req.Options.MarketInsights,
			IncludeTechTrend:        req.Options.TechTrend,
		}
	}
	ec, err := s.cache.GetOrUpdate(r.Context(), sess.ID, opts, req.Refresh)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ec)
}

func (s *Service) handleRestart(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)
	if sess == nil {
		return
	}
	s.pipeline.Machine().Restart(sess)
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		writeError(w, err)
		return
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(r.Context(), sess.ID); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Service) handleProjectSessions(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	sessions, err := s.sessions.ListByProject(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Service) handleQuotaInfo(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeValidationError(w, "userId is required")
		return
	}
	info, err := s.governor.GetQuotaInfo(r.Context(), userID, r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, err)
		return
	}
	check, err := s.governor.CheckExceeded(r.Context(), userID, r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quota": info, "check": check})
}

type grantRequest struct {
	UserID    string `json:"userId"`
	Amount    int    `json:"amount"`
	GrantedBy string `json:"grantedBy"`
	Reason    string `json:"reason"`
}

func (s *Service) handleQuotaGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(w, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Amount <= 0 {
		writeValidationError(w, "userId and a positive amount are required")
		return
	}
	if err := s.governor.GrantAdditional(r.Context(), req.UserID, req.Amount, req.GrantedBy, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"granted": req.Amount})
}

func (s *Service) handleUsage(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeValidationError(w, "userId is required")
		return
	}
	to := time.Now().UTC()
	from := to.AddDate(0, -1, 0)
	if v := r.URL.Query().Get("from"); v != "" {
		if parsed, err := time.Parse("2006-01-02", v); err == nil {
			from = parsed
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if parsed, err := time.Parse("2006-01-02", v); err == nil {
			to = parsed
		}
	}
	records, err := s.usage.Range(r.Context(), userID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// artifactsFor loads the session's artifacts for progress computation.
func (s *Service) artifactsFor(r *http.Request, sessionID string) (session.Artifacts, error) {
	prior, err := s.results.Latest(r.Context(), sessionID, models.ResultKindAnalysis)
	if err != nil {
		return session.Artifacts{}, err
	}
	questions, err := s.questions.BySession(r.Context(), sessionID)
	if err != nil {
		return session.Artifacts{}, err
	}
	answers, err := s.questions.AnswersBySession(r.Context(), sessionID)
	if err != nil {
		return session.Artifacts{}, err
	}
	return session.Artifacts{Analysis: prior, Questions: questions, Answers: answers}, nil
}
