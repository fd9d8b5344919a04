// Package models contains domain models for the analysis pipeline.
package models

import "time"

// Provider identifies one of the integrated LLM vendors.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		return true
	}
	return false
}

// Depth is the coarse sizing knob controlling output budget and thoroughness.
type Depth string

const (
	DepthQuick         Depth = "quick"
	DepthStandard      Depth = "standard"
	DepthDeep          Depth = "deep"
	DepthComprehensive Depth = "comprehensive"
)

// Stage is one of the four analysis session stages.
type Stage string

const (
	StageSetup     Stage = "setup"
	StageAnalysis  Stage = "analysis"
	StageQuestions Stage = "questions"
	StageReport    Stage = "report"
)

// stageOrder fixes the linear stage progression.
var stageOrder = []Stage{StageSetup, StageAnalysis, StageQuestions, StageReport}

// Index returns the position of the stage in the linear progression,
// or -1 for an unknown stage.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the following stage. Report is terminal and returns itself.
func (s Stage) Next() Stage {
	i := s.Index()
	if i < 0 || i >= len(stageOrder)-1 {
		return s
	}
	return stageOrder[i+1]
}

// SessionStatus is the processing status of a session, orthogonal to its stage.
type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusProcessing SessionStatus = "processing"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
)

// AnalysisSession is the aggregate driving the four-stage pipeline.
// Sessions are never hard-deleted; Archived marks soft-archival.
type AnalysisSession struct {
	ID        string        `json:"id"`
	ProjectID string        `json:"project_id"`
	Stage     Stage         `json:"current_step"`
	Status    SessionStatus `json:"status"`
	Provider  Provider      `json:"provider,omitempty"`
	Model     string        `json:"model,omitempty"`
	Depth     Depth         `json:"depth,omitempty"`
	Archived  bool          `json:"archived"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// InputType is the UI input kind for a generated question.
type InputType string

const (
	InputText        InputType = "text"
	InputTextarea    InputType = "textarea"
	InputSelect      InputType = "select"
	InputMultiselect InputType = "multiselect"
	InputNumber      InputType = "number"
)

// Question belongs to exactly one session and one workflow step.
// Immutable once created except for soft edits.
type Question struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Category    string    `json:"category"`
	Text        string    `json:"text"`
	Type        InputType `json:"type"`
	Options     []string  `json:"options,omitempty"`
	Required    bool      `json:"required"`
	HelpText    string    `json:"helpText,omitempty"`
	Priority    int       `json:"priority"`
	Confidence  float64   `json:"confidence"`
	AIGenerated bool      `json:"ai_generated"`
	CreatedAt   time.Time `json:"created_at"`
}

// Answer is the user's response to a Question. One answer per question per
// session, last-write-wins. An Answer never outlives its Question.
type Answer struct {
	ID          string    `json:"id"`
	QuestionID  string    `json:"question_id"`
	SessionID   string    `json:"session_id"`
	Value       any       `json:"value"` // string | []string | number
	Confidence  int       `json:"confidence"` // 1-10
	Draft       bool      `json:"draft"`
	Notes       string    `json:"notes,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsEmpty reports whether the answer carries no usable value.
// Draft answers never satisfy a required question.
func (a *Answer) IsEmpty() bool {
	if a == nil || a.Draft {
		return true
	}
	switch v := a.Value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	}
	return false
}

// Severity classifies an identified risk.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Risk is a single identified risk inside an AnalysisResult.
type Risk struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Probability int      `json:"probability"` // 0-100
	Impact      int      `json:"impact"`      // 0-100
	Mitigation  string   `json:"mitigation,omitempty"`
}

// TimelinePhase is one phase of a proposed project timeline.
type TimelinePhase struct {
	Name       string   `json:"name"`
	Duration   int      `json:"duration_days"`
	Milestones []string `json:"milestones,omitempty"`
}

// ResultKind distinguishes the artifact produced by each generating stage.
type ResultKind string

const (
	ResultKindAnalysis ResultKind = "analysis"
	ResultKindReport   ResultKind = "report"
)

// AnalysisResult is the structured artifact recovered from one LLM call.
// Immutable once stored; superseded by re-analysis.
type AnalysisResult struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	Kind            ResultKind      `json:"kind"`
	Summary         string          `json:"summary"`
	KeyFindings     []string        `json:"key_findings,omitempty"`
	Risks           []Risk          `json:"risks,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
	Timeline        []TimelinePhase `json:"timeline,omitempty"`
	ParseError      bool            `json:"parse_error,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Provider        Provider        `json:"provider"`
	Model           string          `json:"model"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Usage holds normalized token counts for one provider call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// UsageRecord is one append-only usage log entry, bucketed by hour.
type UsageRecord struct {
	UserID       string    `json:"user_id"`
	Provider     Provider  `json:"provider"`
	Model        string    `json:"model"`
	Date         string    `json:"date"` // YYYY-MM-DD
	Hour         int       `json:"hour"` // 0-23
	Requests     int       `json:"request_count"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	Cost         float64   `json:"cost"`
	Success      bool      `json:"success"`
	Endpoint     string    `json:"endpoint,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// QuotaInfo is the caller-facing quota snapshot.
// Remaining values are -1 when the user is unlimited.
type QuotaInfo struct {
	DailyQuota       int  `json:"daily_quota"`
	MonthlyQuota     int  `json:"monthly_quota"`
	DailyUsed        int  `json:"daily_used"`
	MonthlyUsed      int  `json:"monthly_used"`
	DailyRemaining   int  `json:"daily_remaining"`
	MonthlyRemaining int  `json:"monthly_remaining"`
	IsUnlimited      bool `json:"is_unlimited"`
}

// QuotaCheck is the result of evaluating a user against their ceilings.
type QuotaCheck struct {
	DailyExceeded   bool `json:"daily_exceeded"`
	MonthlyExceeded bool `json:"monthly_exceeded"`
	CanMakeRequest  bool `json:"can_make_request"`
}

// QuotaGrant is one entry of the additional-quota audit trail.
type QuotaGrant struct {
	UserID    string    `json:"user_id"`
	Amount    int       `json:"amount"`
	GrantedBy string    `json:"granted_by"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// SubAnalysis is one structured sub-analysis inside an EnrichedContext.
type SubAnalysis struct {
	Kind       string   `json:"kind"` // project_structure | market_insights | tech_trend
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights,omitempty"`
	Confidence float64  `json:"confidence"`
}

// ContextMetadata describes how an EnrichedContext was assembled.
type ContextMetadata struct {
	SourceCount  int       `json:"source_count"`
	Confidence   float64   `json:"confidence"`
	LastUpdated  time.Time `json:"last_updated"`
	ProcessingMS int64     `json:"processing_ms"`
}

// EnrichedContext is the cached, AI-normalized synthesis reused across
// pipeline stages. Created lazily, invalidated by forceRefresh.
type EnrichedContext struct {
	SessionID        string          `json:"session_id"`
	ProjectStructure *SubAnalysis    `json:"project_structure,omitempty"`
	MarketInsights   *SubAnalysis    `json:"market_insights,omitempty"`
	TechTrend        *SubAnalysis    `json:"tech_trend,omitempty"`
	Metadata         ContextMetadata `json:"metadata"`
}
