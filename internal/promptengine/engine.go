// Package promptengine builds role and task specific prompts from project
// data, prior analysis output and depth settings. Prompt wording is owned
// here; callers treat the output as opaque template results.
package promptengine

import (
	"fmt"
	"strings"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// Settings are the generation knobs implied by a depth level.
type Settings struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// SettingsFor maps a depth level to its generation knobs. Unknown depths get
// the standard tier.
func SettingsFor(depth models.Depth) Settings {
	switch depth {
	case models.DepthQuick:
		return Settings{MaxTokens: 1024, Temperature: 0.3, TopP: 0.9}
	case models.DepthDeep:
		return Settings{MaxTokens: 4096, Temperature: 0.6, TopP: 0.95}
	case models.DepthComprehensive:
		return Settings{MaxTokens: 8192, Temperature: 0.7, TopP: 0.95}
	default:
		return Settings{MaxTokens: 2048, Temperature: 0.5, TopP: 0.9}
	}
}

// ProjectInput is the project context fed into prompt construction.
type ProjectInput struct {
	Name        string
	Description string
	Industry    string
	Documents   []string // raw document texts
}

const analysisSystem = "You are a senior project analyst reviewing a proposal. Return valid JSON matching the requested schema. Use null for fields you cannot determine."

const analysisTemplate = `Analyze the following project and return a valid JSON object:
{"summary": "<2-3 sentence overview>", "key_findings": ["<finding>"], "risks": [{"title": "<t>", "description": "<d>", "severity": "low|medium|high|critical", "probability": <0-100>, "impact": <0-100>, "mitigation": "<m>"}], "recommendations": ["<r>"], "timeline": [{"name": "<phase>", "duration_days": <n>, "milestones": ["<m>"]}]}

Project: %s
Industry: %s
Description:
%s
%s%s`

const questionsSystem = "You are a requirements analyst preparing a client questionnaire. Return valid JSON only."

const questionsTemplate = `Based on the project below, generate the clarifying questions a consultant would ask before writing a proposal. Return a valid JSON object:
{"questions": [{"category": "<c>", "text": "<q>", "type": "text|textarea|select|multiselect|number", "options": ["<only for select types>"], "required": <bool>, "helpText": "<h>", "priority": <1-10>, "confidence": <0.0-1.0>}]}

Project: %s
Description:
%s
%s%s`

const reportSystem = "You are a senior consultant writing a final project report. Return valid JSON only."

const reportTemplate = `Write the final report for this project. Return a valid JSON object:
{"summary": "<executive summary>", "key_findings": ["<finding>"], "risks": [{"title": "<t>", "description": "<d>", "severity": "low|medium|high|critical", "probability": <0-100>, "impact": <0-100>, "mitigation": "<m>"}], "recommendations": ["<r>"], "timeline": [{"name": "<phase>", "duration_days": <n>, "milestones": ["<m>"]}]}

Project: %s
Prior analysis summary:
%s

Client answers:
%s
%s`

const enrichmentTemplate = `Summarize the %s signals for this project. Return a valid JSON object:
{"summary": "<summary>", "highlights": ["<point>"], "confidence": <0.0-1.0>}

Project: %s
Description:
%s`

// Engine builds prompts. Stateless; safe for concurrent use.
type Engine struct{}

// New creates an Engine.
func New() *Engine { return &Engine{} }

// Analysis builds the full-document analysis prompt as a message list.
func (e *Engine) Analysis(p ProjectInput, depth models.Depth) []Message {
	body := fmt.Sprintf(analysisTemplate,
		p.Name, orUnknown(p.Industry), Redact(p.Description),
		documentsBlock(p.Documents), depthDirective(depth))
	return []Message{
		{Role: "system", Content: analysisSystem},
		{Role: "user", Content: body},
	}
}

// Questions builds the question-generation prompt. Prior analysis output,
// when present, is folded in so questions target the identified gaps.
func (e *Engine) Questions(p ProjectInput, prior *models.AnalysisResult, depth models.Depth) []Message {
	var priorBlock string
	if prior != nil && !prior.ParseError {
		var b strings.Builder
		b.WriteString("Prior analysis:\n")
		b.WriteString(prior.Summary)
		for _, f := range prior.KeyFindings {
			b.WriteString("\n- ")
			b.WriteString(f)
		}
		b.WriteString("\n")
		priorBlock = b.String()
	}
	body := fmt.Sprintf(questionsTemplate,
		p.Name, Redact(p.Description), priorBlock, depthDirective(depth))
	return []Message{
		{Role: "system", Content: questionsSystem},
		{Role: "user", Content: body},
	}
}

// Report builds the report-synthesis prompt from the analysis artifact and
// the client's answers.
func (e *Engine) Report(p ProjectInput, prior *models.AnalysisResult, questions []models.Question, answers map[string]*models.Answer, depth models.Depth) []Message {
	var priorSummary string
	if prior != nil {
		priorSummary = prior.Summary
	}

	var qa strings.Builder
	for _, q := range questions {
		a := answers[q.ID]
		if a == nil || a.IsEmpty() {
			continue
		}
		fmt.Fprintf(&qa, "Q: %s\nA: %v\n", q.Text, a.Value)
		if a.Notes != "" {
			fmt.Fprintf(&qa, "Notes: %s\n", a.Notes)
		}
	}

	body := fmt.Sprintf(reportTemplate,
		p.Name, priorSummary, qa.String(), depthDirective(depth))
	return []Message{
		{Role: "system", Content: reportSystem},
		{Role: "user", Content: body},
	}
}

// Enrichment builds the prompt for one enriched-context sub-analysis.
// kind is one of project_structure, market_insights, tech_trend.
func (e *Engine) Enrichment(kind string, p ProjectInput) []Message {
	topic := strings.ReplaceAll(kind, "_", " ")
	body := fmt.Sprintf(enrichmentTemplate, topic, p.Name, Redact(p.Description))
	return []Message{{Role: "user", Content: body}}
}

// Message mirrors the provider message shape without importing the provider
// package; callers convert.
type Message struct {
	Role    string
	Content string
}

func documentsBlock(docs []string) string {
	if len(docs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nDocuments:\n")
	for i, d := range docs {
		fmt.Fprintf(&b, "--- Document %d ---\n%s\n", i+1, Redact(d))
	}
	return b.String()
}

func depthDirective(depth models.Depth) string {
	switch depth {
	case models.DepthQuick:
		return "\nKeep the output brief: top findings only."
	case models.DepthDeep:
		return "\nBe thorough: cover secondary risks and dependencies."
	case models.DepthComprehensive:
		return "\nBe exhaustive: cover all risks, dependencies, and alternatives."
	default:
		return ""
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
