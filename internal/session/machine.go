// Package session drives an analysis session through its four stages and
// computes user-facing progress. The machine validates transitions; the
// orchestration service supplies the artifacts it checks against.
package session

import (
	"fmt"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// Weights are the per-stage contributions to overall progress. They should
// sum to 100.
type Weights struct {
	Setup     int
	Analysis  int
	Questions int
	Report    int
}

// DefaultWeights mirrors the product's stage weighting.
func DefaultWeights() Weights {
	return Weights{Setup: 10, Analysis: 40, Questions: 30, Report: 20}
}

func (w Weights) of(s models.Stage) int {
	switch s {
	case models.StageSetup:
		return w.Setup
	case models.StageAnalysis:
		return w.Analysis
	case models.StageQuestions:
		return w.Questions
	case models.StageReport:
		return w.Report
	}
	return 0
}

// RegenerationPolicy decides when a move into the questions stage discards
// existing questions and regenerates them. The default regenerates only when
// every existing question is a static default and upstream analysis output
// now exists.
type RegenerationPolicy struct {
	// RequireAllStatic regenerates only if no existing question is AI generated.
	RequireAllStatic bool
	// RequireUpstreamData regenerates only if an analysis artifact exists.
	RequireUpstreamData bool
}

// DefaultRegenerationPolicy returns the stock policy.
func DefaultRegenerationPolicy() RegenerationPolicy {
	return RegenerationPolicy{RequireAllStatic: true, RequireUpstreamData: true}
}

// ShouldRegenerate applies the policy to the session's current questions and
// the presence of upstream analysis output.
func (p RegenerationPolicy) ShouldRegenerate(existing []models.Question, hasAnalysis bool) bool {
	if len(existing) == 0 {
		return true
	}
	if p.RequireAllStatic {
		for _, q := range existing {
			if q.AIGenerated {
				return false
			}
		}
	}
	if p.RequireUpstreamData && !hasAnalysis {
		return false
	}
	return true
}

// TransitionError reports a rejected stage transition with the unmet guard.
type TransitionError struct {
	From   models.Stage
	To     models.Stage
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: cannot move %s -> %s: %s", e.From, e.To, e.Reason)
}

// Artifacts is what the machine inspects when validating a transition.
type Artifacts struct {
	// Analysis is the latest completed analysis result, nil if none.
	Analysis *models.AnalysisResult
	// Questions are the session's current questions.
	Questions []models.Question
	// Answers maps question ID to its latest answer.
	Answers map[string]*models.Answer
}

// Machine validates transitions and computes progress for sessions.
// Stateless; all state lives on the session and its artifacts.
type Machine struct {
	weights Weights
	policy  RegenerationPolicy
}

// Option configures a Machine.
type Option func(*Machine)

// WithWeights overrides the progress weights.
func WithWeights(w Weights) Option {
	return func(m *Machine) { m.weights = w }
}

// WithRegenerationPolicy overrides the question regeneration policy.
func WithRegenerationPolicy(p RegenerationPolicy) Option {
	return func(m *Machine) { m.policy = p }
}

// New creates a Machine with default weights and policy.
func New(opts ...Option) *Machine {
	m := &Machine{weights: DefaultWeights(), policy: DefaultRegenerationPolicy()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Policy returns the machine's regeneration policy.
func (m *Machine) Policy() RegenerationPolicy { return m.policy }

// CanAdvance checks whether the session may move to the next stage given the
// artifacts. Returns the target stage, or a *TransitionError naming the
// unmet guard.
func (m *Machine) CanAdvance(s *models.AnalysisSession, a Artifacts) (models.Stage, error) {
	next := s.Stage.Next()
	if next == s.Stage {
		return "", &TransitionError{From: s.Stage, To: s.Stage, Reason: "report is terminal"}
	}
	if err := m.guard(s, next, a); err != nil {
		return "", err
	}
	return next, nil
}

// Advance validates and applies the transition, mutating the session's stage
// and resetting its status to idle for the new stage.
func (m *Machine) Advance(s *models.AnalysisSession, a Artifacts) error {
	next, err := m.CanAdvance(s, a)
	if err != nil {
		return err
	}
	s.Stage = next
	s.Status = models.StatusIdle
	return nil
}

// MarkProcessing flags the session's current stage as in flight.
func (m *Machine) MarkProcessing(s *models.AnalysisSession) {
	s.Status = models.StatusProcessing
}

// MarkCompleted flags the current stage's work as done without advancing.
func (m *Machine) MarkCompleted(s *models.AnalysisSession) {
	s.Status = models.StatusCompleted
}

// MarkFailed records a stage failure. The stage is kept so the session stays
// resumable from the same point.
func (m *Machine) MarkFailed(s *models.AnalysisSession) {
	s.Status = models.StatusFailed
}

// Restart is the only backward transition: the session re-enters setup.
// Persisted artifacts from the prior pass are superseded, not deleted.
func (m *Machine) Restart(s *models.AnalysisSession) {
	s.Stage = models.StageSetup
	s.Status = models.StatusIdle
}

func (m *Machine) guard(s *models.AnalysisSession, to models.Stage, a Artifacts) error {
	switch to {
	case models.StageAnalysis:
		if s.Provider == "" || s.Model == "" {
			return &TransitionError{From: s.Stage, To: to, Reason: "provider and model must be selected"}
		}
	case models.StageQuestions:
		if a.Analysis == nil {
			return &TransitionError{From: s.Stage, To: to, Reason: "no completed analysis result"}
		}
	case models.StageReport:
		for _, q := range a.Questions {
			if !q.Required {
				continue
			}
			if a.Answers[q.ID].IsEmpty() {
				return &TransitionError{From: s.Stage, To: to,
					Reason: fmt.Sprintf("required question %q is unanswered", q.ID)}
			}
		}
	}
	return nil
}

// Progress computes the weighted completion percentage. Fully passed stages
// contribute their whole weight. The in-progress stage earns partial credit:
// the answered-question ratio during questions, or half its weight while a
// provider call is outstanding.
func (m *Machine) Progress(s *models.AnalysisSession, a Artifacts) int {
	total := 0
	idx := s.Stage.Index()
	for _, st := range []models.Stage{models.StageSetup, models.StageAnalysis, models.StageQuestions, models.StageReport} {
		if st.Index() < idx {
			total += m.weights.of(st)
		}
	}
	total += m.partialCredit(s, a)
	if total > 100 {
		total = 100
	}
	return total
}

func (m *Machine) partialCredit(s *models.AnalysisSession, a Artifacts) int {
	w := m.weights.of(s.Stage)
	switch s.Status {
	case models.StatusCompleted:
		return w
	case models.StatusProcessing:
		return w / 2
	}
	if s.Stage == models.StageQuestions && len(a.Questions) > 0 {
		answered := 0
		for _, q := range a.Questions {
			if !a.Answers[q.ID].IsEmpty() {
				answered++
			}
		}
		return w * answered / len(a.Questions)
	}
	return 0
}
