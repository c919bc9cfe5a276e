// Package model holds the data types shared across the orchestration
// engine: requests, decisions, analyses, results and error contexts.
// Nothing in this package depends on browser, LLM, or storage concerns —
// it is the vocabulary every other package speaks.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Approach is the automation strategy used to fulfill an action.
type Approach string

const (
	ApproachDOM    Approach = "dom"
	ApproachAI     Approach = "ai_assist"
	ApproachVision Approach = "vision"
)

func (a Approach) String() string { return string(a) }

// ActionType enumerates the kinds of actions an ActionRequest can carry.
type ActionType string

const (
	ActionClick      ActionType = "click"
	ActionTypeText   ActionType = "type"
	ActionSelect     ActionType = "select"
	ActionClear      ActionType = "clear"
	ActionExtract    ActionType = "extract"
	ActionSubmit     ActionType = "submit"
	ActionAutomation ActionType = "automation"
)

// ActionRequest is an immutable description of one automation step.
type ActionRequest struct {
	RequestID           uuid.UUID
	URL                 string
	TaskDescription     string
	ActionType          ActionType
	TargetDescription   string
	ActionData          map[string]any
	ConfidenceThreshold float64
	ShowBrowser         bool
	// ForceApproach bypasses routing when set.
	ForceApproach *Approach
}

// Threshold returns ConfidenceThreshold, defaulting to 0.7 when unset.
func (r ActionRequest) Threshold() float64 {
	if r.ConfidenceThreshold <= 0 {
		return 0.7
	}
	return r.ConfidenceThreshold
}

// PageComplexity buckets a page by interactive-element and form count.
type PageComplexity string

const (
	ComplexitySimple   PageComplexity = "simple"
	ComplexityModerate PageComplexity = "moderate"
	ComplexityComplex  PageComplexity = "complex"
)

// DecisionContext is derived from a page analysis plus the request.
type DecisionContext struct {
	DOMConfidence     float64
	PageComplexity    PageComplexity
	ElementCount      int
	FormsCount        int
	PreviousFailures  []Approach
	UserPreference    *Approach
}

// HasFailed reports whether approach already failed in this context.
func (c DecisionContext) HasFailed(a Approach) bool {
	for _, f := range c.PreviousFailures {
		if f == a {
			return true
		}
	}
	return false
}

// ElementType classifies a DOM element for routing/action purposes.
type ElementType string

const (
	ElementButton    ElementType = "button"
	ElementTextInput ElementType = "text_input"
	ElementCheckbox  ElementType = "checkbox"
	ElementRadio     ElementType = "radio"
	ElementSelect    ElementType = "select"
	ElementLink      ElementType = "link"
	ElementOther     ElementType = "other"
)

// DOMElement is one interactive (or content) node extracted from a page.
type DOMElement struct {
	Tag          string
	Text         string
	ElementType  ElementType
	Attributes   map[string]string
	XPath        string
	Selector     string
	IsInteractive bool
	Confidence   float64
}

// FormField describes one field of an extracted HTML form.
type FormField struct {
	Name string
	Type string
}

// Form describes one extracted HTML form.
type Form struct {
	Method string
	Action string
	Fields []FormField
}

// DOMAnalysis is a structured snapshot of a page's interactive surface.
type DOMAnalysis struct {
	URL                string
	Title              string
	Interactive        []DOMElement
	Forms              []Form
	Navigation         []DOMElement
	Content            []DOMElement
	TotalElementCount  int
	AnalysisConfidence float64
}

// AbstractActionType is the kind of one step in a synthesized Pattern.
type AbstractActionType string

const (
	AbstractObserve AbstractActionType = "observe"
	AbstractAct     AbstractActionType = "act"
	AbstractExtract AbstractActionType = "extract"
)

// AbstractAction is one step of a Pattern's action sequence.
type AbstractAction struct {
	Type        AbstractActionType
	Description string
	Options     map[string]any
}

// Pattern is a reusable, cached AI-Assist action sequence.
type Pattern struct {
	PatternID    string
	Actions      []AbstractAction
	SuccessCount int
	FailureCount int
	LastUsed     time.Time
	CreatedAt    time.Time
}

// SuccessRate is successes/(successes+failures), or 0 with none recorded.
func (p Pattern) SuccessRate() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(total)
}

// Attempts returns the total number of recorded attempts (successes plus
// failures).
func (p Pattern) Attempts() int { return p.SuccessCount + p.FailureCount }

// ActionResult is the terminal outcome of one ActionRequest.
type ActionResult struct {
	Success        bool
	ApproachUsed   Approach
	Confidence     float64
	ExecutionTime  time.Duration
	ResultData     map[string]any
	ErrorMessage   string
	Recommendation string
}

// ErrorCategory is the error taxonomy classified errors fall into.
type ErrorCategory string

const (
	CategoryNetwork           ErrorCategory = "network"
	CategoryPageLoad          ErrorCategory = "page_load"
	CategoryElementNotFound   ErrorCategory = "element_not_found"
	CategoryInteractionFailed ErrorCategory = "interaction_failed"
	CategoryPermissionDenied  ErrorCategory = "permission_denied"
	CategoryBrowser           ErrorCategory = "browser"
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryConfiguration     ErrorCategory = "configuration"
	CategoryUnknown           ErrorCategory = "unknown"
)

// ErrorContext is the classified outcome of a failed operation.
type ErrorContext struct {
	Category          ErrorCategory
	Message           string
	ApproachUsed      Approach
	Retryable         bool
	FallbackRecommended bool
	ConfidenceImpact  float64
	Metadata          map[string]any
}

// RecoveryActionKind is one user-selectable action following a failure.
type RecoveryActionKind string

const (
	RecoveryRetrySame     RecoveryActionKind = "retry_same"
	RecoveryTryDifferent  RecoveryActionKind = "try_different"
	RecoveryModifyTask    RecoveryActionKind = "modify_task"
	RecoveryShowBrowser   RecoveryActionKind = "show_browser"
	RecoveryManual        RecoveryActionKind = "manual"
	RecoveryAbort         RecoveryActionKind = "abort"
)

// RecoveryOption is one choice offered to the user after a failure.
type RecoveryOption struct {
	Action        RecoveryActionKind
	Title         string
	Description   string
	Confidence    float64
	RequiresInput bool
}

// ExecutionRecord is one bounded-ring-buffer entry of orchestrator history.
type ExecutionRecord struct {
	ID            uuid.UUID
	Timestamp     time.Time
	URL           string
	Task          string
	ActionType    ActionType
	Approach      Approach
	Success       bool
	Confidence    float64
	ExecutionTime time.Duration
	Reasoning     string
	Error         string
	RecoveryAction RecoveryActionKind
	RecoveryUsed  bool
}
