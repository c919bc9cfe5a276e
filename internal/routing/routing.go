// Package routing implements the Routing Decider (C9): it chooses an
// automation approach from a DOM analysis, task-type heuristics, and
// historical success rates, closely following the base-rules-plus-
// overrides structure of the enhanced orchestrator this spec distills.
package routing

import (
	"fmt"
	"strings"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

// TaskType is the keyword-inferred category of an ActionRequest.
type TaskType string

const (
	TaskSimpleInteraction TaskType = "simple_interaction"
	TaskFormInteraction   TaskType = "form_interaction"
	TaskComplexNavigation TaskType = "complex_navigation"
	TaskContentExtraction TaskType = "content_extraction"
	TaskGeneral           TaskType = "general"
)

// Capabilities records which approaches are currently usable.
type Capabilities struct {
	AIAssistAvailable bool
	VisionAvailable   bool
	FallbackEnabled   bool
}

// ApproachStats is the learning signal for one approach: its aggregate
// success rate and how many attempts back it.
type ApproachStats struct {
	SuccessRate float64
	Attempts    int
}

// History supplies the historical-learning signal. TotalExecutions must
// reflect every routing decision made so far, regardless of approach.
type History interface {
	TotalExecutions() int
	StatsFor(approach model.Approach) ApproachStats
}

// Decision is C9's output: the chosen approach plus a human-readable
// reasoning trail attached to the execution history record.
type Decision struct {
	Approach  model.Approach
	TaskType  TaskType
	Reasoning string
	EdgeCase  float64
}

var complexNavKeywords = []string{"navigate", "search", "browse", "explore", "find the page", "multi-step", "workflow"}
var formKeywords = []string{"form", "field", "input", "fill", "enter", "submit"}
var simpleKeywords = []string{"click", "press", "select", "tap", "choose"}
var extractionKeywords = []string{"extract", "scrape", "read", "get text", "collect", "find the price", "find the value"}

var complexPageKeywords = []string{
	"dynamic", "javascript", "ajax", "react", "vue", "angular", "spa", "interactive",
	"animated", "popup", "modal", "dropdown", "autocomplete", "drag", "drop", "canvas",
	"svg", "iframe", "shadow", "complex", "multi-step",
}

// InferTaskType classifies a request's task_description/action_type
// into one of the §4.9 task types. Order matters: simple interactions
// that also mention form-ish words still count as form_interaction
// first, matching the enhanced orchestrator's priority.
func InferTaskType(req model.ActionRequest) TaskType {
	text := strings.ToLower(req.TaskDescription + " " + string(req.ActionType))

	switch req.ActionType {
	case model.ActionClick, model.ActionSelect:
		if !containsAny(text, formKeywords) {
			return TaskSimpleInteraction
		}
	}
	if containsAny(text, formKeywords) || req.ActionType == model.ActionTypeText {
		return TaskFormInteraction
	}
	if containsAny(text, complexNavKeywords) {
		return TaskComplexNavigation
	}
	if containsAny(text, extractionKeywords) || req.ActionType == model.ActionExtract {
		return TaskContentExtraction
	}
	if containsAny(text, simpleKeywords) {
		return TaskSimpleInteraction
	}
	return TaskGeneral
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// EdgeCaseScore implements the §4.9 edge-case scoring formula used to
// decide whether a base-rule Vision choice should be downgraded.
func EdgeCaseScore(ctx model.DecisionContext, taskType TaskType, taskText string) float64 {
	score := 0.0

	switch ctx.PageComplexity {
	case model.ComplexitySimple:
		score += 0.1
	case model.ComplexityModerate:
		score += 0.2
	case model.ComplexityComplex:
		score += 0.3
	}

	switch {
	case ctx.DOMConfidence < 0.2:
		score += 0.3
	case ctx.DOMConfidence < 0.4:
		score += 0.2
	default:
		score += 0.1
	}

	switch taskType {
	case TaskComplexNavigation:
		score += 0.3
	case TaskFormInteraction, TaskContentExtraction:
		score += 0.2
	default:
		score += 0.1
	}

	switch {
	case ctx.ElementCount > 20:
		score += 0.1
	case ctx.ElementCount > 10:
		score += 0.05
	}

	failures := len(ctx.PreviousFailures)
	switch {
	case failures >= 2:
		score += 0.2
	case failures == 1:
		score += 0.1
	}

	bonus := 0.0
	lower := strings.ToLower(taskText)
	for _, kw := range complexPageKeywords {
		if strings.Contains(lower, kw) {
			bonus += 0.05
		}
	}
	if bonus > 0.15 {
		bonus = 0.15
	}
	score += bonus

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Decide chooses an approach for req given its DecisionContext, current
// capabilities, and execution history, per §4.9's base rules and
// enhanced overrides, in the documented order.
func Decide(req model.ActionRequest, ctx model.DecisionContext, caps Capabilities, hist History) Decision {
	if req.ForceApproach != nil {
		return Decision{Approach: *req.ForceApproach, Reasoning: "force_approach set on request"}
	}

	taskType := InferTaskType(req)
	threshold := req.Threshold()

	approach, reason := baseRule(req, ctx, threshold)
	approach, reason = applyEnhancedOverrides(approach, reason, req, ctx, caps, hist, taskType)

	edgeCase := 0.0
	if approach == model.ApproachVision {
		edgeCase = EdgeCaseScore(ctx, taskType, req.TaskDescription)
		if edgeCase < 0.5 {
			if caps.AIAssistAvailable {
				approach = model.ApproachAI
				reason = "vision cost optimization: edge-case score below 0.5, downgraded to AI-Assist"
			} else {
				approach = model.ApproachDOM
				reason = "vision cost optimization: edge-case score below 0.5, AI-Assist unavailable, downgraded to DOM"
			}
		}
	}

	if ctx.DOMConfidence >= 0.8 {
		approach = model.ApproachDOM
		reason = "dom_confidence >= 0.8 always prefers DOM"
	}

	return Decision{Approach: approach, TaskType: taskType, Reasoning: reason, EdgeCase: edgeCase}
}

func baseRule(req model.ActionRequest, ctx model.DecisionContext, threshold float64) (model.Approach, string) {
	if ctx.UserPreference != nil {
		return *ctx.UserPreference, "user_preference set"
	}
	if ctx.DOMConfidence >= threshold {
		return model.ApproachDOM, fmt.Sprintf("dom_confidence %.2f >= threshold %.2f", ctx.DOMConfidence, threshold)
	}
	if ctx.FormsCount > 0 && ctx.DOMConfidence >= 0.7*threshold {
		return model.ApproachDOM, "forms detected and dom_confidence >= 0.7 * threshold"
	}
	if ctx.PageComplexity == model.ComplexityComplex && ctx.DOMConfidence >= 0.35 {
		return model.ApproachAI, "complex page with dom_confidence >= 0.35"
	}
	if ctx.DOMConfidence < 0.3 {
		return model.ApproachVision, "dom_confidence below 0.3"
	}
	return model.ApproachAI, "base rule fallthrough"
}

func applyEnhancedOverrides(approach model.Approach, reason string, req model.ActionRequest, ctx model.DecisionContext, caps Capabilities, hist History, taskType TaskType) (model.Approach, string) {
	switch taskType {
	case TaskSimpleInteraction:
		if ctx.DOMConfidence >= 0.5 {
			approach, reason = model.ApproachDOM, "simple_interaction with dom_confidence >= 0.5"
		}
	case TaskFormInteraction:
		if ctx.DOMConfidence >= 0.6 {
			approach, reason = model.ApproachDOM, "form_interaction with dom_confidence >= 0.6"
		} else if ctx.DOMConfidence >= 0.3 && caps.AIAssistAvailable {
			approach, reason = model.ApproachAI, "form_interaction with dom_confidence in [0.3, 0.6) and AI-Assist enabled"
		}
	case TaskComplexNavigation:
		if caps.AIAssistAvailable && ctx.DOMConfidence >= 0.4 {
			approach, reason = model.ApproachAI, "complex_navigation with AI-Assist available and dom_confidence >= 0.4"
		} else if caps.VisionAvailable && caps.FallbackEnabled {
			approach, reason = model.ApproachVision, "complex_navigation falling back to vision"
		}
	case TaskContentExtraction:
		if ctx.DOMConfidence >= 0.5 {
			approach, reason = model.ApproachDOM, "content_extraction with dom_confidence >= 0.5"
		}
	}

	if hist != nil && hist.TotalExecutions() >= 10 {
		if stats := hist.StatsFor(model.ApproachDOM); stats.Attempts >= 3 && stats.SuccessRate > 0.8 {
			approach, reason = model.ApproachDOM, "Historical DOM success rate > 0.8 over >= 3 attempts"
		} else if stats := hist.StatsFor(model.ApproachAI); stats.Attempts >= 3 && stats.SuccessRate > 0.7 {
			approach, reason = model.ApproachAI, "Historical AI-Assist success rate > 0.7 over >= 3 attempts"
		}
	}

	return approach, reason
}
