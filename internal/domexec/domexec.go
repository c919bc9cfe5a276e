// Package domexec implements the DOM Action Executor (C3): it locates
// an element within a DOMAnalysis by free-form description and performs
// one concrete action against it.
package domexec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

// Actuator is the minimal set of page operations domexec needs. A real
// implementation adapts a browser.Manager's page; tests use a fake.
type Actuator interface {
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error
	SelectOption(ctx context.Context, selector, labelOrValue string) error
	WaitForLoadState(ctx context.Context, timeout time.Duration) error
}

// Analyzer produces a fresh DOMAnalysis for the current page, used both
// for the initial locate and for the adaptive-recovery re-snapshot.
type Analyzer func(ctx context.Context) (model.DOMAnalysis, error)

const (
	maxAdaptiveRetries = 2
	postActionTimeout  = 5 * time.Second
)

// destructiveKeywords mirrors the teacher's bilingual confirmation gate,
// generalized from click-target text to any target/action description.
var destructiveKeywords = []string{
	"delete", "удалить", "pay", "payment", "оплатить", "submit", "отправить",
	"unsubscribe", "отписаться", "remove", "удаление", "cancel", "отменить",
	"confirm purchase", "подтвердить покупку",
}

// RequiresConfirmation reports whether req's target or task description
// matches the destructive-action keyword list, per the confirmation-gate
// supplemental feature.
func RequiresConfirmation(req model.ActionRequest) bool {
	haystack := strings.ToLower(req.TargetDescription + " " + req.TaskDescription)
	for _, kw := range destructiveKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// Execute runs req's action end to end: analyze, confidence gate,
// locate, act, settle. analyze is called at least once and, on a
// not-interactable/stale failure, up to maxAdaptiveRetries additional
// times with a short wait before surfacing to the caller's retry layer.
func Execute(ctx context.Context, act Actuator, analyze Analyzer, req model.ActionRequest) model.ActionResult {
	var lastErr error
	for attempt := 0; attempt <= maxAdaptiveRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return failure(err.Error(), "")
		}

		analysis, err := analyze(ctx)
		if err != nil {
			return failure(fmt.Sprintf("dom analysis failed: %v", err), "")
		}
		if analysis.AnalysisConfidence < req.Threshold() {
			return failure(
				fmt.Sprintf("dom confidence %.2f below threshold %.2f", analysis.AnalysisConfidence, req.Threshold()),
				"use AI-Assist",
			)
		}

		el, ok := locate(analysis.Interactive, req.TargetDescription)
		if !ok {
			return failure("element not found: "+req.TargetDescription, "use AI-Assist")
		}

		err = act1(ctx, act, req, el)
		if err == nil {
			if err := act.WaitForLoadState(ctx, postActionTimeout); err != nil {
				// non-fatal: action itself succeeded, load-state wait is best effort
			}
			return model.ActionResult{
				Success:      true,
				ApproachUsed: model.ApproachDOM,
				Confidence:   el.Confidence,
				ResultData: map[string]any{
					"selector": el.Selector,
					"attempts": attempt + 1,
				},
			}
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
		select {
		case <-ctx.Done():
			return failure(ctx.Err().Error(), "")
		case <-time.After(time.Duration(attempt+1) * 250 * time.Millisecond):
		}
	}
	return failure(lastErr.Error(), "retry with a different approach")
}

func failure(msg, recommendation string) model.ActionResult {
	return model.ActionResult{
		Success:        false,
		ApproachUsed:   model.ApproachDOM,
		ErrorMessage:   msg,
		Recommendation: recommendation,
	}
}

func isTransient(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "not interactable") ||
		strings.Contains(lower, "stale") ||
		strings.Contains(lower, "intercepted") ||
		strings.Contains(lower, "obscured")
}

func act1(ctx context.Context, act Actuator, req model.ActionRequest, el model.DOMElement) error {
	switch req.ActionType {
	case model.ActionClick, model.ActionSubmit:
		return act.Click(ctx, el.Selector)
	case model.ActionTypeText:
		text, ok := req.ActionData["text"].(string)
		if !ok {
			return fmt.Errorf("type action missing action_data.text")
		}
		return act.Fill(ctx, el.Selector, text)
	case model.ActionSelect:
		value, _ := req.ActionData["option"].(string)
		if value == "" {
			return fmt.Errorf("select action missing action_data.option")
		}
		return act.SelectOption(ctx, el.Selector, value)
	case model.ActionClear:
		return act.Fill(ctx, el.Selector, "")
	default:
		return fmt.Errorf("unsupported action type for dom executor: %s", req.ActionType)
	}
}

// locate scans interactive elements for one matching target by
// case-insensitive substring against text/attributes first, falling
// back to fuzzy token overlap. Scan order is preserved so the first,
// highest-priority match wins ties.
func locate(elements []model.DOMElement, target string) (model.DOMElement, bool) {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return model.DOMElement{}, false
	}

	for _, el := range elements {
		if elementMatchesSubstring(el, target) {
			return el, true
		}
	}
	targetTokens := tokenize(target)
	best := model.DOMElement{}
	bestScore := 0
	found := false
	for _, el := range elements {
		score := tokenOverlap(targetTokens, tokenize(elementHaystack(el)))
		if score > bestScore {
			bestScore = score
			best = el
			found = true
		}
	}
	if found && bestScore > 0 {
		return best, true
	}
	return model.DOMElement{}, false
}

func elementHaystack(el model.DOMElement) string {
	var b strings.Builder
	b.WriteString(el.Text)
	for _, v := range el.Attributes {
		b.WriteString(" ")
		b.WriteString(v)
	}
	return b.String()
}

func elementMatchesSubstring(el model.DOMElement, target string) bool {
	return strings.Contains(strings.ToLower(elementHaystack(el)), target)
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

func tokenOverlap(a, b []string) int {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}
	count := 0
	for _, t := range a {
		if set[t] {
			count++
		}
	}
	return count
}
