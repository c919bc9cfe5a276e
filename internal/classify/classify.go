// Package classify maps raw errors to the error taxonomy used throughout
// the orchestration engine. Classification is a pure function: same
// inputs always produce the same ErrorContext, and nothing here touches
// the network, a browser page, or a clock.
package classify

import (
	"strings"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

type rule struct {
	category   model.ErrorCategory
	signals    []string
	retryable  func(approach model.Approach) bool
	fallback   func(approach model.Approach) bool
	impact     float64
}

func always(b bool) func(model.Approach) bool { return func(model.Approach) bool { return b } }

// rules is ordered; the first matching rule wins. It mirrors the table
// in the classifier's design doc verbatim, including the two
// approach-conditional entries (element_not_found is retryable for DOM
// only, browser errors are not retried for Vision, timeout's fallback
// recommendation is DOM-only).
var rules = []rule{
	{
		category: model.CategoryNetwork,
		signals:  []string{"connection", "dns", "unreachable", "httperror", "urlerror"},
		retryable: always(true),
		fallback:  always(false),
		impact:    0.1,
	},
	{
		category: model.CategoryPageLoad,
		signals:  []string{"failed to load", "navigation", "page not found", "404", "500"},
		retryable: always(true),
		fallback:  always(true),
		impact:    0.2,
	},
	{
		category: model.CategoryElementNotFound,
		signals:  []string{"element not found", "no such element", "not visible", "selector", "xpath"},
		retryable: func(a model.Approach) bool { return a == model.ApproachDOM },
		fallback:  always(true),
		impact:    0.3,
	},
	{
		category: model.CategoryInteractionFailed,
		signals:  []string{"click failed", "not interactable", "intercepted", "obscured"},
		retryable: always(true),
		fallback:  always(true),
		impact:    0.2,
	},
	{
		category: model.CategoryPermissionDenied,
		signals:  []string{"denied", "cors", "cross-origin", "forbidden", "security"},
		retryable: always(false),
		fallback:  always(false),
		impact:    0.5,
	},
	{
		category: model.CategoryBrowser,
		signals:  []string{"webdriver", "chromedriver", "driver", "session"},
		retryable: func(a model.Approach) bool { return a != model.ApproachVision },
		fallback:  always(true),
		impact:    0.4,
	},
	{
		category: model.CategoryTimeout,
		signals:  []string{"timeout", "timed out", "time limit", "deadline"},
		retryable: always(true),
		fallback:  func(a model.Approach) bool { return a == model.ApproachDOM },
		impact:    0.2,
	},
	{
		category: model.CategoryConfiguration,
		signals:  []string{"config", "setup", "initialization", "not configured"},
		retryable: always(false),
		fallback:  always(true),
		impact:    0.3,
	},
}

// hasNetworkTimeout reports the network category's compound signal:
// "timeout" co-occurring with "network" in the same message.
func hasNetworkTimeout(lower string) bool {
	return strings.Contains(lower, "timeout") && strings.Contains(lower, "network")
}

// Classify maps an error's message, the approach that produced it, and
// arbitrary caller metadata onto an ErrorContext. Rule order matters:
// the first matching category wins, falling through to "unknown".
func Classify(err error, approach model.Approach, metadata map[string]any) model.ErrorContext {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ClassifyMessage(msg, approach, metadata)
}

// ClassifyMessage is Classify's string-based entry point, useful when the
// raw message is already in hand (e.g. from an external agent's report).
func ClassifyMessage(msg string, approach model.Approach, metadata map[string]any) model.ErrorContext {
	lower := strings.ToLower(msg)

	if matchesAny(lower, rules[0].signals) || hasNetworkTimeout(lower) {
		return build(rules[0], msg, approach, metadata)
	}
	for _, r := range rules[1:] {
		if matchesAny(lower, r.signals) {
			return build(r, msg, approach, metadata)
		}
	}
	return model.ErrorContext{
		Category:            model.CategoryUnknown,
		Message:             msg,
		ApproachUsed:        approach,
		Retryable:           true,
		FallbackRecommended: true,
		ConfidenceImpact:    0.2,
		Metadata:            metadata,
	}
}

func matchesAny(lower string, signals []string) bool {
	for _, s := range signals {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func build(r rule, msg string, approach model.Approach, metadata map[string]any) model.ErrorContext {
	return model.ErrorContext{
		Category:            r.category,
		Message:             msg,
		ApproachUsed:        approach,
		Retryable:           r.retryable(approach),
		FallbackRecommended: r.fallback(approach),
		ConfidenceImpact:    r.impact,
		Metadata:            metadata,
	}
}
