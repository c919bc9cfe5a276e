// Package recovery implements Interactive Recovery (C10): on failure it
// enumerates recovery options, invokes a user-supplied callback to pick
// one, and executes the chosen action.
package recovery

import (
	"context"
	"fmt"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

// Context is everything shown to (and reasoned over by) the user
// callback when a failure needs interactive recovery.
type Context struct {
	Error           model.ErrorContext
	Result          model.ActionResult
	TriedApproaches []model.Approach
	Explanation     string
	Options         []model.RecoveryOption
	Analysis        string // optional LLM-generated analysis, empty if unavailable
}

// Callback receives a recovery Context and returns the chosen action
// plus optional free-form input (used by modify_task).
type Callback func(ctx context.Context, rc Context) (model.RecoveryActionKind, string, error)

var allApproaches = []model.Approach{model.ApproachDOM, model.ApproachAI, model.ApproachVision}

// remainingApproaches returns every approach not yet present in tried.
func remainingApproaches(tried []model.Approach) []model.Approach {
	triedSet := make(map[model.Approach]bool, len(tried))
	for _, a := range tried {
		triedSet[a] = true
	}
	var out []model.Approach
	for _, a := range allApproaches {
		if !triedSet[a] {
			out = append(out, a)
		}
	}
	return out
}

// BuildOptions generates the ranked RecoveryOption list per §4.10's
// option-generation rules.
func BuildOptions(errCtx model.ErrorContext, tried []model.Approach) []model.RecoveryOption {
	var opts []model.RecoveryOption

	if errCtx.Retryable {
		opts = append(opts, model.RecoveryOption{
			Action:      model.RecoveryRetrySame,
			Title:       "Retry the same approach",
			Description: fmt.Sprintf("Retry using %s once more", errCtx.ApproachUsed),
			Confidence:  0.6,
		})
	}

	for _, remaining := range remainingApproaches(tried) {
		opts = append(opts, model.RecoveryOption{
			Action:      model.RecoveryTryDifferent,
			Title:       fmt.Sprintf("Try %s instead", remaining),
			Description: fmt.Sprintf("Switch to the %s approach for this step", remaining),
			Confidence:  0.5,
		})
	}

	opts = append(opts,
		model.RecoveryOption{
			Action:        model.RecoveryModifyTask,
			Title:         "Modify the task",
			Description:   "Rephrase or narrow the task description and try again",
			Confidence:    0.4,
			RequiresInput: true,
		},
		model.RecoveryOption{
			Action:      model.RecoveryShowBrowser,
			Title:       "Show the browser",
			Description: "Re-run the same approach with the browser window visible",
			Confidence:  0.3,
		},
		model.RecoveryOption{
			Action:      model.RecoveryManual,
			Title:       "Complete this step manually",
			Description: "Mark this step complete and continue the workflow yourself",
			Confidence:  0.2,
		},
		model.RecoveryOption{
			Action:      model.RecoveryAbort,
			Title:       "Abort",
			Description: "Stop the automation and surface the failure",
			Confidence:  0.1,
		},
	)
	return opts
}

// Handle builds a Context, invokes cb, and returns the chosen action and
// any additional input. If cb is nil or errors, it defaults to
// try_different when another approach remains, otherwise abort — per
// the documented user-callback contract.
func Handle(ctx context.Context, errCtx model.ErrorContext, result model.ActionResult, tried []model.Approach, analysis string, cb Callback) (model.RecoveryActionKind, string, Context) {
	opts := BuildOptions(errCtx, tried)
	rc := Context{
		Error:           errCtx,
		Result:          result,
		TriedApproaches: tried,
		Explanation:     explain(errCtx),
		Options:         opts,
		Analysis:        analysis,
	}

	defaultAction := model.RecoveryAbort
	if len(remainingApproaches(tried)) > 0 {
		defaultAction = model.RecoveryTryDifferent
	}

	if cb == nil {
		return defaultAction, "", rc
	}
	action, input, err := cb(ctx, rc)
	if err != nil {
		return defaultAction, "", rc
	}
	return action, input, rc
}

func explain(errCtx model.ErrorContext) string {
	return fmt.Sprintf("The %s approach failed with a %s error: %s", errCtx.ApproachUsed, errCtx.Category, errCtx.Message)
}

// Executor performs the actual execution of a chosen recovery action.
// retrySame re-runs the failed approach as-is; tryDifferent receives the
// approaches tried so far and runs whichever other approach the caller
// picks from them; showBrowser re-runs the same approach with
// ShowBrowser forced true.
type Executor struct {
	RetrySame     func(ctx context.Context) model.ActionResult
	TryDifferent  func(ctx context.Context, previousFailures []model.Approach) model.ActionResult
	ShowBrowser   func(ctx context.Context) model.ActionResult
}

// Execute runs the chosen RecoveryActionKind and returns the resulting
// ActionResult, per §4.10's execution semantics.
func (e Executor) Execute(ctx context.Context, action model.RecoveryActionKind, additionalInput string, tried []model.Approach) model.ActionResult {
	switch action {
	case model.RecoveryRetrySame:
		if e.RetrySame == nil {
			return abortResult("retry_same not supported in this context")
		}
		return e.RetrySame(ctx)
	case model.RecoveryTryDifferent:
		if e.TryDifferent == nil {
			return abortResult("try_different not supported in this context")
		}
		return e.TryDifferent(ctx, tried)
	case model.RecoveryModifyTask:
		return model.ActionResult{
			Success:      false,
			ResultData:   map[string]any{"modify_task": true, "additional_input": additionalInput},
			ErrorMessage: "task must be modified before retrying",
		}
	case model.RecoveryShowBrowser:
		if e.ShowBrowser == nil {
			return abortResult("show_browser not supported in this context")
		}
		return e.ShowBrowser(ctx)
	case model.RecoveryManual:
		return model.ActionResult{
			Success:    true,
			Confidence: 1.0,
			ResultData: map[string]any{"manual": true},
		}
	case model.RecoveryAbort:
		fallthrough
	default:
		return abortResult("recovery aborted by user")
	}
}

func abortResult(msg string) model.ActionResult {
	return model.ActionResult{
		Success:      false,
		ErrorMessage: msg,
		ResultData:   map[string]any{"aborted": true},
	}
}
