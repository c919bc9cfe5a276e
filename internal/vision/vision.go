// Package vision implements the Vision Executor (C6): a thin wrapper
// around an external autonomous visual browsing agent whose free-form
// textual report is parsed into a structured ActionResult.
package vision

import (
	"context"
	"fmt"
	"strings"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

// Agent is the external autonomous visual browsing agent (consumed,
// per §6) — browse_and_find(task, url, max_steps, headless).
type Agent interface {
	BrowseAndFind(ctx context.Context, task, url string, maxSteps int, headless bool) (string, error)
}

// Executor is C6.
type Executor struct {
	agent       Agent
	configured  bool
	maxStepsDef int
}

// New constructs an Executor. configured mirrors the "agent not
// configured" short-circuit described in §4.6.
func New(agent Agent, configured bool) *Executor {
	return &Executor{agent: agent, configured: configured, maxStepsDef: 25}
}

// Execute drives the external agent and parses its report.
func (e *Executor) Execute(ctx context.Context, req model.ActionRequest, maxSteps int, headless bool) model.ActionResult {
	if !e.configured {
		return model.ActionResult{
			Success:        false,
			ApproachUsed:   model.ApproachVision,
			ErrorMessage:   "vision agent not configured",
			Recommendation: "configure an autonomous visual browsing agent to use this approach",
		}
	}
	if maxSteps <= 0 {
		maxSteps = e.maxStepsDef
	}

	report, err := e.agent.BrowseAndFind(ctx, req.TaskDescription, req.URL, maxSteps, headless)
	if err != nil {
		return model.ActionResult{
			Success:      false,
			ApproachUsed: model.ApproachVision,
			ErrorMessage: err.Error(),
		}
	}
	return ParseReport(report)
}

// ParseReport implements the §4.6 report grammar. Only the documented
// markers are recognized (a glyph must lead the report; a phrase may
// appear anywhere in it); any other report is a
// failure at confidence 0.3 with the raw text preserved verbatim, never
// silently discarded, per the recorded open-question decision.
func ParseReport(report string) model.ActionResult {
	trimmed := strings.TrimSpace(report)
	lower := strings.ToLower(trimmed)

	if strings.Contains(lower, "requires vision capabilities") {
		return model.ActionResult{
			Success:      false,
			ApproachUsed: model.ApproachVision,
			ErrorMessage: "requires vision capabilities",
			ResultData:   map[string]any{"bedrock_mode": true, "raw_report": report},
		}
	}

	switch {
	case strings.HasPrefix(trimmed, "✅") || containsPhrase(lower, "task completed successfully"):
		return model.ActionResult{
			Success:      true,
			ApproachUsed: model.ApproachVision,
			Confidence:   0.8,
			ResultData:   map[string]any{"raw_report": report},
		}
	case strings.HasPrefix(trimmed, "⚠️") || containsPhrase(lower, "partially completed"):
		return model.ActionResult{
			Success:      false,
			ApproachUsed: model.ApproachVision,
			Confidence:   0.4,
			ResultData:   map[string]any{"partial_success": true, "raw_report": report},
		}
	case strings.HasPrefix(trimmed, "❌") || containsPhrase(lower, "task failed"):
		return model.ActionResult{
			Success:      false,
			ApproachUsed: model.ApproachVision,
			Confidence:   0.1,
			ErrorMessage: extractIssueLine(report),
			ResultData:   map[string]any{"raw_report": report},
		}
	default:
		return model.ActionResult{
			Success:      false,
			ApproachUsed: model.ApproachVision,
			Confidence:   0.3,
			ErrorMessage: "unrecognized vision agent report",
			ResultData:   map[string]any{"raw_report": report},
		}
	}
}

func containsPhrase(lower, phrase string) bool {
	return strings.Contains(lower, phrase)
}

func extractIssueLine(report string) string {
	for _, line := range strings.Split(report, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), "issue:") {
			return strings.TrimSpace(line[len("issue:"):])
		}
	}
	return fmt.Sprintf("task failed: %s", strings.TrimSpace(report))
}
