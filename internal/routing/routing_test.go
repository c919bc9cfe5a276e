package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

type fakeHistory struct {
	total int
	stats map[model.Approach]ApproachStats
}

func (f fakeHistory) TotalExecutions() int { return f.total }
func (f fakeHistory) StatsFor(a model.Approach) ApproachStats {
	return f.stats[a]
}

func TestDecide_ForceApproachBypassesEverything(t *testing.T) {
	forced := model.ApproachVision
	req := model.ActionRequest{ForceApproach: &forced}
	d := Decide(req, model.DecisionContext{DOMConfidence: 0.99}, Capabilities{}, nil)
	assert.Equal(t, model.ApproachVision, d.Approach)
}

func TestDecide_HighConfidenceChoosesDOM(t *testing.T) {
	req := model.ActionRequest{ConfidenceThreshold: 0.7}
	d := Decide(req, model.DecisionContext{DOMConfidence: 0.9}, Capabilities{}, nil)
	assert.Equal(t, model.ApproachDOM, d.Approach)
}

func TestDecide_FormsDetectedChoosesDOM(t *testing.T) {
	req := model.ActionRequest{ConfidenceThreshold: 0.7}
	ctx := model.DecisionContext{DOMConfidence: 0.5, FormsCount: 1} // 0.7*0.7=0.49 <= 0.5
	d := Decide(req, ctx, Capabilities{}, nil)
	assert.Equal(t, model.ApproachDOM, d.Approach)
}

func TestDecide_LowConfidenceChoosesVision(t *testing.T) {
	req := model.ActionRequest{ConfidenceThreshold: 0.7, TaskDescription: "do something obscure"}
	ctx := model.DecisionContext{DOMConfidence: 0.1, PageComplexity: model.ComplexitySimple}
	d := Decide(req, ctx, Capabilities{}, nil)
	// edge case score should be low enough in a simple/obscure scenario to possibly downgrade;
	// verify at minimum it never selects DOM when confidence is this low (no forms, not complex).
	assert.NotEqual(t, model.ApproachDOM, d.Approach)
}

func TestDecide_DomConfidenceAboveEightAlwaysWinsDOM(t *testing.T) {
	req := model.ActionRequest{ConfidenceThreshold: 0.95, TaskDescription: "complex navigate dynamic react spa"}
	ctx := model.DecisionContext{DOMConfidence: 0.85, PageComplexity: model.ComplexityComplex, ElementCount: 30}
	d := Decide(req, ctx, Capabilities{AIAssistAvailable: true, VisionAvailable: true, FallbackEnabled: true}, nil)
	assert.Equal(t, model.ApproachDOM, d.Approach)
}

func TestDecide_SimpleInteractionOverride(t *testing.T) {
	req := model.ActionRequest{ActionType: model.ActionClick, ConfidenceThreshold: 0.9, TaskDescription: "click the button"}
	ctx := model.DecisionContext{DOMConfidence: 0.55}
	d := Decide(req, ctx, Capabilities{}, nil)
	assert.Equal(t, model.ApproachDOM, d.Approach)
	assert.Equal(t, TaskSimpleInteraction, d.TaskType)
}

func TestDecide_VisionCostOptimizationDowngrades(t *testing.T) {
	req := model.ActionRequest{ConfidenceThreshold: 0.9, TaskDescription: "simple click"}
	ctx := model.DecisionContext{DOMConfidence: 0.25, PageComplexity: model.ComplexitySimple, ElementCount: 2}
	d := Decide(req, ctx, Capabilities{AIAssistAvailable: true}, nil)
	assert.Equal(t, model.ApproachAI, d.Approach)
}

func TestDecide_HistoricalLearningPrefersDOM(t *testing.T) {
	req := model.ActionRequest{ConfidenceThreshold: 0.9}
	ctx := model.DecisionContext{DOMConfidence: 0.5}
	hist := fakeHistory{total: 10, stats: map[model.Approach]ApproachStats{
		model.ApproachDOM: {SuccessRate: 0.9, Attempts: 5},
	}}
	d := Decide(req, ctx, Capabilities{}, hist)
	assert.Equal(t, model.ApproachDOM, d.Approach)
	assert.Contains(t, d.Reasoning, "Historical DOM success rate")
}

func TestDecide_HistoricalLearningIgnoredBelowAttemptFloor(t *testing.T) {
	req := model.ActionRequest{ConfidenceThreshold: 0.95, TaskDescription: "simple click"}
	ctx := model.DecisionContext{DOMConfidence: 0.2, PageComplexity: model.ComplexitySimple}
	hist := fakeHistory{total: 20, stats: map[model.Approach]ApproachStats{
		model.ApproachDOM: {SuccessRate: 0.95, Attempts: 2}, // below 3-attempt floor
	}}
	d := Decide(req, ctx, Capabilities{AIAssistAvailable: true}, hist)
	assert.NotEqual(t, model.ApproachDOM, d.Approach)
	assert.NotContains(t, d.Reasoning, "Historical DOM success rate")
}

func TestInferTaskType_ComplexNavigation(t *testing.T) {
	req := model.ActionRequest{TaskDescription: "navigate through the multi-step workflow"}
	assert.Equal(t, TaskComplexNavigation, InferTaskType(req))
}

func TestInferTaskType_ContentExtraction(t *testing.T) {
	req := model.ActionRequest{ActionType: model.ActionExtract, TaskDescription: "scrape the price"}
	assert.Equal(t, TaskContentExtraction, InferTaskType(req))
}

func TestEdgeCaseScore_CappedAtOne(t *testing.T) {
	ctx := model.DecisionContext{
		PageComplexity:   model.ComplexityComplex,
		DOMConfidence:    0.1,
		ElementCount:     50,
		PreviousFailures: []model.Approach{model.ApproachDOM, model.ApproachAI},
	}
	score := EdgeCaseScore(ctx, TaskComplexNavigation, "dynamic javascript ajax react vue angular spa interactive animated popup")
	assert.LessOrEqual(t, score, 1.0)
}

func TestEdgeCaseScore_MinimalScenario(t *testing.T) {
	ctx := model.DecisionContext{PageComplexity: model.ComplexitySimple, DOMConfidence: 0.9}
	score := EdgeCaseScore(ctx, TaskGeneral, "plain task")
	require.InDelta(t, 0.1+0.1+0.1, score, 0.0001)
}
