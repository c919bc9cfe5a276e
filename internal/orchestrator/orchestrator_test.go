package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/browser-orchestrator/internal/metrics"
	"github.com/polzovatel/browser-orchestrator/internal/model"
	"github.com/polzovatel/browser-orchestrator/internal/recovery"
	"github.com/polzovatel/browser-orchestrator/internal/retryengine"
	"github.com/polzovatel/browser-orchestrator/internal/routing"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func fixedAnalyzer(a model.DOMAnalysis, err error) Analyzer {
	return func(ctx context.Context, url string) (model.DOMAnalysis, error) {
		return a, err
	}
}

func alwaysSucceeds(result model.ActionResult) func(ctx context.Context, req model.ActionRequest) model.ActionResult {
	return func(ctx context.Context, req model.ActionRequest) model.ActionResult {
		r := result
		r.Success = true
		return r
	}
}

func alwaysFails(msg string) func(ctx context.Context, req model.ActionRequest) model.ActionResult {
	return func(ctx context.Context, req model.ActionRequest) model.ActionResult {
		return model.ActionResult{Success: false, ErrorMessage: msg}
	}
}

func TestExecute_HighConfidenceRoutesToDOMAndSucceeds(t *testing.T) {
	analysis := model.DOMAnalysis{AnalysisConfidence: 0.95, Interactive: make([]model.DOMElement, 3)}
	o := New(testLogger(), fixedAnalyzer(analysis, nil), Approaches{
		DOM: alwaysSucceeds(model.ActionResult{Confidence: 0.9}),
	}, retryengine.New(), routing.Capabilities{}, Config{})

	req := model.ActionRequest{URL: "https://example.com", TaskDescription: "click the button", ActionType: model.ActionClick}
	result, err := o.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, model.ApproachDOM, result.ApproachUsed)

	hist := o.History()
	require.Len(t, hist, 1)
	assert.Equal(t, model.ApproachDOM, hist[0].Approach)
	assert.True(t, hist[0].Success)
}

func TestExecute_DOMAnalysisFailureShortCircuits(t *testing.T) {
	o := New(testLogger(), fixedAnalyzer(model.DOMAnalysis{}, errors.New("navigation timeout")), Approaches{}, retryengine.New(), routing.Capabilities{}, Config{})
	req := model.ActionRequest{URL: "https://example.com", TaskDescription: "click"}
	result, err := o.Execute(context.Background(), req)
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "dom analysis failed")
}

func TestExecute_ForceApproachBypassesRouting(t *testing.T) {
	analysis := model.DOMAnalysis{AnalysisConfidence: 0.1}
	o := New(testLogger(), fixedAnalyzer(analysis, nil), Approaches{
		Vision: alwaysSucceeds(model.ActionResult{Confidence: 0.8}),
	}, retryengine.New(), routing.Capabilities{}, Config{})

	result, err := o.ExecuteWithApproach(context.Background(), model.ActionRequest{URL: "u", TaskDescription: "t"}, model.ApproachVision)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, model.ApproachVision, result.ApproachUsed)
}

func TestExecute_ConfirmationDeclinedAbortsBeforeAnalysis(t *testing.T) {
	analyzed := false
	analyze := func(ctx context.Context, url string) (model.DOMAnalysis, error) {
		analyzed = true
		return model.DOMAnalysis{}, nil
	}
	o := New(testLogger(), analyze, Approaches{}, retryengine.New(), routing.Capabilities{}, Config{
		ConfirmationCallback: func(ctx context.Context, req model.ActionRequest) (bool, error) {
			return false, nil
		},
	})

	req := model.ActionRequest{URL: "u", TaskDescription: "delete this account", ActionType: model.ActionClick, TargetDescription: "delete account"}
	result, err := o.Execute(context.Background(), req)
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.False(t, analyzed, "confirmation should be checked before DOM analysis runs")
}

func TestExecute_InteractiveRecoveryTriesDifferentApproachOnFailure(t *testing.T) {
	analysis := model.DOMAnalysis{AnalysisConfidence: 0.1} // base rule -> vision
	o := New(testLogger(), fixedAnalyzer(analysis, nil), Approaches{
		Vision: alwaysFails("element not found"),
		AI:     alwaysSucceeds(model.ActionResult{Confidence: 0.6}),
	}, retryengine.New(), routing.Capabilities{AIAssistAvailable: true}, Config{
		InteractiveRecovery: true,
		RecoveryCallback: func(ctx context.Context, rc recovery.Context) (model.RecoveryActionKind, string, error) {
			return model.RecoveryTryDifferent, "", nil
		},
	})

	req := model.ActionRequest{URL: "u", TaskDescription: "find the value on the page"}
	result, err := o.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)

	hist := o.History()
	require.Len(t, hist, 1)
	assert.True(t, hist[0].RecoveryUsed)
	assert.Equal(t, model.RecoveryTryDifferent, hist[0].RecoveryAction)
}

func TestExecute_InteractiveRecoveryAbortsWhenExhausted(t *testing.T) {
	analysis := model.DOMAnalysis{AnalysisConfidence: 0.1}
	o := New(testLogger(), fixedAnalyzer(analysis, nil), Approaches{
		Vision: alwaysFails("vision agent not configured"),
		AI:     alwaysFails("ai assist not configured"),
		DOM:    alwaysFails("low confidence"),
	}, retryengine.New(), routing.Capabilities{AIAssistAvailable: true}, Config{
		InteractiveRecovery: true,
		RecoveryCallback: func(ctx context.Context, rc recovery.Context) (model.RecoveryActionKind, string, error) {
			return model.RecoveryTryDifferent, "", nil
		},
	})

	req := model.ActionRequest{URL: "u", TaskDescription: "find the value"}
	result, err := o.Execute(context.Background(), req)
	require.Error(t, err)
	assert.False(t, result.Success)
}

func TestAnalytics_AggregatesUsageAndSuccessRates(t *testing.T) {
	analysis := model.DOMAnalysis{AnalysisConfidence: 0.95}
	o := New(testLogger(), fixedAnalyzer(analysis, nil), Approaches{
		DOM: alwaysSucceeds(model.ActionResult{Confidence: 0.9}),
	}, retryengine.New(), routing.Capabilities{}, Config{})

	req := model.ActionRequest{URL: "u", TaskDescription: "click"}
	for i := 0; i < 3; i++ {
		_, err := o.Execute(context.Background(), req)
		require.NoError(t, err)
	}

	an := o.Analytics()
	assert.Equal(t, 3, an.TotalExecutions)
	assert.Equal(t, 3, an.ApproachUsage[model.ApproachDOM])
	assert.Equal(t, 1.0, an.ApproachSuccessRate[model.ApproachDOM])
}

func TestAnalytics_TracksErrorCategoryDistribution(t *testing.T) {
	o := New(testLogger(), fixedAnalyzer(model.DOMAnalysis{}, errors.New("network connection refused")), Approaches{}, retryengine.New(), routing.Capabilities{}, Config{})
	req := model.ActionRequest{URL: "u", TaskDescription: "t"}
	_, _ = o.Execute(context.Background(), req)

	an := o.Analytics()
	assert.Equal(t, 1, an.TotalExecutions)
	assert.Equal(t, 1, an.ErrorCategoryCounts[model.CategoryNetwork])
}

func TestClearHistory_ResetsStateAndFailureTracking(t *testing.T) {
	o := New(testLogger(), fixedAnalyzer(model.DOMAnalysis{}, errors.New("boom")), Approaches{}, retryengine.New(), routing.Capabilities{}, Config{})
	req := model.ActionRequest{URL: "u", TaskDescription: "t"}
	_, _ = o.Execute(context.Background(), req)
	require.Len(t, o.History(), 1)

	o.ClearHistory()
	assert.Len(t, o.History(), 0)
	assert.Equal(t, 0, o.TotalExecutions())
}

func TestRequestTimeout_DefaultsWhenUnset(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 300*time.Second, cfg.RequestTimeout)
}

func TestRetryConfig_DefaultsWhenUnset(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, retryengine.DefaultConfig(), cfg.RetryConfig)
}

func TestRetryConfig_PreservedWhenSet(t *testing.T) {
	custom := retryengine.Config{MaxRetries: 7}
	cfg := Config{RetryConfig: custom}.withDefaults()
	assert.Equal(t, custom, cfg.RetryConfig)
}

func TestMaxRetriesPerApproach_DefaultsWhenUnset(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 3, cfg.MaxRetriesPerApproach)
}

func TestMaxRetriesPerApproach_PreservedWhenSet(t *testing.T) {
	cfg := Config{MaxRetriesPerApproach: 1}.withDefaults()
	assert.Equal(t, 1, cfg.MaxRetriesPerApproach)
}

func TestExecute_RetrySameCappedThenForcedToTryDifferent(t *testing.T) {
	analysis := model.DOMAnalysis{AnalysisConfidence: 0.1}
	var visionAttempts int
	o := New(testLogger(), fixedAnalyzer(analysis, nil), Approaches{
		Vision: func(ctx context.Context, req model.ActionRequest) model.ActionResult {
			visionAttempts++
			return model.ActionResult{Success: false, ErrorMessage: "element not found"}
		},
		AI: alwaysSucceeds(model.ActionResult{Confidence: 0.6}),
	}, retryengine.New(), routing.Capabilities{AIAssistAvailable: true}, Config{
		InteractiveRecovery:   true,
		MaxRetriesPerApproach: 1,
		RecoveryCallback: func(ctx context.Context, rc recovery.Context) (model.RecoveryActionKind, string, error) {
			return model.RecoveryRetrySame, "", nil
		},
	})

	req := model.ActionRequest{URL: "u", TaskDescription: "find the value"}
	result, err := o.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, model.ApproachAI, result.ApproachUsed)
	// one initial attempt + one retry_same allowed by the cap = 2 vision calls
	assert.Equal(t, 2, visionAttempts)
}

func TestStatsFor_ReflectsRecordedHistory(t *testing.T) {
	analysis := model.DOMAnalysis{AnalysisConfidence: 0.95}
	o := New(testLogger(), fixedAnalyzer(analysis, nil), Approaches{
		DOM: alwaysSucceeds(model.ActionResult{Confidence: 0.9}),
	}, retryengine.New(), routing.Capabilities{}, Config{})

	req := model.ActionRequest{URL: "u", TaskDescription: "click"}
	_, _ = o.Execute(context.Background(), req)

	stats := o.StatsFor(model.ApproachDOM)
	assert.Equal(t, 1, stats.Attempts)
	assert.Equal(t, 1.0, stats.SuccessRate)

	assert.Equal(t, routing.ApproachStats{}, o.StatsFor(model.ApproachAI))
}

func TestExecuteWithRecovery_InvokesAnalysisFuncOnFailure(t *testing.T) {
	analysis := model.DOMAnalysis{AnalysisConfidence: 0.95, Interactive: make([]model.DOMElement, 3)}
	var calls int
	o := New(testLogger(), fixedAnalyzer(analysis, nil), Approaches{
		DOM: alwaysFails("element not found"),
	}, retryengine.New(), routing.Capabilities{}, Config{
		InteractiveRecovery: true,
		AnalysisFunc: func(ctx context.Context, errCtx model.ErrorContext, tried []model.Approach) string {
			calls++
			return "synthesized explanation"
		},
	})

	req := model.ActionRequest{URL: "u", TaskDescription: "click"}
	_, err := o.Execute(context.Background(), req)
	require.Error(t, err)
	assert.GreaterOrEqual(t, calls, 1)
}

func TestWithMetrics_RecordsApproachOutcomeAndExecutionSeconds(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	analysis := model.DOMAnalysis{AnalysisConfidence: 0.95, Interactive: make([]model.DOMElement, 3)}
	o := New(testLogger(), fixedAnalyzer(analysis, nil), Approaches{
		DOM: alwaysSucceeds(model.ActionResult{Confidence: 0.9}),
	}, retryengine.New(), routing.Capabilities{}, Config{}).WithMetrics(m)

	req := model.ActionRequest{URL: "u", TaskDescription: "click"}
	_, err := o.Execute(context.Background(), req)
	require.NoError(t, err)

	families, gatherErr := reg.Gather()
	require.NoError(t, gatherErr)
	var sawApproachTotal, sawExecutionSeconds bool
	for _, f := range families {
		switch f.GetName() {
		case "orchestrator_approach_total":
			sawApproachTotal = true
		case "orchestrator_execution_seconds":
			sawExecutionSeconds = true
		}
	}
	assert.True(t, sawApproachTotal)
	assert.True(t, sawExecutionSeconds)
}
