// Package orchestrator implements the Orchestrator (C11): it composes
// DOM analysis, routing, the three approach executors, retry, and
// interactive recovery into the end-to-end automation pipeline, records
// bounded history, and exposes aggregated analytics.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/polzovatel/browser-orchestrator/internal/classify"
	"github.com/polzovatel/browser-orchestrator/internal/domexec"
	"github.com/polzovatel/browser-orchestrator/internal/metrics"
	"github.com/polzovatel/browser-orchestrator/internal/model"
	"github.com/polzovatel/browser-orchestrator/internal/recovery"
	"github.com/polzovatel/browser-orchestrator/internal/retryengine"
	"github.com/polzovatel/browser-orchestrator/internal/routing"
)

const historyCapacity = 100

// Analyzer produces a fresh DOMAnalysis for a URL.
type Analyzer func(ctx context.Context, url string) (model.DOMAnalysis, error)

// Approaches bundles the three per-approach executors the orchestrator
// dispatches to. Each executor must itself honor ctx.
type Approaches struct {
	DOM    func(ctx context.Context, req model.ActionRequest) model.ActionResult
	AI     func(ctx context.Context, req model.ActionRequest) model.ActionResult
	Vision func(ctx context.Context, req model.ActionRequest) model.ActionResult
}

func (a Approaches) get(approach model.Approach) func(ctx context.Context, req model.ActionRequest) model.ActionResult {
	switch approach {
	case model.ApproachDOM:
		return a.DOM
	case model.ApproachAI:
		return a.AI
	case model.ApproachVision:
		return a.Vision
	default:
		return nil
	}
}

// Config controls orchestrator-wide behavior.
type Config struct {
	RequestTimeout       time.Duration // default 300s, per §5
	InteractiveRecovery  bool
	ConfirmationCallback func(ctx context.Context, req model.ActionRequest) (bool, error)
	RecoveryCallback     recovery.Callback
	// AnalysisFunc optionally produces an LLM-generated explanation of a
	// failure for recovery.Context.Analysis. Errors are swallowed; a
	// failed analysis call degrades to the empty string, never aborts
	// recovery.
	AnalysisFunc func(ctx context.Context, errCtx model.ErrorContext, tried []model.Approach) string
	// RetryConfig governs the per-approach retry engine run inside
	// runApproach. Zero value defaults to retryengine.DefaultConfig().
	RetryConfig retryengine.Config
	// MaxRetriesPerApproach caps how many times interactive recovery may
	// choose retry_same for the same approach within one Execute call,
	// independent of RetryConfig's intra-call retry budget. Once the cap
	// is hit, a further retry_same choice is treated as try_different.
	// Defaults to 3.
	MaxRetriesPerApproach int
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 300 * time.Second
	}
	if c.RetryConfig == (retryengine.Config{}) {
		c.RetryConfig = retryengine.DefaultConfig()
	}
	if c.MaxRetriesPerApproach <= 0 {
		c.MaxRetriesPerApproach = 3
	}
	return c
}

// Orchestrator is C11.
type Orchestrator struct {
	log        zerolog.Logger
	analyze    Analyzer
	approaches Approaches
	retry      *retryengine.Engine
	caps       routing.Capabilities
	cfg        Config

	mu          sync.Mutex
	history     []model.ExecutionRecord
	domFailures map[string][]model.Approach // URL -> approaches failed within current decision window
	metrics     *metrics.Metrics
}

// New constructs an Orchestrator.
func New(logger zerolog.Logger, analyze Analyzer, approaches Approaches, retryEngine *retryengine.Engine, caps routing.Capabilities, cfg Config) *Orchestrator {
	return &Orchestrator{
		log:         logger.With().Str("component", "orchestrator").Logger(),
		analyze:     analyze,
		approaches:  approaches,
		retry:       retryEngine,
		caps:        caps,
		cfg:         cfg.withDefaults(),
		domFailures: make(map[string][]model.Approach),
	}
}

// WithMetrics attaches a metrics collector that Execute and runApproach
// report to. m may be nil to disable reporting.
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// Execute runs req through the full pipeline: DOM analysis, routing
// (unless force_approach is set), execution wrapped in the retry
// engine, optional interactive recovery on failure, and history
// recording.
func (o *Orchestrator) Execute(ctx context.Context, req model.ActionRequest) (model.ActionResult, error) {
	if req.RequestID == uuid.Nil {
		req.RequestID = uuid.New()
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()

	if domexec.RequiresConfirmation(req) && o.cfg.ConfirmationCallback != nil {
		ok, err := o.cfg.ConfirmationCallback(ctx, req)
		if err != nil || !ok {
			result := model.ActionResult{Success: false, ErrorMessage: "destructive action not confirmed by user"}
			o.record(req, model.Approach(""), result, time.Since(start), "confirmation declined", "", false)
			return result, fmt.Errorf("orchestrator: confirmation declined for %q", req.TargetDescription)
		}
	}

	analysis, err := o.analyze(ctx, req.URL)
	if err != nil {
		result := model.ActionResult{Success: false, ErrorMessage: fmt.Sprintf("dom analysis failed: %v", err)}
		o.record(req, "", result, time.Since(start), "dom analysis failure short-circuits to overall failure", "", false)
		return result, fmt.Errorf("orchestrator: dom analysis: %w", err)
	}

	decisionCtx := o.decisionContext(req, analysis)

	var decision routing.Decision
	if req.ForceApproach != nil {
		decision = routing.Decision{Approach: *req.ForceApproach, Reasoning: "force_approach set on request"}
	} else {
		decision = routing.Decide(req, decisionCtx, o.caps, o)
	}

	result, recoveryAction, recoveryUsed := o.executeWithRecovery(ctx, req, decision, decisionCtx)

	o.record(req, decision.Approach, result, time.Since(start), decision.Reasoning, recoveryAction, recoveryUsed)
	o.metrics.ObserveExecution(time.Since(start).Seconds())
	if !result.Success {
		return result, fmt.Errorf("orchestrator: request failed: %s", result.ErrorMessage)
	}
	return result, nil
}

// ExecuteWithApproach bypasses routing entirely and runs req directly
// through the named approach.
func (o *Orchestrator) ExecuteWithApproach(ctx context.Context, req model.ActionRequest, approach model.Approach) (model.ActionResult, error) {
	forced := approach
	req.ForceApproach = &forced
	return o.Execute(ctx, req)
}

func (o *Orchestrator) executeWithRecovery(ctx context.Context, req model.ActionRequest, decision routing.Decision, decisionCtx model.DecisionContext) (model.ActionResult, model.RecoveryActionKind, bool) {
	tried := append([]model.Approach{}, decisionCtx.PreviousFailures...)
	approach := decision.Approach

	result := o.runApproach(ctx, req, approach)
	if result.Success || !o.cfg.InteractiveRecovery {
		return result, "", false
	}

	tried = append(tried, approach)
	errCtx := classify.ClassifyMessage(result.ErrorMessage, approach, nil)
	retrySameCount := map[model.Approach]int{}

	for {
		analysis := ""
		if o.cfg.AnalysisFunc != nil {
			analysis = o.cfg.AnalysisFunc(ctx, errCtx, tried)
		}
		action, input, _ := recovery.Handle(ctx, errCtx, result, tried, analysis, o.cfg.RecoveryCallback)

		if action == model.RecoveryRetrySame {
			retrySameCount[approach]++
			if retrySameCount[approach] > o.cfg.MaxRetriesPerApproach {
				action = model.RecoveryTryDifferent
			}
		}

		executor := recovery.Executor{
			RetrySame: func(ctx context.Context) model.ActionResult {
				return o.runApproach(ctx, req, approach)
			},
			TryDifferent: func(ctx context.Context, previousFailures []model.Approach) model.ActionResult {
				next, ok := firstUntried(previousFailures, o.caps, o.approaches)
				if !ok {
					return model.ActionResult{Success: false, ErrorMessage: "no alternative approach remains", ResultData: map[string]any{"aborted": true}}
				}
				approach = next
				return o.runApproach(ctx, req, approach)
			},
			ShowBrowser: func(ctx context.Context) model.ActionResult {
				shown := req
				shown.ShowBrowser = true
				return o.runApproach(ctx, shown, approach)
			},
		}

		next := executor.Execute(ctx, action, input, tried)
		if next.Success || action == model.RecoveryAbort || action == model.RecoveryManual || action == model.RecoveryModifyTask {
			return next, action, true
		}
		if action == model.RecoveryTryDifferent {
			tried = append(tried, approach)
		}
		result = next
		errCtx = classify.ClassifyMessage(result.ErrorMessage, approach, nil)
		if len(tried) >= len(allApproaches) {
			return result, action, true
		}
	}
}

var allApproaches = []model.Approach{model.ApproachDOM, model.ApproachAI, model.ApproachVision}

// firstUntried picks the next approach, in fixed priority order, that
// is untried, currently available per caps, and has a registered
// executor.
func firstUntried(tried []model.Approach, caps routing.Capabilities, approaches Approaches) (model.Approach, bool) {
	triedSet := make(map[model.Approach]bool, len(tried))
	for _, a := range tried {
		triedSet[a] = true
	}
	for _, a := range allApproaches {
		if triedSet[a] || approaches.get(a) == nil {
			continue
		}
		switch a {
		case model.ApproachAI:
			if !caps.AIAssistAvailable {
				continue
			}
		case model.ApproachVision:
			if !caps.VisionAvailable {
				continue
			}
		}
		return a, true
	}
	return "", false
}

func (o *Orchestrator) runApproach(ctx context.Context, req model.ActionRequest, approach model.Approach) model.ActionResult {
	fn := o.approaches.get(approach)
	if fn == nil {
		return model.ActionResult{Success: false, ApproachUsed: approach, ErrorMessage: fmt.Sprintf("no executor registered for approach %s", approach)}
	}
	result, err := o.retry.Run(ctx, approach, o.cfg.RetryConfig, map[string]any{"request_id": req.RequestID.String()}, func(ctx context.Context, attempt int) (model.ActionResult, error) {
		r := fn(ctx, req)
		if !r.Success {
			return r, fmt.Errorf("%s", r.ErrorMessage)
		}
		return r, nil
	})
	if err != nil && result.ErrorMessage == "" {
		result.ErrorMessage = err.Error()
	}
	result.ApproachUsed = approach

	outcome := "failure"
	if result.Success {
		outcome = "success"
	}
	o.metrics.RecordApproach(string(approach), outcome)

	return result
}

func (o *Orchestrator) decisionContext(req model.ActionRequest, analysis model.DOMAnalysis) model.DecisionContext {
	complexity := model.ComplexitySimple
	switch {
	case analysis.TotalElementCount > 30 || len(analysis.Forms) > 3:
		complexity = model.ComplexityComplex
	case analysis.TotalElementCount > 10 || len(analysis.Forms) > 0:
		complexity = model.ComplexityModerate
	}

	o.mu.Lock()
	prev := append([]model.Approach{}, o.domFailures[req.URL]...)
	o.mu.Unlock()

	return model.DecisionContext{
		DOMConfidence:    analysis.AnalysisConfidence,
		PageComplexity:   complexity,
		ElementCount:     len(analysis.Interactive),
		FormsCount:       len(analysis.Forms),
		PreviousFailures: prev,
	}
}

func (o *Orchestrator) record(req model.ActionRequest, approach model.Approach, result model.ActionResult, elapsed time.Duration, reasoning string, recoveryAction model.RecoveryActionKind, recoveryUsed bool) {
	rec := model.ExecutionRecord{
		ID:             req.RequestID,
		Timestamp:      time.Now(),
		URL:            req.URL,
		Task:           req.TaskDescription,
		ActionType:     req.ActionType,
		Approach:       approach,
		Success:        result.Success,
		Confidence:     result.Confidence,
		ExecutionTime:  elapsed,
		Reasoning:      reasoning,
		Error:          result.ErrorMessage,
		RecoveryAction: recoveryAction,
		RecoveryUsed:   recoveryUsed,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !result.Success && approach != "" {
		o.domFailures[req.URL] = append(o.domFailures[req.URL], approach)
	}
	o.history = append(o.history, rec)
	if len(o.history) > historyCapacity {
		o.history = o.history[len(o.history)-historyCapacity:]
	}
}

// History returns a snapshot of the bounded execution history, oldest
// first.
func (o *Orchestrator) History() []model.ExecutionRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.ExecutionRecord, len(o.history))
	copy(out, o.history)
	return out
}

// ClearHistory empties the execution history and per-URL failure
// tracking.
func (o *Orchestrator) ClearHistory() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
	o.domFailures = make(map[string][]model.Approach)
}

// Analytics is the aggregated view over execution history.
type Analytics struct {
	ApproachUsage         map[model.Approach]int
	ApproachSuccessRate   map[model.Approach]float64
	RecoveryStatsByAction map[model.RecoveryActionKind]int
	ErrorCategoryCounts   map[model.ErrorCategory]int
	TotalExecutions       int
}

// Analytics aggregates approach usage/success rates, recovery stats,
// and a rolling error-category distribution over current history.
func (o *Orchestrator) Analytics() Analytics {
	o.mu.Lock()
	hist := append([]model.ExecutionRecord{}, o.history...)
	o.mu.Unlock()

	usage := make(map[model.Approach]int)
	successes := make(map[model.Approach]int)
	recoveryStats := make(map[model.RecoveryActionKind]int)
	errorCounts := make(map[model.ErrorCategory]int)

	for _, r := range hist {
		if r.Approach != "" {
			usage[r.Approach]++
			if r.Success {
				successes[r.Approach]++
			}
		}
		if r.RecoveryUsed {
			recoveryStats[r.RecoveryAction]++
		}
		if !r.Success && r.Error != "" {
			errCtx := classify.ClassifyMessage(r.Error, r.Approach, nil)
			errorCounts[errCtx.Category]++
		}
	}

	rates := make(map[model.Approach]float64, len(usage))
	for approach, count := range usage {
		if count == 0 {
			continue
		}
		rates[approach] = float64(successes[approach]) / float64(count)
	}

	return Analytics{
		ApproachUsage:         usage,
		ApproachSuccessRate:   rates,
		RecoveryStatsByAction: recoveryStats,
		ErrorCategoryCounts:   errorCounts,
		TotalExecutions:       len(hist),
	}
}

// StatsFor implements routing.History so the orchestrator can feed its
// own execution history back into C9's historical-learning override.
func (o *Orchestrator) StatsFor(approach model.Approach) routing.ApproachStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	var success, total int
	for _, r := range o.history {
		if r.Approach != approach {
			continue
		}
		total++
		if r.Success {
			success++
		}
	}
	if total == 0 {
		return routing.ApproachStats{}
	}
	return routing.ApproachStats{SuccessRate: float64(success) / float64(total), Attempts: total}
}

// TotalExecutions implements routing.History.
func (o *Orchestrator) TotalExecutions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.history)
}
