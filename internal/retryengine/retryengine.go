// Package retryengine runs an operation with category-aware exponential
// backoff, jitter, and a bounded timeout, recording every outcome in a
// capped ring buffer for later analytics.
package retryengine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/polzovatel/browser-orchestrator/internal/classify"
	"github.com/polzovatel/browser-orchestrator/internal/metrics"
	"github.com/polzovatel/browser-orchestrator/internal/model"
)

// Config controls one Run invocation. Zero-valued MaxRetries, BaseDelay,
// MaxDelay and Timeout are replaced by DefaultConfig's values;
// ExponentialBackoff and Jitter are used as given.
type Config struct {
	MaxRetries         int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	ExponentialBackoff bool
	Jitter             bool
	Timeout            time.Duration
}

// DefaultConfig matches the engine's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:         3,
		BaseDelay:          time.Second,
		MaxDelay:           60 * time.Second,
		ExponentialBackoff: true,
		Jitter:             true,
		Timeout:            120 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	return c
}

var categoryMultiplier = map[model.ErrorCategory]float64{
	model.CategoryNetwork:           1.5,
	model.CategoryPageLoad:          1.2,
	model.CategoryTimeout:           1.3,
	model.CategoryBrowser:           2.0,
	model.CategoryElementNotFound:   0.8,
	model.CategoryInteractionFailed: 0.9,
}

func multiplierFor(cat model.ErrorCategory) float64 {
	if m, ok := categoryMultiplier[cat]; ok {
		return m
	}
	return 1.0
}

// Op is the operation Run executes; it must itself honor ctx.
type Op func(ctx context.Context, attempt int) (model.ActionResult, error)

// Record is one completed Run's outcome, kept for analytics.
type Record struct {
	Timestamp time.Time
	Approach  model.Approach
	Attempts  int
	Success   bool
	Category  model.ErrorCategory
}

// Engine runs operations and keeps a bounded history of outcomes.
type Engine struct {
	mu      sync.Mutex
	history []Record
	cap     int
	nowFn   func() time.Time
	randFn  func() float64
	metrics *metrics.Metrics
}

// New creates an Engine with the default 500-record history cap.
func New() *Engine {
	return &Engine{cap: 500, nowFn: time.Now, randFn: rand.Float64}
}

// NewWithMetrics creates an Engine that also reports retry attempts to m.
// m may be nil, in which case reporting is a no-op.
func NewWithMetrics(m *metrics.Metrics) *Engine {
	e := New()
	e.metrics = m
	return e
}

// Run executes op, retrying on classified-retryable failures per config.
// metadata is attached to every classified ErrorContext produced along
// the way and is not otherwise interpreted.
func (e *Engine) Run(ctx context.Context, approach model.Approach, cfg Config, metadata map[string]any, op Op) (model.ActionResult, error) {
	cfg = cfg.withDefaults()

	deadline := e.nowFn().Add(cfg.Timeout)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var last model.ActionResult
	var lastErrCtx model.ErrorContext
	attempts := 0

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		attempts++
		if err := runCtx.Err(); err != nil {
			lastErrCtx = classify.ClassifyMessage(err.Error(), approach, metadata)
			last = failureResult(approach, lastErrCtx)
			break
		}

		result, err := op(runCtx, attempt)
		if err == nil && result.Success {
			e.record(approach, attempts, true, "")
			return result, nil
		}

		msg := result.ErrorMessage
		if err != nil {
			msg = err.Error()
		}
		lastErrCtx = classify.ClassifyMessage(msg, approach, metadata)
		last = failureResult(approach, lastErrCtx)

		if !lastErrCtx.Retryable || attempt == cfg.MaxRetries {
			break
		}

		e.metrics.RecordRetryAttempt(string(lastErrCtx.Category))

		delay := e.nextDelay(cfg, attempt, lastErrCtx.Category)
		timer := time.NewTimer(delay)
		select {
		case <-runCtx.Done():
			timer.Stop()
			lastErrCtx = classify.ClassifyMessage(runCtx.Err().Error(), approach, metadata)
			last = failureResult(approach, lastErrCtx)
			e.record(approach, attempts, false, lastErrCtx.Category)
			return last, fmt.Errorf("retry engine: %w", runCtx.Err())
		case <-timer.C:
		}
	}

	e.record(approach, attempts, false, lastErrCtx.Category)
	last.Recommendation = recommendation(lastErrCtx.Category)
	return last, fmt.Errorf("retry engine: exhausted after %d attempt(s): %s", attempts, lastErrCtx.Message)
}

func failureResult(approach model.Approach, errCtx model.ErrorContext) model.ActionResult {
	return model.ActionResult{
		Success:      false,
		ApproachUsed: approach,
		ErrorMessage: errCtx.Message,
	}
}

// nextDelay computes the delay between attempt i and i+1.
func (e *Engine) nextDelay(cfg Config, attempt int, category model.ErrorCategory) time.Duration {
	base := float64(cfg.BaseDelay)
	factor := 1.0
	if cfg.ExponentialBackoff {
		factor = math.Pow(2, float64(attempt))
	}
	delay := base * factor * multiplierFor(category)
	if max := float64(cfg.MaxDelay); delay > max {
		delay = max
	}
	if cfg.Jitter {
		jitter := (e.randFn()*2 - 1) * 0.1 // U(-0.1, 0.1)
		delay *= 1 + jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func (e *Engine) record(approach model.Approach, attempts int, success bool, category model.ErrorCategory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, Record{
		Timestamp: e.nowFn(),
		Approach:  approach,
		Attempts:  attempts,
		Success:   success,
		Category:  category,
	})
	if len(e.history) > e.cap {
		e.history = e.history[len(e.history)-e.cap:]
	}
}

// History returns a snapshot of recorded outcomes, oldest first.
func (e *Engine) History() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Record, len(e.history))
	copy(out, e.history)
	return out
}

func recommendation(category model.ErrorCategory) string {
	switch category {
	case model.CategoryNetwork:
		return "check network connectivity and retry"
	case model.CategoryPageLoad:
		return "verify the URL is reachable and try again"
	case model.CategoryElementNotFound:
		return "use AI-Assist to locate the element"
	case model.CategoryInteractionFailed:
		return "scroll the element into view and retry"
	case model.CategoryPermissionDenied:
		return "this site blocks automated access"
	case model.CategoryBrowser:
		return "restart the browser session"
	case model.CategoryTimeout:
		return "increase the timeout or simplify the task"
	case model.CategoryConfiguration:
		return "check provider configuration"
	default:
		return "retry with a different approach"
	}
}
