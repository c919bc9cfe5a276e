package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/browser-orchestrator/internal/aiassist"
	"github.com/polzovatel/browser-orchestrator/internal/browser"
	"github.com/polzovatel/browser-orchestrator/internal/config"
	"github.com/polzovatel/browser-orchestrator/internal/credential"
	"github.com/polzovatel/browser-orchestrator/internal/domanalysis"
	"github.com/polzovatel/browser-orchestrator/internal/domexec"
	"github.com/polzovatel/browser-orchestrator/internal/llm"
	"github.com/polzovatel/browser-orchestrator/internal/metrics"
	"github.com/polzovatel/browser-orchestrator/internal/model"
	"github.com/polzovatel/browser-orchestrator/internal/orchestrator"
	"github.com/polzovatel/browser-orchestrator/internal/pageadapter"
	"github.com/polzovatel/browser-orchestrator/internal/pattern"
	"github.com/polzovatel/browser-orchestrator/internal/retryengine"
	"github.com/polzovatel/browser-orchestrator/internal/routing"
	"github.com/polzovatel/browser-orchestrator/internal/session"
	"github.com/polzovatel/browser-orchestrator/internal/vision"
	"github.com/prometheus/client_golang/prometheus"
)

// engine bundles the orchestrator and every long-lived resource that
// backs it, so callers have a single place to release everything.
type engine struct {
	Orchestrator *orchestrator.Orchestrator
	Metrics      *metrics.Metrics
	Registry     *prometheus.Registry
	Sessions     *session.Store
	Credentials  *credential.Manager
	Browser      *browser.Manager

	// StateDomain is the domain this engine's "default" browser context
	// was restored for, and should have its storage state persisted
	// back to on success. Empty disables storage-state persistence.
	StateDomain string
}

func (e *engine) Close() {
	if e.Sessions != nil {
		_ = e.Sessions.Close()
	}
	if e.Credentials != nil {
		_ = e.Credentials.Close()
	}
	if e.Browser != nil {
		_ = e.Browser.Close()
	}
}

// buildEngine wires the whole pipeline together: browser manager and a
// single shared page ("default" context, "main" page) used by every
// approach, DOM analysis as the orchestrator's Analyzer,
// the three approach executors, retry/metrics/recovery, and the
// supporting credential/session stores. configPath may be empty.
//
// targetURL, when non-empty, scopes storage-state persistence (SPEC_FULL
// "Storage-state persistence on success"): the default context is seeded
// from any session previously saved for targetURL's host, and the
// resulting engine.StateDomain records that host so the caller can save
// the context's storage state back on success. Pass "" to disable this
// (used by serve, which shares one context across many domains).
func buildEngine(ctx context.Context, logger zerolog.Logger, configPath string, showBrowser bool, sessionDBPath, credentialDir, targetURL string) (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if showBrowser {
		cfg.ShowBrowser = true
	}

	sessions, err := session.Open(sessionDBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	credentials, err := credential.New(credentialDir, logger)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("open credential vault: %w", err)
	}

	mgr := browser.NewManager(logger)
	if err := mgr.Initialize(ctx, browser.Options{Headless: !cfg.ShowBrowser}); err != nil {
		_ = sessions.Close()
		_ = credentials.Close()
		return nil, fmt.Errorf("initialize browser: %w", err)
	}

	stateDomain := domainOf(targetURL)
	var savedState json.RawMessage
	if stateDomain != "" {
		if rec, ok, err := sessions.Get(stateDomain); err == nil && ok {
			savedState = rec.Cookies
		}
	}

	var page, pageErr = mgr.GetPageWithState("default", "main", savedState)
	if pageErr != nil {
		_ = sessions.Close()
		_ = credentials.Close()
		_ = mgr.Close()
		return nil, fmt.Errorf("browser page: %w", pageErr)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	actuator := pageadapter.NewActuator(page)
	locator := pageadapter.NewLocator(page)

	analyze := func(ctx context.Context, url string) (model.DOMAnalysis, error) {
		if page.URL() != url {
			if _, err := page.Goto(url); err != nil {
				return model.DOMAnalysis{}, fmt.Errorf("navigate to %s: %w", url, err)
			}
		}
		return domanalysis.Analyze(ctx, page)
	}

	domApproach := func(ctx context.Context, req model.ActionRequest) model.ActionResult {
		return domexec.Execute(ctx, actuator, func(ctx context.Context) (model.DOMAnalysis, error) {
			return domanalysis.Analyze(ctx, page)
		}, req)
	}

	aiAvailability := aiassist.NotConfigured
	if cfg.EnableAIAssist {
		aiAvailability = aiassist.Available
	}
	synthesizer := aiassist.New(pattern.New(), aiAvailability, aiassist.NewStubExecutor(locator))
	aiApproach := func(ctx context.Context, req model.ActionRequest) model.ActionResult {
		return synthesizer.Execute(ctx, req, int(cfg.Retry.TimeoutSeconds))
	}

	visionExecutor := vision.New(nil, false)
	visionApproach := func(ctx context.Context, req model.ActionRequest) model.ActionResult {
		return visionExecutor.Execute(ctx, req, 0, !cfg.ShowBrowser)
	}

	retryCfg := retryengine.Config{
		MaxRetries:         cfg.Retry.MaxRetries,
		BaseDelay:          cfg.Retry.BaseDelay,
		MaxDelay:           cfg.Retry.MaxDelay,
		ExponentialBackoff: cfg.Retry.Exponential,
		Jitter:             cfg.Retry.Jitter,
		Timeout:            secondsToDuration(cfg.Retry.TimeoutSeconds),
	}
	retry := retryengine.NewWithMetrics(m)

	caps := routing.Capabilities{
		AIAssistAvailable: cfg.EnableAIAssist,
		VisionAvailable:   cfg.EnableVision,
		FallbackEnabled:   true,
	}

	analysisFunc := buildAnalysisFunc(logger)

	orch := orchestrator.New(logger, analyze, orchestrator.Approaches{
		DOM:    domApproach,
		AI:     aiApproach,
		Vision: visionApproach,
	}, retry, caps, orchestrator.Config{
		RequestTimeout:        secondsToDuration(cfg.TotalTimeoutSeconds),
		InteractiveRecovery:   true,
		AnalysisFunc:          analysisFunc,
		RetryConfig:           retryCfg,
		MaxRetriesPerApproach: cfg.MaxRetriesPerApproach,
	}).WithMetrics(m)

	return &engine{
		Orchestrator: orch,
		Metrics:      m,
		Registry:     reg,
		Sessions:     sessions,
		Credentials:  credentials,
		Browser:      mgr,
		StateDomain:  stateDomain,
	}, nil
}

// domainOf returns targetURL's host, or "" if targetURL is empty or
// unparseable. Used to scope storage-state persistence to a single
// domain per engine.
func domainOf(targetURL string) string {
	if targetURL == "" {
		return ""
	}
	u, err := url.Parse(targetURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// buildAnalysisFunc wraps an environment-configured LLM client into the
// recovery analysis hook. Errors are swallowed per the hook's contract;
// if no provider is configured at all, analysis degrades to the empty
// string without ever attempting a call.
func buildAnalysisFunc(logger zerolog.Logger) func(ctx context.Context, errCtx model.ErrorContext, tried []model.Approach) string {
	client, err := llm.NewClientWithLogger(logger)
	if err != nil {
		logger.Warn().Err(err).Msg("no llm provider configured; recovery analysis disabled")
		return nil
	}
	return func(ctx context.Context, errCtx model.ErrorContext, tried []model.Approach) string {
		resp, err := client.Generate(ctx, llm.Request{
			System: "Explain browser automation failures in one or two sentences for a recovery prompt.",
			Messages: []llm.Message{{
				Role: "user",
				Content: fmt.Sprintf("Approach %s failed with category %s: %s. Previously tried: %v.",
					errCtx.ApproachUsed, errCtx.Category, errCtx.Message, tried),
			}},
			MaxTokens: 200,
		})
		if err != nil {
			logger.Debug().Err(err).Msg("recovery analysis call failed")
			return ""
		}
		return resp.Text
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
