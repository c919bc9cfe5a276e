// Package aiassist implements the AI Action Synthesizer (C5): it
// produces an abstract, LLM-independent action sequence for a request,
// consulting and updating the Pattern Cache, and executes that sequence
// through a stubbable Executor.
package aiassist

import (
	"context"
	"fmt"
	"strings"

	"github.com/polzovatel/browser-orchestrator/internal/model"
	"github.com/polzovatel/browser-orchestrator/internal/pattern"
)

// Availability is C5's three-state probe, mirroring the teacher's
// provider-selection pattern generalized to a synthesizer-wide gate.
type Availability string

const (
	Available     Availability = "available"
	NotInstalled  Availability = "not_installed"
	NotConfigured Availability = "not_configured"
)

// ExecutionOutcome is what an Executor reports for one synthesized
// sequence run.
type ExecutionOutcome struct {
	Success bool
	Error   string
	Actions []model.AbstractAction
	Extract map[string]any
}

// Executor runs a synthesized action sequence against the current page.
// The stub implementation in this package backs observe/act/extract with
// the DOM executor's own primitives; a richer implementation could drive
// a real LLM tool-call loop instead.
type Executor interface {
	Execute(ctx context.Context, p model.Pattern, timeout int) (ExecutionOutcome, error)
}

// Synthesizer is C5.
type Synthesizer struct {
	cache        *pattern.Cache
	availability Availability
	executor     Executor
}

// New constructs a Synthesizer backed by the given cache and executor.
func New(cache *pattern.Cache, availability Availability, executor Executor) *Synthesizer {
	return &Synthesizer{cache: cache, availability: availability, executor: executor}
}

// Synthesize returns the abstract action sequence for a request,
// reusing a cached pattern when one exists for the normalized key.
func (s *Synthesizer) Synthesize(url, task, actionType, target string, actionData map[string]any) (model.Pattern, bool) {
	key := pattern.Key(task, actionType, target)
	if existing, ok := s.cache.Touch(key); ok {
		return existing, true
	}

	actions := buildSequence(actionType, target, actionData)
	p := model.Pattern{PatternID: key, Actions: actions}
	return s.cache.Put(p), false
}

func buildSequence(actionType, target string, actionData map[string]any) []model.AbstractAction {
	observe := model.AbstractAction{
		Type:        model.AbstractObserve,
		Description: fmt.Sprintf("locate %s", target),
		Options:     map[string]any{"target": target},
	}
	var middle model.AbstractAction
	switch model.ActionType(actionType) {
	case model.ActionExtract:
		opts := map[string]any{}
		if schema, ok := actionData["schema"]; ok {
			opts["schema"] = schema
		}
		middle = model.AbstractAction{
			Type:        model.AbstractExtract,
			Description: fmt.Sprintf("extract %s", target),
			Options:     opts,
		}
	case model.ActionTypeText:
		text, _ := actionData["text"].(string)
		middle = model.AbstractAction{
			Type:        model.AbstractAct,
			Description: fmt.Sprintf("type %q into %s", text, target),
			Options:     map[string]any{"text": text},
		}
	default:
		middle = model.AbstractAction{
			Type:        model.AbstractAct,
			Description: fmt.Sprintf("perform %s on %s", actionType, target),
			Options:     actionData,
		}
	}
	verify := model.AbstractAction{
		Type:        model.AbstractObserve,
		Description: fmt.Sprintf("verify %s completed", actionType),
		Options:     map[string]any{"target": target},
	}
	return []model.AbstractAction{observe, middle, verify}
}

// Execute runs req end to end: availability gate, synthesize-or-reuse,
// delegate to the Executor, then record the outcome back into the cache.
func (s *Synthesizer) Execute(ctx context.Context, req model.ActionRequest, timeoutSeconds int) model.ActionResult {
	if s.availability != Available {
		return model.ActionResult{
			Success:        false,
			ApproachUsed:   model.ApproachAI,
			ErrorMessage:   fmt.Sprintf("ai-assist not available: %s", s.availability),
			Recommendation: "configure an AI-Assist provider or use another approach",
		}
	}

	target := req.TargetDescription
	p, _ := s.Synthesize(req.URL, req.TaskDescription, string(req.ActionType), target, req.ActionData)
	key := p.PatternID

	outcome, err := s.executor.Execute(ctx, p, timeoutSeconds)
	success := err == nil && outcome.Success
	s.cache.Record(key, success)

	if !success {
		msg := outcome.Error
		if err != nil {
			msg = err.Error()
		}
		return model.ActionResult{
			Success:      false,
			ApproachUsed: model.ApproachAI,
			ErrorMessage: msg,
			ResultData:   map[string]any{"pattern_id": key, "actions": outcome.Actions},
		}
	}
	return model.ActionResult{
		Success:      true,
		ApproachUsed: model.ApproachAI,
		Confidence:   0.75,
		ResultData: map[string]any{
			"pattern_id": key,
			"actions":    outcome.Actions,
			"extract":    outcome.Extract,
		},
	}
}

// domLocator is the narrow surface the stub Executor needs from the DOM
// layer: locate a target and report its selector/confidence, perform an
// action, and read text back.
type domLocator interface {
	Locate(ctx context.Context, target string) (selector string, confidence float64, found bool)
	Act(ctx context.Context, actionType model.ActionType, selector string, data map[string]any) error
	Read(ctx context.Context, selector string) (string, error)
}

// stubExecutor implements Executor atop domLocator: observe -> locate,
// act -> invoke the DOM action, extract -> read text. It never talks to
// an actual LLM; it exists so AI-Assist has a working implementation
// before a real model-backed executor is wired in.
type stubExecutor struct {
	dom domLocator
}

// NewStubExecutor builds the DOM-primitive-backed Executor described in
// the AI-Assist executor contract decision.
func NewStubExecutor(dom domLocator) Executor {
	return &stubExecutor{dom: dom}
}

func (e *stubExecutor) Execute(ctx context.Context, p model.Pattern, timeoutSeconds int) (ExecutionOutcome, error) {
	var lastSelector string
	extracted := map[string]any{}

	for _, step := range p.Actions {
		if err := ctx.Err(); err != nil {
			return ExecutionOutcome{Success: false, Error: err.Error(), Actions: p.Actions}, err
		}
		switch step.Type {
		case model.AbstractObserve:
			target, _ := step.Options["target"].(string)
			if target == "" {
				target = strings.TrimPrefix(step.Description, "locate ")
			}
			sel, _, found := e.dom.Locate(ctx, target)
			if !found {
				return ExecutionOutcome{Success: false, Error: "observe step could not locate target: " + target, Actions: p.Actions}, nil
			}
			lastSelector = sel
		case model.AbstractAct:
			actionType := model.ActionClick
			if _, ok := step.Options["text"]; ok {
				actionType = model.ActionTypeText
			}
			if err := e.dom.Act(ctx, actionType, lastSelector, step.Options); err != nil {
				return ExecutionOutcome{Success: false, Error: err.Error(), Actions: p.Actions}, nil
			}
		case model.AbstractExtract:
			text, err := e.dom.Read(ctx, lastSelector)
			if err != nil {
				return ExecutionOutcome{Success: false, Error: err.Error(), Actions: p.Actions}, nil
			}
			extracted["text"] = text
		}
	}
	return ExecutionOutcome{Success: true, Actions: p.Actions, Extract: extracted}, nil
}
