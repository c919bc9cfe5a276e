package domexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

type fakeActuator struct {
	clickErr   error
	fillErr    error
	selectErr  error
	clickCalls int
	fillCalls  []string
}

func (f *fakeActuator) Click(ctx context.Context, selector string) error {
	f.clickCalls++
	return f.clickErr
}
func (f *fakeActuator) Fill(ctx context.Context, selector, text string) error {
	f.fillCalls = append(f.fillCalls, text)
	return f.fillErr
}
func (f *fakeActuator) SelectOption(ctx context.Context, selector, labelOrValue string) error {
	return f.selectErr
}
func (f *fakeActuator) WaitForLoadState(ctx context.Context, timeout time.Duration) error {
	return nil
}

func analysisWith(elements ...model.DOMElement) Analyzer {
	return func(ctx context.Context) (model.DOMAnalysis, error) {
		return model.DOMAnalysis{Interactive: elements, AnalysisConfidence: 0.9}, nil
	}
}

func TestExecute_ClickSucceeds(t *testing.T) {
	act := &fakeActuator{}
	req := model.ActionRequest{ActionType: model.ActionClick, TargetDescription: "login"}
	el := model.DOMElement{Text: "Login", Selector: "#login", Confidence: 0.8}
	result := Execute(context.Background(), act, analysisWith(el), req)
	require.True(t, result.Success)
	assert.Equal(t, 0.8, result.Confidence)
	assert.Equal(t, 1, act.clickCalls)
}

func TestExecute_BelowThresholdRecommendsAIAssist(t *testing.T) {
	act := &fakeActuator{}
	analyze := func(ctx context.Context) (model.DOMAnalysis, error) {
		return model.DOMAnalysis{AnalysisConfidence: 0.2}, nil
	}
	req := model.ActionRequest{ActionType: model.ActionClick, TargetDescription: "x", ConfidenceThreshold: 0.7}
	result := Execute(context.Background(), act, analyze, req)
	require.False(t, result.Success)
	assert.Equal(t, "use AI-Assist", result.Recommendation)
}

func TestExecute_ElementNotFound(t *testing.T) {
	act := &fakeActuator{}
	req := model.ActionRequest{ActionType: model.ActionClick, TargetDescription: "nonexistent"}
	result := Execute(context.Background(), act, analysisWith(model.DOMElement{Text: "other", Selector: "#o"}), req)
	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "element not found")
}

func TestExecute_TypeMissingTextFails(t *testing.T) {
	act := &fakeActuator{}
	req := model.ActionRequest{ActionType: model.ActionTypeText, TargetDescription: "email"}
	el := model.DOMElement{Text: "Email", Selector: "#email"}
	result := Execute(context.Background(), act, analysisWith(el), req)
	require.False(t, result.Success)
}

func TestExecute_TypeFillsText(t *testing.T) {
	act := &fakeActuator{}
	req := model.ActionRequest{
		ActionType:        model.ActionTypeText,
		TargetDescription: "email",
		ActionData:        map[string]any{"text": "a@b.com"},
	}
	el := model.DOMElement{Text: "Email", Selector: "#email"}
	result := Execute(context.Background(), act, analysisWith(el), req)
	require.True(t, result.Success)
	assert.Equal(t, []string{"a@b.com"}, act.fillCalls)
}

func TestExecute_ClearFillsEmptyString(t *testing.T) {
	act := &fakeActuator{}
	req := model.ActionRequest{ActionType: model.ActionClear, TargetDescription: "email"}
	el := model.DOMElement{Text: "Email", Selector: "#email"}
	result := Execute(context.Background(), act, analysisWith(el), req)
	require.True(t, result.Success)
	assert.Equal(t, []string{""}, act.fillCalls)
}

func TestExecute_RetriesOnTransientUpToBound(t *testing.T) {
	calls := 0
	act := &fakeActuator{}
	req := model.ActionRequest{ActionType: model.ActionClick, TargetDescription: "login"}
	el := model.DOMElement{Text: "Login", Selector: "#login", Confidence: 0.8}
	analyze := func(ctx context.Context) (model.DOMAnalysis, error) {
		calls++
		return model.DOMAnalysis{Interactive: []model.DOMElement{el}, AnalysisConfidence: 0.9}, nil
	}
	act.clickErr = errors.New("element not interactable")
	go func() {
		// no-op: clickErr stays set, so this test really checks bounded retries
	}()
	result := Execute(context.Background(), act, analyze, req)
	require.False(t, result.Success)
	assert.GreaterOrEqual(t, calls, 1)
	assert.LessOrEqual(t, act.clickCalls, maxAdaptiveRetries+1)
}

func TestLocate_SubstringMatchBeatsFuzzy(t *testing.T) {
	els := []model.DOMElement{
		{Text: "Sign up now", Selector: "#a"},
		{Text: "Log in", Selector: "#b"},
	}
	el, ok := locate(els, "log in")
	require.True(t, ok)
	assert.Equal(t, "#b", el.Selector)
}

func TestLocate_FuzzyFallback(t *testing.T) {
	els := []model.DOMElement{
		{Text: "Submit order form", Selector: "#s"},
	}
	el, ok := locate(els, "submit the order")
	require.True(t, ok)
	assert.Equal(t, "#s", el.Selector)
}

func TestLocate_NoMatch(t *testing.T) {
	els := []model.DOMElement{{Text: "unrelated", Selector: "#u"}}
	_, ok := locate(els, "totally different query")
	assert.False(t, ok)
}

func TestRequiresConfirmation_MatchesKeyword(t *testing.T) {
	req := model.ActionRequest{TargetDescription: "Delete account button"}
	assert.True(t, RequiresConfirmation(req))
}

func TestRequiresConfirmation_NoMatch(t *testing.T) {
	req := model.ActionRequest{TargetDescription: "View profile"}
	assert.False(t, RequiresConfirmation(req))
}
