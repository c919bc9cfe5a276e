package aiassist

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/browser-orchestrator/internal/model"
	"github.com/polzovatel/browser-orchestrator/internal/pattern"
)

type fakeExecutor struct {
	outcome ExecutionOutcome
	err     error
}

func (f fakeExecutor) Execute(ctx context.Context, p model.Pattern, timeout int) (ExecutionOutcome, error) {
	return f.outcome, f.err
}

func TestSynthesize_BuildsThreeStepSequence(t *testing.T) {
	c := pattern.New()
	s := New(c, Available, fakeExecutor{})
	p, cached := s.Synthesize("u", "click the button", "click", "submit", nil)
	require.False(t, cached)
	require.Len(t, p.Actions, 3)
	assert.Equal(t, model.AbstractObserve, p.Actions[0].Type)
	assert.Equal(t, model.AbstractAct, p.Actions[1].Type)
	assert.Equal(t, model.AbstractObserve, p.Actions[2].Type)
}

func TestSynthesize_ExtractMiddleStepIsExtract(t *testing.T) {
	c := pattern.New()
	s := New(c, Available, fakeExecutor{})
	p, _ := s.Synthesize("u", "get the price", "extract", "price", nil)
	assert.Equal(t, model.AbstractExtract, p.Actions[1].Type)
}

func TestSynthesize_ReusesCachedPattern(t *testing.T) {
	c := pattern.New()
	s := New(c, Available, fakeExecutor{})
	first, cached1 := s.Synthesize("u", "t", "click", "x", nil)
	require.False(t, cached1)
	second, cached2 := s.Synthesize("u", "t", "click", "x", nil)
	require.True(t, cached2)
	assert.Equal(t, first.PatternID, second.PatternID)
}

func TestExecute_NotAvailableFailsImmediately(t *testing.T) {
	c := pattern.New()
	s := New(c, NotConfigured, fakeExecutor{})
	req := model.ActionRequest{ActionType: model.ActionClick, TargetDescription: "x"}
	result := s.Execute(context.Background(), req, 30)
	require.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "not available")
}

func TestExecute_SuccessUpdatesPatternSuccessCount(t *testing.T) {
	c := pattern.New()
	s := New(c, Available, fakeExecutor{outcome: ExecutionOutcome{Success: true}})
	req := model.ActionRequest{ActionType: model.ActionClick, TargetDescription: "x", TaskDescription: "t"}
	result := s.Execute(context.Background(), req, 30)
	require.True(t, result.Success)

	key := pattern.Key("t", "click", "x")
	p, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, 1, p.SuccessCount)
}

func TestExecute_FailureUpdatesPatternFailureCount(t *testing.T) {
	c := pattern.New()
	s := New(c, Available, fakeExecutor{err: errors.New("boom")})
	req := model.ActionRequest{ActionType: model.ActionClick, TargetDescription: "x", TaskDescription: "t"}
	result := s.Execute(context.Background(), req, 30)
	require.False(t, result.Success)

	key := pattern.Key("t", "click", "x")
	p, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, 1, p.FailureCount)
}

type fakeDOM struct {
	selector   string
	wantTarget string // empty means accept any target
	found      bool
	actErr     error
	readText   string
	readErr    error
}

func (f fakeDOM) Locate(ctx context.Context, target string) (string, float64, bool) {
	if f.wantTarget != "" && !strings.Contains(strings.ToLower(target), strings.ToLower(f.wantTarget)) {
		return "", 0, false
	}
	return f.selector, 0.8, f.found
}
func (f fakeDOM) Act(ctx context.Context, actionType model.ActionType, selector string, data map[string]any) error {
	return f.actErr
}
func (f fakeDOM) Read(ctx context.Context, selector string) (string, error) {
	return f.readText, f.readErr
}

func TestStubExecutor_RunsObserveActObserve(t *testing.T) {
	dom := fakeDOM{selector: "#x", found: true}
	exec := NewStubExecutor(dom)
	p := model.Pattern{Actions: []model.AbstractAction{
		{Type: model.AbstractObserve, Description: "locate submit"},
		{Type: model.AbstractAct, Description: "perform click on submit"},
		{Type: model.AbstractObserve, Description: "verify click completed"},
	}}
	outcome, err := exec.Execute(context.Background(), p, 30)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
}

func TestStubExecutor_VerifyStepLocatesOriginalTargetNotItsOwnDescription(t *testing.T) {
	dom := fakeDOM{selector: "#x", wantTarget: "submit button", found: true}
	exec := NewStubExecutor(dom)
	p := model.Pattern{Actions: buildSequence(string(model.ActionClick), "submit button", nil)}

	outcome, err := exec.Execute(context.Background(), p, 30)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
}

func TestStubExecutor_ObserveNotFoundFails(t *testing.T) {
	dom := fakeDOM{found: false}
	exec := NewStubExecutor(dom)
	p := model.Pattern{Actions: []model.AbstractAction{
		{Type: model.AbstractObserve, Description: "locate submit"},
	}}
	outcome, err := exec.Execute(context.Background(), p, 30)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
}

func TestStubExecutor_ExtractReadsText(t *testing.T) {
	dom := fakeDOM{selector: "#x", found: true, readText: "hello"}
	exec := NewStubExecutor(dom)
	p := model.Pattern{Actions: []model.AbstractAction{
		{Type: model.AbstractObserve, Description: "locate price"},
		{Type: model.AbstractExtract, Description: "extract price"},
	}}
	outcome, err := exec.Execute(context.Background(), p, 30)
	require.NoError(t, err)
	require.True(t, outcome.Success)
	assert.Equal(t, "hello", outcome.Extract["text"])
}
