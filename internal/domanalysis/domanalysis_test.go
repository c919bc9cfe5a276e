package domanalysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

type fakePage struct {
	url   string
	title string
	raw   rawPage
}

func (f *fakePage) URL() string                 { return f.url }
func (f *fakePage) Title() (string, error)       { return f.title, nil }
func (f *fakePage) Evaluate(expr string, arg ...interface{}) (interface{}, error) {
	return map[string]interface{}{
		"interactive": f.raw.Interactive,
		"forms":       f.raw.Forms,
		"navigation":  f.raw.Navigation,
		"content":     f.raw.Content,
	}, nil
}

func withIDElement(id, text string) rawElement {
	return rawElement{Tag: "button", Text: text, Attributes: map[string]string{"id": id}}
}

func TestElementConfidence_BaselineOnly(t *testing.T) {
	e := rawElement{Tag: "div"}
	c := elementConfidence(e, false)
	assert.InDelta(t, 0.3, c, 0.0001)
}

func TestElementConfidence_FullStackCapsAtOne(t *testing.T) {
	e := rawElement{
		Tag:        "button",
		Text:       "Submit",
		Attributes: map[string]string{"id": "x", "name": "y", "aria-label": "z"},
	}
	c := elementConfidence(e, true)
	assert.Equal(t, 1.0, c)
}

func TestElementConfidence_LongTextNoBonus(t *testing.T) {
	long := make([]byte, 81)
	for i := range long {
		long[i] = 'a'
	}
	e := rawElement{Tag: "div", Text: string(long)}
	c := elementConfidence(e, false)
	assert.InDelta(t, 0.3, c, 0.0001)
}

func TestAnalyze_ComputesPageConfidence(t *testing.T) {
	fp := &fakePage{
		url:   "https://example.com",
		title: "Example",
		raw: rawPage{
			Interactive: []rawElement{
				withIDElement("a", "Login"),
				withIDElement("b", "Sign up"),
			},
			Forms:      []rawForm{{Method: "post", Action: "/login", Fields: []string{"user"}, Types: []string{"text"}}},
			Navigation: []rawElement{{Tag: "a", Text: "Home"}},
		},
	}
	analysis, err := Analyze(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", analysis.URL)
	assert.Len(t, analysis.Interactive, 2)
	assert.Len(t, analysis.Forms, 1)
	assert.Greater(t, analysis.AnalysisConfidence, 0.0)
	assert.LessOrEqual(t, analysis.AnalysisConfidence, 1.0)
}

func TestAnalyze_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Analyze(ctx, &fakePage{})
	assert.Error(t, err)
}

func TestPageConfidence_NoFormsNoInteractive(t *testing.T) {
	a := model.DOMAnalysis{}
	assert.Equal(t, 0.0, pageConfidence(a))
}

func TestFormatForAI_OrdersDescendingByConfidenceThenExtractionOrder(t *testing.T) {
	a := model.DOMAnalysis{
		Title: "T",
		URL:   "u",
		Interactive: []model.DOMElement{
			{Text: "low", Confidence: 0.3, Selector: "#low"},
			{Text: "high", Confidence: 0.9, Selector: "#high"},
			{Text: "tie-a", Confidence: 0.5, Selector: "#tie-a"},
			{Text: "tie-b", Confidence: 0.5, Selector: "#tie-b"},
		},
	}
	out := FormatForAI(a, 10)
	assert.Contains(t, out, "1. [") // first line present
	highIdx := indexOf(out, "#high")
	lowIdx := indexOf(out, "#low")
	tieAIdx := indexOf(out, "#tie-a")
	tieBIdx := indexOf(out, "#tie-b")
	assert.True(t, highIdx < tieAIdx)
	assert.True(t, tieAIdx < tieBIdx)
	assert.True(t, tieBIdx < lowIdx)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
