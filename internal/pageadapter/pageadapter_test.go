package pageadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polzovatel/browser-orchestrator/internal/model"
)

// playwright.Page is a large third-party interface; these tests exercise
// the package's pure matching logic rather than faking it wholesale.

func TestBestMatch_PrefersHigherConfidenceAmongMatches(t *testing.T) {
	elements := []model.DOMElement{
		{Selector: "#a", Text: "Submit order", Confidence: 0.4},
		{Selector: "#b", Text: "Submit order now", Confidence: 0.9},
		{Selector: "#c", Text: "Cancel", Confidence: 0.99},
	}

	best, ok := bestMatch(elements, "submit")
	assert.True(t, ok)
	assert.Equal(t, "#b", best.Selector)
}

func TestBestMatch_MatchesOnAttributesWhenTextDoesNotContainTarget(t *testing.T) {
	elements := []model.DOMElement{
		{Selector: "#x", Text: "Click here", Attributes: map[string]string{"aria-label": "newsletter signup"}, Confidence: 0.5},
	}

	best, ok := bestMatch(elements, "newsletter")
	assert.True(t, ok)
	assert.Equal(t, "#x", best.Selector)
}

func TestBestMatch_NoMatchReturnsFalse(t *testing.T) {
	elements := []model.DOMElement{
		{Selector: "#a", Text: "Cancel", Confidence: 0.9},
	}

	_, ok := bestMatch(elements, "submit")
	assert.False(t, ok)
}

func TestBestMatch_EmptyTargetNeverMatches(t *testing.T) {
	elements := []model.DOMElement{
		{Selector: "#a", Text: "anything", Confidence: 0.9},
	}

	_, ok := bestMatch(elements, "")
	assert.False(t, ok)
}

func TestElementMatches_IsCaseInsensitive(t *testing.T) {
	el := model.DOMElement{Text: "SUBMIT ORDER"}
	assert.True(t, elementMatches(el, "submit"))
}
